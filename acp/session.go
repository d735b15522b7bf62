package acp

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Session is the agent-issued conversation context. Its accumulated state
// is updated only by session/update notifications routed in by the
// adapter's notification handler.
type Session struct {
	client          *Client
	id              string
	text            strings.Builder
	thinking        strings.Builder
	mu              sync.Mutex
	sawToolActivity bool
}

// TurnResult is the outcome of one completed prompt turn.
type TurnResult struct {
	Error      error
	FullText   string
	Thinking   string
	StopReason string
	DurationMs int64
	Success    bool
}

func newSession(client *Client, id string) *Session {
	return &Session{client: client, id: id}
}

// ID returns the agent-issued session id.
func (s *Session) ID() string {
	return s.id
}

// Prompt sends one text prompt and waits for the turn to complete. The
// returned result carries the text accumulated from session updates during
// the turn.
func (s *Session) Prompt(ctx context.Context, text string) (*TurnResult, error) {
	s.mu.Lock()
	s.text.Reset()
	s.thinking.Reset()
	s.sawToolActivity = false
	s.mu.Unlock()

	start := time.Now()

	params := PromptRequest{
		SessionID: s.id,
		Prompt:    []ContentBlock{NewTextContent(text)},
	}

	result, err := s.client.Call(ctx, MethodSessionPrompt, params)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		return &TurnResult{Error: err, DurationMs: durationMs}, err
	}

	var promptResp PromptResponse
	if len(result) > 0 {
		if jsonErr := json.Unmarshal(result, &promptResp); jsonErr != nil {
			perr := &ProtocolError{Message: "failed to parse prompt response", Cause: jsonErr}
			return &TurnResult{Error: perr, DurationMs: durationMs}, perr
		}
	}

	s.mu.Lock()
	turn := &TurnResult{
		FullText:   s.text.String(),
		Thinking:   s.thinking.String(),
		StopReason: promptResp.StopReason,
		DurationMs: durationMs,
		Success:    promptResp.StopReason == "" || promptResp.StopReason == "endTurn" || promptResp.StopReason == "end_turn",
	}
	s.mu.Unlock()

	return turn, nil
}

// Cancel sends a cancel notification for the current prompt.
func (s *Session) Cancel() error {
	return s.client.SendNotification(MethodSessionCancel, CancelNotification{SessionID: s.id})
}

// handleUpdate folds one session/update into the accumulated state. Called
// from the client's reader worker.
func (s *Session) handleUpdate(update *SessionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch update.Type {
	case UpdateTypeAgentMessage:
		if update.Content != nil && update.Content.Type == "text" {
			s.text.WriteString(update.Content.Text)
		}
	case UpdateTypeAgentThought:
		if update.Content != nil && update.Content.Type == "text" {
			s.thinking.WriteString(update.Content.Text)
		}
	case UpdateTypeToolCall, UpdateTypeToolCallUpdate:
		s.sawToolActivity = true
	}
}

// Text returns the message text accumulated so far in the current turn.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}
