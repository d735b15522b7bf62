package acp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_HandleUpdateAccumulatesText(t *testing.T) {
	s := newSession(nil, "s1")

	s.handleUpdate(&SessionUpdate{Type: UpdateTypeAgentMessage, Content: &ContentBlock{Type: "text", Text: "Hello"}})
	s.handleUpdate(&SessionUpdate{Type: UpdateTypeAgentMessage, Content: &ContentBlock{Type: "text", Text: ", world"}})

	assert.Equal(t, "Hello, world", s.Text())
}

func TestSession_HandleUpdateSeparatesThinking(t *testing.T) {
	s := newSession(nil, "s1")

	s.handleUpdate(&SessionUpdate{Type: UpdateTypeAgentThought, Content: &ContentBlock{Type: "text", Text: "pondering"}})
	s.handleUpdate(&SessionUpdate{Type: UpdateTypeAgentMessage, Content: &ContentBlock{Type: "text", Text: "answer"}})

	assert.Equal(t, "answer", s.Text())
	s.mu.Lock()
	assert.Equal(t, "pondering", s.thinking.String())
	s.mu.Unlock()
}

func TestSession_HandleUpdateToolActivity(t *testing.T) {
	s := newSession(nil, "s1")

	s.handleUpdate(&SessionUpdate{Type: UpdateTypeToolCall, ToolName: "fs/read_text_file"})
	s.mu.Lock()
	assert.True(t, s.sawToolActivity)
	s.mu.Unlock()
	assert.Empty(t, s.Text())
}

func TestSession_HandleUpdateNonTextContentIgnored(t *testing.T) {
	s := newSession(nil, "s1")
	s.handleUpdate(&SessionUpdate{Type: UpdateTypeAgentMessage, Content: &ContentBlock{Type: "image"}})
	s.handleUpdate(&SessionUpdate{Type: UpdateTypeAgentMessage})
	assert.Empty(t, s.Text())
}

// The scripted agent streams two update notifications before answering the
// prompt, which is always request id 1 on a fresh client.
func TestSession_PromptCollectsStreamedText(t *testing.T) {
	script := `read line
printf '{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"Hello "}}}}\n'
printf '{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"there"}}}}\n'
printf '{"jsonrpc":"2.0","id":1,"result":{"stopReason":"end_turn"}}\n'
sleep 5`
	c := NewClient(WithCommand("sh", "-c", script))
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	s := newSession(c, "s1")
	c.OnNotification(func(method string, params json.RawMessage) {
		if method != MethodSessionUpdate {
			return
		}
		var notif SessionNotification
		if err := json.Unmarshal(params, &notif); err != nil {
			return
		}
		if notif.SessionID == s.ID() {
			s.handleUpdate(&notif.Update)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	turn, err := s.Prompt(ctx, "hi")
	require.NoError(t, err)
	assert.True(t, turn.Success)
	assert.Equal(t, "end_turn", turn.StopReason)
	assert.Equal(t, "Hello there", turn.FullText)
	assert.GreaterOrEqual(t, turn.DurationMs, int64(0))
}

func TestSession_PromptNonTerminalStopReason(t *testing.T) {
	script := `read line
printf '{"jsonrpc":"2.0","id":1,"result":{"stopReason":"max_tokens"}}\n'
sleep 5`
	c := NewClient(WithCommand("sh", "-c", script))
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	s := newSession(c, "s1")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	turn, err := s.Prompt(ctx, "hi")
	require.NoError(t, err)
	assert.False(t, turn.Success)
	assert.Equal(t, "max_tokens", turn.StopReason)
}
