package acp

import "encoding/json"

// ACP protocol version this client speaks.
const ProtocolVersion = "2024-01"

// --- Initialize ---

// InitializeRequest is sent by the client to establish the connection.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
}

// ClientCapabilities advertises which callback surfaces the client serves.
type ClientCapabilities struct {
	Fs       bool `json:"fs"`
	Terminal bool `json:"terminal"`
}

// InitializeResponse is returned by the agent. ProtocolVersion must be
// present or the handshake fails.
type InitializeResponse struct {
	ProtocolVersion string `json:"protocolVersion"`
}

// --- Session ---

// NewSessionResponse returns the agent-issued session id.
type NewSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// PromptRequest sends one prompt turn to the agent.
type PromptRequest struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// PromptResponse indicates the prompt turn has completed.
type PromptResponse struct {
	StopReason string `json:"stopReason"` // "endTurn", "cancelled", "error", "maxTokens"
}

// ContentBlock is typed content in prompts and messages.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewTextContent creates a text content block.
func NewTextContent(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// CancelNotification asks the agent to abandon the current prompt.
type CancelNotification struct {
	SessionID string `json:"sessionId"`
}

// --- Session updates (agent notification) ---

// Session update type constants.
const (
	UpdateTypeAgentMessage   = "agent_message_chunk"
	UpdateTypeAgentThought   = "agent_thought_chunk"
	UpdateTypeToolCall       = "tool_call"
	UpdateTypeToolCallUpdate = "tool_call_update"
)

// SessionNotification is the params of a session/update notification.
type SessionNotification struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// SessionUpdate is a discriminated union; Type determines which other
// fields are populated.
type SessionUpdate struct {
	Type       string        `json:"sessionUpdate"`
	Content    *ContentBlock `json:"content,omitempty"`
	ToolCallID string        `json:"toolCallId,omitempty"`
	ToolName   string        `json:"toolName,omitempty"`
	Status     string        `json:"status,omitempty"`
}

// --- Agent-to-client callbacks: permissions ---

// PermissionOption is one choice offered by the agent alongside a
// permission request. Approval echoes one of these ids verbatim.
type PermissionOption struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "allow", "allow_always", "deny", ...
}

// RequestPermissionResult carries the decision back to the agent.
type RequestPermissionResult struct {
	Outcome PermissionOutcome `json:"outcome"`
}

// PermissionOutcome is either a selected option or a cancellation.
type PermissionOutcome struct {
	Outcome  string `json:"outcome"` // "selected" or "cancelled"
	OptionID string `json:"optionId,omitempty"`
}

func selectedOutcome(optionID string) RequestPermissionResult {
	return RequestPermissionResult{Outcome: PermissionOutcome{Outcome: "selected", OptionID: optionID}}
}

func cancelledOutcome() RequestPermissionResult {
	return RequestPermissionResult{Outcome: PermissionOutcome{Outcome: "cancelled"}}
}

// --- Agent-to-client callbacks: file I/O ---

// ReadFileParams is sent by the agent to read a file.
type ReadFileParams struct {
	Path string `json:"path"`
}

// ReadFileResult returns the file content. For a nonexistent path Content
// is null and Exists is false, so agents can probe existence without
// triggering error handling.
type ReadFileResult struct {
	Content *string `json:"content"`
	Exists  *bool   `json:"exists,omitempty"`
}

// WriteFileParams is sent by the agent to write a file. Content is a
// pointer so a missing parameter is distinguishable from an empty string.
type WriteFileParams struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

// SuccessResult acknowledges a write, kill, or release.
type SuccessResult struct {
	Success bool `json:"success"`
}

// --- Agent-to-client callbacks: terminals ---

// CreateTerminalParams carries the argv list and optional working
// directory. Command stays raw so validation can distinguish a missing
// parameter, a non-list, and an empty list.
type CreateTerminalParams struct {
	Command json.RawMessage `json:"command"`
	Cwd     string          `json:"cwd,omitempty"`
}

// CreateTerminalResult returns the locally generated terminal id.
type CreateTerminalResult struct {
	TerminalID string `json:"terminalId"`
}

// TerminalIDParams addresses an existing terminal.
type TerminalIDParams struct {
	TerminalID string `json:"terminalId"`
}

// TerminalOutputResult returns captured combined output so far.
type TerminalOutputResult struct {
	Output string `json:"output"`
	Done   bool   `json:"done"`
}

// WaitForExitParams waits for termination, bounded by Timeout (seconds)
// when given.
type WaitForExitParams struct {
	TerminalID string   `json:"terminalId"`
	Timeout    *float64 `json:"timeout,omitempty"`
}

// WaitForExitResult returns the exit code.
type WaitForExitResult struct {
	ExitCode int `json:"exitCode"`
}
