package acp

import (
	"encoding/json"
	"sync/atomic"
)

// ACP JSON-RPC method constants.
const (
	// Client-sent requests (agent responds)
	MethodInitialize    = "initialize"
	MethodSessionNew    = "session/new"
	MethodSessionPrompt = "session/prompt"

	// Client-sent notifications
	MethodSessionCancel = "session/cancel"

	// Agent-sent notifications
	MethodSessionUpdate = "session/update"

	// Agent-sent requests (client responds)
	MethodRequestPermission = "session/request_permission"
	MethodFsReadTextFile    = "fs/read_text_file"
	MethodFsWriteTextFile   = "fs/write_text_file"
	MethodTerminalCreate    = "terminal/create"
	MethodTerminalOutput    = "terminal/output"
	MethodTerminalWaitExit  = "terminal/wait_for_exit"
	MethodTerminalKill      = "terminal/kill"
	MethodTerminalRelease   = "terminal/release"
)

// Standard JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ACP-specific error codes.
const (
	ErrCodeOperationTimeout     = -32000
	ErrCodeResourceNotFound     = -32001
	ErrCodeInvalidResourceState = -32002
)

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      int64           `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	Error   *JSONRPCError   `json:"error,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	ID      int64           `json:"id"`
}

// JSONRPCNotification represents a JSON-RPC 2.0 notification (no id).
type JSONRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// idGenerator allocates request IDs, monotonically increasing and unique
// for the lifetime of the process.
type idGenerator struct {
	next atomic.Int64
}

func (g *idGenerator) Next() int64 {
	return g.next.Add(1)
}

// newRequest creates a new JSON-RPC 2.0 request.
func newRequest(id int64, method string, params interface{}) (*JSONRPCRequest, error) {
	paramsData, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}, nil
}

// newResponse creates a new JSON-RPC 2.0 response.
func newResponse(id int64, result interface{}) (*JSONRPCResponse, error) {
	resultData, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  resultData,
	}, nil
}

// newErrorResponse creates a new JSON-RPC 2.0 error response.
func newErrorResponse(id int64, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	}
}

// newNotification creates a new JSON-RPC 2.0 notification.
func newNotification(method string, params interface{}) (*JSONRPCNotification, error) {
	paramsData, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &JSONRPCNotification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsData,
	}, nil
}

// messageKind classifies a parsed wire message by shape.
type messageKind int

const (
	kindRequest messageKind = iota
	kindResponse
	kindError
	kindNotification
)

func (k messageKind) String() string {
	switch k {
	case kindRequest:
		return "request"
	case kindResponse:
		return "response"
	case kindError:
		return "error"
	case kindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// wireMessage is one classified line of agent output.
type wireMessage struct {
	Error  *JSONRPCError
	Method string
	Params json.RawMessage
	Result json.RawMessage
	ID     int64
	Kind   messageKind
}

// parseMessage decodes and classifies a single newline-delimited JSON-RPC
// line. Classification is by shape: id+method is a request, id+error is an
// error, id alone is a response, method alone is a notification. Malformed
// input yields a *ProtocolError.
func parseMessage(line []byte) (*wireMessage, error) {
	var raw struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
		Result json.RawMessage `json:"result"`
		Error  *JSONRPCError   `json:"error"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, &ProtocolError{Message: "failed to parse message", Line: string(line), Cause: err}
	}

	switch {
	case raw.ID != nil && raw.Method != "":
		return &wireMessage{Kind: kindRequest, ID: *raw.ID, Method: raw.Method, Params: raw.Params}, nil
	case raw.ID != nil && raw.Error != nil:
		return &wireMessage{Kind: kindError, ID: *raw.ID, Error: raw.Error}, nil
	case raw.ID != nil:
		return &wireMessage{Kind: kindResponse, ID: *raw.ID, Result: raw.Result}, nil
	case raw.Method != "":
		return &wireMessage{Kind: kindNotification, Method: raw.Method, Params: raw.Params}, nil
	default:
		return nil, &ProtocolError{Message: "message has neither id nor method", Line: string(line)}
	}
}
