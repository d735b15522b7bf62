package acp

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrAlreadyStarted is returned when Start() is called on a running client.
	ErrAlreadyStarted = errors.New("client already started")

	// ErrNotStarted is returned when an operation requires a started client.
	ErrNotStarted = errors.New("client not started")

	// ErrClientStopped is returned when an operation is attempted on a stopped client.
	ErrClientStopped = errors.New("client is stopped")

	// ErrSubprocessTerminated fails every pending call when the reader
	// worker exits, whatever the reason.
	ErrSubprocessTerminated = errors.New("subprocess terminated")

	// ErrUnhandled is returned by a request handler that does not claim the
	// method, letting dispatch fall through to the next registered handler.
	ErrUnhandled = errors.New("request not handled")

	// ErrInvalidState is returned for invalid state transitions.
	ErrInvalidState = errors.New("invalid state transition")
)

// RPCError represents a JSON-RPC error returned by the agent.
type RPCError struct {
	Message string
	Code    int
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ProcessError represents an error with the agent subprocess.
type ProcessError struct {
	Cause   error
	Message string
}

func (e *ProcessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// ProtocolError represents a protocol-level error (e.g., a malformed line).
type ProtocolError struct {
	Cause   error
	Message string
	Line    string
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// HandshakeError is a failure during the initialize / session-new exchange.
// The adapter stops the client before surfacing one, so a HandshakeError
// never leaves a half-initialized adapter behind.
type HandshakeError struct {
	Cause error
	Stage string // "start", "initialize", "session/new"
}

func (e *HandshakeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("acp handshake failed at %s: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("acp handshake failed at %s", e.Stage)
}

func (e *HandshakeError) Unwrap() error {
	return e.Cause
}

// HandlerError is a domain error produced by a callback handler. The client
// maps it to a JSON-RPC error response with the carried code; any other
// handler error becomes a generic internal error.
type HandlerError struct {
	Message string
	Code    int
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler error %d: %s", e.Code, e.Message)
}

func errMissingParam(name string) *HandlerError {
	return &HandlerError{Code: ErrCodeInvalidParams, Message: "Missing required parameter: " + name}
}

func errInvalidParams(format string, args ...interface{}) *HandlerError {
	return &HandlerError{Code: ErrCodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func errTerminalNotFound(id string) *HandlerError {
	return &HandlerError{Code: ErrCodeResourceNotFound, Message: "Terminal not found: " + id}
}
