package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/term"
)

// Handlers answers the requests an agent sends back into the orchestrator:
// permission decisions, file reads/writes, and terminal lifecycle. It owns
// the terminal table and the permission decision history independently of
// client and session lifetime, so one Handlers can serve many sessions.
type Handlers struct {
	terminals       map[string]*terminal
	onPermissionLog func(string)
	isTerminal      func() bool
	promptIn        io.Reader
	promptReader    *bufio.Reader
	promptOut       io.Writer
	log             *slog.Logger
	allowlist       []string
	history         []PermissionRecord
	mode            PermissionMode
	termMu          sync.Mutex
	histMu          sync.Mutex
}

// HandlerOption is a functional option for configuring Handlers.
type HandlerOption func(*Handlers)

// WithPermissionMode sets the permission mode (default auto_approve).
func WithPermissionMode(mode PermissionMode) HandlerOption {
	return func(h *Handlers) { h.mode = mode }
}

// WithAllowlist sets the allowlist patterns used by allowlist mode.
func WithAllowlist(patterns []string) HandlerOption {
	return func(h *Handlers) { h.allowlist = patterns }
}

// WithPermissionLog sets a callback invoked with one line per decision.
func WithPermissionLog(fn func(string)) HandlerOption {
	return func(h *Handlers) { h.onPermissionLog = fn }
}

// WithHandlersLogger sets the handlers logger. The default discards
// everything.
func WithHandlersLogger(log *slog.Logger) HandlerOption {
	return func(h *Handlers) { h.log = log }
}

// NewHandlers validates the permission mode and builds the handler set. An
// unrecognized mode is a configuration error.
func NewHandlers(opts ...HandlerOption) (*Handlers, error) {
	h := &Handlers{
		mode:      PermissionAutoApprove,
		terminals: make(map[string]*terminal),
		promptIn:  os.Stdin,
		promptOut: os.Stderr,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if !validPermissionMode(h.mode) {
		return nil, fmt.Errorf("invalid permission mode: %q", h.mode)
	}

	return h, nil
}

// Mode returns the configured permission mode.
func (h *Handlers) Mode() PermissionMode {
	return h.mode
}

// HandleRequest routes one agent request to the matching handler. It is a
// RequestHandler; methods outside this surface return ErrUnhandled so
// dispatch can fall through.
func (h *Handlers) HandleRequest(_ context.Context, method string, params json.RawMessage) (interface{}, error) {
	h.log.Debug("agent callback", "method", method)

	switch method {
	case MethodRequestPermission:
		return h.handleRequestPermission(params)
	case MethodFsReadTextFile:
		return h.handleReadFile(params)
	case MethodFsWriteTextFile:
		return h.handleWriteFile(params)
	case MethodTerminalCreate:
		return h.handleTerminalCreate(params)
	case MethodTerminalOutput:
		return h.handleTerminalOutput(params)
	case MethodTerminalWaitExit:
		return h.handleTerminalWaitExit(params)
	case MethodTerminalKill:
		return h.handleTerminalKill(params)
	case MethodTerminalRelease:
		return h.handleTerminalRelease(params)
	default:
		return nil, ErrUnhandled
	}
}
