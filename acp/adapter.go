package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// orchestrationPreamble frames every prompt sent through Execute so the
// agent knows it is running unattended.
const orchestrationPreamble = `ORCHESTRATION CONTEXT: You are running inside an automated orchestration loop. There is no human available to answer questions. Work on the task below, make concrete progress, and state plainly what you changed.

`

// ToolResponse is the uniform outcome shape the orchestration loop
// consumes. Execute always returns one; it never panics or returns an
// error across this boundary.
type ToolResponse struct {
	Metadata map[string]interface{}
	Output   string
	Error    string
	Success  bool
}

// Adapter drives one ACP agent: it performs the handshake, owns the client
// and the session, exposes the execute contract, and provides a
// signal-safe emergency kill path.
type Adapter struct {
	config   AdapterConfig
	log      *slog.Logger
	handlers *Handlers
	client   *Client

	// session is read lock-free by routeNotification, which runs on the
	// client's reader worker. Taking mu there would wedge the only stdout
	// consumer whenever initialize holds mu across a handshake call.
	session atomic.Pointer[Session]

	mu          sync.Mutex
	agentPid    atomic.Int64
	initialized bool
}

// AdapterOption is a functional option for configuring an Adapter.
type AdapterOption func(*Adapter)

// WithAdapterLogger sets the adapter logger. The default discards
// everything.
func WithAdapterLogger(log *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.log = log }
}

// NewAdapter builds an adapter from the configuration. An unrecognized
// permission mode is a fatal configuration error.
func NewAdapter(config AdapterConfig, opts ...AdapterOption) (*Adapter, error) {
	config = config.withDefaults()

	a := &Adapter{config: config}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	handlers, err := NewHandlers(
		WithPermissionMode(config.PermissionMode),
		WithAllowlist(config.PermissionAllowlist),
		WithHandlersLogger(a.log),
	)
	if err != nil {
		return nil, err
	}
	a.handlers = handlers

	return a, nil
}

// CheckAvailability reports whether the configured agent command resolves
// on the search path. Cheap and side-effect-free.
func (a *Adapter) CheckAvailability() bool {
	_, err := exec.LookPath(a.config.AgentCommand)
	return err == nil
}

// Handlers exposes the callback handler set, giving the orchestration loop
// access to permission history and stats.
func (a *Adapter) Handlers() *Handlers {
	return a.handlers
}

// initialize performs the handshake once: start the client, register the
// notification and request handlers, exchange initialize and session/new,
// and construct the session. Any failure stops the client and surfaces a
// *HandshakeError; it never leaves a half-initialized adapter.
func (a *Adapter) initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}

	client := NewClient(
		WithCommand(a.config.AgentCommand, a.config.AgentArgs...),
		WithLogger(a.log),
		WithStderrHandler(func(chunk []byte) {
			a.log.Debug("agent stderr", "output", string(chunk))
		}),
	)

	client.OnNotification(a.routeNotification)
	client.OnRequest(a.handlers.HandleRequest)

	if err := client.Start(ctx); err != nil {
		return &HandshakeError{Stage: "start", Cause: err}
	}
	a.agentPid.Store(int64(client.Pid()))

	fail := func(stage string, cause error) error {
		client.Stop()
		a.agentPid.Store(0)
		return &HandshakeError{Stage: stage, Cause: cause}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.config.Timeout())
	defer cancel()

	initResult, err := client.Call(callCtx, MethodInitialize, InitializeRequest{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{Fs: true, Terminal: true},
	})
	if err != nil {
		return fail("initialize", err)
	}
	var initResp InitializeResponse
	if err := json.Unmarshal(initResult, &initResp); err != nil {
		return fail("initialize", &ProtocolError{Message: "failed to parse initialize response", Cause: err})
	}
	if initResp.ProtocolVersion == "" {
		return fail("initialize", &ProtocolError{Message: "initialize response missing protocolVersion"})
	}

	sessResult, err := client.Call(callCtx, MethodSessionNew, struct{}{})
	if err != nil {
		return fail("session/new", err)
	}
	var sessResp NewSessionResponse
	if err := json.Unmarshal(sessResult, &sessResp); err != nil {
		return fail("session/new", &ProtocolError{Message: "failed to parse session/new response", Cause: err})
	}
	if sessResp.SessionID == "" {
		return fail("session/new", &ProtocolError{Message: "session/new response missing sessionId"})
	}

	a.client = client
	a.session.Store(newSession(client, sessResp.SessionID))
	a.initialized = true
	a.log.Debug("acp handshake complete", "session_id", sessResp.SessionID)

	return nil
}

// routeNotification folds session/update notifications into the session.
func (a *Adapter) routeNotification(method string, params json.RawMessage) {
	if method != MethodSessionUpdate {
		return
	}

	var notif SessionNotification
	if err := json.Unmarshal(params, &notif); err != nil {
		a.log.Warn("skipping malformed session update", "error", err)
		return
	}

	session := a.session.Load()
	if session == nil || session.ID() != notif.SessionID {
		return
	}
	session.handleUpdate(&notif.Update)
}

// Execute runs one prompt turn through the agent, performing the handshake
// first when needed. Every outcome, including subprocess death and
// timeout, is normalized into a ToolResponse; this method never returns an
// error.
func (a *Adapter) Execute(ctx context.Context, prompt string) *ToolResponse {
	if !a.CheckAvailability() {
		return &ToolResponse{
			Error: fmt.Sprintf("acp adapter not available: %s not found", a.config.AgentCommand),
		}
	}

	if err := a.initialize(ctx); err != nil {
		return &ToolResponse{Error: fmt.Sprintf("acp handshake error: %v", err)}
	}

	session := a.session.Load()

	turnCtx, cancel := context.WithTimeout(ctx, a.config.Timeout())
	defer cancel()

	turn, err := session.Prompt(turnCtx, orchestrationPreamble+prompt)
	metadata := map[string]interface{}{
		"adapter":    "acp",
		"agent":      a.config.AgentCommand,
		"session_id": session.ID(),
	}

	if err != nil {
		// Partial output may still be useful to the loop.
		return &ToolResponse{
			Output:   session.Text(),
			Error:    fmt.Sprintf("acp error: %v", err),
			Metadata: metadata,
		}
	}

	metadata["stop_reason"] = turn.StopReason
	metadata["duration_ms"] = turn.DurationMs

	return &ToolResponse{
		Success:  turn.Success,
		Output:   turn.FullText,
		Metadata: metadata,
	}
}

// EstimateCost always returns 0: the protocol carries no billing metadata.
func (a *Adapter) EstimateCost(string) float64 {
	return 0
}

// Stop tears the adapter down: stop the client (bounded), forget the
// session, and release tracked terminals. Safe to call repeatedly.
func (a *Adapter) Stop() {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.session.Store(nil)
	a.initialized = false
	a.mu.Unlock()

	if client != nil {
		client.Stop()
	}
	a.agentPid.Store(0)
	a.handlers.ReleaseAll()
}

// KillSubprocessSync is the signal-safe emergency kill path: it reads only
// a stored pid, signals the process group, waits a short grace period and
// escalates to SIGKILL. It takes no locks and schedules no work, so it can
// run from a signal handler while the ordinary Stop path is unusable.
func (a *Adapter) KillSubprocessSync() {
	pid := int(a.agentPid.Load())
	if pid <= 0 {
		return
	}

	_ = syscall.Kill(-pid, syscall.SIGTERM)

	// Wait4 rather than kill(pid, 0): nothing else reaps the child on this
	// path, and a zombie still answers signal 0.
	for i := 0; i < 30; i++ {
		wpid, err := syscall.Wait4(pid, nil, syscall.WNOHANG, nil)
		if err != nil || wpid == pid {
			return // reaped here, or by someone else
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
