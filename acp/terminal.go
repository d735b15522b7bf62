package acp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/terrylica/ralph-orchestrator/internal/procattr"
)

// terminal is one tracked agent-spawned process: an OS process handle and
// an append-only combined output buffer. Exit status is pending until done
// closes.
type terminal struct {
	cmd    *exec.Cmd
	done   chan struct{}
	output lockedBuffer
}

// lockedBuffer is a thread-safe bytes.Buffer.
type lockedBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTerminalID() string {
	return "term_" + ulid.Make().String()
}

// handleTerminalCreate serves terminal/create: spawn the argv with combined
// stdout/stderr capture and return a newly generated opaque id. A spawn
// failure returns an immediate error, never a usable id.
func (h *Handlers) handleTerminalCreate(params json.RawMessage) (interface{}, error) {
	var p CreateTerminalParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errInvalidParams("invalid terminal/create params: %v", err)
	}
	if len(p.Command) == 0 || string(p.Command) == "null" {
		return nil, errMissingParam("command")
	}

	var argv []string
	if err := json.Unmarshal(p.Command, &argv); err != nil {
		return nil, errInvalidParams("command must be a list")
	}
	if len(argv) == 0 {
		return nil, errInvalidParams("command list cannot be empty")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if p.Cwd != "" {
		cmd.Dir = p.Cwd
	}
	procattr.Set(cmd)

	t := &terminal{cmd: cmd, done: make(chan struct{})}
	cmd.Stdout = &t.output
	cmd.Stderr = &t.output

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &HandlerError{Code: ErrCodeResourceNotFound, Message: "Command not found: " + argv[0]}
		}
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	go func() {
		cmd.Wait()
		close(t.done)
	}()

	id := newTerminalID()
	h.termMu.Lock()
	h.terminals[id] = t
	h.termMu.Unlock()

	return CreateTerminalResult{TerminalID: id}, nil
}

func (h *Handlers) lookupTerminal(params json.RawMessage) (string, *terminal, error) {
	var p TerminalIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", nil, errInvalidParams("invalid terminal params: %v", err)
	}
	if p.TerminalID == "" {
		return "", nil, errMissingParam("terminalId")
	}

	h.termMu.Lock()
	t, ok := h.terminals[p.TerminalID]
	h.termMu.Unlock()
	if !ok {
		return "", nil, errTerminalNotFound(p.TerminalID)
	}
	return p.TerminalID, t, nil
}

// handleTerminalOutput serves terminal/output: captured output so far plus
// a done flag.
func (h *Handlers) handleTerminalOutput(params json.RawMessage) (interface{}, error) {
	_, t, err := h.lookupTerminal(params)
	if err != nil {
		return nil, err
	}

	result := TerminalOutputResult{Output: t.output.String()}
	select {
	case <-t.done:
		result.Done = true
	default:
	}
	return result, nil
}

// handleTerminalWaitExit serves terminal/wait_for_exit, bounded by the
// optional timeout. On timeout the process is left running and a distinct
// timeout error is returned.
func (h *Handlers) handleTerminalWaitExit(params json.RawMessage) (interface{}, error) {
	var p WaitForExitParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errInvalidParams("invalid terminal/wait_for_exit params: %v", err)
	}
	if p.TerminalID == "" {
		return nil, errMissingParam("terminalId")
	}

	h.termMu.Lock()
	t, ok := h.terminals[p.TerminalID]
	h.termMu.Unlock()
	if !ok {
		return nil, errTerminalNotFound(p.TerminalID)
	}

	if p.Timeout != nil {
		timeout := time.Duration(*p.Timeout * float64(time.Second))
		select {
		case <-t.done:
		case <-time.After(timeout):
			return nil, &HandlerError{
				Code:    ErrCodeOperationTimeout,
				Message: fmt.Sprintf("wait_for_exit timed out after %gs", *p.Timeout),
			}
		}
	} else {
		<-t.done
	}

	return WaitForExitResult{ExitCode: t.cmd.ProcessState.ExitCode()}, nil
}

// handleTerminalKill serves terminal/kill: best-effort terminate. Killing
// an already-exited process is a no-op success.
func (h *Handlers) handleTerminalKill(params json.RawMessage) (interface{}, error) {
	_, t, err := h.lookupTerminal(params)
	if err != nil {
		return nil, err
	}

	select {
	case <-t.done:
	default:
		if t.cmd.Process != nil {
			_ = procattr.KillGroup(t.cmd.Process)
		}
	}
	return SuccessResult{Success: true}, nil
}

// handleTerminalRelease serves terminal/release: stop tracking the id and
// reclaim resources. Subsequent operations on the id report not found.
func (h *Handlers) handleTerminalRelease(params json.RawMessage) (interface{}, error) {
	id, t, err := h.lookupTerminal(params)
	if err != nil {
		return nil, err
	}

	select {
	case <-t.done:
	default:
		if t.cmd.Process != nil {
			_ = procattr.KillGroup(t.cmd.Process)
		}
	}

	h.termMu.Lock()
	delete(h.terminals, id)
	h.termMu.Unlock()

	return SuccessResult{Success: true}, nil
}

// ReleaseAll kills and forgets every tracked terminal. The adapter calls
// this on shutdown.
func (h *Handlers) ReleaseAll() {
	h.termMu.Lock()
	terminals := h.terminals
	h.terminals = make(map[string]*terminal)
	h.termMu.Unlock()

	for _, t := range terminals {
		select {
		case <-t.done:
		default:
			if t.cmd.Process != nil {
				_ = procattr.KillGroup(t.cmd.Process)
			}
		}
	}
}
