package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/terrylica/ralph-orchestrator/internal/procattr"
)

// processManager owns the agent subprocess and its stdio pipes. All writes
// to stdin serialize behind one lock so concurrent senders never interleave
// partial lines; reads happen from exactly one goroutine (the client's
// reader worker).
type processManager struct {
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	cmd      *exec.Cmd
	reader   *bufio.Reader
	encoder  *json.Encoder
	config   ClientConfig
	mu       sync.Mutex
	started  bool
	stopping bool
}

func newProcessManager(config ClientConfig) *processManager {
	return &processManager{config: config}
}

// Start spawns the agent process with piped stdin/stdout/stderr.
func (pm *processManager) Start(ctx context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.started {
		return ErrAlreadyStarted
	}

	pm.cmd = exec.CommandContext(ctx, pm.config.Command, pm.config.Args...)

	// Process group for orphan prevention; lets Stop signal the whole tree.
	procattr.Set(pm.cmd)

	if len(pm.config.Env) > 0 {
		pm.cmd.Env = os.Environ()
		for k, v := range pm.config.Env {
			pm.cmd.Env = append(pm.cmd.Env, k+"="+v)
		}
	}

	var err error
	pm.stdin, err = pm.cmd.StdinPipe()
	if err != nil {
		return &ProcessError{Message: "failed to get stdin pipe", Cause: err}
	}

	pm.stdout, err = pm.cmd.StdoutPipe()
	if err != nil {
		return &ProcessError{Message: "failed to get stdout pipe", Cause: err}
	}

	pm.stderr, err = pm.cmd.StderrPipe()
	if err != nil {
		return &ProcessError{Message: "failed to get stderr pipe", Cause: err}
	}

	if err := pm.cmd.Start(); err != nil {
		return &ProcessError{Message: "failed to start agent process", Cause: err}
	}

	pm.reader = bufio.NewReader(pm.stdout)
	pm.encoder = json.NewEncoder(pm.stdin)

	pm.started = true
	return nil
}

// Pid returns the subprocess pid, or 0 before Start.
func (pm *processManager) Pid() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.cmd == nil || pm.cmd.Process == nil {
		return 0
	}
	return pm.cmd.Process.Pid
}

// ReadLine reads a single newline-delimited line from stdout, with the
// trailing newline trimmed.
func (pm *processManager) ReadLine() ([]byte, error) {
	pm.mu.Lock()
	reader := pm.reader
	pm.mu.Unlock()

	if reader == nil {
		return nil, io.EOF
	}

	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}

	return line, nil
}

// WriteJSON writes one JSON message to stdin as a single line.
func (pm *processManager) WriteJSON(v interface{}) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.encoder == nil {
		return ErrNotStarted
	}
	if pm.stopping {
		return ErrClientStopped
	}

	return pm.encoder.Encode(v)
}

// Stop terminates the subprocess with bounded grace periods: close stdin,
// wait; SIGINT the process group, wait; SIGKILL the group, wait. Every wait
// is bounded so shutdown can never hang. Re-entrant calls are no-ops.
func (pm *processManager) Stop() error {
	pm.mu.Lock()
	if !pm.started || pm.stopping {
		pm.mu.Unlock()
		return nil
	}
	pm.stopping = true
	pm.mu.Unlock()

	if pm.stdin != nil {
		pm.stdin.Close()
	}

	done := make(chan error, 1)
	go func() {
		done <- pm.cmd.Wait()
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		if pm.cmd.Process != nil {
			_ = procattr.SignalGroup(pm.cmd.Process, syscall.SIGINT)
		}

		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
			if pm.cmd.Process != nil {
				_ = procattr.KillGroup(pm.cmd.Process)
			}
			select {
			case <-done:
			case <-time.After(200 * time.Millisecond):
			}
		}
	}

	return nil
}

// startStderrReader drains stderr into the given handler.
func (pm *processManager) startStderrReader(handler func([]byte)) {
	if pm.stderr == nil || handler == nil {
		return
	}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := pm.stderr.Read(buf)
			if n > 0 {
				handler(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
}
