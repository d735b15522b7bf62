package acp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrylica/ralph-orchestrator/internal/procattr"
)

// fakeAgentScript answers the handshake (ids 1 and 2 on a fresh client) and
// one prompt turn, dumping the prompt request to a file for inspection.
func fakeAgentScript(promptDump string) string {
	return fmt.Sprintf(`read line
printf '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-01"}}\n'
read line
printf '{"jsonrpc":"2.0","id":2,"result":{"sessionId":"sess-test"}}\n'
read line
printf '%%s\n' "$line" > %s
printf '{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"sess-test","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"all done"}}}}\n'
printf '{"jsonrpc":"2.0","id":3,"result":{"stopReason":"end_turn"}}\n'
sleep 5`, promptDump)
}

func newScriptedAdapter(t *testing.T, script string) *Adapter {
	t.Helper()
	a, err := NewAdapter(AdapterConfig{
		AgentCommand:   "sh",
		AgentArgs:      []string{"-c", script},
		TimeoutSeconds: 10,
	})
	require.NoError(t, err)
	t.Cleanup(a.Stop)
	return a
}

func TestNewAdapter_InvalidPermissionMode(t *testing.T) {
	_, err := NewAdapter(AdapterConfig{PermissionMode: "whatever"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid permission mode")
}

func TestAdapter_CheckAvailability(t *testing.T) {
	a, err := NewAdapter(AdapterConfig{AgentCommand: "sh"})
	require.NoError(t, err)
	assert.True(t, a.CheckAvailability())

	a, err = NewAdapter(AdapterConfig{AgentCommand: "definitely-not-a-real-binary-xyz"})
	require.NoError(t, err)
	assert.False(t, a.CheckAvailability())
}

func TestAdapter_ExecuteUnavailableCommand(t *testing.T) {
	a, err := NewAdapter(AdapterConfig{AgentCommand: "definitely-not-a-real-binary-xyz"})
	require.NoError(t, err)

	resp := a.Execute(context.Background(), "do things")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "not available")
	assert.Contains(t, resp.Error, "definitely-not-a-real-binary-xyz")
}

func TestAdapter_ExecuteHappyPath(t *testing.T) {
	promptDump := filepath.Join(t.TempDir(), "prompt.json")
	a := newScriptedAdapter(t, fakeAgentScript(promptDump))

	resp := a.Execute(context.Background(), "write the report")

	require.Empty(t, resp.Error)
	assert.True(t, resp.Success)
	assert.Equal(t, "all done", resp.Output)
	assert.Equal(t, "acp", resp.Metadata["adapter"])
	assert.Equal(t, "sh", resp.Metadata["agent"])
	assert.Equal(t, "sess-test", resp.Metadata["session_id"])
	assert.Equal(t, "end_turn", resp.Metadata["stop_reason"])

	dumped, err := os.ReadFile(promptDump)
	require.NoError(t, err)
	assert.Contains(t, string(dumped), "ORCHESTRATION CONTEXT")
	assert.Contains(t, string(dumped), "write the report")
	assert.Contains(t, string(dumped), `"sessionId":"sess-test"`)
}

// A chatty agent may emit session/update notifications before answering a
// handshake request. Dispatching them must not block the reader worker, or
// the answer behind them in the pipe is never seen.
func TestAdapter_NotificationBeforeHandshakeResponse(t *testing.T) {
	promptDump := filepath.Join(t.TempDir(), "prompt.json")
	script := fmt.Sprintf(`read line
printf '{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"sess-test","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"early"}}}}\n'
printf '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-01"}}\n'
read line
printf '{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"sess-test","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"early"}}}}\n'
printf '{"jsonrpc":"2.0","id":2,"result":{"sessionId":"sess-test"}}\n'
read line
printf '%%s\n' "$line" > %s
printf '{"jsonrpc":"2.0","id":3,"result":{"stopReason":"end_turn"}}\n'
sleep 5`, promptDump)
	a := newScriptedAdapter(t, script)

	start := time.Now()
	resp := a.Execute(context.Background(), "go")
	require.Empty(t, resp.Error)
	assert.True(t, resp.Success)
	assert.Less(t, time.Since(start), 5*time.Second, "handshake must not stall behind the notifications")
}

func TestAdapter_HandshakeMissingProtocolVersion(t *testing.T) {
	script := `read line
printf '{"jsonrpc":"2.0","id":1,"result":{}}\n'
sleep 5`
	a := newScriptedAdapter(t, script)

	resp := a.Execute(context.Background(), "hi")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "acp handshake error")
	assert.Contains(t, resp.Error, "initialize")

	a.mu.Lock()
	assert.False(t, a.initialized)
	assert.Nil(t, a.client)
	a.mu.Unlock()
}

func TestAdapter_HandshakeMissingSessionID(t *testing.T) {
	script := `read line
printf '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-01"}}\n'
read line
printf '{"jsonrpc":"2.0","id":2,"result":{}}\n'
sleep 5`
	a := newScriptedAdapter(t, script)

	resp := a.Execute(context.Background(), "hi")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "session/new")
}

func TestAdapter_ExecuteAgentDiesMidTurn(t *testing.T) {
	script := `read line
printf '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-01"}}\n'
read line
printf '{"jsonrpc":"2.0","id":2,"result":{"sessionId":"sess-test"}}\n'
read line`
	a := newScriptedAdapter(t, script)

	resp := a.Execute(context.Background(), "hi")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "acp error")
	assert.Equal(t, "sess-test", resp.Metadata["session_id"])
}

func TestAdapter_EstimateCost(t *testing.T) {
	a, err := NewAdapter(AdapterConfig{})
	require.NoError(t, err)
	assert.Zero(t, a.EstimateCost("any prompt"))
}

func TestAdapter_StopIdempotent(t *testing.T) {
	promptDump := filepath.Join(t.TempDir(), "prompt.json")
	a := newScriptedAdapter(t, fakeAgentScript(promptDump))

	resp := a.Execute(context.Background(), "hello")
	require.True(t, resp.Success)

	a.Stop()
	a.Stop()

	assert.Zero(t, a.agentPid.Load())
}

func TestAdapter_KillSubprocessSyncWithoutProcess(t *testing.T) {
	a, err := NewAdapter(AdapterConfig{})
	require.NoError(t, err)
	assert.NotPanics(t, a.KillSubprocessSync)
}

func TestAdapter_KillSubprocessSyncReapsChild(t *testing.T) {
	a, err := NewAdapter(AdapterConfig{})
	require.NoError(t, err)

	cmd := exec.Command("sleep", "60")
	procattr.Set(cmd)
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	a.agentPid.Store(int64(pid))

	start := time.Now()
	a.KillSubprocessSync()

	assert.Less(t, time.Since(start), 2*time.Second, "a SIGTERM-able child must not burn the full grace window")
	assert.Error(t, syscall.Kill(pid, 0), "child should be reaped, not left a zombie")
}

func TestAdapter_HandlersExposed(t *testing.T) {
	a, err := NewAdapter(AdapterConfig{PermissionMode: PermissionDenyAll})
	require.NoError(t, err)
	require.NotNil(t, a.Handlers())
	assert.Equal(t, PermissionDenyAll, a.Handlers().Mode())
}
