package acp

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAdapterConfig(t *testing.T) {
	cfg := DefaultAdapterConfig()
	assert.Equal(t, "gemini", cfg.AgentCommand)
	assert.Equal(t, []string{"--experimental-acp"}, cfg.AgentArgs)
	assert.Equal(t, 300, cfg.TimeoutSeconds)
	assert.Equal(t, PermissionAutoApprove, cfg.PermissionMode)
	assert.Equal(t, 300*time.Second, cfg.Timeout())
}

func TestWithDefaults_FillsUnsetFields(t *testing.T) {
	cfg := AdapterConfig{}.withDefaults()
	assert.Equal(t, "gemini", cfg.AgentCommand)
	assert.Equal(t, []string{"--experimental-acp"}, cfg.AgentArgs)
	assert.Equal(t, 300, cfg.TimeoutSeconds)
	assert.Equal(t, PermissionAutoApprove, cfg.PermissionMode)
}

func TestWithDefaults_CustomCommandKeepsArgsEmpty(t *testing.T) {
	cfg := AdapterConfig{AgentCommand: "my-agent"}.withDefaults()
	assert.Equal(t, "my-agent", cfg.AgentCommand)
	assert.Empty(t, cfg.AgentArgs, "default args belong to the default command only")
}

func TestWithDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := AdapterConfig{
		AgentCommand:   "claude-code",
		AgentArgs:      []string{"--acp"},
		TimeoutSeconds: 60,
		PermissionMode: PermissionDenyAll,
	}.withDefaults()
	assert.Equal(t, "claude-code", cfg.AgentCommand)
	assert.Equal(t, []string{"--acp"}, cfg.AgentArgs)
	assert.Equal(t, 60, cfg.TimeoutSeconds)
	assert.Equal(t, PermissionDenyAll, cfg.PermissionMode)
}

func TestLoadAdapterConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent_command: my-agent
agent_args: ["--acp", "--verbose"]
permission_mode: allowlist
permission_allowlist:
  - "fs/*"
  - /^terminal//
timeout: 120
`), 0o644))

	cfg, err := LoadAdapterConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "my-agent", cfg.AgentCommand)
	assert.Equal(t, []string{"--acp", "--verbose"}, cfg.AgentArgs)
	assert.Equal(t, PermissionAllowlist, cfg.PermissionMode)
	assert.Equal(t, []string{"fs/*", "/^terminal//"}, cfg.PermissionAllowlist)
	assert.Equal(t, 120, cfg.TimeoutSeconds)
}

func TestLoadAdapterConfig_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("permission_mode: deny_all\n"), 0o644))

	cfg, err := LoadAdapterConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.AgentCommand)
	assert.Equal(t, PermissionDenyAll, cfg.PermissionMode)
	assert.Equal(t, 300, cfg.TimeoutSeconds)
}

func TestLoadAdapterConfig_MissingFile(t *testing.T) {
	_, err := LoadAdapterConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoadAdapterConfig_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent_command: [unclosed\n"), 0o644))

	_, err := LoadAdapterConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}
