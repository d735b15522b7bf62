package acp

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AdapterConfig configures the session adapter.
type AdapterConfig struct {
	AgentCommand        string         `yaml:"agent_command"`
	PermissionMode      PermissionMode `yaml:"permission_mode"`
	AgentArgs           []string       `yaml:"agent_args"`
	PermissionAllowlist []string       `yaml:"permission_allowlist"`
	TimeoutSeconds      int            `yaml:"timeout"`
}

// DefaultAdapterConfig returns the configuration used when fields are left
// unset: the Gemini CLI in ACP mode, a 300 second request timeout, and
// auto-approved permissions.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		AgentCommand:   "gemini",
		AgentArgs:      []string{"--experimental-acp"},
		TimeoutSeconds: 300,
		PermissionMode: PermissionAutoApprove,
	}
}

// Timeout returns the per-request timeout as a duration.
func (c AdapterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// withDefaults fills unset fields from DefaultAdapterConfig.
func (c AdapterConfig) withDefaults() AdapterConfig {
	def := DefaultAdapterConfig()
	if c.AgentCommand == "" {
		c.AgentCommand = def.AgentCommand
		if c.AgentArgs == nil {
			c.AgentArgs = def.AgentArgs
		}
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = def.TimeoutSeconds
	}
	if c.PermissionMode == "" {
		c.PermissionMode = def.PermissionMode
	}
	return c
}

// LoadAdapterConfig reads an AdapterConfig from a YAML file, filling unset
// fields with defaults.
func LoadAdapterConfig(path string) (AdapterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AdapterConfig{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg AdapterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AdapterConfig{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg.withDefaults(), nil
}
