package acp

import "log/slog"

// ClientConfig holds protocol client configuration.
type ClientConfig struct {
	StderrHandler func([]byte)
	Logger        *slog.Logger
	Env           map[string]string
	Command       string
	Args          []string
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		Command: "gemini",
		Args:    []string{"--experimental-acp"},
	}
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*ClientConfig)

// WithCommand sets the agent command to spawn.
func WithCommand(command string, args ...string) ClientOption {
	return func(c *ClientConfig) {
		c.Command = command
		c.Args = args
	}
}

// WithEnv sets additional environment variables for the agent subprocess.
func WithEnv(env map[string]string) ClientOption {
	return func(c *ClientConfig) { c.Env = env }
}

// WithStderrHandler sets a handler for agent stderr output.
func WithStderrHandler(h func([]byte)) ClientOption {
	return func(c *ClientConfig) { c.StderrHandler = h }
}

// WithLogger sets the client logger. The default discards everything.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *ClientConfig) { c.Logger = log }
}
