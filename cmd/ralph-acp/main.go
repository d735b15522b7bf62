// Command ralph-acp runs a single prompt through an ACP agent. It is a
// thin driver over the acp adapter, mainly useful for smoke-testing an
// agent binary and a permission configuration outside the full
// orchestration loop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/terrylica/ralph-orchestrator/acp"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		agent      string
		agentArgs  []string
		timeout    int
		mode       string
		allowlist  []string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:          "ralph-acp [flags] <prompt>",
		Short:        "Run one prompt through an ACP-compliant agent",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := acp.DefaultAdapterConfig()
			if configPath != "" {
				loaded, err := acp.LoadAdapterConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("agent") {
				cfg.AgentCommand = agent
				cfg.AgentArgs = agentArgs
			} else if cmd.Flags().Changed("agent-arg") {
				cfg.AgentArgs = agentArgs
			}
			if cmd.Flags().Changed("timeout") {
				cfg.TimeoutSeconds = timeout
			}
			if cmd.Flags().Changed("permission-mode") {
				cfg.PermissionMode = acp.PermissionMode(mode)
			}
			if cmd.Flags().Changed("allow") {
				cfg.PermissionAllowlist = allowlist
			}

			log := slog.New(slog.NewTextHandler(os.Stderr, nil))
			if !verbose {
				log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			}

			adapter, err := acp.NewAdapter(cfg, acp.WithAdapterLogger(log))
			if err != nil {
				return err
			}
			defer adapter.Stop()

			if !adapter.CheckAvailability() {
				return fmt.Errorf("agent command %q not found on PATH", cfg.AgentCommand)
			}

			// The full Stop path cannot run inside a signal handler;
			// use the pid-only kill path instead.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				adapter.KillSubprocessSync()
				os.Exit(130)
			}()

			resp := adapter.Execute(context.Background(), strings.Join(args, " "))
			fmt.Println(resp.Output)

			if !resp.Success {
				if resp.Error != "" {
					fmt.Fprintln(os.Stderr, resp.Error)
				}
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML adapter config")
	cmd.Flags().StringVar(&agent, "agent", "gemini", "agent command to spawn")
	cmd.Flags().StringSliceVar(&agentArgs, "agent-arg", []string{"--experimental-acp"}, "argument passed to the agent command (repeatable)")
	cmd.Flags().IntVar(&timeout, "timeout", 300, "request timeout in seconds")
	cmd.Flags().StringVar(&mode, "permission-mode", "auto_approve", "auto_approve, deny_all, allowlist, or interactive")
	cmd.Flags().StringSliceVar(&allowlist, "allow", nil, "allowlist pattern for allowlist mode (repeatable)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log protocol activity to stderr")

	return cmd
}
