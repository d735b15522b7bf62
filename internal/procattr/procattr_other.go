//go:build !linux

// Package procattr configures agent and terminal subprocesses so they can
// be cleaned up as a group and never outlive the orchestrator.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set puts the child in its own process group. Pdeathsig is Linux-only;
// elsewhere the group id alone enables kill -<signal> -<pgid> cleanup.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
