//go:build linux

// Package procattr configures agent and terminal subprocesses so they can
// be cleaned up as a group and never outlive the orchestrator.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set puts the child in its own process group and arranges for SIGTERM on
// parent death, so an OOM-killed or SIGKILLed orchestrator does not leave
// agent processes behind.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
