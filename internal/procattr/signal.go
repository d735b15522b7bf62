package procattr

import (
	"os"
	"syscall"
)

// SignalGroup delivers a signal to the whole process group of p. The
// negative pid makes the kernel target every process in the group, not
// just the direct child.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	return syscall.Kill(-p.Pid, sig)
}

// KillGroup sends SIGKILL to the whole process group of p.
func KillGroup(p *os.Process) error {
	return SignalGroup(p, syscall.SIGKILL)
}
