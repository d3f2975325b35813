//go:build !windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// Detach puts the child in its own session so it survives the parent losing
// its terminal and is not delivered the parent's terminal signals.
func Detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}

// terminate asks the process to exit gracefully.
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
