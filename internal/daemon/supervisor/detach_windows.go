//go:build windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// Detach keeps the child out of the parent's console and ctrl-c group.
func Detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminate stops the process. Windows has no graceful signal for a
// windowless child, so this is a hard kill.
func terminate(p *os.Process) error {
	return p.Kill()
}
