//go:build windows

package taskrunner

import (
	"context"
	"os/exec"
)

// shellCommand builds the platform shell invocation for a command line.
func shellCommand(ctx context.Context, command string) *exec.Cmd {
	return exec.CommandContext(ctx, "cmd", "/C", command)
}
