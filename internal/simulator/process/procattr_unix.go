//go:build !windows

package process

import (
	"context"
	osexec "os/exec"
	"syscall"
)

// shellCommand wraps a command line in a login shell so the simulated
// datasource sees the same PATH and environment a developer terminal has.
func shellCommand(ctx context.Context, command, dir string) *osexec.Cmd {
	cmd := osexec.CommandContext(ctx, "sh", "-lc", command)
	cmd.Dir = dir
	// Own process group so group signals never reach the server.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

func exitSignalName(state *osexec.Cmd) string {
	if state.ProcessState == nil {
		return ""
	}
	ws, ok := state.ProcessState.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return ws.Signal().String()
}
