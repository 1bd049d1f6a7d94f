//go:build windows

package process

import (
	"context"
	osexec "os/exec"
	"strconv"
	"syscall"
)

func shellCommand(ctx context.Context, command, dir string) *osexec.Cmd {
	cmd := osexec.CommandContext(ctx, "cmd", "/C", command)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
	return cmd
}

func signalGroup(pid int, _ syscall.Signal) error {
	return osexec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}

func exitSignalName(*osexec.Cmd) string { return "" }
