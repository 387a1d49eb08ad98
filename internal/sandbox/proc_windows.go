//go:build windows

package sandbox

import (
	"os/exec"
	"syscall"
)

// configureProcess starts the child in a new process group. Credentials
// are not supported on Windows.
func configureProcess(cmd *exec.Cmd, _ Policy) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

func killProcess(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func prepareDir(string, Policy) error { return nil }
