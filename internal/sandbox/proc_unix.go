//go:build unix

package sandbox

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// configureProcess puts the child in its own process group so the whole
// tree can be killed, and drops to the policy's credentials when set.
func configureProcess(cmd *exec.Cmd, p Policy) {
	attr := &syscall.SysProcAttr{Setpgid: true}
	if p.UID > 0 {
		attr.Credential = &syscall.Credential{Uid: uint32(p.UID), Gid: uint32(p.GID)}
	}
	cmd.SysProcAttr = attr
}

// killProcess sends SIGKILL to the child's process group.
func killProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

// prepareDir hands the work dir to the unprivileged user.
func prepareDir(dir string, p Policy) error {
	if p.UID <= 0 {
		return nil
	}
	if err := os.Chown(dir, p.UID, p.GID); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Chown(filepath.Join(dir, e.Name()), p.UID, p.GID); err != nil {
			return err
		}
	}
	return nil
}
