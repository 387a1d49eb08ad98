package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DockerSandbox runs code in Docker containers via the docker CLI.
type DockerSandbox struct {
	Image  string
	Policy Policy
}

// NewDockerSandbox creates a sandbox with the given image and policy.
func NewDockerSandbox(image string, policy Policy) *DockerSandbox {
	return &DockerSandbox{Image: image, Policy: policy}
}

func (d *DockerSandbox) Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	if !d.Policy.IsImageAllowed(d.Image) {
		return nil, fmt.Errorf("image %q not in allowlist", d.Image)
	}

	// The container user is unprivileged and must be able to read the mount.
	if err := os.Chmod(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("preparing work dir: %w", err)
	}
	if err := os.Chmod(filepath.Join(opts.Dir, opts.File), 0o644); err != nil {
		return nil, fmt.Errorf("preparing work dir: %w", err)
	}

	name := "pylearn-" + uuid.NewString()
	args := d.runArgs(name, opts)

	cmd := exec.Command("docker", args...)
	cmd.WaitDelay = time.Second

	stdout := newLimitedBuffer(d.Policy.MaxOutputBytes)
	stderr := newLimitedBuffer(d.Policy.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("running docker: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		// Killing the CLI leaves the container running.
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = exec.CommandContext(rmCtx, "docker", "rm", "-f", name).Run()
		cancel()
		_ = cmd.Process.Kill()
		<-done
		return nil, ctx.Err()
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("running docker: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &ExecResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  exitCode,
		Truncated: stdout.truncated || stderr.truncated,
	}, nil
}

func (d *DockerSandbox) runArgs(name string, opts ExecOpts) []string {
	args := []string{
		"run", "--rm", "-i",
		"--name", name,
		"--read-only",
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=16m",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--user", "65534:65534",
		"-v", opts.Dir + ":/workspace:ro",
		"-w", "/workspace",
	}
	if d.Policy.MaxMemoryMB > 0 {
		mem := fmt.Sprintf("%dm", d.Policy.MaxMemoryMB)
		args = append(args, "--memory", mem, "--memory-swap", mem)
	}
	if d.Policy.PidsLimit > 0 {
		args = append(args, "--pids-limit", fmt.Sprint(d.Policy.PidsLimit))
	}
	if !d.Policy.Network {
		args = append(args, "--network=none")
	}

	args = append(args, d.Image, "python")
	// Memory is capped by the cgroup, so no address space limit inside.
	return append(args, interpreterArgs(path.Join("/workspace", opts.File), opts.Timeout, 0, d.Policy)...)
}
