package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// LocalSandbox runs the interpreter as a child process in its own process
// group with a minimal environment and lowered resource limits.
type LocalSandbox struct {
	Python string
	Policy Policy
}

// NewLocalSandbox creates a sandbox using the given interpreter.
func NewLocalSandbox(python string, policy Policy) *LocalSandbox {
	if python == "" {
		python = "python3"
	}
	return &LocalSandbox{Python: python, Policy: policy}
}

func (l *LocalSandbox) Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	if err := prepareDir(opts.Dir, l.Policy); err != nil {
		return nil, fmt.Errorf("preparing work dir: %w", err)
	}

	file := filepath.Join(opts.Dir, opts.File)
	memBytes := int64(l.Policy.MaxMemoryMB) << 20
	cmd := exec.Command(l.Python, interpreterArgs(file, opts.Timeout, memBytes, l.Policy)...)
	cmd.Dir = opts.Dir
	cmd.Env = minimalEnv(opts.Dir)
	cmd.WaitDelay = time.Second
	configureProcess(cmd, l.Policy)

	stdout := newLimitedBuffer(l.Policy.MaxOutputBytes)
	stderr := newLimitedBuffer(l.Policy.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", l.Python, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		killProcess(cmd)
		<-done
		return nil, ctx.Err()
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("running %s: %w", l.Python, err)
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

// minimalEnv gives the child nothing from the server's environment.
func minimalEnv(home string) []string {
	return []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + home,
		"LANG=C.UTF-8",
		"LC_ALL=C.UTF-8",
	}
}
