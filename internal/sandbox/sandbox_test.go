package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/pylearn/internal/config"
)

func requirePython(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}
	return path
}

func writeSource(t *testing.T, code string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte(code), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLimitedBuffer(t *testing.T) {
	b := newLimitedBuffer(5)
	n, err := b.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	n, _ = b.Write([]byte("defgh"))
	if n != 5 {
		t.Errorf("Write should report full length, got %d", n)
	}
	if b.String() != "abcde" || !b.truncated {
		t.Errorf("buffer = %q truncated=%v", b.String(), b.truncated)
	}

	unlimited := newLimitedBuffer(0)
	unlimited.Write([]byte(strings.Repeat("x", 1000)))
	if len(unlimited.String()) != 1000 || unlimited.truncated {
		t.Error("zero max should not truncate")
	}
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	if !p.IsImageAllowed("python:3.12-slim") {
		t.Error("default image should be allowed")
	}
	if p.IsImageAllowed("ubuntu:latest") {
		t.Error("unlisted image should be rejected")
	}
	if got := cpuSeconds(1500 * time.Millisecond); got != 3 {
		t.Errorf("cpuSeconds(1.5s) = %d, want 3", got)
	}
}

func TestDockerRunArgs(t *testing.T) {
	d := NewDockerSandbox("python:3.12-slim", DefaultPolicy())
	args := strings.Join(d.runArgs("pylearn-x", ExecOpts{Dir: "/tmp/run", File: "main.py", Timeout: 2 * time.Second}), " ")

	for _, want := range []string{
		"--network=none",
		"--memory 256m",
		"--pids-limit 64",
		"--read-only",
		"--user 65534:65534",
		"-v /tmp/run:/workspace:ro",
		"python:3.12-slim python -I -B -c",
		"/workspace/main.py 3 0",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("docker args missing %q:\n%s", want, args)
		}
	}
}

func TestDockerRejectsImage(t *testing.T) {
	d := NewDockerSandbox("evil:latest", DefaultPolicy())
	if _, err := d.Exec(context.Background(), ExecOpts{Dir: t.TempDir(), File: "main.py"}); err == nil {
		t.Error("expected allowlist error")
	}
}

func TestLocalExec(t *testing.T) {
	python := requirePython(t)
	sb := NewLocalSandbox(python, DefaultPolicy())

	dir := writeSource(t, "import sys\nprint('out')\nprint('err', file=sys.stderr)\n")
	res, err := sb.Exec(context.Background(), ExecOpts{Dir: dir, File: "main.py", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.ExitCode != 0 || res.Stdout != "out\n" || res.Stderr != "err\n" {
		t.Errorf("result = %+v", res)
	}
}

func TestLocalExecError(t *testing.T) {
	python := requirePython(t)
	sb := NewLocalSandbox(python, DefaultPolicy())

	dir := writeSource(t, "raise ValueError('boom')\n")
	res, err := sb.Exec(context.Background(), ExecOpts{Dir: dir, File: "main.py", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.ExitCode == 0 {
		t.Error("expected non-zero exit")
	}
	if !strings.Contains(res.Stderr, "ValueError: boom") {
		t.Errorf("stderr = %q", res.Stderr)
	}
	if !strings.Contains(res.Stderr, "main.py") {
		t.Errorf("traceback should name the user file: %q", res.Stderr)
	}
}

func TestLocalExecEnvironmentIsMinimal(t *testing.T) {
	python := requirePython(t)
	t.Setenv("PYLEARN_SECRET", "hunter2")
	sb := NewLocalSandbox(python, DefaultPolicy())

	dir := writeSource(t, "import os\nprint(os.environ.get('PYLEARN_SECRET', 'absent'))\n")
	res, err := sb.Exec(context.Background(), ExecOpts{Dir: dir, File: "main.py", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "absent" {
		t.Errorf("server environment leaked: %q", res.Stdout)
	}
}

func TestLocalExecTimeoutKillsGroup(t *testing.T) {
	python := requirePython(t)
	sb := NewLocalSandbox(python, DefaultPolicy())

	dir := writeSource(t, "while True:\n    pass\n")
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := sb.Exec(ctx, ExecOpts{Dir: dir, File: "main.py", Timeout: 500 * time.Millisecond})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("kill took too long: %s", elapsed)
	}
}

func TestLocalExecTruncatesOutput(t *testing.T) {
	python := requirePython(t)
	p := DefaultPolicy()
	p.MaxOutputBytes = 100
	sb := NewLocalSandbox(python, p)

	dir := writeSource(t, "print('x' * 10000)\n")
	res, err := sb.Exec(context.Background(), ExecOpts{Dir: dir, File: "main.py", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(res.Stdout) != 100 || !res.Truncated {
		t.Errorf("stdout len = %d truncated = %v", len(res.Stdout), res.Truncated)
	}
}

func TestFromConfig(t *testing.T) {
	rc := config.Default().Runner
	rc.MaxMemoryMB = 128
	rc.MaxOutputKB = 4
	rc.RunAsUID = 1000
	rc.RunAsGID = 1000

	local, ok := FromConfig(rc).(*LocalSandbox)
	if !ok {
		t.Fatalf("local backend built %T", FromConfig(rc))
	}
	if local.Policy.MaxMemoryMB != 128 || local.Policy.MaxOutputBytes != 4096 || local.Policy.UID != 1000 {
		t.Errorf("local policy = %+v", local.Policy)
	}

	rc.Backend = "docker"
	rc.DockerImage = "registry.local/python:3.12"
	docker, ok := FromConfig(rc).(*DockerSandbox)
	if !ok {
		t.Fatalf("docker backend built %T", FromConfig(rc))
	}
	if docker.Image != rc.DockerImage || !docker.Policy.IsImageAllowed(rc.DockerImage) {
		t.Errorf("docker sandbox = %+v", docker)
	}
	if docker.Policy.Network {
		t.Error("docker sandbox must not enable networking")
	}
}
