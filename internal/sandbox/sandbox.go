package sandbox

import (
	"context"
	"time"
)

// ExecOpts describes one interpreter invocation. The caller owns Dir and
// removes it afterwards.
type ExecOpts struct {
	Dir     string // host directory holding the source file
	File    string // file name inside Dir
	Stdin   string
	Timeout time.Duration
}

// ExecResult is the output of a sandboxed execution.
type ExecResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
}

// Sandbox runs a Python file in an isolated environment. When ctx ends
// before the process exits, the process is killed and ctx.Err() returned.
type Sandbox interface {
	Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error)
}

// limitedBuffer keeps at most max bytes and silently drops the rest.
type limitedBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.max <= 0 {
		b.buf = append(b.buf, p...)
		return len(p), nil
	}
	room := b.max - len(b.buf)
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string { return string(b.buf) }
