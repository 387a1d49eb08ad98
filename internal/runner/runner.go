// Package runner executes Python snippets in a sandbox and reports their
// output, including a notebook-style display of a trailing expression.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/michaelbrown/pylearn/internal/metrics"
	"github.com/michaelbrown/pylearn/internal/sandbox"
	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultTimeout applies when a request names none.
const DefaultTimeout = 5 * time.Second

// Request is one execution request.
type Request struct {
	Code    string
	Timeout time.Duration
}

// Result is reported for every run. Failures are values, never errors.
type Result struct {
	Status          string `json:"status"`
	Output          string `json:"output,omitempty"`
	Error           string `json:"error,omitempty"`
	JupyterDisplay  bool   `json:"jupyter_display,omitempty"`
	Expression      string `json:"expression,omitempty"`
	ExpressionValue string `json:"expression_value,omitempty"`
	Truncated       bool   `json:"truncated,omitempty"`

	// RawOutput is the untrimmed stdout of the user's code. It differs from
	// Output only when a value is displayed.
	RawOutput string        `json:"-"`
	TimedOut  bool          `json:"-"`
	Duration  time.Duration `json:"-"`
}

// MarshalJSON always emits output on success and error on failure.
func (r Result) MarshalJSON() ([]byte, error) {
	m := map[string]any{"status": r.Status}
	if r.Status == StatusSuccess {
		m["output"] = r.Output
	} else {
		m["error"] = r.Error
	}
	if r.JupyterDisplay {
		m["jupyter_display"] = true
		m["expression"] = r.Expression
		m["expression_value"] = r.ExpressionValue
	}
	if r.Truncated {
		m["truncated"] = true
	}
	return json.Marshal(m)
}

func errorResult(msg string) Result {
	return Result{Status: StatusError, Error: msg}
}

// Options configures a Runner.
type Options struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	TempDir        string // parent for per-run directories; "" uses os.TempDir
	Logger         *zerolog.Logger
}

// Runner executes code through a sandbox. It is safe for concurrent use;
// every run gets its own directory and process.
type Runner struct {
	sandbox sandbox.Sandbox
	opts    Options
	logger  *zerolog.Logger
}

func New(sb sandbox.Sandbox, opts Options) *Runner {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.MaxTimeout < opts.DefaultTimeout {
		opts.MaxTimeout = opts.DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Runner{sandbox: sb, opts: opts, logger: logger}
}

// Timeout resolves the effective timeout for a requested value.
func (r *Runner) Timeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return r.opts.DefaultTimeout
	}
	if requested > r.opts.MaxTimeout {
		return r.opts.MaxTimeout
	}
	return requested
}

// Run executes one request. The run directory is removed before Run returns.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	res := r.run(ctx, req)
	res.Duration = time.Since(start)

	status := res.Status
	if res.TimedOut {
		status = "timeout"
	}
	metrics.ExecutionsTotal.WithLabelValues(status).Inc()
	metrics.ExecutionDuration.Observe(float64(res.Duration.Milliseconds()))
	return res
}

func (r *Runner) run(ctx context.Context, req Request) Result {
	runID := uuid.NewString()
	log := r.logger.With().Str("run_id", runID).Logger()
	log.Debug().Str("state", "created").Int("bytes", len(req.Code)).Msg("run")

	if strings.TrimSpace(req.Code) == "" {
		log.Debug().Str("state", "reported").Msg("run")
		return Result{Status: StatusSuccess}
	}

	timeout := r.Timeout(req.Timeout)

	prepared := Instrument(req.Code)
	if prepared.Display() {
		log.Debug().Str("state", "instrumented").Str("expression", prepared.Expression).Msg("run")
	}

	dir, err := os.MkdirTemp(r.opts.TempDir, "pylearn-run-*")
	if err != nil {
		log.Error().Err(err).Str("state", "faulted").Msg("run")
		return errorResult(err.Error())
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("removing run directory")
		}
		log.Debug().Str("state", "cleaned_up").Msg("run")
	}()

	file := "snippet_" + runID[:8] + ".py"
	if err := os.WriteFile(filepath.Join(dir, file), []byte(prepared.Source), 0o600); err != nil {
		log.Error().Err(err).Str("state", "faulted").Msg("run")
		return errorResult(err.Error())
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debug().Str("state", "spawned").Dur("timeout", timeout).Msg("run")
	out, err := r.sandbox.Exec(runCtx, sandbox.ExecOpts{Dir: dir, File: file, Timeout: timeout})

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		log.Debug().Str("state", "timed_out").Msg("run")
		res := errorResult(fmt.Sprintf("Code execution timed out after %s seconds", formatSeconds(timeout)))
		res.TimedOut = true
		return res
	case err != nil && errors.Is(err, context.Canceled):
		log.Debug().Str("state", "cancelled").Msg("run")
		return errorResult("Code execution cancelled")
	case err != nil:
		log.Warn().Err(err).Str("state", "faulted").Msg("run")
		return errorResult(err.Error())
	}

	log.Debug().Str("state", "completed").Int("exit_code", out.ExitCode).Msg("run")

	if out.ExitCode != 0 {
		res := errorResult(out.Stderr)
		res.Truncated = out.Truncated
		return res
	}

	res := Result{Status: StatusSuccess, Output: out.Stdout, RawOutput: out.Stdout, Truncated: out.Truncated}
	if prepared.Display() {
		if output, value, ok := splitOutput(out.Stdout, prepared.Marker); ok {
			res.Output = output
			res.RawOutput = rawOutput(out.Stdout, prepared.Marker)
			res.JupyterDisplay = true
			res.Expression = prepared.Expression
			res.ExpressionValue = value
		}
	}
	return res
}

// formatSeconds renders whole seconds without a fraction.
func formatSeconds(d time.Duration) string {
	s := d.Seconds()
	if s == float64(int64(s)) {
		return strconv.FormatInt(int64(s), 10)
	}
	return strconv.FormatFloat(s, 'f', -1, 64)
}
