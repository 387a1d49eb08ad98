package runner

import (
	"strings"

	"github.com/google/uuid"
)

// resultVar holds the trailing expression's value in instrumented code.
const resultVar = "_pylearn_display_value"

// Instrumented is code prepared for execution.
type Instrumented struct {
	Source     string
	Expression string // "" when no display applies
	Marker     string
}

// Display reports whether the source prints a trailing expression value.
func (in Instrumented) Display() bool { return in.Expression != "" }

// Instrument rewrites a trailing bare expression into an assignment and
// appends code that prints a per-run marker followed by repr(value). The
// expression is evaluated exactly once. Code without such an expression is
// returned unchanged.
func Instrument(code string) Instrumented {
	expr, idx, ok := lastExpression(code)
	if !ok {
		return Instrumented{Source: code}
	}

	marker := newMarker()
	lines := strings.Split(code, "\n")
	lines = append(lines[:idx],
		resultVar+" = "+expr,
		`print("\n`+marker+`")`,
		"print(repr("+resultVar+"))",
		"",
	)
	return Instrumented{
		Source:     strings.Join(lines, "\n"),
		Expression: expr,
		Marker:     marker,
	}
}

func newMarker() string {
	return "__PYLEARN_EXPRESSION_" + strings.ReplaceAll(uuid.NewString(), "-", "") + "__"
}

// splitOutput separates regular output from the displayed value.
func splitOutput(stdout, marker string) (output, value string, ok bool) {
	before, after, found := strings.Cut(stdout, marker)
	if !found {
		return stdout, "", false
	}
	return strings.TrimSpace(before), strings.TrimSpace(after), true
}

// rawOutput returns stdout exactly as the user's code wrote it, without
// the display block and the newline printed ahead of the marker.
func rawOutput(stdout, marker string) string {
	before, _, found := strings.Cut(stdout, marker)
	if !found {
		return stdout
	}
	return strings.TrimSuffix(before, "\n")
}
