package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", false)

	logger.Debug().Msg("hidden")
	logger.Info().Str("topic", "lists").Msg("resolved")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, `"topic":"lists"`) {
		t.Errorf("expected structured field in output, got %s", out)
	}
}
