package feedback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/michaelbrown/pylearn/internal/llm"
	"github.com/michaelbrown/pylearn/internal/storage"
	"github.com/michaelbrown/pylearn/internal/storage/sqlite"
)

type fakeClient struct {
	calls   int
	content string
	err     error
	seen    []llm.Message
	opts    llm.Options
}

func (f *fakeClient) Model() string { return "gpt-4" }

func (f *fakeClient) ChatCompletion(_ context.Context, msgs []llm.Message, opts llm.Options) (*llm.Response, error) {
	f.calls++
	f.seen = msgs
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{
		Message: llm.AssistantMessage(f.content),
		Model:   "gpt-4-0613",
		Usage:   llm.Usage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140},
	}, nil
}

func testStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const verdict = `{
  "correctness": "CORRECT",
  "overall_feedback": "Well done.",
  "detailed_feedback": "Clear and idiomatic.",
  "alternative_solutions": ["print(sum([1, 1]))"],
  "mistakes": []
}`

func TestMarkPersistsAndTracks(t *testing.T) {
	store := testStore(t)
	client := &fakeClient{content: verdict}
	svc := NewService(client, store, store, Options{Temperature: 0.2})
	ctx := context.Background()

	rec, err := svc.Mark(ctx, Submission{
		ExerciseID:     "variables_001",
		Code:           "print(1 + 1)",
		Question:       "Print two",
		ExpectedOutput: "2",
		Metadata:       map[string]any{"difficulty": "beginner"},
	})
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if rec.ID == 0 || rec.Feedback.Correctness != storage.Correct {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Feedback.AlternativeSolutions) != 1 {
		t.Errorf("alternatives = %v", rec.Feedback.AlternativeSolutions)
	}

	if client.opts.Temperature != 0.2 || !client.opts.JSON {
		t.Errorf("options = %+v", client.opts)
	}
	if client.seen[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %s", client.seen[0].Role)
	}
	prompt := client.seen[1].Content
	for _, want := range []string{
		"Exercise ID: variables_001",
		"Question/Prompt: Print two",
		"Expected Output: 2",
		`Additional Information: {"difficulty":"beginner"}`,
		"```python\nprint(1 + 1)\n```",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	history, err := svc.History(ctx, "variables_001")
	if err != nil || len(history) != 1 || history[0].ID != rec.ID {
		t.Errorf("history = %+v, err = %v", history, err)
	}

	usage, err := store.TokenUsage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 1 || usage[0].Endpoint != Endpoint || usage[0].Model != "gpt-4" || usage[0].TotalTokens != 140 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestUserPromptOmitsEmptyFields(t *testing.T) {
	p := userPrompt(Submission{ExerciseID: "x", Code: "pass"})
	for _, absent := range []string{"Question/Prompt", "Expected Output", "Additional Information"} {
		if strings.Contains(p, absent) {
			t.Errorf("prompt should not contain %q:\n%s", absent, p)
		}
	}
}

func TestMarkDegradesOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Client
		want   string
	}{
		{"transport", &fakeClient{err: errors.New("connection refused")}, "connection refused"},
		{"unparsable", &fakeClient{content: "not json"}, "parsing model response"},
		{"no client", nil, "no language model configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testStore(t)
			svc := NewService(tt.client, store, store, Options{})
			ctx := context.Background()

			rec, err := svc.Mark(ctx, Submission{ExerciseID: "loops_001", Code: "for"})
			if err != nil {
				t.Fatalf("Mark: %v", err)
			}
			fb := rec.Feedback
			if fb.Correctness != storage.Error {
				t.Errorf("correctness = %q", fb.Correctness)
			}
			if !strings.HasPrefix(fb.OverallFeedback, "An error occurred during evaluation: ") ||
				!strings.Contains(fb.OverallFeedback, tt.want) {
				t.Errorf("overall_feedback = %q", fb.OverallFeedback)
			}
			if fb.DetailedFeedback != supportHint {
				t.Errorf("detailed_feedback = %q", fb.DetailedFeedback)
			}
			if fb.AlternativeSolutions == nil || fb.Mistakes == nil {
				t.Error("degraded lists should be empty, not nil")
			}

			stored, err := svc.Get(ctx, "loops_001", rec.ID)
			if err != nil {
				t.Fatalf("degraded feedback not persisted: %v", err)
			}
			if stored.Feedback.Correctness != storage.Error {
				t.Errorf("stored = %+v", stored.Feedback)
			}

			totals, _ := store.TokenTotals(ctx)
			if totals.Requests != 0 {
				t.Errorf("failed call should not record usage: %+v", totals)
			}
		})
	}
}

func TestMarkRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error": {"message": "overloaded"}}`))
			return
		}
		w.Write([]byte(`{"id": "c", "object": "chat.completion", "created": 1, "model": "gpt-4",
			"choices": [{"index": 0, "finish_reason": "stop",
			  "message": {"role": "assistant", "content": "{\"correctness\": \"INCORRECT\"}"}}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}}`))
	}))
	defer srv.Close()

	store := testStore(t)
	client := llm.NewClient(srv.URL+"/v1/", "sk-test", "gpt-4")
	svc := NewService(client, store, store, Options{RetryDelay: time.Millisecond})

	rec, err := svc.Mark(context.Background(), Submission{ExerciseID: "x", Code: "pass"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Feedback.Correctness != storage.Incorrect {
		t.Errorf("feedback = %+v", rec.Feedback)
	}
	if hits.Load() != 2 {
		t.Errorf("server hit %d times, want 2", hits.Load())
	}
}

func TestMarkDoesNotRetryClientErrors(t *testing.T) {
	client := &fakeClient{err: errors.New("bad request")}
	store := testStore(t)
	svc := NewService(client, store, store, Options{RetryDelay: time.Millisecond})

	svc.Mark(context.Background(), Submission{ExerciseID: "x", Code: "pass"})
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1", client.calls)
	}
}

func TestGetMissing(t *testing.T) {
	store := testStore(t)
	svc := NewService(nil, store, store, Options{})
	if _, err := svc.Get(context.Background(), "x", 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
