package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/michaelbrown/pylearn/internal/storage"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// tick makes the store clock advance one second per call.
func tick(s *SQLiteStore) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestSaveAndListFeedback(t *testing.T) {
	s := testStore(t)
	tick(s)
	ctx := context.Background()

	first := &storage.FeedbackRecord{
		ExerciseID: "variables_001",
		Code:       "print(1)",
		Feedback: storage.Feedback{
			Correctness: storage.Correct,
			Mistakes:    []storage.Mistake{{Description: "none", Suggestion: "none"}},
		},
	}
	second := &storage.FeedbackRecord{
		ExerciseID: "variables_001",
		Code:       "print(2)",
		Feedback:   storage.Feedback{Correctness: storage.Incorrect},
	}
	other := &storage.FeedbackRecord{ExerciseID: "loops_001", Code: "pass"}

	for _, r := range []*storage.FeedbackRecord{first, second, other} {
		if err := s.SaveFeedback(ctx, r); err != nil {
			t.Fatalf("SaveFeedback: %v", err)
		}
		if r.ID == 0 || r.Timestamp.IsZero() {
			t.Errorf("record not populated: %+v", r)
		}
	}

	got, err := s.ListFeedback(ctx, "variables_001")
	if err != nil {
		t.Fatalf("ListFeedback: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("order = [%d %d], want newest first", got[0].ID, got[1].ID)
	}
	if got[1].Feedback.Mistakes[0].Description != "none" {
		t.Errorf("feedback did not round trip: %+v", got[1].Feedback)
	}
	if !got[1].Timestamp.Equal(first.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got[1].Timestamp, first.Timestamp)
	}
}

func TestListFeedbackEmpty(t *testing.T) {
	s := testStore(t)
	got, err := s.ListFeedback(context.Background(), "nothing")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty slice", got)
	}
}

func TestGetFeedback(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := &storage.FeedbackRecord{ExerciseID: "variables_001", Code: "x = 1"}
	if err := s.SaveFeedback(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetFeedback(ctx, "variables_001", r.ID)
	if err != nil {
		t.Fatalf("GetFeedback: %v", err)
	}
	if got.Code != "x = 1" {
		t.Errorf("code = %q", got.Code)
	}

	if _, err := s.GetFeedback(ctx, "variables_001", r.ID+1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing id err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetFeedback(ctx, "loops_001", r.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("wrong exercise err = %v, want ErrNotFound", err)
	}
}

func TestTrackTokens(t *testing.T) {
	s := testStore(t)
	tick(s)
	ctx := context.Background()

	rows := []*storage.TokenUsageRecord{
		{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120, Model: "gpt-4", Endpoint: "mark_exercise"},
		{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Model: "gpt-3.5-turbo"},
	}
	for _, r := range rows {
		if err := s.TrackTokens(ctx, r); err != nil {
			t.Fatalf("TrackTokens: %v", err)
		}
	}

	totals, err := s.TokenTotals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := storage.TokenTotals{PromptTokens: 110, CompletionTokens: 25, TotalTokens: 135, Requests: 2}
	if totals != want {
		t.Errorf("totals = %+v, want %+v", totals, want)
	}

	usage, err := s.TokenUsage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 2 {
		t.Fatalf("got %d usage rows", len(usage))
	}
	if usage[0].Model != "gpt-3.5-turbo" || usage[0].Endpoint != "" {
		t.Errorf("newest row = %+v", usage[0])
	}
	if usage[1].Endpoint != "mark_exercise" {
		t.Errorf("endpoint = %q", usage[1].Endpoint)
	}

	sum := 0
	for _, u := range usage {
		sum += u.TotalTokens
	}
	if sum != totals.TotalTokens {
		t.Errorf("counter %d != sum of rows %d", totals.TotalTokens, sum)
	}
}

func TestTokenTotalsEmpty(t *testing.T) {
	s := testStore(t)
	totals, err := s.TokenTotals(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if totals != (storage.TokenTotals{}) {
		t.Errorf("totals = %+v", totals)
	}
}

func TestOpenFileReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pylearn.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.TrackTokens(ctx, &storage.TokenUsageRecord{TotalTokens: 9, Model: "gpt-4"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	totals, err := s.TokenTotals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if totals.TotalTokens != 9 || totals.Requests != 1 {
		t.Errorf("totals after reopen = %+v", totals)
	}
}
