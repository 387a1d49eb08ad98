package storage

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Correctness verdicts produced by the evaluator.
const (
	Correct   = "CORRECT"
	Incorrect = "INCORRECT"
	Error     = "ERROR"
)

// Mistake is a single problem the evaluator found in a submission.
type Mistake struct {
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// Feedback is the structured evaluation of one submission.
type Feedback struct {
	Correctness          string    `json:"correctness"`
	OverallFeedback      string    `json:"overall_feedback"`
	DetailedFeedback     string    `json:"detailed_feedback"`
	AlternativeSolutions []string  `json:"alternative_solutions"`
	Mistakes             []Mistake `json:"mistakes"`
}

// FeedbackRecord is a persisted evaluation.
type FeedbackRecord struct {
	ID         int64     `json:"id"`
	ExerciseID string    `json:"exercise_id"`
	Code       string    `json:"code"`
	Feedback   Feedback  `json:"feedback"`
	Timestamp  time.Time `json:"timestamp"`
}

// TokenUsageRecord is one LLM call's token accounting.
type TokenUsageRecord struct {
	ID               int64     `json:"id"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Model            string    `json:"model"`
	Endpoint         string    `json:"endpoint,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// TokenTotals are the running counters kept alongside the usage log.
type TokenTotals struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	Requests         int `json:"requests"`
}

// FeedbackStore persists evaluations.
type FeedbackStore interface {
	// SaveFeedback inserts r and sets its ID and Timestamp.
	SaveFeedback(ctx context.Context, r *FeedbackRecord) error

	// ListFeedback returns the history for an exercise, newest first.
	ListFeedback(ctx context.Context, exerciseID string) ([]FeedbackRecord, error)

	// GetFeedback returns one record of an exercise or ErrNotFound.
	GetFeedback(ctx context.Context, exerciseID string, id int64) (*FeedbackRecord, error)
}

// TokenStore persists token usage.
type TokenStore interface {
	// TrackTokens inserts r and bumps the totals atomically.
	TrackTokens(ctx context.Context, r *TokenUsageRecord) error

	// TokenUsage returns every usage row, newest first.
	TokenUsage(ctx context.Context) ([]TokenUsageRecord, error)

	TokenTotals(ctx context.Context) (TokenTotals, error)
}

// Store is the full persistence surface.
type Store interface {
	FeedbackStore
	TokenStore
	Close() error
}

// TokenSummary is the aggregated view of the usage log.
type TokenSummary struct {
	TotalTokens      int            `json:"total_tokens"`
	ModelBreakdown   map[string]int `json:"model_breakdown"`
	EstimatedCostUSD float64        `json:"estimated_cost_usd"`
}

// Approximate USD price per 1K tokens, matched by substring of the model name.
var pricePer1K = []struct {
	match string
	usd   float64
}{
	{"gpt-4", 0.03},
	{"gpt-3.5", 0.002},
}

// Summarize groups usage by model and estimates cost. Models without a
// known price count towards the totals but cost nothing.
func Summarize(total int, records []TokenUsageRecord) TokenSummary {
	sum := TokenSummary{TotalTokens: total, ModelBreakdown: map[string]int{}}
	for _, r := range records {
		model := r.Model
		if model == "" {
			model = "unknown"
		}
		sum.ModelBreakdown[model] += r.TotalTokens
	}

	var cost float64
	for model, tokens := range sum.ModelBreakdown {
		for _, p := range pricePer1K {
			if strings.Contains(model, p.match) {
				cost += float64(tokens) / 1000 * p.usd
				break
			}
		}
	}
	sum.EstimatedCostUSD = math.Round(cost*10000) / 10000
	return sum
}
