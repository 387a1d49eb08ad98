// Package feedback grades submissions with a language model and keeps the
// resulting history and token accounting.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/pylearn/internal/llm"
	"github.com/michaelbrown/pylearn/internal/logging"
	"github.com/michaelbrown/pylearn/internal/metrics"
	"github.com/michaelbrown/pylearn/internal/storage"
)

// Endpoint is the label recorded with the token usage of a grading call.
const Endpoint = "mark_exercise"

const supportHint = "Please try again or contact support if the issue persists."

var errNoClient = errors.New("no language model configured")

// Options configure a Service.
type Options struct {
	Temperature float64
	// RetryDelay is the first backoff between attempts. Zero means one second.
	RetryDelay time.Duration
	Logger     *zerolog.Logger
}

// Service evaluates submissions and persists the outcome.
type Service struct {
	client      llm.Client
	feedback    storage.FeedbackStore
	tokens      storage.TokenStore
	temperature float64
	breaker     circuitbreaker.CircuitBreaker[*llm.Response]
	retrier     retry.Retry[*llm.Response]
	logger      *zerolog.Logger
}

// NewService wires a grader. client may be nil, in which case every
// submission degrades to an ERROR verdict.
func NewService(client llm.Client, fb storage.FeedbackStore, tokens storage.TokenStore, opts Options) *Service {
	s := &Service{
		client:      client,
		feedback:    fb,
		tokens:      tokens,
		temperature: opts.Temperature,
		logger:      opts.Logger,
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	s.breaker = circuitbreaker.New[*llm.Response](circuitbreaker.Config{
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			s.logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("llm circuit breaker state change")
			if strings.EqualFold(to.String(), "open") {
				metrics.CircuitState.Set(1)
			} else {
				metrics.CircuitState.Set(0)
			}
		},
	})
	s.retrier = retry.New[*llm.Response](retry.Config{
		MaxAttempts:   3,
		InitialDelay:  delay,
		MaxDelay:      30 * delay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   llm.IsRetryable,
	})
	return s
}

// Mark grades a submission and stores the verdict. Model failures never
// surface as errors; they become an ERROR verdict that is stored like any
// other. The returned error is a persistence failure.
func (s *Service) Mark(ctx context.Context, sub Submission) (*storage.FeedbackRecord, error) {
	fb, err := s.evaluate(ctx, sub)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Str("exercise_id", sub.ExerciseID).Msg("evaluation failed")
		fb = degraded(err)
	} else {
		metrics.LLMRequestsTotal.WithLabelValues("ok").Inc()
	}

	rec := &storage.FeedbackRecord{
		ExerciseID: sub.ExerciseID,
		Code:       sub.Code,
		Feedback:   fb,
	}
	if err := s.feedback.SaveFeedback(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving feedback: %w", err)
	}
	return rec, nil
}

// History returns every stored verdict for an exercise, newest first.
func (s *Service) History(ctx context.Context, exerciseID string) ([]storage.FeedbackRecord, error) {
	return s.feedback.ListFeedback(ctx, exerciseID)
}

// Get returns one stored verdict or storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, exerciseID string, id int64) (*storage.FeedbackRecord, error) {
	return s.feedback.GetFeedback(ctx, exerciseID, id)
}

func (s *Service) evaluate(ctx context.Context, sub Submission) (storage.Feedback, error) {
	if s.client == nil {
		return storage.Feedback{}, errNoClient
	}

	messages := []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(userPrompt(sub)),
	}
	opts := llm.Options{Temperature: s.temperature, JSON: true}
	call := func(ctx context.Context) (*llm.Response, error) {
		return s.client.ChatCompletion(ctx, messages, opts)
	}

	resp, err := s.breaker.Execute(ctx, func(ctx context.Context) (*llm.Response, error) {
		return s.retrier.Do(ctx, call)
	})
	if err != nil {
		return storage.Feedback{}, err
	}

	s.track(ctx, resp.Usage)
	return parse(resp.Message.Content)
}

// track records usage of a completed call. Failures are logged only.
func (s *Service) track(ctx context.Context, u llm.Usage) {
	model := s.client.Model()
	metrics.LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(u.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(u.CompletionTokens))

	if s.tokens == nil {
		return
	}
	err := s.tokens.TrackTokens(ctx, &storage.TokenUsageRecord{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		Model:            model,
		Endpoint:         Endpoint,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("recording token usage")
	}
}

func parse(content string) (storage.Feedback, error) {
	var fb storage.Feedback
	if err := json.Unmarshal([]byte(content), &fb); err != nil {
		return storage.Feedback{}, fmt.Errorf("parsing model response: %w", err)
	}
	return normalize(fb), nil
}

func normalize(fb storage.Feedback) storage.Feedback {
	if fb.AlternativeSolutions == nil {
		fb.AlternativeSolutions = []string{}
	}
	if fb.Mistakes == nil {
		fb.Mistakes = []storage.Mistake{}
	}
	return fb
}

func degraded(err error) storage.Feedback {
	return normalize(storage.Feedback{
		Correctness:      storage.Error,
		OverallFeedback:  "An error occurred during evaluation: " + err.Error(),
		DetailedFeedback: supportHint,
	})
}
