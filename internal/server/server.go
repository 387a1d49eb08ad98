package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/pylearn/internal/config"
	"github.com/michaelbrown/pylearn/internal/exercise"
	"github.com/michaelbrown/pylearn/internal/feedback"
	"github.com/michaelbrown/pylearn/internal/limiter"
	"github.com/michaelbrown/pylearn/internal/logging"
	"github.com/michaelbrown/pylearn/internal/metrics"
	"github.com/michaelbrown/pylearn/internal/notes"
	"github.com/michaelbrown/pylearn/internal/runner"
	"github.com/michaelbrown/pylearn/internal/storage"
)

const serviceName = "pylearn"

// Deps are the components the API serves.
type Deps struct {
	Resolver *exercise.Resolver
	Notes    *notes.Store
	Pool     *runner.Pool
	Feedback *feedback.Service
	Tokens   storage.TokenStore
	Limiter  *limiter.RateLimiter // nil disables rate limiting
	Logger   *zerolog.Logger
}

// Server is the HTTP server for the learning platform API.
type Server struct {
	cfg      *config.Config
	resolver *exercise.Resolver
	notes    *notes.Store
	pool     *runner.Pool
	feedback *feedback.Service
	tokens   storage.TokenStore
	limiter  *limiter.RateLimiter
	logger   *zerolog.Logger
	runs     *RunTracker
	router   chi.Router
	http     *http.Server
}

// New creates a new Server.
func New(cfg *config.Config, d Deps) *Server {
	s := &Server{
		cfg:      cfg,
		resolver: d.Resolver,
		notes:    d.Notes,
		pool:     d.Pool,
		feedback: d.Feedback,
		tokens:   d.Tokens,
		limiter:  d.Limiter,
		logger:   d.Logger,
		runs:     NewRunTracker(),
		router:   chi.NewRouter(),
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors(s.cfg.Server.CORSOrigins))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		r.Get("/health", s.handleHealth)

		// Content
		r.Get("/chapters", s.handleListChapters)
		r.Get("/chapters/{chapter_id}", s.handleGetChapter)
		r.Get("/exercises/topics/{topic_id}", s.handleTopicExercises)
		r.Get("/exercises/topic/direct/{topic_id}", s.handleTopicExercises)
		r.Get("/exercises/chapter/{chapter_id}", s.handleChapterExercises)
		r.Get("/exercises/exercise/{exercise_id}", s.handleGetExercise)
		r.Get("/exercises/raw/*", s.handleRawExercises)
		r.Get("/notes/{notebook}", s.handleNotes)

		// Execution
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}
			r.Post("/execute_code", s.handleExecute)
		})
		// WebSocket; limited per message
		r.Get("/execute_code/ws", s.handleExecuteWS)

		// Feedback
		r.Post("/mark_exercise", s.handleMarkExercise)
		r.Get("/feedback/{exercise_id}", s.handleFeedbackHistory)
		r.Get("/feedback/{exercise_id}/{feedback_id}", s.handleGetFeedback)

		// Token accounting
		r.Post("/track_tokens", s.handleTrackTokens)
		r.Get("/token_usage", s.handleTokenUsage)
		r.Get("/token_usage/summary", s.handleTokenSummary)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msgf("pylearn server starting on http://localhost%s", addr)
	return s.http.ListenAndServe()
}

// Shutdown cancels in-flight runs and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Int("active_runs", s.runs.Len()).Msg("shutting down server")
	s.runs.CloseAll()

	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
