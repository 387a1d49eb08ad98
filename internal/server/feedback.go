package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/pylearn/internal/feedback"
	"github.com/michaelbrown/pylearn/internal/storage"
)

// --- Feedback handlers ---

func (s *Server) handleMarkExercise(w http.ResponseWriter, r *http.Request) {
	var sub feedback.Submission
	if err := decodeJSON(r, &sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if sub.ExerciseID == "" {
		writeError(w, http.StatusBadRequest, "exercise_id is required")
		return
	}

	rec, err := s.feedback.Mark(r.Context(), sub)
	if err != nil {
		s.logger.Error().Err(err).Str("exercise_id", sub.ExerciseID).Msg("marking exercise")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":          rec.ID,
		"exercise_id": rec.ExerciseID,
		"feedback":    rec.Feedback,
		"timestamp":   rec.Timestamp,
	})
}

func (s *Server) handleFeedbackHistory(w http.ResponseWriter, r *http.Request) {
	exerciseID := chi.URLParam(r, "exercise_id")
	history, err := s.feedback.History(r.Context(), exerciseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if history == nil {
		history = []storage.FeedbackRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exercise_id":      exerciseID,
		"feedback_history": history,
	})
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	exerciseID := chi.URLParam(r, "exercise_id")
	id, err := strconv.ParseInt(chi.URLParam(r, "feedback_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "feedback id must be an integer")
		return
	}

	rec, err := s.feedback.Get(r.Context(), exerciseID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Feedback with ID "+strconv.FormatInt(id, 10)+" not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Token handlers ---

type trackTokensRequest struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Endpoint         string `json:"endpoint"`
}

func (s *Server) handleTrackTokens(w http.ResponseWriter, r *http.Request) {
	var req trackTokensRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}
	if req.PromptTokens < 0 || req.CompletionTokens < 0 || req.TotalTokens < 0 {
		writeError(w, http.StatusBadRequest, "token counts must not be negative")
		return
	}

	rec := &storage.TokenUsageRecord{
		PromptTokens:     req.PromptTokens,
		CompletionTokens: req.CompletionTokens,
		TotalTokens:      req.TotalTokens,
		Model:            req.Model,
		Endpoint:         req.Endpoint,
	}
	if err := s.tokens.TrackTokens(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      rec.ID,
		"message": "Token usage recorded successfully",
	})
}

func (s *Server) handleTokenUsage(w http.ResponseWriter, r *http.Request) {
	totals, usage, err := s.tokenState(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_tokens":      totals.TotalTokens,
		"prompt_tokens":     totals.PromptTokens,
		"completion_tokens": totals.CompletionTokens,
		"requests":          totals.Requests,
		"usage_history":     usage,
	})
}

func (s *Server) handleTokenSummary(w http.ResponseWriter, r *http.Request) {
	totals, usage, err := s.tokenState(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, storage.Summarize(totals.TotalTokens, usage))
}

func (s *Server) tokenState(r *http.Request) (storage.TokenTotals, []storage.TokenUsageRecord, error) {
	totals, err := s.tokens.TokenTotals(r.Context())
	if err != nil {
		return totals, nil, err
	}
	usage, err := s.tokens.TokenUsage(r.Context())
	if err != nil {
		return totals, nil, err
	}
	if usage == nil {
		usage = []storage.TokenUsageRecord{}
	}
	return totals, usage, nil
}
