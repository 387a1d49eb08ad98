package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/pylearn/internal/exercise"
	"github.com/michaelbrown/pylearn/internal/notes"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

// --- Content handlers ---

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.Chapters())
}

func (s *Server) handleGetChapter(w http.ResponseWriter, r *http.Request) {
	ch, err := s.resolver.Chapter(chi.URLParam(r, "chapter_id"))
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleTopicExercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.ForTopic(chi.URLParam(r, "topic_id")))
}

func (s *Server) handleChapterExercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.ForChapter(chi.URLParam(r, "chapter_id")))
}

func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	ex, err := s.resolver.ByID(chi.URLParam(r, "exercise_id"))
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *Server) handleRawExercises(w http.ResponseWriter, r *http.Request) {
	exs, err := s.resolver.ByRawPath(chi.URLParam(r, "*"))
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exs)
}

func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exercise.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, exercise.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("resolving exercises")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	md, err := s.notes.Markdown(chi.URLParam(r, "notebook"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"markdown": md})
	case errors.Is(err, notes.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, notes.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error().Err(err).Msg("rendering notebook")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
