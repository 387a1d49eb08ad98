package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbrown/pylearn/internal/runner"
)

const httpOwner = "http"

type executeRequest struct {
	Code    string   `json:"code"`
	Timeout *float64 `json:"timeout,omitempty"` // seconds
}

func (req executeRequest) runnerRequest() runner.Request {
	rr := runner.Request{Code: req.Code}
	if req.Timeout != nil && *req.Timeout > 0 {
		rr.Timeout = time.Duration(*req.Timeout * float64(time.Second))
	}
	return rr
}

// handleExecute runs code and answers 200 whatever the program did.
// Only a full pool or a malformed body change the status.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	runID := uuid.NewString()
	s.runs.Add(httpOwner, runID, cancel)
	defer s.runs.Done(httpOwner, runID)

	res, err := s.pool.Run(ctx, req.runnerRequest())
	switch {
	case errors.Is(err, runner.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "all runners are busy, try again shortly")
		return
	case errors.Is(err, runner.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	// A cancelled context still carries a result value.
	writeJSON(w, http.StatusOK, res)
}
