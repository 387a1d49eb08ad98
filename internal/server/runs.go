package server

import (
	"context"
	"sync"
)

type runKey struct {
	owner string // connection or "http"
	id    string
}

// RunTracker tracks in-flight executions so they can be cancelled by id,
// by owning connection or all at once on shutdown.
type RunTracker struct {
	mu   sync.Mutex
	runs map[runKey]context.CancelFunc
}

// NewRunTracker creates a new RunTracker.
func NewRunTracker() *RunTracker {
	return &RunTracker{
		runs: make(map[runKey]context.CancelFunc),
	}
}

// Add registers a run. It reports false when the owner already has a run
// with that id.
func (rt *RunTracker) Add(owner, id string, cancel context.CancelFunc) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	k := runKey{owner, id}
	if _, ok := rt.runs[k]; ok {
		return false
	}
	rt.runs[k] = cancel
	return true
}

// Done forgets a finished run without cancelling it.
func (rt *RunTracker) Done(owner, id string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.runs, runKey{owner, id})
}

// Cancel stops one run. It reports whether the run was known.
func (rt *RunTracker) Cancel(owner, id string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	k := runKey{owner, id}
	cancel, ok := rt.runs[k]
	if ok {
		cancel()
		delete(rt.runs, k)
	}
	return ok
}

// CancelOwner stops every run of one owner and returns how many there were.
func (rt *RunTracker) CancelOwner(owner string) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := 0
	for k, cancel := range rt.runs {
		if k.owner == owner {
			cancel()
			delete(rt.runs, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked runs.
func (rt *RunTracker) Len() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.runs)
}

// CloseAll cancels all tracked runs.
func (rt *RunTracker) CloseAll() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for k, cancel := range rt.runs {
		cancel()
		delete(rt.runs, k)
	}
}
