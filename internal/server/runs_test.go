package server

import (
	"context"
	"testing"
)

func TestRunTracker_AddAndCancel(t *testing.T) {
	rt := NewRunTracker()
	defer rt.CloseAll()

	ctx, cancel := context.WithCancel(context.Background())
	if !rt.Add("conn-1", "run-1", cancel) {
		t.Fatal("expected first Add to succeed")
	}
	if rt.Add("conn-1", "run-1", cancel) {
		t.Error("expected duplicate id to be rejected")
	}
	if !rt.Add("conn-2", "run-1", func() {}) {
		t.Error("same id on another owner should be accepted")
	}

	if !rt.Cancel("conn-1", "run-1") {
		t.Fatal("expected Cancel to find the run")
	}
	if ctx.Err() == nil {
		t.Error("expected context to be cancelled")
	}
	if rt.Cancel("conn-1", "run-1") {
		t.Error("expected second Cancel to report unknown run")
	}
	if rt.Len() != 1 {
		t.Errorf("Len = %d, want 1", rt.Len())
	}
}

func TestRunTracker_Done(t *testing.T) {
	rt := NewRunTracker()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Add("http", "run-1", cancel)
	rt.Done("http", "run-1")

	if rt.Len() != 0 {
		t.Errorf("Len = %d, want 0", rt.Len())
	}
	if ctx.Err() != nil {
		t.Error("Done must not cancel the run")
	}
}

func TestRunTracker_CancelOwner(t *testing.T) {
	rt := NewRunTracker()

	var ctxs []context.Context
	for _, id := range []string{"a", "b", "c"} {
		ctx, cancel := context.WithCancel(context.Background())
		ctxs = append(ctxs, ctx)
		rt.Add("conn-1", id, cancel)
	}
	other, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()
	rt.Add("conn-2", "a", otherCancel)

	if n := rt.CancelOwner("conn-1"); n != 3 {
		t.Errorf("CancelOwner = %d, want 3", n)
	}
	for i, ctx := range ctxs {
		if ctx.Err() == nil {
			t.Errorf("run %d not cancelled", i)
		}
	}
	if other.Err() != nil {
		t.Error("other owner's run should survive")
	}
}

func TestRunTracker_CloseAll(t *testing.T) {
	rt := NewRunTracker()

	var ctxs []context.Context
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ctxs = append(ctxs, ctx)
		rt.Add("conn-"+string(rune('a'+i)), "run", cancel)
	}

	rt.CloseAll()

	if rt.Len() != 0 {
		t.Error("expected all runs to be cleared")
	}
	for i, ctx := range ctxs {
		if ctx.Err() == nil {
			t.Errorf("run %d not cancelled", i)
		}
	}
}
