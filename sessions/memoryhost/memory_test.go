package memoryhost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/mcp-dispatch/sessions"
	"github.com/ggoodman/mcp-dispatch/sessions/sessionhosttest"
)

func TestMemorySessionHost(t *testing.T) {
	sessionhosttest.RunSessionHostTests(t, func(t *testing.T) sessions.SessionHost {
		return New()
	})
}

func TestSlidingTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h := New(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	meta := &sessions.SessionMetadata{SessionID: "s1", TTL: time.Minute}
	if err := h.CreateSession(ctx, meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Reads inside the window keep the session alive.
	for range 3 {
		now = now.Add(45 * time.Second)
		if _, err := h.GetSession(ctx, "s1"); err != nil {
			t.Fatalf("GetSession: %v", err)
		}
	}

	now = now.Add(2 * time.Minute)
	if _, err := h.GetSession(ctx, "s1"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
