package memoryhost

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ggoodman/mcp-dispatch/sessions"
)

var _ sessions.SessionHost = (*Host)(nil)

// Host is an in-memory implementation of sessions.SessionHost.
type Host struct {
	mu       sync.Mutex
	sessions map[string]*sessions.SessionMetadata
	now      func() time.Time
}

// Option configures a Host.
type Option func(*Host)

// WithClock overrides the time source used for TTL bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

func New(opts ...Option) *Host {
	h := &Host{
		sessions: make(map[string]*sessions.SessionMetadata),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) CreateSession(ctx context.Context, meta *sessions.SessionMetadata) error {
	if meta == nil || meta.SessionID == "" {
		return fmt.Errorf("memoryhost: session id is required")
	}
	now := h.now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[meta.SessionID]; ok && !cur.Expired(now) {
		return sessions.ErrSessionExists
	}
	stored := clone(meta)
	if stored.MetaVersion == 0 {
		stored.MetaVersion = 1
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.LastAccess = now
	h.sessions[meta.SessionID] = stored
	return nil
}

func (h *Host) GetSession(ctx context.Context, sessionID string) (*sessions.SessionMetadata, error) {
	now := h.now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	cur, err := h.liveLocked(sessionID, now)
	if err != nil {
		return nil, err
	}
	cur.LastAccess = now
	return clone(cur), nil
}

func (h *Host) MutateSession(ctx context.Context, sessionID string, fn func(*sessions.SessionMetadata) error) error {
	now := h.now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	cur, err := h.liveLocked(sessionID, now)
	if err != nil {
		return err
	}
	next := clone(cur)
	if err := fn(next); err != nil {
		return err
	}
	next.SessionID = cur.SessionID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = now
	next.LastAccess = now
	h.sessions[sessionID] = next
	return nil
}

func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	return nil
}

func (h *Host) liveLocked(sessionID string, now time.Time) (*sessions.SessionMetadata, error) {
	cur, ok := h.sessions[sessionID]
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	if cur.Expired(now) {
		delete(h.sessions, sessionID)
		return nil, sessions.ErrSessionNotFound
	}
	return cur, nil
}

func clone(m *sessions.SessionMetadata) *sessions.SessionMetadata {
	c := *m
	c.Capabilities = slices.Clone(m.Capabilities)
	return &c
}
