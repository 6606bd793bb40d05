package sessions

import (
	"context"
	"errors"
)

var (
	// ErrSessionNotFound is returned when no live record exists for an id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by CreateSession for a duplicate id.
	ErrSessionExists = errors.New("session already exists")
)

// SessionHost persists session metadata. Implementations must be safe for
// concurrent use.
type SessionHost interface {
	// CreateSession stores a new record. It fails with ErrSessionExists if the
	// id is taken.
	CreateSession(ctx context.Context, meta *SessionMetadata) error
	// GetSession returns a copy of the record and refreshes LastAccess.
	GetSession(ctx context.Context, sessionID string) (*SessionMetadata, error)
	// MutateSession applies fn to the current record atomically with respect
	// to other mutations of the same session. SessionID and CreatedAt cannot
	// be changed by fn.
	MutateSession(ctx context.Context, sessionID string, fn func(*SessionMetadata) error) error
	// DeleteSession removes the record. Deleting an unknown id is not an
	// error.
	DeleteSession(ctx context.Context, sessionID string) error
}
