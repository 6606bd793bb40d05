// Package sessionhosttest is a conformance suite shared by every
// sessions.SessionHost implementation.
package sessionhosttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-dispatch/sessions"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// HostFactory creates a new SessionHost instance for testing.
type HostFactory func(t *testing.T) sessions.SessionHost

// RunSessionHostTests runs the complete SessionHost test suite against the provided factory.
func RunSessionHostTests(t *testing.T, factory HostFactory) {
	t.Run("Metadata_CreateAndGet", func(t *testing.T) { testCreateAndGet(t, factory) })
	t.Run("Metadata_CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, factory) })
	t.Run("Metadata_GetUnknown", func(t *testing.T) { testGetUnknown(t, factory) })
	t.Run("Metadata_Mutate", func(t *testing.T) { testMutate(t, factory) })
	t.Run("Metadata_MutateErrorLeavesRecord", func(t *testing.T) { testMutateError(t, factory) })
	t.Run("Metadata_MutateUnknown", func(t *testing.T) { testMutateUnknown(t, factory) })
	t.Run("Metadata_ConcurrentMutate", func(t *testing.T) { testConcurrentMutate(t, factory) })
	t.Run("Metadata_Delete", func(t *testing.T) { testDelete(t, factory) })
	t.Run("Metadata_TTLExpiry", func(t *testing.T) { testTTLExpiry(t, factory) })
}

func newMeta() *sessions.SessionMetadata {
	return &sessions.SessionMetadata{
		SessionID: uuid.NewString(),
		State:     sessions.StatePending,
		Transport: "test",
		TTL:       time.Minute,
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testCreateAndGet(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := testCtx(t)

	meta := newMeta()
	require.NoError(t, h.CreateSession(ctx, meta))

	got, err := h.GetSession(ctx, meta.SessionID)
	require.NoError(t, err)
	assert.Equal(t, meta.SessionID, got.SessionID)
	assert.Equal(t, sessions.StatePending, got.State)
	assert.Equal(t, "test", got.Transport)
	assert.Equal(t, 1, got.MetaVersion)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.LastAccess.IsZero())
	assert.Equal(t, time.Minute, got.TTL)
}

func testCreateDuplicate(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := testCtx(t)

	meta := newMeta()
	require.NoError(t, h.CreateSession(ctx, meta))
	assert.ErrorIs(t, h.CreateSession(ctx, meta), sessions.ErrSessionExists)
}

func testGetUnknown(t *testing.T, factory HostFactory) {
	h := factory(t)
	_, err := h.GetSession(testCtx(t), uuid.NewString())
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func testMutate(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := testCtx(t)

	meta := newMeta()
	require.NoError(t, h.CreateSession(ctx, meta))

	err := h.MutateSession(ctx, meta.SessionID, func(m *sessions.SessionMetadata) error {
		m.State = sessions.StateReady
		m.ProtocolVersion = "1"
		m.Capabilities = []string{"tools", "cancellation"}
		m.Client = sessions.ClientInfo{Name: "cli", Version: "1.0"}
		m.SessionID = "hijacked"
		return nil
	})
	require.NoError(t, err)

	got, err := h.GetSession(ctx, meta.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StateReady, got.State)
	assert.Equal(t, "1", got.ProtocolVersion)
	assert.Equal(t, []string{"tools", "cancellation"}, got.Capabilities)
	assert.Equal(t, "cli", got.Client.Name)
	assert.Equal(t, meta.SessionID, got.SessionID)

	_, err = h.GetSession(ctx, "hijacked")
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func testMutateError(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := testCtx(t)

	meta := newMeta()
	require.NoError(t, h.CreateSession(ctx, meta))

	boom := errors.New("boom")
	err := h.MutateSession(ctx, meta.SessionID, func(m *sessions.SessionMetadata) error {
		m.State = sessions.StateReady
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := h.GetSession(ctx, meta.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StatePending, got.State)
}

func testMutateUnknown(t *testing.T, factory HostFactory) {
	h := factory(t)
	err := h.MutateSession(testCtx(t), uuid.NewString(), func(m *sessions.SessionMetadata) error { return nil })
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func testConcurrentMutate(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := testCtx(t)

	meta := newMeta()
	require.NoError(t, h.CreateSession(ctx, meta))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.MutateSession(ctx, meta.SessionID, func(m *sessions.SessionMetadata) error {
				m.Capabilities = append(m.Capabilities, fmt.Sprintf("cap-%d", i))
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := h.GetSession(ctx, meta.SessionID)
	require.NoError(t, err)
	assert.Len(t, got.Capabilities, n)
}

func testDelete(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := testCtx(t)

	meta := newMeta()
	require.NoError(t, h.CreateSession(ctx, meta))
	require.NoError(t, h.DeleteSession(ctx, meta.SessionID))

	_, err := h.GetSession(ctx, meta.SessionID)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
	assert.NoError(t, h.DeleteSession(ctx, meta.SessionID))
}

func testTTLExpiry(t *testing.T, factory HostFactory) {
	h := factory(t)
	ctx := testCtx(t)

	meta := newMeta()
	meta.TTL = 100 * time.Millisecond
	require.NoError(t, h.CreateSession(ctx, meta))

	time.Sleep(300 * time.Millisecond)

	_, err := h.GetSession(ctx, meta.SessionID)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)

	// An expired id can be created again.
	assert.NoError(t, h.CreateSession(ctx, meta))
}
