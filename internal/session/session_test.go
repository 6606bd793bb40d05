package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ggoodman/mcp-dispatch/internal/jsonrpc"
	"github.com/ggoodman/mcp-dispatch/internal/session"
	"github.com/ggoodman/mcp-dispatch/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var offer = session.Offer{
	ProtocolVersions: []string{"2", "1"},
	Capabilities:     []string{mcp.CapabilityTools, mcp.CapabilityCancellation, mcp.CapabilityTimeouts},
}

func readySession(t *testing.T) *session.Session {
	t.Helper()
	s := session.Open()
	_, err := s.Negotiate(offer, &mcp.NegotiateRequest{})
	require.NoError(t, err)
	return s
}

func TestNegotiate(t *testing.T) {
	s := session.Open()
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, session.StatePending, s.State())
	_, ok := s.Negotiated()
	assert.False(t, ok)

	n, err := s.Negotiate(offer, &mcp.NegotiateRequest{
		ProtocolVersion: "1",
		ClientInfo:      mcp.ImplementationInfo{Name: "cli", Version: "0.1"},
		Capabilities:    []string{mcp.CapabilityCancellation, "streaming"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", n.ProtocolVersion)
	assert.Equal(t, []string{mcp.CapabilityCancellation}, n.Capabilities)
	assert.True(t, n.Has(mcp.CapabilityCancellation))
	assert.False(t, n.Has(mcp.CapabilityTools))
	assert.Equal(t, session.StateReady, s.State())

	_, err = s.Negotiate(offer, &mcp.NegotiateRequest{})
	assert.ErrorIs(t, err, session.ErrAlreadyNegotiated)
}

func TestNegotiateDefaults(t *testing.T) {
	s := session.Open()
	n, err := s.Negotiate(offer, &mcp.NegotiateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "2", n.ProtocolVersion)
	assert.Equal(t, offer.Capabilities, n.Capabilities)
}

func TestNegotiateIncompatible(t *testing.T) {
	s := session.Open()
	_, err := s.Negotiate(offer, &mcp.NegotiateRequest{ProtocolVersion: "99"})
	assert.ErrorIs(t, err, session.ErrIncompatible)

	_, err = s.Negotiate(offer, &mcp.NegotiateRequest{Required: []string{"streaming"}})
	assert.ErrorIs(t, err, session.ErrIncompatible)

	assert.Equal(t, session.StatePending, s.State())
}

func TestTrackRequiresReady(t *testing.T) {
	s := session.Open()
	inv := session.NewInvocation(context.Background(), jsonrpc.NewRequestID(1), "echo")
	assert.ErrorIs(t, s.Track(inv), session.ErrNotReady)
}

func TestTrackDuplicate(t *testing.T) {
	s := readySession(t)
	first := session.NewInvocation(context.Background(), jsonrpc.NewRequestID(1), "echo")
	require.NoError(t, s.Track(first))

	dup := session.NewInvocation(context.Background(), jsonrpc.NewRequestID(1), "echo")
	assert.ErrorIs(t, s.Track(dup), session.ErrDuplicateID)

	// Same digits as a string are a different id.
	str := session.NewInvocation(context.Background(), jsonrpc.NewRequestID("1"), "echo")
	assert.NoError(t, s.Track(str))

	got, ok := s.Lookup(jsonrpc.NewRequestID(1))
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, 2, s.Len())
}

func TestUntrack(t *testing.T) {
	s := readySession(t)
	inv := session.NewInvocation(context.Background(), jsonrpc.NewRequestID("a"), "echo")
	require.NoError(t, s.Track(inv))

	assert.True(t, s.Untrack(inv))
	assert.False(t, s.Untrack(inv))
	assert.Equal(t, 0, s.Len())

	// The id may be reused once the first invocation is gone.
	again := session.NewInvocation(context.Background(), jsonrpc.NewRequestID("a"), "echo")
	assert.NoError(t, s.Track(again))
}

func TestCancel(t *testing.T) {
	s := readySession(t)
	inv := session.NewInvocation(context.Background(), jsonrpc.NewRequestID(7), "slow")
	require.NoError(t, s.Track(inv))

	assert.False(t, s.Cancel(jsonrpc.NewRequestID(8), session.ErrCancelledByClient))
	assert.True(t, s.Cancel(jsonrpc.NewRequestID(7), session.ErrCancelledByClient))
	assert.True(t, s.Cancel(jsonrpc.NewRequestID(7), session.ErrTimeout))

	<-inv.Context().Done()
	assert.ErrorIs(t, inv.Cause(), session.ErrCancelledByClient)
	assert.Equal(t, session.Pending, inv.State())
}

func TestFinishOnce(t *testing.T) {
	inv := session.NewInvocation(context.Background(), jsonrpc.NewRequestID(1), "echo")
	assert.True(t, inv.Finish(session.Completed))
	assert.False(t, inv.Finish(session.Cancelled))
	assert.Equal(t, session.Completed, inv.State())
	assert.Error(t, inv.Context().Err())
}

func TestClose(t *testing.T) {
	s := readySession(t)
	const k = 5
	var invs []*session.Invocation
	for i := range k {
		inv := session.NewInvocation(context.Background(), jsonrpc.NewRequestID(i), "slow")
		require.NoError(t, s.Track(inv))
		invs = append(invs, inv)
	}

	closed := s.Close(nil)
	assert.Len(t, closed, k)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, session.StateClosed, s.State())
	for _, inv := range invs {
		assert.Equal(t, session.Cancelled, inv.State())
		assert.True(t, errors.Is(inv.Cause(), session.ErrSessionClosed))
		assert.False(t, s.Untrack(inv))
	}

	late := session.NewInvocation(context.Background(), jsonrpc.NewRequestID(99), "slow")
	assert.ErrorIs(t, s.Track(late), session.ErrClosed)
	assert.Empty(t, s.Close(nil))
}
