package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-dispatch/internal/jsonrpc"
	"github.com/oklog/ulid/v2"
)

// Cancellation causes recorded on an invocation's context.
var (
	ErrCancelledByClient = errors.New("cancelled by client")
	ErrTimeout           = errors.New("timeout")
	ErrSessionClosed     = errors.New("session closed")
)

// InvocationState is the terminal outcome of an invocation, or Pending.
type InvocationState int32

const (
	Pending InvocationState = iota
	Completed
	Failed
	Cancelled
)

func (s InvocationState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("InvocationState(%d)", int32(s))
	}
}

// Invocation is one running tool call.
type Invocation struct {
	ID            string
	CorrelationID *jsonrpc.RequestID
	Tool          string
	StartedAt     time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc
	state  atomic.Int32
}

// NewInvocation derives the invocation's context from parent.
func NewInvocation(parent context.Context, id *jsonrpc.RequestID, tool string) *Invocation {
	ctx, cancel := context.WithCancelCause(parent)
	return &Invocation{
		ID:            ulid.Make().String(),
		CorrelationID: id,
		Tool:          tool,
		StartedAt:     time.Now(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Context is done once the invocation is cancelled.
func (inv *Invocation) Context() context.Context { return inv.ctx }

// Cancel signals the handler. Only the first cause is kept.
func (inv *Invocation) Cancel(cause error) { inv.cancel(cause) }

// Cause returns why the invocation was cancelled, or nil.
func (inv *Invocation) Cause() error { return context.Cause(inv.ctx) }

func (inv *Invocation) State() InvocationState {
	return InvocationState(inv.state.Load())
}

// Finish moves a pending invocation to a terminal state. Only the first call
// succeeds; the invocation's context is released either way.
func (inv *Invocation) Finish(state InvocationState) bool {
	ok := inv.state.CompareAndSwap(int32(Pending), int32(state))
	inv.cancel(context.Canceled)
	return ok
}
