package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-dispatch/internal/jsonrpc"
	"github.com/ggoodman/mcp-dispatch/internal/logctx"
	"github.com/ggoodman/mcp-dispatch/internal/session"
	"github.com/ggoodman/mcp-dispatch/tools"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxConcurrency = 64
	defaultCancelGrace    = 2 * time.Second
)

// TimeoutPolicy decides how long an invocation may run. A per-tool entry
// wins over the tool's own timeout, which wins over Default. Zero means no
// limit.
type TimeoutPolicy struct {
	Default time.Duration
	Tools   map[string]time.Duration
}

func (p *TimeoutPolicy) timeoutFor(tool *tools.Tool) time.Duration {
	if p != nil {
		if d, ok := p.Tools[tool.Name()]; ok {
			return d
		}
	}
	if d := tool.Timeout(); d > 0 {
		return d
	}
	if p != nil {
		return p.Default
	}
	return 0
}

// Outcome is the terminal result of one invocation.
type Outcome struct {
	State  session.InvocationState
	Result []byte
	Err    *jsonrpc.Error
}

// Response correlates the outcome to id.
func (o Outcome) Response(id *jsonrpc.RequestID) *jsonrpc.Response {
	if o.Err != nil {
		return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Error: o.Err, ID: id}
	}
	return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Result: o.Result, ID: id}
}

// Scheduler runs tool handlers concurrently under a global concurrency
// bound and converts whatever they do into exactly one Outcome.
type Scheduler struct {
	log         *slog.Logger
	sem         *semaphore.Weighted
	cancelGrace time.Duration
	policy      atomic.Pointer[TimeoutPolicy]

	wg        sync.WaitGroup
	abandoned atomic.Int64
}

// SchedulerConfig sizes a Scheduler. Zero values select defaults.
type SchedulerConfig struct {
	MaxConcurrency int64
	CancelGrace    time.Duration
	Timeouts       TimeoutPolicy
}

func NewScheduler(cfg SchedulerConfig, log *slog.Logger) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = defaultCancelGrace
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		log:         log,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrency),
		cancelGrace: cfg.CancelGrace,
	}
	p := cfg.Timeouts
	s.policy.Store(&p)
	return s
}

// SetTimeoutPolicy replaces the timeout policy for invocations started from
// now on.
func (s *Scheduler) SetTimeoutPolicy(p TimeoutPolicy) {
	s.policy.Store(&p)
}

// TimeoutPolicy returns the policy currently in effect.
func (s *Scheduler) TimeoutPolicy() TimeoutPolicy {
	return *s.policy.Load()
}

// Abandoned counts handlers that never returned after cancellation.
func (s *Scheduler) Abandoned() int64 { return s.abandoned.Load() }

// Wait blocks until every Run has delivered its outcome or ctx ends.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type callResult struct {
	value    any
	err      error
	panicked bool
}

// Run starts inv on its own goroutine and returns immediately. complete is
// called at most once, and only if this run moved inv out of Pending; an
// invocation already cancelled by its session closing gets no callback.
func (s *Scheduler) Run(inv *session.Invocation, tool *tools.Tool, req *tools.Request, complete func(Outcome)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		out := s.execute(inv, tool, req)
		if !inv.Finish(out.State) {
			s.log.DebugContext(inv.Context(), "scheduler.invocation.dropped", slog.String("state", inv.State().String()))
			return
		}
		complete(out)
	}()
}

func (s *Scheduler) execute(inv *session.Invocation, tool *tools.Tool, req *tools.Request) Outcome {
	ctx := logctx.WithToolCallData(inv.Context(), &logctx.ToolCallData{ToolName: tool.Name(), InvocationID: inv.ID})

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return cancelledOutcome(ctx)
	}
	defer s.sem.Release(1)

	if d := s.policy.Load().timeoutFor(tool); d > 0 {
		t := time.AfterFunc(d, func() { inv.Cancel(session.ErrTimeout) })
		defer t.Stop()
	}

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.ErrorContext(ctx, "scheduler.invocation.panic",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				done <- callResult{err: fmt.Errorf("panic: %v", r), panicked: true}
			}
		}()
		v, err := tool.Call(ctx, req)
		done <- callResult{value: v, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-ctx.Done():
		grace := time.NewTimer(s.cancelGrace)
		select {
		case res = <-done:
			grace.Stop()
		case <-grace.C:
			s.abandoned.Add(1)
			s.log.WarnContext(ctx, "scheduler.invocation.abandoned",
				slog.String("cause", causeReason(context.Cause(ctx))),
				slog.Duration("grace", s.cancelGrace),
			)
			return cancelledOutcome(ctx)
		}
	}

	return s.outcome(ctx, tool, res)
}

func (s *Scheduler) outcome(ctx context.Context, tool *tools.Tool, res callResult) Outcome {
	switch {
	case res.panicked:
		return Outcome{State: session.Failed, Err: jsonrpc.NewError(jsonrpc.KindFailed, "internal error", nil)}

	// A signalled invocation is cancelled whatever the handler returned.
	case context.Cause(ctx) != nil:
		return cancelledOutcome(ctx)

	case res.err == nil:
		b, err := tool.EncodeResult(res.value)
		if err != nil {
			s.log.ErrorContext(ctx, "scheduler.invocation.bad_output", slog.String("err", err.Error()))
			return Outcome{State: session.Failed, Err: jsonrpc.NewError(jsonrpc.KindFailed, "internal error", nil)}
		}
		return Outcome{State: session.Completed, Result: b}
	}

	var te *tools.ToolError
	if errors.As(res.err, &te) {
		return Outcome{State: session.Failed, Err: jsonrpc.NewError(jsonrpc.KindFailed, te.Message, te.Data)}
	}
	s.log.ErrorContext(ctx, "scheduler.invocation.fail", slog.String("err", res.err.Error()))
	return Outcome{State: session.Failed, Err: jsonrpc.NewError(jsonrpc.KindFailed, "internal error", nil)}
}

func cancelledOutcome(ctx context.Context) Outcome {
	cause := context.Cause(ctx)
	msg := "request cancelled"
	if cause != nil && !errors.Is(cause, context.Canceled) {
		msg = "request cancelled: " + cause.Error()
	}
	return Outcome{
		State: session.Cancelled,
		Err:   jsonrpc.NewError(jsonrpc.KindCancelled, msg, map[string]string{"reason": causeReason(cause)}),
	}
}

func causeReason(cause error) string {
	switch {
	case errors.Is(cause, session.ErrTimeout):
		return "timeout"
	case errors.Is(cause, session.ErrCancelledByClient):
		return "client"
	case errors.Is(cause, session.ErrSessionClosed):
		return "session_closed"
	default:
		return "cancelled"
	}
}
