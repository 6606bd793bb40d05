package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-dispatch/internal/session"
	"github.com/ggoodman/mcp-dispatch/mcp"
	"github.com/ggoodman/mcp-dispatch/sessions"
	"github.com/ggoodman/mcp-dispatch/tools"
)

const (
	defaultPageSize   = 50
	defaultSessionTTL = 1 * time.Hour
)

var ErrUnexpectedResponse = errors.New("unexpected response from client")

// Engine routes decoded messages for any number of sessions. It is
// transport-agnostic: a transport opens a session, feeds it messages through
// Handle and closes it when the connection goes away.
type Engine struct {
	reg   *tools.Registry
	sched *Scheduler
	host  sessions.SessionHost
	log   *slog.Logger

	offer      session.Offer
	pageSize   int
	sessionTTL time.Duration
	schedCfg   SchedulerConfig
}

// EngineOption configures a Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithServerInfo sets the implementation info returned by negotiate.
func WithServerInfo(info mcp.ImplementationInfo) EngineOption {
	return func(e *Engine) { e.offer.ServerInfo = info }
}

// WithInstructions sets optional usage instructions returned by negotiate.
func WithInstructions(s string) EngineOption {
	return func(e *Engine) { e.offer.Instructions = s }
}

// WithProtocolVersions sets the supported protocol versions, most preferred
// first.
func WithProtocolVersions(versions ...string) EngineOption {
	return func(e *Engine) {
		if len(versions) > 0 {
			e.offer.ProtocolVersions = versions
		}
	}
}

// WithCapabilities replaces the capability set offered during negotiation.
func WithCapabilities(caps ...string) EngineOption {
	return func(e *Engine) { e.offer.Capabilities = caps }
}

// WithPageSize sets the listTools page size.
func WithPageSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithSessionHost records session lifecycle in host.
func WithSessionHost(host sessions.SessionHost) EngineOption {
	return func(e *Engine) { e.host = host }
}

// WithSessionTTL overrides the sliding TTL of host records.
func WithSessionTTL(d time.Duration) EngineOption { return func(e *Engine) { e.sessionTTL = d } }

// WithMaxConcurrency bounds the number of handlers running at once across
// all sessions.
func WithMaxConcurrency(n int64) EngineOption {
	return func(e *Engine) { e.schedCfg.MaxConcurrency = n }
}

// WithCancelGrace sets how long a cancelled handler may keep running before
// its invocation is reported cancelled without it.
func WithCancelGrace(d time.Duration) EngineOption {
	return func(e *Engine) { e.schedCfg.CancelGrace = d }
}

// WithTimeoutPolicy sets the initial invocation timeout policy.
func WithTimeoutPolicy(p TimeoutPolicy) EngineOption {
	return func(e *Engine) { e.schedCfg.Timeouts = p }
}

// NewEngine builds an engine over reg and freezes it; tools cannot be
// registered once serving begins.
func NewEngine(reg *tools.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		reg: reg,
		log: slog.Default(),
		offer: session.Offer{
			ProtocolVersions: []string{mcp.LatestProtocolVersion},
			Capabilities:     []string{mcp.CapabilityTools, mcp.CapabilityCancellation, mcp.CapabilityTimeouts},
			ServerInfo:       mcp.ImplementationInfo{Name: "mcp-dispatch", Version: "dev"},
		},
		pageSize:   defaultPageSize,
		sessionTTL: defaultSessionTTL,
	}

	// Apply options (order matters; later options override earlier ones).
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	reg.Freeze()
	e.sched = NewScheduler(e.schedCfg, e.log)
	return e
}

// Scheduler exposes the invocation scheduler, mainly to swap timeout policy.
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// OpenSession starts a pending session served by w. ctx must outlive the
// session: every invocation's context derives from it.
func (e *Engine) OpenSession(ctx context.Context, transport string, w MessageWriter) (*SessionHandle, error) {
	sess := session.Open()
	h := newSessionHandle(ctx, sess, transport, w)

	if e.host != nil {
		meta := &sessions.SessionMetadata{
			SessionID: sess.ID(),
			State:     sessions.StatePending,
			Transport: transport,
			CreatedAt: sess.CreatedAt(),
			TTL:       e.sessionTTL,
		}
		if err := e.host.CreateSession(ctx, meta); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}

	e.log.InfoContext(h.ctx, "engine.session.open", slog.String("transport", transport))
	return h, nil
}

// CloseSession cancels everything the session has outstanding. No responses
// are written for those invocations.
func (e *Engine) CloseSession(ctx context.Context, h *SessionHandle) {
	cancelled := h.sess.Close(session.ErrSessionClosed)

	if e.host != nil {
		if err := e.host.DeleteSession(context.WithoutCancel(ctx), h.SessionID()); err != nil {
			e.log.ErrorContext(h.ctx, "engine.session.delete.fail", slog.String("err", err.Error()))
		}
	}

	e.log.InfoContext(h.ctx, "engine.session.close",
		slog.Int("cancelled", len(cancelled)),
		slog.Int64("age_ms", time.Since(h.sess.CreatedAt()).Milliseconds()),
	)
}

// Shutdown waits for in-flight invocations to deliver their outcome.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.sched.Wait(ctx)
}
