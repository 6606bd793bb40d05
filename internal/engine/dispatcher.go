package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-dispatch/internal/jsonrpc"
	"github.com/ggoodman/mcp-dispatch/internal/logctx"
	"github.com/ggoodman/mcp-dispatch/internal/session"
	"github.com/ggoodman/mcp-dispatch/mcp"
	"github.com/ggoodman/mcp-dispatch/tools"
)

// Handle routes one decoded message. Built-in methods are answered before
// Handle returns; tool requests are scheduled and answered later. The
// returned error is reserved for messages that cannot be answered at all.
func (e *Engine) Handle(ctx context.Context, h *SessionHandle, msg *jsonrpc.AnyMessage) error {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   string(msg.Type()),
	})

	if msg.Type() != jsonrpc.TypeResponse {
		e.touch(ctx, h)
	}

	switch msg.Type() {
	case jsonrpc.TypeResponse:
		e.log.WarnContext(ctx, "engine.handle_response.unexpected")
		return fmt.Errorf("%w: id %q", ErrUnexpectedResponse, msg.ID.String())
	case jsonrpc.TypeNotification:
		e.handleNotification(ctx, h, msg.AsRequest())
		return nil
	}

	req := msg.AsRequest()
	resp := e.handleRequest(ctx, h, req)
	if resp == nil {
		return nil
	}
	if err := h.WriteResponse(ctx, resp); err != nil {
		e.log.ErrorContext(ctx, "engine.write_response.fail", slog.String("err", err.Error()))
	}
	return nil
}

// handleRequest returns the immediate response, or nil when a tool was
// scheduled and will answer on its own.
func (e *Engine) handleRequest(ctx context.Context, h *SessionHandle, req *jsonrpc.Request) *jsonrpc.Response {
	if req.Method == string(mcp.NegotiateMethod) {
		return e.handleNegotiate(ctx, h, req)
	}

	n, ok := h.sess.Negotiated()
	if !ok {
		e.log.InfoContext(ctx, "engine.handle_request.not_ready")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindSessionNotReady, "session not negotiated", nil)
	}

	// Every response must correlate to exactly one request.
	if _, busy := h.sess.Lookup(req.ID); busy {
		e.log.InfoContext(ctx, "engine.handle_request.duplicate_id")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindInvalidRequest, "request id already in use", nil)
	}

	switch mcp.Method(req.Method) {
	case mcp.ListToolsMethod:
		if !n.Has(mcp.CapabilityTools) {
			return e.methodNotFound(ctx, req)
		}
		return e.handleListTools(ctx, req)
	case mcp.PingMethod:
		return e.handlePing(ctx, req)
	case mcp.CancelMethod:
		if !n.Has(mcp.CapabilityCancellation) {
			e.log.InfoContext(ctx, "engine.cancel.not_negotiated")
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindInvalidRequest, "cancellation not negotiated", nil)
		}
		return e.handleCancel(ctx, h, req)
	}

	if !n.Has(mcp.CapabilityTools) {
		return e.methodNotFound(ctx, req)
	}
	return e.handleToolCall(ctx, h, req)
}

func (e *Engine) methodNotFound(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	e.log.InfoContext(ctx, "engine.handle_request.not_found")
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindMethodNotFound, "method not found", map[string]string{"method": req.Method})
}

// touch slides the host record's TTL while the session is active.
func (e *Engine) touch(ctx context.Context, h *SessionHandle) {
	if e.host == nil {
		return
	}
	if _, err := e.host.GetSession(ctx, h.SessionID()); err != nil {
		e.log.WarnContext(ctx, "engine.session.touch.fail", slog.String("err", err.Error()))
	}
}

func (e *Engine) handleToolCall(ctx context.Context, h *SessionHandle, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()

	tool, err := e.reg.Lookup(req.Method)
	if err != nil {
		return e.methodNotFound(ctx, req)
	}

	if err := tool.ValidateParams(req.Params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindInvalidParams, "invalid params", map[string]string{"reason": err.Error()})
	}

	parent := logctx.WithRPCMessage(h.ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: string(jsonrpc.TypeRequest)})
	inv := session.NewInvocation(parent, req.ID, tool.Name())

	if err := h.sess.Track(inv); err != nil {
		inv.Finish(session.Failed)
		if errors.Is(err, session.ErrDuplicateID) {
			e.log.InfoContext(ctx, "engine.handle_request.duplicate_id")
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindInvalidRequest, "request id already in use", nil)
		}
		// Session closed while this message was in flight; nobody is listening.
		e.log.DebugContext(ctx, "engine.handle_request.closed", slog.String("err", err.Error()))
		return nil
	}

	treq := &tools.Request{
		Tool:          tool.Name(),
		SessionID:     h.SessionID(),
		CorrelationID: req.ID.String(),
		InvocationID:  inv.ID,
		Params:        req.Params,
	}

	e.sched.Run(inv, tool, treq, func(out Outcome) {
		if !h.sess.Untrack(inv) {
			return
		}
		log := e.log.With(slog.String("state", out.State.String()), slog.Int64("dur_ms", time.Since(inv.StartedAt).Milliseconds()))
		if err := h.WriteResponse(h.ctx, out.Response(inv.CorrelationID)); err != nil {
			log.ErrorContext(inv.Context(), "engine.invocation.write.fail", slog.String("err", err.Error()))
			return
		}
		log.InfoContext(inv.Context(), "engine.invocation.done")
	})

	e.log.DebugContext(ctx, "engine.handle_request.scheduled", slog.String("invocation", inv.ID))
	return nil
}

func (e *Engine) handleNotification(ctx context.Context, h *SessionHandle, note *jsonrpc.Request) {
	n, ok := h.sess.Negotiated()
	if !ok {
		e.log.InfoContext(ctx, "engine.handle_notification.not_ready")
		return
	}
	if note.Method == string(mcp.CancelMethod) {
		if !n.Has(mcp.CapabilityCancellation) {
			e.log.InfoContext(ctx, "engine.cancel.not_negotiated")
			return
		}
		if _, err := e.cancel(ctx, h, note); err != nil {
			e.log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
		}
		return
	}
	e.log.InfoContext(ctx, "engine.handle_notification.ignored")
}
