package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-dispatch/internal/jsonrpc"
	"github.com/ggoodman/mcp-dispatch/internal/logctx"
	"github.com/ggoodman/mcp-dispatch/internal/session"
	"github.com/ggoodman/mcp-dispatch/mcp"
	"github.com/ggoodman/mcp-dispatch/sessions"
	"github.com/ggoodman/mcp-dispatch/tools"
)

func (e *Engine) handleNegotiate(ctx context.Context, h *SessionHandle, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()

	var params mcp.NegotiateRequest
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindInvalidParams, "invalid params", nil)
		}
	}

	n, err := h.sess.Negotiate(e.offer, &params)
	switch {
	case errors.Is(err, session.ErrIncompatible):
		e.log.InfoContext(ctx, "engine.negotiate.incompatible", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindIncompatibleCapabilities, err.Error(), map[string]any{
			"protocolVersions": e.offer.ProtocolVersions,
			"capabilities":     e.offer.Capabilities,
		})
	case errors.Is(err, session.ErrAlreadyNegotiated):
		e.log.InfoContext(ctx, "engine.negotiate.repeat")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindInvalidRequest, "session already negotiated", nil)
	case err != nil:
		e.log.InfoContext(ctx, "engine.negotiate.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindInvalidRequest, err.Error(), nil)
	}

	h.ctx = logctx.WithSessionData(h.ctx, &logctx.SessionData{SessionID: h.SessionID(), ProtocolVersion: n.ProtocolVersion})

	if e.host != nil {
		err := e.host.MutateSession(ctx, h.SessionID(), func(m *sessions.SessionMetadata) error {
			m.State = sessions.StateReady
			m.ProtocolVersion = n.ProtocolVersion
			m.Capabilities = n.Capabilities
			m.Client = sessions.ClientInfo{Name: n.ClientInfo.Name, Version: n.ClientInfo.Version}
			return nil
		})
		if err != nil {
			e.log.ErrorContext(ctx, "engine.negotiate.persist.fail", slog.String("err", err.Error()))
		}
	}

	e.log.InfoContext(ctx, "engine.session.ready",
		slog.String("protocol_version", n.ProtocolVersion),
		slog.Any("capabilities", n.Capabilities),
		slog.String("client", n.ClientInfo.Name),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)

	res, err := jsonrpc.NewResultResponse(req.ID, &mcp.NegotiateResult{
		ProtocolVersion: n.ProtocolVersion,
		ServerInfo:      e.offer.ServerInfo,
		Capabilities:    n.Capabilities,
		Instructions:    e.offer.Instructions,
	})
	if err != nil {
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindFailed, "internal error", nil)
	}
	return res
}

func (e *Engine) handleListTools(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()

	var params mcp.ListToolsRequest
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindInvalidParams, "invalid params", nil)
		}
	}

	page, next, err := e.reg.List(params.Cursor, e.pageSize)
	if errors.Is(err, tools.ErrInvalidCursor) {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindInvalidParams, "invalid cursor", nil)
	} else if err != nil {
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindFailed, "internal error", nil)
	}

	result := &mcp.ListToolsResult{Tools: make([]mcp.Tool, 0, len(page)), NextCursor: next}
	for _, t := range page {
		result.Tools = append(result.Tools, t.Descriptor())
	}

	e.log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("tool_count", len(page)))

	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindFailed, "internal error", nil)
	}
	return res
}

func (e *Engine) handlePing(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	res, _ := jsonrpc.NewResultResponse(req.ID, mcp.EmptyResult{})
	return res
}

// handleCancel answers a cancel sent as a request rather than a notification.
func (e *Engine) handleCancel(ctx context.Context, h *SessionHandle, req *jsonrpc.Request) *jsonrpc.Response {
	if _, err := e.cancel(ctx, h, req); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.KindInvalidParams, "invalid params", nil)
	}
	res, _ := jsonrpc.NewResultResponse(req.ID, mcp.EmptyResult{})
	return res
}

// cancel signals the invocation named by msg. Unknown or already finished
// ids are a no-op.
func (e *Engine) cancel(ctx context.Context, h *SessionHandle, msg *jsonrpc.Request) (bool, error) {
	var params mcp.CancelParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return false, fmt.Errorf("decode cancel params: %w", err)
	}
	raw := params.Target()
	if len(raw) == 0 {
		return false, errors.New("cancel: missing id")
	}
	var target jsonrpc.RequestID
	if err := json.Unmarshal(raw, &target); err != nil {
		return false, fmt.Errorf("cancel: %w", err)
	}

	cause := session.ErrCancelledByClient
	if params.Reason != "" {
		cause = fmt.Errorf("%w: %s", session.ErrCancelledByClient, params.Reason)
	}
	found := h.sess.Cancel(&target, cause)
	e.log.InfoContext(ctx, "engine.cancel", slog.String("target", target.String()), slog.Bool("found", found))
	return found, nil
}
