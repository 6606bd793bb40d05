package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/ggoodman/mcp-dispatch/internal/jsonrpc"
	"github.com/ggoodman/mcp-dispatch/internal/logctx"
	"github.com/ggoodman/mcp-dispatch/internal/session"
)

// SessionHandle binds a session to the transport that serves it.
type SessionHandle struct {
	sess      *session.Session
	transport string

	// ctx lives as long as the connection and parents every invocation.
	ctx context.Context

	writeMu sync.Mutex
	w       MessageWriter
}

func newSessionHandle(ctx context.Context, sess *session.Session, transport string, w MessageWriter) *SessionHandle {
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID()})
	return &SessionHandle{
		sess:      sess,
		transport: transport,
		ctx:       ctx,
		w:         w,
	}
}

func (h *SessionHandle) SessionID() string { return h.sess.ID() }

// Session exposes the underlying session state.
func (h *SessionHandle) Session() *session.Session { return h.sess }

// Context returns the connection-scoped context carrying session log data.
func (h *SessionHandle) Context() context.Context { return h.ctx }

// WriteResponse encodes resp and hands it to the transport.
func (h *SessionHandle) WriteResponse(ctx context.Context, resp *jsonrpc.Response) error {
	msg, err := jsonrpc.Encode(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.w.WriteMessage(ctx, msg)
}
