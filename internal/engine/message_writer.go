package engine

import (
	"context"

	"github.com/ggoodman/mcp-dispatch/internal/jsonrpc"
)

// MessageWriter delivers one encoded message to the transport. Calls for a
// single session are serialized by the engine.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg jsonrpc.Message) error
}

type MessageWriterFunc func(ctx context.Context, msg jsonrpc.Message) error

func (f MessageWriterFunc) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	return f(ctx, msg)
}
