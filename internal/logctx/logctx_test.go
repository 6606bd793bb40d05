package logctx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/ggoodman/mcp-dispatch/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerAddsGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(logctx.Handler{Handler: slog.NewJSONHandler(&buf, nil)}).With(slog.String("component", "test"))

	ctx := logctx.WithSessionData(context.Background(), &logctx.SessionData{SessionID: "s1"})
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: "echo", ID: "1", Type: "request"})
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: "echo", InvocationID: "inv"})

	log.InfoContext(ctx, "engine.handle_request.ok")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "test", rec["component"])
	assert.Equal(t, map[string]any{"id": "s1", "protocol_version": ""}, rec["sess"])
	assert.Equal(t, "echo", rec["rpc"].(map[string]any)["method"])
	assert.Equal(t, "inv", rec["tool"].(map[string]any)["invocation"])
	assert.NotContains(t, rec, "conn")
}
