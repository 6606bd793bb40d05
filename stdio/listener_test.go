package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/ggoodman/mcp-dispatch/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	eng := engine.NewEngine(echoRegistry(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, ln, eng) }()

	// Two connections are two independent sessions.
	for range 2 {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		r := bufio.NewReader(conn)
		require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

		_, err = conn.Write([]byte(`{"id":1,"method":"echo","params":{"a":1}}` + "\n"))
		require.NoError(t, err)
		line, err := r.ReadBytes('\n')
		require.NoError(t, err)
		var resp struct {
			Error struct {
				Kind string `json:"kind"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(line, &resp))
		assert.Equal(t, "SessionNotReady", resp.Error.Kind)

		_, err = conn.Write([]byte(`{"id":2,"method":"negotiate"}` + "\n" + `{"id":3,"method":"echo","params":{"a":1}}` + "\n"))
		require.NoError(t, err)
		_, err = r.ReadBytes('\n')
		require.NoError(t, err)
		line, err = r.ReadBytes('\n')
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"result":{"a":1}}`, string(line))
		_ = conn.Close()
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeListener did not stop")
	}
}
