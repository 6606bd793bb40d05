package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-dispatch/examples/echo"
	"github.com/ggoodman/mcp-dispatch/internal/engine"
	"github.com/ggoodman/mcp-dispatch/internal/jsonrpc"
	"github.com/ggoodman/mcp-dispatch/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHarness encapsulates pipes and collected output for stdio handler tests.
type testHarness struct {
	t      *testing.T
	stdinW *io.PipeWriter
	outMu  sync.Mutex
	lines  []string
	done   chan error
}

func newHarness(t *testing.T, reg *tools.Registry, opts ...Option) *testHarness {
	t.Helper()

	// wire stdio via io.Pipe
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	eng := engine.NewEngine(reg)
	h := NewHandler(eng, append([]Option{WithIO(inR, outW), WithLogger(slog.Default())}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	th := &testHarness{t: t, stdinW: inW, done: make(chan error, 1)}

	go func() {
		th.done <- h.Serve(ctx)
	}()

	go func() {
		sc := bufio.NewScanner(outR)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			th.outMu.Lock()
			th.lines = append(th.lines, line)
			th.outMu.Unlock()
		}
	}()

	t.Cleanup(func() {
		cancel()
		_ = inW.Close()
		_ = outW.Close()
	})
	return th
}

func (th *testHarness) write(raw string) {
	th.t.Helper()
	_, err := th.stdinW.Write([]byte(raw + "\n"))
	require.NoError(th.t, err)
}

func (th *testHarness) nextLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		th.outMu.Lock()
		if len(th.lines) > 0 {
			s := th.lines[0]
			th.lines = th.lines[1:]
			th.outMu.Unlock()
			return s, nil
		}
		th.outMu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	return "", fmt.Errorf("timeout waiting for output line")
}

func (th *testHarness) expectResponse() *jsonrpc.Response {
	th.t.Helper()
	line, err := th.nextLine(2 * time.Second)
	require.NoError(th.t, err)
	var any jsonrpc.AnyMessage
	require.NoError(th.t, json.Unmarshal([]byte(line), &any), line)
	require.Equal(th.t, jsonrpc.TypeResponse, any.Type(), line)
	return any.AsResponse()
}

func (th *testHarness) negotiate() {
	th.t.Helper()
	th.write(`{"jsonrpc":"2.0","id":0,"method":"negotiate","params":{"clientInfo":{"name":"client","version":"0.0.1"}}}`)
	resp := th.expectResponse()
	require.Nil(th.t, resp.Error)
}

func echoRegistry(t *testing.T, extra ...tools.ToolSpec) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, echo.Register(reg))
	for _, s := range extra {
		require.NoError(t, reg.Register(s))
	}
	return reg
}

func TestEchoOverStdio(t *testing.T) {
	th := newHarness(t, echoRegistry(t))
	th.negotiate()

	th.write(`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"msg":"hi"}}`)
	line, err := th.nextLine(2 * time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"msg":"hi"}}`, line)
}

func TestMissingMethodOverStdio(t *testing.T) {
	th := newHarness(t, echoRegistry(t))
	th.negotiate()

	th.write(`{"jsonrpc":"2.0","id":2,"method":"missing"}`)
	resp := th.expectResponse()
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.KindMethodNotFound, resp.Error.Kind)
	assert.Equal(t, "2", resp.ID.String())
}

func TestDecodeErrorsAreAnswered(t *testing.T) {
	th := newHarness(t, echoRegistry(t))
	th.negotiate()

	th.write(`{"id":7,"method":`)
	line, err := th.nextLine(2 * time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"kind":"MalformedMessage","message":"invalid JSON"}}`, line)

	th.write(`{"id":8,"method":42}`)
	resp := th.expectResponse()
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.KindUnknownMessageShape, resp.Error.Kind)
	assert.Equal(t, "8", resp.ID.String())

	// Blank lines are ignored and the session keeps working.
	th.write(``)
	th.write(`{"id":9,"method":"ping"}`)
	resp = th.expectResponse()
	require.Nil(t, resp.Error)
	assert.Equal(t, "9", resp.ID.String())
}

func TestOversizedFrame(t *testing.T) {
	th := newHarness(t, echoRegistry(t), WithMaxFrameSize(160))
	th.negotiate()

	th.write(`{"id":1,"method":"echo","params":{"msg":"` + strings.Repeat("x", 400) + `"}}`)
	resp := th.expectResponse()
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.KindMalformedMessage, resp.Error.Kind)
	assert.True(t, resp.ID.IsNil())

	th.write(`{"id":2,"method":"echo","params":{"msg":"ok"}}`)
	resp = th.expectResponse()
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"msg":"ok"}`, string(resp.Result))
}

func TestOutOfOrderCompletion(t *testing.T) {
	release := make(chan struct{})
	slow := tools.ToolSpec{Name: "slow", Handler: func(ctx context.Context, req *tools.Request) (any, error) {
		select {
		case <-release:
			return map[string]bool{"slow": true}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	th := newHarness(t, echoRegistry(t, slow))
	th.negotiate()

	th.write(`{"id":1,"method":"slow"}`)
	th.write(`{"id":2,"method":"echo","params":{"fast":true}}`)

	resp := th.expectResponse()
	assert.Equal(t, "2", resp.ID.String())

	close(release)
	resp = th.expectResponse()
	assert.Equal(t, "1", resp.ID.String())
	assert.JSONEq(t, `{"slow":true}`, string(resp.Result))
}

func TestEOFEndsSession(t *testing.T) {
	th := newHarness(t, echoRegistry(t))
	th.negotiate()

	require.NoError(t, th.stdinW.Close())
	select {
	case err := <-th.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after EOF")
	}
}
