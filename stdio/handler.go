package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/mcp-dispatch/internal/engine"
	"github.com/ggoodman/mcp-dispatch/internal/jsonrpc"
	"github.com/ggoodman/mcp-dispatch/internal/logctx"
)

const defaultMaxFrameSize = 4 << 20

var errFrameTooLarge = errors.New("frame exceeds maximum size")

// Handler is a single-connection transport that reads JSON-RPC messages from
// an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout.
type Handler struct {
	eng *engine.Engine
	r   io.Reader
	w   io.Writer
	l   *slog.Logger

	maxFrame   int
	transport  string
	remoteAddr string

	writeMu sync.Mutex
}

// NewHandler constructs a Handler with defaults and applies options.
func NewHandler(eng *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		eng:       eng,
		r:         os.Stdin,
		w:         os.Stdout,
		l:         slog.Default(),
		maxFrame:  defaultMaxFrameSize,
		transport: "stdio",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type frame struct {
	data []byte
	err  error
}

// Serve runs one session until EOF on the reader or until ctx is cancelled.
// Invocations still outstanding at that point are cancelled and receive no
// response. EOF is a clean shutdown and returns nil.
func (h *Handler) Serve(ctx context.Context) error {
	ctx = logctx.WithConnData(ctx, &logctx.ConnData{Transport: h.transport, RemoteAddr: h.remoteAddr})

	sh, err := h.eng.OpenSession(ctx, h.transport, engine.MessageWriterFunc(h.writeLine))
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer h.eng.CloseSession(ctx, sh)

	frames := make(chan frame)
	stop := make(chan struct{})
	defer close(stop)
	go h.readFrames(frames, stop)

	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.serve.cancelled")
			return ctx.Err()
		case f := <-frames:
			if errors.Is(f.err, io.EOF) {
				h.l.InfoContext(ctx, "stdio.serve.eof")
				return nil
			}
			if errors.Is(f.err, errFrameTooLarge) {
				h.l.WarnContext(ctx, "stdio.frame.too_large", slog.Int("max", h.maxFrame))
				h.writeError(ctx, jsonrpc.NewErrorResponse(nil, jsonrpc.KindMalformedMessage, errFrameTooLarge.Error(), nil))
				continue
			}
			if f.err != nil {
				h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", f.err.Error()))
				return fmt.Errorf("read: %w", f.err)
			}
			h.handleFrame(ctx, sh, f.data)
		}
	}
}

func (h *Handler) handleFrame(ctx context.Context, sh *engine.SessionHandle, data []byte) {
	msg, err := jsonrpc.Decode(data)
	if err != nil {
		var de *jsonrpc.DecodeError
		if !errors.As(err, &de) {
			de = &jsonrpc.DecodeError{Kind: jsonrpc.KindMalformedMessage, Reason: err.Error()}
		}
		h.l.InfoContext(ctx, "stdio.decode.fail", slog.String("kind", string(de.Kind)), slog.String("err", de.Reason))
		h.writeError(ctx, &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Error: de.AsError(), ID: de.ID})
		return
	}

	if err := h.eng.Handle(ctx, sh, msg); err != nil {
		h.l.WarnContext(ctx, "stdio.handle.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) writeError(ctx context.Context, resp *jsonrpc.Response) {
	msg, err := jsonrpc.Encode(resp)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.encode.fail", slog.String("err", err.Error()))
		return
	}
	if err := h.writeLine(ctx, msg); err != nil {
		h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}

// writeLine writes msg and its newline in a single Write so that concurrent
// completions never interleave.
func (h *Handler) writeLine(ctx context.Context, msg jsonrpc.Message) error {
	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// readFrames splits the input into lines. Blank lines are skipped and lines
// longer than maxFrame are drained and reported as errFrameTooLarge.
func (h *Handler) readFrames(out chan<- frame, stop <-chan struct{}) {
	br := bufio.NewReaderSize(h.r, 64<<10)
	send := func(f frame) bool {
		select {
		case out <- f:
			return true
		case <-stop:
			return false
		}
	}

	var line []byte
	oversized := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > h.maxFrame+1 {
				oversized = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if err == nil || (errors.Is(err, io.EOF) && (len(line) > 0 || oversized)) {
			if oversized {
				if !send(frame{err: errFrameTooLarge}) {
					return
				}
			} else if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				data := make([]byte, len(trimmed))
				copy(data, trimmed)
				if !send(frame{data: data}) {
					return
				}
			}
			line = line[:0]
			oversized = false
		}

		if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
			send(frame{err: err})
			return
		}
	}
}
