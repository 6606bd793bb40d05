package stdio

import (
	"io"
	"log/slog"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets the reader and writer for the handler.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithReader overrides the input stream.
func WithReader(r io.Reader) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
	}
}

// WithWriter overrides the output stream.
func WithWriter(w io.Writer) Option {
	return func(h *Handler) {
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithMaxFrameSize bounds the length of a single line. Longer lines are
// rejected as malformed and skipped.
func WithMaxFrameSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxFrame = n
		}
	}
}

// WithTransport names the transport and peer in logs and session records.
func WithTransport(name, remoteAddr string) Option {
	return func(h *Handler) {
		if name != "" {
			h.transport = name
		}
		h.remoteAddr = remoteAddr
	}
}
