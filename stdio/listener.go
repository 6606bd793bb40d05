package stdio

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/ggoodman/mcp-dispatch/internal/engine"
	"golang.org/x/sync/errgroup"
)

// ServeListener accepts connections from ln and serves each one as its own
// session until ctx is cancelled. It closes ln and waits for every
// connection to finish before returning.
func ServeListener(ctx context.Context, ln net.Listener, eng *engine.Engine, opts ...Option) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	cfg := &Handler{l: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	log := cfg.l

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			log.ErrorContext(ctx, "stdio.accept.fail", slog.String("err", err.Error()))
			cancel()
			return errors.Join(err, g.Wait())
		}

		g.Go(func() error {
			defer conn.Close()
			connOpts := append([]Option{}, opts...)
			connOpts = append(connOpts, WithIO(conn, conn), WithTransport("tcp", conn.RemoteAddr().String()))
			h := NewHandler(eng, connOpts...)
			if err := h.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WarnContext(ctx, "stdio.conn.fail", slog.String("err", err.Error()))
			}
			return nil
		})
	}

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
