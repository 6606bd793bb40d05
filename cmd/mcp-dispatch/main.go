// Command mcp-dispatch serves the registered tools over stdio, or over TCP
// when MCP_LISTEN_ADDR is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ggoodman/mcp-dispatch/examples/echo"
	"github.com/ggoodman/mcp-dispatch/internal/cigen"
	"github.com/ggoodman/mcp-dispatch/internal/config"
	"github.com/ggoodman/mcp-dispatch/internal/engine"
	"github.com/ggoodman/mcp-dispatch/internal/logctx"
	"github.com/ggoodman/mcp-dispatch/mcp"
	"github.com/ggoodman/mcp-dispatch/sessions"
	"github.com/ggoodman/mcp-dispatch/sessions/memoryhost"
	"github.com/ggoodman/mcp-dispatch/sessions/redishost"
	"github.com/ggoodman/mcp-dispatch/stdio"
	"github.com/ggoodman/mcp-dispatch/tools"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mcp-dispatch: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	reg := tools.NewRegistry()
	if err := echo.Register(reg); err != nil {
		return err
	}
	gen := &cigen.Generator{
		NewClient: cigen.GitHubClientFactory(cfg.GitHubBaseURL),
		Token:     cfg.GitHubToken,
		Branch:    cfg.GitHubBranch,
		Log:       log,
	}
	if err := cigen.Register(reg, gen); err != nil {
		return err
	}

	host, closeHost, err := newSessionHost(cfg)
	if err != nil {
		return err
	}
	defer closeHost()

	var tf *config.ToolsFile
	if cfg.ToolsFile != "" {
		if tf, err = config.LoadToolsFile(cfg.ToolsFile); err != nil {
			return err
		}
	}

	eng := engine.NewEngine(reg,
		engine.WithLogger(log),
		engine.WithServerInfo(mcp.ImplementationInfo{Name: "mcp-dispatch", Version: version}),
		engine.WithPageSize(cfg.PageSize),
		engine.WithSessionHost(host),
		engine.WithSessionTTL(cfg.SessionTTL),
		engine.WithMaxConcurrency(cfg.MaxConcurrency),
		engine.WithCancelGrace(cfg.CancelGrace),
		engine.WithTimeoutPolicy(tf.TimeoutPolicy(cfg.DefaultTimeout)),
	)
	log.InfoContext(ctx, "main.start",
		slog.Int("tools", reg.Len()),
		slog.String("session_host", cfg.SessionHost),
		slog.String("listen_addr", cfg.ListenAddr),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.ToolsFile != "" {
		g.Go(func() error {
			return config.Watch(gctx, cfg.ToolsFile, log, func(tf *config.ToolsFile) {
				eng.Scheduler().SetTimeoutPolicy(tf.TimeoutPolicy(cfg.DefaultTimeout))
			})
		})
	}

	opts := []stdio.Option{stdio.WithLogger(log), stdio.WithMaxFrameSize(cfg.MaxFrameBytes)}
	g.Go(func() error {
		// Stdio EOF ends the process, so stop the watcher with it.
		defer cancel()
		if cfg.ListenAddr == "" {
			return stdio.NewHandler(eng, opts...).Serve(gctx)
		}
		ln, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
		}
		log.InfoContext(gctx, "main.listen", slog.String("addr", ln.Addr().String()))
		return stdio.ServeListener(gctx, ln, eng, opts...)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.CancelGrace+time.Second)
	defer cancelShutdown()
	if serr := eng.Shutdown(shutdownCtx); serr != nil {
		log.WarnContext(shutdownCtx, "main.shutdown.fail", slog.String("err", serr.Error()))
	}
	log.InfoContext(shutdownCtx, "main.stop")
	return err
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: level}
	// stdout carries protocol frames in stdio mode.
	var h slog.Handler = slog.NewTextHandler(os.Stderr, hopts)
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(os.Stderr, hopts)
	}
	return slog.New(logctx.Handler{Handler: h}), nil
}

func newSessionHost(cfg *config.Config) (sessions.SessionHost, func(), error) {
	switch cfg.SessionHost {
	case "redis":
		h, err := redishost.New(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return h, func() { _ = h.Close() }, nil
	default:
		return memoryhost.New(), func() {}, nil
	}
}
