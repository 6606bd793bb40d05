package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/mcp-dispatch/internal/engine"
	"gopkg.in/yaml.v3"
)

// ToolsFile is the YAML overlay read from MCP_TOOLS_FILE:
//
//	default_timeout: 30s
//	tools:
//	  generate_ci:
//	    timeout: 2m
type ToolsFile struct {
	DefaultTimeout time.Duration           `yaml:"default_timeout"`
	Tools          map[string]ToolOverride `yaml:"tools"`
}

type ToolOverride struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LoadToolsFile reads and parses path. Unknown keys are rejected.
func LoadToolsFile(path string) (*ToolsFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tools file: %w", err)
	}
	var tf ToolsFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse tools file %s: %w", path, err)
	}
	for name, o := range tf.Tools {
		if o.Timeout < 0 {
			return nil, fmt.Errorf("tools file %s: tool %q: negative timeout", path, name)
		}
	}
	return &tf, nil
}

// TimeoutPolicy merges the overlay over fallback, the process default.
func (tf *ToolsFile) TimeoutPolicy(fallback time.Duration) engine.TimeoutPolicy {
	p := engine.TimeoutPolicy{Default: fallback, Tools: map[string]time.Duration{}}
	if tf == nil {
		return p
	}
	if tf.DefaultTimeout > 0 {
		p.Default = tf.DefaultTimeout
	}
	for name, o := range tf.Tools {
		p.Tools[name] = o.Timeout
	}
	return p
}

// Watch reloads path whenever it changes and passes each successfully parsed
// version to onChange. Parse failures are logged and the previous version
// stays in effect. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, log *slog.Logger, onChange func(*ToolsFile)) error {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so that atomic rename-into-place saves are seen.
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	const debounce = 100 * time.Millisecond
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WarnContext(ctx, "config.watch.error", slog.String("err", err.Error()))
		case <-timer.C:
			tf, err := LoadToolsFile(abs)
			if err != nil {
				log.WarnContext(ctx, "config.reload.fail", slog.String("path", abs), slog.String("err", err.Error()))
				continue
			}
			log.InfoContext(ctx, "config.reload.ok", slog.String("path", abs), slog.Int("tools", len(tf.Tools)))
			onChange(tf)
		}
	}
}
