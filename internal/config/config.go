// Package config loads process configuration from the environment and the
// optional tools file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ggoodman/mcp-dispatch/sessions/redishost"
	"github.com/joeshaw/envdecode"
)

// Config is populated from environment variables; defaults live in the tags.
type Config struct {
	// ListenAddr switches from stdio to a TCP listener when set.
	ListenAddr string `env:"MCP_LISTEN_ADDR"`
	LogLevel   string `env:"MCP_LOG_LEVEL,default=info"`
	LogFormat  string `env:"MCP_LOG_FORMAT,default=text"`

	DefaultTimeout time.Duration `env:"MCP_DEFAULT_TIMEOUT,default=60s"`
	CancelGrace    time.Duration `env:"MCP_CANCEL_GRACE,default=2s"`
	MaxConcurrency int64         `env:"MCP_MAX_CONCURRENCY,default=64"`
	MaxFrameBytes  int           `env:"MCP_MAX_FRAME_BYTES,default=4194304"`
	PageSize       int           `env:"MCP_PAGE_SIZE,default=50"`
	ToolsFile      string        `env:"MCP_TOOLS_FILE"`

	// SessionHost is "memory" or "redis".
	SessionHost string        `env:"MCP_SESSION_HOST,default=memory"`
	SessionTTL  time.Duration `env:"MCP_SESSION_TTL,default=1h"`
	Redis       redishost.Config

	GitHubToken   string `env:"GITHUB_TOKEN"`
	GitHubBranch  string `env:"GITHUB_BRANCH,default=main"`
	GitHubBaseURL string `env:"GITHUB_API_URL"`
}

// Load decodes the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("MCP_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	switch c.SessionHost {
	case "memory", "redis":
	default:
		return fmt.Errorf("MCP_SESSION_HOST: unknown host %q", c.SessionHost)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("MCP_MAX_CONCURRENCY must be positive")
	}
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("MCP_MAX_FRAME_BYTES must be positive")
	}
	if c.DefaultTimeout < 0 || c.CancelGrace < 0 || c.SessionTTL < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("MCP_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
