// Package server provides configuration helpers that define runtime defaults,
// environment overrides, and rate-limiting parameters for the chat service.
package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/Tyrowin/roomchat/internal/chat"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls
// and the tunables of the chat core.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	Chat            chat.Config
	ShutdownTimeout time.Duration
	LogLevel        string
}

// environment is the flat view of Config read by go-env. Zero values mean
// "not set" and leave the default in place.
type environment struct {
	Port                    string        `env:"SERVER_PORT"`
	AllowedOrigins          string        `env:"ALLOWED_ORIGINS"`
	MaxMessageSize          int64         `env:"MAX_MESSAGE_SIZE"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL"`
	DefaultRoom             string        `env:"DEFAULT_ROOM"`
	HistoryLimit            int           `env:"HISTORY_LIMIT"`
	MaxBodyLength           int           `env:"MAX_BODY_LENGTH"`
	TypingTimeout           time.Duration `env:"TYPING_TIMEOUT"`
	InactivityTimeout       time.Duration `env:"INACTIVITY_TIMEOUT"`
	ReapInterval            time.Duration `env:"REAP_INTERVAL"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT"`
	LogLevel                string        `env:"LOG_LEVEL"`
}

func defaultConfig() Config {
	return Config{
		Port: ":3001",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:3001",
		},
		MaxMessageSize: 8192,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		Chat:            chat.DefaultConfig(),
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables keep their default; malformed ones are an error.
func NewConfigFromEnv() (*Config, error) {
	var e environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg := defaultConfig()
	if e.Port != "" {
		cfg.Port = e.Port
	}
	if e.AllowedOrigins != "" {
		cfg.AllowedOrigins = parseOrigins(e.AllowedOrigins)
	}
	if e.MaxMessageSize > 0 {
		cfg.MaxMessageSize = e.MaxMessageSize
	}
	if e.RateLimitBurst > 0 {
		cfg.RateLimit.Burst = e.RateLimitBurst
	}
	if e.RateLimitRefillInterval > 0 {
		cfg.RateLimit.RefillInterval = e.RateLimitRefillInterval
	}
	if e.DefaultRoom != "" {
		cfg.Chat.DefaultRoom = e.DefaultRoom
	}
	if e.HistoryLimit > 0 {
		cfg.Chat.HistoryLimit = e.HistoryLimit
	}
	if e.MaxBodyLength > 0 {
		cfg.Chat.MaxBodyLength = e.MaxBodyLength
	}
	if e.TypingTimeout > 0 {
		cfg.Chat.TypingTimeout = e.TypingTimeout
	}
	if e.InactivityTimeout > 0 {
		cfg.Chat.InactivityTimeout = e.InactivityTimeout
	}
	if e.ReapInterval > 0 {
		cfg.Chat.ReapInterval = e.ReapInterval
	}
	if e.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = e.ShutdownTimeout
	}
	if e.LogLevel != "" {
		cfg.LogLevel = e.LogLevel
	}

	sanitized := cfg.sanitized()
	return &sanitized, nil
}

// sanitized returns a copy with every non-positive or empty setting
// replaced by its default. A bare port number gets the leading colon.
func (c Config) sanitized() Config {
	d := defaultConfig()

	switch {
	case c.Port == "":
		c.Port = d.Port
	case !strings.Contains(c.Port, ":"):
		c.Port = ":" + c.Port
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}

	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = d.RateLimit.Burst
	}

	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = d.RateLimit.RefillInterval
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}

	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}

	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// Level parses LogLevel, falling back to info for unknown names.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
