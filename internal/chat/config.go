package chat

import "time"

// Config holds the tunables of the chat core.
type Config struct {
	// DefaultRoom always exists and is never reaped.
	DefaultRoom string
	// HistoryLimit bounds the per-room message log.
	HistoryLimit int
	// MaxBodyLength is the number of characters kept from a message body.
	MaxBodyLength int
	// TypingTimeout clears a typing flag that was never explicitly stopped.
	TypingTimeout time.Duration
	// InactivityTimeout is how long an empty room survives without activity.
	InactivityTimeout time.Duration
	// ReapInterval is the period of the inactive room sweep.
	ReapInterval time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultRoom:       "General",
		HistoryLimit:      100,
		MaxBodyLength:     1000,
		TypingTimeout:     3 * time.Second,
		InactivityTimeout: 30 * time.Minute,
		ReapInterval:      5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultRoom == "" {
		c.DefaultRoom = d.DefaultRoom
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.MaxBodyLength <= 0 {
		c.MaxBodyLength = d.MaxBodyLength
	}
	if c.TypingTimeout <= 0 {
		c.TypingTimeout = d.TypingTimeout
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = d.InactivityTimeout
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = d.ReapInterval
	}
	return c
}
