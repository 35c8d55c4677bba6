// Package server builds the per-connection token bucket that protects the
// coordinator from message floods.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter returns a bucket holding Burst tokens that refills fully
// over RefillInterval.
func newRateLimiter(cfg RateLimitConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst)
}
