package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/Tyrowin/roomchat/internal/clock"
)

// Sweeper retires rooms that are eligible for removal.
type Sweeper interface {
	Sweep() []string
}

// Reaper periodically asks a Sweeper to retire empty, idle rooms.
type Reaper struct {
	sweeper  Sweeper
	clock    clock.Clock
	interval time.Duration
	log      *slog.Logger
}

// NewReaper returns a Reaper that sweeps every interval once Run is called.
func NewReaper(sweeper Sweeper, clk clock.Clock, interval time.Duration, log *slog.Logger) *Reaper {
	return &Reaper{sweeper: sweeper, clock: clk, interval: interval, log: log}
}

// Run sweeps on every tick until ctx is done. A failing sweep is logged and
// retried on the next tick.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("Room reaper started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Stopping room reaper")
			return ctx.Err()
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Reaper) sweepOnce() {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Room sweep panicked, retrying next tick", "panic", rec)
		}
	}()

	if removed := r.sweeper.Sweep(); len(removed) > 0 {
		r.log.Info("Removed inactive rooms", "rooms", removed)
	}
}
