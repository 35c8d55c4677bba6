// Package server assembles the chat application: coordinator, hub, reaper
// and HTTP server, with ordered startup and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/clock"
)

// App owns every long-lived component of a running server.
type App struct {
	cfg         *Config
	log         *slog.Logger
	hub         *Hub
	coordinator *chat.Coordinator
	reaper      *chat.Reaper
	handler     http.Handler
	httpServer  *http.Server

	started      bool
	cancelReaper context.CancelFunc
	reaperDone   chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewApp wires the components together. Nothing runs until Start.
func NewApp(cfg *Config, log *slog.Logger, clk clock.Clock) *App {
	sanitized := cfg.sanitized()
	cfg = &sanitized

	hub := NewHub(log.With("component", "hub"))
	coordinator := chat.NewCoordinator(cfg.Chat, hub, clk, log.With("component", "coordinator"))
	reaper := chat.NewReaper(coordinator, clk, cfg.Chat.ReapInterval, log.With("component", "reaper"))
	handler := SetupRoutes(NewHandlers(cfg, hub, coordinator, log.With("component", "http")))

	return &App{
		cfg:         cfg,
		log:         log,
		hub:         hub,
		coordinator: coordinator,
		reaper:      reaper,
		handler:     handler,
		httpServer:  CreateServer(cfg.Port, handler),
	}
}

// Handler returns the routed HTTP handler, for serving through httptest.
func (a *App) Handler() http.Handler { return a.handler }

// Hub returns the connection hub.
func (a *App) Hub() *Hub { return a.hub }

// Coordinator returns the chat core.
func (a *App) Coordinator() *chat.Coordinator { return a.coordinator }

// Start launches the hub loop and the room reaper.
func (a *App) Start(ctx context.Context) {
	a.started = true
	go a.hub.Run()
	a.log.Info("Hub started and ready to manage WebSocket connections")

	reaperCtx, cancel := context.WithCancel(ctx)
	a.cancelReaper = cancel
	a.reaperDone = make(chan struct{})
	go func() {
		defer close(a.reaperDone)
		_ = a.reaper.Run(reaperCtx)
	}()
}

// ListenAndServe serves HTTP on the configured port until Shutdown.
func (a *App) ListenAndServe() error {
	a.log.Info("Server listening", "addr", a.httpServer.Addr)
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting HTTP requests, stops the reaper, and closes every
// client connection, waiting for the pumps until ctx is done. It is safe to
// call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown(ctx)
	})
	return a.shutdownErr
}

func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("Shutting down server")
	var errs []error

	if err := ShutdownServer(ctx, a.httpServer); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}

	if a.started {
		a.cancelReaper()
		select {
		case <-a.reaperDone:
		case <-ctx.Done():
		}

		timeout := a.cfg.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = max(0, time.Until(deadline))
		}
		if err := a.hub.Shutdown(timeout); err != nil {
			errs = append(errs, fmt.Errorf("hub: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err == nil {
		a.log.Info("Server shutdown completed")
	}
	return err
}
