package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/Tyrowin/roomchat/internal/clock"
	"github.com/Tyrowin/roomchat/internal/server"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env file is fine; the environment and defaults still apply.
	_ = godotenv.Load()

	config, err := server.NewConfigFromEnv()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.Level()}))
	slog.SetDefault(logger)
	logger.Info("Starting chat server", "port", config.Port, "origins", config.AllowedOrigins)

	app := server.NewApp(config, logger, clock.Real())
	app.Start(context.Background())

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.ListenAndServe()
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				logger.Info("Graceful shutdown initiated")
				return app.Shutdown(ctx)
			},
		},
	)

	select {
	case exitCode := <-wait:
		logger.Info("Server exited", "code", exitCode)
		return exitCode
	case err := <-listenErr:
		if err != nil {
			logger.Error("Server failed", "error", err)
			ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
			defer cancel()
			_ = app.Shutdown(ctx)
			return 1
		}
		return <-wait
	}
}
