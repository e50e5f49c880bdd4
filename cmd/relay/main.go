package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
	"github.com/LLIEPJIOK/room-relay/pkg/config"
	"github.com/LLIEPJIOK/room-relay/pkg/relay"
	"github.com/LLIEPJIOK/room-relay/pkg/relay/peerapi"
	"github.com/LLIEPJIOK/room-relay/pkg/relay/roomapi"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"

	shutdownTimeout = 10 * time.Second
)

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.Default()
	}
}

func main() {
	cfg := config.MustLoad()

	logger := setupLogger(cfg.Env)
	slog.SetDefault(logger)

	logger.Info("starting relay",
		slog.String("env", cfg.Env),
		slog.String("address", cfg.Server.Address),
	)

	rooms := roomapi.New(roomapi.Config{
		BaseURL:        cfg.Actors.RoomsURL,
		Logger:         logger,
		RequestTimeout: cfg.Actors.RequestTimeout,
	})

	peers := peerapi.New(peerapi.Config{
		BaseURL:        cfg.Actors.PeersURL,
		Logger:         logger,
		RequestTimeout: cfg.Actors.RequestTimeout,
	})

	server := relay.New(relay.Config{
		Logger: logger,
		Rooms:  rooms,
		Peers:  peers,
		Freshness: api.Freshness{
			MaxPastSecs:   cfg.Server.MaxPastSecs,
			MaxFutureSecs: cfg.Server.MaxFutureSecs,
		},
		CreateRoomAttempts: cfg.Server.CreateRoomAttempts,
		CallTimeout:        cfg.Server.CallTimeout,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", server)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", slog.Any("error", err))
	}
}
