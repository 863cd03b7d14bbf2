package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/xiaoshi569/Geminijson/internal/infrastructure/env"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/logger"
	"github.com/xiaoshi569/Geminijson/internal/relay"
)

func main() {
	envService := env.NewEnvService()
	addr := envService.GetDefault("RELAY_ADDR", "127.0.0.1:8765")

	logAdapter, err := logger.NewLoggerAdapter("relay")
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logAdapter.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := relay.NewHub(logAdapter)
	server := relay.NewServer(addr, hub, logAdapter)

	logAdapter.Info("relay starting", "addr", addr)
	if err := server.ListenAndServe(ctx); err != nil {
		log.Fatalf("relay server: %v", err)
	}
}
