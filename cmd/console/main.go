package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/xiaoshi569/Geminijson/internal/di"
)

func main() {
	cfg := di.ConfigFromEnv()

	container, err := di.NewContainer(cfg)
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go container.Link.Run(ctx)

	if err := container.Console.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("console: %v", err)
	}
}
