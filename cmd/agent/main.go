package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/xiaoshi569/Geminijson/internal/infrastructure/browser/rodagent"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/env"
	"github.com/xiaoshi569/Geminijson/internal/infrastructure/logger"
)

func main() {
	envService := env.NewEnvService()
	relayURL := envService.GetDefault("RELAY_URL", "ws://127.0.0.1:8765/ws")

	logAdapter, err := logger.NewLoggerAdapter("agent")
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logAdapter.Close()

	browserCfg := rodagent.DefaultBrowserConfig()
	browserCfg.Headless = envService.GetBool("BROWSER_HEADLESS", false)

	browser, err := rodagent.NewBrowser(browserCfg)
	if err != nil {
		log.Fatalf("browser init failed: %v", err)
	}
	defer browser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logAdapter.Info("agent starting", "relay_url", relayURL)
	agent := rodagent.NewAgent(relayURL, browser, logAdapter)
	agent.Run(ctx)
}
