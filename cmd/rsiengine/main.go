package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"momentum-systemv1/internal/engine"
	"momentum-systemv1/internal/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := engine.LoadConfig()
	logger.Setup("rsiengine", cfg.LogLevel, cfg.LogFile)
	log.Printf("[rsiengine] watchlist: %v, period: %d, refresh: %s", cfg.Tickers, cfg.Period, cfg.RefreshInterval)

	svc, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("[rsiengine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[rsiengine] fatal: %v", err)
	}
}
