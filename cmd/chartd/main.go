package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"marketviz/config"
	"marketviz/internal/chartd"
	"marketviz/internal/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("chartd", slog.LevelInfo)

	cfg := config.Load()
	log.Printf("[chartd] enabled TFs: %v, symbols: %v", cfg.ParseTFs(), cfg.ParseSymbols())

	svc, err := chartd.New(cfg)
	if err != nil {
		log.Fatalf("[chartd] init failed: %v", err)
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
		log.Fatalf("[chartd] fatal: %v", err)
	}
}
