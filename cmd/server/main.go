package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kgdatatech/securestack/internal/app"
	"github.com/kgdatatech/securestack/internal/config"
	"github.com/kgdatatech/securestack/internal/logger"
)

func main() {
	log := logger.SetupDefault()

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup", "error", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		log.Error("server", "error", err)
		os.Exit(1)
	}
}
