package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commandes/internal/app"
	"github.com/vladislavdragonenkov/commandes/internal/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "path to optional .env file")
	flag.Parse()

	cfg, err := app.LoadConfig(*envFile)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	app.ConfigureLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"storage_driver": cfg.StorageDriver,
		"build":          version.String(),
	}).Info("starting commandes api")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("application stopped with error")
	}

	log.Info("commandes api stopped")
}
