package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/measureme/internal/measurementsync"
	"github.com/noah-isme/measureme/internal/recordclient"
	"github.com/noah-isme/measureme/pkg/config"
	"github.com/noah-isme/measureme/pkg/logger"
	"github.com/noah-isme/measureme/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.NewCLI(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	store, err := storage.NewLocalStorage(cfg.Sync.SpoolDir)
	if err != nil {
		logr.Fatal("failed to open spool", zap.Error(err))
	}
	client := recordclient.New(cfg.Client, logr)

	cli := &commandLine{
		agent: measurementsync.NewAgent(measurementsync.NewSpool(store), client, cfg.Sync, logr),
		out:   os.Stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.run(ctx, os.Args); err != nil {
		if errors.Is(err, errHelp) {
			os.Exit(2)
		}
		logr.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}
