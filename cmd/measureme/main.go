package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/measureme/internal/capture"
	"github.com/noah-isme/measureme/internal/enrollment"
	"github.com/noah-isme/measureme/internal/recordclient"
	"github.com/noah-isme/measureme/pkg/config"
	"github.com/noah-isme/measureme/pkg/logger"
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

	cli := &commandLine{
		records:           recordclient.New(cfg.Client, logr),
		maxTrainingImages: cfg.Enrollment.MaxTrainingImages,
		locks:             enrollment.NewRecordLocks(),
		logger:            logr,
		out:               os.Stdout,
	}
	if cfg.Capture.FramesDir != "" {
		cli.newCamera = func() enrollment.Camera {
			return capture.NewAdapter(capture.NewDirectoryDevice(cfg.Capture.FramesDir), capture.Options{
				JPEGQuality: cfg.Capture.JPEGQuality,
				Logger:      logr,
			})
		}
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
