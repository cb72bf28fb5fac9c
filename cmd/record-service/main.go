package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/measureme/api/swagger"
	"github.com/noah-isme/measureme/internal/handler"
	"github.com/noah-isme/measureme/internal/middleware"
	"github.com/noah-isme/measureme/internal/repository"
	"github.com/noah-isme/measureme/internal/service"
	"github.com/noah-isme/measureme/pkg/cache"
	"github.com/noah-isme/measureme/pkg/config"
	"github.com/noah-isme/measureme/pkg/database"
	"github.com/noah-isme/measureme/pkg/logger"
	corsmiddleware "github.com/noah-isme/measureme/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/measureme/pkg/middleware/requestid"
	"github.com/noah-isme/measureme/pkg/storage"
)

const (
	mediaRoute      = "/media"
	shutdownTimeout = 15 * time.Second
)

// @title MeasureMe Record Service
// @version 1.0.0
// @description Student roster, enrollment images and height/weight history
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("record service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := repository.EnsureSchema(ctx, db); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Roster.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("roster cache disabled: redis unavailable", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	store, err := storage.NewLocalStorage(cfg.Media.StorageDir)
	if err != nil {
		return fmt.Errorf("init media storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Media.SignedURLSecret, cfg.Media.SignedURLTTL)

	metrics := service.NewMetricsService()
	validate := validator.New()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Roster.CacheTTL, logr, redisClient != nil)
	mediaSvc := service.NewMediaService(store, signer, cfg.Media, mediaRoute, logr)
	studentSvc := service.NewStudentService(repository.NewStudentRepository(db), mediaSvc, validate, logr, service.StudentServiceOptions{
		Cache:             cacheSvc,
		Metrics:           metrics,
		MaxTrainingImages: cfg.Enrollment.MaxTrainingImages,
	})
	measurementSvc := service.NewMeasurementService(repository.NewMeasurementRepository(db), cacheSvc, metrics, validate, logr)

	checks := []handler.ReadinessCheck{{Name: "database", Ping: db.PingContext}}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "cache", Ping: cacheRepo.Ping})
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	registerRoutes(r, cfg, routeHandlers{
		students:     handler.NewStudentHandler(studentSvc, mediaSvc.MaxBytes(), cfg.Enrollment.MaxTrainingImages),
		measurements: handler.NewMeasurementHandler(measurementSvc),
		media:        handler.NewMediaHandler(mediaSvc),
		metrics:      handler.NewMetricsHandler(metrics, checks...),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.Bool("roster_cache", cacheSvc.Enabled()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
