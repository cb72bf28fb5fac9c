package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/measureme/internal/handler"
	"github.com/noah-isme/measureme/internal/middleware"
	"github.com/noah-isme/measureme/pkg/config"
)

type routeHandlers struct {
	students     *handler.StudentHandler
	measurements *handler.MeasurementHandler
	media        *handler.MediaHandler
	metrics      *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h routeHandlers) {
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	r.GET(mediaRoute+"/:token", h.media.Serve)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	students := api.Group("/students")
	students.GET("", h.students.List)
	students.POST("", h.students.Create)
	students.GET("/:id", h.students.Get)
	students.PUT("/:id", h.students.Update)
	students.DELETE("/:id", h.students.Delete)

	measurements := api.Group("/measurements")
	measurements.GET("", h.measurements.List)
	measurements.POST("", h.measurements.Create)
}
