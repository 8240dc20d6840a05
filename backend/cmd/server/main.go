package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"emergent-kg/backend/internal/services"
	"emergent-kg/backend/internal/telemetry"
	"emergent-kg/backend/pkg/config"
	"emergent-kg/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.InitWithLevel(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting collaborator API server...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := services.Open(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open services", zap.Error(err))
	}
	defer svc.Close()

	a := &api{
		engine:    svc.Engine,
		store:     svc.Store,
		collector: telemetry.NewCollector("kg"),
		now:       time.Now,
		log:       log,
	}
	a.refresh(ctx)

	// Edits made by the CLI or by hand also move the gauges.
	if svc.GraphPath != "" {
		watcher, err := services.NewGraphWatcher(svc.GraphPath, 0, func() { a.refresh(ctx) })
		if err != nil {
			log.Warn("Graph file watcher disabled", zap.Error(err))
		} else {
			go watcher.Run(ctx)
		}
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(a)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
