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

	"catalog-graph/backend/internal/api"
	"catalog-graph/backend/internal/catalog"
	"catalog-graph/backend/internal/graph"
	"catalog-graph/backend/pkg/config"
	"catalog-graph/backend/pkg/logger"
	"catalog-graph/backend/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...", zap.String("backend", cfg.StoreBackend))

	ctx := context.Background()
	collector := metrics.NewCollector(cfg.MetricsNamespace)

	// Open the graph store
	store, err := graph.Open(ctx, cfg, catalog.StoreOptions()...)
	if err != nil {
		log.Fatal("Failed to open graph store", zap.Error(err))
	}
	defer store.Close(context.Background())

	svc := catalog.NewService(
		graph.NewInstrumented(store, collector),
		catalog.WithRelatedLimit(cfg.RelatedLimit),
		catalog.WithMaxPathDepth(cfg.PathMaxDepth),
		catalog.WithMetrics(collector),
	)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(svc, collector, log.Named("http"))

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
