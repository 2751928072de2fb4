package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaot623/carechat/internal/agents"
	"github.com/xiaot623/carechat/internal/config"
	"github.com/xiaot623/carechat/internal/hub"
	"github.com/xiaot623/carechat/internal/logging"
	"github.com/xiaot623/carechat/internal/policy"
	"github.com/xiaot623/carechat/internal/repository"
	"github.com/xiaot623/carechat/internal/service"
	"github.com/xiaot623/carechat/internal/tools"
	transporthttp "github.com/xiaot623/carechat/internal/transport/http"
)

func main() {
	// Load configuration
	cfg := config.LoadServer()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	logger.Info().
		Int("http_port", cfg.HTTPPort).
		Str("database", cfg.DatabaseURL).
		Dur("step_delay", cfg.StepDelay).
		Msg("starting carechat server")

	// Initialize store
	store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer store.Close()

	// Initialize agents
	dataset, err := agents.LoadDataset(cfg.MockDataPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.MockDataPath).Msg("failed to load mock dataset")
	}
	registry := tools.NewRegistry()
	roster, err := agents.NewRoster(dataset, registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register agent tools")
	}
	logger.Info().Strs("tools", registry.Names()).Msg("agent tools registered")

	// Initialize policy engine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize policy engine")
	}

	// Initialize trace feed hub
	feedHub := hub.New(logger)
	go feedHub.Run(ctx)

	// Initialize service and server
	svc := service.New(store, policyEngine, roster, feedHub, cfg, logger)
	server := transporthttp.NewServer(svc, feedHub, cfg, logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()

	logger.Info().Int("port", cfg.HTTPPort).Msg("HTTP server started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Int("watchers", feedHub.ConnectionCount()).Msg("shutting down carechat server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server gracefully")
	}
	cancel()

	logger.Info().Msg("carechat server stopped")
}
