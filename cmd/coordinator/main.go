// Command coordinator serves the session management API and supervises the
// helper processes.
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

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/adapter/bridge"
	"github.com/xiaot623/deskrelay/internal/commandclient"
	"github.com/xiaot623/deskrelay/internal/config"
	"github.com/xiaot623/deskrelay/internal/logging"
	"github.com/xiaot623/deskrelay/internal/metrics"
	"github.com/xiaot623/deskrelay/internal/repository"
	"github.com/xiaot623/deskrelay/internal/service"
	"github.com/xiaot623/deskrelay/internal/supervisor"
	transport "github.com/xiaot623/deskrelay/internal/transport/http"
	"github.com/xiaot623/deskrelay/internal/transport/http/api"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "deskrelay-coordinator",
	Short:         "Serve the agent session API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			os.Setenv(config.EnvConfigFile, configFile)
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer logger.Sync()

		return run(cfg, logger)
	},
}

func main() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting coordinator",
		zap.Int("port", cfg.CoordinatorPort),
		zap.String("database", cfg.DatabaseURL),
		zap.String("bridge_url", cfg.BridgeURL))

	// Initialize store
	store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	m := metrics.New()
	bridgeClient := bridge.NewClient(cfg.BridgeURL, cfg.BridgeTimeout, m, logger)
	svc := service.New(store, bridgeClient, cfg, m, logger)
	services := supervisor.NewRegistry(cfg.Services, logger)
	executor := commandclient.New(cfg.ExecutorURL, commandclient.Options{MaxMessageSize: cfg.MaxMessageSize}, logger)

	handler := api.NewHandler(svc, services, m).WithScreenshots(executor)
	server := transport.NewCoordinatorServer(handler, logger)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.CoordinatorPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("coordinator started", zap.Int("port", cfg.CoordinatorPort))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var result *multierror.Error
	select {
	case <-quit:
	case serveErr := <-errCh:
		result = multierror.Append(result, fmt.Errorf("coordinator server failed: %w", serveErr))
	}

	logger.Info("shutting down coordinator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("shutdown server: %w", err))
	}
	if err := executor.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close executor client: %w", err))
	}
	if err := services.Close(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("stop services: %w", err))
	}
	if err := store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close store: %w", err))
	}

	logger.Info("coordinator stopped")
	return result.ErrorOrNil()
}
