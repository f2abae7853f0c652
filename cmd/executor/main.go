// Command executor runs on the controlled desktop and serves the command
// channel: WebSocket commands in, synthesized input and screenshots out.
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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/config"
	"github.com/xiaot623/deskrelay/internal/desktop"
	"github.com/xiaot623/deskrelay/internal/dispatcher"
	"github.com/xiaot623/deskrelay/internal/hub"
	"github.com/xiaot623/deskrelay/internal/imaging"
	"github.com/xiaot623/deskrelay/internal/logging"
	"github.com/xiaot623/deskrelay/internal/metrics"
	"github.com/xiaot623/deskrelay/internal/policy"
	"github.com/xiaot623/deskrelay/internal/protocol"
	transport "github.com/xiaot623/deskrelay/internal/transport/http"
	"github.com/xiaot623/deskrelay/internal/ws"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "deskrelay-executor",
	Short:         "Serve desktop commands over WebSocket",
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

func buildRegistry(cfg *config.Config, logger *zap.Logger) (*dispatcher.Registry, error) {
	input, err := desktop.NewInput(cfg.InputBackend, logger)
	if err != nil {
		return nil, err
	}

	screenshots := desktop.NewScreenshotAdapter(desktop.NewDefaultCapturer(logger), imaging.Options{
		MaxWidth:  cfg.ImageMaxWidth,
		MaxHeight: cfg.ImageMaxHeight,
		Quality:   cfg.ImageQuality,
		Format:    cfg.ImageFormat,
	}, logger)
	pointer := desktop.NewPointerAdapter(input)
	keyboard := desktop.NewKeyboardAdapter(input)

	registry := dispatcher.NewRegistry()
	adapters := map[protocol.CommandName]dispatcher.Adapter{
		protocol.CommandScreenshot: screenshots,
		protocol.CommandClick:      pointer,
		protocol.CommandMove:       pointer,
		protocol.CommandScroll:     pointer,
		protocol.CommandDrag:       pointer,
		protocol.CommandType:       keyboard,
		protocol.CommandKeypress:   keyboard,
	}
	for name, adapter := range adapters {
		if err := registry.Register(name, adapter); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting executor",
		zap.Int("port", cfg.ExecutorPort),
		zap.String("input_backend", cfg.InputBackend),
		zap.String("image_format", cfg.ImageFormat))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize policy engine
	engine, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to register adapters: %w", err)
	}
	if missing := registry.Missing(); len(missing) > 0 {
		logger.Warn("commands without adapters", zap.Any("commands", missing))
	}

	m := metrics.New()
	d := dispatcher.New(registry, engine, m, dispatcher.Options{
		ScreenshotTimeout: cfg.ScreenshotTimeout,
		CommandTimeout:    cfg.CommandTimeout,
	}, logger)

	// Initialize hub
	connectionHub := hub.NewHub(logger)
	go connectionHub.Run(ctx)

	wsServer := ws.NewServer(cfg, connectionHub, d, m, logger)
	server := transport.NewExecutorServer(wsServer, logger)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.ExecutorPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("executor started", zap.Int("port", cfg.ExecutorPort))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("executor server failed: %w", err)
	}

	logger.Info("shutting down executor")

	// Stop the hub first so open connections receive a close frame.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown executor server gracefully", zap.Error(err))
	}

	logger.Info("executor stopped")
	return nil
}
