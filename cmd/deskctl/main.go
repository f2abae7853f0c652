// Command deskctl drives an executor and a coordinator from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/config"
	"github.com/xiaot623/deskrelay/internal/logging"
)

var (
	configFile     string
	executorURL    string
	coordinatorURL string
	verbose        bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "deskctl",
	Short:         "Send desktop commands and manage agent sessions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			os.Setenv(config.EnvConfigFile, configFile)
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if executorURL != "" {
			cfg.ExecutorURL = executorURL
		}
		if coordinatorURL != "" {
			cfg.CoordinatorURL = coordinatorURL
		}

		level := "warn"
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, true)
		return err
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "YAML config file")
	flags.StringVar(&executorURL, "executor", "", "executor WebSocket URL (default from config)")
	flags.StringVar(&coordinatorURL, "coordinator", "", "coordinator base URL (default from config)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
