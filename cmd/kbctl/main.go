// Package main is the command-line client that manages the knowledge base directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"kb-rag-api/internal/config"
	"kb-rag-api/internal/wire"
	"kb-rag-api/pkg/logger"
)

var Version = "dev"

// app is built lazily by commands that touch the knowledge base.
type app struct {
	configDir string
	logLevel  string

	core    *wire.Core
	cleanup func()
}

func (a *app) init(ctx context.Context) error {
	if a.core != nil {
		return nil
	}
	cfg, err := config.LoadFrom(a.configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := a.logLevel
	if level == "" {
		level = cfg.Observability.Logging.Level
	}
	logger.Init(level, "text")

	core, cleanup, err := wire.InitializeCore(ctx, cfg)
	if err != nil {
		return err
	}
	a.core, a.cleanup = core, cleanup
	return nil
}

func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kbctl",
		Short:         "Manage and query the knowledge base",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&a.configDir, "config", config.DefaultDir, "Configuration directory")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newIngestCmd(a))
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newDeleteCategoryCmd(a))
	cmd.AddCommand(newClearCmd(a))
	cmd.AddCommand(newStatsCmd(a))
	cmd.AddCommand(newAskCmd(a))
	return cmd
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
