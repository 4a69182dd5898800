package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatlab/chatlab/internal/config"
	"github.com/chatlab/chatlab/internal/store"
)

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatlab",
	Short: "Local-first chat-log analytics",
	Long: `chatlab imports chat export files from messaging platforms (LINE,
WeChat, QQ and others) into a local corpus and computes statistics over it:
activity ranking, dragon-king days, monologue streaks, repeat chains, and
catchphrases.

All data stays in a single SQLite file under the chatlab home directory.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.Data.DataDir, err)
		}

		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context, enabling
// graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// openStore opens the corpus store read-write, applying pending migrations.
func openStore() (*store.Store, error) {
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.DatabasePath(), err)
	}
	return st, nil
}

// timezone resolves the configured corpus timezone, falling back to the
// host local zone.
func timezone() *time.Location {
	if cfg == nil || cfg.Import.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(cfg.Import.Timezone)
	if err != nil {
		logger.Warn("invalid timezone in config, using host zone", "timezone", cfg.Import.Timezone)
		return time.Local
	}
	return loc
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.chatlab/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides CHATLAB_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
