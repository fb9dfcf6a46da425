// Package cmd defines and implements the CLI commands for the boardmigrate
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"boardmigrate/internal/config"
	"boardmigrate/internal/logging"
)

var (
	cfgFile string
	debug   bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boardmigrate",
		Short: "Migrates board items into cloud storage with a spreadsheet ledger.",
		Long: `boardmigrate walks a Monday board page by page, uploads every item's
file attachments to Google Cloud Storage, and records one row per item
in a Google Sheets ledger. Progress is checkpointed to a state file so
an interrupted run resumes where it left off.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "force development logging")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newDocsCmd())
	cmd.AddCommand(newColumnsCmd())

	return cmd
}

// loadConfig reads configuration and builds the logger for a command run.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development || debug)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	// A .env file is optional; real environments set variables directly.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
