// Package cmd provides the CLI commands for tdbvs, the vector
// similarity search engine's command-line entrypoint, in the teacher's
// cmd/amanmcp/cmd one-file-per-subcommand style.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dudoslav/TileDB-Vector-Search/internal/group"
	"github.com/dudoslav/TileDB-Vector-Search/internal/storage"
	"github.com/dudoslav/TileDB-Vector-Search/internal/tdblog"
)

var (
	dataDir  string
	logLevel string

	loggingCleanup func()
)

// NewRootCmd creates the root command for the tdbvs CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tdbvs",
		Short: "Vector similarity search engine",
		Long: `tdbvs stores fixed-dimensional vector collections in an
append-structured, timestamp-versioned store and answers k-nearest-
neighbor queries under Euclidean distance, with Flat and IVF-Flat
index families and incremental insert/delete/replace updates.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "directory groups are stored under")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newConsolidateCmd())
	cmd.AddCommand(newGroupCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startLogging(_ *cobra.Command, _ []string) error {
	cfg := tdblog.DefaultConfig()
	cfg.Level = logLevel
	cfg.FilePath = filepath.Join(dataDir, "logs", "tdbvs.log")

	logger, cleanup, err := tdblog.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// openStore opens the sqlite-backed store for the configured data-dir.
func openStore() (*storage.SQLiteStore, error) {
	return storage.OpenStore(filepath.Join(dataDir, "tdbvs.db"), storage.Options{})
}

// openGroup opens an existing group at uri against the configured store.
func openGroup(ctx context.Context, store *storage.SQLiteStore, uri string) (*group.Group, error) {
	return group.Open(ctx, store, uri)
}
