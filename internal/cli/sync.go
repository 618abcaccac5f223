// Package cli implements the one-shot commands exposed by the binary.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okayu/mangasync/internal/config"
	"github.com/okayu/mangasync/internal/database"
	"github.com/okayu/mangasync/internal/entrypoint"
	"github.com/okayu/mangasync/internal/settingsstore"
)

// SyncCommand runs a single library sync cycle and exits.
type SyncCommand struct {
	DatabasePath string
	Backend      string
	Timeout      time.Duration
}

// NewSyncCommand creates a new SyncCommand
func NewSyncCommand() *SyncCommand {
	return &SyncCommand{}
}

// ParseFlags parses command line flags
func (cmd *SyncCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the library database file")
	fs.StringVar(&cmd.Backend, "backend", "", "Override the configured backend (dropbox, s3, selfhosted)")
	fs.DurationVar(&cmd.Timeout, "timeout", 10*time.Minute, "Overall timeout for the sync cycle")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sync [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Run one library sync cycle against the configured backend.\n\n")
		fmt.Fprintf(os.Stderr, "This command:\n")
		fmt.Fprintf(os.Stderr, "  1. Builds a snapshot of the local library\n")
		fmt.Fprintf(os.Stderr, "  2. Reconciles it with the remote copy\n")
		fmt.Fprintf(os.Stderr, "  3. Uploads the merged snapshot and applies it locally\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s sync\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s sync -backend s3\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s sync -db /data/library.db -timeout 5m\n", os.Args[0])
	}

	return fs.Parse(args)
}

// Run executes the sync command
func (cmd *SyncCommand) Run() error {
	absDBPath, err := filepath.Abs(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for database: %w", err)
	}

	cfg := config.NewConfig()
	cfg.Database.Path = absDBPath
	if cmd.Backend != "" {
		os.Setenv("SYNC_BACKEND", cmd.Backend)
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	settings := settingsstore.New(db)
	service, err := entrypoint.NewSyncService(cfg, db, settings)
	if err != nil {
		return err
	}

	fmt.Printf("Database: %s\n", cfg.Database.Path)
	fmt.Printf("Backend:  %s\n", settings.GetSyncConfig().Backend)

	ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()

	start := time.Now()
	if err := service.Sync(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("Sync completed in %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}
