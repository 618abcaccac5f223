package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okayu/mangasync/internal/config"
	"github.com/okayu/mangasync/internal/database"
	"github.com/okayu/mangasync/internal/syncserver"
)

// TokenCreateCommand issues a new API token for the sync server.
type TokenCreateCommand struct {
	DatabasePath string
	Label        string
}

// NewTokenCreateCommand creates a new TokenCreateCommand
func NewTokenCreateCommand() *TokenCreateCommand {
	return &TokenCreateCommand{}
}

// ParseFlags parses command line flags
func (cmd *TokenCreateCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("token-create", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the library database file")
	fs.StringVar(&cmd.Label, "label", "", "Human-readable label for the token (e.g. a device name)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s token-create [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Issue a new API token for the self-hosted sync server.\n")
		fmt.Fprintf(os.Stderr, "The token is printed once and cannot be recovered later.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s token-create -label tablet\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Label == "" {
		return fmt.Errorf("a -label is required")
	}
	return nil
}

// Run executes the token-create command
func (cmd *TokenCreateCommand) Run() error {
	absDBPath, err := filepath.Abs(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for database: %w", err)
	}

	db, err := database.NewDatabase(absDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	tokens := syncserver.NewTokenStore(db.DB)
	plaintext, token, err := tokens.Create(cmd.Label)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	fmt.Printf("Created token %d (%s):\n\n  %s\n\n", token.ID, token.Label, plaintext)
	fmt.Println("Set this as SYNC_API_TOKEN on the device that should sync here.")
	return nil
}

// TokenRevokeCommand deletes an API token by id.
type TokenRevokeCommand struct {
	DatabasePath string
	ID           uint
}

// NewTokenRevokeCommand creates a new TokenRevokeCommand
func NewTokenRevokeCommand() *TokenRevokeCommand {
	return &TokenRevokeCommand{}
}

// ParseFlags parses command line flags
func (cmd *TokenRevokeCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("token-revoke", flag.ExitOnError)

	var id uint64
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the library database file")
	fs.Uint64Var(&id, "id", 0, "ID of the token to revoke")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s token-revoke -id <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Revoke an API token. Devices using it can no longer sync.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if id == 0 {
		return fmt.Errorf("an -id is required")
	}
	cmd.ID = uint(id)
	return nil
}

// Run executes the token-revoke command
func (cmd *TokenRevokeCommand) Run() error {
	absDBPath, err := filepath.Abs(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for database: %w", err)
	}

	db, err := database.NewDatabase(absDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	tokens := syncserver.NewTokenStore(db.DB)
	if err := tokens.Revoke(cmd.ID); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	fmt.Printf("Revoked token %d\n", cmd.ID)
	return nil
}
