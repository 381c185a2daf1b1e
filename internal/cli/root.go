// Package cli implements the vaultctl maintenance commands: consistency
// checks, automatic repairs and legacy subject renumbering. The commands
// talk to the database directly so they work against a stopped server.
package cli

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/store"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/platform/logger"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/platform/postgres"
	auditpg "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/store/postgres"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/publisher"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	PostgresURL string
	Format      string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for vaultctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vaultctl",
		Short: "Governance ledger maintenance tooling",
		Long:  "Consistency checks, repairs and legacy migrations for the governance ledger.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.PostgresURL == "" {
				opts.PostgresURL = os.Getenv("VAULT_POSTGRES_URL")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.PostgresURL, "postgres-url", "", "PostgreSQL connection URL (defaults to VAULT_POSTGRES_URL)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewRepairCommand(opts))
	cmd.AddCommand(NewRenumberCommand(opts))
	cmd.AddCommand(NewMigrateLegacyCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// env holds everything an opened command needs.
type env struct {
	stores  *store.Stores
	auditor *publisher.Publisher
	db      *sql.DB
}

func (e *env) close() {
	_ = e.auditor.Close()
	_ = e.db.Close()
}

// open connects to the database and builds the store bundle.
func open(opts *RootOptions) (*env, error) {
	if opts.PostgresURL == "" {
		return nil, fmt.Errorf("no database configured: set --postgres-url or VAULT_POSTGRES_URL")
	}
	db, err := postgres.New(opts.PostgresURL)
	if err != nil {
		return nil, err
	}
	log := logger.New()
	auditor := publisher.NewPublisher(auditpg.New(db), publisher.WithLogger(log))
	return &env{
		stores:  store.NewPostgresStores(db),
		auditor: auditor,
		db:      db,
	}, nil
}
