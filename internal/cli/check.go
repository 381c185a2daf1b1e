package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/validator"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the ledger consistency checks",
		Long: `Run every consistency check over the full ledger: hash chains,
finalization metadata, amendment references, subject number ranges and
duplicate detection. Exits non-zero when integrity errors are found.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
	e, err := open(opts)
	if err != nil {
		return err
	}
	defer e.close()

	svc := validator.NewService(e.stores, e.auditor, nil)
	report, err := svc.Run(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		if report.Valid {
			fmt.Fprintln(out, "ledger is consistent")
		}
		for _, f := range report.Errors {
			fmt.Fprintf(out, "error   %-14s %s  %s\n", f.Check, f.EntityID, f.Message)
		}
		for _, f := range report.Warnings {
			fmt.Fprintf(out, "warning %-14s %s  %s\n", f.Check, f.EntityID, f.Message)
		}
	}

	if !report.Valid {
		return fmt.Errorf("ledger has %d integrity errors", len(report.Errors))
	}
	return nil
}
