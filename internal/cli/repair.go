package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/validator"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
)

// NewRepairCommand creates the repair command.
func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	var actorFlag string

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Apply the automatic ledger repairs",
		Long: `Clear amendment references to missing records and soft-delete
duplicate drafts. Repairs are idempotent: a second run changes nothing.
Voided amendment targets are reported by check but never auto-repaired.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := domain.ParseActorID(actorFlag)
			if err != nil {
				return err
			}
			return runRepair(rootOpts, cmd, actor)
		},
	}

	cmd.Flags().StringVar(&actorFlag, "actor", "", "actor id recorded on repair audit events (required)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func runRepair(opts *RootOptions, cmd *cobra.Command, actor domain.ActorID) error {
	e, err := open(opts)
	if err != nil {
		return err
	}
	defer e.close()

	svc := validator.NewService(e.stores, e.auditor, nil)
	result, err := svc.Repair(cmd.Context(), actor)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(out, "orphans cleared:    %d\n", result.OrphansCleared)
	fmt.Fprintf(out, "duplicates removed: %d\n", result.DuplicatesRemoved)
	return nil
}
