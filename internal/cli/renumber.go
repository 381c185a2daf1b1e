package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/validator"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/rmid"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
)

// NewRenumberCommand creates the renumber command.
func NewRenumberCommand(rootOpts *RootOptions) *cobra.Command {
	var actorFlag string

	cmd := &cobra.Command{
		Use:   "renumber <subject-id> <new-group>",
		Short: "Move a legacy subject into the supported group range",
		Long: fmt.Sprintf(`Assign a subject a new group number in the supported range %d-%d,
typically to move a legacy import out of a wider historical range.
The move is recorded as a migration audit event. The target group must
be free for the subject's base within its portfolio.`, rmid.GroupMin, rmid.GroupMax),
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			subjectID, err := domain.ParseSubjectID(args[0])
			if err != nil {
				return err
			}
			newGroup, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("new-group must be a number: %w", err)
			}
			actor, err := domain.ParseActorID(actorFlag)
			if err != nil {
				return err
			}
			return runRenumber(rootOpts, cmd, subjectID, newGroup, actor)
		},
	}

	cmd.Flags().StringVar(&actorFlag, "actor", "", "actor id recorded on the migration audit event (required)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func runRenumber(opts *RootOptions, cmd *cobra.Command, subjectID domain.SubjectID, newGroup int, actor domain.ActorID) error {
	e, err := open(opts)
	if err != nil {
		return err
	}
	defer e.close()

	svc := validator.NewService(e.stores, e.auditor, nil)
	if err := svc.RenumberSubject(cmd.Context(), subjectID, newGroup, actor); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "subject %s moved to group %d\n", subjectID, newGroup)
	return nil
}
