package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/rmid"
)

// MigratedRow is one legacy id translated to canonical form.
type MigratedRow struct {
	Line      int    `json:"line"`
	Input     string `json:"input"`
	Canonical string `json:"canonical"`
}

// FlaggedRow is one id that did not parse and needs manual review.
type FlaggedRow struct {
	Line   int    `json:"line"`
	Input  string `json:"input"`
	Reason string `json:"reason"`
}

// MigrationReport is the full outcome of one migrate-legacy run.
type MigrationReport struct {
	Migrated []MigratedRow `json:"migrated"`
	Flagged  []FlaggedRow  `json:"flagged"`
}

// NewMigrateLegacyCommand creates the migrate-legacy command.
func NewMigrateLegacyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate-legacy <file>",
		Short: "Translate legacy display ids into canonical form",
		Long: `Read one display id per line from a file (use "-" for stdin) and print
the canonical BASE-GROUP.SUB form for each. The legacy sub-less
BASE-GROUP form maps to the subject's first entry. Rows that do not
parse are flagged for manual review, never defaulted, and a run with
flagged rows exits non-zero. Blank lines and lines starting with # are
skipped.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateLegacy(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runMigrateLegacy(opts *RootOptions, cmd *cobra.Command, path string) error {
	var reader io.Reader
	if path == "-" {
		reader = cmd.InOrStdin()
	} else {
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		reader = file
	}

	report, err := migrateLegacy(reader)
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
		for _, row := range report.Migrated {
			fmt.Fprintf(out, "%6d  %s -> %s\n", row.Line, row.Input, row.Canonical)
		}
		for _, row := range report.Flagged {
			fmt.Fprintf(out, "%6d  flagged %q  %s\n", row.Line, row.Input, row.Reason)
		}
		fmt.Fprintf(out, "%d migrated, %d flagged\n", len(report.Migrated), len(report.Flagged))
	}

	if len(report.Flagged) > 0 {
		return fmt.Errorf("%d rows flagged for manual review", len(report.Flagged))
	}
	return nil
}

// migrateLegacy runs every row through the codec. A row that fails to
// parse is flagged with the parse error; it is never repaired in place.
func migrateLegacy(reader io.Reader) (*MigrationReport, error) {
	report := &MigrationReport{}
	scanner := bufio.NewScanner(reader)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := rmid.Parse(text)
		if err != nil {
			report.Flagged = append(report.Flagged, FlaggedRow{Line: line, Input: text, Reason: err.Error()})
			continue
		}
		report.Migrated = append(report.Migrated, MigratedRow{Line: line, Input: text, Canonical: id.String()})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ids: %w", err)
	}
	return report, nil
}
