package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/mybget/pkg/manager"
)

// updateCommand creates the update command.
func (c *CLI) updateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Refresh the module catalog from all sources",
		Long: `Download every configured registry and rebuild the local catalog.

Registries that have not changed since the last update are not downloaded
again. A registry that cannot be reached keeps the modules it offered last
time and is reported as stale.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				prog := newProgress()
				spinner := newSpinner(ctx, "Updating catalog...")
				spinner.Start()
				report, err := m.Update(ctx)
				spinner.Stop()
				if err != nil {
					return err
				}
				printUpdateReport(report)
				prog.done(fmt.Sprintf("Catalog updated: %d modules", report.Modules))
				if !report.Changed {
					printDetail("no changes since the last update")
				}
				return nil
			})
		},
	}
}

// printUpdateReport prints one line per source.
func printUpdateReport(r *manager.UpdateReport) {
	for _, s := range r.Sources {
		line := fmt.Sprintf("%-24s %s", s.Source.ID, s.Outcome)
		if s.Records > 0 {
			line += fmt.Sprintf(" (%d modules)", s.Records)
		}
		switch s.Outcome {
		case manager.OutcomeFresh, manager.OutcomeUnchanged:
			printInfo("%s", line)
		default:
			printWarning("%s", line)
			if s.Err != nil {
				printDetail("%v", s.Err)
			}
		}
	}
	for _, w := range r.Warnings {
		if isSourceWarning(r, w) {
			continue
		}
		printWarning("%v", w)
	}
}

// isSourceWarning reports whether w was already printed with its source.
func isSourceWarning(r *manager.UpdateReport, w error) bool {
	for _, s := range r.Sources {
		if s.Err == w {
			return true
		}
	}
	return false
}
