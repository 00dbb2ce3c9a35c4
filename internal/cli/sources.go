package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/manager"
)

// sourcesCommand creates the sources command.
func (c *CLI) sourcesCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List configured registries and their last update status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				sources, warnings, err := m.Sources(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(sources)
				}
				if len(sources) == 0 {
					printInfo("No sources configured")
					printNextStep("Write the default sources with", appName+" reinit")
					return nil
				}
				fmt.Println(sourceTable(sources))
				for _, w := range warnings {
					printWarning("%v", w)
				}
				printDetail("Directory: %s", m.Config().SourcesDir())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// setPathCommand creates the set-path command.
func (c *CLI) setPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-path <dir>",
		Short: "Set the MyBible module directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				dir, err := m.SetInstallDir(ctx, args[0])
				if err != nil {
					return err
				}
				printSuccess("Module directory set to %s", StyleValue.Render(dir))
				return nil
			})
		},
	}
}

// reinitCommand creates the reinit command.
func (c *CLI) reinitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reinit",
		Short: "Restore the default registry sources",
		Long: `Write the default registry descriptors into the sources directory.

Existing descriptors are kept unless --force is given. Descriptors that are
not among the defaults are never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				written, err := m.Reinit(force)
				if err != nil {
					return err
				}
				if len(written) == 0 {
					printInfo("Default sources already present")
					printNextStep("Overwrite them with", appName+" reinit --force")
					return nil
				}
				printSuccess("Wrote %d source descriptors", len(written))
				for _, p := range written {
					printFile(p)
				}
				printNextStep("Refresh the catalog with", appName+" update")
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing default descriptors")
	return cmd
}

// purgeCommand creates the purge command.
func (c *CLI) purgeCommand() *cobra.Command {
	var full, yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove cached registries, downloads and the catalog",
		Long: `Remove cached registries, downloaded archives, stored ETags and the
catalog. Installed modules and their records are kept.

With --full the whole configuration directory is removed, including
settings, sources and install records. Installed module files stay in the
MyBible directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				prompt := "Remove all cached data?"
				if full {
					prompt = "Remove the whole configuration directory?"
				}
				ok, err := confirm(prompt)
				if err != nil {
					return errs.Wrap(errs.ErrCodeInvalidInput, err, "read confirmation")
				}
				if !ok {
					printInfo("Aborted")
					return nil
				}
			}
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				dir := m.Config().Dir()
				if err := m.Purge(ctx, full); err != nil {
					return err
				}
				if full {
					printSuccess("Removed %s", dir)
				} else {
					printSuccess("Cache purged")
					printNextStep("Rebuild the catalog with", appName+" update")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "remove the whole configuration directory")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
