package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/mybget/pkg/manager"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear local caches",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand. It is purge
// without the prompt.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear cached registries, downloads and the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				if err := m.Purge(ctx, false); err != nil {
					return err
				}
				printSuccess("Cache cleared")
				printDetail("Directory: %s", m.Config().CacheDir())
				return nil
			})
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration and cache locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			printKeyValue("Config", cfg.Dir())
			printKeyValue("Sources", cfg.SourcesDir())
			printKeyValue("Cache", cfg.CacheDir())
			printKeyValue("Catalog", cfg.CatalogPath())
			printKeyValue("State", cfg.StateDir())
			modules := cfg.ModulePath
			if modules == "" {
				modules = StyleDim.Render("not set (" + appName + " set-path <dir>)")
			}
			printKeyValue("Modules", modules)
			return nil
		},
	}
}
