package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/mybget/pkg/install"
	"github.com/matzehuels/mybget/pkg/manager"
	"github.com/matzehuels/mybget/pkg/store"
)

// listCommand creates the list command.
func (c *CLI) listCommand() *cobra.Command {
	var (
		opts   manager.ListOptions
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available, installed or upgradable modules",
		Example: `  mybget list
  mybget list --installed
  mybget list --upgradable
  mybget list --language ru --type commentaries`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				mods, err := m.List(ctx, opts)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(mods)
				}
				if len(mods) == 0 {
					printInfo("No modules found")
					return nil
				}
				fmt.Println(moduleTable(mods))
				printDetail("%d modules", len(mods))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&opts.Available, "available", "a", false, "list modules offered by the catalog (default)")
	cmd.Flags().BoolVarP(&opts.Installed, "installed", "i", false, "list installed modules")
	cmd.Flags().BoolVarP(&opts.Upgradable, "upgradable", "u", false, "list installed modules with a newer version")
	cmd.Flags().StringVarP(&opts.Language, "language", "l", "", "filter by language code")
	cmd.Flags().StringVarP(&opts.ModuleType, "type", "t", "", "filter by module type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

// searchCommand creates the search command.
func (c *CLI) searchCommand() *cobra.Command {
	var (
		q      store.Query
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search the catalog",
		Long: `Search the catalog by name, description, language and type.

All filters match case-insensitively and must all match. The positional
text matches either the name or the description.`,
		Example: `  mybget search kjv
  mybget search -n rst -l ru
  mybget search -d "strong" -t dictionary`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				q.Text = args[0]
			}
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				mods, err := m.Search(ctx, q)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(mods)
				}
				if len(mods) == 0 {
					printInfo("No modules match")
					return nil
				}
				fmt.Println(moduleTable(mods))
				printDetail("%d matches", len(mods))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&q.Text, "query", "q", "", "match name or description")
	cmd.Flags().StringVarP(&q.Name, "name", "n", "", "match module name")
	cmd.Flags().StringVarP(&q.Description, "description", "d", "", "match description")
	cmd.Flags().StringVarP(&q.Language, "language", "l", "", "filter by language code")
	cmd.Flags().StringVarP(&q.ModuleType, "type", "t", "", "filter by module type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

// infoCommand creates the info command.
func (c *CLI) infoCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info <module>",
		Short: "Show details of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				mod, err := m.Info(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(mod)
				}
				printModule(mod)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// printModule prints the details of one module.
func printModule(mod *manager.Module) {
	fmt.Println(StyleTitle.Render(mod.ID))
	if mod.Entry != nil && mod.Entry.Title != "" {
		printKeyValue("Title", mod.Entry.Title)
	}
	printKeyValue("Description", mod.Description())
	printKeyValue("Language", mod.Language())
	printKeyValue("Type", mod.ModuleType())
	if e := mod.Entry; e != nil {
		printKeyValue("Latest", e.LatestVersion+" ("+e.LatestSourceID+")")
		latest := e.Latest()
		if latest.SizeBytes != nil {
			printKeyValue("Size", formatSize(*latest.SizeBytes))
		}
		printKeyValue("Download", StyleLink.Render(latest.DownloadURL))
	}
	printKeyValue("State", mod.Status.Kind.String())
	if rec := mod.Status.Record; rec != nil {
		printKeyValue("Installed", rec.InstalledVersion)
		printKeyValue("Installed at", rec.InstalledAt.Local().Format("2006-01-02 15:04"))
		printKeyValue("Files", strings.Join(rec.Files, ", "))
	} else if len(mod.Status.Files) > 0 {
		printKeyValue("Files", strings.Join(mod.Status.Files, ", "))
	}
	switch {
	case mod.Status.Kind == install.Upgradable:
		printNextStep("Upgrade with", appName+" upgrade "+mod.ID)
	case mod.Status.Kind == install.NotInstalled:
		printNextStep("Install with", appName+" install "+mod.ID)
	}
}

// versionsCommand creates the versions command.
func (c *CLI) versionsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "versions <module>",
		Short: "List every version of a module across sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				vl, err := m.ListVersions(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(vl)
				}
				fmt.Println(StyleTitle.Render(vl.ModuleID))
				fmt.Println(versionTable(vl))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
