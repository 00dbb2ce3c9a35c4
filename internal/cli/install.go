package cli

import (
	"github.com/spf13/cobra"

	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/install"
	"github.com/matzehuels/mybget/pkg/manager"
)

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	var (
		opts        manager.InstallOptions
		interactive bool
		lang, typ   string
	)

	cmd := &cobra.Command{
		Use:   "install <module>...",
		Short: "Install modules into the MyBible directory",
		Long: `Install one or more modules. Names may be separated by spaces or commas
and match case-insensitively. The latest version is installed unless
--version names another one.`,
		Example: `  mybget install KJV RST
  mybget install "KJV, TSK"
  mybget install KJV --version 2019-01-01
  mybget install -I --language ru`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				names := args
				if interactive {
					mods, err := m.List(ctx, manager.ListOptions{Language: lang, ModuleType: typ})
					if err != nil {
						return err
					}
					var available []manager.Module
					for _, mod := range mods {
						if mod.Status.Kind == install.NotInstalled || opts.Reinstall {
							available = append(available, mod)
						}
					}
					if len(available) == 0 {
						printInfo("Nothing to install")
						return nil
					}
					if names, err = pickModules(available); err != nil {
						return err
					}
					if len(names) == 0 {
						return nil
					}
				}

				spinner := newSpinner(ctx, "Installing...")
				spinner.Start()
				res, err := m.Install(ctx, names, opts)
				spinner.Stop()
				if err != nil {
					return err
				}
				return printBatch(res, "Installed")
			})
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "install this version instead of the latest")
	cmd.Flags().BoolVar(&opts.Reinstall, "reinstall", false, "remove and install again if already installed")
	cmd.Flags().BoolVarP(&interactive, "interactive", "I", false, "pick modules from a list")
	cmd.Flags().StringVarP(&lang, "language", "l", "", "with --interactive, only offer this language")
	cmd.Flags().StringVarP(&typ, "type", "t", "", "with --interactive, only offer this module type")

	return cmd
}

// upgradeCommand creates the upgrade command.
func (c *CLI) upgradeCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "upgrade [module]...",
		Short: "Upgrade installed modules to their latest version",
		Example: `  mybget upgrade KJV
  mybget upgrade --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				spinner := newSpinner(ctx, "Upgrading...")
				spinner.Start()
				res, err := m.Upgrade(ctx, args, all)
				spinner.Stop()
				if err != nil {
					return err
				}
				if all && len(res.Succeeded)+len(res.Skipped)+len(res.Failed) == 0 {
					printSuccess("All modules are up to date")
					return nil
				}
				return printBatch(res, "Upgraded")
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "upgrade every upgradable module")
	return cmd
}

// removeCommand creates the remove command under the given name.
func (c *CLI) removeCommand(use string) *cobra.Command {
	return &cobra.Command{
		Use:     use + " <module>...",
		Short:   "Remove installed modules",
		Example: "  mybget " + use + " KJV RST",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(m *manager.Manager) error {
				res, err := m.Remove(ctx, args)
				if err != nil {
					return err
				}
				return printBatch(res, "Removed")
			})
		},
	}
}

// printBatch prints the outcome of a batch operation and returns the
// combined failure, if any.
func printBatch(res *manager.BatchResult, verb string) error {
	for _, it := range res.Succeeded {
		if it.Version != "" {
			printSuccess("%s %s %s", verb, it.ModuleID, StyleDim.Render(it.Version))
		} else {
			printSuccess("%s %s", verb, it.ModuleID)
		}
		for _, f := range it.Files {
			printFile(f)
		}
	}
	for _, it := range res.Skipped {
		if it.Err == nil {
			printInfo("Skipped %s", it.Name)
			continue
		}
		printInfo("Skipped %s: %s", it.Name, errs.UserMessage(it.Err))
		if verb == "Installed" && errs.Is(it.Err, errs.ErrCodeAlreadyInstalled) {
			printNextStep("Reinstall with", appName+" install --reinstall "+it.Name)
		}
	}
	for _, it := range res.Failed {
		printError("%s: %s", it.Name, errs.UserMessage(it.Err))
	}
	if len(res.Failed) > 0 {
		code := errs.GetCode(res.Err())
		if code == "" {
			code = errs.ErrCodeInternal
		}
		return errs.New(code, "%d of %d modules failed",
			len(res.Failed), len(res.Succeeded)+len(res.Skipped)+len(res.Failed))
	}
	return nil
}
