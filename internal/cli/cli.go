// Package cli implements the mybget command-line interface.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/mybget/pkg/buildinfo"
	"github.com/matzehuels/mybget/pkg/config"
	"github.com/matzehuels/mybget/pkg/manager"
)

// appName is the application name used for display.
const appName = config.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// configDir overrides the configuration directory (--config-dir).
	configDir string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "mybget manages MyBible modules from multiple registries",
		Long:         `mybget downloads MyBible module registries, merges them into one searchable catalog, and installs, upgrades and removes modules in your MyBible directory.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configDir, "config-dir", "", "configuration directory (default: $"+config.EnvDir+" or the OS config dir)")

	root.AddCommand(c.updateCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.searchCommand())
	root.AddCommand(c.infoCommand())
	root.AddCommand(c.versionsCommand())
	root.AddCommand(c.installCommand())
	root.AddCommand(c.upgradeCommand())
	root.AddCommand(c.removeCommand("remove"))
	root.AddCommand(c.removeCommand("uninstall"))
	root.AddCommand(c.sourcesCommand())
	root.AddCommand(c.setPathCommand())
	root.AddCommand(c.reinitCommand())
	root.AddCommand(c.purgeCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Manager Factory
// =============================================================================

// loadConfig loads the configuration from --config-dir or the default
// location.
func (c *CLI) loadConfig() (*config.Config, error) {
	dir := c.configDir
	if dir == "" {
		var err error
		if dir, err = config.Dir(); err != nil {
			return nil, err
		}
	}
	return config.Load(dir)
}

// openManager opens a manager for the configured directory. The caller
// must close it.
func (c *CLI) openManager(ctx context.Context) (*manager.Manager, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return manager.New(ctx, manager.Options{Config: cfg, Logger: c.Logger})
}

// withManager runs fn with an open manager.
func (c *CLI) withManager(ctx context.Context, fn func(m *manager.Manager) error) error {
	m, err := c.openManager(ctx)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
