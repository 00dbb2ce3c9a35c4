package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/mybget/pkg/buildinfo"
	errs "github.com/matzehuels/mybget/pkg/errors"
)

// SetVersion sets the version information displayed by --version.
// This is typically called by the main package during initialization with
// values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	if v != "" {
		buildinfo.Version = v
	}
	if c != "" {
		buildinfo.Commit = c
	}
	if d != "" {
		buildinfo.Date = d
	}
}

// Execute runs the mybget CLI with the given arguments.
//
// Logging goes to stderr at info level; --verbose (-v) switches to debug.
// Errors are printed once with their user message; the returned error is
// only used for the exit status.
func Execute(ctx context.Context, args []string) error {
	var verbose bool

	c := New(os.Stderr, LogInfo)
	root := c.RootCommand()
	root.SilenceErrors = true
	root.SetArgs(args)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			c.SetLogLevel(LogDebug)
		}
	}

	err := root.ExecuteContext(ctx)
	if err != nil {
		printError("%s", errs.UserMessage(err))
		if errs.IsFatal(err) {
			printDetail("configuration problem, check %s", configHint(c))
		}
	}
	return err
}

func configHint(c *CLI) string {
	if c.configDir != "" {
		return c.configDir
	}
	return "'" + appName + " cache path'"
}
