// Package cli implements the lupa command line.
package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/lupa/internal/app"
	"github.com/turtacn/lupa/internal/config"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	NoColor    bool
}

// NewRootCommand builds the lupa command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lupa",
		Short: "Rule-based entity extraction",
		Long: "lupa extracts typed entities from text using a declarative model of\n" +
			"pattern rules, built-in recognizers and fuzzy token matching.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", app.Version, GitCommit, BuildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.NoColor {
				color.NoColor = true
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (serve, worker, migrate)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		NewMatchCmd(),
		NewValidateCmd(),
		NewTokenizeCmd(),
		NewServeCmd(opts),
		NewWorkerCmd(opts),
		NewMigrateCmd(opts),
		NewModelCmd(opts),
	)
	return cmd
}

// Execute runs the root command and prints the error, if any, to stderr.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		PrintError(root, err)
		return err
	}
	return nil
}

// PrintError writes err to the command's stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.RedString("Error:"), err.Error())
}

// loadConfig reads the config file when given and the LUPA_* environment
// otherwise.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = strings.ToLower(opts.LogLevel)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// bootstrap loads the config and builds the process logger.
func bootstrap(opts *RootOptions) (*config.Config, logging.Logger, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "initialize logger")
	}
	return cfg, log, nil
}

// ExecuteSubcommand runs the named subcommand with the process arguments
// appended, so that single-purpose binaries share the CLI's flags.
func ExecuteSubcommand(name string, args []string) error {
	root := NewRootCommand()
	root.SetArgs(append([]string{name}, args...))
	if err := root.Execute(); err != nil {
		PrintError(root, err)
		return err
	}
	return nil
}
