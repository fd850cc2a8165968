package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/lupa/internal/application/extraction"
	"github.com/turtacn/lupa/pkg/errors"
)

type validateOptions struct {
	modelPath    string
	allBuiltins  bool
	strict       bool
	showPatterns bool
}

// NewValidateCmd builds `lupa validate`, which compiles a model and reports
// its warnings.
func NewValidateCmd() *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compile a model file and report warnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return runValidate(ctx, cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.modelPath, "model", "m", "", "model file (.json, .yaml, .yml)")
	f.BoolVar(&opts.allBuiltins, "all-builtins", false, "enable every built-in recognizer")
	f.BoolVar(&opts.strict, "strict", false, "fail when the model has warnings")
	f.BoolVar(&opts.showPatterns, "patterns", false, "list the compiled patterns")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func runValidate(ctx context.Context, out io.Writer, opts *validateOptions) error {
	svc, err := loadService(ctx, opts.modelPath, opts.allBuiltins)
	if err != nil {
		return err
	}
	info, err := svc.Model()
	if err != nil {
		return err
	}

	if opts.showPatterns {
		patterns, err := svc.Patterns()
		if err != nil {
			return err
		}
		renderPatterns(out, patterns)
	}

	printWarnings(out, info.Warnings)
	fmt.Fprintf(out, "%s %d patterns, %d builtins, %d warnings (version %s)\n",
		color.GreenString("compiled:"), info.Patterns, len(info.Builtins), len(info.Warnings), shortVersion(info.Version))

	if opts.strict && len(info.Warnings) > 0 {
		return errors.Newf(errors.ErrCodeModelInvalid, "model has %d warnings", len(info.Warnings))
	}
	return nil
}

func renderPatterns(out io.Writer, patterns []*extraction.PatternInfo) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Entity", "Pattern", "Matcher"})
	table.SetAutoWrapText(false)
	for _, p := range patterns {
		table.Append([]string{p.Entity, p.Source, truncate(p.Matcher, 60)})
	}
	table.Render()
}

func shortVersion(v string) string {
	if len(v) > 12 {
		return v[:12]
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
