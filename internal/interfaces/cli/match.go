package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/lupa/internal/application/extraction"
	"github.com/turtacn/lupa/internal/intelligence/engine"
	"github.com/turtacn/lupa/pkg/client"
	"github.com/turtacn/lupa/pkg/errors"
	"github.com/turtacn/lupa/pkg/types/entity"
)

// Views accepted by --view.
const (
	ViewSpans = "spans"
	ViewTree  = "tree"
	ViewJSON  = "json"
)

type matchOptions struct {
	modelPath       string
	server          string
	view            string
	allBuiltins     bool
	locale          string
	includeInternal bool
}

// NewMatchCmd builds `lupa match`. The text is taken from the arguments or,
// when none are given, from stdin. With --server the text is sent to a
// running lupa API instead of a local model file.
func NewMatchCmd() *cobra.Command {
	opts := &matchOptions{}
	cmd := &cobra.Command{
		Use:   "match [text...]",
		Short: "Extract entities from text with a model file",
		Example: `  lupa match --model greeting.yaml "hello there"
  echo "red car" | lupa match --model rides.json --view tree
  lupa match --server http://localhost:8080 "hello there"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			return runMatch(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, text)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.modelPath, "model", "m", "", "model file (.json, .yaml, .yml)")
	f.StringVar(&opts.server, "server", "", "base URL of a lupa API server to match against")
	f.StringVar(&opts.view, "view", ViewSpans, "output view: spans|tree|json")
	f.BoolVar(&opts.allBuiltins, "all-builtins", false, "enable every built-in recognizer")
	f.StringVar(&opts.locale, "locale", "", "locale passed to built-in recognizers")
	f.BoolVar(&opts.includeInternal, "include-internal", false, "include token and internal entities")
	cmd.MarkFlagsMutuallyExclusive("model", "server")
	return cmd
}

func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeBadRequest, "read stdin")
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// loadService compiles the model file into a ready service.
func loadService(ctx context.Context, modelPath string, allBuiltins bool) (extraction.Service, error) {
	svc := extraction.NewService(extraction.FileSource{Path: modelPath}, extraction.Config{UseAllBuiltins: allBuiltins}, nil)
	if err := svc.Reload(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func runMatch(ctx context.Context, out, errOut io.Writer, opts *matchOptions, text string) error {
	switch opts.view {
	case ViewSpans, ViewTree, ViewJSON:
	default:
		return errors.Newf(errors.ErrCodeBadRequest, "unknown view %q; expected spans|tree|json", opts.view)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if opts.server != "" {
		return runRemoteMatch(ctx, out, errOut, opts, text)
	}
	if opts.modelPath == "" {
		return errors.New(errors.ErrCodeBadRequest, "one of --model or --server is required")
	}
	svc, err := loadService(ctx, opts.modelPath, opts.allBuiltins)
	if err != nil {
		return err
	}
	res, err := svc.Match(ctx, &extraction.MatchInput{
		Text:            text,
		Locale:          opts.locale,
		IncludeInternal: opts.includeInternal,
	})
	if err != nil {
		return err
	}

	if warnings, _ := svc.Warnings(); len(warnings) > 0 && opts.view != ViewJSON {
		printWarnings(errOut, warnings)
	}
	return renderEntities(out, opts.view, text, res.Entities)
}

func runRemoteMatch(ctx context.Context, out, errOut io.Writer, opts *matchOptions, text string) error {
	c, err := client.NewClient(opts.server)
	if err != nil {
		return err
	}
	res, err := c.Match(ctx, &client.MatchRequest{
		Text:            text,
		Locale:          opts.locale,
		IncludeInternal: opts.includeInternal,
	})
	if err != nil {
		return err
	}
	if opts.view != ViewJSON {
		if warnings, err := c.Warnings(ctx); err == nil && len(warnings) > 0 {
			printWarnings(errOut, warnings)
		}
	}
	return renderEntities(out, opts.view, text, res.Entities)
}

func renderEntities(out io.Writer, view, text string, entities []*entity.Entity) error {
	switch view {
	case ViewJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entities)
	case ViewTree:
		writeLine(out, engine.VisualizeHierarchy(entities))
	default:
		writeLine(out, engine.VisualizeSpans(text, entities))
	}
	return nil
}

func writeLine(w io.Writer, s string) {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	fmt.Fprint(w, s)
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintln(w, color.YellowString(msg))
	}
}
