package cli

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/lupa/pkg/types/entity"
)

// NewTokenizeCmd builds `lupa tokenize`, which shows the tokens and fuzzy
// codes the matcher sees.
func NewTokenizeCmd() *cobra.Command {
	var (
		modelPath string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "tokenize [text...]",
		Short: "Show the tokens of a text",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			svc, err := loadService(ctx, modelPath, false)
			if err != nil {
				return err
			}
			tokens, err := svc.Tokenize(ctx, text)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tokens)
			}
			renderTokens(cmd.OutOrStdout(), tokens)
			return nil
		},
	}
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "model file; selects the tokenizer locale")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tokens as JSON")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func renderTokens(out io.Writer, tokens []*entity.Entity) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"#", "Start", "End", "Text", "Token", "Fuzzy"})
	for i, tok := range tokens {
		term, fuzzy := "", ""
		if tr, ok := entity.TokenOf(tok); ok {
			term = tr.Token
			fuzzy = strings.Join(tr.FuzzyTokens, " ")
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			strconv.Itoa(tok.Start),
			strconv.Itoa(tok.End),
			tok.Text,
			term,
			fuzzy,
		})
	}
	table.Render()
}
