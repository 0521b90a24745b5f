package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/go-zhwordpiece/tokenizers"
	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	tokenStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	unknownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	idStyle      = lipgloss.NewStyle().Faint(true)
)

func newTokenizeCmd() *cobra.Command {
	var (
		idsOnly   bool
		withSpans bool
		decode    bool
	)

	cmd := &cobra.Command{
		Use:   "tokenize [text...]",
		Short: "Tokenize the text given as arguments, or each line of the standard input",
		Long: "Tokenize the text given as arguments, or each line of the standard input.\n" +
			"With --decode the arguments are token ids, and the decoded text is printed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			tok, err := newTokenizer(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if decode {
				ids := make([]int, len(args))
				for i, arg := range args {
					ids[i], err = strconv.Atoi(arg)
					if err != nil {
						return errors.Wrapf(err, "invalid token id %q", arg)
					}
				}
				_, err = fmt.Fprintln(out, tok.Decode(ids))
				return err
			}

			printText := func(text string) error {
				var spans *inputSpans
				if cfg.PreTokenizer.NFC {
					text, spans = normalizeNFC(text)
				}
				tokens, err := tok.EncodeTokens(text)
				if err != nil {
					return err
				}
				for i := range tokens {
					tokens[i].Span = spans.Map(tokens[i].Span)
				}
				_, err = fmt.Fprintln(out, formatTokens(tok, tokens, idsOnly, withSpans))
				return err
			}
			if len(args) > 0 {
				return printText(strings.Join(args, " "))
			}
			return forEachLine(cmd.InOrStdin(), printText)
		},
	}

	cmd.Flags().BoolVar(&idsOnly, "ids", false, "Print only the token ids")
	cmd.Flags().BoolVar(&withSpans, "spans", false, "Print the byte span of each token in the input, before normalization")
	cmd.Flags().BoolVar(&decode, "decode", false, "Decode the token ids given as arguments")

	return cmd
}

func formatTokens(tok *tokenizers.Tokenizer, tokens []api.Token, idsOnly, withSpans bool) string {
	unkID, err := tok.SpecialTokenID(api.TokUnknown)
	hasUnk := err == nil
	parts := make([]string, len(tokens))
	for i, token := range tokens {
		if idsOnly {
			parts[i] = strconv.Itoa(token.ID)
			continue
		}
		style := tokenStyle
		if hasUnk && token.ID == unkID {
			style = unknownStyle
		}
		part := style.Render(token.Value) + idStyle.Render(fmt.Sprintf("(%d)", token.ID))
		if withSpans {
			part += idStyle.Render(fmt.Sprintf("[%d:%d]", token.Span.Start, token.Span.End))
		}
		parts[i] = part
	}
	return strings.Join(parts, " ")
}

// forEachLine calls fn with each line read from r.
func forEachLine(r io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "failed to read input")
}
