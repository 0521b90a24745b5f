package main

import (
	"fmt"

	"github.com/gomlx/go-zhwordpiece/internal/corpus"
	"github.com/gomlx/go-zhwordpiece/internal/encode"
	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode <corpus file or directory>...",
		Short: "Tokenize a corpus, one text per line, into a Parquet file of token ids",
		Long: "Tokenize a corpus, one text per line, into a Parquet file with one row per line: its index, the\n" +
			"token ids and an attention mask of ones. Rows are not truncated nor padded.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			tok, err := newTokenizer(cfg)
			if err != nil {
				return err
			}
			lines, err := corpus.ReadLines(args, cfg.Corpus.MinBytes, cfg.Corpus.MaxLines)
			if err != nil {
				return err
			}
			if cfg.PreTokenizer.NFC {
				for i, line := range lines {
					lines[i] = normalizeInput(cfg.PreTokenizer, line)
				}
			}
			stats, err := encode.EncodeFile(cmd.Context(), tok, lines, cfg.Encode.Output, encode.Options{
				Workers:   cfg.Encode.Workers,
				BatchSize: cfg.Encode.BatchSize,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, %d tokens (run %s)\n",
				cfg.Encode.Output, stats.Rows, stats.Tokens, stats.RunID)
			return err
		},
	}
	return cmd
}
