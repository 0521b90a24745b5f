package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Convert a model between vocab.txt, serialized model (.json) and tokenizer.json formats",
		Long: "Convert a model between formats. The input may be a vocab.txt file, a serialized model (*.json)\n" +
			"or a HuggingFace tokenizer.json file. The output is a serialized model if it ends with .json,\n" +
			"a vocab.txt file otherwise.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			model, err := loadModel(cfg.Model, args[0])
			if err != nil {
				return err
			}
			if err := saveModel(model, args[1]); err != nil {
				return err
			}
			klog.V(1).Infof("converted %q to %q", args[0], args[1])
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tokens\n", args[1], model.GetVocabSize())
			return err
		},
	}
	return cmd
}
