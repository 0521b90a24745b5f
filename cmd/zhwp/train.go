package main

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/gomlx/go-zhwordpiece/internal/config"
	"github.com/gomlx/go-zhwordpiece/internal/corpus"
	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
	"github.com/gomlx/go-zhwordpiece/tokenizers/chinesewordpiece"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// ModelFileName is the serialized model written next to the vocabulary by train.
const ModelFileName = "model.json"

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train <corpus file or directory>...",
		Short: "Train a vocabulary on a corpus, one text per line",
		Long: "Train a vocabulary on a corpus, one text per line, and save it as a vocab.txt file and a\n" +
			"serialized model in the output directory.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			paths, err := trainModel(cfg, args)
			if err != nil {
				return err
			}
			for _, path := range paths {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), path); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}

func newTrainer(cfg config.TrainConfig, prefix string) *chinesewordpiece.Trainer {
	special := make([]api.AddedToken, len(cfg.SpecialTokens))
	for i, content := range cfg.SpecialTokens {
		special[i] = api.AddedToken{Content: content, Special: true}
	}
	opts := []chinesewordpiece.TrainerOption{
		chinesewordpiece.WithVocabSize(cfg.VocabSize),
		chinesewordpiece.WithMinFrequency(cfg.MinFrequency),
		chinesewordpiece.WithShowProgress(cfg.ShowProgress),
		chinesewordpiece.WithSpecialTokens(special...),
		chinesewordpiece.WithTrainerContinuingSubwordPrefix(prefix),
	}
	if cfg.LimitAlphabet > 0 {
		opts = append(opts, chinesewordpiece.WithLimitAlphabet(cfg.LimitAlphabet))
	}
	return chinesewordpiece.NewTrainer(opts...)
}

// trainModel trains a model on the corpus files and saves it. It returns the paths written.
func trainModel(cfg *config.Config, corpusPaths []string) ([]string, error) {
	preTokenizer, err := newPreTokenizer(cfg.PreTokenizer)
	if err != nil {
		return nil, err
	}
	process := func(text string) ([]string, error) {
		splits, err := preTokenizer.PreTokenize(normalizeInput(cfg.PreTokenizer, text))
		if err != nil {
			return nil, err
		}
		words := make([]string, len(splits))
		for i, split := range splits {
			words[i] = split.Text
		}
		return words, nil
	}

	var corpusErr error
	lines := corpus.Lines(corpusPaths, cfg.Corpus.MinBytes, func(err error) {
		if corpusErr == nil {
			corpusErr = err
		}
	})
	if cfg.Corpus.MaxLines > 0 {
		lines = limit(lines, cfg.Corpus.MaxLines)
	}

	trainer := newTrainer(cfg.Train, cfg.Model.ContinuingSubwordPrefix)
	if err := trainer.Feed(lines, process); err != nil {
		return nil, errors.WithMessage(err, "while reading the corpus")
	}
	if corpusErr != nil {
		return nil, corpusErr
	}

	model, err := chinesewordpiece.New(nil,
		chinesewordpiece.WithUnkToken(cfg.Model.UnkToken),
		chinesewordpiece.WithMaxInputCharsPerWord(cfg.Model.MaxInputCharsPerWord))
	if err != nil {
		return nil, err
	}
	if err := trainToStderr(trainer, model); err != nil {
		return nil, err
	}
	if _, found := model.TokenToID(model.UnkToken()); !found {
		klog.Warningf("unknown token %q is not in the trained vocabulary, add it with --special-token",
			model.UnkToken())
	}

	paths, err := model.Save(cfg.Train.OutputDir, cfg.Train.OutputPrefix)
	if err != nil {
		return nil, err
	}
	modelName := ModelFileName
	if cfg.Train.OutputPrefix != "" {
		modelName = cfg.Train.OutputPrefix + "-" + modelName
	}
	modelPath := filepath.Join(cfg.Train.OutputDir, modelName)
	if err := saveModel(model, modelPath); err != nil {
		return nil, err
	}
	return append(paths, modelPath), nil
}

// trainToStderr trains model with stdout pointed at stderr: the BPE trainer prints its steps to
// stdout, which holds the command output.
func trainToStderr(trainer *chinesewordpiece.Trainer, model *chinesewordpiece.Model) error {
	stdout := os.Stdout
	os.Stdout = os.Stderr
	defer func() { os.Stdout = stdout }()
	_, err := trainer.Train(model)
	return err
}

// limit yields at most n values of seq.
func limit[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		if n <= 0 {
			return
		}
		count := 0
		for v := range seq {
			if !yield(v) {
				return
			}
			count++
			if count >= n {
				return
			}
		}
	}
}
