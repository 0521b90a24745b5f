package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-zhwordpiece/internal/config"
	"github.com/gomlx/go-zhwordpiece/internal/files"
	"github.com/gomlx/go-zhwordpiece/tokenizers"
	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
	"github.com/gomlx/go-zhwordpiece/tokenizers/chinesewordpiece"
	"github.com/gomlx/go-zhwordpiece/tokenizers/pretokenizers"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
	"k8s.io/klog/v2"
)

// TokenizerFileName is the HuggingFace tokenizer file name, whose "model" section holds the model.
const TokenizerFileName = "tokenizer.json"

// loadModel loads the model from a vocab.txt file, a serialized model (*.json) or a tokenizer.json file.
// The options in cfg only apply to vocab.txt files, the JSON formats carry their own.
func loadModel(cfg config.ModelConfig, path string) (*chinesewordpiece.Model, error) {
	switch {
	case filepath.Base(path) == TokenizerFileName:
		return chinesewordpiece.NewFromTokenizerFile(path)
	case strings.EqualFold(filepath.Ext(path), ".json"):
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read model %q", path)
		}
		m, err := chinesewordpiece.FromJSON(content)
		if err != nil {
			return nil, errors.WithMessagef(err, "while loading model %q", path)
		}
		return m, nil
	default:
		return chinesewordpiece.NewFromFile(path,
			chinesewordpiece.WithUnkToken(cfg.UnkToken),
			chinesewordpiece.WithContinuingSubwordPrefix(cfg.ContinuingSubwordPrefix),
			chinesewordpiece.WithMaxInputCharsPerWord(cfg.MaxInputCharsPerWord))
	}
}

// saveModel writes the model to path: a serialized model if path ends with ".json", a vocab.txt
// file otherwise.
func saveModel(m *chinesewordpiece.Model, path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return chinesewordpiece.WriteVocabFile(path, m.GetVocab())
	}
	content, err := m.MarshalJSON()
	if err != nil {
		return errors.WithMessage(err, "failed to serialize model")
	}
	return files.WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})
}

func newPreTokenizer(cfg config.PreTokenizerConfig) (api.PreTokenizer, error) {
	switch cfg.Kind {
	case config.PreTokenizerWhitespace:
		return pretokenizers.NewWhitespace(), nil
	case config.PreTokenizerJieba:
		pt, err := pretokenizers.NewJieba(cfg.JiebaDicts...)
		if err != nil {
			return nil, err
		}
		pt.HMM = cfg.HMM
		return pt, nil
	default:
		return pretokenizers.NewBert(), nil
	}
}

// newTokenizer loads the configured model and pre-tokenizer.
func newTokenizer(cfg *config.Config) (*tokenizers.Tokenizer, error) {
	model, err := loadModel(cfg.Model, cfg.Model.VocabPath)
	if err != nil {
		return nil, err
	}
	preTokenizer, err := newPreTokenizer(cfg.PreTokenizer)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("loaded %q: %d tokens, %q pre-tokenizer", cfg.Model.VocabPath, model.GetVocabSize(),
		cfg.PreTokenizer.Kind)
	return tokenizers.New(preTokenizer, model, tokenizers.WithCacheSize(cfg.Model.CacheSize))
}

// normalizeInput applies the optional NFC normalization to text read from the user.
func normalizeInput(cfg config.PreTokenizerConfig, text string) string {
	if cfg.NFC {
		return norm.NFC.String(text)
	}
	return text
}

// inputSpans maps byte spans of NFC normalized text back to the text it was normalized from.
type inputSpans struct {
	// starts and ends hold, for each byte of the normalized text, the input span of its
	// normalization segment.
	starts, ends []int
	inputLen     int
}

// normalizeNFC returns the NFC form of text, and the mapping of its spans back to text.
func normalizeNFC(text string) (string, *inputSpans) {
	spans := &inputSpans{
		starts:   make([]int, 0, len(text)),
		ends:     make([]int, 0, len(text)),
		inputLen: len(text),
	}
	var sb strings.Builder
	sb.Grow(len(text))
	var it norm.Iter
	it.InitString(norm.NFC, text)
	for !it.Done() {
		start := it.Pos()
		segment := it.Next()
		end := it.Pos()
		for range segment {
			spans.starts = append(spans.starts, start)
			spans.ends = append(spans.ends, end)
		}
		sb.Write(segment)
	}
	return sb.String(), spans
}

// Map returns the input span covering the normalization segments of span. A nil mapping returns span
// unchanged.
func (m *inputSpans) Map(span api.TokenSpan) api.TokenSpan {
	if m == nil {
		return span
	}
	start := m.inputLen
	if span.Start < len(m.starts) {
		start = m.starts[span.Start]
	}
	end := start
	if span.End > span.Start && span.End <= len(m.ends) {
		end = m.ends[span.End-1]
	}
	return api.TokenSpan{Start: start, End: end}
}
