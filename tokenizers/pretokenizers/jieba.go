package pretokenizers

import (
	"strings"

	"github.com/go-ego/gse"
	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Cutter segments text into words, in order, whose concatenation is the text.
// *gse.Segmenter implements it.
type Cutter interface {
	Cut(text string, hmm ...bool) []string
}

// Jieba splits Chinese text into words using a jieba-style dictionary segmenter.
//
// White space is dropped, and words returned by the segmenter that contain white space are split
// further, so splits never contain white space.
type Jieba struct {
	cutter Cutter

	// HMM enables the hidden Markov model to segment words not in the dictionary.
	HMM bool
}

// Compile time assert that Jieba implements api.PreTokenizer interface.
var _ api.PreTokenizer = &Jieba{}

// NewJieba creates a Jieba pre-tokenizer with a gse segmenter loaded with the given dictionary files.
// If no file is given, gse's embedded default dictionary is loaded.
func NewJieba(dictPaths ...string) (*Jieba, error) {
	seg := new(gse.Segmenter)
	if err := seg.LoadDict(dictPaths...); err != nil {
		return nil, errors.Wrapf(err, "failed to load gse dictionaries %q", dictPaths)
	}
	klog.V(1).Infof("pretokenizers: loaded gse dictionaries %q", dictPaths)
	return NewJiebaWithCutter(seg), nil
}

// NewJiebaWithCutter creates a Jieba pre-tokenizer with the given segmenter.
func NewJiebaWithCutter(cutter Cutter) *Jieba {
	return &Jieba{cutter: cutter, HMM: true}
}

// PreTokenize implements api.PreTokenizer.
//
// It returns an error if the segmenter returns pieces that are not, in order, substrings of text.
func (j *Jieba) PreTokenize(text string) ([]api.Split, error) {
	if j.cutter == nil {
		return nil, errors.New("pretokenizers: Jieba has no segmenter, use NewJieba")
	}
	var (
		ws     Whitespace
		splits []api.Split
		pos    int
	)
	for _, piece := range j.cutter.Cut(text, j.HMM) {
		if piece == "" {
			continue
		}
		start := findSubstring(text, piece, pos)
		if start < 0 {
			return nil, errors.Errorf("pretokenizers: segment %q not found in text after byte %d", piece, pos)
		}
		pos = start + len(piece)
		splits = ws.split(piece, start, splits)
	}
	return splits, nil
}

// findSubstring finds the first occurrence of substr in s starting from position start.
// Returns the byte position of the match, or -1 if not found.
func findSubstring(s, substr string, start int) int {
	if start > len(s) {
		return -1
	}
	idx := strings.Index(s[start:], substr)
	if idx < 0 {
		return -1
	}
	return start + idx
}
