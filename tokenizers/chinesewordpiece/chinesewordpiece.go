// Package chinesewordpiece implements a WordPiece model aware of CJK ideographs.
//
// A word is split greedily into the longest vocabulary pieces from the left, as in WordPiece, with two
// differences:
//
//   - A piece containing a CJK ideograph (U+4E00 to U+9FFF) is always looked up verbatim: ideographs
//     never carry the continuing subword prefix ("##" by default).
//   - A piece with no ideograph is looked up verbatim at the start of the word, and with the prefix
//     prepended elsewhere.
//
// Characters that can't start any vocabulary piece are replaced, one at a time, by the unknown token.
//
// Example:
//
//	m, err := chinesewordpiece.NewFromFile("vocab.txt")
//	if err != nil { ... }
//	tokens, err := m.Tokenize("北京welcome")
package chinesewordpiece

import (
	"maps"
	"sync/atomic"

	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
	"github.com/pkg/errors"
	"github.com/sugarme/tokenizer/model/bpe"
	"k8s.io/klog/v2"
)

const (
	// TypeName identifies this model in serialized records.
	TypeName = "ChineseWordPiece"

	DefaultUnkToken                = "[UNK]"
	DefaultContinuingSubwordPrefix = "##"
	DefaultMaxInputCharsPerWord    = 100
)

// Model is a Chinese-aware WordPiece model.
//
// It is safe for concurrent use: Tokenize works on an immutable snapshot of the vocabulary, and Train
// or UnmarshalJSON replace the snapshot atomically.
type Model struct {
	state atomic.Pointer[vocabState]
}

// Compile time assert that Model implements api.Model interface.
var _ api.Model = &Model{}

// vocabState holds everything Tokenize reads. It is never mutated once published.
type vocabState struct {
	vocab  map[string]int
	vocabR map[int]string

	unkToken             string
	prefix               string
	maxInputCharsPerWord int

	matcher     *matcher
	maxKeyBytes int
}

// Option configures a Model built with New or NewFromFile.
type Option func(*options)

type options struct {
	unkToken             string
	prefix               string
	maxInputCharsPerWord int
}

func defaultOptions() options {
	return options{
		unkToken:             DefaultUnkToken,
		prefix:               DefaultContinuingSubwordPrefix,
		maxInputCharsPerWord: DefaultMaxInputCharsPerWord,
	}
}

// WithUnkToken sets the token used for characters that can't be matched. Default is "[UNK]".
func WithUnkToken(unkToken string) Option {
	return func(o *options) { o.unkToken = unkToken }
}

// WithContinuingSubwordPrefix sets the prefix used to look up non-initial pieces without ideographs.
// Default is "##".
func WithContinuingSubwordPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithMaxInputCharsPerWord sets the maximum number of characters (runes) of a word: longer words are
// replaced by one unknown token. Default is 100.
func WithMaxInputCharsPerWord(maxChars int) Option {
	return func(o *options) { o.maxInputCharsPerWord = maxChars }
}

// New creates a Model from the given vocabulary, mapping tokens to ids. The vocabulary is copied.
//
// The unknown token doesn't need to be in the vocabulary: Tokenize only fails with ErrMissingUnkToken
// if it is actually needed.
func New(vocab map[string]int, opts ...Option) (*Model, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	state, err := newVocabState(maps.Clone(vocab), o)
	if err != nil {
		return nil, err
	}
	m := &Model{}
	m.state.Store(state)
	return m, nil
}

// NewFromFile creates a Model from a vocabulary file with one token per line, see ReadVocabFile.
func NewFromFile(vocabPath string, opts ...Option) (*Model, error) {
	vocab, err := ReadVocabFile(vocabPath)
	if err != nil {
		return nil, err
	}
	return New(vocab, opts...)
}

// Default returns a Model with an empty vocabulary and default settings.
func Default() *Model {
	m, err := New(nil)
	if err != nil {
		// An empty vocabulary with the default options is always valid.
		panic(err)
	}
	return m
}

// FromBPE creates a Model with the vocabulary of a BPE model. Its unknown token and continuing subword
// prefix are adopted if defined, otherwise the defaults are used.
func FromBPE(b *bpe.BPE) (*Model, error) {
	if b == nil || b.Vocab == nil {
		return nil, errors.New("chinesewordpiece: FromBPE called with a nil model")
	}
	var opts []Option
	if unk := b.GetUnkToken(); unk != nil && *unk != "" {
		opts = append(opts, WithUnkToken(*unk))
	}
	if prefix := b.GetContinuingSubwordPrfix(); prefix != nil && *prefix != "" {
		opts = append(opts, WithContinuingSubwordPrefix(*prefix))
	}
	return New(b.GetVocab(), opts...)
}

// newVocabState validates the vocabulary and builds the reverse vocabulary and the matcher.
// It takes ownership of vocab.
func newVocabState(vocab map[string]int, o options) (*vocabState, error) {
	if o.maxInputCharsPerWord < 0 {
		return nil, errors.Errorf("chinesewordpiece: invalid max_input_chars_per_word %d, it must be >= 0",
			o.maxInputCharsPerWord)
	}
	if vocab == nil {
		vocab = make(map[string]int)
	}
	vocabR := make(map[int]string, len(vocab))
	for token, id := range vocab {
		if id < 0 {
			return nil, errors.Errorf("chinesewordpiece: token %q has a negative id %d", token, id)
		}
		if other, found := vocabR[id]; found {
			return nil, errors.Errorf("chinesewordpiece: tokens %q and %q share the same id %d", other, token, id)
		}
		vocabR[id] = token
	}
	s := &vocabState{
		vocab:                vocab,
		vocabR:               vocabR,
		unkToken:             o.unkToken,
		prefix:               o.prefix,
		maxInputCharsPerWord: o.maxInputCharsPerWord,
	}
	var err error
	s.matcher, s.maxKeyBytes, err = buildMatcher(vocab, o.prefix)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("chinesewordpiece: vocabulary of %d tokens, matcher with %d keys",
		len(vocab), s.matcher.NumKeys())
	return s, nil
}

// load returns the current snapshot. A zero Model behaves as Default.
func (m *Model) load() *vocabState {
	if s := m.state.Load(); s != nil {
		return s
	}
	s, _ := newVocabState(nil, defaultOptions())
	if m.state.CompareAndSwap(nil, s) {
		return s
	}
	return m.state.Load()
}

// UnkToken returns the unknown token.
func (m *Model) UnkToken() string { return m.load().unkToken }

// ContinuingSubwordPrefix returns the prefix of non-initial pieces without ideographs.
func (m *Model) ContinuingSubwordPrefix() string { return m.load().prefix }

// MaxInputCharsPerWord returns the maximum number of characters of a word.
func (m *Model) MaxInputCharsPerWord() int { return m.load().maxInputCharsPerWord }

// TokenToID returns the id of the token, if in the vocabulary.
func (m *Model) TokenToID(token string) (int, bool) {
	id, found := m.load().vocab[token]
	return id, found
}

// IDToToken returns the token with the given id, if in the vocabulary.
func (m *Model) IDToToken(id int) (string, bool) {
	token, found := m.load().vocabR[id]
	return token, found
}

// GetVocab returns a copy of the vocabulary.
func (m *Model) GetVocab() map[string]int {
	return maps.Clone(m.load().vocab)
}

// GetVocabSize returns the number of tokens in the vocabulary.
func (m *Model) GetVocabSize() int {
	return len(m.load().vocab)
}

// Equal reports whether both models have the same configuration and vocabulary. A nil model is only
// equal to another nil model.
func (m *Model) Equal(other *Model) bool {
	if m == nil || other == nil {
		return m == other
	}
	a, b := m.load(), other.load()
	return a.unkToken == b.unkToken &&
		a.prefix == b.prefix &&
		a.maxInputCharsPerWord == b.maxInputCharsPerWord &&
		maps.Equal(a.vocab, b.vocab)
}
