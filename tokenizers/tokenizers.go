// Package tokenizers combines a pre-tokenizer and a model into an api.Tokenizer: text is split into
// words by the pre-tokenizer, each word is split into vocabulary pieces by the model, and the token
// spans are mapped back to byte offsets in the original text.
//
// Example:
//
//	model, err := chinesewordpiece.NewFromFile("vocab.txt")
//	if err != nil { ... }
//	tok, err := tokenizers.New(pretokenizers.NewBert(), model, tokenizers.WithCacheSize(10_000))
//	if err != nil { ... }
//	ids := tok.Encode("我来到北京清华大学")
package tokenizers

import (
	"strings"
	"unicode/utf8"

	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultContinuingSubwordPrefix is used by Decode when the model doesn't expose its own prefix.
const DefaultContinuingSubwordPrefix = "##"

// Tokenizer implements api.TokenizerWithSpans on top of an api.PreTokenizer and an api.Model.
//
// It is safe for concurrent use as long as the pre-tokenizer and the model are.
type Tokenizer struct {
	preTokenizer api.PreTokenizer
	model        api.Model

	// cache maps a word to its []api.Token, with spans relative to the word. Nil if disabled.
	cache *lru.Cache

	// specialTokens overrides the default names looked up by SpecialTokenID.
	specialTokens map[api.SpecialToken]string
}

// Compile time assert that Tokenizer implements api.TokenizerWithSpans interface.
var _ api.TokenizerWithSpans = &Tokenizer{}

// Option configures a Tokenizer.
type Option func(t *Tokenizer) error

// WithCacheSize enables a least-recently-used cache of the tokenized words, holding up to size words.
// A size of 0 disables the cache.
func WithCacheSize(size int) Option {
	return func(t *Tokenizer) error {
		if size < 0 {
			return errors.Errorf("invalid cache size %d", size)
		}
		if size == 0 {
			t.cache = nil
			return nil
		}
		cache, err := lru.New(size)
		if err != nil {
			return errors.Wrapf(err, "failed to create cache of size %d", size)
		}
		t.cache = cache
		return nil
	}
}

// WithSpecialToken sets the vocabulary entry used for the given special token, instead of the
// usual BERT names ("[CLS]", "[SEP]", ...).
func WithSpecialToken(token api.SpecialToken, content string) Option {
	return func(t *Tokenizer) error {
		if token < 0 || token >= api.TokSpecialTokensCount {
			return errors.Errorf("invalid special token %s", token)
		}
		t.specialTokens[token] = content
		return nil
	}
}

// New creates a Tokenizer.
func New(preTokenizer api.PreTokenizer, model api.Model, options ...Option) (*Tokenizer, error) {
	if preTokenizer == nil || model == nil {
		return nil, errors.New("tokenizers.New requires a pre-tokenizer and a model")
	}
	t := &Tokenizer{
		preTokenizer:  preTokenizer,
		model:         model,
		specialTokens: make(map[api.SpecialToken]string),
	}
	for _, option := range options {
		if err := option(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Model returns the model used to tokenize words.
func (t *Tokenizer) Model() api.Model { return t.model }

// ResetCache drops all cached words. It must be called after the model vocabulary changes (e.g.: after
// training), otherwise cached words keep their old tokens.
func (t *Tokenizer) ResetCache() {
	if t.cache != nil {
		t.cache.Purge()
	}
}

// EncodeTokens pre-tokenizes text and tokenizes each word, returning the tokens with spans relative to
// text.
func (t *Tokenizer) EncodeTokens(text string) ([]api.Token, error) {
	splits, err := t.preTokenizer.PreTokenize(text)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to pre-tokenize text")
	}
	var tokens []api.Token
	for _, split := range splits {
		wordTokens, err := t.tokenizeWord(split.Text)
		if err != nil {
			return nil, errors.WithMessagef(err, "while tokenizing word %q at byte %d", split.Text, split.Span.Start)
		}
		for _, token := range wordTokens {
			token.Span = token.Span.Shift(split.Span.Start)
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

// tokenizeWord tokenizes one word with the model, going through the cache if enabled.
// The returned slice must not be modified.
func (t *Tokenizer) tokenizeWord(word string) ([]api.Token, error) {
	if t.cache != nil {
		if cached, ok := t.cache.Get(word); ok {
			return cached.([]api.Token), nil
		}
	}
	tokens, err := t.model.Tokenize(word)
	if err != nil {
		return nil, err
	}
	if t.cache != nil {
		t.cache.Add(word, tokens)
	}
	return tokens, nil
}

// Encode implements api.Tokenizer.
//
// Since api.Tokenizer doesn't allow errors, a failure (e.g.: a word that can't be tokenized because
// the vocabulary has no unknown token) is logged and nil is returned. Use EncodeTokens to handle errors.
func (t *Tokenizer) Encode(text string) []int {
	tokens, err := t.EncodeTokens(text)
	if err != nil {
		klog.Errorf("tokenizers: failed to encode text: %+v", err)
		return nil
	}
	ids := make([]int, len(tokens))
	for i, token := range tokens {
		ids[i] = token.ID
	}
	return ids
}

// EncodeWithSpans implements api.TokenizerWithSpans. Errors are handled as in Encode.
func (t *Tokenizer) EncodeWithSpans(text string) api.EncodingResult {
	tokens, err := t.EncodeTokens(text)
	if err != nil {
		klog.Errorf("tokenizers: failed to encode text: %+v", err)
		return api.EncodingResult{}
	}
	result := api.EncodingResult{
		IDs:   make([]int, len(tokens)),
		Spans: make([]api.TokenSpan, len(tokens)),
	}
	for i, token := range tokens {
		result.IDs[i] = token.ID
		result.Spans[i] = token.Span
	}
	return result
}

// continuingSubwordPrefix returns the prefix of the model if it exposes one.
func (t *Tokenizer) continuingSubwordPrefix() string {
	if m, ok := t.model.(interface{ ContinuingSubwordPrefix() string }); ok {
		return m.ContinuingSubwordPrefix()
	}
	return DefaultContinuingSubwordPrefix
}

// Decode implements api.Tokenizer. Unknown ids are skipped.
//
// Continuation pieces are glued to the previous piece (without their prefix), other pieces are separated
// by a space, except around CJK ideographs, which are written without spaces as Chinese text is.
func (t *Tokenizer) Decode(ids []int) string {
	prefix := t.continuingSubwordPrefix()
	var (
		result strings.Builder
		last   rune = -1 // Last rune written, -1 if none.
	)
	for _, id := range ids {
		token, found := t.model.IDToToken(id)
		if !found || token == "" {
			continue
		}
		if prefix != "" && strings.HasPrefix(token, prefix) && len(token) > len(prefix) {
			token = token[len(prefix):]
		} else if last >= 0 {
			first, _ := utf8.DecodeRuneInString(token)
			if !isIdeograph(last) && !isIdeograph(first) {
				result.WriteByte(' ')
			}
		}
		result.WriteString(token)
		last, _ = utf8.DecodeLastRuneInString(token)
	}
	return result.String()
}

func isIdeograph(r rune) bool {
	return r >= '\u4e00' && r <= '\u9fff'
}

// defaultSpecialTokens lists the vocabulary entries tried, in order, for each special token.
var defaultSpecialTokens = map[api.SpecialToken][]string{
	api.TokUnknown:        {"[UNK]", "<unk>"},
	api.TokPad:            {"[PAD]", "<pad>"},
	api.TokMask:           {"[MASK]", "<mask>"},
	api.TokClassification: {"[CLS]", "<s>"},

	// BERT-style vocabularies use [CLS] and [SEP] to delimit sentences.
	api.TokBeginningOfSentence: {"<bos>", "[CLS]", "<s>"},
	api.TokEndOfSentence:       {"<eos>", "[SEP]", "</s>"},
}

// SpecialTokenID implements api.Tokenizer.
//
// The unknown token is the model's own unknown token if it exposes one. Others are looked up in the
// model's vocabulary, using the names set with WithSpecialToken or the usual BERT names.
// The lookup happens on each call, so it follows changes to the model vocabulary.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	var candidates []string
	if content, found := t.specialTokens[token]; found {
		candidates = []string{content}
	} else {
		if token == api.TokUnknown {
			if m, ok := t.model.(interface{ UnkToken() string }); ok {
				candidates = append(candidates, m.UnkToken())
			}
		}
		candidates = append(candidates, defaultSpecialTokens[token]...)
	}
	for _, content := range candidates {
		if id, found := t.model.TokenToID(content); found {
			return id, nil
		}
	}
	return 0, errors.Errorf("special token %s not found", token)
}
