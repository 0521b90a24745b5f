// Package api defines the Tokenizer, Model and PreTokenizer APIs.
// It's just a hack to break the cyclic dependency, and allow the users to import `tokenizers` and get the
// default implementations.
package api

import "fmt"

// TokenSpan represents the byte span of a token in the original text.
// Start and End are byte offsets (not rune offsets), suitable for slicing
// Go strings directly: originalText[span.Start:span.End].
// This is useful for token classification tasks (NER, chunking) where you need
// to map token predictions back to positions in the original text.
type TokenSpan struct {
	Start int // start byte position (inclusive)
	End   int // end byte position (exclusive)
}

// Len returns the number of bytes covered by the span.
func (s TokenSpan) Len() int { return s.End - s.Start }

// Shift returns the span moved by offset bytes.
func (s TokenSpan) Shift(offset int) TokenSpan {
	return TokenSpan{Start: s.Start + offset, End: s.End + offset}
}

// Token is one piece emitted by a Model: the vocabulary text that was matched (including any
// continuation prefix used for the lookup), its id and the byte span it covers in the word.
type Token struct {
	Value string
	ID    int
	Span  TokenSpan
}

// String implements fmt.Stringer.
func (t Token) String() string {
	return fmt.Sprintf("%q(%d)[%d:%d]", t.Value, t.ID, t.Span.Start, t.Span.End)
}

// EncodingResult contains tokens with their spans in the original text.
type EncodingResult struct {
	IDs   []int       // token IDs
	Spans []TokenSpan // byte spans for each token (use originalText[span.Start:span.End] to extract)
}

// Tokenizer interface allows one convert test to "tokens" (integer ids) and back.
//
// It also allows mapping of special tokens: tokens with a common semantic (like padding) but that
// may map to different ids (int) for different tokenizers.
type Tokenizer interface {
	Encode(text string) []int
	Decode([]int) string

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)
}

// TokenizerWithSpans extends Tokenizer with span tracking capability.
// This is useful for token classification tasks (NER, chunking) where you need
// to map token predictions back to byte positions in the original text.
type TokenizerWithSpans interface {
	Tokenizer
	// EncodeWithSpans returns tokens along with their byte spans in the original text.
	EncodeWithSpans(text string) EncodingResult
}

// Model splits a single pre-tokenized word into vocabulary pieces.
//
// Implementations must be safe for concurrent calls to Tokenize.
type Model interface {
	// Tokenize splits word into tokens whose spans partition the word's byte range.
	Tokenize(word string) ([]Token, error)

	TokenToID(token string) (int, bool)
	IDToToken(id int) (string, bool)

	// GetVocab returns a copy of the token -> id mapping.
	GetVocab() map[string]int
	GetVocabSize() int

	// Save writes the model files into dir, optionally prefixing the file names, and returns the
	// written paths.
	Save(dir, prefix string) ([]string, error)
}

// Split is a piece of the original text produced by a PreTokenizer.
type Split struct {
	Text string
	Span TokenSpan
}

// PreTokenizer splits raw text into words, keeping track of their byte offsets.
// Empty splits are never returned.
type PreTokenizer interface {
	PreTokenize(text string) ([]Split, error)
}

// AddedToken is a token reserved in a vocabulary by a trainer (e.g.: "[CLS]").
type AddedToken struct {
	Content string
	Special bool
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSpecialTokensCount
)

var specialTokenNames = [...]string{
	TokBeginningOfSentence: "beginning_of_sentence",
	TokEndOfSentence:       "end_of_sentence",
	TokUnknown:             "unknown",
	TokPad:                 "pad",
	TokMask:                "mask",
	TokClassification:      "classification",
	TokSpecialTokensCount:  "special_tokens_count",
}

// String implements fmt.Stringer.
func (t SpecialToken) String() string {
	if t < 0 || int(t) >= len(specialTokenNames) {
		return fmt.Sprintf("SpecialToken(%d)", int(t))
	}
	return specialTokenNames[t]
}
