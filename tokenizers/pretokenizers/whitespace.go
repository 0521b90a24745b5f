// Package pretokenizers splits raw text into words, with their byte offsets in the text, before they are
// handed to a model.
//
// Whitespace splits on white space (and optionally punctuation and ideographs), Jieba segments Chinese
// text into words with github.com/go-ego/gse.
package pretokenizers

import (
	"unicode"
	"unicode/utf8"

	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
)

// Whitespace splits text on white space.
type Whitespace struct {
	// SplitPunctuation isolates every punctuation character in its own split, as BERT does.
	SplitPunctuation bool

	// SplitIdeographs isolates every CJK ideograph in its own split, as BERT does for Chinese.
	SplitIdeographs bool
}

// Compile time assert that Whitespace implements api.PreTokenizer interface.
var _ api.PreTokenizer = &Whitespace{}

// NewWhitespace returns a pre-tokenizer that only splits on white space.
func NewWhitespace() *Whitespace {
	return &Whitespace{}
}

// NewBert returns a pre-tokenizer that splits on white space and isolates punctuation characters.
func NewBert() *Whitespace {
	return &Whitespace{SplitPunctuation: true}
}

// PreTokenize implements api.PreTokenizer. It never fails.
func (w *Whitespace) PreTokenize(text string) ([]api.Split, error) {
	return w.split(text, 0, nil), nil
}

// split appends to splits the words of text, with spans shifted by offset.
func (w *Whitespace) split(text string, offset int, splits []api.Split) []api.Split {
	start := -1 // Start of the current word, -1 if none.
	flush := func(end int) {
		if start >= 0 {
			splits = append(splits, newSplit(text, start, end, offset))
			start = -1
		}
	}
	for pos := 0; pos < len(text); {
		r, size := utf8.DecodeRuneInString(text[pos:])
		switch {
		case isWhitespace(r):
			flush(pos)
		case (w.SplitPunctuation && isPunctuation(r)) || (w.SplitIdeographs && isIdeograph(r)):
			flush(pos)
			splits = append(splits, newSplit(text, pos, pos+size, offset))
		default:
			if start < 0 {
				start = pos
			}
		}
		pos += size
	}
	flush(len(text))
	return splits
}

func newSplit(text string, start, end, offset int) api.Split {
	return api.Split{
		Text: text[start:end],
		Span: api.TokenSpan{Start: start, End: end}.Shift(offset),
	}
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isPunctuation(r rune) bool {
	// ASCII punctuation
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// isIdeograph reports whether r is in the CJK Unified Ideographs block.
func isIdeograph(r rune) bool {
	return r >= '\u4e00' && r <= '\u9fff'
}
