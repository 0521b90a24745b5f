package chinesewordpiece

import (
	"unicode/utf8"

	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
	"github.com/pkg/errors"
)

// Tokenize splits word into vocabulary pieces, greedily taking the longest match from the left.
//
// The returned tokens partition the word: spans are contiguous byte ranges covering it from 0 to
// len(word). A token's Value is the vocabulary entry matched, so it includes the continuing subword
// prefix when it was used for the lookup.
//
// Characters that start no match become one unknown token each, and words longer than
// MaxInputCharsPerWord become a single unknown token. If an unknown token is needed and it's not in
// the vocabulary, it returns ErrMissingUnkToken.
func (m *Model) Tokenize(word string) ([]api.Token, error) {
	s := m.load()
	return s.segment(word, s.longestMatch)
}

// tokenizeReference is the plain quadratic scan Tokenize must always agree with.
func (m *Model) tokenizeReference(word string) ([]api.Token, error) {
	s := m.load()
	return s.segment(word, s.longestMatchScan)
}

// wordIndex holds the per-character bookkeeping of a word being segmented.
type wordIndex struct {
	word     string
	numChars int

	// offsets[i] is the byte offset of the i-th character; offsets[numChars] == len(word).
	offsets []int

	// chinese[i] is the number of ideographs among the first i characters.
	chinese []int

	// byteToChar maps a byte offset to its character index, or -1 if it is not a character boundary.
	byteToChar []int

	candidates []int
}

func newWordIndex(word string, numChars int) *wordIndex {
	w := &wordIndex{
		word:       word,
		numChars:   numChars,
		offsets:    make([]int, 0, numChars+1),
		chinese:    make([]int, 1, numChars+1),
		byteToChar: make([]int, len(word)+1),
	}
	for i := range w.byteToChar {
		w.byteToChar[i] = -1
	}
	var count int
	for pos := 0; pos < len(word); {
		r, size := utf8.DecodeRuneInString(word[pos:])
		w.byteToChar[pos] = len(w.offsets)
		w.offsets = append(w.offsets, pos)
		if isCJK(r) {
			count++
		}
		w.chinese = append(w.chinese, count)
		pos += size
	}
	w.byteToChar[len(word)] = numChars
	w.offsets = append(w.offsets, len(word))
	return w
}

// matchFn returns the largest end character index > start for which lookup succeeds, with the
// matched key and id, or found == false.
type matchFn func(w *wordIndex, start int) (end int, key string, id int, found bool)

func (s *vocabState) segment(word string, match matchFn) ([]api.Token, error) {
	if word == "" {
		return nil, nil
	}
	numChars := utf8.RuneCountInString(word)
	if numChars > s.maxInputCharsPerWord {
		unkID, err := s.unkID()
		if err != nil {
			return nil, err
		}
		return []api.Token{{Value: s.unkToken, ID: unkID, Span: api.TokenSpan{Start: 0, End: len(word)}}}, nil
	}

	w := newWordIndex(word, numChars)
	tokens := make([]api.Token, 0, numChars)
	for start := 0; start < numChars; {
		end, key, id, found := match(w, start)
		if !found {
			unkID, err := s.unkID()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, api.Token{
				Value: s.unkToken,
				ID:    unkID,
				Span:  api.TokenSpan{Start: w.offsets[start], End: w.offsets[start+1]},
			})
			start++
			continue
		}
		tokens = append(tokens, api.Token{
			Value: key,
			ID:    id,
			Span:  api.TokenSpan{Start: w.offsets[start], End: w.offsets[end]},
		})
		start = end
	}
	return tokens, nil
}

func (s *vocabState) unkID() (int, error) {
	id, found := s.vocab[s.unkToken]
	if !found {
		return 0, errors.WithMessagef(ErrMissingUnkToken, "unknown token %q", s.unkToken)
	}
	return id, nil
}

// lookup checks whether the characters [start, end) of the word are a vocabulary piece: verbatim if
// they include an ideograph or start the word, with the continuing subword prefix otherwise.
func (s *vocabState) lookup(w *wordIndex, start, end int) (key string, id int, found bool) {
	key = w.word[w.offsets[start]:w.offsets[end]]
	if start > 0 && w.chinese[end]-w.chinese[start] == 0 {
		key = s.prefix + key
	}
	id, found = s.vocab[key]
	return
}

// longestMatchScan tries every end, longest first.
func (s *vocabState) longestMatchScan(w *wordIndex, start int) (int, string, int, bool) {
	for end := w.numChars; end > start; end-- {
		if key, id, found := s.lookup(w, start, end); found {
			return end, key, id, true
		}
	}
	return 0, "", 0, false
}

// longestMatch only tries the ends that can possibly succeed.
//
// At the start of the word the lookup is verbatim, so ends past the longest vocabulary key are skipped.
// Elsewhere the candidates are the matcher hits at the cursor: the matcher holds every key the lookup
// can accept there (verbatim ideograph keys, prefixed keys with the prefix stripped), so the longest
// hit that passes lookup is the longest match.
func (s *vocabState) longestMatch(w *wordIndex, start int) (int, string, int, bool) {
	if start == 0 {
		end := w.numChars
		for end > 0 && w.offsets[end] > s.maxKeyBytes {
			end--
		}
		for ; end > 0; end-- {
			if key, id, found := s.lookup(w, 0, end); found {
				return end, key, id, true
			}
		}
		return 0, "", 0, false
	}

	w.candidates = s.matcher.appendEnds(w.candidates[:0], w.word, w.offsets[start])
	for i := len(w.candidates) - 1; i >= 0; i-- {
		end := w.byteToChar[w.candidates[i]]
		if end < 0 {
			continue
		}
		if key, id, found := s.lookup(w, start, end); found {
			return end, key, id, true
		}
	}
	return 0, "", 0, false
}
