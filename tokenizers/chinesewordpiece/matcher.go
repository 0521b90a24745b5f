package chinesewordpiece

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/vcaesar/cedar"
)

// Range of the CJK Unified Ideographs block.
const (
	cjkFirst = '\u4e00'
	cjkLast  = '\u9fff'
)

func isCJK(r rune) bool {
	return r >= cjkFirst && r <= cjkLast
}

func containsCJK(s string) bool {
	for _, r := range s {
		if isCJK(r) {
			return true
		}
	}
	return false
}

// matcher is a double-array trie over the vocabulary keys that can be matched after the start of a
// word:
//
//   - keys containing an ideograph, verbatim;
//   - keys starting with the continuing subword prefix, with the prefix stripped.
//
// A key can be inserted in both forms. Other keys are omitted.
//
// The value of each key is its length in bytes. The trie marks values with a zero byte label, so the
// rare keys holding a zero byte are kept aside in nulKeys and matched by comparison.
type matcher struct {
	trie    *cedar.Cedar
	nulKeys []string
	keys    map[string]struct{}
}

func newMatcher() *matcher {
	return &matcher{trie: cedar.New(), keys: make(map[string]struct{})}
}

// buildMatcher returns the matcher for the vocabulary, and the length in bytes of its longest key.
func buildMatcher(vocab map[string]int, prefix string) (mt *matcher, maxKeyBytes int, err error) {
	mt = newMatcher()
	for key := range vocab {
		maxKeyBytes = max(maxKeyBytes, len(key))
		if containsCJK(key) {
			if err = mt.insert(key); err != nil {
				return nil, 0, err
			}
		}
		if strings.HasPrefix(key, prefix) {
			if err = mt.insert(key[len(prefix):]); err != nil {
				return nil, 0, err
			}
		}
	}
	return
}

// insert adds key to the trie. Empty and duplicate keys are ignored.
func (mt *matcher) insert(key string) error {
	if key == "" {
		return nil
	}
	if _, found := mt.keys[key]; found {
		return nil
	}
	mt.keys[key] = struct{}{}
	if strings.IndexByte(key, 0) >= 0 {
		mt.nulKeys = append(mt.nulKeys, key)
		return nil
	}
	if err := mt.trie.Insert([]byte(key), len(key)); err != nil {
		return errors.Wrapf(err, "chinesewordpiece: failed to index vocabulary key %q", key)
	}
	return nil
}

// appendEnds appends to dst the end byte offsets, in increasing order, of every key matching text
// starting at byte offset from.
func (mt *matcher) appendEnds(dst []int, text string, from int) []int {
	first := len(dst)
	node := 0
	var label [1]byte
	for i := from; i < len(text) && text[i] != 0; i++ {
		label[0] = text[i]
		next, err := mt.trie.Jump(label[:], node)
		if err != nil {
			break
		}
		node = next
		if length, err := mt.trie.Value(node); err == nil {
			dst = append(dst, from+length)
		}
	}
	if len(mt.nulKeys) == 0 {
		return dst
	}
	for _, key := range mt.nulKeys {
		if strings.HasPrefix(text[from:], key) {
			dst = append(dst, from+len(key))
		}
	}
	slices.Sort(dst[first:])
	return append(dst[:first], slices.Compact(dst[first:])...)
}

// NumKeys returns the number of distinct keys in the matcher.
func (mt *matcher) NumKeys() int { return len(mt.keys) }
