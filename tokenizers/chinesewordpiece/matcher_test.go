package chinesewordpiece

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsCJK(t *testing.T) {
	assert.True(t, containsCJK("一"))
	assert.True(t, containsCJK("鿿"))
	assert.True(t, containsCJK("abc中"))
	assert.False(t, containsCJK("abc"))
	assert.False(t, containsCJK("\u3007"))
	assert.False(t, containsCJK("\ua000"))
	assert.False(t, containsCJK("こんにちは"))
	assert.False(t, containsCJK(""))
}

func TestBuildMatcher(t *testing.T) {
	// "hello" has no ideograph nor prefix, and "##" is empty once stripped: both are omitted.
	// "##中" is inserted in both forms.
	vocab := map[string]int{"[UNK]": 0, "hello": 1, "##llo": 2, "中国": 3, "##中": 4, "##": 5}
	mt, maxKeyBytes, err := buildMatcher(vocab, "##")
	require.NoError(t, err)
	assert.Equal(t, 6, maxKeyBytes)
	assert.Equal(t, 4, mt.NumKeys())

	text := "中国hello##中llo"
	tests := []struct {
		name string
		from int
		want []int
	}{
		{"ideographs", 0, []int{3, 6}},
		{"omitted key", 6, nil},
		{"stripped key", 8, []int{11}},
		{"verbatim prefixed ideograph", 11, []int{16}},
		{"stripped prefixed ideograph", 13, []int{16}},
		{"stripped key at the end", 16, []int{19}},
		{"end of text", len(text), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mt.appendEnds(nil, text, tt.from))
		})
	}
}

func newTestMatcher(t *testing.T, keys ...string) *matcher {
	t.Helper()
	mt := newMatcher()
	for _, key := range keys {
		require.NoError(t, mt.insert(key))
	}
	return mt
}

func TestMatcher_AllEnds(t *testing.T) {
	// Duplicates and empty keys are ignored.
	mt := newTestMatcher(t, "a", "ab", "abc", "abd", "b", "", "ab")
	assert.Equal(t, 5, mt.NumKeys())
	assert.Equal(t, []int{1, 2, 3}, mt.appendEnds(nil, "abcd", 0))
	assert.Equal(t, []int{2, 3, 4}, mt.appendEnds(nil, "xabd", 1))
	assert.Nil(t, mt.appendEnds(nil, "xyz", 0))

	// Ends are appended after the existing ones.
	assert.Equal(t, []int{7, 1, 2}, mt.appendEnds([]int{7}, "abx", 0))
}

func TestMatcher_ManyKeys(t *testing.T) {
	// Keys sharing a prefix, inserted out of order, force the trie to relocate nodes.
	var keys []string
	for _, c := range "zyxwvutsrqponmlkjihgfedcba" {
		keys = append(keys, "_"+string(c), "_"+string(c)+"中")
	}
	mt := newTestMatcher(t, keys...)
	assert.Equal(t, len(keys), mt.NumKeys())
	for _, c := range "abcdefghijklmnopqrstuvwxyz" {
		assert.Equal(t, []int{2, 5}, mt.appendEnds(nil, "_"+string(c)+"中", 0), "key _%c", c)
	}
	assert.Nil(t, mt.appendEnds(nil, "_0", 0))
}

func TestMatcher_ZeroByteKeys(t *testing.T) {
	mt := newTestMatcher(t, "a", "a\x00", "a\x00b", "ab")
	assert.Equal(t, 4, mt.NumKeys())
	assert.Equal(t, []int{1, 2, 3}, mt.appendEnds(nil, "a\x00b", 0))
	assert.Equal(t, []int{2, 3}, mt.appendEnds(nil, "xab", 1))
	assert.Equal(t, []int{9, 1, 2}, mt.appendEnds([]int{9}, "a\x00", 0))
}
