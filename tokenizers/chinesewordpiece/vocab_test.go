package chinesewordpiece

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/tokenizer/model"
	"github.com/sugarme/tokenizer/model/bpe"
)

func TestReadVocab(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]int
	}{
		{
			name:    "one token per line",
			content: "[PAD]\n[UNK]\n中\n##ing\n",
			want:    map[string]int{"[PAD]": 0, "[UNK]": 1, "中": 2, "##ing": 3},
		},
		{
			name:    "trailing white space and CRLF",
			content: "a \t\r\nb\r\n c",
			want:    map[string]int{"a": 0, "b": 1, " c": 2},
		},
		{
			name:    "byte order mark",
			content: "\ufeff[UNK]\nx\n",
			want:    map[string]int{"[UNK]": 0, "x": 1},
		},
		{
			name:    "duplicates: last line wins",
			content: "a\nb\na\n",
			want:    map[string]int{"a": 2, "b": 1},
		},
		{
			name:    "empty",
			content: "",
			want:    map[string]int{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadVocab(strings.NewReader(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteVocab(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriteVocab(&sb, map[string]int{"b": 1, "[UNK]": 0, "中": 2}))
	assert.Equal(t, "[UNK]\nb\n中\n", sb.String())

	invalid := []map[string]int{
		{"a\nb": 0},
		{"a\r": 0},
		{"ok": 0, "a ": 1},
		{"ok": 0, "\u3000": 1},
		{"\ufeffa": 0, "b": 1},
	}
	for _, vocab := range invalid {
		sb.Reset()
		assert.Error(t, WriteVocab(&sb, vocab), "vocabulary %q", vocab)
	}

	// A byte order mark is only lost at the start of the file.
	sb.Reset()
	vocab := map[string]int{"a": 0, "\ufeffb": 1, " c": 2}
	require.NoError(t, WriteVocab(&sb, vocab))
	got, err := ReadVocab(strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, vocab, got)
}

func TestVocabFileRoundTrip(t *testing.T) {
	vocab := map[string]int{"[UNK]": 0, "[CLS]": 1, "中": 2, "中国": 3, "##ab": 4}
	path := filepath.Join(t.TempDir(), "nested", VocabFileName)
	require.NoError(t, WriteVocabFile(path, vocab))

	got, err := ReadVocabFile(path)
	require.NoError(t, err)
	assert.Equal(t, vocab, got)

	m, err := NewFromFile(path, WithMaxInputCharsPerWord(10))
	require.NoError(t, err)
	assert.Equal(t, vocab, m.GetVocab())
	assert.Equal(t, 10, m.MaxInputCharsPerWord())
	token, found := m.IDToToken(3)
	assert.True(t, found)
	assert.Equal(t, "中国", token)
}

func TestReadVocabFile_Missing(t *testing.T) {
	_, err := ReadVocabFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))

	_, err = NewFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestSave(t *testing.T) {
	m, err := New(map[string]int{"[UNK]": 0, "a": 1})
	require.NoError(t, err)
	dir := t.TempDir()

	paths, err := m.Save(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "vocab.txt")}, paths)

	paths, err = m.Save(dir, "zh")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "zh-vocab.txt")}, paths)
	content, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "[UNK]\na\n", string(content))
}

func TestFromBPE(t *testing.T) {
	vocab := map[string]int{"<unk>": 0, "a": 1, "@@b": 2}
	b := bpe.NewBPE(model.Vocab(vocab), bpe.Merges{})

	m, err := FromBPE(b)
	require.NoError(t, err)
	assert.Equal(t, DefaultUnkToken, m.UnkToken())
	assert.Equal(t, DefaultContinuingSubwordPrefix, m.ContinuingSubwordPrefix())
	assert.Equal(t, vocab, m.GetVocab())

	unk, prefix := "<unk>", "@@"
	b.UnkToken = &unk
	b.ContinuingSubwordPrefix = &prefix
	m, err = FromBPE(b)
	require.NoError(t, err)
	assert.Equal(t, "<unk>", m.UnkToken())
	assert.Equal(t, "@@", m.ContinuingSubwordPrefix())

	// The matcher uses the adopted prefix.
	tokens, err := m.Tokenize("abc")
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, "@@b", tokens[1].Value)
	assert.Equal(t, "<unk>", tokens[2].Value)

	_, err = FromBPE(nil)
	require.Error(t, err)
}

func TestModel_Equal(t *testing.T) {
	a, err := New(map[string]int{"a": 0})
	require.NoError(t, err)
	b, err := New(map[string]int{"a": 0})
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(a))

	c, err := New(map[string]int{"a": 0}, WithUnkToken("<unk>"))
	require.NoError(t, err)
	assert.False(t, a.Equal(c))

	var nilModel *Model
	assert.False(t, Default().Equal(nil))
	assert.False(t, nilModel.Equal(Default()))
	assert.True(t, nilModel.Equal(nil))
	assert.True(t, Default().Equal(&Model{}))
}

func TestNew_InvalidVocab(t *testing.T) {
	_, err := New(map[string]int{"a": -1})
	require.Error(t, err)
	_, err = New(map[string]int{"a": 1, "b": 1})
	require.Error(t, err)
	_, err = New(nil, WithMaxInputCharsPerWord(-1))
	require.Error(t, err)
}

func TestNew_CopiesVocab(t *testing.T) {
	vocab := map[string]int{"[UNK]": 0}
	m, err := New(vocab)
	require.NoError(t, err)
	vocab["a"] = 1
	_, found := m.TokenToID("a")
	assert.False(t, found)

	got := m.GetVocab()
	got["b"] = 2
	assert.Equal(t, 1, m.GetVocabSize())
}
