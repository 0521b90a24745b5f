package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/go-zhwordpiece/internal/config"
	"github.com/gomlx/go-zhwordpiece/internal/encode"
	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
	"github.com/gomlx/go-zhwordpiece/tokenizers/chinesewordpiece"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the zhwp command line with args.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	orig := activeCfg
	t.Cleanup(func() { activeCfg = orig })

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeVocab writes a small vocab.txt and returns its path.
func writeVocab(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "vocab.txt")
	require.NoError(t, chinesewordpiece.WriteVocabFile(path, map[string]int{
		"[UNK]": 0, "hello": 1, "中": 2, "国": 3, "##lo": 4, "hel": 5,
	}))
	return path
}

func TestNewRootCmd(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"tokenize", "train", "encode", "convert"} {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "subcommand %q not found", name)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("v"), "klog flags not registered")
	assert.NotNil(t, root.PersistentFlags().Lookup("model-vocab-path"))
}

func TestRequireConfig(t *testing.T) {
	orig := activeCfg
	t.Cleanup(func() { activeCfg = orig })
	activeCfg = nil
	_, err := requireConfig()
	require.Error(t, err)

	cfg := config.DefaultConfig()
	activeCfg = &cfg
	got, err := requireConfig()
	require.NoError(t, err)
	assert.Equal(t, &cfg, got)
}

func TestTokenize(t *testing.T) {
	t.Chdir(t.TempDir())
	vocab := writeVocab(t, t.TempDir())

	out, err := run(t, "", "tokenize", "--vocab="+vocab, "--ids", "hello", "中国")
	require.NoError(t, err)
	assert.Equal(t, "1 2 3\n", out)

	out, err = run(t, "hello\n中国x\n", "tokenize", "--vocab", vocab, "--ids")
	require.NoError(t, err)
	assert.Equal(t, "1\n2 3 0\n", out)

	out, err = run(t, "", "tokenize", "--vocab", vocab, "--spans", "helo")
	require.NoError(t, err)
	for _, want := range []string{"hel", "(5)", "[0:3]", "[UNK]", "(0)", "[3:4]"} {
		assert.Contains(t, out, want)
	}

	out, err = run(t, "", "tokenize", "--vocab", vocab, "--decode", "5", "4", "2", "3")
	require.NoError(t, err)
	assert.Equal(t, "hello中国\n", out)

	_, err = run(t, "", "tokenize", "--vocab", vocab, "--decode", "x")
	require.Error(t, err)
	_, err = run(t, "", "tokenize", "--vocab", filepath.Join(t.TempDir(), "missing.txt"), "a")
	require.Error(t, err)
	_, err = run(t, "", "tokenize", "--vocab", vocab, "--pretokenizer=unknown", "a")
	require.Error(t, err)
}

func TestTokenize_NFC(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	vocab := filepath.Join(dir, "vocab.txt")
	require.NoError(t, chinesewordpiece.WriteVocabFile(vocab, map[string]int{"[UNK]": 0, "\u00e9": 1, "a": 2}))

	// "e" followed by a combining acute accent.
	out, err := run(t, "", "tokenize", "--vocab", vocab, "--ids", "--pre-tokenizer-nfc", "e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = run(t, "", "tokenize", "--vocab", vocab, "--ids", "e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "0 0\n", out)

	// Spans index the input, not its normalized form.
	out, err = run(t, "", "tokenize", "--vocab", vocab, "--spans", "--pre-tokenizer-nfc", "e\u0301 a")
	require.NoError(t, err)
	assert.Contains(t, out, "[0:3]")
	assert.Contains(t, out, "[4:5]")
}

func TestNormalizeNFC(t *testing.T) {
	input := "x e\u0301\u4e2d"
	normalized, spans := normalizeNFC(input)
	assert.Equal(t, "x \u00e9\u4e2d", normalized)
	testCases := []struct {
		span, want api.TokenSpan
	}{
		{api.TokenSpan{Start: 0, End: 1}, api.TokenSpan{Start: 0, End: 1}},
		{api.TokenSpan{Start: 2, End: 4}, api.TokenSpan{Start: 2, End: 5}},
		{api.TokenSpan{Start: 4, End: 7}, api.TokenSpan{Start: 5, End: 8}},
		{api.TokenSpan{Start: 0, End: 7}, api.TokenSpan{Start: 0, End: 8}},
		{api.TokenSpan{Start: 7, End: 7}, api.TokenSpan{Start: 8, End: 8}},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, spans.Map(tc.span), "span %v", tc.span)
	}

	var identity *inputSpans
	assert.Equal(t, api.TokenSpan{Start: 1, End: 2}, identity.Map(api.TokenSpan{Start: 1, End: 2}))
}

func TestTrainAndConvert(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.txt")
	require.NoError(t, os.WriteFile(corpusPath, []byte("hello hello world\n中文 中国\nhello\nx\n"), 0644))
	outDir := filepath.Join(dir, "out")

	out, err := run(t, "", "train", "--output-dir", outDir, "--vocab-size=40", "--special-token=[UNK]",
		"--train-show-progress=false", "--min-bytes=2", corpusPath)
	require.NoError(t, err)
	vocabPath := filepath.Join(outDir, chinesewordpiece.VocabFileName)
	modelPath := filepath.Join(outDir, ModelFileName)
	assert.Equal(t, vocabPath+"\n"+modelPath+"\n", out)

	cfg := config.DefaultConfig()
	model, err := loadModel(cfg.Model, modelPath)
	require.NoError(t, err)
	id, found := model.TokenToID("[UNK]")
	require.True(t, found)
	assert.Equal(t, 0, id)
	for _, token := range []string{"h", "##e", "##o", "中", "文"} {
		_, found = model.TokenToID(token)
		assert.True(t, found, "token %q not in the trained vocabulary", token)
	}
	tokens, err := model.Tokenize("hello")
	require.NoError(t, err)
	require.NotEmpty(t, tokens)
	for _, token := range tokens {
		assert.NotEqual(t, 0, token.ID, "\"hello\" tokenized with the unknown token")
	}
	// "x" was shorter than --min-bytes.
	_, found = model.TokenToID("x")
	assert.False(t, found)

	fromVocab, err := loadModel(cfg.Model, vocabPath)
	require.NoError(t, err)
	assert.Equal(t, model.GetVocab(), fromVocab.GetVocab())

	// vocab.txt -> JSON -> vocab.txt
	jsonPath := filepath.Join(dir, "converted.json")
	out, err = run(t, "", "convert", vocabPath, jsonPath)
	require.NoError(t, err)
	assert.Contains(t, out, jsonPath)
	converted, err := loadModel(cfg.Model, jsonPath)
	require.NoError(t, err)
	assert.True(t, converted.Equal(fromVocab))

	backPath := filepath.Join(dir, "back.txt")
	_, err = run(t, "", "convert", jsonPath, backPath)
	require.NoError(t, err)
	original, err := os.ReadFile(vocabPath)
	require.NoError(t, err)
	back, err := os.ReadFile(backPath)
	require.NoError(t, err)
	assert.Equal(t, string(original), string(back))

	// tokenizer.json files are read from their "model" section.
	modelJSON, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	tokenizerPath := filepath.Join(dir, TokenizerFileName)
	require.NoError(t, os.WriteFile(tokenizerPath, []byte(`{"version":"1.0","model":`+string(modelJSON)+`}`), 0644))
	_, err = run(t, "", "convert", tokenizerPath, filepath.Join(dir, "from-tokenizer.txt"))
	require.NoError(t, err)

	_, err = run(t, "", "convert", vocabPath)
	require.Error(t, err)
	_, err = run(t, "", "train", "--output-dir", outDir, filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestEncode(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	vocab := writeVocab(t, dir)
	corpusPath := filepath.Join(dir, "corpus.txt")
	require.NoError(t, os.WriteFile(corpusPath, []byte("hello 中国\nhelo\nhi\n"), 0644))
	output := filepath.Join(dir, "encoded.parquet")

	out, err := run(t, "", "encode", "--vocab", vocab, "--output", output, "--workers=2", "--min-bytes=3", corpusPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows, 5 tokens")

	rows, runID, err := encode.ReadFile(output)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	require.Len(t, rows, 2)
	assert.Equal(t, []int32{1, 2, 3}, rows[0].IDs)
	assert.Equal(t, []int32{5, 0}, rows[1].IDs)
	assert.Equal(t, []int32{1, 1}, rows[1].AttentionMask)
}
