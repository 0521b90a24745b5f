package chinesewordpiece

import (
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainer_Accessors(t *testing.T) {
	trainer := NewTrainer()
	assert.Equal(t, "##", trainer.ContinuingSubwordPrefix())
	assert.Equal(t, 30000, trainer.VocabSize())
	assert.Equal(t, 0, trainer.MinFrequency())
	assert.True(t, trainer.ShowProgress())
	assert.True(t, trainer.ShouldShowProgress())
	assert.Nil(t, trainer.LimitAlphabet())
	assert.Empty(t, trainer.SpecialTokens())
	assert.Empty(t, trainer.InitialAlphabet())
	assert.Equal(t, "", trainer.EndOfWordSuffix())

	trainer = NewTrainer(
		WithMinFrequency(2),
		WithVocabSize(500),
		WithShowProgress(false),
		WithSpecialTokens(api.AddedToken{Content: "[UNK]", Special: true}),
		WithLimitAlphabet(50),
		WithInitialAlphabet('a', '中'),
		WithTrainerContinuingSubwordPrefix("@@"),
		WithEndOfWordSuffix("</w>"),
	)
	assert.Equal(t, 2, trainer.MinFrequency())
	assert.Equal(t, 500, trainer.VocabSize())
	assert.False(t, trainer.ShowProgress())
	assert.Equal(t, []api.AddedToken{{Content: "[UNK]", Special: true}}, trainer.SpecialTokens())
	require.NotNil(t, trainer.LimitAlphabet())
	assert.Equal(t, 50, *trainer.LimitAlphabet())
	assert.Equal(t, []rune{'a', '中'}, trainer.InitialAlphabet())
	assert.Equal(t, "@@", trainer.ContinuingSubwordPrefix())
	assert.Equal(t, "</w>", trainer.EndOfWordSuffix())

	trainer.SetLimitAlphabet(nil)
	assert.Nil(t, trainer.LimitAlphabet())

	// Returned slices are copies.
	trainer.InitialAlphabet()[0] = 'z'
	assert.Equal(t, 'a', trainer.InitialAlphabet()[0])

	assert.Equal(t, "##", Default().Trainer().ContinuingSubwordPrefix())
}

// requireKnownWords checks that every word is tokenized without unknown tokens.
func requireKnownWords(t *testing.T, m *Model, words ...string) {
	t.Helper()
	for _, word := range words {
		tokens, err := m.Tokenize(word)
		require.NoError(t, err)
		require.NoError(t, checkPartition(word, tokens))
		for _, token := range tokens {
			require.NotEqual(t, m.UnkToken(), token.Value, "word %q", word)
		}
	}
}

func TestTrainer_Train(t *testing.T) {
	m, err := New(map[string]int{"x": 0}, WithUnkToken("<unk>"), WithContinuingSubwordPrefix("@@"),
		WithMaxInputCharsPerWord(20))
	require.NoError(t, err)

	trainer := NewTrainer(
		WithShowProgress(false),
		WithVocabSize(100),
		WithSpecialTokens(api.AddedToken{Content: "<unk>", Special: true}),
	)
	corpus := []string{"hello hello hello", "help 中文 中文", "hello"}
	require.NoError(t, trainer.Feed(slices.Values(corpus), nil))
	special, err := trainer.Train(m)
	require.NoError(t, err)
	assert.Equal(t, []api.AddedToken{{Content: "<unk>", Special: true}}, special)

	// New vocabulary and prefix, same unknown token and max chars.
	assert.Equal(t, "##", m.ContinuingSubwordPrefix())
	assert.Equal(t, "<unk>", m.UnkToken())
	assert.Equal(t, 20, m.MaxInputCharsPerWord())
	_, found := m.TokenToID("x")
	assert.False(t, found)
	id, found := m.TokenToID("<unk>")
	assert.True(t, found)
	assert.Equal(t, 0, id)

	// The alphabet, and the prefixed form of every non-initial character.
	for _, token := range []string{"h", "e", "l", "o", "p", "中", "文", "##e", "##l", "##o", "##p"} {
		id, found := m.TokenToID(token)
		require.True(t, found, "token %q missing", token)
		back, found := m.IDToToken(id)
		require.True(t, found)
		assert.Equal(t, token, back)
	}
	// Ideographs never carry the prefix.
	_, found = m.TokenToID("##文")
	assert.False(t, found)
	assert.Less(t, m.GetVocabSize(), 100)

	requireKnownWords(t, m, "hello", "help", "中文", "hell")

	// The rebuilt matcher knows the new continuation pieces.
	tokens, err := m.Tokenize("中lo")
	require.NoError(t, err)
	require.NoError(t, checkPartition("中lo", tokens))
	require.GreaterOrEqual(t, len(tokens), 2)
	assert.Equal(t, "中", tokens[0].Value)
	for _, token := range tokens[1:] {
		assert.True(t, strings.HasPrefix(token.Value, "##"), "token %q", token.Value)
	}
}

func TestTrainer_TrainWithProcess(t *testing.T) {
	m := Default()
	trainer := NewTrainer(WithShowProgress(false), WithVocabSize(0))
	split := func(s string) ([]string, error) { return strings.Split(s, "|"), nil }
	require.NoError(t, trainer.Feed(slices.Values([]string{"ab|c|"}), split))
	_, err := trainer.Train(m)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2, "##b": 3}, m.GetVocab())

	_, err = trainer.Train(nil)
	require.Error(t, err)
}

func TestTrainer_SuffixAndEmptyPrefix(t *testing.T) {
	m := Default()
	trainer := NewTrainer(WithShowProgress(false), WithVocabSize(0), WithTrainerContinuingSubwordPrefix(""),
		WithEndOfWordSuffix("</w>"))
	trainer.FeedWords(map[string]int{"ab": 2, "中": 1, "": 5, "c": 0})
	_, err := trainer.Train(m)
	require.NoError(t, err)
	assert.Equal(t, DefaultContinuingSubwordPrefix, m.ContinuingSubwordPrefix())
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "中": 2, "##b</w>": 3, "中</w>": 4}, m.GetVocab())
}

func TestTrainer_ConcurrentTokenize(t *testing.T) {
	m, err := New(map[string]int{"[UNK]": 0, "a": 1, "##a": 2})
	require.NoError(t, err)
	trainer := NewTrainer(WithShowProgress(false), WithSpecialTokens(api.AddedToken{Content: "[UNK]"}))
	trainer.FeedWords(map[string]int{"aaaa": 10, "ab": 3})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				tokens, err := m.Tokenize("aaaab")
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, checkPartition("aaaab", tokens))
			}
		}()
	}
	_, err = trainer.Train(m)
	close(stop)
	wg.Wait()
	require.NoError(t, err)
	id, found := m.TokenToID("[UNK]")
	require.True(t, found)
	assert.Equal(t, 0, id)
	requireKnownWords(t, m, "aaaa", "ab", "aaaab", "ba")
}
