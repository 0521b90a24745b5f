package chinesewordpiece

import (
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
	"github.com/pkg/errors"
	"github.com/sugarme/tokenizer/model/bpe"
	"k8s.io/klog/v2"
)

// Trainer learns the vocabulary of a Model with a BPE trainer, using "##" as the default continuing
// subword prefix.
//
// The BPE trainer learns the pieces. The WordPiece vocabulary is then made of the special tokens, the
// trained pieces, and the marked forms needed to tokenize the training words: the continuing subword
// prefix on non-initial characters and pieces without ideographs, and the end-of-word suffix (if any)
// on word-final pieces. Marked forms come on top of the target vocabulary size.
type Trainer struct {
	bpe *bpe.BpeTrainer

	specialTokens   []api.AddedToken
	initialAlphabet []rune
	prefix, suffix  string
	words           map[string]int
}

// TrainerOption configures a Trainer created with NewTrainer.
type TrainerOption func(*Trainer)

// WithMinFrequency sets the minimum frequency of a pair of symbols to be merged.
func WithMinFrequency(freq int) TrainerOption {
	return func(t *Trainer) { t.SetMinFrequency(freq) }
}

// WithVocabSize sets the target vocabulary size, special tokens included.
func WithVocabSize(size int) TrainerOption {
	return func(t *Trainer) { t.SetVocabSize(size) }
}

// WithShowProgress enables or disables progress logging.
func WithShowProgress(show bool) TrainerOption {
	return func(t *Trainer) { t.SetShowProgress(show) }
}

// WithSpecialTokens sets the tokens reserved at the start of the vocabulary.
func WithSpecialTokens(tokens ...api.AddedToken) TrainerOption {
	return func(t *Trainer) { t.SetSpecialTokens(tokens) }
}

// WithLimitAlphabet limits the number of initial characters kept.
func WithLimitAlphabet(limit int) TrainerOption {
	return func(t *Trainer) { t.SetLimitAlphabet(&limit) }
}

// WithInitialAlphabet sets characters always included in the vocabulary.
func WithInitialAlphabet(alphabet ...rune) TrainerOption {
	return func(t *Trainer) { t.SetInitialAlphabet(alphabet) }
}

// WithTrainerContinuingSubwordPrefix sets the continuing subword prefix of the trained model.
func WithTrainerContinuingSubwordPrefix(prefix string) TrainerOption {
	return func(t *Trainer) { t.SetContinuingSubwordPrefix(prefix) }
}

// WithEndOfWordSuffix sets the suffix marking the last piece of a word.
func WithEndOfWordSuffix(suffix string) TrainerOption {
	return func(t *Trainer) { t.SetEndOfWordSuffix(suffix) }
}

// NewTrainer creates a Trainer with the defaults of the BPE trainer builder, except for the continuing
// subword prefix which defaults to DefaultContinuingSubwordPrefix.
func NewTrainer(opts ...TrainerOption) *Trainer {
	t := &Trainer{
		bpe:    bpe.NewBPETrainerBuilder().Build(),
		prefix: DefaultContinuingSubwordPrefix,
		words:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Trainer returns a new Trainer with default settings.
func (m *Model) Trainer() *Trainer {
	return NewTrainer()
}

func (t *Trainer) MinFrequency() int        { return t.bpe.MinFrequency }
func (t *Trainer) SetMinFrequency(freq int) { t.bpe.MinFrequency = freq }
func (t *Trainer) VocabSize() int           { return t.bpe.VocabSize }
func (t *Trainer) SetVocabSize(size int)    { t.bpe.VocabSize = size }
func (t *Trainer) ShowProgress() bool       { return t.bpe.ShowProgress }
func (t *Trainer) SetShowProgress(show bool) {
	t.bpe.ShowProgress = show
}

// ShouldShowProgress reports whether training logs its progress.
func (t *Trainer) ShouldShowProgress() bool { return t.bpe.ShowProgress }

// SpecialTokens returns a copy of the special tokens.
func (t *Trainer) SpecialTokens() []api.AddedToken { return slices.Clone(t.specialTokens) }

func (t *Trainer) SetSpecialTokens(tokens []api.AddedToken) {
	t.specialTokens = slices.Clone(tokens)
}

// LimitAlphabet returns the limit of the alphabet size, or nil if there is no limit.
func (t *Trainer) LimitAlphabet() *int {
	if t.bpe.LimitAlphabet == nil {
		return nil
	}
	limit := *t.bpe.LimitAlphabet
	return &limit
}

// SetLimitAlphabet sets the limit of the alphabet size. nil or a limit <= 0 removes it.
func (t *Trainer) SetLimitAlphabet(limit *int) {
	if limit == nil || *limit <= 0 {
		t.bpe.LimitAlphabet = nil
		return
	}
	value := *limit
	t.bpe.LimitAlphabet = &value
}

// InitialAlphabet returns a copy of the initial alphabet.
func (t *Trainer) InitialAlphabet() []rune { return slices.Clone(t.initialAlphabet) }

func (t *Trainer) SetInitialAlphabet(alphabet []rune) {
	t.initialAlphabet = slices.Clone(alphabet)
}

func (t *Trainer) ContinuingSubwordPrefix() string { return t.prefix }

func (t *Trainer) SetContinuingSubwordPrefix(prefix string) {
	t.prefix = prefix
}

func (t *Trainer) EndOfWordSuffix() string { return t.suffix }

func (t *Trainer) SetEndOfWordSuffix(suffix string) {
	t.suffix = suffix
}

// Feed counts the words of the sequences, split by process (or on white space if nil).
// Counts accumulate over calls.
func (t *Trainer) Feed(sequences iter.Seq[string], process func(string) ([]string, error)) error {
	if process == nil {
		process = func(s string) ([]string, error) { return strings.Fields(s), nil }
	}
	var count int
	for seq := range sequences {
		words, err := process(seq)
		if err != nil {
			return errors.WithMessagef(err, "chinesewordpiece: while processing sequence #%d", count)
		}
		t.bpe.ProcessTokens(t.words, slices.DeleteFunc(words, func(w string) bool { return w == "" }))
		count++
	}
	if t.ShouldShowProgress() {
		klog.Infof("chinesewordpiece: fed %d sequences, %d distinct words", count, len(t.words))
	}
	return nil
}

// FeedWords adds the given word counts.
func (t *Trainer) FeedWords(counts map[string]int) {
	for w, c := range counts {
		if w != "" && c > 0 {
			t.words[w] += c
		}
	}
}

// Train learns a vocabulary from the fed words and installs it in m, along with the trainer's
// continuing subword prefix ("##" if empty). The unknown token and the maximum characters per word of
// m are kept.
//
// It returns the special tokens added to the vocabulary.
func (t *Trainer) Train(m *Model) ([]api.AddedToken, error) {
	if m == nil {
		return nil, errors.New("chinesewordpiece: Train called with a nil model")
	}
	prefix := t.prefix
	if prefix == "" {
		prefix = DefaultContinuingSubwordPrefix
	}

	// The BPE trainer learns bare pieces: pieces are marked when building the vocabulary.
	bt := *t.bpe
	bt.VocabSize = max(bt.VocabSize-len(t.specialTokens), 1)
	bt.InitialAlphabet = make(bpe.CharSet, len(t.initialAlphabet))
	for _, r := range t.initialAlphabet {
		bt.InitialAlphabet[string(r)] = struct{}{}
	}
	bt.SpecialTokens, bt.ContinuingSubwordPrefix, bt.EndOfWordSuffix = nil, nil, nil
	trained, _ := bt.Train(maps.Clone(t.words))
	pieces, ok := trained.(bpe.BPE)
	if !ok {
		return nil, errors.Errorf("chinesewordpiece: unexpected BPE trainer result %T", trained)
	}

	vocab, err := t.buildVocab(&pieces, prefix)
	if err != nil {
		return nil, err
	}
	converted, err := New(vocab, WithContinuingSubwordPrefix(prefix))
	if err != nil {
		return nil, err
	}

	// The vocabulary, reverse vocabulary, prefix and matcher come from the trained model; the rest of
	// the configuration from the current state of m.
	trainedState := converted.load()
	for {
		current := m.load()
		next := *trainedState
		next.unkToken = current.unkToken
		next.maxInputCharsPerWord = current.maxInputCharsPerWord
		if m.state.CompareAndSwap(current, &next) {
			break
		}
	}
	special := t.SpecialTokens()
	klog.V(1).Infof("chinesewordpiece: trained vocabulary of %d tokens (%d BPE pieces), %d special tokens",
		len(vocab), pieces.GetVocabSize(), len(special))
	return special, nil
}

// buildVocab lays out the WordPiece vocabulary: special tokens, BPE pieces in id order, then the
// marked forms of the characters and pieces of every training word.
func (t *Trainer) buildVocab(pieces *bpe.BPE, prefix string) (map[string]int, error) {
	vocab := make(map[string]int)
	add := func(token string) {
		if _, found := vocab[token]; !found {
			vocab[token] = len(vocab)
		}
	}
	for _, token := range t.specialTokens {
		add(token.Content)
	}
	trainedR := make([]string, 0, pieces.GetVocabSize())
	for token := range pieces.GetVocab() {
		trainedR = append(trainedR, token)
	}
	slices.SortFunc(trainedR, func(a, b string) int {
		idA, _ := pieces.TokenToId(a)
		idB, _ := pieces.TokenToId(b)
		return idA - idB
	})
	for _, token := range trainedR {
		add(token)
	}

	mark := func(piece string, first, last bool) string {
		if !first && !containsCJK(piece) {
			piece = prefix + piece
		}
		if last && t.suffix != "" {
			piece += t.suffix
		}
		return piece
	}
	for _, word := range slices.Sorted(maps.Keys(t.words)) {
		// Words with characters dropped from the alphabet can't be segmented by the BPE model.
		chars := strings.Split(word, "")
		if slices.ContainsFunc(chars, func(char string) bool {
			_, found := pieces.TokenToId(char)
			return !found
		}) {
			continue
		}
		for i, char := range chars {
			if i > 0 || len(chars) == 1 {
				add(mark(char, i == 0, i == len(chars)-1))
			}
		}
		tokens, err := pieces.Tokenize(word)
		if err != nil {
			return nil, errors.Wrapf(err, "chinesewordpiece: failed to segment training word %q", word)
		}
		for i, token := range tokens {
			add(mark(token.Value, i == 0, i == len(tokens)-1))
		}
	}
	return vocab, nil
}
