// Package config loads the zhwp command line configuration from, in increasing priority: defaults, a
// config file (yaml|toml|json), ZHWP_ environment variables and flags.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix of the environment variables, e.g.: ZHWP_MODEL_VOCAB_PATH.
const EnvPrefix = "ZHWP"

// Config file searched in the current directory when none is given.
const defaultConfigName = "zhwp"

type Config struct {
	Model        ModelConfig        `mapstructure:"model"`
	PreTokenizer PreTokenizerConfig `mapstructure:"pre_tokenizer"`
	Corpus       CorpusConfig       `mapstructure:"corpus"`
	Train        TrainConfig        `mapstructure:"train"`
	Encode       EncodeConfig       `mapstructure:"encode"`
}

type ModelConfig struct {
	// VocabPath is a vocab.txt file, a serialized model (.json) or a tokenizer.json file.
	VocabPath               string `mapstructure:"vocab_path"`
	UnkToken                string `mapstructure:"unk_token"`
	ContinuingSubwordPrefix string `mapstructure:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int    `mapstructure:"max_input_chars_per_word"`
	CacheSize               int    `mapstructure:"cache_size"`
}

type PreTokenizerConfig struct {
	Kind       string   `mapstructure:"kind"`
	JiebaDicts []string `mapstructure:"jieba_dicts"`
	HMM        bool     `mapstructure:"hmm"`

	// NFC normalizes input text to Unicode NFC before tokenizing.
	NFC bool `mapstructure:"nfc"`
}

type CorpusConfig struct {
	MinBytes int `mapstructure:"min_bytes"`
	MaxLines int `mapstructure:"max_lines"`
}

type TrainConfig struct {
	VocabSize     int      `mapstructure:"vocab_size"`
	MinFrequency  int      `mapstructure:"min_frequency"`
	LimitAlphabet int      `mapstructure:"limit_alphabet"`
	SpecialTokens []string `mapstructure:"special_tokens"`
	ShowProgress  bool     `mapstructure:"show_progress"`
	OutputDir     string   `mapstructure:"output_dir"`
	OutputPrefix  string   `mapstructure:"output_prefix"`
}

type EncodeConfig struct {
	Workers   int    `mapstructure:"workers"`
	BatchSize int    `mapstructure:"batch_size"`
	Output    string `mapstructure:"output"`
}

// Pre-tokenizer kinds.
const (
	PreTokenizerWhitespace = "whitespace"
	PreTokenizerBert       = "bert"
	PreTokenizerJieba      = "jieba"
)

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Model: ModelConfig{
			VocabPath:               "vocab.txt",
			UnkToken:                "[UNK]",
			ContinuingSubwordPrefix: "##",
			MaxInputCharsPerWord:    100,
			CacheSize:               10000,
		},
		PreTokenizer: PreTokenizerConfig{
			Kind: PreTokenizerBert,
			HMM:  true,
		},
		Corpus: CorpusConfig{
			MinBytes: 0,
			MaxLines: 0,
		},
		Train: TrainConfig{
			VocabSize:     30000,
			SpecialTokens: []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]"},
			ShowProgress:  true,
			OutputDir:     ".",
		},
		Encode: EncodeConfig{
			Workers:   0,
			BatchSize: 1024,
			Output:    "encoded.parquet",
		},
	}
}

// binding ties a configuration key to its flag.
type binding struct {
	key, flag string
}

var bindings = []binding{
	{"model.vocab_path", "model-vocab-path"},
	{"model.unk_token", "model-unk-token"},
	{"model.continuing_subword_prefix", "model-continuing-subword-prefix"},
	{"model.max_input_chars_per_word", "model-max-input-chars-per-word"},
	{"model.cache_size", "model-cache-size"},
	{"pre_tokenizer.kind", "pre-tokenizer-kind"},
	{"pre_tokenizer.jieba_dicts", "pre-tokenizer-jieba-dicts"},
	{"pre_tokenizer.hmm", "pre-tokenizer-hmm"},
	{"pre_tokenizer.nfc", "pre-tokenizer-nfc"},
	{"corpus.min_bytes", "corpus-min-bytes"},
	{"corpus.max_lines", "corpus-max-lines"},
	{"train.vocab_size", "train-vocab-size"},
	{"train.min_frequency", "train-min-frequency"},
	{"train.limit_alphabet", "train-limit-alphabet"},
	{"train.special_tokens", "train-special-tokens"},
	{"train.show_progress", "train-show-progress"},
	{"train.output_dir", "train-output-dir"},
	{"train.output_prefix", "train-output-prefix"},
	{"encode.workers", "encode-workers"},
	{"encode.batch_size", "encode-batch-size"},
	{"encode.output", "encode-output"},
}

// flagAliases maps short flag names to the canonical ones.
var flagAliases = map[string]string{
	"vocab":         "model-vocab-path",
	"unk":           "model-unk-token",
	"pretokenizer":  "pre-tokenizer-kind",
	"min-bytes":     "corpus-min-bytes",
	"vocab-size":    "train-vocab-size",
	"workers":       "encode-workers",
	"output":        "encode-output",
	"output-dir":    "train-output-dir",
	"special-token": "train-special-tokens",
}

// NormalizeFlagName resolves flag aliases, for pflag.FlagSet.SetNormalizeFunc.
func NormalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if canonical, found := flagAliases[name]; found {
		name = canonical
	}
	return pflag.NormalizedName(name)
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.SetNormalizeFunc(NormalizeFlagName)
	fs.String("model-vocab-path", defaults.Model.VocabPath, "Vocabulary: vocab.txt, serialized model (.json) or tokenizer.json (alias --vocab)")
	fs.String("model-unk-token", defaults.Model.UnkToken, "Unknown token (alias --unk)")
	fs.String("model-continuing-subword-prefix", defaults.Model.ContinuingSubwordPrefix, "Prefix of the pieces that continue a word")
	fs.Int("model-max-input-chars-per-word", defaults.Model.MaxInputCharsPerWord, "Longer words are mapped to the unknown token")
	fs.Int("model-cache-size", defaults.Model.CacheSize, "Number of tokenized words cached, 0 to disable")
	fs.String("pre-tokenizer-kind", defaults.PreTokenizer.Kind, "Pre-tokenizer: whitespace, bert or jieba (alias --pretokenizer)")
	fs.StringSlice("pre-tokenizer-jieba-dicts", defaults.PreTokenizer.JiebaDicts, "Dictionary files for the jieba pre-tokenizer, gse's default if empty")
	fs.Bool("pre-tokenizer-hmm", defaults.PreTokenizer.HMM, "Use the HMM in the jieba pre-tokenizer for words not in the dictionary")
	fs.Bool("pre-tokenizer-nfc", defaults.PreTokenizer.NFC, "Normalize input text to Unicode NFC")
	fs.Int("corpus-min-bytes", defaults.Corpus.MinBytes, "Skip corpus lines shorter than this many bytes (alias --min-bytes)")
	fs.Int("corpus-max-lines", defaults.Corpus.MaxLines, "Maximum number of corpus lines read, 0 for all")
	fs.Int("train-vocab-size", defaults.Train.VocabSize, "Target vocabulary size (alias --vocab-size)")
	fs.Int("train-min-frequency", defaults.Train.MinFrequency, "Minimum frequency of a merged pair")
	fs.Int("train-limit-alphabet", defaults.Train.LimitAlphabet, "Maximum number of initial characters, 0 for no limit")
	fs.StringSlice("train-special-tokens", defaults.Train.SpecialTokens, "Special tokens placed first in the vocabulary (alias --special-token)")
	fs.Bool("train-show-progress", defaults.Train.ShowProgress, "Log training progress")
	fs.String("train-output-dir", defaults.Train.OutputDir, "Directory where trained files are saved (alias --output-dir)")
	fs.String("train-output-prefix", defaults.Train.OutputPrefix, "Prefix of the trained file names")
	fs.Int("encode-workers", defaults.Encode.Workers, "Lines tokenized concurrently, 0 for the number of CPUs (alias --workers)")
	fs.Int("encode-batch-size", defaults.Encode.BatchSize, "Lines tokenized per batch of written rows")
	fs.String("encode-output", defaults.Encode.Output, "Parquet file written by encode (alias --output)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		fs := opts.Cmd.Flags()
		for _, b := range bindings {
			flag := fs.Lookup(b.flag)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(b.key, flag); err != nil {
				return Config{}, errors.Wrapf(err, "bind flag --%s", b.flag)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config file %q", opts.ConfigFile)
		}
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, errors.Wrap(err, "read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("model.vocab_path", c.Model.VocabPath)
	v.SetDefault("model.unk_token", c.Model.UnkToken)
	v.SetDefault("model.continuing_subword_prefix", c.Model.ContinuingSubwordPrefix)
	v.SetDefault("model.max_input_chars_per_word", c.Model.MaxInputCharsPerWord)
	v.SetDefault("model.cache_size", c.Model.CacheSize)
	v.SetDefault("pre_tokenizer.kind", c.PreTokenizer.Kind)
	v.SetDefault("pre_tokenizer.jieba_dicts", c.PreTokenizer.JiebaDicts)
	v.SetDefault("pre_tokenizer.hmm", c.PreTokenizer.HMM)
	v.SetDefault("pre_tokenizer.nfc", c.PreTokenizer.NFC)
	v.SetDefault("corpus.min_bytes", c.Corpus.MinBytes)
	v.SetDefault("corpus.max_lines", c.Corpus.MaxLines)
	v.SetDefault("train.vocab_size", c.Train.VocabSize)
	v.SetDefault("train.min_frequency", c.Train.MinFrequency)
	v.SetDefault("train.limit_alphabet", c.Train.LimitAlphabet)
	v.SetDefault("train.special_tokens", c.Train.SpecialTokens)
	v.SetDefault("train.show_progress", c.Train.ShowProgress)
	v.SetDefault("train.output_dir", c.Train.OutputDir)
	v.SetDefault("train.output_prefix", c.Train.OutputPrefix)
	v.SetDefault("encode.workers", c.Encode.Workers)
	v.SetDefault("encode.batch_size", c.Encode.BatchSize)
	v.SetDefault("encode.output", c.Encode.Output)
}

// NormalizePreTokenizer returns the canonical pre-tokenizer kind, case-insensitive. Empty defaults to
// "bert".
func NormalizePreTokenizer(kind string) (string, error) {
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case "":
		return PreTokenizerBert, nil
	case PreTokenizerWhitespace, PreTokenizerBert, PreTokenizerJieba:
		return k, nil
	default:
		return "", errors.Errorf("invalid pre-tokenizer %q, valid values are %q, %q and %q", kind,
			PreTokenizerWhitespace, PreTokenizerBert, PreTokenizerJieba)
	}
}

// Validate checks the values and normalizes the pre-tokenizer kind.
func (c *Config) Validate() error {
	kind, err := NormalizePreTokenizer(c.PreTokenizer.Kind)
	if err != nil {
		return err
	}
	c.PreTokenizer.Kind = kind
	switch {
	case c.Model.MaxInputCharsPerWord < 0:
		return errors.Errorf("model.max_input_chars_per_word must be >= 0, got %d", c.Model.MaxInputCharsPerWord)
	case c.Model.CacheSize < 0:
		return errors.Errorf("model.cache_size must be >= 0, got %d", c.Model.CacheSize)
	case c.Corpus.MinBytes < 0 || c.Corpus.MaxLines < 0:
		return errors.Errorf("corpus.min_bytes and corpus.max_lines must be >= 0, got %d and %d",
			c.Corpus.MinBytes, c.Corpus.MaxLines)
	case c.Train.VocabSize < 0 || c.Train.MinFrequency < 0 || c.Train.LimitAlphabet < 0:
		return errors.New("train.vocab_size, train.min_frequency and train.limit_alphabet must be >= 0")
	case c.Encode.Workers < 0 || c.Encode.BatchSize < 0:
		return errors.Errorf("encode.workers and encode.batch_size must be >= 0, got %d and %d",
			c.Encode.Workers, c.Encode.BatchSize)
	}
	return nil
}
