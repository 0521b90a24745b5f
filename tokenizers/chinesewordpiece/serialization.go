package chinesewordpiece

import (
	"bytes"
	"encoding/json"
	"os"
	"slices"
	"strconv"

	"github.com/pkg/errors"
)

// record is the serialized form of a Model.
type record struct {
	Type                    string          `json:"type"`
	UnkToken                string          `json:"unk_token"`
	ContinuingSubwordPrefix string          `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int             `json:"max_input_chars_per_word"`
	Vocab                   json.RawMessage `json:"vocab"`
}

// requiredFields of a serialized record, in the order they are checked. "type" is optional.
var requiredFields = []string{"unk_token", "continuing_subword_prefix", "max_input_chars_per_word", "vocab"}

// wordPieceTypeName is the type of HuggingFace WordPiece models, which share the record format.
const wordPieceTypeName = "WordPiece"

// MarshalJSON implements json.Marshaler. The vocabulary is written ordered by ascending id.
func (m *Model) MarshalJSON() ([]byte, error) {
	s := m.load()
	vocab, err := marshalOrderedVocab(s.vocabR)
	if err != nil {
		return nil, err
	}
	return marshalNoEscape(record{
		Type:                    TypeName,
		UnkToken:                s.unkToken,
		ContinuingSubwordPrefix: s.prefix,
		MaxInputCharsPerWord:    s.maxInputCharsPerWord,
		Vocab:                   vocab,
	})
}

func marshalOrderedVocab(vocabR map[int]string) (json.RawMessage, error) {
	ids := make([]int, 0, len(vocabR))
	for id := range vocabR {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(vocabR[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(id))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalNoEscape is json.Marshal without HTML escaping: tokens like "<s>" are kept readable.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrapf(err, "failed to serialize %s model", TypeName)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON implements json.Unmarshaler. The new configuration replaces the current one atomically.
//
// It returns a *InvalidDiscriminantError if "type" is present and not TypeName, and a
// *MissingFieldError naming the first missing required field.
func (m *Model) UnmarshalJSON(data []byte) error {
	s, err := unmarshalState(data, false)
	if err != nil {
		return err
	}
	m.state.Store(s)
	return nil
}

// FromJSON creates a Model from its serialized form, see MarshalJSON.
func FromJSON(data []byte) (*Model, error) {
	m := &Model{}
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalState(data []byte, acceptWordPiece bool) (*vocabState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s model", TypeName)
	}
	if rawType, found := fields["type"]; found {
		var typeName string
		if err := json.Unmarshal(rawType, &typeName); err != nil {
			return nil, errors.Wrapf(err, "invalid \"type\" field")
		}
		if typeName != TypeName && !(acceptWordPiece && typeName == wordPieceTypeName) {
			return nil, &InvalidDiscriminantError{Got: typeName}
		}
	}
	for _, field := range requiredFields {
		if _, found := fields[field]; !found {
			return nil, &MissingFieldError{Field: field}
		}
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s model", TypeName)
	}
	var vocab map[string]int
	if err := json.Unmarshal(rec.Vocab, &vocab); err != nil {
		return nil, errors.Wrapf(err, "invalid \"vocab\" field")
	}
	return newVocabState(vocab, options{
		unkToken:             rec.UnkToken,
		prefix:               rec.ContinuingSubwordPrefix,
		maxInputCharsPerWord: rec.MaxInputCharsPerWord,
	})
}

// FromTokenizerJSON creates a Model from the "model" section of a HuggingFace tokenizer.json file.
// Both "ChineseWordPiece" and "WordPiece" model types are accepted.
func FromTokenizerJSON(content []byte) (*Model, error) {
	var tj struct {
		Model json.RawMessage `json:"model"`
	}
	if err := json.Unmarshal(content, &tj); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer.json")
	}
	if len(tj.Model) == 0 || string(tj.Model) == "null" {
		return nil, &MissingFieldError{Field: "model"}
	}
	s, err := unmarshalState(tj.Model, true)
	if err != nil {
		return nil, errors.WithMessagef(err, "in tokenizer.json \"model\" section")
	}
	m := &Model{}
	m.state.Store(s)
	return m, nil
}

// NewFromTokenizerFile creates a Model from a local tokenizer.json file, see FromTokenizerJSON.
func NewFromTokenizerFile(filePath string) (*Model, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	return FromTokenizerJSON(content)
}
