package chinesewordpiece

import (
	"bufio"
	"cmp"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/gomlx/go-zhwordpiece/internal/files"
	"github.com/pkg/errors"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// VocabFileName is the name of the vocabulary file written by Save.
const VocabFileName = "vocab.txt"

// maxVocabLineBytes limits the length of a line in a vocabulary file.
const maxVocabLineBytes = 1 << 20

// ReadVocabFile reads a vocabulary file: one token per line, the 0-based line number being its id.
//
// Trailing white space is trimmed from each line, and a UTF-8 byte order mark at the start of the file
// is ignored. If a token appears more than once, the last line wins.
func ReadVocabFile(vocabPath string) (map[string]int, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open vocabulary file %q", vocabPath)
	}
	defer func() { _ = f.Close() }()
	vocab, err := ReadVocab(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "while reading vocabulary file %q", vocabPath)
	}
	return vocab, nil
}

// ReadVocab reads a vocabulary in the format of ReadVocabFile.
func ReadVocab(r io.Reader) (map[string]int, error) {
	scanner := bufio.NewScanner(transform.NewReader(r, xunicode.UTF8BOM.NewDecoder()))
	scanner.Buffer(make([]byte, 0, 64*1024), maxVocabLineBytes)
	vocab := make(map[string]int)
	var lineNum int
	for scanner.Scan() {
		token := strings.TrimRightFunc(scanner.Text(), unicode.IsSpace)
		vocab[token] = lineNum
		lineNum++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading vocabulary line #%d", lineNum)
	}
	return vocab, nil
}

// WriteVocab writes the vocabulary sorted by ascending id, one token per line. Ids are not written:
// reading it back assigns ids by line number, which reproduces the vocabulary if its ids are 0..N-1.
//
// Tokens that ReadVocab would read back differently are rejected: tokens with line breaks or trailing
// white space, and a first token starting with a byte order mark.
func WriteVocab(w io.Writer, vocab map[string]int) error {
	tokens := make([]string, 0, len(vocab))
	for token := range vocab {
		if strings.ContainsAny(token, "\n\r") {
			return errors.Errorf("token %q contains a line break and can't be written to a vocabulary file", token)
		}
		if strings.TrimRightFunc(token, unicode.IsSpace) != token {
			return errors.Errorf("token %q ends with white space and can't be written to a vocabulary file", token)
		}
		tokens = append(tokens, token)
	}
	slices.SortFunc(tokens, func(a, b string) int {
		return cmp.Compare(vocab[a], vocab[b])
	})
	if len(tokens) > 0 && strings.HasPrefix(tokens[0], "\ufeff") {
		return errors.Errorf("first token %q starts with a byte order mark and can't be written to a vocabulary file",
			tokens[0])
	}
	for _, token := range tokens {
		if _, err := io.WriteString(w, token+"\n"); err != nil {
			return errors.Wrapf(err, "writing token %q", token)
		}
	}
	return nil
}

// WriteVocabFile atomically writes the vocabulary file in the format of WriteVocab.
func WriteVocabFile(vocabPath string, vocab map[string]int) error {
	return files.WriteAtomic(vocabPath, func(w io.Writer) error {
		return WriteVocab(w, vocab)
	})
}

// Save writes the vocabulary to dir, in a file named VocabFileName, or "<prefix>-vocab.txt" if prefix
// is not empty. It returns the path of the written file.
func (m *Model) Save(dir, prefix string) ([]string, error) {
	name := VocabFileName
	if prefix != "" {
		name = prefix + "-" + VocabFileName
	}
	vocabPath := filepath.Join(dir, name)
	if err := WriteVocabFile(vocabPath, m.load().vocab); err != nil {
		return nil, errors.WithMessagef(err, "while saving %s model", TypeName)
	}
	return []string{vocabPath}, nil
}
