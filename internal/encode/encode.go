// Package encode tokenizes a corpus in parallel and writes the token ids to a Parquet file, one row per
// corpus line, in the order of the lines.
package encode

import (
	"context"
	"io"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/gomlx/go-zhwordpiece/internal/files"
	"github.com/gomlx/go-zhwordpiece/tokenizers/api"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// RunIDKey is the Parquet key-value metadata key holding the id of the encoding run.
const RunIDKey = "zhwp.run_id"

// DefaultBatchSize is the number of lines tokenized before a batch of rows is written.
const DefaultBatchSize = 1024

// Row is one encoded line.
type Row struct {
	// Line is the index of the line in the input.
	Line int64 `parquet:"line"`

	IDs []int32 `parquet:"ids"`

	// AttentionMask is all ones, one per id: rows are not padded.
	AttentionMask []int32 `parquet:"attention_mask"`
}

// Encoder tokenizes text. *tokenizers.Tokenizer implements it.
type Encoder interface {
	EncodeTokens(text string) ([]api.Token, error)
}

// Options for Encode.
type Options struct {
	// Workers is the maximum number of lines tokenized concurrently. Defaults to runtime.GOMAXPROCS(0).
	Workers int

	// BatchSize is the number of lines tokenized before their rows are written. Defaults to
	// DefaultBatchSize.
	BatchSize int
}

// Stats of an encoding run.
type Stats struct {
	RunID  string
	Rows   int
	Tokens int
}

// Encode tokenizes lines with enc and writes one Row per line to w, in Parquet format.
//
// Lines are tokenized concurrently, but rows are written in the order of lines. The first tokenization
// error cancels the run.
func Encode(ctx context.Context, enc Encoder, lines []string, w io.Writer, opts Options) (Stats, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	stats := Stats{RunID: uuid.NewString()}
	writer := parquet.NewGenericWriter[Row](w, parquet.KeyValueMetadata(RunIDKey, stats.RunID))

	start := time.Now()
	rows := make([]Row, 0, batchSize)
	for batchStart := 0; batchStart < len(lines); batchStart += batchSize {
		batch := lines[batchStart:min(batchStart+batchSize, len(lines))]
		rows = rows[:len(batch)]
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, line := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				tokens, err := enc.EncodeTokens(line)
				if err != nil {
					return errors.WithMessagef(err, "while encoding line %d", batchStart+i)
				}
				rows[i], err = newRow(int64(batchStart+i), tokens)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}
		if _, err := writer.Write(rows); err != nil {
			return stats, errors.Wrapf(err, "failed to write rows %d to %d", batchStart, batchStart+len(batch))
		}
		stats.Rows += len(rows)
		for _, row := range rows {
			stats.Tokens += len(row.IDs)
		}
		klog.V(1).Infof("encode: %d/%d lines, %d tokens, %s", stats.Rows, len(lines), stats.Tokens, time.Since(start))
	}
	if err := writer.Close(); err != nil {
		return stats, errors.Wrap(err, "failed to close Parquet writer")
	}
	return stats, nil
}

// newRow converts the tokens of a line. Ids must fit the int32 column.
func newRow(line int64, tokens []api.Token) (Row, error) {
	row := Row{
		Line:          line,
		IDs:           make([]int32, len(tokens)),
		AttentionMask: make([]int32, len(tokens)),
	}
	for i, token := range tokens {
		if token.ID < 0 || token.ID > math.MaxInt32 {
			return Row{}, errors.Errorf("token %q of line %d has id %d, out of the int32 range", token.Value,
				line, token.ID)
		}
		row.IDs[i] = int32(token.ID)
		row.AttentionMask[i] = 1
	}
	return row, nil
}

// EncodeFile runs Encode writing to the file at path. The file is replaced atomically, so on error
// any previous file is left untouched.
func EncodeFile(ctx context.Context, enc Encoder, lines []string, path string, opts Options) (stats Stats, err error) {
	err = files.WriteAtomic(path, func(w io.Writer) error {
		var encErr error
		stats, encErr = Encode(ctx, enc, lines, w, opts)
		return encErr
	})
	return
}

// ReadFile reads the rows of a file written by EncodeFile, and its run id.
func ReadFile(path string) (rows []Row, runID string, err error) {
	rows, err = parquet.ReadFile[Row](path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to read encoded rows from %q", path)
	}

	osFile, err := os.Open(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to open %q", path)
	}
	defer func() { _ = osFile.Close() }()
	info, err := osFile.Stat()
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to stat %q", path)
	}
	f, err := parquet.OpenFile(osFile, info.Size())
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to open Parquet file %q", path)
	}
	runID, _ = f.Lookup(RunIDKey)
	return rows, runID, nil
}
