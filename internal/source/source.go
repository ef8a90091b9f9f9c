// Package source reads tabular files as a stream of fixed-size chunks,
// so loads never hold a whole file in memory.
package source

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/andresvega/loaderd/internal/domain"
)

// ChunkReader yields consecutive chunks of a tabular source. Columns
// returns the header in source order and is valid after the first
// successful Next call (or immediately for formats with a header row).
type ChunkReader interface {
	// Next returns the next chunk, or io.EOF when the source is drained.
	Next(ctx context.Context) (*domain.Chunk, error)

	// Columns returns the source column names in order.
	Columns() []string

	Close() error
}

// Open picks a reader for the file by extension. Only comma-separated
// files are supported; the delimiter can be overridden for
// semicolon- or tab-separated variants via OpenCSV.
func Open(r io.ReadCloser, fileName string, chunkSize int) (ChunkReader, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".tsv":
		return OpenCSV(r, '\t', chunkSize)
	default:
		return OpenCSV(r, ',', chunkSize)
	}
}
