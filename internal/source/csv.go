package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/andresvega/loaderd/internal/domain"
)

// utf8BOM is stripped from the start of the stream when present;
// spreadsheet exports commonly prepend it.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVReader reads a delimited file as chunks. The header row is
// consumed at open time; every subsequent row becomes one chunk row
// keyed by header name.
type CSVReader struct {
	src       io.ReadCloser
	reader    *csv.Reader
	columns   []string
	chunkSize int
}

// OpenCSV wraps a stream in a chunked CSV reader. The header is read
// immediately; an empty stream is an error.
func OpenCSV(src io.ReadCloser, delimiter rune, chunkSize int) (*CSVReader, error) {
	if chunkSize < 1 {
		chunkSize = 1000
	}

	buffered := bufio.NewReader(src)
	if peeked, err := buffered.Peek(len(utf8BOM)); err == nil && string(peeked) == string(utf8BOM) {
		_, _ = buffered.Discard(len(utf8BOM))
	}

	r := csv.NewReader(buffered)
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("source file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("source file has no columns")
	}

	return &CSVReader{
		src:       src,
		reader:    r,
		columns:   header,
		chunkSize: chunkSize,
	}, nil
}

// Columns returns the header in source order.
func (c *CSVReader) Columns() []string {
	return c.columns
}

// Next reads up to chunkSize rows. Short rows leave missing columns
// nil; surplus cells are dropped. Returns io.EOF once drained.
func (c *CSVReader) Next(ctx context.Context) (*domain.Chunk, error) {
	chunk := &domain.Chunk{Columns: c.columns}
	for len(chunk.Rows) < c.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := c.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		row := make(domain.Row, len(c.columns))
		for i, col := range c.columns {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = nil
			}
		}
		chunk.Rows = append(chunk.Rows, row)
	}
	if len(chunk.Rows) == 0 {
		return nil, io.EOF
	}
	return chunk, nil
}

// Close closes the underlying stream.
func (c *CSVReader) Close() error {
	return c.src.Close()
}
