package validation

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/branchops/csv-validator/internal/models"
	"github.com/branchops/csv-validator/pkg/checksum"
)

// ErrEmptyFile marks a file with no content at all, not even a header.
var ErrEmptyFile = errors.New("file is empty")

// DefaultChunkSize bounds how much of a file is held in memory at once.
const DefaultChunkSize = 64 * 1024

// ChunkedReader streams a delimited file in fixed-size chunks, decoding
// exactly one header followed by a finite, forward-only sequence of numbered
// data rows. Row numbers are 1-based and exclude the header; blank lines are
// skipped but keep their physical position in the numbering. The reader is
// not restartable mid-stream.
type ChunkedReader struct {
	r        io.Reader
	filename string
	chunk    []byte
	pending  []byte
	lines    []string
	digest   *checksum.Digest
	lineNo   int
	eof      bool
	err      error
}

// NewChunkedReader wraps a byte stream. chunkSize <= 0 selects the default.
func NewChunkedReader(r io.Reader, filename string, chunkSize int) *ChunkedReader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ChunkedReader{
		r:        r,
		filename: filename,
		chunk:    make([]byte, chunkSize),
		digest:   checksum.NewDigest(),
	}
}

// Header reads and returns the first line of the file. It must be called
// before Next. An empty file yields ErrEmptyFile.
func (c *ChunkedReader) Header() (string, error) {
	line, ok, err := c.nextLine()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrEmptyFile
	}
	return line, nil
}

// Next returns the next data row, or io.EOF once the file is exhausted.
// Any read failure is sticky and surfaces on every subsequent call.
func (c *ChunkedReader) Next() (models.RawRow, error) {
	for {
		line, ok, err := c.nextLine()
		if err != nil {
			return models.RawRow{}, err
		}
		if !ok {
			return models.RawRow{}, io.EOF
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		return models.RawRow{
			Number:   c.lineNo - 1, // header holds physical line 1
			Fields:   strings.Split(line, FieldDelimiter),
			Raw:      line,
			Filename: c.filename,
		}, nil
	}
}

// Checksum returns the fingerprint of every byte consumed so far. It is
// complete once Next has returned io.EOF.
func (c *ChunkedReader) Checksum() string {
	return c.digest.Sum()
}

// nextLine yields the next physical line, reading further chunks on demand.
func (c *ChunkedReader) nextLine() (string, bool, error) {
	if c.err != nil {
		return "", false, c.err
	}

	for len(c.lines) == 0 && !c.eof {
		if err := c.readChunk(); err != nil {
			c.err = &models.FileReadError{Filename: c.filename, Err: err}
			return "", false, c.err
		}
	}

	if len(c.lines) == 0 {
		return "", false, nil
	}

	line := c.lines[0]
	c.lines = c.lines[1:]
	c.lineNo++
	return line, true, nil
}

func (c *ChunkedReader) readChunk() error {
	n, err := c.r.Read(c.chunk)
	if n > 0 {
		c.digest.Write(c.chunk[:n])
		c.pending = append(c.pending, c.chunk[:n]...)
		c.splitPending()
	}
	if err == io.EOF {
		c.eof = true
		if len(c.pending) > 0 {
			c.lines = append(c.lines, trimLine(c.pending))
			c.pending = nil
		}
		return nil
	}
	return err
}

// splitPending moves every complete line out of the pending buffer, keeping
// a trailing partial line for the next chunk.
func (c *ChunkedReader) splitPending() {
	for {
		idx := bytes.IndexByte(c.pending, '\n')
		if idx < 0 {
			return
		}
		c.lines = append(c.lines, trimLine(c.pending[:idx]))
		c.pending = c.pending[idx+1:]
	}
}

func trimLine(b []byte) string {
	return strings.TrimSuffix(string(b), "\r")
}
