// Package checksum provides fast content fingerprints used to recognize
// unchanged files across validation runs.
package checksum

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Digest accumulates streamed content into an xxhash fingerprint.
type Digest struct {
	h *xxhash.Digest
}

// NewDigest returns an empty digest.
func NewDigest() *Digest {
	return &Digest{h: xxhash.New()}
}

// Write adds content to the digest. It never returns an error.
func (d *Digest) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Sum returns the hex fingerprint of everything written so far.
func (d *Digest) Sum() string {
	return fmt.Sprintf("%016x", d.h.Sum64())
}

// Sum fingerprints a byte slice.
func Sum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// SumFields fingerprints one delimited record.
func SumFields(fields []string) string {
	return Sum([]byte(strings.Join(fields, ";")))
}

// File fingerprints a whole file by streaming it.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	d := NewDigest()
	if _, err := io.Copy(d, f); err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return d.Sum(), nil
}
