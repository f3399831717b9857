// Package compression provides transparent inflation of compressed inputs.
package compression

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
)

// gzip magic bytes
const (
	gzipID1 = 0x1f
	gzipID2 = 0x8b
)

// NewAutoReader wraps r so that gzip-compressed streams are inflated
// transparently. Heap dumps are often shipped as .hprof.gz; the probe looks
// at the first two bytes only and never consumes from the underlying reader
// beyond its buffer. Inputs shorter than the probe are passed through
// untouched so the caller reports the real format error.
func NewAutoReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	magic, err := br.Peek(2)
	if err != nil {
		// Too short to be compressed; let the consumer fail on content.
		return br, nil
	}

	if magic[0] == gzipID1 && magic[1] == gzipID2 {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return gz, nil
	}

	return br, nil
}

// IsGzip reports whether the buffer starts with the gzip magic bytes.
func IsGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == gzipID1 && b[1] == gzipID2
}
