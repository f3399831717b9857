package hprof

import (
	"context"
	"io"

	"github.com/heapstream/pkg/collections"
	apperrors "github.com/heapstream/pkg/errors"
)

// chunkReader reads the input stream in fixed-size chunks into pooled
// buffers and publishes them on a bounded channel. It never interprets the
// bytes it reads.
type chunkReader struct {
	r         io.Reader
	pool      *collections.BufferPool
	chunkSize int
}

func newChunkReader(r io.Reader, pool *collections.BufferPool, chunkSize int) *chunkReader {
	return &chunkReader{r: r, pool: pool, chunkSize: chunkSize}
}

// run reads chunks until EOF or error, sending each on out. The channel is
// closed on return so the downstream stage observes end-of-stream. Sends
// select on ctx so a failed downstream stage does not leave the reader
// blocked against a full channel.
func (cr *chunkReader) run(ctx context.Context, out chan<- []byte) error {
	defer close(out)

	for {
		buf := cr.pool.Get()[:cr.chunkSize]
		n, err := io.ReadFull(cr.r, buf)
		if n > 0 {
			select {
			case out <- buf[:n]:
			case <-ctx.Done():
				cr.pool.Put(buf)
				return ctx.Err()
			}
		} else {
			cr.pool.Put(buf)
		}

		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return nil
		default:
			return apperrors.Wrap(apperrors.CodeIO, "failed to read input", err)
		}
	}
}
