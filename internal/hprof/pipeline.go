package hprof

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/heapstream/pkg/collections"
	"github.com/heapstream/pkg/compression"
	apperrors "github.com/heapstream/pkg/errors"
	"github.com/heapstream/pkg/model"
	"github.com/heapstream/pkg/utils"
)

const (
	// DefaultChunkSize is the read buffer size when none is configured.
	DefaultChunkSize = 1 << 20

	// DefaultTopN is the default ranking depth.
	DefaultTopN = 20

	// Channel depths bound the in-flight memory to a small multiple of the
	// chunk size while still letting I/O run ahead of parsing.
	chunkChannelDepth = 4
	eventChannelDepth = 4

	// eventBatchSize amortizes channel synchronization across many events.
	eventBatchSize = 4096
)

// Options configures one analyzer run.
type Options struct {
	// Path is the dump file to analyze.
	Path string
	// TopN is the number of rows kept in each ranking (default 20).
	TopN int
	// ListStrings includes the sorted UTF-8 string table in the result.
	ListStrings bool
	// ChunkSize is the read buffer size in bytes (default 1 MiB).
	ChunkSize int
	// ClassFilter restricts ranking rows to class names containing it.
	ClassFilter string
	// Debug enables verbose per-record logging.
	Debug bool
	// Logger receives pipeline diagnostics. Nil suppresses them.
	Logger utils.Logger
}

func (o Options) withDefaults() Options {
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Logger == nil {
		o.Logger = &utils.NullLogger{}
	}
	return o
}

// Run opens the dump file (transparently inflating gzipped dumps) and
// analyzes it.
func Run(ctx context.Context, opts Options) (*model.Result, error) {
	opts = opts.withDefaults()

	f, err := os.Open(opts.Path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, "failed to open input file", err)
	}
	defer f.Close()

	r, err := compression.NewAutoReader(f)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, "failed to probe input file", err)
	}

	return RunStream(ctx, r, opts)
}

// RunStream analyzes an HPROF byte stream. The header is parsed
// synchronously; reading, parsing and aggregation then run on three
// goroutines connected by bounded channels, so I/O overlaps decoding and
// table updates. The first stage error cancels the others and becomes the
// pipeline's failure; no partial result is ever returned.
func RunStream(ctx context.Context, r io.Reader, opts Options) (*model.Result, error) {
	opts = opts.withDefaults()

	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("parsed header: format=%q id_size=%d", header.Format, header.IDSize)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := collections.NewBufferPool(opts.ChunkSize)
	batchPool := collections.NewSlicePool[Event](eventBatchSize)
	chunks := make(chan []byte, chunkChannelDepth)
	events := make(chan []Event, eventChannelDepth)

	reader := newChunkReader(r, pool, opts.ChunkSize)
	agg := newAggregator(header, opts.TopN, opts.ListStrings, opts.ClassFilter)

	errs := make(chan error, 2)
	resultCh := make(chan *model.Result, 1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := reader.run(ctx, chunks); err != nil {
			errs <- err
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(events)
		if err := runParseStage(ctx, chunks, events, pool, batchPool, opts.Logger, opts.Debug); err != nil {
			errs <- err
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for batch := range events {
			for i := range batch {
				agg.Apply(&batch[i])
			}
			batchPool.Put(batch)
		}
		resultCh <- agg.Finalize()
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, context.Canceled) {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return <-resultCh, nil
}

// runParseStage frames chunks into records and decodes them into event
// batches. The framer and parser are fused on one goroutine so zero-copy
// payload slices never outlive the chunk they point into.
func runParseStage(
	ctx context.Context,
	chunks <-chan []byte,
	events chan<- []Event,
	pool *collections.BufferPool,
	batchPool *collections.SlicePool[Event],
	logger utils.Logger,
	debug bool,
) error {
	fr := newFramer()
	parser := newRecordParser(logger, debug)
	batch := batchPool.Get()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		select {
		case events <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
		batch = batchPool.Get()
		return nil
	}

	for chunk := range chunks {
		fr.Feed(chunk)
		for {
			rec, ok, err := fr.Next()
			if err != nil {
				pool.Put(chunk)
				return err
			}
			if !ok {
				break
			}
			if err := parser.ParseRecord(rec, &batch); err != nil {
				pool.Put(chunk)
				return err
			}
			if len(batch) >= eventBatchSize {
				if err := flush(); err != nil {
					pool.Put(chunk)
					return err
				}
			}
		}
		pool.Put(chunk)
	}

	// The chunk channel may have closed because the reader was cancelled;
	// in that case the carry buffer is not evidence of truncation.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fr.Close(); err != nil {
		return err
	}
	return flush()
}
