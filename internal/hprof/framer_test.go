package hprof

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/heapstream/pkg/errors"
)

func makeRecord(tag byte, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tag)
	binary.Write(&buf, binary.BigEndian, uint32(7)) // time delta
	binary.Write(&buf, binary.BigEndian, uint32(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

// collectRecords feeds chunks through a framer and copies out every record.
func collectRecords(t *testing.T, chunks [][]byte) []RawRecord {
	t.Helper()
	fr := newFramer()
	var records []RawRecord
	for _, chunk := range chunks {
		fr.Feed(chunk)
		for {
			rec, ok, err := fr.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			records = append(records, RawRecord{
				Tag:       rec.Tag,
				TimeDelta: rec.TimeDelta,
				Length:    rec.Length,
				Payload:   append([]byte(nil), rec.Payload...),
			})
		}
	}
	require.NoError(t, fr.Close())
	return records
}

func TestFramer_SingleChunk(t *testing.T) {
	stream := append(makeRecord(0x01, []byte("hello")), makeRecord(0x02, []byte{1, 2, 3, 4})...)

	records := collectRecords(t, [][]byte{stream})
	require.Len(t, records, 2)
	assert.Equal(t, RecordTag(0x01), records[0].Tag)
	assert.Equal(t, uint32(7), records[0].TimeDelta)
	assert.Equal(t, []byte("hello"), records[0].Payload)
	assert.Equal(t, RecordTag(0x02), records[1].Tag)
	assert.Equal(t, []byte{1, 2, 3, 4}, records[1].Payload)
}

func TestFramer_ZeroCopyWithinChunk(t *testing.T) {
	chunk := makeRecord(0x01, []byte("payload"))

	fr := newFramer()
	fr.Feed(chunk)
	rec, ok, err := fr.Next()
	require.NoError(t, err)
	require.True(t, ok)
	// A record fully inside the chunk must be sliced, not copied.
	assert.Same(t, &chunk[recordHeaderLen], &rec.Payload[0])
}

func TestFramer_EmptyPayloadRecord(t *testing.T) {
	records := collectRecords(t, [][]byte{makeRecord(0x2C, nil)})
	require.Len(t, records, 1)
	assert.Equal(t, uint32(0), records[0].Length)
	assert.Empty(t, records[0].Payload)
}

func TestFramer_SplitAtEveryOffset(t *testing.T) {
	stream := append(makeRecord(0x01, []byte("first-payload")), makeRecord(0x1C, bytes.Repeat([]byte{0xAB}, 40))...)
	want := collectRecords(t, [][]byte{stream})

	for cut := 1; cut < len(stream); cut++ {
		got := collectRecords(t, [][]byte{stream[:cut], stream[cut:]})
		require.Equal(t, want, got, "split at offset %d", cut)
	}
}

func TestFramer_ByteByByteFeed(t *testing.T) {
	stream := append(makeRecord(0x01, []byte("abc")), makeRecord(0x05, []byte("defgh"))...)
	want := collectRecords(t, [][]byte{stream})

	chunks := make([][]byte, len(stream))
	for i := range stream {
		chunks[i] = stream[i : i+1]
	}
	got := collectRecords(t, chunks)
	assert.Equal(t, want, got)
}

func TestFramer_TruncatedRecord(t *testing.T) {
	stream := makeRecord(0x01, []byte("hello"))

	for cut := 1; cut < len(stream); cut++ {
		fr := newFramer()
		fr.Feed(stream[:cut])
		for {
			_, ok, err := fr.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
		}
		err := fr.Close()
		require.Error(t, err, "cut at %d", cut)
		assert.Equal(t, apperrors.CodeTruncatedRecord, apperrors.GetErrorCode(err))
	}
}

func TestFramer_CleanEOF(t *testing.T) {
	fr := newFramer()
	assert.NoError(t, fr.Close())
}
