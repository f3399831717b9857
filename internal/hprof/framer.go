package hprof

import (
	"encoding/binary"

	apperrors "github.com/heapstream/pkg/errors"
)

// recordHeaderLen is tag (1) + timestamp delta (4) + payload length (4).
const recordHeaderLen = 9

// RawRecord is a framed top-level HPROF record. Payload aliases the framer's
// current chunk or carry buffer and is only valid until the next Feed or
// Next call.
type RawRecord struct {
	Tag       RecordTag
	TimeDelta uint32
	Length    uint32
	Payload   []byte
}

// framer converts a sequence of arbitrary-sized chunks into a sequence of
// complete top-level records. Records fully contained in the current chunk
// are emitted as zero-copy slices; records spanning a chunk boundary are
// assembled in a carry buffer.
type framer struct {
	carry []byte
	chunk []byte
	off   int
}

func newFramer() *framer {
	return &framer{}
}

// Feed hands the next chunk to the framer. It must only be called once the
// previous chunk is exhausted (Next returned ok=false).
func (f *framer) Feed(chunk []byte) {
	f.chunk = chunk
	f.off = 0
}

// Next returns the next complete record. ok=false means the current chunk is
// exhausted and any partial record bytes were moved into the carry buffer;
// the caller may then release the chunk and Feed the next one.
func (f *framer) Next() (rec RawRecord, ok bool, err error) {
	if len(f.carry) > 0 {
		return f.nextFromCarry()
	}

	avail := len(f.chunk) - f.off
	if avail == 0 {
		return RawRecord{}, false, nil
	}
	if avail < recordHeaderLen {
		f.stashRemainder()
		return RawRecord{}, false, nil
	}

	length := binary.BigEndian.Uint32(f.chunk[f.off+5 : f.off+9])
	total := recordHeaderLen + int(length)
	if avail < total {
		f.stashRemainder()
		return RawRecord{}, false, nil
	}

	rec = sliceRecord(f.chunk[f.off : f.off+total])
	f.off += total
	return rec, true, nil
}

// nextFromCarry completes the partial record held in the carry buffer with
// bytes from the current chunk.
func (f *framer) nextFromCarry() (RawRecord, bool, error) {
	if len(f.carry) < recordHeaderLen {
		f.take(recordHeaderLen - len(f.carry))
		if len(f.carry) < recordHeaderLen {
			return RawRecord{}, false, nil
		}
	}

	length := binary.BigEndian.Uint32(f.carry[5:9])
	total := recordHeaderLen + int(length)
	if len(f.carry) < total {
		f.take(total - len(f.carry))
		if len(f.carry) < total {
			return RawRecord{}, false, nil
		}
	}

	rec := sliceRecord(f.carry[:total])
	// The carry holds exactly one record; bytes past it were never moved in.
	// The emitted payload stays valid until the next framer call.
	f.carry = f.carry[:0]
	return rec, true, nil
}

// take moves up to n bytes from the current chunk into the carry buffer.
func (f *framer) take(n int) {
	avail := len(f.chunk) - f.off
	if n > avail {
		n = avail
	}
	f.carry = append(f.carry, f.chunk[f.off:f.off+n]...)
	f.off += n
}

// stashRemainder moves all unconsumed chunk bytes into the carry buffer.
func (f *framer) stashRemainder() {
	f.carry = append(f.carry, f.chunk[f.off:]...)
	f.off = len(f.chunk)
}

// Close checks that the input did not end in the middle of a record.
func (f *framer) Close() error {
	if len(f.carry) > 0 {
		return apperrors.Newf(apperrors.CodeTruncatedRecord,
			"input ended with %d bytes of an incomplete record", len(f.carry))
	}
	return nil
}

func sliceRecord(b []byte) RawRecord {
	return RawRecord{
		Tag:       RecordTag(b[0]),
		TimeDelta: binary.BigEndian.Uint32(b[1:5]),
		Length:    binary.BigEndian.Uint32(b[5:9]),
		Payload:   b[recordHeaderLen:],
	}
}
