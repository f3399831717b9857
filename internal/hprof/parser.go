package hprof

import (
	"encoding/binary"
	"errors"

	apperrors "github.com/heapstream/pkg/errors"
	"github.com/heapstream/pkg/utils"
)

// errShort signals that a cursor read ran past the end of a record payload.
var errShort = errors.New("read past end of record payload")

// cursor walks a record payload with exact byte accounting. Every decode
// helper fails with errShort instead of reading out of bounds; the parser
// maps that to a fatal desync because sub-record lengths are not
// self-describing and the stream cannot be resynchronized.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

func (c *cursor) u8() (byte, error) {
	if c.remaining() < 1 {
		return 0, errShort
	}
	b := c.buf[c.off]
	c.off++
	return b, nil
}

func (c *cursor) u16() (uint16, error) {
	if c.remaining() < 2 {
		return 0, errShort
	}
	v := binary.BigEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if c.remaining() < 4 {
		return 0, errShort
	}
	v := binary.BigEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) i32() (int32, error) {
	v, err := c.u32()
	return int32(v), err
}

func (c *cursor) u64() (uint64, error) {
	if c.remaining() < 8 {
		return 0, errShort
	}
	v := binary.BigEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v, nil
}

// id reads one identifier. The header guarantees 8-byte ids.
func (c *cursor) id() (uint64, error) {
	return c.u64()
}

func (c *cursor) skip(n int) error {
	if n < 0 || c.remaining() < n {
		return errShort
	}
	c.off += n
	return nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, errShort
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// recordParser decodes framed records into events. It is stateless across
// records apart from the warn-once bookkeeping for unknown top-level tags.
type recordParser struct {
	logger     utils.Logger
	debug      bool
	warnedTags map[RecordTag]struct{}
}

func newRecordParser(logger utils.Logger, debug bool) *recordParser {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &recordParser{
		logger:     logger,
		debug:      debug,
		warnedTags: make(map[RecordTag]struct{}),
	}
}

// ParseRecord decodes one top-level record, appending its events to out.
// Unknown top-level tags are skipped by length and logged once per tag;
// everything the record payload retains (strings, frame id lists) is copied
// out, so the payload may be recycled as soon as this returns.
func (p *recordParser) ParseRecord(rec RawRecord, out *[]Event) error {
	if p.debug {
		p.logger.Debug("record tag=0x%02X length=%d", uint8(rec.Tag), rec.Length)
	}

	c := cursor{buf: rec.Payload}
	var err error
	switch rec.Tag {
	case TagString:
		err = p.parseString(&c, out)
	case TagLoadClass:
		err = p.parseLoadClass(&c, out)
	case TagUnloadClass:
		*out = append(*out, Event{Kind: EventUnloadClass})
	case TagStackFrame:
		err = p.parseStackFrame(&c, out)
	case TagStackTrace:
		err = p.parseStackTrace(&c, out)
	case TagStartThread:
		err = p.parseStartThread(&c, out)
	case TagEndThread:
		err = p.parseEndThread(&c, out)
	case TagAllocSites:
		*out = append(*out, Event{Kind: EventAllocSites})
	case TagHeapSummary:
		*out = append(*out, Event{Kind: EventHeapSummary})
	case TagControlSettings:
		*out = append(*out, Event{Kind: EventControlSettings})
	case TagCPUSamples:
		*out = append(*out, Event{Kind: EventCPUSamples})
	case TagHeapDump, TagHeapDumpSegment:
		*out = append(*out, Event{Kind: EventHeapDumpStart})
		err = p.parseHeapDump(&c, out)
	case TagHeapDumpEnd:
		*out = append(*out, Event{Kind: EventHeapDumpEnd})
	default:
		if _, seen := p.warnedTags[rec.Tag]; !seen {
			p.warnedTags[rec.Tag] = struct{}{}
			p.logger.Warn("skipping unknown record tag 0x%02X (%d bytes)", uint8(rec.Tag), rec.Length)
		}
	}

	if errors.Is(err, errShort) {
		return apperrors.Newf(apperrors.CodeDesync,
			"record tag 0x%02X declared %d payload bytes but its fields need more", uint8(rec.Tag), rec.Length)
	}
	return err
}

func (p *recordParser) parseString(c *cursor, out *[]Event) error {
	id, err := c.id()
	if err != nil {
		return err
	}
	// The rest of the payload is the UTF-8 value; copy it out of the chunk.
	b, err := c.bytes(c.remaining())
	if err != nil {
		return err
	}
	*out = append(*out, Event{Kind: EventString, ID: id, Str: string(b)})
	return nil
}

func (p *recordParser) parseLoadClass(c *cursor, out *[]Event) error {
	serial, err := c.u32()
	if err != nil {
		return err
	}
	classID, err := c.id()
	if err != nil {
		return err
	}
	if _, err := c.u32(); err != nil { // stack trace serial
		return err
	}
	nameID, err := c.id()
	if err != nil {
		return err
	}
	*out = append(*out, Event{Kind: EventLoadClass, Serial: serial, ID: classID, NameID: nameID})
	return nil
}

func (p *recordParser) parseStackFrame(c *cursor, out *[]Event) error {
	frameID, err := c.id()
	if err != nil {
		return err
	}
	methodNameID, err := c.id()
	if err != nil {
		return err
	}
	signatureID, err := c.id()
	if err != nil {
		return err
	}
	sourceFileID, err := c.id()
	if err != nil {
		return err
	}
	classSerial, err := c.u32()
	if err != nil {
		return err
	}
	line, err := c.i32()
	if err != nil {
		return err
	}
	*out = append(*out, Event{
		Kind:   EventStackFrame,
		ID:     frameID,
		IDs:    []uint64{methodNameID, signatureID, sourceFileID},
		Serial: classSerial,
		Line:   line,
	})
	return nil
}

func (p *recordParser) parseStackTrace(c *cursor, out *[]Event) error {
	serial, err := c.u32()
	if err != nil {
		return err
	}
	threadSerial, err := c.u32()
	if err != nil {
		return err
	}
	numFrames, err := c.u32()
	if err != nil {
		return err
	}
	frameIDs := make([]uint64, 0, numFrames)
	for i := uint32(0); i < numFrames; i++ {
		fid, err := c.id()
		if err != nil {
			return err
		}
		frameIDs = append(frameIDs, fid)
	}
	*out = append(*out, Event{Kind: EventStackTrace, Serial: serial, ThreadSerial: threadSerial, IDs: frameIDs})
	return nil
}

func (p *recordParser) parseStartThread(c *cursor, out *[]Event) error {
	threadSerial, err := c.u32()
	if err != nil {
		return err
	}
	if _, err := c.id(); err != nil { // thread object id
		return err
	}
	if _, err := c.u32(); err != nil { // stack trace serial
		return err
	}
	nameID, err := c.id()
	if err != nil {
		return err
	}
	// thread group name id + thread group parent name id
	if err := c.skip(16); err != nil {
		return err
	}
	*out = append(*out, Event{Kind: EventStartThread, ThreadSerial: threadSerial, NameID: nameID})
	return nil
}

func (p *recordParser) parseEndThread(c *cursor, out *[]Event) error {
	threadSerial, err := c.u32()
	if err != nil {
		return err
	}
	*out = append(*out, Event{Kind: EventEndThread, ThreadSerial: threadSerial})
	return nil
}

// parseHeapDump walks the sub-record stream inside a HEAP_DUMP or
// HEAP_DUMP_SEGMENT payload. Sub-record lengths are implied by their
// structure, so an unknown sub-tag is fatal.
func (p *recordParser) parseHeapDump(c *cursor, out *[]Event) error {
	for c.remaining() > 0 {
		tagByte, err := c.u8()
		if err != nil {
			return err
		}
		tag := HeapDumpTag(tagByte)

		switch tag {
		case 0x00:
			// padding byte

		case HeapTagRootUnknown, HeapTagRootStickyClass, HeapTagRootMonitorUsed,
			HeapTagRootInternedString, HeapTagRootFinalizing, HeapTagRootDebugger,
			HeapTagRootReferenceCleanup, HeapTagRootVMInternal, HeapTagRootUnreachable:
			if _, err := c.id(); err != nil {
				return err
			}
			*out = append(*out, Event{Kind: EventGCRoot, RootTag: tag})

		case HeapTagRootJNIGlobal:
			if _, err := c.id(); err != nil {
				return err
			}
			if _, err := c.id(); err != nil { // JNI global ref id
				return err
			}
			*out = append(*out, Event{Kind: EventGCRoot, RootTag: tag})

		case HeapTagRootJNILocal, HeapTagRootJavaFrame, HeapTagRootJNIMonitor:
			if _, err := c.id(); err != nil {
				return err
			}
			threadSerial, err := c.u32()
			if err != nil {
				return err
			}
			if _, err := c.u32(); err != nil { // frame number in stack trace
				return err
			}
			*out = append(*out, Event{Kind: EventGCRoot, RootTag: tag, ThreadSerial: threadSerial})

		case HeapTagRootNativeStack, HeapTagRootThreadBlock:
			if _, err := c.id(); err != nil {
				return err
			}
			threadSerial, err := c.u32()
			if err != nil {
				return err
			}
			*out = append(*out, Event{Kind: EventGCRoot, RootTag: tag, ThreadSerial: threadSerial})

		case HeapTagRootThreadObject:
			if _, err := c.id(); err != nil {
				return err
			}
			threadSerial, err := c.u32()
			if err != nil {
				return err
			}
			if _, err := c.u32(); err != nil { // stack trace serial
				return err
			}
			*out = append(*out, Event{Kind: EventGCRoot, RootTag: tag, ThreadSerial: threadSerial})

		case HeapTagHeapDumpInfo:
			// heap type + heap name string id (Android)
			if _, err := c.u32(); err != nil {
				return err
			}
			if _, err := c.id(); err != nil {
				return err
			}
			*out = append(*out, Event{Kind: EventGCRoot, RootTag: tag})

		case HeapTagClassDump:
			if err := p.parseClassDump(c, out); err != nil {
				return err
			}

		case HeapTagInstanceDump:
			if err := p.parseInstanceDump(c, out); err != nil {
				return err
			}

		case HeapTagObjectArrayDump:
			if err := p.parseObjectArrayDump(c, out); err != nil {
				return err
			}

		case HeapTagPrimitiveArrayDump:
			if err := p.parsePrimitiveArrayDump(c, out); err != nil {
				return err
			}

		default:
			return apperrors.Newf(apperrors.CodeUnknownSubTag,
				"unknown heap dump sub-record tag 0x%02X at offset %d", tagByte, c.off-1)
		}
	}
	return nil
}

func (p *recordParser) parseClassDump(c *cursor, out *[]Event) error {
	classID, err := c.id()
	if err != nil {
		return err
	}
	if _, err := c.u32(); err != nil { // stack trace serial
		return err
	}
	superClassID, err := c.id()
	if err != nil {
		return err
	}
	// class loader, signers, protection domain, reserved1, reserved2
	if err := c.skip(5 * 8); err != nil {
		return err
	}
	instanceSize, err := c.u32()
	if err != nil {
		return err
	}

	cpSize, err := c.u16()
	if err != nil {
		return err
	}
	for i := 0; i < int(cpSize); i++ {
		if _, err := c.u16(); err != nil { // constant pool index
			return err
		}
		if err := p.skipTypedValue(c); err != nil {
			return err
		}
	}

	staticCount, err := c.u16()
	if err != nil {
		return err
	}
	for i := 0; i < int(staticCount); i++ {
		if _, err := c.id(); err != nil { // field name id
			return err
		}
		if err := p.skipTypedValue(c); err != nil {
			return err
		}
	}

	fieldCount, err := c.u16()
	if err != nil {
		return err
	}
	fieldTypes := make([]BasicType, 0, fieldCount)
	for i := 0; i < int(fieldCount); i++ {
		if _, err := c.id(); err != nil { // field name id
			return err
		}
		t, err := c.u8()
		if err != nil {
			return err
		}
		fieldTypes = append(fieldTypes, BasicType(t))
	}

	*out = append(*out, Event{
		Kind:       EventClassDump,
		ID:         classID,
		ClassID:    superClassID,
		Size:       uint64(instanceSize),
		FieldTypes: fieldTypes,
	})
	return nil
}

// skipTypedValue reads a basic type byte and steps over the value it sizes.
func (p *recordParser) skipTypedValue(c *cursor) error {
	t, err := c.u8()
	if err != nil {
		return err
	}
	size := BasicTypeSize(BasicType(t), requiredIDSize)
	if size == 0 {
		return apperrors.Newf(apperrors.CodeDesync, "invalid basic type %d in class dump", t)
	}
	return c.skip(size)
}

func (p *recordParser) parseInstanceDump(c *cursor, out *[]Event) error {
	if _, err := c.id(); err != nil { // object id
		return err
	}
	if _, err := c.u32(); err != nil { // stack trace serial
		return err
	}
	classID, err := c.id()
	if err != nil {
		return err
	}
	dataLen, err := c.u32()
	if err != nil {
		return err
	}
	// The field data is never decoded; the class may not be known yet and
	// per-field values are not needed for aggregation.
	if err := c.skip(int(dataLen)); err != nil {
		return err
	}
	*out = append(*out, Event{Kind: EventInstanceDump, ClassID: classID, Size: uint64(dataLen)})
	return nil
}

func (p *recordParser) parseObjectArrayDump(c *cursor, out *[]Event) error {
	if _, err := c.id(); err != nil { // array object id
		return err
	}
	if _, err := c.u32(); err != nil { // stack trace serial
		return err
	}
	numElements, err := c.u32()
	if err != nil {
		return err
	}
	arrayClassID, err := c.id()
	if err != nil {
		return err
	}
	if err := c.skip(int(numElements) * requiredIDSize); err != nil {
		return err
	}
	*out = append(*out, Event{Kind: EventObjectArrayDump, ClassID: arrayClassID, Count: numElements})
	return nil
}

func (p *recordParser) parsePrimitiveArrayDump(c *cursor, out *[]Event) error {
	if _, err := c.id(); err != nil { // array object id
		return err
	}
	if _, err := c.u32(); err != nil { // stack trace serial
		return err
	}
	numElements, err := c.u32()
	if err != nil {
		return err
	}
	t, err := c.u8()
	if err != nil {
		return err
	}
	elemType := BasicType(t)
	elemSize := BasicTypeSize(elemType, requiredIDSize)
	if elemSize == 0 || elemType == TypeObject {
		return apperrors.Newf(apperrors.CodeDesync, "invalid primitive array element type %d", t)
	}
	if err := c.skip(int(numElements) * elemSize); err != nil {
		return err
	}
	*out = append(*out, Event{Kind: EventPrimitiveArrayDump, ElemType: elemType, Count: numElements})
	return nil
}
