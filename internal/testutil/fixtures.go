// Package testutil builds synthetic HPROF dumps for tests. The builder
// writes raw big-endian bytes so tests stay independent of the decoder
// under test.
package testutil

import (
	"bytes"
	"encoding/binary"
)

// HPROF top-level record tags used by the builder.
const (
	tagString          = 0x01
	tagLoadClass       = 0x02
	tagStackFrame      = 0x04
	tagStackTrace      = 0x05
	tagStartThread     = 0x0A
	tagHeapDumpSegment = 0x1C
	tagHeapDumpEnd     = 0x2C
)

// DumpBuilder assembles a synthetic HPROF dump.
type DumpBuilder struct {
	buf bytes.Buffer
}

// NewDumpBuilder starts a 64-bit JAVA PROFILE 1.0.2 dump.
func NewDumpBuilder() *DumpBuilder {
	return NewDumpBuilderWithHeader("JAVA PROFILE 1.0.2", 8)
}

// NewDumpBuilderWithHeader starts a dump with an arbitrary format tag and
// identifier size, for header validation tests.
func NewDumpBuilderWithHeader(format string, idSize uint32) *DumpBuilder {
	b := &DumpBuilder{}
	b.buf.WriteString(format)
	b.buf.WriteByte(0)
	be32(&b.buf, idSize)
	be64(&b.buf, 1608192273831) // fixed timestamp keeps results reproducible
	return b
}

// Bytes returns the assembled dump.
func (b *DumpBuilder) Bytes() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// record writes a top-level record with tag, zero time delta and payload.
func (b *DumpBuilder) record(tag byte, payload []byte) {
	b.buf.WriteByte(tag)
	be32(&b.buf, 0)
	be32(&b.buf, uint32(len(payload)))
	b.buf.Write(payload)
}

// AddString appends a UTF8 string record.
func (b *DumpBuilder) AddString(id uint64, s string) *DumpBuilder {
	var p bytes.Buffer
	be64(&p, id)
	p.WriteString(s)
	b.record(tagString, p.Bytes())
	return b
}

// AddLoadClass appends a LOAD_CLASS record.
func (b *DumpBuilder) AddLoadClass(serial uint32, classID, nameID uint64) *DumpBuilder {
	var p bytes.Buffer
	be32(&p, serial)
	be64(&p, classID)
	be32(&p, 0) // stack trace serial
	be64(&p, nameID)
	b.record(tagLoadClass, p.Bytes())
	return b
}

// AddStackFrame appends a STACK_FRAME record.
func (b *DumpBuilder) AddStackFrame(frameID, methodNameID, signatureID, sourceFileID uint64, classSerial uint32, line int32) *DumpBuilder {
	var p bytes.Buffer
	be64(&p, frameID)
	be64(&p, methodNameID)
	be64(&p, signatureID)
	be64(&p, sourceFileID)
	be32(&p, classSerial)
	be32(&p, uint32(line))
	b.record(tagStackFrame, p.Bytes())
	return b
}

// AddStackTrace appends a STACK_TRACE record.
func (b *DumpBuilder) AddStackTrace(serial, threadSerial uint32, frameIDs []uint64) *DumpBuilder {
	var p bytes.Buffer
	be32(&p, serial)
	be32(&p, threadSerial)
	be32(&p, uint32(len(frameIDs)))
	for _, id := range frameIDs {
		be64(&p, id)
	}
	b.record(tagStackTrace, p.Bytes())
	return b
}

// AddStartThread appends a START_THREAD record.
func (b *DumpBuilder) AddStartThread(threadSerial uint32, nameID uint64) *DumpBuilder {
	var p bytes.Buffer
	be32(&p, threadSerial)
	be64(&p, 0xCAFE) // thread object id
	be32(&p, 0)      // stack trace serial
	be64(&p, nameID)
	be64(&p, 0) // thread group name id
	be64(&p, 0) // thread group parent name id
	b.record(tagStartThread, p.Bytes())
	return b
}

// AddRawRecord appends a record with an arbitrary tag and payload.
func (b *DumpBuilder) AddRawRecord(tag byte, payload []byte) *DumpBuilder {
	b.record(tag, payload)
	return b
}

// AddHeapDumpEnd appends a HEAP_DUMP_END record.
func (b *DumpBuilder) AddHeapDumpEnd() *DumpBuilder {
	b.record(tagHeapDumpEnd, nil)
	return b
}

// AddHeapDump appends a HEAP_DUMP_SEGMENT assembled by fn.
func (b *DumpBuilder) AddHeapDump(fn func(h *HeapDumpBuilder)) *DumpBuilder {
	h := &HeapDumpBuilder{}
	fn(h)
	b.record(tagHeapDumpSegment, h.buf.Bytes())
	return b
}

// TruncateTail drops n bytes from the end of the dump built so far.
func (b *DumpBuilder) TruncateTail(n int) []byte {
	data := b.buf.Bytes()
	return append([]byte(nil), data[:len(data)-n]...)
}

// HeapDumpBuilder assembles the sub-record stream of one heap dump segment.
type HeapDumpBuilder struct {
	buf bytes.Buffer
}

// InstanceDump appends an INSTANCE_DUMP sub-record with the given field data.
func (h *HeapDumpBuilder) InstanceDump(objectID, classID uint64, data []byte) *HeapDumpBuilder {
	h.buf.WriteByte(0x21)
	be64(&h.buf, objectID)
	be32(&h.buf, 0) // stack trace serial
	be64(&h.buf, classID)
	be32(&h.buf, uint32(len(data)))
	h.buf.Write(data)
	return h
}

// ClassDump appends a CLASS_DUMP sub-record with no constant pool or static
// fields and the given instance field types.
func (h *HeapDumpBuilder) ClassDump(classID, superClassID uint64, instanceSize uint32, fieldTypes []byte) *HeapDumpBuilder {
	h.buf.WriteByte(0x20)
	be64(&h.buf, classID)
	be32(&h.buf, 0) // stack trace serial
	be64(&h.buf, superClassID)
	be64(&h.buf, 0) // class loader
	be64(&h.buf, 0) // signers
	be64(&h.buf, 0) // protection domain
	be64(&h.buf, 0) // reserved1
	be64(&h.buf, 0) // reserved2
	be32(&h.buf, instanceSize)
	be16(&h.buf, 0) // constant pool size
	be16(&h.buf, 0) // static field count
	be16(&h.buf, uint16(len(fieldTypes)))
	for i, t := range fieldTypes {
		be64(&h.buf, uint64(0x9000+i)) // field name id
		h.buf.WriteByte(t)
	}
	return h
}

// ClassDumpWithStatics appends a CLASS_DUMP sub-record carrying typed static
// field values, exercising the size-per-type skipping path.
func (h *HeapDumpBuilder) ClassDumpWithStatics(classID uint64, instanceSize uint32, staticTypes []byte) *HeapDumpBuilder {
	h.buf.WriteByte(0x20)
	be64(&h.buf, classID)
	be32(&h.buf, 0)
	be64(&h.buf, 0) // super class
	be64(&h.buf, 0)
	be64(&h.buf, 0)
	be64(&h.buf, 0)
	be64(&h.buf, 0)
	be64(&h.buf, 0)
	be32(&h.buf, instanceSize)
	be16(&h.buf, 0) // constant pool size
	be16(&h.buf, uint16(len(staticTypes)))
	for i, t := range staticTypes {
		be64(&h.buf, uint64(0x9100+i))
		h.buf.WriteByte(t)
		h.buf.Write(make([]byte, staticValueSize(t)))
	}
	be16(&h.buf, 0) // instance field count
	return h
}

// ObjectArrayDump appends an OBJECT_ARRAY_DUMP sub-record with zeroed
// element references.
func (h *HeapDumpBuilder) ObjectArrayDump(objectID, arrayClassID uint64, elements int) *HeapDumpBuilder {
	h.buf.WriteByte(0x22)
	be64(&h.buf, objectID)
	be32(&h.buf, 0)
	be32(&h.buf, uint32(elements))
	be64(&h.buf, arrayClassID)
	h.buf.Write(make([]byte, elements*8))
	return h
}

// PrimitiveArrayDump appends a PRIMITIVE_ARRAY_DUMP sub-record with zeroed
// elements of the given type and per-element size.
func (h *HeapDumpBuilder) PrimitiveArrayDump(objectID uint64, elemType byte, elements, elemSize int) *HeapDumpBuilder {
	h.buf.WriteByte(0x23)
	be64(&h.buf, objectID)
	be32(&h.buf, 0)
	be32(&h.buf, uint32(elements))
	h.buf.WriteByte(elemType)
	h.buf.Write(make([]byte, elements*elemSize))
	return h
}

// RootUnknown appends a ROOT_UNKNOWN sub-record.
func (h *HeapDumpBuilder) RootUnknown(objectID uint64) *HeapDumpBuilder {
	h.buf.WriteByte(0xFF)
	be64(&h.buf, objectID)
	return h
}

// RootThreadObject appends a ROOT_THREAD_OBJECT sub-record.
func (h *HeapDumpBuilder) RootThreadObject(objectID uint64, threadSerial, stackSerial uint32) *HeapDumpBuilder {
	h.buf.WriteByte(0x08)
	be64(&h.buf, objectID)
	be32(&h.buf, threadSerial)
	be32(&h.buf, stackSerial)
	return h
}

// RootJNIGlobal appends a ROOT_JNI_GLOBAL sub-record.
func (h *HeapDumpBuilder) RootJNIGlobal(objectID, refID uint64) *HeapDumpBuilder {
	h.buf.WriteByte(0x01)
	be64(&h.buf, objectID)
	be64(&h.buf, refID)
	return h
}

// RootJavaFrame appends a ROOT_JAVA_FRAME sub-record.
func (h *HeapDumpBuilder) RootJavaFrame(objectID uint64, threadSerial, frameNumber uint32) *HeapDumpBuilder {
	h.buf.WriteByte(0x03)
	be64(&h.buf, objectID)
	be32(&h.buf, threadSerial)
	be32(&h.buf, frameNumber)
	return h
}

// RawSubRecord appends arbitrary bytes to the sub-record stream.
func (h *HeapDumpBuilder) RawSubRecord(b []byte) *HeapDumpBuilder {
	h.buf.Write(b)
	return h
}

func staticValueSize(t byte) int {
	switch t {
	case 4, 8: // boolean, byte
		return 1
	case 5, 9: // char, short
		return 2
	case 6, 10: // float, int
		return 4
	case 7, 11: // double, long
		return 8
	case 2: // object
		return 8
	default:
		return 0
	}
}

func be16(buf *bytes.Buffer, v uint16) {
	_ = binary.Write(buf, binary.BigEndian, v)
}

func be32(buf *bytes.Buffer, v uint32) {
	_ = binary.Write(buf, binary.BigEndian, v)
}

func be64(buf *bytes.Buffer, v uint64) {
	_ = binary.Write(buf, binary.BigEndian, v)
}
