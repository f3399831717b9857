package hprof

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/heapstream/pkg/errors"
)

func parseOne(t *testing.T, tag RecordTag, payload []byte) []Event {
	t.Helper()
	p := newRecordParser(nil, false)
	var events []Event
	err := p.ParseRecord(RawRecord{Tag: tag, Length: uint32(len(payload)), Payload: payload}, &events)
	require.NoError(t, err)
	return events
}

func be(vals ...interface{}) []byte {
	var buf bytes.Buffer
	for _, v := range vals {
		binary.Write(&buf, binary.BigEndian, v)
	}
	return buf.Bytes()
}

func TestParseStringRecord(t *testing.T) {
	payload := append(be(uint64(0x42)), []byte("java/lang/String")...)
	events := parseOne(t, TagString, payload)

	require.Len(t, events, 1)
	assert.Equal(t, EventString, events[0].Kind)
	assert.Equal(t, uint64(0x42), events[0].ID)
	assert.Equal(t, "java/lang/String", events[0].Str)
}

func TestParseStringRecord_CopiesOutOfPayload(t *testing.T) {
	payload := append(be(uint64(1)), []byte("mutated-later")...)
	events := parseOne(t, TagString, payload)

	for i := range payload {
		payload[i] = 0
	}
	assert.Equal(t, "mutated-later", events[0].Str)
}

func TestParseLoadClassRecord(t *testing.T) {
	payload := be(uint32(3), uint64(0x1000), uint32(0), uint64(0x2000))
	events := parseOne(t, TagLoadClass, payload)

	require.Len(t, events, 1)
	assert.Equal(t, EventLoadClass, events[0].Kind)
	assert.Equal(t, uint32(3), events[0].Serial)
	assert.Equal(t, uint64(0x1000), events[0].ID)
	assert.Equal(t, uint64(0x2000), events[0].NameID)
}

func TestParseStackFrameRecord(t *testing.T) {
	payload := be(uint64(0xF1), uint64(0xA1), uint64(0xA2), uint64(0xA3), uint32(9), int32(-3))
	events := parseOne(t, TagStackFrame, payload)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventStackFrame, ev.Kind)
	assert.Equal(t, uint64(0xF1), ev.ID)
	assert.Equal(t, []uint64{0xA1, 0xA2, 0xA3}, ev.IDs)
	assert.Equal(t, uint32(9), ev.Serial)
	assert.Equal(t, int32(-3), ev.Line)
}

func TestParseStackTraceRecord(t *testing.T) {
	payload := be(uint32(1), uint32(200), uint32(2), uint64(0xF1), uint64(0xF2))
	events := parseOne(t, TagStackTrace, payload)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventStackTrace, ev.Kind)
	assert.Equal(t, uint32(1), ev.Serial)
	assert.Equal(t, uint32(200), ev.ThreadSerial)
	assert.Equal(t, []uint64{0xF1, 0xF2}, ev.IDs)
}

func TestParseStartThreadRecord(t *testing.T) {
	payload := be(uint32(200), uint64(0xCAFE), uint32(0), uint64(0x77), uint64(0), uint64(0))
	events := parseOne(t, TagStartThread, payload)

	require.Len(t, events, 1)
	assert.Equal(t, EventStartThread, events[0].Kind)
	assert.Equal(t, uint32(200), events[0].ThreadSerial)
	assert.Equal(t, uint64(0x77), events[0].NameID)
}

func TestParseUnknownTopLevelTagSkipped(t *testing.T) {
	p := newRecordParser(nil, false)
	var events []Event
	err := p.ParseRecord(RawRecord{Tag: RecordTag(0xAB), Length: 4, Payload: []byte{1, 2, 3, 4}}, &events)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseHeapDump_InstanceDump(t *testing.T) {
	payload := []byte{0x21}
	payload = append(payload, be(uint64(0xAAA), uint32(0), uint64(0x1000), uint32(5))...)
	payload = append(payload, []byte{1, 2, 3, 4, 5}...)

	events := parseOne(t, TagHeapDumpSegment, payload)
	require.Len(t, events, 2)
	assert.Equal(t, EventHeapDumpStart, events[0].Kind)
	assert.Equal(t, EventInstanceDump, events[1].Kind)
	assert.Equal(t, uint64(0x1000), events[1].ClassID)
	assert.Equal(t, uint64(5), events[1].Size)
}

func TestParseHeapDump_ClassDump(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x20)
	buf.Write(be(uint64(0x1000), uint32(0), uint64(0x2000))) // class, stack serial, super
	buf.Write(be(uint64(0), uint64(0), uint64(0), uint64(0), uint64(0)))
	buf.Write(be(uint32(24))) // instance size
	// constant pool: one int entry
	buf.Write(be(uint16(1)))
	buf.Write(be(uint16(0)))
	buf.WriteByte(byte(TypeInt))
	buf.Write(be(uint32(42)))
	// static fields: one object, one long
	buf.Write(be(uint16(2)))
	buf.Write(be(uint64(0x91)))
	buf.WriteByte(byte(TypeObject))
	buf.Write(be(uint64(0xDEAD)))
	buf.Write(be(uint64(0x92)))
	buf.WriteByte(byte(TypeLong))
	buf.Write(be(uint64(7)))
	// instance fields: int + object
	buf.Write(be(uint16(2)))
	buf.Write(be(uint64(0x93)))
	buf.WriteByte(byte(TypeInt))
	buf.Write(be(uint64(0x94)))
	buf.WriteByte(byte(TypeObject))

	events := parseOne(t, TagHeapDumpSegment, buf.Bytes())
	require.Len(t, events, 2)
	ev := events[1]
	assert.Equal(t, EventClassDump, ev.Kind)
	assert.Equal(t, uint64(0x1000), ev.ID)
	assert.Equal(t, uint64(0x2000), ev.ClassID)
	assert.Equal(t, uint64(24), ev.Size)
	assert.Equal(t, []BasicType{TypeInt, TypeObject}, ev.FieldTypes)
}

func TestParseHeapDump_Arrays(t *testing.T) {
	var buf bytes.Buffer
	// object array: 3 elements
	buf.WriteByte(0x22)
	buf.Write(be(uint64(0xB1), uint32(0), uint32(3), uint64(0x3000)))
	buf.Write(make([]byte, 3*8))
	// int array: 4 elements
	buf.WriteByte(0x23)
	buf.Write(be(uint64(0xB2), uint32(0), uint32(4)))
	buf.WriteByte(byte(TypeInt))
	buf.Write(make([]byte, 4*4))

	events := parseOne(t, TagHeapDumpSegment, buf.Bytes())
	require.Len(t, events, 3)

	obj := events[1]
	assert.Equal(t, EventObjectArrayDump, obj.Kind)
	assert.Equal(t, uint64(0x3000), obj.ClassID)
	assert.Equal(t, uint32(3), obj.Count)

	prim := events[2]
	assert.Equal(t, EventPrimitiveArrayDump, prim.Kind)
	assert.Equal(t, TypeInt, prim.ElemType)
	assert.Equal(t, uint32(4), prim.Count)
}

func TestParseHeapDump_Roots(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(HeapTagRootUnknown))
	buf.Write(be(uint64(1)))
	buf.WriteByte(byte(HeapTagRootJNIGlobal))
	buf.Write(be(uint64(2), uint64(3)))
	buf.WriteByte(byte(HeapTagRootJavaFrame))
	buf.Write(be(uint64(4), uint32(200), uint32(0)))
	buf.WriteByte(byte(HeapTagRootThreadObject))
	buf.Write(be(uint64(5), uint32(200), uint32(1)))
	buf.WriteByte(byte(HeapTagRootNativeStack))
	buf.Write(be(uint64(6), uint32(201)))
	buf.WriteByte(byte(HeapTagRootVMInternal))
	buf.Write(be(uint64(7)))
	buf.WriteByte(byte(HeapTagHeapDumpInfo))
	buf.Write(be(uint32(1), uint64(0x55)))

	events := parseOne(t, TagHeapDumpSegment, buf.Bytes())
	require.Len(t, events, 8)

	kinds := make([]HeapDumpTag, 0, 7)
	for _, ev := range events[1:] {
		require.Equal(t, EventGCRoot, ev.Kind)
		kinds = append(kinds, ev.RootTag)
	}
	assert.Equal(t, []HeapDumpTag{
		HeapTagRootUnknown, HeapTagRootJNIGlobal, HeapTagRootJavaFrame,
		HeapTagRootThreadObject, HeapTagRootNativeStack, HeapTagRootVMInternal,
		HeapTagHeapDumpInfo,
	}, kinds)
	assert.Equal(t, uint32(200), events[3].ThreadSerial)
	assert.Equal(t, uint32(200), events[4].ThreadSerial)
	assert.Equal(t, uint32(201), events[5].ThreadSerial)
}

func TestParseHeapDump_PaddingBytes(t *testing.T) {
	payload := []byte{0x00, 0x00, 0xFF}
	payload = append(payload, be(uint64(9))...)

	events := parseOne(t, TagHeapDumpSegment, payload)
	require.Len(t, events, 2)
	assert.Equal(t, EventGCRoot, events[1].Kind)
}

func TestParseHeapDump_UnknownSubTagFatal(t *testing.T) {
	p := newRecordParser(nil, false)
	payload := []byte{0x77, 1, 2, 3}
	var events []Event
	err := p.ParseRecord(RawRecord{Tag: TagHeapDumpSegment, Length: uint32(len(payload)), Payload: payload}, &events)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnknownSubTag, apperrors.GetErrorCode(err))
}

func TestParseHeapDump_OverrunIsDesync(t *testing.T) {
	// instance dump declaring more field bytes than the payload holds
	payload := []byte{0x21}
	payload = append(payload, be(uint64(0xAAA), uint32(0), uint64(0x1000), uint32(100))...)
	payload = append(payload, []byte{1, 2, 3}...)

	p := newRecordParser(nil, false)
	var events []Event
	err := p.ParseRecord(RawRecord{Tag: TagHeapDumpSegment, Length: uint32(len(payload)), Payload: payload}, &events)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDesync, apperrors.GetErrorCode(err))
}

func TestParseTruncatedTopLevelRecordIsDesync(t *testing.T) {
	// load class record with a short payload
	payload := be(uint32(3), uint64(0x1000))
	p := newRecordParser(nil, false)
	var events []Event
	err := p.ParseRecord(RawRecord{Tag: TagLoadClass, Length: uint32(len(payload)), Payload: payload}, &events)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDesync, apperrors.GetErrorCode(err))
}
