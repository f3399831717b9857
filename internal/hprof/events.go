package hprof

// EventKind discriminates the decoded events flowing from the parser to the
// aggregator.
type EventKind uint8

const (
	EventString EventKind = iota
	EventLoadClass
	EventUnloadClass
	EventStackFrame
	EventStackTrace
	EventStartThread
	EventEndThread
	EventAllocSites
	EventHeapSummary
	EventControlSettings
	EventCPUSamples
	EventHeapDumpStart
	EventHeapDumpEnd
	EventGCRoot
	EventClassDump
	EventInstanceDump
	EventObjectArrayDump
	EventPrimitiveArrayDump
)

// Event is a decoded, aggregation-ready record. It is a flat union rather
// than an interface so the per-instance hot path allocates nothing; which
// fields are meaningful depends on Kind:
//
//	EventString             ID (string id), Str
//	EventLoadClass          Serial (class serial), ID (class id), NameID
//	EventStackFrame         ID (frame id), IDs [method, signature, source file],
//	                        Serial (class serial), Line
//	EventStackTrace         Serial, ThreadSerial, IDs (frame ids)
//	EventStartThread        ThreadSerial, NameID (thread name string id)
//	EventEndThread          ThreadSerial
//	EventGCRoot             RootTag, ThreadSerial (when the flavor carries one)
//	EventClassDump          ID (class id), ClassID (super class id),
//	                        Size (instance size), FieldTypes
//	EventInstanceDump       ClassID, Size (bytes length)
//	EventObjectArrayDump    ClassID (array class id), Count (elements)
//	EventPrimitiveArrayDump ElemType, Count (elements)
//
// All other kinds carry no payload and only feed the tag summary counters.
type Event struct {
	Kind         EventKind
	RootTag      HeapDumpTag
	ElemType     BasicType
	Serial       uint32
	ThreadSerial uint32
	Count        uint32
	Line         int32
	ID           uint64
	ClassID      uint64
	NameID       uint64
	Size         uint64
	Str          string
	IDs          []uint64
	FieldTypes   []BasicType
}
