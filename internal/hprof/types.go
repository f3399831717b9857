// Package hprof implements a single-pass streaming analyzer for JVM HPROF
// heap dumps.
package hprof

import "strings"

// RecordTag represents the type of a top-level record in HPROF format.
type RecordTag uint8

const (
	TagString          RecordTag = 0x01
	TagLoadClass       RecordTag = 0x02
	TagUnloadClass     RecordTag = 0x03
	TagStackFrame      RecordTag = 0x04
	TagStackTrace      RecordTag = 0x05
	TagAllocSites      RecordTag = 0x06
	TagHeapSummary     RecordTag = 0x07
	TagStartThread     RecordTag = 0x0A
	TagEndThread       RecordTag = 0x0B
	TagHeapDump        RecordTag = 0x0C
	TagCPUSamples      RecordTag = 0x0D
	TagControlSettings RecordTag = 0x0E
	TagHeapDumpSegment RecordTag = 0x1C
	TagHeapDumpEnd     RecordTag = 0x2C
)

// HeapDumpTag represents sub-tags within a heap dump record.
type HeapDumpTag uint8

const (
	HeapTagRootJNIGlobal      HeapDumpTag = 0x01
	HeapTagRootJNILocal       HeapDumpTag = 0x02
	HeapTagRootJavaFrame      HeapDumpTag = 0x03
	HeapTagRootNativeStack    HeapDumpTag = 0x04
	HeapTagRootStickyClass    HeapDumpTag = 0x05
	HeapTagRootThreadBlock    HeapDumpTag = 0x06
	HeapTagRootMonitorUsed    HeapDumpTag = 0x07
	HeapTagRootThreadObject   HeapDumpTag = 0x08
	HeapTagClassDump          HeapDumpTag = 0x20
	HeapTagInstanceDump       HeapDumpTag = 0x21
	HeapTagObjectArrayDump    HeapDumpTag = 0x22
	HeapTagPrimitiveArrayDump HeapDumpTag = 0x23
	HeapTagRootUnknown        HeapDumpTag = 0xFF

	// Extension roots emitted by some JVMs and the Android runtime.
	HeapTagRootInternedString   HeapDumpTag = 0x89
	HeapTagRootFinalizing       HeapDumpTag = 0x8A
	HeapTagRootDebugger         HeapDumpTag = 0x8B
	HeapTagRootReferenceCleanup HeapDumpTag = 0x8C
	HeapTagRootVMInternal       HeapDumpTag = 0x8D
	HeapTagRootJNIMonitor       HeapDumpTag = 0x8E
	HeapTagHeapDumpInfo         HeapDumpTag = 0xC3
	HeapTagRootUnreachable      HeapDumpTag = 0xFE
)

// BasicType represents Java field and array element types.
type BasicType uint8

const (
	TypeObject  BasicType = 2
	TypeBoolean BasicType = 4
	TypeChar    BasicType = 5
	TypeFloat   BasicType = 6
	TypeDouble  BasicType = 7
	TypeByte    BasicType = 8
	TypeShort   BasicType = 9
	TypeInt     BasicType = 10
	TypeLong    BasicType = 11
)

// BasicTypeSize returns the size in bytes for a basic type. Returns 0 for
// unknown types.
func BasicTypeSize(t BasicType, idSize int) int {
	switch t {
	case TypeObject:
		return idSize
	case TypeBoolean, TypeByte:
		return 1
	case TypeChar, TypeShort:
		return 2
	case TypeFloat, TypeInt:
		return 4
	case TypeDouble, TypeLong:
		return 8
	default:
		return 0
	}
}

// syntheticArrayClassID returns a stable class id for primitive arrays of
// the given element type. Real HPROF ids are heap addresses; this range
// never collides with them in practice. The aggregator keys primitive-array
// statistics by element type directly, which maps one-to-one onto these ids.
func syntheticArrayClassID(t BasicType) uint64 {
	return 0x1000000 + uint64(t)
}

// primitiveArrayTypeName returns the printable name for a primitive array.
func primitiveArrayTypeName(t BasicType) string {
	switch t {
	case TypeBoolean:
		return "boolean[]"
	case TypeByte:
		return "byte[]"
	case TypeChar:
		return "char[]"
	case TypeShort:
		return "short[]"
	case TypeInt:
		return "int[]"
	case TypeLong:
		return "long[]"
	case TypeFloat:
		return "float[]"
	case TypeDouble:
		return "double[]"
	default:
		return "unknown[]"
	}
}

// normalizeClassName converts a JVM internal class name to readable format:
// slashes become dots and array descriptors are expanded ("[I" -> "int[]",
// "[Ljava/lang/String;" -> "java.lang.String[]").
func normalizeClassName(name string) string {
	name = strings.ReplaceAll(name, "/", ".")
	if strings.HasPrefix(name, "[") {
		return parseArrayTypeName(name)
	}
	return name
}

// parseArrayTypeName converts array type descriptors to readable names.
func parseArrayTypeName(name string) string {
	dims := 0
	for strings.HasPrefix(name, "[") {
		dims++
		name = name[1:]
	}

	var baseName string
	switch {
	case strings.HasPrefix(name, "L") && strings.HasSuffix(name, ";"):
		baseName = name[1 : len(name)-1]
	case name == "Z":
		baseName = "boolean"
	case name == "B":
		baseName = "byte"
	case name == "C":
		baseName = "char"
	case name == "S":
		baseName = "short"
	case name == "I":
		baseName = "int"
	case name == "J":
		baseName = "long"
	case name == "F":
		baseName = "float"
	case name == "D":
		baseName = "double"
	default:
		baseName = name
	}

	return baseName + strings.Repeat("[]", dims)
}

// objectArrayClassName renders the class of an object array from its loaded
// name. Array classes are loaded with descriptor names, so this usually just
// delegates to the descriptor expansion; plain names get a "[]" suffix.
func objectArrayClassName(loadedName string) string {
	if strings.HasPrefix(loadedName, "[") {
		return normalizeClassName(loadedName)
	}
	return normalizeClassName(loadedName) + "[]"
}
