// Package model defines the analysis result records exchanged between the
// core pipeline, renderers, storage and persistence.
package model

import "time"

// ClassAllocationStats holds aggregated allocation statistics for one class.
// Array classes (int[], java.lang.String[], ...) use the same shape.
type ClassAllocationStats struct {
	ClassName              string `json:"class_name"`
	InstanceCount          uint64 `json:"instance_count"`
	AllocationSizeBytes    uint64 `json:"allocation_size_bytes"`
	LargestAllocationBytes uint64 `json:"largest_allocation_bytes"`
}

// StackFrameInfo is one rendered stack frame.
type StackFrameInfo struct {
	Class  string `json:"class"`
	Method string `json:"method"`
	Source string `json:"source"`
	// Line holds the source line, or one of the HPROF sentinels:
	// -1 unknown, -2 compiled method, -3 native method.
	Line int32 `json:"line"`
}

// ThreadStackTrace is the stack trace captured for one thread.
type ThreadStackTrace struct {
	ThreadSerial uint32           `json:"thread_serial"`
	ThreadName   string           `json:"thread_name,omitempty"`
	Frames       []StackFrameInfo `json:"frames"`
}

// TagSummary counts every record and heap sub-record kind seen in the dump.
type TagSummary struct {
	Utf8Strings     uint64 `json:"utf8_strings"`
	ClassesLoaded   uint64 `json:"classes_loaded"`
	ClassesUnloaded uint64 `json:"classes_unloaded"`
	StackTraces     uint64 `json:"stack_traces"`
	StackFrames     uint64 `json:"stack_frames"`
	StartThreads    uint64 `json:"start_threads"`
	EndThreads      uint64 `json:"end_threads"`
	AllocationSites uint64 `json:"allocation_sites"`
	HeapSummaries   uint64 `json:"heap_summaries"`
	ControlSettings uint64 `json:"control_settings"`
	CPUSamples      uint64 `json:"cpu_samples"`
	HeapDumps       uint64 `json:"heap_dumps"`

	SubRecords         uint64 `json:"sub_records"`
	RootUnknown        uint64 `json:"root_unknown"`
	RootThreadObject   uint64 `json:"root_thread_object"`
	RootJNIGlobal      uint64 `json:"root_jni_global"`
	RootJNILocal       uint64 `json:"root_jni_local"`
	RootJavaFrame      uint64 `json:"root_java_frame"`
	RootNativeStack    uint64 `json:"root_native_stack"`
	RootStickyClass    uint64 `json:"root_sticky_class"`
	RootThreadBlock    uint64 `json:"root_thread_block"`
	RootMonitorUsed    uint64 `json:"root_monitor_used"`
	RootOther          uint64 `json:"root_other"`
	ClassDumps         uint64 `json:"class_dumps"`
	InstanceDumps      uint64 `json:"instance_dumps"`
	ObjectArrayDumps   uint64 `json:"object_array_dumps"`
	PrimitiveArrayDump uint64 `json:"primitive_array_dumps"`
}

// DuplicateStringStats summarizes duplicates in the UTF-8 string table.
type DuplicateStringStats struct {
	TotalCount     uint64 `json:"total_count"`
	UniqueCount    uint64 `json:"unique_count"`
	DuplicateCount uint64 `json:"duplicate_count"`
}

// Result is the complete output of one analyzer run.
type Result struct {
	Format         string `json:"format"`
	TimestampMilli int64  `json:"timestamp_milli"`

	TotalHeapBytes uint64 `json:"total_heap_bytes"`

	// TopAllocatedClasses is sorted by allocation_size_bytes descending,
	// ties broken by instance_count descending, then class_name ascending.
	TopAllocatedClasses []ClassAllocationStats `json:"top_allocated_classes"`
	// TopLargestInstances is sorted by largest_allocation_bytes descending
	// with the same tiebreaks.
	TopLargestInstances []ClassAllocationStats `json:"top_largest_instances"`

	ThreadStackTraces []ThreadStackTrace `json:"thread_stack_traces"`

	Summary          TagSummary           `json:"summary"`
	DuplicateStrings DuplicateStringStats `json:"duplicate_strings"`

	// Strings holds the sorted string table, only when list_strings is set.
	Strings []string `json:"strings,omitempty"`
}

// RunStatus represents the lifecycle state of a persisted analysis run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// AnalysisRun is the persisted metadata for one analyzer invocation.
type AnalysisRun struct {
	RunUUID    string     `json:"run_uuid"`
	InputPath  string     `json:"input_path"`
	InputBytes int64      `json:"input_bytes"`
	Status     RunStatus  `json:"status"`
	StatusInfo string     `json:"status_info,omitempty"`
	ResultKey  string     `json:"result_key,omitempty"`
	CreateTime time.Time  `json:"create_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Result     *Result    `json:"result,omitempty"`
}
