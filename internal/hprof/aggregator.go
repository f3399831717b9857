package hprof

import (
	"fmt"
	"sort"
	"strings"

	"github.com/heapstream/pkg/model"
)

// arrayHeaderBytes is the JVM array header on a 64-bit heap:
// mark word (8) + klass (4) + array length (4).
const arrayHeaderBytes = 16

// classCounter accumulates per-class instance statistics.
type classCounter struct {
	count        uint64
	totalBytes   uint64
	largestBytes uint64
}

func (c *classCounter) add(bytes uint64) {
	c.count++
	c.totalBytes += bytes
	if bytes > c.largestBytes {
		c.largestBytes = bytes
	}
}

// arrayCounter accumulates statistics for arrays of one class or element type.
type arrayCounter struct {
	count         uint64
	totalElements uint64
	maxElements   uint32
}

func (c *arrayCounter) add(elements uint32) {
	c.count++
	c.totalElements += uint64(elements)
	if elements > c.maxElements {
		c.maxElements = elements
	}
}

// classLayout is the shallow layout declared by a class dump. It is kept for
// every class; the instance size is stable once observed (first wins).
type classLayout struct {
	superClassID uint64
	instanceSize uint32
	fieldTypes   []BasicType
}

type frameData struct {
	methodNameID uint64
	sourceFileID uint64
	classSerial  uint32
	line         int32
}

type traceData struct {
	serial       uint32
	threadSerial uint32
	frameIDs     []uint64
}

// aggregator is the single writer to all long-lived tables. It consumes
// events in stream order, which makes last-wins semantics on duplicate
// string ids deterministic, and resolves names only once at end of stream so
// that forward references cost nothing during the hot loop.
type aggregator struct {
	topN        int
	listStrings bool
	classFilter string
	header      *Header

	strings         map[uint64]string
	classNameIDs    map[uint64]uint64
	classIDBySerial map[uint32]uint64
	layouts         map[uint64]classLayout
	instances       map[uint64]*classCounter
	objectArrays    map[uint64]*arrayCounter
	primitiveArrays map[BasicType]*arrayCounter
	frames          map[uint64]frameData
	traces          []traceData
	threadNames     map[uint32]uint64

	summary model.TagSummary
}

func newAggregator(header *Header, topN int, listStrings bool, classFilter string) *aggregator {
	if topN <= 0 {
		topN = 20
	}
	return &aggregator{
		topN:            topN,
		listStrings:     listStrings,
		classFilter:     classFilter,
		header:          header,
		strings:         make(map[uint64]string),
		classNameIDs:    make(map[uint64]uint64),
		classIDBySerial: make(map[uint32]uint64),
		layouts:         make(map[uint64]classLayout),
		instances:       make(map[uint64]*classCounter),
		objectArrays:    make(map[uint64]*arrayCounter),
		primitiveArrays: make(map[BasicType]*arrayCounter),
		frames:          make(map[uint64]frameData),
		threadNames:     make(map[uint32]uint64),
	}
}

// Apply folds one event into the running tables.
func (a *aggregator) Apply(ev *Event) {
	switch ev.Kind {
	case EventString:
		// duplicate id: last wins
		a.strings[ev.ID] = ev.Str
		a.summary.Utf8Strings++

	case EventLoadClass:
		a.classNameIDs[ev.ID] = ev.NameID
		a.classIDBySerial[ev.Serial] = ev.ID
		a.summary.ClassesLoaded++

	case EventUnloadClass:
		a.summary.ClassesUnloaded++

	case EventStackFrame:
		a.frames[ev.ID] = frameData{
			methodNameID: ev.IDs[0],
			sourceFileID: ev.IDs[2],
			classSerial:  ev.Serial,
			line:         ev.Line,
		}
		a.summary.StackFrames++

	case EventStackTrace:
		a.traces = append(a.traces, traceData{
			serial:       ev.Serial,
			threadSerial: ev.ThreadSerial,
			frameIDs:     ev.IDs,
		})
		a.summary.StackTraces++

	case EventStartThread:
		a.threadNames[ev.ThreadSerial] = ev.NameID
		a.summary.StartThreads++

	case EventEndThread:
		a.summary.EndThreads++

	case EventAllocSites:
		a.summary.AllocationSites++

	case EventHeapSummary:
		a.summary.HeapSummaries++

	case EventControlSettings:
		a.summary.ControlSettings++

	case EventCPUSamples:
		a.summary.CPUSamples++

	case EventHeapDumpStart:
		a.summary.HeapDumps++

	case EventHeapDumpEnd:
		// boundary marker only

	case EventGCRoot:
		a.summary.SubRecords++
		a.applyRoot(ev)

	case EventClassDump:
		a.summary.SubRecords++
		a.summary.ClassDumps++
		if _, seen := a.layouts[ev.ID]; !seen {
			a.layouts[ev.ID] = classLayout{
				superClassID: ev.ClassID,
				instanceSize: uint32(ev.Size),
				fieldTypes:   ev.FieldTypes,
			}
		}

	case EventInstanceDump:
		a.summary.SubRecords++
		a.summary.InstanceDumps++
		ctr, ok := a.instances[ev.ClassID]
		if !ok {
			ctr = &classCounter{}
			a.instances[ev.ClassID] = ctr
		}
		ctr.add(ev.Size)

	case EventObjectArrayDump:
		a.summary.SubRecords++
		a.summary.ObjectArrayDumps++
		ctr, ok := a.objectArrays[ev.ClassID]
		if !ok {
			ctr = &arrayCounter{}
			a.objectArrays[ev.ClassID] = ctr
		}
		ctr.add(ev.Count)

	case EventPrimitiveArrayDump:
		a.summary.SubRecords++
		a.summary.PrimitiveArrayDump++
		ctr, ok := a.primitiveArrays[ev.ElemType]
		if !ok {
			ctr = &arrayCounter{}
			a.primitiveArrays[ev.ElemType] = ctr
		}
		ctr.add(ev.Count)
	}
}

func (a *aggregator) applyRoot(ev *Event) {
	switch ev.RootTag {
	case HeapTagRootUnknown:
		a.summary.RootUnknown++
	case HeapTagRootThreadObject:
		a.summary.RootThreadObject++
	case HeapTagRootJNIGlobal:
		a.summary.RootJNIGlobal++
	case HeapTagRootJNILocal:
		a.summary.RootJNILocal++
	case HeapTagRootJavaFrame:
		a.summary.RootJavaFrame++
	case HeapTagRootNativeStack:
		a.summary.RootNativeStack++
	case HeapTagRootStickyClass:
		a.summary.RootStickyClass++
	case HeapTagRootThreadBlock:
		a.summary.RootThreadBlock++
	case HeapTagRootMonitorUsed:
		a.summary.RootMonitorUsed++
	default:
		a.summary.RootOther++
	}
}

// className resolves a class id through the class-name and string tables.
// Forward references are fine because this only runs at end of stream.
func (a *aggregator) className(classID uint64) string {
	if nameID, ok := a.classNameIDs[classID]; ok {
		if name, ok := a.strings[nameID]; ok {
			return normalizeClassName(name)
		}
	}
	return fmt.Sprintf("<unknown class #%d>", classID)
}

func (a *aggregator) arrayClassName(classID uint64) string {
	if nameID, ok := a.classNameIDs[classID]; ok {
		if name, ok := a.strings[nameID]; ok {
			return objectArrayClassName(name)
		}
	}
	return fmt.Sprintf("<unknown class #%d>", classID)
}

// Finalize resolves names, computes array sizes, sorts and truncates the
// rankings, and assembles the final result.
func (a *aggregator) Finalize() *model.Result {
	rows := make([]model.ClassAllocationStats, 0,
		len(a.instances)+len(a.objectArrays)+len(a.primitiveArrays))

	for classID, ctr := range a.instances {
		rows = append(rows, model.ClassAllocationStats{
			ClassName:              a.className(classID),
			InstanceCount:          ctr.count,
			AllocationSizeBytes:    ctr.totalBytes,
			LargestAllocationBytes: ctr.largestBytes,
		})
	}

	for classID, ctr := range a.objectArrays {
		refs := uint64(requiredIDSize)
		rows = append(rows, model.ClassAllocationStats{
			ClassName:              a.arrayClassName(classID),
			InstanceCount:          ctr.count,
			AllocationSizeBytes:    ctr.count*arrayHeaderBytes + refs*ctr.totalElements,
			LargestAllocationBytes: arrayHeaderBytes + refs*uint64(ctr.maxElements),
		})
	}

	for elemType, ctr := range a.primitiveArrays {
		elemSize := uint64(BasicTypeSize(elemType, requiredIDSize))
		rows = append(rows, model.ClassAllocationStats{
			ClassName:              primitiveArrayTypeName(elemType),
			InstanceCount:          ctr.count,
			AllocationSizeBytes:    ctr.count*arrayHeaderBytes + elemSize*ctr.totalElements,
			LargestAllocationBytes: arrayHeaderBytes + elemSize*uint64(ctr.maxElements),
		})
	}

	var totalHeapBytes uint64
	for _, row := range rows {
		totalHeapBytes += row.AllocationSizeBytes
	}

	if a.classFilter != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if strings.Contains(row.ClassName, a.classFilter) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	byTotal := make([]model.ClassAllocationStats, len(rows))
	copy(byTotal, rows)
	sort.Slice(byTotal, func(i, j int) bool {
		if byTotal[i].AllocationSizeBytes != byTotal[j].AllocationSizeBytes {
			return byTotal[i].AllocationSizeBytes > byTotal[j].AllocationSizeBytes
		}
		if byTotal[i].InstanceCount != byTotal[j].InstanceCount {
			return byTotal[i].InstanceCount > byTotal[j].InstanceCount
		}
		return byTotal[i].ClassName < byTotal[j].ClassName
	})

	byLargest := make([]model.ClassAllocationStats, len(rows))
	copy(byLargest, rows)
	sort.Slice(byLargest, func(i, j int) bool {
		if byLargest[i].LargestAllocationBytes != byLargest[j].LargestAllocationBytes {
			return byLargest[i].LargestAllocationBytes > byLargest[j].LargestAllocationBytes
		}
		if byLargest[i].InstanceCount != byLargest[j].InstanceCount {
			return byLargest[i].InstanceCount > byLargest[j].InstanceCount
		}
		return byLargest[i].ClassName < byLargest[j].ClassName
	})

	result := &model.Result{
		Format:              a.header.Format,
		TimestampMilli:      a.header.TimestampMilli,
		TotalHeapBytes:      totalHeapBytes,
		TopAllocatedClasses: truncateRows(byTotal, a.topN),
		TopLargestInstances: truncateRows(byLargest, a.topN),
		ThreadStackTraces:   a.renderThreads(),
		Summary:             a.summary,
		DuplicateStrings:    a.duplicateStringStats(),
	}

	if a.listStrings {
		result.Strings = a.sortedStrings()
	}

	return result
}

func truncateRows(rows []model.ClassAllocationStats, topN int) []model.ClassAllocationStats {
	if len(rows) > topN {
		rows = rows[:topN]
	}
	return rows
}

// renderThreads resolves the stack trace tables into printable frames.
// Traces without frames are omitted; unresolvable ids degrade to placeholder
// strings rather than failing the run.
func (a *aggregator) renderThreads() []model.ThreadStackTrace {
	traces := make([]traceData, 0, len(a.traces))
	for _, t := range a.traces {
		if len(t.frameIDs) > 0 {
			traces = append(traces, t)
		}
	}
	sort.Slice(traces, func(i, j int) bool {
		return traces[i].serial < traces[j].serial
	})

	rendered := make([]model.ThreadStackTrace, 0, len(traces))
	for _, t := range traces {
		entry := model.ThreadStackTrace{
			ThreadSerial: t.threadSerial,
			Frames:       make([]model.StackFrameInfo, 0, len(t.frameIDs)),
		}
		if nameID, ok := a.threadNames[t.threadSerial]; ok {
			entry.ThreadName = a.strings[nameID]
		}
		for _, fid := range t.frameIDs {
			frame, ok := a.frames[fid]
			if !ok {
				entry.Frames = append(entry.Frames, model.StackFrameInfo{
					Class:  "<unknown class>",
					Method: "unknown method name",
					Source: "unknown source file",
					Line:   -1,
				})
				continue
			}

			className := "<unknown class>"
			if classID, ok := a.classIDBySerial[frame.classSerial]; ok {
				className = a.className(classID)
			}
			method, ok := a.strings[frame.methodNameID]
			if !ok {
				method = "unknown method name"
			}
			source, ok := a.strings[frame.sourceFileID]
			if !ok {
				source = "unknown source file"
			}

			entry.Frames = append(entry.Frames, model.StackFrameInfo{
				Class:  className,
				Method: method,
				Source: source,
				Line:   frame.line,
			})
		}
		rendered = append(rendered, entry)
	}
	return rendered
}

func (a *aggregator) duplicateStringStats() model.DuplicateStringStats {
	unique := make(map[string]struct{}, len(a.strings))
	for _, s := range a.strings {
		unique[s] = struct{}{}
	}
	total := uint64(len(a.strings))
	uniqueCount := uint64(len(unique))
	return model.DuplicateStringStats{
		TotalCount:     total,
		UniqueCount:    uniqueCount,
		DuplicateCount: total - uniqueCount,
	}
}

func (a *aggregator) sortedStrings() []string {
	values := make([]string, 0, len(a.strings))
	for _, s := range a.strings {
		values = append(values, s)
	}
	sort.Strings(values)
	return values
}
