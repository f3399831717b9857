// Package render turns analysis results into terminal-friendly text. It is
// deliberately outside the core pipeline: the core produces a Result record
// and this package decides how it looks.
package render

import (
	"fmt"
	"strings"

	"github.com/inhies/go-bytesize"

	"github.com/heapstream/pkg/model"
)

// PrettyBytes formats a byte count for humans.
func PrettyBytes(n uint64) string {
	return bytesize.ByteSize(n).String()
}

// Summary renders the file content summary counters.
func Summary(res *model.Result) string {
	s := res.Summary
	var b strings.Builder

	b.WriteString("\nFile content summary:\n\n")
	fmt.Fprintf(&b, "UTF-8 Strings: %d\n", s.Utf8Strings)
	fmt.Fprintf(&b, "Classes loaded: %d\n", s.ClassesLoaded)
	fmt.Fprintf(&b, "Classes unloaded: %d\n", s.ClassesUnloaded)
	fmt.Fprintf(&b, "Stack traces: %d\n", s.StackTraces)
	fmt.Fprintf(&b, "Stack frames: %d\n", s.StackFrames)
	fmt.Fprintf(&b, "Start threads: %d\n", s.StartThreads)
	fmt.Fprintf(&b, "Allocation sites: %d\n", s.AllocationSites)
	fmt.Fprintf(&b, "End threads: %d\n", s.EndThreads)
	fmt.Fprintf(&b, "Control settings: %d\n", s.ControlSettings)
	fmt.Fprintf(&b, "CPU samples: %d\n", s.CPUSamples)
	fmt.Fprintf(&b, "Heap summaries: %d\n", s.HeapSummaries)
	fmt.Fprintf(&b, "%d heap dumps containing in total %d segments:\n", s.HeapDumps, s.SubRecords)
	fmt.Fprintf(&b, "..GC root unknown: %d\n", s.RootUnknown)
	fmt.Fprintf(&b, "..GC root thread objects: %d\n", s.RootThreadObject)
	fmt.Fprintf(&b, "..GC root JNI global: %d\n", s.RootJNIGlobal)
	fmt.Fprintf(&b, "..GC root JNI local: %d\n", s.RootJNILocal)
	fmt.Fprintf(&b, "..GC root Java frame: %d\n", s.RootJavaFrame)
	fmt.Fprintf(&b, "..GC root native stack: %d\n", s.RootNativeStack)
	fmt.Fprintf(&b, "..GC root sticky class: %d\n", s.RootStickyClass)
	fmt.Fprintf(&b, "..GC root thread block: %d\n", s.RootThreadBlock)
	fmt.Fprintf(&b, "..GC root monitor used: %d\n", s.RootMonitorUsed)
	fmt.Fprintf(&b, "..GC root other: %d\n", s.RootOther)
	fmt.Fprintf(&b, "..GC primitive array dump: %d\n", s.PrimitiveArrayDump)
	fmt.Fprintf(&b, "..GC object array dump: %d\n", s.ObjectArrayDumps)
	fmt.Fprintf(&b, "..GC class dump: %d\n", s.ClassDumps)
	fmt.Fprintf(&b, "..GC instance dump: %d\n", s.InstanceDumps)

	return b.String()
}

// MemoryUsage renders the total heap banner and the two top-N tables.
func MemoryUsage(res *model.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Found a total of %s of instances allocated on the heap.\n",
		PrettyBytes(res.TotalHeapBytes))

	fmt.Fprintf(&b, "\nTop %d allocated classes:\n\n", len(res.TopAllocatedClasses))
	writeTable(&b, res.TopAllocatedClasses)

	fmt.Fprintf(&b, "\nTop %d largest instances:\n\n", len(res.TopLargestInstances))
	writeTable(&b, res.TopLargestInstances)

	return b.String()
}

// Threads renders the captured thread stack traces.
func Threads(res *model.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\nFound %d threads with stacktraces:\n", len(res.ThreadStackTraces))
	for i, t := range res.ThreadStackTraces {
		if t.ThreadName != "" {
			fmt.Fprintf(&b, "\nThread %d (%s)\n", i+1, t.ThreadName)
		} else {
			fmt.Fprintf(&b, "\nThread %d\n", i+1)
		}
		for _, f := range t.Frames {
			fmt.Fprintf(&b, "  at %s.%s (%s:%s)\n", f.Class, f.Method, f.Source, prettyLine(f.Line))
		}
	}

	return b.String()
}

// Strings renders the captured string table.
func Strings(res *model.Result) string {
	var b strings.Builder
	b.WriteString("\nList of Strings\n")
	for _, s := range res.Strings {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return b.String()
}

// DuplicateStrings renders the duplicate-string line, or "" when there are
// no duplicates.
func DuplicateStrings(res *model.Result) string {
	d := res.DuplicateStrings
	if d.DuplicateCount == 0 {
		return ""
	}
	return fmt.Sprintf("\nFound %d duplicated strings out of %d unique strings\n",
		d.DuplicateCount, d.UniqueCount)
}

// prettyLine maps the HPROF line number sentinels to readable labels.
func prettyLine(line int32) string {
	switch line {
	case -1:
		return "unknown line number"
	case -2:
		return "compiled method"
	case -3:
		return "native method"
	default:
		return fmt.Sprintf("%d", line)
	}
}

// writeTable renders rows in a bordered four-column table.
func writeTable(b *strings.Builder, rows []model.ClassAllocationStats) {
	headers := [4]string{"Total size", "Instances", "Largest", "Class name"}
	widths := [4]int{len(headers[0]), len(headers[1]), len(headers[2]), len(headers[3])}

	cells := make([][4]string, len(rows))
	for i, row := range rows {
		cells[i] = [4]string{
			PrettyBytes(row.AllocationSizeBytes),
			fmt.Sprintf("%d", row.InstanceCount),
			PrettyBytes(row.LargestAllocationBytes),
			row.ClassName,
		}
		for col := 0; col < 4; col++ {
			if len(cells[i][col]) > widths[col] {
				widths[col] = len(cells[i][col])
			}
		}
	}

	line := fmt.Sprintf("+%s+%s+%s+%s+\n",
		strings.Repeat("-", widths[0]+2),
		strings.Repeat("-", widths[1]+2),
		strings.Repeat("-", widths[2]+2),
		strings.Repeat("-", widths[3]+2))

	b.WriteString(line)
	fmt.Fprintf(b, "| %*s | %*s | %*s | %-*s |\n",
		widths[0], headers[0], widths[1], headers[1], widths[2], headers[2], widths[3], headers[3])
	b.WriteString(line)
	for _, c := range cells {
		fmt.Fprintf(b, "| %*s | %*s | %*s | %-*s |\n",
			widths[0], c[0], widths[1], c[1], widths[2], c[2], widths[3], c[3])
	}
	b.WriteString(line)
}
