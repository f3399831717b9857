// Package hprof implements a single-pass, streaming analyzer for JVM heap
// dumps in the HPROF binary format (JAVA PROFILE 1.0.1 / 1.0.2, 64-bit
// identifiers).
//
// The pipeline has three concurrently scheduled stages connected by bounded
// channels:
//
//	chunk reader  ->  framer + record parser  ->  aggregator
//
// The reader fills pooled fixed-size buffers from the input. The framer
// slices them into complete top-level records, copying only records that
// span a chunk boundary. The parser decodes records, including the
// sub-record stream inside HEAP_DUMP / HEAP_DUMP_SEGMENT payloads, into
// small by-value events. The aggregator is the single writer to all
// long-lived tables and produces the final result at end of stream.
//
// Class definitions may arrive after instances that reference them, so
// statistics are keyed by raw class id during the scan and names are
// resolved only once at the end. This is what makes a single physical pass
// sufficient. Memory use is bounded by the chunk size times the pipeline
// depth plus the size of the class, string and frame tables; no allocation
// happens per instance dump.
package hprof
