package hprof

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapstream/internal/testutil"
	apperrors "github.com/heapstream/pkg/errors"
	"github.com/heapstream/pkg/model"
)

// minimalDump is the smallest useful dump: one class Foo with three
// instances of 16, 24 and 24 field bytes.
func minimalDump() *testutil.DumpBuilder {
	return testutil.NewDumpBuilder().
		AddString(0x10, "Foo").
		AddLoadClass(1, 1, 0x10).
		AddHeapDump(func(h *testutil.HeapDumpBuilder) {
			h.InstanceDump(0xA1, 1, make([]byte, 16)).
				InstanceDump(0xA2, 1, make([]byte, 24)).
				InstanceDump(0xA3, 1, make([]byte, 24))
		}).
		AddHeapDumpEnd()
}

func runBytes(t *testing.T, data []byte, opts Options) (*model.Result, error) {
	t.Helper()
	return RunStream(context.Background(), bytes.NewReader(data), opts)
}

func TestRunStream_MinimalDump(t *testing.T) {
	res, err := runBytes(t, minimalDump().Bytes(), Options{})
	require.NoError(t, err)

	require.Len(t, res.TopAllocatedClasses, 1)
	row := res.TopAllocatedClasses[0]
	assert.Equal(t, "Foo", row.ClassName)
	assert.Equal(t, uint64(3), row.InstanceCount)
	assert.Equal(t, uint64(64), row.AllocationSizeBytes)
	assert.Equal(t, uint64(24), row.LargestAllocationBytes)

	assert.Equal(t, uint64(1), res.Summary.ClassesLoaded)
	assert.Equal(t, uint64(3), res.Summary.InstanceDumps)
	assert.Equal(t, "JAVA PROFILE 1.0.2", res.Format)
}

func TestRunStream_ChunkSizeIndependence(t *testing.T) {
	data := minimalDump().
		AddString(0x20, "[I").
		AddHeapDump(func(h *testutil.HeapDumpBuilder) {
			h.PrimitiveArrayDump(0xB1, byte(TypeInt), 100, 4).
				ObjectArrayDump(0xB2, 1, 12).
				RootUnknown(0xC1)
		}).
		Bytes()

	reference, err := runBytes(t, data, Options{ChunkSize: DefaultChunkSize})
	require.NoError(t, err)

	for _, chunkSize := range []int{16, 64, 101, 4096, 64 * 1024} {
		res, err := runBytes(t, data, Options{ChunkSize: chunkSize})
		require.NoError(t, err, "chunk size %d", chunkSize)
		assert.Equal(t, reference, res, "chunk size %d", chunkSize)
	}
}

func TestRunStream_Idempotent(t *testing.T) {
	data := minimalDump().Bytes()

	first, err := runBytes(t, data, Options{ListStrings: true})
	require.NoError(t, err)
	second, err := runBytes(t, data, Options{ListStrings: true})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunStream_ForwardReference(t *testing.T) {
	// instance dumps for class 7 appear before its load-class record
	data := testutil.NewDumpBuilder().
		AddHeapDump(func(h *testutil.HeapDumpBuilder) {
			h.InstanceDump(0xA1, 7, make([]byte, 40)).
				InstanceDump(0xA2, 7, make([]byte, 8))
		}).
		AddString(0x11, "com/example/LateLoaded").
		AddLoadClass(9, 7, 0x11).
		Bytes()

	res, err := runBytes(t, data, Options{})
	require.NoError(t, err)
	require.Len(t, res.TopAllocatedClasses, 1)
	assert.Equal(t, "com.example.LateLoaded", res.TopAllocatedClasses[0].ClassName)
	assert.Equal(t, uint64(2), res.TopAllocatedClasses[0].InstanceCount)
	assert.Equal(t, uint64(48), res.TopAllocatedClasses[0].AllocationSizeBytes)
}

func TestRunStream_UnsupportedIDSize(t *testing.T) {
	data := testutil.NewDumpBuilderWithHeader("JAVA PROFILE 1.0.2", 4).Bytes()

	_, err := runBytes(t, data, Options{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnsupportedFormat, apperrors.GetErrorCode(err))
}

func TestRunStream_TruncatedInsideInstanceDump(t *testing.T) {
	data := minimalDump().TruncateTail(10)

	_, err := runBytes(t, data, Options{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTruncatedRecord, apperrors.GetErrorCode(err))
}

func TestRunStream_TruncationNeverSilentlyWrong(t *testing.T) {
	full := minimalDump().Bytes()
	const headerLen = 31

	for cut := headerLen; cut < len(full); cut++ {
		res, err := runBytes(t, full[:cut], Options{})
		if err != nil {
			assert.Equal(t, apperrors.CodeTruncatedRecord, apperrors.GetErrorCode(err), "cut %d", cut)
			continue
		}
		// a clean cut must fall on a record boundary and yield a consistent
		// (possibly shorter) result
		require.NotNil(t, res, "cut %d", cut)
		var counted uint64
		for _, row := range res.TopAllocatedClasses {
			counted += row.InstanceCount
		}
		assert.Equal(t, res.Summary.InstanceDumps, counted, "cut %d", cut)
	}
}

func TestRunStream_UnknownTopLevelTagSkipped(t *testing.T) {
	data := testutil.NewDumpBuilder().
		AddString(0x10, "Foo").
		AddRawRecord(0xAB, []byte{1, 2, 3, 4, 5}).
		AddLoadClass(1, 1, 0x10).
		AddHeapDump(func(h *testutil.HeapDumpBuilder) {
			h.InstanceDump(0xA1, 1, make([]byte, 8))
		}).
		Bytes()

	res, err := runBytes(t, data, Options{})
	require.NoError(t, err)
	require.Len(t, res.TopAllocatedClasses, 1)
	assert.Equal(t, "Foo", res.TopAllocatedClasses[0].ClassName)
}

func TestRunStream_ClassDumpWithStatics(t *testing.T) {
	data := testutil.NewDumpBuilder().
		AddString(0x10, "com/example/WithStatics").
		AddLoadClass(1, 5, 0x10).
		AddHeapDump(func(h *testutil.HeapDumpBuilder) {
			h.ClassDumpWithStatics(5, 32, []byte{byte(TypeObject), byte(TypeLong), byte(TypeBoolean)}).
				InstanceDump(0xA1, 5, make([]byte, 32))
		}).
		Bytes()

	res, err := runBytes(t, data, Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Summary.ClassDumps)
	require.Len(t, res.TopAllocatedClasses, 1)
	assert.Equal(t, "com.example.WithStatics", res.TopAllocatedClasses[0].ClassName)
}

func TestRunStream_ThreadTraces(t *testing.T) {
	data := testutil.NewDumpBuilder().
		AddString(1, "com/example/Main").
		AddString(2, "run").
		AddString(3, "Main.java").
		AddString(4, "main-thread").
		AddLoadClass(5, 10, 1).
		AddStartThread(200, 4).
		AddStackFrame(0xF1, 2, 0, 3, 5, 17).
		AddStackTrace(1, 200, []uint64{0xF1}).
		Bytes()

	res, err := runBytes(t, data, Options{})
	require.NoError(t, err)
	require.Len(t, res.ThreadStackTraces, 1)
	trace := res.ThreadStackTraces[0]
	assert.Equal(t, "main-thread", trace.ThreadName)
	require.Len(t, trace.Frames, 1)
	assert.Equal(t, "com.example.Main", trace.Frames[0].Class)
	assert.Equal(t, "run", trace.Frames[0].Method)
	assert.Equal(t, int32(17), trace.Frames[0].Line)
}

func TestRunStream_TopNTruncation(t *testing.T) {
	b := testutil.NewDumpBuilder()
	b.AddHeapDump(func(h *testutil.HeapDumpBuilder) {
		for i := 0; i < 30; i++ {
			h.InstanceDump(uint64(0xA00+i), uint64(100+i), make([]byte, 8*(i+1)))
		}
	})

	res, err := runBytes(t, b.Bytes(), Options{TopN: 3})
	require.NoError(t, err)
	assert.Len(t, res.TopAllocatedClasses, 3)
	assert.Len(t, res.TopLargestInstances, 3)
	// ranked by total descending
	assert.True(t, res.TopAllocatedClasses[0].AllocationSizeBytes >=
		res.TopAllocatedClasses[1].AllocationSizeBytes)
}

func TestRunStream_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunStream(ctx, bytes.NewReader(minimalDump().Bytes()), Options{})
	require.Error(t, err)
}

func TestRun_GzippedDump(t *testing.T) {
	data := minimalDump().Bytes()

	dir := t.TempDir()
	path := filepath.Join(dir, "dump.hprof.gz")
	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, os.WriteFile(path, gzBuf.Bytes(), 0644))

	res, err := Run(context.Background(), Options{Path: path})
	require.NoError(t, err)
	require.Len(t, res.TopAllocatedClasses, 1)
	assert.Equal(t, "Foo", res.TopAllocatedClasses[0].ClassName)
}

func TestRun_MissingFile(t *testing.T) {
	_, err := Run(context.Background(), Options{Path: filepath.Join(t.TempDir(), "nope.hprof")})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeIO, apperrors.GetErrorCode(err))
}
