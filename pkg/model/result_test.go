package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_JSONFieldNames(t *testing.T) {
	res := Result{
		Format:         "JAVA PROFILE 1.0.2",
		TotalHeapBytes: 2653000,
		TopAllocatedClasses: []ClassAllocationStats{
			{ClassName: "int[]", InstanceCount: 436, AllocationSizeBytes: 2091112, LargestAllocationBytes: 650016},
		},
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"total_heap_bytes":2653000`)
	assert.Contains(t, s, `"top_allocated_classes"`)
	assert.Contains(t, s, `"class_name":"int[]"`)
	assert.Contains(t, s, `"instance_count":436`)
	assert.Contains(t, s, `"allocation_size_bytes":2091112`)
	assert.Contains(t, s, `"largest_allocation_bytes":650016`)
}

func TestResult_StringsOmittedWhenEmpty(t *testing.T) {
	data, err := json.Marshal(Result{})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"strings"`)

	data, err = json.Marshal(Result{Strings: []string{"a"}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"strings":["a"]`)
}

func TestResult_RoundTrip(t *testing.T) {
	res := Result{
		TotalHeapBytes: 64,
		ThreadStackTraces: []ThreadStackTrace{
			{ThreadSerial: 200, ThreadName: "main", Frames: []StackFrameInfo{
				{Class: "Foo", Method: "bar", Source: "Foo.java", Line: -2},
			}},
		},
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var got Result
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, res, got)
}
