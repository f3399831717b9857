package writer

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter[sample]()
	require.NoError(t, w.Write(sample{Name: "int[]", Count: 436}, &buf))

	var got sample
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "int[]", got.Name)
	assert.Equal(t, 436, got.Count)
}

func TestPrettyJSONWriter_Indents(t *testing.T) {
	var buf bytes.Buffer
	w := NewPrettyJSONWriter[sample]()
	require.NoError(t, w.Write(sample{Name: "x"}, &buf))
	assert.Contains(t, buf.String(), "\n  \"name\"")
}

func TestJSONWriter_WriteToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := NewJSONWriter[sample]()
	require.NoError(t, w.WriteToFile(sample{Name: "file"}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"file"`)
}

func TestGzipWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewGzipWriter[sample]()
	require.NoError(t, w.Write(sample{Name: "zipped", Count: 7}, &buf))

	gr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	raw, err := io.ReadAll(gr)
	require.NoError(t, err)

	var got sample
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "zipped", got.Name)
	assert.Equal(t, 7, got.Count)
}
