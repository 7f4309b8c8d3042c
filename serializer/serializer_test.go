package serializer

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globus-compute/central-scheduler/core"
)

func TestExtractFilesFromEmptyPayload(t *testing.T) {
	files, err := New().ExtractFiles(nil)
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestExtractFilesIgnoresUnrelatedFields(t *testing.T) {
	payload := []byte(`{"files":[{"id":"f1","name":"in.csv","path":"/data/in.csv","bytes":10}],"x":1,"y":"anything"}`)
	files, err := New().ExtractFiles(payload)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, core.FileRef{Id: "f1", Name: "in.csv", Path: "/data/in.csv", Bytes: 10}, files[0])
}

func TestDecodeResultConvertsSecondsAndBase64Value(t *testing.T) {
	value := base64.StdEncoding.EncodeToString([]byte("hello"))
	raw := []byte(`{"runtime":1.5,"imports":["numpy"],"value":"` + value + `"}`)
	result, err := New().DecodeResult(raw)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, result.Runtime)
	assert.Equal(t, []string{"numpy"}, result.Imports)
	assert.Equal(t, []byte("hello"), result.Value)
}

func TestDecodeExceptionExtractsKindAndMessage(t *testing.T) {
	raw := []byte(`{"kind":"out-of-memory","message":"killed"}`)
	exc, err := New().DecodeException(raw)
	require.NoError(t, err)
	assert.Equal(t, core.ExceptionOutOfMemory, exc.Kind)
	assert.Equal(t, "killed", exc.Message)
}
