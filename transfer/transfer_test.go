package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globus-compute/central-scheduler/core"
)

func TestTransferOfNoFilesReturnsNilHandle(t *testing.T) {
	c := New(nil)
	defer c.Stop()

	handle, err := c.Transfer(nil, "endpoint-a", "task-1")
	require.NoError(t, err)
	assert.Nil(t, handle)
}

func TestTransferCompletesAfterExpectedDuration(t *testing.T) {
	// 10 bytes/sec throughput, 5 bytes of files -> 500ms to finish
	c := New(map[core.EndpointID]float64{"endpoint-a": 10})
	defer c.Stop()

	handle, err := c.Transfer([]core.FileRef{{Id: "f1", Bytes: 5}}, "endpoint-a", "task-1")
	require.NoError(t, err)
	require.NotNil(t, handle)

	complete, err := c.IsComplete(*handle)
	require.NoError(t, err)
	assert.False(t, complete, "transfer should not be instantaneous")

	time.Sleep(600 * time.Millisecond)

	complete, err = c.IsComplete(*handle)
	require.NoError(t, err)
	assert.True(t, complete)

	duration, err := c.GetTransferTime(*handle)
	require.NoError(t, err)
	assert.InDelta(t, 500*time.Millisecond, duration, float64(100*time.Millisecond))
}

func TestGetTransferTimeBeforeCompletionErrors(t *testing.T) {
	c := New(map[core.EndpointID]float64{"endpoint-a": 1})
	defer c.Stop()

	handle, err := c.Transfer([]core.FileRef{{Id: "f1", Bytes: 100}}, "endpoint-a", "task-1")
	require.NoError(t, err)

	_, err = c.GetTransferTime(*handle)
	assert.IsType(t, &NotCompleteError{}, err)
}

func TestUnknownHandleErrorsOnAllQueries(t *testing.T) {
	c := New(nil)
	defer c.Stop()

	_, err := c.IsComplete("bogus")
	assert.IsType(t, &UnknownHandleError{}, err)

	_, err = c.GetTransferTime("bogus")
	assert.IsType(t, &UnknownHandleError{}, err)

	_, err = c.Manifest("bogus")
	assert.IsType(t, &UnknownHandleError{}, err)
}

func TestManifestAvailableAfterCompletion(t *testing.T) {
	c := New(map[core.EndpointID]float64{"endpoint-a": 1000})
	defer c.Stop()

	handle, err := c.Transfer([]core.FileRef{{Id: "f1", Name: "in.csv", Path: "/data/in.csv", Bytes: 10, Hash: "md5:abc"}},
		"endpoint-a", "task-1")
	require.NoError(t, err)

	_, err = c.Manifest(*handle)
	assert.IsType(t, &NotCompleteError{}, err, "manifest is only built once a transfer completes")

	time.Sleep(100 * time.Millisecond)
	_, _ = c.IsComplete(*handle) // triggers manifest construction as a side effect

	manifest, err := c.Manifest(*handle)
	require.NoError(t, err)
	require.NotNil(t, manifest)
}
