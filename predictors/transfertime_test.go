package predictors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/globus-compute/central-scheduler/core"
)

func TestThroughputEstimatorUsesDefaultWhenUnobserved(t *testing.T) {
	e := NewThroughputEstimator(nil)
	files := []core.FileRef{{Id: "f1", Bytes: defaultThroughputBytesPerSecond}}
	dur := e.TransferTime(files, "endpoint-a")
	assert.InDelta(t, 1*time.Second, dur, float64(10*time.Millisecond))
}

func TestThroughputEstimatorZeroForNoFiles(t *testing.T) {
	e := NewThroughputEstimator(nil)
	assert.Equal(t, time.Duration(0), e.TransferTime(nil, "endpoint-a"))
}

func TestThroughputEstimatorUsesWarmStartedThroughput(t *testing.T) {
	e := NewThroughputEstimator(map[core.EndpointID]float64{"endpoint-a": 1024})
	files := []core.FileRef{{Id: "f1", Bytes: 2048}}
	assert.Equal(t, 2*time.Second, e.TransferTime(files, "endpoint-a"))
}

func TestThroughputEstimatorObserveSmooths(t *testing.T) {
	e := NewThroughputEstimator(map[core.EndpointID]float64{"endpoint-a": 1000})
	e.Observe("endpoint-a", 2000, 1*time.Second) // observed throughput: 2000 B/s
	snap := e.Snapshot()
	assert.Greater(t, snap["endpoint-a"], 1000.0)
	assert.Less(t, snap["endpoint-a"], 2000.0)
}
