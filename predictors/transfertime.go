package predictors

import (
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// defaultThroughputBytesPerSecond is used for any endpoint that has not yet
// reported an observed transfer in its warm-start model.
const defaultThroughputBytesPerSecond = 50 * 1024 * 1024

// ThroughputEstimator predicts transfer time as total payload size divided
// by a learned or default per-endpoint throughput.
type ThroughputEstimator struct {
	throughput map[core.EndpointID]float64 // bytes/sec
}

// NewThroughputEstimator builds a transfer-time predictor warm-started
// from observed (endpoint -> bytes/sec) throughput figures, if any.
func NewThroughputEstimator(observed map[core.EndpointID]float64) *ThroughputEstimator {
	throughput := make(map[core.EndpointID]float64, len(observed))
	for endpoint, bps := range observed {
		throughput[endpoint] = bps
	}
	return &ThroughputEstimator{throughput: throughput}
}

// TransferTime estimates how long it will take to stage files to endpoint.
func (e *ThroughputEstimator) TransferTime(files []core.FileRef, endpoint core.EndpointID) time.Duration {
	var total int64
	for _, f := range files {
		total += f.Bytes
	}
	if total <= 0 {
		return 0
	}
	bps, ok := e.throughput[endpoint]
	if !ok || bps <= 0 {
		bps = defaultThroughputBytesPerSecond
	}
	seconds := float64(total) / bps
	return time.Duration(seconds * float64(time.Second))
}

// Observe folds a completed transfer's actual throughput into the
// predictor's per-endpoint estimate, exponentially smoothing against the
// previous estimate.
func (e *ThroughputEstimator) Observe(endpoint core.EndpointID, bytesMoved int64, elapsed time.Duration) {
	if elapsed <= 0 || bytesMoved <= 0 {
		return
	}
	observed := float64(bytesMoved) / elapsed.Seconds()
	const smoothing = 0.3
	if prior, ok := e.throughput[endpoint]; ok {
		e.throughput[endpoint] = prior + smoothing*(observed-prior)
	} else {
		e.throughput[endpoint] = observed
	}
}

// Snapshot returns the predictor's current per-endpoint throughput
// estimates, for persistence to a warm-start model file.
func (e *ThroughputEstimator) Snapshot() map[core.EndpointID]float64 {
	out := make(map[core.EndpointID]float64, len(e.throughput))
	for k, v := range e.throughput {
		out[k] = v
	}
	return out
}

var _ ports.TransferTimePredictor = (*ThroughputEstimator)(nil)
