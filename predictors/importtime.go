package predictors

import (
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// defaultImportTime is used for any (package, endpoint) pair that has not
// yet been observed.
const defaultImportTime = 500 * time.Millisecond

type importKey struct {
	pkg      string
	endpoint core.EndpointID
}

// ImportEstimator predicts how long a cold endpoint spends importing a
// single package, warm-started from previously observed import durations
// and refined as new observations arrive.
type ImportEstimator struct {
	observed map[importKey]time.Duration
}

// NewImportEstimator builds an import-time predictor warm-started from a
// prior model, keyed by package name and endpoint.
func NewImportEstimator(observed map[string]map[core.EndpointID]time.Duration) *ImportEstimator {
	flat := make(map[importKey]time.Duration)
	for pkg, byEndpoint := range observed {
		for endpoint, dur := range byEndpoint {
			flat[importKey{pkg: pkg, endpoint: endpoint}] = dur
		}
	}
	return &ImportEstimator{observed: flat}
}

// NewImportEstimatorFromSeconds builds an import-time predictor from the
// float64-seconds shape produced by LoadImportModel.
func NewImportEstimatorFromSeconds(observed map[string]map[core.EndpointID]float64) *ImportEstimator {
	flat := make(map[importKey]time.Duration)
	for pkg, byEndpoint := range observed {
		for endpoint, seconds := range byEndpoint {
			flat[importKey{pkg: pkg, endpoint: endpoint}] = time.Duration(seconds * float64(time.Second))
		}
	}
	return &ImportEstimator{observed: flat}
}

// ImportTime returns the best known estimate for importing pkg on
// endpoint, or defaultImportTime if pkg has never been observed there.
func (e *ImportEstimator) ImportTime(pkg string, endpoint core.EndpointID) time.Duration {
	if dur, ok := e.observed[importKey{pkg: pkg, endpoint: endpoint}]; ok {
		return dur
	}
	return defaultImportTime
}

// Observe records a freshly measured import duration for (pkg, endpoint).
func (e *ImportEstimator) Observe(pkg string, endpoint core.EndpointID, dur time.Duration) {
	e.observed[importKey{pkg: pkg, endpoint: endpoint}] = dur
}

// Snapshot returns the predictor's current estimates in the nested shape
// NewImportEstimator expects, for persistence to a warm-start model file.
func (e *ImportEstimator) Snapshot() map[string]map[core.EndpointID]time.Duration {
	out := make(map[string]map[core.EndpointID]time.Duration)
	for key, dur := range e.observed {
		byEndpoint, ok := out[key.pkg]
		if !ok {
			byEndpoint = make(map[core.EndpointID]time.Duration)
			out[key.pkg] = byEndpoint
		}
		byEndpoint[key.endpoint] = dur
	}
	return out
}

// SnapshotSeconds returns the predictor's current estimates in the
// float64-seconds shape SaveImportModel expects.
func (e *ImportEstimator) SnapshotSeconds() map[string]map[core.EndpointID]float64 {
	out := make(map[string]map[core.EndpointID]float64)
	for key, dur := range e.observed {
		byEndpoint, ok := out[key.pkg]
		if !ok {
			byEndpoint = make(map[core.EndpointID]float64)
			out[key.pkg] = byEndpoint
		}
		byEndpoint[key.endpoint] = dur.Seconds()
	}
	return out
}

var _ ports.ImportPredictor = (*ImportEstimator)(nil)
