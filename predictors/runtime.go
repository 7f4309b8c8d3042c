// Package predictors provides the scheduler's default online oracles: a
// rolling-average runtime predictor, a throughput-based transfer-time
// predictor, and an import-time predictor, the last two of which can warm-
// start their learned state from a SQLite file.
package predictors

import (
	"fmt"
	"sync"
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// defaultRuntimeEstimate is returned for a (function, endpoint) pair that
// has never been observed.
const defaultRuntimeEstimate = 1 * time.Second

type runtimeKey struct {
	fn       core.FunctionID
	endpoint core.EndpointID
}

// RollingAverage predicts a function's runtime on an endpoint as the mean
// of its last N observed runtimes on that endpoint.
type RollingAverage struct {
	lastN      int
	trainEvery int

	mu      sync.Mutex
	samples map[runtimeKey][]time.Duration
	counts  map[runtimeKey]int
}

// NewRollingAverage constructs a rolling-average runtime predictor that
// retains the last lastN samples per (function, endpoint) pair. trainEvery
// is stored and reported by String but does not affect predictions: Predict
// averages the current sample window on every call.
func NewRollingAverage(lastN, trainEvery int) *RollingAverage {
	if lastN <= 0 {
		lastN = 3
	}
	if trainEvery <= 0 {
		trainEvery = 1
	}
	return &RollingAverage{
		lastN:      lastN,
		trainEvery: trainEvery,
		samples:    make(map[runtimeKey][]time.Duration),
		counts:     make(map[runtimeKey]int),
	}
}

// Predict returns the current rolling average, or defaultRuntimeEstimate if
// no samples have been observed yet.
func (p *RollingAverage) Predict(fn core.FunctionID, endpoint core.EndpointID) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := runtimeKey{fn: fn, endpoint: endpoint}
	samples := p.samples[key]
	if len(samples) == 0 {
		return defaultRuntimeEstimate
	}
	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return total / time.Duration(len(samples))
}

// Update folds a newly observed runtime into the (function, endpoint)
// pair's rolling window.
func (p *RollingAverage) Update(record core.PendingRecord, runtime time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := runtimeKey{fn: record.FunctionID, endpoint: record.Endpoint}
	samples := append(p.samples[key], runtime)
	if len(samples) > p.lastN {
		samples = samples[len(samples)-p.lastN:]
	}
	p.samples[key] = samples
	p.counts[key]++
}

// HasLearned reports whether the rolling window for (fn, endpoint) is full,
// i.e. whether its prediction is trustworthy enough to justify sending a
// speculative backup against it.
func (p *RollingAverage) HasLearned(fn core.FunctionID, endpoint core.EndpointID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := runtimeKey{fn: fn, endpoint: endpoint}
	return len(p.samples[key]) >= p.lastN
}

var _ ports.RuntimePredictor = (*RollingAverage)(nil)

func (p *RollingAverage) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("RollingAverage(lastN=%d, trainEvery=%d, pairs=%d)", p.lastN, p.trainEvery, len(p.samples))
}
