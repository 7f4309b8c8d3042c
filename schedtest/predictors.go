package schedtest

import (
	"sync"
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// RuntimePredictor is a settable fake implementing ports.RuntimePredictor.
type RuntimePredictor struct {
	mu       sync.Mutex
	Estimate time.Duration
	Learned  bool
	Updates  []core.PendingRecord
}

// NewRuntimePredictor returns a fake predicting estimate for every pair,
// reporting learned for HasLearned.
func NewRuntimePredictor(estimate time.Duration, learned bool) *RuntimePredictor {
	return &RuntimePredictor{Estimate: estimate, Learned: learned}
}

func (p *RuntimePredictor) Predict(fn core.FunctionID, endpoint core.EndpointID) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Estimate
}

func (p *RuntimePredictor) Update(record core.PendingRecord, runtime time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Updates = append(p.Updates, record)
}

func (p *RuntimePredictor) HasLearned(fn core.FunctionID, endpoint core.EndpointID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Learned
}

var _ ports.RuntimePredictor = (*RuntimePredictor)(nil)

// TransferTimePredictor is a settable fake implementing
// ports.TransferTimePredictor.
type TransferTimePredictor struct {
	Estimate time.Duration
}

func (p *TransferTimePredictor) TransferTime(files []core.FileRef, endpoint core.EndpointID) time.Duration {
	return p.Estimate
}

var _ ports.TransferTimePredictor = (*TransferTimePredictor)(nil)

// ImportPredictor is a settable fake implementing ports.ImportPredictor.
type ImportPredictor struct {
	Estimate time.Duration
}

func (p *ImportPredictor) ImportTime(pkg string, endpoint core.EndpointID) time.Duration {
	return p.Estimate
}

var _ ports.ImportPredictor = (*ImportPredictor)(nil)
