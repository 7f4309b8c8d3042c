package strategies

import (
	"sort"
	"sync"
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// roundRobin cycles through the registered endpoints in a stable order,
// skipping any endpoint excluded for a given decision. It is the
// scheduler's default strategy.
type roundRobin struct {
	deps ports.StrategyDeps

	mu   sync.Mutex
	next int
}

func newRoundRobin(params map[string]any, deps ports.StrategyDeps) (ports.Strategy, error) {
	return &roundRobin{deps: deps}, nil
}

func (s *roundRobin) candidates(exclude map[core.EndpointID]struct{},
	transferETAs map[core.EndpointID]map[core.TransferHandle]time.Time) []core.EndpointID {
	candidates := make([]core.EndpointID, 0, len(transferETAs))
	for endpoint := range transferETAs {
		if _, excluded := exclude[endpoint]; excluded {
			continue
		}
		candidates = append(candidates, endpoint)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	return candidates
}

func (s *roundRobin) ChooseEndpoint(fn core.FunctionID, payload []byte, files []core.FileRef,
	exclude map[core.EndpointID]struct{},
	transferETAs map[core.EndpointID]map[core.TransferHandle]time.Time) (ports.EndpointChoice, error) {

	candidates := s.candidates(exclude, transferETAs)
	if len(candidates) == 0 {
		return ports.EndpointChoice{}, &NoViableEndpointError{FunctionID: fn}
	}

	s.mu.Lock()
	idx := s.next % len(candidates)
	s.next++
	s.mu.Unlock()

	return ports.EndpointChoice{Endpoint: candidates[idx]}, nil
}

func (s *roundRobin) PredictETA(fn core.FunctionID, endpoint core.EndpointID, payload []byte,
	files []core.FileRef) time.Time {
	return predictETA(s.deps, fn, endpoint, files)
}

// predictETA assembles queue_delay + cold_start + transfer_time + runtime,
// the formula shared by every strategy shipped in this package.
func predictETA(deps ports.StrategyDeps, fn core.FunctionID, endpoint core.EndpointID,
	files []core.FileRef) time.Time {
	ready := deps.Oracles.QueueDelay(endpoint)
	cold := deps.Oracles.ColdStart(endpoint, fn)
	var transferTime time.Duration
	if len(files) > 0 && deps.TransferTime != nil {
		transferTime = deps.TransferTime.TransferTime(files, endpoint)
	}
	var runtime time.Duration
	if deps.Runtime != nil {
		runtime = deps.Runtime.Predict(fn, endpoint)
	}
	return ready.Add(cold).Add(transferTime).Add(runtime)
}
