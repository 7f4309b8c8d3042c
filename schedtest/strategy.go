package schedtest

import (
	"sort"
	"sync"
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// NoViableEndpointError mirrors strategies.NoViableEndpointError without
// importing that package, so schedtest does not depend on strategies.
type NoViableEndpointError struct {
	FunctionID core.FunctionID
}

func (e *NoViableEndpointError) Error() string {
	return "no viable endpoint remains for function " + string(e.FunctionID)
}

// Strategy is a deterministic round-robin fake implementing ports.Strategy,
// with settable per-endpoint ETAs so tests can force particular
// scheduling/backup outcomes.
type Strategy struct {
	mu   sync.Mutex
	next int

	// ETAs overrides PredictETA's return value per endpoint. Endpoints
	// absent from this map get Deps.Oracles.QueueDelay(endpoint) back.
	ETAs map[core.EndpointID]time.Time

	// Deps is exposed so tests can call the same oracles the scheduler
	// wires in, if needed.
	Deps ports.StrategyDeps

	// Calls records every ChooseEndpoint invocation's excluded set, for
	// assertions about exclusion behavior.
	Calls []map[core.EndpointID]struct{}
}

// NewStrategy returns a fresh round-robin fake strategy.
func NewStrategy(deps ports.StrategyDeps) *Strategy {
	return &Strategy{ETAs: make(map[core.EndpointID]time.Time), Deps: deps}
}

func (s *Strategy) ChooseEndpoint(fn core.FunctionID, payload []byte, files []core.FileRef,
	exclude map[core.EndpointID]struct{},
	transferETAs map[core.EndpointID]map[core.TransferHandle]time.Time) (ports.EndpointChoice, error) {

	s.mu.Lock()
	s.Calls = append(s.Calls, exclude)
	s.mu.Unlock()

	candidates := make([]core.EndpointID, 0, len(transferETAs))
	for endpoint := range transferETAs {
		if _, excluded := exclude[endpoint]; excluded {
			continue
		}
		candidates = append(candidates, endpoint)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	if len(candidates) == 0 {
		return ports.EndpointChoice{}, &NoViableEndpointError{FunctionID: fn}
	}

	s.mu.Lock()
	idx := s.next % len(candidates)
	s.next++
	s.mu.Unlock()

	return ports.EndpointChoice{Endpoint: candidates[idx]}, nil
}

func (s *Strategy) PredictETA(fn core.FunctionID, endpoint core.EndpointID, payload []byte,
	files []core.FileRef) time.Time {
	s.mu.Lock()
	eta, ok := s.ETAs[endpoint]
	s.mu.Unlock()
	if ok {
		return eta
	}
	if s.Deps.Oracles.QueueDelay != nil {
		return s.Deps.Oracles.QueueDelay(endpoint)
	}
	return time.Time{}
}

// SetETA pins the ETA PredictETA returns for endpoint.
func (s *Strategy) SetETA(endpoint core.EndpointID, eta time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ETAs[endpoint] = eta
}

var _ ports.Strategy = (*Strategy)(nil)
