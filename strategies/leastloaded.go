package strategies

import (
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// leastLoaded picks the non-excluded endpoint with the earliest queue-ready
// time, i.e. the one with the smallest predicted backlog.
type leastLoaded struct {
	deps ports.StrategyDeps
}

func newLeastLoaded(params map[string]any, deps ports.StrategyDeps) (ports.Strategy, error) {
	return &leastLoaded{deps: deps}, nil
}

func (s *leastLoaded) ChooseEndpoint(fn core.FunctionID, payload []byte, files []core.FileRef,
	exclude map[core.EndpointID]struct{},
	transferETAs map[core.EndpointID]map[core.TransferHandle]time.Time) (ports.EndpointChoice, error) {

	var best core.EndpointID
	var bestReady time.Time
	found := false
	for endpoint := range transferETAs {
		if _, excluded := exclude[endpoint]; excluded {
			continue
		}
		ready := s.deps.Oracles.QueueDelay(endpoint)
		if !found || ready.Before(bestReady) || (ready.Equal(bestReady) && endpoint < best) {
			best = endpoint
			bestReady = ready
			found = true
		}
	}
	if !found {
		return ports.EndpointChoice{}, &NoViableEndpointError{FunctionID: fn}
	}
	return ports.EndpointChoice{Endpoint: best}, nil
}

func (s *leastLoaded) PredictETA(fn core.FunctionID, endpoint core.EndpointID, payload []byte,
	files []core.FileRef) time.Time {
	return predictETA(s.deps, fn, endpoint, files)
}
