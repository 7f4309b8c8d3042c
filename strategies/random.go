package strategies

import (
	"math/rand"
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// randomStrategy picks uniformly at random among the non-excluded
// endpoints. Useful for shedding load evenly without any locality bias.
type randomStrategy struct {
	deps ports.StrategyDeps
	rng  *rand.Rand
}

func newRandomStrategy(params map[string]any, deps ports.StrategyDeps) (ports.Strategy, error) {
	return &randomStrategy{deps: deps, rng: rand.New(rand.NewSource(1))}, nil
}

func (s *randomStrategy) ChooseEndpoint(fn core.FunctionID, payload []byte, files []core.FileRef,
	exclude map[core.EndpointID]struct{},
	transferETAs map[core.EndpointID]map[core.TransferHandle]time.Time) (ports.EndpointChoice, error) {

	candidates := make([]core.EndpointID, 0, len(transferETAs))
	for endpoint := range transferETAs {
		if _, excluded := exclude[endpoint]; excluded {
			continue
		}
		candidates = append(candidates, endpoint)
	}
	if len(candidates) == 0 {
		return ports.EndpointChoice{}, &NoViableEndpointError{FunctionID: fn}
	}
	return ports.EndpointChoice{Endpoint: candidates[s.rng.Intn(len(candidates))]}, nil
}

func (s *randomStrategy) PredictETA(fn core.FunctionID, endpoint core.EndpointID, payload []byte,
	files []core.FileRef) time.Time {
	return predictETA(s.deps, fn, endpoint, files)
}
