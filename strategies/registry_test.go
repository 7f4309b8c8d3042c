package strategies

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

func noopDeps() ports.StrategyDeps {
	return ports.StrategyDeps{
		Oracles: ports.Oracles{
			ColdStart:  func(core.EndpointID, core.FunctionID) time.Duration { return 0 },
			QueueDelay: func(e core.EndpointID) time.Time { return time.Time{} },
		},
	}
}

func TestNewRejectsUnregisteredStrategy(t *testing.T) {
	_, err := New("does-not-exist", nil, noopDeps())
	assert.NotNil(t, err)
}

func TestNewBuildsRegisteredStrategies(t *testing.T) {
	for _, name := range []string{"round-robin", "random", "least-loaded"} {
		s, err := New(name, nil, noopDeps())
		assert.Nil(t, err)
		assert.NotNil(t, s)
	}
}

func transferETAsFor(endpoints ...core.EndpointID) map[core.EndpointID]map[core.TransferHandle]time.Time {
	m := make(map[core.EndpointID]map[core.TransferHandle]time.Time)
	for _, e := range endpoints {
		m[e] = map[core.TransferHandle]time.Time{}
	}
	return m
}

func TestRoundRobinCyclesThroughEndpoints(t *testing.T) {
	s, err := New("round-robin", nil, noopDeps())
	assert.Nil(t, err)

	etas := transferETAsFor("a", "b", "c")
	seen := make(map[core.EndpointID]int)
	for i := 0; i < 6; i++ {
		choice, err := s.ChooseEndpoint("fn", nil, nil, nil, etas)
		assert.Nil(t, err)
		seen[choice.Endpoint]++
	}
	assert.Equal(t, 2, seen[core.EndpointID("a")])
	assert.Equal(t, 2, seen[core.EndpointID("b")])
	assert.Equal(t, 2, seen[core.EndpointID("c")])
}

func TestRoundRobinExcludesEndpoints(t *testing.T) {
	s, err := New("round-robin", nil, noopDeps())
	assert.Nil(t, err)

	etas := transferETAsFor("a", "b")
	exclude := map[core.EndpointID]struct{}{"a": {}}
	for i := 0; i < 4; i++ {
		choice, err := s.ChooseEndpoint("fn", nil, nil, exclude, etas)
		assert.Nil(t, err)
		assert.Equal(t, core.EndpointID("b"), choice.Endpoint)
	}
}

func TestChooseEndpointFailsWhenAllExcluded(t *testing.T) {
	for _, name := range []string{"round-robin", "random", "least-loaded"} {
		s, err := New(name, nil, noopDeps())
		assert.Nil(t, err)

		etas := transferETAsFor("a", "b")
		exclude := map[core.EndpointID]struct{}{"a": {}, "b": {}}
		_, err = s.ChooseEndpoint("fn", nil, nil, exclude, etas)
		assert.NotNil(t, err, "strategy %s should fail with no viable endpoints", name)
	}
}

func TestLeastLoadedPicksEarliestReadyEndpoint(t *testing.T) {
	now := time.Now()
	deps := ports.StrategyDeps{
		Oracles: ports.Oracles{
			ColdStart: func(core.EndpointID, core.FunctionID) time.Duration { return 0 },
			QueueDelay: func(e core.EndpointID) time.Time {
				if e == "busy" {
					return now.Add(time.Minute)
				}
				return now
			},
		},
	}
	s, err := New("least-loaded", nil, deps)
	assert.Nil(t, err)

	etas := transferETAsFor("busy", "idle")
	choice, err := s.ChooseEndpoint("fn", nil, nil, nil, etas)
	assert.Nil(t, err)
	assert.Equal(t, core.EndpointID("idle"), choice.Endpoint)
}
