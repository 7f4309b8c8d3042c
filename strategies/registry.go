// Package strategies provides the registry of choice-of-endpoint policies
// the scheduler can be configured with by name, plus a handful of simple
// default implementations.
package strategies

import (
	"fmt"

	"github.com/globus-compute/central-scheduler/ports"
)

// Constructor builds a Strategy from its opaque configuration parameters and
// the dependencies (oracles, predictors) the scheduler provides at
// construction time.
type Constructor func(params map[string]any, deps ports.StrategyDeps) (ports.Strategy, error)

var registry = map[string]Constructor{}

// Register adds a named strategy constructor to the registry. It is meant
// to be called from package init functions.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// New builds a registered strategy by name.
func New(name string, params map[string]any, deps ports.StrategyDeps) (ports.Strategy, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unregistered strategy: %s", name)
	}
	return ctor(params, deps)
}

func init() {
	Register("round-robin", newRoundRobin)
	Register("random", newRandomStrategy)
	Register("least-loaded", newLeastLoaded)
}
