package strategies

import (
	"fmt"

	"github.com/globus-compute/central-scheduler/core"
)

// NoViableEndpointError indicates that every registered endpoint is either
// blocked for the function in question or already in its backup history.
type NoViableEndpointError struct {
	FunctionID core.FunctionID
}

func (e NoViableEndpointError) Error() string {
	return fmt.Sprintf("no viable endpoint remains for function %s", e.FunctionID)
}
