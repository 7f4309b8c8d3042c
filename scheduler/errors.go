package scheduler

import (
	"fmt"

	"github.com/globus-compute/central-scheduler/core"
)

// UnknownEndpointError indicates a reference to an endpoint id the
// scheduler was never configured with.
type UnknownEndpointError struct {
	Endpoint core.EndpointID
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("unknown endpoint: %s", e.Endpoint)
}

// UnknownTaskError indicates a reference to a task id the scheduler never
// minted, or one it has already fully forgotten.
type UnknownTaskError struct {
	TaskID core.TaskID
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task: %s", e.TaskID)
}

// CannotBlockLastEndpointError indicates that blocking a (function,
// endpoint) pair would leave the function with nowhere left to run.
type CannotBlockLastEndpointError struct {
	FunctionID core.FunctionID
}

func (e *CannotBlockLastEndpointError) Error() string {
	return fmt.Sprintf("cannot block the last viable endpoint for function %s", e.FunctionID)
}
