package schedtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// Executor is a fake implementing ports.Executor. Each call to Submit
// mints sequential real task ids unless SubmitErr is set, in which case it
// is returned instead. Endpoint statuses are whatever Statuses reports for
// that endpoint at call time (most recent first).
type Executor struct {
	mu        sync.Mutex
	next      int
	SubmitErr error
	Batches   [][]ports.SubmitItem
	Headers   []http.Header
	Statuses  map[core.EndpointID][]core.EndpointStatus
}

// NewExecutor returns a fresh fake executor.
func NewExecutor() *Executor {
	return &Executor{Statuses: make(map[core.EndpointID][]core.EndpointStatus)}
}

func (e *Executor) Submit(ctx context.Context, headers http.Header,
	tasks []ports.SubmitItem) ([]core.RealTaskID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Batches = append(e.Batches, tasks)
	e.Headers = append(e.Headers, headers)
	if e.SubmitErr != nil {
		return nil, e.SubmitErr
	}
	ids := make([]core.RealTaskID, len(tasks))
	for i := range tasks {
		e.next++
		ids[i] = core.RealTaskID(fmt.Sprintf("real-%d", e.next))
	}
	return ids, nil
}

func (e *Executor) EndpointStatus(ctx context.Context, endpoint core.EndpointID) ([]core.EndpointStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Statuses[endpoint], nil
}

// SetStatus replaces the status history reported for endpoint.
func (e *Executor) SetStatus(endpoint core.EndpointID, statuses []core.EndpointStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Statuses[endpoint] = statuses
}

var _ ports.Executor = (*Executor)(nil)
