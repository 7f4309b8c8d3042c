package schedtest

import (
	"fmt"
	"sync"
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// TransferCoordinator is a fake implementing ports.TransferCoordinator.
// Transfers are complete immediately unless Pending is set, in which case
// a handle stays incomplete until explicitly completed via Complete.
type TransferCoordinator struct {
	mu          sync.Mutex
	next        int
	Pending     bool
	Duration    time.Duration
	completed   map[core.TransferHandle]bool
	transferred map[core.TransferHandle][]core.FileRef
}

// NewTransferCoordinator returns a fake transfer coordinator. If pending is
// true, transfers stay incomplete until Complete is called.
func NewTransferCoordinator(pending bool, duration time.Duration) *TransferCoordinator {
	return &TransferCoordinator{
		Pending:     pending,
		Duration:    duration,
		completed:   make(map[core.TransferHandle]bool),
		transferred: make(map[core.TransferHandle][]core.FileRef),
	}
}

func (c *TransferCoordinator) Transfer(files []core.FileRef, endpoint core.EndpointID,
	taskID core.TaskID) (*core.TransferHandle, error) {
	if len(files) == 0 {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	handle := core.TransferHandle(fmt.Sprintf("xfer-%d", c.next))
	c.completed[handle] = !c.Pending
	c.transferred[handle] = files
	return &handle, nil
}

func (c *TransferCoordinator) IsComplete(handle core.TransferHandle) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed[handle], nil
}

func (c *TransferCoordinator) GetTransferTime(handle core.TransferHandle) (time.Duration, error) {
	return c.Duration, nil
}

// Complete marks a previously pending transfer as finished.
func (c *TransferCoordinator) Complete(handle core.TransferHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed[handle] = true
}

var _ ports.TransferCoordinator = (*TransferCoordinator)(nil)
