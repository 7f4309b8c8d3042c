package scheduler

import (
	"sync"

	"github.com/globus-compute/central-scheduler/core"
)

// taskQueue is the scheduled-tasks queue: unbounded by design, so a slow or
// wedged executor can never cause a scheduling decision to block. A
// buffered channel would force a capacity choice the spec deliberately
// avoids; a mutex-guarded slice has no such limit.
type taskQueue struct {
	mu    sync.Mutex
	items []core.ScheduledRecord
}

func (q *taskQueue) push(r core.ScheduledRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, r)
}

// drainAll atomically removes and returns every record currently queued.
func (q *taskQueue) drainAll() []core.ScheduledRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
