package schedtest

import (
	"sync"

	"github.com/globus-compute/central-scheduler/journal"
)

// Logger is a fake implementing the scheduler's ExecutionLogger interface
// by recording every completion in memory rather than writing to bbolt.
type Logger struct {
	mu      sync.Mutex
	Records []journal.Record
}

// NewLogger returns a fresh in-memory fake logger.
func NewLogger() *Logger { return &Logger{} }

// RecordCompletion implements scheduler.ExecutionLogger.
func (l *Logger) RecordCompletion(record journal.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Records = append(l.Records, record)
	return nil
}

// All returns a copy of every record logged so far.
func (l *Logger) All() []journal.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]journal.Record, len(l.Records))
	copy(out, l.Records)
	return out
}
