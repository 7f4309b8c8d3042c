package scheduler

import (
	"log/slog"
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/journal"
)

// StatusKind discriminates the shape of a status update arriving for a
// single real (executor-assigned) task dispatch.
type StatusKind int

const (
	StatusUpdatePending StatusKind = iota
	StatusUpdateResult
	StatusUpdateException
)

// StatusUpdate is a single status callback/poll result for one dispatch,
// with its body still in the client's opaque wire format.
type StatusUpdate struct {
	Kind StatusKind
	Raw  []byte
}

// LogStatus ingests a status update for realID, updating the owning
// task's sticky client-visible status and, for a terminal update, folding
// the observation back into the runtime predictor and tearing down the
// dispatch's bookkeeping. A status update for an id the scheduler has no
// record of is dropped rather than treated as an error: the dispatch may
// have already completed via a backup.
func (s *Scheduler) LogStatus(realID core.RealTaskID, update StatusUpdate) error {
	s.mu.Lock()
	pr, ok := s.pending[realID]
	s.mu.Unlock()
	if !ok {
		slog.Warn("status update for unknown or already-completed dispatch dropped", "real_task_id", realID)
		return nil
	}

	switch update.Kind {
	case StatusUpdatePending:
		return nil

	case StatusUpdateResult:
		result, err := s.serializer.DecodeResult(update.Raw)
		if err != nil {
			return err
		}
		s.setStickyStatus(pr.TaskID, core.TaskStatus{Code: core.StatusResult, Result: &result})
		if s.runtimePredictor != nil {
			s.runtimePredictor.Update(*pr, result.Runtime)
		}
		s.markImportsPresent(pr.Endpoint, result.Imports)
		s.stampLastResultTime(pr.Endpoint)
		s.recordCompleted(realID, "result", result.Runtime, result.Imports)
		return nil

	case StatusUpdateException:
		exc, err := s.serializer.DecodeException(update.Raw)
		if err != nil {
			return err
		}
		s.setStickyStatus(pr.TaskID, core.TaskStatus{Code: core.StatusException, Exception: &exc})
		s.stampLastResultTime(pr.Endpoint)
		if exc.Kind == core.ExceptionModuleMissing || exc.Kind == core.ExceptionOutOfMemory {
			if err := s.Block(pr.FunctionID, pr.Endpoint); err != nil {
				slog.Warn("could not block endpoint after fatal exception", "function", pr.FunctionID,
					"endpoint", pr.Endpoint, "error", err)
			}
		}
		s.recordCompleted(realID, "exception", 0, nil)
		return nil
	}
	return nil
}

// setStickyStatus writes newStatus for taskID only if no terminal status
// has been recorded yet: the first of a task's (possibly several
// backed-up) dispatches to finish wins, and every later arrival is
// ignored.
func (s *Scheduler) setStickyStatus(taskID core.TaskID, newStatus core.TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.status[taskID]
	if !ok || !existing.Terminal() {
		s.status[taskID] = newStatus
	}
}

func (s *Scheduler) markImportsPresent(endpoint core.EndpointID, imports []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[endpoint]
	if !ok {
		return
	}
	for _, pkg := range imports {
		ep.ImportsPresent[pkg] = struct{}{}
	}
}

func (s *Scheduler) stampLastResultTime(endpoint core.EndpointID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep, ok := s.endpoints[endpoint]; ok {
		ep.LastResultTime = s.clock.Now()
	}
}

// recordCompleted tears down a single dispatch's bookkeeping: it removes
// the dispatch from the pending table, clears the owning endpoint's queue
// state once nothing is left outstanding against it (or refreshes its
// queue error estimate otherwise), and deletes the virtual task's info
// once the winning dispatch is known (the at-least-one-wins resolution for
// backed-up tasks). The completion is then written, best-effort, to the
// durable execution log, with a successful result's imports and runtime
// wrapped into a minimal manifest the way a completed file transfer's
// manifest is built.
func (s *Scheduler) recordCompleted(realID core.RealTaskID, status string, runtime time.Duration, imports []string) {
	s.mu.Lock()
	pr, ok := s.pending[realID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, realID)

	if ep, ok := s.endpoints[pr.Endpoint]; ok {
		delete(ep.PendingRealIDs, realID)
		if len(ep.PendingRealIDs) == 0 {
			ep.LastTaskETA = time.Time{}
			ep.QueueError = 0
		} else {
			ep.QueueError = s.clock.Now().Sub(pr.ETA)
		}
	}

	numBackups := 0
	fn := pr.FunctionID
	if info, ok := s.taskInfo[pr.TaskID]; ok {
		numBackups = len(info.EndpointsSentTo) - 1
		fn = info.FunctionID
		delete(s.taskInfo, pr.TaskID)
	}
	s.mu.Unlock()

	if s.logger == nil {
		return
	}
	record := journal.Record{
		TaskID:        pr.TaskID,
		FunctionID:    fn,
		Endpoint:      pr.Endpoint,
		TimeSent:      pr.TimeSent,
		TimeCompleted: s.clock.Now(),
		ExpectedETA:   pr.ETA,
		IsETAReliable: pr.IsETAReliable,
		Status:        status,
		Runtime:       runtime,
		NumBackups:    numBackups,
	}
	if status == "result" {
		manifest, err := journal.BuildResultManifest(pr.TaskID, runtime, imports)
		if err != nil {
			slog.Warn("could not build result manifest for execution log", "task", pr.TaskID, "error", err)
		} else {
			record.Manifest = manifest
		}
	}
	if err := s.logger.RecordCompletion(record); err != nil {
		slog.Warn("could not record task completion to execution log", "task", pr.TaskID, "error", err)
	}
}
