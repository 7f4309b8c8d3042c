package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// runSubmissionWorker periodically drains the scheduled-tasks queue,
// partitions it into tasks whose file transfer (if any) has completed and
// tasks still waiting, and batches the former to the executor. Tasks still
// in flight are retried on the next tick rather than dropped.
func (s *Scheduler) runSubmissionWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.submissionInterval)
	defer ticker.Stop()

	var scheduled []core.ScheduledRecord
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			scheduled = append(scheduled, s.queue.drainAll()...)
			scheduled = s.submitReady(scheduled)
		}
	}
}

// submitReady attempts to submit every record in scheduled whose transfer
// (if any) has completed, returning the records that must wait for another
// tick: still-transferring records, and records from a failed submission
// attempt, which are kept for retry.
func (s *Scheduler) submitReady(scheduled []core.ScheduledRecord) []core.ScheduledRecord {
	var ready, remaining []core.ScheduledRecord
	for _, rec := range scheduled {
		if rec.TransferHandle == nil {
			ready = append(ready, rec)
			continue
		}
		complete, err := s.transferCoordinator.IsComplete(*rec.TransferHandle)
		if err != nil {
			slog.Warn("could not check transfer status, retrying", "task", rec.TaskID, "error", err)
			remaining = append(remaining, rec)
			continue
		}
		if !complete {
			remaining = append(remaining, rec)
			continue
		}
		if transferTime, err := s.transferCoordinator.GetTransferTime(*rec.TransferHandle); err == nil {
			rec.TransferTime = transferTime
		}
		s.mu.Lock()
		if ep, ok := s.endpoints[rec.Endpoint]; ok {
			delete(ep.TransferETAs, *rec.TransferHandle)
		}
		s.mu.Unlock()
		ready = append(ready, rec)
	}

	if len(ready) == 0 {
		return remaining
	}

	items := make([]ports.SubmitItem, len(ready))
	for i, rec := range ready {
		items[i] = ports.SubmitItem{
			FunctionID: rec.Info.FunctionID,
			Endpoint:   rec.Endpoint,
			Payload:    rec.Info.Payload,
		}
	}
	// The executor's batch API accepts a single set of client headers per
	// call; a mixed-client batch carries the first task's headers, per the
	// submission worker's documented single-tenant-batching caveat.
	headers := ready[0].Info.Headers

	ctx, cancel := context.WithTimeout(context.Background(), s.executorTimeout)
	defer cancel()
	realIDs, err := s.executor.Submit(ctx, headers, items)
	if err != nil {
		slog.Warn("batch submission failed, retrying next tick", "batch_size", len(ready), "error", err)
		return append(remaining, ready...)
	}

	s.recordDispatched(ready, realIDs)
	return remaining
}

// recordDispatched assigns each newly accepted dispatch a PendingRecord,
// registers its real id against the endpoint and the owning task, and
// seeds the endpoint's next queue-delay estimate.
func (s *Scheduler) recordDispatched(ready []core.ScheduledRecord, realIDs []core.RealTaskID) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range ready {
		realID := realIDs[i]

		files := rec.Info.Files
		if rec.TransferHandle != nil {
			files = nil // already staged; PredictETA shouldn't charge transfer time twice
		}
		eta := s.strategy.PredictETA(rec.Info.FunctionID, rec.Endpoint, rec.Info.Payload, files)

		reliable := false
		if s.runtimePredictor != nil {
			reliable = s.runtimePredictor.HasLearned(rec.Info.FunctionID, rec.Endpoint)
		}

		s.pending[realID] = &core.PendingRecord{
			TaskID:        rec.TaskID,
			FunctionID:    rec.Info.FunctionID,
			Endpoint:      rec.Endpoint,
			Payload:       rec.Info.Payload,
			ETA:           eta,
			TimeSent:      now,
			TransferTime:  rec.TransferTime,
			IsETAReliable: reliable,
		}

		if ep, ok := s.endpoints[rec.Endpoint]; ok {
			ep.PendingRealIDs[realID] = struct{}{}
			ep.LastTaskETA = eta
		}
		if info, ok := s.taskInfo[rec.TaskID]; ok {
			info.RealIDs[realID] = struct{}{}
		}
		if ids, ok := s.translation[rec.TaskID]; ok {
			ids[realID] = struct{}{}
		} else {
			s.translation[rec.TaskID] = map[core.RealTaskID]struct{}{realID: {}}
		}
	}
}
