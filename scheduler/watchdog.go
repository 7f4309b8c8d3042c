package scheduler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/globus-compute/central-scheduler/core"
)

// runWatchdog periodically polls every endpoint's status, updates its
// liveness and temperature, and then looks for tasks that are running
// suspiciously late and deserve a speculative backup dispatch.
func (s *Scheduler) runWatchdog() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.pollEndpoints()
			s.evaluateBackups()
		}
	}
}

// pollEndpoints refreshes every endpoint's liveness and temperature from
// the executor's endpoint-status API.
func (s *Scheduler) pollEndpoints() {
	s.mu.Lock()
	ids := make([]core.EndpointID, 0, len(s.endpoints))
	for id := range s.endpoints {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), s.executorTimeout)
		statuses, err := s.executor.EndpointStatus(ctx, id)
		cancel()
		if err != nil {
			slog.Warn("could not poll endpoint status", "endpoint", id, "error", err)
			continue
		}
		if len(statuses) == 0 {
			continue
		}
		s.applyEndpointStatus(id, statuses[0])
	}
}

func (s *Scheduler) applyEndpointStatus(id core.EndpointID, latest core.EndpointStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return
	}

	now := s.clock.Now()
	lastSeen := latest.Timestamp
	if ep.LastResultTime.After(lastSeen) {
		lastSeen = ep.LastResultTime
	}
	age := now.Sub(lastSeen)

	wasDead := ep.Dead
	ep.Dead = age > s.heartbeatThreshold
	if ep.Dead != wasDead {
		slog.Info("endpoint liveness changed", "endpoint", id, "dead", ep.Dead, "age", age)
	}

	if latest.ActiveManagers == 0 {
		ep.Temperature = core.Cold
	} else {
		ep.Temperature = core.Warm
	}
}

// backupCandidate is a snapshot of everything scheduleTask needs to
// re-dispatch a task, taken while the lock is held so evaluateBackups can
// call scheduleTask (which takes the lock itself) without holding it.
type backupCandidate struct {
	taskID  core.TaskID
	fn      core.FunctionID
	payload []byte
	headers http.Header
	files   []core.FileRef
}

// evaluateBackups finds every outstanding task that is either dispatched
// to a now-dead endpoint or running reliably later than expected, and
// re-dispatches it so long as doing so would not exceed max_backups.
func (s *Scheduler) evaluateBackups() {
	s.mu.Lock()
	now := s.clock.Now()
	var candidates []backupCandidate
	for taskID, info := range s.taskInfo {
		if len(info.EndpointsSentTo) > s.maxBackups {
			continue
		}
		if s.isBackupEligibleLocked(info, now) {
			candidates = append(candidates, backupCandidate{
				taskID:  taskID,
				fn:      info.FunctionID,
				payload: info.Payload,
				headers: info.Headers,
				files:   info.Files,
			})
		}
	}
	s.mu.Unlock()

	for _, c := range candidates {
		taskID := c.taskID
		if _, _, err := s.scheduleTask(c.fn, c.payload, c.headers, c.files, &taskID); err != nil {
			slog.Warn("could not dispatch speculative backup", "task", taskID, "error", err)
		}
	}
}

// isBackupEligibleLocked reports whether info has at least one outstanding
// dispatch that is either stuck on a dead endpoint or, for a reliably
// predicted dispatch, running elapsed/expected past backupDelayThreshold.
// Callers must hold s.mu.
func (s *Scheduler) isBackupEligibleLocked(info *core.TaskInfo, now time.Time) bool {
	for realID := range info.RealIDs {
		pr, ok := s.pending[realID]
		if !ok {
			continue // this dispatch already completed
		}
		if ep, ok := s.endpoints[pr.Endpoint]; ok && ep.Dead {
			return true
		}
		if !pr.IsETAReliable {
			continue
		}
		expected := pr.ETA.Sub(pr.TimeSent)
		if expected <= 0 {
			continue
		}
		elapsed := now.Sub(pr.TimeSent)
		if float64(elapsed)/float64(expected) > s.backupDelayThreshold {
			return true
		}
	}
	return false
}
