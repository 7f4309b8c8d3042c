package scheduler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/schedtest"
)

func dispatchOne(t *testing.T, s *Scheduler, executor *schedtest.Executor) (core.TaskID, core.RealTaskID) {
	t.Helper()
	ids, _, err := s.BatchSubmit([]BatchItem{{FunctionID: "fn"}}, http.Header{})
	require.NoError(t, err)

	waitUntil(t, 200*time.Millisecond, func() bool {
		realIDs, err := s.TranslateTaskID(ids[0])
		return err == nil && len(realIDs) == 1
	})
	realIDs, err := s.TranslateTaskID(ids[0])
	require.NoError(t, err)

	var realID core.RealTaskID
	for id := range realIDs {
		realID = id
	}
	return ids[0], realID
}

func TestLogStatusResultSetsTerminalStatus(t *testing.T) {
	s, executor, _ := newTestScheduler(t)
	s.Start()
	defer s.Stop()

	taskID, realID := dispatchOne(t, s, executor)

	raw, err := json.Marshal(map[string]any{"runtime": 1.5, "imports": []string{"numpy"}})
	require.NoError(t, err)
	require.NoError(t, s.LogStatus(realID, StatusUpdate{Kind: StatusUpdateResult, Raw: raw}))

	status := s.GetStatus(taskID)
	assert.Equal(t, core.StatusResult, status.Code)
	require.NotNil(t, status.Result)
	assert.Equal(t, 1500*time.Millisecond, status.Result.Runtime)
}

func TestLogStatusIsStickyAgainstLaterUpdates(t *testing.T) {
	s, executor, _ := newTestScheduler(t)
	s.Start()
	defer s.Stop()

	taskID, realID := dispatchOne(t, s, executor)

	resultRaw, _ := json.Marshal(map[string]any{"runtime": 1.0})
	require.NoError(t, s.LogStatus(realID, StatusUpdate{Kind: StatusUpdateResult, Raw: resultRaw}))

	excRaw, _ := json.Marshal(map[string]any{"kind": "out-of-memory", "message": "boom"})
	// a status update for an id that's already been torn down is simply dropped
	require.NoError(t, s.LogStatus(realID, StatusUpdate{Kind: StatusUpdateException, Raw: excRaw}))

	status := s.GetStatus(taskID)
	assert.Equal(t, core.StatusResult, status.Code, "first terminal status wins")
}

func TestLogStatusForUnknownRealIDIsDropped(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	err := s.LogStatus("never-dispatched", StatusUpdate{Kind: StatusUpdatePending})
	assert.NoError(t, err)
}

func TestLogStatusRecordsCompletionToExecutionLog(t *testing.T) {
	s, executor, _ := newTestScheduler(t)
	logger := schedtest.NewLogger()
	s.logger = logger
	s.Start()
	defer s.Stop()

	taskID, realID := dispatchOne(t, s, executor)
	raw, _ := json.Marshal(map[string]any{"runtime": 2.0, "imports": []string{"numpy", "scipy"}})
	require.NoError(t, s.LogStatus(realID, StatusUpdate{Kind: StatusUpdateResult, Raw: raw}))

	records := logger.All()
	require.Len(t, records, 1)
	assert.Equal(t, taskID, records[0].TaskID)
	assert.Equal(t, "result", records[0].Status)
	require.NotNil(t, records[0].Manifest, "a successful result should carry a built manifest")
	resources := records[0].Manifest.Descriptor()["resources"]
	assert.Len(t, resources, 2)
}

func TestLogStatusExceptionRecordsNoManifest(t *testing.T) {
	s, executor, _ := newTestScheduler(t)
	logger := schedtest.NewLogger()
	s.logger = logger
	s.Start()
	defer s.Stop()

	_, realID := dispatchOne(t, s, executor)
	raw, _ := json.Marshal(map[string]any{"kind": "error", "message": "boom"})
	require.NoError(t, s.LogStatus(realID, StatusUpdate{Kind: StatusUpdateException, Raw: raw}))

	records := logger.All()
	require.Len(t, records, 1)
	assert.Equal(t, "exception", records[0].Status)
	assert.Nil(t, records[0].Manifest)
}

func TestLogStatusExceptionBlocksEndpointOnOutOfMemory(t *testing.T) {
	s, executor, _ := newTestScheduler(t)
	s.Start()
	defer s.Stop()

	_, realID := dispatchOne(t, s, executor)
	raw, _ := json.Marshal(map[string]any{"kind": core.ExceptionOutOfMemory, "message": "oom"})
	require.NoError(t, s.LogStatus(realID, StatusUpdate{Kind: StatusUpdateException, Raw: raw}))

	// every endpoint but one should now be blocked for "fn"; the remaining
	// endpoint is the only one scheduleTask can still choose.
	_, endpoint, err := s.scheduleTask("fn", nil, http.Header{}, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, endpoint)
}
