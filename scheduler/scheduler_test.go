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

func newTestScheduler(t *testing.T) (*Scheduler, *schedtest.Executor, *schedtest.Clock) {
	t.Helper()

	clock := schedtest.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	executor := schedtest.NewExecutor()

	s, err := New(Options{
		Endpoints: map[core.EndpointID]core.EndpointDescriptor{
			"endpoint-a": {Id: "endpoint-a"},
			"endpoint-b": {Id: "endpoint-b"},
		},
		StrategyName:        "round-robin",
		Runtime:             schedtest.NewRuntimePredictor(1*time.Second, true),
		TransferTime:        &schedtest.TransferTimePredictor{},
		Import:              &schedtest.ImportPredictor{},
		TransferCoordinator: schedtest.NewTransferCoordinator(false, 0),
		Executor:            executor,
		Serializer:          schedtest.NewSerializer(),
		Logger:              schedtest.NewLogger(),
		Clock:               clock,

		MaxBackups:           0,
		BackupDelayThreshold: 2.0,
		SubmissionInterval:   5 * time.Millisecond,
		WatchdogInterval:     5 * time.Millisecond,
		HeartbeatThreshold:   time.Minute,
		ExecutorTimeout:      time.Second,
	})
	require.NoError(t, err)
	return s, executor, clock
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestBatchSubmitMintsDistinctTaskIDs(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ids, endpoints, err := s.BatchSubmit([]BatchItem{{FunctionID: "fn-1"}, {FunctionID: "fn-2"}}, http.Header{})
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEmpty(t, endpoints[0])
	assert.NotEmpty(t, endpoints[1])
}

func TestBatchSubmitRoundRobinsAcrossEndpoints(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	_, endpoints, err := s.BatchSubmit([]BatchItem{{FunctionID: "fn"}, {FunctionID: "fn"}}, http.Header{})
	require.NoError(t, err)
	assert.NotEqual(t, endpoints[0], endpoints[1])
}

func TestTranslateTaskIDDefinedImmediatelyAfterSubmit(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ids, _, err := s.BatchSubmit([]BatchItem{{FunctionID: "fn"}}, http.Header{})
	require.NoError(t, err)

	realIDs, err := s.TranslateTaskID(ids[0])
	require.NoError(t, err)
	assert.Empty(t, realIDs, "no dispatch has been accepted by the executor yet")
}

func TestTranslateTaskIDFailsForUnknownTask(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	_, err := s.TranslateTaskID("never-submitted")
	assert.Error(t, err)
}

func TestGetStatusDefaultsToPending(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ids, _, err := s.BatchSubmit([]BatchItem{{FunctionID: "fn"}}, http.Header{})
	require.NoError(t, err)
	status := s.GetStatus(ids[0])
	assert.Equal(t, core.StatusPending, status.Code)
}

func TestSubmissionWorkerDispatchesQueuedTask(t *testing.T) {
	s, executor, _ := newTestScheduler(t)
	s.Start()
	defer s.Stop()

	ids, _, err := s.BatchSubmit([]BatchItem{{FunctionID: "fn"}}, http.Header{})
	require.NoError(t, err)

	waitUntil(t, 200*time.Millisecond, func() bool {
		realIDs, err := s.TranslateTaskID(ids[0])
		return err == nil && len(realIDs) == 1
	})

	assert.GreaterOrEqual(t, len(executor.Batches), 1)
}

func TestBatchSubmitExtractsFilesFromPayload(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	payload, err := json.Marshal(map[string]any{
		"files": []core.FileRef{{Id: "f1", Name: "in.csv", Path: "/data/in.csv", Bytes: 10}},
	})
	require.NoError(t, err)

	ids, endpoints, err := s.BatchSubmit([]BatchItem{{FunctionID: "fn", Payload: payload}}, http.Header{})
	require.NoError(t, err)
	assert.NotEmpty(t, ids[0])
	assert.NotEmpty(t, endpoints[0])
}
