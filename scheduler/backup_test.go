package scheduler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/schedtest"
)

func newBackupTestScheduler(t *testing.T, maxBackups int) (*Scheduler, *schedtest.Executor, *schedtest.Clock) {
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

		MaxBackups:           maxBackups,
		BackupDelayThreshold: 2.0,
		SubmissionInterval:   5 * time.Millisecond,
		WatchdogInterval:     5 * time.Millisecond,
		HeartbeatThreshold:   time.Minute,
		ExecutorTimeout:      time.Second,
	})
	require.NoError(t, err)
	return s, executor, clock
}

func TestMaxBackupsZeroNeverSendsASecondDispatch(t *testing.T) {
	s, executor, clock := newBackupTestScheduler(t, 0)
	s.Start()
	defer s.Stop()

	_, _, err := s.BatchSubmit([]BatchItem{{FunctionID: "fn"}}, http.Header{})
	require.NoError(t, err)

	waitUntil(t, 200*time.Millisecond, func() bool {
		return len(executor.Batches) >= 1
	})

	// simulate the dispatch running far later than predicted
	clock.Advance(time.Hour)
	time.Sleep(40 * time.Millisecond) // give the watchdog several ticks

	assert.Equal(t, 1, len(executor.Batches), "max_backups=0 must never trigger a second dispatch")
}

func TestMaxBackupsOneSendsOneSpeculativeBackup(t *testing.T) {
	s, executor, clock := newBackupTestScheduler(t, 1)
	s.Start()
	defer s.Stop()

	_, _, err := s.BatchSubmit([]BatchItem{{FunctionID: "fn"}}, http.Header{})
	require.NoError(t, err)

	waitUntil(t, 200*time.Millisecond, func() bool {
		return len(executor.Batches) >= 1
	})

	clock.Advance(time.Hour)

	waitUntil(t, 300*time.Millisecond, func() bool {
		return len(executor.Batches) >= 2
	})

	// a third dispatch must never occur once the single backup budget is spent
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 2, len(executor.Batches))
}

func TestBackupDispatchesToADifferentEndpoint(t *testing.T) {
	s, executor, clock := newBackupTestScheduler(t, 1)
	s.Start()
	defer s.Stop()

	_, _, err := s.BatchSubmit([]BatchItem{{FunctionID: "fn"}}, http.Header{})
	require.NoError(t, err)

	waitUntil(t, 200*time.Millisecond, func() bool {
		return len(executor.Batches) >= 1
	})
	clock.Advance(time.Hour)
	waitUntil(t, 300*time.Millisecond, func() bool {
		return len(executor.Batches) >= 2
	})

	first := executor.Batches[0][0].Endpoint
	second := executor.Batches[1][0].Endpoint
	assert.NotEqual(t, first, second)
}

func TestBlockRejectsRemovingTheLastViableEndpoint(t *testing.T) {
	s, _, _ := newBackupTestScheduler(t, 0)

	require.NoError(t, s.Block("fn", "endpoint-a"))
	err := s.Block("fn", "endpoint-b")
	assert.Error(t, err)
}

func TestBlockOnUnknownEndpointFails(t *testing.T) {
	s, _, _ := newBackupTestScheduler(t, 0)
	err := s.Block("fn", "does-not-exist")
	assert.Error(t, err)
}

func TestBlockedEndpointIsExcludedFromScheduling(t *testing.T) {
	s, _, _ := newBackupTestScheduler(t, 0)
	require.NoError(t, s.Block("fn", "endpoint-a"))

	_, endpoint, err := s.scheduleTask("fn", nil, http.Header{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, core.EndpointID("endpoint-b"), endpoint)
}
