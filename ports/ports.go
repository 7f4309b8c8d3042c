// Package ports defines the narrow interfaces through which the scheduler
// core talks to its external collaborators: the execution service, the
// file-transfer subsystem, the endpoint-choice strategy, the three online
// predictors, and the opaque-payload serializer. None of these are
// implemented by the scheduler itself; see the executor, transfer,
// strategies, predictors, and serializer packages for concrete
// implementations, and schedtest for test fakes.
package ports

import (
	"context"
	"net/http"
	"time"

	"github.com/globus-compute/central-scheduler/core"
)

// Clock abstracts "now" so that scheduling decisions can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// EndpointChoice is the result of a Strategy's endpoint selection for a
// single scheduling decision.
type EndpointChoice struct {
	Endpoint core.EndpointID
	// ETA is filled in by the scheduler (via a subsequent PredictETA call),
	// not by ChooseEndpoint itself.
	ETA time.Time
}

// Strategy chooses which endpoint should run a task, and predicts when a
// task dispatched to a given endpoint will finish.
type Strategy interface {
	// ChooseEndpoint picks an endpoint for fn given payload/files, excluding
	// any endpoint in exclude. transferETAs reflects every endpoint's
	// currently in-flight staging operations (endpoint -> handle -> ETA),
	// so a strategy can avoid piling queued work behind a slow transfer.
	ChooseEndpoint(fn core.FunctionID, payload []byte, files []core.FileRef,
		exclude map[core.EndpointID]struct{},
		transferETAs map[core.EndpointID]map[core.TransferHandle]time.Time) (EndpointChoice, error)

	// PredictETA returns the absolute wall-clock time at which a task
	// dispatched to endpoint is expected to finish. files is nil once a
	// task's transfer has already completed (the prediction need not
	// account for transfer time in that case).
	PredictETA(fn core.FunctionID, endpoint core.EndpointID, payload []byte,
		files []core.FileRef) time.Time
}

// RuntimePredictor is the online oracle that learns how long a function
// takes to run on a given endpoint.
type RuntimePredictor interface {
	// Predict returns the current best estimate of how long fn takes to
	// run on endpoint.
	Predict(fn core.FunctionID, endpoint core.EndpointID) time.Duration
	// Update feeds back an observed runtime for the (function, endpoint)
	// pair named by record.
	Update(record core.PendingRecord, runtime time.Duration)
	// HasLearned reports whether enough samples have been observed for
	// (fn, endpoint) that a PredictETA call for that pair should be
	// trusted enough to justify sending a speculative backup.
	HasLearned(fn core.FunctionID, endpoint core.EndpointID) bool
}

// Oracles bundles the two scheduler-owned estimators a Strategy needs but
// cannot compute itself, since they depend on scheduler state (endpoint
// temperature, queue backlog) the Strategy never sees directly.
type Oracles struct {
	// ColdStart estimates the startup penalty (if any) of dispatching fn
	// to endpoint right now.
	ColdStart func(endpoint core.EndpointID, fn core.FunctionID) time.Duration
	// QueueDelay returns the absolute instant at which endpoint is next
	// expected to have free capacity; it returns "now" when the endpoint
	// has no outstanding work.
	QueueDelay func(endpoint core.EndpointID) time.Time
}

// StrategyDeps bundles everything a Strategy constructor needs beyond its
// own configuration: the scheduler's oracles and the three online
// predictors, so PredictETA can assemble
// queue_delay + cold_start + transfer_time + runtime on its own.
type StrategyDeps struct {
	Oracles      Oracles
	Runtime      RuntimePredictor
	TransferTime TransferTimePredictor
	Import       ImportPredictor
}

// TransferTimePredictor estimates, in advance, how long staging a set of
// files to an endpoint will take. This differs from
// TransferCoordinator.GetTransferTime, which reports the time an
// already-completed transfer actually took.
type TransferTimePredictor interface {
	TransferTime(files []core.FileRef, endpoint core.EndpointID) time.Duration
}

// ImportPredictor estimates how long a cold endpoint takes to import a
// single package it hasn't already imported.
type ImportPredictor interface {
	ImportTime(pkg string, endpoint core.EndpointID) time.Duration
}

// TransferCoordinator starts and tracks asynchronous file-staging
// operations ahead of dispatch. It is the scheduler's only view of the
// file-transfer subsystem.
type TransferCoordinator interface {
	// Transfer begins staging files to endpoint for the virtual task
	// taskID, returning a handle for the operation, or a nil handle if
	// there was nothing to stage.
	Transfer(files []core.FileRef, endpoint core.EndpointID, taskID core.TaskID) (*core.TransferHandle, error)
	// IsComplete reports whether the staging operation named by handle has
	// finished.
	IsComplete(handle core.TransferHandle) (bool, error)
	// GetTransferTime reports how long a completed transfer actually took.
	GetTransferTime(handle core.TransferHandle) (time.Duration, error)
}

// SubmitItem is a single task submitted in a batch to the executor.
type SubmitItem struct {
	FunctionID core.FunctionID
	Endpoint   core.EndpointID
	Payload    []byte
}

// Executor is the scheduler's only view of the downstream HTTP execution
// service: batched submission and endpoint status polling.
type Executor interface {
	// Submit posts a batch of tasks under a single set of client headers,
	// returning one RealTaskID per item, aligned by order with tasks.
	Submit(ctx context.Context, headers http.Header, tasks []SubmitItem) ([]core.RealTaskID, error)
	// EndpointStatus returns an endpoint's status history, most recent
	// first.
	EndpointStatus(ctx context.Context, endpoint core.EndpointID) ([]core.EndpointStatus, error)
}

// Serializer unpacks the opaque byte payload a client submits, extracting
// only the information the scheduler core needs: the files list, and the
// shape of a status callback's result/exception body. It must never
// otherwise interpret the payload.
type Serializer interface {
	ExtractFiles(payload []byte) ([]core.FileRef, error)
	DecodeResult(raw []byte) (core.ExecutionResult, error)
	DecodeException(raw []byte) (core.ExecutionException, error)
}
