// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package scheduler is the central dispatcher: it chooses an endpoint for
// each submitted function call, stages any files the call needs, batches
// accepted work to the downstream execution service, tracks endpoint
// liveness and temperature, and speculatively re-dispatches tasks that are
// running suspiciously late. Everything it talks to outside its own state
// is reached through the ports package, so none of the concrete choice of
// strategy, predictor, transfer mechanism, or executor is baked in here.
package scheduler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/journal"
	"github.com/globus-compute/central-scheduler/ports"
	"github.com/globus-compute/central-scheduler/strategies"
)

// ExecutionLogger is the scheduler's narrow view of the durable execution
// log: record a completion, and don't block scheduling if it fails.
type ExecutionLogger interface {
	RecordCompletion(record journal.Record) error
}

// Options configures a new Scheduler. Every port must be supplied by the
// caller; Scheduler never constructs its own executor, transfer
// coordinator, or predictors.
type Options struct {
	Endpoints map[core.EndpointID]core.EndpointDescriptor

	StrategyName   string
	StrategyParams map[string]any

	Runtime             ports.RuntimePredictor
	TransferTime        ports.TransferTimePredictor
	Import              ports.ImportPredictor
	TransferCoordinator ports.TransferCoordinator
	Executor            ports.Executor
	Serializer          ports.Serializer

	// Logger is optional; a nil logger simply means completions aren't
	// recorded to the durable execution log.
	Logger ExecutionLogger
	// Clock defaults to ports.SystemClock{} when unset.
	Clock ports.Clock

	MaxBackups           int
	BackupDelayThreshold float64
	SubmissionInterval   time.Duration
	WatchdogInterval     time.Duration
	HeartbeatThreshold   time.Duration
	ExecutorTimeout      time.Duration
}

// Scheduler is the central dispatcher described by this package's doc
// comment. All of its state is protected by a single coarse mutex; the
// spec this implements tolerates that on the grounds that no part of its
// hot path blocks on network I/O while holding it.
type Scheduler struct {
	mu sync.Mutex

	endpoints       map[core.EndpointID]*core.EndpointState
	taskInfo        map[core.TaskID]*core.TaskInfo
	pending         map[core.RealTaskID]*core.PendingRecord
	blocked         map[core.FunctionID]map[core.EndpointID]struct{}
	requiredImports map[core.FunctionID][]string
	status          map[core.TaskID]core.TaskStatus
	// translation is permanent: unlike taskInfo, it is never deleted on
	// completion, so translate_task_id stays defined for the lifetime of
	// the process even after a task's bookkeeping is torn down.
	translation map[core.TaskID]map[core.RealTaskID]struct{}

	queue *taskQueue

	clock               ports.Clock
	strategy            ports.Strategy
	runtimePredictor    ports.RuntimePredictor
	transferTimePredictor ports.TransferTimePredictor
	importPredictor     ports.ImportPredictor
	transferCoordinator ports.TransferCoordinator
	executor            ports.Executor
	serializer          ports.Serializer
	logger              ExecutionLogger

	maxBackups           int
	backupDelayThreshold float64
	submissionInterval   time.Duration
	watchdogInterval     time.Duration
	heartbeatThreshold   time.Duration
	executorTimeout      time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Scheduler from opts, registering one EndpointState per
// configured endpoint and building the named Strategy with this
// scheduler's own cold-start/queue-delay oracles bound in.
func New(opts Options) (*Scheduler, error) {
	clock := opts.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	s := &Scheduler{
		endpoints:             make(map[core.EndpointID]*core.EndpointState, len(opts.Endpoints)),
		taskInfo:              make(map[core.TaskID]*core.TaskInfo),
		pending:               make(map[core.RealTaskID]*core.PendingRecord),
		blocked:               make(map[core.FunctionID]map[core.EndpointID]struct{}),
		requiredImports:       make(map[core.FunctionID][]string),
		status:                make(map[core.TaskID]core.TaskStatus),
		translation:           make(map[core.TaskID]map[core.RealTaskID]struct{}),
		queue:                 &taskQueue{},
		clock:                 clock,
		runtimePredictor:      opts.Runtime,
		transferTimePredictor: opts.TransferTime,
		importPredictor:       opts.Import,
		transferCoordinator:   opts.TransferCoordinator,
		executor:              opts.Executor,
		serializer:            opts.Serializer,
		logger:                opts.Logger,
		maxBackups:            opts.MaxBackups,
		backupDelayThreshold:  opts.BackupDelayThreshold,
		submissionInterval:    opts.SubmissionInterval,
		watchdogInterval:      opts.WatchdogInterval,
		heartbeatThreshold:    opts.HeartbeatThreshold,
		executorTimeout:       opts.ExecutorTimeout,
		stop:                  make(chan struct{}),
	}

	for id, desc := range opts.Endpoints {
		s.endpoints[id] = core.NewEndpointState(desc)
	}

	deps := ports.StrategyDeps{
		Oracles: ports.Oracles{
			ColdStart:  s.coldStart,
			QueueDelay: s.queueDelay,
		},
		Runtime:      opts.Runtime,
		TransferTime: opts.TransferTime,
		Import:       opts.Import,
	}
	strategy, err := strategies.New(opts.StrategyName, opts.StrategyParams, deps)
	if err != nil {
		return nil, err
	}
	s.strategy = strategy

	return s, nil
}

// Start launches the submission worker and endpoint watchdog goroutines.
func (s *Scheduler) Start() {
	s.wg.Add(2)
	go s.runSubmissionWorker()
	go s.runWatchdog()
}

// Stop signals both background goroutines to exit and waits for them.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// BatchItem is a single function call submitted in a batch.
type BatchItem struct {
	FunctionID core.FunctionID
	Payload    []byte
}

// BatchSubmit accepts a batch of function calls under a single set of
// client headers, minting one stable task id per item and queuing each for
// its first dispatch.
func (s *Scheduler) BatchSubmit(items []BatchItem, headers http.Header) ([]core.TaskID, []core.EndpointID, error) {
	taskIDs := make([]core.TaskID, len(items))
	endpoints := make([]core.EndpointID, len(items))
	for i, item := range items {
		files, err := s.serializer.ExtractFiles(item.Payload)
		if err != nil {
			return nil, nil, err
		}
		taskID, endpoint, err := s.scheduleTask(item.FunctionID, item.Payload, headers, files, nil)
		if err != nil {
			return nil, nil, err
		}
		taskIDs[i] = taskID
		endpoints[i] = endpoint
	}
	return taskIDs, endpoints, nil
}

// scheduleTask runs a single scheduling decision: choose an endpoint,
// predict its ETA, kick off any needed file staging, and enqueue the
// result for the submission worker to pick up. existingTaskID is non-nil
// only when this call is a speculative backup of an already-known task.
func (s *Scheduler) scheduleTask(fn core.FunctionID, payload []byte, headers http.Header,
	files []core.FileRef, existingTaskID *core.TaskID) (core.TaskID, core.EndpointID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	var taskID core.TaskID
	var info *core.TaskInfo
	if existingTaskID == nil {
		taskID = core.TaskID(uuid.NewString())
		info = &core.TaskInfo{
			TaskID:        taskID,
			FunctionID:    fn,
			Payload:       payload,
			Headers:       headers,
			Files:         files,
			TimeRequested: now,
			RealIDs:       make(map[core.RealTaskID]struct{}),
		}
		s.taskInfo[taskID] = info
		s.translation[taskID] = make(map[core.RealTaskID]struct{})
	} else {
		taskID = *existingTaskID
		var ok bool
		info, ok = s.taskInfo[taskID]
		if !ok {
			return "", "", &UnknownTaskError{TaskID: taskID}
		}
	}

	exclude := make(map[core.EndpointID]struct{})
	for endpoint := range s.blocked[fn] {
		exclude[endpoint] = struct{}{}
	}
	for _, endpoint := range info.EndpointsSentTo {
		exclude[endpoint] = struct{}{}
	}

	transferETAs := s.snapshotTransferETAsLocked()
	choice, err := s.strategy.ChooseEndpoint(fn, payload, files, exclude, transferETAs)
	if err != nil {
		return "", "", err
	}

	endpoint, ok := s.endpoints[choice.Endpoint]
	if !ok {
		return "", "", &UnknownEndpointError{Endpoint: choice.Endpoint}
	}
	if endpoint.Dead {
		slog.Warn("scheduling onto a dead endpoint", "task", taskID, "endpoint", choice.Endpoint)
	}

	choice.ETA = s.strategy.PredictETA(fn, choice.Endpoint, payload, files)

	var handle *core.TransferHandle
	if len(files) > 0 {
		h, err := s.transferCoordinator.Transfer(files, choice.Endpoint, taskID)
		if err != nil {
			slog.Warn("file transfer could not be started", "task", taskID, "endpoint", choice.Endpoint, "error", err)
		} else if h != nil {
			handle = h
			transferTime := s.transferTimePredictor.TransferTime(files, choice.Endpoint)
			endpoint.TransferETAs[*h] = now.Add(transferTime)
		}
	}
	if handle == nil {
		endpoint.LastTaskETA = choice.ETA
	}

	if endpoint.Temperature == core.Cold {
		endpoint.Temperature = core.Warming
	}

	info.EndpointsSentTo = append(info.EndpointsSentTo, choice.Endpoint)
	s.queue.push(core.ScheduledRecord{
		TaskID:         taskID,
		Endpoint:       choice.Endpoint,
		TransferHandle: handle,
		Info:           info.Clone(),
	})

	return taskID, choice.Endpoint, nil
}

// snapshotTransferETAsLocked returns every registered endpoint's current
// in-flight transfer ETAs. Callers must hold s.mu. Every endpoint is
// represented, even with an empty inner map and even when dead, so a
// Strategy can enumerate the full set of viable endpoints from this map's
// keys alone: a dead endpoint is warned about, not removed from
// consideration, since backup dispatches must still be able to race a
// dead endpoint's stale dispatch against a fresh one.
func (s *Scheduler) snapshotTransferETAsLocked() map[core.EndpointID]map[core.TransferHandle]time.Time {
	out := make(map[core.EndpointID]map[core.TransferHandle]time.Time, len(s.endpoints))
	for id, endpoint := range s.endpoints {
		inner := make(map[core.TransferHandle]time.Time, len(endpoint.TransferETAs))
		for handle, eta := range endpoint.TransferETAs {
			inner[handle] = eta
		}
		out[id] = inner
	}
	return out
}

// GetStatus returns the sticky, client-visible status for taskID, or a
// PENDING status if no terminal status has arrived yet (or the task is
// unknown).
func (s *Scheduler) GetStatus(taskID core.TaskID) core.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.status[taskID]
	if !ok {
		return core.TaskStatus{Code: core.StatusPending}
	}
	return status
}

// TranslateTaskID returns every real (executor-assigned) task id ever
// issued for taskID's dispatches. It remains defined for the lifetime of
// the process, even once the task has completed and its scheduling
// bookkeeping has been torn down.
func (s *Scheduler) TranslateTaskID(taskID core.TaskID) (map[core.RealTaskID]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	realIDs, ok := s.translation[taskID]
	if !ok {
		return nil, &UnknownTaskError{TaskID: taskID}
	}
	out := make(map[core.RealTaskID]struct{}, len(realIDs))
	for id := range realIDs {
		out[id] = struct{}{}
	}
	return out, nil
}

// Block removes (fn, endpoint) from future scheduling consideration,
// refusing to block the last remaining viable endpoint for fn.
func (s *Scheduler) Block(fn core.FunctionID, endpoint core.EndpointID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[endpoint]; !ok {
		return &UnknownEndpointError{Endpoint: endpoint}
	}

	blockedSet, ok := s.blocked[fn]
	if !ok {
		blockedSet = make(map[core.EndpointID]struct{})
		s.blocked[fn] = blockedSet
	}
	if _, already := blockedSet[endpoint]; already {
		return nil
	}
	if len(blockedSet)+1 >= len(s.endpoints) {
		return &CannotBlockLastEndpointError{FunctionID: fn}
	}
	blockedSet[endpoint] = struct{}{}
	return nil
}

// RegisterImports records the packages fn is known to require, used by
// coldStart to estimate import time on endpoints that haven't seen fn yet.
func (s *Scheduler) RegisterImports(fn core.FunctionID, imports []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requiredImports[fn] = imports
}

// coldStart estimates the startup penalty of dispatching fn to endpoint
// right now: zero for a warm or warming endpoint, otherwise the endpoint's
// launch time plus the import time of every required package it hasn't
// already imported. It is exposed to Strategy implementations as
// ports.Oracles.ColdStart. The Strategy only ever calls it from within
// ChooseEndpoint/PredictETA during scheduleTask or recordDispatched, both
// of which already hold s.mu, so it does not lock itself.
func (s *Scheduler) coldStart(endpoint core.EndpointID, fn core.FunctionID) time.Duration {
	ep, ok := s.endpoints[endpoint]
	if !ok || ep.Temperature != core.Cold {
		return 0
	}

	total := ep.Descriptor.LaunchTime
	for _, pkg := range s.requiredImports[fn] {
		if ep.HasImport(pkg) {
			continue
		}
		if s.importPredictor != nil {
			total += s.importPredictor.ImportTime(pkg, endpoint)
		}
	}
	return total
}

// queueDelay returns the absolute instant endpoint is next expected to
// have free capacity, collapsing to now when it has no outstanding work.
// It is exposed to Strategy implementations as ports.Oracles.QueueDelay.
// Like coldStart, it assumes s.mu is already held by its caller.
func (s *Scheduler) queueDelay(endpoint core.EndpointID) time.Time {
	now := s.clock.Now()
	ep, ok := s.endpoints[endpoint]
	if !ok {
		return now
	}
	candidate := ep.LastTaskETA.Add(ep.QueueError)
	if candidate.Before(now) {
		return now
	}
	return candidate
}
