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

// Package transfer provides a reference ports.TransferCoordinator: a
// self-contained staging simulator that models each endpoint's ingress
// bandwidth, useful for driving the scheduler end-to-end without a live
// Globus Transfer (or similar) backend wired in. A production deployment
// replaces it with an adapter talking to the real staging service; the
// scheduler never depends on this package directly, only on
// ports.TransferCoordinator.
package transfer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"
	"github.com/google/uuid"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

var _ ports.TransferCoordinator = (*Coordinator)(nil)

// defaultThroughputBytesPerSecond is used for any endpoint this
// coordinator hasn't been told a measured throughput for.
const defaultThroughputBytesPerSecond = 50 * 1024 * 1024

// Coordinator runs its bookkeeping on a dedicated goroutine, communicating
// with callers over channels, in the style of the staging/move
// coordinators this package is modeled on: a crash here shouldn't be able
// to bring down the scheduler that depends on it.
type Coordinator struct {
	channels coordinatorChannels
}

type coordinatorChannels struct {
	requestTransfer chan transferRequest
	returnHandle    chan handleResult

	requestStatus chan core.TransferHandle
	returnStatus  chan statusResult

	requestDuration chan core.TransferHandle
	returnDuration  chan durationResult

	requestManifest chan core.TransferHandle
	returnManifest  chan manifestResult

	stop chan struct{}
	done chan struct{}
}

type transferRequest struct {
	Files    []core.FileRef
	Endpoint core.EndpointID
	TaskID   core.TaskID
}

type handleResult struct {
	Handle *core.TransferHandle
	Err    error
}

type statusResult struct {
	Complete bool
	Err      error
}

type durationResult struct {
	Duration time.Duration
	Err      error
}

type manifestResult struct {
	Manifest *datapackage.Package
	Err      error
}

type transferState struct {
	Files      []core.FileRef
	Endpoint   core.EndpointID
	TaskID     core.TaskID
	StartTime  time.Time
	FinishTime time.Time
	Manifest   *datapackage.Package
}

func (t transferState) totalBytes() int64 {
	var total int64
	for _, f := range t.Files {
		total += f.Bytes
	}
	return total
}

// New starts a Coordinator whose endpoints are assumed to sustain the
// given throughput (bytes/second). Endpoints absent from throughput, or
// given a non-positive rate, use defaultThroughputBytesPerSecond.
func New(throughput map[core.EndpointID]float64) *Coordinator {
	if throughput == nil {
		throughput = make(map[core.EndpointID]float64)
	}
	c := &Coordinator{
		channels: coordinatorChannels{
			requestTransfer: make(chan transferRequest),
			returnHandle:    make(chan handleResult),
			requestStatus:   make(chan core.TransferHandle),
			returnStatus:    make(chan statusResult),
			requestDuration: make(chan core.TransferHandle),
			returnDuration:  make(chan durationResult),
			requestManifest: make(chan core.TransferHandle),
			returnManifest:  make(chan manifestResult),
			stop:            make(chan struct{}),
			done:            make(chan struct{}),
		},
	}
	go c.run(throughput)
	return c
}

// Stop shuts down the coordinator's goroutine.
func (c *Coordinator) Stop() {
	close(c.channels.stop)
	<-c.channels.done
}

// Transfer begins staging files to endpoint for taskID, returning a handle
// for the operation, or a nil handle if there is nothing to stage.
func (c *Coordinator) Transfer(files []core.FileRef, endpoint core.EndpointID, taskID core.TaskID) (*core.TransferHandle, error) {
	if len(files) == 0 {
		return nil, nil
	}
	c.channels.requestTransfer <- transferRequest{Files: files, Endpoint: endpoint, TaskID: taskID}
	result := <-c.channels.returnHandle
	return result.Handle, result.Err
}

// IsComplete reports whether the staging operation named by handle has
// finished.
func (c *Coordinator) IsComplete(handle core.TransferHandle) (bool, error) {
	c.channels.requestStatus <- handle
	result := <-c.channels.returnStatus
	return result.Complete, result.Err
}

// GetTransferTime reports how long a completed transfer actually took.
func (c *Coordinator) GetTransferTime(handle core.TransferHandle) (time.Duration, error) {
	c.channels.requestDuration <- handle
	result := <-c.channels.returnDuration
	return result.Duration, result.Err
}

// Manifest returns the Frictionless data package manifest describing the
// files moved in a completed transfer, for attaching to provenance records
// or API responses.
func (c *Coordinator) Manifest(handle core.TransferHandle) (*datapackage.Package, error) {
	c.channels.requestManifest <- handle
	result := <-c.channels.returnManifest
	return result.Manifest, result.Err
}

func (c *Coordinator) run(throughput map[core.EndpointID]float64) {
	defer close(c.channels.done)
	transfers := make(map[core.TransferHandle]*transferState)
	running := true
	for running {
		select {
		case req := <-c.channels.requestTransfer:
			handle := core.TransferHandle(uuid.NewString())
			state := &transferState{
				Files:     req.Files,
				Endpoint:  req.Endpoint,
				TaskID:    req.TaskID,
				StartTime: time.Now(),
			}
			rate := throughput[req.Endpoint]
			if rate <= 0 {
				rate = defaultThroughputBytesPerSecond
			}
			seconds := float64(state.totalBytes()) / rate
			state.FinishTime = state.StartTime.Add(time.Duration(seconds * float64(time.Second)))
			transfers[handle] = state
			c.channels.returnHandle <- handleResult{Handle: &handle}

		case handle := <-c.channels.requestStatus:
			state, found := transfers[handle]
			if !found {
				c.channels.returnStatus <- statusResult{Err: &UnknownHandleError{Handle: handle}}
				break
			}
			complete := !time.Now().Before(state.FinishTime)
			if complete && state.Manifest == nil {
				state.Manifest, _ = buildManifest(handle, state.Files)
			}
			c.channels.returnStatus <- statusResult{Complete: complete}

		case handle := <-c.channels.requestDuration:
			state, found := transfers[handle]
			if !found {
				c.channels.returnDuration <- durationResult{Err: &UnknownHandleError{Handle: handle}}
				break
			}
			if time.Now().Before(state.FinishTime) {
				c.channels.returnDuration <- durationResult{Err: &NotCompleteError{Handle: handle}}
				break
			}
			c.channels.returnDuration <- durationResult{Duration: state.FinishTime.Sub(state.StartTime)}

		case handle := <-c.channels.requestManifest:
			state, found := transfers[handle]
			if !found {
				c.channels.returnManifest <- manifestResult{Err: &UnknownHandleError{Handle: handle}}
				break
			}
			if state.Manifest == nil {
				c.channels.returnManifest <- manifestResult{Err: &NotCompleteError{Handle: handle}}
				break
			}
			c.channels.returnManifest <- manifestResult{Manifest: state.Manifest}

		case <-c.channels.stop:
			running = false
		}
	}
}

// buildManifest assembles a minimal Frictionless data package descriptor
// from the staged files and parses it through datapackage-go; this is the
// same round-trip shape journal.BuildResultManifest uses for a task's
// result manifest, applied here to a completed file transfer instead.
func buildManifest(handle core.TransferHandle, files []core.FileRef) (*datapackage.Package, error) {
	resources := make([]map[string]any, len(files))
	for i, f := range files {
		resources[i] = map[string]any{
			"name": f.Name,
			"path": f.Path,
			"hash": f.Hash,
		}
		if f.Bytes > 0 {
			resources[i]["bytes"] = f.Bytes
		}
	}
	descriptor := map[string]any{
		"name":      fmt.Sprintf("transfer-%s", handle),
		"resources": resources,
	}
	data, err := json.Marshal(descriptor)
	if err != nil {
		return nil, err
	}
	return datapackage.FromString(string(data), "manifest.json", validator.InMemoryLoader())
}
