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

// These tests must be run serially, since the execution log is coordinated
// by a single goroutine.

package journal

import (
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/globus-compute/central-scheduler/config"
	"github.com/globus-compute/central-scheduler/core"
)

// runs all tests serially
func TestRunner(t *testing.T) {
	tester := SerialTests{Test: t}
	tester.TestInitAndFinalize()
	tester.TestRecordResultCompletion()
	tester.TestRecordResultCompletionWithManifest()
	tester.TestRecordExceptionCompletion()
	tester.TestRecordsWithinTimeRange()
}

// This runs setup, runs all tests, and does breakdown.
func TestMain(m *testing.M) {
	var status int
	setup()
	status = m.Run()
	breakdown()
	os.Exit(status)
}

// this function gets called at the beginning of a test session
func setup() {
	log.Print("Creating testing directory...\n")
	var err error
	TESTING_DIR, err = os.MkdirTemp(os.TempDir(), "central-scheduler-tests-")
	if err != nil {
		log.Panicf("Couldn't create testing directory: %s", err)
	}

	// read in the config file with TESTING_DIR replaced
	myConfig := strings.ReplaceAll(journalConfig, "TESTING_DIR", TESTING_DIR)
	err = config.Init([]byte(myConfig))
	if err != nil {
		log.Panicf("Couldn't initialize configuration: %s", err)
	}
}

// this function gets called after all tests have been run
func breakdown() {
	if IsOpen() {
		Finalize()
	}
	if TESTING_DIR != "" {
		log.Printf("Deleting testing directory %s...\n", TESTING_DIR)
		os.RemoveAll(TESTING_DIR)
	}
}

// To run the tests serially, we attach them to a SerialTests type and
// have them run by a single test runner.
type SerialTests struct{ Test *testing.T }

func (t *SerialTests) TestInitAndFinalize() {
	assert := assert.New(t.Test)

	assert.False(IsOpen())
	err := Init()
	assert.Nil(err)
	assert.True(IsOpen())
	err = Finalize()
	assert.Nil(err)
	assert.False(IsOpen())
}

func (t *SerialTests) TestRecordResultCompletion() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)

	now := time.Now().Truncate(time.Millisecond)
	record := Record{
		TaskID:        core.TaskID("task-1"),
		FunctionID:    core.FunctionID("fn-1"),
		Endpoint:      core.EndpointID("endpoint-a"),
		TimeSent:      now.Add(-10 * time.Second),
		TimeCompleted: now,
		ExpectedETA:   now.Add(-1 * time.Second),
		IsETAReliable: true,
		Status:        "result",
		Runtime:       8500 * time.Millisecond,
		NumBackups:    0,
	}
	err = RecordCompletion(record)
	assert.Nil(err)

	record1, err := TaskRecord(record.TaskID)
	assert.Nil(err)
	assert.Equal(record.TaskID, record1.TaskID)
	assert.Equal(record.FunctionID, record1.FunctionID)
	assert.Equal(record.Endpoint, record1.Endpoint)
	assert.Equal(record.Status, record1.Status)
	assert.Equal(record.IsETAReliable, record1.IsETAReliable)
	assert.Equal(record.NumBackups, record1.NumBackups)
	assert.True(record.TimeSent.Equal(record1.TimeSent))
	assert.True(record.TimeCompleted.Equal(record1.TimeCompleted))
	assert.True(record.ExpectedETA.Equal(record1.ExpectedETA))
	assert.InDelta(record.Runtime.Seconds(), record1.Runtime.Seconds(), 0.001)
	assert.True(record1.PredictionError() > 0)

	err = Finalize()
	assert.Nil(err)
}

func (t *SerialTests) TestRecordResultCompletionWithManifest() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)

	now := time.Now().Truncate(time.Millisecond)
	manifest, err := BuildResultManifest(core.TaskID("task-manifest"), 3*time.Second, []string{"numpy", "pandas"})
	assert.Nil(err)

	record := Record{
		TaskID:        core.TaskID("task-manifest"),
		FunctionID:    core.FunctionID("fn-1"),
		Endpoint:      core.EndpointID("endpoint-a"),
		TimeSent:      now.Add(-3 * time.Second),
		TimeCompleted: now,
		Status:        "result",
		Runtime:       3 * time.Second,
		Manifest:      manifest,
	}
	err = RecordCompletion(record)
	assert.Nil(err)

	record1, err := TaskRecord(record.TaskID)
	assert.Nil(err)
	if assert.NotNil(record1.Manifest) {
		resources := record1.Manifest.Descriptor()["resources"]
		assert.Len(resources, 2)
	}

	err = Finalize()
	assert.Nil(err)
}

func (t *SerialTests) TestRecordExceptionCompletion() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)

	now := time.Now().Truncate(time.Millisecond)
	record := Record{
		TaskID:        core.TaskID("task-2"),
		FunctionID:    core.FunctionID("fn-2"),
		Endpoint:      core.EndpointID("endpoint-b"),
		TimeSent:      now.Add(-5 * time.Second),
		TimeCompleted: now,
		Status:        "exception",
		NumBackups:    1,
	}
	err = RecordCompletion(record)
	assert.Nil(err)

	record1, err := TaskRecord(record.TaskID)
	assert.Nil(err)
	assert.Equal(record.TaskID, record1.TaskID)
	assert.Equal(record.Status, record1.Status)
	assert.Equal(record.NumBackups, record1.NumBackups)

	err = Finalize()
	assert.Nil(err)
}

func (t *SerialTests) TestRecordsWithinTimeRange() {
	assert := assert.New(t.Test)

	err := Init()
	assert.Nil(err)

	// a day in the past, so the range below excludes records that other
	// tests in this suite completed at the current time
	base := time.Now().Add(-24 * time.Hour).Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		record := Record{
			TaskID:        core.TaskID(fmt.Sprintf("range-task-%d", i)),
			FunctionID:    core.FunctionID("fn-range"),
			Endpoint:      core.EndpointID("endpoint-a"),
			TimeSent:      base,
			TimeCompleted: base.Add(time.Duration(i) * time.Minute),
			Status:        "result",
		}
		err = RecordCompletion(record)
		assert.Nil(err)
	}

	records, err := Records(base.Add(-1*time.Minute), base.Add(5*time.Minute))
	assert.Nil(err)
	assert.Equal(3, len(records))

	err = Finalize()
	assert.Nil(err)
}

// a directory in which the scheduler can read/write files
var TESTING_DIR string

// configuration
const journalConfig string = `
service:
  name: test
  port: 8080
  max_connections: 100
  data_dir: TESTING_DIR/data
endpoints:
  endpoint-a:
    id: endpoint-a-id
  endpoint-b:
    id: endpoint-b-id
`
