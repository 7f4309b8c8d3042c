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

package journal

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"
	bolt "go.etcd.io/bbolt"

	"github.com/globus-compute/central-scheduler/config"
	"github.com/globus-compute/central-scheduler/core"
)

// This is the scheduler's execution log, a durable, append-mostly record of
// every virtual task's completion: when it was expected to finish, when it
// actually did, and how far off the prediction was. It exists purely for
// historical record-keeping and diagnostics; nothing is replayed from it at
// startup, so its presence doesn't make the scheduled-tasks queue durable.

// a record of a single virtual task's completion
type Record struct {
	// the client-visible task id
	TaskID core.TaskID
	// the function that was run
	FunctionID core.FunctionID
	// the endpoint whose dispatch ultimately produced this completion
	Endpoint core.EndpointID
	// when the task was first dispatched
	TimeSent time.Time
	// when the terminal status was recorded
	TimeCompleted time.Time
	// the ETA predicted for the dispatch that completed, if any
	ExpectedETA time.Time
	// whether ExpectedETA came from a trusted (warmed-up) predictor
	IsETAReliable bool
	// "result" or "exception"
	Status string
	// the function's self-reported runtime, if the task succeeded
	Runtime time.Duration
	// the number of speculative backups sent for this task before it
	// completed
	NumBackups int
	// the result manifest (imports present, runtime) the executor reported
	// for a successful completion, wrapped as a minimal data package; nil
	// for exceptions and for results the caller chose not to attach one to
	Manifest *datapackage.Package
}

// PredictionError returns TimeCompleted - ExpectedETA: positive means the
// task finished later than predicted. It is zero if ExpectedETA is unset.
func (r Record) PredictionError() time.Duration {
	if r.ExpectedETA.IsZero() {
		return 0
	}
	return r.TimeCompleted.Sub(r.ExpectedETA)
}

// BuildResultManifest assembles a minimal Frictionless data package
// descriptor out of a successful task's reported runtime and imports, and
// parses it through datapackage-go, the same round-trip path
// transfer.Coordinator uses for its own file-staging manifests. Callers
// attach the result to Record.Manifest before calling RecordCompletion.
func BuildResultManifest(taskID core.TaskID, runtime time.Duration, imports []string) (*datapackage.Package, error) {
	resources := make([]map[string]any, len(imports))
	for i, pkg := range imports {
		resources[i] = map[string]any{"name": pkg}
	}
	descriptor := map[string]any{
		"name":            fmt.Sprintf("result-%s", taskID),
		"resources":       resources,
		"runtime_seconds": runtime.Seconds(),
	}
	data, err := json.Marshal(descriptor)
	if err != nil {
		return nil, err
	}
	return datapackage.FromString(string(data), "manifest.json", validator.InMemoryLoader())
}

// Init opens the execution log for reading and writing.
func Init() error {
	if !IsOpen() {
		go executionLogProcess()
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// Finalize saves and closes the execution log (if it's been opened).
func Finalize() error {
	if IsOpen() {
		channels_.Input.Shutdown <- struct{}{}
		closeChannels()
	}
	return nil
}

// IsOpen returns true if the execution log is open for writing, false if not.
func IsOpen() bool {
	if channels_.Open { // has Init() been called?
		channels_.Input.CheckIfOpen <- struct{}{}
		select {
		case isOpen := <-channels_.Output.IsOpen:
			return isOpen
		case <-time.After(1 * time.Second): // after a second, we assume the goroutine has crashed
			closeChannels()
			return false
		}
	}
	return false
}

// RecordCompletion appends a completed task's record to the execution log.
func RecordCompletion(record Record) error {
	switch record.Status {
	case "result", "exception":
	default:
		return &NewRecordError{
			TaskID:  record.TaskID,
			Message: fmt.Sprintf("invalid status: %s", record.Status),
		}
	}

	if !IsOpen() {
		return &NotOpenError{}
	}

	channels_.Input.CreateRecord <- record
	return <-channels_.Output.Error
}

// TaskRecord retrieves the completion record for the given task id.
func TaskRecord(taskID core.TaskID) (Record, error) {
	if !IsOpen() {
		return Record{}, &NotOpenError{}
	}
	channels_.Input.FetchRecord <- taskID
	select {
	case record := <-channels_.Output.Record:
		return record, nil
	case err := <-channels_.Output.Error:
		return Record{}, err
	}
}

// Records retrieves records for tasks that completed within the time range
// with the given (inclusive) bounds.
func Records(start, stop time.Time) ([]Record, error) {
	if !IsOpen() {
		return nil, &NotOpenError{}
	}
	channels_.Input.FetchRecords <- TimeRange{Start: start, Stop: stop}
	select {
	case records := <-channels_.Output.Records:
		return records, nil
	case err := <-channels_.Output.Error:
		return nil, err
	}
}

// DefaultLogger forwards completions to this package's package-level
// execution log, letting callers (namely the scheduler) depend on a small
// interface instead of journal's global state directly.
type DefaultLogger struct{}

// RecordCompletion implements scheduler.ExecutionLogger.
func (DefaultLogger) RecordCompletion(record Record) error {
	return RecordCompletion(record)
}

//-----------
// Internals
//-----------

// The bolt database gets its own goroutine so it doesn't bring down the
// scheduler if it crashes. Here we define "input" channels (main process ->
// goroutine) and "output" channels (goroutine -> main process) for passing
// data back and forth.

type TimeRange struct {
	Start, Stop time.Time
}

var channels_ struct {
	Open  bool // true if channels are open, false if not
	Input struct {
		CreateRecord chan Record      // for creating new records
		CheckIfOpen  chan struct{}    // for checking whether the log is open
		FetchRecord  chan core.TaskID // for fetching a single record by task id
		FetchRecords chan TimeRange   // for fetching records within a time range
		Shutdown     chan struct{}    // for shutting down the log
	}

	Output struct {
		Record  chan Record    // for returning a single record
		Records chan []Record  // for returning multiple records
		Error   chan error     // for returning errors
		IsOpen  chan bool      // for answering queries about whether the log is open
	}
}

var executionsBucket = []byte("executions")
var byTimeBucket = []byte("executions_by_time")
var manifestsBucket = []byte("manifests")

func executionLogProcess() {
	dbPath := filepath.Join(config.Service.DataDirectory,
		fmt.Sprintf("%s-execution-log.db", config.Service.Name))
	if err := os.MkdirAll(config.Service.DataDirectory, 0755); err != nil {
		channels_.Output.Error <- &CantOpenError{Message: err.Error()}
		return
	}
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		channels_.Output.Error <- &CantOpenError{Message: err.Error()}
		return
	}

	db.Update(func(tx *bolt.Tx) error {
		for _, bucketName := range [][]byte{executionsBucket, byTimeBucket, manifestsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucketName); err != nil {
				return err
			}
		}
		return nil
	})

	openChannels()

	// handle requests
	running := true
	for running {
		select {

		case <-channels_.Input.CheckIfOpen:
			channels_.Output.IsOpen <- true // always true if this goroutine is running!

		case record := <-channels_.Input.CreateRecord:
			err := createRecord(db, record)
			channels_.Output.Error <- err

		case taskID := <-channels_.Input.FetchRecord:
			record, err := fetchRecord(db, taskID)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Record <- record
			}

		case timeRange := <-channels_.Input.FetchRecords:
			records, err := fetchRecords(db, timeRange.Start, timeRange.Stop)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Records <- records
			}

		case <-channels_.Input.Shutdown:
			err := db.Close()
			if err != nil {
				channels_.Output.Error <- &CantCloseError{Message: err.Error()}
			}
			running = false
		}
	}
}

func openChannels() {
	channels_.Open = true
	channels_.Input.CreateRecord = make(chan Record)
	channels_.Input.CheckIfOpen = make(chan struct{})
	channels_.Input.FetchRecord = make(chan core.TaskID)
	channels_.Input.FetchRecords = make(chan TimeRange)
	channels_.Input.Shutdown = make(chan struct{})
	channels_.Output.Record = make(chan Record)
	channels_.Output.Records = make(chan []Record)
	channels_.Output.Error = make(chan error)
	channels_.Output.IsOpen = make(chan bool)
}

func closeChannels() {
	channels_.Open = false
	close(channels_.Input.CreateRecord)
	close(channels_.Input.CheckIfOpen)
	close(channels_.Input.FetchRecord)
	close(channels_.Input.FetchRecords)
	close(channels_.Input.Shutdown)
	close(channels_.Output.Record)
	close(channels_.Output.Records)
	close(channels_.Output.Error)
	close(channels_.Output.IsOpen)
}

func encodeRecord(record Record) []byte {
	var buffer bytes.Buffer
	w := csv.NewWriter(&buffer)
	w.Write([]string{
		string(record.TaskID),
		string(record.FunctionID),
		string(record.Endpoint),
		record.TimeSent.Format(time.RFC3339Nano),
		record.TimeCompleted.Format(time.RFC3339Nano),
		record.ExpectedETA.Format(time.RFC3339Nano),
		strconv.FormatBool(record.IsETAReliable),
		record.Status,
		fmt.Sprintf("%g", record.Runtime.Seconds()),
		strconv.Itoa(record.NumBackups),
	})
	w.Flush()
	return buffer.Bytes()
}

func decodeRecord(data []byte) (Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	fields, err := r.Read()
	if err != nil {
		return Record{}, err
	}
	timeSent, _ := time.Parse(time.RFC3339Nano, fields[3])
	timeCompleted, _ := time.Parse(time.RFC3339Nano, fields[4])
	eta, _ := time.Parse(time.RFC3339Nano, fields[5])
	isReliable, _ := strconv.ParseBool(fields[6])
	runtimeSeconds, _ := strconv.ParseFloat(fields[8], 64)
	numBackups, _ := strconv.Atoi(fields[9])
	return Record{
		TaskID:        core.TaskID(fields[0]),
		FunctionID:    core.FunctionID(fields[1]),
		Endpoint:      core.EndpointID(fields[2]),
		TimeSent:      timeSent,
		TimeCompleted: timeCompleted,
		ExpectedETA:   eta,
		IsETAReliable: isReliable,
		Status:        fields[7],
		Runtime:       time.Duration(runtimeSeconds * float64(time.Second)),
		NumBackups:    numBackups,
	}, nil
}

func createRecord(db *bolt.DB, record Record) error {
	tx, err := db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	data := encodeRecord(record)

	executions := tx.Bucket(executionsBucket)
	if err := executions.Put([]byte(record.TaskID), data); err != nil {
		return &NewRecordError{TaskID: record.TaskID, Message: err.Error()}
	}

	byTime := tx.Bucket(byTimeBucket)
	timeKey := fmt.Sprintf("%s/%s", record.TimeCompleted.UTC().Format(time.RFC3339), record.TaskID)
	if err := byTime.Put([]byte(timeKey), []byte(record.TaskID)); err != nil {
		return &NewRecordError{TaskID: record.TaskID, Message: err.Error()}
	}

	// if a result manifest was attached, store it separately (indexed by
	// task id) so readers who don't need it can skip the cost
	if record.Manifest != nil {
		jsonManifest, err := json.Marshal(record.Manifest.Descriptor())
		if err != nil {
			return &NewRecordError{TaskID: record.TaskID, Message: err.Error()}
		}
		manifests := tx.Bucket(manifestsBucket)
		if err := manifests.Put([]byte(record.TaskID), jsonManifest); err != nil {
			return &NewRecordError{TaskID: record.TaskID, Message: err.Error()}
		}
	}

	return tx.Commit()
}

// attachManifest loads a previously stored result manifest for taskID, if
// any, into record.
func attachManifest(tx *bolt.Tx, taskID core.TaskID, record *Record) error {
	if record.Status != "result" {
		return nil
	}
	data := tx.Bucket(manifestsBucket).Get([]byte(taskID))
	if data == nil {
		return nil
	}
	manifest, err := datapackage.FromString(string(data), "manifest.json", validator.InMemoryLoader())
	if err != nil {
		return &InvalidRecordError{TaskID: taskID, Message: "unable to retrieve manifest for successful task: " + err.Error()}
	}
	record.Manifest = manifest
	return nil
}

func fetchRecord(db *bolt.DB, taskID core.TaskID) (Record, error) {
	var record Record
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(executionsBucket).Get([]byte(taskID))
		if data == nil {
			return &RecordNotFoundError{TaskID: taskID}
		}
		var err error
		record, err = decodeRecord(data)
		if err != nil {
			return err
		}
		return attachManifest(tx, taskID, &record)
	})
	return record, err
}

func fetchRecords(db *bolt.DB, start, stop time.Time) ([]Record, error) {
	records := make([]Record, 0)
	err := db.View(func(tx *bolt.Tx) error {
		executions := tx.Bucket(executionsBucket)
		c := tx.Bucket(byTimeBucket).Cursor()

		startKey := []byte(start.UTC().Format(time.RFC3339))
		stopKey := []byte(stop.UTC().Format(time.RFC3339) + "/\xff")

		for k, taskID := c.Seek(startKey); k != nil && bytes.Compare(k, stopKey) <= 0; k, taskID = c.Next() {
			data := executions.Get(taskID)
			if data == nil {
				continue
			}
			record, err := decodeRecord(data)
			if err != nil {
				return &InvalidRecordError{TaskID: core.TaskID(taskID), Message: err.Error()}
			}
			if err := attachManifest(tx, core.TaskID(taskID), &record); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})

	return records, err
}
