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

package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/scheduler"
)

// writeJSON writes data, marshaled as JSON, to w with the given status
// code.
func writeJSON(w http.ResponseWriter, data any, code int) {
	body, err := json.Marshal(data)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

// errorResponse is the JSON shape of a failed request.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	data, _ := json.Marshal(errorResponse{Code: code, Message: message})
	w.Write(data)
}

// batchTask is the wire shape of a single item in a batch submission
// request.
type batchTask struct {
	FunctionID string `json:"function_id"`
	// Payload is the client's opaque, function-specific argument data,
	// passed straight through to the execution service.
	Payload json.RawMessage `json:"payload,omitempty"`
}

type batchSubmitRequest struct {
	Tasks []batchTask `json:"tasks"`
}

type batchSubmitResult struct {
	TaskID   core.TaskID     `json:"task_id"`
	Endpoint core.EndpointID `json:"endpoint"`
}

type batchSubmitResponse struct {
	Results []batchSubmitResult `json:"results"`
}

func (service *Service) batchSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req batchSubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Tasks) == 0 {
		writeError(w, "no tasks given", http.StatusBadRequest)
		return
	}

	items := make([]scheduler.BatchItem, len(req.Tasks))
	for i, t := range req.Tasks {
		items[i] = scheduler.BatchItem{FunctionID: core.FunctionID(t.FunctionID), Payload: t.Payload}
	}

	taskIDs, endpoints, err := service.scheduler.BatchSubmit(items, r.Header)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := batchSubmitResponse{Results: make([]batchSubmitResult, len(taskIDs))}
	for i := range taskIDs {
		resp.Results[i] = batchSubmitResult{TaskID: taskIDs[i], Endpoint: endpoints[i]}
	}
	writeJSON(w, resp, http.StatusCreated)
}

type statusResponse struct {
	Status    string         `json:"status"`
	Runtime   float64        `json:"runtime,omitempty"`
	Value     string         `json:"value,omitempty"`
	Exception *exceptionJSON `json:"exception,omitempty"`
}

type exceptionJSON struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func statusCodeString(code core.StatusCode) string {
	switch code {
	case core.StatusPending:
		return "pending"
	case core.StatusResult:
		return "result"
	case core.StatusException:
		return "exception"
	default:
		return "unknown"
	}
}

func (service *Service) getStatus(w http.ResponseWriter, r *http.Request) {
	taskID := core.TaskID(mux.Vars(r)["id"])
	status := service.scheduler.GetStatus(taskID)

	resp := statusResponse{Status: statusCodeString(status.Code)}
	if status.Result != nil {
		resp.Runtime = status.Result.Runtime.Seconds()
		resp.Value = string(status.Result.Value)
	}
	if status.Exception != nil {
		resp.Exception = &exceptionJSON{Kind: status.Exception.Kind, Message: status.Exception.Message}
	}
	writeJSON(w, resp, http.StatusOK)
}

type translateResponse struct {
	RealTaskIDs []core.RealTaskID `json:"real_task_ids"`
}

func (service *Service) translateTaskID(w http.ResponseWriter, r *http.Request) {
	taskID := core.TaskID(mux.Vars(r)["id"])
	realIDs, err := service.scheduler.TranslateTaskID(taskID)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	ids := make([]core.RealTaskID, 0, len(realIDs))
	for id := range realIDs {
		ids = append(ids, id)
	}
	writeJSON(w, translateResponse{RealTaskIDs: ids}, http.StatusOK)
}

func (service *Service) registerImports(w http.ResponseWriter, r *http.Request) {
	fn := core.FunctionID(mux.Vars(r)["fn"])

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req struct {
		Imports []string `json:"imports"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	service.scheduler.RegisterImports(fn, req.Imports)
	w.WriteHeader(http.StatusNoContent)
}

func (service *Service) blockEndpoint(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fn := core.FunctionID(vars["fn"])
	endpoint := core.EndpointID(vars["endpoint"])

	if err := service.scheduler.Block(fn, endpoint); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// dispatchStatusRequest is the shape of a status callback the execution
// service posts back for a single dispatch.
type dispatchStatusRequest struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

func (service *Service) logStatus(w http.ResponseWriter, r *http.Request) {
	realID := core.RealTaskID(mux.Vars(r)["realId"])

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req dispatchStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var kind scheduler.StatusKind
	switch req.Kind {
	case "pending":
		kind = scheduler.StatusUpdatePending
	case "result":
		kind = scheduler.StatusUpdateResult
	case "exception":
		kind = scheduler.StatusUpdateException
	default:
		writeError(w, "unrecognized status kind: "+req.Kind, http.StatusBadRequest)
		return
	}

	if err := service.scheduler.LogStatus(realID, scheduler.StatusUpdate{Kind: kind, Raw: req.Body}); err != nil {
		slog.Warn("could not log dispatch status", "real_task_id", realID, "error", err)
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
