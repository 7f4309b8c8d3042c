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

// Package api exposes the scheduler's client-facing HTTP surface: batch
// task submission, status polling, real-task-id translation, and the
// function/endpoint blocklist, plus the status callback endpoint the
// execution service posts dispatch results back to.
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/globus-compute/central-scheduler/config"
	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/scheduler"
)

// Service is the scheduler's client-facing HTTP API.
type Service struct {
	Name    string
	Version string
	Port    int
	Router  *mux.Router
	Server  *http.Server

	scheduler *scheduler.Scheduler
}

// New constructs the API service's router around sched. The scheduler
// must already have been built (and Start'd by the caller); this package
// only ever calls exported Scheduler methods.
func New(sched *scheduler.Scheduler) (*Service, error) {
	service := &Service{
		Name:      "central-scheduler",
		Version:   core.Version,
		Port:      -1,
		scheduler: sched,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", service.getRoot).Methods("GET")

	AddDocEndpoints(r)

	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	v1 := api.PathPrefix("/v1").Subrouter()
	v1.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	v1.HandleFunc("/tasks", service.batchSubmit).Methods("POST")
	v1.HandleFunc("/tasks/{id}/status", service.getStatus).Methods("GET")
	v1.HandleFunc("/tasks/{id}/real-ids", service.translateTaskID).Methods("GET")
	v1.HandleFunc("/functions/{fn}/imports", service.registerImports).Methods("PUT")
	v1.HandleFunc("/functions/{fn}/block/{endpoint}", service.blockEndpoint).Methods("POST")
	v1.HandleFunc("/dispatches/{realId}/status", service.logStatus).Methods("POST")

	service.Router = r
	return service, nil
}

// rootResponse is the JSON shape of a root query.
type rootResponse struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	Uptime        int    `json:"uptime"`
	Documentation string `json:"documentation,omitempty"`
}

func (service *Service) getRoot(w http.ResponseWriter, r *http.Request) {
	data := rootResponse{
		Name:    service.Name,
		Version: service.Version,
		Uptime:  int(service.uptime()),
	}
	if HaveDocEndpoints {
		data.Documentation = "/docs"
	}
	writeJSON(w, data, http.StatusOK)
}

// uptime reports how long the process has been running, delegating to
// core.Uptime so the root endpoint's notion of uptime matches the rest of
// the service.
func (service *Service) uptime() float64 {
	return core.Uptime()
}

// Start starts the API service on port, limiting concurrent connections to
// config.Service.MaxConnections.
func (service *Service) Start(port int) error {
	service.Port = port

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return err
	}
	defer listener.Close()
	listener = netutil.LimitListener(listener, config.Service.MaxConnections)

	service.Server = &http.Server{Handler: service.Router}
	err = service.Server.Serve(listener)
	if err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the service without interrupting active
// connections.
func (service *Service) Shutdown(ctx context.Context) error {
	return service.Server.Shutdown(ctx)
}

// Close shuts the service down abruptly, freeing all resources.
func (service *Service) Close() {
	service.Server.Close()
}
