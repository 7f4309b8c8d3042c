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

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/globus-compute/central-scheduler/api"
	"github.com/globus-compute/central-scheduler/config"
	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/executor"
	"github.com/globus-compute/central-scheduler/journal"
	"github.com/globus-compute/central-scheduler/predictors"
	"github.com/globus-compute/central-scheduler/scheduler"
	"github.com/globus-compute/central-scheduler/serializer"
	"github.com/globus-compute/central-scheduler/transfer"
)

//go:generate mkdir -p api/docs
//go:generate redoc-cli bundle docs/openapi.yaml
//go:generate cp docs/openapi.yaml api/docs/openapi.yaml
//go:generate mv redoc-static.html api/docs/index.html

// The above logic generates a docs package exposed at the "/docs" prefix.
// To enable these endpoints, build with: go build -tags docs

// prints usage info
func usage() {
	fmt.Fprintf(os.Stderr, "%s: usage:\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "%s <config_file>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "See README.md for details on config files.\n")
	os.Exit(1)
}

func enableLogging() {
	logLevel := new(slog.LevelVar)
	if config.Service.Debug {
		logLevel.Set(slog.LevelDebug)
	} else {
		logLevel.Set(slog.LevelInfo)
	}
	handler := slog.NewJSONHandler(os.Stdout,
		&slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Debug logging enabled.")
}

// endpointDescriptors converts the YAML-configured endpoints into the
// scheduler's runtime descriptor map.
func endpointDescriptors() map[core.EndpointID]core.EndpointDescriptor {
	descriptors := make(map[core.EndpointID]core.EndpointDescriptor, len(config.Endpoints))
	for _, ep := range config.Endpoints {
		id := core.EndpointID(ep.Id)
		descriptors[id] = core.EndpointDescriptor{
			Id:         id,
			LaunchTime: time.Duration(ep.LaunchTime * float64(time.Second)),
		}
	}
	return descriptors
}

// warmStartPredictors bundles the two online predictors whose learned
// state is persisted to disk, so main can save them back out on shutdown
// the same way buildScheduler loaded them.
type warmStartPredictors struct {
	transferTime *predictors.ThroughputEstimator
	importTime   *predictors.ImportEstimator
}

// save persists both predictors' current learned state back to their
// configured warm-start files. A blank file path is a no-op for that
// predictor.
func (w warmStartPredictors) save() error {
	if err := predictors.SaveTransferModel(config.Predictors.TransferModelFile, w.transferTime.Snapshot()); err != nil {
		return fmt.Errorf("couldn't save transfer-time predictor warm-start file: %w", err)
	}
	if err := predictors.SaveImportModel(config.Predictors.ImportModelFile, w.importTime.SnapshotSeconds()); err != nil {
		return fmt.Errorf("couldn't save import-time predictor warm-start file: %w", err)
	}
	return nil
}

// buildScheduler wires together the scheduler core and its narrow ports:
// the online predictors (warm-started from disk, if configured), the
// HTTP-backed execution service client, the reference transfer
// coordinator, the JSON payload serializer, and the durable execution
// journal. It also returns the warm-started predictors themselves, so
// their learned state can be saved back to disk on shutdown.
func buildScheduler() (*scheduler.Scheduler, warmStartPredictors, error) {
	importModel, err := predictors.LoadImportModel(config.Predictors.ImportModelFile)
	if err != nil {
		return nil, warmStartPredictors{}, fmt.Errorf("couldn't load import-time predictor warm-start file: %w", err)
	}
	transferModel, err := predictors.LoadTransferModel(config.Predictors.TransferModelFile)
	if err != nil {
		return nil, warmStartPredictors{}, fmt.Errorf("couldn't load transfer-time predictor warm-start file: %w", err)
	}

	runtimePredictor := predictors.NewRollingAverage(config.Predictors.LastN, config.Predictors.TrainEvery)
	transferTimePredictor := predictors.NewThroughputEstimator(transferModel)
	importPredictor := predictors.NewImportEstimatorFromSeconds(importModel)
	warmStart := warmStartPredictors{transferTime: transferTimePredictor, importTime: importPredictor}

	execTimeout := time.Duration(config.Executor.TimeoutSeconds) * time.Second
	execClient := executor.New(config.Executor.BaseURL, execTimeout)

	transferCoordinator := transfer.New(transferModel)

	if err := journal.Init(); err != nil {
		return nil, warmStartPredictors{}, fmt.Errorf("couldn't initialize the execution journal: %w", err)
	}

	sched, err := scheduler.New(scheduler.Options{
		Endpoints:            endpointDescriptors(),
		StrategyName:         config.Strategy.Name,
		StrategyParams:       config.Strategy.Params,
		Runtime:              runtimePredictor,
		TransferTime:         transferTimePredictor,
		Import:               importPredictor,
		TransferCoordinator:  transferCoordinator,
		Executor:             execClient,
		Serializer:           serializer.New(),
		Logger:               journal.DefaultLogger{},
		MaxBackups:           config.Scheduling.MaxBackups,
		BackupDelayThreshold: config.Scheduling.BackupDelayThreshold,
		SubmissionInterval:   time.Duration(config.Scheduling.SubmissionIntervalMillis) * time.Millisecond,
		WatchdogInterval:     time.Duration(config.Scheduling.WatchdogIntervalSeconds) * time.Second,
		HeartbeatThreshold:   time.Duration(config.Scheduling.HeartbeatThresholdSeconds) * time.Second,
		ExecutorTimeout:      execTimeout,
	})
	if err != nil {
		return nil, warmStartPredictors{}, err
	}
	return sched, warmStart, nil
}

func main() {

	// the only argument is the configuration filename
	if len(os.Args) < 2 {
		usage()
	}
	configFile := os.Args[1]

	// read the configuration file and initialize the config package
	log.Printf("Reading configuration from '%s'...\n", configFile)
	file, err := os.Open(configFile)
	if err != nil {
		log.Panicf("Couldn't open %s: %s\n", configFile, err.Error())
	}
	defer file.Close()
	b, err := io.ReadAll(file)
	if err != nil {
		log.Panicf("Couldn't read configuration data: %s\n", err.Error())
	}
	err = config.Init(b)
	if err != nil {
		log.Panicf("Couldn't initialize the configuration: %s\n", err.Error())
	}

	enableLogging()

	sched, warmStart, err := buildScheduler()
	if err != nil {
		log.Panicf("Couldn't build the scheduler: %s\n", err.Error())
	}
	sched.Start()

	service, err := api.New(sched)
	if err != nil {
		log.Panicf("Couldn't create the API service: %s\n", err.Error())
	}

	// intercept the SIGINT, SIGHUP, SIGTERM, and SIGQUIT signals so we can shut
	// down the service gracefully if they are encountered
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	// start the service in a goroutine so it doesn't block
	go func() {
		err = service.Start(config.Service.Port)
		if err != nil { // on error, log the error message and issue a SIGINT
			log.Println(err.Error())
			thisProcess, _ := os.FindProcess(os.Getpid())
			thisProcess.Signal(os.Interrupt)
		}
	}()

	// block till we receive one of the above signals
	<-sigChan

	// create a deadline to wait for
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// wait for connections to close until the deadline elapses
	service.Shutdown(ctx)
	sched.Stop()
	if err := warmStart.save(); err != nil {
		log.Println(err.Error())
	}
	if err := journal.Finalize(); err != nil {
		log.Println(err.Error())
	}
	log.Println("Shutting down")
	os.Exit(0)
}
