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

package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// service-level configuration parameters
type serviceConfig struct {
	// descriptive name for this scheduler instance, used to name its
	// on-disk execution log; default "scheduler"
	Name string `yaml:"name,omitempty"`
	// port on which the client-facing API listens
	Port int `yaml:"port,omitempty"`
	// maximum number of allowed incoming connections
	// default: 100
	MaxConnections int `yaml:"max_connections,omitempty"`
	// flag indicating whether debug logging is enabled
	Debug bool `yaml:"debug"`
	// directory in which the durable execution log is stored; default
	// "./data". Predictor warm-start file paths are used as given.
	DataDirectory string `yaml:"data_dir,omitempty"`
}

// scheduling-loop configuration parameters
type schedulingConfig struct {
	// interval at which the submission worker drains and retries the
	// scheduled-tasks queue (milliseconds); default 150
	SubmissionIntervalMillis int `yaml:"submission_interval_ms,omitempty"`
	// interval at which the endpoint watchdog polls endpoint status
	// (seconds); default 5
	WatchdogIntervalSeconds int `yaml:"watchdog_interval_s,omitempty"`
	// age (seconds) past which a missing heartbeat marks an endpoint dead;
	// default 75
	HeartbeatThresholdSeconds int `yaml:"heartbeat_threshold_s,omitempty"`
	// maximum number of backup dispatches allowed per virtual task;
	// default 0 (backups disabled)
	MaxBackups int `yaml:"max_backups"`
	// elapsed/expected ratio past which a reliably-predicted task is
	// considered delayed enough to warrant a backup; default 2.0
	BackupDelayThreshold float64 `yaml:"backup_delay_threshold,omitempty"`
}

// the choice-of-endpoint strategy to use
type strategyConfig struct {
	// registered strategy name; default "round-robin"
	Name string `yaml:"name,omitempty"`
	// opaque strategy-specific parameters
	Params map[string]any `yaml:"params,omitempty"`
}

// online predictor configuration
type predictorsConfig struct {
	// registered runtime predictor name; default "rolling-average"
	RuntimePredictor string `yaml:"runtime_predictor,omitempty"`
	// number of most recent samples the runtime predictor retains per
	// (function, endpoint) pair; default 3
	LastN int `yaml:"last_n,omitempty"`
	// retraining interval (in samples) passed to the runtime predictor;
	// default 1. The rolling-average predictor records it but recomputes
	// its mean on every prediction.
	TrainEvery int `yaml:"train_every,omitempty"`
	// optional SQLite file from/to which the import-time predictor loads
	// and persists its learned state
	ImportModelFile string `yaml:"import_model_file,omitempty"`
	// optional SQLite file from/to which the transfer-time predictor
	// loads and persists its learned state
	TransferModelFile string `yaml:"transfer_model_file,omitempty"`
}

// the executor (HTTP execution service) this scheduler dispatches to
type executorConfig struct {
	// base URL of the executor's HTTP API
	BaseURL string `yaml:"base_url,omitempty"`
	// request timeout (seconds); default 30
	TimeoutSeconds int `yaml:"timeout_s,omitempty"`
}

// global config variables, populated by Init
var Service serviceConfig
var Scheduling schedulingConfig
var Strategy strategyConfig
var Predictors predictorsConfig
var Executor executorConfig
var Endpoints map[string]EndpointConfig

// sync_level forwarded opaquely to the transfer coordinator (e.g. Globus's
// "exists"/"size"/"mtime"/"checksum" sync levels)
var SyncLevel string

// configFile performs the unmarshalling from the YAML config document and
// then copies its fields into the globals above.
type configFile struct {
	Service    serviceConfig           `yaml:"service"`
	Scheduling schedulingConfig        `yaml:"scheduling"`
	Strategy   strategyConfig          `yaml:"strategy"`
	Predictors predictorsConfig        `yaml:"predictors"`
	Executor   executorConfig          `yaml:"executor"`
	Endpoints  map[string]EndpointConfig `yaml:"endpoints"`
	SyncLevel  string                  `yaml:"sync_level,omitempty"`
}

// readConfig locates and parses configuration YAML, returning an error
// indicating success or failure. All environment variables of the form
// ${ENV_VAR} are expanded before parsing.
func readConfig(data []byte) error {
	data = []byte(os.ExpandEnv(string(data)))

	var conf configFile
	conf.Service.Name = "scheduler"
	conf.Service.Port = 8080
	conf.Service.MaxConnections = 100
	conf.Service.DataDirectory = "./data"
	conf.Scheduling.SubmissionIntervalMillis = 150
	conf.Scheduling.WatchdogIntervalSeconds = 5
	conf.Scheduling.HeartbeatThresholdSeconds = 75
	conf.Scheduling.BackupDelayThreshold = 2.0
	conf.Strategy.Name = "round-robin"
	conf.Predictors.RuntimePredictor = "rolling-average"
	conf.Predictors.LastN = 3
	conf.Predictors.TrainEvery = 1
	conf.Executor.BaseURL = "https://funcx.org/api/v1"
	conf.Executor.TimeoutSeconds = 30
	conf.SyncLevel = "exists"

	err := yaml.Unmarshal(data, &conf)
	if err != nil {
		log.Printf("Couldn't parse configuration data: %s\n", err)
		return err
	}

	Service = conf.Service
	Scheduling = conf.Scheduling
	Strategy = conf.Strategy
	Predictors = conf.Predictors
	Executor = conf.Executor
	Endpoints = conf.Endpoints
	SyncLevel = conf.SyncLevel

	return nil
}

func validateServiceParameters(params serviceConfig) error {
	if params.Port < 0 || params.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 0-65535)", params.Port)
	}
	if params.MaxConnections <= 0 {
		return fmt.Errorf("invalid max_connections: %d (must be positive)",
			params.MaxConnections)
	}
	if params.DataDirectory == "" {
		return fmt.Errorf("no data_dir specified")
	}
	return nil
}

func validateScheduling(params schedulingConfig) error {
	if params.SubmissionIntervalMillis <= 0 {
		return fmt.Errorf("non-positive submission_interval_ms specified: %d",
			params.SubmissionIntervalMillis)
	}
	if params.WatchdogIntervalSeconds <= 0 {
		return fmt.Errorf("non-positive watchdog_interval_s specified: %d",
			params.WatchdogIntervalSeconds)
	}
	if params.HeartbeatThresholdSeconds <= 0 {
		return fmt.Errorf("non-positive heartbeat_threshold_s specified: %d",
			params.HeartbeatThresholdSeconds)
	}
	if params.MaxBackups < 0 {
		return fmt.Errorf("negative max_backups specified: %d", params.MaxBackups)
	}
	if params.BackupDelayThreshold <= 0 {
		return fmt.Errorf("non-positive backup_delay_threshold specified: %g",
			params.BackupDelayThreshold)
	}
	return nil
}

func validateEndpoints(endpoints map[string]EndpointConfig) error {
	if len(endpoints) == 0 {
		return fmt.Errorf("no endpoints were configured")
	}
	for label, endpoint := range endpoints {
		if endpoint.Id == "" {
			return fmt.Errorf("no id specified for endpoint '%s'", label)
		}
		if endpoint.LaunchTime < 0 {
			return fmt.Errorf("negative launch_time specified for endpoint '%s'", label)
		}
	}
	return nil
}

func validateExecutor(params executorConfig) error {
	if params.BaseURL == "" {
		return fmt.Errorf("no executor base_url specified")
	}
	if params.TimeoutSeconds <= 0 {
		return fmt.Errorf("non-positive executor timeout_s specified: %d",
			params.TimeoutSeconds)
	}
	return nil
}

// validateConfig validates the fully-populated configuration globals,
// returning an error that indicates success or failure.
func validateConfig() error {
	if err := validateServiceParameters(Service); err != nil {
		return err
	}
	if err := validateScheduling(Scheduling); err != nil {
		return err
	}
	if err := validateEndpoints(Endpoints); err != nil {
		return err
	}
	return validateExecutor(Executor)
}

// Init initializes the scheduler's configuration from the given YAML byte
// data.
func Init(yamlData []byte) error {
	if err := readConfig(yamlData); err != nil {
		return err
	}
	return validateConfig()
}
