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

// Package serializer implements ports.Serializer over the JSON envelope a
// client wraps its opaque function payload and a dispatch's status
// callbacks in. The scheduler core never interprets anything beyond the
// fields this package extracts.
package serializer

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// JSON implements ports.Serializer by treating a task's payload and a
// dispatch's status callbacks as JSON objects carrying a small set of
// well-known fields alongside an otherwise-opaque body.
type JSON struct{}

func New() *JSON { return &JSON{} }

var _ ports.Serializer = (*JSON)(nil)

// payloadEnvelope is the shape a submitted task's payload is expected to
// take: a files list the scheduler uses for staging, plus whatever
// function-specific arguments the client included, which this package
// never inspects.
type payloadEnvelope struct {
	Files []core.FileRef `json:"files,omitempty"`
}

// ExtractFiles pulls the files list out of payload, treating a payload
// with no files field (or an empty payload) as carrying nothing to stage.
func (JSON) ExtractFiles(payload []byte) ([]core.FileRef, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var env payloadEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	return env.Files, nil
}

// resultEnvelope is the shape of a successful status callback's body.
type resultEnvelope struct {
	// Runtime is reported in fractional seconds over the wire.
	Runtime float64  `json:"runtime"`
	Imports []string `json:"imports,omitempty"`
	// Value carries the function's opaque return value, base64-encoded.
	Value string `json:"value,omitempty"`
}

func (JSON) DecodeResult(raw []byte) (core.ExecutionResult, error) {
	var env resultEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return core.ExecutionResult{}, err
	}
	var value []byte
	if env.Value != "" {
		var err error
		value, err = base64.StdEncoding.DecodeString(env.Value)
		if err != nil {
			return core.ExecutionResult{}, err
		}
	}
	return core.ExecutionResult{
		Runtime: time.Duration(env.Runtime * float64(time.Second)),
		Imports: env.Imports,
		Value:   value,
	}, nil
}

// exceptionEnvelope is the shape of a failed status callback's body.
type exceptionEnvelope struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (JSON) DecodeException(raw []byte) (core.ExecutionException, error) {
	var env exceptionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return core.ExecutionException{}, err
	}
	return core.ExecutionException{Kind: env.Kind, Message: env.Message}, nil
}
