package schedtest

import (
	"encoding/json"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// payload is the shape Serializer expects a task's opaque payload to take:
// a files list alongside whatever else the client included, which the
// scheduler never interprets.
type payload struct {
	Files []core.FileRef `json:"files,omitempty"`
}

type resultPayload struct {
	Runtime float64  `json:"runtime"`
	Imports []string `json:"imports,omitempty"`
	Value   string   `json:"value,omitempty"`
}

type exceptionPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Serializer is a JSON-based fake implementing ports.Serializer, using the
// production serializer's field names; unlike production, Value is read as
// a plain string rather than base64.
type Serializer struct{}

func NewSerializer() *Serializer { return &Serializer{} }

func (Serializer) ExtractFiles(raw []byte) ([]core.FileRef, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p.Files, nil
}

func (Serializer) DecodeResult(raw []byte) (core.ExecutionResult, error) {
	var p resultPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return core.ExecutionResult{}, err
	}
	return core.ExecutionResult{
		Runtime: secondsToDuration(p.Runtime),
		Imports: p.Imports,
		Value:   []byte(p.Value),
	}, nil
}

func (Serializer) DecodeException(raw []byte) (core.ExecutionException, error) {
	var p exceptionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return core.ExecutionException{}, err
	}
	return core.ExecutionException{Kind: p.Kind, Message: p.Message}, nil
}

var _ ports.Serializer = (*Serializer)(nil)
