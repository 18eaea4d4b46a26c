package fulfillment

import (
	"encoding/json"
	"errors"
)

// Intents understood by the engine.
const (
	IntentSync    = "action.devices.SYNC"
	IntentQuery   = "action.devices.QUERY"
	IntentExecute = "action.devices.EXECUTE"
)

// ErrNoIntent rejects requests whose inputs array is empty.
var ErrNoIntent = errors.New("request contains no intent")

// Request is the fulfillment envelope. Only the first input is acted on.
type Request struct {
	RequestID string  `json:"requestId"`
	Inputs    []Input `json:"inputs"`
}

// Input carries one intent and its payload.
type Input struct {
	Intent  string          `json:"intent"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DeviceRef names a device by id.
type DeviceRef struct {
	ID string `json:"id"`
}

// QueryRequest lists the devices whose state is wanted.
type QueryRequest struct {
	Devices []DeviceRef `json:"devices"`
}

// ExecuteRequest is a list of command batches.
type ExecuteRequest struct {
	Commands []CommandBatch `json:"commands"`
}

// CommandBatch applies every execution to every listed device.
type CommandBatch struct {
	Devices   []DeviceRef `json:"devices"`
	Execution []Execution `json:"execution"`
}

// Execution is one command invocation in wire form.
type Execution struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}
