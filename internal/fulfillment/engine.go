package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/device"
)

// Engine answers SYNC, QUERY and EXECUTE against the device registry.
// Per-device failure never fails a whole request; only a structurally
// invalid request is rejected outright, and that rejection happens
// before any device is touched.
type Engine struct {
	registry *device.Registry
}

func NewEngine(registry *device.Registry) *Engine {
	return &Engine{registry: registry}
}

// Handle processes the first intent of req on behalf of agentUserID.
func (e *Engine) Handle(ctx context.Context, agentUserID string, req *Request) (*Response, error) {
	if len(req.Inputs) == 0 {
		return nil, ErrNoIntent
	}

	input := req.Inputs[0]
	log.Debug().Str("intent", input.Intent).Str("request_id", req.RequestID).Msg("Handling fulfillment request")

	var payload any
	switch input.Intent {
	case IntentSync:
		payload = e.sync(agentUserID)
	case IntentQuery:
		var q QueryRequest
		if err := json.Unmarshal(input.Payload, &q); err != nil {
			return nil, fmt.Errorf("decode query payload: %w", err)
		}
		payload = e.query(ctx, q)
	case IntentExecute:
		var ex ExecuteRequest
		if err := json.Unmarshal(input.Payload, &ex); err != nil {
			return nil, fmt.Errorf("decode execute payload: %w", err)
		}
		batches, err := decodeBatches(ex)
		if err != nil {
			return nil, err
		}
		payload = e.execute(ctx, batches)
	default:
		return nil, fmt.Errorf("unsupported intent %q", input.Intent)
	}

	return &Response{RequestID: req.RequestID, Payload: payload}, nil
}

// sync describes every device that implements the assistant-facing
// capability. Others are silently left out of the descriptor list.
func (e *Engine) sync(agentUserID string) SyncPayload {
	devs := e.registry.Devices()

	descriptors := make([]*SyncDevice, len(devs))
	var wg sync.WaitGroup
	for i, d := range devs {
		fd, ok := device.As[Device](d)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, fd Device) {
			defer wg.Done()
			desc := describe(fd)
			descriptors[i] = &desc
		}(i, fd)
	}
	wg.Wait()

	payload := SyncPayload{AgentUserID: agentUserID, Devices: make([]SyncDevice, 0, len(devs))}
	for _, desc := range descriptors {
		if desc != nil {
			payload.Devices = append(payload.Devices, *desc)
		}
	}
	return payload
}

// describe builds one discovery descriptor.
func describe(fd Device) SyncDevice {
	desc := SyncDevice{
		ID:     fd.ID(),
		Type:   fd.Type(),
		Traits: deviceTraits(fd),
		Name:   fd.Name(),
	}
	if r, ok := device.As[StateReporter](fd); ok {
		desc.WillReportState = r.WillReportState()
	}
	if r, ok := device.As[RoomHinter](fd); ok {
		desc.RoomHint = r.RoomHint()
	}
	if p, ok := device.As[InfoProvider](fd); ok {
		info := p.DeviceInfo()
		desc.DeviceInfo = &info
	}

	attrs, err := deviceAttributes(fd)
	if err != nil {
		log.Warn().Err(err).Str("device", fd.ID()).Msg("Failed to collect device attributes")
	}
	desc.Attributes = attrs
	return desc
}

// query reports the state of every requested id. Devices are queried
// concurrently; the entry order in the reply is keyed by id anyway.
func (e *Engine) query(ctx context.Context, req QueryRequest) QueryPayload {
	type result struct {
		id    string
		entry QueryDevice
	}
	results := make([]result, len(req.Devices))

	var wg sync.WaitGroup
	for i, ref := range req.Devices {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = result{id: id, entry: e.queryDevice(ctx, id)}
		}(i, ref.ID)
	}
	wg.Wait()

	payload := QueryPayload{Devices: make(map[string]QueryDevice, len(results))}
	for _, res := range results {
		payload.Devices[res.id] = res.entry
	}
	return payload
}

// queryDevice builds the entry for one requested id. Unknown ids get an
// offline entry with the deviceNotFound code instead of failing the
// request.
func (e *Engine) queryDevice(ctx context.Context, id string) QueryDevice {
	d, ok := e.registry.Get(id)
	if !ok {
		return QueryDevice{Status: StatusOffline, ErrorCode: string(ErrDeviceNotFound)}
	}
	fd, ok := device.As[Device](d)
	if !ok {
		return QueryDevice{Status: StatusOffline, ErrorCode: string(ErrDeviceNotFound)}
	}

	entry := QueryDevice{Online: true, Status: StatusSuccess}
	if !fd.Online(ctx) {
		entry.Online = false
		entry.Status = StatusOffline
	}

	state, err := deviceState(ctx, fd)
	if err != nil {
		log.Warn().Err(err).Str("device", id).Msg("Failed to collect device state")
	}
	entry.State = state
	return entry
}

// decodedBatch pairs target ids with pre-decoded invocations.
type decodedBatch struct {
	ids         []string
	invocations []invocation
}

// decodeBatches validates every command name and its params up front; a
// malformed execution rejects the whole request before any device runs.
func decodeBatches(req ExecuteRequest) ([]decodedBatch, error) {
	batches := make([]decodedBatch, 0, len(req.Commands))
	for _, batch := range req.Commands {
		db := decodedBatch{ids: make([]string, 0, len(batch.Devices))}
		for _, ref := range batch.Devices {
			db.ids = append(db.ids, ref.ID)
		}
		for _, exec := range batch.Execution {
			spec, ok := commandIndex[exec.Command]
			if !ok {
				return nil, fmt.Errorf("unsupported command %q", exec.Command)
			}
			params := exec.Params
			if len(params) == 0 {
				params = json.RawMessage(`{}`)
			}
			inv, err := spec.decode(params)
			if err != nil {
				return nil, fmt.Errorf("decode %s params: %w", exec.Command, err)
			}
			db.invocations = append(db.invocations, inv)
		}
		batches = append(batches, db)
	}
	return batches, nil
}

// execute runs every batch concurrently and concatenates their result
// entries in submission order.
func (e *Engine) execute(ctx context.Context, batches []decodedBatch) ExecutePayload {
	perBatch := make([][]CommandResult, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch decodedBatch) {
			defer wg.Done()
			perBatch[i] = e.executeBatch(ctx, batch)
		}(i, batch)
	}
	wg.Wait()

	payload := ExecutePayload{Commands: make([]CommandResult, 0)}
	for _, results := range perBatch {
		payload.Commands = append(payload.Commands, results...)
	}
	return payload
}

// outcome of one device in one batch.
type outcome struct {
	id    string
	ran   bool
	state map[string]any
	err   error
}

func (e *Engine) executeBatch(ctx context.Context, batch decodedBatch) []CommandResult {
	outcomes := make([]outcome, len(batch.ids))

	var wg sync.WaitGroup
	for i, id := range batch.ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			outcomes[i] = e.executeDevice(ctx, id, batch.invocations)
		}(i, id)
	}
	wg.Wait()

	return bucketize(outcomes)
}

// executeDevice applies the batch's invocations to one device in order,
// short-circuiting on the first failure. Offline devices run nothing.
func (e *Engine) executeDevice(ctx context.Context, id string, invocations []invocation) outcome {
	d, ok := e.registry.Get(id)
	if !ok {
		return outcome{id: id, err: ErrDeviceNotFound}
	}
	fd, ok := device.As[Device](d)
	if !ok {
		return outcome{id: id, err: ErrDeviceNotFound}
	}
	if !fd.Online(ctx) {
		return outcome{id: id}
	}

	for _, inv := range invocations {
		if err := inv(ctx, fd); err != nil {
			log.Debug().Err(err).Str("device", id).Msg("Command failed")
			return outcome{id: id, err: err}
		}
	}

	state, err := deviceState(ctx, fd)
	if err != nil {
		log.Warn().Err(err).Str("device", id).Msg("Failed to collect state after execute")
	}
	return outcome{id: id, ran: true, state: state}
}

// bucketize groups outcomes into one SUCCESS entry, one OFFLINE entry
// and one entry per error code. Empty buckets are dropped; error codes
// keep first-occurrence order.
func bucketize(outcomes []outcome) []CommandResult {
	success := CommandResult{Status: StatusSuccess, States: &States{Online: true}}
	offline := CommandResult{Status: StatusOffline, States: &States{Online: false}}
	var errOrder []string
	errBuckets := make(map[string]*CommandResult)

	for _, o := range outcomes {
		switch {
		case o.err != nil:
			code, status := errorCode(o.err)
			bucket, ok := errBuckets[code]
			if !ok {
				bucket = &CommandResult{Status: status, ErrorCode: code}
				errBuckets[code] = bucket
				errOrder = append(errOrder, code)
			}
			bucket.IDs = append(bucket.IDs, o.id)
		case o.ran:
			success.IDs = append(success.IDs, o.id)
			for k, v := range o.state {
				if success.States.State == nil {
					success.States.State = make(map[string]any, len(o.state))
				}
				success.States.State[k] = v
			}
		default:
			offline.IDs = append(offline.IDs, o.id)
		}
	}

	results := make([]CommandResult, 0, 2+len(errOrder))
	if len(success.IDs) > 0 {
		results = append(results, success)
	}
	if len(offline.IDs) > 0 {
		results = append(results, offline)
	}
	for _, code := range errOrder {
		results = append(results, *errBuckets[code])
	}
	return results
}
