package fulfillment

import "encoding/json"

// Status of a query or execute result entry.
type Status string

const (
	StatusSuccess    Status = "SUCCESS"
	StatusPending    Status = "PENDING"
	StatusOffline    Status = "OFFLINE"
	StatusExceptions Status = "EXCEPTIONS"
	StatusError      Status = "ERROR"
)

// Response is the reply envelope. Payload is a SyncPayload, QueryPayload
// or ExecutePayload depending on the intent.
type Response struct {
	RequestID string `json:"requestId"`
	Payload   any    `json:"payload"`
}

// SyncPayload lists every discoverable device.
type SyncPayload struct {
	AgentUserID string       `json:"agentUserId"`
	ErrorCode   string       `json:"errorCode,omitempty"`
	DebugString string       `json:"debugString,omitempty"`
	Devices     []SyncDevice `json:"devices"`
}

// SyncDevice is one discovery descriptor.
type SyncDevice struct {
	ID              string          `json:"id"`
	Type            DeviceType      `json:"type"`
	Traits          []Trait         `json:"traits"`
	Name            Name            `json:"name"`
	WillReportState bool            `json:"willReportState"`
	RoomHint        string          `json:"roomHint,omitempty"`
	DeviceInfo      *Info           `json:"deviceInfo,omitempty"`
	Attributes      json.RawMessage `json:"attributes,omitempty"`
}

// QueryPayload maps requested ids to their state.
type QueryPayload struct {
	ErrorCode   string                 `json:"errorCode,omitempty"`
	DebugString string                 `json:"debugString,omitempty"`
	Devices     map[string]QueryDevice `json:"devices"`
}

// QueryDevice is one device's query entry. On the wire the state keys
// sit flattened next to the bookkeeping fields.
type QueryDevice struct {
	Online    bool
	Status    Status
	ErrorCode string
	State     map[string]any
}

func (d QueryDevice) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.State)+3)
	for k, v := range d.State {
		m[k] = v
	}
	m["online"] = d.Online
	m["status"] = d.Status
	if d.ErrorCode != "" {
		m["errorCode"] = d.ErrorCode
	}
	return json.Marshal(m)
}

// ExecutePayload concatenates the per-batch result entries.
type ExecutePayload struct {
	ErrorCode   string          `json:"errorCode,omitempty"`
	DebugString string          `json:"debugString,omitempty"`
	Commands    []CommandResult `json:"commands"`
}

// CommandResult groups the ids of one batch that share an outcome.
type CommandResult struct {
	IDs       []string `json:"ids"`
	Status    Status   `json:"status"`
	ErrorCode string   `json:"errorCode,omitempty"`
	States    *States  `json:"states,omitempty"`
}

// States carries the online flag plus flattened device state.
type States struct {
	Online bool
	State  map[string]any
}

func (s States) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.State)+1)
	for k, v := range s.State {
		m[k] = v
	}
	m["online"] = s.Online
	return json.Marshal(m)
}
