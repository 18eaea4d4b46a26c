package fulfillment

import "context"

// Device is the assistant-facing capability. Any registered device
// implementing it becomes discoverable through SYNC; everything else
// about its protocol behavior is derived from the reporting and
// actionable capabilities the device also implements, so devices never
// touch the wire format themselves.
type Device interface {
	ID() string
	Name() Name
	Type() DeviceType
	Online(ctx context.Context) bool
}

// RoomHinter optionally places the device in a room.
type RoomHinter interface {
	RoomHint() string
}

// InfoProvider optionally describes the physical device.
type InfoProvider interface {
	DeviceInfo() Info
}

// StateReporter overrides the will-report-state flag in the SYNC
// descriptor. Without it the descriptor reports false: there is no push
// channel toward the assistant.
type StateReporter interface {
	WillReportState() bool
}

// Name holds the display name plus optional alternatives.
type Name struct {
	DefaultNames []string `json:"defaultNames,omitempty"`
	Name         string   `json:"name"`
	Nicknames    []string `json:"nicknames,omitempty"`
}

// Info carries manufacturer data for the SYNC descriptor.
type Info struct {
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	HwVersion    string `json:"hwVersion,omitempty"`
	SwVersion    string `json:"swVersion,omitempty"`
}

// DeviceType tags the device category in the SYNC descriptor.
type DeviceType string

const (
	TypeKettle      DeviceType = "action.devices.types.KETTLE"
	TypeOutlet      DeviceType = "action.devices.types.OUTLET"
	TypeLight       DeviceType = "action.devices.types.LIGHT"
	TypeScene       DeviceType = "action.devices.types.SCENE"
	TypeAirPurifier DeviceType = "action.devices.types.AIRPURIFIER"
	TypeDoor        DeviceType = "action.devices.types.DOOR"
	TypeWindow      DeviceType = "action.devices.types.WINDOW"
	TypeDrawer      DeviceType = "action.devices.types.DRAWER"
)
