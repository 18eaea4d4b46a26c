package fulfillment

import "errors"

// DeviceError holds the blocking error codes surfaced through QUERY and
// EXECUTE. Entries grouped under one of these codes carry the ERROR
// status.
type DeviceError string

const (
	ErrDeviceNotFound     DeviceError = "deviceNotFound"
	ErrDeviceOffline      DeviceError = "deviceOffline"
	ErrActionNotAvailable DeviceError = "actionNotAvailable"
	ErrTransientError     DeviceError = "transientError"
)

func (e DeviceError) Error() string { return string(e) }

// DeviceException is the non-blocking error category; entries grouped
// under one of its codes carry the EXCEPTIONS status.
type DeviceException string

func (e DeviceException) Error() string { return string(e) }

// errorCode extracts the wire code and result status from err. Anything
// that is neither a DeviceError nor a DeviceException degrades to
// transientError so unexpected failures stay inside the protocol.
func errorCode(err error) (string, Status) {
	var de DeviceError
	if errors.As(err, &de) {
		return string(de), StatusError
	}
	var dx DeviceException
	if errors.As(err, &dx) {
		return string(dx), StatusExceptions
	}
	return string(ErrTransientError), StatusError
}
