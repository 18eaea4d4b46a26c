package device

// Device is the minimal contract every registered device fulfills.
// Everything beyond the identifier is an optional capability that
// callers discover through As.
type Device interface {
	ID() string
}

// As reports whether d implements capability C and returns the narrowed
// view. It is a plain type assertion: total, side effect free and stable
// for the lifetime of the device.
func As[C any](d Device) (C, bool) {
	c, ok := d.(C)
	return c, ok
}
