package device

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateID is returned by Register when another device already
// holds the identifier.
var ErrDuplicateID = errors.New("duplicate device id")

// Registry maps identifiers to device handles. It is populated during
// startup and read-mostly afterwards. The registry never hands out
// exclusive access; devices guard their own mutable state.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Device
}

func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]Device)}
}

// Register inserts a device under its identifier.
func (r *Registry) Register(d Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := d.ID()
	if _, exists := r.devices[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.devices[id] = d
	return nil
}

// Get returns the device registered under id.
func (r *Registry) Get(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	return d, ok
}

// Devices returns a snapshot of all registered devices sorted by id.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.devices)
}
