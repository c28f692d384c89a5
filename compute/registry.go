package compute

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Device names used by the bundled implementations.
const (
	DeviceWGPU = "wgpu"
	DeviceCPU  = "cpu"
)

// DeviceFactory opens a device.
type DeviceFactory func() (Device, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]DeviceFactory)

	// Priority order for device selection (first that opens wins).
	devicePriority = []string{DeviceWGPU, DeviceCPU}
)

// Register registers a device factory under name, replacing any previous
// registration. Typically called from init functions.
func Register(name string, factory DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a device factory. Useful in tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered device names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenDevice opens the device registered under name.
func OpenDevice(name string) (Device, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q not registered", ErrNoDevice, name)
	}
	d, err := factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoDevice, name, err)
	}
	return d, nil
}

// DefaultDevice opens the first device in priority order (wgpu, then cpu,
// then any other registered name alphabetically) whose factory succeeds.
// The error lists every failed attempt.
func DefaultDevice() (Device, error) {
	registryMu.RLock()
	order := make([]string, 0, len(factories))
	for _, name := range devicePriority {
		if _, ok := factories[name]; ok {
			order = append(order, name)
		}
	}
	var rest []string
	for name := range factories {
		if !isPriority(name) {
			rest = append(rest, name)
		}
	}
	registryMu.RUnlock()

	sort.Strings(rest)
	order = append(order, rest...)

	var errs []error
	for _, name := range order {
		d, err := OpenDevice(name)
		if err == nil {
			return d, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no devices registered", ErrNoDevice)
	}
	return nil, errors.Join(errs...)
}

func isPriority(name string) bool {
	for _, p := range devicePriority {
		if p == name {
			return true
		}
	}
	return false
}
