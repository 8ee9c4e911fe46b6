package rhi

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]DeviceFactory)
)

// Register makes a backend available under name. Backend packages call it
// from init, so importing the package for side effects is enough:
//
//	import _ "github.com/gogpu/rhi/vulkan/vkdriver"
//
//	dev, err := rhi.OpenDevice("vulkan")
//
// Register panics if factory is nil or name is already registered.
func Register(name string, factory DeviceFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("rhi: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("rhi: Register called twice for " + name)
	}
	factories[name] = factory
}

// Unregister removes a backend. Unknown names are ignored.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// OpenDevice opens a device on the named backend.
func OpenDevice(name string) (Device, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (forgotten import?)", ErrBackendNotFound, name)
	}
	dev, err := factory()
	if err != nil {
		return nil, fmt.Errorf("rhi: open %s: %w", name, err)
	}
	Logger().Info("rhi: device opened", "backend", name, "device", dev.Name())
	return dev, nil
}

// MustOpenDevice is like OpenDevice but panics on error.
func MustOpenDevice(name string) Device {
	dev, err := OpenDevice(name)
	if err != nil {
		panic(err)
	}
	return dev
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a backend is registered under name.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Count returns the number of registered backends.
func Count() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(factories)
}
