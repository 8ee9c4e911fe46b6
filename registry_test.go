package rhi

import (
	"errors"
	"reflect"
	"testing"
)

// stubDevice implements only Name; any other method panics.
type stubDevice struct {
	Device
	name string
}

func (d *stubDevice) Name() string { return d.name }

// resetRegistry clears all registered backends for test isolation.
func resetRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := factories
	factories = make(map[string]DeviceFactory)
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		factories = saved
		registryMu.Unlock()
	})
}

func TestRegisterAndOpenDevice(t *testing.T) {
	resetRegistry(t)

	Register("test", func() (Device, error) { return &stubDevice{name: "test device"}, nil })

	dev, err := OpenDevice("test")
	if err != nil {
		t.Fatalf("OpenDevice() error = %v", err)
	}
	if got := dev.Name(); got != "test device" {
		t.Errorf("Name() = %q, want %q", got, "test device")
	}
}

func TestOpenDeviceUnknown(t *testing.T) {
	resetRegistry(t)

	_, err := OpenDevice("missing")
	if !errors.Is(err, ErrBackendNotFound) {
		t.Errorf("OpenDevice() error = %v, want ErrBackendNotFound", err)
	}
}

func TestOpenDeviceFactoryError(t *testing.T) {
	resetRegistry(t)

	errNoGPU := errors.New("no adapter")
	Register("broken", func() (Device, error) { return nil, errNoGPU })

	_, err := OpenDevice("broken")
	if !errors.Is(err, errNoGPU) {
		t.Errorf("OpenDevice() error = %v, want wrapped %v", err, errNoGPU)
	}
}

func TestRegisterPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"nil factory", func() { Register("nil", nil) }},
		{"duplicate", func() {
			f := func() (Device, error) { return &stubDevice{}, nil }
			Register("dup", f)
			Register("dup", f)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetRegistry(t)
			defer func() {
				if recover() == nil {
					t.Error("Register did not panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestMustOpenDevicePanics(t *testing.T) {
	resetRegistry(t)
	defer func() {
		if recover() == nil {
			t.Error("MustOpenDevice did not panic for unknown backend")
		}
	}()
	MustOpenDevice("missing")
}

func TestBackendsSortedAndUnregister(t *testing.T) {
	resetRegistry(t)

	f := func() (Device, error) { return &stubDevice{}, nil }
	for _, name := range []string{"vulkan", "null", "wgpu"} {
		Register(name, f)
	}

	if got, want := Backends(), []string{"null", "vulkan", "wgpu"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Backends() = %v, want %v", got, want)
	}
	if Count() != 3 {
		t.Errorf("Count() = %d, want 3", Count())
	}

	Unregister("vulkan")
	Unregister("unknown")
	if IsRegistered("vulkan") {
		t.Error("IsRegistered(vulkan) = true after Unregister")
	}
	if !IsRegistered("null") {
		t.Error("IsRegistered(null) = false, want true")
	}
}
