package rhi

import "errors"

// Sentinel errors shared by all backends. Backends wrap these with
// fmt.Errorf("...: %w", err) so callers can test with errors.Is.
var (
	// ErrBackendNotFound is returned by OpenDevice for an unregistered name.
	ErrBackendNotFound = errors.New("rhi: backend not registered")

	// ErrDeviceClosed is returned when a closed device is used.
	ErrDeviceClosed = errors.New("rhi: device is closed")

	// ErrInvalidDesc is returned when a resource descriptor is malformed.
	ErrInvalidDesc = errors.New("rhi: invalid descriptor")

	// ErrUnsupported is returned when a backend cannot provide a feature.
	ErrUnsupported = errors.New("rhi: not supported by backend")

	// ErrForeignResource is returned when a resource created by one backend
	// is handed to another.
	ErrForeignResource = errors.New("rhi: resource belongs to another backend")
)
