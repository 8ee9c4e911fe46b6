package wgpu

import "errors"

var (
	// ErrBackendUnavailable is returned by Open when the requested hal
	// backend is not linked into the binary.
	ErrBackendUnavailable = errors.New("wgpu: hal backend not available")

	// ErrNoAdapter is returned by Open when the instance exposes no adapter.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter found")

	// ErrWaitTimeout is returned when a submission does not complete
	// within the wait timeout.
	ErrWaitTimeout = errors.New("wgpu: wait for submission timed out")

	// ErrNoPipeline is reported when a draw or dispatch is issued without a
	// pipeline state for its bind point.
	ErrNoPipeline = errors.New("wgpu: no pipeline state bound")

	// ErrNotRecording is returned by End when Begin was not called.
	ErrNotRecording = errors.New("wgpu: context is not recording")

	// ErrAlreadyRecording is returned by Begin when the context is already
	// recording.
	ErrAlreadyRecording = errors.New("wgpu: context is already recording")
)
