package vulkan

import "errors"

var (
	// ErrDescriptorAllocation is returned when a descriptor set cannot be
	// allocated even from a fresh pool.
	ErrDescriptorAllocation = errors.New("vulkan: descriptor set allocation failed")

	// ErrNoPipeline is reported when a draw or dispatch is issued without a
	// pipeline state for its bind point.
	ErrNoPipeline = errors.New("vulkan: no pipeline state bound")

	// ErrNotRecording is returned by End when Begin was not called.
	ErrNotRecording = errors.New("vulkan: context is not recording")

	// ErrAlreadyRecording is returned by Begin when the context is already
	// recording.
	ErrAlreadyRecording = errors.New("vulkan: context is already recording")
)
