// Package wgpu implements the RHI on top of the gogpu/wgpu hardware
// abstraction layer.
//
// Open creates a hal instance of the configured backend (Vulkan by
// default), picks an adapter and opens it. WithHalDevice wraps a device
// the application already owns instead, which is how tests run the backend
// on the hal noop device.
//
// # Execution
//
// Each Begin/End batch records into a pooled hal command encoder and is
// submitted as one command buffer. The queue's completed submission index
// tells which batches are done; Begin polls it while WithBufferedFrames
// batches are in flight, and Flush and WaitIdle wait for the device to go
// idle. Released resources are destroyed only after the batch that last
// could use them completes.
//
// The context tracks one usage per texture and buffer and inserts hal
// transitions before each command that needs another. Draws open a render
// pass over the current targets on demand; copies, clears, dispatches and
// transitions close it.
//
// # Shader interface
//
// Shaders are WGSL. Vertex and compute shaders bind in @group(0), pixel
// shaders in @group(1). Binding numbers encode the slot kind and index:
//
//	constant buffer i   @binding(0 + i)
//	SRV i               @binding(16 + i)
//	UAV i               @binding(32 + i)
//	sampler i           @binding(48 + i)
//	32-bit constants    @binding(64), a uniform block
//
// Storage textures are declared rgba8unorm read_write.
package wgpu
