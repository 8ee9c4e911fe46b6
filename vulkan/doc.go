// Package vulkan implements the RHI on top of Vulkan.
//
// The package is pure Go. Every GPU call goes through the [Driver]
// interface; package vkdriver provides the implementation over the Vulkan C
// API and tests substitute an in-memory fake.
//
// # Structure
//
// A [Device] owns one immediate [Context], one [cmdlist.CommandQueue]
// bound to it, and the per-device caches: the [RenderPassCache], the
// [FramebufferCache] and the [DescriptorSetCache]. The context records into
// a ring of command buffers; each [Context.Begin] waits for the oldest one,
// recycles descriptor pools and destroys released objects the GPU no
// longer uses.
//
// Binding state lives in a [ContextState]. Setters only compare and mark
// categories dirty; the driver calls happen in BindGraphicsState and
// BindComputeState right before a draw or dispatch.
//
// # Shader interface
//
// Shaders are WGSL compiled to SPIR-V. Each shader stage uses its own
// descriptor set: set 0 for vertex, 1 hull, 2 domain, 3 geometry and 4
// pixel in graphics pipelines, set 0 for compute pipelines. Within a set,
// binding numbers encode the slot kind and index:
//
//	constant buffer i   @binding(0 + i)
//	SRV i               @binding(16 + i)
//	UAV i               @binding(32 + i)
//	sampler i           @binding(48 + i)
//
// 32-bit constants are a single push constant block visible to all stages.
//
// [cmdlist.CommandQueue]: https://pkg.go.dev/github.com/gogpu/rhi/cmdlist#CommandQueue
package vulkan
