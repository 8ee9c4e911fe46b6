package rhi

import "time"

// Device creates resources and owns the immediate [Context] of one GPU.
//
// Resource creation is safe for concurrent use. Resources returned by a
// Device start with one reference owned by the caller and may only be used
// with the Device that created them.
type Device interface {
	// Name identifies the backend and adapter, e.g. "vulkan (NVIDIA ...)".
	Name() string

	// Context returns the immediate context of the device.
	Context() Context

	// CreateBuffer creates a buffer. initial may be nil; otherwise it is
	// uploaded before the buffer is first used.
	CreateBuffer(desc BufferDesc, initial []byte) (Buffer, error)

	// CreateTexture creates a texture. initial may be nil; otherwise it holds
	// tightly packed texels of mip level 0.
	CreateTexture(desc TextureDesc, initial []byte) (Texture, error)

	CreateShaderResourceView(desc ShaderResourceViewDesc) (ShaderResourceView, error)
	CreateUnorderedAccessView(desc UnorderedAccessViewDesc) (UnorderedAccessView, error)
	CreateRenderTargetView(desc RenderTargetViewDesc) (RenderTargetView, error)
	CreateDepthStencilView(desc DepthStencilViewDesc) (DepthStencilView, error)
	CreateSamplerState(desc SamplerDesc) (SamplerState, error)
	CreateShader(desc ShaderDesc) (Shader, error)
	CreateGraphicsPipelineState(desc GraphicsPipelineDesc) (GraphicsPipelineState, error)
	CreateComputePipelineState(desc ComputePipelineDesc) (ComputePipelineState, error)

	// CreateTimestampQuery creates a query with count begin/end pairs.
	CreateTimestampQuery(count uint32) (TimestampQuery, error)

	// ReadTimestamps returns the elapsed GPU time of every pair in q. The
	// work that wrote the timestamps must have completed.
	ReadTimestamps(q TimestampQuery) ([]time.Duration, error)

	// WaitIdle blocks until the GPU has finished all submitted work.
	WaitIdle() error

	// Close waits for the GPU, releases device-owned objects and closes the
	// device. Resources still referenced by the caller must not be used
	// afterwards.
	Close() error
}

// DeviceFactory opens a device for a registered backend.
type DeviceFactory func() (Device, error)
