package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// BufferDesc describes a buffer.
type BufferDesc struct {
	Label  string
	Size   uint64
	Stride uint32 // element stride for structured and vertex buffers
	Flags  BufferFlags
}

// Validate checks the descriptor for obvious mistakes.
func (d *BufferDesc) Validate() error {
	if d.Size == 0 {
		return fmt.Errorf("%w: buffer %q has zero size", ErrInvalidDesc, d.Label)
	}
	if d.Flags == 0 {
		return fmt.Errorf("%w: buffer %q has no usage flags", ErrInvalidDesc, d.Label)
	}
	return nil
}

// TextureDesc describes a texture.
type TextureDesc struct {
	Label            string
	Dimension        TextureDimension
	Format           gputypes.TextureFormat
	Width            uint32
	Height           uint32
	DepthOrArraySize uint32
	MipLevels        uint32
	SampleCount      uint32
	Flags            TextureFlags

	// InitialAccess is the state the texture is in after creation.
	InitialAccess ResourceAccess
}

// Validate checks the descriptor and fills in defaults for zero
// DepthOrArraySize, MipLevels and SampleCount.
func (d *TextureDesc) Validate() error {
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("%w: texture %q has zero extent %dx%d", ErrInvalidDesc, d.Label, d.Width, d.Height)
	}
	if d.Format == gputypes.TextureFormatUndefined {
		return fmt.Errorf("%w: texture %q has undefined format", ErrInvalidDesc, d.Label)
	}
	if d.DepthOrArraySize == 0 {
		d.DepthOrArraySize = 1
	}
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	if d.Flags&TextureDepthStencil != 0 && !IsDepthFormat(d.Format) {
		return fmt.Errorf("%w: texture %q is a depth-stencil target with color format", ErrInvalidDesc, d.Label)
	}
	return nil
}

// Extent returns the size of mip level 0 as a gputypes extent.
func (d *TextureDesc) Extent() gputypes.Extent3D {
	return gputypes.Extent3D{Width: d.Width, Height: d.Height, DepthOrArrayLayers: d.DepthOrArraySize}
}

// ShaderResourceViewDesc describes a read-only view. Set exactly one of
// Texture and Buffer.
type ShaderResourceViewDesc struct {
	Label string

	Texture    Texture
	Format     gputypes.TextureFormat // Undefined means the texture format
	FirstMip   uint32
	NumMips    uint32 // 0 means all remaining
	FirstLayer uint32
	NumLayers  uint32 // 0 means all remaining

	Buffer       Buffer
	FirstElement uint32
	NumElements  uint32
}

// UnorderedAccessViewDesc describes a read-write view. Set exactly one of
// Texture and Buffer.
type UnorderedAccessViewDesc struct {
	Label string

	Texture  Texture
	Format   gputypes.TextureFormat
	MipLevel uint32

	Buffer       Buffer
	FirstElement uint32
	NumElements  uint32
}

// RenderTargetViewDesc describes a color attachment view.
type RenderTargetViewDesc struct {
	Label      string
	Texture    Texture
	Format     gputypes.TextureFormat
	MipLevel   uint32
	ArrayLayer uint32
}

// DepthStencilViewDesc describes a depth/stencil attachment view.
type DepthStencilViewDesc struct {
	Label      string
	Texture    Texture
	MipLevel   uint32
	ArrayLayer uint32
	ReadOnly   bool
}

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	Label         string
	MinFilter     FilterMode
	MagFilter     FilterMode
	MipFilter     FilterMode
	AddressU      AddressMode
	AddressV      AddressMode
	AddressW      AddressMode
	MipLODBias    float32
	MaxAnisotropy uint32
	Compare       CompareFunc // CompareNever disables comparison
	MinLOD        float32
	MaxLOD        float32
}

// ShaderBinding declares one resource slot a shader reads or writes.
// Index is the slot within the binding type's range.
type ShaderBinding struct {
	Type  BindingType
	Index uint32
}

// ShaderDesc describes a shader. Source is WGSL; backends that need another
// representation translate it. Bindings lists every resource slot the shader
// uses; slots a shader declares but the caller never sets are bound to
// default resources.
type ShaderDesc struct {
	Label        string
	Stage        ShaderStage
	Source       string
	EntryPoint   string
	Bindings     []ShaderBinding
	NumConstants uint32 // 32-bit values set with Set32BitShaderConstants
}

// VertexElement describes one vertex attribute.
type VertexElement struct {
	Location    uint32
	Format      gputypes.VertexFormat
	Slot        uint32
	Offset      uint32
	Stride      uint32
	PerInstance bool
}

// RasterizerDesc is the fixed-function rasterizer state.
type RasterizerDesc struct {
	CullMode              CullMode
	FrontCounterClockwise bool
	Wireframe             bool
	DepthClip             bool
}

// DepthStencilDesc is the fixed-function depth state.
type DepthStencilDesc struct {
	DepthEnable bool
	DepthWrite  bool
	DepthFunc   CompareFunc
}

// BlendDesc is the blend state of one render target.
type BlendDesc struct {
	Enable bool
	// Premultiplied selects premultiplied-alpha over; otherwise straight
	// alpha over is used when Enable is set.
	Premultiplied bool
}

// GraphicsPipelineDesc describes a graphics pipeline.
type GraphicsPipelineDesc struct {
	Label               string
	VertexShader        Shader
	PixelShader         Shader
	InputLayout         []VertexElement
	Topology            PrimitiveTopology
	Rasterizer          RasterizerDesc
	DepthStencil        DepthStencilDesc
	Blend               []BlendDesc // one per render target, or empty
	RenderTargetFormats []gputypes.TextureFormat
	DepthStencilFormat  gputypes.TextureFormat
	SampleCount         uint32
}

// Validate checks the descriptor for obvious mistakes.
func (d *GraphicsPipelineDesc) Validate() error {
	if d.VertexShader == nil {
		return fmt.Errorf("%w: pipeline %q has no vertex shader", ErrInvalidDesc, d.Label)
	}
	if d.VertexShader.Stage() != StageVertex {
		return fmt.Errorf("%w: pipeline %q vertex shader has stage %s", ErrInvalidDesc, d.Label, d.VertexShader.Stage())
	}
	if d.PixelShader != nil && d.PixelShader.Stage() != StagePixel {
		return fmt.Errorf("%w: pipeline %q pixel shader has stage %s", ErrInvalidDesc, d.Label, d.PixelShader.Stage())
	}
	if len(d.RenderTargetFormats) > MaxRenderTargets {
		return fmt.Errorf("%w: pipeline %q has %d render targets, max %d", ErrInvalidDesc, d.Label, len(d.RenderTargetFormats), MaxRenderTargets)
	}
	if d.SampleCount == 0 {
		d.SampleCount = 1
	}
	if d.Topology == TopologyUndefined {
		d.Topology = TopologyTriangleList
	}
	return nil
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label  string
	Shader Shader
}

// Validate checks the descriptor for obvious mistakes.
func (d *ComputePipelineDesc) Validate() error {
	if d.Shader == nil {
		return fmt.Errorf("%w: pipeline %q has no compute shader", ErrInvalidDesc, d.Label)
	}
	if d.Shader.Stage() != StageCompute {
		return fmt.Errorf("%w: pipeline %q compute shader has stage %s", ErrInvalidDesc, d.Label, d.Shader.Stage())
	}
	return nil
}

// CopyBufferInfo is a buffer-to-buffer copy region.
type CopyBufferInfo struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// CopyTextureSubresource selects the source or destination of a region copy.
type CopyTextureSubresource struct {
	X, Y, Z    uint32
	MipLevel   uint32
	ArrayLayer uint32
}

// CopyTextureInfo is a texture-to-texture copy region.
type CopyTextureInfo struct {
	Src    CopyTextureSubresource
	Dst    CopyTextureSubresource
	Width  uint32
	Height uint32
	Depth  uint32
}

// RayTracingGeometryInstance places a geometry in a ray-tracing scene.
type RayTracingGeometryInstance struct {
	Geometry      RayTracingGeometry
	InstanceIndex uint32
	HitGroupIndex uint32
	Mask          uint8
	Transform     [12]float32 // row-major 3x4
}

// RayTracingShaderResources is a local or global binding table entry for
// ray-tracing shaders.
type RayTracingShaderResources struct {
	Identifier      string
	ConstantBuffers []Buffer
	ShaderResources []ShaderResourceView
	UnorderedAccess []UnorderedAccessView
	Samplers        []SamplerState
}

// Resources calls fn for every resource referenced by r.
func (r *RayTracingShaderResources) Resources(fn func(Resource)) {
	for _, b := range r.ConstantBuffers {
		if b != nil {
			fn(b)
		}
	}
	for _, v := range r.ShaderResources {
		if v != nil {
			fn(v)
		}
	}
	for _, v := range r.UnorderedAccess {
		if v != nil {
			fn(v)
		}
	}
	for _, s := range r.Samplers {
		if s != nil {
			fn(s)
		}
	}
}

// Limits shared by all backends.
const (
	MaxRenderTargets     = 8
	MaxVertexBufferSlots = 32
	MaxViewports         = 16
	MaxBindingsPerType   = 16
	MaxPushConstants     = 32
)
