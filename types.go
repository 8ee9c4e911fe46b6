package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ResourceAccess is the state a resource is in from the GPU's point of view.
// Transitions between states are recorded explicitly with
// TransitionTexture and TransitionBuffer.
type ResourceAccess uint8

const (
	AccessCommon ResourceAccess = iota
	AccessVertexAndConstantBuffer
	AccessIndexBuffer
	AccessRenderTarget
	AccessUnorderedAccess
	AccessDepthWrite
	AccessDepthRead
	AccessNonPixelShaderResource
	AccessPixelShaderResource
	AccessCopyDest
	AccessCopySource
	AccessResolveDest
	AccessResolveSource
	AccessRayTracingAccelerationStructure
	AccessShadingRateSource
	AccessPresent
	AccessGenericRead
)

var resourceAccessNames = [...]string{
	AccessCommon:                          "Common",
	AccessVertexAndConstantBuffer:         "VertexAndConstantBuffer",
	AccessIndexBuffer:                     "IndexBuffer",
	AccessRenderTarget:                    "RenderTarget",
	AccessUnorderedAccess:                 "UnorderedAccess",
	AccessDepthWrite:                      "DepthWrite",
	AccessDepthRead:                       "DepthRead",
	AccessNonPixelShaderResource:          "NonPixelShaderResource",
	AccessPixelShaderResource:             "PixelShaderResource",
	AccessCopyDest:                        "CopyDest",
	AccessCopySource:                      "CopySource",
	AccessResolveDest:                     "ResolveDest",
	AccessResolveSource:                   "ResolveSource",
	AccessRayTracingAccelerationStructure: "RayTracingAccelerationStructure",
	AccessShadingRateSource:               "ShadingRateSource",
	AccessPresent:                         "Present",
	AccessGenericRead:                     "GenericRead",
}

// String returns the name of the access state.
func (a ResourceAccess) String() string {
	if int(a) < len(resourceAccessNames) {
		return resourceAccessNames[a]
	}
	return fmt.Sprintf("ResourceAccess(%d)", a)
}

// IndexFormat is the element type of an index buffer.
type IndexFormat uint8

const (
	IndexFormatUnknown IndexFormat = iota
	IndexFormatUint16
	IndexFormatUint32
)

// String returns the name of the index format.
func (f IndexFormat) String() string {
	switch f {
	case IndexFormatUint16:
		return "Uint16"
	case IndexFormatUint32:
		return "Uint32"
	default:
		return "Unknown"
	}
}

// Size returns the size of one index in bytes, or 0 for IndexFormatUnknown.
func (f IndexFormat) Size() uint32 {
	switch f {
	case IndexFormatUint16:
		return 2
	case IndexFormatUint32:
		return 4
	default:
		return 0
	}
}

// PrimitiveTopology selects how vertices are assembled into primitives.
type PrimitiveTopology uint8

const (
	TopologyUndefined PrimitiveTopology = iota
	TopologyPointList
	TopologyLineList
	TopologyLineStrip
	TopologyTriangleList
	TopologyTriangleStrip
)

var topologyNames = [...]string{
	TopologyUndefined:     "Undefined",
	TopologyPointList:     "PointList",
	TopologyLineList:      "LineList",
	TopologyLineStrip:     "LineStrip",
	TopologyTriangleList:  "TriangleList",
	TopologyTriangleStrip: "TriangleStrip",
}

// String returns the name of the topology.
func (t PrimitiveTopology) String() string {
	if int(t) < len(topologyNames) {
		return topologyNames[t]
	}
	return fmt.Sprintf("PrimitiveTopology(%d)", t)
}

// ShadingRate is a variable-rate-shading tile size.
type ShadingRate uint8

const (
	ShadingRate1x1 ShadingRate = iota
	ShadingRate1x2
	ShadingRate2x1
	ShadingRate2x2
	ShadingRate2x4
	ShadingRate4x2
	ShadingRate4x4
)

// String returns the tile size, e.g. "2x2".
func (r ShadingRate) String() string {
	switch r {
	case ShadingRate1x1:
		return "1x1"
	case ShadingRate1x2:
		return "1x2"
	case ShadingRate2x1:
		return "2x1"
	case ShadingRate2x2:
		return "2x2"
	case ShadingRate2x4:
		return "2x4"
	case ShadingRate4x2:
		return "4x2"
	case ShadingRate4x4:
		return "4x4"
	default:
		return fmt.Sprintf("ShadingRate(%d)", r)
	}
}

// ShaderStage identifies a pipeline stage a shader runs in.
type ShaderStage uint8

const (
	StageVertex ShaderStage = iota
	StageHull
	StageDomain
	StageGeometry
	StagePixel
	StageCompute
	StageRayGen
	StageRayAnyHit
	StageRayClosestHit
	StageRayMiss

	// NumGraphicsStages is the number of stages that take part in a
	// graphics or compute pipeline layout (Vertex..Compute).
	NumGraphicsStages = int(StageCompute) + 1
)

var shaderStageNames = [...]string{
	StageVertex:        "Vertex",
	StageHull:          "Hull",
	StageDomain:        "Domain",
	StageGeometry:      "Geometry",
	StagePixel:         "Pixel",
	StageCompute:       "Compute",
	StageRayGen:        "RayGen",
	StageRayAnyHit:     "RayAnyHit",
	StageRayClosestHit: "RayClosestHit",
	StageRayMiss:       "RayMiss",
}

// String returns the name of the stage.
func (s ShaderStage) String() string {
	if int(s) < len(shaderStageNames) {
		return shaderStageNames[s]
	}
	return fmt.Sprintf("ShaderStage(%d)", s)
}

// IsRayTracing reports whether s is one of the ray-tracing stages.
func (s ShaderStage) IsRayTracing() bool {
	return s >= StageRayGen
}

// BindingType is the kind of resource a shader binding slot expects.
type BindingType uint8

const (
	BindingConstantBuffer BindingType = iota
	BindingTextureSRV
	BindingBufferSRV
	BindingTextureUAV
	BindingBufferUAV
	BindingSampler
)

var bindingTypeNames = [...]string{
	BindingConstantBuffer: "ConstantBuffer",
	BindingTextureSRV:     "TextureSRV",
	BindingBufferSRV:      "BufferSRV",
	BindingTextureUAV:     "TextureUAV",
	BindingBufferUAV:      "BufferUAV",
	BindingSampler:        "Sampler",
}

// String returns the name of the binding type.
func (b BindingType) String() string {
	if int(b) < len(bindingTypeNames) {
		return bindingTypeNames[b]
	}
	return fmt.Sprintf("BindingType(%d)", b)
}

// BufferFlags describe how a buffer may be used.
type BufferFlags uint32

const (
	BufferVertex BufferFlags = 1 << iota
	BufferIndex
	BufferConstant
	BufferShaderResource
	BufferUnorderedAccess
	BufferCopySrc
	BufferCopyDst
)

// TextureFlags describe how a texture may be used.
type TextureFlags uint32

const (
	TextureRenderTarget TextureFlags = 1 << iota
	TextureDepthStencil
	TextureShaderResource
	TextureUnorderedAccess
	TextureCopySrc
	TextureCopyDst
	TextureShadingRate
)

// TextureDimension is the dimensionality of a texture.
type TextureDimension uint8

const (
	Texture2D TextureDimension = iota
	Texture2DArray
	TextureCube
	Texture3D
)

// CullMode selects which triangle faces are discarded.
type CullMode uint8

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// CompareFunc is a depth or sampler comparison function.
type CompareFunc uint8

const (
	CompareNever CompareFunc = iota
	CompareLess
	CompareEqual
	CompareLessEqual
	CompareGreater
	CompareNotEqual
	CompareGreaterEqual
	CompareAlways
)

// FilterMode is a texture sampling filter.
type FilterMode uint8

const (
	FilterNearest FilterMode = iota
	FilterLinear
)

// AddressMode controls texture coordinate wrapping.
type AddressMode uint8

const (
	AddressRepeat AddressMode = iota
	AddressMirror
	AddressClamp
	AddressBorder
)

// LoadAction is what happens to an attachment at render pass begin.
type LoadAction uint8

const (
	LoadActionLoad LoadAction = iota
	LoadActionClear
	LoadActionDontCare
)

// StoreAction is what happens to an attachment at render pass end.
type StoreAction uint8

const (
	StoreActionStore StoreAction = iota
	StoreActionDontCare
)

// DepthStencilValue is the clear value of a depth/stencil view.
type DepthStencilValue struct {
	Depth   float32
	Stencil uint8
}

// Viewport is a viewport rectangle with a depth range.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// ScissorRect is a scissor rectangle.
type ScissorRect struct {
	X, Y          float32
	Width, Height float32
}

// Color is a linear RGBA color. It is the gputypes color so values pass
// straight through to the portable backend.
type Color = gputypes.Color
