package wgpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
)

const (
	// copyPitchAlignment is the row alignment of buffer-texture copies.
	copyPitchAlignment = 256

	// constantsAlignment is the minimum uniform buffer offset alignment.
	constantsAlignment = 256
)

func alignUp[T ~uint32 | ~uint64](v, a T) T {
	return (v + a - 1) &^ (a - 1)
}

func bufferUsage(f rhi.BufferFlags) gputypes.BufferUsage {
	u := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if f&rhi.BufferVertex != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if f&rhi.BufferIndex != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if f&rhi.BufferConstant != 0 {
		u |= gputypes.BufferUsageUniform
	}
	if f&(rhi.BufferShaderResource|rhi.BufferUnorderedAccess) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	return u
}

func textureUsage(f rhi.TextureFlags) gputypes.TextureUsage {
	u := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if f&(rhi.TextureRenderTarget|rhi.TextureDepthStencil) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if f&(rhi.TextureShaderResource|rhi.TextureShadingRate) != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if f&rhi.TextureUnorderedAccess != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	return u
}

// textureAccessUsage maps a resource state to the single texture usage the
// hal tracks for it.
func textureAccessUsage(a rhi.ResourceAccess) gputypes.TextureUsage {
	switch a {
	case rhi.AccessRenderTarget, rhi.AccessDepthWrite, rhi.AccessDepthRead,
		rhi.AccessResolveDest, rhi.AccessResolveSource, rhi.AccessPresent:
		return gputypes.TextureUsageRenderAttachment
	case rhi.AccessUnorderedAccess:
		return gputypes.TextureUsageStorageBinding
	case rhi.AccessCopyDest:
		return gputypes.TextureUsageCopyDst
	case rhi.AccessCopySource:
		return gputypes.TextureUsageCopySrc
	default:
		return gputypes.TextureUsageTextureBinding
	}
}

func bufferAccessUsage(a rhi.ResourceAccess) gputypes.BufferUsage {
	switch a {
	case rhi.AccessVertexAndConstantBuffer:
		return gputypes.BufferUsageVertex | gputypes.BufferUsageUniform
	case rhi.AccessIndexBuffer:
		return gputypes.BufferUsageIndex
	case rhi.AccessUnorderedAccess:
		return gputypes.BufferUsageStorage
	case rhi.AccessCopyDest:
		return gputypes.BufferUsageCopyDst
	case rhi.AccessCopySource:
		return gputypes.BufferUsageCopySrc
	default:
		return gputypes.BufferUsageVertex | gputypes.BufferUsageIndex | gputypes.BufferUsageUniform | gputypes.BufferUsageStorage
	}
}

func textureDimension(d rhi.TextureDimension) gputypes.TextureDimension {
	if d == rhi.Texture3D {
		return gputypes.TextureDimension3D
	}
	return gputypes.TextureDimension2D
}

// viewDimension returns the view dimension of a view covering layers
// layers of a texture of dimension d.
func viewDimension(d rhi.TextureDimension, layers uint32) gputypes.TextureViewDimension {
	switch d {
	case rhi.Texture3D:
		return gputypes.TextureViewDimension3D
	case rhi.Texture2DArray:
		return gputypes.TextureViewDimension2DArray
	case rhi.TextureCube:
		switch {
		case layers == 6:
			return gputypes.TextureViewDimensionCube
		case layers > 6:
			return gputypes.TextureViewDimensionCubeArray
		}
		return gputypes.TextureViewDimension2DArray
	default:
		return gputypes.TextureViewDimension2D
	}
}

func compareFunction(f rhi.CompareFunc) gputypes.CompareFunction {
	switch f {
	case rhi.CompareNever:
		return gputypes.CompareFunctionNever
	case rhi.CompareLess:
		return gputypes.CompareFunctionLess
	case rhi.CompareEqual:
		return gputypes.CompareFunctionEqual
	case rhi.CompareLessEqual:
		return gputypes.CompareFunctionLessEqual
	case rhi.CompareGreater:
		return gputypes.CompareFunctionGreater
	case rhi.CompareNotEqual:
		return gputypes.CompareFunctionNotEqual
	case rhi.CompareGreaterEqual:
		return gputypes.CompareFunctionGreaterEqual
	default:
		return gputypes.CompareFunctionAlways
	}
}

// addressMode maps a wrap mode. WebGPU has no border color, so Border
// clamps to the edge.
func addressMode(m rhi.AddressMode) gputypes.AddressMode {
	switch m {
	case rhi.AddressRepeat:
		return gputypes.AddressModeRepeat
	case rhi.AddressMirror:
		return gputypes.AddressModeMirrorRepeat
	default:
		return gputypes.AddressModeClampToEdge
	}
}

func filterMode(m rhi.FilterMode) gputypes.FilterMode {
	if m == rhi.FilterLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

func primitiveTopology(t rhi.PrimitiveTopology) gputypes.PrimitiveTopology {
	switch t {
	case rhi.TopologyPointList:
		return gputypes.PrimitiveTopologyPointList
	case rhi.TopologyLineList:
		return gputypes.PrimitiveTopologyLineList
	case rhi.TopologyLineStrip:
		return gputypes.PrimitiveTopologyLineStrip
	case rhi.TopologyTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	default:
		return gputypes.PrimitiveTopologyTriangleList
	}
}

func cullMode(m rhi.CullMode) gputypes.CullMode {
	switch m {
	case rhi.CullFront:
		return gputypes.CullModeFront
	case rhi.CullBack:
		return gputypes.CullModeBack
	default:
		return gputypes.CullModeNone
	}
}

func frontFace(ccw bool) gputypes.FrontFace {
	if ccw {
		return gputypes.FrontFaceCCW
	}
	return gputypes.FrontFaceCW
}

// blendState returns nil for a disabled blend, which writes the source
// unchanged.
func blendState(b rhi.BlendDesc) *gputypes.BlendState {
	if !b.Enable {
		return nil
	}
	if b.Premultiplied {
		s := gputypes.BlendStatePremultiplied()
		return &s
	}
	return &gputypes.BlendState{
		Color: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorSrcAlpha,
			DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
			Operation: gputypes.BlendOperationAdd,
		},
		Alpha: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorOne,
			DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
			Operation: gputypes.BlendOperationAdd,
		},
	}
}

func stageVisibility(s rhi.ShaderStage) gputypes.ShaderStage {
	switch s {
	case rhi.StagePixel:
		return gputypes.ShaderStageFragment
	case rhi.StageCompute:
		return gputypes.ShaderStageCompute
	default:
		return gputypes.ShaderStageVertex
	}
}

// indexFormat resolves IndexFormatUnknown from the buffer stride.
func indexFormat(f rhi.IndexFormat, b rhi.Buffer) gputypes.IndexFormat {
	switch f {
	case rhi.IndexFormatUint16:
		return gputypes.IndexFormatUint16
	case rhi.IndexFormatUint32:
		return gputypes.IndexFormatUint32
	}
	if b != nil && b.Desc().Stride == 2 {
		return gputypes.IndexFormatUint16
	}
	return gputypes.IndexFormatUint32
}
