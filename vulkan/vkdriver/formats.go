package vkdriver

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/gputypes"
)

func textureFormat(f gputypes.TextureFormat) vk.Format {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return vk.FormatR8Unorm
	case gputypes.TextureFormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gputypes.TextureFormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gputypes.TextureFormatRGBA16Float:
		return vk.FormatR16g16b16a16Sfloat
	case gputypes.TextureFormatRGBA32Float:
		return vk.FormatR32g32b32a32Sfloat
	case gputypes.TextureFormatDepth24PlusStencil8:
		return vk.FormatD24UnormS8Uint
	case gputypes.TextureFormatDepth32Float:
		return vk.FormatD32Sfloat
	default:
		return vk.FormatUndefined
	}
}

func vertexFormat(f gputypes.VertexFormat) vk.Format {
	switch f {
	case gputypes.VertexFormatFloat32:
		return vk.FormatR32Sfloat
	case gputypes.VertexFormatFloat32x2:
		return vk.FormatR32g32Sfloat
	case gputypes.VertexFormatFloat32x3:
		return vk.FormatR32g32b32Sfloat
	case gputypes.VertexFormatFloat32x4:
		return vk.FormatR32g32b32a32Sfloat
	case gputypes.VertexFormatUint32:
		return vk.FormatR32Uint
	case gputypes.VertexFormatSint32:
		return vk.FormatR32Sint
	case gputypes.VertexFormatUnorm8x4:
		return vk.FormatR8g8b8a8Unorm
	default:
		return vk.FormatUndefined
	}
}

// sampleCount returns the VkSampleCountFlagBits for n samples; 0 and other
// non-powers of two fall back to one sample.
func sampleCount(n uint32) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	case 16:
		return vk.SampleCount16Bit
	default:
		return vk.SampleCount1Bit
	}
}

func filter(linear bool) vk.Filter {
	if linear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func mipmapMode(linear bool) vk.SamplerMipmapMode {
	if linear {
		return vk.SamplerMipmapModeLinear
	}
	return vk.SamplerMipmapModeNearest
}

func bool32(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
