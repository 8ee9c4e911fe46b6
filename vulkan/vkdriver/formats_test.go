package vkdriver

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/gputypes"
)

func TestTextureFormat(t *testing.T) {
	tests := []struct {
		in   gputypes.TextureFormat
		want vk.Format
	}{
		{gputypes.TextureFormatR8Unorm, vk.FormatR8Unorm},
		{gputypes.TextureFormatRGBA8Unorm, vk.FormatR8g8b8a8Unorm},
		{gputypes.TextureFormatBGRA8Unorm, vk.FormatB8g8r8a8Unorm},
		{gputypes.TextureFormatRGBA16Float, vk.FormatR16g16b16a16Sfloat},
		{gputypes.TextureFormatRGBA32Float, vk.FormatR32g32b32a32Sfloat},
		{gputypes.TextureFormatDepth24PlusStencil8, vk.FormatD24UnormS8Uint},
		{gputypes.TextureFormatDepth32Float, vk.FormatD32Sfloat},
		{gputypes.TextureFormatUndefined, vk.FormatUndefined},
	}
	for _, tt := range tests {
		if got := textureFormat(tt.in); got != tt.want {
			t.Errorf("textureFormat(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVertexFormat(t *testing.T) {
	tests := []struct {
		in   gputypes.VertexFormat
		want vk.Format
	}{
		{gputypes.VertexFormatFloat32, vk.FormatR32Sfloat},
		{gputypes.VertexFormatFloat32x2, vk.FormatR32g32Sfloat},
		{gputypes.VertexFormatFloat32x3, vk.FormatR32g32b32Sfloat},
		{gputypes.VertexFormatFloat32x4, vk.FormatR32g32b32a32Sfloat},
		{gputypes.VertexFormatUint32, vk.FormatR32Uint},
		{gputypes.VertexFormatSint32, vk.FormatR32Sint},
		{gputypes.VertexFormatUnorm8x4, vk.FormatR8g8b8a8Unorm},
	}
	for _, tt := range tests {
		if got := vertexFormat(tt.in); got != tt.want {
			t.Errorf("vertexFormat(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSampleCount(t *testing.T) {
	tests := []struct {
		n    uint32
		want vk.SampleCountFlagBits
	}{
		{0, vk.SampleCount1Bit},
		{1, vk.SampleCount1Bit},
		{2, vk.SampleCount2Bit},
		{3, vk.SampleCount1Bit},
		{4, vk.SampleCount4Bit},
		{8, vk.SampleCount8Bit},
		{16, vk.SampleCount16Bit},
		{32, vk.SampleCount1Bit},
	}
	for _, tt := range tests {
		if got := sampleCount(tt.n); got != tt.want {
			t.Errorf("sampleCount(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestBool32(t *testing.T) {
	if bool32(true) != vk.True || bool32(false) != vk.False {
		t.Error("bool32 mismatch")
	}
	if filter(true) != vk.FilterLinear || filter(false) != vk.FilterNearest {
		t.Error("filter mismatch")
	}
}
