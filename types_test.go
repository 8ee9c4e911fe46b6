package rhi

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"access common", AccessCommon.String(), "Common"},
		{"access generic read", AccessGenericRead.String(), "GenericRead"},
		{"access out of range", ResourceAccess(200).String(), "ResourceAccess(200)"},
		{"topology", TopologyTriangleStrip.String(), "TriangleStrip"},
		{"stage pixel", StagePixel.String(), "Pixel"},
		{"stage ray miss", StageRayMiss.String(), "RayMiss"},
		{"binding", BindingBufferUAV.String(), "BufferUAV"},
		{"shading rate", ShadingRate2x4.String(), "2x4"},
		{"index format", IndexFormatUint16.String(), "Uint16"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("String() = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestIndexFormatSize(t *testing.T) {
	tests := []struct {
		f    IndexFormat
		want uint32
	}{
		{IndexFormatUnknown, 0},
		{IndexFormatUint16, 2},
		{IndexFormatUint32, 4},
	}
	for _, tt := range tests {
		if got := tt.f.Size(); got != tt.want {
			t.Errorf("%v.Size() = %d, want %d", tt.f, got, tt.want)
		}
	}
}

func TestShaderStageIsRayTracing(t *testing.T) {
	for s := StageVertex; s <= StageRayMiss; s++ {
		want := s >= StageRayGen
		if got := s.IsRayTracing(); got != want {
			t.Errorf("%v.IsRayTracing() = %v, want %v", s, got, want)
		}
	}
	if NumGraphicsStages != 6 {
		t.Errorf("NumGraphicsStages = %d, want 6", NumGraphicsStages)
	}
}

func TestTextureDescValidate(t *testing.T) {
	tests := []struct {
		name    string
		desc    TextureDesc
		wantErr bool
	}{
		{"ok", TextureDesc{Width: 4, Height: 4, Format: gputypes.TextureFormatRGBA8Unorm}, false},
		{"zero extent", TextureDesc{Width: 0, Height: 4, Format: gputypes.TextureFormatRGBA8Unorm}, true},
		{"undefined format", TextureDesc{Width: 4, Height: 4}, true},
		{"color depth target", TextureDesc{Width: 4, Height: 4, Format: gputypes.TextureFormatRGBA8Unorm, Flags: TextureDepthStencil}, true},
		{"depth target", TextureDesc{Width: 4, Height: 4, Format: gputypes.TextureFormatDepth24PlusStencil8, Flags: TextureDepthStencil}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.desc
			err := d.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidDesc) {
					t.Errorf("Validate() error = %v, want ErrInvalidDesc", err)
				}
				return
			}
			if d.MipLevels != 1 || d.SampleCount != 1 || d.DepthOrArraySize != 1 {
				t.Errorf("defaults = %d/%d/%d, want 1/1/1", d.MipLevels, d.SampleCount, d.DepthOrArraySize)
			}
		})
	}
}

func TestBufferDescValidate(t *testing.T) {
	if err := (&BufferDesc{Size: 0, Flags: BufferVertex}).Validate(); !errors.Is(err, ErrInvalidDesc) {
		t.Errorf("zero size: Validate() = %v, want ErrInvalidDesc", err)
	}
	if err := (&BufferDesc{Size: 64}).Validate(); !errors.Is(err, ErrInvalidDesc) {
		t.Errorf("no flags: Validate() = %v, want ErrInvalidDesc", err)
	}
	if err := (&BufferDesc{Size: 64, Flags: BufferConstant}).Validate(); err != nil {
		t.Errorf("valid: Validate() = %v, want nil", err)
	}
}

func TestBytesPerPixel(t *testing.T) {
	tests := []struct {
		f    gputypes.TextureFormat
		want uint32
	}{
		{gputypes.TextureFormatR8Unorm, 1},
		{gputypes.TextureFormatRGBA8Unorm, 4},
		{gputypes.TextureFormatBGRA8Unorm, 4},
		{gputypes.TextureFormatRGBA32Float, 16},
		{gputypes.TextureFormatUndefined, 0},
	}
	for _, tt := range tests {
		if got := BytesPerPixel(tt.f); got != tt.want {
			t.Errorf("BytesPerPixel(%v) = %d, want %d", tt.f, got, tt.want)
		}
	}
}

func TestDebugBreakHandler(t *testing.T) {
	t.Cleanup(func() { SetDebugBreakHandler(nil) })

	DebugBreak("no handler installed")

	var got []string
	SetDebugBreakHandler(func(msg string) { got = append(got, msg) })
	DebugBreak("bind before pipeline")
	if len(got) != 1 || got[0] != "bind before pipeline" {
		t.Errorf("handler calls = %v, want [bind before pipeline]", got)
	}

	SetDebugBreakHandler(nil)
	DebugBreak("ignored")
	if len(got) != 1 {
		t.Errorf("handler called after reset: %v", got)
	}
}
