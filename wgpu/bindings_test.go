package wgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
)

func TestBindingNumber(t *testing.T) {
	tests := []struct {
		binding rhi.ShaderBinding
		want    uint32
	}{
		{rhi.ShaderBinding{Type: rhi.BindingConstantBuffer, Index: 0}, 0},
		{rhi.ShaderBinding{Type: rhi.BindingConstantBuffer, Index: 15}, 15},
		{rhi.ShaderBinding{Type: rhi.BindingTextureSRV, Index: 0}, 16},
		{rhi.ShaderBinding{Type: rhi.BindingBufferSRV, Index: 3}, 19},
		{rhi.ShaderBinding{Type: rhi.BindingTextureUAV, Index: 1}, 33},
		{rhi.ShaderBinding{Type: rhi.BindingBufferUAV, Index: 2}, 34},
		{rhi.ShaderBinding{Type: rhi.BindingSampler, Index: 0}, 48},
	}
	for _, tt := range tests {
		if got := BindingNumber(tt.binding); got != tt.want {
			t.Errorf("BindingNumber(%v %d) = %d, want %d", tt.binding.Type, tt.binding.Index, got, tt.want)
		}
	}
	if GroupIndex(rhi.StagePixel) != 1 || GroupIndex(rhi.StageVertex) != 0 || GroupIndex(rhi.StageCompute) != 0 {
		t.Error("GroupIndex: want pixel in group 1, vertex and compute in group 0")
	}
}

func TestValidateBindings(t *testing.T) {
	tests := []struct {
		name    string
		desc    rhi.ShaderDesc
		wantErr bool
	}{
		{
			name: "valid",
			desc: rhi.ShaderDesc{Bindings: []rhi.ShaderBinding{
				{Type: rhi.BindingConstantBuffer, Index: 0},
				{Type: rhi.BindingTextureSRV, Index: 0},
				{Type: rhi.BindingSampler, Index: 0},
			}, NumConstants: 4},
		},
		{
			name:    "index out of range",
			desc:    rhi.ShaderDesc{Bindings: []rhi.ShaderBinding{{Type: rhi.BindingSampler, Index: 16}}},
			wantErr: true,
		},
		{
			name: "texture and buffer srv share a slot",
			desc: rhi.ShaderDesc{Bindings: []rhi.ShaderBinding{
				{Type: rhi.BindingTextureSRV, Index: 2},
				{Type: rhi.BindingBufferSRV, Index: 2},
			}},
			wantErr: true,
		},
		{
			name:    "too many constants",
			desc:    rhi.ShaderDesc{NumConstants: 33},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBindings(&tt.desc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateBindings() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, rhi.ErrInvalidDesc) {
				t.Errorf("error %v does not wrap ErrInvalidDesc", err)
			}
		})
	}
}

func TestLayoutEntries(t *testing.T) {
	desc := rhi.ShaderDesc{
		Stage: rhi.StagePixel,
		Bindings: []rhi.ShaderBinding{
			{Type: rhi.BindingTextureSRV, Index: 0},
			{Type: rhi.BindingBufferUAV, Index: 1},
			{Type: rhi.BindingSampler, Index: 0},
		},
		NumConstants: 5,
	}
	entries := layoutEntries(&desc)
	if len(entries) != 4 {
		t.Fatalf("len(entries) = %d, want 4", len(entries))
	}
	if entries[0].Texture == nil || entries[0].Binding != 16 {
		t.Errorf("entry 0 = %+v, want texture at binding 16", entries[0])
	}
	if entries[1].Buffer == nil || entries[1].Binding != 33 {
		t.Errorf("entry 1 = %+v, want storage buffer at binding 33", entries[1])
	}
	if entries[2].Sampler == nil || entries[2].Binding != 48 {
		t.Errorf("entry 2 = %+v, want sampler at binding 48", entries[2])
	}
	c := entries[3]
	if c.Binding != ConstantsBinding || c.Buffer == nil || c.Buffer.MinBindingSize != 32 {
		t.Errorf("constants entry = %+v, want 32-byte uniform at binding %d", c, ConstantsBinding)
	}
}

func TestLayoutEntriesStorageTexture(t *testing.T) {
	desc := rhi.ShaderDesc{
		Stage:    rhi.StageCompute,
		Bindings: []rhi.ShaderBinding{{Type: rhi.BindingTextureUAV, Index: 2}},
	}
	entries := layoutEntries(&desc)
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Binding != 34 || e.Visibility != gputypes.ShaderStageCompute {
		t.Errorf("entry = binding %d visibility %v, want 34 compute", e.Binding, e.Visibility)
	}
	if e.StorageTexture == nil || e.Buffer != nil || e.Texture != nil {
		t.Fatalf("entry = %+v, want a storage texture only", e)
	}
	if e.StorageTexture.Access != gputypes.StorageTextureAccessReadWrite {
		t.Errorf("access = %v, want ReadWrite", e.StorageTexture.Access)
	}
}

func TestBindGroupEntries(t *testing.T) {
	f := newFixture(t)
	var s stageBindings

	ps := f.ps.(*shader)
	entries := s.bindGroupEntries(f.dev, ps, nil, 0)
	if len(entries) != 2 {
		t.Fatalf("pixel entries = %d, want 2", len(entries))
	}
	if _, ok := entries[0].Resource.(gputypes.TextureViewBinding); !ok || entries[0].Binding != 16 {
		t.Errorf("entry 0 = %+v, want texture view at binding 16", entries[0])
	}
	if _, ok := entries[1].Resource.(gputypes.SamplerBinding); !ok || entries[1].Binding != 48 {
		t.Errorf("entry 1 = %+v, want sampler at binding 48", entries[1])
	}

	vs := f.vs.(*shader)
	constants := f.dev.defaultBuffer.raw
	entries = s.bindGroupEntries(f.dev, vs, constants, 256)
	if len(entries) != 2 {
		t.Fatalf("vertex entries = %d, want 2", len(entries))
	}
	cb, ok := entries[0].Resource.(gputypes.BufferBinding)
	if !ok || cb.Size != f.dev.defaultBuffer.desc.Size {
		t.Errorf("entry 0 = %+v, want the default buffer", entries[0].Resource)
	}
	c, ok := entries[1].Resource.(gputypes.BufferBinding)
	if !ok || entries[1].Binding != ConstantsBinding || c.Offset != 256 || c.Size != 16 {
		t.Errorf("constants entry = %+v, want 16 bytes at offset 256", entries[1])
	}
}

func TestConstantsSize(t *testing.T) {
	tests := []struct {
		n    uint32
		want uint64
	}{
		{1, 16},
		{4, 16},
		{5, 32},
		{32, 128},
	}
	for _, tt := range tests {
		if got := constantsSize(tt.n); got != tt.want {
			t.Errorf("constantsSize(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestSwapRef(t *testing.T) {
	destroyed := 0
	newBuf := func(name string) *deviceBuffer {
		b := &deviceBuffer{}
		b.Init(name, func() { destroyed++ })
		return b
	}
	a, b := newBuf("a"), newBuf("b")

	var slot *deviceBuffer
	if !swapRef(&slot, a) || a.RefCount() != 2 {
		t.Fatalf("bind a: changed=false or refs %d, want 2", a.RefCount())
	}
	if swapRef(&slot, a) {
		t.Error("rebinding the same buffer reported a change")
	}
	swapRef(&slot, b)
	if a.RefCount() != 1 || b.RefCount() != 2 {
		t.Errorf("after swap: refs a=%d b=%d, want 1 and 2", a.RefCount(), b.RefCount())
	}
	b.Release()
	swapRef(&slot, nil)
	if destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", destroyed)
	}
	a.Release()
	if destroyed != 2 {
		t.Errorf("destroyed = %d, want 2", destroyed)
	}
}
