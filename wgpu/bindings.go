package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/wgpu/hal"
)

// Each binding category owns rhi.MaxBindingsPerType consecutive binding
// numbers of the stage's group; the constants block follows them. Vertex
// and compute shaders use group 0, pixel shaders group 1:
//
//	@group(1) @binding(16) var albedo: texture_2d<f32>; // SRV 0 of a pixel shader
//	@group(1) @binding(48) var smp: sampler;            // sampler 0
//	@group(0) @binding(64) var<uniform> consts: Consts; // Set32BitShaderConstants
const (
	constantBufferBase = 0
	srvBase            = rhi.MaxBindingsPerType
	uavBase            = 2 * rhi.MaxBindingsPerType
	samplerBase        = 3 * rhi.MaxBindingsPerType

	// ConstantsBinding is the binding number of the uniform block holding
	// the values set with Set32BitShaderConstants.
	ConstantsBinding = 4 * rhi.MaxBindingsPerType
)

// BindingNumber returns the WGSL @binding of a declared slot.
func BindingNumber(b rhi.ShaderBinding) uint32 {
	switch b.Type {
	case rhi.BindingConstantBuffer:
		return constantBufferBase + b.Index
	case rhi.BindingTextureSRV, rhi.BindingBufferSRV:
		return srvBase + b.Index
	case rhi.BindingTextureUAV, rhi.BindingBufferUAV:
		return uavBase + b.Index
	default:
		return samplerBase + b.Index
	}
}

// GroupIndex returns the WGSL @group a shader of stage s binds in.
func GroupIndex(s rhi.ShaderStage) uint32 {
	if s == rhi.StagePixel {
		return 1
	}
	return 0
}

// validateBindings rejects out-of-range slots and slots declared twice.
func validateBindings(desc *rhi.ShaderDesc) error {
	if desc.NumConstants > rhi.MaxPushConstants {
		return fmt.Errorf("%w: shader %q declares %d constants, max %d", rhi.ErrInvalidDesc, desc.Label, desc.NumConstants, rhi.MaxPushConstants)
	}
	seen := make(map[uint32]rhi.BindingType, len(desc.Bindings))
	for _, b := range desc.Bindings {
		if b.Index >= rhi.MaxBindingsPerType {
			return fmt.Errorf("%w: shader %q %s slot %d out of range", rhi.ErrInvalidDesc, desc.Label, b.Type, b.Index)
		}
		n := BindingNumber(b)
		if prev, dup := seen[n]; dup {
			return fmt.Errorf("%w: shader %q slot %d declared as %s and %s", rhi.ErrInvalidDesc, desc.Label, b.Index, prev, b.Type)
		}
		seen[n] = b.Type
	}
	return nil
}

// layoutEntries builds the bind group layout of a shader. Storage textures
// are declared rgba8unorm read_write.
func layoutEntries(desc *rhi.ShaderDesc) []gputypes.BindGroupLayoutEntry {
	vis := stageVisibility(desc.Stage)
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(desc.Bindings)+1)
	for _, b := range desc.Bindings {
		e := gputypes.BindGroupLayoutEntry{Binding: BindingNumber(b), Visibility: vis}
		switch b.Type {
		case rhi.BindingConstantBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case rhi.BindingTextureSRV:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case rhi.BindingBufferSRV:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
		case rhi.BindingTextureUAV:
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessReadWrite,
				Format:        gputypes.TextureFormatRGBA8Unorm,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case rhi.BindingBufferUAV:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		case rhi.BindingSampler:
			e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
		}
		entries = append(entries, e)
	}
	if desc.NumConstants > 0 {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    ConstantsBinding,
			Visibility: vis,
			Buffer: &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: constantsSize(desc.NumConstants),
			},
		})
	}
	return entries
}

// constantsSize is the uniform block size of n constants. WGSL uniform
// structs are 16-byte aligned.
func constantsSize(n uint32) uint64 {
	return alignUp(uint64(n)*4, 16)
}

// stageBindings is the resource table of one shader stage. Bound resources
// hold a reference until they are replaced or the table is reset.
type stageBindings struct {
	cbs       [rhi.MaxBindingsPerType]*deviceBuffer
	srvs      [rhi.MaxBindingsPerType]*shaderResourceView
	uavs      [rhi.MaxBindingsPerType]*unorderedAccessView
	samplers  [rhi.MaxBindingsPerType]*samplerState
	constants [rhi.MaxPushConstants]uint32

	// group was built for shader from the table as it was then. dirty
	// forces a rebuild.
	group  hal.BindGroup
	shader *shader
	dirty  bool
}

// bindable is a resource type a stage table holds.
type bindable interface {
	comparable
	rhi.Resource
}

// swapRef stores v in slot, moving the reference, and reports whether the
// slot changed.
func swapRef[T bindable](slot *T, v T) bool {
	var zero T
	if *slot == v {
		return false
	}
	if v != zero {
		v.AddRef()
	}
	if *slot != zero {
		(*slot).Release()
	}
	*slot = v
	return true
}

func (s *stageBindings) reset() {
	for i := range rhi.MaxBindingsPerType {
		swapRef(&s.cbs[i], nil)
		swapRef(&s.srvs[i], nil)
		swapRef(&s.uavs[i], nil)
		swapRef(&s.samplers[i], nil)
	}
	s.constants = [rhi.MaxPushConstants]uint32{}
	s.shader = nil
	s.dirty = true
}

func (s *stageBindings) setConstantBuffer(b *deviceBuffer, index uint32) {
	if swapRef(&s.cbs[index], b) {
		s.dirty = true
	}
}

func (s *stageBindings) setSRV(v *shaderResourceView, index uint32) {
	if swapRef(&s.srvs[index], v) {
		s.dirty = true
	}
}

func (s *stageBindings) setUAV(v *unorderedAccessView, index uint32) {
	if swapRef(&s.uavs[index], v) {
		s.dirty = true
	}
}

func (s *stageBindings) setSampler(v *samplerState, index uint32) {
	if swapRef(&s.samplers[index], v) {
		s.dirty = true
	}
}

func (s *stageBindings) setConstants(values []uint32) {
	n := copy(s.constants[:], values)
	if n < len(values) {
		misuse("wgpu: too many shader constants", "count", len(values), "max", rhi.MaxPushConstants)
	}
	s.dirty = true
}

// needsRebuild reports whether the bind group must be rebuilt to draw with
// sh.
func (s *stageBindings) needsRebuild(sh *shader) bool {
	return s.dirty || s.shader != sh || s.group == nil
}

// resolved is the resource each declared slot of a shader reads, with
// defaults substituted for unset or mismatched slots.
type resolved struct {
	binding rhi.ShaderBinding
	buffer  *deviceBuffer
	offset  uint64
	size    uint64
	view    hal.TextureView
	texture *deviceTexture
	sampler hal.Sampler
}

// resolve walks the declared slots of sh in order. Kinds of resource that
// do not match the declaration are reported and replaced by defaults.
func (s *stageBindings) resolve(d *Device, sh *shader, fn func(resolved)) {
	for _, b := range sh.desc.Bindings {
		r := resolved{binding: b}
		switch b.Type {
		case rhi.BindingConstantBuffer:
			r.buffer = s.cbs[b.Index]
			if r.buffer == nil {
				r.buffer = d.defaultBuffer
			}
			r.size = r.buffer.desc.Size
		case rhi.BindingTextureSRV:
			v := s.srvs[b.Index]
			if v == nil || v.texture == nil {
				if v != nil {
					misuse("wgpu: buffer srv bound to texture slot", "shader", sh.Name(), "index", b.Index)
				}
				v = d.defaultSRV
			}
			r.view, r.texture = v.raw, v.texture
		case rhi.BindingBufferSRV:
			v := s.srvs[b.Index]
			if v == nil || v.buffer == nil {
				if v != nil {
					misuse("wgpu: texture srv bound to buffer slot", "shader", sh.Name(), "index", b.Index)
				}
				r.buffer, r.size = d.defaultBuffer, d.defaultBuffer.desc.Size
				break
			}
			r.buffer, r.offset, r.size = v.buffer, v.offset, v.size
		case rhi.BindingTextureUAV:
			v := s.uavs[b.Index]
			if v == nil || v.texture == nil {
				if v != nil {
					misuse("wgpu: buffer uav bound to texture slot", "shader", sh.Name(), "index", b.Index)
				}
				v = d.defaultUAV
			}
			r.view, r.texture = v.raw, v.texture
		case rhi.BindingBufferUAV:
			v := s.uavs[b.Index]
			if v == nil || v.buffer == nil {
				if v != nil {
					misuse("wgpu: texture uav bound to buffer slot", "shader", sh.Name(), "index", b.Index)
				}
				r.buffer, r.size = d.defaultBuffer, d.defaultBuffer.desc.Size
				break
			}
			r.buffer, r.offset, r.size = v.buffer, v.offset, v.size
		case rhi.BindingSampler:
			sm := s.samplers[b.Index]
			if sm == nil {
				sm = d.defaultSampler
			}
			r.sampler = sm.raw
		}
		fn(r)
	}
}

// usageOf is the usage a resolved slot needs its resource in.
func usageOf(t rhi.BindingType) (gputypes.TextureUsage, gputypes.BufferUsage) {
	switch t {
	case rhi.BindingConstantBuffer:
		return 0, gputypes.BufferUsageUniform
	case rhi.BindingTextureSRV:
		return gputypes.TextureUsageTextureBinding, 0
	case rhi.BindingTextureUAV:
		return gputypes.TextureUsageStorageBinding, 0
	case rhi.BindingBufferSRV, rhi.BindingBufferUAV:
		return 0, gputypes.BufferUsageStorage
	default:
		return 0, 0
	}
}

// bindGroupEntries converts the resolved slots of sh and the constants
// block, if any, into bind group entries.
func (s *stageBindings) bindGroupEntries(d *Device, sh *shader, constants hal.Buffer, constantsOffset uint64) []gputypes.BindGroupEntry {
	entries := make([]gputypes.BindGroupEntry, 0, len(sh.desc.Bindings)+1)
	s.resolve(d, sh, func(r resolved) {
		e := gputypes.BindGroupEntry{Binding: BindingNumber(r.binding)}
		switch {
		case r.buffer != nil:
			e.Resource = gputypes.BufferBinding{Buffer: r.buffer.raw.NativeHandle(), Offset: r.offset, Size: r.size}
		case r.view != nil:
			e.Resource = gputypes.TextureViewBinding{TextureView: r.view.NativeHandle()}
		case r.sampler != nil:
			e.Resource = gputypes.SamplerBinding{Sampler: r.sampler.NativeHandle()}
		}
		entries = append(entries, e)
	})
	if n := sh.desc.NumConstants; n > 0 && constants != nil {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: ConstantsBinding,
			Resource: gputypes.BufferBinding{
				Buffer: constants.NativeHandle(),
				Offset: constantsOffset,
				Size:   constantsSize(n),
			},
		})
	}
	return entries
}
