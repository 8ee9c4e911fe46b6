package vulkan

import (
	"github.com/gogpu/rhi"
)

// slotKind is a category of descriptor slots.
type slotKind uint8

const (
	slotConstantBuffer slotKind = iota
	slotSRV
	slotUAV
	slotSampler
	numSlotKinds
)

var slotKindNames = [...]string{"ConstantBuffer", "SRV", "UAV", "Sampler"}

func (k slotKind) String() string { return slotKindNames[k] }

// stageDescriptors are the resources bound to one shader stage.
type stageDescriptors struct {
	resources [numSlotKinds][rhi.MaxBindingsPerType]rhi.Resource
	dirty     uint8 // bit per slotKind
	set       DescriptorSet
	valid     bool

	// srvLayouts are the image layouts the SRV descriptors of set were
	// written with.
	srvLayouts [rhi.MaxBindingsPerType]ImageLayout
}

// layoutsChanged reports whether a texture bound as an SRV has moved to a
// layout other than the one its descriptor was written with.
func (st *stageDescriptors) layoutsChanged() bool {
	for i, r := range st.resources[slotSRV] {
		v, ok := r.(*shaderResourceView)
		if ok && v.texture != nil && srvLayout(v.texture) != st.srvLayouts[i] {
			return true
		}
	}
	return false
}

// DescriptorState is the descriptor binding state of one pipeline: the
// resources bound to every stage and the last descriptor set written from
// them. A set stays valid until a slot of its stage changes or a new
// command buffer starts.
type DescriptorState struct {
	owner  rhi.Resource // the pipeline, referenced
	layout *pipelineLayout
	stages [rhi.NumGraphicsStages]stageDescriptors
}

func newDescriptorState(owner rhi.Resource, layout *pipelineLayout) *DescriptorState {
	owner.AddRef()
	return &DescriptorState{owner: owner, layout: layout}
}

// set stores r in a slot, taking a reference. It reports whether the slot
// changed.
func (d *DescriptorState) set(stage rhi.ShaderStage, kind slotKind, index uint32, r rhi.Resource, force bool) bool {
	st := &d.stages[stage]
	old := st.resources[kind][index]
	if old == r && !force {
		return false
	}
	if r != nil {
		r.AddRef()
	}
	if old != nil {
		old.Release()
	}
	st.resources[kind][index] = r
	st.dirty |= 1 << kind
	st.valid = false
	return true
}

// invalidate forces a fresh descriptor set for every stage on next use.
func (d *DescriptorState) invalidate() {
	for i := range d.stages {
		d.stages[i].valid = false
	}
}

// release drops every slot reference and the pipeline reference.
func (d *DescriptorState) release() {
	for i := range d.stages {
		st := &d.stages[i]
		for k := range st.resources {
			for j, r := range st.resources[k] {
				if r != nil {
					r.Release()
					st.resources[k][j] = nil
				}
			}
		}
	}
	if d.owner != nil {
		d.owner.Release()
		d.owner = nil
	}
}

// prepare returns the descriptor set of stage, allocating and writing a new
// one if the stage or the layout of one of its SRV textures changed since
// the last call. Writes are queued in c and
// issued by the caller with Commit.
func (d *DescriptorState) prepare(stage rhi.ShaderStage, layout *SetLayout, c *DescriptorSetCache) (DescriptorSet, error) {
	st := &d.stages[stage]
	if st.valid && st.dirty == 0 && !st.layoutsChanged() {
		return st.set, nil
	}
	set, err := c.AllocateDescriptorSet(layout.Handle)
	if err != nil {
		return 0, err
	}

	var slots [rhi.MaxBindingsPerType]ResourceBinding
	fill := func(kind slotKind) []ResourceBinding {
		for i, r := range st.resources[kind] {
			slots[i] = bindingOf(kind, r)
		}
		return slots[:]
	}
	c.SetConstantBuffers(set, layout, fill(slotConstantBuffer))
	srvs := fill(slotSRV)
	for i := range srvs {
		st.srvLayouts[i] = srvs[i].Layout
	}
	c.SetSRVs(set, layout, srvs)
	c.SetUAVs(set, layout, fill(slotUAV))
	c.SetSamplers(set, layout, fill(slotSampler))

	st.set = set
	st.valid = true
	st.dirty = 0
	return set, nil
}

// bindingOf converts a bound resource into descriptor contents. Texture
// SRVs use the layout the image is in when the commands recorded so far
// have executed.
func bindingOf(kind slotKind, r rhi.Resource) ResourceBinding {
	switch v := r.(type) {
	case *deviceBuffer:
		return ResourceBinding{Buffer: v.handle, Range: v.desc.Size}
	case *samplerState:
		return ResourceBinding{Sampler: v.handle}
	case *shaderResourceView:
		return viewBinding(&v.view, srvLayout(v.texture))
	case *unorderedAccessView:
		return viewBinding(&v.view, LayoutGeneral)
	}
	return ResourceBinding{}
}

func viewBinding(v *view, layout ImageLayout) ResourceBinding {
	if v.buffer != nil {
		return ResourceBinding{Buffer: v.buffer.handle, Offset: v.offset, Range: v.size}
	}
	return ResourceBinding{View: v.handle, Layout: layout}
}

func srvLayout(t *deviceTexture) ImageLayout {
	if t == nil {
		return LayoutShaderReadOnlyOptimal
	}
	switch t.layout {
	case LayoutGeneral, LayoutDepthStencilReadOnlyOptimal:
		return t.layout
	default:
		return LayoutShaderReadOnlyOptimal
	}
}
