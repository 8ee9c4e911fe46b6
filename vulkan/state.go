package vulkan

import (
	"slices"

	"github.com/gogpu/rhi"
)

// dirtyFlags are the binding categories that must be re-recorded before
// the next draw or dispatch.
type dirtyFlags uint16

const (
	dirtyPipeline dirtyFlags = 1 << iota
	dirtyPushConstants
	dirtyVertexBuffers
	dirtyIndexBuffer
	dirtyViewports
	dirtyScissors
	dirtyBlendFactor

	dirtyGraphics = dirtyPipeline | dirtyPushConstants | dirtyVertexBuffers |
		dirtyIndexBuffer | dirtyViewports | dirtyScissors | dirtyBlendFactor
	dirtyCompute = dirtyPipeline | dirtyPushConstants
)

// ContextState tracks the binding state of a command context and records
// only what changed. Setters compare against the cached value and mark a
// category dirty; BindGraphicsState and BindComputeState issue the driver
// calls for dirty categories right before a draw or dispatch.
//
// With force binding every category is recorded before every draw and
// dispatch.
//
// ContextState holds a reference to every resource bound through it.
type ContextState struct {
	drv         Driver
	descriptors *DescriptorSetCache
	force       bool
	cb          CommandBuffer

	graphicsPipeline *graphicsPipeline
	computePipeline  *computePipeline
	graphicsDirty    dirtyFlags
	computeDirty     dirtyFlags

	pushConstants    [rhi.MaxPushConstants]uint32
	numPushConstants uint32

	vertexBuffers    [rhi.MaxVertexBufferSlots]*deviceBuffer
	numVertexBuffers uint32
	indexBuffer      *deviceBuffer
	indexType        IndexType

	viewports    [rhi.MaxViewports]Viewport
	numViewports uint32
	scissors     [rhi.MaxViewports]Rect2D
	numScissors  uint32
	blendFactor  [4]float32

	descriptorStates    map[rhi.Resource]*DescriptorState
	graphicsDescriptors *DescriptorState
	computeDescriptors  *DescriptorState

	boundLayout [2]PipelineLayout
	boundSets   [2][rhi.NumGraphicsStages]DescriptorSet
}

// NewContextState creates an empty state recording through drv and
// allocating descriptor sets from descriptors.
func NewContextState(drv Driver, descriptors *DescriptorSetCache, force bool) *ContextState {
	return &ContextState{
		drv:              drv,
		descriptors:      descriptors,
		force:            force,
		graphicsDirty:    dirtyGraphics,
		computeDirty:     dirtyCompute,
		indexType:        IndexTypeUint32,
		descriptorStates: make(map[rhi.Resource]*DescriptorState),
	}
}

// BeginCommandBuffer directs recording into cb and resets the state for
// it.
func (s *ContextState) BeginCommandBuffer(cb CommandBuffer) {
	s.cb = cb
	s.ResetStateForNewCommandBuffer()
}

// SetGraphicsPipelineState sets the graphics pipeline. Changing it marks
// push constants dirty and switches to the pipeline's descriptor state.
func (s *ContextState) SetGraphicsPipelineState(p rhi.GraphicsPipelineState) {
	var gp *graphicsPipeline
	if p != nil {
		var ok bool
		if gp, ok = p.(*graphicsPipeline); !ok {
			s.foreign(p)
			return
		}
	}
	if gp == s.graphicsPipeline && !s.force {
		return
	}
	if gp != nil {
		gp.AddRef()
	}
	if s.graphicsPipeline != nil {
		s.graphicsPipeline.Release()
	}
	s.graphicsPipeline = gp
	s.graphicsDirty |= dirtyPipeline | dirtyPushConstants
	s.graphicsDescriptors = nil
	if gp != nil {
		s.graphicsDescriptors = s.descriptorState(gp, gp.layout)
	}
}

// SetComputePipelineState sets the compute pipeline.
func (s *ContextState) SetComputePipelineState(p rhi.ComputePipelineState) {
	var cp *computePipeline
	if p != nil {
		var ok bool
		if cp, ok = p.(*computePipeline); !ok {
			s.foreign(p)
			return
		}
	}
	if cp == s.computePipeline && !s.force {
		return
	}
	if cp != nil {
		cp.AddRef()
	}
	if s.computePipeline != nil {
		s.computePipeline.Release()
	}
	s.computePipeline = cp
	s.computeDirty |= dirtyPipeline | dirtyPushConstants
	s.computeDescriptors = nil
	if cp != nil {
		s.computeDescriptors = s.descriptorState(cp, cp.layout)
	}
}

func (s *ContextState) descriptorState(p rhi.Resource, layout *pipelineLayout) *DescriptorState {
	if d, ok := s.descriptorStates[p]; ok {
		return d
	}
	d := newDescriptorState(p, layout)
	s.descriptorStates[p] = d
	return d
}

// pruneDescriptorStates drops the descriptor states of pipelines nobody
// else references.
func (s *ContextState) pruneDescriptorStates() {
	for p, d := range s.descriptorStates {
		if d == s.graphicsDescriptors || d == s.computeDescriptors {
			continue
		}
		if p.RefCount() == 1 {
			d.release()
			delete(s.descriptorStates, p)
		}
	}
}

// SetViewports sets the viewports; at most rhi.MaxViewports are kept.
func (s *ContextState) SetViewports(vps []Viewport) {
	vps = vps[:min(len(vps), rhi.MaxViewports)]
	if !s.force && slices.Equal(vps, s.viewports[:s.numViewports]) {
		return
	}
	s.numViewports = uint32(copy(s.viewports[:], vps))
	s.graphicsDirty |= dirtyViewports
}

// SetScissorRects sets the scissor rectangles.
func (s *ContextState) SetScissorRects(rects []Rect2D) {
	rects = rects[:min(len(rects), rhi.MaxViewports)]
	if !s.force && slices.Equal(rects, s.scissors[:s.numScissors]) {
		return
	}
	s.numScissors = uint32(copy(s.scissors[:], rects))
	s.graphicsDirty |= dirtyScissors
}

// SetBlendFactor sets the blend constants.
func (s *ContextState) SetBlendFactor(c [4]float32) {
	if !s.force && c == s.blendFactor {
		return
	}
	s.blendFactor = c
	s.graphicsDirty |= dirtyBlendFactor
}

// SetVertexBuffer binds b to slot. The number of bound slots grows to
// cover slot.
func (s *ContextState) SetVertexBuffer(slot uint32, b rhi.Buffer) {
	if slot >= rhi.MaxVertexBufferSlots {
		slogger().Warn("vulkan: vertex buffer slot out of range", "slot", slot)
		rhi.DebugBreak("vulkan: vertex buffer slot out of range")
		return
	}
	vb, err := asBuffer(b)
	if err != nil {
		s.foreign(b)
		return
	}
	s.numVertexBuffers = max(s.numVertexBuffers, slot+1)
	if vb == s.vertexBuffers[slot] && !s.force {
		return
	}
	if vb != nil {
		vb.AddRef()
	}
	if old := s.vertexBuffers[slot]; old != nil {
		old.Release()
	}
	s.vertexBuffers[slot] = vb
	s.graphicsDirty |= dirtyVertexBuffers
}

// SetIndexBuffer binds the index buffer.
func (s *ContextState) SetIndexBuffer(b rhi.Buffer, t IndexType) {
	ib, err := asBuffer(b)
	if err != nil {
		s.foreign(b)
		return
	}
	if ib == s.indexBuffer && t == s.indexType && !s.force {
		return
	}
	if ib != nil {
		ib.AddRef()
	}
	if s.indexBuffer != nil {
		s.indexBuffer.Release()
	}
	s.indexBuffer = ib
	s.indexType = t
	s.graphicsDirty |= dirtyIndexBuffer
}

// SetPushConstants sets the 32-bit constants of both bind points. Values
// beyond rhi.MaxPushConstants are dropped.
func (s *ContextState) SetPushConstants(values []uint32) {
	values = values[:min(len(values), rhi.MaxPushConstants)]
	if !s.force && slices.Equal(values, s.pushConstants[:s.numPushConstants]) {
		return
	}
	s.numPushConstants = uint32(copy(s.pushConstants[:], values))
	s.graphicsDirty |= dirtyPushConstants
	s.computeDirty |= dirtyPushConstants
}

// SetSRV binds a shader resource view to slot index of stage.
func (s *ContextState) SetSRV(srv rhi.ShaderResourceView, stage rhi.ShaderStage, index uint32) {
	var r rhi.Resource
	if srv != nil {
		v, ok := srv.(*shaderResourceView)
		if !ok {
			s.foreign(srv)
			return
		}
		r = v
	}
	s.setSlot(stage, slotSRV, index, r)
}

// SetUAV binds an unordered access view to slot index of stage.
func (s *ContextState) SetUAV(uav rhi.UnorderedAccessView, stage rhi.ShaderStage, index uint32) {
	var r rhi.Resource
	if uav != nil {
		v, ok := uav.(*unorderedAccessView)
		if !ok {
			s.foreign(uav)
			return
		}
		r = v
	}
	s.setSlot(stage, slotUAV, index, r)
}

// SetConstantBuffer binds a constant buffer to slot index of stage.
func (s *ContextState) SetConstantBuffer(b rhi.Buffer, stage rhi.ShaderStage, index uint32) {
	var r rhi.Resource
	if b != nil {
		vb, err := asBuffer(b)
		if err != nil {
			s.foreign(b)
			return
		}
		r = vb
	}
	s.setSlot(stage, slotConstantBuffer, index, r)
}

// SetSampler binds a sampler to slot index of stage.
func (s *ContextState) SetSampler(sampler rhi.SamplerState, stage rhi.ShaderStage, index uint32) {
	var r rhi.Resource
	if sampler != nil {
		v, ok := sampler.(*samplerState)
		if !ok {
			s.foreign(sampler)
			return
		}
		r = v
	}
	s.setSlot(stage, slotSampler, index, r)
}

func (s *ContextState) setSlot(stage rhi.ShaderStage, kind slotKind, index uint32, r rhi.Resource) {
	if int(stage) >= rhi.NumGraphicsStages {
		slogger().Warn("vulkan: resource bound to unsupported stage", "stage", stage, "kind", kind)
		return
	}
	if index >= rhi.MaxBindingsPerType {
		slogger().Warn("vulkan: binding slot out of range", "stage", stage, "kind", kind, "slot", index)
		rhi.DebugBreak("vulkan: binding slot out of range")
		return
	}
	d := s.graphicsDescriptors
	if stage == rhi.StageCompute {
		d = s.computeDescriptors
	}
	if d == nil {
		slogger().Warn("vulkan: resource bound without pipeline state",
			"stage", stage, "kind", kind, "slot", index, "resource", rhi.ResourceName(r), "err", ErrNoPipeline)
		rhi.DebugBreak("vulkan: resource bound without pipeline state")
		return
	}
	d.set(stage, kind, index, r, s.force)
}

func (s *ContextState) foreign(r rhi.Resource) {
	slogger().Warn("vulkan: resource from another backend", "resource", rhi.ResourceName(r), "err", rhi.ErrForeignResource)
	rhi.DebugBreak("vulkan: resource from another backend")
}

// BindGraphicsState records the dirty graphics state in binding order:
// pipeline, descriptor sets, push constants, vertex buffers, index buffer,
// viewports, scissors, blend constants. It does nothing without a graphics
// pipeline.
func (s *ContextState) BindGraphicsState() error {
	p := s.graphicsPipeline
	if p == nil {
		return nil
	}
	dirty := s.graphicsDirty
	if s.force {
		dirty = dirtyGraphics
	}

	if dirty&dirtyPipeline != 0 {
		s.drv.CmdBindPipeline(s.cb, BindPointGraphics, p.handle)
	}
	if err := s.bindDescriptorSets(BindPointGraphics, p.layout, s.graphicsDescriptors, rhi.StageVertex, rhi.StagePixel); err != nil {
		return err
	}
	if dirty&dirtyPushConstants != 0 {
		s.pushTo(p.layout)
	}
	if dirty&dirtyVertexBuffers != 0 && s.numVertexBuffers > 0 {
		s.bindVertexBuffers()
	}
	if dirty&dirtyIndexBuffer != 0 && s.indexBuffer != nil {
		s.drv.CmdBindIndexBuffer(s.cb, s.indexBuffer.handle, 0, s.indexType)
	}
	if dirty&dirtyViewports != 0 && s.numViewports > 0 {
		s.drv.CmdSetViewports(s.cb, s.viewports[:s.numViewports])
	}
	if dirty&dirtyScissors != 0 && s.numScissors > 0 {
		s.drv.CmdSetScissors(s.cb, s.scissors[:s.numScissors])
	}
	if dirty&dirtyBlendFactor != 0 {
		s.drv.CmdSetBlendConstants(s.cb, s.blendFactor)
	}
	s.graphicsDirty = 0
	return nil
}

// BindComputeState records the dirty compute state: pipeline, descriptor
// set, push constants. It does nothing without a compute pipeline.
func (s *ContextState) BindComputeState() error {
	p := s.computePipeline
	if p == nil {
		return nil
	}
	dirty := s.computeDirty
	if s.force {
		dirty = dirtyCompute
	}

	if dirty&dirtyPipeline != 0 {
		s.drv.CmdBindPipeline(s.cb, BindPointCompute, p.handle)
	}
	if err := s.bindDescriptorSets(BindPointCompute, p.layout, s.computeDescriptors, rhi.StageCompute, rhi.StageCompute); err != nil {
		return err
	}
	if dirty&dirtyPushConstants != 0 {
		s.pushTo(p.layout)
	}
	s.computeDirty = 0
	return nil
}

func (s *ContextState) pushTo(layout *pipelineLayout) {
	if n := min(s.numPushConstants, layout.numPushConstants); n > 0 {
		s.drv.CmdPushConstants(s.cb, layout.handle, s.pushConstants[:n])
	}
}

// bindVertexBuffers binds each contiguous run of non-nil slots.
func (s *ContextState) bindVertexBuffers() {
	var (
		bufs    [rhi.MaxVertexBufferSlots]Buffer
		offsets [rhi.MaxVertexBufferSlots]uint64
	)
	start := -1
	for i := 0; i <= int(s.numVertexBuffers); i++ {
		if i < int(s.numVertexBuffers) && s.vertexBuffers[i] != nil {
			bufs[i] = s.vertexBuffers[i].handle
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			s.drv.CmdBindVertexBuffers(s.cb, uint32(start), bufs[start:i], offsets[start:i])
			start = -1
		}
	}
}

// bindDescriptorSets allocates and writes sets for the stages that
// changed, commits all writes at once, then binds every set that differs
// from the one already bound.
func (s *ContextState) bindDescriptorSets(bp PipelineBindPoint, layout *pipelineLayout, d *DescriptorState, first, last rhi.ShaderStage) error {
	var sets [rhi.NumGraphicsStages]DescriptorSet
	for stage := first; stage <= last; stage++ {
		sl := &layout.sets[stage]
		if sl.Empty() {
			continue
		}
		set, err := d.prepare(stage, sl, s.descriptors)
		if err != nil {
			return err
		}
		sets[stage] = set
	}
	s.descriptors.Commit()

	layoutChanged := s.boundLayout[bp] != layout.handle
	for stage := first; stage <= last; stage++ {
		sl := &layout.sets[stage]
		if sl.Empty() {
			continue
		}
		if s.force || layoutChanged || s.boundSets[bp][stage] != sets[stage] {
			s.descriptors.BindDescriptorSet(s.cb, bp, layout.handle, sl.Index, sets[stage])
			s.boundSets[bp][stage] = sets[stage]
		}
	}
	s.boundLayout[bp] = layout.handle
	return nil
}

// ResetStateForNewCommandBuffer marks every category dirty and every
// descriptor set invalid. Bound resources and push constants are kept.
func (s *ContextState) ResetStateForNewCommandBuffer() {
	s.graphicsDirty = dirtyGraphics
	s.computeDirty = dirtyCompute
	for _, d := range s.descriptorStates {
		d.invalidate()
	}
	s.boundLayout = [2]PipelineLayout{}
	s.boundSets = [2][rhi.NumGraphicsStages]DescriptorSet{}
}

// ResetState unbinds everything and drops every reference the state holds.
func (s *ContextState) ResetState() {
	if s.graphicsPipeline != nil {
		s.graphicsPipeline.Release()
		s.graphicsPipeline = nil
	}
	if s.computePipeline != nil {
		s.computePipeline.Release()
		s.computePipeline = nil
	}
	for i, vb := range s.vertexBuffers {
		if vb != nil {
			vb.Release()
			s.vertexBuffers[i] = nil
		}
	}
	if s.indexBuffer != nil {
		s.indexBuffer.Release()
		s.indexBuffer = nil
	}
	for p, d := range s.descriptorStates {
		d.release()
		delete(s.descriptorStates, p)
	}
	s.graphicsDescriptors = nil
	s.computeDescriptors = nil

	s.numVertexBuffers = 0
	s.indexType = IndexTypeUint32
	s.numPushConstants = 0
	s.numViewports = 0
	s.numScissors = 0
	s.blendFactor = [4]float32{}
	s.ResetStateForNewCommandBuffer()
}

// GraphicsPipeline returns the current graphics pipeline, or nil.
func (s *ContextState) GraphicsPipeline() rhi.GraphicsPipelineState {
	if s.graphicsPipeline == nil {
		return nil
	}
	return s.graphicsPipeline
}

// ComputePipeline returns the current compute pipeline, or nil.
func (s *ContextState) ComputePipeline() rhi.ComputePipelineState {
	if s.computePipeline == nil {
		return nil
	}
	return s.computePipeline
}
