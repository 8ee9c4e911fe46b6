package cmdlist

import (
	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/arena"
)

// CommandList records RHI operations for later execution by a
// [CommandQueue].
//
// Every recording method adds a reference to each resource it captures;
// the reference is dropped when the list is reset, which the queue does
// right after execution. Variable-length arguments are copied into storage
// owned by the list, so callers may reuse their slices immediately.
//
// A CommandList is append-only and not safe for concurrent use. Use one
// list per recording goroutine.
type CommandList struct {
	commands []Command

	bytes     *arena.Arena
	rtvs      arena.Slab[rhi.RenderTargetView]
	buffers   arena.Slab[rhi.Buffer]
	srvs      arena.Slab[rhi.ShaderResourceView]
	uavs      arena.Slab[rhi.UnorderedAccessView]
	samplers  arena.Slab[rhi.SamplerState]
	instances arena.Slab[rhi.RayTracingGeometryInstance]
	tables    arena.Slab[rhi.RayTracingShaderResources]

	numDrawCalls     int
	numDispatchCalls int
}

// New creates an empty command list.
func New() *CommandList {
	return &CommandList{
		commands: make([]Command, 0, 256),
		bytes:    arena.New(0),
	}
}

func (l *CommandList) insert(c Command) {
	l.commands = append(l.commands, c)
	if c.Type().IsDraw() {
		l.numDrawCalls++
	} else if c.Type() == CmdDispatch {
		l.numDispatchCalls++
	}
}

// NumDrawCalls returns the number of draw commands recorded.
func (l *CommandList) NumDrawCalls() int { return l.numDrawCalls }

// NumDispatchCalls returns the number of compute dispatches recorded.
func (l *CommandList) NumDispatchCalls() int { return l.numDispatchCalls }

// NumCommands returns the number of commands recorded.
func (l *CommandList) NumCommands() int { return len(l.commands) }

// Len is an alias for NumCommands.
func (l *CommandList) Len() int { return len(l.commands) }

// IsEmpty reports whether nothing has been recorded since the last Reset.
func (l *CommandList) IsEmpty() bool { return len(l.commands) == 0 }

// Commands returns the recorded commands in recording order. The slice and
// the commands it holds are owned by the list and must not be modified.
func (l *CommandList) Commands() []Command { return l.commands }

// ArenaStats returns statistics of the list's byte arena.
func (l *CommandList) ArenaStats() arena.Stats { return l.bytes.Stats() }

// Reset releases the references held by every recorded command in
// recording order, drops the commands, and resets the list storage and
// counters. A reset list can be recorded into again.
func (l *CommandList) Reset() {
	for i, c := range l.commands {
		c.release()
		l.commands[i] = nil
	}
	l.commands = l.commands[:0]

	l.bytes.Reset()
	l.rtvs.Reset()
	l.buffers.Reset()
	l.srvs.Reset()
	l.uavs.Reset()
	l.samplers.Reset()
	l.instances.Reset()
	l.tables.Reset()

	l.numDrawCalls = 0
	l.numDispatchCalls = 0
}

func mustNotBeNil(r rhi.Resource, op, arg string) {
	if r == nil {
		panic("cmdlist: " + op + ": " + arg + " is nil")
	}
}

func copyRefs[T rhi.Resource](s *arena.Slab[T], src []T) []T {
	dst := s.Copy(src)
	for _, r := range dst {
		rhi.AddRef(r)
	}
	return dst
}

// copyTable deep-copies a binding table into list storage and adds a
// reference to every resource it names.
func (l *CommandList) copyTable(dst *rhi.RayTracingShaderResources, src *rhi.RayTracingShaderResources) {
	dst.Identifier = arena.String(l.bytes, src.Identifier)
	dst.ConstantBuffers = copyRefs(&l.buffers, src.ConstantBuffers)
	dst.ShaderResources = copyRefs(&l.srvs, src.ShaderResources)
	dst.UnorderedAccess = copyRefs(&l.uavs, src.UnorderedAccess)
	dst.Samplers = copyRefs(&l.samplers, src.Samplers)
}

func (l *CommandList) copyTablePtr(src *rhi.RayTracingShaderResources) *rhi.RayTracingShaderResources {
	if src == nil {
		return nil
	}
	t := l.tables.Alloc(1)
	l.copyTable(&t[0], src)
	return &t[0]
}

// --------------------------------------------------------------------------
// Queries and markers
// --------------------------------------------------------------------------

// BeginTimeStamp records the begin timestamp of pair index of query.
func (l *CommandList) BeginTimeStamp(query rhi.TimestampQuery, index uint32) {
	mustNotBeNil(query, "BeginTimeStamp", "query")
	l.insert(&BeginTimeStampCommand{Query: rhi.AddRef(query), Index: index})
}

// EndTimeStamp records the end timestamp of pair index of query.
func (l *CommandList) EndTimeStamp(query rhi.TimestampQuery, index uint32) {
	mustNotBeNil(query, "EndTimeStamp", "query")
	l.insert(&EndTimeStampCommand{Query: rhi.AddRef(query), Index: index})
}

// InsertCommandListMarker records a debug marker. The marker is copied
// into the list, and the copy is handed to the context on execution.
func (l *CommandList) InsertCommandListMarker(marker string) {
	l.insert(&InsertMarkerCommand{Marker: arena.String(l.bytes, marker)})
}

// DebugBreak records a command that calls the debug break handler when it
// executes.
func (l *CommandList) DebugBreak() {
	l.insert(&DebugBreakCommand{})
}

// BeginExternalCapture records the start of a capture in an attached
// graphics debugger.
func (l *CommandList) BeginExternalCapture() {
	l.insert(&BeginExternalCaptureCommand{})
}

// EndExternalCapture records the end of a capture.
func (l *CommandList) EndExternalCapture() {
	l.insert(&EndExternalCaptureCommand{})
}

// --------------------------------------------------------------------------
// Clears
// --------------------------------------------------------------------------

// ClearRenderTargetView records a clear of a color view.
func (l *CommandList) ClearRenderTargetView(rtv rhi.RenderTargetView, color rhi.Color) {
	mustNotBeNil(rtv, "ClearRenderTargetView", "rtv")
	l.insert(&ClearRenderTargetViewCommand{RTV: rhi.AddRef(rtv), Color: color})
}

// ClearDepthStencilView records a clear of a depth/stencil view.
func (l *CommandList) ClearDepthStencilView(dsv rhi.DepthStencilView, value rhi.DepthStencilValue) {
	mustNotBeNil(dsv, "ClearDepthStencilView", "dsv")
	l.insert(&ClearDepthStencilViewCommand{DSV: rhi.AddRef(dsv), Value: value})
}

// ClearUnorderedAccessViewFloat records a clear of a read-write view.
func (l *CommandList) ClearUnorderedAccessViewFloat(uav rhi.UnorderedAccessView, color rhi.Color) {
	mustNotBeNil(uav, "ClearUnorderedAccessViewFloat", "uav")
	l.insert(&ClearUnorderedAccessViewFloatCommand{UAV: rhi.AddRef(uav), Color: color})
}

// --------------------------------------------------------------------------
// Fixed-function and pass state
// --------------------------------------------------------------------------

// SetShadingRate records the coarse shading rate.
func (l *CommandList) SetShadingRate(rate rhi.ShadingRate) {
	l.insert(&SetShadingRateCommand{Rate: rate})
}

// SetShadingRateImage records a shading rate image change. A nil image
// disables image-based shading rates.
func (l *CommandList) SetShadingRateImage(image rhi.Texture) {
	l.insert(&SetShadingRateImageCommand{Image: rhi.AddRef(image)})
}

// BeginRenderPass records the start of a pass on the bound targets.
func (l *CommandList) BeginRenderPass() {
	l.insert(&BeginRenderPassCommand{})
}

// EndRenderPass records the end of the current pass.
func (l *CommandList) EndRenderPass() {
	l.insert(&EndRenderPassCommand{})
}

// SetViewport records viewport 0.
func (l *CommandList) SetViewport(width, height, minDepth, maxDepth, x, y float32) {
	l.insert(&SetViewportCommand{
		Width: width, Height: height,
		MinDepth: minDepth, MaxDepth: maxDepth,
		X: x, Y: y,
	})
}

// SetScissorRect records scissor rectangle 0.
func (l *CommandList) SetScissorRect(width, height, x, y float32) {
	l.insert(&SetScissorRectCommand{Width: width, Height: height, X: x, Y: y})
}

// SetBlendFactor records the constant blend color.
func (l *CommandList) SetBlendFactor(color rhi.Color) {
	l.insert(&SetBlendFactorCommand{Color: color})
}

// SetRenderTargets records the color and depth attachments used by the
// next render pass. dsv may be nil; nil entries in rtvs leave the slot
// unbound.
func (l *CommandList) SetRenderTargets(rtvs []rhi.RenderTargetView, dsv rhi.DepthStencilView) {
	l.insert(&SetRenderTargetsCommand{
		RTVs: copyRefs(&l.rtvs, rtvs),
		DSV:  rhi.AddRef(dsv),
	})
}

// SetPrimitiveTopology records the topology of later draws.
func (l *CommandList) SetPrimitiveTopology(topology rhi.PrimitiveTopology) {
	l.insert(&SetPrimitiveTopologyCommand{Topology: topology})
}

// SetVertexBuffers records vertex buffer bindings for consecutive slots
// starting at slot.
func (l *CommandList) SetVertexBuffers(buffers []rhi.Buffer, slot uint32) {
	l.insert(&SetVertexBuffersCommand{Buffers: copyRefs(&l.buffers, buffers), Slot: slot})
}

// SetIndexBuffer records the index buffer binding.
func (l *CommandList) SetIndexBuffer(buffer rhi.Buffer, format rhi.IndexFormat) {
	l.insert(&SetIndexBufferCommand{Buffer: rhi.AddRef(buffer), Format: format})
}

// --------------------------------------------------------------------------
// Pipelines and shader bindings
// --------------------------------------------------------------------------

// SetGraphicsPipelineState records a graphics pipeline bind. nil unbinds.
func (l *CommandList) SetGraphicsPipelineState(pipeline rhi.GraphicsPipelineState) {
	l.insert(&SetGraphicsPipelineStateCommand{Pipeline: rhi.AddRef(pipeline)})
}

// SetComputePipelineState records a compute pipeline bind. nil unbinds.
func (l *CommandList) SetComputePipelineState(pipeline rhi.ComputePipelineState) {
	l.insert(&SetComputePipelineStateCommand{Pipeline: rhi.AddRef(pipeline)})
}

// SetRayTracingBindings records the binding tables of a ray-tracing
// dispatch. The tables are deep-copied.
func (l *CommandList) SetRayTracingBindings(scene rhi.RayTracingScene, pipeline rhi.RayTracingPipelineState,
	global, rayGen, miss *rhi.RayTracingShaderResources, hitGroups []rhi.RayTracingShaderResources) {
	mustNotBeNil(scene, "SetRayTracingBindings", "scene")
	mustNotBeNil(pipeline, "SetRayTracingBindings", "pipeline")

	groups := l.tables.Alloc(len(hitGroups))
	for i := range hitGroups {
		l.copyTable(&groups[i], &hitGroups[i])
	}
	l.insert(&SetRayTracingBindingsCommand{
		Scene:     rhi.AddRef(scene),
		Pipeline:  rhi.AddRef(pipeline),
		Global:    l.copyTablePtr(global),
		RayGen:    l.copyTablePtr(rayGen),
		Miss:      l.copyTablePtr(miss),
		HitGroups: groups,
	})
}

// Set32BitShaderConstants records inline constants for shader. The values
// are copied.
func (l *CommandList) Set32BitShaderConstants(shader rhi.Shader, constants []uint32) {
	mustNotBeNil(shader, "Set32BitShaderConstants", "shader")
	l.insert(&Set32BitShaderConstantsCommand{
		Shader:    rhi.AddRef(shader),
		Constants: arena.Uint32s(l.bytes, constants),
	})
}

// SetShaderResourceView records an SRV bind at slot index of shader.
func (l *CommandList) SetShaderResourceView(shader rhi.Shader, srv rhi.ShaderResourceView, index uint32) {
	mustNotBeNil(shader, "SetShaderResourceView", "shader")
	l.insert(&SetShaderResourceViewCommand{Shader: rhi.AddRef(shader), SRV: rhi.AddRef(srv), Index: index})
}

// SetShaderResourceViews binds srvs to consecutive slots from index.
func (l *CommandList) SetShaderResourceViews(shader rhi.Shader, srvs []rhi.ShaderResourceView, index uint32) {
	mustNotBeNil(shader, "SetShaderResourceViews", "shader")
	l.insert(&SetShaderResourceViewsCommand{Shader: rhi.AddRef(shader), SRVs: copyRefs(&l.srvs, srvs), Index: index})
}

// SetUnorderedAccessView records a UAV bind at slot index of shader.
func (l *CommandList) SetUnorderedAccessView(shader rhi.Shader, uav rhi.UnorderedAccessView, index uint32) {
	mustNotBeNil(shader, "SetUnorderedAccessView", "shader")
	l.insert(&SetUnorderedAccessViewCommand{Shader: rhi.AddRef(shader), UAV: rhi.AddRef(uav), Index: index})
}

// SetUnorderedAccessViews binds uavs to consecutive slots from index.
func (l *CommandList) SetUnorderedAccessViews(shader rhi.Shader, uavs []rhi.UnorderedAccessView, index uint32) {
	mustNotBeNil(shader, "SetUnorderedAccessViews", "shader")
	l.insert(&SetUnorderedAccessViewsCommand{Shader: rhi.AddRef(shader), UAVs: copyRefs(&l.uavs, uavs), Index: index})
}

// SetConstantBuffer records a constant buffer bind at slot index of shader.
func (l *CommandList) SetConstantBuffer(shader rhi.Shader, buffer rhi.Buffer, index uint32) {
	mustNotBeNil(shader, "SetConstantBuffer", "shader")
	l.insert(&SetConstantBufferCommand{Shader: rhi.AddRef(shader), Buffer: rhi.AddRef(buffer), Index: index})
}

// SetConstantBuffers binds buffers to consecutive slots from index.
func (l *CommandList) SetConstantBuffers(shader rhi.Shader, buffers []rhi.Buffer, index uint32) {
	mustNotBeNil(shader, "SetConstantBuffers", "shader")
	l.insert(&SetConstantBuffersCommand{Shader: rhi.AddRef(shader), Buffers: copyRefs(&l.buffers, buffers), Index: index})
}

// SetSamplerState records a sampler bind at slot index of shader.
func (l *CommandList) SetSamplerState(shader rhi.Shader, sampler rhi.SamplerState, index uint32) {
	mustNotBeNil(shader, "SetSamplerState", "shader")
	l.insert(&SetSamplerStateCommand{Shader: rhi.AddRef(shader), Sampler: rhi.AddRef(sampler), Index: index})
}

// SetSamplerStates binds samplers to consecutive slots from index.
func (l *CommandList) SetSamplerStates(shader rhi.Shader, samplers []rhi.SamplerState, index uint32) {
	mustNotBeNil(shader, "SetSamplerStates", "shader")
	l.insert(&SetSamplerStatesCommand{Shader: rhi.AddRef(shader), Samplers: copyRefs(&l.samplers, samplers), Index: index})
}

// --------------------------------------------------------------------------
// Transfers
// --------------------------------------------------------------------------

// ResolveTexture records a resolve of multisampled src into dst.
func (l *CommandList) ResolveTexture(dst, src rhi.Texture) {
	mustNotBeNil(dst, "ResolveTexture", "dst")
	mustNotBeNil(src, "ResolveTexture", "src")
	l.insert(&ResolveTextureCommand{Dst: rhi.AddRef(dst), Src: rhi.AddRef(src)})
}

// UpdateBuffer records a write of data into dst at offset. data is copied.
func (l *CommandList) UpdateBuffer(dst rhi.Buffer, offset uint64, data []byte) {
	mustNotBeNil(dst, "UpdateBuffer", "dst")
	l.insert(&UpdateBufferCommand{Dst: rhi.AddRef(dst), Offset: offset, Data: arena.Bytes(l.bytes, data)})
}

// UpdateTexture2D records a write of width x height tightly packed texels
// into mip level mipLevel of dst. data is copied.
func (l *CommandList) UpdateTexture2D(dst rhi.Texture, width, height, mipLevel uint32, data []byte) {
	mustNotBeNil(dst, "UpdateTexture2D", "dst")
	l.insert(&UpdateTexture2DCommand{
		Dst:      rhi.AddRef(dst),
		Width:    width,
		Height:   height,
		MipLevel: mipLevel,
		Data:     arena.Bytes(l.bytes, data),
	})
}

// CopyBuffer records a buffer range copy.
func (l *CommandList) CopyBuffer(dst, src rhi.Buffer, info rhi.CopyBufferInfo) {
	mustNotBeNil(dst, "CopyBuffer", "dst")
	mustNotBeNil(src, "CopyBuffer", "src")
	l.insert(&CopyBufferCommand{Dst: rhi.AddRef(dst), Src: rhi.AddRef(src), Info: info})
}

// CopyTexture records a copy of every subresource of src into dst.
func (l *CommandList) CopyTexture(dst, src rhi.Texture) {
	mustNotBeNil(dst, "CopyTexture", "dst")
	mustNotBeNil(src, "CopyTexture", "src")
	l.insert(&CopyTextureCommand{Dst: rhi.AddRef(dst), Src: rhi.AddRef(src)})
}

// CopyTextureRegion records a copy of one texture region.
func (l *CommandList) CopyTextureRegion(dst, src rhi.Texture, info rhi.CopyTextureInfo) {
	mustNotBeNil(dst, "CopyTextureRegion", "dst")
	mustNotBeNil(src, "CopyTextureRegion", "src")
	l.insert(&CopyTextureRegionCommand{Dst: rhi.AddRef(dst), Src: rhi.AddRef(src), Info: info})
}

// DiscardResource records that the contents of resource are no longer needed.
func (l *CommandList) DiscardResource(resource rhi.Resource) {
	mustNotBeNil(resource, "DiscardResource", "resource")
	l.insert(&DiscardResourceCommand{Resource: rhi.AddRef(resource)})
}

// BuildRayTracingGeometry records a bottom-level acceleration structure
// build. indices may be nil for non-indexed geometry.
func (l *CommandList) BuildRayTracingGeometry(geometry rhi.RayTracingGeometry, vertices, indices rhi.Buffer, update bool) {
	mustNotBeNil(geometry, "BuildRayTracingGeometry", "geometry")
	mustNotBeNil(vertices, "BuildRayTracingGeometry", "vertices")
	l.insert(&BuildRayTracingGeometryCommand{
		Geometry: rhi.AddRef(geometry),
		Vertices: rhi.AddRef(vertices),
		Indices:  rhi.AddRef(indices),
		Update:   update,
	})
}

// BuildRayTracingScene records a top-level acceleration structure build.
// instances is copied and each instance geometry is referenced.
func (l *CommandList) BuildRayTracingScene(scene rhi.RayTracingScene, instances []rhi.RayTracingGeometryInstance, update bool) {
	mustNotBeNil(scene, "BuildRayTracingScene", "scene")
	inst := l.instances.Copy(instances)
	for i := range inst {
		rhi.AddRef(inst[i].Geometry)
	}
	l.insert(&BuildRayTracingSceneCommand{Scene: rhi.AddRef(scene), Instances: inst, Update: update})
}

// GenerateMips records mip generation from level 0.
func (l *CommandList) GenerateMips(texture rhi.Texture) {
	mustNotBeNil(texture, "GenerateMips", "texture")
	l.insert(&GenerateMipsCommand{Texture: rhi.AddRef(texture)})
}

// --------------------------------------------------------------------------
// Synchronization
// --------------------------------------------------------------------------

// TransitionTexture records a state transition. A transition to the same
// state records nothing and logs a warning.
func (l *CommandList) TransitionTexture(texture rhi.Texture, before, after rhi.ResourceAccess) {
	mustNotBeNil(texture, "TransitionTexture", "texture")
	if before == after {
		slogger().Warn("cmdlist: redundant texture transition ignored",
			"texture", rhi.ResourceName(texture), "state", before)
		return
	}
	l.insert(&TransitionTextureCommand{Texture: rhi.AddRef(texture), Before: before, After: after})
}

// TransitionBuffer records a state transition. A transition to the same
// state records nothing.
func (l *CommandList) TransitionBuffer(buffer rhi.Buffer, before, after rhi.ResourceAccess) {
	mustNotBeNil(buffer, "TransitionBuffer", "buffer")
	if before == after {
		slogger().Debug("cmdlist: redundant buffer transition ignored",
			"buffer", rhi.ResourceName(buffer), "state", before)
		return
	}
	l.insert(&TransitionBufferCommand{Buffer: rhi.AddRef(buffer), Before: before, After: after})
}

// UnorderedAccessTextureBarrier orders UAV writes to texture against later accesses.
func (l *CommandList) UnorderedAccessTextureBarrier(texture rhi.Texture) {
	mustNotBeNil(texture, "UnorderedAccessTextureBarrier", "texture")
	l.insert(&UnorderedAccessTextureBarrierCommand{Texture: rhi.AddRef(texture)})
}

// UnorderedAccessBufferBarrier orders UAV writes to buffer against later accesses.
func (l *CommandList) UnorderedAccessBufferBarrier(buffer rhi.Buffer) {
	mustNotBeNil(buffer, "UnorderedAccessBufferBarrier", "buffer")
	l.insert(&UnorderedAccessBufferBarrierCommand{Buffer: rhi.AddRef(buffer)})
}

// --------------------------------------------------------------------------
// Work
// --------------------------------------------------------------------------

// Draw records a non-indexed draw.
func (l *CommandList) Draw(vertexCount, startVertex uint32) {
	l.insert(&DrawCommand{VertexCount: vertexCount, StartVertex: startVertex})
}

// DrawIndexed records an indexed draw.
func (l *CommandList) DrawIndexed(indexCount, startIndex, baseVertex uint32) {
	l.insert(&DrawIndexedCommand{IndexCount: indexCount, StartIndex: startIndex, BaseVertex: baseVertex})
}

// DrawInstanced records an instanced draw.
func (l *CommandList) DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32) {
	l.insert(&DrawInstancedCommand{
		VertexCountPerInstance: vertexCountPerInstance,
		InstanceCount:          instanceCount,
		StartVertex:            startVertex,
		StartInstance:          startInstance,
	})
}

// DrawIndexedInstanced records an indexed instanced draw.
func (l *CommandList) DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex, baseVertex, startInstance uint32) {
	l.insert(&DrawIndexedInstancedCommand{
		IndexCountPerInstance: indexCountPerInstance,
		InstanceCount:         instanceCount,
		StartIndex:            startIndex,
		BaseVertex:            baseVertex,
		StartInstance:         startInstance,
	})
}

// Dispatch records a compute dispatch.
func (l *CommandList) Dispatch(groupsX, groupsY, groupsZ uint32) {
	l.insert(&DispatchCommand{GroupsX: groupsX, GroupsY: groupsY, GroupsZ: groupsZ})
}

// DispatchRays records a ray-tracing launch. It is not counted as a
// dispatch.
func (l *CommandList) DispatchRays(scene rhi.RayTracingScene, pipeline rhi.RayTracingPipelineState, width, height, depth uint32) {
	mustNotBeNil(scene, "DispatchRays", "scene")
	mustNotBeNil(pipeline, "DispatchRays", "pipeline")
	l.insert(&DispatchRaysCommand{
		Scene:    rhi.AddRef(scene),
		Pipeline: rhi.AddRef(pipeline),
		Width:    width,
		Height:   height,
		Depth:    depth,
	})
}
