package rhi

// Context is the immediate execution context of a backend. Every method
// except Begin, End and Flush corresponds to exactly one command a
// [github.com/gogpu/rhi/cmdlist.CommandList] can record, and takes the same
// parameters.
//
// A Context is not safe for concurrent use. The command queue serializes
// access to it.
//
// Methods that bind or draw do not return errors. Misuse is a programmer
// error and is reported through the logger and [DebugBreak]; driver
// failures during recording are logged and surface from the next End or
// Flush.
type Context interface {
	// Begin starts recording a batch of commands.
	Begin() error

	// End finishes the batch and submits it to the GPU without waiting.
	End() error

	// Flush submits any open batch and blocks until all submitted work has
	// completed on the GPU.
	Flush() error

	BeginTimeStamp(query TimestampQuery, index uint32)
	EndTimeStamp(query TimestampQuery, index uint32)

	ClearRenderTargetView(rtv RenderTargetView, color Color)
	ClearDepthStencilView(dsv DepthStencilView, value DepthStencilValue)
	ClearUnorderedAccessViewFloat(uav UnorderedAccessView, color Color)

	SetShadingRate(rate ShadingRate)
	SetShadingRateImage(image Texture)

	// BeginRenderPass starts a render pass over the targets given to the
	// last SetRenderTargets call.
	BeginRenderPass()
	EndRenderPass()

	SetViewport(width, height, minDepth, maxDepth, x, y float32)
	SetScissorRect(width, height, x, y float32)
	SetBlendFactor(color Color)
	SetRenderTargets(rtvs []RenderTargetView, dsv DepthStencilView)
	SetPrimitiveTopology(topology PrimitiveTopology)

	// SetVertexBuffers binds buffers to consecutive slots starting at slot.
	SetVertexBuffers(buffers []Buffer, slot uint32)

	// SetIndexBuffer binds an index buffer. IndexFormatUnknown derives the
	// format from the buffer stride (2 selects 16-bit indices, anything
	// else 32-bit).
	SetIndexBuffer(buffer Buffer, format IndexFormat)

	SetGraphicsPipelineState(pipeline GraphicsPipelineState)
	SetComputePipelineState(pipeline ComputePipelineState)
	SetRayTracingBindings(scene RayTracingScene, pipeline RayTracingPipelineState,
		global, rayGen, miss *RayTracingShaderResources, hitGroups []RayTracingShaderResources)

	Set32BitShaderConstants(shader Shader, constants []uint32)
	SetShaderResourceView(shader Shader, srv ShaderResourceView, index uint32)
	SetShaderResourceViews(shader Shader, srvs []ShaderResourceView, index uint32)
	SetUnorderedAccessView(shader Shader, uav UnorderedAccessView, index uint32)
	SetUnorderedAccessViews(shader Shader, uavs []UnorderedAccessView, index uint32)
	SetConstantBuffer(shader Shader, buffer Buffer, index uint32)
	SetConstantBuffers(shader Shader, buffers []Buffer, index uint32)
	SetSamplerState(shader Shader, sampler SamplerState, index uint32)
	SetSamplerStates(shader Shader, samplers []SamplerState, index uint32)

	ResolveTexture(dst, src Texture)
	UpdateBuffer(dst Buffer, offset uint64, data []byte)
	UpdateTexture2D(dst Texture, width, height, mipLevel uint32, data []byte)
	CopyBuffer(dst, src Buffer, info CopyBufferInfo)
	CopyTexture(dst, src Texture)
	CopyTextureRegion(dst, src Texture, info CopyTextureInfo)
	DiscardResource(resource Resource)

	BuildRayTracingGeometry(geometry RayTracingGeometry, vertices, indices Buffer, update bool)
	BuildRayTracingScene(scene RayTracingScene, instances []RayTracingGeometryInstance, update bool)

	GenerateMips(texture Texture)

	TransitionTexture(texture Texture, before, after ResourceAccess)
	TransitionBuffer(buffer Buffer, before, after ResourceAccess)
	UnorderedAccessTextureBarrier(texture Texture)
	UnorderedAccessBufferBarrier(buffer Buffer)

	Draw(vertexCount, startVertex uint32)
	DrawIndexed(indexCount, startIndex, baseVertex uint32)
	DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32)
	DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex, baseVertex, startInstance uint32)
	Dispatch(groupsX, groupsY, groupsZ uint32)
	DispatchRays(scene RayTracingScene, pipeline RayTracingPipelineState, width, height, depth uint32)

	// InsertMarker records a debug marker. marker is only valid for the
	// duration of the call.
	InsertMarker(marker string)
	BeginExternalCapture()
	EndExternalCapture()
}
