package cmdlist

import "github.com/gogpu/rhi"

// CommandType identifies the RHI operation a command performs.
type CommandType uint8

const (
	// Queries and markers
	CmdBeginTimeStamp CommandType = iota
	CmdEndTimeStamp
	CmdInsertMarker
	CmdDebugBreak
	CmdBeginExternalCapture
	CmdEndExternalCapture

	// Clears
	CmdClearRenderTargetView
	CmdClearDepthStencilView
	CmdClearUnorderedAccessViewFloat

	// Fixed-function and pass state
	CmdSetShadingRate
	CmdSetShadingRateImage
	CmdBeginRenderPass
	CmdEndRenderPass
	CmdSetViewport
	CmdSetScissorRect
	CmdSetBlendFactor
	CmdSetRenderTargets
	CmdSetPrimitiveTopology
	CmdSetVertexBuffers
	CmdSetIndexBuffer

	// Pipelines and shader bindings
	CmdSetGraphicsPipelineState
	CmdSetComputePipelineState
	CmdSetRayTracingBindings
	CmdSet32BitShaderConstants
	CmdSetShaderResourceView
	CmdSetShaderResourceViews
	CmdSetUnorderedAccessView
	CmdSetUnorderedAccessViews
	CmdSetConstantBuffer
	CmdSetConstantBuffers
	CmdSetSamplerState
	CmdSetSamplerStates

	// Transfers
	CmdResolveTexture
	CmdUpdateBuffer
	CmdUpdateTexture2D
	CmdCopyBuffer
	CmdCopyTexture
	CmdCopyTextureRegion
	CmdDiscardResource
	CmdBuildRayTracingGeometry
	CmdBuildRayTracingScene
	CmdGenerateMips

	// Synchronization
	CmdTransitionTexture
	CmdTransitionBuffer
	CmdUnorderedAccessTextureBarrier
	CmdUnorderedAccessBufferBarrier

	// Work
	CmdDraw
	CmdDrawIndexed
	CmdDrawInstanced
	CmdDrawIndexedInstanced
	CmdDispatch
	CmdDispatchRays

	numCommandTypes
)

var commandTypeNames = [...]string{
	CmdBeginTimeStamp:                "BeginTimeStamp",
	CmdEndTimeStamp:                  "EndTimeStamp",
	CmdInsertMarker:                  "InsertMarker",
	CmdDebugBreak:                    "DebugBreak",
	CmdBeginExternalCapture:          "BeginExternalCapture",
	CmdEndExternalCapture:            "EndExternalCapture",
	CmdClearRenderTargetView:         "ClearRenderTargetView",
	CmdClearDepthStencilView:         "ClearDepthStencilView",
	CmdClearUnorderedAccessViewFloat: "ClearUnorderedAccessViewFloat",
	CmdSetShadingRate:                "SetShadingRate",
	CmdSetShadingRateImage:           "SetShadingRateImage",
	CmdBeginRenderPass:               "BeginRenderPass",
	CmdEndRenderPass:                 "EndRenderPass",
	CmdSetViewport:                   "SetViewport",
	CmdSetScissorRect:                "SetScissorRect",
	CmdSetBlendFactor:                "SetBlendFactor",
	CmdSetRenderTargets:              "SetRenderTargets",
	CmdSetPrimitiveTopology:          "SetPrimitiveTopology",
	CmdSetVertexBuffers:              "SetVertexBuffers",
	CmdSetIndexBuffer:                "SetIndexBuffer",
	CmdSetGraphicsPipelineState:      "SetGraphicsPipelineState",
	CmdSetComputePipelineState:       "SetComputePipelineState",
	CmdSetRayTracingBindings:         "SetRayTracingBindings",
	CmdSet32BitShaderConstants:       "Set32BitShaderConstants",
	CmdSetShaderResourceView:         "SetShaderResourceView",
	CmdSetShaderResourceViews:        "SetShaderResourceViews",
	CmdSetUnorderedAccessView:        "SetUnorderedAccessView",
	CmdSetUnorderedAccessViews:       "SetUnorderedAccessViews",
	CmdSetConstantBuffer:             "SetConstantBuffer",
	CmdSetConstantBuffers:            "SetConstantBuffers",
	CmdSetSamplerState:               "SetSamplerState",
	CmdSetSamplerStates:              "SetSamplerStates",
	CmdResolveTexture:                "ResolveTexture",
	CmdUpdateBuffer:                  "UpdateBuffer",
	CmdUpdateTexture2D:               "UpdateTexture2D",
	CmdCopyBuffer:                    "CopyBuffer",
	CmdCopyTexture:                   "CopyTexture",
	CmdCopyTextureRegion:             "CopyTextureRegion",
	CmdDiscardResource:               "DiscardResource",
	CmdBuildRayTracingGeometry:       "BuildRayTracingGeometry",
	CmdBuildRayTracingScene:          "BuildRayTracingScene",
	CmdGenerateMips:                  "GenerateMips",
	CmdTransitionTexture:             "TransitionTexture",
	CmdTransitionBuffer:              "TransitionBuffer",
	CmdUnorderedAccessTextureBarrier: "UnorderedAccessTextureBarrier",
	CmdUnorderedAccessBufferBarrier:  "UnorderedAccessBufferBarrier",
	CmdDraw:                          "Draw",
	CmdDrawIndexed:                   "DrawIndexed",
	CmdDrawInstanced:                 "DrawInstanced",
	CmdDrawIndexedInstanced:          "DrawIndexedInstanced",
	CmdDispatch:                      "Dispatch",
	CmdDispatchRays:                  "DispatchRays",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// IsDraw reports whether c is one of the draw commands counted by
// CommandList.NumDrawCalls.
func (c CommandType) IsDraw() bool {
	return c >= CmdDraw && c <= CmdDrawIndexedInstanced
}

// Command is a recorded RHI operation.
//
// Commands are created by CommandList methods and are immutable once
// recorded. Execute performs exactly one call on the context. The set of
// commands is closed: only this package can implement Command.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType

	// Execute issues the command's context call.
	Execute(ctx rhi.Context)

	// release drops the references the command holds.
	release()
}

func releaseAll[T rhi.Resource](rs []T) {
	for _, r := range rs {
		rhi.Release(r)
	}
}

func releaseShaderResources(rs []rhi.RayTracingShaderResources) {
	for i := range rs {
		rs[i].Resources(func(r rhi.Resource) { r.Release() })
	}
}

// --------------------------------------------------------------------------
// Queries and markers
// --------------------------------------------------------------------------

// BeginTimeStampCommand writes the begin timestamp of a query pair.
type BeginTimeStampCommand struct {
	Query rhi.TimestampQuery
	Index uint32
}

func (*BeginTimeStampCommand) Type() CommandType         { return CmdBeginTimeStamp }
func (c *BeginTimeStampCommand) Execute(ctx rhi.Context) { ctx.BeginTimeStamp(c.Query, c.Index) }
func (c *BeginTimeStampCommand) release()                { rhi.Release(c.Query) }

// EndTimeStampCommand writes the end timestamp of a query pair.
type EndTimeStampCommand struct {
	Query rhi.TimestampQuery
	Index uint32
}

func (*EndTimeStampCommand) Type() CommandType         { return CmdEndTimeStamp }
func (c *EndTimeStampCommand) Execute(ctx rhi.Context) { ctx.EndTimeStamp(c.Query, c.Index) }
func (c *EndTimeStampCommand) release()                { rhi.Release(c.Query) }

// InsertMarkerCommand inserts a debug marker. Marker is backed by the
// command list arena and is only valid until the list is reset; a context
// that keeps it past Execute must copy it.
type InsertMarkerCommand struct {
	Marker string
}

func (*InsertMarkerCommand) Type() CommandType         { return CmdInsertMarker }
func (c *InsertMarkerCommand) Execute(ctx rhi.Context) { ctx.InsertMarker(c.Marker) }
func (*InsertMarkerCommand) release()                  {}

// DebugBreakCommand invokes the process debug break handler when it is
// executed. It makes no context call.
type DebugBreakCommand struct{}

func (*DebugBreakCommand) Type() CommandType   { return CmdDebugBreak }
func (*DebugBreakCommand) Execute(rhi.Context) { rhi.DebugBreak("cmdlist: DebugBreak command executed") }
func (*DebugBreakCommand) release()            {}

// BeginExternalCaptureCommand starts a frame capture in an attached tool.
type BeginExternalCaptureCommand struct{}

func (*BeginExternalCaptureCommand) Type() CommandType       { return CmdBeginExternalCapture }
func (*BeginExternalCaptureCommand) Execute(ctx rhi.Context) { ctx.BeginExternalCapture() }
func (*BeginExternalCaptureCommand) release()                {}

// EndExternalCaptureCommand ends a frame capture.
type EndExternalCaptureCommand struct{}

func (*EndExternalCaptureCommand) Type() CommandType       { return CmdEndExternalCapture }
func (*EndExternalCaptureCommand) Execute(ctx rhi.Context) { ctx.EndExternalCapture() }
func (*EndExternalCaptureCommand) release()                {}

// --------------------------------------------------------------------------
// Clears
// --------------------------------------------------------------------------

// ClearRenderTargetViewCommand clears a color view.
type ClearRenderTargetViewCommand struct {
	RTV   rhi.RenderTargetView
	Color rhi.Color
}

func (*ClearRenderTargetViewCommand) Type() CommandType { return CmdClearRenderTargetView }
func (c *ClearRenderTargetViewCommand) Execute(ctx rhi.Context) {
	ctx.ClearRenderTargetView(c.RTV, c.Color)
}
func (c *ClearRenderTargetViewCommand) release() { rhi.Release(c.RTV) }

// ClearDepthStencilViewCommand clears a depth/stencil view.
type ClearDepthStencilViewCommand struct {
	DSV   rhi.DepthStencilView
	Value rhi.DepthStencilValue
}

func (*ClearDepthStencilViewCommand) Type() CommandType { return CmdClearDepthStencilView }
func (c *ClearDepthStencilViewCommand) Execute(ctx rhi.Context) {
	ctx.ClearDepthStencilView(c.DSV, c.Value)
}
func (c *ClearDepthStencilViewCommand) release() { rhi.Release(c.DSV) }

// ClearUnorderedAccessViewFloatCommand clears a read-write view to a
// floating point value.
type ClearUnorderedAccessViewFloatCommand struct {
	UAV   rhi.UnorderedAccessView
	Color rhi.Color
}

func (*ClearUnorderedAccessViewFloatCommand) Type() CommandType {
	return CmdClearUnorderedAccessViewFloat
}
func (c *ClearUnorderedAccessViewFloatCommand) Execute(ctx rhi.Context) {
	ctx.ClearUnorderedAccessViewFloat(c.UAV, c.Color)
}
func (c *ClearUnorderedAccessViewFloatCommand) release() { rhi.Release(c.UAV) }

// --------------------------------------------------------------------------
// Fixed-function and pass state
// --------------------------------------------------------------------------

// SetShadingRateCommand sets the variable-rate-shading tile size.
type SetShadingRateCommand struct {
	Rate rhi.ShadingRate
}

func (*SetShadingRateCommand) Type() CommandType         { return CmdSetShadingRate }
func (c *SetShadingRateCommand) Execute(ctx rhi.Context) { ctx.SetShadingRate(c.Rate) }
func (*SetShadingRateCommand) release()                  {}

// SetShadingRateImageCommand sets or clears (nil Image) the shading rate
// image.
type SetShadingRateImageCommand struct {
	Image rhi.Texture
}

func (*SetShadingRateImageCommand) Type() CommandType         { return CmdSetShadingRateImage }
func (c *SetShadingRateImageCommand) Execute(ctx rhi.Context) { ctx.SetShadingRateImage(c.Image) }
func (c *SetShadingRateImageCommand) release()                { rhi.Release(c.Image) }

// BeginRenderPassCommand starts a render pass over the current targets.
type BeginRenderPassCommand struct{}

func (*BeginRenderPassCommand) Type() CommandType       { return CmdBeginRenderPass }
func (*BeginRenderPassCommand) Execute(ctx rhi.Context) { ctx.BeginRenderPass() }
func (*BeginRenderPassCommand) release()                {}

// EndRenderPassCommand ends the current render pass.
type EndRenderPassCommand struct{}

func (*EndRenderPassCommand) Type() CommandType       { return CmdEndRenderPass }
func (*EndRenderPassCommand) Execute(ctx rhi.Context) { ctx.EndRenderPass() }
func (*EndRenderPassCommand) release()                {}

// SetViewportCommand sets viewport 0.
type SetViewportCommand struct {
	Width, Height      float32
	MinDepth, MaxDepth float32
	X, Y               float32
}

func (*SetViewportCommand) Type() CommandType { return CmdSetViewport }
func (c *SetViewportCommand) Execute(ctx rhi.Context) {
	ctx.SetViewport(c.Width, c.Height, c.MinDepth, c.MaxDepth, c.X, c.Y)
}
func (*SetViewportCommand) release() {}

// SetScissorRectCommand sets scissor rectangle 0.
type SetScissorRectCommand struct {
	Width, Height float32
	X, Y          float32
}

func (*SetScissorRectCommand) Type() CommandType { return CmdSetScissorRect }
func (c *SetScissorRectCommand) Execute(ctx rhi.Context) {
	ctx.SetScissorRect(c.Width, c.Height, c.X, c.Y)
}
func (*SetScissorRectCommand) release() {}

// SetBlendFactorCommand sets the constant blend color.
type SetBlendFactorCommand struct {
	Color rhi.Color
}

func (*SetBlendFactorCommand) Type() CommandType         { return CmdSetBlendFactor }
func (c *SetBlendFactorCommand) Execute(ctx rhi.Context) { ctx.SetBlendFactor(c.Color) }
func (*SetBlendFactorCommand) release()                  {}

// SetRenderTargetsCommand binds color and depth attachments. RTVs is backed
// by the command list arena.
type SetRenderTargetsCommand struct {
	RTVs []rhi.RenderTargetView
	DSV  rhi.DepthStencilView
}

func (*SetRenderTargetsCommand) Type() CommandType         { return CmdSetRenderTargets }
func (c *SetRenderTargetsCommand) Execute(ctx rhi.Context) { ctx.SetRenderTargets(c.RTVs, c.DSV) }
func (c *SetRenderTargetsCommand) release() {
	releaseAll(c.RTVs)
	rhi.Release(c.DSV)
}

// SetPrimitiveTopologyCommand sets the primitive topology.
type SetPrimitiveTopologyCommand struct {
	Topology rhi.PrimitiveTopology
}

func (*SetPrimitiveTopologyCommand) Type() CommandType { return CmdSetPrimitiveTopology }
func (c *SetPrimitiveTopologyCommand) Execute(ctx rhi.Context) {
	ctx.SetPrimitiveTopology(c.Topology)
}
func (*SetPrimitiveTopologyCommand) release() {}

// SetVertexBuffersCommand binds vertex buffers starting at Slot.
type SetVertexBuffersCommand struct {
	Buffers []rhi.Buffer
	Slot    uint32
}

func (*SetVertexBuffersCommand) Type() CommandType         { return CmdSetVertexBuffers }
func (c *SetVertexBuffersCommand) Execute(ctx rhi.Context) { ctx.SetVertexBuffers(c.Buffers, c.Slot) }
func (c *SetVertexBuffersCommand) release()                { releaseAll(c.Buffers) }

// SetIndexBufferCommand binds the index buffer.
type SetIndexBufferCommand struct {
	Buffer rhi.Buffer
	Format rhi.IndexFormat
}

func (*SetIndexBufferCommand) Type() CommandType         { return CmdSetIndexBuffer }
func (c *SetIndexBufferCommand) Execute(ctx rhi.Context) { ctx.SetIndexBuffer(c.Buffer, c.Format) }
func (c *SetIndexBufferCommand) release()                { rhi.Release(c.Buffer) }

// --------------------------------------------------------------------------
// Pipelines and shader bindings
// --------------------------------------------------------------------------

// SetGraphicsPipelineStateCommand binds a graphics pipeline.
type SetGraphicsPipelineStateCommand struct {
	Pipeline rhi.GraphicsPipelineState
}

func (*SetGraphicsPipelineStateCommand) Type() CommandType { return CmdSetGraphicsPipelineState }
func (c *SetGraphicsPipelineStateCommand) Execute(ctx rhi.Context) {
	ctx.SetGraphicsPipelineState(c.Pipeline)
}
func (c *SetGraphicsPipelineStateCommand) release() { rhi.Release(c.Pipeline) }

// SetComputePipelineStateCommand binds a compute pipeline.
type SetComputePipelineStateCommand struct {
	Pipeline rhi.ComputePipelineState
}

func (*SetComputePipelineStateCommand) Type() CommandType { return CmdSetComputePipelineState }
func (c *SetComputePipelineStateCommand) Execute(ctx rhi.Context) {
	ctx.SetComputePipelineState(c.Pipeline)
}
func (c *SetComputePipelineStateCommand) release() { rhi.Release(c.Pipeline) }

// SetRayTracingBindingsCommand binds the resources of a ray-tracing
// dispatch. The binding tables are deep copies backed by the command list
// arena; nil tables stay nil.
type SetRayTracingBindingsCommand struct {
	Scene     rhi.RayTracingScene
	Pipeline  rhi.RayTracingPipelineState
	Global    *rhi.RayTracingShaderResources
	RayGen    *rhi.RayTracingShaderResources
	Miss      *rhi.RayTracingShaderResources
	HitGroups []rhi.RayTracingShaderResources
}

func (*SetRayTracingBindingsCommand) Type() CommandType { return CmdSetRayTracingBindings }
func (c *SetRayTracingBindingsCommand) Execute(ctx rhi.Context) {
	ctx.SetRayTracingBindings(c.Scene, c.Pipeline, c.Global, c.RayGen, c.Miss, c.HitGroups)
}
func (c *SetRayTracingBindingsCommand) release() {
	rhi.Release(c.Scene)
	rhi.Release(c.Pipeline)
	for _, t := range []*rhi.RayTracingShaderResources{c.Global, c.RayGen, c.Miss} {
		if t != nil {
			releaseShaderResources([]rhi.RayTracingShaderResources{*t})
		}
	}
	releaseShaderResources(c.HitGroups)
}

// Set32BitShaderConstantsCommand sets inline constants. Constants is
// backed by the command list arena.
type Set32BitShaderConstantsCommand struct {
	Shader    rhi.Shader
	Constants []uint32
}

func (*Set32BitShaderConstantsCommand) Type() CommandType { return CmdSet32BitShaderConstants }
func (c *Set32BitShaderConstantsCommand) Execute(ctx rhi.Context) {
	ctx.Set32BitShaderConstants(c.Shader, c.Constants)
}
func (c *Set32BitShaderConstantsCommand) release() { rhi.Release(c.Shader) }

// SetShaderResourceViewCommand binds one read-only view.
type SetShaderResourceViewCommand struct {
	Shader rhi.Shader
	SRV    rhi.ShaderResourceView
	Index  uint32
}

func (*SetShaderResourceViewCommand) Type() CommandType { return CmdSetShaderResourceView }
func (c *SetShaderResourceViewCommand) Execute(ctx rhi.Context) {
	ctx.SetShaderResourceView(c.Shader, c.SRV, c.Index)
}
func (c *SetShaderResourceViewCommand) release() {
	rhi.Release(c.Shader)
	rhi.Release(c.SRV)
}

// SetShaderResourceViewsCommand binds consecutive read-only views.
type SetShaderResourceViewsCommand struct {
	Shader rhi.Shader
	SRVs   []rhi.ShaderResourceView
	Index  uint32
}

func (*SetShaderResourceViewsCommand) Type() CommandType { return CmdSetShaderResourceViews }
func (c *SetShaderResourceViewsCommand) Execute(ctx rhi.Context) {
	ctx.SetShaderResourceViews(c.Shader, c.SRVs, c.Index)
}
func (c *SetShaderResourceViewsCommand) release() {
	rhi.Release(c.Shader)
	releaseAll(c.SRVs)
}

// SetUnorderedAccessViewCommand binds one read-write view.
type SetUnorderedAccessViewCommand struct {
	Shader rhi.Shader
	UAV    rhi.UnorderedAccessView
	Index  uint32
}

func (*SetUnorderedAccessViewCommand) Type() CommandType { return CmdSetUnorderedAccessView }
func (c *SetUnorderedAccessViewCommand) Execute(ctx rhi.Context) {
	ctx.SetUnorderedAccessView(c.Shader, c.UAV, c.Index)
}
func (c *SetUnorderedAccessViewCommand) release() {
	rhi.Release(c.Shader)
	rhi.Release(c.UAV)
}

// SetUnorderedAccessViewsCommand binds consecutive read-write views.
type SetUnorderedAccessViewsCommand struct {
	Shader rhi.Shader
	UAVs   []rhi.UnorderedAccessView
	Index  uint32
}

func (*SetUnorderedAccessViewsCommand) Type() CommandType { return CmdSetUnorderedAccessViews }
func (c *SetUnorderedAccessViewsCommand) Execute(ctx rhi.Context) {
	ctx.SetUnorderedAccessViews(c.Shader, c.UAVs, c.Index)
}
func (c *SetUnorderedAccessViewsCommand) release() {
	rhi.Release(c.Shader)
	releaseAll(c.UAVs)
}

// SetConstantBufferCommand binds one constant buffer.
type SetConstantBufferCommand struct {
	Shader rhi.Shader
	Buffer rhi.Buffer
	Index  uint32
}

func (*SetConstantBufferCommand) Type() CommandType { return CmdSetConstantBuffer }
func (c *SetConstantBufferCommand) Execute(ctx rhi.Context) {
	ctx.SetConstantBuffer(c.Shader, c.Buffer, c.Index)
}
func (c *SetConstantBufferCommand) release() {
	rhi.Release(c.Shader)
	rhi.Release(c.Buffer)
}

// SetConstantBuffersCommand binds consecutive constant buffers.
type SetConstantBuffersCommand struct {
	Shader  rhi.Shader
	Buffers []rhi.Buffer
	Index   uint32
}

func (*SetConstantBuffersCommand) Type() CommandType { return CmdSetConstantBuffers }
func (c *SetConstantBuffersCommand) Execute(ctx rhi.Context) {
	ctx.SetConstantBuffers(c.Shader, c.Buffers, c.Index)
}
func (c *SetConstantBuffersCommand) release() {
	rhi.Release(c.Shader)
	releaseAll(c.Buffers)
}

// SetSamplerStateCommand binds one sampler.
type SetSamplerStateCommand struct {
	Shader  rhi.Shader
	Sampler rhi.SamplerState
	Index   uint32
}

func (*SetSamplerStateCommand) Type() CommandType { return CmdSetSamplerState }
func (c *SetSamplerStateCommand) Execute(ctx rhi.Context) {
	ctx.SetSamplerState(c.Shader, c.Sampler, c.Index)
}
func (c *SetSamplerStateCommand) release() {
	rhi.Release(c.Shader)
	rhi.Release(c.Sampler)
}

// SetSamplerStatesCommand binds consecutive samplers.
type SetSamplerStatesCommand struct {
	Shader   rhi.Shader
	Samplers []rhi.SamplerState
	Index    uint32
}

func (*SetSamplerStatesCommand) Type() CommandType { return CmdSetSamplerStates }
func (c *SetSamplerStatesCommand) Execute(ctx rhi.Context) {
	ctx.SetSamplerStates(c.Shader, c.Samplers, c.Index)
}
func (c *SetSamplerStatesCommand) release() {
	rhi.Release(c.Shader)
	releaseAll(c.Samplers)
}

// --------------------------------------------------------------------------
// Transfers
// --------------------------------------------------------------------------

// ResolveTextureCommand resolves a multisampled texture.
type ResolveTextureCommand struct {
	Dst, Src rhi.Texture
}

func (*ResolveTextureCommand) Type() CommandType         { return CmdResolveTexture }
func (c *ResolveTextureCommand) Execute(ctx rhi.Context) { ctx.ResolveTexture(c.Dst, c.Src) }
func (c *ResolveTextureCommand) release() {
	rhi.Release(c.Dst)
	rhi.Release(c.Src)
}

// UpdateBufferCommand writes Data into Dst at Offset. Data is backed by
// the command list arena.
type UpdateBufferCommand struct {
	Dst    rhi.Buffer
	Offset uint64
	Data   []byte
}

func (*UpdateBufferCommand) Type() CommandType         { return CmdUpdateBuffer }
func (c *UpdateBufferCommand) Execute(ctx rhi.Context) { ctx.UpdateBuffer(c.Dst, c.Offset, c.Data) }
func (c *UpdateBufferCommand) release()                { rhi.Release(c.Dst) }

// UpdateTexture2DCommand writes tightly packed texels into a mip level.
type UpdateTexture2DCommand struct {
	Dst           rhi.Texture
	Width, Height uint32
	MipLevel      uint32
	Data          []byte
}

func (*UpdateTexture2DCommand) Type() CommandType { return CmdUpdateTexture2D }
func (c *UpdateTexture2DCommand) Execute(ctx rhi.Context) {
	ctx.UpdateTexture2D(c.Dst, c.Width, c.Height, c.MipLevel, c.Data)
}
func (c *UpdateTexture2DCommand) release() { rhi.Release(c.Dst) }

// CopyBufferCommand copies a buffer range.
type CopyBufferCommand struct {
	Dst, Src rhi.Buffer
	Info     rhi.CopyBufferInfo
}

func (*CopyBufferCommand) Type() CommandType         { return CmdCopyBuffer }
func (c *CopyBufferCommand) Execute(ctx rhi.Context) { ctx.CopyBuffer(c.Dst, c.Src, c.Info) }
func (c *CopyBufferCommand) release() {
	rhi.Release(c.Dst)
	rhi.Release(c.Src)
}

// CopyTextureCommand copies a whole texture.
type CopyTextureCommand struct {
	Dst, Src rhi.Texture
}

func (*CopyTextureCommand) Type() CommandType         { return CmdCopyTexture }
func (c *CopyTextureCommand) Execute(ctx rhi.Context) { ctx.CopyTexture(c.Dst, c.Src) }
func (c *CopyTextureCommand) release() {
	rhi.Release(c.Dst)
	rhi.Release(c.Src)
}

// CopyTextureRegionCommand copies a texture region.
type CopyTextureRegionCommand struct {
	Dst, Src rhi.Texture
	Info     rhi.CopyTextureInfo
}

func (*CopyTextureRegionCommand) Type() CommandType { return CmdCopyTextureRegion }
func (c *CopyTextureRegionCommand) Execute(ctx rhi.Context) {
	ctx.CopyTextureRegion(c.Dst, c.Src, c.Info)
}
func (c *CopyTextureRegionCommand) release() {
	rhi.Release(c.Dst)
	rhi.Release(c.Src)
}

// DiscardResourceCommand marks the contents of a resource undefined.
type DiscardResourceCommand struct {
	Resource rhi.Resource
}

func (*DiscardResourceCommand) Type() CommandType         { return CmdDiscardResource }
func (c *DiscardResourceCommand) Execute(ctx rhi.Context) { ctx.DiscardResource(c.Resource) }
func (c *DiscardResourceCommand) release()                { rhi.Release(c.Resource) }

// BuildRayTracingGeometryCommand builds or refits a bottom-level structure.
type BuildRayTracingGeometryCommand struct {
	Geometry rhi.RayTracingGeometry
	Vertices rhi.Buffer
	Indices  rhi.Buffer
	Update   bool
}

func (*BuildRayTracingGeometryCommand) Type() CommandType { return CmdBuildRayTracingGeometry }
func (c *BuildRayTracingGeometryCommand) Execute(ctx rhi.Context) {
	ctx.BuildRayTracingGeometry(c.Geometry, c.Vertices, c.Indices, c.Update)
}
func (c *BuildRayTracingGeometryCommand) release() {
	rhi.Release(c.Geometry)
	rhi.Release(c.Vertices)
	rhi.Release(c.Indices)
}

// BuildRayTracingSceneCommand builds or refits a top-level structure.
type BuildRayTracingSceneCommand struct {
	Scene     rhi.RayTracingScene
	Instances []rhi.RayTracingGeometryInstance
	Update    bool
}

func (*BuildRayTracingSceneCommand) Type() CommandType { return CmdBuildRayTracingScene }
func (c *BuildRayTracingSceneCommand) Execute(ctx rhi.Context) {
	ctx.BuildRayTracingScene(c.Scene, c.Instances, c.Update)
}
func (c *BuildRayTracingSceneCommand) release() {
	rhi.Release(c.Scene)
	for i := range c.Instances {
		rhi.Release(c.Instances[i].Geometry)
	}
}

// GenerateMipsCommand fills mip levels 1..n from level 0.
type GenerateMipsCommand struct {
	Texture rhi.Texture
}

func (*GenerateMipsCommand) Type() CommandType         { return CmdGenerateMips }
func (c *GenerateMipsCommand) Execute(ctx rhi.Context) { ctx.GenerateMips(c.Texture) }
func (c *GenerateMipsCommand) release()                { rhi.Release(c.Texture) }

// --------------------------------------------------------------------------
// Synchronization
// --------------------------------------------------------------------------

// TransitionTextureCommand moves a texture between access states.
type TransitionTextureCommand struct {
	Texture       rhi.Texture
	Before, After rhi.ResourceAccess
}

func (*TransitionTextureCommand) Type() CommandType { return CmdTransitionTexture }
func (c *TransitionTextureCommand) Execute(ctx rhi.Context) {
	ctx.TransitionTexture(c.Texture, c.Before, c.After)
}
func (c *TransitionTextureCommand) release() { rhi.Release(c.Texture) }

// TransitionBufferCommand moves a buffer between access states.
type TransitionBufferCommand struct {
	Buffer        rhi.Buffer
	Before, After rhi.ResourceAccess
}

func (*TransitionBufferCommand) Type() CommandType { return CmdTransitionBuffer }
func (c *TransitionBufferCommand) Execute(ctx rhi.Context) {
	ctx.TransitionBuffer(c.Buffer, c.Before, c.After)
}
func (c *TransitionBufferCommand) release() { rhi.Release(c.Buffer) }

// UnorderedAccessTextureBarrierCommand orders read-write accesses to a
// texture.
type UnorderedAccessTextureBarrierCommand struct {
	Texture rhi.Texture
}

func (*UnorderedAccessTextureBarrierCommand) Type() CommandType {
	return CmdUnorderedAccessTextureBarrier
}
func (c *UnorderedAccessTextureBarrierCommand) Execute(ctx rhi.Context) {
	ctx.UnorderedAccessTextureBarrier(c.Texture)
}
func (c *UnorderedAccessTextureBarrierCommand) release() { rhi.Release(c.Texture) }

// UnorderedAccessBufferBarrierCommand orders read-write accesses to a
// buffer.
type UnorderedAccessBufferBarrierCommand struct {
	Buffer rhi.Buffer
}

func (*UnorderedAccessBufferBarrierCommand) Type() CommandType {
	return CmdUnorderedAccessBufferBarrier
}
func (c *UnorderedAccessBufferBarrierCommand) Execute(ctx rhi.Context) {
	ctx.UnorderedAccessBufferBarrier(c.Buffer)
}
func (c *UnorderedAccessBufferBarrierCommand) release() { rhi.Release(c.Buffer) }

// --------------------------------------------------------------------------
// Work
// --------------------------------------------------------------------------

// DrawCommand draws non-indexed vertices.
type DrawCommand struct {
	VertexCount uint32
	StartVertex uint32
}

func (*DrawCommand) Type() CommandType         { return CmdDraw }
func (c *DrawCommand) Execute(ctx rhi.Context) { ctx.Draw(c.VertexCount, c.StartVertex) }
func (*DrawCommand) release()                  {}

// DrawIndexedCommand draws indexed vertices.
type DrawIndexedCommand struct {
	IndexCount uint32
	StartIndex uint32
	BaseVertex uint32
}

func (*DrawIndexedCommand) Type() CommandType { return CmdDrawIndexed }
func (c *DrawIndexedCommand) Execute(ctx rhi.Context) {
	ctx.DrawIndexed(c.IndexCount, c.StartIndex, c.BaseVertex)
}
func (*DrawIndexedCommand) release() {}

// DrawInstancedCommand draws instanced non-indexed vertices.
type DrawInstancedCommand struct {
	VertexCountPerInstance uint32
	InstanceCount          uint32
	StartVertex            uint32
	StartInstance          uint32
}

func (*DrawInstancedCommand) Type() CommandType { return CmdDrawInstanced }
func (c *DrawInstancedCommand) Execute(ctx rhi.Context) {
	ctx.DrawInstanced(c.VertexCountPerInstance, c.InstanceCount, c.StartVertex, c.StartInstance)
}
func (*DrawInstancedCommand) release() {}

// DrawIndexedInstancedCommand draws instanced indexed vertices.
type DrawIndexedInstancedCommand struct {
	IndexCountPerInstance uint32
	InstanceCount         uint32
	StartIndex            uint32
	BaseVertex            uint32
	StartInstance         uint32
}

func (*DrawIndexedInstancedCommand) Type() CommandType { return CmdDrawIndexedInstanced }
func (c *DrawIndexedInstancedCommand) Execute(ctx rhi.Context) {
	ctx.DrawIndexedInstanced(c.IndexCountPerInstance, c.InstanceCount, c.StartIndex, c.BaseVertex, c.StartInstance)
}
func (*DrawIndexedInstancedCommand) release() {}

// DispatchCommand dispatches compute work groups.
type DispatchCommand struct {
	GroupsX, GroupsY, GroupsZ uint32
}

func (*DispatchCommand) Type() CommandType { return CmdDispatch }
func (c *DispatchCommand) Execute(ctx rhi.Context) {
	ctx.Dispatch(c.GroupsX, c.GroupsY, c.GroupsZ)
}
func (*DispatchCommand) release() {}

// DispatchRaysCommand launches a ray-tracing grid.
type DispatchRaysCommand struct {
	Scene                rhi.RayTracingScene
	Pipeline             rhi.RayTracingPipelineState
	Width, Height, Depth uint32
}

func (*DispatchRaysCommand) Type() CommandType { return CmdDispatchRays }
func (c *DispatchRaysCommand) Execute(ctx rhi.Context) {
	ctx.DispatchRays(c.Scene, c.Pipeline, c.Width, c.Height, c.Depth)
}
func (c *DispatchRaysCommand) release() {
	rhi.Release(c.Scene)
	rhi.Release(c.Pipeline)
}
