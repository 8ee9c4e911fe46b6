package vulkan

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
)

// frame is one slot of the command buffer ring.
type frame struct {
	cb     CommandBuffer
	fence  Fence
	serial uint64

	// unsignaled is set when the fence was reset but the submission that
	// would signal it failed.
	unsignaled bool
}

// Context is the immediate rhi.Context of a Device. It records into a
// ring of command buffers; Begin waits for the oldest one before reusing
// it.
//
// Draws begin a render pass over the current render targets implicitly.
// Copies, clears, transitions and dispatches end it.
type Context struct {
	dev      *Device
	drv      Driver
	state    *ContextState
	barriers barrierBatcher

	frames     []frame
	frameIndex int

	recording bool
	cb        CommandBuffer
	serial    uint64 // submission being recorded
	submitted uint64
	completed uint64
	err       error

	rtvs     [rhi.MaxRenderTargets]*renderTargetView
	numRTVs  int
	dsv      *depthStencilView
	inPass   bool
	topology rhi.PrimitiveTopology
}

var _ rhi.Context = (*Context)(nil)

func newContext(d *Device) (*Context, error) {
	c := &Context{
		dev:   d,
		drv:   d.drv,
		state: NewContextState(d.drv, d.descriptors, d.opts.forceBinding),
	}
	for range d.opts.bufferedFrames {
		cb, err := c.drv.AllocateCommandBuffer()
		if err != nil {
			c.release()
			return nil, fmt.Errorf("vulkan: allocate command buffer: %w", err)
		}
		fence, err := c.drv.CreateFence(true)
		if err != nil {
			c.drv.FreeCommandBuffer(cb)
			c.release()
			return nil, fmt.Errorf("vulkan: create fence: %w", err)
		}
		c.frames = append(c.frames, frame{cb: cb, fence: fence})
	}
	return c, nil
}

// State returns the binding state of the context.
func (c *Context) State() *ContextState { return c.state }

// SubmittedSerial returns the serial of the last submission.
func (c *Context) SubmittedSerial() uint64 { return c.submitted }

// CompletedSerial returns the serial of the last submission known to have
// completed on the GPU.
func (c *Context) CompletedSerial() uint64 { return c.completed }

func (c *Context) release() {
	for _, f := range c.frames {
		c.drv.FreeCommandBuffer(f.cb)
		c.drv.DestroyFence(f.fence)
	}
	c.frames = nil
	c.setTargets(nil, nil)
}

// Begin waits for the next command buffer of the ring, retires the
// submissions that completed, and starts recording.
func (c *Context) Begin() error {
	if c.recording {
		return ErrAlreadyRecording
	}
	if err := c.dev.checkOpen(); err != nil {
		return err
	}

	f := &c.frames[c.frameIndex]
	if !f.unsignaled {
		if err := c.drv.WaitForFence(f.fence, c.dev.opts.fenceTimeout); err != nil {
			return fmt.Errorf("vulkan: wait for submission %d: %w", f.serial, err)
		}
		c.completed = max(c.completed, f.serial)
	}
	c.retire()

	if err := c.drv.BeginCommandBuffer(f.cb); err != nil {
		return fmt.Errorf("vulkan: begin command buffer: %w", err)
	}
	c.serial = c.submitted + 1
	c.dev.serial.Store(c.serial)
	c.dev.descriptors.SetSerial(c.serial)
	c.cb = f.cb
	c.recording = true
	c.err = nil

	c.state.BeginCommandBuffer(f.cb)
	c.state.pruneDescriptorStates()
	c.applyUploads()
	return nil
}

// End finishes recording and submits the command buffer. It returns the
// first driver failure seen while recording, if any.
func (c *Context) End() error {
	if !c.recording {
		return ErrNotRecording
	}
	c.endPass()
	c.barriers.flush(c.drv, c.cb)
	c.recording = false
	recErr := c.err
	c.err = nil

	f := &c.frames[c.frameIndex]
	if err := c.drv.EndCommandBuffer(c.cb); err != nil {
		return errors.Join(recErr, fmt.Errorf("vulkan: end command buffer: %w", err))
	}
	if err := c.drv.ResetFence(f.fence); err != nil {
		return errors.Join(recErr, fmt.Errorf("vulkan: reset fence: %w", err))
	}
	f.unsignaled = true
	if err := c.drv.Submit(c.cb, f.fence); err != nil {
		slogger().Error("vulkan: submit failed", "serial", c.serial, "err", err)
		return errors.Join(recErr, fmt.Errorf("vulkan: submit: %w", err))
	}
	f.unsignaled = false
	f.serial = c.serial
	c.submitted = c.serial
	c.frameIndex = (c.frameIndex + 1) % len(c.frames)
	return recErr
}

// Flush submits the open batch, if any, waits for every submission and
// reopens the batch.
func (c *Context) Flush() error {
	wasRecording := c.recording
	var errs []error
	if wasRecording {
		errs = append(errs, c.End())
	}
	for i := range c.frames {
		f := &c.frames[i]
		if f.unsignaled || f.serial <= c.completed {
			continue
		}
		if err := c.drv.WaitForFence(f.fence, c.dev.opts.fenceTimeout); err != nil {
			errs = append(errs, fmt.Errorf("vulkan: wait for submission %d: %w", f.serial, err))
			continue
		}
		c.completed = max(c.completed, f.serial)
	}
	c.retire()
	if wasRecording {
		errs = append(errs, c.Begin())
	}
	return errors.Join(errs...)
}

func (c *Context) waitIdle() error {
	if err := c.drv.WaitIdle(); err != nil {
		return fmt.Errorf("vulkan: wait idle: %w", err)
	}
	c.completed = c.submitted
	c.retire()
	return nil
}

// retire recycles descriptor pools and destroys released objects whose
// last submission has completed.
func (c *Context) retire() {
	if err := c.dev.descriptors.ResetPendingDescriptorPools(c.completed); err != nil {
		slogger().Error("vulkan: reset descriptor pools", "err", err)
	}
	if n := c.dev.deletions.Flush(c.completed); n > 0 {
		slogger().Debug("vulkan: released objects destroyed", "count", n, "serial", c.completed)
	}
}

// applyUploads records the initial uploads and layout transitions of
// resources created since the last batch.
func (c *Context) applyUploads() {
	for _, u := range c.dev.takeUploads() {
		switch {
		case u.buffer != nil:
			c.drv.CmdCopyBuffer(c.cb, u.staging, u.buffer.handle, []BufferCopy{{Size: u.size}})
			c.barriers.addBuffer(BufferBarrier{
				Buffer:    u.buffer.handle,
				SrcAccess: AccessTransferWrite,
				DstAccess: AccessMemoryRead | AccessMemoryWrite,
			}, StageTransfer, StageAllCommands)
		case u.texture != nil:
			t := u.texture
			if u.staging != 0 {
				c.requireLayout(t, LayoutTransferDstOptimal)
				c.barriers.flush(c.drv, c.cb)
				w, h, _ := t.mipExtent(0)
				c.drv.CmdCopyBufferToImage(c.cb, u.staging, t.handle, BufferImageCopy{
					Image:  ImageSubresource{Aspect: t.aspect(), LayerCount: 1},
					Width:  w,
					Height: h,
					Depth:  1,
				})
			}
			c.requireLayout(t, u.final)
		}
		if staging := u.staging; staging != 0 {
			c.dev.deferDestroy(func() { c.drv.DestroyBuffer(staging) })
		}
		u.resource().Release()
	}
}

// fail records a driver failure. The first one is returned from End.
func (c *Context) fail(op string, err error) {
	slogger().Error("vulkan: command failed", "op", op, "err", err)
	if c.err == nil {
		c.err = fmt.Errorf("vulkan: %s: %w", op, err)
	}
}

// misuse reports a caller ordering bug.
func misuse(msg string, args ...any) {
	slogger().Warn(msg, args...)
	rhi.DebugBreak(msg)
}

func (c *Context) checkRecording(op string) bool {
	if !c.recording {
		misuse("vulkan: command recorded outside Begin/End", "op", op)
		return false
	}
	return true
}

// requireLayout queues a transition of the whole texture to layout.
func (c *Context) requireLayout(t *deviceTexture, layout ImageLayout) {
	if t.layout == layout {
		return
	}
	srcAccess, srcStage := layoutInfo(t.layout)
	dstAccess, dstStage := layoutInfo(layout)
	c.barriers.addImage(ImageBarrier{
		Image:     t.handle,
		OldLayout: t.layout,
		NewLayout: layout,
		SrcAccess: srcAccess,
		DstAccess: dstAccess,
		Range:     t.wholeRange(),
	}, srcStage, dstStage)
	t.layout = layout
}

func (c *Context) texture(op string, t rhi.Texture) *deviceTexture {
	vt, err := asTexture(t)
	if err != nil || vt == nil {
		misuse("vulkan: invalid texture argument", "op", op, "texture", rhi.ResourceName(t), "err", err)
		return nil
	}
	return vt
}

func (c *Context) buffer(op string, b rhi.Buffer) *deviceBuffer {
	vb, err := asBuffer(b)
	if err != nil || vb == nil {
		misuse("vulkan: invalid buffer argument", "op", op, "buffer", rhi.ResourceName(b), "err", err)
		return nil
	}
	return vb
}

// Render targets and passes.

func (c *Context) SetRenderTargets(rtvs []rhi.RenderTargetView, dsv rhi.DepthStencilView) {
	var (
		views [rhi.MaxRenderTargets]*renderTargetView
		n     int
	)
	if len(rtvs) > rhi.MaxRenderTargets {
		misuse("vulkan: too many render targets", "count", len(rtvs))
	}
	for _, r := range rtvs[:min(len(rtvs), rhi.MaxRenderTargets)] {
		v, ok := r.(*renderTargetView)
		if !ok {
			misuse("vulkan: invalid render target view", "rtv", rhi.ResourceName(r))
			continue
		}
		views[n] = v
		n++
	}
	var ds *depthStencilView
	if dsv != nil {
		v, ok := dsv.(*depthStencilView)
		if !ok {
			misuse("vulkan: invalid depth stencil view", "dsv", rhi.ResourceName(dsv))
		} else {
			ds = v
		}
	}
	if n == c.numRTVs && views == c.rtvs && ds == c.dsv {
		return
	}
	c.endPass()
	c.setTargets(views[:n], ds)
}

func (c *Context) setTargets(rtvs []*renderTargetView, dsv *depthStencilView) {
	for _, v := range rtvs {
		v.AddRef()
	}
	if dsv != nil {
		dsv.AddRef()
	}
	for i := range c.numRTVs {
		c.rtvs[i].Release()
		c.rtvs[i] = nil
	}
	if c.dsv != nil {
		c.dsv.Release()
	}
	c.numRTVs = copy(c.rtvs[:], rtvs)
	c.dsv = dsv
}

func (c *Context) BeginRenderPass() {
	if !c.checkRecording("BeginRenderPass") {
		return
	}
	c.beginPass()
}

func (c *Context) EndRenderPass() {
	if !c.checkRecording("EndRenderPass") {
		return
	}
	c.endPass()
}

// beginPass moves the targets into attachment layouts and begins a load/
// store render pass over them. It reports whether a pass is active.
func (c *Context) beginPass() bool {
	if c.inPass {
		return true
	}
	if c.numRTVs == 0 && c.dsv == nil {
		misuse("vulkan: render pass without render targets")
		return false
	}

	var (
		key           RenderPassKey
		fbKey         FramebufferKey
		width, height uint32
		n             int
	)
	attach := func(v *view, samples uint32) {
		w, h, _ := v.texture.mipExtent(v.rng.BaseMip)
		if n == 0 {
			width, height = w, h
		} else {
			width, height = min(width, w), min(height, h)
		}
		fbKey.Attachments[n] = v.handle
		key.Samples = samples
		n++
	}
	for i, v := range c.rtvs[:c.numRTVs] {
		c.requireLayout(v.texture, LayoutColorAttachmentOptimal)
		format := v.desc.Format
		if format == gputypes.TextureFormatUndefined {
			format = v.texture.desc.Format
		}
		key.Colors[i] = AttachmentKey{Format: format, Load: LoadOpLoad, Store: StoreOpStore}
		attach(&v.view, v.texture.desc.SampleCount)
	}
	key.NumColors = uint32(c.numRTVs)
	if ds := c.dsv; ds != nil {
		layout := LayoutDepthStencilAttachmentOptimal
		if ds.desc.ReadOnly {
			layout = LayoutDepthStencilReadOnlyOptimal
		}
		c.requireLayout(ds.texture, layout)
		key.DepthStencil = AttachmentKey{Format: ds.texture.desc.Format, Load: LoadOpLoad, Store: StoreOpStore}
		key.DepthReadOnly = ds.desc.ReadOnly
		attach(&ds.view, ds.texture.desc.SampleCount)
	}
	c.barriers.flush(c.drv, c.cb)

	pass, err := c.dev.renderPasses.GetRenderPass(key)
	if err != nil {
		c.fail("begin render pass", err)
		return false
	}
	fbKey.RenderPass = pass
	fbKey.Width, fbKey.Height, fbKey.Layers = width, height, 1
	fbKey.NumAttachments = uint32(n)
	fb, err := c.dev.framebuffers.GetFramebuffer(fbKey)
	if err != nil {
		c.fail("begin render pass", err)
		return false
	}
	c.drv.CmdBeginRenderPass(c.cb, pass, fb, Rect2D{Width: width, Height: height})
	c.inPass = true
	return true
}

func (c *Context) endPass() {
	if c.inPass {
		c.drv.CmdEndRenderPass(c.cb)
		c.inPass = false
	}
}

// Fixed-function state.

func (c *Context) SetViewport(width, height, minDepth, maxDepth, x, y float32) {
	vp := [1]Viewport{{X: x, Y: y, Width: width, Height: height, MinDepth: minDepth, MaxDepth: maxDepth}}
	c.state.SetViewports(vp[:])
}

func (c *Context) SetScissorRect(width, height, x, y float32) {
	r := [1]Rect2D{{X: int32(x), Y: int32(y), Width: uint32(width), Height: uint32(height)}}
	c.state.SetScissorRects(r[:])
}

func (c *Context) SetBlendFactor(color rhi.Color) {
	c.state.SetBlendFactor(colorArray(color))
}

func colorArray(color rhi.Color) [4]float32 {
	return [4]float32{float32(color.R), float32(color.G), float32(color.B), float32(color.A)}
}

// SetPrimitiveTopology records the topology. Vulkan bakes topology into the
// pipeline, so a mismatch with the bound pipeline is only logged.
func (c *Context) SetPrimitiveTopology(topology rhi.PrimitiveTopology) {
	c.topology = topology
	if p := c.state.graphicsPipeline; p != nil && p.desc.Topology != topology {
		slogger().Debug("vulkan: topology differs from pipeline", "topology", topology, "pipeline", p.desc.Topology)
	}
}

func (c *Context) SetVertexBuffers(buffers []rhi.Buffer, slot uint32) {
	for i, b := range buffers {
		c.state.SetVertexBuffer(slot+uint32(i), b)
	}
}

func (c *Context) SetIndexBuffer(buffer rhi.Buffer, format rhi.IndexFormat) {
	t := IndexTypeUint32
	switch format {
	case rhi.IndexFormatUint16:
		t = IndexTypeUint16
	case rhi.IndexFormatUnknown:
		if buffer != nil && buffer.Desc().Stride == 2 {
			t = IndexTypeUint16
		}
	}
	c.state.SetIndexBuffer(buffer, t)
}

func (c *Context) SetGraphicsPipelineState(pipeline rhi.GraphicsPipelineState) {
	c.state.SetGraphicsPipelineState(pipeline)
}

func (c *Context) SetComputePipelineState(pipeline rhi.ComputePipelineState) {
	c.state.SetComputePipelineState(pipeline)
}

// Shader parameters.

func shaderStage(op string, s rhi.Shader) (rhi.ShaderStage, bool) {
	if s == nil {
		misuse("vulkan: shader parameter without shader", "op", op)
		return 0, false
	}
	return s.Stage(), true
}

func (c *Context) Set32BitShaderConstants(shader rhi.Shader, constants []uint32) {
	if _, ok := shaderStage("Set32BitShaderConstants", shader); !ok {
		return
	}
	if n := shader.Desc().NumConstants; uint32(len(constants)) > n {
		slogger().Debug("vulkan: more constants than the shader declares", "shader", shader.Name(), "count", len(constants), "declared", n)
	}
	c.state.SetPushConstants(constants)
}

func (c *Context) SetShaderResourceView(shader rhi.Shader, srv rhi.ShaderResourceView, index uint32) {
	if stage, ok := shaderStage("SetShaderResourceView", shader); ok {
		c.state.SetSRV(srv, stage, index)
	}
}

func (c *Context) SetShaderResourceViews(shader rhi.Shader, srvs []rhi.ShaderResourceView, index uint32) {
	if stage, ok := shaderStage("SetShaderResourceViews", shader); ok {
		for i, v := range srvs {
			c.state.SetSRV(v, stage, index+uint32(i))
		}
	}
}

func (c *Context) SetUnorderedAccessView(shader rhi.Shader, uav rhi.UnorderedAccessView, index uint32) {
	if stage, ok := shaderStage("SetUnorderedAccessView", shader); ok {
		c.state.SetUAV(uav, stage, index)
	}
}

func (c *Context) SetUnorderedAccessViews(shader rhi.Shader, uavs []rhi.UnorderedAccessView, index uint32) {
	if stage, ok := shaderStage("SetUnorderedAccessViews", shader); ok {
		for i, v := range uavs {
			c.state.SetUAV(v, stage, index+uint32(i))
		}
	}
}

func (c *Context) SetConstantBuffer(shader rhi.Shader, buffer rhi.Buffer, index uint32) {
	if stage, ok := shaderStage("SetConstantBuffer", shader); ok {
		c.state.SetConstantBuffer(buffer, stage, index)
	}
}

func (c *Context) SetConstantBuffers(shader rhi.Shader, buffers []rhi.Buffer, index uint32) {
	if stage, ok := shaderStage("SetConstantBuffers", shader); ok {
		for i, b := range buffers {
			c.state.SetConstantBuffer(b, stage, index+uint32(i))
		}
	}
}

func (c *Context) SetSamplerState(shader rhi.Shader, sampler rhi.SamplerState, index uint32) {
	if stage, ok := shaderStage("SetSamplerState", shader); ok {
		c.state.SetSampler(sampler, stage, index)
	}
}

func (c *Context) SetSamplerStates(shader rhi.Shader, samplers []rhi.SamplerState, index uint32) {
	if stage, ok := shaderStage("SetSamplerStates", shader); ok {
		for i, s := range samplers {
			c.state.SetSampler(s, stage, index+uint32(i))
		}
	}
}

// Draws and dispatches.

func (c *Context) prepareDraw(op string) bool {
	if !c.checkRecording(op) {
		return false
	}
	if c.state.graphicsPipeline == nil {
		misuse("vulkan: draw without graphics pipeline state", "op", op, "err", ErrNoPipeline)
		return false
	}
	if !c.beginPass() {
		return false
	}
	if err := c.state.BindGraphicsState(); err != nil {
		c.fail(op, err)
		return false
	}
	return true
}

func (c *Context) Draw(vertexCount, startVertex uint32) {
	if c.prepareDraw("Draw") {
		c.drv.CmdDraw(c.cb, vertexCount, 1, startVertex, 0)
	}
}

func (c *Context) DrawIndexed(indexCount, startIndex, baseVertex uint32) {
	if c.prepareDraw("DrawIndexed") {
		c.drv.CmdDrawIndexed(c.cb, indexCount, 1, startIndex, int32(baseVertex), 0)
	}
}

func (c *Context) DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32) {
	if c.prepareDraw("DrawInstanced") {
		c.drv.CmdDraw(c.cb, vertexCountPerInstance, instanceCount, startVertex, startInstance)
	}
}

func (c *Context) DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex, baseVertex, startInstance uint32) {
	if c.prepareDraw("DrawIndexedInstanced") {
		c.drv.CmdDrawIndexed(c.cb, indexCountPerInstance, instanceCount, startIndex, int32(baseVertex), startInstance)
	}
}

func (c *Context) Dispatch(groupsX, groupsY, groupsZ uint32) {
	if !c.checkRecording("Dispatch") {
		return
	}
	if c.state.computePipeline == nil {
		misuse("vulkan: dispatch without compute pipeline state", "err", ErrNoPipeline)
		return
	}
	c.endPass()
	c.barriers.flush(c.drv, c.cb)
	if err := c.state.BindComputeState(); err != nil {
		c.fail("Dispatch", err)
		return
	}
	c.drv.CmdDispatch(c.cb, groupsX, groupsY, groupsZ)
}

// Unsupported features.

func (c *Context) SetShadingRate(rate rhi.ShadingRate) {
	slogger().Debug("vulkan: variable rate shading not supported", "rate", rate)
}

func (c *Context) SetShadingRateImage(image rhi.Texture) {
	slogger().Debug("vulkan: shading rate image not supported", "image", rhi.ResourceName(image))
}

func (c *Context) SetRayTracingBindings(scene rhi.RayTracingScene, pipeline rhi.RayTracingPipelineState,
	global, rayGen, miss *rhi.RayTracingShaderResources, hitGroups []rhi.RayTracingShaderResources,
) {
	slogger().Debug("vulkan: ray tracing not supported", "op", "SetRayTracingBindings")
}

func (c *Context) BuildRayTracingGeometry(geometry rhi.RayTracingGeometry, vertices, indices rhi.Buffer, update bool) {
	slogger().Debug("vulkan: ray tracing not supported", "op", "BuildRayTracingGeometry")
}

func (c *Context) BuildRayTracingScene(scene rhi.RayTracingScene, instances []rhi.RayTracingGeometryInstance, update bool) {
	slogger().Debug("vulkan: ray tracing not supported", "op", "BuildRayTracingScene")
}

func (c *Context) DispatchRays(scene rhi.RayTracingScene, pipeline rhi.RayTracingPipelineState, width, height, depth uint32) {
	slogger().Debug("vulkan: ray tracing not supported", "op", "DispatchRays")
}

// Debugging.

func (c *Context) InsertMarker(marker string) {
	slogger().Debug("vulkan: marker", "marker", marker, "serial", c.serial)
}

func (c *Context) BeginExternalCapture() {
	if h := c.dev.opts.captureHook; h != nil {
		h.StartCapture()
		return
	}
	slogger().Debug("vulkan: no capture hook installed")
}

func (c *Context) EndExternalCapture() {
	if h := c.dev.opts.captureHook; h != nil {
		h.EndCapture()
	}
}
