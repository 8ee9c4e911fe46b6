package wgpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/wgpu/hal"
)

// submission is a batch the GPU may still be executing. index is the
// submission index the hal queue returned for it.
type submission struct {
	serial  uint64
	index   uint64
	encoder hal.CommandEncoder
	cb      hal.CommandBuffer
}

// passState is what has been set on the current render pass encoder.
// A new pass starts with nothing set.
type passState struct {
	pipeline *graphicsPipeline
	groups   [2]hal.BindGroup
	vbs      [rhi.MaxVertexBufferSlots]*deviceBuffer
	ib       *deviceBuffer
	ibFormat gputypes.IndexFormat
	viewport bool
	scissor  bool
	blend    bool
}

// Context is the immediate rhi.Context of a Device. Each batch records
// into a pooled hal command encoder and is submitted as one command
// buffer. At most bufferedFrames batches are in flight.
//
// Draws begin a render pass over the current render targets implicitly.
// Copies, clears, transitions and dispatches end it.
type Context struct {
	dev *Device

	recording bool
	encoder   hal.CommandEncoder
	encoders  []hal.CommandEncoder // reset, ready for BeginEncoding
	pass      hal.RenderPassEncoder
	bound     passState
	serial    uint64
	submitted uint64
	completed uint64
	inflight  []submission
	err       error

	constants constantsBlocks

	texBarriers []hal.TextureBarrier
	bufBarriers []hal.BufferBarrier

	rtvs    [rhi.MaxRenderTargets]*renderTargetView
	numRTVs int
	dsv     *depthStencilView

	graphics *graphicsPipeline
	compute  *computePipeline
	stages   [rhi.NumGraphicsStages]stageBindings

	viewport [6]float32 // x, y, width, height, min, max
	scissor  [4]uint32  // x, y, width, height
	hasVP    bool
	hasSR    bool
	blend    gputypes.Color
	hasBlend bool

	vbs      [rhi.MaxVertexBufferSlots]*deviceBuffer
	numVBs   uint32
	ib       *deviceBuffer
	ibFormat gputypes.IndexFormat
	topology rhi.PrimitiveTopology
}

var _ rhi.Context = (*Context)(nil)

func newContext(d *Device) *Context {
	c := &Context{dev: d}
	c.constants.dev = d
	return c
}

// SubmittedSerial returns the serial of the last submission.
func (c *Context) SubmittedSerial() uint64 { return c.submitted }

// CompletedSerial returns the serial of the last submission known to have
// completed on the GPU.
func (c *Context) CompletedSerial() uint64 { return c.completed }

// release drops every reference the context holds.
func (c *Context) release() {
	c.setTargets(nil, nil)
	for i := range c.stages {
		c.stages[i].reset()
		if g := c.stages[i].group; g != nil {
			c.dev.device.DestroyBindGroup(g)
			c.stages[i].group = nil
		}
	}
	for i := range c.vbs {
		swapRef(&c.vbs[i], nil)
	}
	swapRef(&c.ib, nil)
	swapRef(&c.graphics, nil)
	swapRef(&c.compute, nil)
	for _, s := range c.inflight {
		s.encoder.ResetAll([]hal.CommandBuffer{s.cb})
		s.encoder.Destroy()
	}
	c.inflight = nil
	for _, e := range c.encoders {
		e.Destroy()
	}
	c.encoders = nil
}

// Begin waits until fewer than bufferedFrames batches are in flight,
// retires completed ones, and starts recording.
func (c *Context) Begin() error {
	if c.recording {
		return ErrAlreadyRecording
	}
	if err := c.dev.checkOpen(); err != nil {
		return err
	}
	for len(c.inflight) >= c.dev.opts.bufferedFrames {
		if err := c.wait(c.inflight[0]); err != nil {
			return err
		}
		c.retire()
	}
	c.poll()
	c.retire()

	encoder, err := c.acquireEncoder()
	if err != nil {
		return err
	}
	if err := encoder.BeginEncoding("rhi_context"); err != nil {
		encoder.Destroy()
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	c.encoder = encoder
	c.serial = c.submitted + 1
	c.dev.serial.Store(c.serial)
	c.recording = true
	c.err = nil
	return nil
}

// End finishes recording and submits the batch. It returns the first
// failure seen while recording, if any.
func (c *Context) End() error {
	if !c.recording {
		return ErrNotRecording
	}
	c.endPass()
	c.flushBarriers()
	c.constants.retire()
	// Bind groups may reference the retired constants block.
	for i := range c.stages {
		c.stages[i].dirty = true
	}
	c.recording = false
	recErr := c.err
	c.err = nil

	encoder := c.encoder
	c.encoder = nil
	cb, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		encoder.Destroy()
		return errors.Join(recErr, fmt.Errorf("wgpu: end encoding: %w", err))
	}
	index, err := c.dev.queue.Submit([]hal.CommandBuffer{cb})
	if err != nil {
		encoder.ResetAll([]hal.CommandBuffer{cb})
		c.encoders = append(c.encoders, encoder)
		slogger().Error("wgpu: submit failed", "serial", c.serial, "err", err)
		return errors.Join(recErr, fmt.Errorf("wgpu: submit: %w", err))
	}
	c.submitted = c.serial
	c.inflight = append(c.inflight, submission{serial: c.serial, index: index, encoder: encoder, cb: cb})
	return recErr
}

// acquireEncoder returns a pooled encoder or creates one.
func (c *Context) acquireEncoder() (hal.CommandEncoder, error) {
	if n := len(c.encoders); n > 0 {
		e := c.encoders[n-1]
		c.encoders = c.encoders[:n-1]
		return e, nil
	}
	e, err := c.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "rhi_context"})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	return e, nil
}

// Flush submits the open batch, if any, waits for every submission and
// reopens the batch.
func (c *Context) Flush() error {
	wasRecording := c.recording
	var errs []error
	if wasRecording {
		errs = append(errs, c.End())
	}
	errs = append(errs, c.waitIdle())
	if wasRecording {
		errs = append(errs, c.Begin())
	}
	return errors.Join(errs...)
}

// waitIdle blocks until the device is idle, which completes every
// submission.
func (c *Context) waitIdle() error {
	if c.submitted > c.completed {
		if err := c.dev.device.WaitIdle(); err != nil {
			return fmt.Errorf("wgpu: wait idle: %w", err)
		}
		c.completed = c.submitted
	}
	c.retire()
	return nil
}

// Bounds of the sleep between completion polls in wait.
const (
	minPollInterval = 20 * time.Microsecond
	maxPollInterval = time.Millisecond
)

// wait blocks until the queue reports s completed. The hal exposes only the
// highest completed submission index, so it is polled with a growing
// sleep.
func (c *Context) wait(s submission) error {
	timeout := c.dev.opts.waitTimeout
	deadline := time.Now().Add(timeout)
	interval := minPollInterval
	for c.dev.queue.PollCompleted() < s.index {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: submission %d after %v", ErrWaitTimeout, s.serial, timeout)
		}
		time.Sleep(interval)
		interval = min(2*interval, maxPollInterval)
	}
	c.completed = max(c.completed, s.serial)
	return nil
}

// poll advances the completed serial past batches that already finished
// without blocking.
func (c *Context) poll() {
	done := c.dev.queue.PollCompleted()
	for _, s := range c.inflight {
		if s.index > done {
			return
		}
		c.completed = max(c.completed, s.serial)
	}
}

// retire recycles the encoders of completed batches and destroys the
// objects released before them.
func (c *Context) retire() {
	n := 0
	for _, s := range c.inflight {
		if s.serial > c.completed {
			break
		}
		s.encoder.ResetAll([]hal.CommandBuffer{s.cb})
		c.encoders = append(c.encoders, s.encoder)
		n++
	}
	c.inflight = append(c.inflight[:0], c.inflight[n:]...)
	if n := c.dev.deletions.Flush(c.completed); n > 0 {
		slogger().Debug("wgpu: released objects destroyed", "count", n, "serial", c.completed)
	}
}

// fail records a recording failure. The first one is returned from End.
func (c *Context) fail(op string, err error) {
	slogger().Error("wgpu: command failed", "op", op, "err", err)
	if c.err == nil {
		c.err = fmt.Errorf("wgpu: %s: %w", op, err)
	}
}

// misuse reports a caller ordering bug.
func misuse(msg string, args ...any) {
	slogger().Warn(msg, args...)
	rhi.DebugBreak(msg)
}

func (c *Context) checkRecording(op string) bool {
	if !c.recording {
		misuse("wgpu: command recorded outside Begin/End", "op", op)
		return false
	}
	return true
}

func (c *Context) texture(op string, t rhi.Texture) *deviceTexture {
	wt, err := asTexture(t)
	if err != nil || wt == nil {
		misuse("wgpu: invalid texture argument", "op", op, "texture", rhi.ResourceName(t), "err", err)
		return nil
	}
	return wt
}

func (c *Context) buffer(op string, b rhi.Buffer) *deviceBuffer {
	wb, err := asBuffer(b)
	if err != nil || wb == nil {
		misuse("wgpu: invalid buffer argument", "op", op, "buffer", rhi.ResourceName(b), "err", err)
		return nil
	}
	return wb
}

// Usage tracking.

const (
	readOnlyTexture = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc
	readOnlyBuffer  = gputypes.BufferUsageVertex | gputypes.BufferUsageIndex |
		gputypes.BufferUsageUniform | gputypes.BufferUsageCopySrc
)

// wholeTexture is the barrier range of every mip and layer.
var wholeTexture = hal.TextureRange{Aspect: gputypes.TextureAspectAll}

// useTexture queues a transition of t to usage. Read-only usages combine
// without a barrier.
func (c *Context) useTexture(t *deviceTexture, usage gputypes.TextureUsage) {
	switch {
	case t.usage == usage:
		return
	case t.usage != 0 && t.usage&^readOnlyTexture == 0 && usage&^readOnlyTexture == 0:
		t.usage |= usage
		return
	}
	c.texBarriers = append(c.texBarriers, hal.TextureBarrier{
		Texture: t.raw,
		Range:   wholeTexture,
		Usage:   hal.TextureUsageTransition{OldUsage: t.usage, NewUsage: usage},
	})
	t.usage = usage
}

func (c *Context) useBuffer(b *deviceBuffer, usage gputypes.BufferUsage) {
	switch {
	case b.usage == usage:
		return
	case b.usage != 0 && b.usage&^readOnlyBuffer == 0 && usage&^readOnlyBuffer == 0:
		b.usage |= usage
		return
	}
	c.bufBarriers = append(c.bufBarriers, hal.BufferBarrier{
		Buffer: b.raw,
		Usage:  hal.BufferUsageTransition{OldUsage: b.usage, NewUsage: usage},
	})
	b.usage = usage
}

func (c *Context) pendingBarriers() bool {
	return len(c.texBarriers) > 0 || len(c.bufBarriers) > 0
}

// flushBarriers records the queued transitions. It must not be called
// inside a render pass.
func (c *Context) flushBarriers() {
	if len(c.bufBarriers) > 0 {
		c.encoder.TransitionBuffers(c.bufBarriers)
		c.bufBarriers = c.bufBarriers[:0]
	}
	if len(c.texBarriers) > 0 {
		c.encoder.TransitionTextures(c.texBarriers)
		c.texBarriers = c.texBarriers[:0]
	}
}

// Render targets and passes.

func (c *Context) SetRenderTargets(rtvs []rhi.RenderTargetView, dsv rhi.DepthStencilView) {
	var (
		views [rhi.MaxRenderTargets]*renderTargetView
		n     int
	)
	if len(rtvs) > rhi.MaxRenderTargets {
		misuse("wgpu: too many render targets", "count", len(rtvs))
	}
	for _, r := range rtvs[:min(len(rtvs), rhi.MaxRenderTargets)] {
		v, ok := r.(*renderTargetView)
		if !ok {
			misuse("wgpu: invalid render target view", "rtv", rhi.ResourceName(r))
			continue
		}
		views[n] = v
		n++
	}
	var ds *depthStencilView
	if dsv != nil {
		v, ok := dsv.(*depthStencilView)
		if !ok {
			misuse("wgpu: invalid depth stencil view", "dsv", rhi.ResourceName(dsv))
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

// beginPass begins a load/store render pass over the current targets and
// reports whether a pass is active.
func (c *Context) beginPass() bool {
	if c.pass != nil {
		return true
	}
	if c.numRTVs == 0 && c.dsv == nil {
		misuse("wgpu: render pass without render targets")
		return false
	}
	desc := &hal.RenderPassDescriptor{Label: "rhi_pass"}
	for _, v := range c.rtvs[:c.numRTVs] {
		c.useTexture(v.texture, gputypes.TextureUsageRenderAttachment)
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:    v.raw,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		})
	}
	if ds := c.dsv; ds != nil {
		c.useTexture(ds.texture, gputypes.TextureUsageRenderAttachment)
		desc.DepthStencilAttachment = depthAttachment(ds, gputypes.LoadOpLoad, rhi.DepthStencilValue{})
	}
	c.flushBarriers()
	c.pass = c.encoder.BeginRenderPass(desc)
	c.bound = passState{}
	return true
}

// depthAttachment returns the attachment of ds. Stencil operations are set
// only for formats with a stencil aspect.
func depthAttachment(ds *depthStencilView, load gputypes.LoadOp, clear rhi.DepthStencilValue) *hal.RenderPassDepthStencilAttachment {
	a := &hal.RenderPassDepthStencilAttachment{
		View:            ds.raw,
		DepthLoadOp:     load,
		DepthStoreOp:    gputypes.StoreOpStore,
		DepthClearValue: clear.Depth,
	}
	if rhi.HasStencil(ds.texture.desc.Format) {
		a.StencilLoadOp = load
		a.StencilStoreOp = gputypes.StoreOpStore
		a.StencilClearValue = uint32(clear.Stencil)
	}
	return a
}

func (c *Context) endPass() {
	if c.pass != nil {
		c.pass.End()
		c.pass = nil
	}
}

// Fixed-function state.

func (c *Context) SetViewport(width, height, minDepth, maxDepth, x, y float32) {
	c.viewport = [6]float32{x, y, width, height, minDepth, maxDepth}
	c.hasVP = true
	c.bound.viewport = false
}

func (c *Context) SetScissorRect(width, height, x, y float32) {
	c.scissor = [4]uint32{uint32(max(x, 0)), uint32(max(y, 0)), uint32(max(width, 0)), uint32(max(height, 0))}
	c.hasSR = true
	c.bound.scissor = false
}

func (c *Context) SetBlendFactor(color rhi.Color) {
	c.blend = color
	c.hasBlend = true
	c.bound.blend = false
}

// SetPrimitiveTopology records the topology. WebGPU bakes topology into
// the pipeline, so a mismatch with the bound pipeline is only logged.
func (c *Context) SetPrimitiveTopology(topology rhi.PrimitiveTopology) {
	c.topology = topology
	if p := c.graphics; p != nil && p.desc.Topology != topology {
		slogger().Debug("wgpu: topology differs from pipeline", "topology", topology, "pipeline", p.desc.Topology)
	}
}

func (c *Context) SetVertexBuffers(buffers []rhi.Buffer, slot uint32) {
	for i, b := range buffers {
		s := slot + uint32(i)
		if s >= rhi.MaxVertexBufferSlots {
			misuse("wgpu: vertex buffer slot out of range", "slot", s)
			return
		}
		var wb *deviceBuffer
		if b != nil {
			if wb = c.buffer("SetVertexBuffers", b); wb == nil {
				continue
			}
		}
		swapRef(&c.vbs[s], wb)
	}
	c.numVBs = 0
	for i := len(c.vbs) - 1; i >= 0; i-- {
		if c.vbs[i] != nil {
			c.numVBs = uint32(i) + 1
			break
		}
	}
}

func (c *Context) SetIndexBuffer(buffer rhi.Buffer, format rhi.IndexFormat) {
	var wb *deviceBuffer
	if buffer != nil {
		if wb = c.buffer("SetIndexBuffer", buffer); wb == nil {
			return
		}
	}
	swapRef(&c.ib, wb)
	c.ibFormat = indexFormat(format, buffer)
}

func (c *Context) SetGraphicsPipelineState(pipeline rhi.GraphicsPipelineState) {
	var p *graphicsPipeline
	if pipeline != nil {
		gp, ok := pipeline.(*graphicsPipeline)
		if !ok {
			misuse("wgpu: invalid graphics pipeline", "pipeline", rhi.ResourceName(pipeline))
			return
		}
		p = gp
	}
	swapRef(&c.graphics, p)
}

func (c *Context) SetComputePipelineState(pipeline rhi.ComputePipelineState) {
	var p *computePipeline
	if pipeline != nil {
		cp, ok := pipeline.(*computePipeline)
		if !ok {
			misuse("wgpu: invalid compute pipeline", "pipeline", rhi.ResourceName(pipeline))
			return
		}
		p = cp
	}
	swapRef(&c.compute, p)
}

// Shader parameters.

// stage returns the binding table of the stage of s.
func (c *Context) stage(op string, s rhi.Shader) *stageBindings {
	if s == nil {
		misuse("wgpu: shader parameter without shader", "op", op)
		return nil
	}
	st := s.Stage()
	if int(st) >= rhi.NumGraphicsStages {
		misuse("wgpu: shader parameter for unsupported stage", "op", op, "stage", st)
		return nil
	}
	return &c.stages[st]
}

func (c *Context) Set32BitShaderConstants(shader rhi.Shader, constants []uint32) {
	s := c.stage("Set32BitShaderConstants", shader)
	if s == nil {
		return
	}
	if n := shader.Desc().NumConstants; uint32(len(constants)) > n {
		slogger().Debug("wgpu: more constants than the shader declares", "shader", shader.Name(), "count", len(constants), "declared", n)
	}
	s.setConstants(constants)
}

func (c *Context) setSRV(op string, s *stageBindings, srv rhi.ShaderResourceView, index uint32) {
	if index >= rhi.MaxBindingsPerType {
		misuse("wgpu: binding index out of range", "op", op, "index", index)
		return
	}
	var v *shaderResourceView
	if srv != nil {
		var ok bool
		if v, ok = srv.(*shaderResourceView); !ok {
			misuse("wgpu: invalid shader resource view", "op", op, "srv", rhi.ResourceName(srv))
			return
		}
	}
	s.setSRV(v, index)
}

func (c *Context) setUAV(op string, s *stageBindings, uav rhi.UnorderedAccessView, index uint32) {
	if index >= rhi.MaxBindingsPerType {
		misuse("wgpu: binding index out of range", "op", op, "index", index)
		return
	}
	var v *unorderedAccessView
	if uav != nil {
		var ok bool
		if v, ok = uav.(*unorderedAccessView); !ok {
			misuse("wgpu: invalid unordered access view", "op", op, "uav", rhi.ResourceName(uav))
			return
		}
	}
	s.setUAV(v, index)
}

func (c *Context) setCB(op string, s *stageBindings, buffer rhi.Buffer, index uint32) {
	if index >= rhi.MaxBindingsPerType {
		misuse("wgpu: binding index out of range", "op", op, "index", index)
		return
	}
	var b *deviceBuffer
	if buffer != nil {
		if b = c.buffer(op, buffer); b == nil {
			return
		}
	}
	s.setConstantBuffer(b, index)
}

func (c *Context) setSampler(op string, s *stageBindings, sampler rhi.SamplerState, index uint32) {
	if index >= rhi.MaxBindingsPerType {
		misuse("wgpu: binding index out of range", "op", op, "index", index)
		return
	}
	var v *samplerState
	if sampler != nil {
		var ok bool
		if v, ok = sampler.(*samplerState); !ok {
			misuse("wgpu: invalid sampler state", "op", op, "sampler", rhi.ResourceName(sampler))
			return
		}
	}
	s.setSampler(v, index)
}

func (c *Context) SetShaderResourceView(shader rhi.Shader, srv rhi.ShaderResourceView, index uint32) {
	if s := c.stage("SetShaderResourceView", shader); s != nil {
		c.setSRV("SetShaderResourceView", s, srv, index)
	}
}

func (c *Context) SetShaderResourceViews(shader rhi.Shader, srvs []rhi.ShaderResourceView, index uint32) {
	if s := c.stage("SetShaderResourceViews", shader); s != nil {
		for i, v := range srvs {
			c.setSRV("SetShaderResourceViews", s, v, index+uint32(i))
		}
	}
}

func (c *Context) SetUnorderedAccessView(shader rhi.Shader, uav rhi.UnorderedAccessView, index uint32) {
	if s := c.stage("SetUnorderedAccessView", shader); s != nil {
		c.setUAV("SetUnorderedAccessView", s, uav, index)
	}
}

func (c *Context) SetUnorderedAccessViews(shader rhi.Shader, uavs []rhi.UnorderedAccessView, index uint32) {
	if s := c.stage("SetUnorderedAccessViews", shader); s != nil {
		for i, v := range uavs {
			c.setUAV("SetUnorderedAccessViews", s, v, index+uint32(i))
		}
	}
}

func (c *Context) SetConstantBuffer(shader rhi.Shader, buffer rhi.Buffer, index uint32) {
	if s := c.stage("SetConstantBuffer", shader); s != nil {
		c.setCB("SetConstantBuffer", s, buffer, index)
	}
}

func (c *Context) SetConstantBuffers(shader rhi.Shader, buffers []rhi.Buffer, index uint32) {
	if s := c.stage("SetConstantBuffers", shader); s != nil {
		for i, b := range buffers {
			c.setCB("SetConstantBuffers", s, b, index+uint32(i))
		}
	}
}

func (c *Context) SetSamplerState(shader rhi.Shader, sampler rhi.SamplerState, index uint32) {
	if s := c.stage("SetSamplerState", shader); s != nil {
		c.setSampler("SetSamplerState", s, sampler, index)
	}
}

func (c *Context) SetSamplerStates(shader rhi.Shader, samplers []rhi.SamplerState, index uint32) {
	if s := c.stage("SetSamplerStates", shader); s != nil {
		for i, v := range samplers {
			c.setSampler("SetSamplerStates", s, v, index+uint32(i))
		}
	}
}

// Bind groups.

// useBindings queues the transitions the declared slots of sh need.
func (c *Context) useBindings(s *stageBindings, sh *shader) {
	s.resolve(c.dev, sh, func(r resolved) {
		tu, bu := usageOf(r.binding.Type)
		if r.texture != nil && tu != 0 {
			c.useTexture(r.texture, tu)
		}
		if r.buffer != nil && bu != 0 {
			c.useBuffer(r.buffer, bu)
		}
	})
}

// bindGroup returns the bind group of sh, rebuilding it when the table
// changed. A replaced group is destroyed once the GPU is done with it.
func (c *Context) bindGroup(s *stageBindings, sh *shader) (hal.BindGroup, error) {
	if !s.needsRebuild(sh) {
		return s.group, nil
	}
	var (
		constants hal.Buffer
		offset    uint64
	)
	if n := sh.desc.NumConstants; n > 0 {
		var err error
		if constants, offset, err = c.constants.write(s.constants[:], n); err != nil {
			return nil, err
		}
	}
	g, err := c.dev.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   sh.desc.Label,
		Layout:  sh.layout,
		Entries: s.bindGroupEntries(c.dev, sh, constants, offset),
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group for %q: %w", sh.desc.Label, err)
	}
	if old := s.group; old != nil {
		c.dev.deferDestroy(func() { c.dev.device.DestroyBindGroup(old) })
	}
	s.group, s.shader, s.dirty = g, sh, false
	return g, nil
}

// Draws and dispatches.

func (c *Context) prepareDraw(op string) bool {
	if !c.checkRecording(op) {
		return false
	}
	p := c.graphics
	if p == nil {
		misuse("wgpu: draw without graphics pipeline state", "op", op, "err", ErrNoPipeline)
		return false
	}

	vs := &c.stages[rhi.StageVertex]
	ps := &c.stages[rhi.StagePixel]
	c.useBindings(vs, p.vs)
	if p.ps != nil {
		c.useBindings(ps, p.ps)
	}
	for _, b := range c.vbs[:c.numVBs] {
		if b != nil {
			c.useBuffer(b, gputypes.BufferUsageVertex)
		}
	}
	if c.ib != nil {
		c.useBuffer(c.ib, gputypes.BufferUsageIndex)
	}
	if c.pendingBarriers() {
		c.endPass()
		c.flushBarriers()
	}
	if !c.beginPass() {
		return false
	}

	groups := [2]hal.BindGroup{}
	var err error
	if groups[0], err = c.bindGroup(vs, p.vs); err != nil {
		c.fail(op, err)
		return false
	}
	if p.ps != nil {
		if groups[1], err = c.bindGroup(ps, p.ps); err != nil {
			c.fail(op, err)
			return false
		}
	}
	c.applyPassState(p, groups)
	return true
}

// applyPassState sets on the pass encoder whatever differs from what the
// pass already has.
func (c *Context) applyPassState(p *graphicsPipeline, groups [2]hal.BindGroup) {
	b := &c.bound
	if b.pipeline != p {
		c.pass.SetPipeline(p.raw)
		b.pipeline = p
	}
	for i, g := range groups {
		if g != nil && b.groups[i] != g {
			c.pass.SetBindGroup(uint32(i), g, nil)
			b.groups[i] = g
		}
	}
	if c.hasVP && !b.viewport {
		v := c.viewport
		c.pass.SetViewport(v[0], v[1], v[2], v[3], v[4], v[5])
		b.viewport = true
	}
	if c.hasSR && !b.scissor {
		s := c.scissor
		c.pass.SetScissorRect(s[0], s[1], s[2], s[3])
		b.scissor = true
	}
	if c.hasBlend && !b.blend {
		color := c.blend
		c.pass.SetBlendConstant(&color)
		b.blend = true
	}
	for i, vb := range c.vbs[:c.numVBs] {
		if vb != nil && b.vbs[i] != vb {
			c.pass.SetVertexBuffer(uint32(i), vb.raw, 0)
			b.vbs[i] = vb
		}
	}
	if c.ib != nil && (b.ib != c.ib || b.ibFormat != c.ibFormat) {
		c.pass.SetIndexBuffer(c.ib.raw, c.ibFormat, 0)
		b.ib, b.ibFormat = c.ib, c.ibFormat
	}
}

func (c *Context) Draw(vertexCount, startVertex uint32) {
	if c.prepareDraw("Draw") {
		c.pass.Draw(vertexCount, 1, startVertex, 0)
	}
}

func (c *Context) DrawIndexed(indexCount, startIndex, baseVertex uint32) {
	if c.prepareDraw("DrawIndexed") {
		c.pass.DrawIndexed(indexCount, 1, startIndex, int32(baseVertex), 0)
	}
}

func (c *Context) DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32) {
	if c.prepareDraw("DrawInstanced") {
		c.pass.Draw(vertexCountPerInstance, instanceCount, startVertex, startInstance)
	}
}

func (c *Context) DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex, baseVertex, startInstance uint32) {
	if c.prepareDraw("DrawIndexedInstanced") {
		c.pass.DrawIndexed(indexCountPerInstance, instanceCount, startIndex, int32(baseVertex), startInstance)
	}
}

// Dispatch records the dispatch in a compute pass of its own.
func (c *Context) Dispatch(groupsX, groupsY, groupsZ uint32) {
	if !c.checkRecording("Dispatch") {
		return
	}
	p := c.compute
	if p == nil {
		misuse("wgpu: dispatch without compute pipeline state", "err", ErrNoPipeline)
		return
	}
	c.endPass()
	cs := &c.stages[rhi.StageCompute]
	c.useBindings(cs, p.cs)
	c.flushBarriers()
	g, err := c.bindGroup(cs, p.cs)
	if err != nil {
		c.fail("Dispatch", err)
		return
	}
	pass := c.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: p.desc.Label})
	pass.SetPipeline(p.raw)
	pass.SetBindGroup(0, g, nil)
	pass.Dispatch(groupsX, groupsY, groupsZ)
	pass.End()
}

// Unsupported features.

func (c *Context) SetShadingRate(rate rhi.ShadingRate) {
	slogger().Debug("wgpu: variable rate shading not supported", "rate", rate)
}

func (c *Context) SetShadingRateImage(image rhi.Texture) {
	slogger().Debug("wgpu: shading rate image not supported", "image", rhi.ResourceName(image))
}

func (c *Context) SetRayTracingBindings(scene rhi.RayTracingScene, pipeline rhi.RayTracingPipelineState,
	global, rayGen, miss *rhi.RayTracingShaderResources, hitGroups []rhi.RayTracingShaderResources,
) {
	slogger().Debug("wgpu: ray tracing not supported", "op", "SetRayTracingBindings")
}

func (c *Context) BuildRayTracingGeometry(geometry rhi.RayTracingGeometry, vertices, indices rhi.Buffer, update bool) {
	slogger().Debug("wgpu: ray tracing not supported", "op", "BuildRayTracingGeometry")
}

func (c *Context) BuildRayTracingScene(scene rhi.RayTracingScene, instances []rhi.RayTracingGeometryInstance, update bool) {
	slogger().Debug("wgpu: ray tracing not supported", "op", "BuildRayTracingScene")
}

func (c *Context) DispatchRays(scene rhi.RayTracingScene, pipeline rhi.RayTracingPipelineState, width, height, depth uint32) {
	slogger().Debug("wgpu: ray tracing not supported", "op", "DispatchRays")
}

func (c *Context) BeginTimeStamp(query rhi.TimestampQuery, index uint32) {
	slogger().Debug("wgpu: timestamp queries not supported", "op", "BeginTimeStamp")
}

func (c *Context) EndTimeStamp(query rhi.TimestampQuery, index uint32) {
	slogger().Debug("wgpu: timestamp queries not supported", "op", "EndTimeStamp")
}

// Debugging.

func (c *Context) InsertMarker(marker string) {
	slogger().Debug("wgpu: marker", "marker", marker, "serial", c.serial)
}

func (c *Context) BeginExternalCapture() {
	if h := c.dev.opts.captureHook; h != nil {
		h.StartCapture()
		return
	}
	slogger().Debug("wgpu: no capture hook installed")
}

func (c *Context) EndExternalCapture() {
	if h := c.dev.opts.captureHook; h != nil {
		h.EndCapture()
	}
}
