package wgpu

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/cmdlist"
)

func (f *fixture) bindDrawState() {
	f.ctx.SetRenderTargets([]rhi.RenderTargetView{f.rtv}, nil)
	f.ctx.SetGraphicsPipelineState(f.pipe)
	f.ctx.SetVertexBuffers([]rhi.Buffer{f.vb}, 0)
	f.ctx.SetConstantBuffer(f.vs, f.cb, 0)
}

func TestBeginEnd(t *testing.T) {
	f := newFixture(t)
	if err := f.ctx.End(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("End without Begin = %v, want ErrNotRecording", err)
	}
	f.begin()
	if err := f.ctx.Begin(); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Begin = %v, want ErrAlreadyRecording", err)
	}
	f.end()
	if got := f.ctx.SubmittedSerial(); got != 1 {
		t.Errorf("SubmittedSerial = %d, want 1", got)
	}

	f.begin()
	f.end()
	if err := f.dev.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	if s, c := f.ctx.SubmittedSerial(), f.ctx.CompletedSerial(); s != 2 || c != 2 {
		t.Errorf("serials after WaitIdle = %d/%d, want 2/2", s, c)
	}
	if n := len(f.ctx.inflight); n != 0 {
		t.Errorf("in flight after WaitIdle = %d, want 0", n)
	}
}

func TestFlushReopensBatch(t *testing.T) {
	f := newFixture(t)
	f.begin()
	if err := f.ctx.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !f.ctx.recording {
		t.Fatal("Flush did not reopen the batch")
	}
	if got := f.ctx.CompletedSerial(); got != 1 {
		t.Errorf("CompletedSerial after Flush = %d, want 1", got)
	}
	f.end()
	if got := f.ctx.SubmittedSerial(); got != 2 {
		t.Errorf("SubmittedSerial = %d, want 2", got)
	}
}

func TestBufferedFrames(t *testing.T) {
	f := newFixture(t, WithBufferedFrames(1))
	for range 3 {
		f.begin()
		if n := len(f.ctx.inflight); n > 0 {
			t.Errorf("in flight after Begin = %d, want 0", n)
		}
		f.end()
	}
	if got := f.hal.encoders; got != 1 {
		t.Errorf("command encoders created = %d, want 1 reused", got)
	}
}

func TestBeginWaitsForOldestSubmission(t *testing.T) {
	f := newFixture(t, WithBufferedFrames(1), WithWaitTimeout(5*time.Millisecond))
	f.queue.lag = true
	f.begin()
	f.end()

	err := f.ctx.Begin()
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("Begin with a stuck submission = %v, want ErrWaitTimeout", err)
	}
	if f.queue.polls < 2 {
		t.Errorf("completion polled %d times, want repeated polling", f.queue.polls)
	}

	f.queue.finish()
	f.begin()
	if got := f.ctx.CompletedSerial(); got != 1 {
		t.Errorf("CompletedSerial = %d, want 1", got)
	}
	f.end()
}

func TestMisuseBreaks(t *testing.T) {
	tests := []struct {
		name   string
		record bool
		fn     func(f *fixture)
	}{
		{"draw outside batch", false, func(f *fixture) { f.ctx.Draw(3, 0) }},
		{"draw without pipeline", true, func(f *fixture) {
			f.ctx.SetRenderTargets([]rhi.RenderTargetView{f.rtv}, nil)
			f.ctx.Draw(3, 0)
		}},
		{"dispatch without pipeline", true, func(f *fixture) { f.ctx.Dispatch(1, 1, 1) }},
		{"pass without targets", true, func(f *fixture) { f.ctx.BeginRenderPass() }},
		{"binding index out of range", true, func(f *fixture) {
			f.ctx.SetSamplerState(f.ps, nil, rhi.MaxBindingsPerType)
		}},
		{"unaligned buffer update", true, func(f *fixture) { f.ctx.UpdateBuffer(f.cb, 2, make([]byte, 4)) }},
		{"buffer update out of range", true, func(f *fixture) { f.ctx.UpdateBuffer(f.cb, 0, make([]byte, 128)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			logs := captureLogs(t)
			breaks := captureBreaks(t)
			if tt.record {
				f.begin()
			}
			tt.fn(f)
			if *breaks != 1 {
				t.Errorf("debug breaks = %d, want 1", *breaks)
			}
			if n := logs.count(slog.LevelWarn); n != 1 {
				t.Errorf("warnings = %d, want 1", n)
			}
			if tt.record {
				f.end()
			}
		})
	}
}

func TestDraw(t *testing.T) {
	f := newFixture(t)
	f.begin()
	f.bindDrawState()
	f.ctx.SetViewport(64, 32, 0, 1, 0, 0)
	f.ctx.Draw(3, 0)
	if f.ctx.pass == nil {
		t.Fatal("Draw did not open a render pass")
	}
	if got := f.vb.(*deviceBuffer).usage; got != gputypes.BufferUsageVertex {
		t.Errorf("vertex buffer usage = %v, want Vertex", got)
	}
	if got := f.cb.(*deviceBuffer).usage; got != gputypes.BufferUsageUniform {
		t.Errorf("constant buffer usage = %v, want Uniform", got)
	}
	if got := f.tex.(*deviceTexture).usage; got != gputypes.TextureUsageRenderAttachment {
		t.Errorf("target usage = %v, want RenderAttachment", got)
	}

	vs := &f.ctx.stages[rhi.StageVertex]
	if vs.group == nil {
		t.Fatal("vertex bind group not built")
	}
	built := f.hal.bindGroups
	f.ctx.DrawInstanced(3, 2, 0, 0)
	if got := f.hal.bindGroups; got != built {
		t.Errorf("bind groups built without a binding change = %d, want %d", got, built)
	}
	f.ctx.SetConstantBuffer(f.vs, nil, 0)
	f.ctx.Draw(3, 0)
	if got := f.hal.bindGroups; got != built+1 {
		t.Errorf("bind groups built after a binding change = %d, want %d", got, built+1)
	}
	f.end()

	if !vs.dirty {
		t.Error("bind groups not invalidated at End")
	}
	if f.ctx.pass != nil {
		t.Error("End left the render pass open")
	}
}

func TestSampledTextureBarrier(t *testing.T) {
	f := newFixture(t)
	src := f.mustTexture(rhi.TextureDesc{
		Label:  "src",
		Format: gputypes.TextureFormatRGBA8Unorm,
		Width:  16,
		Height: 16,
		Flags:  rhi.TextureShaderResource | rhi.TextureCopyDst,
	})
	defer src.Release()
	srv, err := f.dev.CreateShaderResourceView(rhi.ShaderResourceViewDesc{Texture: src})
	if err != nil {
		t.Fatalf("CreateShaderResourceView: %v", err)
	}
	defer srv.Release()

	f.begin()
	f.ctx.UpdateTexture2D(src, 16, 16, 0, make([]byte, 16*16*4))
	if got := src.(*deviceTexture).usage; got != gputypes.TextureUsageCopyDst {
		t.Errorf("usage after update = %v, want CopyDst", got)
	}
	f.bindDrawState()
	f.ctx.SetShaderResourceView(f.ps, srv, 0)
	f.ctx.Draw(3, 0)
	if got := src.(*deviceTexture).usage; got != gputypes.TextureUsageTextureBinding {
		t.Errorf("usage after draw = %v, want TextureBinding", got)
	}
	if f.ctx.pendingBarriers() {
		t.Error("barriers left pending after draw")
	}
	f.end()
}

func TestConstantsBlockRetiredAtEnd(t *testing.T) {
	f := newFixture(t)
	f.begin()
	f.bindDrawState()
	f.ctx.Set32BitShaderConstants(f.vs, []uint32{1, 2, 3, 4})
	f.ctx.Draw(3, 0)
	if f.ctx.constants.raw == nil {
		t.Fatal("constants block not created")
	}
	pending := f.dev.PendingDeletions()
	f.end()
	if f.ctx.constants.raw != nil {
		t.Error("constants block outlived its batch")
	}
	if got := f.dev.PendingDeletions(); got != pending+1 {
		t.Errorf("pending deletions = %d, want %d", got, pending+1)
	}
}

func TestTooManyConstants(t *testing.T) {
	f := newFixture(t)
	breaks := captureBreaks(t)
	f.begin()
	f.ctx.Set32BitShaderConstants(f.vs, make([]uint32, rhi.MaxPushConstants+1))
	f.end()
	if *breaks != 1 {
		t.Errorf("debug breaks = %d, want 1", *breaks)
	}
}

func TestDispatch(t *testing.T) {
	f := newFixture(t)
	cs := f.mustShader(rhi.ShaderDesc{
		Label:    "cs",
		Stage:    rhi.StageCompute,
		Source:   testComputeShader,
		Bindings: []rhi.ShaderBinding{{Type: rhi.BindingBufferUAV, Index: 0}},
	})
	defer cs.Release()
	pipe, err := f.dev.CreateComputePipelineState(rhi.ComputePipelineDesc{Label: "fill", Shader: cs})
	if err != nil {
		t.Fatalf("CreateComputePipelineState: %v", err)
	}
	defer pipe.Release()
	buf := f.mustBuffer(rhi.BufferDesc{Label: "data", Size: 256, Stride: 4, Flags: rhi.BufferUnorderedAccess})
	defer buf.Release()
	uav, err := f.dev.CreateUnorderedAccessView(rhi.UnorderedAccessViewDesc{Buffer: buf})
	if err != nil {
		t.Fatalf("CreateUnorderedAccessView: %v", err)
	}
	defer uav.Release()

	f.begin()
	f.ctx.SetComputePipelineState(pipe)
	f.ctx.SetUnorderedAccessView(cs, uav, 0)
	f.ctx.Dispatch(1, 1, 1)
	if got := buf.(*deviceBuffer).usage; got != gputypes.BufferUsageStorage {
		t.Errorf("buffer usage = %v, want Storage", got)
	}
	f.ctx.UnorderedAccessBufferBarrier(buf)
	f.ctx.Dispatch(1, 1, 1)
	f.end()
}

func TestGenerateMips(t *testing.T) {
	f := newFixture(t)
	f.begin()
	f.ctx.GenerateMips(f.tex)
	f.ctx.GenerateMips(f.tex)
	f.end()
	if got := f.dev.mips.pipelines.Len(); got != 1 {
		t.Errorf("mip pipelines = %d, want 1", got)
	}
}

func TestCanGenerate(t *testing.T) {
	base := rhi.TextureDesc{
		Format:           gputypes.TextureFormatRGBA8Unorm,
		Width:            8,
		Height:           8,
		DepthOrArraySize: 1,
		MipLevels:        4,
		SampleCount:      1,
		Flags:            rhi.TextureShaderResource,
	}
	tests := []struct {
		name   string
		modify func(d *rhi.TextureDesc)
		want   bool
	}{
		{"rgba8", func(*rhi.TextureDesc) {}, true},
		{"array", func(d *rhi.TextureDesc) { d.Dimension, d.DepthOrArraySize = rhi.Texture2DArray, 4 }, true},
		{"volume", func(d *rhi.TextureDesc) { d.Dimension = rhi.Texture3D }, false},
		{"depth", func(d *rhi.TextureDesc) { d.Format = gputypes.TextureFormatDepth32Float }, false},
		{"rgba32f", func(d *rhi.TextureDesc) { d.Format = gputypes.TextureFormatRGBA32Float }, false},
		{"multisampled", func(d *rhi.TextureDesc) { d.SampleCount = 4 }, false},
		{"not sampled", func(d *rhi.TextureDesc) { d.Flags = rhi.TextureRenderTarget }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := base
			tt.modify(&desc)
			if got := canGenerate(&deviceTexture{desc: desc}); got != tt.want {
				t.Errorf("canGenerate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransitionMismatchWarns(t *testing.T) {
	f := newFixture(t)
	logs := captureLogs(t)
	f.begin()
	f.ctx.UpdateBuffer(f.cb, 0, make([]byte, 16))
	f.ctx.TransitionBuffer(f.cb, rhi.AccessIndexBuffer, rhi.AccessVertexAndConstantBuffer)
	f.end()
	if n := logs.count(slog.LevelWarn); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
}

func TestExecuteCommandListsSubmitsOnce(t *testing.T) {
	f := newFixture(t)
	f.queue.lag = true
	lists := make([]*cmdlist.CommandList, 3)
	for i := range lists {
		l := cmdlist.New()
		l.SetRenderTargets([]rhi.RenderTargetView{f.rtv}, nil)
		l.SetGraphicsPipelineState(f.pipe)
		l.SetVertexBuffers([]rhi.Buffer{f.vb}, 0)
		l.Draw(3, 0)
		lists[i] = l
	}

	q := f.dev.CommandQueue()
	if err := q.ExecuteCommandLists(lists...); err != nil {
		t.Fatalf("ExecuteCommandLists: %v", err)
	}
	if got := f.queue.submits; got != 1 {
		t.Errorf("submits = %d, want 1", got)
	}
	if got := f.ctx.CompletedSerial(); got != 0 {
		t.Errorf("CompletedSerial before wait = %d, want 0", got)
	}
	if n := len(f.ctx.inflight); n != 1 {
		t.Errorf("in flight = %d, want 1", n)
	}

	if err := q.WaitForGPU(); err != nil {
		t.Fatalf("WaitForGPU: %v", err)
	}
	if got := f.hal.waitIdles; got != 1 {
		t.Errorf("device waits = %d, want 1", got)
	}
	if got := f.queue.submits; got != 1 {
		t.Errorf("submits after wait = %d, want 1", got)
	}
	if got := f.ctx.CompletedSerial(); got != 1 {
		t.Errorf("CompletedSerial after wait = %d, want 1", got)
	}
	if n := len(f.ctx.inflight); n != 0 {
		t.Errorf("in flight after wait = %d, want 0", n)
	}
}

func TestExecuteCommandList(t *testing.T) {
	f := newFixture(t)
	l := cmdlist.New()
	l.SetRenderTargets([]rhi.RenderTargetView{f.rtv}, nil)
	l.ClearRenderTargetView(f.rtv, rhi.Color{A: 1})
	l.SetGraphicsPipelineState(f.pipe)
	l.SetVertexBuffers([]rhi.Buffer{f.vb}, 0)
	l.Draw(3, 0)
	if got := f.vb.RefCount(); got != 2 {
		t.Errorf("vertex buffer refs while recorded = %d, want 2", got)
	}

	q := f.dev.CommandQueue()
	if err := q.ExecuteCommandList(l); err != nil {
		t.Fatalf("ExecuteCommandList: %v", err)
	}
	if err := q.WaitForGPU(); err != nil {
		t.Fatalf("WaitForGPU: %v", err)
	}
	if s := q.Stats(); s.NumExecutions != 1 || s.NumDrawCalls != 1 {
		t.Errorf("stats = %+v, want one execution and one draw", s)
	}
	if got := f.ctx.CompletedSerial(); got != 1 {
		t.Errorf("CompletedSerial = %d, want 1", got)
	}
	if !l.IsEmpty() {
		t.Error("list not reset after execution")
	}
	// The context still binds the buffer until it is replaced.
	if got := f.vb.RefCount(); got != 2 {
		t.Errorf("vertex buffer refs after execution = %d, want 2", got)
	}
}
