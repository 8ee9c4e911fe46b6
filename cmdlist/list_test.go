package cmdlist

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/null"
)

// captureHandler counts log records per level.
type captureHandler struct {
	mu     sync.Mutex
	counts map[slog.Level]int
	msgs   []string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler       { return h }
func (h *captureHandler) WithGroup(string) slog.Handler            { return h }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.counts == nil {
		h.counts = make(map[slog.Level]int)
	}
	h.counts[r.Level]++
	h.msgs = append(h.msgs, r.Message)
	return nil
}

func (h *captureHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[level]
}

func captureLogs(t *testing.T) *captureHandler {
	t.Helper()
	orig := rhi.Logger()
	t.Cleanup(func() { rhi.SetLogger(orig) })
	h := &captureHandler{}
	rhi.SetLogger(slog.New(h))
	return h
}

type fixture struct {
	dev   *null.Device
	queue *CommandQueue

	vb      rhi.Buffer
	cb      rhi.Buffer
	tex     rhi.Texture
	rtv     rhi.RenderTargetView
	srv     rhi.ShaderResourceView
	vs      rhi.Shader
	ps      rhi.Shader
	sampler rhi.SamplerState
	pso     rhi.GraphicsPipelineState
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := null.NewDevice(null.WithTrace())
	f := &fixture{dev: dev, queue: NewCommandQueue(dev.Context())}

	var err error
	must := func(e error) {
		t.Helper()
		if e != nil {
			t.Fatalf("create resource: %v", e)
		}
	}
	f.vb, err = dev.CreateBuffer(rhi.BufferDesc{Label: "vertices", Size: 256, Flags: rhi.BufferVertex}, nil)
	must(err)
	f.cb, err = dev.CreateBuffer(rhi.BufferDesc{Label: "constants", Size: 64, Flags: rhi.BufferConstant | rhi.BufferCopyDst}, nil)
	must(err)
	f.tex, err = dev.CreateTexture(rhi.TextureDesc{
		Label: "color", Width: 800, Height: 600,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Flags:  rhi.TextureRenderTarget | rhi.TextureShaderResource,
	}, nil)
	must(err)
	f.rtv, err = dev.CreateRenderTargetView(rhi.RenderTargetViewDesc{Label: "color rtv", Texture: f.tex})
	must(err)
	f.srv, err = dev.CreateShaderResourceView(rhi.ShaderResourceViewDesc{Label: "color srv", Texture: f.tex})
	must(err)
	f.vs, err = dev.CreateShader(rhi.ShaderDesc{Label: "vs", Stage: rhi.StageVertex})
	must(err)
	f.ps, err = dev.CreateShader(rhi.ShaderDesc{Label: "ps", Stage: rhi.StagePixel})
	must(err)
	f.sampler, err = dev.CreateSamplerState(rhi.SamplerDesc{Label: "linear"})
	must(err)
	f.pso, err = dev.CreateGraphicsPipelineState(rhi.GraphicsPipelineDesc{Label: "pso", VertexShader: f.vs, PixelShader: f.ps})
	must(err)
	return f
}

func (f *fixture) trace() []string { return f.dev.NullContext().Calls() }

func TestCommandTypeString(t *testing.T) {
	seen := make(map[string]CommandType)
	for c := CommandType(0); c < numCommandTypes; c++ {
		name := c.String()
		if name == "" || name == "Unknown" {
			t.Errorf("CommandType(%d) has no name", c)
		}
		if prev, dup := seen[name]; dup {
			t.Errorf("CommandType(%d) and CommandType(%d) share name %q", prev, c, name)
		}
		seen[name] = c
	}
	if got := numCommandTypes.String(); got != "Unknown" {
		t.Errorf("out of range String() = %q, want Unknown", got)
	}
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	l := New()

	l.ClearRenderTargetView(f.rtv, rhi.Color{R: 0.1, G: 0.2, B: 0.3, A: 1})
	l.SetViewport(800, 600, 0, 1, 0, 0)
	l.Draw(3, 0)

	if l.NumDrawCalls() != 1 || l.NumCommands() != 3 || l.NumDispatchCalls() != 0 {
		t.Fatalf("counters = draws %d, commands %d, dispatches %d; want 1, 3, 0",
			l.NumDrawCalls(), l.NumCommands(), l.NumDispatchCalls())
	}

	if err := f.queue.ExecuteCommandList(l); err != nil {
		t.Fatalf("ExecuteCommandList() error = %v", err)
	}

	want := []string{"ClearRenderTargetView", "SetViewport", "Draw"}
	if got := f.trace(); !reflect.DeepEqual(got, want) {
		t.Errorf("context calls = %v, want %v", got, want)
	}
	if l.NumDrawCalls() != 0 || l.NumCommands() != 0 || !l.IsEmpty() {
		t.Errorf("counters after execute = draws %d, commands %d; want 0, 0", l.NumDrawCalls(), l.NumCommands())
	}

	begins, ends, _ := f.dev.NullContext().Counts()
	if begins != 1 || ends != 1 {
		t.Errorf("Begin/End calls = %d/%d, want 1/1", begins, ends)
	}
}

func TestExecutePreservesRecordingOrder(t *testing.T) {
	f := newFixture(t)
	l := New()

	l.InsertCommandListMarker("frame")
	l.SetRenderTargets([]rhi.RenderTargetView{f.rtv}, nil)
	l.BeginRenderPass()
	l.SetGraphicsPipelineState(f.pso)
	l.SetPrimitiveTopology(rhi.TopologyTriangleList)
	l.SetVertexBuffers([]rhi.Buffer{f.vb}, 0)
	l.SetIndexBuffer(f.vb, rhi.IndexFormatUint16)
	l.SetConstantBuffer(f.vs, f.cb, 0)
	l.SetShaderResourceView(f.ps, f.srv, 0)
	l.SetSamplerState(f.ps, f.sampler, 0)
	l.Set32BitShaderConstants(f.vs, []uint32{1, 2, 3})
	l.SetScissorRect(800, 600, 0, 0)
	l.SetBlendFactor(rhi.Color{A: 1})
	l.DrawIndexedInstanced(6, 2, 0, 0, 0)
	l.EndRenderPass()
	l.UpdateBuffer(f.cb, 0, []byte{1, 2, 3, 4})
	l.TransitionTexture(f.tex, rhi.AccessRenderTarget, rhi.AccessPixelShaderResource)
	l.Dispatch(8, 8, 1)

	var want []string
	for _, c := range l.Commands() {
		want = append(want, c.Type().String())
	}

	if err := f.queue.ExecuteCommandList(l); err != nil {
		t.Fatalf("ExecuteCommandList() error = %v", err)
	}
	if got := f.trace(); !reflect.DeepEqual(got, want) {
		t.Errorf("context calls =\n%v\nwant\n%v", got, want)
	}
}

func TestMarkersOutliveReset(t *testing.T) {
	f := newFixture(t)
	l := New()
	l.InsertCommandListMarker("frame")
	l.InsertCommandListMarker("shadow pass")
	if err := f.queue.ExecuteCommandList(l); err != nil {
		t.Fatalf("ExecuteCommandList() error = %v", err)
	}

	// The next recording reuses the arena bytes of the first.
	l.Reset()
	l.InsertCommandListMarker("XXXXXXXXXXXXXXXX")
	if err := f.queue.ExecuteCommandList(l); err != nil {
		t.Fatalf("ExecuteCommandList() error = %v", err)
	}
	l.Reset()

	want := []string{"frame", "shadow pass", "XXXXXXXXXXXXXXXX"}
	if got := f.dev.NullContext().Markers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Markers() = %q, want %q", got, want)
	}
}

func TestExecuteCommandListsOrder(t *testing.T) {
	f := newFixture(t)
	a, b := New(), New()
	a.Draw(3, 0)
	b.Dispatch(1, 1, 1)
	a.DrawIndexed(6, 0, 0)

	if err := f.queue.ExecuteCommandLists(a, nil, b); err != nil {
		t.Fatalf("ExecuteCommandLists() error = %v", err)
	}
	want := []string{"Draw", "DrawIndexed", "Dispatch"}
	if got := f.trace(); !reflect.DeepEqual(got, want) {
		t.Errorf("context calls = %v, want %v", got, want)
	}
	if begins, ends, _ := f.dev.NullContext().Counts(); begins != 1 || ends != 1 {
		t.Errorf("Begin/End calls = %d/%d, want one bracket for all lists", begins, ends)
	}

	s := f.queue.Stats()
	if s.NumExecutions != 1 || s.NumCommands != 3 || s.NumDrawCalls != 2 || s.NumDispatchCalls != 1 {
		t.Errorf("Stats() = %v", s)
	}
	f.queue.ResetStats()
	if s := f.queue.Stats(); s != (FrameStats{}) {
		t.Errorf("Stats() after ResetStats = %v, want zero", s)
	}
}

func TestReferenceCounts(t *testing.T) {
	f := newFixture(t)
	l1, l2 := New(), New()

	base := f.vb.RefCount()
	l1.SetVertexBuffers([]rhi.Buffer{f.vb, f.vb}, 0)
	l1.SetIndexBuffer(f.vb, rhi.IndexFormatUint32)
	l2.CopyBuffer(f.vb, f.cb, rhi.CopyBufferInfo{Size: 16})

	if got, want := f.vb.RefCount(), base+4; got != want {
		t.Errorf("RefCount() with pending commands = %d, want %d", got, want)
	}

	l1.Reset()
	if got, want := f.vb.RefCount(), base+1; got != want {
		t.Errorf("RefCount() after first Reset = %d, want %d", got, want)
	}
	if err := f.queue.ExecuteCommandList(l2); err != nil {
		t.Fatalf("ExecuteCommandList() error = %v", err)
	}
	if got := f.vb.RefCount(); got != base {
		t.Errorf("RefCount() after execute = %d, want %d", got, base)
	}
}

func TestResourceOutlivesCallerRelease(t *testing.T) {
	f := newFixture(t)
	buf, err := f.dev.CreateBuffer(rhi.BufferDesc{Label: "temp", Size: 4, Flags: rhi.BufferCopyDst}, nil)
	if err != nil {
		t.Fatal(err)
	}
	live := f.dev.LiveResources()

	l := New()
	l.UpdateBuffer(buf, 0, []byte{9, 9, 9, 9})
	buf.Release()
	if f.dev.LiveResources() != live {
		t.Fatal("buffer destroyed while a pending command references it")
	}

	if err := f.queue.ExecuteCommandList(l); err != nil {
		t.Fatal(err)
	}
	if got := f.dev.LiveResources(); got != live-1 {
		t.Errorf("LiveResources() after execute = %d, want %d", got, live-1)
	}
}

func TestArgumentsAreCopied(t *testing.T) {
	f := newFixture(t)
	l := New()

	constants := []uint32{1, 2, 3}
	data := []byte{1, 2, 3, 4}
	buffers := []rhi.Buffer{f.vb}
	l.Set32BitShaderConstants(f.vs, constants)
	l.UpdateBuffer(f.cb, 0, data)
	l.SetVertexBuffers(buffers, 0)
	constants[0], data[0], buffers[0] = 100, 100, f.cb

	cmds := l.Commands()
	if got := cmds[0].(*Set32BitShaderConstantsCommand).Constants; !reflect.DeepEqual(got, []uint32{1, 2, 3}) {
		t.Errorf("constants = %v, want [1 2 3]", got)
	}
	if got := cmds[1].(*UpdateBufferCommand).Data; !reflect.DeepEqual(got, []byte{1, 2, 3, 4}) {
		t.Errorf("data = %v, want [1 2 3 4]", got)
	}
	if got := cmds[2].(*SetVertexBuffersCommand).Buffers[0]; got != f.vb {
		t.Errorf("vertex buffer = %v, want the recorded one", rhi.ResourceName(got))
	}

	if err := f.queue.ExecuteCommandList(l); err != nil {
		t.Fatal(err)
	}
	if got := f.cb.(*null.Buffer).Bytes()[:4]; !reflect.DeepEqual(got, []byte{1, 2, 3, 4}) {
		t.Errorf("buffer contents = %v, want [1 2 3 4]", got)
	}
}

func TestRedundantTransitions(t *testing.T) {
	tests := []struct {
		name      string
		record    func(l *CommandList, f *fixture)
		wantWarn  int
		wantDebug int
	}{
		{
			name: "texture",
			record: func(l *CommandList, f *fixture) {
				l.TransitionTexture(f.tex, rhi.AccessRenderTarget, rhi.AccessRenderTarget)
			},
			wantWarn: 1,
		},
		{
			name: "buffer",
			record: func(l *CommandList, f *fixture) {
				l.TransitionBuffer(f.vb, rhi.AccessCopyDest, rhi.AccessCopyDest)
			},
			wantDebug: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLogs(t)
			f := newFixture(t)
			l := New()

			tt.record(l, f)
			if l.NumCommands() != 0 {
				t.Errorf("NumCommands() = %d, want 0", l.NumCommands())
			}
			if err := f.queue.ExecuteCommandList(l); err != nil {
				t.Fatal(err)
			}
			if calls := f.trace(); len(calls) != 0 {
				t.Errorf("context calls = %v, want none", calls)
			}
			if got := logs.count(slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warnings = %d, want %d", got, tt.wantWarn)
			}
			if got := logs.count(slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug records = %d, want %d", got, tt.wantDebug)
			}
		})
	}
}

func TestNilRequiredResourcePanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(l *CommandList)
	}{
		{"ClearRenderTargetView", func(l *CommandList) { l.ClearRenderTargetView(nil, rhi.Color{}) }},
		{"CopyBuffer", func(l *CommandList) { l.CopyBuffer(nil, nil, rhi.CopyBufferInfo{}) }},
		{"TransitionTexture", func(l *CommandList) { l.TransitionTexture(nil, rhi.AccessCommon, rhi.AccessCopyDest) }},
		{"SetShaderResourceView", func(l *CommandList) { l.SetShaderResourceView(nil, nil, 0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s(nil) did not panic", tt.name)
				}
			}()
			tt.fn(New())
		})
	}
}

func TestOptionalResourcesMayBeNil(t *testing.T) {
	f := newFixture(t)
	l := New()
	l.SetRenderTargets([]rhi.RenderTargetView{nil, f.rtv}, nil)
	l.SetShadingRateImage(nil)
	l.SetShaderResourceView(f.ps, nil, 1)
	l.SetVertexBuffers(nil, 0)
	if err := f.queue.ExecuteCommandList(l); err != nil {
		t.Fatal(err)
	}
}

func TestRayTracingBindingsDeepCopy(t *testing.T) {
	f := newFixture(t)
	l := New()
	base := f.cb.RefCount()

	hit := []rhi.RayTracingShaderResources{{Identifier: "hit", ConstantBuffers: []rhi.Buffer{f.cb}}}
	global := &rhi.RayTracingShaderResources{Identifier: "global", ConstantBuffers: []rhi.Buffer{f.cb}}
	var scene rhi.RayTracingScene = &rtObject{}
	var pso rhi.RayTracingPipelineState = &rtObject{}
	scene.(*rtObject).Init("scene", nil)
	pso.(*rtObject).Init("rtpso", nil)

	l.SetRayTracingBindings(scene, pso, global, nil, nil, hit)
	hit[0].Identifier = "changed"
	global.ConstantBuffers[0] = nil

	cmd := l.Commands()[0].(*SetRayTracingBindingsCommand)
	if cmd.HitGroups[0].Identifier != "hit" || cmd.Global.ConstantBuffers[0] != f.cb {
		t.Error("binding tables were not copied")
	}
	if cmd.RayGen != nil || cmd.Miss != nil {
		t.Error("nil tables should stay nil")
	}
	if got := f.cb.RefCount(); got != base+2 {
		t.Errorf("RefCount() = %d, want %d", got, base+2)
	}
	l.Reset()
	if got := f.cb.RefCount(); got != base {
		t.Errorf("RefCount() after Reset = %d, want %d", got, base)
	}
	if scene.RefCount() != 1 || pso.RefCount() != 1 {
		t.Errorf("scene/pipeline refs = %d/%d, want 1/1", scene.RefCount(), pso.RefCount())
	}
}

type rtObject struct{ rhi.RefCounted }

// failingContext fails Begin and counts calls.
type failingContext struct {
	*null.Context
	err error
}

func (c *failingContext) Begin() error { return c.err }

func TestExecuteBeginFailureReleasesReferences(t *testing.T) {
	f := newFixture(t)
	errLost := errors.New("device lost")
	q := NewCommandQueue(&failingContext{Context: f.dev.NullContext(), err: errLost})

	l := New()
	base := f.vb.RefCount()
	l.SetVertexBuffers([]rhi.Buffer{f.vb}, 0)
	l.Draw(3, 0)

	err := q.ExecuteCommandList(l)
	if !errors.Is(err, errLost) {
		t.Fatalf("ExecuteCommandList() error = %v, want %v", err, errLost)
	}
	if len(f.trace()) != 0 {
		t.Errorf("commands executed after failed Begin: %v", f.trace())
	}
	if !l.IsEmpty() || f.vb.RefCount() != base {
		t.Errorf("list not reset after failed Begin: commands %d, refs %d", l.NumCommands(), f.vb.RefCount())
	}
}

func TestQueueWithoutContext(t *testing.T) {
	q := NewCommandQueue(nil)
	l := New()
	l.Draw(3, 0)
	if err := q.ExecuteCommandList(l); !errors.Is(err, ErrNoContext) {
		t.Errorf("ExecuteCommandList() error = %v, want ErrNoContext", err)
	}
	if !l.IsEmpty() {
		t.Error("list not reset")
	}
	if err := q.WaitForGPU(); !errors.Is(err, ErrNoContext) {
		t.Errorf("WaitForGPU() error = %v, want ErrNoContext", err)
	}
}

func TestWaitForGPUFlushes(t *testing.T) {
	f := newFixture(t)
	if err := f.queue.WaitForGPU(); err != nil {
		t.Fatal(err)
	}
	if _, _, flushes := f.dev.NullContext().Counts(); flushes != 1 {
		t.Errorf("Flush calls = %d, want 1", flushes)
	}

	other := null.NewDevice()
	f.queue.SetContext(other.Context())
	if f.queue.Context() != other.Context() {
		t.Error("SetContext did not replace the context")
	}
}

func TestResetReusesArena(t *testing.T) {
	l := New()
	payload := make([]byte, 1024)
	for range 4 {
		l.InsertCommandListMarker("pass")
		l.UpdateBuffer(&nopBuffer{}, 0, payload)
		l.Reset()
	}
	s := l.ArenaStats()
	if s.NumBlocks != 1 {
		t.Errorf("NumBlocks = %d, want 1 after repeated reuse", s.NumBlocks)
	}
	if s.NumAllocations != 0 {
		t.Errorf("NumAllocations after Reset = %d, want 0", s.NumAllocations)
	}
}

type nopBuffer struct{ rhi.RefCounted }

func (*nopBuffer) Desc() rhi.BufferDesc { return rhi.BufferDesc{} }

func BenchmarkRecordAndExecute(b *testing.B) {
	dev := null.NewDevice()
	q := NewCommandQueue(dev.Context())
	vb, _ := dev.CreateBuffer(rhi.BufferDesc{Size: 64, Flags: rhi.BufferVertex}, nil)
	buffers := []rhi.Buffer{vb}
	l := New()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for range 100 {
			l.SetVertexBuffers(buffers, 0)
			l.SetViewport(800, 600, 0, 1, 0, 0)
			l.Draw(3, 0)
		}
		if err := q.ExecuteCommandList(l); err != nil {
			b.Fatal(err)
		}
	}
}
