package vulkan

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	shadercompiler "github.com/gogpu/rhi/internal/shader"
)

type fixture struct {
	t   *testing.T
	drv *fakeDriver
	dev *Device
	ctx *Context

	vs, ps rhi.Shader
	pipe   rhi.GraphicsPipelineState
	vb     rhi.Buffer
	cb     rhi.Buffer
	tex    rhi.Texture
	rtv    rhi.RenderTargetView
}

func fakeSPIRV(string) ([]uint32, error) { return []uint32{shadercompiler.SPIRVMagic}, nil }

// newFixture opens a device over drv with a vertex shader declaring two
// constant buffers, a texture and a sampler, a pixel shader declaring one
// sampler, and a pipeline and render target to draw with.
func newFixture(t *testing.T, drv *fakeDriver, opts ...Option) *fixture {
	t.Helper()
	dev, err := New(drv, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dev.compileShader = fakeSPIRV
	t.Cleanup(func() { dev.Close() })

	f := &fixture{t: t, drv: drv, dev: dev, ctx: dev.VulkanContext()}
	f.vs = f.mustShader(rhi.ShaderDesc{
		Label:  "vs",
		Stage:  rhi.StageVertex,
		Source: "vs",
		Bindings: []rhi.ShaderBinding{
			{Type: rhi.BindingConstantBuffer, Index: 0},
			{Type: rhi.BindingConstantBuffer, Index: 1},
			{Type: rhi.BindingTextureSRV, Index: 0},
			{Type: rhi.BindingSampler, Index: 0},
		},
		NumConstants: 4,
	})
	f.ps = f.mustShader(rhi.ShaderDesc{
		Label:    "ps",
		Stage:    rhi.StagePixel,
		Source:   "ps",
		Bindings: []rhi.ShaderBinding{{Type: rhi.BindingSampler, Index: 1}},
	})
	f.pipe, err = dev.CreateGraphicsPipelineState(rhi.GraphicsPipelineDesc{
		Label:               "pipe",
		VertexShader:        f.vs,
		PixelShader:         f.ps,
		InputLayout:         []rhi.VertexElement{{Format: gputypes.VertexFormatFloat32x2, Stride: 8}},
		RenderTargetFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
	})
	if err != nil {
		t.Fatalf("CreateGraphicsPipelineState: %v", err)
	}
	f.vb = f.mustBuffer(rhi.BufferDesc{Label: "vb", Size: 64, Stride: 8, Flags: rhi.BufferVertex})
	f.cb = f.mustBuffer(rhi.BufferDesc{Label: "cb", Size: 128, Flags: rhi.BufferConstant})
	f.tex, err = dev.CreateTexture(rhi.TextureDesc{
		Label:  "target",
		Format: gputypes.TextureFormatRGBA8Unorm,
		Width:  64,
		Height: 32,
		Flags:  rhi.TextureRenderTarget | rhi.TextureShaderResource,
	}, nil)
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	f.rtv, err = dev.CreateRenderTargetView(rhi.RenderTargetViewDesc{Label: "rtv", Texture: f.tex})
	if err != nil {
		t.Fatalf("CreateRenderTargetView: %v", err)
	}
	return f
}

func (f *fixture) mustShader(desc rhi.ShaderDesc) rhi.Shader {
	f.t.Helper()
	s, err := f.dev.CreateShader(desc)
	if err != nil {
		f.t.Fatalf("CreateShader %s: %v", desc.Label, err)
	}
	return s
}

func (f *fixture) mustBuffer(desc rhi.BufferDesc) rhi.Buffer {
	f.t.Helper()
	b, err := f.dev.CreateBuffer(desc, nil)
	if err != nil {
		f.t.Fatalf("CreateBuffer %s: %v", desc.Label, err)
	}
	return b
}

func (f *fixture) begin() {
	f.t.Helper()
	if err := f.ctx.Begin(); err != nil {
		f.t.Fatalf("Begin: %v", err)
	}
}

func (f *fixture) end() {
	f.t.Helper()
	if err := f.ctx.End(); err != nil {
		f.t.Fatalf("End: %v", err)
	}
}

// bindDraw binds the fixture's target, pipeline and vertex buffer.
func (f *fixture) bindDraw() {
	f.ctx.SetRenderTargets([]rhi.RenderTargetView{f.rtv}, nil)
	f.ctx.SetGraphicsPipelineState(f.pipe)
	f.ctx.SetVertexBuffers([]rhi.Buffer{f.vb}, 0)
}

func TestNewDefaults(t *testing.T) {
	tests := []struct {
		name        string
		supported   bool
		opts        []Option
		wantNull    bool
		wantBuffers int
	}{
		{"null descriptors", true, nil, true, 0},
		{"unsupported", false, nil, false, 1},
		{"disabled", true, []Option{WithNullDescriptors(false)}, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := newFakeDriver()
			drv.props.NullDescriptor = tt.supported
			dev, err := New(drv, tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer dev.Close()

			if got := dev.descriptors.defaults.Null; got != tt.wantNull {
				t.Errorf("Null = %v, want %v", got, tt.wantNull)
			}
			if got := drv.count("CreateBuffer"); got != tt.wantBuffers {
				t.Errorf("CreateBuffer calls = %d, want %d", got, tt.wantBuffers)
			}
			if drv.count("CreateSampler") != 1 {
				t.Errorf("CreateSampler calls = %d, want 1", drv.count("CreateSampler"))
			}
			if got := dev.Name(); got != "vulkan (fake)" {
				t.Errorf("Name = %q", got)
			}
		})
	}
}

func TestCreateShaderValidation(t *testing.T) {
	f := newFixture(t, newFakeDriver())

	tests := []struct {
		name string
		desc rhi.ShaderDesc
		want error
	}{
		{"no source", rhi.ShaderDesc{Stage: rhi.StageVertex}, rhi.ErrInvalidDesc},
		{"ray tracing", rhi.ShaderDesc{Stage: rhi.StageRayGen, Source: "x"}, rhi.ErrUnsupported},
		{"slot out of range", rhi.ShaderDesc{
			Stage:    rhi.StageVertex,
			Source:   "x",
			Bindings: []rhi.ShaderBinding{{Type: rhi.BindingSampler, Index: rhi.MaxBindingsPerType}},
		}, rhi.ErrInvalidDesc},
		{"duplicate", rhi.ShaderDesc{
			Stage:  rhi.StageVertex,
			Source: "x",
			Bindings: []rhi.ShaderBinding{
				{Type: rhi.BindingTextureSRV, Index: 2},
				{Type: rhi.BindingBufferSRV, Index: 2},
			},
		}, rhi.ErrInvalidDesc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dev.CreateShader(tt.desc)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateShader err = %v, want %v", err, tt.want)
			}
		})
	}

	s := f.mustShader(rhi.ShaderDesc{Stage: rhi.StageCompute, Source: "cs"})
	defer s.Release()
	if got := s.Desc().EntryPoint; got != "main" {
		t.Errorf("EntryPoint = %q, want main", got)
	}
}

func TestPipelineHoldsShaders(t *testing.T) {
	f := newFixture(t, newFakeDriver())
	if got := f.vs.RefCount(); got != 2 {
		t.Fatalf("vs RefCount = %d, want 2", got)
	}
	f.pipe.Release()
	if got := f.vs.RefCount(); got != 1 {
		t.Errorf("vs RefCount after pipeline release = %d, want 1", got)
	}
}

func TestLayoutsShared(t *testing.T) {
	f := newFixture(t, newFakeDriver())
	before := f.drv.count("CreatePipelineLayout")
	p, err := f.dev.CreateGraphicsPipelineState(rhi.GraphicsPipelineDesc{
		VertexShader:        f.vs,
		PixelShader:         f.ps,
		RenderTargetFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
	})
	if err != nil {
		t.Fatalf("CreateGraphicsPipelineState: %v", err)
	}
	defer p.Release()
	if got := f.drv.count("CreatePipelineLayout") - before; got != 0 {
		t.Errorf("second pipeline created %d layouts, want 0", got)
	}
	if got := p.(*graphicsPipeline).layout; got != f.pipe.(*graphicsPipeline).layout {
		t.Error("pipelines with the same shaders use different layouts")
	}
}

func TestClose(t *testing.T) {
	drv := newFakeDriver()
	f := newFixture(t, drv)
	f.begin()

	if err := f.dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !drv.destroyed {
		t.Error("driver not destroyed")
	}
	if err := f.dev.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := f.dev.CreateBuffer(rhi.BufferDesc{Size: 4, Flags: rhi.BufferVertex}, nil); !errors.Is(err, rhi.ErrDeviceClosed) {
		t.Errorf("CreateBuffer after Close err = %v, want ErrDeviceClosed", err)
	}
	if got := drv.count("Submit"); got != 1 {
		t.Errorf("Submit calls = %d, want the open batch submitted once", got)
	}
}

func TestDeviceLevelBufferUpload(t *testing.T) {
	f := newFixture(t, newFakeDriver())

	host, err := f.dev.CreateBuffer(rhi.BufferDesc{Size: 16, Flags: rhi.BufferConstant}, make([]byte, 16))
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	defer host.Release()
	if got := f.drv.count("WriteBuffer"); got != 1 {
		t.Errorf("host-visible buffer WriteBuffer calls = %d, want 1", got)
	}

	dev, err := f.dev.CreateBuffer(rhi.BufferDesc{Size: 16, Flags: rhi.BufferUnorderedAccess}, make([]byte, 16))
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	defer dev.Release()
	if got := dev.RefCount(); got != 2 {
		t.Errorf("RefCount with pending upload = %d, want 2", got)
	}

	f.begin()
	if got := countCmd(f.drv.commands(), "CmdCopyBuffer"); got != 1 {
		t.Errorf("CmdCopyBuffer = %d, want 1", got)
	}
	if got := dev.RefCount(); got != 1 {
		t.Errorf("RefCount after upload = %d, want 1", got)
	}
	f.end()
}
