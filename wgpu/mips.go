package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/cache"
	"github.com/gogpu/wgpu/hal"
)

// mipBlitShader draws a fullscreen triangle sampling the previous mip.
const mipBlitShader = `
@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var smp: sampler;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
    let uv = vec2<f32>(f32((index << 1u) & 2u), f32(index & 2u));
    var out: VertexOutput;
    out.position = vec4<f32>(uv * vec2<f32>(2.0, -2.0) + vec2<f32>(-1.0, 1.0), 0.0, 1.0);
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(src, smp, in.uv);
}
`

// mipGenerator downsamples mip i-1 into mip i with a linear blit. WebGPU
// cannot render into a texture that is also sampled in the same pass, so
// each level is rendered into a scratch texture and copied into place.
// Pipelines are created per color format on first use.
type mipGenerator struct {
	dev *Device

	module     hal.ShaderModule
	layout     hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	sampler    hal.Sampler
	pipelines  *cache.Cache[gputypes.TextureFormat, hal.RenderPipeline]
}

func newMipGenerator(d *Device) *mipGenerator {
	return &mipGenerator{
		dev:       d,
		pipelines: cache.New[gputypes.TextureFormat, hal.RenderPipeline](),
	}
}

// init creates the format-independent objects.
func (m *mipGenerator) init() error {
	if m.module != nil {
		return nil
	}
	dev := m.dev.device
	module, err := dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "rhi_mip_blit",
		Source: hal.ShaderSource{WGSL: mipBlitShader},
	})
	if err != nil {
		return fmt.Errorf("create mip shader: %w", err)
	}
	layout, err := dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "rhi_mip_blit",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		dev.DestroyShaderModule(module)
		return fmt.Errorf("create mip bind group layout: %w", err)
	}
	pipeLayout, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "rhi_mip_blit",
		BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		dev.DestroyBindGroupLayout(layout)
		dev.DestroyShaderModule(module)
		return fmt.Errorf("create mip pipeline layout: %w", err)
	}
	sampler, err := dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        "rhi_mip_blit",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		dev.DestroyPipelineLayout(pipeLayout)
		dev.DestroyBindGroupLayout(layout)
		dev.DestroyShaderModule(module)
		return fmt.Errorf("create mip sampler: %w", err)
	}
	m.module, m.layout, m.pipeLayout, m.sampler = module, layout, pipeLayout, sampler
	return nil
}

func (m *mipGenerator) pipeline(format gputypes.TextureFormat) (hal.RenderPipeline, error) {
	return m.pipelines.GetOrCreate(format, func() (hal.RenderPipeline, error) {
		p, err := m.dev.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
			Label:  "rhi_mip_blit",
			Layout: m.pipeLayout,
			Vertex: hal.VertexState{Module: m.module, EntryPoint: "vs_main"},
			Fragment: &hal.FragmentState{
				Module:     m.module,
				EntryPoint: "fs_main",
				Targets:    []gputypes.ColorTargetState{{Format: format, WriteMask: gputypes.ColorWriteMaskAll}},
			},
			Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
			Primitive:   gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
		})
		if err != nil {
			return nil, fmt.Errorf("create mip pipeline for %v: %w", format, err)
		}
		return p, nil
	})
}

// canGenerate reports whether t can be downsampled with a render pass.
func canGenerate(t *deviceTexture) bool {
	switch {
	case t.desc.Dimension == rhi.Texture3D,
		rhi.IsDepthFormat(t.desc.Format),
		t.desc.Format == gputypes.TextureFormatRGBA32Float, // not filterable
		t.desc.SampleCount > 1,
		t.desc.Flags&rhi.TextureShaderResource == 0:
		return false
	}
	return true
}

// generate records the downsampling of every layer of t. Objects created
// here are destroyed once the batch completes.
func (m *mipGenerator) generate(c *Context, t *deviceTexture) error {
	if !canGenerate(t) {
		slogger().Debug("wgpu: mip generation skipped", "texture", t.Name(), "format", t.desc.Format, "dimension", t.desc.Dimension)
		return nil
	}
	if err := m.init(); err != nil {
		return err
	}
	pipeline, err := m.pipeline(t.desc.Format)
	if err != nil {
		return err
	}

	dev := m.dev.device
	for mip := uint32(1); mip < t.desc.MipLevels; mip++ {
		w, h, _ := t.mipExtent(mip)
		scratch, err := dev.CreateTexture(&hal.TextureDescriptor{
			Label:         "rhi_mip_scratch",
			Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        t.desc.Format,
			Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			return fmt.Errorf("create mip scratch texture: %w", err)
		}
		scratchView, err := dev.CreateTextureView(scratch, &hal.TextureViewDescriptor{
			Label:           "rhi_mip_scratch",
			Format:          t.desc.Format,
			Dimension:       gputypes.TextureViewDimension2D,
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		})
		if err != nil {
			dev.DestroyTexture(scratch)
			return fmt.Errorf("create mip scratch view: %w", err)
		}
		m.dev.deferDestroy(func() {
			dev.DestroyTextureView(scratchView)
			dev.DestroyTexture(scratch)
		})

		for layer := range t.layers() {
			if err := m.blit(c, t, pipeline, scratch, scratchView, mip, layer, w, h); err != nil {
				return err
			}
		}
	}
	return nil
}

// blit renders mip-1 of layer into scratch and copies it to mip.
func (m *mipGenerator) blit(c *Context, t *deviceTexture, pipeline hal.RenderPipeline,
	scratch hal.Texture, scratchView hal.TextureView, mip, layer, w, h uint32,
) error {
	dev := m.dev.device
	srcView, err := dev.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:           "rhi_mip_src",
		Format:          t.desc.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    mip - 1,
		MipLevelCount:   1,
		BaseArrayLayer:  layer,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return fmt.Errorf("create mip source view: %w", err)
	}
	group, err := dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "rhi_mip_blit",
		Layout: m.layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: srcView.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: m.sampler.NativeHandle()}},
		},
	})
	if err != nil {
		dev.DestroyTextureView(srcView)
		return fmt.Errorf("create mip bind group: %w", err)
	}
	m.dev.deferDestroy(func() {
		dev.DestroyBindGroup(group)
		dev.DestroyTextureView(srcView)
	})

	c.useTexture(t, gputypes.TextureUsageTextureBinding)
	c.flushBarriers()
	c.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: scratch,
		Range:   wholeTexture,
		Usage:   hal.TextureUsageTransition{OldUsage: 0, NewUsage: gputypes.TextureUsageRenderAttachment},
	}})
	pass := c.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "rhi_mip_blit",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    scratchView,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
		}},
	})
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()

	c.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: scratch,
		Range:   wholeTexture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	c.useTexture(t, gputypes.TextureUsageCopyDst)
	c.flushBarriers()
	c.encoder.CopyTextureToTexture(scratch, t.raw, []hal.TextureCopy{{
		SrcBase: hal.ImageCopyTexture{Texture: scratch, Aspect: gputypes.TextureAspectAll},
		DstBase: hal.ImageCopyTexture{Texture: t.raw, Aspect: gputypes.TextureAspectAll, MipLevel: mip, Origin: hal.Origin3D{Z: layer}},
		Size:    hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	return nil
}

// release destroys the cached pipelines and shared objects.
func (m *mipGenerator) release() {
	dev := m.dev.device
	for _, p := range m.pipelines.Drain() {
		dev.DestroyRenderPipeline(p)
	}
	if m.module == nil {
		return
	}
	dev.DestroySampler(m.sampler)
	dev.DestroyPipelineLayout(m.pipeLayout)
	dev.DestroyBindGroupLayout(m.layout)
	dev.DestroyShaderModule(m.module)
	m.module = nil
}
