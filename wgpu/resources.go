package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/wgpu/hal"
)

// deviceBuffer is a hal buffer. usage is the state recorded commands leave
// it in; only the recording goroutine touches it.
type deviceBuffer struct {
	rhi.RefCounted
	desc  rhi.BufferDesc
	raw   hal.Buffer
	usage gputypes.BufferUsage
}

func (b *deviceBuffer) Desc() rhi.BufferDesc { return b.desc }

// deviceTexture is a hal texture with whole-resource usage tracking.
type deviceTexture struct {
	rhi.RefCounted
	desc  rhi.TextureDesc
	raw   hal.Texture
	usage gputypes.TextureUsage
}

func (t *deviceTexture) Desc() rhi.TextureDesc { return t.desc }

func (t *deviceTexture) layers() uint32 {
	if t.desc.Dimension == rhi.Texture3D {
		return 1
	}
	return t.desc.DepthOrArraySize
}

func (t *deviceTexture) mipExtent(mip uint32) (w, h, d uint32) {
	w = max(t.desc.Width>>mip, 1)
	h = max(t.desc.Height>>mip, 1)
	d = 1
	if t.desc.Dimension == rhi.Texture3D {
		d = max(t.desc.DepthOrArraySize>>mip, 1)
	}
	return w, h, d
}

// view is shared by every view kind. Buffer views carry a byte range and
// no texture view.
type view struct {
	rhi.RefCounted
	texture *deviceTexture
	buffer  *deviceBuffer
	raw     hal.TextureView
	mip     uint32
	offset  uint64
	size    uint64
}

func (v *view) Texture() rhi.Texture {
	if v.texture == nil {
		return nil
	}
	return v.texture
}

func (v *view) Buffer() rhi.Buffer {
	if v.buffer == nil {
		return nil
	}
	return v.buffer
}

type shaderResourceView struct {
	view
	desc rhi.ShaderResourceViewDesc
}

func (v *shaderResourceView) ShaderResourceDesc() rhi.ShaderResourceViewDesc { return v.desc }

type unorderedAccessView struct {
	view
	desc rhi.UnorderedAccessViewDesc
}

func (v *unorderedAccessView) UnorderedAccessDesc() rhi.UnorderedAccessViewDesc { return v.desc }

type renderTargetView struct {
	view
	desc rhi.RenderTargetViewDesc
}

func (v *renderTargetView) RenderTargetDesc() rhi.RenderTargetViewDesc { return v.desc }

func (v *renderTargetView) format() gputypes.TextureFormat {
	if v.desc.Format != gputypes.TextureFormatUndefined {
		return v.desc.Format
	}
	return v.texture.desc.Format
}

type depthStencilView struct {
	view
	desc rhi.DepthStencilViewDesc
}

func (v *depthStencilView) DepthStencilDesc() rhi.DepthStencilViewDesc { return v.desc }

type samplerState struct {
	rhi.RefCounted
	desc rhi.SamplerDesc
	raw  hal.Sampler
}

func (s *samplerState) Desc() rhi.SamplerDesc { return s.desc }

// shader owns its module and the bind group layout derived from its
// declared bindings.
type shader struct {
	rhi.RefCounted
	desc   rhi.ShaderDesc
	module hal.ShaderModule
	layout hal.BindGroupLayout
}

func (s *shader) Stage() rhi.ShaderStage { return s.desc.Stage }
func (s *shader) Desc() rhi.ShaderDesc   { return s.desc }

type graphicsPipeline struct {
	rhi.RefCounted
	desc   rhi.GraphicsPipelineDesc
	raw    hal.RenderPipeline
	layout hal.PipelineLayout
	vs, ps *shader
}

func (p *graphicsPipeline) Desc() rhi.GraphicsPipelineDesc { return p.desc }

type computePipeline struct {
	rhi.RefCounted
	desc   rhi.ComputePipelineDesc
	raw    hal.ComputePipeline
	layout hal.PipelineLayout
	cs     *shader
}

func (p *computePipeline) Desc() rhi.ComputePipelineDesc { return p.desc }

func asBuffer(b rhi.Buffer) (*deviceBuffer, error) {
	if b == nil {
		return nil, nil
	}
	wb, ok := b.(*deviceBuffer)
	if !ok {
		return nil, fmt.Errorf("%w: buffer %s", rhi.ErrForeignResource, rhi.ResourceName(b))
	}
	return wb, nil
}

func asTexture(t rhi.Texture) (*deviceTexture, error) {
	if t == nil {
		return nil, nil
	}
	wt, ok := t.(*deviceTexture)
	if !ok {
		return nil, fmt.Errorf("%w: texture %s", rhi.ErrForeignResource, rhi.ResourceName(t))
	}
	return wt, nil
}

func asShader(s rhi.Shader) (*shader, error) {
	if s == nil {
		return nil, nil
	}
	ws, ok := s.(*shader)
	if !ok {
		return nil, fmt.Errorf("%w: shader %s", rhi.ErrForeignResource, rhi.ResourceName(s))
	}
	return ws, nil
}

var (
	_ rhi.Buffer                = (*deviceBuffer)(nil)
	_ rhi.Texture               = (*deviceTexture)(nil)
	_ rhi.ShaderResourceView    = (*shaderResourceView)(nil)
	_ rhi.UnorderedAccessView   = (*unorderedAccessView)(nil)
	_ rhi.RenderTargetView      = (*renderTargetView)(nil)
	_ rhi.DepthStencilView      = (*depthStencilView)(nil)
	_ rhi.SamplerState          = (*samplerState)(nil)
	_ rhi.Shader                = (*shader)(nil)
	_ rhi.GraphicsPipelineState = (*graphicsPipeline)(nil)
	_ rhi.ComputePipelineState  = (*computePipeline)(nil)
)
