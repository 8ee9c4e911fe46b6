package vulkan

import (
	"fmt"
	"time"

	"github.com/gogpu/rhi"
)

// deviceBuffer is a buffer and its memory.
type deviceBuffer struct {
	rhi.RefCounted
	desc   rhi.BufferDesc
	handle Buffer
}

func (b *deviceBuffer) Desc() rhi.BufferDesc { return b.desc }

// deviceTexture is an image and its memory. layout is the layout the image
// will be in once the commands recorded so far have executed; only the
// recording goroutine touches it.
type deviceTexture struct {
	rhi.RefCounted
	desc   rhi.TextureDesc
	handle Image
	layout ImageLayout
}

func (t *deviceTexture) Desc() rhi.TextureDesc { return t.desc }

func (t *deviceTexture) aspect() ImageAspect {
	return aspectOf(t.desc)
}

func (t *deviceTexture) layers() uint32 {
	if t.desc.Dimension == rhi.Texture3D {
		return 1
	}
	return t.desc.DepthOrArraySize
}

// wholeRange covers every mip and layer of t.
func (t *deviceTexture) wholeRange() SubresourceRange {
	return SubresourceRange{
		Aspect:     t.aspect(),
		MipCount:   t.desc.MipLevels,
		LayerCount: t.layers(),
	}
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

func aspectOf(desc rhi.TextureDesc) ImageAspect {
	if !rhi.IsDepthFormat(desc.Format) {
		return AspectColor
	}
	a := AspectDepth
	if rhi.HasStencil(desc.Format) {
		a |= AspectStencil
	}
	return a
}

// view is the part shared by every view kind. A buffer view has no image
// view handle; it binds the buffer range directly.
type view struct {
	rhi.RefCounted
	texture *deviceTexture
	buffer  *deviceBuffer
	handle  ImageView
	rng     SubresourceRange

	offset, size uint64 // buffer views
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

type depthStencilView struct {
	view
	desc rhi.DepthStencilViewDesc
}

func (v *depthStencilView) DepthStencilDesc() rhi.DepthStencilViewDesc { return v.desc }

type samplerState struct {
	rhi.RefCounted
	desc   rhi.SamplerDesc
	handle Sampler
}

func (s *samplerState) Desc() rhi.SamplerDesc { return s.desc }

type shader struct {
	rhi.RefCounted
	desc   rhi.ShaderDesc
	module ShaderModule
}

func (s *shader) Stage() rhi.ShaderStage { return s.desc.Stage }
func (s *shader) Desc() rhi.ShaderDesc   { return s.desc }

type graphicsPipeline struct {
	rhi.RefCounted
	desc   rhi.GraphicsPipelineDesc
	handle Pipeline
	layout *pipelineLayout
}

func (p *graphicsPipeline) Desc() rhi.GraphicsPipelineDesc { return p.desc }

type computePipeline struct {
	rhi.RefCounted
	desc   rhi.ComputePipelineDesc
	handle Pipeline
	layout *pipelineLayout
}

func (p *computePipeline) Desc() rhi.ComputePipelineDesc { return p.desc }

// timestampQuery holds 2*count timestamps: pair i occupies queries 2i and
// 2i+1.
type timestampQuery struct {
	rhi.RefCounted
	dev    *Device
	count  uint32
	handle QueryPool
}

func (q *timestampQuery) Count() uint32 { return q.count }

// Timestamps returns the elapsed time of every pair. The submission that
// wrote them must have completed.
func (q *timestampQuery) Timestamps() ([]time.Duration, error) {
	ticks, err := q.dev.drv.QueryResults(q.handle, 0, 2*q.count)
	if err != nil {
		return nil, fmt.Errorf("vulkan: read timestamps: %w", err)
	}
	period := float64(q.dev.props.TimestampPeriod)
	out := make([]time.Duration, q.count)
	for i := range out {
		begin, end := ticks[2*i], ticks[2*i+1]
		if end < begin {
			continue
		}
		out[i] = time.Duration(float64(end-begin) * period)
	}
	return out, nil
}

// Concrete type assertions. A resource from another backend fails them and
// is reported as rhi.ErrForeignResource.

func asBuffer(b rhi.Buffer) (*deviceBuffer, error) {
	if b == nil {
		return nil, nil
	}
	vb, ok := b.(*deviceBuffer)
	if !ok {
		return nil, fmt.Errorf("%w: buffer %s", rhi.ErrForeignResource, rhi.ResourceName(b))
	}
	return vb, nil
}

func asTexture(t rhi.Texture) (*deviceTexture, error) {
	if t == nil {
		return nil, nil
	}
	vt, ok := t.(*deviceTexture)
	if !ok {
		return nil, fmt.Errorf("%w: texture %s", rhi.ErrForeignResource, rhi.ResourceName(t))
	}
	return vt, nil
}

func asShader(s rhi.Shader) (*shader, error) {
	if s == nil {
		return nil, nil
	}
	vs, ok := s.(*shader)
	if !ok {
		return nil, fmt.Errorf("%w: shader %s", rhi.ErrForeignResource, rhi.ResourceName(s))
	}
	return vs, nil
}

// Compile-time interface checks.
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
	_ rhi.TimestampQuery        = (*timestampQuery)(nil)
)
