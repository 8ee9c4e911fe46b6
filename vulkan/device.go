package vulkan

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/cmdlist"
	"github.com/gogpu/rhi/internal/deferred"
	shadercompiler "github.com/gogpu/rhi/internal/shader"
)

// Device is the Vulkan rhi.Device.
type Device struct {
	drv   Driver
	props Properties
	opts  options

	closed atomic.Bool

	// serial is the submission being recorded, or the last one submitted
	// between batches. Released objects are destroyed once it completes.
	serial    atomic.Uint64
	deletions deferred.Queue

	layouts      *layoutCache
	framebuffers *FramebufferCache
	renderPasses *RenderPassCache
	descriptors  *DescriptorSetCache

	ctx   *Context
	queue *cmdlist.CommandQueue

	defaultBuffer  *deviceBuffer
	defaultTexture *deviceTexture
	defaultSRV     *shaderResourceView
	defaultUAV     *unorderedAccessView
	defaultSampler *samplerState

	uploadsMu sync.Mutex
	uploads   []upload

	compileShader func(source string) ([]uint32, error)
}

var _ rhi.Device = (*Device)(nil)

// upload is initial data or an initial layout transition applied at the
// start of the next batch.
type upload struct {
	buffer  *deviceBuffer
	texture *deviceTexture
	staging Buffer
	size    uint64
	final   ImageLayout
}

// New creates a device over drv. The device owns drv and destroys it on
// Close.
func New(drv Driver, opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		drv:           drv,
		props:         drv.Properties(),
		opts:          o,
		compileShader: shadercompiler.CompileWGSL,
	}

	layouts, err := newLayoutCache(drv)
	if err != nil {
		drv.Destroy()
		return nil, err
	}
	d.layouts = layouts
	d.framebuffers = NewFramebufferCache(drv)
	d.renderPasses = NewRenderPassCache(drv, d.framebuffers)

	defaults, err := d.createDefaults()
	if err != nil {
		d.release()
		return nil, err
	}
	d.descriptors = NewDescriptorSetCache(drv, o.poolMaxSets, o.poolSizes, defaults)

	ctx, err := newContext(d)
	if err != nil {
		d.release()
		return nil, err
	}
	d.ctx = ctx
	d.queue = cmdlist.NewCommandQueue(ctx)

	slogger().Info("vulkan: device created",
		"device", d.props.DeviceName,
		"nullDescriptors", defaults.Null,
		"bufferedFrames", o.bufferedFrames,
		"forceBinding", o.forceBinding)
	return d, nil
}

// createDefaults creates the resources bound to unset descriptor slots.
// With null descriptors only the sampler is needed.
func (d *Device) createDefaults() (DefaultDescriptors, error) {
	s, err := d.CreateSamplerState(rhi.SamplerDesc{
		Label:     "vulkan default sampler",
		MinFilter: rhi.FilterLinear,
		MagFilter: rhi.FilterLinear,
		MipFilter: rhi.FilterLinear,
		AddressU:  rhi.AddressClamp,
		AddressV:  rhi.AddressClamp,
		AddressW:  rhi.AddressClamp,
		MaxLOD:    1000,
	})
	if err != nil {
		return DefaultDescriptors{}, err
	}
	d.defaultSampler = s.(*samplerState)
	defaults := DefaultDescriptors{Sampler: d.defaultSampler.handle}

	if d.opts.nullDescriptors && d.props.NullDescriptor {
		defaults.Null = true
		return defaults, nil
	}

	const size = 256
	b, err := d.CreateBuffer(rhi.BufferDesc{
		Label: "vulkan default buffer",
		Size:  size,
		Flags: rhi.BufferConstant | rhi.BufferShaderResource | rhi.BufferUnorderedAccess,
	}, nil)
	if err != nil {
		return defaults, err
	}
	d.defaultBuffer = b.(*deviceBuffer)

	t, err := d.CreateTexture(rhi.TextureDesc{
		Label:         "vulkan default texture",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Width:         1,
		Height:        1,
		Flags:         rhi.TextureShaderResource | rhi.TextureUnorderedAccess,
		InitialAccess: rhi.AccessUnorderedAccess,
	}, nil)
	if err != nil {
		return defaults, err
	}
	d.defaultTexture = t.(*deviceTexture)

	srv, err := d.CreateShaderResourceView(rhi.ShaderResourceViewDesc{Label: "vulkan default srv", Texture: t})
	if err != nil {
		return defaults, err
	}
	d.defaultSRV = srv.(*shaderResourceView)
	uav, err := d.CreateUnorderedAccessView(rhi.UnorderedAccessViewDesc{Label: "vulkan default uav", Texture: t})
	if err != nil {
		return defaults, err
	}
	d.defaultUAV = uav.(*unorderedAccessView)

	defaults.Buffer = d.defaultBuffer.handle
	defaults.BufferRange = size
	defaults.SampledView = d.defaultSRV.handle
	defaults.StorageView = d.defaultUAV.handle
	return defaults, nil
}

// Name returns "vulkan (<device name>)".
func (d *Device) Name() string { return "vulkan (" + d.props.DeviceName + ")" }

// Context returns the immediate context.
func (d *Device) Context() rhi.Context { return d.ctx }

// VulkanContext returns the immediate context with its concrete type.
func (d *Device) VulkanContext() *Context { return d.ctx }

// CommandQueue returns the queue executing command lists on the immediate
// context.
func (d *Device) CommandQueue() *cmdlist.CommandQueue { return d.queue }

// Driver returns the driver the device records through.
func (d *Device) Driver() Driver { return d.drv }

// Properties returns the physical device properties.
func (d *Device) Properties() Properties { return d.props }

func (d *Device) FramebufferCache() *FramebufferCache     { return d.framebuffers }
func (d *Device) RenderPassCache() *RenderPassCache       { return d.renderPasses }
func (d *Device) DescriptorSetCache() *DescriptorSetCache { return d.descriptors }

// PendingDeletions returns the number of released objects waiting for the
// GPU.
func (d *Device) PendingDeletions() int { return d.deletions.Len() }

// deferDestroy runs destroy once the current submission has completed.
func (d *Device) deferDestroy(destroy func()) {
	d.deletions.Enqueue(d.serial.Load(), destroy)
}

func (d *Device) checkOpen() error {
	if d.closed.Load() {
		return rhi.ErrDeviceClosed
	}
	return nil
}

func (d *Device) queueUpload(u upload) {
	d.uploadsMu.Lock()
	d.uploads = append(d.uploads, u)
	d.uploadsMu.Unlock()
}

func (d *Device) takeUploads() []upload {
	d.uploadsMu.Lock()
	defer d.uploadsMu.Unlock()
	u := d.uploads
	d.uploads = nil
	return u
}

// newStaging creates a host-visible transfer source holding data.
func (d *Device) newStaging(data []byte) (Buffer, error) {
	b, err := d.drv.CreateBuffer(BufferInfo{Size: uint64(len(data)), Usage: BufferUsageTransferSrc, HostVisible: true})
	if err != nil {
		return 0, fmt.Errorf("vulkan: create staging buffer: %w", err)
	}
	if err := d.drv.WriteBuffer(b, 0, data); err != nil {
		d.drv.DestroyBuffer(b)
		return 0, fmt.Errorf("vulkan: write staging buffer: %w", err)
	}
	return b, nil
}

// CreateBuffer creates a buffer. Buffers without unordered access live in
// host-visible memory and take initial data directly; the others are
// device-local and initial data is copied at the start of the next batch.
func (d *Device) CreateBuffer(desc rhi.BufferDesc, initial []byte) (rhi.Buffer, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if uint64(len(initial)) > desc.Size {
		return nil, fmt.Errorf("%w: buffer %q initial data %d bytes exceeds size %d", rhi.ErrInvalidDesc, desc.Label, len(initial), desc.Size)
	}

	hostVisible := desc.Flags&rhi.BufferUnorderedAccess == 0
	h, err := d.drv.CreateBuffer(BufferInfo{Size: desc.Size, Usage: bufferUsage(desc.Flags), HostVisible: hostVisible})
	if err != nil {
		return nil, fmt.Errorf("vulkan: create buffer %q: %w", desc.Label, err)
	}
	b := &deviceBuffer{desc: desc, handle: h}
	b.Init(desc.Label, func() {
		d.deferDestroy(func() { d.drv.DestroyBuffer(h) })
	})

	if len(initial) > 0 {
		if hostVisible {
			err = d.drv.WriteBuffer(h, 0, initial)
		} else {
			err = d.uploadBuffer(b, initial)
		}
		if err != nil {
			b.Release()
			return nil, fmt.Errorf("vulkan: upload buffer %q: %w", desc.Label, err)
		}
	}
	return b, nil
}

func (d *Device) uploadBuffer(b *deviceBuffer, data []byte) error {
	staging, err := d.newStaging(data)
	if err != nil {
		return err
	}
	b.AddRef()
	d.queueUpload(upload{buffer: b, staging: staging, size: uint64(len(data))})
	return nil
}

func bufferUsage(f rhi.BufferFlags) BufferUsage {
	u := BufferUsageTransferSrc | BufferUsageTransferDst
	if f&rhi.BufferVertex != 0 {
		u |= BufferUsageVertexBuffer
	}
	if f&rhi.BufferIndex != 0 {
		u |= BufferUsageIndexBuffer
	}
	if f&rhi.BufferConstant != 0 {
		u |= BufferUsageUniformBuffer
	}
	if f&(rhi.BufferShaderResource|rhi.BufferUnorderedAccess) != 0 {
		u |= BufferUsageStorageBuffer
	}
	return u
}

// CreateTexture creates a texture. It is moved to desc.InitialAccess at the
// start of the next batch, after initial is copied into mip 0.
func (d *Device) CreateTexture(desc rhi.TextureDesc, initial []byte) (rhi.Texture, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	var staging Buffer
	if len(initial) > 0 {
		bpp := rhi.BytesPerPixel(desc.Format)
		if bpp == 0 || rhi.IsDepthFormat(desc.Format) {
			return nil, fmt.Errorf("%w: initial data for format %v", rhi.ErrUnsupported, desc.Format)
		}
		if want := uint64(desc.Width) * uint64(desc.Height) * uint64(bpp); uint64(len(initial)) < want {
			return nil, fmt.Errorf("%w: texture %q initial data %d bytes, want %d", rhi.ErrInvalidDesc, desc.Label, len(initial), want)
		}
	}

	info := ImageInfo{
		Format:      desc.Format,
		Width:       desc.Width,
		Height:      desc.Height,
		Depth:       1,
		MipLevels:   desc.MipLevels,
		ArrayLayers: desc.DepthOrArraySize,
		Samples:     desc.SampleCount,
		Usage:       imageUsage(desc.Flags),
		Cube:        desc.Dimension == rhi.TextureCube,
	}
	if desc.Dimension == rhi.Texture3D {
		info.Depth = desc.DepthOrArraySize
		info.ArrayLayers = 1
	}
	h, err := d.drv.CreateImage(info)
	if err != nil {
		return nil, fmt.Errorf("vulkan: create texture %q: %w", desc.Label, err)
	}
	t := &deviceTexture{desc: desc, handle: h, layout: LayoutUndefined}
	t.Init(desc.Label, func() {
		d.deferDestroy(func() { d.drv.DestroyImage(h) })
	})

	if len(initial) > 0 {
		size := uint64(desc.Width) * uint64(desc.Height) * uint64(rhi.BytesPerPixel(desc.Format))
		if staging, err = d.newStaging(initial[:size]); err != nil {
			t.Release()
			return nil, err
		}
	}
	t.AddRef()
	d.queueUpload(upload{
		texture: t,
		staging: staging,
		final:   initialLayout(desc),
	})
	return t, nil
}

func initialLayout(desc rhi.TextureDesc) ImageLayout {
	if desc.InitialAccess != rhi.AccessCommon {
		return accessInfoFor(desc.InitialAccess).layout
	}
	switch {
	case desc.Flags&rhi.TextureRenderTarget != 0:
		return LayoutColorAttachmentOptimal
	case desc.Flags&rhi.TextureDepthStencil != 0:
		return LayoutDepthStencilAttachmentOptimal
	case desc.Flags&rhi.TextureUnorderedAccess != 0:
		return LayoutGeneral
	default:
		return LayoutShaderReadOnlyOptimal
	}
}

func imageUsage(f rhi.TextureFlags) ImageUsage {
	u := ImageUsageTransferSrc | ImageUsageTransferDst
	if f&rhi.TextureRenderTarget != 0 {
		u |= ImageUsageColorAttachment
	}
	if f&rhi.TextureDepthStencil != 0 {
		u |= ImageUsageDepthStencilAttachment
	}
	if f&rhi.TextureShaderResource != 0 {
		u |= ImageUsageSampled
	}
	if f&rhi.TextureUnorderedAccess != 0 {
		u |= ImageUsageStorage
	}
	return u
}

// newView wires the reference counting shared by all view kinds. The view
// keeps its texture or buffer alive; on release the image view is dropped
// from the framebuffer cache and destroyed once the GPU is done with it.
func (d *Device) newView(v *view, label string) {
	if v.texture != nil {
		v.texture.AddRef()
	}
	if v.buffer != nil {
		v.buffer.AddRef()
	}
	h, tex, buf := v.handle, v.texture, v.buffer
	v.Init(label, func() {
		d.deferDestroy(func() {
			if h != 0 {
				d.framebuffers.OnReleaseImageView(h)
				d.drv.DestroyImageView(h)
			}
		})
		if tex != nil {
			tex.Release()
		}
		if buf != nil {
			buf.Release()
		}
	})
}

func (d *Device) createImageView(t *deviceTexture, format gputypes.TextureFormat, rng SubresourceRange) (ImageView, error) {
	if format == gputypes.TextureFormatUndefined {
		format = t.desc.Format
	}
	h, err := d.drv.CreateImageView(ImageViewInfo{
		Image:  t.handle,
		Format: format,
		Range:  rng,
		Array:  t.desc.Dimension == rhi.Texture2DArray,
		Cube:   t.desc.Dimension == rhi.TextureCube && rng.LayerCount == t.desc.DepthOrArraySize,
	})
	if err != nil {
		return 0, fmt.Errorf("vulkan: create image view of %q: %w", t.desc.Label, err)
	}
	return h, nil
}

// bufferRange returns the byte range of an element range; numElements 0
// means all remaining elements.
func bufferRange(b *deviceBuffer, first, num uint32) (offset, size uint64, err error) {
	stride := uint64(b.desc.Stride)
	if stride == 0 {
		stride = 4
	}
	offset = uint64(first) * stride
	if offset >= b.desc.Size {
		return 0, 0, fmt.Errorf("%w: view of buffer %q starts past its end", rhi.ErrInvalidDesc, b.desc.Label)
	}
	size = b.desc.Size - offset
	if num > 0 {
		size = min(size, uint64(num)*stride)
	}
	return offset, size, nil
}

func (d *Device) CreateShaderResourceView(desc rhi.ShaderResourceViewDesc) (rhi.ShaderResourceView, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	v := &shaderResourceView{desc: desc}
	switch {
	case desc.Texture != nil && desc.Buffer == nil:
		t, err := asTexture(desc.Texture)
		if err != nil {
			return nil, err
		}
		rng := t.wholeRange()
		rng.Aspect &^= AspectStencil
		if desc.FirstMip >= rng.MipCount || desc.FirstLayer >= rng.LayerCount {
			return nil, fmt.Errorf("%w: srv %q outside texture %q", rhi.ErrInvalidDesc, desc.Label, t.desc.Label)
		}
		rng.BaseMip, rng.BaseLayer = desc.FirstMip, desc.FirstLayer
		rng.MipCount -= desc.FirstMip
		rng.LayerCount -= desc.FirstLayer
		if desc.NumMips > 0 {
			rng.MipCount = min(rng.MipCount, desc.NumMips)
		}
		if desc.NumLayers > 0 {
			rng.LayerCount = min(rng.LayerCount, desc.NumLayers)
		}
		h, err := d.createImageView(t, desc.Format, rng)
		if err != nil {
			return nil, err
		}
		v.texture, v.handle, v.rng = t, h, rng
	case desc.Buffer != nil && desc.Texture == nil:
		b, err := asBuffer(desc.Buffer)
		if err != nil {
			return nil, err
		}
		if v.offset, v.size, err = bufferRange(b, desc.FirstElement, desc.NumElements); err != nil {
			return nil, err
		}
		v.buffer = b
	default:
		return nil, fmt.Errorf("%w: srv %q needs exactly one of texture and buffer", rhi.ErrInvalidDesc, desc.Label)
	}
	d.newView(&v.view, desc.Label)
	return v, nil
}

func (d *Device) CreateUnorderedAccessView(desc rhi.UnorderedAccessViewDesc) (rhi.UnorderedAccessView, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	v := &unorderedAccessView{desc: desc}
	switch {
	case desc.Texture != nil && desc.Buffer == nil:
		t, err := asTexture(desc.Texture)
		if err != nil {
			return nil, err
		}
		if t.desc.Flags&rhi.TextureUnorderedAccess == 0 {
			return nil, fmt.Errorf("%w: texture %q lacks unordered access", rhi.ErrInvalidDesc, t.desc.Label)
		}
		rng := t.wholeRange()
		if desc.MipLevel >= rng.MipCount {
			return nil, fmt.Errorf("%w: uav %q mip %d out of range", rhi.ErrInvalidDesc, desc.Label, desc.MipLevel)
		}
		rng.BaseMip, rng.MipCount = desc.MipLevel, 1
		h, err := d.createImageView(t, desc.Format, rng)
		if err != nil {
			return nil, err
		}
		v.texture, v.handle, v.rng = t, h, rng
	case desc.Buffer != nil && desc.Texture == nil:
		b, err := asBuffer(desc.Buffer)
		if err != nil {
			return nil, err
		}
		if b.desc.Flags&rhi.BufferUnorderedAccess == 0 {
			return nil, fmt.Errorf("%w: buffer %q lacks unordered access", rhi.ErrInvalidDesc, b.desc.Label)
		}
		if v.offset, v.size, err = bufferRange(b, desc.FirstElement, desc.NumElements); err != nil {
			return nil, err
		}
		v.buffer = b
	default:
		return nil, fmt.Errorf("%w: uav %q needs exactly one of texture and buffer", rhi.ErrInvalidDesc, desc.Label)
	}
	d.newView(&v.view, desc.Label)
	return v, nil
}

func (d *Device) CreateRenderTargetView(desc rhi.RenderTargetViewDesc) (rhi.RenderTargetView, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	t, err := asTexture(desc.Texture)
	if err != nil {
		return nil, err
	}
	if t == nil || t.desc.Flags&rhi.TextureRenderTarget == 0 {
		return nil, fmt.Errorf("%w: rtv %q needs a render target texture", rhi.ErrInvalidDesc, desc.Label)
	}
	rng, err := attachmentRange(t, desc.MipLevel, desc.ArrayLayer)
	if err != nil {
		return nil, err
	}
	h, err := d.createImageView(t, desc.Format, rng)
	if err != nil {
		return nil, err
	}
	v := &renderTargetView{desc: desc}
	v.texture, v.handle, v.rng = t, h, rng
	d.newView(&v.view, desc.Label)
	return v, nil
}

func (d *Device) CreateDepthStencilView(desc rhi.DepthStencilViewDesc) (rhi.DepthStencilView, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	t, err := asTexture(desc.Texture)
	if err != nil {
		return nil, err
	}
	if t == nil || t.desc.Flags&rhi.TextureDepthStencil == 0 {
		return nil, fmt.Errorf("%w: dsv %q needs a depth-stencil texture", rhi.ErrInvalidDesc, desc.Label)
	}
	rng, err := attachmentRange(t, desc.MipLevel, desc.ArrayLayer)
	if err != nil {
		return nil, err
	}
	h, err := d.createImageView(t, gputypes.TextureFormatUndefined, rng)
	if err != nil {
		return nil, err
	}
	v := &depthStencilView{desc: desc}
	v.texture, v.handle, v.rng = t, h, rng
	d.newView(&v.view, desc.Label)
	return v, nil
}

func attachmentRange(t *deviceTexture, mip, layer uint32) (SubresourceRange, error) {
	rng := t.wholeRange()
	if mip >= rng.MipCount || layer >= rng.LayerCount {
		return rng, fmt.Errorf("%w: attachment mip %d layer %d outside texture %q", rhi.ErrInvalidDesc, mip, layer, t.desc.Label)
	}
	rng.BaseMip, rng.MipCount = mip, 1
	rng.BaseLayer, rng.LayerCount = layer, 1
	return rng, nil
}

func (d *Device) CreateSamplerState(desc rhi.SamplerDesc) (rhi.SamplerState, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	h, err := d.drv.CreateSampler(SamplerInfo{
		MagLinear:     desc.MagFilter == rhi.FilterLinear,
		MinLinear:     desc.MinFilter == rhi.FilterLinear,
		MipLinear:     desc.MipFilter == rhi.FilterLinear,
		AddressU:      addressModeOf(desc.AddressU),
		AddressV:      addressModeOf(desc.AddressV),
		AddressW:      addressModeOf(desc.AddressW),
		MipLODBias:    desc.MipLODBias,
		MaxAnisotropy: float32(desc.MaxAnisotropy),
		Compare:       compareOpOf(desc.Compare),
		CompareEnable: desc.Compare != rhi.CompareNever,
		MinLOD:        desc.MinLOD,
		MaxLOD:        desc.MaxLOD,
	})
	if err != nil {
		return nil, fmt.Errorf("vulkan: create sampler %q: %w", desc.Label, err)
	}
	s := &samplerState{desc: desc, handle: h}
	s.Init(desc.Label, func() {
		d.deferDestroy(func() { d.drv.DestroySampler(h) })
	})
	return s, nil
}

// CreateShader compiles the WGSL source to SPIR-V.
func (d *Device) CreateShader(desc rhi.ShaderDesc) (rhi.Shader, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if desc.Stage.IsRayTracing() {
		return nil, fmt.Errorf("%w: %s shaders", rhi.ErrUnsupported, desc.Stage)
	}
	if desc.Source == "" {
		return nil, fmt.Errorf("%w: shader %q has no source", rhi.ErrInvalidDesc, desc.Label)
	}
	if err := validateBindings(&desc); err != nil {
		return nil, err
	}
	if desc.EntryPoint == "" {
		desc.EntryPoint = "main"
	}
	desc.Bindings = append([]rhi.ShaderBinding(nil), desc.Bindings...)

	spirv, err := d.compileShader(desc.Source)
	if err != nil {
		return nil, fmt.Errorf("vulkan: shader %q: %w", desc.Label, err)
	}
	m, err := d.drv.CreateShaderModule(spirv)
	if err != nil {
		return nil, fmt.Errorf("vulkan: create shader module %q: %w", desc.Label, err)
	}
	s := &shader{desc: desc, module: m}
	s.Init(desc.Label, func() {
		d.deferDestroy(func() { d.drv.DestroyShaderModule(m) })
	})
	return s, nil
}

func (d *Device) CreateGraphicsPipelineState(desc rhi.GraphicsPipelineDesc) (rhi.GraphicsPipelineState, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	vs, err := asShader(desc.VertexShader)
	if err != nil {
		return nil, err
	}
	ps, err := asShader(desc.PixelShader)
	if err != nil {
		return nil, err
	}
	layout, err := d.layouts.graphics(vs, ps)
	if err != nil {
		return nil, err
	}
	pass, err := d.renderPasses.GetRenderPass(renderPassKeyFor(desc.RenderTargetFormats, desc.DepthStencilFormat, false, desc.SampleCount))
	if err != nil {
		return nil, err
	}

	stages := []ShaderStageInfo{{Stage: ShaderStageVertex, Module: vs.module, EntryPoint: vs.desc.EntryPoint}}
	if ps != nil {
		stages = append(stages, ShaderStageInfo{Stage: ShaderStageFragment, Module: ps.module, EntryPoint: ps.desc.EntryPoint})
	}
	blend := make([]ColorBlendInfo, len(desc.RenderTargetFormats))
	for i := range blend {
		switch {
		case i < len(desc.Blend):
			blend[i] = ColorBlendInfo{Enable: desc.Blend[i].Enable, Premultiplied: desc.Blend[i].Premultiplied}
		case len(desc.Blend) > 0:
			blend[i] = blend[0]
		}
	}
	bindings, attrs := vertexInput(desc.InputLayout)

	h, err := d.drv.CreateGraphicsPipeline(GraphicsPipelineInfo{
		Layout:                layout.handle,
		RenderPass:            pass,
		Stages:                stages,
		Bindings:              bindings,
		Attributes:            attrs,
		Topology:              topologyOf(desc.Topology),
		CullMode:              cullModeOf(desc.Rasterizer.CullMode),
		FrontCounterClockwise: desc.Rasterizer.FrontCounterClockwise,
		Wireframe:             desc.Rasterizer.Wireframe,
		DepthClamp:            !desc.Rasterizer.DepthClip,
		DepthTest:             desc.DepthStencil.DepthEnable,
		DepthWrite:            desc.DepthStencil.DepthWrite,
		DepthCompare:          compareOpOf(desc.DepthStencil.DepthFunc),
		Blend:                 blend,
		Samples:               desc.SampleCount,
	})
	if err != nil {
		return nil, fmt.Errorf("vulkan: create graphics pipeline %q: %w", desc.Label, err)
	}

	// The pipeline keeps its shaders alive so descriptor bindings stay
	// meaningful for as long as it is bound.
	rhi.AddRef(desc.VertexShader)
	rhi.AddRef(desc.PixelShader)
	p := &graphicsPipeline{desc: desc, handle: h, layout: layout}
	p.Init(desc.Label, func() {
		d.deferDestroy(func() { d.drv.DestroyPipeline(h) })
		rhi.Release(desc.VertexShader)
		rhi.Release(desc.PixelShader)
	})
	return p, nil
}

func (d *Device) CreateComputePipelineState(desc rhi.ComputePipelineDesc) (rhi.ComputePipelineState, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	cs, err := asShader(desc.Shader)
	if err != nil {
		return nil, err
	}
	layout, err := d.layouts.compute(cs)
	if err != nil {
		return nil, err
	}
	h, err := d.drv.CreateComputePipeline(ComputePipelineInfo{
		Layout: layout.handle,
		Stage:  ShaderStageInfo{Stage: ShaderStageCompute, Module: cs.module, EntryPoint: cs.desc.EntryPoint},
	})
	if err != nil {
		return nil, fmt.Errorf("vulkan: create compute pipeline %q: %w", desc.Label, err)
	}
	cs.AddRef()
	p := &computePipeline{desc: desc, handle: h, layout: layout}
	p.Init(desc.Label, func() {
		d.deferDestroy(func() { d.drv.DestroyPipeline(h) })
		cs.Release()
	})
	return p, nil
}

func (d *Device) CreateTimestampQuery(count uint32) (rhi.TimestampQuery, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: timestamp query with zero pairs", rhi.ErrInvalidDesc)
	}
	h, err := d.drv.CreateQueryPool(2 * count)
	if err != nil {
		return nil, fmt.Errorf("vulkan: create query pool: %w", err)
	}
	q := &timestampQuery{dev: d, count: count, handle: h}
	q.Init(fmt.Sprintf("timestamps[%d]", count), func() {
		d.deferDestroy(func() { d.drv.DestroyQueryPool(h) })
	})
	return q, nil
}

func (d *Device) ReadTimestamps(q rhi.TimestampQuery) ([]time.Duration, error) {
	tq, ok := q.(*timestampQuery)
	if !ok {
		return nil, fmt.Errorf("%w: timestamp query %s", rhi.ErrForeignResource, rhi.ResourceName(q))
	}
	return tq.Timestamps()
}

// WaitIdle blocks until the GPU is idle and retires every submission.
func (d *Device) WaitIdle() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.ctx.waitIdle()
}

// Close ends any open batch, waits for the GPU and destroys every object
// the device owns, then the driver.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	var errs []error
	if d.ctx.recording {
		errs = append(errs, d.ctx.End())
	}
	errs = append(errs, d.ctx.waitIdle())
	d.ctx.state.ResetState()
	d.ctx.release()
	d.release()
	slogger().Info("vulkan: device closed", "device", d.props.DeviceName)
	return errors.Join(errs...)
}

// release destroys the device-owned objects and the driver.
func (d *Device) release() {
	for _, u := range d.takeUploads() {
		if u.staging != 0 {
			d.drv.DestroyBuffer(u.staging)
		}
		if r := u.resource(); r != nil {
			r.Release()
		}
	}
	if d.defaultSRV != nil {
		d.defaultSRV.Release()
	}
	if d.defaultUAV != nil {
		d.defaultUAV.Release()
	}
	if d.defaultTexture != nil {
		d.defaultTexture.Release()
	}
	if d.defaultBuffer != nil {
		d.defaultBuffer.Release()
	}
	if d.defaultSampler != nil {
		d.defaultSampler.Release()
	}
	d.deletions.FlushAll()
	if d.descriptors != nil {
		d.descriptors.Release()
	}
	d.framebuffers.Release()
	d.renderPasses.Release()
	d.layouts.release()
	d.drv.Destroy()
}

func (u *upload) resource() rhi.Resource {
	if u.texture != nil {
		return u.texture
	}
	if u.buffer != nil {
		return u.buffer
	}
	return nil
}
