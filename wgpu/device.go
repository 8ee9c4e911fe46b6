package wgpu

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/cmdlist"
	"github.com/gogpu/rhi/internal/deferred"
	shadercompiler "github.com/gogpu/rhi/internal/shader"
	"github.com/gogpu/wgpu/hal"

	// Registers the Vulkan hal backend used by default.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func init() {
	rhi.Register("wgpu", func() (rhi.Device, error) {
		dev, err := Open()
		if err != nil {
			return nil, err
		}
		return dev, nil
	})
}

// Device is the rhi.Device over a gogpu/wgpu hal device.
type Device struct {
	opts     options
	instance hal.Instance // nil for devices passed with WithHalDevice
	device   hal.Device
	queue    hal.Queue
	name     string

	closed atomic.Bool

	// serial is the batch being recorded. Objects released during it are
	// destroyed once it completes.
	serial    atomic.Uint64
	deletions deferred.Queue

	emptyLayout hal.BindGroupLayout
	mips        *mipGenerator

	ctx      *Context
	cmdQueue *cmdlist.CommandQueue

	defaultBuffer     *deviceBuffer
	defaultTexture    *deviceTexture
	defaultStorageTex *deviceTexture
	defaultSRV        *shaderResourceView
	defaultUAV        *unorderedAccessView
	defaultSampler    *samplerState
}

var _ rhi.Device = (*Device)(nil)

// Open creates a device. Without WithHalDevice it creates an instance of
// the configured backend and opens its first discrete or integrated
// adapter, falling back to the first adapter.
func Open(opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.device != nil {
		if o.queue == nil {
			return nil, fmt.Errorf("%w: hal device without queue", rhi.ErrInvalidDesc)
		}
		name := o.name
		if name == "" {
			name = "external"
		}
		return newDevice(nil, o.device, o.queue, name, o)
	}

	backend, ok := hal.GetBackend(o.backend)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, o.backend)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	selected := pickAdapter(instance.EnumerateAdapters(nil))
	if selected == nil {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open adapter %q: %w", selected.Info.Name, err)
	}
	return newDevice(instance, openDev.Device, openDev.Queue, selected.Info.Name, o)
}

// pickAdapter prefers hardware adapters. It returns nil for an empty list.
func pickAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	if len(adapters) == 0 {
		return nil
	}
	for i := range adapters {
		switch adapters[i].Info.DeviceType {
		case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU:
			return &adapters[i]
		}
	}
	return &adapters[0]
}

func newDevice(instance hal.Instance, device hal.Device, queue hal.Queue, name string, o options) (*Device, error) {
	d := &Device{
		opts:     o,
		instance: instance,
		device:   device,
		queue:    queue,
		name:     name,
	}
	var err error
	d.emptyLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: "rhi_empty_layout"})
	if err != nil {
		d.release()
		return nil, fmt.Errorf("wgpu: create empty bind group layout: %w", err)
	}
	if err := d.createDefaults(); err != nil {
		d.release()
		return nil, err
	}
	d.mips = newMipGenerator(d)
	d.ctx = newContext(d)
	d.cmdQueue = cmdlist.NewCommandQueue(d.ctx)

	slogger().Info("wgpu: device created",
		"adapter", name,
		"external", instance == nil,
		"bufferedFrames", o.bufferedFrames)
	return d, nil
}

// createDefaults creates the resources bound to declared but unset slots.
func (d *Device) createDefaults() error {
	s, err := d.CreateSamplerState(rhi.SamplerDesc{
		Label:     "wgpu default sampler",
		MinFilter: rhi.FilterLinear,
		MagFilter: rhi.FilterLinear,
		MipFilter: rhi.FilterLinear,
		AddressU:  rhi.AddressClamp,
		AddressV:  rhi.AddressClamp,
		AddressW:  rhi.AddressClamp,
	})
	if err != nil {
		return err
	}
	d.defaultSampler = s.(*samplerState)

	b, err := d.CreateBuffer(rhi.BufferDesc{
		Label: "wgpu default buffer",
		Size:  256,
		Flags: rhi.BufferConstant | rhi.BufferShaderResource | rhi.BufferUnorderedAccess,
	}, nil)
	if err != nil {
		return err
	}
	d.defaultBuffer = b.(*deviceBuffer)

	t, err := d.CreateTexture(rhi.TextureDesc{
		Label:  "wgpu default texture",
		Format: gputypes.TextureFormatRGBA8Unorm,
		Width:  1,
		Height: 1,
		Flags:  rhi.TextureShaderResource,
	}, []byte{0, 0, 0, 0})
	if err != nil {
		return err
	}
	d.defaultTexture = t.(*deviceTexture)
	srv, err := d.CreateShaderResourceView(rhi.ShaderResourceViewDesc{Label: "wgpu default srv", Texture: t})
	if err != nil {
		return err
	}
	d.defaultSRV = srv.(*shaderResourceView)

	st, err := d.CreateTexture(rhi.TextureDesc{
		Label:  "wgpu default storage texture",
		Format: gputypes.TextureFormatRGBA8Unorm,
		Width:  1,
		Height: 1,
		Flags:  rhi.TextureUnorderedAccess,
	}, nil)
	if err != nil {
		return err
	}
	d.defaultStorageTex = st.(*deviceTexture)
	uav, err := d.CreateUnorderedAccessView(rhi.UnorderedAccessViewDesc{Label: "wgpu default uav", Texture: st})
	if err != nil {
		return err
	}
	d.defaultUAV = uav.(*unorderedAccessView)
	return nil
}

// Name returns "wgpu (<adapter name>)".
func (d *Device) Name() string { return "wgpu (" + d.name + ")" }

// Context returns the immediate context.
func (d *Device) Context() rhi.Context { return d.ctx }

// WGPUContext returns the immediate context with its concrete type.
func (d *Device) WGPUContext() *Context { return d.ctx }

// CommandQueue returns the queue executing command lists on the immediate
// context.
func (d *Device) CommandQueue() *cmdlist.CommandQueue { return d.cmdQueue }

// HalDevice returns the underlying hal device and queue.
func (d *Device) HalDevice() (hal.Device, hal.Queue) { return d.device, d.queue }

// PendingDeletions returns the number of released objects waiting for the
// GPU.
func (d *Device) PendingDeletions() int { return d.deletions.Len() }

func (d *Device) deferDestroy(destroy func()) {
	d.deletions.Enqueue(d.serial.Load(), destroy)
}

func (d *Device) checkOpen() error {
	if d.closed.Load() {
		return rhi.ErrDeviceClosed
	}
	return nil
}

// writeBuffer pads data to the 4-byte multiple queue writes require.
func (d *Device) writeBuffer(raw hal.Buffer, offset uint64, data []byte) error {
	if len(data)%4 != 0 {
		padded := make([]byte, alignUp(uint64(len(data)), 4))
		copy(padded, data)
		data = padded
	}
	if err := d.queue.WriteBuffer(raw, offset, data); err != nil {
		return fmt.Errorf("wgpu: write buffer: %w", err)
	}
	return nil
}

// CreateBuffer creates a buffer. Initial data is written through the queue
// and lands before the next submission.
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
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alignUp(desc.Size, 4),
		Usage: bufferUsage(desc.Flags),
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	b := &deviceBuffer{desc: desc, raw: raw}
	b.Init(desc.Label, func() {
		d.deferDestroy(func() { d.device.DestroyBuffer(raw) })
	})
	if len(initial) > 0 {
		if err := d.writeBuffer(raw, 0, initial); err != nil {
			b.Release()
			return nil, err
		}
	}
	return b, nil
}

// CreateTexture creates a texture. Initial data holds tightly packed texels
// of mip 0, layer 0.
func (d *Device) CreateTexture(desc rhi.TextureDesc, initial []byte) (rhi.Texture, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	bpp := rhi.BytesPerPixel(desc.Format)
	if len(initial) > 0 {
		if bpp == 0 || rhi.IsDepthFormat(desc.Format) {
			return nil, fmt.Errorf("%w: initial data for format %v", rhi.ErrUnsupported, desc.Format)
		}
		if want := uint64(desc.Width) * uint64(desc.Height) * uint64(bpp); uint64(len(initial)) < want {
			return nil, fmt.Errorf("%w: texture %q initial data %d bytes, want %d", rhi.ErrInvalidDesc, desc.Label, len(initial), want)
		}
	}

	raw, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.DepthOrArraySize,
		},
		MipLevelCount: desc.MipLevels,
		SampleCount:   desc.SampleCount,
		Dimension:     textureDimension(desc.Dimension),
		Format:        desc.Format,
		Usage:         textureUsage(desc.Flags),
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	t := &deviceTexture{desc: desc, raw: raw}
	t.Init(desc.Label, func() {
		d.deferDestroy(func() { d.device.DestroyTexture(raw) })
	})

	if len(initial) > 0 {
		err := d.queue.WriteTexture(
			&hal.ImageCopyTexture{Texture: raw, MipLevel: 0, Aspect: gputypes.TextureAspectAll},
			initial[:desc.Width*desc.Height*bpp],
			&hal.ImageDataLayout{BytesPerRow: desc.Width * bpp, RowsPerImage: desc.Height},
			&hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		)
		if err != nil {
			t.Release()
			return nil, fmt.Errorf("wgpu: write texture %q: %w", desc.Label, err)
		}
		// Queue writes leave the texture shader-readable.
		t.usage = gputypes.TextureUsageTextureBinding
	}
	return t, nil
}

// newView wires the reference counting shared by all view kinds. The view
// keeps its texture or buffer alive.
func (d *Device) newView(v *view, label string) {
	if v.texture != nil {
		v.texture.AddRef()
	}
	if v.buffer != nil {
		v.buffer.AddRef()
	}
	raw, tex, buf := v.raw, v.texture, v.buffer
	v.Init(label, func() {
		if raw != nil {
			d.deferDestroy(func() { d.device.DestroyTextureView(raw) })
		}
		if tex != nil {
			tex.Release()
		}
		if buf != nil {
			buf.Release()
		}
	})
}

type viewRange struct {
	format     gputypes.TextureFormat
	baseMip    uint32
	mipCount   uint32
	baseLayer  uint32
	layerCount uint32
}

func (d *Device) createTextureView(label string, t *deviceTexture, r viewRange) (hal.TextureView, error) {
	if r.format == gputypes.TextureFormatUndefined {
		r.format = t.desc.Format
	}
	raw, err := d.device.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:           label,
		Format:          r.format,
		Dimension:       viewDimension(t.desc.Dimension, r.layerCount),
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    r.baseMip,
		MipLevelCount:   r.mipCount,
		BaseArrayLayer:  r.baseLayer,
		ArrayLayerCount: r.layerCount,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create view of %q: %w", t.desc.Label, err)
	}
	return raw, nil
}

// bufferRange returns the byte range of an element range; num 0 means all
// remaining elements.
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
		mips, layers := t.desc.MipLevels, t.layers()
		if desc.FirstMip >= mips || desc.FirstLayer >= layers {
			return nil, fmt.Errorf("%w: srv %q outside texture %q", rhi.ErrInvalidDesc, desc.Label, t.desc.Label)
		}
		r := viewRange{
			format:     desc.Format,
			baseMip:    desc.FirstMip,
			mipCount:   mips - desc.FirstMip,
			baseLayer:  desc.FirstLayer,
			layerCount: layers - desc.FirstLayer,
		}
		if desc.NumMips > 0 {
			r.mipCount = min(r.mipCount, desc.NumMips)
		}
		if desc.NumLayers > 0 {
			r.layerCount = min(r.layerCount, desc.NumLayers)
		}
		raw, err := d.createTextureView(desc.Label, t, r)
		if err != nil {
			return nil, err
		}
		v.texture, v.raw, v.mip = t, raw, desc.FirstMip
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
		if desc.MipLevel >= t.desc.MipLevels {
			return nil, fmt.Errorf("%w: uav %q mip %d out of range", rhi.ErrInvalidDesc, desc.Label, desc.MipLevel)
		}
		raw, err := d.createTextureView(desc.Label, t, viewRange{
			format:     desc.Format,
			baseMip:    desc.MipLevel,
			mipCount:   1,
			layerCount: t.layers(),
		})
		if err != nil {
			return nil, err
		}
		v.texture, v.raw, v.mip = t, raw, desc.MipLevel
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

// attachmentView creates a single mip, single layer view for a render pass
// attachment.
func (d *Device) attachmentView(label string, t *deviceTexture, format gputypes.TextureFormat, mip, layer uint32) (hal.TextureView, error) {
	if mip >= t.desc.MipLevels || layer >= t.layers() {
		return nil, fmt.Errorf("%w: attachment mip %d layer %d outside texture %q", rhi.ErrInvalidDesc, mip, layer, t.desc.Label)
	}
	if format == gputypes.TextureFormatUndefined {
		format = t.desc.Format
	}
	raw, err := d.device.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:           label,
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    mip,
		MipLevelCount:   1,
		BaseArrayLayer:  layer,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create attachment view of %q: %w", t.desc.Label, err)
	}
	return raw, nil
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
	raw, err := d.attachmentView(desc.Label, t, desc.Format, desc.MipLevel, desc.ArrayLayer)
	if err != nil {
		return nil, err
	}
	v := &renderTargetView{desc: desc}
	v.texture, v.raw, v.mip = t, raw, desc.MipLevel
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
	raw, err := d.attachmentView(desc.Label, t, gputypes.TextureFormatUndefined, desc.MipLevel, desc.ArrayLayer)
	if err != nil {
		return nil, err
	}
	v := &depthStencilView{desc: desc}
	v.texture, v.raw, v.mip = t, raw, desc.MipLevel
	d.newView(&v.view, desc.Label)
	return v, nil
}

// CreateSamplerState creates a sampler. Comparison, LOD clamps and
// anisotropy are not expressed by the hal sampler descriptor used here and
// are ignored.
func (d *Device) CreateSamplerState(desc rhi.SamplerDesc) (rhi.SamplerState, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if desc.Compare != rhi.CompareNever || desc.MaxAnisotropy > 1 {
		slogger().Debug("wgpu: sampler comparison and anisotropy ignored",
			"sampler", desc.Label, "compare", desc.Compare, "anisotropy", desc.MaxAnisotropy)
	}
	raw, err := d.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: addressMode(desc.AddressU),
		AddressModeV: addressMode(desc.AddressV),
		AddressModeW: addressMode(desc.AddressW),
		MagFilter:    filterMode(desc.MagFilter),
		MinFilter:    filterMode(desc.MinFilter),
		MipmapFilter: filterMode(desc.MipFilter),
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create sampler %q: %w", desc.Label, err)
	}
	s := &samplerState{desc: desc, raw: raw}
	s.Init(desc.Label, func() {
		d.deferDestroy(func() { d.device.DestroySampler(raw) })
	})
	return s, nil
}

// CreateShader creates a WGSL shader module and the bind group layout of
// its declared bindings.
func (d *Device) CreateShader(desc rhi.ShaderDesc) (rhi.Shader, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	switch desc.Stage {
	case rhi.StageVertex, rhi.StagePixel, rhi.StageCompute:
	default:
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

	var module hal.ShaderModule
	var err error
	if d.opts.spirv {
		module, err = shadercompiler.CreateModule(d.device, desc.Label, desc.Source)
	} else {
		module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  desc.Label,
			Source: hal.ShaderSource{WGSL: desc.Source},
		})
	}
	if err != nil {
		return nil, fmt.Errorf("wgpu: create shader module %q: %w", desc.Label, err)
	}
	layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: layoutEntries(&desc),
	})
	if err != nil {
		d.device.DestroyShaderModule(module)
		return nil, fmt.Errorf("wgpu: create bind group layout %q: %w", desc.Label, err)
	}
	s := &shader{desc: desc, module: module, layout: layout}
	s.Init(desc.Label, func() {
		d.deferDestroy(func() {
			d.device.DestroyBindGroupLayout(layout)
			d.device.DestroyShaderModule(module)
		})
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
	if desc.Rasterizer.Wireframe {
		slogger().Debug("wgpu: wireframe rasterization not supported", "pipeline", desc.Label)
	}

	groups := []hal.BindGroupLayout{vs.layout, d.emptyLayout}
	if ps != nil {
		groups[1] = ps.layout
	}
	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: groups,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create pipeline layout %q: %w", desc.Label, err)
	}

	pd := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vs.module,
			EntryPoint: vs.desc.EntryPoint,
			Buffers:    vertexBuffers(desc.InputLayout),
		},
		Multisample: gputypes.MultisampleState{
			Count: desc.SampleCount,
			Mask:  0xFFFFFFFF,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  primitiveTopology(desc.Topology),
			CullMode:  cullMode(desc.Rasterizer.CullMode),
			FrontFace: frontFace(desc.Rasterizer.FrontCounterClockwise),
		},
	}
	if ps != nil {
		targets := make([]gputypes.ColorTargetState, len(desc.RenderTargetFormats))
		for i, f := range desc.RenderTargetFormats {
			targets[i] = gputypes.ColorTargetState{Format: f, WriteMask: gputypes.ColorWriteMaskAll}
			switch {
			case i < len(desc.Blend):
				targets[i].Blend = blendState(desc.Blend[i])
			case len(desc.Blend) > 0:
				targets[i].Blend = blendState(desc.Blend[0])
			}
		}
		pd.Fragment = &hal.FragmentState{Module: ps.module, EntryPoint: ps.desc.EntryPoint, Targets: targets}
	}
	if desc.DepthStencilFormat != gputypes.TextureFormatUndefined {
		compare := gputypes.CompareFunctionAlways
		if desc.DepthStencil.DepthEnable {
			compare = compareFunction(desc.DepthStencil.DepthFunc)
		}
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		pd.DepthStencil = &hal.DepthStencilState{
			Format:            desc.DepthStencilFormat,
			DepthWriteEnabled: desc.DepthStencil.DepthEnable && desc.DepthStencil.DepthWrite,
			DepthCompare:      compare,
			StencilFront:      keep,
			StencilBack:       keep,
		}
	}

	raw, err := d.device.CreateRenderPipeline(pd)
	if err != nil {
		d.device.DestroyPipelineLayout(layout)
		return nil, fmt.Errorf("wgpu: create render pipeline %q: %w", desc.Label, err)
	}
	vs.AddRef()
	if ps != nil {
		ps.AddRef()
	}
	p := &graphicsPipeline{desc: desc, raw: raw, layout: layout, vs: vs, ps: ps}
	p.Init(desc.Label, func() {
		d.deferDestroy(func() {
			d.device.DestroyRenderPipeline(raw)
			d.device.DestroyPipelineLayout(layout)
		})
		vs.Release()
		if ps != nil {
			ps.Release()
		}
	})
	return p, nil
}

// vertexBuffers groups the input layout by slot. Slots without elements
// get an empty layout so slot numbers match buffer indices.
func vertexBuffers(elems []rhi.VertexElement) []gputypes.VertexBufferLayout {
	var n uint32
	for _, e := range elems {
		n = max(n, e.Slot+1)
	}
	out := make([]gputypes.VertexBufferLayout, n)
	for _, e := range elems {
		l := &out[e.Slot]
		l.ArrayStride = uint64(e.Stride)
		l.StepMode = gputypes.VertexStepModeVertex
		if e.PerInstance {
			l.StepMode = gputypes.VertexStepModeInstance
		}
		l.Attributes = append(l.Attributes, gputypes.VertexAttribute{
			Format:         e.Format,
			Offset:         uint64(e.Offset),
			ShaderLocation: e.Location,
		})
	}
	return out
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
	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: []hal.BindGroupLayout{cs.layout},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create pipeline layout %q: %w", desc.Label, err)
	}
	raw, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Compute: hal.ComputeState{Module: cs.module, EntryPoint: cs.desc.EntryPoint},
	})
	if err != nil {
		d.device.DestroyPipelineLayout(layout)
		return nil, fmt.Errorf("wgpu: create compute pipeline %q: %w", desc.Label, err)
	}
	cs.AddRef()
	p := &computePipeline{desc: desc, raw: raw, layout: layout, cs: cs}
	p.Init(desc.Label, func() {
		d.deferDestroy(func() {
			d.device.DestroyComputePipeline(raw)
			d.device.DestroyPipelineLayout(layout)
		})
		cs.Release()
	})
	return p, nil
}

// CreateTimestampQuery is not supported: the hal surface used here has no
// query sets.
func (d *Device) CreateTimestampQuery(count uint32) (rhi.TimestampQuery, error) {
	return nil, fmt.Errorf("%w: wgpu timestamp queries", rhi.ErrUnsupported)
}

func (d *Device) ReadTimestamps(q rhi.TimestampQuery) ([]time.Duration, error) {
	return nil, fmt.Errorf("%w: wgpu timestamp queries", rhi.ErrUnsupported)
}

// WaitIdle blocks until every submission has completed and retires them.
func (d *Device) WaitIdle() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.ctx.waitIdle()
}

// Close ends any open batch, waits for the GPU and destroys every object
// the device owns. A device passed with WithHalDevice is left alive.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	var errs []error
	if d.ctx.recording {
		errs = append(errs, d.ctx.End())
	}
	errs = append(errs, d.ctx.waitIdle())
	d.ctx.release()
	d.release()
	slogger().Info("wgpu: device closed", "adapter", d.name)
	return errors.Join(errs...)
}

func (d *Device) release() {
	for _, r := range []rhi.Resource{d.defaultSRV, d.defaultUAV, d.defaultTexture, d.defaultStorageTex, d.defaultBuffer, d.defaultSampler} {
		if r != nil && !isNilResource(r) {
			r.Release()
		}
	}
	if d.mips != nil {
		d.mips.release()
	}
	d.deletions.FlushAll()
	if d.emptyLayout != nil {
		d.device.DestroyBindGroupLayout(d.emptyLayout)
	}
	d.destroyOwned()
}

// isNilResource reports whether r holds a nil pointer of one of the
// default resource types.
func isNilResource(r rhi.Resource) bool {
	switch v := r.(type) {
	case *shaderResourceView:
		return v == nil
	case *unorderedAccessView:
		return v == nil
	case *deviceTexture:
		return v == nil
	case *deviceBuffer:
		return v == nil
	case *samplerState:
		return v == nil
	}
	return false
}

// destroyOwned destroys the device and instance Open created.
func (d *Device) destroyOwned() {
	if d.instance == nil {
		return
	}
	d.device.Destroy()
	d.instance.Destroy()
}
