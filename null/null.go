// Package null implements an RHI backend that accepts every call and does
// no GPU work.
//
// It is useful for tests, tooling and headless runs. With [WithTrace] the
// context records the name of every call it receives, which lets tests
// observe exactly what a command list executed.
//
//	import _ "github.com/gogpu/rhi/null"
//
//	dev := rhi.MustOpenDevice("null")
package null

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/rhi"
)

func init() {
	rhi.Register("null", func() (rhi.Device, error) { return NewDevice(), nil })
}

// Option configures a null Device.
type Option func(*options)

type options struct {
	trace bool
	name  string
}

func defaultOptions() options {
	return options{name: "null"}
}

// WithTrace makes the context record the name of every call.
func WithTrace() Option {
	return func(o *options) { o.trace = true }
}

// WithName sets the name reported by Device.Name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Device is a null rhi.Device.
type Device struct {
	opts   options
	ctx    *Context
	live   atomic.Int64
	closed atomic.Bool
}

var _ rhi.Device = (*Device)(nil)

// NewDevice creates a null device.
func NewDevice(opts ...Option) *Device {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{opts: o}
	d.ctx = &Context{trace: o.trace}
	return d
}

func (d *Device) Name() string { return d.opts.name }

// Context returns the null immediate context.
func (d *Device) Context() rhi.Context { return d.ctx }

// NullContext returns the context with its concrete type, for access to
// the trace.
func (d *Device) NullContext() *Context { return d.ctx }

// LiveResources returns the number of resources created by d whose
// reference count has not reached zero.
func (d *Device) LiveResources() int { return int(d.live.Load()) }

func (d *Device) track(r *rhi.RefCounted, name string) error {
	if d.closed.Load() {
		return rhi.ErrDeviceClosed
	}
	d.live.Add(1)
	r.Init(name, func() { d.live.Add(-1) })
	return nil
}

// Buffer is a null buffer. Its contents are kept in memory so that
// UpdateBuffer and CopyBuffer are observable.
type Buffer struct {
	rhi.RefCounted
	desc rhi.BufferDesc

	mu   sync.Mutex
	data []byte
}

func (b *Buffer) Desc() rhi.BufferDesc { return b.desc }

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

func (b *Buffer) write(offset uint64, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset >= uint64(len(b.data)) {
		return
	}
	copy(b.data[offset:], data)
}

func (d *Device) CreateBuffer(desc rhi.BufferDesc, initial []byte) (rhi.Buffer, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	b := &Buffer{desc: desc, data: make([]byte, desc.Size)}
	copy(b.data, initial)
	if err := d.track(&b.RefCounted, desc.Label); err != nil {
		return nil, err
	}
	return b, nil
}

// Texture is a null texture.
type Texture struct {
	rhi.RefCounted
	desc rhi.TextureDesc
}

func (t *Texture) Desc() rhi.TextureDesc { return t.desc }

func (d *Device) CreateTexture(desc rhi.TextureDesc, _ []byte) (rhi.Texture, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	t := &Texture{desc: desc}
	if err := d.track(&t.RefCounted, desc.Label); err != nil {
		return nil, err
	}
	return t, nil
}

// view holds the resource a null view was created for. It keeps a
// reference to it for as long as the view lives.
type view struct {
	rhi.RefCounted
	texture rhi.Texture
	buffer  rhi.Buffer
}

func (v *view) Texture() rhi.Texture { return v.texture }
func (v *view) Buffer() rhi.Buffer   { return v.buffer }

func (d *Device) initView(v *view, label string, tex rhi.Texture, buf rhi.Buffer) error {
	if tex == nil && buf == nil {
		return fmt.Errorf("%w: view %q has no resource", rhi.ErrInvalidDesc, label)
	}
	if d.closed.Load() {
		return rhi.ErrDeviceClosed
	}
	v.texture = rhi.AddRef(tex)
	v.buffer = rhi.AddRef(buf)
	d.live.Add(1)
	v.Init(label, func() {
		rhi.Release(v.texture)
		rhi.Release(v.buffer)
		d.live.Add(-1)
	})
	return nil
}

type shaderResourceView struct {
	view
	desc rhi.ShaderResourceViewDesc
}

func (v *shaderResourceView) ShaderResourceDesc() rhi.ShaderResourceViewDesc { return v.desc }

func (d *Device) CreateShaderResourceView(desc rhi.ShaderResourceViewDesc) (rhi.ShaderResourceView, error) {
	v := &shaderResourceView{desc: desc}
	if err := d.initView(&v.view, desc.Label, desc.Texture, desc.Buffer); err != nil {
		return nil, err
	}
	return v, nil
}

type unorderedAccessView struct {
	view
	desc rhi.UnorderedAccessViewDesc
}

func (v *unorderedAccessView) UnorderedAccessDesc() rhi.UnorderedAccessViewDesc { return v.desc }

func (d *Device) CreateUnorderedAccessView(desc rhi.UnorderedAccessViewDesc) (rhi.UnorderedAccessView, error) {
	v := &unorderedAccessView{desc: desc}
	if err := d.initView(&v.view, desc.Label, desc.Texture, desc.Buffer); err != nil {
		return nil, err
	}
	return v, nil
}

type renderTargetView struct {
	view
	desc rhi.RenderTargetViewDesc
}

func (v *renderTargetView) RenderTargetDesc() rhi.RenderTargetViewDesc { return v.desc }

func (d *Device) CreateRenderTargetView(desc rhi.RenderTargetViewDesc) (rhi.RenderTargetView, error) {
	v := &renderTargetView{desc: desc}
	if err := d.initView(&v.view, desc.Label, desc.Texture, nil); err != nil {
		return nil, err
	}
	return v, nil
}

type depthStencilView struct {
	view
	desc rhi.DepthStencilViewDesc
}

func (v *depthStencilView) DepthStencilDesc() rhi.DepthStencilViewDesc { return v.desc }

func (d *Device) CreateDepthStencilView(desc rhi.DepthStencilViewDesc) (rhi.DepthStencilView, error) {
	v := &depthStencilView{desc: desc}
	if err := d.initView(&v.view, desc.Label, desc.Texture, nil); err != nil {
		return nil, err
	}
	return v, nil
}

type samplerState struct {
	rhi.RefCounted
	desc rhi.SamplerDesc
}

func (s *samplerState) Desc() rhi.SamplerDesc { return s.desc }

func (d *Device) CreateSamplerState(desc rhi.SamplerDesc) (rhi.SamplerState, error) {
	s := &samplerState{desc: desc}
	if err := d.track(&s.RefCounted, desc.Label); err != nil {
		return nil, err
	}
	return s, nil
}

type shader struct {
	rhi.RefCounted
	desc rhi.ShaderDesc
}

func (s *shader) Stage() rhi.ShaderStage { return s.desc.Stage }
func (s *shader) Desc() rhi.ShaderDesc   { return s.desc }

func (d *Device) CreateShader(desc rhi.ShaderDesc) (rhi.Shader, error) {
	s := &shader{desc: desc}
	if err := d.track(&s.RefCounted, desc.Label); err != nil {
		return nil, err
	}
	return s, nil
}

type graphicsPipeline struct {
	rhi.RefCounted
	desc rhi.GraphicsPipelineDesc
}

func (p *graphicsPipeline) Desc() rhi.GraphicsPipelineDesc { return p.desc }

func (d *Device) CreateGraphicsPipelineState(desc rhi.GraphicsPipelineDesc) (rhi.GraphicsPipelineState, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	p := &graphicsPipeline{desc: desc}
	if err := d.track(&p.RefCounted, desc.Label); err != nil {
		return nil, err
	}
	return p, nil
}

type computePipeline struct {
	rhi.RefCounted
	desc rhi.ComputePipelineDesc
}

func (p *computePipeline) Desc() rhi.ComputePipelineDesc { return p.desc }

func (d *Device) CreateComputePipelineState(desc rhi.ComputePipelineDesc) (rhi.ComputePipelineState, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	p := &computePipeline{desc: desc}
	if err := d.track(&p.RefCounted, desc.Label); err != nil {
		return nil, err
	}
	return p, nil
}

type timestampQuery struct {
	rhi.RefCounted
	count uint32
}

func (q *timestampQuery) Count() uint32 { return q.count }

func (d *Device) CreateTimestampQuery(count uint32) (rhi.TimestampQuery, error) {
	if count == 0 {
		return nil, fmt.Errorf("%w: timestamp query with zero pairs", rhi.ErrInvalidDesc)
	}
	q := &timestampQuery{count: count}
	if err := d.track(&q.RefCounted, "timestamps"); err != nil {
		return nil, err
	}
	return q, nil
}

// ReadTimestamps returns zero durations; the null device does no work.
func (d *Device) ReadTimestamps(q rhi.TimestampQuery) ([]time.Duration, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: nil timestamp query", rhi.ErrInvalidDesc)
	}
	return make([]time.Duration, q.Count()), nil
}

func (d *Device) WaitIdle() error {
	if d.closed.Load() {
		return rhi.ErrDeviceClosed
	}
	return nil
}

// Close marks the device closed. Further resource creation fails with
// rhi.ErrDeviceClosed.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return rhi.ErrDeviceClosed
	}
	return nil
}
