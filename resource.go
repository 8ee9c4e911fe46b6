package rhi

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Resource is a reference-counted GPU object.
//
// A newly created resource has a count of one, owned by its creator.
// AddRef and Release are safe for concurrent use. When the count drops to
// zero the backend destroys the object (possibly deferred until the GPU is
// done with it); the resource must not be used afterwards.
type Resource interface {
	// AddRef increments the reference count and returns the new count.
	AddRef() int32

	// Release decrements the reference count and returns the new count.
	Release() int32

	// RefCount returns the current reference count.
	RefCount() int32

	// Name returns the debug name given at creation.
	Name() string
}

// Buffer is a linear GPU allocation.
type Buffer interface {
	Resource
	Desc() BufferDesc
}

// Texture is a GPU image with optional mip levels and array layers.
type Texture interface {
	Resource
	Desc() TextureDesc
}

// ResourceView is the common surface of all view kinds. Exactly one of
// Texture and Buffer is non-nil.
type ResourceView interface {
	Resource
	Texture() Texture
	Buffer() Buffer
}

// ShaderResourceView is a read-only view bound to a shader.
type ShaderResourceView interface {
	ResourceView
	ShaderResourceDesc() ShaderResourceViewDesc
}

// UnorderedAccessView is a read-write view bound to a shader.
type UnorderedAccessView interface {
	ResourceView
	UnorderedAccessDesc() UnorderedAccessViewDesc
}

// RenderTargetView is a color attachment view.
type RenderTargetView interface {
	ResourceView
	RenderTargetDesc() RenderTargetViewDesc
}

// DepthStencilView is a depth/stencil attachment view.
type DepthStencilView interface {
	ResourceView
	DepthStencilDesc() DepthStencilViewDesc
}

// SamplerState is an immutable sampler object.
type SamplerState interface {
	Resource
	Desc() SamplerDesc
}

// Shader is a compiled shader stage.
type Shader interface {
	Resource
	Stage() ShaderStage
	Desc() ShaderDesc
}

// GraphicsPipelineState is a compiled graphics pipeline.
type GraphicsPipelineState interface {
	Resource
	Desc() GraphicsPipelineDesc
}

// ComputePipelineState is a compiled compute pipeline.
type ComputePipelineState interface {
	Resource
	Desc() ComputePipelineDesc
}

// RayTracingPipelineState is a compiled ray-tracing pipeline.
type RayTracingPipelineState interface {
	Resource
}

// RayTracingGeometry is a bottom-level acceleration structure.
type RayTracingGeometry interface {
	Resource
}

// RayTracingScene is a top-level acceleration structure.
type RayTracingScene interface {
	Resource
}

// TimestampQuery is a set of GPU timestamp pairs. Pair i is written by
// BeginTimeStamp(q, i) and EndTimeStamp(q, i).
type TimestampQuery interface {
	Resource
	Count() uint32
}

// RefCounted implements the counting half of [Resource]. Backends embed it
// in their resource types and call Init from the constructor.
//
// The zero value is not ready for use.
type RefCounted struct {
	refs    atomic.Int32
	name    string
	destroy func()
	once    sync.Once
}

// Init sets the count to one and records the debug name and the function
// run when the count reaches zero. destroy may be nil.
func (r *RefCounted) Init(name string, destroy func()) {
	r.name = name
	r.destroy = destroy
	r.refs.Store(1)
}

// AddRef increments the reference count.
func (r *RefCounted) AddRef() int32 {
	return r.refs.Add(1)
}

// Release decrements the reference count and runs the destroy function
// when it reaches zero. Releasing past zero panics.
func (r *RefCounted) Release() int32 {
	n := r.refs.Add(-1)
	switch {
	case n == 0:
		r.once.Do(func() {
			if r.destroy != nil {
				r.destroy()
			}
		})
	case n < 0:
		panic("rhi: Release of resource " + r.name + " with zero references")
	}
	return n
}

// RefCount returns the current reference count.
func (r *RefCounted) RefCount() int32 {
	return r.refs.Load()
}

// Name returns the debug name.
func (r *RefCounted) Name() string {
	return r.name
}

// ResourceName returns r.Name(), or "<nil>" for a nil resource. Used in log
// attributes.
func ResourceName(r Resource) string {
	if isNil(r) {
		return "<nil>"
	}
	if n := r.Name(); n != "" {
		return n
	}
	return "<unnamed>"
}

// AddRef adds a reference to r if it is non-nil and returns r.
func AddRef[T Resource](r T) T {
	if !isNil(r) {
		r.AddRef()
	}
	return r
}

// Release releases r if it is non-nil.
func Release[T Resource](r T) {
	if !isNil(r) {
		r.Release()
	}
}

// isNil reports whether r is nil or holds a nil pointer. A method promoted
// from an embedded RefCounted faults on a nil outer pointer.
func isNil(r Resource) (nilPtr bool) {
	if r == nil {
		return true
	}
	defer func() {
		if e := recover(); e != nil {
			if _, ok := e.(runtime.Error); !ok {
				panic(e)
			}
			nilPtr = true
		}
	}()
	r.RefCount()
	return false
}
