package null

import (
	"strings"
	"sync"

	"github.com/gogpu/rhi"
)

// Context is the null immediate context. It validates nothing and only
// records call names when tracing is enabled.
//
// Begin, End and Flush are counted but not traced.
type Context struct {
	trace bool

	mu      sync.Mutex
	calls   []string
	markers []string
	begins  int
	ends    int
	flushes int
}

var _ rhi.Context = (*Context)(nil)

func (c *Context) record(name string) {
	if !c.trace {
		return
	}
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
}

// Calls returns the traced call names in order.
func (c *Context) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// ResetTrace clears the traced calls and counters.
func (c *Context) ResetTrace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
	c.markers = nil
	c.begins, c.ends, c.flushes = 0, 0, 0
}

// Markers returns the traced marker strings in order.
func (c *Context) Markers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.markers...)
}

// Counts returns how often Begin, End and Flush were called.
func (c *Context) Counts() (begins, ends, flushes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.begins, c.ends, c.flushes
}

func (c *Context) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.begins++
	return nil
}

func (c *Context) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ends++
	return nil
}

func (c *Context) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes++
	return nil
}

func (c *Context) BeginTimeStamp(rhi.TimestampQuery, uint32) { c.record("BeginTimeStamp") }
func (c *Context) EndTimeStamp(rhi.TimestampQuery, uint32)   { c.record("EndTimeStamp") }

func (c *Context) ClearRenderTargetView(rhi.RenderTargetView, rhi.Color) {
	c.record("ClearRenderTargetView")
}
func (c *Context) ClearDepthStencilView(rhi.DepthStencilView, rhi.DepthStencilValue) {
	c.record("ClearDepthStencilView")
}
func (c *Context) ClearUnorderedAccessViewFloat(rhi.UnorderedAccessView, rhi.Color) {
	c.record("ClearUnorderedAccessViewFloat")
}

func (c *Context) SetShadingRate(rhi.ShadingRate)  { c.record("SetShadingRate") }
func (c *Context) SetShadingRateImage(rhi.Texture) { c.record("SetShadingRateImage") }
func (c *Context) BeginRenderPass()                { c.record("BeginRenderPass") }
func (c *Context) EndRenderPass()                  { c.record("EndRenderPass") }

func (c *Context) SetViewport(_, _, _, _, _, _ float32) { c.record("SetViewport") }
func (c *Context) SetScissorRect(_, _, _, _ float32)    { c.record("SetScissorRect") }
func (c *Context) SetBlendFactor(rhi.Color)             { c.record("SetBlendFactor") }

func (c *Context) SetRenderTargets([]rhi.RenderTargetView, rhi.DepthStencilView) {
	c.record("SetRenderTargets")
}

func (c *Context) SetPrimitiveTopology(rhi.PrimitiveTopology) { c.record("SetPrimitiveTopology") }
func (c *Context) SetVertexBuffers([]rhi.Buffer, uint32)      { c.record("SetVertexBuffers") }
func (c *Context) SetIndexBuffer(rhi.Buffer, rhi.IndexFormat) { c.record("SetIndexBuffer") }
func (c *Context) SetGraphicsPipelineState(rhi.GraphicsPipelineState) {
	c.record("SetGraphicsPipelineState")
}
func (c *Context) SetComputePipelineState(rhi.ComputePipelineState) {
	c.record("SetComputePipelineState")
}

func (c *Context) SetRayTracingBindings(rhi.RayTracingScene, rhi.RayTracingPipelineState,
	*rhi.RayTracingShaderResources, *rhi.RayTracingShaderResources, *rhi.RayTracingShaderResources,
	[]rhi.RayTracingShaderResources) {
	c.record("SetRayTracingBindings")
}

func (c *Context) Set32BitShaderConstants(rhi.Shader, []uint32) {
	c.record("Set32BitShaderConstants")
}
func (c *Context) SetShaderResourceView(rhi.Shader, rhi.ShaderResourceView, uint32) {
	c.record("SetShaderResourceView")
}
func (c *Context) SetShaderResourceViews(rhi.Shader, []rhi.ShaderResourceView, uint32) {
	c.record("SetShaderResourceViews")
}
func (c *Context) SetUnorderedAccessView(rhi.Shader, rhi.UnorderedAccessView, uint32) {
	c.record("SetUnorderedAccessView")
}
func (c *Context) SetUnorderedAccessViews(rhi.Shader, []rhi.UnorderedAccessView, uint32) {
	c.record("SetUnorderedAccessViews")
}
func (c *Context) SetConstantBuffer(rhi.Shader, rhi.Buffer, uint32) {
	c.record("SetConstantBuffer")
}
func (c *Context) SetConstantBuffers(rhi.Shader, []rhi.Buffer, uint32) {
	c.record("SetConstantBuffers")
}
func (c *Context) SetSamplerState(rhi.Shader, rhi.SamplerState, uint32) {
	c.record("SetSamplerState")
}
func (c *Context) SetSamplerStates(rhi.Shader, []rhi.SamplerState, uint32) {
	c.record("SetSamplerStates")
}

func (c *Context) ResolveTexture(_, _ rhi.Texture) { c.record("ResolveTexture") }

// UpdateBuffer writes data into a null Buffer so tests can observe it.
func (c *Context) UpdateBuffer(dst rhi.Buffer, offset uint64, data []byte) {
	c.record("UpdateBuffer")
	if b, ok := dst.(*Buffer); ok {
		b.write(offset, data)
	}
}

func (c *Context) UpdateTexture2D(rhi.Texture, uint32, uint32, uint32, []byte) {
	c.record("UpdateTexture2D")
}

// CopyBuffer copies between null Buffers.
func (c *Context) CopyBuffer(dst, src rhi.Buffer, info rhi.CopyBufferInfo) {
	c.record("CopyBuffer")
	d, ok1 := dst.(*Buffer)
	s, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		return
	}
	data := s.Bytes()
	if info.SrcOffset >= uint64(len(data)) {
		return
	}
	end := min(info.SrcOffset+info.Size, uint64(len(data)))
	d.write(info.DstOffset, data[info.SrcOffset:end])
}

func (c *Context) CopyTexture(_, _ rhi.Texture)                              { c.record("CopyTexture") }
func (c *Context) CopyTextureRegion(_, _ rhi.Texture, _ rhi.CopyTextureInfo) { c.record("CopyTextureRegion") }
func (c *Context) DiscardResource(rhi.Resource)                              { c.record("DiscardResource") }

func (c *Context) BuildRayTracingGeometry(rhi.RayTracingGeometry, rhi.Buffer, rhi.Buffer, bool) {
	c.record("BuildRayTracingGeometry")
}
func (c *Context) BuildRayTracingScene(rhi.RayTracingScene, []rhi.RayTracingGeometryInstance, bool) {
	c.record("BuildRayTracingScene")
}

func (c *Context) GenerateMips(rhi.Texture) { c.record("GenerateMips") }

func (c *Context) TransitionTexture(rhi.Texture, rhi.ResourceAccess, rhi.ResourceAccess) {
	c.record("TransitionTexture")
}
func (c *Context) TransitionBuffer(rhi.Buffer, rhi.ResourceAccess, rhi.ResourceAccess) {
	c.record("TransitionBuffer")
}
func (c *Context) UnorderedAccessTextureBarrier(rhi.Texture) {
	c.record("UnorderedAccessTextureBarrier")
}
func (c *Context) UnorderedAccessBufferBarrier(rhi.Buffer) {
	c.record("UnorderedAccessBufferBarrier")
}

func (c *Context) Draw(_, _ uint32)                { c.record("Draw") }
func (c *Context) DrawIndexed(_, _, _ uint32)      { c.record("DrawIndexed") }
func (c *Context) DrawInstanced(_, _, _, _ uint32) { c.record("DrawInstanced") }
func (c *Context) DrawIndexedInstanced(_, _, _, _, _ uint32) {
	c.record("DrawIndexedInstanced")
}
func (c *Context) Dispatch(_, _, _ uint32) { c.record("Dispatch") }
func (c *Context) DispatchRays(rhi.RayTracingScene, rhi.RayTracingPipelineState, uint32, uint32, uint32) {
	c.record("DispatchRays")
}

func (c *Context) InsertMarker(marker string) {
	if !c.trace {
		return
	}
	c.mu.Lock()
	c.calls = append(c.calls, "InsertMarker")
	// marker may live in a command list arena that is reused after Reset.
	c.markers = append(c.markers, strings.Clone(marker))
	c.mu.Unlock()
}

func (c *Context) BeginExternalCapture() { c.record("BeginExternalCapture") }
func (c *Context) EndExternalCapture()   { c.record("EndExternalCapture") }
