package vulkan

import (
	"math"

	"github.com/gogpu/rhi"
)

// Timestamps.

func (c *Context) timestampQuery(op string, q rhi.TimestampQuery, index uint32) *timestampQuery {
	if !c.checkRecording(op) {
		return nil
	}
	tq, ok := q.(*timestampQuery)
	if !ok {
		misuse("vulkan: invalid timestamp query", "op", op, "query", rhi.ResourceName(q))
		return nil
	}
	if index >= tq.count {
		misuse("vulkan: timestamp index out of range", "op", op, "index", index, "count", tq.count)
		return nil
	}
	return tq
}

func (c *Context) BeginTimeStamp(query rhi.TimestampQuery, index uint32) {
	tq := c.timestampQuery("BeginTimeStamp", query, index)
	if tq == nil {
		return
	}
	c.endPass()
	c.barriers.flush(c.drv, c.cb)
	c.drv.CmdResetQueryPool(c.cb, tq.handle, 2*index, 2)
	c.drv.CmdWriteTimestamp(c.cb, StageTopOfPipe, tq.handle, 2*index)
}

func (c *Context) EndTimeStamp(query rhi.TimestampQuery, index uint32) {
	tq := c.timestampQuery("EndTimeStamp", query, index)
	if tq == nil {
		return
	}
	c.drv.CmdWriteTimestamp(c.cb, StageBottomOfPipe, tq.handle, 2*index+1)
}

// Clears.

func (c *Context) ClearRenderTargetView(rtv rhi.RenderTargetView, color rhi.Color) {
	if !c.checkRecording("ClearRenderTargetView") {
		return
	}
	v, ok := rtv.(*renderTargetView)
	if !ok {
		misuse("vulkan: invalid render target view", "op", "ClearRenderTargetView", "rtv", rhi.ResourceName(rtv))
		return
	}
	c.endPass()
	c.requireLayout(v.texture, LayoutTransferDstOptimal)
	c.barriers.flush(c.drv, c.cb)
	c.drv.CmdClearColorImage(c.cb, v.texture.handle, LayoutTransferDstOptimal, colorArray(color), v.rng)
}

func (c *Context) ClearDepthStencilView(dsv rhi.DepthStencilView, value rhi.DepthStencilValue) {
	if !c.checkRecording("ClearDepthStencilView") {
		return
	}
	v, ok := dsv.(*depthStencilView)
	if !ok {
		misuse("vulkan: invalid depth stencil view", "op", "ClearDepthStencilView", "dsv", rhi.ResourceName(dsv))
		return
	}
	c.endPass()
	c.requireLayout(v.texture, LayoutTransferDstOptimal)
	c.barriers.flush(c.drv, c.cb)
	c.drv.CmdClearDepthStencilImage(c.cb, v.texture.handle, value.Depth, uint32(value.Stencil), v.rng)
}

// ClearUnorderedAccessViewFloat clears a texture UAV to color. Buffer UAVs
// are filled with the bits of color.R.
func (c *Context) ClearUnorderedAccessViewFloat(uav rhi.UnorderedAccessView, color rhi.Color) {
	if !c.checkRecording("ClearUnorderedAccessViewFloat") {
		return
	}
	v, ok := uav.(*unorderedAccessView)
	if !ok {
		misuse("vulkan: invalid unordered access view", "op", "ClearUnorderedAccessViewFloat", "uav", rhi.ResourceName(uav))
		return
	}
	c.endPass()
	if v.texture != nil {
		c.requireLayout(v.texture, LayoutGeneral)
		c.barriers.flush(c.drv, c.cb)
		c.drv.CmdClearColorImage(c.cb, v.texture.handle, LayoutGeneral, colorArray(color), v.rng)
		return
	}
	c.barriers.flush(c.drv, c.cb)
	size := v.size &^ 3
	c.drv.CmdFillBuffer(c.cb, v.buffer.handle, v.offset, size, math.Float32bits(float32(color.R)))
	c.barriers.addBuffer(BufferBarrier{
		Buffer:    v.buffer.handle,
		SrcAccess: AccessTransferWrite,
		DstAccess: AccessShaderRead | AccessShaderWrite,
		Offset:    v.offset,
		Size:      size,
	}, StageTransfer, shaderStages)
}

// Copies.

// writeBufferRange records a transfer write to a buffer range between two
// barriers: one against earlier accesses and one for later reads.
func (c *Context) writeBufferRange(b *deviceBuffer, offset, size uint64, record func()) {
	c.endPass()
	c.barriers.addBuffer(BufferBarrier{
		Buffer:    b.handle,
		SrcAccess: AccessMemoryRead | AccessMemoryWrite,
		DstAccess: AccessTransferWrite,
		Offset:    offset,
		Size:      size,
	}, StageAllCommands, StageTransfer)
	c.barriers.flush(c.drv, c.cb)
	record()
	c.barriers.addBuffer(BufferBarrier{
		Buffer:    b.handle,
		SrcAccess: AccessTransferWrite,
		DstAccess: AccessMemoryRead | AccessMemoryWrite,
		Offset:    offset,
		Size:      size,
	}, StageTransfer, StageAllCommands)
}

// UpdateBuffer copies data into dst through a staging buffer that is
// destroyed once the batch completes.
func (c *Context) UpdateBuffer(dst rhi.Buffer, offset uint64, data []byte) {
	if !c.checkRecording("UpdateBuffer") {
		return
	}
	b := c.buffer("UpdateBuffer", dst)
	if b == nil || len(data) == 0 {
		return
	}
	size := uint64(len(data))
	if offset+size > b.desc.Size {
		misuse("vulkan: buffer update out of range", "buffer", b.Name(), "offset", offset, "size", size, "bufferSize", b.desc.Size)
		return
	}
	staging, err := c.dev.newStaging(data)
	if err != nil {
		c.fail("UpdateBuffer", err)
		return
	}
	c.writeBufferRange(b, offset, size, func() {
		c.drv.CmdCopyBuffer(c.cb, staging, b.handle, []BufferCopy{{DstOffset: offset, Size: size}})
	})
	c.dev.deferDestroy(func() { c.drv.DestroyBuffer(staging) })
}

// UpdateTexture2D replaces a mip level of layer 0 with tightly packed
// texels. The texture returns to its previous layout afterwards, or to
// shader read-only if its contents were undefined.
func (c *Context) UpdateTexture2D(dst rhi.Texture, width, height, mipLevel uint32, data []byte) {
	if !c.checkRecording("UpdateTexture2D") {
		return
	}
	t := c.texture("UpdateTexture2D", dst)
	if t == nil {
		return
	}
	bpp := rhi.BytesPerPixel(t.desc.Format)
	if bpp == 0 || rhi.IsDepthFormat(t.desc.Format) {
		misuse("vulkan: texture format cannot be updated from the CPU", "texture", t.Name(), "format", t.desc.Format)
		return
	}
	size := uint64(width) * uint64(height) * uint64(bpp)
	w, h, _ := t.mipExtent(min(mipLevel, t.desc.MipLevels-1))
	if mipLevel >= t.desc.MipLevels || width > w || height > h || uint64(len(data)) < size {
		misuse("vulkan: texture update out of range", "texture", t.Name(), "mip", mipLevel, "width", width, "height", height, "bytes", len(data))
		return
	}
	staging, err := c.dev.newStaging(data[:size])
	if err != nil {
		c.fail("UpdateTexture2D", err)
		return
	}
	c.endPass()
	restore := t.layout
	if restore == LayoutUndefined {
		restore = LayoutShaderReadOnlyOptimal
	}
	c.requireLayout(t, LayoutTransferDstOptimal)
	c.barriers.flush(c.drv, c.cb)
	c.drv.CmdCopyBufferToImage(c.cb, staging, t.handle, BufferImageCopy{
		Image:  ImageSubresource{Aspect: t.aspect(), MipLevel: mipLevel, LayerCount: 1},
		Width:  width,
		Height: height,
		Depth:  1,
	})
	c.requireLayout(t, restore)
	c.dev.deferDestroy(func() { c.drv.DestroyBuffer(staging) })
}

// CopyBuffer copies a range between buffers. A zero size copies as much as
// both buffers allow.
func (c *Context) CopyBuffer(dst, src rhi.Buffer, info rhi.CopyBufferInfo) {
	if !c.checkRecording("CopyBuffer") {
		return
	}
	d, s := c.buffer("CopyBuffer", dst), c.buffer("CopyBuffer", src)
	if d == nil || s == nil {
		return
	}
	size := info.Size
	if size == 0 && info.SrcOffset < s.desc.Size && info.DstOffset < d.desc.Size {
		size = min(s.desc.Size-info.SrcOffset, d.desc.Size-info.DstOffset)
	}
	if size == 0 || info.SrcOffset+size > s.desc.Size || info.DstOffset+size > d.desc.Size {
		misuse("vulkan: buffer copy out of range", "src", s.Name(), "dst", d.Name(), "size", size)
		return
	}
	c.writeBufferRange(d, info.DstOffset, size, func() {
		c.drv.CmdCopyBuffer(c.cb, s.handle, d.handle, []BufferCopy{{SrcOffset: info.SrcOffset, DstOffset: info.DstOffset, Size: size}})
	})
}

// CopyTexture copies every mip level and layer the two textures share.
func (c *Context) CopyTexture(dst, src rhi.Texture) {
	if !c.checkRecording("CopyTexture") {
		return
	}
	d, s := c.texture("CopyTexture", dst), c.texture("CopyTexture", src)
	if d == nil || s == nil {
		return
	}
	if d.desc.Width != s.desc.Width || d.desc.Height != s.desc.Height || d.desc.Format != s.desc.Format {
		misuse("vulkan: texture copy between mismatched textures", "src", s.Name(), "dst", d.Name())
		return
	}
	c.endPass()
	c.requireLayout(s, LayoutTransferSrcOptimal)
	c.requireLayout(d, LayoutTransferDstOptimal)
	c.barriers.flush(c.drv, c.cb)
	layers := min(s.layers(), d.layers())
	for mip := range min(s.desc.MipLevels, d.desc.MipLevels) {
		w, h, depth := s.mipExtent(mip)
		c.drv.CmdCopyImage(c.cb, s.handle, d.handle, ImageCopy{
			Src:    ImageSubresource{Aspect: s.aspect(), MipLevel: mip, LayerCount: layers},
			Dst:    ImageSubresource{Aspect: d.aspect(), MipLevel: mip, LayerCount: layers},
			Width:  w,
			Height: h,
			Depth:  depth,
		})
	}
}

// CopyTextureRegion copies one region. A zero width, height or depth
// extends the region to the edge of the source mip level.
func (c *Context) CopyTextureRegion(dst, src rhi.Texture, info rhi.CopyTextureInfo) {
	if !c.checkRecording("CopyTextureRegion") {
		return
	}
	d, s := c.texture("CopyTextureRegion", dst), c.texture("CopyTextureRegion", src)
	if d == nil || s == nil {
		return
	}
	if info.Src.MipLevel >= s.desc.MipLevels || info.Dst.MipLevel >= d.desc.MipLevels {
		misuse("vulkan: texture region copy mip out of range", "src", s.Name(), "dst", d.Name())
		return
	}
	w, h, depth := s.mipExtent(info.Src.MipLevel)
	width, height, depthN := info.Width, info.Height, info.Depth
	if width == 0 {
		width = w - min(info.Src.X, w)
	}
	if height == 0 {
		height = h - min(info.Src.Y, h)
	}
	if depthN == 0 {
		depthN = max(depth-min(info.Src.Z, depth), 1)
	}
	c.endPass()
	c.requireLayout(s, LayoutTransferSrcOptimal)
	c.requireLayout(d, LayoutTransferDstOptimal)
	c.barriers.flush(c.drv, c.cb)
	c.drv.CmdCopyImage(c.cb, s.handle, d.handle, ImageCopy{
		Src:    subresource(s, info.Src),
		Dst:    subresource(d, info.Dst),
		Width:  width,
		Height: height,
		Depth:  depthN,
	})
}

func subresource(t *deviceTexture, s rhi.CopyTextureSubresource) ImageSubresource {
	return ImageSubresource{
		Aspect:     t.aspect(),
		MipLevel:   s.MipLevel,
		BaseLayer:  s.ArrayLayer,
		LayerCount: 1,
		X:          int32(s.X),
		Y:          int32(s.Y),
		Z:          int32(s.Z),
	}
}

// ResolveTexture resolves mip 0 of a multisampled texture into dst.
func (c *Context) ResolveTexture(dst, src rhi.Texture) {
	if !c.checkRecording("ResolveTexture") {
		return
	}
	d, s := c.texture("ResolveTexture", dst), c.texture("ResolveTexture", src)
	if d == nil || s == nil {
		return
	}
	if s.desc.SampleCount <= 1 || d.desc.SampleCount != 1 {
		misuse("vulkan: resolve needs a multisampled source and a single-sampled destination", "src", s.Name(), "dst", d.Name())
		return
	}
	c.endPass()
	c.requireLayout(s, LayoutTransferSrcOptimal)
	c.requireLayout(d, LayoutTransferDstOptimal)
	c.barriers.flush(c.drv, c.cb)
	w, h, _ := s.mipExtent(0)
	layers := min(s.layers(), d.layers())
	c.drv.CmdResolveImage(c.cb, s.handle, d.handle, ImageCopy{
		Src:    ImageSubresource{Aspect: AspectColor, LayerCount: layers},
		Dst:    ImageSubresource{Aspect: AspectColor, LayerCount: layers},
		Width:  min(w, d.desc.Width),
		Height: min(h, d.desc.Height),
		Depth:  1,
	})
}

// DiscardResource marks a texture's contents undefined, so the next
// transition does not preserve them. Buffers are left alone.
func (c *Context) DiscardResource(resource rhi.Resource) {
	t, ok := resource.(*deviceTexture)
	if !ok {
		return
	}
	if c.recording {
		c.endPass()
	}
	t.layout = LayoutUndefined
}

// GenerateMips fills mip levels 1 and up by successive linear blits and
// leaves the texture in shader read-only layout.
func (c *Context) GenerateMips(texture rhi.Texture) {
	if !c.checkRecording("GenerateMips") {
		return
	}
	t := c.texture("GenerateMips", texture)
	if t == nil || t.desc.MipLevels < 2 {
		return
	}
	if rhi.IsDepthFormat(t.desc.Format) || t.desc.SampleCount > 1 {
		misuse("vulkan: cannot generate mips for texture", "texture", t.Name())
		return
	}
	c.endPass()
	c.requireLayout(t, LayoutTransferDstOptimal)
	c.barriers.flush(c.drv, c.cb)

	mips, layers := t.desc.MipLevels, t.layers()
	for mip := uint32(1); mip < mips; mip++ {
		c.drv.CmdPipelineBarrier(c.cb, StageTransfer, StageTransfer, nil, []ImageBarrier{{
			Image:     t.handle,
			OldLayout: LayoutTransferDstOptimal,
			NewLayout: LayoutTransferSrcOptimal,
			SrcAccess: AccessTransferWrite,
			DstAccess: AccessTransferRead,
			Range:     SubresourceRange{Aspect: AspectColor, BaseMip: mip - 1, MipCount: 1, LayerCount: layers},
		}})
		sw, sh, _ := t.mipExtent(mip - 1)
		dw, dh, _ := t.mipExtent(mip)
		c.drv.CmdBlitImage(c.cb, t.handle, t.handle, ImageBlit{
			Src:       ImageSubresource{Aspect: AspectColor, MipLevel: mip - 1, LayerCount: layers},
			Dst:       ImageSubresource{Aspect: AspectColor, MipLevel: mip, LayerCount: layers},
			SrcWidth:  sw,
			SrcHeight: sh,
			DstWidth:  dw,
			DstHeight: dh,
		})
	}

	c.drv.CmdPipelineBarrier(c.cb, StageTransfer, shaderStages, nil, []ImageBarrier{
		{
			Image:     t.handle,
			OldLayout: LayoutTransferSrcOptimal,
			NewLayout: LayoutShaderReadOnlyOptimal,
			SrcAccess: AccessTransferRead,
			DstAccess: AccessShaderRead,
			Range:     SubresourceRange{Aspect: AspectColor, MipCount: mips - 1, LayerCount: layers},
		},
		{
			Image:     t.handle,
			OldLayout: LayoutTransferDstOptimal,
			NewLayout: LayoutShaderReadOnlyOptimal,
			SrcAccess: AccessTransferWrite,
			DstAccess: AccessShaderRead,
			Range:     SubresourceRange{Aspect: AspectColor, BaseMip: mips - 1, MipCount: 1, LayerCount: layers},
		},
	})
	t.layout = LayoutShaderReadOnlyOptimal
}

// Transitions.

// TransitionTexture queues a barrier from the tracked layout to the layout
// of after. before supplies the source access mask.
func (c *Context) TransitionTexture(texture rhi.Texture, before, after rhi.ResourceAccess) {
	if !c.checkRecording("TransitionTexture") {
		return
	}
	t := c.texture("TransitionTexture", texture)
	if t == nil {
		return
	}
	if before == after {
		if after == rhi.AccessUnorderedAccess {
			c.UnorderedAccessTextureBarrier(texture)
			return
		}
		slogger().Warn("vulkan: redundant texture transition", "texture", t.Name(), "state", after)
		return
	}
	src, dst := accessInfoFor(before), accessInfoFor(after)
	if t.layout != src.layout && t.layout != LayoutUndefined {
		slogger().Debug("vulkan: transition source differs from tracked layout",
			"texture", t.Name(), "before", before, "tracked", t.layout)
	}
	c.endPass()
	c.barriers.addImage(ImageBarrier{
		Image:     t.handle,
		OldLayout: t.layout,
		NewLayout: dst.layout,
		SrcAccess: src.access,
		DstAccess: dst.access,
		Range:     t.wholeRange(),
	}, src.stage, dst.stage)
	t.layout = dst.layout
}

func (c *Context) TransitionBuffer(buffer rhi.Buffer, before, after rhi.ResourceAccess) {
	if !c.checkRecording("TransitionBuffer") {
		return
	}
	b := c.buffer("TransitionBuffer", buffer)
	if b == nil {
		return
	}
	if before == after {
		if after == rhi.AccessUnorderedAccess {
			c.UnorderedAccessBufferBarrier(buffer)
			return
		}
		slogger().Warn("vulkan: redundant buffer transition", "buffer", b.Name(), "state", after)
		return
	}
	src, dst := accessInfoFor(before), accessInfoFor(after)
	c.endPass()
	c.barriers.addBuffer(BufferBarrier{Buffer: b.handle, SrcAccess: src.access, DstAccess: dst.access}, src.stage, dst.stage)
}

const shaderStages = StageVertexShader | StageFragmentShader | StageComputeShader

func (c *Context) UnorderedAccessTextureBarrier(texture rhi.Texture) {
	if !c.checkRecording("UnorderedAccessTextureBarrier") {
		return
	}
	t := c.texture("UnorderedAccessTextureBarrier", texture)
	if t == nil {
		return
	}
	c.endPass()
	if t.layout != LayoutGeneral {
		c.requireLayout(t, LayoutGeneral)
		return
	}
	c.barriers.addImage(ImageBarrier{
		Image:     t.handle,
		OldLayout: LayoutGeneral,
		NewLayout: LayoutGeneral,
		SrcAccess: AccessShaderWrite,
		DstAccess: AccessShaderRead | AccessShaderWrite,
		Range:     t.wholeRange(),
	}, shaderStages, shaderStages)
}

func (c *Context) UnorderedAccessBufferBarrier(buffer rhi.Buffer) {
	if !c.checkRecording("UnorderedAccessBufferBarrier") {
		return
	}
	b := c.buffer("UnorderedAccessBufferBarrier", buffer)
	if b == nil {
		return
	}
	c.endPass()
	c.barriers.addBuffer(BufferBarrier{
		Buffer:    b.handle,
		SrcAccess: AccessShaderWrite,
		DstAccess: AccessShaderRead | AccessShaderWrite,
	}, shaderStages, shaderStages)
}
