package vkdriver

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/rhi/vulkan"
)

// CmdBindPipeline implements vulkan.Driver.
func (d *Driver) CmdBindPipeline(cb vulkan.CommandBuffer, bp vulkan.PipelineBindPoint, p vulkan.Pipeline) {
	vk.CmdBindPipeline(d.cmd(cb), vk.PipelineBindPoint(bp), d.pipelines.get(uint64(p)))
}

// CmdBindDescriptorSets implements vulkan.Driver.
func (d *Driver) CmdBindDescriptorSets(cb vulkan.CommandBuffer, bp vulkan.PipelineBindPoint, layout vulkan.PipelineLayout, firstSet uint32, sets []vulkan.DescriptorSet) {
	if len(sets) == 0 {
		return
	}
	vk.CmdBindDescriptorSets(d.cmd(cb), vk.PipelineBindPoint(bp), d.pipeLayouts.get(uint64(layout)),
		firstSet, uint32(len(sets)), getAll(d.descSets, sets), 0, nil)
}

// CmdPushConstants implements vulkan.Driver.
func (d *Driver) CmdPushConstants(cb vulkan.CommandBuffer, layout vulkan.PipelineLayout, values []uint32) {
	if len(values) == 0 {
		return
	}
	vk.CmdPushConstants(d.cmd(cb), d.pipeLayouts.get(uint64(layout)), vk.ShaderStageFlags(vk.ShaderStageAll),
		0, uint32(len(values)*4), unsafe.Pointer(&values[0]))
}

// CmdBindVertexBuffers implements vulkan.Driver.
func (d *Driver) CmdBindVertexBuffers(cb vulkan.CommandBuffer, first uint32, buffers []vulkan.Buffer, offsets []uint64) {
	if len(buffers) == 0 {
		return
	}
	bufs := make([]vk.Buffer, len(buffers))
	offs := make([]vk.DeviceSize, len(buffers))
	for i, h := range buffers {
		if b := d.buffers.get(uint64(h)); b != nil {
			bufs[i] = b.buf
		}
		offs[i] = vk.DeviceSize(offsets[i])
	}
	vk.CmdBindVertexBuffers(d.cmd(cb), first, uint32(len(bufs)), bufs, offs)
}

// CmdBindIndexBuffer implements vulkan.Driver.
func (d *Driver) CmdBindIndexBuffer(cb vulkan.CommandBuffer, h vulkan.Buffer, offset uint64, t vulkan.IndexType) {
	vk.CmdBindIndexBuffer(d.cmd(cb), d.buffer(h), vk.DeviceSize(offset), vk.IndexType(t))
}

// CmdSetViewports implements vulkan.Driver.
func (d *Driver) CmdSetViewports(cb vulkan.CommandBuffer, viewports []vulkan.Viewport) {
	if len(viewports) == 0 {
		return
	}
	vps := make([]vk.Viewport, len(viewports))
	for i, v := range viewports {
		vps[i] = vk.Viewport{X: v.X, Y: v.Y, Width: v.Width, Height: v.Height, MinDepth: v.MinDepth, MaxDepth: v.MaxDepth}
	}
	vk.CmdSetViewport(d.cmd(cb), 0, uint32(len(vps)), vps)
}

// CmdSetScissors implements vulkan.Driver.
func (d *Driver) CmdSetScissors(cb vulkan.CommandBuffer, rects []vulkan.Rect2D) {
	if len(rects) == 0 {
		return
	}
	rs := make([]vk.Rect2D, len(rects))
	for i, r := range rects {
		rs[i] = rect2D(r)
	}
	vk.CmdSetScissor(d.cmd(cb), 0, uint32(len(rs)), rs)
}

// CmdSetBlendConstants implements vulkan.Driver.
func (d *Driver) CmdSetBlendConstants(cb vulkan.CommandBuffer, constants [4]float32) {
	vk.CmdSetBlendConstants(d.cmd(cb), &constants)
}

// CmdBeginRenderPass implements vulkan.Driver. Attachments are loaded, so
// no clear values are passed.
func (d *Driver) CmdBeginRenderPass(cb vulkan.CommandBuffer, pass vulkan.RenderPass, fb vulkan.Framebuffer, area vulkan.Rect2D) {
	vk.CmdBeginRenderPass(d.cmd(cb), &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  d.renderPasses.get(uint64(pass)),
		Framebuffer: d.framebuffers.get(uint64(fb)),
		RenderArea:  rect2D(area),
	}, vk.SubpassContentsInline)
}

// CmdEndRenderPass implements vulkan.Driver.
func (d *Driver) CmdEndRenderPass(cb vulkan.CommandBuffer) {
	vk.CmdEndRenderPass(d.cmd(cb))
}

// CmdDraw implements vulkan.Driver.
func (d *Driver) CmdDraw(cb vulkan.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(d.cmd(cb), vertexCount, instanceCount, firstVertex, firstInstance)
}

// CmdDrawIndexed implements vulkan.Driver.
func (d *Driver) CmdDrawIndexed(cb vulkan.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(d.cmd(cb), indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// CmdDispatch implements vulkan.Driver.
func (d *Driver) CmdDispatch(cb vulkan.CommandBuffer, x, y, z uint32) {
	vk.CmdDispatch(d.cmd(cb), x, y, z)
}

// CmdPipelineBarrier implements vulkan.Driver.
func (d *Driver) CmdPipelineBarrier(cb vulkan.CommandBuffer, src, dst vulkan.PipelineStage, buffers []vulkan.BufferBarrier, images []vulkan.ImageBarrier) {
	var bbs []vk.BufferMemoryBarrier
	for _, b := range buffers {
		size := wholeSize
		if b.Size > 0 {
			size = vk.DeviceSize(b.Size)
		}
		bbs = append(bbs, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              d.buffer(b.Buffer),
			Offset:              vk.DeviceSize(b.Offset),
			Size:                size,
		})
	}
	var ibs []vk.ImageMemoryBarrier
	for _, b := range images {
		ibs = append(ibs, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			OldLayout:           vk.ImageLayout(b.OldLayout),
			NewLayout:           vk.ImageLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               d.vkImage(b.Image),
			SubresourceRange:    subresourceRange(b.Range),
		})
	}
	vk.CmdPipelineBarrier(d.cmd(cb), vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		0, nil, uint32(len(bbs)), bbs, uint32(len(ibs)), ibs)
}

// CmdCopyBuffer implements vulkan.Driver.
func (d *Driver) CmdCopyBuffer(cb vulkan.CommandBuffer, src, dst vulkan.Buffer, regions []vulkan.BufferCopy) {
	if len(regions) == 0 {
		return
	}
	rs := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		rs[i] = vk.BufferCopy{SrcOffset: vk.DeviceSize(r.SrcOffset), DstOffset: vk.DeviceSize(r.DstOffset), Size: vk.DeviceSize(r.Size)}
	}
	vk.CmdCopyBuffer(d.cmd(cb), d.buffer(src), d.buffer(dst), uint32(len(rs)), rs)
}

// CmdCopyBufferToImage implements vulkan.Driver. The image must be in
// TRANSFER_DST_OPTIMAL.
func (d *Driver) CmdCopyBufferToImage(cb vulkan.CommandBuffer, src vulkan.Buffer, dst vulkan.Image, r vulkan.BufferImageCopy) {
	vk.CmdCopyBufferToImage(d.cmd(cb), d.buffer(src), d.vkImage(dst), vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		BufferOffset:     vk.DeviceSize(r.BufferOffset),
		ImageSubresource: subresourceLayers(r.Image),
		ImageOffset:      offset3D(r.Image),
		ImageExtent:      vk.Extent3D{Width: r.Width, Height: r.Height, Depth: max(r.Depth, 1)},
	}})
}

// CmdCopyImage implements vulkan.Driver.
func (d *Driver) CmdCopyImage(cb vulkan.CommandBuffer, src, dst vulkan.Image, r vulkan.ImageCopy) {
	vk.CmdCopyImage(d.cmd(cb), d.vkImage(src), vk.ImageLayoutTransferSrcOptimal, d.vkImage(dst), vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageCopy{{
		SrcSubresource: subresourceLayers(r.Src),
		SrcOffset:      offset3D(r.Src),
		DstSubresource: subresourceLayers(r.Dst),
		DstOffset:      offset3D(r.Dst),
		Extent:         vk.Extent3D{Width: r.Width, Height: r.Height, Depth: max(r.Depth, 1)},
	}})
}

// CmdResolveImage implements vulkan.Driver.
func (d *Driver) CmdResolveImage(cb vulkan.CommandBuffer, src, dst vulkan.Image, r vulkan.ImageCopy) {
	vk.CmdResolveImage(d.cmd(cb), d.vkImage(src), vk.ImageLayoutTransferSrcOptimal, d.vkImage(dst), vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageResolve{{
		SrcSubresource: subresourceLayers(r.Src),
		SrcOffset:      offset3D(r.Src),
		DstSubresource: subresourceLayers(r.Dst),
		DstOffset:      offset3D(r.Dst),
		Extent:         vk.Extent3D{Width: r.Width, Height: r.Height, Depth: max(r.Depth, 1)},
	}})
}

// CmdBlitImage implements vulkan.Driver.
func (d *Driver) CmdBlitImage(cb vulkan.CommandBuffer, src, dst vulkan.Image, r vulkan.ImageBlit) {
	vk.CmdBlitImage(d.cmd(cb), d.vkImage(src), vk.ImageLayoutTransferSrcOptimal, d.vkImage(dst), vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{{
		SrcSubresource: subresourceLayers(r.Src),
		SrcOffsets:     blitOffsets(r.Src, r.SrcWidth, r.SrcHeight),
		DstSubresource: subresourceLayers(r.Dst),
		DstOffsets:     blitOffsets(r.Dst, r.DstWidth, r.DstHeight),
	}}, vk.FilterLinear)
}

// CmdClearColorImage implements vulkan.Driver.
func (d *Driver) CmdClearColorImage(cb vulkan.CommandBuffer, img vulkan.Image, layout vulkan.ImageLayout, color [4]float32, r vulkan.SubresourceRange) {
	var value vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&value)) = color
	vk.CmdClearColorImage(d.cmd(cb), d.vkImage(img), vk.ImageLayout(layout), &value, 1, []vk.ImageSubresourceRange{subresourceRange(r)})
}

// CmdClearDepthStencilImage implements vulkan.Driver. The image must be in
// TRANSFER_DST_OPTIMAL.
func (d *Driver) CmdClearDepthStencilImage(cb vulkan.CommandBuffer, img vulkan.Image, depth float32, stencil uint32, r vulkan.SubresourceRange) {
	value := vk.ClearDepthStencilValue{Depth: depth, Stencil: stencil}
	vk.CmdClearDepthStencilImage(d.cmd(cb), d.vkImage(img), vk.ImageLayoutTransferDstOptimal, &value, 1, []vk.ImageSubresourceRange{subresourceRange(r)})
}

// CmdFillBuffer implements vulkan.Driver. A zero size fills to the end of
// the buffer.
func (d *Driver) CmdFillBuffer(cb vulkan.CommandBuffer, h vulkan.Buffer, offset, size uint64, value uint32) {
	n := wholeSize
	if size > 0 {
		n = vk.DeviceSize(size)
	}
	vk.CmdFillBuffer(d.cmd(cb), d.buffer(h), vk.DeviceSize(offset), n, value)
}

// CmdResetQueryPool implements vulkan.Driver.
func (d *Driver) CmdResetQueryPool(cb vulkan.CommandBuffer, p vulkan.QueryPool, first, count uint32) {
	vk.CmdResetQueryPool(d.cmd(cb), d.queryPools.get(uint64(p)), first, count)
}

// CmdWriteTimestamp implements vulkan.Driver.
func (d *Driver) CmdWriteTimestamp(cb vulkan.CommandBuffer, stage vulkan.PipelineStage, p vulkan.QueryPool, query uint32) {
	vk.CmdWriteTimestamp(d.cmd(cb), vk.PipelineStageFlagBits(stage), d.queryPools.get(uint64(p)), query)
}

func (d *Driver) buffer(h vulkan.Buffer) vk.Buffer {
	if b := d.buffers.get(uint64(h)); b != nil {
		return b.buf
	}
	return nil
}

func rect2D(r vulkan.Rect2D) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}
}

func offset3D(s vulkan.ImageSubresource) vk.Offset3D {
	return vk.Offset3D{X: s.X, Y: s.Y, Z: s.Z}
}

func blitOffsets(s vulkan.ImageSubresource, w, h uint32) [2]vk.Offset3D {
	return [2]vk.Offset3D{
		offset3D(s),
		{X: s.X + int32(w), Y: s.Y + int32(h), Z: s.Z + 1},
	}
}
