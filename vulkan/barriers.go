package vulkan

import "github.com/gogpu/rhi"

// barrierBatcher collects buffer and image barriers and records them with a
// single CmdPipelineBarrier. The context flushes it before any draw,
// dispatch, copy, clear or render pass begin, and before ending a command
// buffer.
type barrierBatcher struct {
	buffers  []BufferBarrier
	images   []ImageBarrier
	srcStage PipelineStage
	dstStage PipelineStage
}

func (b *barrierBatcher) addBuffer(barrier BufferBarrier, src, dst PipelineStage) {
	b.buffers = append(b.buffers, barrier)
	b.srcStage |= src
	b.dstStage |= dst
}

func (b *barrierBatcher) addImage(barrier ImageBarrier, src, dst PipelineStage) {
	b.images = append(b.images, barrier)
	b.srcStage |= src
	b.dstStage |= dst
}

func (b *barrierBatcher) empty() bool {
	return len(b.buffers) == 0 && len(b.images) == 0
}

// flush records the pending barriers into cb. It reports whether anything
// was recorded.
func (b *barrierBatcher) flush(drv Driver, cb CommandBuffer) bool {
	if b.empty() {
		return false
	}
	src, dst := b.srcStage, b.dstStage
	if src == 0 {
		src = StageTopOfPipe
	}
	if dst == 0 {
		dst = StageBottomOfPipe
	}
	drv.CmdPipelineBarrier(cb, src, dst, b.buffers, b.images)
	b.reset()
	return true
}

func (b *barrierBatcher) reset() {
	b.buffers = b.buffers[:0]
	b.images = b.images[:0]
	b.srcStage = 0
	b.dstStage = 0
}

// accessInfo is the Vulkan view of an rhi.ResourceAccess.
type accessInfo struct {
	layout ImageLayout
	access AccessFlags
	stage  PipelineStage
}

var accessInfos = [...]accessInfo{
	rhi.AccessCommon:                          {LayoutGeneral, AccessMemoryRead | AccessMemoryWrite, StageAllCommands},
	rhi.AccessVertexAndConstantBuffer:         {LayoutUndefined, AccessVertexAttributeRead | AccessUniformRead, StageVertexInput | StageVertexShader | StageFragmentShader | StageComputeShader},
	rhi.AccessIndexBuffer:                     {LayoutUndefined, AccessIndexRead, StageVertexInput},
	rhi.AccessRenderTarget:                    {LayoutColorAttachmentOptimal, AccessColorAttachmentRead | AccessColorAttachmentWrite, StageColorAttachmentOutput},
	rhi.AccessUnorderedAccess:                 {LayoutGeneral, AccessShaderRead | AccessShaderWrite, StageVertexShader | StageFragmentShader | StageComputeShader},
	rhi.AccessDepthWrite:                      {LayoutDepthStencilAttachmentOptimal, AccessDepthStencilAttachmentRead | AccessDepthStencilAttachmentWrite, StageEarlyFragmentTests | StageLateFragmentTests},
	rhi.AccessDepthRead:                       {LayoutDepthStencilReadOnlyOptimal, AccessDepthStencilAttachmentRead | AccessShaderRead, StageEarlyFragmentTests | StageLateFragmentTests | StageFragmentShader},
	rhi.AccessNonPixelShaderResource:          {LayoutShaderReadOnlyOptimal, AccessShaderRead, StageVertexShader | StageComputeShader},
	rhi.AccessPixelShaderResource:             {LayoutShaderReadOnlyOptimal, AccessShaderRead, StageFragmentShader},
	rhi.AccessCopyDest:                        {LayoutTransferDstOptimal, AccessTransferWrite, StageTransfer},
	rhi.AccessCopySource:                      {LayoutTransferSrcOptimal, AccessTransferRead, StageTransfer},
	rhi.AccessResolveDest:                     {LayoutTransferDstOptimal, AccessTransferWrite, StageTransfer},
	rhi.AccessResolveSource:                   {LayoutTransferSrcOptimal, AccessTransferRead, StageTransfer},
	rhi.AccessRayTracingAccelerationStructure: {LayoutGeneral, AccessShaderRead, StageComputeShader},
	rhi.AccessShadingRateSource:               {LayoutGeneral, AccessShaderRead, StageFragmentShader},
	rhi.AccessPresent:                         {LayoutPresentSrc, 0, StageBottomOfPipe},
	rhi.AccessGenericRead:                     {LayoutGeneral, AccessShaderRead | AccessTransferRead | AccessUniformRead | AccessIndexRead | AccessVertexAttributeRead, StageAllCommands},
}

func accessInfoFor(a rhi.ResourceAccess) accessInfo {
	if int(a) < len(accessInfos) {
		return accessInfos[a]
	}
	return accessInfos[rhi.AccessCommon]
}

// layoutInfo returns the access mask and stage that go with an image
// layout the backend moves an image into internally.
func layoutInfo(l ImageLayout) (AccessFlags, PipelineStage) {
	switch l {
	case LayoutUndefined:
		return 0, StageTopOfPipe
	case LayoutColorAttachmentOptimal:
		return AccessColorAttachmentRead | AccessColorAttachmentWrite, StageColorAttachmentOutput
	case LayoutDepthStencilAttachmentOptimal:
		return AccessDepthStencilAttachmentRead | AccessDepthStencilAttachmentWrite, StageEarlyFragmentTests | StageLateFragmentTests
	case LayoutDepthStencilReadOnlyOptimal:
		return AccessDepthStencilAttachmentRead | AccessShaderRead, StageEarlyFragmentTests | StageFragmentShader
	case LayoutShaderReadOnlyOptimal:
		return AccessShaderRead, StageVertexShader | StageFragmentShader | StageComputeShader
	case LayoutTransferSrcOptimal:
		return AccessTransferRead, StageTransfer
	case LayoutTransferDstOptimal:
		return AccessTransferWrite, StageTransfer
	case LayoutPresentSrc:
		return 0, StageBottomOfPipe
	default:
		return AccessMemoryRead | AccessMemoryWrite, StageAllCommands
	}
}
