package vulkan

import (
	"errors"
	"time"

	"github.com/gogpu/gputypes"
)

// Driver object handles. Zero is VK_NULL_HANDLE for every kind.
type (
	Buffer              uint64
	Image               uint64
	ImageView           uint64
	Sampler             uint64
	ShaderModule        uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	PipelineLayout      uint64
	Pipeline            uint64
	RenderPass          uint64
	Framebuffer         uint64
	CommandBuffer       uint64
	Fence               uint64
	QueryPool           uint64
)

// Driver errors. Implementations return these (possibly wrapped) so the
// backend can react to them.
var (
	// ErrOutOfPoolMemory is VK_ERROR_OUT_OF_POOL_MEMORY.
	ErrOutOfPoolMemory = errors.New("vulkan: out of descriptor pool memory")

	// ErrFragmentedPool is VK_ERROR_FRAGMENTED_POOL.
	ErrFragmentedPool = errors.New("vulkan: descriptor pool fragmented")

	// ErrTimeout is VK_TIMEOUT from a fence wait.
	ErrTimeout = errors.New("vulkan: wait timed out")
)

// Properties describes the physical device behind a Driver.
type Properties struct {
	DeviceName string

	// NullDescriptor reports support for VK_EXT_robustness2 nullDescriptor,
	// which allows VK_NULL_HANDLE in descriptor writes.
	NullDescriptor bool

	// TimestampPeriod is the number of nanoseconds per timestamp tick.
	TimestampPeriod float32
}

// The enumerations below carry the numeric values of the Vulkan enumerants
// they mirror, so a Driver converts them with a plain cast.

// ImageLayout is VkImageLayout.
type ImageLayout uint32

const (
	LayoutUndefined                     ImageLayout = 0
	LayoutGeneral                       ImageLayout = 1
	LayoutColorAttachmentOptimal        ImageLayout = 2
	LayoutDepthStencilAttachmentOptimal ImageLayout = 3
	LayoutDepthStencilReadOnlyOptimal   ImageLayout = 4
	LayoutShaderReadOnlyOptimal         ImageLayout = 5
	LayoutTransferSrcOptimal            ImageLayout = 6
	LayoutTransferDstOptimal            ImageLayout = 7
	LayoutPresentSrc                    ImageLayout = 1000001002
)

// AccessFlags is VkAccessFlags.
type AccessFlags uint32

const (
	AccessIndirectCommandRead AccessFlags = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessInputAttachmentRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessMemoryRead
	AccessMemoryWrite
)

// PipelineStage is VkPipelineStageFlags.
type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageTessellationControlShader
	StageTessellationEvaluationShader
	StageGeometryShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
	StageHost
	StageAllGraphics
	StageAllCommands
)

// ShaderStageFlags is VkShaderStageFlags.
type ShaderStageFlags uint32

const (
	ShaderStageVertex                 ShaderStageFlags = 0x01
	ShaderStageTessellationControl    ShaderStageFlags = 0x02
	ShaderStageTessellationEvaluation ShaderStageFlags = 0x04
	ShaderStageGeometry               ShaderStageFlags = 0x08
	ShaderStageFragment               ShaderStageFlags = 0x10
	ShaderStageCompute                ShaderStageFlags = 0x20
	ShaderStageAll                    ShaderStageFlags = 0x7FFFFFFF
)

// BufferUsage is VkBufferUsageFlags.
type BufferUsage uint32

const (
	BufferUsageTransferSrc        BufferUsage = 0x001
	BufferUsageTransferDst        BufferUsage = 0x002
	BufferUsageUniformTexelBuffer BufferUsage = 0x004
	BufferUsageStorageTexelBuffer BufferUsage = 0x008
	BufferUsageUniformBuffer      BufferUsage = 0x010
	BufferUsageStorageBuffer      BufferUsage = 0x020
	BufferUsageIndexBuffer        BufferUsage = 0x040
	BufferUsageVertexBuffer       BufferUsage = 0x080
	BufferUsageIndirectBuffer     BufferUsage = 0x100
)

// ImageUsage is VkImageUsageFlags.
type ImageUsage uint32

const (
	ImageUsageTransferSrc            ImageUsage = 0x01
	ImageUsageTransferDst            ImageUsage = 0x02
	ImageUsageSampled                ImageUsage = 0x04
	ImageUsageStorage                ImageUsage = 0x08
	ImageUsageColorAttachment        ImageUsage = 0x10
	ImageUsageDepthStencilAttachment ImageUsage = 0x20
)

// ImageAspect is VkImageAspectFlags.
type ImageAspect uint32

const (
	AspectColor   ImageAspect = 0x1
	AspectDepth   ImageAspect = 0x2
	AspectStencil ImageAspect = 0x4
)

// DescriptorType is VkDescriptorType.
type DescriptorType uint32

const (
	DescriptorTypeSampler       DescriptorType = 0
	DescriptorTypeSampledImage  DescriptorType = 2
	DescriptorTypeStorageImage  DescriptorType = 3
	DescriptorTypeUniformBuffer DescriptorType = 6
	DescriptorTypeStorageBuffer DescriptorType = 7
)

// PipelineBindPoint is VkPipelineBindPoint.
type PipelineBindPoint uint32

const (
	BindPointGraphics PipelineBindPoint = 0
	BindPointCompute  PipelineBindPoint = 1
)

// IndexType is VkIndexType.
type IndexType uint32

const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

// BufferInfo describes a buffer and its backing memory.
type BufferInfo struct {
	Size  uint64
	Usage BufferUsage

	// HostVisible selects host-visible, coherent memory that can be written
	// with Driver.WriteBuffer. Otherwise the memory is device-local.
	HostVisible bool
}

// ImageInfo describes an image and its device-local memory.
type ImageInfo struct {
	Format      gputypes.TextureFormat
	Width       uint32
	Height      uint32
	Depth       uint32 // 1 for 2D images
	MipLevels   uint32
	ArrayLayers uint32
	Samples     uint32
	Usage       ImageUsage
	Cube        bool
}

// SubresourceRange is VkImageSubresourceRange.
type SubresourceRange struct {
	Aspect     ImageAspect
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// ImageViewInfo describes an image view.
type ImageViewInfo struct {
	Image  Image
	Format gputypes.TextureFormat
	Range  SubresourceRange
	Array  bool
	Cube   bool
}

// SamplerInfo describes a sampler in driver terms.
type SamplerInfo struct {
	MagLinear, MinLinear, MipLinear bool
	AddressU, AddressV, AddressW    AddressMode
	MipLODBias                      float32
	MaxAnisotropy                   float32 // 0 disables anisotropy
	Compare                         CompareOp
	CompareEnable                   bool
	MinLOD, MaxLOD                  float32
}

// AddressMode is VkSamplerAddressMode.
type AddressMode uint32

const (
	AddressModeRepeat         AddressMode = 0
	AddressModeMirroredRepeat AddressMode = 1
	AddressModeClampToEdge    AddressMode = 2
	AddressModeClampToBorder  AddressMode = 3
)

// CompareOp is VkCompareOp.
type CompareOp uint32

const (
	CompareOpNever CompareOp = iota
	CompareOpLess
	CompareOpEqual
	CompareOpLessOrEqual
	CompareOpGreater
	CompareOpNotEqual
	CompareOpGreaterOrEqual
	CompareOpAlways
)

// LayoutBinding is one binding of a descriptor set layout.
type LayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Stages  ShaderStageFlags
}

// PoolSize is VkDescriptorPoolSize.
type PoolSize struct {
	Type  DescriptorType
	Count uint32
}

// DescriptorWrite updates one binding of a descriptor set. Buffer fields
// apply to buffer descriptor types, ImageView and Layout to image types and
// Sampler to samplers. A zero handle writes a null descriptor.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType

	Buffer Buffer
	Offset uint64
	Range  uint64

	ImageView ImageView
	Layout    ImageLayout

	Sampler Sampler
}

// VertexAttribute is one vertex input attribute.
type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   gputypes.VertexFormat
	Offset   uint32
}

// VertexBinding is one vertex input binding.
type VertexBinding struct {
	Binding     uint32
	Stride      uint32
	PerInstance bool
}

// ShaderStageInfo is one programmable stage of a pipeline.
type ShaderStageInfo struct {
	Stage      ShaderStageFlags
	Module     ShaderModule
	EntryPoint string
}

// ColorBlendInfo is the blend state of one color attachment.
type ColorBlendInfo struct {
	Enable        bool
	Premultiplied bool
}

// GraphicsPipelineInfo describes a graphics pipeline. Viewport, scissor and
// blend constants are always dynamic state.
type GraphicsPipelineInfo struct {
	Layout     PipelineLayout
	RenderPass RenderPass
	Stages     []ShaderStageInfo
	Bindings   []VertexBinding
	Attributes []VertexAttribute
	Topology   Topology

	CullMode              CullMode
	FrontCounterClockwise bool
	Wireframe             bool
	DepthClamp            bool

	DepthTest    bool
	DepthWrite   bool
	DepthCompare CompareOp

	Blend   []ColorBlendInfo // one per color attachment
	Samples uint32
}

// Topology is VkPrimitiveTopology.
type Topology uint32

const (
	TopologyPointList     Topology = 0
	TopologyLineList      Topology = 1
	TopologyLineStrip     Topology = 2
	TopologyTriangleList  Topology = 3
	TopologyTriangleStrip Topology = 4
)

// CullMode is VkCullModeFlags.
type CullMode uint32

const (
	CullModeNone  CullMode = 0
	CullModeFront CullMode = 1
	CullModeBack  CullMode = 2
)

// ComputePipelineInfo describes a compute pipeline.
type ComputePipelineInfo struct {
	Layout PipelineLayout
	Stage  ShaderStageInfo
}

// AttachmentInfo describes one render pass attachment. The attachment stays
// in Layout for the whole pass.
type AttachmentInfo struct {
	Format  gputypes.TextureFormat
	Samples uint32
	Load    LoadOp
	Store   StoreOp
	Layout  ImageLayout
}

// LoadOp is VkAttachmentLoadOp.
type LoadOp uint32

const (
	LoadOpLoad     LoadOp = 0
	LoadOpClear    LoadOp = 1
	LoadOpDontCare LoadOp = 2
)

// StoreOp is VkAttachmentStoreOp.
type StoreOp uint32

const (
	StoreOpStore    StoreOp = 0
	StoreOpDontCare StoreOp = 1
)

// RenderPassInfo describes a single-subpass render pass.
type RenderPassInfo struct {
	Colors       []AttachmentInfo
	DepthStencil *AttachmentInfo
}

// FramebufferInfo describes a framebuffer.
type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Width       uint32
	Height      uint32
	Layers      uint32
}

// Viewport is VkViewport.
type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

// Rect2D is VkRect2D.
type Rect2D struct {
	X, Y          int32
	Width, Height uint32
}

// BufferBarrier is VkBufferMemoryBarrier.
type BufferBarrier struct {
	Buffer    Buffer
	SrcAccess AccessFlags
	DstAccess AccessFlags
	Offset    uint64
	Size      uint64 // 0 means the whole buffer
}

// ImageBarrier is VkImageMemoryBarrier.
type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess AccessFlags
	DstAccess AccessFlags
	Range     SubresourceRange
}

// BufferCopy is VkBufferCopy.
type BufferCopy struct {
	SrcOffset, DstOffset, Size uint64
}

// ImageSubresource is VkImageSubresourceLayers plus an offset.
type ImageSubresource struct {
	Aspect     ImageAspect
	MipLevel   uint32
	BaseLayer  uint32
	LayerCount uint32
	X, Y, Z    int32
}

// BufferImageCopy is VkBufferImageCopy with tightly packed rows.
type BufferImageCopy struct {
	BufferOffset uint64
	Image        ImageSubresource
	Width        uint32
	Height       uint32
	Depth        uint32
}

// ImageCopy is VkImageCopy (also used for resolves).
type ImageCopy struct {
	Src                  ImageSubresource
	Dst                  ImageSubresource
	Width, Height, Depth uint32
}

// ImageBlit is VkImageBlit with a linear filter.
type ImageBlit struct {
	Src, Dst            ImageSubresource
	SrcWidth, SrcHeight uint32
	DstWidth, DstHeight uint32
}

// Driver is the boundary between the backend and the Vulkan API. Every
// call the backend makes to the GPU goes through it; the vkdriver package
// implements it over the C API and tests use an in-memory fake.
//
// Object creation and destruction are safe for concurrent use. Cmd* calls
// on one command buffer must be serialized by the caller.
type Driver interface {
	Properties() Properties

	CreateBuffer(info BufferInfo) (Buffer, error)
	DestroyBuffer(b Buffer)
	// WriteBuffer copies data into a host-visible buffer.
	WriteBuffer(b Buffer, offset uint64, data []byte) error

	CreateImage(info ImageInfo) (Image, error)
	DestroyImage(img Image)
	CreateImageView(info ImageViewInfo) (ImageView, error)
	DestroyImageView(v ImageView)
	CreateSampler(info SamplerInfo) (Sampler, error)
	DestroySampler(s Sampler)
	CreateShaderModule(spirv []uint32) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)

	CreateDescriptorSetLayout(bindings []LayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreatePipelineLayout(sets []DescriptorSetLayout, pushConstantBytes uint32) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)
	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)
	CreateComputePipeline(info ComputePipelineInfo) (Pipeline, error)
	DestroyPipeline(p Pipeline)
	CreateRenderPass(info RenderPassInfo) (RenderPass, error)
	DestroyRenderPass(p RenderPass)
	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	CreateDescriptorPool(maxSets uint32, sizes []PoolSize) (DescriptorPool, error)
	ResetDescriptorPool(p DescriptorPool) error
	DestroyDescriptorPool(p DescriptorPool)
	// AllocateDescriptorSet returns ErrOutOfPoolMemory or ErrFragmentedPool
	// when p cannot satisfy the request.
	AllocateDescriptorSet(p DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorWrite)

	CreateQueryPool(count uint32) (QueryPool, error)
	DestroyQueryPool(p QueryPool)
	// QueryResults waits for and returns count 64-bit timestamps.
	QueryResults(p QueryPool, first, count uint32) ([]uint64, error)

	AllocateCommandBuffer() (CommandBuffer, error)
	FreeCommandBuffer(cb CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer) error
	EndCommandBuffer(cb CommandBuffer) error
	// Submit submits cb to the queue; fence is signaled on completion.
	Submit(cb CommandBuffer, fence Fence) error

	CreateFence(signaled bool) (Fence, error)
	// WaitForFence returns ErrTimeout if f is not signaled within timeout.
	WaitForFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error
	DestroyFence(f Fence)

	WaitIdle() error
	// Destroy destroys the device and everything the driver still owns.
	Destroy()

	CmdBindPipeline(cb CommandBuffer, bindPoint PipelineBindPoint, p Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, bindPoint PipelineBindPoint, layout PipelineLayout, firstSet uint32, sets []DescriptorSet)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, values []uint32)
	CmdBindVertexBuffers(cb CommandBuffer, firstBinding uint32, buffers []Buffer, offsets []uint64)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, offset uint64, indexType IndexType)
	CmdSetViewports(cb CommandBuffer, viewports []Viewport)
	CmdSetScissors(cb CommandBuffer, rects []Rect2D)
	CmdSetBlendConstants(cb CommandBuffer, constants [4]float32)

	CmdBeginRenderPass(cb CommandBuffer, pass RenderPass, fb Framebuffer, area Rect2D)
	CmdEndRenderPass(cb CommandBuffer)

	CmdDraw(cb CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdDispatch(cb CommandBuffer, x, y, z uint32)

	CmdPipelineBarrier(cb CommandBuffer, src, dst PipelineStage, buffers []BufferBarrier, images []ImageBarrier)
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, regions []BufferCopy)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, region BufferImageCopy)
	CmdCopyImage(cb CommandBuffer, src, dst Image, region ImageCopy)
	CmdResolveImage(cb CommandBuffer, src, dst Image, region ImageCopy)
	CmdBlitImage(cb CommandBuffer, src, dst Image, region ImageBlit)
	CmdClearColorImage(cb CommandBuffer, img Image, layout ImageLayout, color [4]float32, r SubresourceRange)
	CmdClearDepthStencilImage(cb CommandBuffer, img Image, depth float32, stencil uint32, r SubresourceRange)
	CmdFillBuffer(cb CommandBuffer, b Buffer, offset, size uint64, value uint32)

	CmdResetQueryPool(cb CommandBuffer, p QueryPool, first, count uint32)
	CmdWriteTimestamp(cb CommandBuffer, stage PipelineStage, p QueryPool, query uint32)
}
