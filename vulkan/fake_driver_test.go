package vulkan

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/rhi"
)

// fakeDriver is an in-memory Driver. It hands out increasing handles,
// counts every call by name and keeps the order of recorded commands.
type fakeDriver struct {
	mu sync.Mutex

	props Properties
	next  uint64
	calls map[string]int
	cmds  []string

	// poolCapacity is the number of sets a descriptor pool holds before
	// AllocateDescriptorSet fails with ErrOutOfPoolMemory. 0 is unlimited.
	poolCapacity int
	poolUsed     map[DescriptorPool]int
	// allocErr, when set, fails every descriptor set allocation.
	allocErr error

	writes     []DescriptorWrite
	vbBinds    [][]Buffer
	pushes     [][]uint32
	barriers   []fakeBarrier
	timestamps map[QueryPool][]uint64
	destroyed  bool
}

type fakeBarrier struct {
	buffers int
	images  []ImageBarrier
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		props:      Properties{DeviceName: "fake", TimestampPeriod: 1},
		calls:      make(map[string]int),
		poolUsed:   make(map[DescriptorPool]int),
		timestamps: make(map[QueryPool][]uint64),
	}
}

func (f *fakeDriver) call(name string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	f.next++
	return f.next
}

func (f *fakeDriver) cmd(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	f.cmds = append(f.cmds, name)
}

func (f *fakeDriver) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeDriver) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

func (f *fakeDriver) resetCommands() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = nil
}

func (f *fakeDriver) Properties() Properties { return f.props }

func (f *fakeDriver) CreateBuffer(BufferInfo) (Buffer, error) { return Buffer(f.call("CreateBuffer")), nil }
func (f *fakeDriver) DestroyBuffer(Buffer)                    { f.call("DestroyBuffer") }
func (f *fakeDriver) WriteBuffer(Buffer, uint64, []byte) error {
	f.call("WriteBuffer")
	return nil
}

func (f *fakeDriver) CreateImage(ImageInfo) (Image, error) { return Image(f.call("CreateImage")), nil }
func (f *fakeDriver) DestroyImage(Image)                   { f.call("DestroyImage") }
func (f *fakeDriver) CreateImageView(ImageViewInfo) (ImageView, error) {
	return ImageView(f.call("CreateImageView")), nil
}
func (f *fakeDriver) DestroyImageView(ImageView) { f.call("DestroyImageView") }
func (f *fakeDriver) CreateSampler(SamplerInfo) (Sampler, error) {
	return Sampler(f.call("CreateSampler")), nil
}
func (f *fakeDriver) DestroySampler(Sampler) { f.call("DestroySampler") }
func (f *fakeDriver) CreateShaderModule([]uint32) (ShaderModule, error) {
	return ShaderModule(f.call("CreateShaderModule")), nil
}
func (f *fakeDriver) DestroyShaderModule(ShaderModule) { f.call("DestroyShaderModule") }

func (f *fakeDriver) CreateDescriptorSetLayout([]LayoutBinding) (DescriptorSetLayout, error) {
	return DescriptorSetLayout(f.call("CreateDescriptorSetLayout")), nil
}
func (f *fakeDriver) DestroyDescriptorSetLayout(DescriptorSetLayout) {
	f.call("DestroyDescriptorSetLayout")
}
func (f *fakeDriver) CreatePipelineLayout([]DescriptorSetLayout, uint32) (PipelineLayout, error) {
	return PipelineLayout(f.call("CreatePipelineLayout")), nil
}
func (f *fakeDriver) DestroyPipelineLayout(PipelineLayout) { f.call("DestroyPipelineLayout") }
func (f *fakeDriver) CreateGraphicsPipeline(GraphicsPipelineInfo) (Pipeline, error) {
	return Pipeline(f.call("CreateGraphicsPipeline")), nil
}
func (f *fakeDriver) CreateComputePipeline(ComputePipelineInfo) (Pipeline, error) {
	return Pipeline(f.call("CreateComputePipeline")), nil
}
func (f *fakeDriver) DestroyPipeline(Pipeline) { f.call("DestroyPipeline") }
func (f *fakeDriver) CreateRenderPass(RenderPassInfo) (RenderPass, error) {
	return RenderPass(f.call("CreateRenderPass")), nil
}
func (f *fakeDriver) DestroyRenderPass(RenderPass) { f.call("DestroyRenderPass") }
func (f *fakeDriver) CreateFramebuffer(FramebufferInfo) (Framebuffer, error) {
	return Framebuffer(f.call("CreateFramebuffer")), nil
}
func (f *fakeDriver) DestroyFramebuffer(Framebuffer) { f.call("DestroyFramebuffer") }

func (f *fakeDriver) CreateDescriptorPool(uint32, []PoolSize) (DescriptorPool, error) {
	return DescriptorPool(f.call("CreateDescriptorPool")), nil
}

func (f *fakeDriver) ResetDescriptorPool(p DescriptorPool) error {
	f.call("ResetDescriptorPool")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poolUsed[p] = 0
	return nil
}

func (f *fakeDriver) DestroyDescriptorPool(DescriptorPool) { f.call("DestroyDescriptorPool") }

func (f *fakeDriver) AllocateDescriptorSet(p DescriptorPool, _ DescriptorSetLayout) (DescriptorSet, error) {
	h := f.call("AllocateDescriptorSet")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allocErr != nil {
		return 0, f.allocErr
	}
	if f.poolCapacity > 0 && f.poolUsed[p] >= f.poolCapacity {
		return 0, ErrOutOfPoolMemory
	}
	f.poolUsed[p]++
	return DescriptorSet(h), nil
}

func (f *fakeDriver) UpdateDescriptorSets(writes []DescriptorWrite) {
	f.call("UpdateDescriptorSets")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, writes...)
}

func (f *fakeDriver) CreateQueryPool(uint32) (QueryPool, error) {
	return QueryPool(f.call("CreateQueryPool")), nil
}
func (f *fakeDriver) DestroyQueryPool(QueryPool) { f.call("DestroyQueryPool") }

func (f *fakeDriver) QueryResults(p QueryPool, first, count uint32) ([]uint64, error) {
	f.call("QueryResults")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, count)
	copy(out, f.timestamps[p][first:])
	return out, nil
}

func (f *fakeDriver) AllocateCommandBuffer() (CommandBuffer, error) {
	return CommandBuffer(f.call("AllocateCommandBuffer")), nil
}
func (f *fakeDriver) FreeCommandBuffer(CommandBuffer) { f.call("FreeCommandBuffer") }
func (f *fakeDriver) BeginCommandBuffer(CommandBuffer) error {
	f.cmd("BeginCommandBuffer")
	return nil
}
func (f *fakeDriver) EndCommandBuffer(CommandBuffer) error {
	f.cmd("EndCommandBuffer")
	return nil
}
func (f *fakeDriver) Submit(CommandBuffer, Fence) error {
	f.call("Submit")
	return nil
}

func (f *fakeDriver) CreateFence(bool) (Fence, error) { return Fence(f.call("CreateFence")), nil }
func (f *fakeDriver) WaitForFence(Fence, time.Duration) error {
	f.call("WaitForFence")
	return nil
}
func (f *fakeDriver) ResetFence(Fence) error {
	f.call("ResetFence")
	return nil
}
func (f *fakeDriver) DestroyFence(Fence) { f.call("DestroyFence") }

func (f *fakeDriver) WaitIdle() error {
	f.call("WaitIdle")
	return nil
}

func (f *fakeDriver) Destroy() {
	f.call("Destroy")
	f.destroyed = true
}

func (f *fakeDriver) CmdBindPipeline(CommandBuffer, PipelineBindPoint, Pipeline) {
	f.cmd("CmdBindPipeline")
}
func (f *fakeDriver) CmdBindDescriptorSets(CommandBuffer, PipelineBindPoint, PipelineLayout, uint32, []DescriptorSet) {
	f.cmd("CmdBindDescriptorSets")
}

func (f *fakeDriver) CmdPushConstants(_ CommandBuffer, _ PipelineLayout, values []uint32) {
	f.cmd("CmdPushConstants")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, append([]uint32(nil), values...))
}

func (f *fakeDriver) CmdBindVertexBuffers(_ CommandBuffer, _ uint32, buffers []Buffer, _ []uint64) {
	f.cmd("CmdBindVertexBuffers")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vbBinds = append(f.vbBinds, append([]Buffer(nil), buffers...))
}

func (f *fakeDriver) CmdBindIndexBuffer(CommandBuffer, Buffer, uint64, IndexType) {
	f.cmd("CmdBindIndexBuffer")
}
func (f *fakeDriver) CmdSetViewports(CommandBuffer, []Viewport) { f.cmd("CmdSetViewports") }
func (f *fakeDriver) CmdSetScissors(CommandBuffer, []Rect2D)    { f.cmd("CmdSetScissors") }
func (f *fakeDriver) CmdSetBlendConstants(CommandBuffer, [4]float32) {
	f.cmd("CmdSetBlendConstants")
}
func (f *fakeDriver) CmdBeginRenderPass(CommandBuffer, RenderPass, Framebuffer, Rect2D) {
	f.cmd("CmdBeginRenderPass")
}
func (f *fakeDriver) CmdEndRenderPass(CommandBuffer) { f.cmd("CmdEndRenderPass") }
func (f *fakeDriver) CmdDraw(CommandBuffer, uint32, uint32, uint32, uint32) {
	f.cmd("CmdDraw")
}
func (f *fakeDriver) CmdDrawIndexed(CommandBuffer, uint32, uint32, uint32, int32, uint32) {
	f.cmd("CmdDrawIndexed")
}
func (f *fakeDriver) CmdDispatch(CommandBuffer, uint32, uint32, uint32) { f.cmd("CmdDispatch") }

func (f *fakeDriver) CmdPipelineBarrier(_ CommandBuffer, _, _ PipelineStage, buffers []BufferBarrier, images []ImageBarrier) {
	f.cmd("CmdPipelineBarrier")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.barriers = append(f.barriers, fakeBarrier{buffers: len(buffers), images: append([]ImageBarrier(nil), images...)})
}

func (f *fakeDriver) CmdCopyBuffer(CommandBuffer, Buffer, Buffer, []BufferCopy) {
	f.cmd("CmdCopyBuffer")
}
func (f *fakeDriver) CmdCopyBufferToImage(CommandBuffer, Buffer, Image, BufferImageCopy) {
	f.cmd("CmdCopyBufferToImage")
}
func (f *fakeDriver) CmdCopyImage(CommandBuffer, Image, Image, ImageCopy) { f.cmd("CmdCopyImage") }
func (f *fakeDriver) CmdResolveImage(CommandBuffer, Image, Image, ImageCopy) {
	f.cmd("CmdResolveImage")
}
func (f *fakeDriver) CmdBlitImage(CommandBuffer, Image, Image, ImageBlit) { f.cmd("CmdBlitImage") }
func (f *fakeDriver) CmdClearColorImage(CommandBuffer, Image, ImageLayout, [4]float32, SubresourceRange) {
	f.cmd("CmdClearColorImage")
}
func (f *fakeDriver) CmdClearDepthStencilImage(CommandBuffer, Image, float32, uint32, SubresourceRange) {
	f.cmd("CmdClearDepthStencilImage")
}
func (f *fakeDriver) CmdFillBuffer(CommandBuffer, Buffer, uint64, uint64, uint32) {
	f.cmd("CmdFillBuffer")
}
func (f *fakeDriver) CmdResetQueryPool(CommandBuffer, QueryPool, uint32, uint32) {
	f.cmd("CmdResetQueryPool")
}
func (f *fakeDriver) CmdWriteTimestamp(CommandBuffer, PipelineStage, QueryPool, uint32) {
	f.cmd("CmdWriteTimestamp")
}

var _ Driver = (*fakeDriver)(nil)

// countCmd returns how many times name appears in cmds.
func countCmd(cmds []string, name string) int {
	n := 0
	for _, c := range cmds {
		if c == name {
			n++
		}
	}
	return n
}

// captureHandler counts log records per level.
type captureHandler struct {
	mu     sync.Mutex
	counts map[slog.Level]int
	msgs   []string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler       { return h }
func (h *captureHandler) WithGroup(string) slog.Handler            { return h }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.counts == nil {
		h.counts = make(map[slog.Level]int)
	}
	h.counts[r.Level]++
	h.msgs = append(h.msgs, r.Message)
	return nil
}

func (h *captureHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[level]
}

func captureLogs(t *testing.T) *captureHandler {
	t.Helper()
	orig := rhi.Logger()
	t.Cleanup(func() { rhi.SetLogger(orig) })
	h := &captureHandler{}
	rhi.SetLogger(slog.New(h))
	return h
}

// captureBreaks counts debug breaks for the duration of the test.
func captureBreaks(t *testing.T) *int {
	t.Helper()
	n := new(int)
	rhi.SetDebugBreakHandler(func(string) { *n++ })
	t.Cleanup(func() { rhi.SetDebugBreakHandler(nil) })
	return n
}
