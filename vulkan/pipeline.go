package vulkan

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/cache"
)

// Binding number bases within a stage's descriptor set.
const (
	constantBufferBase  = 0
	shaderResourceBase  = 16
	unorderedAccessBase = 32
	samplerBase         = 48
)

// bindingFor returns the binding number and descriptor type of a shader
// binding.
func bindingFor(b rhi.ShaderBinding) (uint32, DescriptorType) {
	switch b.Type {
	case rhi.BindingConstantBuffer:
		return constantBufferBase + b.Index, DescriptorTypeUniformBuffer
	case rhi.BindingTextureSRV:
		return shaderResourceBase + b.Index, DescriptorTypeSampledImage
	case rhi.BindingBufferSRV:
		return shaderResourceBase + b.Index, DescriptorTypeStorageBuffer
	case rhi.BindingTextureUAV:
		return unorderedAccessBase + b.Index, DescriptorTypeStorageImage
	case rhi.BindingBufferUAV:
		return unorderedAccessBase + b.Index, DescriptorTypeStorageBuffer
	default:
		return samplerBase + b.Index, DescriptorTypeSampler
	}
}

// validateBindings rejects out-of-range slots and slots declared twice.
func validateBindings(desc *rhi.ShaderDesc) error {
	seen := make(map[uint32]rhi.BindingType, len(desc.Bindings))
	for _, b := range desc.Bindings {
		if b.Index >= rhi.MaxBindingsPerType {
			return fmt.Errorf("%w: shader %q %s slot %d out of range", rhi.ErrInvalidDesc, desc.Label, b.Type, b.Index)
		}
		n, _ := bindingFor(b)
		if prev, dup := seen[n]; dup {
			return fmt.Errorf("%w: shader %q slot %d declared as %s and %s", rhi.ErrInvalidDesc, desc.Label, b.Index, prev, b.Type)
		}
		seen[n] = b.Type
	}
	return nil
}

func shaderStageFlags(s rhi.ShaderStage) ShaderStageFlags {
	switch s {
	case rhi.StageVertex:
		return ShaderStageVertex
	case rhi.StageHull:
		return ShaderStageTessellationControl
	case rhi.StageDomain:
		return ShaderStageTessellationEvaluation
	case rhi.StageGeometry:
		return ShaderStageGeometry
	case rhi.StagePixel:
		return ShaderStageFragment
	default:
		return ShaderStageCompute
	}
}

// SetLayout is the descriptor set layout of one shader stage together with
// the slots it declares, per slot kind.
type SetLayout struct {
	Handle DescriptorSetLayout
	Index  uint32 // set number in the pipeline layout

	ConstantBuffers []uint32
	TextureSRVs     []uint32
	BufferSRVs      []uint32
	TextureUAVs     []uint32
	BufferUAVs      []uint32
	Samplers        []uint32
}

// Empty reports whether the stage declares no bindings.
func (l *SetLayout) Empty() bool {
	return len(l.ConstantBuffers)+len(l.TextureSRVs)+len(l.BufferSRVs)+
		len(l.TextureUAVs)+len(l.BufferUAVs)+len(l.Samplers) == 0
}

func newSetLayout(bindings []rhi.ShaderBinding) SetLayout {
	var l SetLayout
	for _, b := range bindings {
		switch b.Type {
		case rhi.BindingConstantBuffer:
			l.ConstantBuffers = append(l.ConstantBuffers, b.Index)
		case rhi.BindingTextureSRV:
			l.TextureSRVs = append(l.TextureSRVs, b.Index)
		case rhi.BindingBufferSRV:
			l.BufferSRVs = append(l.BufferSRVs, b.Index)
		case rhi.BindingTextureUAV:
			l.TextureUAVs = append(l.TextureUAVs, b.Index)
		case rhi.BindingBufferUAV:
			l.BufferUAVs = append(l.BufferUAVs, b.Index)
		case rhi.BindingSampler:
			l.Samplers = append(l.Samplers, b.Index)
		}
	}
	for _, s := range [][]uint32{l.ConstantBuffers, l.TextureSRVs, l.BufferSRVs, l.TextureUAVs, l.BufferUAVs, l.Samplers} {
		slices.Sort(s)
	}
	return l
}

// pipelineLayout is a VkPipelineLayout plus the per-stage set layouts.
// Graphics layouts use sets[Vertex..Pixel]; compute layouts use
// sets[Compute] with set number 0. A stage whose SetLayout is empty has no
// descriptor set bound.
type pipelineLayout struct {
	handle           PipelineLayout
	bindPoint        PipelineBindPoint
	sets             [rhi.NumGraphicsStages]SetLayout
	numPushConstants uint32
}

// layoutCache deduplicates descriptor set layouts and pipeline layouts.
// Both live until the device is closed.
type layoutCache struct {
	drv        Driver
	empty      DescriptorSetLayout
	setLayouts *cache.Cache[string, DescriptorSetLayout]
	layouts    *cache.Cache[string, *pipelineLayout]
}

func newLayoutCache(drv Driver) (*layoutCache, error) {
	empty, err := drv.CreateDescriptorSetLayout(nil)
	if err != nil {
		return nil, fmt.Errorf("vulkan: create empty set layout: %w", err)
	}
	return &layoutCache{
		drv:        drv,
		empty:      empty,
		setLayouts: cache.New[string, DescriptorSetLayout](),
		layouts:    cache.New[string, *pipelineLayout](),
	}, nil
}

// graphics returns the layout for a vertex shader and an optional pixel
// shader.
func (c *layoutCache) graphics(vs, ps *shader) (*pipelineLayout, error) {
	var stages [rhi.NumGraphicsStages]*shader
	stages[rhi.StageVertex] = vs
	stages[rhi.StagePixel] = ps
	return c.get(BindPointGraphics, stages[:], rhi.StageVertex, rhi.StagePixel)
}

func (c *layoutCache) compute(cs *shader) (*pipelineLayout, error) {
	var stages [rhi.NumGraphicsStages]*shader
	stages[rhi.StageCompute] = cs
	return c.get(BindPointCompute, stages[:], rhi.StageCompute, rhi.StageCompute)
}

func (c *layoutCache) get(bp PipelineBindPoint, stages []*shader, first, last rhi.ShaderStage) (*pipelineLayout, error) {
	key := layoutKey(bp, stages, first, last)
	return c.layouts.GetOrCreate(key, func() (*pipelineLayout, error) {
		return c.create(bp, stages, first, last)
	})
}

func (c *layoutCache) create(bp PipelineBindPoint, stages []*shader, first, last rhi.ShaderStage) (*pipelineLayout, error) {
	pl := &pipelineLayout{bindPoint: bp}
	handles := make([]DescriptorSetLayout, 0, int(last-first)+1)

	for stage := first; stage <= last; stage++ {
		sh := stages[stage]
		if sh == nil || len(sh.desc.Bindings) == 0 {
			pl.sets[stage].Index = uint32(stage - first)
			handles = append(handles, c.empty)
			continue
		}
		sl := newSetLayout(sh.desc.Bindings)
		sl.Index = uint32(stage - first)
		h, err := c.setLayout(sh.desc.Bindings, shaderStageFlags(stage))
		if err != nil {
			return nil, err
		}
		sl.Handle = h
		pl.sets[stage] = sl
		handles = append(handles, h)
		pl.numPushConstants = max(pl.numPushConstants, min(sh.desc.NumConstants, rhi.MaxPushConstants))
	}

	h, err := c.drv.CreatePipelineLayout(handles, pl.numPushConstants*4)
	if err != nil {
		return nil, fmt.Errorf("vulkan: create pipeline layout: %w", err)
	}
	pl.handle = h
	slogger().Debug("vulkan: pipeline layout created", "sets", len(handles), "constants", pl.numPushConstants)
	return pl, nil
}

func (c *layoutCache) setLayout(bindings []rhi.ShaderBinding, stages ShaderStageFlags) (DescriptorSetLayout, error) {
	lbs := make([]LayoutBinding, 0, len(bindings))
	for _, b := range bindings {
		n, t := bindingFor(b)
		lbs = append(lbs, LayoutBinding{Binding: n, Type: t, Stages: stages})
	}
	slices.SortFunc(lbs, func(a, b LayoutBinding) int { return int(a.Binding) - int(b.Binding) })

	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(uint64(stages), 16))
	for _, lb := range lbs {
		sb.WriteByte('|')
		sb.WriteString(strconv.Itoa(int(lb.Binding)))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(int(lb.Type)))
	}
	return c.setLayouts.GetOrCreate(sb.String(), func() (DescriptorSetLayout, error) {
		h, err := c.drv.CreateDescriptorSetLayout(lbs)
		if err != nil {
			return 0, fmt.Errorf("vulkan: create descriptor set layout: %w", err)
		}
		return h, nil
	})
}

func layoutKey(bp PipelineBindPoint, stages []*shader, first, last rhi.ShaderStage) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(bp)))
	var constants uint32
	for stage := first; stage <= last; stage++ {
		sb.WriteByte('/')
		sh := stages[stage]
		if sh == nil {
			continue
		}
		constants = max(constants, min(sh.desc.NumConstants, rhi.MaxPushConstants))
		bs := slices.Clone(sh.desc.Bindings)
		slices.SortFunc(bs, func(a, b rhi.ShaderBinding) int {
			na, _ := bindingFor(a)
			nb, _ := bindingFor(b)
			return int(na) - int(nb)
		})
		for _, b := range bs {
			n, t := bindingFor(b)
			sb.WriteString(strconv.Itoa(int(n)))
			sb.WriteByte(':')
			sb.WriteString(strconv.Itoa(int(t)))
			sb.WriteByte(',')
		}
	}
	sb.WriteString("/pc")
	sb.WriteString(strconv.Itoa(int(constants)))
	return sb.String()
}

func (c *layoutCache) release() {
	for _, pl := range c.layouts.Drain() {
		c.drv.DestroyPipelineLayout(pl.handle)
	}
	for _, h := range c.setLayouts.Drain() {
		c.drv.DestroyDescriptorSetLayout(h)
	}
	c.drv.DestroyDescriptorSetLayout(c.empty)
}

func vertexInput(elements []rhi.VertexElement) ([]VertexBinding, []VertexAttribute) {
	var bindings []VertexBinding
	attrs := make([]VertexAttribute, 0, len(elements))
	for _, e := range elements {
		attrs = append(attrs, VertexAttribute{
			Location: e.Location,
			Binding:  e.Slot,
			Format:   e.Format,
			Offset:   e.Offset,
		})
		if !slices.ContainsFunc(bindings, func(b VertexBinding) bool { return b.Binding == e.Slot }) {
			bindings = append(bindings, VertexBinding{Binding: e.Slot, Stride: e.Stride, PerInstance: e.PerInstance})
		}
	}
	return bindings, attrs
}

func topologyOf(t rhi.PrimitiveTopology) Topology {
	switch t {
	case rhi.TopologyPointList:
		return TopologyPointList
	case rhi.TopologyLineList:
		return TopologyLineList
	case rhi.TopologyLineStrip:
		return TopologyLineStrip
	case rhi.TopologyTriangleStrip:
		return TopologyTriangleStrip
	default:
		return TopologyTriangleList
	}
}

func cullModeOf(m rhi.CullMode) CullMode {
	switch m {
	case rhi.CullFront:
		return CullModeFront
	case rhi.CullBack:
		return CullModeBack
	default:
		return CullModeNone
	}
}

// compareOpOf relies on rhi.CompareFunc and VkCompareOp sharing their order.
func compareOpOf(f rhi.CompareFunc) CompareOp {
	return CompareOp(f)
}

func addressModeOf(m rhi.AddressMode) AddressMode {
	switch m {
	case rhi.AddressMirror:
		return AddressModeMirroredRepeat
	case rhi.AddressClamp:
		return AddressModeClampToEdge
	case rhi.AddressBorder:
		return AddressModeClampToBorder
	default:
		return AddressModeRepeat
	}
}
