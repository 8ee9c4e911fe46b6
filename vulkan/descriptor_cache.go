package vulkan

import (
	"errors"
	"fmt"
)

// WholeSize is VK_WHOLE_SIZE.
const WholeSize = ^uint64(0)

// ResourceBinding is the content of one descriptor slot. Texture slots use
// View and Layout, buffer slots Buffer, Offset and Range, sampler slots
// Sampler. The zero value means unset.
type ResourceBinding struct {
	View   ImageView
	Layout ImageLayout

	Buffer Buffer
	Offset uint64
	Range  uint64

	Sampler Sampler
}

// DefaultDescriptors are written to slots a set layout declares but the
// caller never set. With Null set, buffer and image slots get null
// descriptors; samplers always get Sampler.
type DefaultDescriptors struct {
	Null bool

	Buffer      Buffer
	BufferRange uint64
	SampledView ImageView
	StorageView ImageView
	Sampler     Sampler
}

type pendingPool struct {
	pool   DescriptorPool
	serial uint64
}

// DescriptorSetCache allocates descriptor sets from a rotating set of
// pools. Sets are never freed one by one: when the active pool runs out it
// is retired to the pending list, tagged with the serial of the submission
// being recorded, and reset as a whole once that serial completes.
//
// DescriptorSetCache is used from the recording goroutine only.
type DescriptorSetCache struct {
	drv      Driver
	maxSets  uint32
	sizes    []PoolSize
	defaults DefaultDescriptors

	serial    uint64
	active    DescriptorPool
	pending   []pendingPool
	available []DescriptorPool

	writes []DescriptorWrite
}

// NewDescriptorSetCache creates a cache whose pools hold maxSets sets and
// sizes descriptors each. No pool is created until the first allocation.
func NewDescriptorSetCache(drv Driver, maxSets uint32, sizes []PoolSize, defaults DefaultDescriptors) *DescriptorSetCache {
	return &DescriptorSetCache{
		drv:      drv,
		maxSets:  maxSets,
		sizes:    append([]PoolSize(nil), sizes...),
		defaults: defaults,
	}
}

// SetSerial sets the serial of the submission being recorded. Pools
// retired from now on are tagged with it.
func (c *DescriptorSetCache) SetSerial(serial uint64) {
	c.serial = serial
}

// AllocateDescriptorSet allocates a set with the given layout. When the
// active pool is exhausted it switches to a fresh pool and retries once.
func (c *DescriptorSetCache) AllocateDescriptorSet(layout DescriptorSetLayout) (DescriptorSet, error) {
	if c.active == 0 {
		if err := c.nextPool(); err != nil {
			return 0, err
		}
	}

	set, err := c.drv.AllocateDescriptorSet(c.active, layout)
	if err == nil {
		return set, nil
	}
	if !errors.Is(err, ErrOutOfPoolMemory) && !errors.Is(err, ErrFragmentedPool) {
		slogger().Error("vulkan: descriptor set allocation failed", "err", err)
		return 0, fmt.Errorf("%w: %w", ErrDescriptorAllocation, err)
	}

	c.pending = append(c.pending, pendingPool{pool: c.active, serial: c.serial})
	c.active = 0
	if err := c.nextPool(); err != nil {
		return 0, err
	}

	set, err = c.drv.AllocateDescriptorSet(c.active, layout)
	if err != nil {
		slogger().Error("vulkan: descriptor set allocation failed after pool switch", "err", err)
		return 0, fmt.Errorf("%w: %w", ErrDescriptorAllocation, err)
	}
	return set, nil
}

// nextPool makes an available pool, or a new one, active.
func (c *DescriptorSetCache) nextPool() error {
	if n := len(c.available); n > 0 {
		c.active = c.available[n-1]
		c.available = c.available[:n-1]
		return nil
	}
	p, err := c.drv.CreateDescriptorPool(c.maxSets, c.sizes)
	if err != nil {
		slogger().Error("vulkan: create descriptor pool failed", "err", err)
		return fmt.Errorf("%w: create pool: %w", ErrDescriptorAllocation, err)
	}
	slogger().Debug("vulkan: descriptor pool created", "maxSets", c.maxSets, "pending", len(c.pending))
	c.active = p
	return nil
}

// SetConstantBuffers queues writes for every constant buffer slot the
// layout declares.
func (c *DescriptorSetCache) SetConstantBuffers(set DescriptorSet, layout *SetLayout, slots []ResourceBinding) {
	for _, i := range layout.ConstantBuffers {
		c.writeBuffer(set, constantBufferBase+i, DescriptorTypeUniformBuffer, slotAt(slots, i))
	}
}

// SetSRVs queues writes for every texture and buffer SRV slot the layout
// declares.
func (c *DescriptorSetCache) SetSRVs(set DescriptorSet, layout *SetLayout, slots []ResourceBinding) {
	for _, i := range layout.TextureSRVs {
		c.writeImage(set, shaderResourceBase+i, DescriptorTypeSampledImage, slotAt(slots, i), c.defaults.SampledView)
	}
	for _, i := range layout.BufferSRVs {
		c.writeBuffer(set, shaderResourceBase+i, DescriptorTypeStorageBuffer, slotAt(slots, i))
	}
}

// SetUAVs queues writes for every texture and buffer UAV slot the layout
// declares.
func (c *DescriptorSetCache) SetUAVs(set DescriptorSet, layout *SetLayout, slots []ResourceBinding) {
	for _, i := range layout.TextureUAVs {
		c.writeImage(set, unorderedAccessBase+i, DescriptorTypeStorageImage, slotAt(slots, i), c.defaults.StorageView)
	}
	for _, i := range layout.BufferUAVs {
		c.writeBuffer(set, unorderedAccessBase+i, DescriptorTypeStorageBuffer, slotAt(slots, i))
	}
}

// SetSamplers queues writes for every sampler slot the layout declares.
func (c *DescriptorSetCache) SetSamplers(set DescriptorSet, layout *SetLayout, slots []ResourceBinding) {
	for _, i := range layout.Samplers {
		s := slotAt(slots, i).Sampler
		if s == 0 {
			s = c.defaults.Sampler
		}
		c.writes = append(c.writes, DescriptorWrite{
			Set:     set,
			Binding: samplerBase + i,
			Type:    DescriptorTypeSampler,
			Sampler: s,
		})
	}
}

func slotAt(slots []ResourceBinding, i uint32) ResourceBinding {
	if int(i) < len(slots) {
		return slots[i]
	}
	return ResourceBinding{}
}

func (c *DescriptorSetCache) writeBuffer(set DescriptorSet, binding uint32, t DescriptorType, b ResourceBinding) {
	w := DescriptorWrite{Set: set, Binding: binding, Type: t, Buffer: b.Buffer, Offset: b.Offset, Range: b.Range}
	if b.Buffer == 0 {
		w.Offset = 0
		w.Range = WholeSize
		if !c.defaults.Null {
			w.Buffer = c.defaults.Buffer
			w.Range = c.defaults.BufferRange
		}
	}
	if w.Range == 0 {
		w.Range = WholeSize
	}
	c.writes = append(c.writes, w)
}

func (c *DescriptorSetCache) writeImage(set DescriptorSet, binding uint32, t DescriptorType, b ResourceBinding, fallback ImageView) {
	w := DescriptorWrite{Set: set, Binding: binding, Type: t, ImageView: b.View, Layout: b.Layout}
	if b.View == 0 {
		w.Layout = LayoutGeneral
		if !c.defaults.Null {
			w.ImageView = fallback
		}
	}
	c.writes = append(c.writes, w)
}

// Commit issues the queued writes with a single UpdateDescriptorSets call.
func (c *DescriptorSetCache) Commit() {
	if len(c.writes) == 0 {
		return
	}
	c.drv.UpdateDescriptorSets(c.writes)
	clear(c.writes)
	c.writes = c.writes[:0]
}

// BindDescriptorSet binds set at setIndex of layout.
func (c *DescriptorSetCache) BindDescriptorSet(cb CommandBuffer, bp PipelineBindPoint, layout PipelineLayout, setIndex uint32, set DescriptorSet) {
	c.drv.CmdBindDescriptorSets(cb, bp, layout, setIndex, []DescriptorSet{set})
}

// ResetPendingDescriptorPools resets every pending pool retired at or
// before completed and makes it available again.
func (c *DescriptorSetCache) ResetPendingDescriptorPools(completed uint64) error {
	var errs []error
	kept := c.pending[:0]
	for _, p := range c.pending {
		if p.serial > completed {
			kept = append(kept, p)
			continue
		}
		if err := c.drv.ResetDescriptorPool(p.pool); err != nil {
			errs = append(errs, fmt.Errorf("vulkan: reset descriptor pool: %w", err))
			c.drv.DestroyDescriptorPool(p.pool)
			continue
		}
		c.available = append(c.available, p.pool)
	}
	clear(c.pending[len(kept):])
	c.pending = kept
	return errors.Join(errs...)
}

// PoolCounts returns the number of active (0 or 1), pending and available
// pools.
func (c *DescriptorSetCache) PoolCounts() (active, pending, available int) {
	if c.active != 0 {
		active = 1
	}
	return active, len(c.pending), len(c.available)
}

// Release destroys every pool. The GPU must be idle.
func (c *DescriptorSetCache) Release() {
	if c.active != 0 {
		c.drv.DestroyDescriptorPool(c.active)
		c.active = 0
	}
	for _, p := range c.pending {
		c.drv.DestroyDescriptorPool(p.pool)
	}
	for _, p := range c.available {
		c.drv.DestroyDescriptorPool(p)
	}
	c.pending = nil
	c.available = nil
	c.writes = nil
}
