package vkdriver

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/rhi/vulkan"
)

// wholeSize is VK_WHOLE_SIZE.
const wholeSize = vk.DeviceSize(^uint64(0))

// poolSets tracks the descriptor sets allocated from each pool so a reset
// can drop their handles.
type poolSets struct {
	pool vk.DescriptorPool
	sets []uint64
}

// CreateDescriptorPool implements vulkan.Driver. Sets are never freed one
// by one; the backend resets whole pools.
func (d *Driver) CreateDescriptorPool(maxSets uint32, sizes []vulkan.PoolSize) (vulkan.DescriptorPool, error) {
	ps := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		ps[i] = vk.DescriptorPoolSize{Type: vk.DescriptorType(s.Type), DescriptorCount: s.Count}
	}
	var p vk.DescriptorPool
	res := vk.CreateDescriptorPool(d.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(ps)),
		PPoolSizes:    ps,
	}, nil, &p)
	if err := check("create descriptor pool", res); err != nil {
		return 0, err
	}
	return vulkan.DescriptorPool(d.descPools.put(&poolSets{pool: p})), nil
}

// ResetDescriptorPool implements vulkan.Driver.
func (d *Driver) ResetDescriptorPool(h vulkan.DescriptorPool) error {
	p := d.descPools.get(uint64(h))
	if p == nil {
		return nil
	}
	if err := check("reset descriptor pool", vk.ResetDescriptorPool(d.device, p.pool, 0)); err != nil {
		return err
	}
	for _, s := range p.sets {
		d.descSets.take(s)
	}
	p.sets = p.sets[:0]
	return nil
}

// DestroyDescriptorPool implements vulkan.Driver.
func (d *Driver) DestroyDescriptorPool(h vulkan.DescriptorPool) {
	p, ok := d.descPools.take(uint64(h))
	if !ok {
		return
	}
	for _, s := range p.sets {
		d.descSets.take(s)
	}
	vk.DestroyDescriptorPool(d.device, p.pool, nil)
}

// AllocateDescriptorSet implements vulkan.Driver.
func (d *Driver) AllocateDescriptorSet(h vulkan.DescriptorPool, layout vulkan.DescriptorSetLayout) (vulkan.DescriptorSet, error) {
	p := d.descPools.get(uint64(h))
	if p == nil {
		return 0, check("allocate descriptor set", vk.ErrorOutOfPoolMemory)
	}
	var set vk.DescriptorSet
	res := vk.AllocateDescriptorSets(d.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.setLayouts.get(uint64(layout))},
	}, &set)
	if err := check("allocate descriptor set", res); err != nil {
		return 0, err
	}
	id := d.descSets.put(set)
	p.sets = append(p.sets, id)
	return vulkan.DescriptorSet(id), nil
}

// UpdateDescriptorSets implements vulkan.Driver. Zero handles are written
// as VK_NULL_HANDLE, which is only valid with nullDescriptor enabled.
func (d *Driver) UpdateDescriptorSets(writes []vulkan.DescriptorWrite) {
	if len(writes) == 0 {
		return
	}
	out := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		vw := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          d.descSets.get(uint64(w.Set)),
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		switch w.Type {
		case vulkan.DescriptorTypeUniformBuffer, vulkan.DescriptorTypeStorageBuffer:
			info := vk.DescriptorBufferInfo{Offset: vk.DeviceSize(w.Offset), Range: wholeSize}
			if b := d.buffers.get(uint64(w.Buffer)); b != nil {
				info.Buffer = b.buf
				if w.Range > 0 {
					info.Range = vk.DeviceSize(w.Range)
				}
			}
			vw.PBufferInfo = []vk.DescriptorBufferInfo{info}
		case vulkan.DescriptorTypeSampler:
			vw.PImageInfo = []vk.DescriptorImageInfo{{Sampler: d.samplers.get(uint64(w.Sampler))}}
		default:
			vw.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   d.views.get(uint64(w.ImageView)),
				ImageLayout: vk.ImageLayout(w.Layout),
			}}
		}
		out[i] = vw
	}
	vk.UpdateDescriptorSets(d.device, uint32(len(out)), out, 0, nil)
}
