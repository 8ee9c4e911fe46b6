package vkdriver

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/rhi/vulkan"
)

// CreateBuffer implements vulkan.Driver. Host-visible buffers stay mapped
// for their whole life.
func (d *Driver) CreateBuffer(info vulkan.BufferInfo) (vulkan.Buffer, error) {
	var buf vk.Buffer
	res := vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buf)
	if err := check("create buffer", res); err != nil {
		return 0, err
	}

	want := vk.MemoryPropertyDeviceLocalBit
	if info.HostVisible {
		want = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buf, &req)
	mem, err := d.allocate(req, want)
	if err != nil {
		vk.DestroyBuffer(d.device, buf, nil)
		return 0, err
	}
	if err := check("bind buffer memory", vk.BindBufferMemory(d.device, buf, mem, 0)); err != nil {
		vk.FreeMemory(d.device, mem, nil)
		vk.DestroyBuffer(d.device, buf, nil)
		return 0, err
	}

	b := &buffer{buf: buf, mem: mem, size: info.Size}
	if info.HostVisible {
		var p unsafe.Pointer
		if err := check("map memory", vk.MapMemory(d.device, mem, 0, vk.DeviceSize(info.Size), 0, &p)); err != nil {
			d.freeBuffer(b)
			return 0, err
		}
		b.mapped = p
	}
	return vulkan.Buffer(d.buffers.put(b)), nil
}

func (d *Driver) freeBuffer(b *buffer) {
	if b.mapped != nil {
		vk.UnmapMemory(d.device, b.mem)
	}
	vk.DestroyBuffer(d.device, b.buf, nil)
	vk.FreeMemory(d.device, b.mem, nil)
}

// DestroyBuffer implements vulkan.Driver.
func (d *Driver) DestroyBuffer(h vulkan.Buffer) {
	if b, ok := d.buffers.take(uint64(h)); ok {
		d.freeBuffer(b)
	}
}

// WriteBuffer implements vulkan.Driver.
func (d *Driver) WriteBuffer(h vulkan.Buffer, offset uint64, data []byte) error {
	b := d.buffers.get(uint64(h))
	switch {
	case b == nil:
		return fmt.Errorf("vkdriver: write buffer: unknown handle %d", h)
	case b.mapped == nil:
		return fmt.Errorf("vkdriver: write buffer: buffer %d is not host visible", h)
	case offset+uint64(len(data)) > b.size:
		return fmt.Errorf("vkdriver: write buffer: %d bytes at %d overflow size %d", len(data), offset, b.size)
	}
	dst := unsafe.Slice((*byte)(b.mapped), b.size)
	copy(dst[offset:], data)
	return nil
}

// CreateImage implements vulkan.Driver.
func (d *Driver) CreateImage(info vulkan.ImageInfo) (vulkan.Image, error) {
	format := textureFormat(info.Format)
	if format == vk.FormatUndefined {
		return 0, fmt.Errorf("vkdriver: create image: unsupported format %v", info.Format)
	}
	ci := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        format,
		Extent:        vk.Extent3D{Width: info.Width, Height: info.Height, Depth: max(info.Depth, 1)},
		MipLevels:     max(info.MipLevels, 1),
		ArrayLayers:   max(info.ArrayLayers, 1),
		Samples:       sampleCount(info.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if info.Depth > 1 {
		ci.ImageType = vk.ImageType3d
	}
	if info.Cube {
		ci.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	var img vk.Image
	if err := check("create image", vk.CreateImage(d.device, &ci, nil, &img)); err != nil {
		return 0, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img, &req)
	mem, err := d.allocate(req, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.device, img, nil)
		return 0, err
	}
	if err := check("bind image memory", vk.BindImageMemory(d.device, img, mem, 0)); err != nil {
		vk.FreeMemory(d.device, mem, nil)
		vk.DestroyImage(d.device, img, nil)
		return 0, err
	}
	return vulkan.Image(d.images.put(&image{img: img, mem: mem})), nil
}

// DestroyImage implements vulkan.Driver.
func (d *Driver) DestroyImage(h vulkan.Image) {
	if v, ok := d.images.take(uint64(h)); ok {
		vk.DestroyImage(d.device, v.img, nil)
		vk.FreeMemory(d.device, v.mem, nil)
	}
}

func (d *Driver) vkImage(h vulkan.Image) vk.Image {
	if v := d.images.get(uint64(h)); v != nil {
		return v.img
	}
	return nil
}

// CreateImageView implements vulkan.Driver.
func (d *Driver) CreateImageView(info vulkan.ImageViewInfo) (vulkan.ImageView, error) {
	viewType := vk.ImageViewType2d
	switch {
	case info.Cube && info.Array:
		viewType = vk.ImageViewTypeCubeArray
	case info.Cube:
		viewType = vk.ImageViewTypeCube
	case info.Array:
		viewType = vk.ImageViewType2dArray
	}
	var view vk.ImageView
	res := vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    d.vkImage(info.Image),
		ViewType: viewType,
		Format:   textureFormat(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: subresourceRange(info.Range),
	}, nil, &view)
	if err := check("create image view", res); err != nil {
		return 0, err
	}
	return vulkan.ImageView(d.views.put(view)), nil
}

// DestroyImageView implements vulkan.Driver.
func (d *Driver) DestroyImageView(h vulkan.ImageView) {
	if v, ok := d.views.take(uint64(h)); ok {
		vk.DestroyImageView(d.device, v, nil)
	}
}

// CreateSampler implements vulkan.Driver.
func (d *Driver) CreateSampler(info vulkan.SamplerInfo) (vulkan.Sampler, error) {
	ci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter(info.MagLinear),
		MinFilter:               filter(info.MinLinear),
		MipmapMode:              mipmapMode(info.MipLinear),
		AddressModeU:            vk.SamplerAddressMode(info.AddressU),
		AddressModeV:            vk.SamplerAddressMode(info.AddressV),
		AddressModeW:            vk.SamplerAddressMode(info.AddressW),
		MipLodBias:              info.MipLODBias,
		AnisotropyEnable:        bool32(info.MaxAnisotropy > 0),
		MaxAnisotropy:           info.MaxAnisotropy,
		CompareEnable:           bool32(info.CompareEnable),
		CompareOp:               vk.CompareOp(info.Compare),
		MinLod:                  info.MinLOD,
		MaxLod:                  info.MaxLOD,
		BorderColor:             vk.BorderColorFloatTransparentBlack,
		UnnormalizedCoordinates: vk.False,
	}
	var s vk.Sampler
	if err := check("create sampler", vk.CreateSampler(d.device, &ci, nil, &s)); err != nil {
		return 0, err
	}
	return vulkan.Sampler(d.samplers.put(s)), nil
}

// DestroySampler implements vulkan.Driver.
func (d *Driver) DestroySampler(h vulkan.Sampler) {
	if v, ok := d.samplers.take(uint64(h)); ok {
		vk.DestroySampler(d.device, v, nil)
	}
}

// CreateShaderModule implements vulkan.Driver.
func (d *Driver) CreateShaderModule(spirv []uint32) (vulkan.ShaderModule, error) {
	var m vk.ShaderModule
	res := vk.CreateShaderModule(d.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: spirvSize(spirv),
		PCode:    spirv,
	}, nil, &m)
	if err := check("create shader module", res); err != nil {
		return 0, err
	}
	return vulkan.ShaderModule(d.modules.put(m)), nil
}

// DestroyShaderModule implements vulkan.Driver.
func (d *Driver) DestroyShaderModule(h vulkan.ShaderModule) {
	if v, ok := d.modules.take(uint64(h)); ok {
		vk.DestroyShaderModule(d.device, v, nil)
	}
}

// CreateQueryPool implements vulkan.Driver.
func (d *Driver) CreateQueryPool(count uint32) (vulkan.QueryPool, error) {
	var p vk.QueryPool
	res := vk.CreateQueryPool(d.device, &vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: count,
	}, nil, &p)
	if err := check("create query pool", res); err != nil {
		return 0, err
	}
	return vulkan.QueryPool(d.queryPools.put(p)), nil
}

// DestroyQueryPool implements vulkan.Driver.
func (d *Driver) DestroyQueryPool(h vulkan.QueryPool) {
	if v, ok := d.queryPools.take(uint64(h)); ok {
		vk.DestroyQueryPool(d.device, v, nil)
	}
}

// QueryResults implements vulkan.Driver.
func (d *Driver) QueryResults(h vulkan.QueryPool, first, count uint32) ([]uint64, error) {
	out := make([]uint64, count)
	if count == 0 {
		return out, nil
	}
	flags := vk.QueryResultFlags(vk.QueryResult64Bit | vk.QueryResultWaitBit)
	res := vk.GetQueryPoolResults(d.device, d.queryPools.get(uint64(h)), first, count,
		timestampBytes(count), unsafe.Pointer(&out[0]), 8, flags)
	if err := check("get query pool results", res); err != nil {
		return nil, err
	}
	return out, nil
}

// spirvSize is the byte size of a SPIR-V module.
func spirvSize(spirv []uint32) uint { return uint(len(spirv)) * 4 }

// timestampBytes is the size of count 64-bit query results.
func timestampBytes(count uint32) uint { return uint(count) * 8 }

func subresourceRange(r vulkan.SubresourceRange) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(r.Aspect),
		BaseMipLevel:   r.BaseMip,
		LevelCount:     r.MipCount,
		BaseArrayLayer: r.BaseLayer,
		LayerCount:     r.LayerCount,
	}
}

func subresourceLayers(s vulkan.ImageSubresource) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(s.Aspect),
		MipLevel:       s.MipLevel,
		BaseArrayLayer: s.BaseLayer,
		LayerCount:     max(s.LayerCount, 1),
	}
}
