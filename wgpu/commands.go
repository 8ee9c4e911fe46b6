package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/wgpu/hal"
)

// Clears.

func (c *Context) ClearRenderTargetView(rtv rhi.RenderTargetView, color rhi.Color) {
	if !c.checkRecording("ClearRenderTargetView") {
		return
	}
	v, ok := rtv.(*renderTargetView)
	if !ok || v == nil {
		misuse("wgpu: invalid render target view", "op", "ClearRenderTargetView", "rtv", rhi.ResourceName(rtv))
		return
	}
	c.endPass()
	c.useTexture(v.texture, gputypes.TextureUsageRenderAttachment)
	c.flushBarriers()
	pass := c.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "rhi_clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       v.raw,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: color,
		}},
	})
	pass.End()
}

func (c *Context) ClearDepthStencilView(dsv rhi.DepthStencilView, value rhi.DepthStencilValue) {
	if !c.checkRecording("ClearDepthStencilView") {
		return
	}
	v, ok := dsv.(*depthStencilView)
	if !ok || v == nil {
		misuse("wgpu: invalid depth stencil view", "op", "ClearDepthStencilView", "dsv", rhi.ResourceName(dsv))
		return
	}
	c.endPass()
	c.useTexture(v.texture, gputypes.TextureUsageRenderAttachment)
	c.flushBarriers()
	pass := c.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:                  "rhi_clear_depth",
		DepthStencilAttachment: depthAttachment(v, gputypes.LoadOpClear, value),
	})
	pass.End()
}

// ClearUnorderedAccessViewFloat fills the view from a staging buffer.
// Buffer views are filled with the bits of color.R as a float32.
func (c *Context) ClearUnorderedAccessViewFloat(uav rhi.UnorderedAccessView, color rhi.Color) {
	if !c.checkRecording("ClearUnorderedAccessViewFloat") {
		return
	}
	v, ok := uav.(*unorderedAccessView)
	if !ok || v == nil {
		misuse("wgpu: invalid unordered access view", "op", "ClearUnorderedAccessViewFloat", "uav", rhi.ResourceName(uav))
		return
	}
	c.endPass()

	if b := v.buffer; b != nil {
		word := math.Float32bits(float32(color.R))
		data := make([]byte, v.size&^3)
		for i := 0; i+4 <= len(data); i += 4 {
			binary.LittleEndian.PutUint32(data[i:], word)
		}
		c.copyToBuffer("ClearUnorderedAccessViewFloat", b, v.offset, data)
		return
	}

	t := v.texture
	texel, err := encodeTexel(t.desc.Format, color)
	if err != nil {
		misuse("wgpu: cannot clear unordered access view", "uav", v.Name(), "err", err)
		return
	}
	w, h, d := t.mipExtent(v.mip)
	layers := max(d, t.layers())
	pitch := alignUp(w*uint32(len(texel)), copyPitchAlignment)
	data := make([]byte, uint64(pitch)*uint64(h)*uint64(layers))
	for row := uint32(0); row < h*layers; row++ {
		line := data[uint64(row)*uint64(pitch):]
		for x := range w {
			copy(line[x*uint32(len(texel)):], texel)
		}
	}
	c.copyToTexture("ClearUnorderedAccessViewFloat", t, v.mip, pitch, hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: layers}, data)
}

// encodeTexel returns one texel of color in format f.
func encodeTexel(f gputypes.TextureFormat, color rhi.Color) ([]byte, error) {
	unorm := func(v float64) byte {
		return byte(math.Round(math.Min(math.Max(v, 0), 1) * 255))
	}
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return []byte{unorm(color.R)}, nil
	case gputypes.TextureFormatRGBA8Unorm:
		return []byte{unorm(color.R), unorm(color.G), unorm(color.B), unorm(color.A)}, nil
	case gputypes.TextureFormatBGRA8Unorm:
		return []byte{unorm(color.B), unorm(color.G), unorm(color.R), unorm(color.A)}, nil
	case gputypes.TextureFormatRGBA16Float:
		out := make([]byte, 8)
		for i, v := range [4]float64{color.R, color.G, color.B, color.A} {
			binary.LittleEndian.PutUint16(out[2*i:], float16(float32(v)))
		}
		return out, nil
	case gputypes.TextureFormatRGBA32Float:
		out := make([]byte, 16)
		for i, v := range [4]float64{color.R, color.G, color.B, color.A} {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(float32(v)))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: clear of format %v", rhi.ErrUnsupported, f)
	}
}

// float16 converts f to IEEE 754 half precision, rounding to nearest even.
func float16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case bits&0x7fffffff == 0:
		return sign
	case exp >= 0x1f:
		if bits&0x7f800000 == 0x7f800000 && mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := mant >> shift
		rem := mant & (1<<shift - 1)
		mid := uint32(1) << (shift - 1)
		if rem > mid || (rem == mid && half&1 == 1) {
			half++
		}
		return sign | uint16(half)
	}
	half := uint32(exp)<<10 | mant>>13
	rem := mant & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && half&1 == 1) {
		half++
	}
	return sign | uint16(half)
}

// Staging uploads.

// staging creates a copy source holding data. It is destroyed once the
// current batch completes.
func (c *Context) staging(op string, data []byte) hal.Buffer {
	size := alignUp(uint64(len(data)), 4)
	buf, err := c.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "rhi_staging",
		Size:  size,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		c.fail(op, fmt.Errorf("create staging buffer: %w", err))
		return nil
	}
	c.dev.deferDestroy(func() { c.dev.device.DestroyBuffer(buf) })
	if err := c.dev.writeBuffer(buf, 0, data); err != nil {
		c.fail(op, err)
		return nil
	}
	return buf
}

func (c *Context) copyToBuffer(op string, dst *deviceBuffer, offset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	src := c.staging(op, data)
	if src == nil {
		return
	}
	c.useBuffer(dst, gputypes.BufferUsageCopyDst)
	c.flushBarriers()
	c.encoder.CopyBufferToBuffer(src, dst.raw, []hal.BufferCopy{{DstOffset: offset, Size: uint64(len(data))}})
}

// copyToTexture copies rows of pitch bytes into a mip of t.
func (c *Context) copyToTexture(op string, t *deviceTexture, mip, pitch uint32, size hal.Extent3D, data []byte) {
	src := c.staging(op, data)
	if src == nil {
		return
	}
	c.useTexture(t, gputypes.TextureUsageCopyDst)
	c.flushBarriers()
	c.encoder.CopyBufferToTexture(src, t.raw, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: pitch, RowsPerImage: size.Height},
		TextureBase:  hal.ImageCopyTexture{Texture: t.raw, Aspect: gputypes.TextureAspectAll, MipLevel: mip},
		Size:         size,
	}})
}

// UpdateBuffer copies data into dst at offset, ordered with the other
// commands of the batch. Offset and length must be multiples of 4.
func (c *Context) UpdateBuffer(dst rhi.Buffer, offset uint64, data []byte) {
	if !c.checkRecording("UpdateBuffer") {
		return
	}
	b := c.buffer("UpdateBuffer", dst)
	if b == nil {
		return
	}
	switch {
	case offset+uint64(len(data)) > b.desc.Size:
		misuse("wgpu: buffer update out of range", "buffer", b.Name(), "offset", offset, "size", len(data))
		return
	case offset%4 != 0 || len(data)%4 != 0:
		misuse("wgpu: buffer update not 4-byte aligned", "buffer", b.Name(), "offset", offset, "size", len(data))
		return
	}
	c.endPass()
	c.copyToBuffer("UpdateBuffer", b, offset, data)
}

// UpdateTexture2D replaces a whole mip of layer 0 with tightly packed
// texels.
func (c *Context) UpdateTexture2D(dst rhi.Texture, width, height, mipLevel uint32, data []byte) {
	if !c.checkRecording("UpdateTexture2D") {
		return
	}
	t := c.texture("UpdateTexture2D", dst)
	if t == nil {
		return
	}
	bpp := rhi.BytesPerPixel(t.desc.Format)
	if bpp == 0 || mipLevel >= t.desc.MipLevels {
		misuse("wgpu: invalid texture update", "texture", t.Name(), "mip", mipLevel, "format", t.desc.Format)
		return
	}
	mw, mh, _ := t.mipExtent(mipLevel)
	if width > mw || height > mh {
		misuse("wgpu: texture update larger than mip", "texture", t.Name(), "mip", mipLevel, "width", width, "height", height)
		return
	}
	row := width * bpp
	if uint64(len(data)) < uint64(row)*uint64(height) {
		misuse("wgpu: texture update data too short", "texture", t.Name(), "size", len(data))
		return
	}
	c.endPass()
	pitch := alignUp(row, copyPitchAlignment)
	staged := data[:uint64(row)*uint64(height)]
	if pitch != row {
		staged = make([]byte, uint64(pitch)*uint64(height))
		for y := range height {
			copy(staged[y*pitch:], data[y*row:(y+1)*row])
		}
	}
	c.copyToTexture("UpdateTexture2D", t, mipLevel, pitch, hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1}, staged)
}

// Copies.

// CopyBuffer copies a range of src into dst. A zero size copies the rest
// of src.
func (c *Context) CopyBuffer(dst, src rhi.Buffer, info rhi.CopyBufferInfo) {
	if !c.checkRecording("CopyBuffer") {
		return
	}
	d, s := c.buffer("CopyBuffer", dst), c.buffer("CopyBuffer", src)
	if d == nil || s == nil {
		return
	}
	size := info.Size
	if size == 0 && info.SrcOffset < s.desc.Size {
		size = s.desc.Size - info.SrcOffset
	}
	if info.SrcOffset+size > s.desc.Size || info.DstOffset+size > d.desc.Size {
		misuse("wgpu: buffer copy out of range", "dst", d.Name(), "src", s.Name(), "size", size)
		return
	}
	c.endPass()
	c.useBuffer(s, gputypes.BufferUsageCopySrc)
	c.useBuffer(d, gputypes.BufferUsageCopyDst)
	c.flushBarriers()
	c.encoder.CopyBufferToBuffer(s.raw, d.raw, []hal.BufferCopy{{SrcOffset: info.SrcOffset, DstOffset: info.DstOffset, Size: size}})
}

// CopyTexture copies every mip and layer of src into dst. Both textures
// must have the same format and extent.
func (c *Context) CopyTexture(dst, src rhi.Texture) {
	if !c.checkRecording("CopyTexture") {
		return
	}
	d, s := c.texture("CopyTexture", dst), c.texture("CopyTexture", src)
	if d == nil || s == nil {
		return
	}
	if d.desc.Format != s.desc.Format || d.desc.Width != s.desc.Width || d.desc.Height != s.desc.Height {
		misuse("wgpu: texture copy between mismatched textures", "dst", d.Name(), "src", s.Name())
		return
	}
	c.endPass()
	c.useTexture(s, gputypes.TextureUsageCopySrc)
	c.useTexture(d, gputypes.TextureUsageCopyDst)
	c.flushBarriers()
	mips := min(d.desc.MipLevels, s.desc.MipLevels)
	regions := make([]hal.TextureCopy, 0, mips)
	for mip := range mips {
		w, h, depth := s.mipExtent(mip)
		regions = append(regions, hal.TextureCopy{
			SrcBase: hal.ImageCopyTexture{Texture: s.raw, Aspect: gputypes.TextureAspectAll, MipLevel: mip},
			DstBase: hal.ImageCopyTexture{Texture: d.raw, Aspect: gputypes.TextureAspectAll, MipLevel: mip},
			Size:    hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: max(depth, min(s.layers(), d.layers()))},
		})
	}
	c.encoder.CopyTextureToTexture(s.raw, d.raw, regions)
}

// CopyTextureRegion copies a box between subresources. For array
// textures the Z coordinate of the origin is the array layer.
func (c *Context) CopyTextureRegion(dst, src rhi.Texture, info rhi.CopyTextureInfo) {
	if !c.checkRecording("CopyTextureRegion") {
		return
	}
	d, s := c.texture("CopyTextureRegion", dst), c.texture("CopyTextureRegion", src)
	if d == nil || s == nil {
		return
	}
	if info.Src.MipLevel >= s.desc.MipLevels || info.Dst.MipLevel >= d.desc.MipLevels {
		misuse("wgpu: texture region copy mip out of range", "dst", d.Name(), "src", s.Name())
		return
	}
	c.endPass()
	c.useTexture(s, gputypes.TextureUsageCopySrc)
	c.useTexture(d, gputypes.TextureUsageCopyDst)
	c.flushBarriers()
	c.encoder.CopyTextureToTexture(s.raw, d.raw, []hal.TextureCopy{{
		SrcBase: hal.ImageCopyTexture{Texture: s.raw, Aspect: gputypes.TextureAspectAll, MipLevel: info.Src.MipLevel, Origin: origin(s, info.Src)},
		DstBase: hal.ImageCopyTexture{Texture: d.raw, Aspect: gputypes.TextureAspectAll, MipLevel: info.Dst.MipLevel, Origin: origin(d, info.Dst)},
		Size:    hal.Extent3D{Width: info.Width, Height: info.Height, DepthOrArrayLayers: max(info.Depth, 1)},
	}})
}

func origin(t *deviceTexture, s rhi.CopyTextureSubresource) hal.Origin3D {
	if t.desc.Dimension == rhi.Texture3D {
		return hal.Origin3D{X: s.X, Y: s.Y, Z: s.Z}
	}
	return hal.Origin3D{X: s.X, Y: s.Y, Z: s.ArrayLayer}
}

// ResolveTexture resolves mip 0, layer 0 of the multisampled src into dst
// with a resolve render pass.
func (c *Context) ResolveTexture(dst, src rhi.Texture) {
	if !c.checkRecording("ResolveTexture") {
		return
	}
	d, s := c.texture("ResolveTexture", dst), c.texture("ResolveTexture", src)
	if d == nil || s == nil {
		return
	}
	if s.desc.SampleCount <= 1 || d.desc.SampleCount != 1 || s.desc.Format != d.desc.Format {
		misuse("wgpu: invalid resolve", "dst", d.Name(), "src", s.Name())
		return
	}
	srcView, err := c.dev.attachmentView("rhi_resolve_src", s, gputypes.TextureFormatUndefined, 0, 0)
	if err != nil {
		c.fail("ResolveTexture", err)
		return
	}
	dstView, err := c.dev.attachmentView("rhi_resolve_dst", d, gputypes.TextureFormatUndefined, 0, 0)
	if err != nil {
		c.dev.device.DestroyTextureView(srcView)
		c.fail("ResolveTexture", err)
		return
	}
	c.dev.deferDestroy(func() {
		c.dev.device.DestroyTextureView(srcView)
		c.dev.device.DestroyTextureView(dstView)
	})

	c.endPass()
	c.useTexture(s, gputypes.TextureUsageRenderAttachment)
	c.useTexture(d, gputypes.TextureUsageRenderAttachment)
	c.flushBarriers()
	pass := c.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "rhi_resolve",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:          srcView,
			ResolveTarget: dstView,
			LoadOp:        gputypes.LoadOpLoad,
			StoreOp:       gputypes.StoreOpStore,
		}},
	})
	pass.End()
}

func (c *Context) DiscardResource(resource rhi.Resource) {
	slogger().Debug("wgpu: discard ignored", "resource", rhi.ResourceName(resource))
}

func (c *Context) GenerateMips(texture rhi.Texture) {
	if !c.checkRecording("GenerateMips") {
		return
	}
	t := c.texture("GenerateMips", texture)
	if t == nil || t.desc.MipLevels < 2 {
		return
	}
	c.endPass()
	if err := c.dev.mips.generate(c, t); err != nil {
		c.fail("GenerateMips", err)
	}
}

// Transitions.

// TransitionTexture moves texture into the usage of after. The tracked
// usage is the source of the barrier; a before that disagrees with it is
// logged.
func (c *Context) TransitionTexture(texture rhi.Texture, before, after rhi.ResourceAccess) {
	if !c.checkRecording("TransitionTexture") {
		return
	}
	t := c.texture("TransitionTexture", texture)
	if t == nil {
		return
	}
	if want := textureAccessUsage(before); t.usage != 0 && t.usage&want == 0 {
		slogger().Warn("wgpu: texture transition from unexpected state",
			"texture", t.Name(), "before", before, "tracked", t.usage)
	}
	c.endPass()
	c.useTexture(t, textureAccessUsage(after))
	c.flushBarriers()
}

func (c *Context) TransitionBuffer(buffer rhi.Buffer, before, after rhi.ResourceAccess) {
	if !c.checkRecording("TransitionBuffer") {
		return
	}
	b := c.buffer("TransitionBuffer", buffer)
	if b == nil {
		return
	}
	if want := bufferAccessUsage(before); b.usage != 0 && b.usage&want == 0 {
		slogger().Warn("wgpu: buffer transition from unexpected state",
			"buffer", b.Name(), "before", before, "tracked", b.usage)
	}
	c.endPass()
	c.useBuffer(b, bufferAccessUsage(after))
	c.flushBarriers()
}

// UnorderedAccessTextureBarrier orders storage writes before later
// storage access of texture.
func (c *Context) UnorderedAccessTextureBarrier(texture rhi.Texture) {
	if !c.checkRecording("UnorderedAccessTextureBarrier") {
		return
	}
	t := c.texture("UnorderedAccessTextureBarrier", texture)
	if t == nil {
		return
	}
	c.endPass()
	c.flushBarriers()
	c.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.raw,
		Range:   wholeTexture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageStorageBinding,
			NewUsage: gputypes.TextureUsageStorageBinding,
		},
	}})
	t.usage = gputypes.TextureUsageStorageBinding
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
	c.flushBarriers()
	c.encoder.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: b.raw,
		Usage: hal.BufferUsageTransition{
			OldUsage: gputypes.BufferUsageStorage,
			NewUsage: gputypes.BufferUsageStorage,
		},
	}})
	b.usage = gputypes.BufferUsageStorage
}
