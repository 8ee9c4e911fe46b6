package vulkan

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/cache"
)

// AttachmentKey is the part of a render pass an attachment contributes.
type AttachmentKey struct {
	Format gputypes.TextureFormat
	Load   LoadOp
	Store  StoreOp
}

// RenderPassKey identifies a render pass.
type RenderPassKey struct {
	NumColors     uint32
	Colors        [rhi.MaxRenderTargets]AttachmentKey
	DepthStencil  AttachmentKey // Format is Undefined without depth
	DepthReadOnly bool
	Samples       uint32
}

// RenderPassCache deduplicates single-subpass render passes.
//
// RenderPassCache is safe for concurrent use.
type RenderPassCache struct {
	drv    Driver
	fbs    *FramebufferCache
	passes *cache.Cache[RenderPassKey, RenderPass]
}

// NewRenderPassCache creates an empty cache. Framebuffers created for a
// pass are dropped from fbs when the pass is destroyed.
func NewRenderPassCache(drv Driver, fbs *FramebufferCache) *RenderPassCache {
	return &RenderPassCache{drv: drv, fbs: fbs, passes: cache.New[RenderPassKey, RenderPass]()}
}

// GetRenderPass returns the render pass for key, creating it on a miss.
func (c *RenderPassCache) GetRenderPass(key RenderPassKey) (RenderPass, error) {
	if key.NumColors > rhi.MaxRenderTargets {
		return 0, fmt.Errorf("%w: render pass with %d color attachments", rhi.ErrInvalidDesc, key.NumColors)
	}
	return c.passes.GetOrCreate(key, func() (RenderPass, error) {
		samples := max(key.Samples, 1)
		info := RenderPassInfo{Colors: make([]AttachmentInfo, key.NumColors)}
		for i := range info.Colors {
			a := key.Colors[i]
			info.Colors[i] = AttachmentInfo{
				Format:  a.Format,
				Samples: samples,
				Load:    a.Load,
				Store:   a.Store,
				Layout:  LayoutColorAttachmentOptimal,
			}
		}
		if key.DepthStencil.Format != gputypes.TextureFormatUndefined {
			layout := LayoutDepthStencilAttachmentOptimal
			if key.DepthReadOnly {
				layout = LayoutDepthStencilReadOnlyOptimal
			}
			info.DepthStencil = &AttachmentInfo{
				Format:  key.DepthStencil.Format,
				Samples: samples,
				Load:    key.DepthStencil.Load,
				Store:   key.DepthStencil.Store,
				Layout:  layout,
			}
		}
		pass, err := c.drv.CreateRenderPass(info)
		if err != nil {
			return 0, fmt.Errorf("vulkan: create render pass: %w", err)
		}
		slogger().Debug("vulkan: render pass created", "colors", key.NumColors, "depth", key.DepthStencil.Format)
		return pass, nil
	})
}

// Len returns the number of cached render passes.
func (c *RenderPassCache) Len() int { return c.passes.Len() }

// Stats returns the cache counters.
func (c *RenderPassCache) Stats() CacheStats { return c.passes.Stats() }

// Release destroys every cached render pass and the framebuffers that use
// them.
func (c *RenderPassCache) Release() {
	for _, pass := range c.passes.Drain() {
		if c.fbs != nil {
			c.fbs.OnReleaseRenderPass(pass)
		}
		c.drv.DestroyRenderPass(pass)
	}
}

// renderPassKeyFor returns the key of the load/store pass used with the
// given attachment formats. Pipelines are created against it; any pass
// with the same formats and sample count is compatible.
func renderPassKeyFor(colors []gputypes.TextureFormat, depth gputypes.TextureFormat, readOnlyDepth bool, samples uint32) RenderPassKey {
	key := RenderPassKey{NumColors: uint32(len(colors)), Samples: max(samples, 1), DepthReadOnly: readOnlyDepth}
	for i, f := range colors {
		key.Colors[i] = AttachmentKey{Format: f, Load: LoadOpLoad, Store: StoreOpStore}
	}
	if depth != gputypes.TextureFormatUndefined {
		key.DepthStencil = AttachmentKey{Format: depth, Load: LoadOpLoad, Store: StoreOpStore}
	}
	return key
}
