package vulkan

import (
	"fmt"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/cache"
)

// CacheStats are hit and miss counters of a backend cache.
type CacheStats = cache.Stats

// FramebufferKey identifies a framebuffer. Attachments are ordered: color
// attachments first, then the depth attachment if any.
type FramebufferKey struct {
	RenderPass     RenderPass
	Width, Height  uint32
	Layers         uint32
	NumAttachments uint32
	Attachments    [rhi.MaxRenderTargets + 1]ImageView
}

func (k *FramebufferKey) references(v ImageView) bool {
	for _, a := range k.Attachments[:k.NumAttachments] {
		if a == v {
			return true
		}
	}
	return false
}

// FramebufferCache maps render pass and attachment combinations to
// framebuffers. Entries stay until one of their image views or their
// render pass is released.
//
// FramebufferCache is safe for concurrent use.
type FramebufferCache struct {
	drv     Driver
	entries *cache.Cache[FramebufferKey, Framebuffer]
}

// NewFramebufferCache creates an empty cache.
func NewFramebufferCache(drv Driver) *FramebufferCache {
	return &FramebufferCache{drv: drv, entries: cache.New[FramebufferKey, Framebuffer]()}
}

// GetFramebuffer returns the framebuffer for key, creating it on a miss.
func (c *FramebufferCache) GetFramebuffer(key FramebufferKey) (Framebuffer, error) {
	if key.NumAttachments > uint32(len(key.Attachments)) {
		return 0, fmt.Errorf("%w: framebuffer with %d attachments", rhi.ErrInvalidDesc, key.NumAttachments)
	}
	return c.entries.GetOrCreate(key, func() (Framebuffer, error) {
		layers := max(key.Layers, 1)
		fb, err := c.drv.CreateFramebuffer(FramebufferInfo{
			RenderPass:  key.RenderPass,
			Attachments: append([]ImageView(nil), key.Attachments[:key.NumAttachments]...),
			Width:       key.Width,
			Height:      key.Height,
			Layers:      layers,
		})
		if err != nil {
			return 0, fmt.Errorf("vulkan: create framebuffer: %w", err)
		}
		slogger().Debug("vulkan: framebuffer created", "width", key.Width, "height", key.Height, "attachments", key.NumAttachments)
		return fb, nil
	})
}

// OnReleaseImageView destroys every framebuffer that uses v. Call it
// before destroying the view.
func (c *FramebufferCache) OnReleaseImageView(v ImageView) {
	if v == 0 {
		return
	}
	c.destroy(c.entries.DeleteFunc(func(k FramebufferKey, _ Framebuffer) bool {
		return k.references(v)
	}))
}

// OnReleaseRenderPass destroys every framebuffer created for pass.
func (c *FramebufferCache) OnReleaseRenderPass(pass RenderPass) {
	c.destroy(c.entries.DeleteFunc(func(k FramebufferKey, _ Framebuffer) bool {
		return k.RenderPass == pass
	}))
}

func (c *FramebufferCache) destroy(fbs []Framebuffer) {
	for _, fb := range fbs {
		c.drv.DestroyFramebuffer(fb)
	}
}

// Len returns the number of cached framebuffers.
func (c *FramebufferCache) Len() int { return c.entries.Len() }

// Stats returns the cache counters.
func (c *FramebufferCache) Stats() CacheStats { return c.entries.Stats() }

// Release destroys every cached framebuffer.
func (c *FramebufferCache) Release() {
	c.destroy(c.entries.Drain())
}
