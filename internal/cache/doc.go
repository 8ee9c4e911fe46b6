// Package cache provides the keyed object cache shared by the backend
// caches (render passes, framebuffers, pipeline and descriptor set layouts,
// samplers).
//
// Entries are created on first use under the cache lock, so concurrent
// callers asking for the same key observe exactly one creation. Entries are
// never evicted implicitly: cached values are driver objects that may still
// be referenced by in-flight GPU work, so the owner removes them explicitly
// with DeleteFunc or Drain and destroys what it gets back.
//
//	c := cache.New[passKey, RenderPass]()
//	pass, err := c.GetOrCreate(key, func() (RenderPass, error) {
//	    return drv.CreateRenderPass(info)
//	})
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
