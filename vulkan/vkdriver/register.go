package vkdriver

import (
	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/vulkan"
)

func init() {
	rhi.Register("vulkan", func() (rhi.Device, error) {
		dev, err := Open()
		if err != nil {
			return nil, err
		}
		return dev, nil
	})
}

// Open creates a Driver on the first suitable GPU and wraps it in a
// vulkan.Device. The driver is destroyed if the device cannot be created.
func Open(opts ...Option) (*vulkan.Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	drv, err := NewDriver(opts...)
	if err != nil {
		return nil, err
	}
	return vulkan.New(drv, o.device...)
}
