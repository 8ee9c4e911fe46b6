package vkdriver

import "github.com/gogpu/rhi/vulkan"

// Option configures a Driver.
type Option func(*options)

type options struct {
	validation bool
	appName    string
	device     []vulkan.Option
}

func defaultOptions() options {
	return options{appName: "rhi"}
}

// WithValidation enables VK_LAYER_KHRONOS_validation when the layer is
// installed. A missing layer is logged and ignored.
func WithValidation(enable bool) Option {
	return func(o *options) { o.validation = enable }
}

// WithAppName sets VkApplicationInfo.pApplicationName.
func WithAppName(name string) Option {
	return func(o *options) { o.appName = name }
}

// WithDeviceOptions passes options to vulkan.New when the device is opened
// through the registry or Open.
func WithDeviceOptions(opts ...vulkan.Option) Option {
	return func(o *options) { o.device = append(o.device, opts...) }
}
