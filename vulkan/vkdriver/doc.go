// Package vkdriver implements vulkan.Driver on top of the Vulkan C API
// through github.com/vulkan-go/vulkan.
//
// Importing the package registers the "vulkan" backend:
//
//	import _ "github.com/gogpu/rhi/vulkan/vkdriver"
//
//	dev, err := rhi.OpenDevice("vulkan")
//
// Vulkan objects are kept in per-type tables and handed to the backend as
// small integer handles, so the backend never sees a cgo pointer. The
// driver uses a single queue family that supports both graphics and
// compute. When VK_EXT_robustness2 is available its nullDescriptor feature
// is enabled and reported through Properties.
package vkdriver
