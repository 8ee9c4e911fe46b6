package vkdriver

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/rhi/vulkan"
)

// ErrNoDevice is returned when no physical device has a queue family with
// both graphics and compute support.
var ErrNoDevice = errors.New("vkdriver: no suitable physical device")

// check converts a VkResult into an error. Results the backend reacts to
// map onto the vulkan package sentinels; the rest keep vulkan-go's error
// text.
func check(op string, res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfPoolMemory:
		return fmt.Errorf("vkdriver: %s: %w", op, vulkan.ErrOutOfPoolMemory)
	case vk.ErrorFragmentedPool:
		return fmt.Errorf("vkdriver: %s: %w", op, vulkan.ErrFragmentedPool)
	case vk.Timeout:
		return fmt.Errorf("vkdriver: %s: %w", op, vulkan.ErrTimeout)
	}
	return fmt.Errorf("vkdriver: %s: %w", op, vk.Error(res))
}
