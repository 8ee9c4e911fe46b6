package vulkan

import (
	"log/slog"

	"github.com/gogpu/rhi"
)

// slogger returns the current module logger.
// All logging in the Vulkan backend goes through this function.
func slogger() *slog.Logger { return rhi.Logger() }
