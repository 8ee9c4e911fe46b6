package wgpu

import (
	"log/slog"

	"github.com/gogpu/rhi"
)

// slogger returns the current module logger.
func slogger() *slog.Logger { return rhi.Logger() }
