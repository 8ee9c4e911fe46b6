package cmdlist

import (
	"log/slog"

	"github.com/gogpu/rhi"
)

// slogger returns the current module logger.
// All logging in cmdlist goes through this function.
func slogger() *slog.Logger { return rhi.Logger() }
