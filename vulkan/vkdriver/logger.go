package vkdriver

import (
	"log/slog"

	"github.com/gogpu/rhi"
)

func slogger() *slog.Logger { return rhi.Logger() }
