// Package rhi is a render hardware interface: an abstraction layer that
// decouples high-level rendering code from a specific graphics API.
//
// # Overview
//
// Rendering code records work into a deferred command list (package cmdlist)
// and hands it to a command queue, which replays every recorded command in
// order against a backend's immediate [Context]. Backends implement [Context]
// and the [Device] resource factory:
//
//   - vulkan: Vulkan with state caching, descriptor set and framebuffer caches
//   - wgpu: portable backend on gogpu/wgpu/hal (DX12, Vulkan, Metal, GLES)
//   - null: accepts every call, optionally tracing it
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/rhi"
//	    "github.com/gogpu/rhi/cmdlist"
//	    _ "github.com/gogpu/rhi/null"
//	)
//
//	dev, err := rhi.OpenDevice("null")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	list := cmdlist.New()
//	list.SetViewport(800, 600, 0, 1, 0, 0)
//	list.Draw(3, 0)
//
//	queue := cmdlist.NewCommandQueue(dev.Context())
//	if err := queue.ExecuteCommandList(list); err != nil {
//	    log.Fatal(err)
//	}
//
// # Resource Lifetime
//
// Every resource is reference counted. Creating a resource returns it with a
// count of one owned by the caller. Command lists add a reference for every
// resource they capture and release it when the command is executed or the
// list is reset, so a resource can be released by its owner while commands
// that use it are still pending.
//
// # Logging
//
// The module is silent by default. Use [SetLogger] to route diagnostics from
// every subpackage to a *slog.Logger.
package rhi
