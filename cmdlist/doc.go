// Package cmdlist records RHI operations into command lists and replays
// them against a backend's immediate context.
//
// A [CommandList] exposes one method per operation of [rhi.Context]. Each
// call captures its arguments into a typed [Command] record: values are
// copied, slices are copied into storage owned by the list, and every
// resource gets an added reference so it stays alive until the command has
// executed. A [CommandQueue] executes lists in order, one command at a
// time, and resets them afterwards.
//
// # Example
//
//	dev := rhi.MustOpenDevice("vulkan")
//	queue := cmdlist.NewCommandQueue(dev.Context())
//
//	l := cmdlist.New()
//	l.SetRenderTargets([]rhi.RenderTargetView{rtv}, nil)
//	l.ClearRenderTargetView(rtv, rhi.Color{R: 0, G: 0, B: 0, A: 1})
//	l.SetViewport(800, 600, 0, 1, 0, 0)
//	l.SetGraphicsPipelineState(pipeline)
//	l.Draw(3, 0)
//
//	if err := queue.ExecuteCommandList(l); err != nil {
//	    return err
//	}
//	return queue.WaitForGPU()
//
// # Redundant transitions
//
// TransitionTexture with equal before and after states records nothing and
// logs a warning through [rhi.Logger]; TransitionBuffer does the same at
// debug level.
package cmdlist
