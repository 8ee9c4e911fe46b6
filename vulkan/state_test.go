package vulkan

import (
	"log/slog"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
)

func TestDrawBindsChangedStateOnly(t *testing.T) {
	tests := []struct {
		name  string
		force bool
		want  map[string]int
	}{
		{"cached", false, map[string]int{
			"CmdBindPipeline":       1,
			"CmdBindVertexBuffers":  1,
			"CmdBindDescriptorSets": 2,
			"CmdSetBlendConstants":  1,
			"CmdDraw":               2,
			"CmdBeginRenderPass":    1,
		}},
		{"force binding", true, map[string]int{
			"CmdBindPipeline":       2,
			"CmdBindVertexBuffers":  2,
			"CmdBindDescriptorSets": 4,
			"CmdSetBlendConstants":  2,
			"CmdDraw":               2,
			"CmdBeginRenderPass":    1,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, newFakeDriver(), WithForceBinding(tt.force))
			f.begin()
			f.bindDraw()
			f.ctx.SetVertexBuffers([]rhi.Buffer{f.vb}, 0)
			f.ctx.Draw(3, 0)
			f.bindDraw()
			f.ctx.Draw(3, 0)
			f.end()

			cmds := f.drv.commands()
			for name, want := range tt.want {
				if got := countCmd(cmds, name); got != want {
					t.Errorf("%s = %d, want %d", name, got, want)
				}
			}
		})
	}
}

func TestRebindAfterNewCommandBuffer(t *testing.T) {
	f := newFixture(t, newFakeDriver())
	for range 2 {
		f.begin()
		f.bindDraw()
		f.ctx.Draw(3, 0)
		f.end()
	}

	cmds := f.drv.commands()
	if got := countCmd(cmds, "CmdBindPipeline"); got != 2 {
		t.Errorf("CmdBindPipeline = %d, want one per command buffer", got)
	}
	if got := countCmd(cmds, "CmdBindVertexBuffers"); got != 2 {
		t.Errorf("CmdBindVertexBuffers = %d, want one per command buffer", got)
	}
	if got := f.drv.count("AllocateDescriptorSet"); got != 4 {
		t.Errorf("AllocateDescriptorSet = %d, want 4", got)
	}
}

func TestDescriptorChangeReallocatesOneStage(t *testing.T) {
	f := newFixture(t, newFakeDriver())
	f.begin()
	f.bindDraw()
	f.ctx.SetConstantBuffer(f.vs, f.cb, 0)
	f.ctx.Draw(3, 0)
	allocs := f.drv.count("AllocateDescriptorSet")

	f.ctx.SetConstantBuffer(f.vs, f.cb, 0)
	f.ctx.Draw(3, 0)
	if got := f.drv.count("AllocateDescriptorSet") - allocs; got != 0 {
		t.Errorf("rebinding the same buffer allocated %d sets, want 0", got)
	}

	f.ctx.SetConstantBuffer(f.vs, f.vb, 0)
	f.ctx.Draw(3, 0)
	if got := f.drv.count("AllocateDescriptorSet") - allocs; got != 1 {
		t.Errorf("changing a vertex stage slot allocated %d sets, want 1", got)
	}
	f.end()
}

func TestPushConstants(t *testing.T) {
	f := newFixture(t, newFakeDriver())
	f.begin()
	f.bindDraw()
	f.ctx.Set32BitShaderConstants(f.vs, []uint32{1, 2, 3})
	f.ctx.Draw(3, 0)
	f.ctx.Set32BitShaderConstants(f.vs, []uint32{1, 2, 3})
	f.ctx.Draw(3, 0)
	f.end()

	if len(f.drv.pushes) != 1 {
		t.Fatalf("CmdPushConstants = %d, want 1", len(f.drv.pushes))
	}
	if got := f.drv.pushes[0]; len(got) != 3 || got[2] != 3 {
		t.Errorf("pushed %v, want [1 2 3]", got)
	}
}

func TestVertexBufferRuns(t *testing.T) {
	f := newFixture(t, newFakeDriver())
	f.begin()
	f.bindDraw()
	f.ctx.SetVertexBuffers([]rhi.Buffer{f.vb}, 3)
	f.ctx.Draw(3, 0)
	f.end()

	if len(f.drv.vbBinds) != 2 {
		t.Fatalf("CmdBindVertexBuffers = %d, want one per contiguous run", len(f.drv.vbBinds))
	}
	for i, run := range f.drv.vbBinds {
		if len(run) != 1 {
			t.Errorf("run %d binds %d buffers, want 1", i, len(run))
		}
	}
}

func TestBindWithoutPipeline(t *testing.T) {
	f := newFixture(t, newFakeDriver())
	h := captureLogs(t)
	breaks := captureBreaks(t)

	f.begin()
	f.ctx.SetConstantBuffer(f.vs, f.cb, 0)
	f.ctx.SetRenderTargets([]rhi.RenderTargetView{f.rtv}, nil)
	f.ctx.Draw(3, 0)
	f.end()

	if got := h.count(slog.LevelWarn); got != 2 {
		t.Errorf("warnings = %d, want 2 (%v)", got, h.msgs)
	}
	if *breaks != 2 {
		t.Errorf("debug breaks = %d, want 2", *breaks)
	}
	if got := countCmd(f.drv.commands(), "CmdDraw"); got != 0 {
		t.Errorf("CmdDraw = %d, want 0", got)
	}
	if got := f.cb.RefCount(); got != 1 {
		t.Errorf("rejected binding kept a reference: RefCount = %d", got)
	}
}

func TestBindSlotOutOfRange(t *testing.T) {
	f := newFixture(t, newFakeDriver())
	h := captureLogs(t)
	breaks := captureBreaks(t)

	f.begin()
	f.bindDraw()
	f.ctx.SetConstantBuffer(f.vs, f.cb, rhi.MaxBindingsPerType)
	f.end()

	if h.count(slog.LevelWarn) != 1 || *breaks != 1 {
		t.Errorf("warnings = %d, breaks = %d, want 1 and 1", h.count(slog.LevelWarn), *breaks)
	}
}

func TestStateReferences(t *testing.T) {
	f := newFixture(t, newFakeDriver())
	f.begin()
	f.bindDraw()
	f.ctx.SetConstantBuffer(f.vs, f.cb, 0)

	if got := f.vb.RefCount(); got != 2 {
		t.Errorf("bound vertex buffer RefCount = %d, want 2", got)
	}
	if got := f.cb.RefCount(); got != 2 {
		t.Errorf("bound constant buffer RefCount = %d, want 2", got)
	}
	// The state and the pipeline's descriptor state each hold one.
	if got := f.pipe.RefCount(); got != 3 {
		t.Errorf("bound pipeline RefCount = %d, want 3", got)
	}

	f.ctx.State().ResetState()
	for _, r := range []rhi.Resource{f.vb, f.cb, f.pipe} {
		if got := r.RefCount(); got != 1 {
			t.Errorf("%s RefCount after ResetState = %d, want 1", r.Name(), got)
		}
	}
	if f.ctx.State().GraphicsPipeline() != nil {
		t.Error("GraphicsPipeline after ResetState is not nil")
	}
	f.end()
}

func TestDescriptorStatePruned(t *testing.T) {
	f := newFixture(t, newFakeDriver())
	f.begin()
	f.bindDraw()
	f.ctx.SetGraphicsPipelineState(nil)
	f.end()

	s := f.ctx.State()
	if len(s.descriptorStates) != 1 {
		t.Fatalf("descriptor states = %d, want 1", len(s.descriptorStates))
	}
	f.begin()
	if len(s.descriptorStates) != 1 {
		t.Errorf("descriptor state of a live pipeline was pruned")
	}
	f.end()

	f.pipe.Release()
	f.begin()
	if len(s.descriptorStates) != 0 {
		t.Errorf("descriptor states = %d after the pipeline was released, want 0", len(s.descriptorStates))
	}
	f.end()
}

func TestSRVDescriptorFollowsTextureLayout(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(c *Context, tex rhi.Texture)
		change func(c *Context, tex rhi.Texture, uav rhi.UnorderedAccessView)
		want   ImageLayout
	}{
		{
			name: "TransitionTexture",
			change: func(c *Context, tex rhi.Texture, _ rhi.UnorderedAccessView) {
				c.TransitionTexture(tex, rhi.AccessPixelShaderResource, rhi.AccessUnorderedAccess)
			},
			want: LayoutGeneral,
		},
		{
			name: "UpdateTexture2D",
			setup: func(c *Context, tex rhi.Texture) {
				c.TransitionTexture(tex, rhi.AccessPixelShaderResource, rhi.AccessUnorderedAccess)
			},
			change: func(c *Context, tex rhi.Texture, _ rhi.UnorderedAccessView) {
				c.DiscardResource(tex)
				c.UpdateTexture2D(tex, 4, 4, 0, make([]byte, 4*4*4))
			},
			want: LayoutShaderReadOnlyOptimal,
		},
		{
			name: "GenerateMips",
			setup: func(c *Context, tex rhi.Texture) {
				c.TransitionTexture(tex, rhi.AccessPixelShaderResource, rhi.AccessUnorderedAccess)
			},
			change: func(c *Context, tex rhi.Texture, _ rhi.UnorderedAccessView) {
				c.GenerateMips(tex)
			},
			want: LayoutShaderReadOnlyOptimal,
		},
		{
			name: "ClearUnorderedAccessViewFloat",
			change: func(c *Context, _ rhi.Texture, uav rhi.UnorderedAccessView) {
				c.ClearUnorderedAccessViewFloat(uav, rhi.Color{R: 1})
			},
			want: LayoutGeneral,
		},
		{
			name: "unchanged",
			want: LayoutShaderReadOnlyOptimal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, newFakeDriver())
			tex, err := f.dev.CreateTexture(rhi.TextureDesc{
				Label:         "sampled",
				Format:        gputypes.TextureFormatRGBA8Unorm,
				Width:         16,
				Height:        16,
				MipLevels:     2,
				Flags:         rhi.TextureShaderResource | rhi.TextureUnorderedAccess,
				InitialAccess: rhi.AccessPixelShaderResource,
			}, nil)
			if err != nil {
				t.Fatalf("CreateTexture: %v", err)
			}
			defer tex.Release()
			srv, err := f.dev.CreateShaderResourceView(rhi.ShaderResourceViewDesc{Texture: tex})
			if err != nil {
				t.Fatalf("CreateShaderResourceView: %v", err)
			}
			defer srv.Release()
			uav, err := f.dev.CreateUnorderedAccessView(rhi.UnorderedAccessViewDesc{Texture: tex})
			if err != nil {
				t.Fatalf("CreateUnorderedAccessView: %v", err)
			}
			defer uav.Release()

			view := srv.(*shaderResourceView).handle
			writes := func() []DescriptorWrite {
				var out []DescriptorWrite
				for _, w := range f.drv.writes {
					if w.ImageView == view {
						out = append(out, w)
					}
				}
				return out
			}

			f.begin()
			if tt.setup != nil {
				tt.setup(f.ctx, tex)
			}
			f.bindDraw()
			f.ctx.SetShaderResourceView(f.vs, srv, 0)
			f.ctx.Draw(3, 0)
			before := len(writes())

			if tt.change != nil {
				tt.change(f.ctx, tex, uav)
			}
			f.bindDraw()
			f.ctx.Draw(3, 0)
			f.end()

			got := writes()
			if tt.change == nil {
				if len(got) != before {
					t.Errorf("descriptor rewritten %d times without a layout change", len(got)-before)
				}
				return
			}
			if len(got) != before+1 {
				t.Fatalf("srv writes after %s = %d, want %d", tt.name, len(got), before+1)
			}
			last := got[len(got)-1]
			if tracked := srvLayout(tex.(*deviceTexture)); last.Layout != tracked || last.Layout != tt.want {
				t.Errorf("descriptor layout = %v, tracked %v, want %v", last.Layout, tracked, tt.want)
			}
		})
	}
}
