package vulkan

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
)

func fbKey(pass RenderPass, views ...ImageView) FramebufferKey {
	k := FramebufferKey{RenderPass: pass, Width: 64, Height: 64, Layers: 1, NumAttachments: uint32(len(views))}
	copy(k.Attachments[:], views)
	return k
}

func TestFramebufferCacheHit(t *testing.T) {
	drv := newFakeDriver()
	c := NewFramebufferCache(drv)
	defer c.Release()

	a, err := c.GetFramebuffer(fbKey(1, 10, 11))
	if err != nil {
		t.Fatalf("GetFramebuffer: %v", err)
	}
	b, err := c.GetFramebuffer(fbKey(1, 10, 11))
	if err != nil {
		t.Fatalf("GetFramebuffer: %v", err)
	}
	if a != b {
		t.Errorf("same key returned %d and %d", a, b)
	}
	if got := drv.count("CreateFramebuffer"); got != 1 {
		t.Errorf("CreateFramebuffer = %d, want 1", got)
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 || s.Len != 1 {
		t.Errorf("Stats = %+v", s)
	}

	if _, err := c.GetFramebuffer(fbKey(1, 11, 10)); err != nil {
		t.Fatalf("GetFramebuffer: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("attachment order ignored: Len = %d, want 2", c.Len())
	}
}

func TestFramebufferCacheInvalidation(t *testing.T) {
	drv := newFakeDriver()
	c := NewFramebufferCache(drv)
	for _, k := range []FramebufferKey{
		fbKey(1, 10, 11),
		fbKey(1, 12),
		fbKey(2, 10),
		fbKey(2, 13),
	} {
		if _, err := c.GetFramebuffer(k); err != nil {
			t.Fatalf("GetFramebuffer: %v", err)
		}
	}

	tests := []struct {
		name        string
		release     func()
		wantLen     int
		wantDestroy int
	}{
		{"null view", func() { c.OnReleaseImageView(0) }, 4, 0},
		{"unused view", func() { c.OnReleaseImageView(99) }, 4, 0},
		{"shared view", func() { c.OnReleaseImageView(10) }, 2, 2},
		{"render pass", func() { c.OnReleaseRenderPass(1) }, 1, 3},
		{"release", c.Release, 0, 4},
	}
	for _, tt := range tests {
		tt.release()
		if c.Len() != tt.wantLen {
			t.Errorf("%s: Len = %d, want %d", tt.name, c.Len(), tt.wantLen)
		}
		if got := drv.count("DestroyFramebuffer"); got != tt.wantDestroy {
			t.Errorf("%s: DestroyFramebuffer = %d, want %d", tt.name, got, tt.wantDestroy)
		}
	}
}

func TestFramebufferCacheTooManyAttachments(t *testing.T) {
	c := NewFramebufferCache(newFakeDriver())
	k := fbKey(1, 10)
	k.NumAttachments = rhi.MaxRenderTargets + 2
	if _, err := c.GetFramebuffer(k); !errors.Is(err, rhi.ErrInvalidDesc) {
		t.Errorf("err = %v, want ErrInvalidDesc", err)
	}
}

func TestRenderPassReleaseDropsFramebuffers(t *testing.T) {
	drv := newFakeDriver()
	fbs := NewFramebufferCache(drv)
	passes := NewRenderPassCache(drv, fbs)

	key := renderPassKeyFor([]gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm}, gputypes.TextureFormatDepth32Float, false, 1)
	pass, err := passes.GetRenderPass(key)
	if err != nil {
		t.Fatalf("GetRenderPass: %v", err)
	}
	if again, _ := passes.GetRenderPass(key); again != pass {
		t.Errorf("GetRenderPass returned %d then %d", pass, again)
	}
	if _, err := fbs.GetFramebuffer(fbKey(pass, 10, 11)); err != nil {
		t.Fatalf("GetFramebuffer: %v", err)
	}

	passes.Release()
	if got := drv.count("DestroyFramebuffer"); got != 1 {
		t.Errorf("DestroyFramebuffer = %d, want 1", got)
	}
	if got := drv.count("DestroyRenderPass"); got != 1 {
		t.Errorf("DestroyRenderPass = %d, want 1", got)
	}
	if fbs.Len() != 0 || passes.Len() != 0 {
		t.Errorf("Len after release: framebuffers %d, passes %d", fbs.Len(), passes.Len())
	}
}

func TestViewReleaseDropsFramebuffers(t *testing.T) {
	f := newFixture(t, newFakeDriver())
	f.begin()
	f.bindDraw()
	f.ctx.Draw(3, 0)
	f.ctx.SetRenderTargets(nil, nil)
	f.end()

	if got := f.dev.FramebufferCache().Len(); got != 1 {
		t.Fatalf("framebuffers = %d, want 1", got)
	}
	if got := f.drv.count("CreateRenderPass"); got != 1 {
		t.Errorf("CreateRenderPass = %d, want the pipeline's pass reused", got)
	}

	f.rtv.Release()
	if got := f.dev.FramebufferCache().Len(); got != 1 {
		t.Errorf("framebuffer dropped before the GPU finished with the view")
	}
	if err := f.dev.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	if got := f.dev.FramebufferCache().Len(); got != 0 {
		t.Errorf("framebuffers after view release = %d, want 0", got)
	}
	if got := f.drv.count("DestroyImageView"); got != 1 {
		t.Errorf("DestroyImageView = %d, want 1", got)
	}
}
