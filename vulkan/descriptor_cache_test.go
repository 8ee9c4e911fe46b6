package vulkan

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/gogpu/rhi"
)

func TestDescriptorSetCachePoolRecycling(t *testing.T) {
	drv := newFakeDriver()
	drv.poolCapacity = 2
	c := NewDescriptorSetCache(drv, 2, DefaultPoolSizes(), DefaultDescriptors{})
	defer c.Release()

	checkCounts := func(step string, active, pending, available int) {
		t.Helper()
		a, p, v := c.PoolCounts()
		if a != active || p != pending || v != available {
			t.Errorf("%s: PoolCounts = (%d, %d, %d), want (%d, %d, %d)", step, a, p, v, active, pending, available)
		}
	}
	alloc := func() {
		t.Helper()
		if _, err := c.AllocateDescriptorSet(1); err != nil {
			t.Fatalf("AllocateDescriptorSet: %v", err)
		}
	}

	checkCounts("initial", 0, 0, 0)
	c.SetSerial(1)
	alloc()
	alloc()
	checkCounts("first pool full", 1, 0, 0)
	alloc()
	checkCounts("switched", 1, 1, 0)

	if err := c.ResetPendingDescriptorPools(0); err != nil {
		t.Fatalf("ResetPendingDescriptorPools: %v", err)
	}
	checkCounts("serial 1 in flight", 1, 1, 0)
	if err := c.ResetPendingDescriptorPools(1); err != nil {
		t.Fatalf("ResetPendingDescriptorPools: %v", err)
	}
	checkCounts("serial 1 completed", 1, 0, 1)

	c.SetSerial(2)
	alloc()
	alloc()
	checkCounts("reused", 1, 1, 0)
	if got := drv.count("CreateDescriptorPool"); got != 2 {
		t.Errorf("CreateDescriptorPool = %d, want 2", got)
	}
	if got := drv.count("ResetDescriptorPool"); got != 1 {
		t.Errorf("ResetDescriptorPool = %d, want 1", got)
	}

	c.Release()
	if got := drv.count("DestroyDescriptorPool"); got != 2 {
		t.Errorf("DestroyDescriptorPool = %d, want 2", got)
	}
	checkCounts("released", 0, 0, 0)
}

func TestDescriptorSetCacheAllocationFailure(t *testing.T) {
	deviceLost := errors.New("device lost")
	tests := []struct {
		name        string
		err         error
		wantPools   int
		wantPending int
	}{
		{"out of pool memory twice", ErrOutOfPoolMemory, 2, 1},
		{"fragmented twice", ErrFragmentedPool, 2, 1},
		{"other error", deviceLost, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := captureLogs(t)
			drv := newFakeDriver()
			drv.allocErr = tt.err
			c := NewDescriptorSetCache(drv, 8, DefaultPoolSizes(), DefaultDescriptors{})
			defer c.Release()

			set, err := c.AllocateDescriptorSet(1)
			if set != 0 {
				t.Errorf("set = %d, want 0", set)
			}
			if !errors.Is(err, ErrDescriptorAllocation) {
				t.Errorf("err = %v, want ErrDescriptorAllocation", err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want it to wrap %v", err, tt.err)
			}
			if got := drv.count("CreateDescriptorPool"); got != tt.wantPools {
				t.Errorf("CreateDescriptorPool = %d, want %d", got, tt.wantPools)
			}
			if _, pending, _ := c.PoolCounts(); pending != tt.wantPending {
				t.Errorf("pending pools = %d, want %d", pending, tt.wantPending)
			}
			if got := h.count(slog.LevelError); got != 1 {
				t.Errorf("error logs = %d, want 1", got)
			}
		})
	}
}

func TestDescriptorSetCacheDefaults(t *testing.T) {
	layout := newSetLayout([]rhi.ShaderBinding{
		{Type: rhi.BindingConstantBuffer, Index: 0},
		{Type: rhi.BindingConstantBuffer, Index: 1},
		{Type: rhi.BindingTextureSRV, Index: 0},
		{Type: rhi.BindingBufferSRV, Index: 1},
		{Type: rhi.BindingTextureUAV, Index: 0},
		{Type: rhi.BindingSampler, Index: 2},
	})
	dummy := DefaultDescriptors{Buffer: 100, BufferRange: 256, SampledView: 101, StorageView: 102, Sampler: 103}
	null := DefaultDescriptors{Null: true, Sampler: 103}

	tests := []struct {
		name     string
		defaults DefaultDescriptors
		want     map[uint32]DescriptorWrite
	}{
		{"dummy", dummy, map[uint32]DescriptorWrite{
			0:  {Binding: 0, Type: DescriptorTypeUniformBuffer, Buffer: 7, Range: 64},
			1:  {Binding: 1, Type: DescriptorTypeUniformBuffer, Buffer: 100, Range: 256},
			16: {Binding: 16, Type: DescriptorTypeSampledImage, ImageView: 101, Layout: LayoutGeneral},
			17: {Binding: 17, Type: DescriptorTypeStorageBuffer, Buffer: 100, Range: 256},
			32: {Binding: 32, Type: DescriptorTypeStorageImage, ImageView: 9, Layout: LayoutGeneral},
			50: {Binding: 50, Type: DescriptorTypeSampler, Sampler: 103},
		}},
		{"null", null, map[uint32]DescriptorWrite{
			0:  {Binding: 0, Type: DescriptorTypeUniformBuffer, Buffer: 7, Range: 64},
			1:  {Binding: 1, Type: DescriptorTypeUniformBuffer, Range: WholeSize},
			16: {Binding: 16, Type: DescriptorTypeSampledImage, Layout: LayoutGeneral},
			17: {Binding: 17, Type: DescriptorTypeStorageBuffer, Range: WholeSize},
			32: {Binding: 32, Type: DescriptorTypeStorageImage, ImageView: 9, Layout: LayoutGeneral},
			50: {Binding: 50, Type: DescriptorTypeSampler, Sampler: 103},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := newFakeDriver()
			c := NewDescriptorSetCache(drv, 8, DefaultPoolSizes(), tt.defaults)
			defer c.Release()

			set, err := c.AllocateDescriptorSet(layout.Handle)
			if err != nil {
				t.Fatalf("AllocateDescriptorSet: %v", err)
			}
			c.SetConstantBuffers(set, &layout, []ResourceBinding{{Buffer: 7, Range: 64}})
			c.SetSRVs(set, &layout, nil)
			c.SetUAVs(set, &layout, []ResourceBinding{{View: 9, Layout: LayoutGeneral}})
			c.SetSamplers(set, &layout, nil)
			if drv.count("UpdateDescriptorSets") != 0 {
				t.Fatal("writes issued before Commit")
			}
			c.Commit()
			c.Commit()

			if got := drv.count("UpdateDescriptorSets"); got != 1 {
				t.Errorf("UpdateDescriptorSets = %d, want 1", got)
			}
			if len(drv.writes) != len(tt.want) {
				t.Fatalf("writes = %d, want %d", len(drv.writes), len(tt.want))
			}
			for _, w := range drv.writes {
				want, ok := tt.want[w.Binding]
				if !ok {
					t.Errorf("unexpected write to binding %d", w.Binding)
					continue
				}
				want.Set = set
				if w != want {
					t.Errorf("binding %d: got %+v, want %+v", w.Binding, w, want)
				}
			}
		})
	}
}

func TestDescriptorsAtDraw(t *testing.T) {
	for _, null := range []bool{true, false} {
		drv := newFakeDriver()
		drv.props.NullDescriptor = null
		f := newFixture(t, drv)

		f.begin()
		f.bindDraw()
		f.ctx.SetConstantBuffer(f.vs, f.cb, 0)
		f.ctx.Draw(3, 0)
		f.end()

		writes := make(map[uint32]DescriptorWrite)
		for _, w := range drv.writes {
			writes[w.Binding] = w
		}
		cb := f.cb.(*deviceBuffer)
		if w := writes[constantBufferBase]; w.Buffer != cb.handle || w.Range != cb.desc.Size {
			t.Errorf("null=%v: constant buffer write %+v", null, w)
		}

		var wantBuffer Buffer
		var wantView ImageView
		if !null {
			wantBuffer = f.dev.defaultBuffer.handle
			wantView = f.dev.defaultSRV.handle
		}
		if w := writes[constantBufferBase+1]; w.Buffer != wantBuffer {
			t.Errorf("null=%v: unset constant buffer wrote buffer %d, want %d", null, w.Buffer, wantBuffer)
		}
		if w := writes[shaderResourceBase]; w.ImageView != wantView {
			t.Errorf("null=%v: unset texture wrote view %d, want %d", null, w.ImageView, wantView)
		}
		for _, b := range []uint32{samplerBase, samplerBase + 1} {
			if w := writes[b]; w.Sampler != f.dev.defaultSampler.handle {
				t.Errorf("null=%v: binding %d sampler = %d, want the default sampler", null, b, w.Sampler)
			}
		}
	}
}
