package vulkan

import "testing"

func TestBarrierBatcher(t *testing.T) {
	drv := newFakeDriver()
	var b barrierBatcher

	if b.flush(drv, 1) {
		t.Fatal("flush of an empty batch recorded a barrier")
	}
	b.addBuffer(BufferBarrier{Buffer: 5, SrcAccess: AccessTransferWrite, DstAccess: AccessShaderRead}, StageTransfer, StageComputeShader)
	b.addImage(ImageBarrier{Image: 6, OldLayout: LayoutUndefined, NewLayout: LayoutGeneral}, StageTopOfPipe, StageFragmentShader)
	b.addImage(ImageBarrier{Image: 7, OldLayout: LayoutUndefined, NewLayout: LayoutGeneral}, StageTopOfPipe, StageFragmentShader)
	if b.srcStage != StageTransfer|StageTopOfPipe || b.dstStage != StageComputeShader|StageFragmentShader {
		t.Errorf("stages = %v -> %v", b.srcStage, b.dstStage)
	}

	if !b.flush(drv, 1) {
		t.Fatal("flush recorded nothing")
	}
	if len(drv.barriers) != 1 {
		t.Fatalf("CmdPipelineBarrier = %d, want 1", len(drv.barriers))
	}
	if got := drv.barriers[0]; got.buffers != 1 || len(got.images) != 2 {
		t.Errorf("barrier holds %d buffers and %d images, want 1 and 2", got.buffers, len(got.images))
	}
	if !b.empty() || b.srcStage != 0 {
		t.Error("batch not reset after flush")
	}
}

func TestLayoutInfo(t *testing.T) {
	tests := []struct {
		layout ImageLayout
		access AccessFlags
	}{
		{LayoutUndefined, 0},
		{LayoutTransferDstOptimal, AccessTransferWrite},
		{LayoutTransferSrcOptimal, AccessTransferRead},
		{LayoutColorAttachmentOptimal, AccessColorAttachmentWrite},
	}
	for _, tt := range tests {
		access, _ := layoutInfo(tt.layout)
		if access&tt.access != tt.access {
			t.Errorf("layoutInfo(%d) access = %#x, want %#x set", tt.layout, access, tt.access)
		}
	}
}
