package arena

import (
	"testing"
	"unsafe"
)

func TestArenaAllocateAlignment(t *testing.T) {
	a := New(128)
	for _, align := range []int{1, 2, 4, 8, 16, 64} {
		a.Allocate(3, 1)
		p := a.Allocate(8, align)
		addr := uintptr(unsafe.Pointer(unsafe.SliceData(p)))
		if addr%uintptr(align) != 0 {
			t.Errorf("Allocate(8, %d) address %#x is not aligned", align, addr)
		}
		if len(p) != 8 || cap(p) != 8 {
			t.Errorf("Allocate(8, %d) len/cap = %d/%d, want 8/8", align, len(p), cap(p))
		}
	}
}

func TestArenaGrowsAndResets(t *testing.T) {
	a := New(64)

	first := a.Allocate(48, 1)
	for i := range first {
		first[i] = 0xFF
	}
	a.Allocate(48, 1)
	a.Allocate(1000, 8)

	s := a.Stats()
	if s.NumAllocations != 3 {
		t.Errorf("NumAllocations = %d, want 3", s.NumAllocations)
	}
	if s.NumBytesAllocated != 1096 {
		t.Errorf("NumBytesAllocated = %d, want 1096", s.NumBytesAllocated)
	}
	if s.NumBlocks != 3 {
		t.Errorf("NumBlocks = %d, want 3", s.NumBlocks)
	}

	a.Reset()
	s = a.Stats()
	if s.NumAllocations != 0 || s.NumBytesAllocated != 0 {
		t.Errorf("Stats() after Reset = %v, want zero counters", s)
	}
	if s.NumBlocks != 3 {
		t.Errorf("NumBlocks after Reset = %d, want blocks kept", s.NumBlocks)
	}

	again := a.Allocate(48, 1)
	for i, b := range again {
		if b != 0 {
			t.Fatalf("byte %d of reused block = %#x, want 0", i, b)
		}
	}
}

func TestArenaZeroSize(t *testing.T) {
	var a Arena
	if p := a.Allocate(0, 4); len(p) != 0 {
		t.Errorf("Allocate(0) len = %d, want 0", len(p))
	}
	if a.Stats().NumBlocks != 0 {
		t.Error("zero-size allocation created a block")
	}
}

func TestArenaBadAlignmentPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Allocate with alignment 3 did not panic")
		}
	}()
	New(0).Allocate(4, 3)
}

func TestHelpers(t *testing.T) {
	a := New(0)

	src := []byte{1, 2, 3}
	b := Bytes(a, src)
	src[0] = 9
	if b[0] != 1 {
		t.Errorf("Bytes() aliases source: b[0] = %d", b[0])
	}

	words := []uint32{0xDEADBEEF, 7}
	w := Uint32s(a, words)
	words[1] = 0
	if len(w) != 2 || w[0] != 0xDEADBEEF || w[1] != 7 {
		t.Errorf("Uint32s() = %v, want [0xDEADBEEF 7]", w)
	}
	if Uint32s(a, nil) != nil {
		t.Error("Uint32s(nil) should return nil")
	}

	if got := String(a, "marker"); got != "marker" {
		t.Errorf("String() = %q, want %q", got, "marker")
	}
}

func TestSlab(t *testing.T) {
	var s Slab[*int]
	v := 1

	p := s.Alloc(3)
	p[0], p[1], p[2] = &v, &v, &v
	q := s.Copy([]*int{&v})
	if len(q) != 1 || cap(q) != 1 || q[0] != &v {
		t.Errorf("Copy() = %v, want one element", q)
	}
	if s.Len() != 4 {
		t.Errorf("Len() = %d, want 4", s.Len())
	}

	big := s.Alloc(defaultSlabChunk + 1)
	if len(big) != defaultSlabChunk+1 {
		t.Errorf("Alloc(big) len = %d", len(big))
	}

	s.Reset()
	if s.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", s.Len())
	}
	for i, e := range p {
		if e != nil {
			t.Errorf("element %d not cleared by Reset", i)
		}
	}
	if s.Alloc(0) != nil {
		t.Error("Alloc(0) should return nil")
	}
}

func BenchmarkArenaAllocate(b *testing.B) {
	a := New(0)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		a.Allocate(64, 8)
		if i%1024 == 1023 {
			a.Reset()
		}
	}
}
