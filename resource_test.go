package rhi

import (
	"sync"
	"testing"
)

type testBuffer struct {
	RefCounted
	desc BufferDesc
}

func (b *testBuffer) Desc() BufferDesc { return b.desc }

func newTestBuffer(name string, destroyed *int) *testBuffer {
	b := &testBuffer{desc: BufferDesc{Label: name, Size: 16, Flags: BufferVertex}}
	b.Init(name, func() { *destroyed++ })
	return b
}

func TestRefCountedLifecycle(t *testing.T) {
	var destroyed int
	b := newTestBuffer("vb", &destroyed)

	if got := b.RefCount(); got != 1 {
		t.Fatalf("RefCount() after Init = %d, want 1", got)
	}
	if got := b.AddRef(); got != 2 {
		t.Errorf("AddRef() = %d, want 2", got)
	}
	if got := b.Release(); got != 1 {
		t.Errorf("Release() = %d, want 1", got)
	}
	if destroyed != 0 {
		t.Fatalf("destroy ran with live references")
	}
	if got := b.Release(); got != 0 {
		t.Errorf("Release() = %d, want 0", got)
	}
	if destroyed != 1 {
		t.Errorf("destroy ran %d times, want 1", destroyed)
	}
}

func TestRefCountedReleasePastZeroPanics(t *testing.T) {
	var destroyed int
	b := newTestBuffer("vb", &destroyed)
	b.Release()

	defer func() {
		if recover() == nil {
			t.Error("Release past zero did not panic")
		}
	}()
	b.Release()
}

func TestRefCountedConcurrent(t *testing.T) {
	var destroyed int
	b := newTestBuffer("shared", &destroyed)

	const n = 64
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.AddRef()
			b.Release()
		}()
	}
	wg.Wait()

	if got := b.RefCount(); got != 1 {
		t.Errorf("RefCount() = %d, want 1", got)
	}
	if destroyed != 0 {
		t.Errorf("destroy ran %d times, want 0", destroyed)
	}
}

func TestGenericAddRefReleaseNil(t *testing.T) {
	var b Buffer
	if got := AddRef(b); got != nil {
		t.Errorf("AddRef(nil) = %v, want nil", got)
	}
	Release(b)

	var destroyed int
	tb := newTestBuffer("vb", &destroyed)
	AddRef[Buffer](tb)
	if got := tb.RefCount(); got != 2 {
		t.Errorf("RefCount() = %d, want 2", got)
	}
	Release[Buffer](tb)
	Release[Buffer](tb)
	if destroyed != 1 {
		t.Errorf("destroy ran %d times, want 1", destroyed)
	}
}

func TestGenericAddRefReleaseTypedNil(t *testing.T) {
	var tb *testBuffer
	tests := []struct {
		name string
		r    Buffer
	}{
		{"nil interface", nil},
		{"nil pointer", tb},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AddRef(tt.r); got != tt.r {
				t.Errorf("AddRef() = %v, want the argument back", got)
			}
			Release(tt.r)
			if got := ResourceName(tt.r); got != "<nil>" {
				t.Errorf("ResourceName() = %q, want <nil>", got)
			}
		})
	}
}

func TestIsNilPropagatesOtherPanics(t *testing.T) {
	defer func() {
		if e := recover(); e != "refcount" {
			t.Errorf("recover() = %v, want the RefCount panic", e)
		}
	}()
	isNil(&panicky{})
}

type panicky struct{ testBuffer }

func (*panicky) RefCount() int32 { panic("refcount") }

func TestResourceName(t *testing.T) {
	var destroyed int
	tests := []struct {
		name string
		r    Resource
		want string
	}{
		{"nil", nil, "<nil>"},
		{"nil pointer", (*testBuffer)(nil), "<nil>"},
		{"unnamed", newTestBuffer("", &destroyed), "<unnamed>"},
		{"named", newTestBuffer("vertices", &destroyed), "vertices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResourceName(tt.r); got != tt.want {
				t.Errorf("ResourceName() = %q, want %q", got, tt.want)
			}
		})
	}
}
