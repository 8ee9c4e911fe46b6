// Package arena implements the bump allocators that back a command list.
//
// An [Arena] hands out raw byte storage for inline command payloads such as
// shader constants and upload data. A [Slab] does the same for typed values
// that hold Go pointers (interface values, resource arrays), which must not
// be hidden from the garbage collector inside byte memory.
//
// Neither type is safe for concurrent use. One command list owns one set of
// allocators and resets them in bulk after execution.
package arena

import (
	"fmt"
	"unsafe"
)

// DefaultBlockSize is the size of each block allocated by an Arena created
// with New(0).
const DefaultBlockSize = 64 << 10

type block struct {
	buf  []byte
	used int
}

// Arena is a linear allocator over a growable list of byte blocks.
// Allocations are never freed individually; Reset releases all of them at
// once and keeps the blocks for reuse.
type Arena struct {
	blocks    []*block
	current   int
	blockSize int

	numAllocs int
	numBytes  int
}

// New returns an arena that grows in blocks of blockSize bytes.
// blockSize <= 0 selects DefaultBlockSize.
func New(blockSize int) *Arena {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Arena{blockSize: blockSize}
}

// Allocate returns size zeroed bytes aligned to alignment, which must be a
// power of two (0 is treated as 1). Allocate always succeeds; it appends a
// new block when the current one cannot satisfy the request.
//
// The returned slice is valid until the next Reset.
func (a *Arena) Allocate(size, alignment int) []byte {
	if size < 0 {
		panic("arena: negative allocation size")
	}
	if alignment <= 0 {
		alignment = 1
	}
	if alignment&(alignment-1) != 0 {
		panic(fmt.Sprintf("arena: alignment %d is not a power of two", alignment))
	}
	if a.blockSize == 0 {
		a.blockSize = DefaultBlockSize
	}

	a.numAllocs++
	a.numBytes += size
	if size == 0 {
		return []byte{}
	}

	for ; a.current < len(a.blocks); a.current++ {
		if p, ok := a.blocks[a.current].take(size, alignment); ok {
			return p
		}
	}

	n := a.blockSize
	if need := size + alignment; need > n {
		n = need
	}
	b := &block{buf: make([]byte, n)}
	a.blocks = append(a.blocks, b)
	a.current = len(a.blocks) - 1
	p, _ := b.take(size, alignment)
	return p
}

func (b *block) take(size, alignment int) ([]byte, bool) {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(b.buf)))
	start := alignUp(base+uintptr(b.used), uintptr(alignment)) - base
	end := int(start) + size
	if end > len(b.buf) {
		return nil, false
	}
	b.used = end
	return b.buf[start:end:end], true
}

func alignUp(v, n uintptr) uintptr {
	return (v + n - 1) &^ (n - 1)
}

// Reset invalidates every allocation made since the last Reset. The used
// part of each block is cleared so later allocations are zeroed again.
func (a *Arena) Reset() {
	for _, b := range a.blocks {
		clear(b.buf[:b.used])
		b.used = 0
	}
	a.current = 0
	a.numAllocs = 0
	a.numBytes = 0
}

// Stats holds statistics of an Arena.
type Stats struct {
	NumAllocations    int
	NumBytesAllocated int
	NumBlocks         int
	Capacity          int
}

func (s Stats) String() string {
	return fmt.Sprintf("{allocs: %v, bytes: %v, blocks: %v, capacity: %v}",
		s.NumAllocations, s.NumBytesAllocated, s.NumBlocks, s.Capacity)
}

// Stats returns statistics of the current state of the Arena.
func (a *Arena) Stats() Stats {
	s := Stats{
		NumAllocations:    a.numAllocs,
		NumBytesAllocated: a.numBytes,
		NumBlocks:         len(a.blocks),
	}
	for _, b := range a.blocks {
		s.Capacity += len(b.buf)
	}
	return s
}

// Bytes copies src into the arena.
func Bytes(a *Arena, src []byte) []byte {
	dst := a.Allocate(len(src), 1)
	copy(dst, src)
	return dst
}

// Uint32s copies src into 4-byte aligned arena memory.
func Uint32s(a *Arena, src []uint32) []uint32 {
	if len(src) == 0 {
		return nil
	}
	raw := a.Allocate(len(src)*4, 4)
	dst := unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(raw))), len(src))
	copy(dst, src)
	return dst
}

// String copies s into the arena and returns a string backed by arena
// memory. The result must not be retained past the next Reset.
func String(a *Arena, s string) string {
	if s == "" {
		return ""
	}
	b := a.Allocate(len(s), 1)
	copy(b, s)
	return unsafe.String(unsafe.SliceData(b), len(b))
}
