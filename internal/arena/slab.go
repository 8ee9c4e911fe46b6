package arena

// Slab is a typed bump allocator. It hands out subslices of a shared backing
// array and zeroes them on Reset so that pointers held by released elements
// do not keep objects alive.
//
// The zero value is ready to use.
type Slab[T any] struct {
	chunks  [][]T
	current int
	used    int
	chunk   int
	n       int
}

const defaultSlabChunk = 256

// Alloc returns n zero elements. The slice has capacity n, so appending to
// it never overwrites a neighbouring allocation.
func (s *Slab[T]) Alloc(n int) []T {
	if n <= 0 {
		return nil
	}
	if s.chunk == 0 {
		s.chunk = defaultSlabChunk
	}
	s.n += n
	for ; s.current < len(s.chunks); s.current, s.used = s.current+1, 0 {
		c := s.chunks[s.current]
		if s.used+n <= len(c) {
			p := c[s.used : s.used+n : s.used+n]
			s.used += n
			return p
		}
	}
	size := max(s.chunk, n)
	c := make([]T, size)
	s.chunks = append(s.chunks, c)
	s.current = len(s.chunks) - 1
	s.used = n
	return c[:n:n]
}

// Copy allocates len(src) elements and copies src into them.
func (s *Slab[T]) Copy(src []T) []T {
	dst := s.Alloc(len(src))
	copy(dst, src)
	return dst
}

// Reset zeroes every element handed out since the last Reset and makes the
// storage available again.
func (s *Slab[T]) Reset() {
	for i, c := range s.chunks {
		if i < s.current {
			clear(c)
		} else if i == s.current {
			clear(c[:s.used])
		}
	}
	s.current = 0
	s.used = 0
	s.n = 0
}

// Len returns the number of elements currently handed out.
func (s *Slab[T]) Len() int {
	return s.n
}
