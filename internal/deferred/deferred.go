// Package deferred holds destruction work that must wait for the GPU.
//
// Backends tag each entry with the submission serial that last used the
// object and flush the queue with the highest serial known to have
// completed.
package deferred

import "sync"

// Queue is a list of pending destructions. The zero value is ready for use.
//
// Resources are released from any goroutine, so Queue is locked.
type Queue struct {
	mu      sync.Mutex
	entries []entry
}

type entry struct {
	serial  uint64
	destroy func()
}

// Enqueue schedules destroy to run once serial has completed.
func (q *Queue) Enqueue(serial uint64, destroy func()) {
	q.mu.Lock()
	q.entries = append(q.entries, entry{serial: serial, destroy: destroy})
	q.mu.Unlock()
}

// Flush runs every entry whose serial is at most completed and returns the
// number run. Entries are run in enqueue order, outside the lock, so a
// destroy function may enqueue more work.
func (q *Queue) Flush(completed uint64) int {
	q.mu.Lock()
	var ready []entry
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.serial <= completed {
			ready = append(ready, e)
		} else {
			kept = append(kept, e)
		}
	}
	clear(q.entries[len(kept):])
	q.entries = kept
	q.mu.Unlock()

	for _, e := range ready {
		e.destroy()
	}
	return len(ready)
}

// FlushAll runs every entry regardless of serial.
func (q *Queue) FlushAll() int {
	return q.Flush(^uint64(0))
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
