package deferred

import (
	"slices"
	"testing"
)

func TestQueue(t *testing.T) {
	var q Queue
	var ran []int
	for i, serial := range []uint64{1, 2, 1, 3} {
		q.Enqueue(serial, func() { ran = append(ran, i) })
	}

	tests := []struct {
		completed uint64
		wantRun   int
		wantLeft  int
		wantOrder []int
	}{
		{0, 0, 4, nil},
		{1, 2, 2, []int{0, 2}},
		{1, 0, 2, []int{0, 2}},
		{3, 2, 0, []int{0, 2, 1, 3}},
	}
	for _, tt := range tests {
		if got := q.Flush(tt.completed); got != tt.wantRun {
			t.Errorf("Flush(%d) = %d, want %d", tt.completed, got, tt.wantRun)
		}
		if q.Len() != tt.wantLeft {
			t.Errorf("after Flush(%d): Len = %d, want %d", tt.completed, q.Len(), tt.wantLeft)
		}
		if !slices.Equal(ran, tt.wantOrder) {
			t.Errorf("after Flush(%d): ran %v, want %v", tt.completed, ran, tt.wantOrder)
		}
	}

	q.Enqueue(100, func() { ran = append(ran, 4) })
	if got := q.FlushAll(); got != 1 {
		t.Errorf("FlushAll = %d, want 1", got)
	}
}

func TestQueueReentrant(t *testing.T) {
	var q Queue
	q.Enqueue(1, func() {
		q.Enqueue(2, func() {})
	})
	if got := q.Flush(1); got != 1 {
		t.Fatalf("Flush(1) = %d, want 1", got)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1 after a destroy enqueued more work", q.Len())
	}
}
