package vkdriver

import "testing"

func TestByteSizes(t *testing.T) {
	tests := []struct {
		name string
		got  uint
		want uint
	}{
		{"empty module", spirvSize(nil), 0},
		{"module", spirvSize(make([]uint32, 5)), 20},
		{"no queries", timestampBytes(0), 0},
		{"queries", timestampBytes(6), 48},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %d, want %d", tt.got, tt.want)
			}
		})
	}
}
