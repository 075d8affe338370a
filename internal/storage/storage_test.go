package storage

import "testing"

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultRecentLimit},
		{-3, DefaultRecentLimit},
		{1, 1},
		{120, 120},
		{MaxRecentLimit + 1, MaxRecentLimit},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
