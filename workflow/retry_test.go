package workflow

import (
	"testing"
	"time"
)

func TestNextRetryDelay(t *testing.T) {
	cases := []struct {
		retryCount int
		expected   time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
		{4, 16 * time.Minute},
		{5, 30 * time.Minute}, // 32min capped
		{10, 30 * time.Minute},
		{60, 30 * time.Minute}, // overflow guarded
	}
	for _, tc := range cases {
		if got := NextRetryDelay(tc.retryCount); got != tc.expected {
			t.Fatalf("NextRetryDelay(%d) expected %s, got %s", tc.retryCount, tc.expected, got)
		}
	}
}

func TestNextRetryDelay_Monotonic(t *testing.T) {
	prev := time.Duration(0)
	for n := 0; n < 20; n++ {
		d := NextRetryDelay(n)
		if d < prev {
			t.Fatalf("delay decreased at retry %d: %s after %s", n, d, prev)
		}
		prev = d
	}
}
