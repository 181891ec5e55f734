package syncer

import (
	"testing"
	"time"
)

func TestBackoffDelayDoublesPerAttempt(t *testing.T) {
	base := 2 * time.Second
	ceiling := time.Minute

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, time.Minute},
		{20, time.Minute},
	}
	for _, tc := range cases {
		if got := backoffDelay(base, ceiling, tc.attempts); got != tc.want {
			t.Fatalf("attempts=%d: expected %v, got %v", tc.attempts, tc.want, got)
		}
	}
}

func TestBackoffDelayDefaults(t *testing.T) {
	if got := backoffDelay(0, 0, 0); got != defaultBackoffBase {
		t.Fatalf("expected default base for zero inputs, got %v", got)
	}
}
