package syncer

import "time"

const (
	defaultBackoffBase = 2 * time.Second
	defaultBackoffCap  = 5 * time.Minute
)

// backoffDelay returns the wait before the next drain cycle after a transient
// failure: base doubled per attempt, capped. Backoff state lives as a plain
// deadline (nextDrainAt) so tests can inspect it through an injected clock
// instead of sleeping.
func backoffDelay(base time.Duration, ceiling time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if ceiling <= 0 {
		ceiling = defaultBackoffCap
	}
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}
