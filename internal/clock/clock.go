package clock

import "time"

// Clock abstracts wall time so retry backoff and debounce windows can be
// tested without real waits.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func System() Clock { return systemClock{} }
