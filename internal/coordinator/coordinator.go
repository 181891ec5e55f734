package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Signal is the cross-process broadcast: "something changed, re-read local
// state". It deliberately carries no data beyond a timestamp and the command
// id that completed, so observers never couple to a payload schema.
type Signal struct {
	CommandID string
	At        time.Time
}

func (s Signal) encode() string {
	return fmt.Sprintf("%d|%s", s.At.UnixMilli(), s.CommandID)
}

func decodeSignal(raw string) (Signal, bool) {
	millis, id, _ := strings.Cut(raw, "|")
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return Signal{}, false
	}
	return Signal{CommandID: id, At: time.UnixMilli(ms).UTC()}, true
}

// Coordinator keeps multiple agent processes and UI windows of the same
// terminal consistent. Broadcast fans a completion signal out to every
// observer (the originator included); the dispatcher lease elects exactly one
// process as dispatcher for the shared outbox so two processes never drain
// it concurrently.
type Coordinator interface {
	Broadcast(ctx context.Context, sig Signal) error
	Subscribe(fn func(Signal))
	// AcquireLease returns true when this process holds dispatcher status.
	// The lease is cooperative: held with a heartbeat, reclaimed by others
	// after expiry if the holder dies.
	AcquireLease(ctx context.Context) (bool, error)
	ReleaseLease(ctx context.Context) error
	Close() error
}

// Local is the single-process fallback used when no redis is configured
// (one window per terminal). The lease is always granted.
type Local struct {
	mu          sync.Mutex
	subscribers []func(Signal)
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Broadcast(_ context.Context, sig Signal) error {
	l.mu.Lock()
	subscribers := make([]func(Signal), len(l.subscribers))
	copy(subscribers, l.subscribers)
	l.mu.Unlock()

	for _, fn := range subscribers {
		fn(sig)
	}
	return nil
}

func (l *Local) Subscribe(fn func(Signal)) {
	l.mu.Lock()
	l.subscribers = append(l.subscribers, fn)
	l.mu.Unlock()
}

func (l *Local) AcquireLease(context.Context) (bool, error) { return true, nil }

func (l *Local) ReleaseLease(context.Context) error { return nil }

func (l *Local) Close() error { return nil }
