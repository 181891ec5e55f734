package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"warungpos/terminal/internal/clock"
	"warungpos/terminal/internal/domain"
)

// Prober reports whether the remote service is reachable right now. The
// remote client implements it with a health request.
type Prober interface {
	Probe(ctx context.Context) error
}

// Monitor owns the terminal's online/offline state. Transitions are
// debounced: a flapping link must stay in its new state for the hold
// duration before listeners are notified, so the dispatcher is not thrashed
// by rapid on/off cycles.
type Monitor struct {
	prober Prober
	hold   time.Duration
	clk    clock.Clock
	logger *zap.Logger

	mu           sync.Mutex
	initialized  bool
	state        domain.ConnectivityState
	pending      domain.ConnectivityState
	pendingSince time.Time
	listeners    []func(domain.ConnectivityState)
}

func NewMonitor(prober Prober, hold time.Duration, clk clock.Clock, logger *zap.Logger) *Monitor {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		prober: prober,
		hold:   hold,
		clk:    clk,
		logger: logger,
		state:  domain.StateOffline,
	}
}

func (m *Monitor) State() domain.ConnectivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) IsOffline() bool {
	return m.State() == domain.StateOffline
}

// OnChange registers a listener invoked after every committed transition.
// Listeners must be fast and non-blocking.
func (m *Monitor) OnChange(fn func(domain.ConnectivityState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// CheckNow runs a single probe and feeds it through the debounce state
// machine. Returns the committed state.
func (m *Monitor) CheckNow(ctx context.Context) domain.ConnectivityState {
	observed := domain.StateOnline
	if err := m.prober.Probe(ctx); err != nil {
		observed = domain.StateOffline
	}
	return m.apply(observed)
}

// Run probes at the given interval until the context ends.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.CheckNow(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

func (m *Monitor) apply(observed domain.ConnectivityState) domain.ConnectivityState {
	now := m.clk.Now()

	m.mu.Lock()
	if !m.initialized {
		// First observation settles the startup state without the hold.
		m.initialized = true
		changed := m.state != observed
		m.state = observed
		listeners := m.snapshotListenersLocked()
		m.mu.Unlock()
		if changed {
			m.notify(listeners, observed)
		}
		return observed
	}

	if observed == m.state {
		m.pending = ""
		m.mu.Unlock()
		return observed
	}

	if m.pending != observed {
		m.pending = observed
		m.pendingSince = now
		state := m.state
		m.mu.Unlock()
		return state
	}

	if now.Sub(m.pendingSince) < m.hold {
		state := m.state
		m.mu.Unlock()
		return state
	}

	m.state = observed
	m.pending = ""
	listeners := m.snapshotListenersLocked()
	m.mu.Unlock()

	m.logger.Info("connectivity changed", zap.String("state", string(observed)))
	m.notify(listeners, observed)
	return observed
}

func (m *Monitor) snapshotListenersLocked() []func(domain.ConnectivityState) {
	out := make([]func(domain.ConnectivityState), len(m.listeners))
	copy(out, m.listeners)
	return out
}

func (m *Monitor) notify(listeners []func(domain.ConnectivityState), state domain.ConnectivityState) {
	for _, fn := range listeners {
		fn(state)
	}
}
