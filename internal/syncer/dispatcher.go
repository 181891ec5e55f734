package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"warungpos/terminal/internal/clock"
	"warungpos/terminal/internal/coordinator"
	"warungpos/terminal/internal/domain"
	"warungpos/terminal/internal/outbox"
	"warungpos/terminal/internal/remote"
)

// SaleSubmitter is the slice of the remote client the dispatcher needs.
type SaleSubmitter interface {
	SubmitSale(ctx context.Context, req remote.SaleRequest) (*remote.SaleResponse, error)
}

// ConnectivitySource gates drain attempts on the monitor's committed state.
type ConnectivitySource interface {
	IsOffline() bool
}

type Options struct {
	DrainInterval time.Duration
	BackoffBase   time.Duration
	BackoffCap    time.Duration
}

// Dispatcher drains the command outbox against the remote sales service.
// One drain cycle runs at a time within a process (single-flight guard); the
// coordinator lease keeps a second process from draining the same outbox.
// Entries are submitted strictly in FIFO order: a transient failure stops the
// cycle so a later sale never overtakes an earlier retryable one, while a
// permanent rejection is parked and the cycle continues.
type Dispatcher struct {
	outbox  *outbox.Outbox
	client  SaleSubmitter
	conn    ConnectivitySource
	coord   coordinator.Coordinator
	session string
	clk     clock.Clock
	logger  *zap.Logger
	opts    Options

	draining atomic.Bool
	trigger  chan struct{}

	mu          sync.Mutex
	nextDrainAt time.Time
	lastDrainAt time.Time
}

func New(ob *outbox.Outbox, client SaleSubmitter, conn ConnectivitySource, coord coordinator.Coordinator, sessionID string, clk clock.Clock, logger *zap.Logger, opts Options) *Dispatcher {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = 30 * time.Second
	}
	return &Dispatcher{
		outbox:  ob,
		client:  client,
		conn:    conn,
		coord:   coord,
		session: sessionID,
		clk:     clk,
		logger:  logger,
		opts:    opts,
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests a drain cycle. Non-blocking; coalesces with an already
// queued request. Wired to the monitor's offline-to-online transition.
func (d *Dispatcher) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// RetryNow runs a drain cycle immediately, bypassing the backoff deadline.
// Backing the explicit "retry now" operator action.
func (d *Dispatcher) RetryNow(ctx context.Context) {
	d.drainOnce(ctx, true)
}

func (d *Dispatcher) State() string {
	if d.draining.Load() {
		return domain.DispatcherDraining
	}
	return domain.DispatcherIdle
}

func (d *Dispatcher) LastDrainAt() *time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastDrainAt.IsZero() {
		return nil
	}
	at := d.lastDrainAt
	return &at
}

// Run drains on the periodic timer and on triggers until the context ends.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.opts.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := d.coord.ReleaseLease(context.Background()); err != nil {
				d.logger.Warn("release dispatcher lease", zap.Error(err))
			}
			return
		case <-ticker.C:
			d.drainOnce(ctx, false)
		case <-d.trigger:
			d.drainOnce(ctx, false)
		}
	}
}

func (d *Dispatcher) drainOnce(ctx context.Context, manual bool) {
	if !d.draining.CompareAndSwap(false, true) {
		// A cycle is already running; the trigger is ignored.
		return
	}
	defer d.draining.Store(false)

	if d.conn.IsOffline() {
		return
	}
	if !manual {
		d.mu.Lock()
		blocked := d.clk.Now().Before(d.nextDrainAt)
		d.mu.Unlock()
		if blocked {
			return
		}
	}

	held, err := d.coord.AcquireLease(ctx)
	if err != nil {
		d.logger.Warn("dispatcher lease check failed", zap.Error(err))
		return
	}
	if !held {
		// Another process is the dispatcher; this one stays a passive
		// observer and refreshes its own views from signals.
		return
	}

	entries, err := d.outbox.List(ctx, domain.CommandPending)
	if err != nil {
		d.logger.Error("list pending commands", zap.Error(err))
		return
	}

	for _, cmd := range entries {
		if blocked := d.submit(ctx, cmd, manual); blocked {
			break
		}
	}

	d.mu.Lock()
	d.lastDrainAt = d.clk.Now()
	d.mu.Unlock()
}

// submit sends one command. Returns true when the cycle must stop to
// preserve FIFO order (transient failure of this entry).
func (d *Dispatcher) submit(ctx context.Context, cmd domain.PendingCommand, manual bool) bool {
	req, err := d.buildRequest(cmd)
	if err != nil {
		// Undecodable payloads can never succeed; park immediately so they
		// do not block the queue.
		d.logger.Error("command payload undecodable", zap.String("command_id", cmd.CommandID), zap.Error(err))
		d.markFailed(ctx, cmd.CommandID, err.Error(), true)
		return false
	}

	if err := d.outbox.MarkSending(ctx, cmd.CommandID); err != nil {
		d.logger.Error("mark sending", zap.String("command_id", cmd.CommandID), zap.Error(err))
		return true
	}

	resp, err := d.client.SubmitSale(ctx, req)
	switch {
	case err == nil:
		if err := d.outbox.MarkSucceeded(ctx, cmd.CommandID); err != nil {
			d.logger.Error("mark succeeded", zap.String("command_id", cmd.CommandID), zap.Error(err))
			return true
		}
		if resp.Duplicate {
			d.logger.Info("sale was already applied", zap.String("command_id", cmd.CommandID))
		}
		sig := coordinator.Signal{CommandID: cmd.CommandID, At: d.clk.Now().UTC()}
		if err := d.coord.Broadcast(ctx, sig); err != nil {
			d.logger.Warn("broadcast completion signal", zap.Error(err))
		}
		return false

	case remote.IsValidation(err):
		// A malformed sale must not block the queue; park it and keep
		// draining.
		d.markFailed(ctx, cmd.CommandID, err.Error(), true)
		return false

	default:
		// Transient: demote, schedule backoff, stop the cycle so later
		// entries cannot overtake this one.
		d.markFailed(ctx, cmd.CommandID, err.Error(), false)
		delay := backoffDelay(d.opts.BackoffBase, d.opts.BackoffCap, cmd.AttemptCount+1)
		d.mu.Lock()
		d.nextDrainAt = d.clk.Now().Add(delay)
		d.mu.Unlock()
		d.logger.Warn("transient submit failure, backing off",
			zap.String("command_id", cmd.CommandID),
			zap.Int("attempts", cmd.AttemptCount+1),
			zap.Duration("backoff", delay),
			zap.Bool("manual", manual),
			zap.Error(err))
		return true
	}
}

func (d *Dispatcher) buildRequest(cmd domain.PendingCommand) (remote.SaleRequest, error) {
	if cmd.Type != domain.CommandCreateSale {
		return remote.SaleRequest{}, fmt.Errorf("unsupported command type %q", cmd.Type)
	}
	var payload domain.SalePayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return remote.SaleRequest{}, fmt.Errorf("decode sale payload: %w", err)
	}
	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = d.session
	}
	return remote.SaleRequest{
		CommandID: cmd.CommandID,
		SessionID: sessionID,
		Items:     payload.Items,
		Payments:  payload.Payments,
	}, nil
}

func (d *Dispatcher) markFailed(ctx context.Context, commandID string, cause string, permanent bool) {
	if err := d.outbox.MarkFailed(ctx, commandID, cause, permanent); err != nil {
		d.logger.Error("mark failed", zap.String("command_id", commandID), zap.Error(err))
	}
}
