package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"warungpos/terminal/internal/clock"
	"warungpos/terminal/internal/domain"
	"warungpos/terminal/internal/store"
)

const DefaultMaxAttempts = 5

// Outbox owns the durable queue of not-yet-confirmed commands for one
// terminal scope. Entries are totally ordered by creation time (ties broken
// by insertion sequence) and are never reordered. The command id is assigned
// exactly once, at enqueue, and stays stable across every retry.
type Outbox struct {
	repo        store.Repository
	scopeKey    string
	maxAttempts int
	clk         clock.Clock
	logger      *zap.Logger
}

func New(repo store.Repository, scopeKey string, maxAttempts int, clk clock.Clock, logger *zap.Logger) *Outbox {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{
		repo:        repo,
		scopeKey:    scopeKey,
		maxAttempts: maxAttempts,
		clk:         clk,
		logger:      logger,
	}
}

// Enqueue persists a new pending command and returns its id. It never
// touches the network.
func (o *Outbox) Enqueue(ctx context.Context, commandType string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode command payload: %w", err)
	}

	cmd := domain.PendingCommand{
		CommandID: uuid.NewString(),
		Type:      commandType,
		Payload:   raw,
		Status:    domain.CommandPending,
		CreatedAt: o.clk.Now().UTC(),
	}
	stored, err := o.repo.AppendCommand(ctx, o.scopeKey, cmd)
	if err != nil {
		return "", fmt.Errorf("enqueue command: %w", err)
	}
	o.logger.Info("command enqueued",
		zap.String("command_id", stored.CommandID),
		zap.String("type", commandType),
		zap.Int64("seq", stored.Seq))
	return stored.CommandID, nil
}

// List returns entries in FIFO order, optionally filtered by status.
func (o *Outbox) List(ctx context.Context, statuses ...string) ([]domain.PendingCommand, error) {
	entries, err := o.repo.ListCommands(ctx, o.scopeKey)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	if len(statuses) == 0 {
		return entries, nil
	}

	wanted := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	out := make([]domain.PendingCommand, 0, len(entries))
	for _, cmd := range entries {
		if wanted[cmd.Status] {
			out = append(out, cmd)
		}
	}
	return out, nil
}

// PendingCount counts PENDING plus SENDING entries. FAILED entries are parked
// for operator action and excluded from the cashier-facing badge.
func (o *Outbox) PendingCount(ctx context.Context) (int, error) {
	entries, err := o.List(ctx, domain.CommandPending, domain.CommandSending)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (o *Outbox) FailedCount(ctx context.Context) (int, error) {
	entries, err := o.List(ctx, domain.CommandFailed)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (o *Outbox) MarkSending(ctx context.Context, commandID string) error {
	cmd, err := o.repo.GetCommand(ctx, o.scopeKey, commandID)
	if err != nil {
		return err
	}
	cmd.Status = domain.CommandSending
	return o.repo.UpdateCommand(ctx, o.scopeKey, *cmd)
}

// MarkSucceeded removes the entry. Called on confirmed success, including
// the duplicate-already-applied response.
func (o *Outbox) MarkSucceeded(ctx context.Context, commandID string) error {
	if err := o.repo.DeleteCommand(ctx, o.scopeKey, commandID); err != nil {
		return err
	}
	o.logger.Info("command confirmed", zap.String("command_id", commandID))
	return nil
}

// MarkFailed increments the attempt count and records the error. Transient
// failures demote back to pending until the retry ceiling; permanent
// failures park the entry as failed immediately.
func (o *Outbox) MarkFailed(ctx context.Context, commandID string, cause string, permanent bool) error {
	cmd, err := o.repo.GetCommand(ctx, o.scopeKey, commandID)
	if err != nil {
		return err
	}
	cmd.AttemptCount++
	cmd.LastError = cause
	if permanent || cmd.AttemptCount >= o.maxAttempts {
		cmd.Status = domain.CommandFailed
		o.logger.Warn("command parked as failed",
			zap.String("command_id", commandID),
			zap.Int("attempts", cmd.AttemptCount),
			zap.Bool("permanent", permanent),
			zap.String("cause", cause))
	} else {
		cmd.Status = domain.CommandPending
	}
	return o.repo.UpdateCommand(ctx, o.scopeKey, *cmd)
}

// Discard drops a FAILED entry after operator review. Pending or in-flight
// entries cannot be discarded.
func (o *Outbox) Discard(ctx context.Context, commandID string) error {
	cmd, err := o.repo.GetCommand(ctx, o.scopeKey, commandID)
	if err != nil {
		return err
	}
	if cmd.Status != domain.CommandFailed {
		return fmt.Errorf("command %s is %s, only failed commands can be discarded", commandID, cmd.Status)
	}
	return o.repo.DeleteCommand(ctx, o.scopeKey, commandID)
}

// Recover demotes entries stuck in SENDING back to PENDING. Called once at
// startup: a crash mid-dispatch leaves the entry in-flight, and the remote
// idempotency key makes the eventual resend safe.
func (o *Outbox) Recover(ctx context.Context) error {
	entries, err := o.List(ctx, domain.CommandSending)
	if err != nil {
		return err
	}
	for _, cmd := range entries {
		cmd.Status = domain.CommandPending
		if err := o.repo.UpdateCommand(ctx, o.scopeKey, cmd); err != nil {
			return fmt.Errorf("recover command %s: %w", cmd.CommandID, err)
		}
		o.logger.Info("recovered in-flight command", zap.String("command_id", cmd.CommandID))
	}
	return nil
}
