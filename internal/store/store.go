package store

import (
	"context"
	"errors"

	"warungpos/terminal/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrCorrupted signals that the persisted state could not be decoded.
	// Catalog callers fall back to an empty snapshot and re-sync; outbox
	// callers must surface it prominently, it means queued sales are at risk.
	ErrCorrupted = errors.New("local store corrupted")
)

// Repository is the terminal-local durable store shared by the catalog cache
// and the command outbox. Collections are scoped by key
// (catalog:{tenant}:{branch}, outbox:{tenant}:{branch}) so one store file can
// serve multiple sessions.
type Repository interface {
	// ReplaceCatalog atomically swaps the whole persisted snapshot for the key.
	ReplaceCatalog(ctx context.Context, key string, products []domain.CachedProduct) error
	LoadCatalog(ctx context.Context, key string) ([]domain.CachedProduct, error)

	// AppendCommand persists a new outbox entry and returns it with its
	// assigned sequence number. Sequence numbers are strictly increasing in
	// insertion order.
	AppendCommand(ctx context.Context, key string, cmd domain.PendingCommand) (*domain.PendingCommand, error)
	// ListCommands returns entries for the key ordered by creation time,
	// ties broken by sequence number.
	ListCommands(ctx context.Context, key string) ([]domain.PendingCommand, error)
	GetCommand(ctx context.Context, key string, commandID string) (*domain.PendingCommand, error)
	// UpdateCommand rewrites status, attempt count and last error of an
	// existing entry. CommandID and payload are immutable.
	UpdateCommand(ctx context.Context, key string, cmd domain.PendingCommand) error
	DeleteCommand(ctx context.Context, key string, commandID string) error
}
