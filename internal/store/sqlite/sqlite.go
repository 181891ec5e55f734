package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"warungpos/terminal/internal/domain"
	"warungpos/terminal/internal/store"
)

// catalogRow holds one full catalog snapshot per scope key. The snapshot is a
// single JSON blob so a replace is one row write and readers never observe a
// half-applied refresh.
type catalogRow struct {
	ScopeKey  string    `gorm:"primaryKey;size:128"`
	Payload   []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (catalogRow) TableName() string {
	return "catalog_snapshots"
}

type commandRow struct {
	Seq          int64     `gorm:"primaryKey;autoIncrement"`
	ScopeKey     string    `gorm:"index;size:128;not null"`
	CommandID    string    `gorm:"uniqueIndex;size:64;not null"`
	Type         string    `gorm:"size:32;not null"`
	Payload      []byte    `gorm:"not null"`
	Status       string    `gorm:"size:16;not null"`
	AttemptCount int       `gorm:"not null;default:0"`
	LastError    string    `gorm:"size:1024"`
	CreatedAt    time.Time `gorm:"index;not null"`
}

func (commandRow) TableName() string {
	return "outbox_commands"
}

// Store is the sqlite-backed Repository used on real terminals so queued
// sales survive process restarts and power loss.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.AutoMigrate(&catalogRow{}, &commandRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) ReplaceCatalog(ctx context.Context, key string, products []domain.CachedProduct) error {
	payload, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("encode catalog snapshot: %w", err)
	}
	row := catalogRow{ScopeKey: key, Payload: payload, UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return fmt.Errorf("persist catalog snapshot: %w", err)
	}
	return nil
}

func (s *Store) LoadCatalog(ctx context.Context, key string) ([]domain.CachedProduct, error) {
	var row catalogRow
	err := s.db.WithContext(ctx).First(&row, "scope_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []domain.CachedProduct{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog snapshot: %w", err)
	}

	var products []domain.CachedProduct
	if err := json.Unmarshal(row.Payload, &products); err != nil {
		return nil, fmt.Errorf("%w: catalog snapshot %s: %v", store.ErrCorrupted, key, err)
	}
	return products, nil
}

func (s *Store) AppendCommand(ctx context.Context, key string, cmd domain.PendingCommand) (*domain.PendingCommand, error) {
	row := commandRow{
		ScopeKey:     key,
		CommandID:    cmd.CommandID,
		Type:         cmd.Type,
		Payload:      []byte(cmd.Payload),
		Status:       cmd.Status,
		AttemptCount: cmd.AttemptCount,
		LastError:    cmd.LastError,
		CreatedAt:    cmd.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("append outbox command: %w", err)
	}
	cmd.Seq = row.Seq
	return &cmd, nil
}

func (s *Store) ListCommands(ctx context.Context, key string) ([]domain.PendingCommand, error) {
	var rows []commandRow
	err := s.db.WithContext(ctx).
		Where("scope_key = ?", key).
		Order("created_at asc, seq asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list outbox commands: %w", err)
	}

	out := make([]domain.PendingCommand, 0, len(rows))
	for _, row := range rows {
		cmd, err := decodeCommand(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *cmd)
	}
	return out, nil
}

func (s *Store) GetCommand(ctx context.Context, key string, commandID string) (*domain.PendingCommand, error) {
	var row commandRow
	err := s.db.WithContext(ctx).First(&row, "scope_key = ? AND command_id = ?", key, commandID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox command: %w", err)
	}
	return decodeCommand(row)
}

func (s *Store) UpdateCommand(ctx context.Context, key string, cmd domain.PendingCommand) error {
	result := s.db.WithContext(ctx).
		Model(&commandRow{}).
		Where("scope_key = ? AND command_id = ?", key, cmd.CommandID).
		Updates(map[string]any{
			"status":        cmd.Status,
			"attempt_count": cmd.AttemptCount,
			"last_error":    cmd.LastError,
		})
	if result.Error != nil {
		return fmt.Errorf("update outbox command: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCommand(ctx context.Context, key string, commandID string) error {
	result := s.db.WithContext(ctx).
		Where("scope_key = ? AND command_id = ?", key, commandID).
		Delete(&commandRow{})
	if result.Error != nil {
		return fmt.Errorf("delete outbox command: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func decodeCommand(row commandRow) (*domain.PendingCommand, error) {
	if !json.Valid(row.Payload) {
		return nil, fmt.Errorf("%w: outbox command %s payload", store.ErrCorrupted, row.CommandID)
	}
	return &domain.PendingCommand{
		CommandID:    row.CommandID,
		Type:         row.Type,
		Payload:      json.RawMessage(row.Payload),
		Status:       row.Status,
		AttemptCount: row.AttemptCount,
		LastError:    row.LastError,
		Seq:          row.Seq,
		CreatedAt:    row.CreatedAt,
	}, nil
}
