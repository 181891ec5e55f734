package memory

import (
	"context"
	"sort"
	"sync"

	"warungpos/terminal/internal/domain"
	"warungpos/terminal/internal/store"
)

// Store is an in-memory Repository used for tests and for terminals started
// without a durable data path.
type Store struct {
	mu       sync.RWMutex
	catalogs map[string][]domain.CachedProduct
	commands map[string][]domain.PendingCommand
	nextSeq  int64
}

func New() *Store {
	return &Store{
		catalogs: make(map[string][]domain.CachedProduct),
		commands: make(map[string][]domain.PendingCommand),
	}
}

func (s *Store) ReplaceCatalog(_ context.Context, key string, products []domain.CachedProduct) error {
	snapshot := make([]domain.CachedProduct, len(products))
	copy(snapshot, products)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogs[key] = snapshot
	return nil
}

func (s *Store) LoadCatalog(_ context.Context, key string) ([]domain.CachedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.catalogs[key]
	if !ok {
		return []domain.CachedProduct{}, nil
	}
	out := make([]domain.CachedProduct, len(snapshot))
	copy(out, snapshot)
	return out, nil
}

func (s *Store) AppendCommand(_ context.Context, key string, cmd domain.PendingCommand) (*domain.PendingCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	cmd.Seq = s.nextSeq
	s.commands[key] = append(s.commands[key], cmd)
	return &cmd, nil
}

func (s *Store) ListCommands(_ context.Context, key string) ([]domain.PendingCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.commands[key]
	out := make([]domain.PendingCommand, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetCommand(_ context.Context, key string, commandID string) (*domain.PendingCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cmd := range s.commands[key] {
		if cmd.CommandID == commandID {
			found := cmd
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateCommand(_ context.Context, key string, cmd domain.PendingCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.commands[key]
	for i := range entries {
		if entries[i].CommandID == cmd.CommandID {
			entries[i].Status = cmd.Status
			entries[i].AttemptCount = cmd.AttemptCount
			entries[i].LastError = cmd.LastError
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) DeleteCommand(_ context.Context, key string, commandID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.commands[key]
	for i := range entries {
		if entries[i].CommandID == commandID {
			s.commands[key] = append(entries[:i:i], entries[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}
