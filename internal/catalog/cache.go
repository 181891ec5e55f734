package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"warungpos/terminal/internal/domain"
	"warungpos/terminal/internal/store"
)

// Cache holds the sellable catalog snapshot for one terminal scope. Reads are
// served from an immutable in-memory snapshot; ReplaceAll persists the new
// snapshot first, then swaps the pointer, so readers observe either the old
// or the new catalog in full, never a mix.
type Cache struct {
	repo     store.Repository
	scopeKey string
	logger   *zap.Logger

	mu       sync.RWMutex
	snapshot []domain.CachedProduct
}

func NewCache(repo store.Repository, scopeKey string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		repo:     repo,
		scopeKey: scopeKey,
		logger:   logger,
		snapshot: []domain.CachedProduct{},
	}
}

// Load hydrates the in-memory snapshot from the durable store. A corrupted
// store is reported to the caller (so it can trigger a full re-sync) while
// the cache falls back to an empty catalog; it never serves partially-parsed
// data.
func (c *Cache) Load(ctx context.Context) error {
	products, err := c.repo.LoadCatalog(ctx, c.scopeKey)
	if err != nil {
		c.swap([]domain.CachedProduct{})
		if errors.Is(err, store.ErrCorrupted) {
			c.logger.Error("catalog store corrupted, starting empty", zap.String("scope", c.scopeKey), zap.Error(err))
		}
		return fmt.Errorf("load catalog: %w", err)
	}
	c.swap(products)
	return nil
}

// ReplaceAll atomically replaces the entire cached catalog with a new
// snapshot, durably and in memory.
func (c *Cache) ReplaceAll(ctx context.Context, products []domain.CachedProduct) error {
	snapshot := make([]domain.CachedProduct, len(products))
	copy(snapshot, products)

	if err := c.repo.ReplaceCatalog(ctx, c.scopeKey, snapshot); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	c.swap(snapshot)
	c.logger.Info("catalog replaced", zap.String("scope", c.scopeKey), zap.Int("products", len(snapshot)))
	return nil
}

// GetAll returns the current snapshot. Empty slice if never synced. Callers
// must treat the result as read-only.
func (c *Cache) GetAll() []domain.CachedProduct {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// FindBySKUOrBarcode resolves a scanned or typed code to a sellable variant.
// Match priority: variant SKU, then product SKU (first variant), then
// barcode. Comparison is case-insensitive on SKUs.
func (c *Cache) FindBySKUOrBarcode(code string) (*domain.CachedProduct, *domain.CachedVariant) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	snapshot := c.GetAll()

	for i := range snapshot {
		for j := range snapshot[i].Variants {
			if strings.EqualFold(snapshot[i].Variants[j].SKU, code) {
				return &snapshot[i], &snapshot[i].Variants[j]
			}
		}
	}
	for i := range snapshot {
		if strings.EqualFold(snapshot[i].SKU, code) && len(snapshot[i].Variants) > 0 {
			return &snapshot[i], &snapshot[i].Variants[0]
		}
	}
	for i := range snapshot {
		for j := range snapshot[i].Variants {
			if snapshot[i].Variants[j].Barcode == code {
				return &snapshot[i], &snapshot[i].Variants[j]
			}
		}
	}
	return nil, nil
}

// FindVariantByID returns the variant and its product, used to validate sale
// lines against the cached snapshot before enqueueing.
func (c *Cache) FindVariantByID(variantID string) (*domain.CachedProduct, *domain.CachedVariant) {
	snapshot := c.GetAll()
	for i := range snapshot {
		for j := range snapshot[i].Variants {
			if snapshot[i].Variants[j].ID == variantID {
				return &snapshot[i], &snapshot[i].Variants[j]
			}
		}
	}
	return nil, nil
}

func (c *Cache) swap(snapshot []domain.CachedProduct) {
	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()
}
