package catalog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"warungpos/terminal/internal/clock"
	"warungpos/terminal/internal/domain"
	"warungpos/terminal/internal/remote"
)

// Fetcher is the slice of the remote client the refresher needs.
type Fetcher interface {
	FetchProducts(ctx context.Context) ([]remote.Product, error)
	FetchCategories(ctx context.Context) ([]remote.Category, error)
}

// Refresher pulls full-replace catalog snapshots from the remote catalog
// service. Catalog data flows one way only: server to cache.
type Refresher struct {
	fetcher Fetcher
	cache   *Cache
	clk     clock.Clock
	logger  *zap.Logger
}

func NewRefresher(fetcher Fetcher, cache *Cache, clk clock.Clock, logger *zap.Logger) *Refresher {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{fetcher: fetcher, cache: cache, clk: clk, logger: logger}
}

// Refresh fetches categories and products and replaces the cache wholesale.
// Variants that violate the price invariant (gross >= net >= 0) are dropped
// from the snapshot rather than cached half-valid.
func (r *Refresher) Refresh(ctx context.Context) error {
	categories, err := r.fetcher.FetchCategories(ctx)
	if err != nil {
		return fmt.Errorf("refresh categories: %w", err)
	}
	categoryNames := make(map[string]string, len(categories))
	for _, cat := range categories {
		categoryNames[cat.ID] = cat.Name
	}

	remoteProducts, err := r.fetcher.FetchProducts(ctx)
	if err != nil {
		return fmt.Errorf("refresh products: %w", err)
	}

	now := r.clk.Now().UTC()
	products := make([]domain.CachedProduct, 0, len(remoteProducts))
	dropped := 0
	for _, rp := range remoteProducts {
		product := domain.CachedProduct{
			ID:           rp.ID,
			SKU:          rp.SKU,
			Name:         rp.Name,
			CategoryID:   rp.CategoryID,
			CategoryName: categoryNames[rp.CategoryID],
			ImageURL:     rp.ImageURL,
			UnitCode:     rp.UnitCode,
			Variants:     make([]domain.CachedVariant, 0, len(rp.Variants)),
			SyncedAt:     now,
		}
		for _, rv := range rp.Variants {
			if rv.NetPriceCents < 0 || rv.GrossPriceCents < rv.NetPriceCents {
				dropped++
				r.logger.Warn("dropping variant with invalid prices",
					zap.String("product", rp.SKU),
					zap.String("variant", rv.SKU),
					zap.Int64("gross_cents", rv.GrossPriceCents),
					zap.Int64("net_cents", rv.NetPriceCents))
				continue
			}
			product.Variants = append(product.Variants, domain.CachedVariant{
				ID:              rv.ID,
				SKU:             rv.SKU,
				Name:            rv.Name,
				Barcode:         rv.Barcode,
				GrossPriceCents: rv.GrossPriceCents,
				NetPriceCents:   rv.NetPriceCents,
				TaxPercentage:   rv.TaxPercentage,
			})
		}
		products = append(products, product)
	}

	if err := r.cache.ReplaceAll(ctx, products); err != nil {
		return err
	}
	if dropped > 0 {
		r.logger.Warn("catalog refresh dropped invalid variants", zap.Int("dropped", dropped))
	}
	return nil
}

// Run refreshes periodically and whenever a value arrives on trigger. Used
// with the connectivity monitor (refresh on reconnect) and the manual
// refresh endpoint.
func (r *Refresher) Run(ctx context.Context, interval time.Duration, trigger <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-trigger:
		}
		if err := r.Refresh(ctx); err != nil {
			r.logger.Warn("catalog refresh failed", zap.Error(err))
		}
	}
}
