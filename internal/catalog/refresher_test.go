package catalog

import (
	"context"
	"testing"

	"warungpos/terminal/internal/remote"
	"warungpos/terminal/internal/store/memory"
)

type fakeFetcher struct {
	products   []remote.Product
	categories []remote.Category
	err        error
}

func (f *fakeFetcher) FetchProducts(context.Context) ([]remote.Product, error) {
	return f.products, f.err
}

func (f *fakeFetcher) FetchCategories(context.Context) ([]remote.Category, error) {
	return f.categories, f.err
}

func TestRefreshDenormalizesCategoryNames(t *testing.T) {
	fetcher := &fakeFetcher{
		categories: []remote.Category{{ID: "c1", Name: "Minuman"}},
		products: []remote.Product{
			{
				ID: "p1", SKU: "KOPI", Name: "Kopi Susu", CategoryID: "c1",
				Variants: []remote.Variant{
					{ID: "v1", SKU: "KOPI-S", GrossPriceCents: 1500, NetPriceCents: 1350, TaxPercentage: 11},
				},
			},
		},
	}
	cache := NewCache(memory.New(), "catalog:t:b", nil)
	refresher := NewRefresher(fetcher, cache, nil, nil)

	if err := refresher.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	products := cache.GetAll()
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	if products[0].CategoryName != "Minuman" {
		t.Fatalf("expected denormalized category name, got %q", products[0].CategoryName)
	}
	if products[0].SyncedAt.IsZero() {
		t.Fatalf("expected synced_at to be stamped")
	}
}

func TestRefreshDropsVariantsViolatingPriceInvariant(t *testing.T) {
	fetcher := &fakeFetcher{
		products: []remote.Product{
			{
				ID: "p1", SKU: "KOPI",
				Variants: []remote.Variant{
					{ID: "ok", SKU: "KOPI-S", GrossPriceCents: 1500, NetPriceCents: 1350},
					{ID: "neg", SKU: "KOPI-X", GrossPriceCents: 1000, NetPriceCents: -5},
					{ID: "inverted", SKU: "KOPI-Y", GrossPriceCents: 900, NetPriceCents: 950},
				},
			},
		},
	}
	cache := NewCache(memory.New(), "catalog:t:b", nil)
	refresher := NewRefresher(fetcher, cache, nil, nil)

	if err := refresher.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	products := cache.GetAll()
	if len(products[0].Variants) != 1 || products[0].Variants[0].ID != "ok" {
		t.Fatalf("expected only the valid variant kept, got %+v", products[0].Variants)
	}
}

func TestRefreshKeepsOldSnapshotOnFetchError(t *testing.T) {
	cache := NewCache(memory.New(), "catalog:t:b", nil)
	good := &fakeFetcher{
		products: []remote.Product{{ID: "p1", SKU: "KOPI", Variants: []remote.Variant{{ID: "v1", SKU: "KOPI-S", GrossPriceCents: 100, NetPriceCents: 90}}}},
	}
	if err := NewRefresher(good, cache, nil, nil).Refresh(context.Background()); err != nil {
		t.Fatalf("seed refresh failed: %v", err)
	}

	broken := &fakeFetcher{err: &remote.NetworkError{Op: "get", Err: context.DeadlineExceeded}}
	if err := NewRefresher(broken, cache, nil, nil).Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if got := cache.GetAll(); len(got) != 1 {
		t.Fatalf("old snapshot must survive a failed refresh, got %d products", len(got))
	}
}
