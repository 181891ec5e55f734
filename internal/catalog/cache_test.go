package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"warungpos/terminal/internal/domain"
	"warungpos/terminal/internal/store"
	"warungpos/terminal/internal/store/memory"
)

func snapshotNamed(name string, count int) []domain.CachedProduct {
	products := make([]domain.CachedProduct, 0, count)
	for i := 0; i < count; i++ {
		products = append(products, domain.CachedProduct{
			ID:   name,
			SKU:  name,
			Name: name,
			Variants: []domain.CachedVariant{
				{ID: name + "-v", SKU: name + "-V", GrossPriceCents: 1000, NetPriceCents: 900},
			},
			SyncedAt: time.Now().UTC(),
		})
	}
	return products
}

func TestReplaceAllAndGetAll(t *testing.T) {
	cache := NewCache(memory.New(), "catalog:t:b", nil)

	if got := cache.GetAll(); len(got) != 0 {
		t.Fatalf("expected empty catalog before sync, got %d", len(got))
	}

	if err := cache.ReplaceAll(context.Background(), snapshotNamed("old", 3)); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if err := cache.ReplaceAll(context.Background(), snapshotNamed("new", 2)); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	got := cache.GetAll()
	if len(got) != 2 {
		t.Fatalf("expected full replace to 2 products, got %d", len(got))
	}
	for _, p := range got {
		if p.ID != "new" {
			t.Fatalf("old snapshot leaked into new one: %+v", p)
		}
	}
}

// A reader polling GetAll during concurrent ReplaceAll calls must never see
// products from two snapshots at once.
func TestReplaceAllIsAtomicUnderConcurrentReads(t *testing.T) {
	cache := NewCache(memory.New(), "catalog:t:b", nil)
	if err := cache.ReplaceAll(context.Background(), snapshotNamed("a", 5)); err != nil {
		t.Fatalf("seed replace failed: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		names := []string{"a", "b"}
		for i := 0; i < 200; i++ {
			name := names[i%2]
			if err := cache.ReplaceAll(context.Background(), snapshotNamed(name, 5)); err != nil {
				t.Errorf("replace failed: %v", err)
				return
			}
		}
		close(done)
	}()

	for {
		select {
		case <-done:
			wg.Wait()
			return
		default:
		}
		snapshot := cache.GetAll()
		seen := map[string]bool{}
		for _, p := range snapshot {
			seen[p.ID] = true
		}
		if len(seen) > 1 {
			t.Fatalf("observed mixed snapshot: %v", seen)
		}
	}
}

func TestFindBySKUOrBarcodePriority(t *testing.T) {
	cache := NewCache(memory.New(), "catalog:t:b", nil)
	products := []domain.CachedProduct{
		{
			ID: "p1", SKU: "KOPI",
			Variants: []domain.CachedVariant{
				{ID: "v1", SKU: "KOPI-S", Barcode: "890111", GrossPriceCents: 1500, NetPriceCents: 1350},
				{ID: "v2", SKU: "KOPI-L", Barcode: "890112", GrossPriceCents: 2000, NetPriceCents: 1800},
			},
		},
		{
			ID: "p2", SKU: "KOPI-S",
			Variants: []domain.CachedVariant{
				{ID: "v3", SKU: "TEH-S", Barcode: "KOPI", GrossPriceCents: 1000, NetPriceCents: 900},
			},
		},
	}
	if err := cache.ReplaceAll(context.Background(), products); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	// Variant SKU wins over product SKU and barcode.
	_, variant := cache.FindBySKUOrBarcode("KOPI-S")
	if variant == nil || variant.ID != "v1" {
		t.Fatalf("expected variant SKU match v1, got %+v", variant)
	}

	// Product SKU wins over barcode and resolves to the first variant.
	product, variant := cache.FindBySKUOrBarcode("KOPI")
	if product == nil || product.ID != "p1" || variant == nil || variant.ID != "v1" {
		t.Fatalf("expected product SKU match p1/v1, got %+v %+v", product, variant)
	}

	// Barcode match.
	_, variant = cache.FindBySKUOrBarcode("890112")
	if variant == nil || variant.ID != "v2" {
		t.Fatalf("expected barcode match v2, got %+v", variant)
	}

	// SKU comparison is case-insensitive.
	_, variant = cache.FindBySKUOrBarcode("kopi-l")
	if variant == nil || variant.ID != "v2" {
		t.Fatalf("expected case-insensitive SKU match v2, got %+v", variant)
	}

	if _, variant := cache.FindBySKUOrBarcode("NOPE"); variant != nil {
		t.Fatalf("expected no match, got %+v", variant)
	}
}

type corruptedRepo struct {
	store.Repository
}

func (corruptedRepo) LoadCatalog(context.Context, string) ([]domain.CachedProduct, error) {
	return nil, store.ErrCorrupted
}

func TestLoadCorruptedFallsBackToEmpty(t *testing.T) {
	cache := NewCache(corruptedRepo{memory.New()}, "catalog:t:b", nil)

	err := cache.Load(context.Background())
	if !errors.Is(err, store.ErrCorrupted) {
		t.Fatalf("expected corrupted error surfaced, got %v", err)
	}
	if got := cache.GetAll(); len(got) != 0 {
		t.Fatalf("expected empty fallback catalog, got %d products", len(got))
	}
}

func TestLoadHydratesFromStore(t *testing.T) {
	repo := memory.New()
	if err := repo.ReplaceCatalog(context.Background(), "catalog:t:b", snapshotNamed("persisted", 2)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	cache := NewCache(repo, "catalog:t:b", nil)
	if err := cache.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := cache.GetAll(); len(got) != 2 {
		t.Fatalf("expected 2 persisted products, got %d", len(got))
	}
}
