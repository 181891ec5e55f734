package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"warungpos/terminal/internal/catalog"
	"warungpos/terminal/internal/domain"
	"warungpos/terminal/internal/outbox"
	"warungpos/terminal/internal/store/memory"
)

type stubConn struct {
	offline bool
}

func (s *stubConn) IsOffline() bool { return s.offline }

func (s *stubConn) State() domain.ConnectivityState {
	if s.offline {
		return domain.StateOffline
	}
	return domain.StateOnline
}

type stubDispatcher struct {
	triggered int
	retried   int
}

func (s *stubDispatcher) Trigger()                 { s.triggered++ }
func (s *stubDispatcher) RetryNow(context.Context) { s.retried++ }
func (s *stubDispatcher) State() string            { return domain.DispatcherIdle }
func (s *stubDispatcher) LastDrainAt() *time.Time  { return nil }

type stubRefresher struct {
	calls int
	err   error
}

func (s *stubRefresher) Refresh(context.Context) error {
	s.calls++
	return s.err
}

type fixture struct {
	api        *API
	cache      *catalog.Cache
	outbox     *outbox.Outbox
	conn       *stubConn
	dispatcher *stubDispatcher
	refresher  *stubRefresher
	server     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	cache := catalog.NewCache(repo, "catalog:t:b", nil)
	ob := outbox.New(repo, "outbox:t:b", 5, nil, nil)
	conn := &stubConn{}
	dispatcher := &stubDispatcher{}
	refresher := &stubRefresher{}

	err := cache.ReplaceAll(context.Background(), []domain.CachedProduct{
		{
			ID: "p1", SKU: "KOPI", Name: "Kopi Susu", CategoryName: "Minuman",
			Variants: []domain.CachedVariant{
				{ID: "v1", SKU: "KOPI-S", Barcode: "890111", GrossPriceCents: 1500, NetPriceCents: 1350, TaxPercentage: 11},
			},
		},
	})
	if err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	api := New(cache, ob, conn, dispatcher, refresher, "http://127.0.0.1:3000", nil)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return &fixture{api: api, cache: cache, outbox: ob, conn: conn, dispatcher: dispatcher, refresher: refresher, server: server}
}

func (f *fixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func validSale() domain.SaleCreateRequest {
	return domain.SaleCreateRequest{
		Items:    []domain.SaleItem{{VariantID: "v1", Qty: 2}},
		Payments: []domain.SalePayment{{Method: "cash", AmountCents: 3000}},
	}
}

func TestCreateSaleEnqueuesAndTriggersWhenOnline(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/v1/sales", validSale())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created domain.SaleCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.CommandID == "" || created.PendingCount != 1 {
		t.Fatalf("unexpected response %+v", created)
	}
	if f.dispatcher.triggered != 1 {
		t.Fatalf("expected dispatcher trigger while online, got %d", f.dispatcher.triggered)
	}

	// Items are priced from the cached snapshot.
	entries, err := f.outbox.List(context.Background())
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	var payload domain.SalePayload
	if err := json.Unmarshal(entries[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Items[0].UnitGrossCents != 1500 || payload.Items[0].TaxPercentage != 11 {
		t.Fatalf("expected cached price snapshot, got %+v", payload.Items[0])
	}
}

func TestCreateSaleOfflineQueuesWithoutTrigger(t *testing.T) {
	f := newFixture(t)
	f.conn.offline = true

	resp := f.post(t, "/api/v1/sales", validSale())
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("offline enqueue must succeed, got %d", resp.StatusCode)
	}
	if f.dispatcher.triggered != 0 {
		t.Fatalf("offline enqueue must not trigger the dispatcher")
	}
}

func TestCreateSaleRejectsEmptyItems(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/v1/sales", domain.SaleCreateRequest{
		Payments: []domain.SalePayment{{Method: "cash", AmountCents: 100}},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty items, got %d", resp.StatusCode)
	}
}

func TestLookupEndpoint(t *testing.T) {
	f := newFixture(t)

	var found domain.VariantLookupResponse
	if code := f.get(t, "/api/v1/products/lookup?code=890111", &found); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !found.Found || found.Variant.ID != "v1" {
		t.Fatalf("expected barcode lookup hit, got %+v", found)
	}

	var missing domain.VariantLookupResponse
	f.get(t, "/api/v1/products/lookup?code=NOPE", &missing)
	if missing.Found {
		t.Fatalf("expected miss, got %+v", missing)
	}
}

func TestStatusReflectsOutboxAndConnectivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id1, _ := f.outbox.Enqueue(ctx, domain.CommandCreateSale, domain.SalePayload{})
	f.outbox.Enqueue(ctx, domain.CommandCreateSale, domain.SalePayload{})
	if err := f.outbox.MarkFailed(ctx, id1, "rejected", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	f.conn.offline = true

	var status domain.TerminalStatus
	f.get(t, "/api/v1/status", &status)
	if !status.Offline || status.Connectivity != string(domain.StateOffline) {
		t.Fatalf("expected offline status, got %+v", status)
	}
	if status.PendingCount != 1 || status.FailedCount != 1 {
		t.Fatalf("expected pending=1 failed=1, got %+v", status)
	}
}

func TestOutboxListFilterAndDiscard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, _ := f.outbox.Enqueue(ctx, domain.CommandCreateSale, domain.SalePayload{})
	if err := f.outbox.MarkFailed(ctx, id, "rejected", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	var failed domain.OutboxListResponse
	f.get(t, "/api/v1/outbox?status=failed", &failed)
	if len(failed.Commands) != 1 || failed.Commands[0].CommandID != id {
		t.Fatalf("expected failed entry listed, got %+v", failed)
	}

	resp := f.post(t, "/api/v1/outbox/"+id+"/discard", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on discard, got %d", resp.StatusCode)
	}

	if code := f.get(t, "/api/v1/outbox?status=bogus", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown filter, got %d", code)
	}
}

func TestRetryNowEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/v1/sync/retry", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if f.dispatcher.retried != 1 {
		t.Fatalf("expected one manual retry, got %d", f.dispatcher.retried)
	}
}

func TestCatalogRefreshEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/v1/catalog/refresh", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if f.refresher.calls != 1 {
		t.Fatalf("expected one refresh call, got %d", f.refresher.calls)
	}
}
