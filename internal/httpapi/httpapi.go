package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"warungpos/terminal/internal/catalog"
	"warungpos/terminal/internal/domain"
	"warungpos/terminal/internal/outbox"
	"warungpos/terminal/internal/store"
)

// Connectivity is the monitor surface the API needs.
type Connectivity interface {
	IsOffline() bool
	State() domain.ConnectivityState
}

// Dispatcher is the syncer surface the API needs.
type Dispatcher interface {
	Trigger()
	RetryNow(ctx context.Context)
	State() string
	LastDrainAt() *time.Time
}

// CatalogRefresher triggers a full catalog pull on operator request.
type CatalogRefresher interface {
	Refresh(ctx context.Context) error
}

// API is the local surface the cashier UI talks to. Errors toward the UI are
// counts and badges, never blocking failures: the cashier must keep selling.
type API struct {
	cache         *catalog.Cache
	outbox        *outbox.Outbox
	conn          Connectivity
	dispatcher    Dispatcher
	refresher     CatalogRefresher
	allowedOrigin string
	logger        *zap.Logger
}

func New(cache *catalog.Cache, ob *outbox.Outbox, conn Connectivity, dispatcher Dispatcher, refresher CatalogRefresher, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		cache:         cache,
		outbox:        ob,
		conn:          conn,
		dispatcher:    dispatcher,
		refresher:     refresher,
		allowedOrigin: allowedOrigin,
		logger:        logger,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(a.cors)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", a.handleProducts)
		r.Get("/products/lookup", a.handleLookup)
		r.Post("/sales", a.handleCreateSale)
		r.Get("/outbox", a.handleOutboxList)
		r.Post("/outbox/{commandID}/discard", a.handleDiscard)
		r.Get("/status", a.handleStatus)
		r.Post("/sync/retry", a.handleRetryNow)
		r.Post("/catalog/refresh", a.handleCatalogRefresh)
	})

	return r
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleProducts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, domain.ProductListResponse{Products: a.cache.GetAll()})
}

func (a *API) handleLookup(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code query parameter is required")
		return
	}
	product, variant := a.cache.FindBySKUOrBarcode(code)
	writeJSON(w, http.StatusOK, domain.VariantLookupResponse{
		Found:   variant != nil,
		Product: product,
		Variant: variant,
	})
}

// handleCreateSale enqueues the sale durably and returns immediately. It
// never blocks on the network; the dispatcher picks the entry up when
// connectivity allows.
func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload, err := a.buildSalePayload(req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	commandID, err := a.outbox.Enqueue(r.Context(), domain.CommandCreateSale, payload)
	if err != nil {
		a.logger.Error("enqueue sale", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not queue sale")
		return
	}

	if !a.conn.IsOffline() {
		a.dispatcher.Trigger()
	}

	count, err := a.outbox.PendingCount(r.Context())
	if err != nil {
		count = 0
	}
	writeJSON(w, http.StatusCreated, domain.SaleCreateResponse{
		CommandID:    commandID,
		Status:       domain.CommandPending,
		PendingCount: count,
	})
}

// buildSalePayload validates the request and fills item snapshots (price,
// tax, names) from the cached catalog where the UI left them unset. Prices
// are taken from the cache at enqueue time, never refetched at dispatch.
func (a *API) buildSalePayload(req domain.SaleCreateRequest) (domain.SalePayload, error) {
	if len(req.Items) == 0 {
		return domain.SalePayload{}, errors.New("sale must contain at least one item")
	}
	if len(req.Payments) == 0 {
		return domain.SalePayload{}, errors.New("sale must contain at least one payment")
	}
	for _, p := range req.Payments {
		if p.AmountCents <= 0 {
			return domain.SalePayload{}, errors.New("payment amounts must be positive")
		}
		if p.Method == "" {
			return domain.SalePayload{}, errors.New("payment method is required")
		}
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Qty <= 0 {
			return domain.SalePayload{}, errors.New("item qty must be positive")
		}
		if item.VariantID == "" && item.SKU == "" {
			return domain.SalePayload{}, errors.New("item needs a variant id or sku")
		}

		product, variant := a.resolveVariant(item)
		if variant != nil {
			if item.UnitGrossCents == 0 {
				item.UnitGrossCents = variant.GrossPriceCents
			}
			if item.TaxPercentage == 0 {
				item.TaxPercentage = variant.TaxPercentage
			}
			if item.SKU == "" {
				item.SKU = variant.SKU
			}
			if item.VariantID == "" {
				item.VariantID = variant.ID
			}
			if item.Name == "" && product != nil {
				item.Name = product.Name
			}
		}
		if item.UnitGrossCents < 0 {
			return domain.SalePayload{}, errors.New("item price must not be negative")
		}
		items = append(items, item)
	}

	return domain.SalePayload{Items: items, Payments: req.Payments, Note: req.Note}, nil
}

func (a *API) resolveVariant(item domain.SaleItem) (*domain.CachedProduct, *domain.CachedVariant) {
	if item.VariantID != "" {
		return a.cache.FindVariantByID(item.VariantID)
	}
	return a.cache.FindBySKUOrBarcode(item.SKU)
}

func (a *API) handleOutboxList(w http.ResponseWriter, r *http.Request) {
	var statuses []string
	if status := r.URL.Query().Get("status"); status != "" {
		switch status {
		case domain.CommandPending, domain.CommandSending, domain.CommandFailed:
			statuses = append(statuses, status)
		default:
			writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
	}
	commands, err := a.outbox.List(r.Context(), statuses...)
	if err != nil {
		a.logger.Error("list outbox", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read outbox")
		return
	}
	writeJSON(w, http.StatusOK, domain.OutboxListResponse{Commands: commands})
}

func (a *API) handleDiscard(w http.ResponseWriter, r *http.Request) {
	commandID := chi.URLParam(r, "commandID")
	err := a.outbox.Discard(r.Context(), commandID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "command not found")
	default:
		writeError(w, http.StatusConflict, err.Error())
	}
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := a.outbox.PendingCount(r.Context())
	if err != nil {
		a.logger.Error("pending count", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read outbox")
		return
	}
	failed, err := a.outbox.FailedCount(r.Context())
	if err != nil {
		failed = 0
	}
	writeJSON(w, http.StatusOK, domain.TerminalStatus{
		Connectivity: string(a.conn.State()),
		Offline:      a.conn.IsOffline(),
		Dispatcher:   a.dispatcher.State(),
		PendingCount: pending,
		FailedCount:  failed,
		LastDrainAt:  a.dispatcher.LastDrainAt(),
	})
}

func (a *API) handleRetryNow(w http.ResponseWriter, r *http.Request) {
	a.dispatcher.RetryNow(r.Context())
	a.handleStatus(w, r)
}

func (a *API) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	if err := a.refresher.Refresh(r.Context()); err != nil {
		a.logger.Warn("manual catalog refresh failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "catalog refresh failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
