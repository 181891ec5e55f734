package domain

import (
	"encoding/json"
	"time"
)

// CachedVariant is a sellable SKU variant as last seen from the catalog
// service. Prices are a point-in-time snapshot in cents; the tax rate is the
// one applied at sale time, never recomputed at checkout.
type CachedVariant struct {
	ID              string  `json:"id"`
	SKU             string  `json:"sku"`
	Name            string  `json:"name,omitempty"`
	Barcode         string  `json:"barcode,omitempty"`
	GrossPriceCents int64   `json:"gross_price_cents"`
	NetPriceCents   int64   `json:"net_price_cents"`
	TaxPercentage   float64 `json:"tax_percentage"`
}

// CachedProduct is a denormalized product snapshot. Replaced wholesale on
// every catalog refresh, never partially mutated.
type CachedProduct struct {
	ID           string          `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name"`
	ImageURL     string          `json:"image_url,omitempty"`
	UnitCode     string          `json:"unit_code,omitempty"`
	Variants     []CachedVariant `json:"variants"`
	SyncedAt     time.Time       `json:"synced_at"`
}

// PendingCommand is an outbox entry for a not-yet-confirmed mutation.
// CommandID is the idempotency key: generated once at enqueue and never
// regenerated across retries of the same logical sale.
type PendingCommand struct {
	CommandID    string          `json:"command_id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	LastError    string          `json:"last_error,omitempty"`
	Seq          int64           `json:"seq"`
	CreatedAt    time.Time       `json:"created_at"`
}

type SaleItem struct {
	VariantID      string  `json:"variant_id"`
	SKU            string  `json:"sku"`
	Name           string  `json:"name,omitempty"`
	Qty            int     `json:"qty"`
	UnitGrossCents int64   `json:"unit_gross_cents"`
	TaxPercentage  float64 `json:"tax_percentage"`
	DiscountCents  int64   `json:"discount_cents,omitempty"`
}

type SalePayment struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

// SalePayload is the payload carried by a create_sale command. The outbox
// treats it as opaque bytes; only the dispatcher decodes it when building the
// remote submission.
type SalePayload struct {
	SessionID string        `json:"session_id"`
	Items     []SaleItem    `json:"items"`
	Payments  []SalePayment `json:"payments"`
	Note      string        `json:"note,omitempty"`
}

type SaleCreateRequest struct {
	Items    []SaleItem    `json:"items"`
	Payments []SalePayment `json:"payments"`
	Note     string        `json:"note,omitempty"`
}

type SaleCreateResponse struct {
	CommandID    string `json:"command_id"`
	Status       string `json:"status"`
	PendingCount int    `json:"pending_count"`
}

type OutboxListResponse struct {
	Commands []PendingCommand `json:"commands"`
}

type VariantLookupResponse struct {
	Found   bool           `json:"found"`
	Product *CachedProduct `json:"product,omitempty"`
	Variant *CachedVariant `json:"variant,omitempty"`
}

type ProductListResponse struct {
	Products []CachedProduct `json:"products"`
}

type TerminalStatus struct {
	Connectivity string     `json:"connectivity"`
	Offline      bool       `json:"offline"`
	Dispatcher   string     `json:"dispatcher"`
	PendingCount int        `json:"pending_count"`
	FailedCount  int        `json:"failed_count"`
	LastDrainAt  *time.Time `json:"last_drain_at,omitempty"`
}

// ConnectivityState is the process-wide online/offline enum owned by the
// connectivity monitor.
type ConnectivityState string

const (
	StateOnline  ConnectivityState = "online"
	StateOffline ConnectivityState = "offline"
)

const (
	CommandCreateSale = "create_sale"
)

const (
	CommandPending = "pending"
	CommandSending = "sending"
	CommandFailed  = "failed"
)

const (
	DispatcherIdle     = "idle"
	DispatcherDraining = "draining"
)
