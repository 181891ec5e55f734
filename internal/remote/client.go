package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"warungpos/terminal/internal/domain"
)

// SaleRequest is the POST /sales wire body. The remote ledger is idempotent
// on CommandID: a duplicate submission comes back as success, not an error.
type SaleRequest struct {
	CommandID string               `json:"commandId"`
	SessionID string               `json:"sessionId"`
	Items     []domain.SaleItem    `json:"items"`
	Payments  []domain.SalePayment `json:"payments"`
}

type SaleResponse struct {
	SaleID    string `json:"saleId"`
	Duplicate bool   `json:"duplicate"`
}

type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	CategoryID string    `json:"categoryId"`
	ImageURL   string    `json:"imageUrl"`
	UnitCode   string    `json:"unitCode"`
	Variants   []Variant `json:"variants"`
}

type Variant struct {
	ID              string  `json:"id"`
	SKU             string  `json:"sku"`
	Name            string  `json:"name"`
	Barcode         string  `json:"barcode"`
	GrossPriceCents int64   `json:"grossPriceCents"`
	NetPriceCents   int64   `json:"netPriceCents"`
	TaxPercentage   float64 `json:"taxPercentage"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client talks to the remote sales and catalog services. Every request runs
// under a bounded timeout; a timeout is reported as a NetworkError so the
// caller treats it as transient.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SubmitSale posts a queued sale. An HTTP 409 means the remote ledger already
// applied this commandId; that is the idempotency contract working, so it is
// returned as a successful duplicate response.
func (c *Client) SubmitSale(ctx context.Context, req SaleRequest) (*SaleResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ValidationError{StatusCode: 0, Message: fmt.Sprintf("encode sale: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sales", bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Op: "submit sale", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: "submit sale", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		c.logger.Info("sale already applied remotely", zap.String("command_id", req.CommandID))
		return &SaleResponse{Duplicate: true}, nil
	case resp.StatusCode >= 500:
		return nil, &NetworkError{Op: "submit sale", Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &ValidationError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	var out SaleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// The ledger accepted the sale; an unreadable body must not trigger
		// a resubmission.
		c.logger.Warn("sale accepted but response unreadable", zap.String("command_id", req.CommandID), zap.Error(err))
		return &SaleResponse{}, nil
	}
	return &out, nil
}

// FetchProducts pulls the full catalog snapshot. No delta protocol: the
// response replaces the local cache wholesale.
func (c *Client) FetchProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.getJSON(ctx, "/products/sync", &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) FetchCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.getJSON(ctx, "/categories", &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// Probe checks reachability of the remote service. Used by the connectivity
// monitor; any error means offline from the terminal's point of view.
func (c *Client) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return &NetworkError{Op: "probe", Err: err}
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &NetworkError{Op: "probe", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return &NetworkError{Op: "probe", Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &NetworkError{Op: "get " + path, Err: err}
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &NetworkError{Op: "get " + path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return &NetworkError{Op: "get " + path, Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return &ValidationError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: "get " + path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil || len(raw) == 0 {
		return "no detail"
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return string(raw)
}
