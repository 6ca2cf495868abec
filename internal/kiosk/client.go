package kiosk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	catalogdomain "github.com/akash768145s/Smartshake/internal/catalog/domain"
	orderdomain "github.com/akash768145s/Smartshake/internal/order/domain"
	paymentdomain "github.com/akash768145s/Smartshake/internal/payment/domain"
	"github.com/akash768145s/Smartshake/internal/pricing"
)

const idempotencyKeyHeader = "Idempotency-Key"

// APIError is a non-2xx answer from kiosk-api.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kiosk-api: %d %s", e.Status, e.Message)
}

// Retryable reports whether err may succeed when the same request is sent
// again: transport failures and 5xx answers.
func Retryable(err error) bool {
	if status := statusOf(err); status != 0 {
		return status >= 500
	}
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type OrderRequest struct {
	Base           pricing.Base                `json:"base"`
	Quantity       int                         `json:"quantity"`
	TotalPrice     int64                       `json:"total_price"`
	Flavours       map[string]int              `json:"flavours"`
	MachineID      string                      `json:"machineId,omitempty"`
	MachineName    string                      `json:"machineName,omitempty"`
	IdempotencyKey string                      `json:"idempotencyKey,omitempty"`
	Payment        *paymentdomain.Verification `json:"payment,omitempty"`
}

// Client is a typed client for the kiosk-api HTTP interface.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) Flavours(ctx context.Context) ([]catalogdomain.Flavour, error) {
	var out []catalogdomain.Flavour
	_, err := c.do(ctx, http.MethodGet, "/flavours", nil, nil, &out)
	return out, err
}

// CreateIntent asks for a gateway payment intent of amount major units.
func (c *Client) CreateIntent(ctx context.Context, amount int64, receipt string) (paymentdomain.Intent, error) {
	body := struct {
		Amount  decimal.Decimal `json:"amount"`
		Receipt string          `json:"receipt,omitempty"`
	}{decimal.NewFromInt(amount), receipt}

	var out paymentdomain.Intent
	_, err := c.do(ctx, http.MethodPost, "/payments/create-order", nil, body, &out)
	if statusOf(err) == http.StatusBadGateway {
		return out, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	return out, err
}

// Verify checks a payment proof without placing an order.
func (c *Client) Verify(ctx context.Context, v paymentdomain.Verification) error {
	var out struct {
		Verified bool   `json:"verified"`
		Error    string `json:"error"`
	}
	_, err := c.do(ctx, http.MethodPost, "/payments/verify", nil, v, &out)
	return signatureErr(err)
}

// CreateOrder places an order. replayed is true when the server returned an
// order created earlier under the same idempotency key.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (o orderdomain.OrderWithItems, replayed bool, err error) {
	var hdr http.Header
	if req.IdempotencyKey != "" {
		hdr = http.Header{idempotencyKeyHeader: []string{req.IdempotencyKey}}
	}
	status, err := c.do(ctx, http.MethodPost, "/orders", hdr, req, &o)
	if err != nil {
		return orderdomain.OrderWithItems{}, false, signatureErr(err)
	}
	return o, status == http.StatusOK, nil
}

func (c *Client) Order(ctx context.Context, id string) (orderdomain.OrderWithItems, error) {
	var out orderdomain.OrderWithItems
	_, err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &out)
	if statusOf(err) == http.StatusNotFound {
		return out, orderdomain.ErrNotFound
	}
	return out, err
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func signatureErr(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest && strings.Contains(apiErr.Message, "signature") {
		return fmt.Errorf("%w: %s", paymentdomain.ErrSignatureMismatch, apiErr.Message)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, hdr http.Header, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}
