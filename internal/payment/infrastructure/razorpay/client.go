package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akash768145s/Smartshake/internal/payment/domain"
)

const DefaultBaseURL = "https://api.razorpay.com"

type Config struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	HTTP      *http.Client
}

// Client talks to the Razorpay orders API and checks checkout signatures.
// The key secret never leaves this type.
type Client struct {
	keyID   string
	secret  string
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.KeyID) == "" || strings.TrimSpace(cfg.KeySecret) == "" {
		return nil, fmt.Errorf("razorpay config incomplete")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{keyID: cfg.KeyID, secret: cfg.KeySecret, baseURL: base, http: hc}, nil
}

func (c *Client) KeyID() string { return c.keyID }

type createOrderReq struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

type orderResp struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type errorResp struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) CreateOrder(ctx context.Context, in domain.IntentRequest) (domain.Intent, error) {
	notes := in.Notes
	if notes == nil {
		notes = map[string]string{}
	}
	raw, err := json.Marshal(createOrderReq{
		Amount:   in.AmountMinor,
		Currency: in.Currency,
		Receipt:  in.Receipt,
		Notes:    notes,
	})
	if err != nil {
		return domain.Intent{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(raw))
	if err != nil {
		return domain.Intent{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Intent{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResp
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error.Description != "" {
			msg = e.Error.Code + ": " + e.Error.Description
		}
		return domain.Intent{}, fmt.Errorf("%w: status %d: %s", domain.ErrGatewayUnavailable, resp.StatusCode, msg)
	}

	var out orderResp
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.Intent{}, fmt.Errorf("%w: decode order: %v", domain.ErrGatewayUnavailable, err)
	}
	if out.ID == "" {
		return domain.Intent{}, fmt.Errorf("%w: missing order id", domain.ErrGatewayUnavailable)
	}
	return domain.Intent{
		ID:          out.ID,
		AmountMinor: out.Amount,
		Currency:    out.Currency,
		Receipt:     out.Receipt,
		KeyID:       c.keyID,
	}, nil
}

// VerifySignature reports whether signature is the lower-case hex
// HMAC-SHA256 of "intentID|paymentID" under the key secret. The comparison is
// constant time and byte-exact.
func (c *Client) VerifySignature(intentID, paymentID, signature string) bool {
	want := Sign(c.secret, intentID, paymentID)
	return hmac.Equal([]byte(want), []byte(signature))
}

// Sign produces the checkout signature Razorpay returns for a payment.
func Sign(secret, intentID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(intentID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
