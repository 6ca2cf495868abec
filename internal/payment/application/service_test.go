package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akash768145s/Smartshake/internal/payment/domain"
)

type fakeGateway struct {
	got   domain.IntentRequest
	err   error
	valid string
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	g.got = req
	if g.err != nil {
		return domain.Intent{}, g.err
	}
	return domain.Intent{ID: "order_1", AmountMinor: req.AmountMinor, Currency: req.Currency, Receipt: req.Receipt, KeyID: "key"}, nil
}

func (g *fakeGateway) VerifySignature(intentID, paymentID, signature string) bool {
	return signature == g.valid
}

func newService(gw Gateway) *Service {
	s := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), gw)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func TestCreateIntentConvertsToMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"297", 29700},
		{"312.5", 31250},
		{"0.015", 2},
		{"99.994", 9999},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			gw := &fakeGateway{}
			svc := newService(gw)
			intent, err := svc.CreateIntent(context.Background(), decimal.RequireFromString(tt.amount), "", "", nil)
			if err != nil {
				t.Fatalf("CreateIntent() = %v", err)
			}
			if gw.got.AmountMinor != tt.want || intent.AmountMinor != tt.want {
				t.Errorf("amount minor = %d, want %d", gw.got.AmountMinor, tt.want)
			}
			if gw.got.Currency != "INR" || gw.got.Receipt != "receipt_1700000000000" {
				t.Errorf("defaults not applied: %+v", gw.got)
			}
		})
	}
}

func TestCreateIntentRejectsNonPositive(t *testing.T) {
	svc := newService(&fakeGateway{})
	for _, a := range []string{"0", "-10", "0.004"} {
		if _, err := svc.CreateIntent(context.Background(), decimal.RequireFromString(a), "INR", "", nil); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("amount %s: err = %v, want ErrInvalidAmount", a, err)
		}
	}
}

func TestCreateIntentPropagatesGatewayError(t *testing.T) {
	svc := newService(&fakeGateway{err: domain.ErrGatewayUnavailable})
	_, err := svc.CreateIntent(context.Background(), decimal.NewFromInt(10), "INR", "r", nil)
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestVerify(t *testing.T) {
	svc := newService(&fakeGateway{valid: "good"})
	ctx := context.Background()

	if err := svc.Verify(ctx, domain.Verification{IntentID: "order_1", PaymentID: "pay_1", Signature: "good"}); err != nil {
		t.Errorf("valid verification: %v", err)
	}
	if err := svc.Verify(ctx, domain.Verification{IntentID: "order_1", PaymentID: "pay_1", Signature: "bad"}); !errors.Is(err, domain.ErrSignatureMismatch) {
		t.Errorf("bad signature: %v", err)
	}
	if err := svc.Verify(ctx, domain.Verification{IntentID: "order_1", Signature: "good"}); !errors.Is(err, domain.ErrMissingVerification) {
		t.Errorf("missing payment id: %v", err)
	}
}
