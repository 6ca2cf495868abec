package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akash768145s/Smartshake/internal/payment/domain"
)

const DefaultCurrency = "INR"

type Service struct {
	log *slog.Logger
	gw  Gateway
	now func() time.Time
}

func NewService(log *slog.Logger, gw Gateway) *Service {
	return &Service{log: log, gw: gw, now: time.Now}
}

// CreateIntent reserves amount (in major units) with the gateway.
func (s *Service) CreateIntent(ctx context.Context, amount decimal.Decimal, currency, receipt string, notes map[string]string) (domain.Intent, error) {
	minor := amount.Shift(2).Round(0).IntPart()
	if !amount.IsPositive() || minor <= 0 {
		return domain.Intent{}, domain.ErrInvalidAmount
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	if receipt == "" {
		receipt = fmt.Sprintf("receipt_%d", s.now().UnixMilli())
	}

	intent, err := s.gw.CreateOrder(ctx, domain.IntentRequest{
		AmountMinor: minor,
		Currency:    currency,
		Receipt:     receipt,
		Notes:       notes,
	})
	if err != nil {
		s.log.Error("create payment intent failed", "receipt", receipt, "amount_minor", minor, "err", err)
		return domain.Intent{}, err
	}
	s.log.Info("payment intent created", "intent_id", intent.ID, "amount_minor", intent.AmountMinor, "currency", intent.Currency)
	return intent, nil
}

// Verify checks the gateway signature of a completed payment. A mismatch is
// terminal: the caller has to collect payment again.
func (s *Service) Verify(ctx context.Context, v domain.Verification) error {
	if !v.Complete() {
		return domain.ErrMissingVerification
	}
	if !s.gw.VerifySignature(v.IntentID, v.PaymentID, v.Signature) {
		s.log.Warn("payment signature mismatch", "intent_id", v.IntentID, "payment_id", v.PaymentID)
		return domain.ErrSignatureMismatch
	}
	s.log.Info("payment verified", "intent_id", v.IntentID, "payment_id", v.PaymentID)
	return nil
}
