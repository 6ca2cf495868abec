package kiosk

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	orderdomain "github.com/akash768145s/Smartshake/internal/order/domain"
	paymentdomain "github.com/akash768145s/Smartshake/internal/payment/domain"
)

var ErrNoIntent = errors.New("checkout not started")

// Session is one customer's visit at a machine. A checkout attempt gets its
// own idempotency key; retries of that attempt reuse it so the server can
// collapse them into one order.
type Session struct {
	log         *slog.Logger
	client      *Client
	MachineID   string
	MachineName string
	Draft       *Draft

	key      string
	intent   *paymentdomain.Intent
	attempts int
	backoff  time.Duration
	newKey   func() string
}

func NewSession(log *slog.Logger, client *Client, machineID, machineName string) *Session {
	return &Session{
		log:         log,
		client:      client,
		MachineID:   machineID,
		MachineName: machineName,
		Draft:       NewDraft(),
		attempts:    3,
		backoff:     time.Second,
		newKey:      uuid.NewString,
	}
}

// IdempotencyKey returns the key of the current attempt, creating it on first use.
func (s *Session) IdempotencyKey() string {
	if s.key == "" {
		s.key = s.newKey()
	}
	return s.key
}

func (s *Session) Intent() (paymentdomain.Intent, bool) {
	if s.intent == nil {
		return paymentdomain.Intent{}, false
	}
	return *s.intent, true
}

// NewAttempt starts a fresh checkout attempt. Used after a signature
// mismatch or when the customer goes back and changes the shake.
func (s *Session) NewAttempt() {
	s.key = ""
	s.intent = nil
}

// Reset clears the draft and the attempt for the next customer.
func (s *Session) Reset() {
	s.Draft.Reset()
	s.NewAttempt()
}

// StartCheckout checks the draft and creates the payment intent the gateway
// checkout is opened with.
func (s *Session) StartCheckout(ctx context.Context) (paymentdomain.Intent, error) {
	if err := s.Draft.CheckoutReady(); err != nil {
		return paymentdomain.Intent{}, err
	}
	intent, err := s.client.CreateIntent(ctx, s.Draft.TotalPrice, "receipt_"+s.IdempotencyKey())
	if err != nil {
		return paymentdomain.Intent{}, err
	}
	s.intent = &intent
	s.log.Info("checkout started", "intent_id", intent.ID, "amount", intent.AmountMinor, "idempotency_key", s.key)
	return intent, nil
}

// Complete hands the gateway's payment proof to the server, which verifies
// it and creates the order. Transport failures are retried with the same
// idempotency key. A signature mismatch ends the attempt.
func (s *Session) Complete(ctx context.Context, paymentID, signature string) (orderdomain.OrderWithItems, error) {
	if s.intent == nil {
		return orderdomain.OrderWithItems{}, ErrNoIntent
	}
	req := OrderRequest{
		Base:           s.Draft.Base,
		Quantity:       s.Draft.VolumeMl(),
		TotalPrice:     s.Draft.TotalPrice,
		Flavours:       s.Draft.Flavours(),
		MachineID:      s.MachineID,
		MachineName:    s.MachineName,
		IdempotencyKey: s.IdempotencyKey(),
		Payment: &paymentdomain.Verification{
			IntentID:  s.intent.ID,
			PaymentID: paymentID,
			Signature: signature,
		},
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		o, _, err := s.client.CreateOrder(ctx, req)
		if err == nil {
			s.log.Info("order placed", "order_id", o.Order.ID, "idempotency_key", req.IdempotencyKey, "attempt", attempt)
			return o, nil
		}
		if errors.Is(err, paymentdomain.ErrSignatureMismatch) {
			s.NewAttempt()
			return orderdomain.OrderWithItems{}, err
		}
		if !Retryable(err) {
			return orderdomain.OrderWithItems{}, err
		}
		lastErr = err
		s.log.Warn("create order failed, retrying", "idempotency_key", req.IdempotencyKey, "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return orderdomain.OrderWithItems{}, ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return orderdomain.OrderWithItems{}, lastErr
}
