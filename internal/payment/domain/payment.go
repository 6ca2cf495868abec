package domain

import (
	"errors"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrMissingVerification = errors.New("missing payment verification data")
	ErrSignatureMismatch   = errors.New("invalid payment signature")
)

// IntentRequest asks the gateway to reserve an amount. AmountMinor is in the
// smallest currency unit (paise for INR).
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Intent is a gateway-side payment reservation returned to the kiosk to drive
// the hosted checkout. Only the public key id is exposed.
type Intent struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	KeyID       string `json:"key_id"`
}

// Verification is what the hosted checkout hands back after a payment.
type Verification struct {
	IntentID  string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

func (v Verification) Complete() bool {
	return v.IntentID != "" && v.PaymentID != "" && v.Signature != ""
}
