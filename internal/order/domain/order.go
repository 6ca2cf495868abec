package domain

import (
	"time"

	"github.com/akash768145s/Smartshake/internal/pricing"
)

type Base = pricing.Base

const (
	BaseMilk  = pricing.BaseMilk
	BaseWater = pricing.BaseWater
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusPreparing  OrderStatus = "preparing"
	StatusDispensing OrderStatus = "dispensing"
	StatusCompleted  OrderStatus = "completed"
	StatusFailed     OrderStatus = "failed"
)

func ParseStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusPreparing, StatusDispensing, StatusCompleted, StatusFailed:
		return st, true
	}
	return "", false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvanceTo reports whether next is a forward edge from s:
// pending -> preparing -> dispensing -> completed, and any non-terminal -> failed.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	if next == StatusFailed {
		return !s.Terminal()
	}
	switch s {
	case StatusPending:
		return next == StatusPreparing
	case StatusPreparing:
		return next == StatusDispensing
	case StatusDispensing:
		return next == StatusCompleted
	}
	return false
}

// Order is a paid shake request. Optional fields are empty when absent and
// omitted from JSON.
type Order struct {
	ID             string      `json:"id"`
	Base           Base        `json:"base"`
	QuantityMl     int         `json:"quantity"`
	TotalPrice     int64       `json:"total_price"`
	Status         OrderStatus `json:"status"`
	MachineID      string      `json:"machineId,omitempty"`
	MachineName    string      `json:"machineName,omitempty"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`
	PaymentID      string      `json:"paymentId,omitempty"`
	FailureReason  string      `json:"failureReason,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// Advance returns a copy of o moved to next at time at. It does not check
// the edge; callers use CanAdvanceTo first.
func (o Order) Advance(next OrderStatus, reason string, at time.Time) Order {
	o.Status = next
	o.UpdatedAt = at
	if next == StatusCompleted && o.CompletedAt == nil {
		t := at
		o.CompletedAt = &t
	}
	if next == StatusFailed {
		o.FailureReason = reason
	}
	return o
}

// LineItem is one flavour of an order, priced when the order was created.
type LineItem struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	FlavourID     string    `json:"flavour_id"`
	Scoops        int       `json:"scoops"`
	PricePerScoop int64     `json:"price_per_scoop"`
	CreatedAt     time.Time `json:"created_at"`
}

type OrderWithItems struct {
	Order Order      `json:"order"`
	Items []LineItem `json:"orderItems"`
}

type ListFilter struct {
	Statuses      []OrderStatus
	MachineID     string
	CreatedAfter  time.Time
	CreatedUntil  time.Time
	UpdatedBefore time.Time
	Limit         int
}
