package domain

import "time"

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderCreated struct {
	OrderID     string     `json:"order_id"`
	Base        Base       `json:"base"`
	QuantityMl  int        `json:"quantity"`
	TotalPrice  int64      `json:"total_price"`
	MachineID   string     `json:"machine_id,omitempty"`
	MachineName string     `json:"machine_name,omitempty"`
	Items       []LineItem `json:"items"`
	CreatedAt   time.Time  `json:"created_at"`
}

type OrderStatusChanged struct {
	OrderID   string      `json:"order_id"`
	MachineID string      `json:"machine_id,omitempty"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	Reason    string      `json:"reason,omitempty"`
	At        time.Time   `json:"at"`
}

// DispenseReport is published by a machine as it works through an order.
type DispenseReport struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	MachineID string `json:"machine_id,omitempty"`
}
