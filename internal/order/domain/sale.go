package domain

import "time"

// DefaultDispenseSeconds is reported for a completed order missing its
// completion time.
const DefaultDispenseSeconds = 20

// Sale is a completed order as shown on the sales dashboard.
type Sale struct {
	ID              string        `json:"id"`
	MachineID       string        `json:"machineId"`
	MachineName     string        `json:"machineName"`
	Flavours        []SaleFlavour `json:"flavours"`
	QuantityMl      int           `json:"quantity"`
	Total           int64         `json:"total"`
	Base            Base          `json:"base"`
	Timestamp       time.Time     `json:"timestamp"`
	DurationSeconds int64         `json:"duration"`
}

type SaleFlavour struct {
	Name   string `json:"name"`
	Scoops int    `json:"scoops"`
}

type SalesStats struct {
	TotalRevenue  int64   `json:"totalRevenue"`
	TotalOrders   int     `json:"totalOrders"`
	AvgOrderValue float64 `json:"avgOrderValue"`
	Period        string  `json:"period"`
}

// DispenseDuration is the time from order creation to completion, rounded
// to whole seconds.
func (o Order) DispenseDuration() int64 {
	if o.CompletedAt == nil {
		return DefaultDispenseSeconds
	}
	return int64(o.CompletedAt.Sub(o.CreatedAt).Round(time.Second) / time.Second)
}
