package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	catalogdomain "github.com/akash768145s/Smartshake/internal/catalog/domain"
	"github.com/akash768145s/Smartshake/internal/order/domain"
	paymentdomain "github.com/akash768145s/Smartshake/internal/payment/domain"
	"github.com/akash768145s/Smartshake/internal/pricing"
	"github.com/akash768145s/Smartshake/pkg/outbox"
)

const maxAdvanceAttempts = 3

// CreateRequest is a confirmed checkout. Payment carries the gateway proof and
// is verified before anything is written.
type CreateRequest struct {
	Base           domain.Base
	QuantityMl     int
	TotalPrice     int64
	Flavours       map[string]int
	MachineID      string
	MachineName    string
	IdempotencyKey string
	Payment        *paymentdomain.Verification
}

type CreateResult struct {
	domain.OrderWithItems
	Replayed bool
}

type Service struct {
	log            *slog.Logger
	repo           OrderRepository
	catalog        Catalog
	payments       PaymentVerifier
	requirePayment bool
	now            func() time.Time
	newID          func() string
}

func NewService(log *slog.Logger, repo OrderRepository, catalog Catalog, payments PaymentVerifier, requirePayment bool) *Service {
	return &Service{
		log:            log,
		repo:           repo,
		catalog:        catalog,
		payments:       payments,
		requirePayment: requirePayment,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// CreateOrder persists a pending order with one line item per flavour. A
// request whose idempotency key already has an order returns that order
// unchanged with Replayed set, including when it loses a concurrent race.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest, traceparent string) (CreateResult, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			s.log.Info("order replayed", "order_id", existing.Order.ID, "idempotency_key", req.IdempotencyKey)
			return CreateResult{OrderWithItems: existing, Replayed: true}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return CreateResult{}, s.storeErr("get by idempotency key", err)
		}
	}

	if err := validate(req); err != nil {
		return CreateResult{}, err
	}
	if req.Payment != nil {
		if err := s.payments.Verify(ctx, *req.Payment); err != nil {
			return CreateResult{}, err
		}
	} else if s.requirePayment {
		return CreateResult{}, &domain.ValidationError{Field: "payment", Reason: "required"}
	}

	now := s.now().UTC()
	o := domain.Order{
		ID:             s.newID(),
		Base:           req.Base,
		QuantityMl:     req.QuantityMl,
		TotalPrice:     req.TotalPrice,
		Status:         domain.StatusPending,
		MachineID:      req.MachineID,
		MachineName:    req.MachineName,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Payment != nil {
		o.PaymentID = req.Payment.PaymentID
	}
	items := s.lineItems(ctx, o.ID, req.Flavours, now)

	if quote := pricing.QuoteMl(pricing.TotalScoops(req.Flavours), req.QuantityMl, req.Base); quote != req.TotalPrice {
		s.log.Warn("client total differs from quote", "idempotency_key", req.IdempotencyKey, "total_price", req.TotalPrice, "quote", quote)
	}

	msg, err := createdMessage(o, items, traceparent)
	if err != nil {
		return CreateResult{}, err
	}

	err = s.repo.SaveWithOutbox(ctx, o, items, msg)
	switch {
	case errors.Is(err, domain.ErrDuplicateKey):
		existing, gerr := s.repo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if gerr != nil {
			return CreateResult{}, s.storeErr("get by idempotency key", gerr)
		}
		s.log.Info("order replayed after concurrent create", "order_id", existing.Order.ID, "idempotency_key", req.IdempotencyKey)
		return CreateResult{OrderWithItems: existing, Replayed: true}, nil
	case errors.Is(err, domain.ErrPaymentReused):
		s.log.Warn("payment reuse rejected", "payment_id", o.PaymentID, "idempotency_key", req.IdempotencyKey)
		return CreateResult{}, err
	case err != nil:
		return CreateResult{}, s.storeErr("save order", err)
	}

	s.log.Info("order created", "order_id", o.ID, "status", o.Status, "machine_id", o.MachineID, "total_price", o.TotalPrice, "items", len(items))
	return CreateResult{OrderWithItems: domain.OrderWithItems{Order: o, Items: items}}, nil
}

// lineItems resolves each flavour through the catalog. References that resolve
// to the same flavour are merged.
func (s *Service) lineItems(ctx context.Context, orderID string, flavours map[string]int, at time.Time) []domain.LineItem {
	refs := make([]string, 0, len(flavours))
	for ref, n := range flavours {
		if n > 0 {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)

	items := make([]domain.LineItem, 0, len(refs))
	index := make(map[string]int, len(refs))
	for _, ref := range refs {
		res := s.catalog.Lookup(ctx, ref)
		if res.Outcome == catalogdomain.FallbackUsed {
			s.log.Warn("line item priced with fallback", "order_id", orderID, "ref", ref, "flavour_id", res.FlavourID)
		}
		if i, ok := index[res.FlavourID]; ok {
			items[i].Scoops += flavours[ref]
			continue
		}
		index[res.FlavourID] = len(items)
		items = append(items, domain.LineItem{
			ID:            s.newID(),
			OrderID:       orderID,
			FlavourID:     res.FlavourID,
			Scoops:        flavours[ref],
			PricePerScoop: res.PricePerScoop,
			CreatedAt:     at,
		})
	}
	return items
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.OrderWithItems, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.OrderWithItems{}, s.storeErr("get order", err)
	}
	return o, err
}

// Advance moves an order along a forward edge of the lifecycle. Asking for
// the status the order already has is a no-op.
func (s *Service) Advance(ctx context.Context, id string, next domain.OrderStatus, reason, traceparent string) (domain.Order, error) {
	return s.advance(ctx, id, next, reason, traceparent, nil)
}

// advance applies the transition when guard (if set) accepts the freshly read
// order. A rejected guard returns ErrStaleStatus.
func (s *Service) advance(ctx context.Context, id string, next domain.OrderStatus, reason, traceparent string, guard func(domain.Order) bool) (domain.Order, error) {
	if _, ok := domain.ParseStatus(string(next)); !ok {
		return domain.Order{}, domain.ErrInvalidStatus
	}

	for attempt := 0; attempt < maxAdvanceAttempts; attempt++ {
		cur, err := s.repo.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, err
		}
		if err != nil {
			return domain.Order{}, s.storeErr("get order", err)
		}
		o := cur.Order
		if guard != nil && !guard(o) {
			return domain.Order{}, domain.ErrStaleStatus
		}
		if o.Status == next {
			return o, nil
		}
		if !o.Status.CanAdvanceTo(next) {
			return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, o.Status, next)
		}

		updated := o.Advance(next, reason, s.now().UTC())
		msg, err := statusMessage(o.Status, updated, reason, traceparent)
		if err != nil {
			return domain.Order{}, err
		}
		err = s.repo.UpdateStatusWithOutbox(ctx, updated, o.Status, msg)
		if errors.Is(err, domain.ErrStaleStatus) {
			s.log.Info("order status raced, retrying", "order_id", id, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return domain.Order{}, s.storeErr("update status", err)
		}

		s.log.Info("order status updated", "order_id", id, "from", o.Status, "to", next)
		return updated, nil
	}
	return domain.Order{}, domain.ErrStaleStatus
}

func (s *Service) ListOrders(ctx context.Context, f domain.ListFilter) ([]domain.Order, error) {
	orders, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, s.storeErr("list orders", err)
	}
	return orders, nil
}

// Sales returns completed orders created within [since, until], newest first,
// with flavour names resolved through the catalog. Zero bounds are open.
func (s *Service) Sales(ctx context.Context, machineID string, since, until time.Time) ([]domain.Sale, error) {
	orders, err := s.completed(ctx, machineID, since, until)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, len(orders))
	if len(orders) == 0 {
		return sales, nil
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items, err := s.repo.Items(ctx, ids)
	if err != nil {
		return nil, s.storeErr("list order items", err)
	}

	for _, o := range orders {
		flavours := make([]domain.SaleFlavour, 0, len(items[o.ID]))
		for _, it := range items[o.ID] {
			flavours = append(flavours, domain.SaleFlavour{Name: s.catalog.Lookup(ctx, it.FlavourID).Name, Scoops: it.Scoops})
		}
		machineName := o.MachineName
		if machineName == "" {
			machineName = "Unknown Machine"
		}
		sales = append(sales, domain.Sale{
			ID:              o.ID,
			MachineID:       o.MachineID,
			MachineName:     machineName,
			Flavours:        flavours,
			QuantityMl:      o.QuantityMl,
			Total:           o.TotalPrice,
			Base:            o.Base,
			Timestamp:       o.CreatedAt,
			DurationSeconds: o.DispenseDuration(),
		})
	}
	return sales, nil
}

// SalesStats aggregates revenue over completed orders of the last days days.
func (s *Service) SalesStats(ctx context.Context, days int) (domain.SalesStats, error) {
	orders, err := s.completed(ctx, "", s.now().UTC().AddDate(0, 0, -days), time.Time{})
	if err != nil {
		return domain.SalesStats{}, err
	}
	stats := domain.SalesStats{TotalOrders: len(orders), Period: fmt.Sprintf("%d days", days)}
	for _, o := range orders {
		stats.TotalRevenue += o.TotalPrice
	}
	if stats.TotalOrders > 0 {
		stats.AvgOrderValue = float64(stats.TotalRevenue) / float64(stats.TotalOrders)
	}
	return stats, nil
}

func (s *Service) completed(ctx context.Context, machineID string, since, until time.Time) ([]domain.Order, error) {
	return s.ListOrders(ctx, domain.ListFilter{
		Statuses:     []domain.OrderStatus{domain.StatusCompleted},
		MachineID:    machineID,
		CreatedAfter: since,
		CreatedUntil: until,
	})
}

func (s *Service) storeErr(op string, err error) error {
	s.log.Error("order store failure", "op", op, "err", err)
	return &domain.StoreError{Op: op, Err: err}
}

func createdMessage(o domain.Order, items []domain.LineItem, traceparent string) (outbox.Message, error) {
	payload, err := json.Marshal(domain.OrderCreated{
		OrderID:     o.ID,
		Base:        o.Base,
		QuantityMl:  o.QuantityMl,
		TotalPrice:  o.TotalPrice,
		MachineID:   o.MachineID,
		MachineName: o.MachineName,
		Items:       items,
		CreatedAt:   o.CreatedAt,
	})
	if err != nil {
		return outbox.Message{}, err
	}
	return outbox.Message{
		AggregateType: "order",
		AggregateID:   o.ID,
		Type:          domain.EventOrderCreated,
		Payload:       payload,
		Headers:       map[string]string{"source": "kiosk-api"},
		Traceparent:   traceparent,
	}, nil
}

func statusMessage(from domain.OrderStatus, o domain.Order, reason, traceparent string) (outbox.Message, error) {
	payload, err := json.Marshal(domain.OrderStatusChanged{
		OrderID:   o.ID,
		MachineID: o.MachineID,
		From:      from,
		To:        o.Status,
		Reason:    reason,
		At:        o.UpdatedAt,
	})
	if err != nil {
		return outbox.Message{}, err
	}
	return outbox.Message{
		AggregateType: "order",
		AggregateID:   o.ID,
		Type:          domain.EventOrderStatusChanged,
		Payload:       payload,
		Headers:       map[string]string{"source": "kiosk-api"},
		Traceparent:   traceparent,
	}, nil
}
