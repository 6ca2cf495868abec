package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/akash768145s/Smartshake/internal/order/domain"
	"github.com/akash768145s/Smartshake/pkg/outbox"
)

// Repository keeps orders in process memory. A single mutex makes every
// write atomic, and the key/payment indexes play the role of the unique
// constraints of the Postgres store. It also serves as the outbox store.
type Repository struct {
	mu        sync.RWMutex
	orders    map[string]domain.Order
	items     map[string][]domain.LineItem
	byKey     map[string]string
	byPayment map[string]string
	events    []outbox.Event
	nextEvent int64
	leases    map[int64]time.Time
}

func NewRepository() *Repository {
	return &Repository{
		orders:    map[string]domain.Order{},
		items:     map[string][]domain.LineItem{},
		byKey:     map[string]string{},
		byPayment: map[string]string{},
		leases:    map[int64]time.Time{},
	}
}

func (r *Repository) SaveWithOutbox(ctx context.Context, o domain.Order, items []domain.LineItem, msg outbox.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.IdempotencyKey != "" {
		if _, ok := r.byKey[o.IdempotencyKey]; ok {
			return domain.ErrDuplicateKey
		}
	}
	if o.PaymentID != "" {
		if _, ok := r.byPayment[o.PaymentID]; ok {
			return domain.ErrPaymentReused
		}
	}

	r.orders[o.ID] = o
	r.items[o.ID] = slices.Clone(items)
	if o.IdempotencyKey != "" {
		r.byKey[o.IdempotencyKey] = o.ID
	}
	if o.PaymentID != "" {
		r.byPayment[o.PaymentID] = o.ID
	}
	r.appendEvent(msg)
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.OrderWithItems, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(id)
}

func (r *Repository) GetByIdempotencyKey(ctx context.Context, key string) (domain.OrderWithItems, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return domain.OrderWithItems{}, domain.ErrNotFound
	}
	return r.get(id)
}

func (r *Repository) get(id string) (domain.OrderWithItems, error) {
	o, ok := r.orders[id]
	if !ok {
		return domain.OrderWithItems{}, domain.ErrNotFound
	}
	return domain.OrderWithItems{Order: o, Items: slices.Clone(r.items[id])}, nil
}

func (r *Repository) UpdateStatusWithOutbox(ctx context.Context, o domain.Order, from domain.OrderStatus, msg outbox.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.orders[o.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != from {
		return domain.ErrStaleStatus
	}
	cur.Status = o.Status
	cur.UpdatedAt = o.UpdatedAt
	cur.FailureReason = o.FailureReason
	if cur.CompletedAt == nil {
		cur.CompletedAt = o.CompletedAt
	}
	r.orders[o.ID] = cur
	r.appendEvent(msg)
	return nil
}

func (r *Repository) List(ctx context.Context, f domain.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.Order{}
	for _, o := range r.orders {
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, o.Status) {
			continue
		}
		if f.MachineID != "" && o.MachineID != f.MachineID {
			continue
		}
		if !f.CreatedAfter.IsZero() && o.CreatedAt.Before(f.CreatedAfter) {
			continue
		}
		if !f.CreatedUntil.IsZero() && o.CreatedAt.After(f.CreatedUntil) {
			continue
		}
		if !f.UpdatedBefore.IsZero() && !o.UpdatedAt.Before(f.UpdatedBefore) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *Repository) Items(ctx context.Context, orderIDs []string) (map[string][]domain.LineItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]domain.LineItem, len(orderIDs))
	for _, id := range orderIDs {
		if items, ok := r.items[id]; ok {
			out[id] = slices.Clone(items)
		}
	}
	return out, nil
}

func (r *Repository) appendEvent(msg outbox.Message) {
	r.nextEvent++
	r.events = append(r.events, outbox.Event{
		ID:            r.nextEvent,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		Type:          msg.Type,
		Payload:       msg.Payload,
		Headers:       msg.Headers,
		Traceparent:   msg.Traceparent,
		CreatedAt:     time.Now().UTC(),
		Status:        outbox.StatusPending,
	})
}

// Events returns a snapshot of the outbox.
func (r *Repository) Events() []outbox.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.events)
}

func (r *Repository) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var out []outbox.Event
	for i := range r.events {
		if len(out) == batchSize {
			break
		}
		ev := &r.events[i]
		expired := ev.Status == outbox.StatusInProgress && now.After(r.leases[ev.ID])
		if ev.Status != outbox.StatusPending && !expired {
			continue
		}
		ev.Status = outbox.StatusInProgress
		ev.RelayID = relayID
		r.leases[ev.ID] = now.Add(lease)
		out = append(out, *ev)
	}
	return out, nil
}

func (r *Repository) MarkSent(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if slices.Contains(ids, r.events[i].ID) {
			r.events[i].Status = outbox.StatusSent
			delete(r.leases, r.events[i].ID)
		}
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id int64, errMsg string, maxRetries int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		ev := &r.events[i]
		if ev.ID != id {
			continue
		}
		ev.RetryCount++
		msg := errMsg
		ev.LastError = &msg
		ev.Status = outbox.StatusPending
		if ev.RetryCount >= maxRetries {
			ev.Status = outbox.StatusFailed
		}
		delete(r.leases, id)
	}
	return nil
}
