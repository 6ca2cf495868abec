//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	catalogdomain "github.com/akash768145s/Smartshake/internal/catalog/domain"
	catalogpg "github.com/akash768145s/Smartshake/internal/catalog/infrastructure/postgres"
	"github.com/akash768145s/Smartshake/internal/order/domain"
	orderpg "github.com/akash768145s/Smartshake/internal/order/infrastructure/postgres"
	"github.com/akash768145s/Smartshake/pkg/outbox"
)

func newOrder(machine, key, payment string, at time.Time) (domain.Order, []domain.LineItem) {
	id := uuid.NewString()
	o := domain.Order{
		ID: id, Base: domain.BaseMilk, QuantityMl: 200, TotalPrice: 312, Status: domain.StatusPending,
		MachineID: machine, IdempotencyKey: key, PaymentID: payment, CreatedAt: at, UpdatedAt: at,
	}
	items := []domain.LineItem{
		{ID: uuid.NewString(), OrderID: id, FlavourID: "chocolate", Scoops: 2, PricePerScoop: 99, CreatedAt: at},
		{ID: uuid.NewString(), OrderID: id, FlavourID: "vanilla", Scoops: 1, PricePerScoop: 99, CreatedAt: at},
	}
	return o, items
}

func createdMsg(id string) outbox.Message {
	return outbox.Message{AggregateType: "order", AggregateID: id, Type: domain.EventOrderCreated, Payload: []byte(`{"order_id":"` + id + `"}`)}
}

func TestCatalogDefaults(t *testing.T) {
	repo := catalogpg.NewRepository(discard(), pool)
	ctx := context.Background()

	flavours, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(flavours) < len(catalogdomain.Defaults()) {
		t.Errorf("flavours = %d, want at least %d", len(flavours), len(catalogdomain.Defaults()))
	}
	f, err := repo.Get(ctx, "chocolate")
	if err != nil || f.PricePerScoop != 99 || f.Name != "Chocolate" {
		t.Errorf("Get(chocolate) = %+v, %v", f, err)
	}
	if _, err := repo.Get(ctx, "durian"); !errors.Is(err, catalogdomain.ErrNotFound) {
		t.Errorf("Get(durian) = %v, want ErrNotFound", err)
	}
	if err := repo.Migrate(ctx); err != nil {
		t.Errorf("second Migrate() = %v", err)
	}
}

func TestOrderRepositoryRoundTrip(t *testing.T) {
	repo := orderpg.NewRepository(discard(), pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	key := uuid.NewString()

	o, items := newOrder("it-roundtrip", key, "pay_"+key, now)
	if err := repo.SaveWithOutbox(ctx, o, items, createdMsg(o.ID)); err != nil {
		t.Fatalf("SaveWithOutbox() = %v", err)
	}

	got, err := repo.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.Order.IdempotencyKey != key || got.Order.PaymentID != "pay_"+key || !got.Order.CreatedAt.Equal(now) || got.Order.CompletedAt != nil {
		t.Errorf("order = %+v", got.Order)
	}
	if len(got.Items) != 2 {
		t.Errorf("items = %+v", got.Items)
	}

	byKey, err := repo.GetByIdempotencyKey(ctx, key)
	if err != nil || byKey.Order.ID != o.ID {
		t.Errorf("GetByIdempotencyKey() = %+v, %v", byKey.Order, err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestOrderRepositoryUniqueness(t *testing.T) {
	repo := orderpg.NewRepository(discard(), pool)
	ctx := context.Background()
	now := time.Now().UTC()
	key := uuid.NewString()

	first, items := newOrder("it-unique", key, "pay_"+key, now)
	if err := repo.SaveWithOutbox(ctx, first, items, createdMsg(first.ID)); err != nil {
		t.Fatalf("SaveWithOutbox() = %v", err)
	}

	dupKey, items := newOrder("it-unique", key, "pay_other_"+key, now)
	if err := repo.SaveWithOutbox(ctx, dupKey, items, createdMsg(dupKey.ID)); !errors.Is(err, domain.ErrDuplicateKey) {
		t.Errorf("same idempotency key = %v, want ErrDuplicateKey", err)
	}
	dupPay, items := newOrder("it-unique", uuid.NewString(), "pay_"+key, now)
	if err := repo.SaveWithOutbox(ctx, dupPay, items, createdMsg(dupPay.ID)); !errors.Is(err, domain.ErrPaymentReused) {
		t.Errorf("same payment = %v, want ErrPaymentReused", err)
	}
	for _, id := range []string{dupKey.ID, dupPay.ID} {
		if _, err := repo.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("rejected order %s persisted: %v", id, err)
		}
	}
}

func TestOrderRepositoryConcurrentCreate(t *testing.T) {
	repo := orderpg.NewRepository(discard(), pool)
	ctx := context.Background()
	key := uuid.NewString()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, items := newOrder("it-race", key, "", time.Now().UTC())
			errs[i] = repo.SaveWithOutbox(ctx, o, items, createdMsg(o.ID))
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case !errors.Is(err, domain.ErrDuplicateKey):
			t.Errorf("SaveWithOutbox() = %v", err)
		}
	}
	if won != 1 {
		t.Errorf("winners = %d, want 1", won)
	}
}

func TestOrderRepositoryStatusCompareAndSwap(t *testing.T) {
	repo := orderpg.NewRepository(discard(), pool)
	ctx := context.Background()
	now := time.Now().UTC()

	o, items := newOrder("it-cas", "", "", now)
	if err := repo.SaveWithOutbox(ctx, o, items, createdMsg(o.ID)); err != nil {
		t.Fatalf("SaveWithOutbox() = %v", err)
	}

	msg := outbox.Message{AggregateType: "order", AggregateID: o.ID, Type: domain.EventOrderStatusChanged, Payload: []byte(`{}`)}
	next := o.Advance(domain.StatusPreparing, "", now.Add(time.Second))
	if err := repo.UpdateStatusWithOutbox(ctx, next, domain.StatusPending, msg); err != nil {
		t.Fatalf("UpdateStatusWithOutbox() = %v", err)
	}
	if err := repo.UpdateStatusWithOutbox(ctx, next, domain.StatusPending, msg); !errors.Is(err, domain.ErrStaleStatus) {
		t.Errorf("second swap from pending = %v, want ErrStaleStatus", err)
	}
	missing := next
	missing.ID = "missing"
	if err := repo.UpdateStatusWithOutbox(ctx, missing, domain.StatusPending, msg); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown order = %v, want ErrNotFound", err)
	}

	done := next.Advance(domain.StatusDispensing, "", now.Add(2*time.Second)).Advance(domain.StatusCompleted, "", now.Add(3*time.Second))
	if err := repo.UpdateStatusWithOutbox(ctx, done, domain.StatusPreparing, msg); err != nil {
		t.Fatalf("UpdateStatusWithOutbox(completed) = %v", err)
	}
	got, _ := repo.Get(ctx, o.ID)
	if got.Order.Status != domain.StatusCompleted || got.Order.CompletedAt == nil {
		t.Errorf("order = %+v", got.Order)
	}
}

func TestOrderRepositoryList(t *testing.T) {
	repo := orderpg.NewRepository(discard(), pool)
	ctx := context.Background()
	machine := "it-list-" + uuid.NewString()
	base := time.Now().UTC().Add(-time.Hour)

	var ids []string
	for i := 0; i < 3; i++ {
		o, items := newOrder(machine, "", "", base.Add(time.Duration(i)*time.Minute))
		if err := repo.SaveWithOutbox(ctx, o, items, createdMsg(o.ID)); err != nil {
			t.Fatalf("SaveWithOutbox() = %v", err)
		}
		ids = append(ids, o.ID)
	}

	all, err := repo.List(ctx, domain.ListFilter{MachineID: machine})
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(all) != 3 || all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Errorf("List() order = %v, want newest first", all)
	}

	recent, _ := repo.List(ctx, domain.ListFilter{MachineID: machine, CreatedAfter: base.Add(90 * time.Second)})
	if len(recent) != 1 || recent[0].ID != ids[2] {
		t.Errorf("List(CreatedAfter) = %v", recent)
	}
	window, _ := repo.List(ctx, domain.ListFilter{MachineID: machine, CreatedAfter: base.Add(30 * time.Second), CreatedUntil: base.Add(time.Minute)})
	if len(window) != 1 || window[0].ID != ids[1] {
		t.Errorf("List(CreatedUntil) = %v", window)
	}
	stale, _ := repo.List(ctx, domain.ListFilter{
		MachineID:     machine,
		Statuses:      []domain.OrderStatus{domain.StatusPending},
		UpdatedBefore: base.Add(30 * time.Second),
		Limit:         10,
	})
	if len(stale) != 1 || stale[0].ID != ids[0] {
		t.Errorf("List(UpdatedBefore) = %v", stale)
	}

	items, err := repo.Items(ctx, ids[:2])
	if err != nil || len(items) != 2 || len(items[ids[0]]) != 2 {
		t.Errorf("Items() = %v, %v", items, err)
	}
}
