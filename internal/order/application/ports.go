package application

import (
	"context"

	catalogdomain "github.com/akash768145s/Smartshake/internal/catalog/domain"
	"github.com/akash768145s/Smartshake/internal/order/domain"
	paymentdomain "github.com/akash768145s/Smartshake/internal/payment/domain"
	"github.com/akash768145s/Smartshake/pkg/outbox"
)

type OrderRepository interface {
	// SaveWithOutbox persists the order, its items and msg in one transaction.
	// It returns domain.ErrDuplicateKey when the idempotency key is taken and
	// domain.ErrPaymentReused when the payment already backs another order.
	SaveWithOutbox(ctx context.Context, o domain.Order, items []domain.LineItem, msg outbox.Message) error
	Get(ctx context.Context, id string) (domain.OrderWithItems, error)
	GetByIdempotencyKey(ctx context.Context, key string) (domain.OrderWithItems, error)
	// UpdateStatusWithOutbox stores o only if the persisted status still equals
	// from, otherwise it returns domain.ErrStaleStatus.
	UpdateStatusWithOutbox(ctx context.Context, o domain.Order, from domain.OrderStatus, msg outbox.Message) error
	List(ctx context.Context, f domain.ListFilter) ([]domain.Order, error)
	Items(ctx context.Context, orderIDs []string) (map[string][]domain.LineItem, error)
}

type Catalog interface {
	Lookup(ctx context.Context, ref string) catalogdomain.Resolution
}

type PaymentVerifier interface {
	Verify(ctx context.Context, v paymentdomain.Verification) error
}
