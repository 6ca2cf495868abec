package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/akash768145s/Smartshake/internal/order/domain"
)

const ReasonTimedOut = "timed out"

// Expirer fails orders that have sat in a non-terminal status for longer
// than staleAfter, so a machine that never reports back does not leave an
// order open forever.
type Expirer struct {
	log        *slog.Logger
	svc        *Service
	staleAfter time.Duration
	interval   time.Duration
	batchSize  int
}

func NewExpirer(log *slog.Logger, svc *Service, staleAfter, interval time.Duration) *Expirer {
	return &Expirer{
		log:        log,
		svc:        svc,
		staleAfter: staleAfter,
		interval:   interval,
		batchSize:  100,
	}
}

func (e *Expirer) Run(ctx context.Context) error {
	t := time.NewTicker(e.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("expirer stopping")
			return nil
		case <-t.C:
			if _, err := e.Sweep(ctx); err != nil {
				e.log.Error("expirer sweep failed", "err", err)
			}
		}
	}
}

// Sweep fails one batch of stale orders and returns how many it failed.
func (e *Expirer) Sweep(ctx context.Context) (int, error) {
	cutoff := e.svc.now().UTC().Add(-e.staleAfter)
	stale, err := e.svc.ListOrders(ctx, domain.ListFilter{
		Statuses:      []domain.OrderStatus{domain.StatusPending, domain.StatusPreparing, domain.StatusDispensing},
		UpdatedBefore: cutoff,
		Limit:         e.batchSize,
	})
	if err != nil {
		return 0, err
	}

	stillStale := func(o domain.Order) bool {
		return !o.Status.Terminal() && o.UpdatedAt.Before(cutoff)
	}

	n := 0
	for _, o := range stale {
		_, err := e.svc.advance(ctx, o.ID, domain.StatusFailed, ReasonTimedOut, "", stillStale)
		switch {
		case errors.Is(err, domain.ErrStaleStatus), errors.Is(err, domain.ErrInvalidTransition):
			continue
		case err != nil:
			e.log.Error("expire order failed", "order_id", o.ID, "err", err)
			continue
		}
		n++
		e.log.Warn("order expired", "order_id", o.ID, "status", o.Status, "machine_id", o.MachineID, "updated_at", o.UpdatedAt)
	}
	return n, nil
}
