package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/akash768145s/Smartshake/internal/order/domain"
)

type fakeDeduper struct {
	seen      map[string]bool
	forgotten []string
}

func (d *fakeDeduper) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("%s:%d:%d", topic, partition, offset)
}

func (d *fakeDeduper) Seen(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	was := d.seen[key]
	d.seen[key] = true
	return was, nil
}

func (d *fakeDeduper) Forget(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(d.seen, key)
	d.forgotten = append(d.forgotten, key)
	return nil
}

type advanceCall struct {
	id     string
	next   domain.OrderStatus
	reason string
	tp     string
}

type fakeAdvancer struct {
	calls []advanceCall
	errs  []error
}

func (a *fakeAdvancer) Advance(ctx context.Context, id string, next domain.OrderStatus, reason, traceparent string) (domain.Order, error) {
	a.calls = append(a.calls, advanceCall{id, next, reason, traceparent})
	if len(a.errs) > 0 {
		err := a.errs[0]
		a.errs = a.errs[1:]
		return domain.Order{}, err
	}
	return domain.Order{ID: id, Status: next}, nil
}

func newTestConsumer(adv *fakeAdvancer) (*Consumer, *fakeDeduper) {
	idem := &fakeDeduper{seen: map[string]bool{}}
	c := NewConsumer(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, adv, idem)
	c.backoff = 0
	return c, idem
}

func report(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "dispense.events", Partition: 0, Offset: offset, Value: []byte(value)}
}

func TestHandleAppliesReport(t *testing.T) {
	adv := &fakeAdvancer{}
	c, _ := newTestConsumer(adv)
	msg := report(1, `{"order_id":"o1","status":"failed","reason":"cup jam","machine_id":"m-1"}`)
	tp := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	msg.Headers = []kafka.Header{{Key: "traceparent", Value: []byte(tp)}}

	c.Handle(context.Background(), msg)
	c.Handle(context.Background(), msg)

	if len(adv.calls) != 1 {
		t.Fatalf("Advance calls = %d, want 1 (redelivery must be skipped)", len(adv.calls))
	}
	want := advanceCall{"o1", domain.StatusFailed, "cup jam", tp}
	if adv.calls[0] != want {
		t.Errorf("Advance(%+v), want %+v", adv.calls[0], want)
	}
}

func TestHandleDropsUnusableReports(t *testing.T) {
	tests := []struct {
		name  string
		value string
		errs  []error
		calls int
	}{
		{"malformed", `{"order_id":`, nil, 0},
		{"missing order", `{"status":"preparing"}`, nil, 0},
		{"unknown status", `{"order_id":"o1","status":"shaken"}`, nil, 0},
		{"unknown order", `{"order_id":"o1","status":"preparing"}`, []error{domain.ErrNotFound}, 1},
		{"backwards", `{"order_id":"o1","status":"pending"}`, []error{fmt.Errorf("%w: preparing -> pending", domain.ErrInvalidTransition)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := &fakeAdvancer{errs: tt.errs}
			c, idem := newTestConsumer(adv)
			c.Handle(context.Background(), report(7, tt.value))
			if len(adv.calls) != tt.calls {
				t.Errorf("Advance calls = %d, want %d", len(adv.calls), tt.calls)
			}
			if len(idem.forgotten) != 0 {
				t.Errorf("unusable report forgotten: %v", idem.forgotten)
			}
		})
	}
}

func TestHandleRetriesStoreFailures(t *testing.T) {
	storeDown := &domain.StoreError{Op: "update status", Err: errors.New("connection refused")}

	adv := &fakeAdvancer{errs: []error{storeDown}}
	c, idem := newTestConsumer(adv)
	c.Handle(context.Background(), report(3, `{"order_id":"o1","status":"preparing"}`))
	if len(adv.calls) != 2 || len(idem.forgotten) != 0 {
		t.Errorf("calls = %d forgotten = %v, want success on second attempt", len(adv.calls), idem.forgotten)
	}

	adv = &fakeAdvancer{errs: []error{storeDown, storeDown, storeDown}}
	c, idem = newTestConsumer(adv)
	c.Handle(context.Background(), report(4, `{"order_id":"o1","status":"preparing"}`))
	if len(adv.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(adv.calls))
	}
	if len(idem.forgotten) != 1 {
		t.Errorf("forgotten = %v, want the dropped delivery forgotten", idem.forgotten)
	}
}

// cancellingAdvancer simulates shutdown arriving while a report is applied.
type cancellingAdvancer struct {
	cancel context.CancelFunc
	calls  int
}

func (a *cancellingAdvancer) Advance(ctx context.Context, id string, next domain.OrderStatus, reason, traceparent string) (domain.Order, error) {
	a.calls++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		return domain.Order{}, &domain.StoreError{Op: "update status", Err: ctx.Err()}
	}
	return domain.Order{ID: id, Status: next}, nil
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestHandleInterruptedByShutdownIsRedelivered(t *testing.T) {
	msg := report(9, `{"order_id":"o1","status":"dispensing"}`)

	t.Run("cancelled before handling", func(t *testing.T) {
		adv := &fakeAdvancer{}
		c, idem := newTestConsumer(adv)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := c.Handle(ctx, msg); err == nil {
			t.Error("Handle() = nil, want interruption error")
		}
		if err := c.Handle(context.Background(), msg); err != nil {
			t.Fatalf("redelivered Handle() = %v", err)
		}
		if len(adv.calls) != 1 || len(idem.seen) != 1 {
			t.Errorf("calls = %d seen = %v, want the redelivery applied once", len(adv.calls), idem.seen)
		}
	})

	t.Run("cancelled while advancing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		adv := &cancellingAdvancer{cancel: cancel}
		idem := &fakeDeduper{seen: map[string]bool{}}
		c := NewConsumer(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, adv, idem)
		c.backoff = 0

		if err := c.Handle(ctx, msg); err == nil {
			t.Error("Handle() = nil, want interruption error")
		}
		if len(idem.forgotten) != 1 {
			t.Fatalf("forgotten = %v, want the marker removed despite the cancelled context", idem.forgotten)
		}
		if err := c.Handle(context.Background(), msg); err != nil {
			t.Fatalf("redelivered Handle() = %v", err)
		}
		if adv.calls != 2 {
			t.Errorf("Advance calls = %d, want the redelivery applied", adv.calls)
		}
	})
}

func TestRunLeavesInterruptedReportUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{msgs: []kafka.Message{report(11, `{"order_id":"o1","status":"preparing"}`)}}
	idem := &fakeDeduper{seen: map[string]bool{}}
	c := NewConsumer(slog.New(slog.NewTextHandler(io.Discard, nil)), reader, &cancellingAdvancer{cancel: cancel}, idem)
	c.backoff = 0

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(reader.committed) != 0 {
		t.Errorf("committed = %v, want nothing", reader.committed)
	}
	if len(idem.seen) != 0 {
		t.Errorf("markers = %v, want none left behind", idem.seen)
	}
}
