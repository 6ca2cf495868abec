package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeStore struct {
	mu      sync.Mutex
	pending []Event
	sent    []int64
	failed  map[int64]string
}

func (s *fakeStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(batchSize, len(s.pending))
	out := s.pending[:n]
	s.pending = s.pending[n:]
	return out, nil
}

func (s *fakeStore) MarkSent(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id int64, errMsg string, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = errMsg
	return nil
}

type fakeProducer struct {
	msgs    []kafka.Message
	failKey string
}

func (p *fakeProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		if string(m.Key) == p.failKey {
			return errors.New("broker down")
		}
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func TestRelayFlush(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &fakeStore{pending: []Event{
		{ID: 1, AggregateID: "order-1", Type: "OrderCreated", Payload: []byte(`{}`), Traceparent: "00-abc-def-01"},
		{ID: 2, AggregateID: "order-2", Type: "OrderCreated", Payload: []byte(`{}`)},
		{ID: 3, AggregateID: "order-3", Type: "OrderStatusChanged", Payload: []byte(`{}`), Headers: map[string]string{"source": "test"}},
	}}
	prod := &fakeProducer{failKey: "order-2"}
	relay := NewRelay(log, store, NewDispatcher(log, prod, "order.events"), "test-relay")

	n, err := relay.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Flush() sent = %d, want 2", n)
	}
	if len(store.sent) != 2 || store.sent[0] != 1 || store.sent[1] != 3 {
		t.Errorf("sent ids = %v, want [1 3]", store.sent)
	}
	if _, ok := store.failed[2]; !ok {
		t.Errorf("event 2 not marked failed")
	}

	first := prod.msgs[0]
	if first.Topic != "order.events" || string(first.Key) != "order-1" {
		t.Errorf("unexpected message routing: topic=%q key=%q", first.Topic, first.Key)
	}
	hdr := map[string]string{}
	for _, h := range first.Headers {
		hdr[h.Key] = string(h.Value)
	}
	if hdr["event_type"] != "OrderCreated" || hdr["traceparent"] != "00-abc-def-01" {
		t.Errorf("headers = %v", hdr)
	}

	n, err = relay.Flush(context.Background())
	if err != nil || n != 0 {
		t.Errorf("second Flush() = %d, %v; want 0, nil", n, err)
	}
}
