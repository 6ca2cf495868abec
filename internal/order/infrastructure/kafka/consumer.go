package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/akash768145s/Smartshake/internal/order/domain"
	"github.com/akash768145s/Smartshake/pkg/tracing"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type OrderAdvancer interface {
	Advance(ctx context.Context, id string, next domain.OrderStatus, reason, traceparent string) (domain.Order, error)
}

// Consumer applies machine dispense reports to orders. Deliveries are
// deduplicated by topic/partition/offset in Redis.
type Consumer struct {
	log      *slog.Logger
	reader   MessageReader
	orders   OrderAdvancer
	idem     Deduper
	tracer   trace.Tracer
	attempts int
	backoff  time.Duration
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

func NewConsumer(log *slog.Logger, reader MessageReader, orders OrderAdvancer, idem Deduper) *Consumer {
	return &Consumer{
		log:      log,
		reader:   reader,
		orders:   orders,
		idem:     idem,
		tracer:   otel.Tracer("dispense-consumer"),
		attempts: 3,
		backoff:  500 * time.Millisecond,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.Handle(ctx, msg); err != nil {
			// Left uncommitted so the report is redelivered after restart.
			c.log.Warn("dispense report interrupted", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
	}
}

// Handle processes one delivery. Reports that can never apply (bad payload,
// unknown order, backwards transition) are logged and dropped. Store
// failures are retried a few times before the report is given up.
//
// A non-nil error means ctx ended before the report was settled. The
// delivery marker has been removed again and the message must not be
// committed.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Error("idempotency check failed", "key", key, "err", err)
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeDispenseReport")
	defer span.End()

	var rep domain.DispenseReport
	if err := json.Unmarshal(msg.Value, &rep); err != nil || rep.OrderID == "" {
		c.log.Error("malformed dispense report", "key", key, "err", err)
		return nil
	}
	next, ok := domain.ParseStatus(rep.Status)
	if !ok {
		c.log.Error("dispense report with unknown status", "order_id", rep.OrderID, "status", rep.Status)
		return nil
	}
	traceparent := tracing.HeaderValue(msg.Headers, tracing.TraceparentHeader)

	for attempt := 1; ; attempt++ {
		_, err = c.orders.Advance(msgCtx, rep.OrderID, next, rep.Reason, traceparent)
		if err == nil {
			c.log.Info("dispense report applied", "order_id", rep.OrderID, "status", next, "machine_id", rep.MachineID)
			return nil
		}
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrInvalidStatus) {
			c.log.Warn("dispense report rejected", "order_id", rep.OrderID, "status", next, "err", err)
			return nil
		}
		if attempt == c.attempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(c.backoff):
		}
	}

	span.SetStatus(codes.Error, err.Error())
	// ctx may already be cancelled by shutdown; the marker must go regardless.
	if ferr := c.idem.Forget(context.WithoutCancel(ctx), key); ferr != nil {
		c.log.Error("idempotency forget failed", "key", key, "err", ferr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.log.Error("dispense report dropped", "order_id", rep.OrderID, "status", next, "err", err)
	return nil
}
