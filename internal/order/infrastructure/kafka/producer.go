package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a writer for outbox events. Messages are hashed by key so
// every event of one order lands on the same partition.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}
