// Package event publishes accepted votes to an external feed so other
// consumers (analytics, notification bots) can follow the ledger without
// querying the database.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"solana-vote-tracker/internal/domain"
)

// Publisher emits a ledgered vote to the downstream feed.
type Publisher interface {
	PublishVote(ctx context.Context, record *domain.VoteRecord) error
	Close() error
}

// KafkaPublisher writes accepted votes to a Kafka topic. Messages are
// keyed by submission ID so per-submission ordering survives partitioning.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  5,
		Compression:  kafka.Snappy,
	}

	return &KafkaPublisher{writer: w}
}

// PublishVote writes the vote record as JSON, keyed by submission ID.
// Unresolved votes are keyed by sender so they still land somewhere stable.
func (kp *KafkaPublisher) PublishVote(ctx context.Context, record *domain.VoteRecord) error {
	key := record.SubmissionID
	if key == "" {
		key = record.Sender
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal vote record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
	}

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write vote to kafka: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (kp *KafkaPublisher) Close() error {
	if err := kp.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
