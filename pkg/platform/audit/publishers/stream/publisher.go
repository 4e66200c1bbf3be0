// Package stream mirrors audit events onto a Kafka topic for downstream
// consumers (SIEM, analytics). The store write stays the source of truth:
// Emit fails only when the inner publisher fails, while broker errors are
// logged and do not block the business operation.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "ronflow/pkg/platform/audit"
)

// Publisher wraps an inner audit publisher and tees events to Kafka.
type Publisher struct {
	inner  audit.Publisher
	client *kgo.Client
	logger *slog.Logger
}

// New connects a Kafka producer and wraps inner. The topic receives one JSON
// record per event, keyed by user ID for per-user ordering.
func New(inner audit.Publisher, brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("connect audit stream: %w", err)
	}
	return &Publisher{inner: inner, client: client, logger: logger}, nil
}

// record is the wire shape published to the stream.
type record struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Timestamp  string            `json:"timestamp"`
	Action     string            `json:"action"`
	UserID     string            `json:"user_id,omitempty"`
	DocumentID string            `json:"document_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	ClientIP   string            `json:"client_ip,omitempty"`
}

// Emit persists through the inner publisher, then produces to Kafka
// asynchronously. A broker failure is logged, never returned.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if err := p.inner.Emit(ctx, event); err != nil {
		return err
	}

	rec := record{
		ID:        uuid.NewString(),
		Category:  string(event.Category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Action:    event.Action,
		Detail:    event.Detail,
		RequestID: event.RequestID,
		ClientIP:  event.ClientIP,
	}
	if !event.UserID.IsZero() {
		rec.UserID = event.UserID.String()
	}
	if !event.DocumentID.IsZero() {
		rec.DocumentID = event.DocumentID.String()
	}
	if !event.SessionID.IsZero() {
		rec.SessionID = event.SessionID.String()
	}

	value, err := json.Marshal(rec)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal audit stream record", "error", err)
		return nil
	}

	p.client.Produce(context.WithoutCancel(ctx), &kgo.Record{
		Key:   []byte(rec.UserID),
		Value: value,
	}, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit stream produce failed",
				"action", rec.Action,
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes in-flight records and releases the producer.
func (p *Publisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush audit stream: %w", err)
	}
	p.client.Close()
	return nil
}
