// Package events publishes funnel lifecycle events to Kafka so downstream
// consumers (reporting, CRM sync) can follow the funnel without polling the
// database. Emission is best-effort and never fails the request that caused it.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/internal/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	EventLeadCreated      = "lead.created"
	EventLeadVerified     = "lead.verified"
	EventRotationAdvanced = "rotation.advanced"
)

// FunnelEvent is the envelope written to the events topic
type FunnelEvent struct {
	EventType     string     `json:"event_type"`
	SchemaVersion string     `json:"schema_version"`
	LeadID        uuid.UUID  `json:"lead_id,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	LinkID        uuid.UUID  `json:"link_id,omitempty"`
	NewActiveID   *uuid.UUID `json:"new_active_id,omitempty"`
	VerifiedCount int        `json:"verified_count,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// Config holds Kafka configuration
type Config struct {
	Brokers []string
	Topic   string
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, topic string) Config {
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	return Config{
		Brokers: brokerList,
		Topic:   topic,
	}
}

// Producer handles producing funnel events to Kafka. A nil Producer is a valid
// no-op emitter, used when Kafka is not configured.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when it doesn't exist yet.
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}

// Emit publishes one funnel event, keyed by lead id so per-lead ordering holds
func (p *Producer) Emit(ctx context.Context, event FunnelEvent) error {
	if p == nil {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "events.Producer.Emit")
	defer span.End()

	event.SchemaVersion = SchemaVersion
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("failed to marshal %s event", event.EventType)
		return err
	}

	key := event.LeadID.String()
	if event.LeadID == uuid.Nil {
		key = event.LinkID.String()
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("failed to emit %s event", event.EventType)
		return err
	}

	return nil
}
