// Package events publishes checkout events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const eventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload for eventType; key becomes the correlation id.
func NewEnvelope(producer, eventType, key string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: key,
		Payload:       raw,
	}, nil
}

func (e Envelope) message(key string) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal envelope: %w", err)
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(e.EventType)},
			{Key: "x-event-version", Value: []byte(fmt.Sprint(e.EventVersion))},
		},
	}, nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes envelopes keyed by order id, so events for one order keep
// their order within a partition.
type Publisher struct {
	producer string
	w        messageWriter
	log      logrus.FieldLogger
}

func NewPublisher(brokers []string, topic, producer string, log logrus.FieldLogger) *Publisher {
	return &Publisher{
		producer: producer,
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		log: log,
	}
}

func (p *Publisher) Publish(ctx context.Context, eventType, key string, payload any) error {
	env, err := NewEnvelope(p.producer, eventType, key, payload)
	if err != nil {
		return err
	}

	msg, err := env.message(key)
	if err != nil {
		return err
	}

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	p.log.WithFields(logrus.Fields{
		"event_id":   env.EventID,
		"event_type": eventType,
		"key":        key,
	}).Debug("event published")
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}
