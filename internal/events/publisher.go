// Package events publishes auth audit events to Kafka. Publishing is best
// effort: a broker outage never fails the request that produced the event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"identity-service/internal/config"
	"identity-service/internal/models"
	"identity-service/internal/util"

	"github.com/segmentio/kafka-go"
)

// Publisher emits auth events for downstream audit consumers.
type Publisher interface {
	Publish(ctx context.Context, event models.AuthEvent)
	Close() error
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.AuthEvent) {}
func (NoopPublisher) Close() error                              { return nil }

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewPublisher returns a Kafka-backed publisher, or a noop one when the
// config names no brokers.
func NewPublisher(cfg *config.Config) Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		util.Info("Kafka brokers not configured, auth events disabled")
		return NoopPublisher{}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				util.Error("Failed to write auth events",
					util.ErrorField(err),
					util.Int("message_count", len(messages)))
			}
		},
	}

	util.Info("Kafka auth event publisher initialized",
		util.String("topic", cfg.Kafka.Topic))

	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.AuthEvent) {
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		util.Error("Failed to marshal auth event", util.ErrorField(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.EventType),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		util.Error("Failed to publish auth event",
			util.String("event_type", event.EventType),
			util.ErrorField(err))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
