// Package analytics publishes request lifecycle events to Kafka for the
// downstream statistics pipeline. Publishing is best-effort: a broker
// failure is logged and never fails the triggering engine action.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/lucasmnrd/requestline/config"
	"github.com/lucasmnrd/requestline/pkg/logger"
)

type Producer interface {
	PublishRequestSubmitted(ctx context.Context, event RequestSubmittedEvent) error
	PublishRequestDecided(ctx context.Context, event RequestDecidedEvent) error
	PublishRequestPlayed(ctx context.Context, event RequestPlayedEvent) error
	Close() error
}

type kafkaProducer struct {
	producer sarama.SyncProducer
	l        logger.Logger
}

func NewProducer(cfg config.KafkaConfig, l logger.Logger) (Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.RequiredAcks(cfg.ProducerRequiredAcks)
	saramaCfg.Producer.Retry.Max = cfg.ProducerRetryMax
	saramaCfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	l.Infof(context.Background(), "kafka producer connected to brokers: %v", cfg.Brokers)

	return &kafkaProducer{producer: producer, l: l}, nil
}

func (p *kafkaProducer) PublishRequestSubmitted(ctx context.Context, event RequestSubmittedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicRequestSubmitted, event.EventID, event)
}

func (p *kafkaProducer) PublishRequestDecided(ctx context.Context, event RequestDecidedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicRequestDecided, event.EventID, event)
}

func (p *kafkaProducer) PublishRequestPlayed(ctx context.Context, event RequestPlayedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(ctx, TopicRequestPlayed, event.EventID, event)
}

func (p *kafkaProducer) publish(ctx context.Context, topic, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Keyed by event id so one event's lifecycle stays ordered per
	// partition.
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.l.Errorf(ctx, "kafkaProducer.publish: %v", err)
		return fmt.Errorf("failed to send kafka message: %w", err)
	}

	p.l.Debugf(ctx, "kafka message sent: topic=%s partition=%d offset=%d", topic, partition, offset)

	return nil
}

func (p *kafkaProducer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

// NopProducer is used when the analytics feed is disabled by config.
type NopProducer struct{}

func (NopProducer) PublishRequestSubmitted(context.Context, RequestSubmittedEvent) error { return nil }
func (NopProducer) PublishRequestDecided(context.Context, RequestDecidedEvent) error     { return nil }
func (NopProducer) PublishRequestPlayed(context.Context, RequestPlayedEvent) error       { return nil }
func (NopProducer) Close() error                                                         { return nil }
