package repository

import (
	"context"

	"SignalScope/internal/domain/models"
	domrepo "SignalScope/internal/domain/repository"
	pkgkafka "SignalScope/pkg/kafka"
)

// KafkaSignalPublisher implements SignalPublisher for Kafka. Messages are
// keyed by canonical symbol so every signal for an asset lands on the same
// partition.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSignalPublisher creates Kafka publisher.
func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) domrepo.SignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) Publish(ctx context.Context, s models.Signal) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{signalMessage(s)})
}

func (p *KafkaSignalPublisher) PublishBatch(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(signals))
	for i, s := range signals {
		msgs[i] = signalMessage(s)
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func signalMessage(s models.Signal) pkgkafka.Message {
	key := s.CanonicalSymbol
	if key == "" {
		key = models.CanonicalSymbol(s.Symbol)
	}
	return pkgkafka.Message{
		Key:   []byte(key),
		Value: s,
		Headers: map[string]string{
			"strategy": s.StrategyName,
			"action":   string(s.Action),
			"exchange": s.Exchange,
		},
	}
}

// NoopSignalPublisher drops every signal. Used when Kafka is disabled.
type NoopSignalPublisher struct{}

func (NoopSignalPublisher) Publish(context.Context, models.Signal) error        { return nil }
func (NoopSignalPublisher) PublishBatch(context.Context, []models.Signal) error { return nil }
func (NoopSignalPublisher) Close() error                                        { return nil }
