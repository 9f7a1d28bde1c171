package repository

import (
	"context"
	"fmt"

	"TradeCore/internal/domain/models"
	domrepo "TradeCore/internal/domain/repository"
	"TradeCore/pkg/kafka"
	applogger "TradeCore/pkg/logger"
)

// publisher is satisfied by *kafka.Producer.
type publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}, headers ...kafka.Header) error
	Close() error
}

// KafkaDecisionPublisher emits decision events keyed by ticker so one symbol's
// decisions stay ordered within a partition.
type KafkaDecisionPublisher struct {
	p     publisher
	topic string
	l     *applogger.Logger
}

func NewKafkaDecisionPublisher(p publisher, topic string, l *applogger.Logger) *KafkaDecisionPublisher {
	return &KafkaDecisionPublisher{p: p, topic: topic, l: l}
}

func (k *KafkaDecisionPublisher) Record(ctx context.Context, ev *models.DecisionEvent) error {
	err := k.p.Publish(ctx, k.topic, []byte(ev.Ticker), ev,
		kafka.Header{Key: "X-Correlation-ID", Value: ev.CorrelationID},
		kafka.Header{Key: "event-type", Value: "decision"},
	)
	if err != nil {
		k.l.Warn("decision publish failed",
			applogger.String("topic", k.topic),
			applogger.CorrelationID(ev.CorrelationID),
			applogger.Error(err),
		)
		return fmt.Errorf("publish decision: %w", err)
	}
	return nil
}

func (k *KafkaDecisionPublisher) Close() error { return k.p.Close() }

var _ domrepo.DecisionRecorder = (*KafkaDecisionPublisher)(nil)
