package repository

import (
	"context"
	"fmt"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/domain/repository"
	pkgkafka "BarFeed/pkg/kafka"
)

// batchProducer is the part of pkg/kafka.Producer the publisher needs.
type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher implements Publisher for Kafka. Bars and runs are keyed by symbol so
// a consumer sees them in order per instrument.
type KafkaPublisher struct {
	producer  batchProducer
	barsTopic string
	runsTopic string
}

var _ repository.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer batchProducer, barsTopic, runsTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, barsTopic: barsTopic, runsTopic: runsTopic}
}

type barMessage struct {
	Symbol string `json:"symbol"`
	models.Bar
}

func (p *KafkaPublisher) PublishBars(ctx context.Context, symbol string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(bars))
	for i, b := range bars {
		msgs[i] = pkgkafka.Message{
			Key:     []byte(symbol),
			Value:   barMessage{Symbol: symbol, Bar: b},
			Headers: map[string]string{"source": string(b.Provenance)},
		}
	}
	if err := p.producer.PublishBatch(ctx, p.barsTopic, msgs); err != nil {
		return fmt.Errorf("publish %d bars: %w", len(bars), err)
	}
	return nil
}

func (p *KafkaPublisher) PublishRun(ctx context.Context, run *models.RunAudit) error {
	msg := pkgkafka.Message{Key: []byte(run.Symbol), Value: run}
	if err := p.producer.PublishBatch(ctx, p.runsTopic, []pkgkafka.Message{msg}); err != nil {
		return fmt.Errorf("publish run %s: %w", run.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
