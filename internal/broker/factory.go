package broker

import (
	"context"

	"dealguard/internal/config"
	"dealguard/internal/logger"
	"dealguard/pkg/models"
)

// NewProducer returns a kafka producer, or a no-op one when the broker is
// disabled so callers never branch on nil.
func NewProducer(cfg config.BrokerConfig, log logger.Logger) Producer {
	if !cfg.Enabled {
		return NopProducer{}
	}
	return NewKafkaProducer(cfg.Kafka, log)
}

type NopProducer struct{}

func (NopProducer) Publish(ctx context.Context, topic string, event models.RuleChangeEvent) error {
	return nil
}

func (NopProducer) Close() error { return nil }
