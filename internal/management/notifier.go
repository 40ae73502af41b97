package management

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dealguard/internal/broker"
	"dealguard/internal/rules"
	"dealguard/pkg/models"
)

// RuleEventProducer publishes a RuleChangeEvent on every override or custom
// rule write. Publication is best-effort; the write has already committed.
type RuleEventProducer struct {
	producer broker.Producer
	topic    string
}

func NewRuleEventProducer(producer broker.Producer, topic string) *RuleEventProducer {
	return &RuleEventProducer{
		producer: producer,
		topic:    topic,
	}
}

func (p *RuleEventProducer) PublishOverrideEvent(ctx context.Context, eventType string, override *rules.GlobalRuleOverride, changedBy string) error {
	event := models.RuleChangeEvent{
		ID:         uuid.New().String(),
		EventType:  eventType,
		EntityType: models.EntityTypeOverride,
		EntityID:   override.ID,
		RuleID:     override.TargetRuleID,
		Scope:      string(override.Scope),
		ScopeID:    override.ScopeID,
		ChangedBy:  changedBy,
		Timestamp:  time.Now(),
	}
	return p.publish(ctx, event)
}

func (p *RuleEventProducer) PublishCustomRuleEvent(ctx context.Context, eventType string, rule *rules.CustomRule, changedBy string) error {
	event := models.RuleChangeEvent{
		ID:         uuid.New().String(),
		EventType:  eventType,
		EntityType: models.EntityTypeCustomRule,
		EntityID:   rule.ID,
		RuleID:     rule.RuleID,
		Scope:      string(rule.Scope),
		ScopeID:    rule.ScopeID,
		ChangedBy:  changedBy,
		Timestamp:  time.Now(),
	}
	return p.publish(ctx, event)
}

func (p *RuleEventProducer) publish(ctx context.Context, event models.RuleChangeEvent) error {
	if p.producer == nil || p.topic == "" {
		return nil
	}
	return p.producer.Publish(ctx, p.topic, event)
}
