package broker

import (
	"context"

	"dealguard/pkg/models"
)

// Producer publishes rule change events. This service only ever writes;
// consumers live downstream.
type Producer interface {
	Publish(ctx context.Context, topic string, event models.RuleChangeEvent) error
	Close() error
}
