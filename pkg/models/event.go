package models

import "time"

// Rule change event types. Downstream consumers use these to invalidate any
// effective-rule caches they keep; the service itself always re-resolves.
const (
	EventTypeOverrideUpserted  = "rule.override.upserted"
	EventTypeOverrideDeleted   = "rule.override.deleted"
	EventTypeCustomRuleCreated = "rule.custom.created"
	EventTypeCustomRuleUpdated = "rule.custom.updated"
	EventTypeCustomRuleDeleted = "rule.custom.deleted"
)

const (
	EntityTypeOverride   = "override"
	EntityTypeCustomRule = "custom_rule"
)

// RuleChangeEvent announces one write against the override or custom-rule
// stores.
type RuleChangeEvent struct {
	ID         string                 `json:"id"`
	EventType  string                 `json:"event_type"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	RuleID     string                 `json:"rule_id"`
	Scope      string                 `json:"scope,omitempty"`
	ScopeID    string                 `json:"scope_id,omitempty"`
	ChangedBy  string                 `json:"changed_by,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
