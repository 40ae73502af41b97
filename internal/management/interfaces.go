package management

import (
	"context"

	"dealguard/internal/rules"
)

// Service is the rule management surface: resolved listings, custom rule
// CRUD, override writes, and the authoring metadata endpoints.
type Service interface {
	ListEffectiveRules(ctx context.Context, userID, orgID string) ([]rules.EffectiveRule, error)
	ListGlobalRules(ctx context.Context, userID, orgID string) ([]rules.EffectiveRule, error)

	ListCustomRules(ctx context.Context, userID, orgID string) ([]rules.CustomRule, error)
	CreateCustomRule(ctx context.Context, req CreateCustomRuleRequest) (*rules.CustomRule, error)
	GetCustomRule(ctx context.Context, id string) (*rules.CustomRule, error)
	UpdateCustomRule(ctx context.Context, id string, req UpdateCustomRuleRequest) (*rules.CustomRule, error)
	DeleteCustomRule(ctx context.Context, id string) error

	UpsertOverride(ctx context.Context, targetRuleID string, req UpsertOverrideRequest) (*rules.GlobalRuleOverride, error)
	DeleteOverride(ctx context.Context, targetRuleID string, scope rules.Scope, scopeID string) error

	Metadata() MetadataResponse
	Summary(ctx context.Context, userID, orgID string) (*rules.RuleCounts, error)

	GetRuleVersions(ctx context.Context, entityType, entityID string) ([]RuleVersion, error)
	GetAuditLogs(ctx context.Context, entityID *string, entityType string, limit int) ([]AuditLog, error)
}
