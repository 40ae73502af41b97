package management

import (
	"dealguard/internal/rules"
)

// CreateCustomRuleRequest is the POST body for a tenant-authored rule.
type CreateCustomRuleRequest struct {
	RuleID           string                 `json:"rule_id" binding:"required"`
	Name             string                 `json:"name" binding:"required"`
	Category         rules.Category         `json:"category" binding:"required"`
	Severity         rules.Severity         `json:"severity" binding:"required"`
	Description      string                 `json:"description"`
	Condition        *rules.Condition       `json:"condition" binding:"required"`
	Message          string                 `json:"message" binding:"required"`
	Remediation      string                 `json:"remediation"`
	RemediationOwner rules.RemediationOwner `json:"remediation_owner"`
	Automatable      bool                   `json:"automatable"`
	ApplicableStages []string               `json:"applicable_stages"`
	Scope            rules.Scope            `json:"scope" binding:"required"`
	ScopeID          string                 `json:"scope_id" binding:"required"`
	Priority         *int                   `json:"priority"`
	Enabled          *bool                  `json:"enabled"`
}

// UpdateCustomRuleRequest patches an existing custom rule. Only set fields
// change; identity fields (rule_id, scope, scope_id) are immutable.
type UpdateCustomRuleRequest struct {
	Name             *string                 `json:"name"`
	Category         *rules.Category         `json:"category"`
	Severity         *rules.Severity         `json:"severity"`
	Description      *string                 `json:"description"`
	Condition        *rules.Condition        `json:"condition"`
	Message          *string                 `json:"message"`
	Remediation      *string                 `json:"remediation"`
	RemediationOwner *rules.RemediationOwner `json:"remediation_owner"`
	Automatable      *bool                   `json:"automatable"`
	ApplicableStages *[]string               `json:"applicable_stages"`
	Priority         *int                    `json:"priority"`
	Enabled          *bool                   `json:"enabled"`
}

// UpsertOverrideRequest is the PUT body for a global rule override. Enabled is
// a pointer so an explicit false survives binding.
type UpsertOverrideRequest struct {
	Scope              rules.Scope            `json:"scope" binding:"required"`
	ScopeID            string                 `json:"scope_id" binding:"required"`
	Enabled            *bool                  `json:"enabled" binding:"required"`
	ThresholdOverrides map[string]interface{} `json:"threshold_overrides"`
}

// RulesListResponse wraps a resolved rule listing.
type RulesListResponse struct {
	Rules []rules.EffectiveRule `json:"rules"`
	Total int                   `json:"total"`
}

// CustomRulesListResponse wraps the custom rules visible to a tenant.
type CustomRulesListResponse struct {
	Rules []rules.CustomRule `json:"rules"`
	Total int                `json:"total"`
}

// MetadataResponse describes the rule-authoring vocabulary: every operator
// with its metadata, plus the closed enums the condition builder offers.
type MetadataResponse struct {
	Operators         []rules.OperatorSpec     `json:"operators"`
	Fields            []string                 `json:"fields"`
	Stages            []string                 `json:"stages"`
	Categories        []rules.Category         `json:"categories"`
	Severities        []rules.Severity         `json:"severities"`
	RemediationOwners []rules.RemediationOwner `json:"remediation_owners"`
	Scopes            []rules.Scope            `json:"scopes"`
}

// FieldVocabulary lists the canonical record fields ingestion normalizes to.
func FieldVocabulary() []string {
	return []string{
		"deal_name",
		"account_name",
		"amount",
		"close_date",
		"stage",
		"probability",
		"owner_name",
		"contact_name",
		"contact_email",
		"contact_phone",
		"last_activity_date",
		"created_date",
		"next_steps",
		"forecast_category",
		"type",
	}
}

// StageVocabulary lists the pipeline stages stage gating understands, plus
// the all_except_closed keyword.
func StageVocabulary() []string {
	return []string{
		"Prospecting",
		"Qualification",
		"Proposal",
		"Negotiation",
		"Closed Won",
		"Closed Lost",
		rules.StageAllExceptClosed,
	}
}
