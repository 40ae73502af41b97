package rules

import "time"

// Category classifies what a rule is guarding against. The set is closed;
// storage, resolver and evaluator all share it.
type Category string

const (
	CategoryDataQuality  Category = "data_quality"
	CategorySalesHygiene Category = "sales_hygiene"
	CategoryForecasting  Category = "forecasting"
	CategoryProgression  Category = "progression"
	CategoryEngagement   Category = "engagement"
	CategoryCompliance   Category = "compliance"
)

func Categories() []Category {
	return []Category{
		CategoryDataQuality,
		CategorySalesHygiene,
		CategoryForecasting,
		CategoryProgression,
		CategoryEngagement,
		CategoryCompliance,
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityWarning, SeverityInfo}
}

func (s Severity) Valid() bool {
	return s == SeverityCritical || s == SeverityWarning || s == SeverityInfo
}

// Scope says who an override or custom rule belongs to.
type Scope string

const (
	ScopeOrg  Scope = "org"
	ScopeUser Scope = "user"
)

func (s Scope) Valid() bool {
	return s == ScopeOrg || s == ScopeUser
}

// RemediationOwner is who is expected to act on a violation.
type RemediationOwner string

const (
	OwnerRep     RemediationOwner = "rep"
	OwnerManager RemediationOwner = "manager"
	OwnerAuto    RemediationOwner = "auto"
)

func RemediationOwners() []RemediationOwner {
	return []RemediationOwner{OwnerRep, OwnerManager, OwnerAuto}
}

// SourceKind marks where an effective rule came from.
type SourceKind string

const (
	SourceGlobal SourceKind = "global"
	SourceCustom SourceKind = "custom"
)

// StageAllExceptClosed is a keyword usable inside ApplicableStages: the rule
// applies to every stage except closed-won and closed-lost.
const StageAllExceptClosed = "all_except_closed"

// RuleDefinition is the shared shape of global and custom rules.
type RuleDefinition struct {
	RuleID           string           `json:"rule_id" yaml:"rule_id"`
	Name             string           `json:"name" yaml:"name"`
	Category         Category         `json:"category" yaml:"category"`
	Severity         Severity         `json:"severity" yaml:"severity"`
	Description      string           `json:"description,omitempty" yaml:"description,omitempty"`
	Condition        *Condition       `json:"condition" yaml:"condition"`
	Message          string           `json:"message" yaml:"message"`
	Remediation      string           `json:"remediation,omitempty" yaml:"remediation,omitempty"`
	RemediationOwner RemediationOwner `json:"remediation_owner,omitempty" yaml:"remediation_owner,omitempty"`
	Automatable      bool             `json:"automatable" yaml:"automatable"`
	ApplicableStages []string         `json:"applicable_stages,omitempty" yaml:"applicable_stages,omitempty"`
	Enabled          bool             `json:"enabled" yaml:"enabled"`
}

// GlobalRuleOverride disables or re-parameterizes one catalog rule for one
// org or one user. At most one exists per (TargetRuleID, Scope, ScopeID).
type GlobalRuleOverride struct {
	ID                 string                 `json:"id" db:"id"`
	TargetRuleID       string                 `json:"target_rule_id" db:"target_rule_id"`
	Scope              Scope                  `json:"scope" db:"scope"`
	ScopeID            string                 `json:"scope_id" db:"scope_id"`
	Enabled            bool                   `json:"enabled" db:"enabled"`
	ThresholdOverrides map[string]interface{} `json:"threshold_overrides,omitempty" db:"threshold_overrides"`
	CreatedAt          time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at" db:"updated_at"`
}

// CustomRule is a tenant-authored rule layered on top of the catalog.
type CustomRule struct {
	RuleDefinition

	ID        string    `json:"id" db:"id"`
	Scope     Scope     `json:"scope" db:"scope"`
	ScopeID   string    `json:"scope_id" db:"scope_id"`
	Priority  int       `json:"priority" db:"priority"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EffectiveRule is the resolved, read-only rule actually evaluated. Scope and
// ScopeID are set only for custom-sourced rules.
type EffectiveRule struct {
	RuleDefinition

	SourceKind         SourceKind `json:"source_kind"`
	IsOverridden       bool       `json:"is_overridden"`
	EffectiveCondition *Condition `json:"effective_condition"`
	Scope              Scope      `json:"scope,omitempty"`
	ScopeID            string     `json:"scope_id,omitempty"`
	Priority           int        `json:"priority,omitempty"`
}

// Record is one pipeline entry under inspection. Fields arrive already
// normalized to the canonical vocabulary by the ingestion side; evaluation
// never mutates them.
type Record struct {
	ID     string                 `json:"record_id"`
	Fields map[string]interface{} `json:"fields"`
}

// Field resolves a field by name, falling back between snake_case and
// camelCase spellings since upstream connectors disagree on which they emit.
func (r Record) Field(name string) (interface{}, bool) {
	if v, ok := r.Fields[name]; ok {
		return v, true
	}
	if alt := toCamelCase(name); alt != name {
		if v, ok := r.Fields[alt]; ok {
			return v, true
		}
	}
	if alt := toSnakeCase(name); alt != name {
		if v, ok := r.Fields[alt]; ok {
			return v, true
		}
	}
	return nil, false
}

// Violation is one rule firing true against one record.
type Violation struct {
	RuleID           string           `json:"rule_id"`
	RecordID         string           `json:"record_id"`
	RuleName         string           `json:"rule_name"`
	Severity         Severity         `json:"severity"`
	Category         Category         `json:"category"`
	Message          string           `json:"message"`
	Field            string           `json:"field,omitempty"`
	CurrentValue     string           `json:"current_value,omitempty"`
	SuggestedValue   string           `json:"suggested_value,omitempty"`
	Remediation      string           `json:"remediation,omitempty"`
	RemediationOwner RemediationOwner `json:"remediation_owner,omitempty"`
	Automatable      bool             `json:"automatable"`
}

// RuleDiagnostic reports a rule that could not be evaluated. It is carried
// out of band so one bad rule never aborts a run.
type RuleDiagnostic struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

func toCamelCase(s string) string {
	out := make([]byte, 0, len(s))
	upper := false
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			upper = true
			continue
		}
		c := s[i]
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}

func toSnakeCase(s string) string {
	out := make([]byte, 0, len(s)+4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
