package evaluation

import (
	"dealguard/internal/rules"
)

// EvaluateRequest is one batch evaluation call. UserID and OrgID select the
// effective rule set; records are evaluated against it unchanged.
type EvaluateRequest struct {
	UserID  string         `json:"user_id"`
	OrgID   string         `json:"org_id"`
	Records []rules.Record `json:"records" binding:"required"`
}

// EvaluationResult carries everything one run produced. Nothing here is
// persisted; callers own the result.
type EvaluationResult struct {
	EvaluationID       string                       `json:"evaluation_id"`
	ViolationsByRecord map[string][]rules.Violation `json:"violations_by_record"`
	Summary            rules.Summary                `json:"summary"`
	Diagnostics        []rules.RuleDiagnostic       `json:"diagnostics,omitempty"`
	RemediationPlan    []rules.RemediationGroup     `json:"remediation_plan,omitempty"`
	RulesEvaluated     int                          `json:"rules_evaluated"`
	RecordsEvaluated   int                          `json:"records_evaluated"`
}
