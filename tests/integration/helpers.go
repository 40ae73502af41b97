package integration

import (
	"time"

	"dealguard/internal/logger"
	"dealguard/internal/rules"
)

const timestampDelay = 10 * time.Millisecond

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestCustomRule(ruleID string, scope rules.Scope, scopeID string, priority int) *rules.CustomRule {
	return &rules.CustomRule{
		RuleDefinition: rules.RuleDefinition{
			RuleID:           ruleID,
			Name:             "Missing close date",
			Category:         rules.CategoryDataQuality,
			Severity:         rules.SeverityWarning,
			Condition:        rules.Leaf("close_date", rules.OpIsEmpty, nil),
			Message:          "{field} is empty",
			Remediation:      "Set a close date",
			RemediationOwner: rules.OwnerRep,
			ApplicableStages: []string{rules.StageAllExceptClosed},
			Enabled:          true,
		},
		Scope:    scope,
		ScopeID:  scopeID,
		Priority: priority,
	}
}

func createTestOverride(targetRuleID string, scope rules.Scope, scopeID string, enabled bool) *rules.GlobalRuleOverride {
	return &rules.GlobalRuleOverride{
		TargetRuleID: targetRuleID,
		Scope:        scope,
		ScopeID:      scopeID,
		Enabled:      enabled,
		ThresholdOverrides: map[string]interface{}{
			"value": float64(45),
		},
	}
}
