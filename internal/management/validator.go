package management

import (
	"fmt"
	"regexp"

	"dealguard/internal/constants"
	"dealguard/internal/rules"
)

var ruleIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func ValidateCustomRule(req CreateCustomRuleRequest) error {
	if err := validateRuleID(req.RuleID); err != nil {
		return err
	}
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !req.Category.Valid() {
		return fmt.Errorf("invalid category: %s", req.Category)
	}
	if !req.Severity.Valid() {
		return fmt.Errorf("invalid severity: %s", req.Severity)
	}
	if req.Message == "" {
		return fmt.Errorf("message is required")
	}
	if !req.Scope.Valid() {
		return fmt.Errorf("invalid scope: %s. Allowed: org, user", req.Scope)
	}
	if req.ScopeID == "" {
		return fmt.Errorf("scope_id is required")
	}
	if err := validateRemediationOwner(req.RemediationOwner); err != nil {
		return err
	}
	if req.Priority != nil {
		if err := validatePriority(*req.Priority); err != nil {
			return err
		}
	}
	if req.Condition == nil {
		return fmt.Errorf("condition is required")
	}
	if err := req.Condition.Validate(); err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}
	return nil
}

func ValidateUpdateCustomRule(req UpdateCustomRuleRequest) error {
	if req.Name != nil && *req.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if req.Category != nil && !req.Category.Valid() {
		return fmt.Errorf("invalid category: %s", *req.Category)
	}
	if req.Severity != nil && !req.Severity.Valid() {
		return fmt.Errorf("invalid severity: %s", *req.Severity)
	}
	if req.Message != nil && *req.Message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if req.RemediationOwner != nil {
		if err := validateRemediationOwner(*req.RemediationOwner); err != nil {
			return err
		}
	}
	if req.Priority != nil {
		if err := validatePriority(*req.Priority); err != nil {
			return err
		}
	}
	if req.Condition != nil {
		if err := req.Condition.Validate(); err != nil {
			return fmt.Errorf("invalid condition: %w", err)
		}
	}
	return nil
}

func ValidateOverride(req UpsertOverrideRequest) error {
	if !req.Scope.Valid() {
		return fmt.Errorf("invalid scope: %s. Allowed: org, user", req.Scope)
	}
	if req.ScopeID == "" {
		return fmt.Errorf("scope_id is required")
	}
	if req.Enabled == nil {
		return fmt.Errorf("enabled is required")
	}
	return nil
}

func validateRuleID(ruleID string) error {
	if ruleID == "" {
		return fmt.Errorf("rule_id is required")
	}
	if len(ruleID) > constants.RuleIDMaxLen {
		return fmt.Errorf("rule_id exceeds %d characters", constants.RuleIDMaxLen)
	}
	if !ruleIDPattern.MatchString(ruleID) {
		return fmt.Errorf("rule_id may only contain letters, digits and underscores")
	}
	return nil
}

func validatePriority(priority int) error {
	if priority < constants.PriorityMin || priority > constants.PriorityMax {
		return fmt.Errorf("priority must be between %d and %d", constants.PriorityMin, constants.PriorityMax)
	}
	return nil
}

func validateRemediationOwner(owner rules.RemediationOwner) error {
	if owner == "" {
		return nil
	}
	for _, known := range rules.RemediationOwners() {
		if owner == known {
			return nil
		}
	}
	return fmt.Errorf("invalid remediation_owner: %s. Allowed: rep, manager, auto", owner)
}
