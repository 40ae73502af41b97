package rules

import (
	"sort"
	"strings"
)

// Resolve merges the catalog, tenant overrides, and tenant custom rules into
// the effective rule set for one (userID, orgID) pair. It is a pure function
// over snapshots: nothing passed in is mutated, and for fixed inputs the
// output is repeatable byte for byte, ordering included. Callers re-run it
// per evaluation request so an override write can never leave a stale set
// behind.
//
// Precedence: a user-scoped override beats an org-scoped one, which beats
// the catalog default. Disabled rules are dropped. Custom rules come first,
// ordered by ascending priority then rule id; globals follow, ordered by
// rule id. A custom rule reusing a global id supersedes the global entirely.
func Resolve(catalog []RuleDefinition, overrides []GlobalRuleOverride, customRules []CustomRule, userID, orgID string) []EffectiveRule {
	var globals []EffectiveRule
	for _, eff := range GlobalView(catalog, overrides, userID, orgID) {
		if eff.Enabled {
			globals = append(globals, eff)
		}
	}

	var customs []EffectiveRule
	for _, cr := range customRules {
		visible := (cr.Scope == ScopeUser && cr.ScopeID == userID) ||
			(cr.Scope == ScopeOrg && cr.ScopeID == orgID)
		if !visible || !cr.Enabled {
			continue
		}
		customs = append(customs, EffectiveRule{
			RuleDefinition:     cr.RuleDefinition,
			SourceKind:         SourceCustom,
			EffectiveCondition: cr.Condition,
			Scope:              cr.Scope,
			ScopeID:            cr.ScopeID,
			Priority:           cr.Priority,
		})
	}

	// Custom rules are intentional local policy and lead the list so their
	// findings are not buried under catalog noise.
	sort.SliceStable(customs, func(i, j int) bool {
		if customs[i].Priority != customs[j].Priority {
			return customs[i].Priority < customs[j].Priority
		}
		return customs[i].RuleID < customs[j].RuleID
	})
	sort.SliceStable(globals, func(i, j int) bool {
		return globals[i].RuleID < globals[j].RuleID
	})

	seen := make(map[string]struct{}, len(customs)+len(globals))
	out := make([]EffectiveRule, 0, len(customs)+len(globals))
	for _, eff := range append(customs, globals...) {
		if _, dup := seen[eff.RuleID]; dup {
			// A custom rule shadowing a global id replaces it outright.
			continue
		}
		seen[eff.RuleID] = struct{}{}
		out = append(out, eff)
	}
	return out
}

// GlobalView applies override status to every catalog rule without dropping
// disabled ones. Listing endpoints use it so a tenant can see, and re-enable,
// rules they switched off.
func GlobalView(catalog []RuleDefinition, overrides []GlobalRuleOverride, userID, orgID string) []EffectiveRule {
	userOverrides := make(map[string]GlobalRuleOverride)
	orgOverrides := make(map[string]GlobalRuleOverride)
	for _, o := range overrides {
		switch {
		case o.Scope == ScopeUser && o.ScopeID == userID:
			userOverrides[o.TargetRuleID] = o
		case o.Scope == ScopeOrg && o.ScopeID == orgID:
			orgOverrides[o.TargetRuleID] = o
		}
	}

	out := make([]EffectiveRule, 0, len(catalog))
	for _, def := range catalog {
		eff := EffectiveRule{
			RuleDefinition:     def,
			SourceKind:         SourceGlobal,
			EffectiveCondition: def.Condition,
		}

		override, found := userOverrides[def.RuleID]
		if !found {
			override, found = orgOverrides[def.RuleID]
		}
		if found {
			eff.Enabled = override.Enabled
			eff.IsOverridden = true
			if len(override.ThresholdOverrides) > 0 {
				eff.EffectiveCondition = applyThresholdOverrides(def.Condition, override.ThresholdOverrides)
			}
		}
		out = append(out, eff)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

// applyThresholdOverrides substitutes leaf values into a deep copy of the
// condition tree. Recognized key forms:
//
//	"value" or "field.value"    replace the value on every leaf
//	"<fieldName>.value"         replace only leaves on that field
//
// Unmatched keys are ignored; validating them is authoring-tool territory.
func applyThresholdOverrides(cond *Condition, overrides map[string]interface{}) *Condition {
	out := cond.Clone()
	for key, replacement := range overrides {
		field, ok := thresholdTargetField(key)
		if !ok {
			continue
		}
		out.WalkLeaves(func(leaf *Condition) {
			if field == "" || leaf.Field == field {
				leaf.Value = cloneValue(replacement)
			}
		})
	}
	return out
}

// thresholdTargetField parses an override key. An empty field with ok=true
// means "every leaf".
func thresholdTargetField(key string) (string, bool) {
	if key == "value" || key == "field.value" {
		return "", true
	}
	if field, found := strings.CutSuffix(key, ".value"); found && field != "" {
		return field, true
	}
	return "", false
}
