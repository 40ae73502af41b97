package rules

import "sort"

// Scope buckets for rule-availability counts. An overridden global rule
// still counts as global; only custom rules split by their own scope.
const (
	ScopeBucketGlobal     = "global"
	ScopeBucketCustomOrg  = "custom_org"
	ScopeBucketCustomUser = "custom_user"
)

// RuleCounts describes the available rule set, independent of whether any
// rule fired.
type RuleCounts struct {
	TotalRules int              `json:"total_rules"`
	ByCategory map[Category]int `json:"by_category"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByScope    map[string]int   `json:"by_scope"`
}

// ViolationCounts describes what an evaluation run actually found. Kept
// apart from RuleCounts: "how many rules are active" and "how many problems
// were found" answer different questions.
type ViolationCounts struct {
	TotalViolations   int              `json:"total_violations"`
	RecordsWithIssues int              `json:"records_with_issues"`
	BySeverity        map[Severity]int `json:"by_severity"`
	ByCategory        map[Category]int `json:"by_category"`
}

type Summary struct {
	Rules      RuleCounts      `json:"rules"`
	Violations ViolationCounts `json:"violations"`
}

// Summarize reduces the effective rule set and a run's violations into one
// report. Pure; both inputs are left untouched.
func Summarize(effective []EffectiveRule, violationsByRecord map[string][]Violation) Summary {
	return Summary{
		Rules:      SummarizeRules(effective),
		Violations: TallyViolations(violationsByRecord),
	}
}

// SummarizeRules counts the final, deduplicated effective set. A global rule
// shadowed by a same-id custom rule is absent here by construction; it is
// not counted twice.
func SummarizeRules(effective []EffectiveRule) RuleCounts {
	counts := RuleCounts{
		TotalRules: len(effective),
		ByCategory: make(map[Category]int),
		BySeverity: make(map[Severity]int),
		ByScope:    make(map[string]int),
	}
	for _, rule := range effective {
		counts.ByCategory[rule.Category]++
		counts.BySeverity[rule.Severity]++
		counts.ByScope[scopeBucket(rule)]++
	}
	return counts
}

func TallyViolations(violationsByRecord map[string][]Violation) ViolationCounts {
	counts := ViolationCounts{
		BySeverity: make(map[Severity]int),
		ByCategory: make(map[Category]int),
	}
	for _, violations := range violationsByRecord {
		if len(violations) > 0 {
			counts.RecordsWithIssues++
		}
		counts.TotalViolations += len(violations)
		for _, v := range violations {
			counts.BySeverity[v.Severity]++
			counts.ByCategory[v.Category]++
		}
	}
	return counts
}

func scopeBucket(rule EffectiveRule) string {
	if rule.SourceKind != SourceCustom {
		return ScopeBucketGlobal
	}
	if rule.Scope == ScopeUser {
		return ScopeBucketCustomUser
	}
	return ScopeBucketCustomOrg
}

// RemediationGroup collects the violations one owner should work through
// for one category. The engine treats remediation text as opaque data; the
// grouping is just a convenient cut for fix-it views.
type RemediationGroup struct {
	Owner      RemediationOwner `json:"owner"`
	Category   Category         `json:"category"`
	Violations []Violation      `json:"violations"`
}

// BuildRemediationPlan groups violations by remediation owner, then
// category, in a deterministic order.
func BuildRemediationPlan(violationsByRecord map[string][]Violation) []RemediationGroup {
	type key struct {
		owner    RemediationOwner
		category Category
	}
	grouped := make(map[key][]Violation)
	for _, violations := range violationsByRecord {
		for _, v := range violations {
			owner := v.RemediationOwner
			if owner == "" {
				owner = OwnerRep
			}
			k := key{owner: owner, category: v.Category}
			grouped[k] = append(grouped[k], v)
		}
	}

	var plan []RemediationGroup
	for _, owner := range RemediationOwners() {
		for _, category := range Categories() {
			violations, ok := grouped[key{owner: owner, category: category}]
			if !ok {
				continue
			}
			sort.SliceStable(violations, func(i, j int) bool {
				if violations[i].RecordID != violations[j].RecordID {
					return violations[i].RecordID < violations[j].RecordID
				}
				return violations[i].RuleID < violations[j].RuleID
			})
			plan = append(plan, RemediationGroup{
				Owner:      owner,
				Category:   category,
				Violations: violations,
			})
		}
	}
	return plan
}
