package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"dealguard/internal/logger"
	"dealguard/pkg/errors"
)

const DefaultWorkers = 8

// Engine applies an effective rule set to a batch of records. Records are
// independent of each other, so the batch fans out across a bounded worker
// pool; within one record the violation list keeps the resolver's rule
// order.
type Engine struct {
	evaluator *Evaluator
	log       logger.Logger
	workers   int
}

func NewEngine(evaluator *Evaluator, log logger.Logger, workers int) *Engine {
	if log == nil {
		log = logger.NopLogger()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{
		evaluator: evaluator,
		log:       log,
		workers:   workers,
	}
}

// RunResult carries the violations per record plus diagnostics for rules
// that could not be evaluated. One malformed rule costs exactly that rule,
// never the batch.
type RunResult struct {
	ViolationsByRecord map[string][]Violation `json:"violations_by_record"`
	Diagnostics        []RuleDiagnostic       `json:"diagnostics,omitempty"`
}

func (e *Engine) Run(ctx context.Context, effective []EffectiveRule, records []Record) (*RunResult, error) {
	recordIDs, err := assignRecordIDs(records)
	if err != nil {
		return nil, err
	}

	runnable, diagnostics := e.screenRules(effective)

	perRecord := make([][]Violation, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			record := records[i]
			record.ID = recordIDs[i]
			perRecord[i] = e.checkRecord(record, runnable)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byRecord := make(map[string][]Violation, len(records))
	for i, violations := range perRecord {
		byRecord[recordIDs[i]] = violations
	}
	return &RunResult{
		ViolationsByRecord: byRecord,
		Diagnostics:        diagnostics,
	}, nil
}

// assignRecordIDs defaults empty ids by batch position and rejects
// duplicates, which would otherwise shadow one record's violations in the
// keyed result.
func assignRecordIDs(records []Record) ([]string, error) {
	ids := make([]string, len(records))
	seen := make(map[string]int, len(records))
	for i, record := range records {
		id := record.ID
		if id == "" {
			id = fmt.Sprintf("record-%d", i)
		}
		if prev, dup := seen[id]; dup {
			return nil, errors.ErrValidation.WithDetail("message",
				fmt.Sprintf("records %d and %d share id %q", prev, i, id))
		}
		seen[id] = i
		ids[i] = id
	}
	return ids, nil
}

// screenRules validates every effective condition once up front. Malformed
// rules are moved to the diagnostics list so per-record evaluation runs over
// well-formed trees only.
func (e *Engine) screenRules(effective []EffectiveRule) ([]EffectiveRule, []RuleDiagnostic) {
	runnable := make([]EffectiveRule, 0, len(effective))
	var diagnostics []RuleDiagnostic
	for _, rule := range effective {
		if err := rule.EffectiveCondition.Validate(); err != nil {
			e.log.Warnw("skipping malformed rule", "rule_id", rule.RuleID, "error", err)
			diagnostics = append(diagnostics, RuleDiagnostic{
				RuleID: rule.RuleID,
				Reason: err.Error(),
			})
			continue
		}
		runnable = append(runnable, rule)
	}
	return runnable, diagnostics
}

func (e *Engine) checkRecord(record Record, rules []EffectiveRule) []Violation {
	var violations []Violation
	for _, rule := range rules {
		if !stageApplies(rule.ApplicableStages, record) {
			continue
		}
		violated, err := e.evaluator.Evaluate(rule.EffectiveCondition, record)
		if err != nil {
			// Screened conditions should not error; if one does, it costs
			// this rule for this record only.
			e.log.Warnw("rule evaluation failed",
				"rule_id", rule.RuleID, "record_id", record.ID, "error", err)
			continue
		}
		if violated {
			violations = append(violations, buildViolation(rule, record))
		}
	}
	return violations
}

var closedStages = map[string]struct{}{
	"closed won":  {},
	"closed lost": {},
	"closed-won":  {},
	"closed-lost": {},
}

// stageApplies gates a rule on the record's pipeline stage. An empty stage
// list applies everywhere; the all_except_closed keyword applies to every
// stage but closed-won and closed-lost.
func stageApplies(stages []string, record Record) bool {
	if len(stages) == 0 {
		return true
	}

	raw, _ := record.Field("stage")
	stage := strings.TrimSpace(asString(raw))

	hasAllExceptClosed := false
	for _, s := range stages {
		if s == StageAllExceptClosed {
			hasAllExceptClosed = true
			continue
		}
		if s == stage {
			return true
		}
	}
	if hasAllExceptClosed {
		_, closed := closedStages[strings.ToLower(stage)]
		return !closed
	}
	return false
}

func buildViolation(rule EffectiveRule, record Record) Violation {
	v := Violation{
		RuleID:           rule.RuleID,
		RecordID:         record.ID,
		RuleName:         rule.Name,
		Severity:         rule.Severity,
		Category:         rule.Category,
		Message:          renderMessage(rule.Message, record),
		Remediation:      rule.Remediation,
		RemediationOwner: rule.RemediationOwner,
		Automatable:      rule.Automatable,
	}

	// Field-level detail only makes sense when the condition is a single
	// leaf; a composite has no single offending field.
	if cond := rule.EffectiveCondition; cond.IsLeaf() {
		v.Field = cond.Field
		if raw, ok := record.Field(cond.Field); ok && raw != nil {
			v.CurrentValue = asString(raw)
		}
		v.SuggestedValue = formatExpected(cond.Value)
	}
	return v
}

var messagePlaceholder = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// renderMessage substitutes {field_name} placeholders with record values.
// Placeholders for absent fields are left intact rather than rendered empty,
// which makes the gap visible in the report.
func renderMessage(template string, record Record) string {
	return messagePlaceholder.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		if raw, ok := record.Field(name); ok && raw != nil {
			return asString(raw)
		}
		return token
	})
}

func formatExpected(value interface{}) string {
	if value == nil {
		return ""
	}
	if items, ok := value.([]interface{}); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = asString(item)
		}
		return strings.Join(parts, ", ")
	}
	return asString(value)
}
