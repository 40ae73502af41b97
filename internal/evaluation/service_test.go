package evaluation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealguard/internal/rules"
	pkgerrors "dealguard/pkg/errors"
)

type fakeSnapshot struct {
	overrides   []rules.GlobalRuleOverride
	customRules []rules.CustomRule
	err         error
}

func (f *fakeSnapshot) ListOverrides(context.Context, string, string) ([]rules.GlobalRuleOverride, error) {
	return f.overrides, f.err
}

func (f *fakeSnapshot) ListCustomRules(context.Context, string, string) ([]rules.CustomRule, error) {
	return f.customRules, f.err
}

func testCatalog(t *testing.T) *rules.Catalog {
	t.Helper()
	catalog, err := rules.NewCatalog([]rules.RuleDefinition{
		{
			RuleID:           "missing_close_date",
			Name:             "Missing close date",
			Category:         rules.CategoryDataQuality,
			Severity:         rules.SeverityCritical,
			Condition:        rules.Leaf("close_date", rules.OpIsEmpty, nil),
			Message:          "Deal '{deal_name}' has no close date",
			RemediationOwner: rules.OwnerRep,
			Enabled:          true,
		},
		{
			RuleID:           "missing_next_steps",
			Name:             "Missing next steps",
			Category:         rules.CategoryDataQuality,
			Severity:         rules.SeverityWarning,
			Condition:        rules.Leaf("next_steps", rules.OpIsEmpty, nil),
			Message:          "no next steps",
			RemediationOwner: rules.OwnerRep,
			ApplicableStages: []string{rules.StageAllExceptClosed},
			Enabled:          true,
		},
	})
	require.NoError(t, err)
	return catalog
}

func newTestService(t *testing.T, snapshot SnapshotReader, maxRecords int) *Service {
	t.Helper()
	engine := rules.NewEngine(rules.NewEvaluator(nil), nil, 2)
	return NewService(testCatalog(t), snapshot, engine, nil, maxRecords)
}

func TestEvaluate(t *testing.T) {
	svc := newTestService(t, &fakeSnapshot{}, 100)

	result, err := svc.Evaluate(context.Background(), EvaluateRequest{
		UserID: "user-1",
		OrgID:  "org-1",
		Records: []rules.Record{
			{ID: "deal-1", Fields: map[string]interface{}{
				"deal_name": "Acme",
				"stage":     "Negotiation",
			}},
			{ID: "deal-2", Fields: map[string]interface{}{
				"deal_name":  "Globex",
				"stage":      "Closed Won",
				"close_date": "2026-02-01",
				"next_steps": "handoff",
			}},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.EvaluationID)
	assert.Equal(t, 2, result.RecordsEvaluated)
	assert.Equal(t, 2, result.RulesEvaluated)
	assert.Empty(t, result.Diagnostics)

	violations := result.ViolationsByRecord["deal-1"]
	require.Len(t, violations, 2)
	assert.Equal(t, "Deal 'Acme' has no close date", violations[0].Message)
	assert.Empty(t, result.ViolationsByRecord["deal-2"])

	assert.Equal(t, 2, result.Summary.Violations.TotalViolations)
	assert.Equal(t, 1, result.Summary.Violations.RecordsWithIssues)
	assert.Equal(t, 2, result.Summary.Rules.TotalRules)

	require.Len(t, result.RemediationPlan, 1)
	assert.Equal(t, rules.OwnerRep, result.RemediationPlan[0].Owner)
	assert.Len(t, result.RemediationPlan[0].Violations, 2)
}

func TestEvaluate_SnapshotShapesRuleSet(t *testing.T) {
	snapshot := &fakeSnapshot{
		overrides: []rules.GlobalRuleOverride{
			{TargetRuleID: "missing_next_steps", Scope: rules.ScopeOrg, ScopeID: "org-1", Enabled: false},
		},
		customRules: []rules.CustomRule{
			{
				RuleDefinition: rules.RuleDefinition{
					RuleID:    "big_deal",
					Name:      "Big deal",
					Category:  rules.CategorySalesHygiene,
					Severity:  rules.SeverityInfo,
					Condition: rules.Leaf("amount", rules.OpGreaterThan, float64(100000)),
					Message:   "big",
					Enabled:   true,
				},
				ID:      "cr-1",
				Scope:   rules.ScopeOrg,
				ScopeID: "org-1",
			},
		},
	}
	svc := newTestService(t, snapshot, 100)

	result, err := svc.Evaluate(context.Background(), EvaluateRequest{
		UserID: "user-1",
		OrgID:  "org-1",
		Records: []rules.Record{
			{ID: "deal-1", Fields: map[string]interface{}{
				"amount": float64(250000),
				"stage":  "Negotiation",
			}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RulesEvaluated)

	var ids []string
	for _, v := range result.ViolationsByRecord["deal-1"] {
		ids = append(ids, v.RuleID)
	}
	assert.Contains(t, ids, "big_deal")
	assert.Contains(t, ids, "missing_close_date")
	assert.NotContains(t, ids, "missing_next_steps")
}

func TestEvaluate_BatchLimit(t *testing.T) {
	svc := newTestService(t, &fakeSnapshot{}, 2)

	_, err := svc.Evaluate(context.Background(), EvaluateRequest{
		UserID:  "user-1",
		OrgID:   "org-1",
		Records: make([]rules.Record, 3),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestEvaluate_SnapshotError(t *testing.T) {
	svc := newTestService(t, &fakeSnapshot{err: fmt.Errorf("connection refused")}, 100)

	_, err := svc.Evaluate(context.Background(), EvaluateRequest{
		UserID:  "user-1",
		OrgID:   "org-1",
		Records: []rules.Record{{ID: "deal-1"}},
	})
	require.Error(t, err)

	var appErr *pkgerrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, pkgerrors.ErrInternal.Code, appErr.Code)
}
