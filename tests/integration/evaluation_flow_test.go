package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealguard/internal/evaluation"
	"dealguard/internal/management"
	"dealguard/internal/rules"
	"dealguard/pkg/circuitbreaker"
	pkgerrors "dealguard/pkg/errors"
)

func setupEvaluationService(t *testing.T) (*evaluation.Service, management.Service) {
	t.Helper()

	infra := SetupTestInfra(t)
	log := createTestLogger()

	catalog, err := rules.DefaultCatalog()
	require.NoError(t, err)

	repo := management.NewRepository(infra.PostgresDB)
	mgmt := management.NewService(catalog, repo, repo)

	breaker := circuitbreaker.NewWrapper(circuitbreaker.DefaultConfig("test-snapshot"))
	snapshot := evaluation.NewSnapshotReader(repo, repo, breaker)
	engine := rules.NewEngine(rules.NewEvaluator(log), log, 4)

	return evaluation.NewService(catalog, snapshot, engine, log, 100), mgmt
}

func violatedRuleIDs(result *evaluation.EvaluationResult, recordID string) map[string]bool {
	out := make(map[string]bool)
	for _, v := range result.ViolationsByRecord[recordID] {
		out[v.RuleID] = true
	}
	return out
}

func TestEvaluationFlow_CatalogViolations(t *testing.T) {
	svc, _ := setupEvaluationService(t)
	ctx := context.Background()

	result, err := svc.Evaluate(ctx, evaluation.EvaluateRequest{
		UserID: "user-1",
		OrgID:  "org-1",
		Records: []rules.Record{
			{
				ID: "deal-1",
				Fields: map[string]interface{}{
					"deal_name": "Acme renewal",
					"amount":    float64(50000),
					"stage":     "Negotiation",
				},
			},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.EvaluationID)
	assert.Equal(t, 1, result.RecordsEvaluated)
	assert.Empty(t, result.Diagnostics)

	violated := violatedRuleIDs(result, "deal-1")
	assert.True(t, violated["missing_close_date"])
	assert.False(t, violated["missing_deal_name"])
	assert.False(t, violated["missing_amount"])

	assert.Equal(t, result.Summary.Violations.TotalViolations,
		len(result.ViolationsByRecord["deal-1"]))
}

func TestEvaluationFlow_OverrideDisablesRule(t *testing.T) {
	svc, mgmt := setupEvaluationService(t)
	ctx := context.Background()

	disabled := false
	_, err := mgmt.UpsertOverride(ctx, "missing_close_date", management.UpsertOverrideRequest{
		Scope:   rules.ScopeOrg,
		ScopeID: "org-1",
		Enabled: &disabled,
	})
	require.NoError(t, err)

	record := rules.Record{
		ID: "deal-1",
		Fields: map[string]interface{}{
			"deal_name": "Acme renewal",
			"amount":    float64(50000),
			"stage":     "Negotiation",
		},
	}

	result, err := svc.Evaluate(ctx, evaluation.EvaluateRequest{
		UserID: "user-1", OrgID: "org-1",
		Records: []rules.Record{record},
	})
	require.NoError(t, err)
	assert.False(t, violatedRuleIDs(result, "deal-1")["missing_close_date"])

	// The override is scoped; another org still sees the rule.
	other, err := svc.Evaluate(ctx, evaluation.EvaluateRequest{
		UserID: "user-2", OrgID: "org-2",
		Records: []rules.Record{record},
	})
	require.NoError(t, err)
	assert.True(t, violatedRuleIDs(other, "deal-1")["missing_close_date"])
}

func TestEvaluationFlow_CustomRuleFires(t *testing.T) {
	svc, mgmt := setupEvaluationService(t)
	ctx := context.Background()

	_, err := mgmt.CreateCustomRule(ctx, management.CreateCustomRuleRequest{
		RuleID:    "big_deal_threshold",
		Name:      "Deal above escalation threshold",
		Category:  rules.CategorySalesHygiene,
		Severity:  rules.SeverityInfo,
		Condition: rules.Leaf("amount", rules.OpGreaterThan, float64(100000)),
		Message:   "Deal '{deal_name}' exceeds the escalation threshold",
		Scope:     rules.ScopeOrg,
		ScopeID:   "org-1",
	})
	require.NoError(t, err)

	result, err := svc.Evaluate(ctx, evaluation.EvaluateRequest{
		UserID: "user-1", OrgID: "org-1",
		Records: []rules.Record{
			{
				ID: "deal-1",
				Fields: map[string]interface{}{
					"deal_name": "Mega deal",
					"amount":    float64(250000),
					"stage":     "Negotiation",
				},
			},
		},
	})
	require.NoError(t, err)

	violated := violatedRuleIDs(result, "deal-1")
	require.True(t, violated["big_deal_threshold"])

	for _, v := range result.ViolationsByRecord["deal-1"] {
		if v.RuleID == "big_deal_threshold" {
			assert.Equal(t, "Deal 'Mega deal' exceeds the escalation threshold", v.Message)
			assert.Equal(t, "amount", v.Field)
		}
	}
}

func TestEvaluationFlow_BatchLimit(t *testing.T) {
	svc, _ := setupEvaluationService(t)
	ctx := context.Background()

	records := make([]rules.Record, 101)
	_, err := svc.Evaluate(ctx, evaluation.EvaluateRequest{
		UserID: "user-1", OrgID: "org-1",
		Records: records,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}
