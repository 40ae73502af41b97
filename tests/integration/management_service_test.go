package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealguard/internal/management"
	"dealguard/internal/rules"
	pkgerrors "dealguard/pkg/errors"
)

func setupManagementService(t *testing.T) (management.Service, *TestInfra) {
	t.Helper()

	infra := SetupTestInfra(t)

	catalog, err := rules.DefaultCatalog()
	require.NoError(t, err)

	repo := management.NewRepository(infra.PostgresDB)
	versioningRepo := management.NewVersioningRepository(infra.PostgresDB)

	svc := management.NewService(catalog, repo, repo,
		management.WithVersioning(versioningRepo),
	)
	return svc, infra
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestManagementService_UpsertOverride(t *testing.T) {
	svc, _ := setupManagementService(t)
	ctx := context.Background()

	override, err := svc.UpsertOverride(ctx, "missing_close_date", management.UpsertOverrideRequest{
		Scope:   rules.ScopeOrg,
		ScopeID: "org-1",
		Enabled: boolPtr(false),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, override.ID)
	assert.False(t, override.Enabled)

	versions, err := svc.GetRuleVersions(ctx, management.EntityOverride, override.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, "system", versions[0].ChangedBy)

	logs, err := svc.GetAuditLogs(ctx, &override.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "create", logs[0].Action)
}

func TestManagementService_UpsertOverride_UnknownRule(t *testing.T) {
	svc, _ := setupManagementService(t)
	ctx := context.Background()

	_, err := svc.UpsertOverride(ctx, "no_such_rule", management.UpsertOverrideRequest{
		Scope:   rules.ScopeOrg,
		ScopeID: "org-1",
		Enabled: boolPtr(false),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnknownRule(err))
}

func TestManagementService_UpsertOverride_Duplicate(t *testing.T) {
	svc, _ := setupManagementService(t)
	ctx := context.Background()

	req := management.UpsertOverrideRequest{
		Scope:   rules.ScopeUser,
		ScopeID: "user-1",
		Enabled: boolPtr(false),
	}

	_, err := svc.UpsertOverride(ctx, "missing_close_date", req)
	require.NoError(t, err)

	_, err = svc.UpsertOverride(ctx, "missing_close_date", req)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestManagementService_OverrideChangesEffectiveRules(t *testing.T) {
	svc, _ := setupManagementService(t)
	ctx := context.Background()

	baseline, err := svc.ListEffectiveRules(ctx, "user-1", "org-1")
	require.NoError(t, err)
	require.NotEmpty(t, baseline)

	_, err = svc.UpsertOverride(ctx, "missing_close_date", management.UpsertOverrideRequest{
		Scope:   rules.ScopeOrg,
		ScopeID: "org-1",
		Enabled: boolPtr(false),
	})
	require.NoError(t, err)

	effective, err := svc.ListEffectiveRules(ctx, "user-1", "org-1")
	require.NoError(t, err)
	assert.Len(t, effective, len(baseline)-1)
	for _, rule := range effective {
		assert.NotEqual(t, "missing_close_date", rule.RuleID)
	}

	// The disabled rule stays visible in the global listing.
	global, err := svc.ListGlobalRules(ctx, "user-1", "org-1")
	require.NoError(t, err)
	assert.Len(t, global, len(baseline))
	var found bool
	for _, rule := range global {
		if rule.RuleID == "missing_close_date" {
			found = true
			assert.False(t, rule.Enabled)
			assert.True(t, rule.IsOverridden)
		}
	}
	assert.True(t, found)

	// Other tenants are unaffected.
	other, err := svc.ListEffectiveRules(ctx, "user-2", "org-2")
	require.NoError(t, err)
	assert.Len(t, other, len(baseline))
}

func TestManagementService_CustomRuleLifecycle(t *testing.T) {
	svc, _ := setupManagementService(t)
	ctx := context.Background()

	created, err := svc.CreateCustomRule(ctx, management.CreateCustomRuleRequest{
		RuleID:    "big_deal_no_exec",
		Name:      "Large deal without executive contact",
		Category:  rules.CategorySalesHygiene,
		Severity:  rules.SeverityWarning,
		Condition: rules.Leaf("amount", rules.OpGreaterThan, float64(100000)),
		Message:   "Deal over 100k has no executive sponsor",
		Scope:     rules.ScopeOrg,
		ScopeID:   "org-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Enabled)
	assert.Equal(t, 50, created.Priority)

	updated, err := svc.UpdateCustomRule(ctx, created.ID, management.UpdateCustomRuleRequest{
		Severity: severityPtr(rules.SeverityCritical),
		Priority: intPtr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, rules.SeverityCritical, updated.Severity)
	assert.Equal(t, 5, updated.Priority)

	versions, err := svc.GetRuleVersions(ctx, management.EntityCustomRule, created.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)

	require.NoError(t, svc.DeleteCustomRule(ctx, created.ID))

	_, err = svc.GetCustomRule(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))

	logs, err := svc.GetAuditLogs(ctx, nil, management.EntityCustomRule, 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "delete", logs[0].Action)
}

func TestManagementService_CreateCustomRule_Invalid(t *testing.T) {
	svc, _ := setupManagementService(t)
	ctx := context.Background()

	_, err := svc.CreateCustomRule(ctx, management.CreateCustomRuleRequest{
		RuleID:    "bad rule id",
		Name:      "Broken",
		Category:  rules.CategorySalesHygiene,
		Severity:  rules.SeverityWarning,
		Condition: rules.Leaf("amount", rules.OpGreaterThan, float64(1)),
		Message:   "x",
		Scope:     rules.ScopeOrg,
		ScopeID:   "org-1",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func severityPtr(s rules.Severity) *rules.Severity { return &s }
