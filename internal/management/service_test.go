package management

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealguard/internal/rules"
	pkgerrors "dealguard/pkg/errors"
)

type fakeStore struct {
	customRules map[string]*rules.CustomRule
	overrides   map[string]*rules.GlobalRuleOverride
	nextID      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customRules: make(map[string]*rules.CustomRule),
		overrides:   make(map[string]*rules.GlobalRuleOverride),
	}
}

func (s *fakeStore) CreateCustomRule(_ context.Context, rule *rules.CustomRule) error {
	for _, existing := range s.customRules {
		if existing.RuleID == rule.RuleID && existing.Scope == rule.Scope && existing.ScopeID == rule.ScopeID {
			return pkgerrors.ErrConflict.WithDetail("rule_id", rule.RuleID)
		}
	}
	s.nextID++
	rule.ID = string(rune('a' + s.nextID))
	copied := *rule
	s.customRules[rule.ID] = &copied
	return nil
}

func (s *fakeStore) GetCustomRule(_ context.Context, id string) (*rules.CustomRule, error) {
	rule, ok := s.customRules[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	copied := *rule
	return &copied, nil
}

func (s *fakeStore) UpdateCustomRule(_ context.Context, rule *rules.CustomRule) error {
	if _, ok := s.customRules[rule.ID]; !ok {
		return pkgerrors.ErrNotFound.WithDetail("id", rule.ID)
	}
	copied := *rule
	s.customRules[rule.ID] = &copied
	return nil
}

func (s *fakeStore) DeleteCustomRule(_ context.Context, id string) error {
	if _, ok := s.customRules[id]; !ok {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	delete(s.customRules, id)
	return nil
}

func (s *fakeStore) ListCustomRules(_ context.Context, userID, orgID string) ([]rules.CustomRule, error) {
	var out []rules.CustomRule
	for _, rule := range s.customRules {
		if (rule.Scope == rules.ScopeUser && rule.ScopeID == userID) ||
			(rule.Scope == rules.ScopeOrg && rule.ScopeID == orgID) {
			out = append(out, *rule)
		}
	}
	return out, nil
}

func overrideKey(o *rules.GlobalRuleOverride) string {
	return o.TargetRuleID + "|" + string(o.Scope) + "|" + o.ScopeID
}

func (s *fakeStore) CreateOverride(_ context.Context, override *rules.GlobalRuleOverride) error {
	key := overrideKey(override)
	if _, ok := s.overrides[key]; ok {
		return pkgerrors.ErrConflict.WithDetail("target_rule_id", override.TargetRuleID)
	}
	s.nextID++
	override.ID = string(rune('A' + s.nextID))
	copied := *override
	s.overrides[key] = &copied
	return nil
}

func (s *fakeStore) GetOverride(_ context.Context, targetRuleID string, scope rules.Scope, scopeID string) (*rules.GlobalRuleOverride, error) {
	key := overrideKey(&rules.GlobalRuleOverride{TargetRuleID: targetRuleID, Scope: scope, ScopeID: scopeID})
	override, ok := s.overrides[key]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("target_rule_id", targetRuleID)
	}
	copied := *override
	return &copied, nil
}

func (s *fakeStore) DeleteOverride(_ context.Context, targetRuleID string, scope rules.Scope, scopeID string) error {
	key := overrideKey(&rules.GlobalRuleOverride{TargetRuleID: targetRuleID, Scope: scope, ScopeID: scopeID})
	if _, ok := s.overrides[key]; !ok {
		return pkgerrors.ErrNotFound.WithDetail("target_rule_id", targetRuleID)
	}
	delete(s.overrides, key)
	return nil
}

func (s *fakeStore) ListOverrides(_ context.Context, userID, orgID string) ([]rules.GlobalRuleOverride, error) {
	var out []rules.GlobalRuleOverride
	for _, o := range s.overrides {
		if (o.Scope == rules.ScopeUser && o.ScopeID == userID) ||
			(o.Scope == rules.ScopeOrg && o.ScopeID == orgID) {
			out = append(out, *o)
		}
	}
	return out, nil
}

type fakeVersioningRepo struct {
	versions []RuleVersion
	audits   []AuditLog
}

func (f *fakeVersioningRepo) CreateVersion(_ context.Context, version *RuleVersion) error {
	f.versions = append(f.versions, *version)
	return nil
}

func (f *fakeVersioningRepo) GetVersions(_ context.Context, entityType, entityID string) ([]RuleVersion, error) {
	var out []RuleVersion
	for _, v := range f.versions {
		if v.EntityType == entityType && v.EntityID == entityID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVersioningRepo) GetNextVersion(_ context.Context, entityType, entityID string) (int, error) {
	max := 0
	for _, v := range f.versions {
		if v.EntityType == entityType && v.EntityID == entityID && v.Version > max {
			max = v.Version
		}
	}
	return max + 1, nil
}

func (f *fakeVersioningRepo) CreateAuditLog(_ context.Context, log *AuditLog) error {
	f.audits = append(f.audits, *log)
	return nil
}

func (f *fakeVersioningRepo) GetAuditLogs(_ context.Context, entityID *string, entityType string, limit int) ([]AuditLog, error) {
	var out []AuditLog
	for _, entry := range f.audits {
		if entityID != nil && entry.EntityID != *entityID {
			continue
		}
		if entityID == nil && entityType != "" && entry.EntityType != entityType {
			continue
		}
		out = append(out, entry)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testServiceCatalog(t *testing.T) *rules.Catalog {
	t.Helper()
	catalog, err := rules.NewCatalog([]rules.RuleDefinition{
		{
			RuleID:    "missing_close_date",
			Name:      "Missing close date",
			Category:  rules.CategoryDataQuality,
			Severity:  rules.SeverityCritical,
			Condition: rules.Leaf("close_date", rules.OpIsEmpty, nil),
			Message:   "no close date",
			Enabled:   true,
		},
		{
			RuleID:    "stale_activity",
			Name:      "Stale activity",
			Category:  rules.CategorySalesHygiene,
			Severity:  rules.SeverityWarning,
			Condition: rules.Leaf("last_activity_date", rules.OpDaysSinceGreaterThan, float64(14)),
			Message:   "stale",
			Enabled:   true,
		},
	})
	require.NoError(t, err)
	return catalog
}

func newTestService(t *testing.T) (Service, *fakeStore, *fakeVersioningRepo) {
	store := newFakeStore()
	versioning := &fakeVersioningRepo{}
	svc := NewService(testServiceCatalog(t), store, store, WithVersioning(versioning))
	return svc, store, versioning
}

func TestServiceCreateCustomRule_Defaults(t *testing.T) {
	svc, _, versioning := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateCustomRule(ctx, CreateCustomRuleRequest{
		RuleID:    "big_deal",
		Name:      "Big deal",
		Category:  rules.CategorySalesHygiene,
		Severity:  rules.SeverityInfo,
		Condition: rules.Leaf("amount", rules.OpGreaterThan, float64(100000)),
		Message:   "big",
		Scope:     rules.ScopeOrg,
		ScopeID:   "org-1",
	})
	require.NoError(t, err)
	assert.True(t, created.Enabled)
	assert.Equal(t, 50, created.Priority)

	require.Len(t, versioning.versions, 1)
	assert.Equal(t, EntityCustomRule, versioning.versions[0].EntityType)
	assert.Equal(t, 1, versioning.versions[0].Version)
	require.Len(t, versioning.audits, 1)
	assert.Equal(t, "create", versioning.audits[0].Action)
	assert.Equal(t, "system", versioning.audits[0].ChangedBy)
}

func TestServiceCreateCustomRule_Invalid(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateCustomRule(ctx, CreateCustomRuleRequest{
		RuleID:    "bad rule",
		Name:      "Broken",
		Category:  rules.CategorySalesHygiene,
		Severity:  rules.SeverityInfo,
		Condition: rules.Leaf("amount", rules.OpGreaterThan, float64(1)),
		Message:   "m",
		Scope:     rules.ScopeOrg,
		ScopeID:   "org-1",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Empty(t, store.customRules)
}

func TestServiceCreateCustomRule_ConflictPassesThrough(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := CreateCustomRuleRequest{
		RuleID:    "big_deal",
		Name:      "Big deal",
		Category:  rules.CategorySalesHygiene,
		Severity:  rules.SeverityInfo,
		Condition: rules.Leaf("amount", rules.OpGreaterThan, float64(1)),
		Message:   "m",
		Scope:     rules.ScopeOrg,
		ScopeID:   "org-1",
	}

	_, err := svc.CreateCustomRule(ctx, req)
	require.NoError(t, err)

	_, err = svc.CreateCustomRule(ctx, req)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestServiceCreateCustomRule_CatalogShapeMismatch(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	// missing_close_date is a data_quality/critical catalog rule; reusing
	// its id with a different shape must not slip through as a new rule.
	_, err := svc.CreateCustomRule(ctx, CreateCustomRuleRequest{
		RuleID:    "missing_close_date",
		Name:      "Impostor",
		Category:  rules.CategorySalesHygiene,
		Severity:  rules.SeverityInfo,
		Condition: rules.Leaf("close_date", rules.OpIsEmpty, nil),
		Message:   "m",
		Scope:     rules.ScopeOrg,
		ScopeID:   "org-1",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnknownRule(err))
	assert.Empty(t, store.customRules)
}

func TestServiceCreateCustomRule_CatalogReplacement(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Same id, same category and severity: an intentional replacement the
	// resolver dedupes in favor of the custom rule.
	created, err := svc.CreateCustomRule(ctx, CreateCustomRuleRequest{
		RuleID:    "missing_close_date",
		Name:      "Missing close date, tightened",
		Category:  rules.CategoryDataQuality,
		Severity:  rules.SeverityCritical,
		Condition: rules.AllOf(
			rules.Leaf("close_date", rules.OpIsEmpty, nil),
			rules.Leaf("stage", rules.OpNotEqual, "Prospecting"),
		),
		Message: "no close date past prospecting",
		Scope:   rules.ScopeOrg,
		ScopeID: "org-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "missing_close_date", created.RuleID)
}

func TestServiceUpdateCustomRule_CatalogShapeMismatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateCustomRule(ctx, CreateCustomRuleRequest{
		RuleID:    "missing_close_date",
		Name:      "Missing close date, tightened",
		Category:  rules.CategoryDataQuality,
		Severity:  rules.SeverityCritical,
		Condition: rules.Leaf("close_date", rules.OpIsEmpty, nil),
		Message:   "m",
		Scope:     rules.ScopeOrg,
		ScopeID:   "org-1",
	})
	require.NoError(t, err)

	severity := rules.SeverityInfo
	_, err = svc.UpdateCustomRule(ctx, created.ID, UpdateCustomRuleRequest{
		Severity: &severity,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnknownRule(err))

	// The stored rule keeps its original shape.
	kept, err := svc.GetCustomRule(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, rules.SeverityCritical, kept.Severity)
}

func TestServiceUpdateCustomRule(t *testing.T) {
	svc, _, versioning := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateCustomRule(ctx, CreateCustomRuleRequest{
		RuleID:    "big_deal",
		Name:      "Big deal",
		Category:  rules.CategorySalesHygiene,
		Severity:  rules.SeverityInfo,
		Condition: rules.Leaf("amount", rules.OpGreaterThan, float64(100000)),
		Message:   "big",
		Scope:     rules.ScopeOrg,
		ScopeID:   "org-1",
	})
	require.NoError(t, err)

	name := "Very big deal"
	priority := 5
	enabled := false
	updated, err := svc.UpdateCustomRule(ctx, created.ID, UpdateCustomRuleRequest{
		Name:     &name,
		Priority: &priority,
		Enabled:  &enabled,
	})
	require.NoError(t, err)
	assert.Equal(t, "Very big deal", updated.Name)
	assert.Equal(t, 5, updated.Priority)
	assert.False(t, updated.Enabled)
	// Unset fields keep their values.
	assert.Equal(t, rules.SeverityInfo, updated.Severity)
	assert.Equal(t, "big_deal", updated.RuleID)

	require.Len(t, versioning.versions, 2)
	assert.Equal(t, 2, versioning.versions[1].Version)
	assert.Contains(t, versioning.audits[1].Details, "old_value")
}

func TestServiceUpdateCustomRule_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	name := "x"
	_, err := svc.UpdateCustomRule(context.Background(), "missing-id", UpdateCustomRuleRequest{Name: &name})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestServiceUpsertOverride(t *testing.T) {
	svc, _, versioning := newTestService(t)
	ctx := context.Background()

	enabled := false
	override, err := svc.UpsertOverride(ctx, "stale_activity", UpsertOverrideRequest{
		Scope:   rules.ScopeOrg,
		ScopeID: "org-1",
		Enabled: &enabled,
	})
	require.NoError(t, err)
	assert.Equal(t, "stale_activity", override.TargetRuleID)
	assert.False(t, override.Enabled)

	require.Len(t, versioning.versions, 1)
	assert.Equal(t, EntityOverride, versioning.versions[0].EntityType)
}

func TestServiceUpsertOverride_UnknownRule(t *testing.T) {
	svc, store, _ := newTestService(t)

	enabled := false
	_, err := svc.UpsertOverride(context.Background(), "no_such_rule", UpsertOverrideRequest{
		Scope:   rules.ScopeOrg,
		ScopeID: "org-1",
		Enabled: &enabled,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnknownRule(err))
	assert.Empty(t, store.overrides)
}

func TestServiceUpsertOverride_Conflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	enabled := false
	req := UpsertOverrideRequest{Scope: rules.ScopeUser, ScopeID: "user-1", Enabled: &enabled}

	_, err := svc.UpsertOverride(ctx, "stale_activity", req)
	require.NoError(t, err)

	_, err = svc.UpsertOverride(ctx, "stale_activity", req)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestServiceDeleteOverride(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	enabled := false
	_, err := svc.UpsertOverride(ctx, "stale_activity", UpsertOverrideRequest{
		Scope: rules.ScopeUser, ScopeID: "user-1", Enabled: &enabled,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOverride(ctx, "stale_activity", rules.ScopeUser, "user-1"))
	assert.Empty(t, store.overrides)

	err = svc.DeleteOverride(ctx, "stale_activity", rules.ScopeUser, "user-1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestServiceListGlobalRules_IncludesDisabled(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	enabled := false
	_, err := svc.UpsertOverride(ctx, "stale_activity", UpsertOverrideRequest{
		Scope: rules.ScopeOrg, ScopeID: "org-1", Enabled: &enabled,
	})
	require.NoError(t, err)

	global, err := svc.ListGlobalRules(ctx, "user-1", "org-1")
	require.NoError(t, err)
	require.Len(t, global, 2)

	effective, err := svc.ListEffectiveRules(ctx, "user-1", "org-1")
	require.NoError(t, err)
	require.Len(t, effective, 1)
	assert.Equal(t, "missing_close_date", effective[0].RuleID)
}

func TestServiceMetadata(t *testing.T) {
	svc, _, _ := newTestService(t)

	meta := svc.Metadata()
	assert.Len(t, meta.Operators, 19)
	assert.Contains(t, meta.Fields, "close_date")
	assert.Contains(t, meta.Stages, rules.StageAllExceptClosed)
	assert.Equal(t, rules.Categories(), meta.Categories)
	assert.Equal(t, rules.Severities(), meta.Severities)
	assert.Equal(t, []rules.Scope{rules.ScopeOrg, rules.ScopeUser}, meta.Scopes)
}

func TestServiceSummary(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	counts, err := svc.Summary(ctx, "user-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.TotalRules)
	assert.Equal(t, 2, counts.ByScope[rules.ScopeBucketGlobal])
}

func TestServiceAudit_RequiresVersioning(t *testing.T) {
	store := newFakeStore()
	svc := NewService(testServiceCatalog(t), store, store)

	_, err := svc.GetAuditLogs(context.Background(), nil, "", 10)
	require.Error(t, err)

	_, err = svc.GetRuleVersions(context.Background(), EntityCustomRule, "id")
	require.Error(t, err)
}
