package management

import (
	"context"
	"errors"

	"dealguard/internal/constants"
	"dealguard/internal/rules"
	pkgerrors "dealguard/pkg/errors"
	"dealguard/pkg/metrics"
	"dealguard/pkg/models"
)

type service struct {
	catalog        *rules.Catalog
	customRepo     CustomRuleRepository
	overrideRepo   OverrideRepository
	versioningRepo VersioningRepository
	eventProducer  *RuleEventProducer
	auditEnabled   bool
}

type ServiceOption func(*service)

func WithVersioning(versioningRepo VersioningRepository) ServiceOption {
	return func(s *service) {
		s.versioningRepo = versioningRepo
		s.auditEnabled = true
	}
}

func WithRuleEvents(eventProducer *RuleEventProducer) ServiceOption {
	return func(s *service) {
		s.eventProducer = eventProducer
	}
}

func NewService(catalog *rules.Catalog, customRepo CustomRuleRepository, overrideRepo OverrideRepository, opts ...ServiceOption) Service {
	s := &service{
		catalog:      catalog,
		customRepo:   customRepo,
		overrideRepo: overrideRepo,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) ListEffectiveRules(ctx context.Context, userID, orgID string) ([]rules.EffectiveRule, error) {
	overrides, err := s.overrideRepo.ListOverrides(ctx, userID, orgID)
	if err != nil {
		return nil, wrapInternal(err)
	}
	customRules, err := s.customRepo.ListCustomRules(ctx, userID, orgID)
	if err != nil {
		return nil, wrapInternal(err)
	}

	effective := rules.Resolve(s.catalog.Rules(), overrides, customRules, userID, orgID)
	metrics.EffectiveRulesResolved.Observe(float64(len(effective)))
	return effective, nil
}

func (s *service) ListGlobalRules(ctx context.Context, userID, orgID string) ([]rules.EffectiveRule, error) {
	overrides, err := s.overrideRepo.ListOverrides(ctx, userID, orgID)
	if err != nil {
		return nil, wrapInternal(err)
	}
	return rules.GlobalView(s.catalog.Rules(), overrides, userID, orgID), nil
}

func (s *service) ListCustomRules(ctx context.Context, userID, orgID string) ([]rules.CustomRule, error) {
	customRules, err := s.customRepo.ListCustomRules(ctx, userID, orgID)
	if err != nil {
		return nil, wrapInternal(err)
	}
	return customRules, nil
}

func (s *service) CreateCustomRule(ctx context.Context, req CreateCustomRuleRequest) (*rules.CustomRule, error) {
	if err := ValidateCustomRule(req); err != nil {
		metrics.IncRuleWrite("custom_rule", "create", "rejected")
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}
	if err := s.checkCatalogCollision(req.RuleID, req.Category, req.Severity); err != nil {
		metrics.IncRuleWrite("custom_rule", "create", "rejected")
		return nil, err
	}

	rule := &rules.CustomRule{
		RuleDefinition: rules.RuleDefinition{
			RuleID:           req.RuleID,
			Name:             req.Name,
			Category:         req.Category,
			Severity:         req.Severity,
			Description:      req.Description,
			Condition:        req.Condition,
			Message:          req.Message,
			Remediation:      req.Remediation,
			RemediationOwner: req.RemediationOwner,
			Automatable:      req.Automatable,
			ApplicableStages: req.ApplicableStages,
			Enabled:          enabledOrDefault(req.Enabled),
		},
		Scope:    req.Scope,
		ScopeID:  req.ScopeID,
		Priority: priorityOrDefault(req.Priority),
	}

	if err := s.customRepo.CreateCustomRule(ctx, rule); err != nil {
		metrics.IncRuleWrite("custom_rule", "create", writeStatus(err))
		return nil, wrapInternal(err)
	}
	metrics.IncRuleWrite("custom_rule", "create", "success")

	s.recordCustomRuleWrite(ctx, rule, "create", nil)
	s.publishCustomRuleEvent(ctx, models.EventTypeCustomRuleCreated, rule)

	return rule, nil
}

// checkCatalogCollision gates custom rules that reuse a catalog rule id.
// Reuse with the catalog's category and severity replaces the global rule;
// a mismatched shape is a different rule wearing a known id and is rejected.
func (s *service) checkCatalogCollision(ruleID string, category rules.Category, severity rules.Severity) error {
	def, exists := s.catalog.Get(ruleID)
	if !exists {
		return nil
	}
	if def.Category != category || def.Severity != severity {
		return pkgerrors.ErrUnknownRule.
			WithDetail("rule_id", ruleID).
			WithDetail("message", "rule id collides with a catalog rule of a different category or severity")
	}
	return nil
}

func (s *service) GetCustomRule(ctx context.Context, id string) (*rules.CustomRule, error) {
	rule, err := s.customRepo.GetCustomRule(ctx, id)
	if err != nil {
		return nil, wrapInternal(err)
	}
	return rule, nil
}

func (s *service) UpdateCustomRule(ctx context.Context, id string, req UpdateCustomRuleRequest) (*rules.CustomRule, error) {
	if err := ValidateUpdateCustomRule(req); err != nil {
		metrics.IncRuleWrite("custom_rule", "update", "rejected")
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	rule, err := s.customRepo.GetCustomRule(ctx, id)
	if err != nil {
		return nil, wrapInternal(err)
	}

	oldValue, _ := entityToMap(rule)
	applyCustomRuleUpdate(rule, req)

	if err := s.checkCatalogCollision(rule.RuleID, rule.Category, rule.Severity); err != nil {
		metrics.IncRuleWrite("custom_rule", "update", "rejected")
		return nil, err
	}

	if err := s.customRepo.UpdateCustomRule(ctx, rule); err != nil {
		metrics.IncRuleWrite("custom_rule", "update", writeStatus(err))
		return nil, wrapInternal(err)
	}
	metrics.IncRuleWrite("custom_rule", "update", "success")

	s.recordCustomRuleWrite(ctx, rule, "update", oldValue)
	s.publishCustomRuleEvent(ctx, models.EventTypeCustomRuleUpdated, rule)

	return rule, nil
}

func (s *service) DeleteCustomRule(ctx context.Context, id string) error {
	rule, err := s.customRepo.GetCustomRule(ctx, id)
	if err != nil {
		return wrapInternal(err)
	}

	oldValue, _ := entityToMap(rule)

	if err := s.customRepo.DeleteCustomRule(ctx, id); err != nil {
		metrics.IncRuleWrite("custom_rule", "delete", writeStatus(err))
		return wrapInternal(err)
	}
	metrics.IncRuleWrite("custom_rule", "delete", "success")

	s.recordAudit(ctx, EntityCustomRule, id, "delete", map[string]interface{}{"old_value": oldValue})
	s.publishCustomRuleEvent(ctx, models.EventTypeCustomRuleDeleted, rule)

	return nil
}

func (s *service) UpsertOverride(ctx context.Context, targetRuleID string, req UpsertOverrideRequest) (*rules.GlobalRuleOverride, error) {
	if err := ValidateOverride(req); err != nil {
		metrics.IncRuleWrite("override", "create", "rejected")
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}
	if _, known := s.catalog.Get(targetRuleID); !known {
		metrics.IncRuleWrite("override", "create", "rejected")
		return nil, pkgerrors.ErrUnknownRule.WithDetail("target_rule_id", targetRuleID)
	}

	override := &rules.GlobalRuleOverride{
		TargetRuleID:       targetRuleID,
		Scope:              req.Scope,
		ScopeID:            req.ScopeID,
		Enabled:            *req.Enabled,
		ThresholdOverrides: req.ThresholdOverrides,
	}

	if err := s.overrideRepo.CreateOverride(ctx, override); err != nil {
		metrics.IncRuleWrite("override", "create", writeStatus(err))
		return nil, wrapInternal(err)
	}
	metrics.IncRuleWrite("override", "create", "success")

	s.recordOverrideWrite(ctx, override, "create")
	s.publishOverrideEvent(ctx, models.EventTypeOverrideUpserted, override)

	return override, nil
}

func (s *service) DeleteOverride(ctx context.Context, targetRuleID string, scope rules.Scope, scopeID string) error {
	override, err := s.overrideRepo.GetOverride(ctx, targetRuleID, scope, scopeID)
	if err != nil {
		return wrapInternal(err)
	}

	if err := s.overrideRepo.DeleteOverride(ctx, targetRuleID, scope, scopeID); err != nil {
		metrics.IncRuleWrite("override", "delete", writeStatus(err))
		return wrapInternal(err)
	}
	metrics.IncRuleWrite("override", "delete", "success")

	oldValue, _ := entityToMap(override)
	s.recordAudit(ctx, EntityOverride, override.ID, "delete", map[string]interface{}{"old_value": oldValue})
	s.publishOverrideEvent(ctx, models.EventTypeOverrideDeleted, override)

	return nil
}

func (s *service) Metadata() MetadataResponse {
	return MetadataResponse{
		Operators:         rules.OperatorCatalog(),
		Fields:            FieldVocabulary(),
		Stages:            StageVocabulary(),
		Categories:        rules.Categories(),
		Severities:        rules.Severities(),
		RemediationOwners: rules.RemediationOwners(),
		Scopes:            []rules.Scope{rules.ScopeOrg, rules.ScopeUser},
	}
}

func (s *service) Summary(ctx context.Context, userID, orgID string) (*rules.RuleCounts, error) {
	effective, err := s.ListEffectiveRules(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	counts := rules.SummarizeRules(effective)
	return &counts, nil
}

func (s *service) GetRuleVersions(ctx context.Context, entityType, entityID string) ([]RuleVersion, error) {
	if s.versioningRepo == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "versioning not enabled")
	}
	versions, err := s.versioningRepo.GetVersions(ctx, entityType, entityID)
	if err != nil {
		return nil, wrapInternal(err)
	}
	return versions, nil
}

func (s *service) GetAuditLogs(ctx context.Context, entityID *string, entityType string, limit int) ([]AuditLog, error) {
	if s.versioningRepo == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "audit logging not enabled")
	}
	if limit <= 0 || limit > constants.MaxLimit {
		limit = constants.DefaultLimit
	}
	logs, err := s.versioningRepo.GetAuditLogs(ctx, entityID, entityType, limit)
	if err != nil {
		return nil, wrapInternal(err)
	}
	return logs, nil
}

// recordCustomRuleWrite snapshots the rule and appends an audit entry. Both
// are best-effort; a failed audit write never fails the request that
// already committed.
func (s *service) recordCustomRuleWrite(ctx context.Context, rule *rules.CustomRule, action string, oldValue map[string]interface{}) {
	if !s.auditEnabled || s.versioningRepo == nil {
		return
	}

	snapshot, err := entityToMap(rule)
	if err != nil {
		return
	}

	version, _ := s.versioningRepo.GetNextVersion(ctx, EntityCustomRule, rule.ID)
	_ = s.versioningRepo.CreateVersion(ctx, &RuleVersion{
		EntityType: EntityCustomRule,
		EntityID:   rule.ID,
		Version:    version,
		Snapshot:   snapshot,
		ChangedBy:  getChangedBy(ctx),
	})

	details := map[string]interface{}{"new_value": snapshot}
	if oldValue != nil {
		details["old_value"] = oldValue
	}
	s.recordAudit(ctx, EntityCustomRule, rule.ID, action, details)
}

func (s *service) recordOverrideWrite(ctx context.Context, override *rules.GlobalRuleOverride, action string) {
	if !s.auditEnabled || s.versioningRepo == nil {
		return
	}

	snapshot, err := entityToMap(override)
	if err != nil {
		return
	}

	version, _ := s.versioningRepo.GetNextVersion(ctx, EntityOverride, override.ID)
	_ = s.versioningRepo.CreateVersion(ctx, &RuleVersion{
		EntityType: EntityOverride,
		EntityID:   override.ID,
		Version:    version,
		Snapshot:   snapshot,
		ChangedBy:  getChangedBy(ctx),
	})

	s.recordAudit(ctx, EntityOverride, override.ID, action, map[string]interface{}{"new_value": snapshot})
}

func (s *service) recordAudit(ctx context.Context, entityType, entityID, action string, details map[string]interface{}) {
	if !s.auditEnabled || s.versioningRepo == nil {
		return
	}
	_ = s.versioningRepo.CreateAuditLog(ctx, &AuditLog{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ChangedBy:  getChangedBy(ctx),
		Details:    details,
	})
}

func (s *service) publishCustomRuleEvent(ctx context.Context, eventType string, rule *rules.CustomRule) {
	if s.eventProducer != nil {
		_ = s.eventProducer.PublishCustomRuleEvent(ctx, eventType, rule, getChangedBy(ctx))
	}
}

func (s *service) publishOverrideEvent(ctx context.Context, eventType string, override *rules.GlobalRuleOverride) {
	if s.eventProducer != nil {
		_ = s.eventProducer.PublishOverrideEvent(ctx, eventType, override, getChangedBy(ctx))
	}
}

func applyCustomRuleUpdate(rule *rules.CustomRule, req UpdateCustomRuleRequest) {
	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Category != nil {
		rule.Category = *req.Category
	}
	if req.Severity != nil {
		rule.Severity = *req.Severity
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.Condition != nil {
		rule.Condition = req.Condition
	}
	if req.Message != nil {
		rule.Message = *req.Message
	}
	if req.Remediation != nil {
		rule.Remediation = *req.Remediation
	}
	if req.RemediationOwner != nil {
		rule.RemediationOwner = *req.RemediationOwner
	}
	if req.Automatable != nil {
		rule.Automatable = *req.Automatable
	}
	if req.ApplicableStages != nil {
		rule.ApplicableStages = *req.ApplicableStages
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
}

// wrapInternal keeps typed repository errors (not found, conflict) intact and
// maps everything else to a 500.
func wrapInternal(err error) error {
	if err == nil {
		return nil
	}
	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
}

func writeStatus(err error) string {
	if pkgerrors.IsConflict(err) {
		return "conflict"
	}
	return "error"
}

func enabledOrDefault(enabled *bool) bool {
	if enabled == nil {
		return true
	}
	return *enabled
}

func priorityOrDefault(priority *int) int {
	if priority == nil {
		return 50
	}
	return *priority
}

func getChangedBy(ctx context.Context) string {
	if userID := ctx.Value("user_id"); userID != nil {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return "system"
}
