package management

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"dealguard/internal/constants"
	"dealguard/internal/rules"
	pkgerrors "dealguard/pkg/errors"
	"dealguard/pkg/metrics"
)

// CustomRuleRepository stores tenant-authored rules.
type CustomRuleRepository interface {
	CreateCustomRule(ctx context.Context, rule *rules.CustomRule) error
	GetCustomRule(ctx context.Context, id string) (*rules.CustomRule, error)
	UpdateCustomRule(ctx context.Context, rule *rules.CustomRule) error
	DeleteCustomRule(ctx context.Context, id string) error
	ListCustomRules(ctx context.Context, userID, orgID string) ([]rules.CustomRule, error)
}

// OverrideRepository stores per-tenant overrides of catalog rules.
type OverrideRepository interface {
	CreateOverride(ctx context.Context, override *rules.GlobalRuleOverride) error
	GetOverride(ctx context.Context, targetRuleID string, scope rules.Scope, scopeID string) (*rules.GlobalRuleOverride, error)
	DeleteOverride(ctx context.Context, targetRuleID string, scope rules.Scope, scopeID string) error
	ListOverrides(ctx context.Context, userID, orgID string) ([]rules.GlobalRuleOverride, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateCustomRule(ctx context.Context, rule *rules.CustomRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	conditionJSON, err := json.Marshal(rule.Condition)
	if err != nil {
		return fmt.Errorf("failed to marshal condition: %w", err)
	}
	stagesJSON, err := json.Marshal(stagesOrEmpty(rule.ApplicableStages))
	if err != nil {
		return fmt.Errorf("failed to marshal applicable stages: %w", err)
	}

	query := `
		INSERT INTO custom_rules (
			id, rule_id, scope, scope_id, name, category, severity, description,
			condition, message, remediation, remediation_owner, automatable,
			applicable_stages, priority, enabled, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	start := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.RuleID, rule.Scope, rule.ScopeID, rule.Name,
		rule.Category, rule.Severity, rule.Description,
		conditionJSON, rule.Message, rule.Remediation, rule.RemediationOwner,
		rule.Automatable, stagesJSON, rule.Priority, rule.Enabled,
		rule.CreatedAt, rule.UpdatedAt,
	)
	r.observe("custom_rules_insert", start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message",
				fmt.Sprintf("custom rule '%s' already exists for %s '%s'", rule.RuleID, rule.Scope, rule.ScopeID))
		}
		return fmt.Errorf("failed to create custom rule: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetCustomRule(ctx context.Context, id string) (*rules.CustomRule, error) {
	query := `
		SELECT id, rule_id, scope, scope_id, name, category, severity, description,
		       condition, message, remediation, remediation_owner, automatable,
		       applicable_stages, priority, enabled, created_at, updated_at
		FROM custom_rules
		WHERE id = $1
	`

	start := time.Now()
	row := r.db.QueryRowContext(ctx, query, id)
	rule, err := scanCustomRule(row)
	r.observe("custom_rules_get", start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get custom rule: %w", err)
	}

	return rule, nil
}

func (r *PostgresRepository) UpdateCustomRule(ctx context.Context, rule *rules.CustomRule) error {
	rule.UpdatedAt = time.Now()

	conditionJSON, err := json.Marshal(rule.Condition)
	if err != nil {
		return fmt.Errorf("failed to marshal condition: %w", err)
	}
	stagesJSON, err := json.Marshal(stagesOrEmpty(rule.ApplicableStages))
	if err != nil {
		return fmt.Errorf("failed to marshal applicable stages: %w", err)
	}

	query := `
		UPDATE custom_rules
		SET name = $1, category = $2, severity = $3, description = $4,
		    condition = $5, message = $6, remediation = $7, remediation_owner = $8,
		    automatable = $9, applicable_stages = $10, priority = $11, enabled = $12,
		    updated_at = $13
		WHERE id = $14
	`

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query,
		rule.Name, rule.Category, rule.Severity, rule.Description,
		conditionJSON, rule.Message, rule.Remediation, rule.RemediationOwner,
		rule.Automatable, stagesJSON, rule.Priority, rule.Enabled,
		rule.UpdatedAt, rule.ID,
	)
	r.observe("custom_rules_update", start, err)
	if err != nil {
		return fmt.Errorf("failed to update custom rule: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.ErrNotFound.WithDetail("id", rule.ID)
	}

	return nil
}

func (r *PostgresRepository) DeleteCustomRule(ctx context.Context, id string) error {
	query := `DELETE FROM custom_rules WHERE id = $1`

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query, id)
	r.observe("custom_rules_delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete custom rule: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	return nil
}

func (r *PostgresRepository) ListCustomRules(ctx context.Context, userID, orgID string) ([]rules.CustomRule, error) {
	query := `
		SELECT id, rule_id, scope, scope_id, name, category, severity, description,
		       condition, message, remediation, remediation_owner, automatable,
		       applicable_stages, priority, enabled, created_at, updated_at
		FROM custom_rules
		WHERE (scope = 'user' AND scope_id = $1) OR (scope = 'org' AND scope_id = $2)
		ORDER BY priority ASC, rule_id ASC
	`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, userID, orgID)
	r.observe("custom_rules_list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom rules: %w", err)
	}
	defer rows.Close()

	var out []rules.CustomRule
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		rule, err := scanCustomRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan custom rule: %w", err)
		}
		out = append(out, *rule)
	}

	return out, rows.Err()
}

func (r *PostgresRepository) CreateOverride(ctx context.Context, override *rules.GlobalRuleOverride) error {
	if override.ID == "" {
		override.ID = uuid.New().String()
	}
	now := time.Now()
	override.CreatedAt = now
	override.UpdatedAt = now

	thresholdsJSON, err := json.Marshal(thresholdsOrEmpty(override.ThresholdOverrides))
	if err != nil {
		return fmt.Errorf("failed to marshal threshold overrides: %w", err)
	}

	query := `
		INSERT INTO rule_overrides (id, target_rule_id, scope, scope_id, enabled, threshold_overrides, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	start := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		override.ID, override.TargetRuleID, override.Scope, override.ScopeID,
		override.Enabled, thresholdsJSON, override.CreatedAt, override.UpdatedAt,
	)
	r.observe("rule_overrides_insert", start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message",
				fmt.Sprintf("override of '%s' already exists for %s '%s'", override.TargetRuleID, override.Scope, override.ScopeID))
		}
		return fmt.Errorf("failed to create override: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetOverride(ctx context.Context, targetRuleID string, scope rules.Scope, scopeID string) (*rules.GlobalRuleOverride, error) {
	query := `
		SELECT id, target_rule_id, scope, scope_id, enabled, threshold_overrides, created_at, updated_at
		FROM rule_overrides
		WHERE target_rule_id = $1 AND scope = $2 AND scope_id = $3
	`

	start := time.Now()
	row := r.db.QueryRowContext(ctx, query, targetRuleID, scope, scopeID)
	override, err := scanOverride(row)
	r.observe("rule_overrides_get", start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("target_rule_id", targetRuleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get override: %w", err)
	}

	return override, nil
}

func (r *PostgresRepository) DeleteOverride(ctx context.Context, targetRuleID string, scope rules.Scope, scopeID string) error {
	query := `DELETE FROM rule_overrides WHERE target_rule_id = $1 AND scope = $2 AND scope_id = $3`

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query, targetRuleID, scope, scopeID)
	r.observe("rule_overrides_delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.ErrNotFound.WithDetail("target_rule_id", targetRuleID)
	}

	return nil
}

func (r *PostgresRepository) ListOverrides(ctx context.Context, userID, orgID string) ([]rules.GlobalRuleOverride, error) {
	query := `
		SELECT id, target_rule_id, scope, scope_id, enabled, threshold_overrides, created_at, updated_at
		FROM rule_overrides
		WHERE (scope = 'user' AND scope_id = $1) OR (scope = 'org' AND scope_id = $2)
		ORDER BY target_rule_id ASC
	`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, userID, orgID)
	r.observe("rule_overrides_list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var out []rules.GlobalRuleOverride
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		override, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		out = append(out, *override)
	}

	return out, rows.Err()
}

func (r *PostgresRepository) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery(constants.ServiceName, "postgres", operation, status)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, "postgres", operation, time.Since(start))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomRule(row rowScanner) (*rules.CustomRule, error) {
	var rule rules.CustomRule
	var conditionJSON, stagesJSON []byte

	err := row.Scan(
		&rule.ID, &rule.RuleID, &rule.Scope, &rule.ScopeID, &rule.Name,
		&rule.Category, &rule.Severity, &rule.Description,
		&conditionJSON, &rule.Message, &rule.Remediation, &rule.RemediationOwner,
		&rule.Automatable, &stagesJSON, &rule.Priority, &rule.Enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(conditionJSON, &rule.Condition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal condition: %w", err)
	}
	if err := json.Unmarshal(stagesJSON, &rule.ApplicableStages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal applicable stages: %w", err)
	}

	return &rule, nil
}

func scanOverride(row rowScanner) (*rules.GlobalRuleOverride, error) {
	var override rules.GlobalRuleOverride
	var thresholdsJSON []byte

	err := row.Scan(
		&override.ID, &override.TargetRuleID, &override.Scope, &override.ScopeID,
		&override.Enabled, &thresholdsJSON, &override.CreatedAt, &override.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(thresholdsJSON, &override.ThresholdOverrides); err != nil {
		return nil, fmt.Errorf("failed to unmarshal threshold overrides: %w", err)
	}

	return &override, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func stagesOrEmpty(stages []string) []string {
	if stages == nil {
		return []string{}
	}
	return stages
}

func thresholdsOrEmpty(thresholds map[string]interface{}) map[string]interface{} {
	if thresholds == nil {
		return map[string]interface{}{}
	}
	return thresholds
}
