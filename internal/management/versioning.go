package management

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entity type discriminators shared by rule_versions and rule_audit_logs.
const (
	EntityOverride   = "override"
	EntityCustomRule = "custom_rule"
)

// RuleVersion is one immutable snapshot of an override or custom rule, taken
// on every write.
type RuleVersion struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Version    int                    `json:"version"`
	Snapshot   map[string]interface{} `json:"snapshot"`
	ChangedBy  string                 `json:"changed_by,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// AuditLog records who did what to which rule entity.
type AuditLog struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Action     string                 `json:"action"`
	ChangedBy  string                 `json:"changed_by"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

type VersioningRepository interface {
	CreateVersion(ctx context.Context, version *RuleVersion) error
	GetVersions(ctx context.Context, entityType, entityID string) ([]RuleVersion, error)
	GetNextVersion(ctx context.Context, entityType, entityID string) (int, error)
	CreateAuditLog(ctx context.Context, log *AuditLog) error
	GetAuditLogs(ctx context.Context, entityID *string, entityType string, limit int) ([]AuditLog, error)
}

type postgresVersioningRepository struct {
	db *sql.DB
}

func NewVersioningRepository(db *sql.DB) VersioningRepository {
	return &postgresVersioningRepository{db: db}
}

func (r *postgresVersioningRepository) CreateVersion(ctx context.Context, version *RuleVersion) error {
	if version.ID == "" {
		version.ID = uuid.New().String()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now()
	}

	snapshotJSON, err := json.Marshal(version.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO rule_versions (id, entity_type, entity_id, version, snapshot, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		version.ID, version.EntityType, version.EntityID,
		version.Version, snapshotJSON, version.ChangedBy, version.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule version: %w", err)
	}

	return nil
}

func (r *postgresVersioningRepository) GetVersions(ctx context.Context, entityType, entityID string) ([]RuleVersion, error) {
	query := `
		SELECT id, entity_type, entity_id, version, snapshot, changed_by, created_at
		FROM rule_versions
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY version DESC
	`

	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var versions []RuleVersion
	for rows.Next() {
		var v RuleVersion
		var snapshotJSON []byte
		if err := rows.Scan(
			&v.ID, &v.EntityType, &v.EntityID,
			&v.Version, &snapshotJSON, &v.ChangedBy, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		if err := json.Unmarshal(snapshotJSON, &v.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

func (r *postgresVersioningRepository) GetNextVersion(ctx context.Context, entityType, entityID string) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) + 1 FROM rule_versions WHERE entity_type = $1 AND entity_id = $2`

	var version int
	if err := r.db.QueryRowContext(ctx, query, entityType, entityID).Scan(&version); err != nil {
		return 1, nil
	}

	return version, nil
}

func (r *postgresVersioningRepository) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	if log.Details == nil {
		log.Details = map[string]interface{}{}
	}

	detailsJSON, err := json.Marshal(log.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	query := `
		INSERT INTO rule_audit_logs (id, entity_type, entity_id, action, changed_by, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		log.ID, log.EntityType, log.EntityID, log.Action,
		log.ChangedBy, detailsJSON, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

func (r *postgresVersioningRepository) GetAuditLogs(ctx context.Context, entityID *string, entityType string, limit int) ([]AuditLog, error) {
	var query string
	var args []interface{}

	switch {
	case entityID != nil:
		query = `
			SELECT id, entity_type, entity_id, action, changed_by, details, created_at
			FROM rule_audit_logs
			WHERE entity_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		`
		args = []interface{}{*entityID, limit}
	case entityType != "":
		query = `
			SELECT id, entity_type, entity_id, action, changed_by, details, created_at
			FROM rule_audit_logs
			WHERE entity_type = $1
			ORDER BY created_at DESC
			LIMIT $2
		`
		args = []interface{}{entityType, limit}
	default:
		query = `
			SELECT id, entity_type, entity_id, action, changed_by, details, created_at
			FROM rule_audit_logs
			ORDER BY created_at DESC
			LIMIT $1
		`
		args = []interface{}{limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var entry AuditLog
		var detailsJSON []byte
		if err := rows.Scan(
			&entry.ID, &entry.EntityType, &entry.EntityID, &entry.Action,
			&entry.ChangedBy, &detailsJSON, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

func entityToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
