package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	pkgerrors "warden/pkg/errors"
	"warden/pkg/metrics"
	"warden/pkg/models"
)

const (
	serviceName = "mirror-service"
	dbName      = "postgres"
)

const ruleColumns = `id, owner_id, name, description, category, condition, severity, status,
	log_only, catches, false_positives, effectiveness, source, is_deleted, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FetchAll(ctx context.Context, ownerID string) ([]models.Rule, error) {
	start := time.Now()

	query := fmt.Sprintf(`
		SELECT %s
		FROM rules
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ruleColumns)

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		metrics.IncDatabaseQuery(serviceName, dbName, "fetch_all", "error")
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrRemote)
	}
	defer rows.Close()

	var result []models.Rule
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, pkgerrors.Wrap(ctx.Err(), pkgerrors.ErrTimeout)
		default:
		}

		rule, err := scanRule(rows)
		if err != nil {
			metrics.IncDatabaseQuery(serviceName, dbName, "fetch_all", "error")
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrRemote)
		}
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		metrics.IncDatabaseQuery(serviceName, dbName, "fetch_all", "error")
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrRemote)
	}

	metrics.IncDatabaseQuery(serviceName, dbName, "fetch_all", "success")
	metrics.ObserveDatabaseQueryDuration(serviceName, dbName, "fetch_all", time.Since(start))
	return result, nil
}

func (s *PostgresStore) Create(ctx context.Context, req CreateRuleRequest) (*models.Rule, error) {
	now := time.Now()

	rule := models.Rule{
		ID:          uuid.New().String(),
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Condition:   req.Condition,
		Severity:    models.Severity(req.Severity),
		Status:      models.Status(req.Status),
		LogOnly:     req.LogOnly,
		Source:      models.Source(req.Source),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rule.Severity == "" {
		rule.Severity = models.SeverityMedium
	}
	if rule.Status == "" {
		rule.Status = models.StatusActive
	}
	if rule.Source == "" {
		rule.Source = models.SourceUser
	}

	query := `
		INSERT INTO rules (id, owner_id, name, description, category, condition, severity, status,
			log_only, source, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, $12)
	`

	_, err := s.db.ExecContext(ctx, query,
		rule.ID, rule.OwnerID, rule.Name, rule.Description, rule.Category,
		rule.Condition, rule.Severity, rule.Status, rule.LogOnly, rule.Source,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		metrics.IncDatabaseQuery(serviceName, dbName, "create", "error")
		if isUniqueViolation(err) {
			return nil, pkgerrors.ErrConflict.WithCause(err).
				WithDetail("message", fmt.Sprintf("rule with name %q already exists", rule.Name))
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrRemote)
	}

	metrics.IncDatabaseQuery(serviceName, dbName, "create", "success")
	return &rule, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, req UpdateRuleRequest) (*models.Rule, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req.ApplyTo(current)
	current.UpdatedAt = time.Now()

	query := `
		UPDATE rules
		SET name = $1, description = $2, category = $3, condition = $4,
			severity = $5, status = $6, log_only = $7, updated_at = $8
		WHERE id = $9
	`

	res, err := s.db.ExecContext(ctx, query,
		current.Name, current.Description, current.Category, current.Condition,
		current.Severity, current.Status, current.LogOnly, current.UpdatedAt, id,
	)
	if err != nil {
		metrics.IncDatabaseQuery(serviceName, dbName, "update", "error")
		if isUniqueViolation(err) {
			return nil, pkgerrors.ErrConflict.WithCause(err).
				WithDetail("message", fmt.Sprintf("rule with name %q already exists", current.Name))
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrRemote)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, pkgerrors.ErrNotFound.WithDetail("rule_id", id)
	}

	metrics.IncDatabaseQuery(serviceName, dbName, "update", "success")
	return current, nil
}

// SoftDelete marks the rule deleted and forces its status to inactive so a
// later recover does not silently re-arm it.
func (s *PostgresStore) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE rules
		SET is_deleted = TRUE, status = $1, updated_at = $2
		WHERE id = $3
	`

	res, err := s.db.ExecContext(ctx, query, models.StatusInactive, time.Now(), id)
	if err != nil {
		metrics.IncDatabaseQuery(serviceName, dbName, "soft_delete", "error")
		return pkgerrors.Wrap(err, pkgerrors.ErrRemote)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return pkgerrors.ErrNotFound.WithDetail("rule_id", id)
	}

	metrics.IncDatabaseQuery(serviceName, dbName, "soft_delete", "success")
	return nil
}

// Recover clears the deletion flag only; the status stays whatever soft-delete
// left behind.
func (s *PostgresStore) Recover(ctx context.Context, id string) error {
	query := `
		UPDATE rules
		SET is_deleted = FALSE, updated_at = $1
		WHERE id = $2
	`

	res, err := s.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		metrics.IncDatabaseQuery(serviceName, dbName, "recover", "error")
		if isUniqueViolation(err) {
			return pkgerrors.ErrConflict.WithCause(err).
				WithDetail("message", "an active rule with the same name already exists")
		}
		return pkgerrors.Wrap(err, pkgerrors.ErrRemote)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return pkgerrors.ErrNotFound.WithDetail("rule_id", id)
	}

	metrics.IncDatabaseQuery(serviceName, dbName, "recover", "success")
	return nil
}

func (s *PostgresStore) PermanentDelete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		metrics.IncDatabaseQuery(serviceName, dbName, "permanent_delete", "error")
		return pkgerrors.Wrap(err, pkgerrors.ErrRemote)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return pkgerrors.ErrNotFound.WithDetail("rule_id", id)
	}

	metrics.IncDatabaseQuery(serviceName, dbName, "permanent_delete", "success")
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Rule, error) {
	query := fmt.Sprintf(`SELECT %s FROM rules WHERE id = $1`, ruleColumns)

	rule, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("rule_id", id)
	}
	if err != nil {
		metrics.IncDatabaseQuery(serviceName, dbName, "get", "error")
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrRemote)
	}

	metrics.IncDatabaseQuery(serviceName, dbName, "get", "success")
	return &rule, nil
}

// Live rule names are unique per owner (idx_rules_owner_name, which excludes
// soft-deleted rows).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (models.Rule, error) {
	var rule models.Rule
	err := row.Scan(
		&rule.ID, &rule.OwnerID, &rule.Name, &rule.Description, &rule.Category,
		&rule.Condition, &rule.Severity, &rule.Status, &rule.LogOnly,
		&rule.Catches, &rule.FalsePositives, &rule.Effectiveness, &rule.Source,
		&rule.IsDeleted, &rule.CreatedAt, &rule.UpdatedAt,
	)
	return rule, err
}
