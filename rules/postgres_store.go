package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgreSQL error codes mapped onto store sentinels.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

var _ RuleStore = (*PostgresRuleStore)(nil)

// PostgresRuleStore implements RuleStore on the insurance_groups and rules
// tables. Rule codes come from the rule_code_seq sequence.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a store over an open database handle.
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

// mapPQError turns constraint violations into ErrDuplicate / ErrNotFound.
func mapPQError(err error, what string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, what)
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s references a missing insurance group", ErrNotFound, what)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *PostgresRuleStore) CreateGroup(ctx context.Context, g *InsuranceGroup) error {
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insurance_groups (id, name, updated_at)
		VALUES ($1, $2, $3)
	`, g.ID, g.Name, g.UpdatedAt)
	if err != nil {
		return mapPQError(err, fmt.Sprintf("insurance group %q", g.Name))
	}
	return nil
}

func (s *PostgresRuleStore) GetGroup(ctx context.Context, id string) (*InsuranceGroup, error) {
	var g InsuranceGroup
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, updated_at FROM insurance_groups WHERE id = $1
	`, id).Scan(&g.ID, &g.Name, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: insurance group %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insurance group: %w", err)
	}
	return &g, nil
}

func (s *PostgresRuleStore) ListGroups(ctx context.Context) ([]*InsuranceGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, updated_at FROM insurance_groups
		ORDER BY updated_at DESC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list insurance groups: %w", err)
	}
	defer rows.Close()

	var out []*InsuranceGroup
	for rows.Next() {
		var g InsuranceGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan insurance group: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (s *PostgresRuleStore) UpdateGroup(ctx context.Context, g *InsuranceGroup) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE insurance_groups SET name = $1, updated_at = $2 WHERE id = $3
	`, g.Name, g.UpdatedAt, g.ID)
	if err != nil {
		return mapPQError(err, fmt.Sprintf("insurance group %q", g.Name))
	}
	return expectOneRow(res, fmt.Sprintf("insurance group %s", g.ID))
}

const ruleColumns = `id, rule_code, insurance_group_id, is_active, created_at, updated_at,
	insurance_name, plan_type, network_status, clinic_name, group_id, policy_id,
	policy_match_type, status_to_set`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var r Rule
	err := row.Scan(
		&r.ID, &r.RuleCode, &r.InsuranceGroupID, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
		&r.Scope.InsuranceName, &r.Scope.PlanType, &r.Scope.NetworkStatus, &r.Scope.ClinicName,
		&r.Scope.GroupID, &r.Scope.PolicyID, &r.PolicyMatchType, &r.Action.StatusToSet,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresRuleStore) Add(ctx context.Context, r *Rule) error {
	if r.RuleCode == "" {
		code, err := s.NextCode(ctx)
		if err != nil {
			return err
		}
		r.RuleCode = code
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, r.ID, r.RuleCode, r.InsuranceGroupID, r.IsActive, r.CreatedAt, r.UpdatedAt,
		r.Scope.InsuranceName, r.Scope.PlanType, r.Scope.NetworkStatus, r.Scope.ClinicName,
		r.Scope.GroupID, r.Scope.PolicyID, r.PolicyMatchType, r.Action.StatusToSet)
	if err != nil {
		return mapPQError(err, fmt.Sprintf("rule %s", r.RuleCode))
	}

	// Keep the sequence ahead of codes supplied by imports.
	if n, ok := ParseRuleCode(r.RuleCode); ok {
		if _, err := tx.ExecContext(ctx, `
			SELECT setval('rule_code_seq', GREATEST($1, (SELECT last_value FROM rule_code_seq)))
		`, n); err != nil {
			return fmt.Errorf("failed to advance rule code sequence: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return r, nil
}

func (s *PostgresRuleStore) GetByCode(ctx context.Context, code string) (*Rule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE rule_code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule code %s", ErrNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return r, nil
}

func (s *PostgresRuleStore) List(ctx context.Context) ([]*Rule, error) {
	return s.query(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY created_at DESC, rule_code DESC`)
}

func (s *PostgresRuleStore) ListByGroup(ctx context.Context, groupID string) ([]*Rule, error) {
	return s.query(ctx, `SELECT `+ruleColumns+` FROM rules WHERE insurance_group_id = $1
		ORDER BY created_at DESC, rule_code DESC`, groupID)
}

func (s *PostgresRuleStore) ListActive(ctx context.Context) ([]*Rule, error) {
	return s.query(ctx, `SELECT `+ruleColumns+` FROM rules WHERE is_active = true
		ORDER BY created_at DESC, rule_code DESC`)
}

func (s *PostgresRuleStore) query(ctx context.Context, q string, args ...any) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return out, nil
}

func (s *PostgresRuleStore) Update(ctx context.Context, r *Rule) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	err := s.db.QueryRowContext(ctx, `
		UPDATE rules
		SET is_active = $1, updated_at = $2, insurance_name = $3, plan_type = $4,
			network_status = $5, clinic_name = $6, group_id = $7, policy_id = $8,
			policy_match_type = $9, status_to_set = $10
		WHERE id = $11
		RETURNING rule_code, created_at
	`, r.IsActive, r.UpdatedAt, r.Scope.InsuranceName, r.Scope.PlanType,
		r.Scope.NetworkStatus, r.Scope.ClinicName, r.Scope.GroupID, r.Scope.PolicyID,
		r.PolicyMatchType, r.Action.StatusToSet, r.ID).Scan(&r.RuleCode, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: rule %s", ErrNotFound, r.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

func (s *PostgresRuleStore) NextCode(ctx context.Context) (string, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('rule_code_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("failed to reserve rule code: %w", err)
	}
	return FormatRuleCode(n), nil
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return nil
}
