package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on the workflows table. The draft, the
// version history and the enrollment gate live in one JSONB document.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type document struct {
	Description string      `json:"description,omitempty"`
	Draft       *Definition `json:"draft"`
	Versions    []*Version  `json:"versions"`
	Enrollment  Enrollment  `json:"enrollment"`
}

func encodeDocument(m *Meta) ([]byte, error) {
	data, err := json.Marshal(document{
		Description: m.Description,
		Draft:       m.Draft,
		Versions:    m.Versions,
		Enrollment:  m.Enrollment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow %s: %w", m.ID, err)
	}
	return data, nil
}

func (s *PostgresStore) Create(ctx context.Context, m *Meta) error {
	doc, err := encodeDocument(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, account_type, name, is_active, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.AccountType, m.Name, m.IsActive, doc, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: workflow %s already exists", ErrInvalid, m.ID)
		}
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

const workflowColumns = `id, account_type, name, is_active, document, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeta(row rowScanner) (*Meta, error) {
	var (
		m   Meta
		raw []byte
		doc document
	)
	if err := row.Scan(&m.ID, &m.AccountType, &m.Name, &m.IsActive, &raw, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", m.ID, err)
	}
	m.Description = doc.Description
	m.Draft = doc.Draft
	m.Versions = doc.Versions
	m.Enrollment = doc.Enrollment
	if m.Draft == nil {
		m.Draft = &Definition{}
	}
	return &m, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Meta, error) {
	m, err := scanMeta(s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Meta, error) {
	return s.query(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY updated_at DESC, name ASC`)
}

func (s *PostgresStore) ListByAccountType(ctx context.Context, accountType AccountType) ([]*Meta, error) {
	return s.query(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE account_type = $1
		ORDER BY updated_at DESC, name ASC`, accountType)
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*Meta, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var out []*Meta
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, m *Meta) error {
	doc, err := encodeDocument(m)
	if err != nil {
		return err
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows
		SET account_type = $1, name = $2, is_active = $3, document = $4, updated_at = $5
		WHERE id = $6
	`, m.AccountType, m.Name, m.IsActive, doc, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: workflow %s", ErrNotFound, m.ID)
	}
	return nil
}
