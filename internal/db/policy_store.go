package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/marianozunino/gatedrop/internal/policy"
)

// PolicyStore keeps the policy in the single-row policy table
type PolicyStore struct {
	db *DB
}

var _ policy.Store = (*PolicyStore)(nil)

// NewPolicyStore creates a store and seeds the row with initial when the table is empty.
// An existing row wins over initial so admin changes survive restarts.
func NewPolicyStore(ctx context.Context, db *DB, initial policy.Policy) (*PolicyStore, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO policy
		(id, max_file_size_mb, min_validity_hours, max_validity_days, default_validity_days, require_password_min_length)
		VALUES (1, ?, ?, ?, ?, ?)`,
		initial.MaxFileSizeMB, initial.MinValidityHours, initial.MaxValidityDays,
		initial.DefaultValidityDays, initial.RequirePasswordMinLength)
	if err != nil {
		return nil, fmt.Errorf("failed to seed policy: %w", err)
	}
	return &PolicyStore{db: db}, nil
}

func (s *PolicyStore) Get(ctx context.Context) (policy.Policy, error) {
	return readPolicy(ctx, s.db)
}

func (s *PolicyStore) Update(ctx context.Context, patch policy.Patch) (policy.Policy, error) {
	var updated policy.Policy
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := readPolicy(ctx, tx)
		if err != nil {
			return err
		}
		updated, err = patch.Apply(current)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE policy SET max_file_size_mb = ?, min_validity_hours = ?,
			max_validity_days = ?, default_validity_days = ?, require_password_min_length = ?,
			updated_at = CURRENT_TIMESTAMP WHERE id = 1`,
			updated.MaxFileSizeMB, updated.MinValidityHours, updated.MaxValidityDays,
			updated.DefaultValidityDays, updated.RequirePasswordMinLength)
		if err != nil {
			return fmt.Errorf("failed to update policy: %w", err)
		}
		return nil
	})
	if err != nil {
		return policy.Policy{}, err
	}
	return updated, nil
}

func readPolicy(ctx context.Context, q queryer) (policy.Policy, error) {
	var p policy.Policy
	err := q.QueryRowContext(ctx, `SELECT id, max_file_size_mb, min_validity_hours, max_validity_days,
		default_validity_days, require_password_min_length FROM policy WHERE id = 1`).
		Scan(&p.ID, &p.MaxFileSizeMB, &p.MinValidityHours, &p.MaxValidityDays,
			&p.DefaultValidityDays, &p.RequirePasswordMinLength)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("failed to load policy: %w", err)
	}
	return p, nil
}
