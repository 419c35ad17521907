// Copyright 2026 The MarchProxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marchproxy/authzd/internal/rbac"
)

// AssignmentRepository implements rbac.AssignmentRepository
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Grant persists a new assignment. A concurrent grant of the same active
// tuple loses to the partial unique index and is treated as success; the
// surviving row is authoritative either way.
func (r *AssignmentRepository) Grant(ctx context.Context, assignment *rbac.Assignment) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO rbac_assignments (
			id, principal_id, role_name, scope, resource_id, granted_by, granted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (principal_id, role_name, COALESCE(resource_id, ''))
			WHERE revoked_at IS NULL
			DO NOTHING
	`,
		assignment.ID, assignment.PrincipalID, assignment.RoleName,
		string(assignment.Scope), assignment.ResourceID,
		assignment.GrantedBy, assignment.GrantedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}

	return nil
}

// FindActive returns the active assignment matching the exact tuple, or nil
func (r *AssignmentRepository) FindActive(ctx context.Context, principalID, roleName string, resourceID *string) (*rbac.Assignment, error) {
	var query string
	var args []any

	if resourceID == nil {
		query = `
			SELECT id, principal_id, role_name, scope, resource_id,
			       granted_by, granted_at, revoked_at
			FROM rbac_assignments
			WHERE principal_id = $1 AND role_name = $2
			  AND resource_id IS NULL AND revoked_at IS NULL
		`
		args = []any{principalID, roleName}
	} else {
		query = `
			SELECT id, principal_id, role_name, scope, resource_id,
			       granted_by, granted_at, revoked_at
			FROM rbac_assignments
			WHERE principal_id = $1 AND role_name = $2
			  AND resource_id = $3 AND revoked_at IS NULL
		`
		args = []any{principalID, roleName, *resourceID}
	}

	assignment, err := scanAssignmentRow(r.db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find assignment: %w", err)
	}

	return assignment, nil
}

// Revoke marks matching active assignments as revoked. A nil resourceID
// matches every active assignment of the role for the principal.
func (r *AssignmentRepository) Revoke(ctx context.Context, principalID, roleName string, resourceID *string, revokedAt time.Time) (int64, error) {
	query := `
		UPDATE rbac_assignments SET revoked_at = $3
		WHERE principal_id = $1 AND role_name = $2 AND revoked_at IS NULL
	`
	args := []any{principalID, roleName, revokedAt}

	if resourceID != nil {
		query += " AND resource_id = $4"
		args = append(args, *resourceID)
	}

	result, err := r.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke role: %w", err)
	}

	return result.RowsAffected(), nil
}

// RevokeByRole marks every active assignment of a role as revoked, returning
// the affected principal ids
func (r *AssignmentRepository) RevokeByRole(ctx context.Context, roleName string, revokedAt time.Time) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		UPDATE rbac_assignments SET revoked_at = $2
		WHERE role_name = $1 AND revoked_at IS NULL
		RETURNING principal_id
	`, roleName, revokedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to revoke role assignments: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var principals []string

	for rows.Next() {
		var principalID string
		if err := rows.Scan(&principalID); err != nil {
			return nil, fmt.Errorf("failed to scan principal id: %w", err)
		}
		if _, ok := seen[principalID]; ok {
			continue
		}
		seen[principalID] = struct{}{}
		principals = append(principals, principalID)
	}

	return principals, rows.Err()
}

// ListForPrincipal retrieves all active assignments for a principal
func (r *AssignmentRepository) ListForPrincipal(ctx context.Context, principalID string) ([]*rbac.Assignment, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, principal_id, role_name, scope, resource_id,
		       granted_by, granted_at, revoked_at
		FROM rbac_assignments
		WHERE principal_id = $1 AND revoked_at IS NULL
		ORDER BY granted_at
	`, principalID)

	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// ListByRole retrieves all active assignments of a role
func (r *AssignmentRepository) ListByRole(ctx context.Context, roleName string) ([]*rbac.Assignment, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, principal_id, role_name, scope, resource_id,
		       granted_by, granted_at, revoked_at
		FROM rbac_assignments
		WHERE role_name = $1 AND revoked_at IS NULL
		ORDER BY granted_at
	`, roleName)

	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignmentRow(row rowScanner) (*rbac.Assignment, error) {
	var a rbac.Assignment
	var scopeStr string

	if err := row.Scan(
		&a.ID, &a.PrincipalID, &a.RoleName, &scopeStr, &a.ResourceID,
		&a.GrantedBy, &a.GrantedAt, &a.RevokedAt,
	); err != nil {
		return nil, err
	}

	a.Scope = rbac.Scope(scopeStr)
	return &a, nil
}

func scanAssignments(rows pgx.Rows) ([]*rbac.Assignment, error) {
	var assignments []*rbac.Assignment

	for rows.Next() {
		a, err := scanAssignmentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}
