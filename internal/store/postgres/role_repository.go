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
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marchproxy/authzd/internal/rbac"
)

// RoleRepository implements rbac.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create persists a new role definition
func (r *RoleRepository) Create(ctx context.Context, role *rbac.Role) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO rbac_roles (
			name, display_name, description, scope, permissions,
			is_system, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		role.Name, role.DisplayName, role.Description, string(role.Scope),
		role.Permissions, role.IsSystem, role.IsActive,
		role.CreatedAt, role.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return rbac.ErrRoleExists
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	return nil
}

// GetByName retrieves a role by its unique name
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*rbac.Role, error) {
	var role rbac.Role
	var scopeStr string

	err := r.db.pool.QueryRow(ctx, `
		SELECT name, display_name, description, scope, permissions,
		       is_system, is_active, created_at, updated_at
		FROM rbac_roles
		WHERE name = $1
	`, name).Scan(
		&role.Name, &role.DisplayName, &role.Description, &scopeStr,
		&role.Permissions, &role.IsSystem, &role.IsActive,
		&role.CreatedAt, &role.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rbac.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	role.Scope = rbac.Scope(scopeStr)
	return &role, nil
}

// List retrieves all roles, optionally filtered by scope
func (r *RoleRepository) List(ctx context.Context, scope *rbac.Scope) ([]*rbac.Role, error) {
	query := `
		SELECT name, display_name, description, scope, permissions,
		       is_system, is_active, created_at, updated_at
		FROM rbac_roles
	`
	var args []any
	if scope != nil {
		query += " WHERE scope = $1"
		args = append(args, string(*scope))
	}
	query += " ORDER BY name"

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*rbac.Role

	for rows.Next() {
		var role rbac.Role
		var scopeStr string

		if err := rows.Scan(
			&role.Name, &role.DisplayName, &role.Description, &scopeStr,
			&role.Permissions, &role.IsSystem, &role.IsActive,
			&role.CreatedAt, &role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}

		role.Scope = rbac.Scope(scopeStr)
		roles = append(roles, &role)
	}

	return roles, rows.Err()
}

// Update replaces the mutable fields of an existing role
func (r *RoleRepository) Update(ctx context.Context, role *rbac.Role) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE rbac_roles SET
			display_name = $2,
			description = $3,
			permissions = $4,
			updated_at = $5
		WHERE name = $1
	`,
		role.Name, role.DisplayName, role.Description,
		role.Permissions, time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	if result.RowsAffected() == 0 {
		return rbac.ErrRoleNotFound
	}

	return nil
}

// Deactivate marks a role inactive
func (r *RoleRepository) Deactivate(ctx context.Context, name string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE rbac_roles SET
			is_active = FALSE,
			updated_at = $2
		WHERE name = $1
	`, name, time.Now())

	if err != nil {
		return fmt.Errorf("failed to deactivate role: %w", err)
	}

	if result.RowsAffected() == 0 {
		return rbac.ErrRoleNotFound
	}

	return nil
}
