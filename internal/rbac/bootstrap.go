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

package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/marchproxy/authzd/internal/audit"
)

const (
	EnvBootstrapAdminPrincipal = "MP_BOOTSTRAP_ADMIN_PRINCIPAL"

	// SystemActor identifies internal operations in audit records
	SystemActor = "system"
)

// BootstrapService seeds the system roles and an optional initial admin
// grant. It runs at process startup and is idempotent.
type BootstrapService struct {
	roleRepo       RoleRepository
	assignmentRepo AssignmentRepository
	auditLogger    audit.Logger
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(
	roleRepo RoleRepository,
	assignmentRepo AssignmentRepository,
	auditLogger audit.Logger,
) *BootstrapService {
	return &BootstrapService{
		roleRepo:       roleRepo,
		assignmentRepo: assignmentRepo,
		auditLogger:    auditLogger,
	}
}

// Bootstrap seeds the five system roles. Existing roles are left untouched;
// system roles are created once and never mutated afterwards.
func (s *BootstrapService) Bootstrap(ctx context.Context) error {
	now := time.Now()

	for _, role := range SystemRoles() {
		_, err := s.roleRepo.GetByName(ctx, role.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRoleNotFound) {
			return fmt.Errorf("failed to check role %s: %w", role.Name, err)
		}

		role.CreatedAt = now
		role.UpdatedAt = now
		if err := s.roleRepo.Create(ctx, role); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", role.Name, err)
		}

		s.auditLogger.Log(ctx, audit.Event{
			Actor:    SystemActor,
			Action:   audit.ActionRoleDefined,
			RoleName: role.Name,
			Scope:    string(role.Scope),
			Metadata: map[string]any{"system": true},
		})

		slog.InfoContext(ctx, "seeded system role", slog.String("role_name", role.Name))
	}

	return s.bootstrapAdmin(ctx, now)
}

// bootstrapAdmin grants the admin role to the principal named in
// MP_BOOTSTRAP_ADMIN_PRINCIPAL, unless an admin grant already exists.
func (s *BootstrapService) bootstrapAdmin(ctx context.Context, now time.Time) error {
	principalID := os.Getenv(EnvBootstrapAdminPrincipal)
	if principalID == "" {
		return nil
	}

	existing, err := s.assignmentRepo.ListByRole(ctx, RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to check for existing admin: %w", err)
	}
	if len(existing) > 0 {
		// Already bootstrapped, skip silently
		return nil
	}

	assignment, err := s.assignmentRepo.FindActive(ctx, principalID, RoleAdmin, nil)
	if err != nil {
		return fmt.Errorf("failed to check admin assignment: %w", err)
	}
	if assignment != nil {
		return nil
	}

	if err := s.assignmentRepo.Grant(ctx, &Assignment{
		ID:          newAssignmentID(),
		PrincipalID: principalID,
		RoleName:    RoleAdmin,
		Scope:       ScopeGlobal,
		GrantedBy:   SystemActor,
		GrantedAt:   now,
	}); err != nil {
		return fmt.Errorf("failed to grant bootstrap admin: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Actor:       SystemActor,
		Action:      audit.ActionRoleAssigned,
		PrincipalID: principalID,
		RoleName:    RoleAdmin,
		Scope:       string(ScopeGlobal),
		Metadata:    map[string]any{"bootstrap": true},
	})

	slog.InfoContext(ctx, "granted bootstrap admin", slog.String("principal_id", principalID))
	return nil
}
