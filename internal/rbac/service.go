package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/marchproxy/authzd/internal/audit"
)

// Service provides the administrative operations on roles and assignments.
// Every successful mutation emits an audit event and invalidates the cache
// entries it affects before returning, so the very next check observes it.
type Service struct {
	registry       *Registry
	roleRepo       RoleRepository
	assignmentRepo AssignmentRepository
	cache          *Cache
	auditLogger    audit.Logger
}

// NewService creates a new role administration service
func NewService(
	registry *Registry,
	roleRepo RoleRepository,
	assignmentRepo AssignmentRepository,
	cache *Cache,
	auditLogger audit.Logger,
) *Service {
	return &Service{
		registry:       registry,
		roleRepo:       roleRepo,
		assignmentRepo: assignmentRepo,
		cache:          cache,
		auditLogger:    auditLogger,
	}
}

// DefineRole creates a custom role. Permission tokens are validated against
// the registry and the role's scope; unknown tokens or cross-scope tokens
// are rejected here, never at check time.
func (s *Service) DefineRole(ctx context.Context, actor string, role *Role) (*Role, error) {
	if role.Name == "" {
		return nil, ErrInvalidRoleName
	}
	if _, ok := ParseScope(string(role.Scope)); !ok {
		return nil, ErrInvalidScope
	}
	if err := s.registry.ValidateForRole(role.Scope, role.Permissions); err != nil {
		return nil, err
	}

	if _, err := s.roleRepo.GetByName(ctx, role.Name); err == nil {
		return nil, ErrRoleExists
	} else if !errors.Is(err, ErrRoleNotFound) {
		return nil, fmt.Errorf("failed to check role: %w", err)
	}

	now := time.Now()
	role.Permissions = dedupeSorted(role.Permissions)
	role.IsSystem = false
	role.IsActive = true
	role.CreatedAt = now
	role.UpdatedAt = now

	if err := s.roleRepo.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Actor:    actor,
		Action:   audit.ActionRoleDefined,
		RoleName: role.Name,
		Scope:    string(role.Scope),
	})

	return role, nil
}

// UpdateRolePermissions replaces a custom role's permission set. Since the
// affected principals are unknown without a sweep, the whole cache is
// cleared; permission-set edits are rare and administrative.
func (s *Service) UpdateRolePermissions(ctx context.Context, actor, name string, permissions []string) (*Role, error) {
	role, err := s.roleRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, ErrImmutableRole
	}
	if err := s.registry.ValidateForRole(role.Scope, permissions); err != nil {
		return nil, err
	}

	role.Permissions = dedupeSorted(permissions)
	role.UpdatedAt = time.Now()

	if err := s.roleRepo.Update(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	s.cache.InvalidateAll()

	s.auditLogger.Log(ctx, audit.Event{
		Actor:    actor,
		Action:   audit.ActionRoleDefined,
		RoleName: role.Name,
		Scope:    string(role.Scope),
		Metadata: map[string]any{"updated": true},
	})

	return role, nil
}

// DeactivateRole disables a custom role, revokes its active assignments and
// invalidates every principal that held it. System roles are immutable.
func (s *Service) DeactivateRole(ctx context.Context, actor, name string) error {
	role, err := s.roleRepo.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrImmutableRole
	}

	if err := s.roleRepo.Deactivate(ctx, name); err != nil {
		return fmt.Errorf("failed to deactivate role: %w", err)
	}

	principals, err := s.assignmentRepo.RevokeByRole(ctx, name, time.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke assignments: %w", err)
	}
	for _, principalID := range principals {
		s.cache.Invalidate(principalID)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Actor:    actor,
		Action:   audit.ActionRoleDeactivated,
		RoleName: name,
		Scope:    string(role.Scope),
		Metadata: map[string]any{"revoked_assignments": len(principals)},
	})

	return nil
}

// GetRole retrieves a role by name
func (s *Service) GetRole(ctx context.Context, name string) (*Role, error) {
	return s.roleRepo.GetByName(ctx, name)
}

// ListRoles retrieves all roles, optionally filtered by scope
func (s *Service) ListRoles(ctx context.Context, scope *Scope) ([]*Role, error) {
	return s.roleRepo.List(ctx, scope)
}

// ListRoleAssignments retrieves the active assignments of a role
func (s *Service) ListRoleAssignments(ctx context.Context, name string) ([]*Assignment, error) {
	if _, err := s.roleRepo.GetByName(ctx, name); err != nil {
		return nil, err
	}
	return s.assignmentRepo.ListByRole(ctx, name)
}

// Assign grants a role to a principal at a scope. Re-assigning an identical
// active grant is a no-op returning the existing assignment.
func (s *Service) Assign(ctx context.Context, actor, principalID, roleName string, scope Scope, resourceID *string) (*Assignment, error) {
	role, err := s.roleRepo.GetByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	if !role.IsActive {
		return nil, ErrRoleInactive
	}
	if role.Scope != scope {
		return nil, fmt.Errorf("%w: role %s requires scope %s", ErrInvalidResource, roleName, role.Scope)
	}
	if scope.RequiresResource() && (resourceID == nil || *resourceID == "") {
		return nil, fmt.Errorf("%w: resource id required for %s scope", ErrInvalidResource, scope)
	}
	if !scope.RequiresResource() && resourceID != nil {
		return nil, fmt.Errorf("%w: resource id not allowed for global scope", ErrInvalidResource)
	}

	existing, err := s.assignmentRepo.FindActive(ctx, principalID, roleName, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing assignment: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	assignment := &Assignment{
		ID:          newAssignmentID(),
		PrincipalID: principalID,
		RoleName:    roleName,
		Scope:       scope,
		ResourceID:  resourceID,
		GrantedBy:   actor,
		GrantedAt:   time.Now(),
	}

	if err := s.assignmentRepo.Grant(ctx, assignment); err != nil {
		return nil, fmt.Errorf("failed to grant role: %w", err)
	}

	s.cache.Invalidate(principalID)

	s.auditLogger.Log(ctx, audit.Event{
		Actor:       actor,
		Action:      audit.ActionRoleAssigned,
		PrincipalID: principalID,
		RoleName:    roleName,
		Scope:       string(scope),
		ResourceID:  deref(resourceID),
	})

	return assignment, nil
}

// Revoke marks the matching active assignments as revoked. A nil resourceID
// revokes every active assignment of the role for the principal. Revoking a
// non-existent or already-revoked assignment is a no-op success; retries are
// safe.
func (s *Service) Revoke(ctx context.Context, actor, principalID, roleName string, resourceID *string) error {
	revoked, err := s.assignmentRepo.Revoke(ctx, principalID, roleName, resourceID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}

	s.cache.Invalidate(principalID)

	if revoked == 0 {
		slog.DebugContext(ctx, "revoke matched no active assignment",
			slog.String("principal_id", principalID),
			slog.String("role_name", roleName),
		)
		return nil
	}

	s.auditLogger.Log(ctx, audit.Event{
		Actor:       actor,
		Action:      audit.ActionRoleRevoked,
		PrincipalID: principalID,
		RoleName:    roleName,
		ResourceID:  deref(resourceID),
		Metadata:    map[string]any{"revoked": revoked},
	})

	return nil
}

// ListForPrincipal retrieves all active assignments of a principal
func (s *Service) ListForPrincipal(ctx context.Context, principalID string) ([]*Assignment, error) {
	return s.assignmentRepo.ListForPrincipal(ctx, principalID)
}

// PrincipalAccess bundles the active assignments and the fully resolved
// permission set of a principal. Diagnostic endpoint payload.
type PrincipalAccess struct {
	PrincipalID string
	Assignments []*Assignment
	Resolved    *ResolvedPermissions
}

// GetPrincipalAccess returns the assignments and resolved permissions for a
// principal.
func (s *Service) GetPrincipalAccess(ctx context.Context, principalID string) (*PrincipalAccess, error) {
	assignments, err := s.assignmentRepo.ListForPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	resolved, err := s.cache.Get(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}

	return &PrincipalAccess{
		PrincipalID: principalID,
		Assignments: assignments,
		Resolved:    resolved,
	}, nil
}

// Registry exposes the static permission catalog.
func (s *Service) Registry() *Registry {
	return s.registry
}

func dedupeSorted(permissions []string) []string {
	seen := make(map[string]struct{}, len(permissions))
	out := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// newAssignmentID returns a time-ordered UUID so assignment rows sort by
// grant time.
func newAssignmentID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
