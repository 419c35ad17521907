package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Resolver computes the full effective permission set for a principal from
// the role and assignment stores. It has no side effects and is safe to call
// concurrently; every call returns a fresh ResolvedPermissions value.
type Resolver struct {
	roleRepo       RoleRepository
	assignmentRepo AssignmentRepository
}

// NewResolver creates a new resolver
func NewResolver(roleRepo RoleRepository, assignmentRepo AssignmentRepository) *Resolver {
	return &Resolver{
		roleRepo:       roleRepo,
		assignmentRepo: assignmentRepo,
	}
}

// Resolve accumulates the permissions of every active assignment into the
// bucket selected by the assignment's scope. Accumulation is a set union, so
// the result is independent of assignment order. Assignments referencing
// inactive roles are skipped; stale grants must never confer access.
func (r *Resolver) Resolve(ctx context.Context, principalID string) (*ResolvedPermissions, error) {
	assignments, err := r.assignmentRepo.ListForPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	resolved := &ResolvedPermissions{
		Global:     make(map[string]struct{}),
		Cluster:    make(map[string]map[string]struct{}),
		Service:    make(map[string]map[string]struct{}),
		ComputedAt: time.Now(),
	}

	// Roles repeat across assignments; fetch each once.
	roles := make(map[string]*Role)

	for _, assignment := range assignments {
		role, ok := roles[assignment.RoleName]
		if !ok {
			role, err = r.roleRepo.GetByName(ctx, assignment.RoleName)
			if err != nil {
				if errors.Is(err, ErrRoleNotFound) {
					continue
				}
				return nil, fmt.Errorf("failed to get role %s: %w", assignment.RoleName, err)
			}
			roles[assignment.RoleName] = role
		}

		if !role.IsActive {
			continue
		}

		switch assignment.Scope {
		case ScopeGlobal:
			for _, p := range role.Permissions {
				resolved.Global[p] = struct{}{}
			}
		case ScopeCluster:
			if assignment.ResourceID == nil {
				continue
			}
			accumulate(resolved.Cluster, *assignment.ResourceID, role.Permissions)
		case ScopeService:
			if assignment.ResourceID == nil {
				continue
			}
			accumulate(resolved.Service, *assignment.ResourceID, role.Permissions)
		}
	}

	return resolved, nil
}

func accumulate(bucket map[string]map[string]struct{}, resourceID string, permissions []string) {
	set, ok := bucket[resourceID]
	if !ok {
		set = make(map[string]struct{}, len(permissions))
		bucket[resourceID] = set
	}
	for _, p := range permissions {
		set[p] = struct{}{}
	}
}
