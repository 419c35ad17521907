package rbac

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Domain errors
var (
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleExists        = errors.New("role already exists")
	ErrRoleInactive      = errors.New("role is inactive")
	ErrImmutableRole     = errors.New("system role cannot be modified")
	ErrInvalidPermission = errors.New("unknown permission token")
	ErrInvalidScope      = errors.New("permission does not match role scope")
	ErrInvalidResource   = errors.New("resource id does not match scope")
	ErrInvalidRoleName   = errors.New("invalid role name")
	ErrNoPrincipal       = errors.New("principal not established")
)

// Scope defines the level at which a role's permissions apply
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeCluster Scope = "cluster"
	ScopeService Scope = "service"
)

// ParseScope converts a wire string into a Scope.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case ScopeGlobal, ScopeCluster, ScopeService:
		return Scope(s), true
	}
	return "", false
}

// RequiresResource reports whether assignments at this scope must name a
// concrete cluster or service.
func (s Scope) RequiresResource() bool {
	return s == ScopeCluster || s == ScopeService
}

// Role is a named, scoped set of permissions
type Role struct {
	Name        string
	DisplayName string
	Description string
	Scope       Scope
	Permissions []string // ordered set, sorted at definition time
	IsSystem    bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasPermission checks if the role grants a specific permission
func (r *Role) HasPermission(permission string) bool {
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Assignment grants a role to a principal at a scope. Revocation is logical:
// RevokedAt is set and the row is kept for audit history.
type Assignment struct {
	ID          string
	PrincipalID string
	RoleName    string
	Scope       Scope
	ResourceID  *string // nil for global scope, cluster/service id otherwise
	GrantedBy   string
	GrantedAt   time.Time
	RevokedAt   *time.Time
}

// Active reports whether the assignment has not been revoked.
func (a *Assignment) Active() bool {
	return a.RevokedAt == nil
}

// ResolvedPermissions is the full effective permission set of a principal,
// partitioned by scope. Values returned by the Resolver are fresh copies;
// callers never share mutable state with the cache.
type ResolvedPermissions struct {
	Global     map[string]struct{}
	Cluster    map[string]map[string]struct{} // resource id -> permission set
	Service    map[string]map[string]struct{}
	ComputedAt time.Time
}

// NewResolvedPermissions returns an empty resolved set.
func NewResolvedPermissions() *ResolvedPermissions {
	return &ResolvedPermissions{
		Global:     make(map[string]struct{}),
		Cluster:    make(map[string]map[string]struct{}),
		Service:    make(map[string]map[string]struct{}),
		ComputedAt: time.Now(),
	}
}

// HasGlobal reports whether the global set contains the permission.
func (p *ResolvedPermissions) HasGlobal(permission string) bool {
	_, ok := p.Global[permission]
	return ok
}

// HasScoped reports whether the permission is held at a specific cluster or
// service resource.
func (p *ResolvedPermissions) HasScoped(resourceType, resourceID, permission string) bool {
	var bucket map[string]map[string]struct{}
	switch resourceType {
	case string(ScopeCluster):
		bucket = p.Cluster
	case string(ScopeService):
		bucket = p.Service
	default:
		return false
	}
	perms, ok := bucket[resourceID]
	if !ok {
		return false
	}
	_, ok = perms[permission]
	return ok
}

// GlobalList returns the global permissions as a sorted slice.
func (p *ResolvedPermissions) GlobalList() []string {
	return sortedKeys(p.Global)
}

// ClusterLists returns the per-cluster permissions as sorted slices.
func (p *ResolvedPermissions) ClusterLists() map[string][]string {
	return sortedBuckets(p.Cluster)
}

// ServiceLists returns the per-service permissions as sorted slices.
func (p *ResolvedPermissions) ServiceLists() map[string][]string {
	return sortedBuckets(p.Service)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedBuckets(buckets map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(buckets))
	for id, set := range buckets {
		out[id] = sortedKeys(set)
	}
	return out
}

// RoleRepository defines the interface for role persistence
type RoleRepository interface {
	// Create persists a new role definition
	Create(ctx context.Context, role *Role) error

	// GetByName retrieves a role by its unique name
	GetByName(ctx context.Context, name string) (*Role, error)

	// List retrieves all roles, optionally filtered by scope
	List(ctx context.Context, scope *Scope) ([]*Role, error)

	// Update replaces the mutable fields of an existing role
	Update(ctx context.Context, role *Role) error

	// Deactivate marks a role inactive
	Deactivate(ctx context.Context, name string) error
}

// AssignmentRepository defines the interface for role assignments
type AssignmentRepository interface {
	// Grant persists a new assignment
	Grant(ctx context.Context, assignment *Assignment) error

	// FindActive returns the active assignment matching the exact
	// (principal, role, resource) tuple, or nil if none exists
	FindActive(ctx context.Context, principalID, roleName string, resourceID *string) (*Assignment, error)

	// Revoke marks matching active assignments as revoked. A nil resourceID
	// matches every active assignment of the role for the principal. Returns
	// the number of assignments revoked.
	Revoke(ctx context.Context, principalID, roleName string, resourceID *string, revokedAt time.Time) (int64, error)

	// RevokeByRole marks every active assignment of a role as revoked,
	// returning the affected principal ids
	RevokeByRole(ctx context.Context, roleName string, revokedAt time.Time) ([]string, error)

	// ListForPrincipal retrieves all active assignments for a principal
	ListForPrincipal(ctx context.Context, principalID string) ([]*Assignment, error)

	// ListByRole retrieves all active assignments of a role
	ListByRole(ctx context.Context, roleName string) ([]*Assignment, error)
}
