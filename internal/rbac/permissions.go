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
	"sort"
	"strings"
)

// -----------------------------------------------------------------------------
// Permission Constants
// Permissions are OAuth2-style scope strings: "<scope>:<category>:<action>"
// or "<scope>:<action>". The scope prefix determines where a permission can
// be granted and checked.
// -----------------------------------------------------------------------------

// Global permissions (system-wide)
const (
	// PermGlobalAdmin is the admin wildcard. A principal holding it passes
	// every check regardless of scope or resource.
	PermGlobalAdmin = "global:admin"

	PermGlobalUsersRead     = "global:users:read"
	PermGlobalUsersWrite    = "global:users:write"
	PermGlobalClustersRead  = "global:clusters:read"
	PermGlobalClustersWrite = "global:clusters:write"
	PermGlobalServicesRead  = "global:services:read"
	PermGlobalServicesWrite = "global:services:write"
	PermGlobalSettings      = "global:settings"
	PermGlobalLicense       = "global:license"
)

// Cluster permissions (require a cluster resource id)
const (
	PermClusterRead          = "cluster:read"
	PermClusterWrite         = "cluster:write"
	PermClusterDelete        = "cluster:delete"
	PermClusterServicesRead  = "cluster:services:read"
	PermClusterServicesWrite = "cluster:services:write"
	PermClusterUsersRead     = "cluster:users:read"
	PermClusterUsersWrite    = "cluster:users:write"
)

// Service permissions (require a service resource id)
const (
	PermServiceRead         = "service:read"
	PermServiceWrite        = "service:write"
	PermServiceDelete       = "service:delete"
	PermServiceProxiesRead  = "service:proxies:read"
	PermServiceProxiesWrite = "service:proxies:write"
	PermServiceCertsRead    = "service:certs:read"
	PermServiceCertsWrite   = "service:certs:write"
)

// Registry is the fixed, process-wide catalog of valid permission tokens.
// Unknown tokens are rejected when a role is defined, never at check time.
type Registry struct {
	byScope map[Scope][]string
	all     map[string]Scope
}

// NewRegistry builds the static permission registry.
func NewRegistry() *Registry {
	byScope := map[Scope][]string{
		ScopeGlobal: {
			PermGlobalAdmin,
			PermGlobalUsersRead,
			PermGlobalUsersWrite,
			PermGlobalClustersRead,
			PermGlobalClustersWrite,
			PermGlobalServicesRead,
			PermGlobalServicesWrite,
			PermGlobalSettings,
			PermGlobalLicense,
		},
		ScopeCluster: {
			PermClusterRead,
			PermClusterWrite,
			PermClusterDelete,
			PermClusterServicesRead,
			PermClusterServicesWrite,
			PermClusterUsersRead,
			PermClusterUsersWrite,
		},
		ScopeService: {
			PermServiceRead,
			PermServiceWrite,
			PermServiceDelete,
			PermServiceProxiesRead,
			PermServiceProxiesWrite,
			PermServiceCertsRead,
			PermServiceCertsWrite,
		},
	}

	all := make(map[string]Scope)
	for scope, perms := range byScope {
		for _, p := range perms {
			all[p] = scope
		}
	}

	return &Registry{byScope: byScope, all: all}
}

// Valid reports whether the permission token exists in the registry.
func (r *Registry) Valid(permission string) bool {
	_, ok := r.all[permission]
	return ok
}

// ScopeOf returns the scope a permission token belongs to.
func (r *Registry) ScopeOf(permission string) (Scope, bool) {
	s, ok := r.all[permission]
	return s, ok
}

// ByScope returns the catalog grouped by scope, each group sorted for
// deterministic output.
func (r *Registry) ByScope() map[Scope][]string {
	out := make(map[Scope][]string, len(r.byScope))
	for scope, perms := range r.byScope {
		group := make([]string, len(perms))
		copy(group, perms)
		sort.Strings(group)
		out[scope] = group
	}
	return out
}

// ValidateForRole checks that every permission token is known and that each
// belongs either to the role's scope or to the global scope. Global
// permissions may appear in any role as a superset grant; a cluster-scope
// role must not declare service-only permissions and vice versa.
func (r *Registry) ValidateForRole(scope Scope, permissions []string) error {
	for _, p := range permissions {
		permScope, ok := r.all[p]
		if !ok {
			return ErrInvalidPermission
		}
		if permScope != scope && permScope != ScopeGlobal {
			return ErrInvalidScope
		}
	}
	return nil
}

// PermissionScopePrefix extracts the scope prefix of a permission token
// ("cluster:write" -> "cluster").
func PermissionScopePrefix(permission string) string {
	if i := strings.IndexByte(permission, ':'); i > 0 {
		return permission[:i]
	}
	return permission
}
