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

// -----------------------------------------------------------------------------
// System Role Names
// These are the canonical names for the built-in roles seeded at bootstrap.
// System roles are immutable: deactivation and permission-set edits are
// rejected with ErrImmutableRole.
// -----------------------------------------------------------------------------

const (
	// RoleAdmin grants full system access via the global:admin wildcard.
	// Scope: global
	RoleAdmin = "admin"

	// RoleMaintainer grants read/write across clusters and services but no
	// user management.
	// Scope: global
	RoleMaintainer = "maintainer"

	// RoleViewer grants read-only access to all resources.
	// Scope: global
	RoleViewer = "viewer"

	// RoleClusterAdmin grants full access to a specific cluster.
	// Scope: cluster
	RoleClusterAdmin = "cluster_admin"

	// RoleServiceOwner grants full access to a specific service.
	// Scope: service
	RoleServiceOwner = "service_owner"
)

// -----------------------------------------------------------------------------
// System Role Permission Mappings
// Used for seeding at bootstrap and as fixtures in tests.
// -----------------------------------------------------------------------------

// AdminPermissions defines permissions for the admin role.
var AdminPermissions = []string{
	PermGlobalAdmin,
	PermGlobalUsersRead,
	PermGlobalUsersWrite,
	PermGlobalClustersRead,
	PermGlobalClustersWrite,
	PermGlobalServicesRead,
	PermGlobalServicesWrite,
	PermGlobalSettings,
	PermGlobalLicense,
}

// MaintainerPermissions defines permissions for the maintainer role.
// Can read users but not write them.
var MaintainerPermissions = []string{
	PermGlobalClustersRead,
	PermGlobalClustersWrite,
	PermGlobalServicesRead,
	PermGlobalServicesWrite,
	PermGlobalUsersRead,
}

// ViewerPermissions defines permissions for the viewer role.
var ViewerPermissions = []string{
	PermGlobalClustersRead,
	PermGlobalServicesRead,
	PermGlobalUsersRead,
}

// ClusterAdminPermissions defines permissions for the cluster_admin role.
var ClusterAdminPermissions = []string{
	PermClusterRead,
	PermClusterWrite,
	PermClusterServicesRead,
	PermClusterServicesWrite,
	PermClusterUsersRead,
	PermClusterUsersWrite,
}

// ServiceOwnerPermissions defines permissions for the service_owner role.
var ServiceOwnerPermissions = []string{
	PermServiceRead,
	PermServiceWrite,
	PermServiceDelete,
	PermServiceProxiesRead,
	PermServiceProxiesWrite,
	PermServiceCertsRead,
	PermServiceCertsWrite,
}

// SystemRoles returns the built-in role definitions in seed order.
func SystemRoles() []*Role {
	return []*Role{
		{
			Name:        RoleAdmin,
			DisplayName: "Admin",
			Description: "Full system access - can manage everything",
			Scope:       ScopeGlobal,
			Permissions: AdminPermissions,
			IsSystem:    true,
			IsActive:    true,
		},
		{
			Name:        RoleMaintainer,
			DisplayName: "Maintainer",
			Description: "Read/write access - no user management",
			Scope:       ScopeGlobal,
			Permissions: MaintainerPermissions,
			IsSystem:    true,
			IsActive:    true,
		},
		{
			Name:        RoleViewer,
			DisplayName: "Viewer",
			Description: "Read-only access to all resources",
			Scope:       ScopeGlobal,
			Permissions: ViewerPermissions,
			IsSystem:    true,
			IsActive:    true,
		},
		{
			Name:        RoleClusterAdmin,
			DisplayName: "Cluster Admin",
			Description: "Full access to specific cluster",
			Scope:       ScopeCluster,
			Permissions: ClusterAdminPermissions,
			IsSystem:    true,
			IsActive:    true,
		},
		{
			Name:        RoleServiceOwner,
			DisplayName: "Service Owner",
			Description: "Full access to specific service",
			Scope:       ScopeService,
			Permissions: ServiceOwnerPermissions,
			IsSystem:    true,
			IsActive:    true,
		},
	}
}
