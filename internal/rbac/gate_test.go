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

package rbac_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marchproxy/authzd/internal/rbac"
)

func newGateFixture(t *testing.T) (*rbac.Gate, *FakeRoleRepository, *FakeAssignmentRepository, *rbac.Cache) {
	t.Helper()
	roleRepo := NewFakeRoleRepository()
	assignmentRepo := NewFakeAssignmentRepository()
	cache := rbac.NewCache(rbac.NewResolver(roleRepo, assignmentRepo), rbac.DefaultCacheConfig())
	return rbac.NewGate(cache), roleRepo, assignmentRepo, cache
}

// TestPurpose: Validates that global:admin passes every check regardless of
// permission, scope or resource.
// Scope: Unit Test
// Security: Admin wildcard semantics
// Permissions: global:admin
// Expected: Allow on global, cluster and service checks without explicit grants.
// Test Case ID: RBC-03
func TestGate_GlobalAdminWildcard(t *testing.T) {
	gate, _, assignmentRepo, _ := newGateFixture(t)
	ctx := context.Background()

	require.NoError(t, assignmentRepo.Grant(ctx, &rbac.Assignment{
		PrincipalID: "user-admin",
		RoleName:    rbac.RoleAdmin,
		Scope:       rbac.ScopeGlobal,
	}))

	assert.True(t, gate.Check(ctx, "user-admin", rbac.PermGlobalSettings, "", "").Allowed())
	assert.True(t, gate.Check(ctx, "user-admin", rbac.PermClusterDelete, "cluster", "cluster-a").Allowed())
	assert.True(t, gate.Check(ctx, "user-admin", rbac.PermServiceCertsWrite, "service", "service-x").Allowed())
}

func TestGate_GlobalPermission(t *testing.T) {
	gate, _, assignmentRepo, _ := newGateFixture(t)
	ctx := context.Background()

	require.NoError(t, assignmentRepo.Grant(ctx, &rbac.Assignment{
		PrincipalID: "user-viewer",
		RoleName:    rbac.RoleViewer,
		Scope:       rbac.ScopeGlobal,
	}))

	assert.True(t, gate.Check(ctx, "user-viewer", rbac.PermGlobalClustersRead, "", "").Allowed())
	assert.False(t, gate.Check(ctx, "user-viewer", rbac.PermGlobalClustersWrite, "", "").Allowed())
}

// TestPurpose: Validates that scoped grants are confined to their resource.
// Scope: Unit Test
// Security: Resource isolation (prevents horizontal privilege escalation)
// Permissions: cluster:write
// Expected: Allow on the granted cluster, Deny on any other cluster.
// Test Case ID: RBC-04
func TestGate_ScopedGrantIsolation(t *testing.T) {
	gate, _, assignmentRepo, _ := newGateFixture(t)
	ctx := context.Background()

	require.NoError(t, assignmentRepo.Grant(ctx, &rbac.Assignment{
		PrincipalID: "user-ops",
		RoleName:    rbac.RoleClusterAdmin,
		Scope:       rbac.ScopeCluster,
		ResourceID:  strptr("cluster-a"),
	}))

	assert.True(t, gate.Check(ctx, "user-ops", rbac.PermClusterWrite, "cluster", "cluster-a").Allowed())
	assert.False(t, gate.Check(ctx, "user-ops", rbac.PermClusterWrite, "cluster", "cluster-b").Allowed())
	// A cluster grant never satisfies a service check
	assert.False(t, gate.Check(ctx, "user-ops", rbac.PermClusterWrite, "service", "cluster-a").Allowed())
}

func TestGate_EmptyPrincipalDenied(t *testing.T) {
	gate, _, _, _ := newGateFixture(t)

	assert.False(t, gate.Check(context.Background(), "", rbac.PermGlobalClustersRead, "", "").Allowed())
}

func TestGate_UnknownPrincipalDenied(t *testing.T) {
	gate, _, _, _ := newGateFixture(t)

	assert.False(t, gate.Check(context.Background(), "user-stranger", rbac.PermGlobalClustersRead, "", "").Allowed())
}

// TestPurpose: Validates fail-closed behavior when the store is unreachable.
// Scope: Unit Test
// Security: Resolution errors must deny, never default-allow.
// Expected: Deny while the store errors, Allow again after it recovers.
// Test Case ID: RBC-05
func TestGate_FailClosedOnStoreError(t *testing.T) {
	gate, _, assignmentRepo, cache := newGateFixture(t)
	ctx := context.Background()

	require.NoError(t, assignmentRepo.Grant(ctx, &rbac.Assignment{
		PrincipalID: "user-admin",
		RoleName:    rbac.RoleAdmin,
		Scope:       rbac.ScopeGlobal,
	}))

	assignmentRepo.FailErr = errors.New("connection refused")
	cache.Invalidate("user-admin")

	assert.False(t, gate.Check(ctx, "user-admin", rbac.PermGlobalSettings, "", "").Allowed())

	assignmentRepo.FailErr = nil
	assert.True(t, gate.Check(ctx, "user-admin", rbac.PermGlobalSettings, "", "").Allowed())
}

func TestGate_CheckAnyCheckAll(t *testing.T) {
	gate, _, assignmentRepo, _ := newGateFixture(t)
	ctx := context.Background()

	require.NoError(t, assignmentRepo.Grant(ctx, &rbac.Assignment{
		PrincipalID: "user-viewer",
		RoleName:    rbac.RoleViewer,
		Scope:       rbac.ScopeGlobal,
	}))

	assert.True(t, gate.CheckAny(ctx, "user-viewer", "", "",
		rbac.PermGlobalClustersWrite, rbac.PermGlobalClustersRead).Allowed())
	assert.False(t, gate.CheckAll(ctx, "user-viewer", "", "",
		rbac.PermGlobalClustersWrite, rbac.PermGlobalClustersRead).Allowed())
	assert.True(t, gate.CheckAll(ctx, "user-viewer", "", "",
		rbac.PermGlobalClustersRead, rbac.PermGlobalServicesRead).Allowed())

	// Empty permission list never allows
	assert.False(t, gate.CheckAll(ctx, "user-viewer", "", "").Allowed())
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "allow", rbac.Allow.String())
	assert.Equal(t, "deny", rbac.Deny.String())
}
