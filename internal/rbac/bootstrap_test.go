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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marchproxy/authzd/internal/rbac"
)

func TestBootstrap_SeedsSystemRoles(t *testing.T) {
	roleRepo := &FakeRoleRepository{roles: make(map[string]*rbac.Role)}
	assignmentRepo := NewFakeAssignmentRepository()
	auditLog := &RecordingAuditLogger{}

	bs := rbac.NewBootstrapService(roleRepo, assignmentRepo, auditLog)
	ctx := context.Background()

	require.NoError(t, bs.Bootstrap(ctx))

	for _, name := range []string{
		rbac.RoleAdmin, rbac.RoleMaintainer, rbac.RoleViewer,
		rbac.RoleClusterAdmin, rbac.RoleServiceOwner,
	} {
		role, err := roleRepo.GetByName(ctx, name)
		require.NoError(t, err, name)
		assert.True(t, role.IsSystem)
		assert.True(t, role.IsActive)
	}
	assert.Len(t, auditLog.Events, 5)

	// Second run is a no-op
	require.NoError(t, bs.Bootstrap(ctx))
	assert.Len(t, auditLog.Events, 5)
}

func TestBootstrap_AdminGrantFromEnv(t *testing.T) {
	t.Setenv(rbac.EnvBootstrapAdminPrincipal, "user-root")

	roleRepo := NewFakeRoleRepository()
	assignmentRepo := NewFakeAssignmentRepository()
	bs := rbac.NewBootstrapService(roleRepo, assignmentRepo, &RecordingAuditLogger{})
	ctx := context.Background()

	require.NoError(t, bs.Bootstrap(ctx))

	assignment, err := assignmentRepo.FindActive(ctx, "user-root", rbac.RoleAdmin, nil)
	require.NoError(t, err)
	require.NotNil(t, assignment)
	assert.Equal(t, rbac.SystemActor, assignment.GrantedBy)

	// A second run does not duplicate the grant
	require.NoError(t, bs.Bootstrap(ctx))
	assignments, err := assignmentRepo.ListByRole(ctx, rbac.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
}

func TestBootstrap_SkipsAdminGrantWhenAdminExists(t *testing.T) {
	t.Setenv(rbac.EnvBootstrapAdminPrincipal, "user-root")

	roleRepo := NewFakeRoleRepository()
	assignmentRepo := NewFakeAssignmentRepository()
	ctx := context.Background()

	require.NoError(t, assignmentRepo.Grant(ctx, &rbac.Assignment{
		PrincipalID: "user-existing",
		RoleName:    rbac.RoleAdmin,
		Scope:       rbac.ScopeGlobal,
	}))

	bs := rbac.NewBootstrapService(roleRepo, assignmentRepo, &RecordingAuditLogger{})
	require.NoError(t, bs.Bootstrap(ctx))

	assignment, err := assignmentRepo.FindActive(ctx, "user-root", rbac.RoleAdmin, nil)
	require.NoError(t, err)
	assert.Nil(t, assignment)
}
