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
	"fmt"
	"sync"
	"time"

	"github.com/marchproxy/authzd/internal/audit"
	"github.com/marchproxy/authzd/internal/rbac"
)

// FakeRoleRepository implements rbac.RoleRepository in memory
type FakeRoleRepository struct {
	mu    sync.Mutex
	roles map[string]*rbac.Role

	// FailErr, when set, is returned from every method
	FailErr error
}

func NewFakeRoleRepository() *FakeRoleRepository {
	repo := &FakeRoleRepository{roles: make(map[string]*rbac.Role)}
	for _, role := range rbac.SystemRoles() {
		repo.roles[role.Name] = role
	}
	return repo
}

func (f *FakeRoleRepository) Create(ctx context.Context, role *rbac.Role) error {
	if f.FailErr != nil {
		return f.FailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[role.Name]; ok {
		return rbac.ErrRoleExists
	}
	clone := *role
	f.roles[role.Name] = &clone
	return nil
}

func (f *FakeRoleRepository) GetByName(ctx context.Context, name string) (*rbac.Role, error) {
	if f.FailErr != nil {
		return nil, f.FailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[name]
	if !ok {
		return nil, rbac.ErrRoleNotFound
	}
	clone := *role
	return &clone, nil
}

func (f *FakeRoleRepository) List(ctx context.Context, scope *rbac.Scope) ([]*rbac.Role, error) {
	if f.FailErr != nil {
		return nil, f.FailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*rbac.Role
	for _, role := range f.roles {
		if scope != nil && role.Scope != *scope {
			continue
		}
		clone := *role
		out = append(out, &clone)
	}
	return out, nil
}

func (f *FakeRoleRepository) Update(ctx context.Context, role *rbac.Role) error {
	if f.FailErr != nil {
		return f.FailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[role.Name]; !ok {
		return rbac.ErrRoleNotFound
	}
	clone := *role
	f.roles[role.Name] = &clone
	return nil
}

func (f *FakeRoleRepository) Deactivate(ctx context.Context, name string) error {
	if f.FailErr != nil {
		return f.FailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[name]
	if !ok {
		return rbac.ErrRoleNotFound
	}
	role.IsActive = false
	return nil
}

// FakeAssignmentRepository implements rbac.AssignmentRepository in memory
type FakeAssignmentRepository struct {
	mu          sync.Mutex
	assignments []*rbac.Assignment
	nextID      int

	// FailErr, when set, is returned from every method
	FailErr error

	// Resolves counts ListForPrincipal calls, used to observe cache behavior
	Resolves int
}

func NewFakeAssignmentRepository() *FakeAssignmentRepository {
	return &FakeAssignmentRepository{}
}

func (f *FakeAssignmentRepository) Grant(ctx context.Context, a *rbac.Assignment) error {
	if f.FailErr != nil {
		return f.FailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *a
	if clone.ID == "" {
		f.nextID++
		clone.ID = fmt.Sprintf("assign-%d", f.nextID)
	}
	f.assignments = append(f.assignments, &clone)
	return nil
}

func (f *FakeAssignmentRepository) FindActive(ctx context.Context, principalID, roleName string, resourceID *string) (*rbac.Assignment, error) {
	if f.FailErr != nil {
		return nil, f.FailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assignments {
		if !a.Active() || a.PrincipalID != principalID || a.RoleName != roleName {
			continue
		}
		if !sameResource(a.ResourceID, resourceID) {
			continue
		}
		clone := *a
		return &clone, nil
	}
	return nil, nil
}

func (f *FakeAssignmentRepository) Revoke(ctx context.Context, principalID, roleName string, resourceID *string, revokedAt time.Time) (int64, error) {
	if f.FailErr != nil {
		return 0, f.FailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.assignments {
		if !a.Active() || a.PrincipalID != principalID || a.RoleName != roleName {
			continue
		}
		if resourceID != nil && !sameResource(a.ResourceID, resourceID) {
			continue
		}
		at := revokedAt
		a.RevokedAt = &at
		n++
	}
	return n, nil
}

func (f *FakeAssignmentRepository) RevokeByRole(ctx context.Context, roleName string, revokedAt time.Time) ([]string, error) {
	if f.FailErr != nil {
		return nil, f.FailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{})
	var principals []string
	for _, a := range f.assignments {
		if !a.Active() || a.RoleName != roleName {
			continue
		}
		at := revokedAt
		a.RevokedAt = &at
		if _, ok := seen[a.PrincipalID]; ok {
			continue
		}
		seen[a.PrincipalID] = struct{}{}
		principals = append(principals, a.PrincipalID)
	}
	return principals, nil
}

func (f *FakeAssignmentRepository) ListForPrincipal(ctx context.Context, principalID string) ([]*rbac.Assignment, error) {
	if f.FailErr != nil {
		return nil, f.FailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resolves++
	var out []*rbac.Assignment
	for _, a := range f.assignments {
		if a.Active() && a.PrincipalID == principalID {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *FakeAssignmentRepository) ListByRole(ctx context.Context, roleName string) ([]*rbac.Assignment, error) {
	if f.FailErr != nil {
		return nil, f.FailErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*rbac.Assignment
	for _, a := range f.assignments {
		if a.Active() && a.RoleName == roleName {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}

func sameResource(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func strptr(s string) *string {
	return &s
}

// RecordingAuditLogger captures audit events for assertions
type RecordingAuditLogger struct {
	mu     sync.Mutex
	Events []audit.Event
}

func (l *RecordingAuditLogger) Log(ctx context.Context, event audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Events = append(l.Events, event)
}

func (l *RecordingAuditLogger) Actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.Events))
	for _, e := range l.Events {
		out = append(out, e.Action)
	}
	return out
}
