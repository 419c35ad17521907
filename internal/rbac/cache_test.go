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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marchproxy/authzd/internal/rbac"
)

func newCacheFixture() (*rbac.Cache, *FakeAssignmentRepository) {
	roleRepo := NewFakeRoleRepository()
	assignmentRepo := NewFakeAssignmentRepository()
	cache := rbac.NewCache(rbac.NewResolver(roleRepo, assignmentRepo), rbac.DefaultCacheConfig())
	return cache, assignmentRepo
}

func TestCache_HitAvoidsResolve(t *testing.T) {
	cache, assignmentRepo := newCacheFixture()
	ctx := context.Background()

	require.NoError(t, assignmentRepo.Grant(ctx, &rbac.Assignment{
		PrincipalID: "user-1",
		RoleName:    rbac.RoleViewer,
		Scope:       rbac.ScopeGlobal,
	}))

	_, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	_, err = cache.Get(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1, assignmentRepo.Resolves)
	assert.Equal(t, 1, cache.Len())
}

// TestPurpose: Validates that invalidation takes effect before the writer's
// call returns, so the next check observes the mutation.
// Scope: Unit Test
// Security: No stale allow after revocation.
// Expected: Cached entry is dropped and recomputed from current store state.
// Test Case ID: RBC-06
func TestCache_InvalidateDropsEntry(t *testing.T) {
	cache, assignmentRepo := newCacheFixture()
	ctx := context.Background()

	require.NoError(t, assignmentRepo.Grant(ctx, &rbac.Assignment{
		PrincipalID: "user-1",
		RoleName:    rbac.RoleViewer,
		Scope:       rbac.ScopeGlobal,
	}))

	resolved, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, resolved.HasGlobal(rbac.PermGlobalClustersRead))

	_, err = assignmentRepo.Revoke(ctx, "user-1", rbac.RoleViewer, nil, time.Now())
	require.NoError(t, err)
	cache.Invalidate("user-1")

	resolved, err = cache.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, resolved.HasGlobal(rbac.PermGlobalClustersRead))
	assert.Equal(t, 2, assignmentRepo.Resolves)
}

func TestCache_InvalidateAll(t *testing.T) {
	cache, assignmentRepo := newCacheFixture()
	ctx := context.Background()

	for _, id := range []string{"user-1", "user-2", "user-3"} {
		require.NoError(t, assignmentRepo.Grant(ctx, &rbac.Assignment{
			PrincipalID: id,
			RoleName:    rbac.RoleViewer,
			Scope:       rbac.ScopeGlobal,
		}))
		_, err := cache.Get(ctx, id)
		require.NoError(t, err)
	}
	require.Equal(t, 3, cache.Len())

	cache.InvalidateAll()
	assert.Equal(t, 0, cache.Len())
}

func TestCache_SingleflightCollapsesConcurrentMisses(t *testing.T) {
	cache, assignmentRepo := newCacheFixture()
	ctx := context.Background()

	require.NoError(t, assignmentRepo.Grant(ctx, &rbac.Assignment{
		PrincipalID: "user-1",
		RoleName:    rbac.RoleViewer,
		Scope:       rbac.ScopeGlobal,
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resolved, err := cache.Get(ctx, "user-1")
			assert.NoError(t, err)
			assert.True(t, resolved.HasGlobal(rbac.PermGlobalClustersRead))
		}()
	}
	wg.Wait()

	// All goroutines share at most a handful of computations; without
	// collapsing this would be 16.
	assert.Less(t, assignmentRepo.Resolves, 16)
}

func TestCache_TTLExpiry(t *testing.T) {
	roleRepo := NewFakeRoleRepository()
	assignmentRepo := NewFakeAssignmentRepository()
	cache := rbac.NewCache(rbac.NewResolver(roleRepo, assignmentRepo), rbac.CacheConfig{
		TTL:        50 * time.Millisecond,
		MaxEntries: 16,
	})
	ctx := context.Background()

	_, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, assignmentRepo.Resolves)

	time.Sleep(120 * time.Millisecond)

	_, err = cache.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, assignmentRepo.Resolves)
}

func TestCache_ErrorNotCached(t *testing.T) {
	cache, assignmentRepo := newCacheFixture()
	ctx := context.Background()

	assignmentRepo.FailErr = context.DeadlineExceeded
	_, err := cache.Get(ctx, "user-1")
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())

	assignmentRepo.FailErr = nil
	_, err = cache.Get(ctx, "user-1")
	assert.NoError(t, err)
}
