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
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Decision is the Gate's answer to a permission check. Deny is a first-class
// result, not an error: most unauthorized attempts end here and must not pay
// for exception handling.
type Decision int

const (
	Deny Decision = iota
	Allow
)

// Allowed reports whether the decision permits the action.
func (d Decision) Allowed() bool {
	return d == Allow
}

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Gate is the reusable guard invoked by request handlers. It composes the
// cache and decision logic into a single allow/deny call and never mutates
// state.
type Gate struct {
	cache  *Cache
	checks metric.Int64Counter
}

// NewGate creates a new enforcement gate
func NewGate(cache *Cache) *Gate {
	return &Gate{cache: cache}
}

// SetInstruments attaches the decision counter. Optional.
func (g *Gate) SetInstruments(checks metric.Int64Counter) {
	g.checks = checks
}

// Check decides whether the principal may exercise a permission, optionally
// against a (resourceType, resourceID) pair. Order of evaluation:
//
//  1. global:admin in the global set supersedes everything
//  2. the permission itself in the global set
//  3. the permission in the scoped map entry for the given resource
//
// If the resolved set cannot be computed (store unreachable), the result is
// Deny. Fail closed, never "allow by default".
func (g *Gate) Check(ctx context.Context, principalID, permission, resourceType, resourceID string) Decision {
	if principalID == "" {
		return g.record(ctx, permission, Deny)
	}

	resolved, err := g.cache.Get(ctx, principalID)
	if err != nil {
		slog.ErrorContext(ctx, "permission resolution failed, denying",
			slog.String("principal_id", principalID),
			slog.String("permission", permission),
			slog.String("error", err.Error()),
		)
		return g.record(ctx, permission, Deny)
	}

	if resolved.HasGlobal(PermGlobalAdmin) {
		return g.record(ctx, permission, Allow)
	}
	if resolved.HasGlobal(permission) {
		return g.record(ctx, permission, Allow)
	}
	if resourceType != "" && resourceID != "" && resolved.HasScoped(resourceType, resourceID, permission) {
		return g.record(ctx, permission, Allow)
	}

	return g.record(ctx, permission, Deny)
}

// CheckAny allows if at least one of the permissions passes Check against
// the same resource.
func (g *Gate) CheckAny(ctx context.Context, principalID, resourceType, resourceID string, permissions ...string) Decision {
	for _, p := range permissions {
		if g.Check(ctx, principalID, p, resourceType, resourceID).Allowed() {
			return Allow
		}
	}
	return Deny
}

// CheckAll allows only if every permission passes Check against the same
// resource.
func (g *Gate) CheckAll(ctx context.Context, principalID, resourceType, resourceID string, permissions ...string) Decision {
	if len(permissions) == 0 {
		return Deny
	}
	for _, p := range permissions {
		if !g.Check(ctx, principalID, p, resourceType, resourceID).Allowed() {
			return Deny
		}
	}
	return Allow
}

func (g *Gate) record(ctx context.Context, permission string, d Decision) Decision {
	if g.checks != nil {
		g.checks.Add(ctx, 1, metric.WithAttributes(
			attribute.String("permission", permission),
			attribute.String("decision", d.String()),
		))
	}
	return d
}
