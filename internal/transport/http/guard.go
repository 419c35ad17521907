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

package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marchproxy/authzd/internal/observability/logger"
	"github.com/marchproxy/authzd/internal/rbac"
)

// Guard wraps protected routes with permission requirements. Requirements
// are configuration attached at route registration, not annotations baked
// into handler identity.
type Guard struct {
	gate *rbac.Gate
}

// NewGuard creates a new route guard
func NewGuard(gate *rbac.Gate) *Guard {
	return &Guard{gate: gate}
}

// Requirement describes what a route demands: one or more permissions, the
// matching mode, and how to locate the resource id in the request.
type Requirement struct {
	Permissions []string

	// RequireAll demands every permission; the default is any-of
	RequireAll bool

	// ResourceType is "cluster" or "service" for scoped checks
	ResourceType string

	// ResourceParam names the chi URL parameter carrying the resource id.
	// Falls back to a query parameter of the same name.
	ResourceParam string
}

// Require returns a middleware enforcing a single global permission.
func (g *Guard) Require(permission string) func(http.Handler) http.Handler {
	return g.Enforce(Requirement{Permissions: []string{permission}})
}

// RequireScoped returns a middleware enforcing a permission against the
// resource id extracted from the named URL parameter.
func (g *Guard) RequireScoped(permission, resourceType, resourceParam string) func(http.Handler) http.Handler {
	return g.Enforce(Requirement{
		Permissions:   []string{permission},
		ResourceType:  resourceType,
		ResourceParam: resourceParam,
	})
}

// Enforce returns a middleware enforcing the full requirement.
func (g *Guard) Enforce(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID := GetPrincipalID(r.Context())
			if principalID == "" {
				respondErrorCode(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "authentication required")
				return
			}

			resourceID := ""
			if req.ResourceParam != "" {
				resourceID = chi.URLParam(r, req.ResourceParam)
				if resourceID == "" {
					resourceID = r.URL.Query().Get(req.ResourceParam)
				}
				if resourceID == "" {
					respondError(w, http.StatusBadRequest, "missing "+req.ResourceParam)
					return
				}
			}

			var decision rbac.Decision
			if req.RequireAll {
				decision = g.gate.CheckAll(r.Context(), principalID, req.ResourceType, resourceID, req.Permissions...)
			} else {
				decision = g.gate.CheckAny(r.Context(), principalID, req.ResourceType, resourceID, req.Permissions...)
			}

			if !decision.Allowed() {
				slog.WarnContext(r.Context(), "permission denied",
					logger.PrincipalID(principalID),
					slog.Any("permissions", req.Permissions),
					logger.ResourceType(req.ResourceType),
					logger.ResourceID(resourceID),
				)
				respondErrorCode(w, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
