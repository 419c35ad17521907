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
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marchproxy/authzd/internal/rbac"
)

// RoleResponse is the wire representation of a role
type RoleResponse struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	Scope       string    `json:"scope"`
	Permissions []string  `json:"permissions"`
	IsSystem    bool      `json:"is_system"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AssignmentResponse is the wire representation of an active assignment
type AssignmentResponse struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	RoleName    string    `json:"role_name"`
	Scope       string    `json:"scope"`
	ResourceID  *string   `json:"resource_id,omitempty"`
	GrantedBy   string    `json:"granted_by,omitempty"`
	GrantedAt   time.Time `json:"granted_at"`
}

func toRoleResponse(role *rbac.Role) RoleResponse {
	return RoleResponse{
		Name:        role.Name,
		DisplayName: role.DisplayName,
		Description: role.Description,
		Scope:       string(role.Scope),
		Permissions: role.Permissions,
		IsSystem:    role.IsSystem,
		IsActive:    role.IsActive,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func toAssignmentResponses(assignments []*rbac.Assignment) []AssignmentResponse {
	out := make([]AssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, AssignmentResponse{
			ID:          a.ID,
			PrincipalID: a.PrincipalID,
			RoleName:    a.RoleName,
			Scope:       string(a.Scope),
			ResourceID:  a.ResourceID,
			GrantedBy:   a.GrantedBy,
			GrantedAt:   a.GrantedAt,
		})
	}
	return out
}

// ListRoles returns the role catalog
// @Summary List roles
// @Tags Roles
// @Produce json
// @Param scope query string false "Filter by scope (global, cluster, service)"
// @Success 200 {object} map[string]any
// @Router /roles [get]
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	var scope *rbac.Scope
	if s := r.URL.Query().Get("scope"); s != "" {
		parsed, ok := rbac.ParseScope(s)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid scope")
			return
		}
		scope = &parsed
	}

	roles, err := h.rbacService.ListRoles(r.Context(), scope)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list roles")
		return
	}

	out := make([]RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}

	respondJSON(w, http.StatusOK, map[string]any{"roles": out})
}

// GetRole returns one role and its active assignments
// @Summary Get role
// @Tags Roles
// @Produce json
// @Param name path string true "Role name"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /roles/{name} [get]
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	role, err := h.rbacService.GetRole(r.Context(), name)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	assignments, err := h.rbacService.ListRoleAssignments(r.Context(), name)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"role":        toRoleResponse(role),
		"assignments": toAssignmentResponses(assignments),
	})
}

// DefineRoleRequest is the body for creating a custom role
type DefineRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=50"`
	DisplayName string   `json:"display_name" validate:"required,max=100"`
	Description string   `json:"description"`
	Scope       string   `json:"scope" validate:"required,oneof=global cluster service"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

// DefineRole creates a custom role
// @Summary Define a custom role
// @Tags Roles
// @Accept json
// @Produce json
// @Param request body DefineRoleRequest true "Role definition"
// @Success 201 {object} RoleResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /roles [post]
func (h *Handler) DefineRole(w http.ResponseWriter, r *http.Request) {
	var req DefineRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	scope, _ := rbac.ParseScope(req.Scope)

	role, err := h.rbacService.DefineRole(r.Context(), GetPrincipalID(r.Context()), &rbac.Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Scope:       scope,
		Permissions: req.Permissions,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toRoleResponse(role))
}

// UpdateRolePermissionsRequest is the body for replacing a custom role's
// permission set
type UpdateRolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

// UpdateRolePermissions replaces a custom role's permission set
// @Summary Update role permissions
// @Tags Roles
// @Accept json
// @Produce json
// @Param name path string true "Role name"
// @Param request body UpdateRolePermissionsRequest true "New permission set"
// @Success 200 {object} RoleResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /roles/{name} [put]
func (h *Handler) UpdateRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req UpdateRolePermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	role, err := h.rbacService.UpdateRolePermissions(
		r.Context(), GetPrincipalID(r.Context()), chi.URLParam(r, "name"), req.Permissions)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toRoleResponse(role))
}

// DeactivateRole disables a custom role
// @Summary Deactivate role
// @Tags Roles
// @Produce json
// @Param name path string true "Role name"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /roles/{name} [delete]
func (h *Handler) DeactivateRole(w http.ResponseWriter, r *http.Request) {
	err := h.rbacService.DeactivateRole(r.Context(), GetPrincipalID(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "role deactivated"})
}

// AssignRoleRequest is the body for granting a role
type AssignRoleRequest struct {
	PrincipalID string  `json:"principal_id" validate:"required"`
	RoleName    string  `json:"role_name" validate:"required"`
	Scope       string  `json:"scope" validate:"required,oneof=global cluster service"`
	ResourceID  *string `json:"resource_id,omitempty"`
}

// AssignRole grants a role to a principal
// @Summary Assign role
// @Tags Roles
// @Accept json
// @Produce json
// @Param request body AssignRoleRequest true "Assignment"
// @Success 201 {object} AssignmentResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /roles/assign [post]
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	scope, _ := rbac.ParseScope(req.Scope)

	assignment, err := h.rbacService.Assign(
		r.Context(), GetPrincipalID(r.Context()),
		req.PrincipalID, req.RoleName, scope, req.ResourceID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, AssignmentResponse{
		ID:          assignment.ID,
		PrincipalID: assignment.PrincipalID,
		RoleName:    assignment.RoleName,
		Scope:       string(assignment.Scope),
		ResourceID:  assignment.ResourceID,
		GrantedBy:   assignment.GrantedBy,
		GrantedAt:   assignment.GrantedAt,
	})
}

// RevokeRoleRequest is the body for revoking a role
type RevokeRoleRequest struct {
	PrincipalID string  `json:"principal_id" validate:"required"`
	RoleName    string  `json:"role_name" validate:"required"`
	ResourceID  *string `json:"resource_id,omitempty"`
}

// RevokeRole revokes matching active assignments. Idempotent: revoking a
// grant that does not exist still returns 200.
// @Summary Revoke role
// @Tags Roles
// @Accept json
// @Produce json
// @Param request body RevokeRoleRequest true "Revocation"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /roles/revoke [post]
func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	var req RevokeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.rbacService.Revoke(
		r.Context(), GetPrincipalID(r.Context()),
		req.PrincipalID, req.RoleName, req.ResourceID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "role revoked"})
}

// GetPrincipalAccess returns the active assignments and resolved permission
// set of a principal. Diagnostics endpoint.
// @Summary Get principal access
// @Tags Roles
// @Produce json
// @Param principalID path string true "Principal ID"
// @Success 200 {object} map[string]any
// @Router /roles/user/{principalID} [get]
func (h *Handler) GetPrincipalAccess(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")

	access, err := h.rbacService.GetPrincipalAccess(r.Context(), principalID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to resolve principal access")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"principal_id": access.PrincipalID,
		"assignments":  toAssignmentResponses(access.Assignments),
		"permissions": map[string]any{
			"global":  access.Resolved.GlobalList(),
			"cluster": access.Resolved.ClusterLists(),
			"service": access.Resolved.ServiceLists(),
		},
	})
}

// ListPermissions returns the static permission registry grouped by scope
// @Summary List permissions
// @Tags Roles
// @Produce json
// @Success 200 {object} map[string]any
// @Router /roles/permissions [get]
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	grouped := h.rbacService.Registry().ByScope()

	respondJSON(w, http.StatusOK, map[string]any{
		"scopes": map[string][]string{
			"global":  grouped[rbac.ScopeGlobal],
			"cluster": grouped[rbac.ScopeCluster],
			"service": grouped[rbac.ScopeService],
		},
	})
}

// respondDomainError maps domain errors onto HTTP status codes.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrRoleNotFound), errors.Is(err, rbac.ErrRoleInactive):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rbac.ErrRoleExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rbac.ErrImmutableRole):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, rbac.ErrInvalidPermission),
		errors.Is(err, rbac.ErrInvalidScope),
		errors.Is(err, rbac.ErrInvalidResource),
		errors.Is(err, rbac.ErrInvalidRoleName):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
