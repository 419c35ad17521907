// @title MarchProxy Authorization Service
// @version 1.0.0
// @description Scoped role-based authorization engine for the MarchProxy control plane

// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0

// @host localhost:8080
// @BasePath /api/v1

package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/marchproxy/authzd/internal/rbac"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	rbacService *rbac.Service
	guard       *Guard
	validate    *validator.Validate
}

// NewHandler creates a new HTTP handler
func NewHandler(rbacService *rbac.Service, guard *Guard) *Handler {
	return &Handler{
		rbacService: rbacService,
		guard:       guard,
		validate:    validator.New(),
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Administrative API. Every route below runs after upstream
	// authentication; the guard enforces the permission each one demands.
	r.Route("/api/v1/roles", func(r chi.Router) {
		r.Use(PrincipalMiddleware)

		// Role catalog reads are open to any authenticated principal
		r.Get("/", h.ListRoles)
		r.Get("/permissions", h.ListPermissions)

		r.With(h.guard.Require(rbac.PermGlobalUsersRead)).
			Get("/{name}", h.GetRole)
		r.With(h.guard.Require(rbac.PermGlobalUsersRead)).
			Get("/user/{principalID}", h.GetPrincipalAccess)

		r.With(h.guard.Require(rbac.PermGlobalAdmin)).
			Post("/", h.DefineRole)
		r.With(h.guard.Require(rbac.PermGlobalAdmin)).
			Put("/{name}", h.UpdateRolePermissions)
		r.With(h.guard.Require(rbac.PermGlobalAdmin)).
			Delete("/{name}", h.DeactivateRole)

		r.With(h.guard.Require(rbac.PermGlobalUsersWrite)).
			Post("/assign", h.AssignRole)
		r.With(h.guard.Require(rbac.PermGlobalUsersWrite)).
			Post("/revoke", h.RevokeRole)
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "authzd",
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func respondErrorCode(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
