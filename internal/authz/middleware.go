package authz

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/stacklok/crmsync/internal/auth"
	"github.com/stacklok/crmsync/internal/config"
)

// ForbiddenResponse is the JSON body returned when authorization is denied.
type ForbiddenResponse struct {
	Error   string           `json:"error"`
	Message string           `json:"message"`
	Details *ForbiddenDetail `json:"details,omitempty"`
}

// ForbiddenDetail provides additional context for authorization denials,
// helping callers understand why access was denied and what is required.
type ForbiddenDetail struct {
	RequiredAction string   `json:"required_action"`
	UserScopes     []string `json:"user_scopes"`
	Hint           string   `json:"hint"`
}

// Middleware creates an HTTP middleware that performs Cedar-based authorization.
// It must run after the auth middleware has stored the token claims in the context.
// Requests without claims are passed through without authorization checks.
func Middleware(authorizer Authorizer, scopeMapping []config.ScopeMappingEntry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				// anonymous mode
				next.ServeHTTP(w, r)
				return
			}

			subject, _ := claims.GetSubject()
			g := grantFromClaims(claims, scopeMapping)
			requiredAction := RouteAction(r.Method, r.URL.Path)
			tenantID := TenantFromPath(r.URL.Path)

			req := Request{
				GrantedActions: g.actions,
				Action:         requiredAction,
				ResourceType:   defaultResourceType,
				ResourceID:     tenantID,
				Tenants:        g.tenants,
			}

			decision, err := authorizer.Authorize(r.Context(), req)
			if err != nil {
				slog.Error("Authorization evaluation failed",
					"error", err,
					"action", requiredAction,
					"path", r.URL.Path,
					"method", r.Method,
					"subject", subject,
				)
				writeJSONError(w, http.StatusInternalServerError, "authorization evaluation failed")
				return
			}

			if !decision.Allowed {
				slog.Warn("Authorization denied",
					"action", requiredAction,
					"path", r.URL.Path,
					"method", r.Method,
					"subject", subject,
					"tenant", tenantID,
					"scopes", g.scopes,
					"granted_actions", g.actions,
					"token_tenants", g.tenants,
					"reasons", decision.Reasons,
				)
				writeForbidden(w, requiredAction, g, scopeMapping)
				return
			}

			slog.Debug("Authorization permitted",
				"action", requiredAction,
				"path", r.URL.Path,
				"method", r.Method,
				"subject", subject,
				"reasons", decision.Reasons,
			)

			next.ServeHTTP(w, r)
		})
	}
}

// NoopMiddleware returns a middleware that performs no authorization checks.
// Use this when authorization is disabled in the configuration.
func NoopMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// writeForbidden writes a 403 Forbidden JSON response with details about
// the required action and a hint indicating which scopes would grant access.
func writeForbidden(w http.ResponseWriter, requiredAction string, g grant, scopeMapping []config.ScopeMappingEntry) {
	hint := buildHint(requiredAction, scopeMapping)
	if g.tenants != nil && slices.Contains(g.actions, requiredAction) {
		hint = "The token is limited to other tenants."
	}

	resp := ForbiddenResponse{
		Error:   "forbidden",
		Message: "You do not have permission to perform this action.",
		Details: &ForbiddenDetail{
			RequiredAction: requiredAction,
			UserScopes:     g.scopes,
			Hint:           hint,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode forbidden response", "error", err)
	}
}

// writeJSONError writes a generic JSON error response with the given status code.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	resp := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// buildHint examines the scope mapping to find which scopes grant the
// required action and returns a human-readable hint string.
func buildHint(requiredAction string, scopeMapping []config.ScopeMappingEntry) string {
	var matchingScopes []string

	for _, entry := range scopeMapping {
		if slices.Contains(entry.Actions, requiredAction) {
			matchingScopes = append(matchingScopes, entry.Scope)
		}
	}

	if len(matchingScopes) == 0 {
		return "No configured scopes grant the required action."
	}

	return "This operation requires one of the following scopes: " + strings.Join(matchingScopes, ", ")
}

// NewMiddleware builds the authorization middleware for the admin API.
// Without an authorization section every authenticated caller is allowed.
func NewMiddleware(cfg *config.AuthConfig) (func(http.Handler) http.Handler, error) {
	if cfg == nil || cfg.Authorization == nil {
		return NoopMiddleware(), nil
	}

	policies, err := cfg.Authorization.GetPolicies()
	if err != nil {
		return nil, err
	}
	authorizer, err := NewCedarAuthorizer(policies)
	if err != nil {
		return nil, err
	}

	slog.Info("Admin API authorization enabled",
		"scopes", len(cfg.Authorization.GetScopeMapping()),
		"custom_policies", policies != nil)
	return Middleware(authorizer, cfg.Authorization.GetScopeMapping()), nil
}
