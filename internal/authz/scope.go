package authz

import (
	"slices"
	"strings"

	"github.com/stacklok/crmsync/internal/config"
)

// TenantsClaim lists the tenants a token may address, as an array or a
// space-separated string. Tokens without it may address every tenant.
const TenantsClaim = "crmsync_tenants"

// grant is what the token of a caller allows
type grant struct {
	scopes  []string
	actions []string
	// tenants is nil when the token is not limited to particular tenants
	tenants []string
}

func grantFromClaims(claims map[string]any, mapping []config.ScopeMappingEntry) grant {
	scopes := ExtractScopes(claims)
	return grant{
		scopes:  scopes,
		actions: MapScopesToActions(scopes, mapping),
		tenants: ExtractTenants(claims),
	}
}

// ExtractScopes returns the OAuth scopes of a token, read from the
// space-separated "scope" claim or from the "scp" array.
func ExtractScopes(claims map[string]any) []string {
	if scope, ok := claims["scope"].(string); ok && scope != "" {
		return strings.Fields(scope)
	}
	return stringList(claims["scp"])
}

// ExtractTenants returns the tenants a token is limited to, or nil when the
// token carries no tenant claim. A claim that lists nothing usable limits the
// token to no tenant at all.
func ExtractTenants(claims map[string]any) []string {
	raw, ok := claims[TenantsClaim]
	if !ok {
		return nil
	}
	var tenants []string
	if s, ok := raw.(string); ok {
		tenants = strings.Fields(s)
	} else {
		tenants = stringList(raw)
	}
	if tenants == nil {
		return []string{}
	}
	return tenants
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MapScopesToActions returns the sorted set of actions that the scope
// mapping grants to scopes.
func MapScopesToActions(scopes []string, mapping []config.ScopeMappingEntry) []string {
	actions := []string{}
	for _, entry := range mapping {
		if !slices.Contains(scopes, entry.Scope) {
			continue
		}
		for _, action := range entry.Actions {
			if !slices.Contains(actions, action) {
				actions = append(actions, action)
			}
		}
	}
	slices.Sort(actions)
	return actions
}
