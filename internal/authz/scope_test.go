package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stacklok/crmsync/internal/config"
)

func TestExtractScopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		claims map[string]any
		want   []string
	}{
		{name: "space separated scope", claims: map[string]any{"scope": "openid crmsync:write"}, want: []string{"openid", "crmsync:write"}},
		{name: "scp array", claims: map[string]any{"scp": []any{"crmsync:read", 7, ""}}, want: []string{"crmsync:read"}},
		{name: "scope wins over scp", claims: map[string]any{"scope": "crmsync:admin", "scp": []any{"crmsync:read"}}, want: []string{"crmsync:admin"}},
		{name: "empty scope falls back to scp", claims: map[string]any{"scope": "", "scp": []any{"crmsync:read"}}, want: []string{"crmsync:read"}},
		{name: "blank scope", claims: map[string]any{"scope": "  "}, want: []string{}},
		{name: "scope of wrong type", claims: map[string]any{"scope": []any{"crmsync:read"}}},
		{name: "no scope claims", claims: map[string]any{"sub": "ops@acme"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractScopes(tt.claims))
		})
	}
}

func TestExtractTenants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		claims map[string]any
		want   []string
	}{
		{name: "no claim", claims: map[string]any{"scope": "crmsync:read"}},
		{name: "array", claims: map[string]any{TenantsClaim: []any{"acme", "globex"}}, want: []string{"acme", "globex"}},
		{name: "string", claims: map[string]any{TenantsClaim: "acme globex"}, want: []string{"acme", "globex"}},
		{name: "empty array limits to nothing", claims: map[string]any{TenantsClaim: []any{}}, want: []string{}},
		{name: "wrong type limits to nothing", claims: map[string]any{TenantsClaim: 42.0}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractTenants(tt.claims))
		})
	}
}

func TestMapScopesToActions(t *testing.T) {
	t.Parallel()

	custom := []config.ScopeMappingEntry{
		{Scope: "crm:viewer", Actions: []string{ActionRead}},
		{Scope: "crm:operator", Actions: []string{ActionWrite, ActionRead}},
	}

	tests := []struct {
		name    string
		scopes  []string
		mapping []config.ScopeMappingEntry
		want    []string
	}{
		{name: "read", scopes: []string{"crmsync:read"}, mapping: config.DefaultScopeMapping, want: []string{"read"}},
		{name: "write includes read", scopes: []string{"crmsync:write"}, mapping: config.DefaultScopeMapping, want: []string{"read", "write"}},
		{name: "admin sorted", scopes: []string{"crmsync:admin"}, mapping: config.DefaultScopeMapping, want: []string{"admin", "read", "write"}},
		{name: "overlapping scopes", scopes: []string{"crmsync:read", "openid", "crmsync:write"}, mapping: config.DefaultScopeMapping, want: []string{"read", "write"}},
		{name: "custom mapping", scopes: []string{"crm:viewer", "crm:operator"}, mapping: custom, want: []string{"read", "write"}},
		{name: "unmapped scope", scopes: []string{"openid"}, mapping: config.DefaultScopeMapping, want: []string{}},
		{name: "no mapping", scopes: []string{"crmsync:read"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MapScopesToActions(tt.scopes, tt.mapping))
		})
	}
}

func TestGrantFromClaims(t *testing.T) {
	t.Parallel()

	g := grantFromClaims(map[string]any{
		"scope":      "crmsync:write",
		TenantsClaim: []any{"acme"},
	}, config.DefaultScopeMapping)

	assert.Equal(t, []string{"crmsync:write"}, g.scopes)
	assert.Equal(t, []string{"read", "write"}, g.actions)
	assert.Equal(t, []string{"acme"}, g.tenants)
}
