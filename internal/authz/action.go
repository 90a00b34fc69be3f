package authz

import (
	"net/http"
	"strings"

	"github.com/stacklok/crmsync/internal/config"
)

// Action aliases from config for convenience within the authz package.
const (
	ActionRead  = config.ActionRead
	ActionWrite = config.ActionWrite
	ActionAdmin = config.ActionAdmin
)

// RouteAction determines the required Cedar action based on HTTP method and path.
// Paths are relative to the admin router mount point.
func RouteAction(method, path string) string {
	if method == http.MethodGet {
		return ActionRead
	}

	segments := splitPath(path)
	// tenant/{tenantId}/{operation}
	if method == http.MethodPost && len(segments) == 3 && segments[0] == "tenant" {
		switch segments[2] {
		case "pause", "resume", "sync":
			return ActionWrite
		}
	}

	// Configuration changes, deletion and anything unknown
	return ActionAdmin
}

// TenantFromPath extracts the tenant id addressed by an admin path,
// or an empty string for requests spanning all tenants.
func TenantFromPath(path string) string {
	segments := splitPath(path)
	if len(segments) >= 2 && (segments[0] == "tenant" || segments[0] == "status") {
		return segments[1]
	}
	return ""
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	path = strings.TrimPrefix(path, "sync/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
