// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/crmsync/internal/status"
)

// TenantIDParam returns the tenant addressed by the {tenantId} path segment.
// Ids that cannot name a tenant are rejected before any lookup.
func TenantIDParam(r *http.Request) (string, error) {
	id, err := pathParam(r, "tenantId")
	if err != nil {
		return "", err
	}
	if !status.ValidTenantID(id) {
		return "", fmt.Errorf("tenantId %q is invalid", id)
	}
	return id, nil
}

// SystemParam returns the sending system named by the {system} path segment.
// Whether the system is configured is up to the caller.
func SystemParam(r *http.Request) (string, error) {
	return pathParam(r, "system")
}

func pathParam(r *http.Request, name string) (string, error) {
	value, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", name)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s cannot be empty", name)
	}
	if strings.IndexFunc(value, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("%s cannot contain whitespace", name)
	}
	return value, nil
}
