package rest

import (
	"fmt"
	"strings"
	"time"

	"github.com/stacklok/crmsync/internal/entity"
)

const (
	defaultIDPath            = "id"
	defaultVersionPath       = "version"
	defaultUpdatedAtPath     = "updatedAt"
	defaultCanonicalIDPath   = "externalRef"
	defaultChangedSinceParam = "updatedSince"
)

// Config describes how to talk to one REST system
type Config struct {
	// Name is the system name the adapter registers under
	Name string

	// BaseURL is prepended to every collection path
	BaseURL string

	// Token is sent as a bearer token when set
	Token string

	// Timeout bounds each HTTP request
	Timeout time.Duration

	// Kinds maps each supported entity kind to its resource layout
	Kinds map[entity.Kind]KindConfig
}

// KindConfig describes the resource layout of one entity kind.
// All paths use gjson syntax and are relative to a single record.
type KindConfig struct {
	// Path is the collection path, e.g. "/contacts"
	Path string

	// ListPath locates the record array in list responses; empty means the root is the array
	ListPath string

	// ItemPath locates the record in single-record responses; empty means the root
	ItemPath string

	IDPath        string
	VersionPath   string
	UpdatedAtPath string

	// CanonicalIDPath is where the canonical entity id is stored on the remote record
	CanonicalIDPath string

	// Fields maps canonical field names to record paths
	Fields map[string]string

	// ChangedSinceParam is the query parameter carrying the watermark
	ChangedSinceParam string

	// LookupParam is the query parameter used to find a record by canonical id.
	// Defaults to CanonicalIDPath.
	LookupParam string

	// CursorPath locates the next-page cursor in list responses; empty disables paging
	CursorPath string

	// CursorParam is the query parameter carrying the cursor
	CursorParam string
}

func (k KindConfig) withDefaults() KindConfig {
	if k.IDPath == "" {
		k.IDPath = defaultIDPath
	}
	if k.VersionPath == "" {
		k.VersionPath = defaultVersionPath
	}
	if k.UpdatedAtPath == "" {
		k.UpdatedAtPath = defaultUpdatedAtPath
	}
	if k.CanonicalIDPath == "" {
		k.CanonicalIDPath = defaultCanonicalIDPath
	}
	if k.ChangedSinceParam == "" {
		k.ChangedSinceParam = defaultChangedSinceParam
	}
	if k.LookupParam == "" {
		k.LookupParam = k.CanonicalIDPath
	}
	if k.CursorParam == "" {
		k.CursorParam = "cursor"
	}
	return k
}

func (c *Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("%s: baseURL is required", c.Name)
	}
	if len(c.Kinds) == 0 {
		return fmt.Errorf("%s: at least one kind must be configured", c.Name)
	}
	for kind, kc := range c.Kinds {
		if _, err := entity.ParseKind(string(kind)); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
		if !strings.HasPrefix(kc.Path, "/") {
			return fmt.Errorf("%s.kinds.%s: path must start with '/'", c.Name, kind)
		}
		for field := range kc.Fields {
			if !knownField(kind, field) {
				return fmt.Errorf("%s.kinds.%s.fields: unknown field %q", c.Name, kind, field)
			}
		}
	}
	return nil
}

func knownField(kind entity.Kind, name string) bool {
	for _, def := range entity.Schema(kind) {
		if def.Name == name {
			return true
		}
	}
	return false
}
