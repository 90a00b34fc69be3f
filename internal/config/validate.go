package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/stacklok/crmsync/internal/entity"
)

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.Sync.validate(); err != nil {
		return err
	}

	if c.SystemOfRecord.Name == "" {
		return fmt.Errorf("systemOfRecord: name is required")
	}
	if err := validateConnector(&c.SystemOfRecord, "systemOfRecord"); err != nil {
		return err
	}

	names := map[string]bool{c.SystemOfRecord.Name: true}
	for i := range c.Connectors {
		conn := &c.Connectors[i]
		if conn.Name == "" {
			return fmt.Errorf("connectors[%d]: name is required", i)
		}
		if names[conn.Name] {
			return fmt.Errorf("connectors[%d]: duplicate connector name '%s'", i, conn.Name)
		}
		names[conn.Name] = true

		if err := validateConnector(conn, fmt.Sprintf("connectors[%d] (%s)", i, conn.Name)); err != nil {
			return err
		}
	}

	if err := c.validateWebhooks(names); err != nil {
		return err
	}
	if err := c.validateTenants(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

func (s SyncConfig) validate() error {
	durations := map[string]string{
		"backoffInitial":   s.BackoffInitial,
		"backoffMax":       s.BackoffMax,
		"pollInterval":     s.PollInterval,
		"adapterTimeout":   s.AdapterTimeout,
		"recoveryLookback": s.RecoveryLookback,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("sync.%s must be a valid duration (e.g., '30s', '1m'): %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("sync.%s must be positive", name)
		}
	}

	if s.GetBackoffInitial() > s.GetBackoffMax() {
		return fmt.Errorf("sync.backoffInitial must not exceed sync.backoffMax")
	}
	if s.Workers < 0 || s.BatchSize < 0 || s.MaxAttempts < 0 || s.FailureBurstThreshold < 0 {
		return fmt.Errorf("sync: counts must not be negative")
	}
	return nil
}

func validateConnector(conn *ConnectorConfig, prefix string) error {
	switch conn.Type {
	case ConnectorTypeMemory:
		if conn.REST != nil {
			return fmt.Errorf("%s: rest configuration is not allowed for type %s", prefix, conn.Type)
		}
		return nil
	case ConnectorTypeREST:
		return validateRESTConfig(conn.REST, prefix)
	case "":
		return fmt.Errorf("%s: type is required", prefix)
	default:
		return fmt.Errorf("%s: unsupported connector type '%s'", prefix, conn.Type)
	}
}

func validateRESTConfig(r *RESTConfig, prefix string) error {
	if r == nil {
		return fmt.Errorf("%s: rest configuration is required", prefix)
	}
	if r.BaseURL == "" {
		return fmt.Errorf("%s: rest.baseURL is required", prefix)
	}
	if r.Timeout != "" {
		if _, err := time.ParseDuration(r.Timeout); err != nil {
			return fmt.Errorf("%s: rest.timeout must be a valid duration: %w", prefix, err)
		}
	}
	if len(r.Kinds) == 0 {
		return fmt.Errorf("%s: rest.kinds must configure at least one kind", prefix)
	}
	for kind, kc := range r.Kinds {
		if _, err := entity.ParseKind(kind); err != nil {
			return fmt.Errorf("%s: rest.kinds: %w", prefix, err)
		}
		if !strings.HasPrefix(kc.Path, "/") {
			return fmt.Errorf("%s: rest.kinds.%s.path must start with '/'", prefix, kind)
		}
	}
	return nil
}

func (c *Config) validateWebhooks(connectors map[string]bool) error {
	systems := make(map[string]bool)
	for i, w := range c.Webhooks {
		prefix := fmt.Sprintf("webhooks[%d] (%s)", i, w.System)
		if !connectors[w.System] {
			return fmt.Errorf("%s: system must name a configured connector", prefix)
		}
		if systems[w.System] {
			return fmt.Errorf("%s: duplicate webhook system", prefix)
		}
		systems[w.System] = true

		if w.SecretFile == "" && w.SecretEnv == "" {
			return fmt.Errorf("%s: secretFile or secretEnv is required", prefix)
		}
		for vendor, kind := range w.KindMap {
			if _, err := entity.ParseKind(kind); err != nil {
				return fmt.Errorf("%s: kindMap[%s]: %w", prefix, vendor, err)
			}
		}
	}
	return nil
}

func (c *Config) validateTenants() error {
	seen := make(map[string]bool)
	for i := range c.Tenants {
		t := &c.Tenants[i]
		prefix := fmt.Sprintf("tenants[%d] (%s)", i, t.TenantID)
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		if seen[t.TenantID] {
			return fmt.Errorf("%s: duplicate tenant", prefix)
		}
		seen[t.TenantID] = true

		if err := c.ValidateTenantAdapters(t); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return nil
}

// ValidateTenantAdapters checks that every adapter of t names an external connector
func (c *Config) ValidateTenantAdapters(t *TenantConfig) error {
	for i, a := range t.Adapters {
		if a.Name == c.SystemOfRecord.Name {
			return fmt.Errorf("adapters[%d]: the system-of-record cannot be enabled as an adapter", i)
		}
		if _, ok := c.Connector(a.Name); !ok {
			return fmt.Errorf("adapters[%d]: unknown connector '%s'", i, a.Name)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.GetStorageType() {
	case StorageTypeFile:
		return nil
	case StorageTypeDatabase:
		if c.Database == nil {
			return fmt.Errorf("storage: database configuration is required for storage type %s", StorageTypeDatabase)
		}
		return c.Database.validate()
	default:
		return fmt.Errorf("storage: unknown storage type '%s'", c.Storage.Type)
	}
}

func (d *DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("database: host is required")
	}
	if d.Port <= 0 {
		return fmt.Errorf("database: port is required")
	}
	if d.User == "" {
		return fmt.Errorf("database: user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database: database name is required")
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("database: connMaxLifetime must be a valid duration: %w", err)
		}
	}
	if d.DynamicAuth != nil && d.DynamicAuth.AWSRDSIAM != nil && d.DynamicAuth.AWSRDSIAM.Region == "" {
		return fmt.Errorf("database: dynamicAuth.awsRdsIam.region is required")
	}
	return nil
}

func (c *Config) validateAuth() error {
	switch c.GetAuthMode() {
	case AuthModeAnonymous:
		if c.Auth != nil && c.Auth.Authorization != nil {
			return fmt.Errorf("auth: authorization requires mode %s", AuthModeJWT)
		}
		return nil
	case AuthModeJWT:
		if c.Auth.JWT == nil || (c.Auth.JWT.SecretFile == "" && c.Auth.JWT.SecretEnv == "") {
			return fmt.Errorf("auth: jwt.secretFile or jwt.secretEnv is required for mode %s", AuthModeJWT)
		}
		return c.Auth.Authorization.validate()
	default:
		return fmt.Errorf("auth: unknown mode '%s'", c.Auth.Mode)
	}
}

func (a *AuthorizationConfig) validate() error {
	if a == nil {
		return nil
	}
	for i, entry := range a.ScopeMapping {
		if entry.Scope == "" {
			return fmt.Errorf("auth: authorization.scopeMapping[%d]: scope is required", i)
		}
		for _, action := range entry.Actions {
			switch action {
			case ActionRead, ActionWrite, ActionAdmin:
			default:
				return fmt.Errorf("auth: authorization.scopeMapping[%d]: unknown action '%s'", i, action)
			}
		}
	}
	return nil
}
