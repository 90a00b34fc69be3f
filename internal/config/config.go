// Package config provides configuration loading and management for the sync server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/crmsync/internal/telemetry"
)

const (
	// StorageTypeFile keeps tenant state in per-tenant JSON files and mappings in memory
	StorageTypeFile = "file"

	// StorageTypeDatabase keeps all durable state in PostgreSQL
	StorageTypeDatabase = "database"
)

const (
	// ConnectorTypeMemory is an in-process store, used for demos and tests
	ConnectorTypeMemory = "memory"

	// ConnectorTypeREST talks to a JSON REST API described by configuration
	ConnectorTypeREST = "rest"
)

const (
	// ActionRead covers tenant listing, status and configuration reads
	ActionRead = "read"

	// ActionWrite covers pause, resume and manual sweeps
	ActionWrite = "write"

	// ActionAdmin covers tenant configuration changes and deletion
	ActionAdmin = "admin"
)

const (
	// AuthModeAnonymous leaves the admin API unauthenticated
	AuthModeAnonymous = "anonymous"

	// AuthModeJWT requires an HS256 bearer token on the admin API
	AuthModeJWT = "jwt"
)

const (
	defaultAddress               = ":8080"
	defaultDataDir               = "./data"
	defaultWorkers               = 4
	defaultBatchSize             = 16
	defaultMaxAttempts           = 5
	defaultBackoffInitial        = time.Second
	defaultBackoffMax            = time.Minute
	defaultPollInterval          = time.Second
	defaultAdapterTimeout        = 30 * time.Second
	defaultRecoveryLookback      = time.Hour
	defaultFailureBurstThreshold = 10
	defaultSignatureHeader       = "X-Signature-256"

	// DatabasePasswordEnv is read when no password file is configured
	DatabasePasswordEnv = "CRMSYNC_DATABASE_PASSWORD"

	// EnvPrefix is the prefix of environment variables read by the server
	EnvPrefix = "CRMSYNC"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Server ServerConfig `yaml:"server,omitempty"`
	Sync   SyncConfig   `yaml:"sync,omitempty"`

	// SystemOfRecord is the connector holding canonical entity ids
	SystemOfRecord ConnectorConfig `yaml:"systemOfRecord"`

	// Connectors are the external systems entities are synchronized with
	Connectors []ConnectorConfig `yaml:"connectors,omitempty"`

	// Webhooks configures inbound change notifications per system
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`

	// Tenants seeds the tenant registry at startup and on reload
	Tenants []TenantConfig `yaml:"tenants,omitempty"`

	Storage   StorageConfig     `yaml:"storage,omitempty"`
	Database  *DatabaseConfig   `yaml:"database,omitempty"`
	Auth      *AuthConfig       `yaml:"auth,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// ServerConfig defines HTTP server settings
type ServerConfig struct {
	// Address is the listen address, e.g. ":8080"
	Address string `yaml:"address,omitempty"`
}

// SyncConfig tunes the orchestrator and scheduler.
// Durations use Go duration syntax, e.g. "500ms" or "1m".
type SyncConfig struct {
	Workers     int `yaml:"workers,omitempty"`
	BatchSize   int `yaml:"batchSize,omitempty"`
	MaxAttempts int `yaml:"maxAttempts,omitempty"`

	BackoffInitial string `yaml:"backoffInitial,omitempty"`
	BackoffMax     string `yaml:"backoffMax,omitempty"`

	// PollInterval is how often idle workers look for delayed retries
	PollInterval string `yaml:"pollInterval,omitempty"`

	// AdapterTimeout bounds every single adapter call
	AdapterTimeout string `yaml:"adapterTimeout,omitempty"`

	// RecoveryLookback rewinds watermarks on the first sweep after a restart
	RecoveryLookback string `yaml:"recoveryLookback,omitempty"`

	// FailureBurstThreshold is the number of permanent failures per tenant and
	// minute above which an aggregate warning is logged
	FailureBurstThreshold int `yaml:"failureBurstThreshold,omitempty"`
}

// ConnectorConfig defines one system the engine can read from and write to
type ConnectorConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	REST *RESTConfig `yaml:"rest,omitempty"`
}

// RESTConfig defines a connector backed by a JSON REST API
type RESTConfig struct {
	BaseURL string `yaml:"baseURL"`

	// TokenFile holds the bearer token; TokenEnv names an environment variable holding it
	TokenFile string `yaml:"tokenFile,omitempty"`
	TokenEnv  string `yaml:"tokenEnv,omitempty"`

	// Timeout bounds each HTTP request; defaults to the sync adapter timeout
	Timeout string `yaml:"timeout,omitempty"`

	Kinds map[string]RESTKindConfig `yaml:"kinds"`
}

// RESTKindConfig describes the resource layout of one entity kind.
// Paths use gjson syntax.
type RESTKindConfig struct {
	Path              string            `yaml:"path"`
	ListPath          string            `yaml:"listPath,omitempty"`
	ItemPath          string            `yaml:"itemPath,omitempty"`
	IDPath            string            `yaml:"idPath,omitempty"`
	VersionPath       string            `yaml:"versionPath,omitempty"`
	UpdatedAtPath     string            `yaml:"updatedAtPath,omitempty"`
	CanonicalIDPath   string            `yaml:"canonicalIdPath,omitempty"`
	Fields            map[string]string `yaml:"fields,omitempty"`
	ChangedSinceParam string            `yaml:"changedSinceParam,omitempty"`
	LookupParam       string            `yaml:"lookupParam,omitempty"`
	CursorPath        string            `yaml:"cursorPath,omitempty"`
	CursorParam       string            `yaml:"cursorParam,omitempty"`
}

// WebhookConfig defines how notifications from one system are verified and read
type WebhookConfig struct {
	// System is the connector name the notifications come from
	System string `yaml:"system"`

	// SecretFile or SecretEnv provide the HMAC-SHA256 signing secret
	SecretFile string `yaml:"secretFile,omitempty"`
	SecretEnv  string `yaml:"secretEnv,omitempty"`

	// SignatureHeader carries the hex signature, optionally prefixed with "sha256="
	SignatureHeader string `yaml:"signatureHeader,omitempty"`

	// TenantPath, KindPath and IDPath locate the fields in the payload (gjson syntax)
	TenantPath string `yaml:"tenantPath,omitempty"`
	KindPath   string `yaml:"kindPath,omitempty"`
	IDPath     string `yaml:"idPath,omitempty"`

	// KindMap translates vendor entity type names to canonical kinds
	KindMap map[string]string `yaml:"kindMap,omitempty"`
}

// StorageConfig selects where durable state lives
type StorageConfig struct {
	Type    string `yaml:"type,omitempty"`
	DataDir string `yaml:"dataDir,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// MigrationUser runs schema migrations; defaults to User
	MigrationUser string `yaml:"migrationUser,omitempty"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`

	// DynamicAuth replaces the static password with short-lived credentials
	DynamicAuth *DynamicAuthConfig `yaml:"dynamicAuth,omitempty"`
}

// DynamicAuthConfig selects a dynamic credential provider
type DynamicAuthConfig struct {
	AWSRDSIAM *AWSRDSIAMConfig `yaml:"awsRdsIam,omitempty"`
}

// AWSRDSIAMConfig enables RDS IAM authentication tokens
type AWSRDSIAMConfig struct {
	// Region is the AWS region, or "detect" to read it from instance metadata
	Region string `yaml:"region"`
}

// AuthConfig protects the admin API
type AuthConfig struct {
	Mode string     `yaml:"mode,omitempty"`
	JWT  *JWTConfig `yaml:"jwt,omitempty"`

	// Authorization restricts what authenticated callers may do; nil allows everything
	Authorization *AuthorizationConfig `yaml:"authorization,omitempty"`
}

// DefaultScopeMapping is used when authorization is enabled without a scope mapping
var DefaultScopeMapping = []ScopeMappingEntry{
	{Scope: "crmsync:read", Actions: []string{ActionRead}},
	{Scope: "crmsync:write", Actions: []string{ActionRead, ActionWrite}},
	{Scope: "crmsync:admin", Actions: []string{ActionRead, ActionWrite, ActionAdmin}},
}

// AuthorizationConfig maps token scopes to admin actions evaluated by Cedar policies
type AuthorizationConfig struct {
	// ScopeMapping defaults to DefaultScopeMapping
	ScopeMapping []ScopeMappingEntry `yaml:"scopeMapping,omitempty"`

	// PolicyFile replaces the built-in policies
	PolicyFile string `yaml:"policyFile,omitempty"`
}

// ScopeMappingEntry grants actions to callers holding a scope
type ScopeMappingEntry struct {
	Scope   string   `yaml:"scope"`
	Actions []string `yaml:"actions"`
}

// GetScopeMapping returns the configured scope mapping or DefaultScopeMapping
func (a *AuthorizationConfig) GetScopeMapping() []ScopeMappingEntry {
	if len(a.ScopeMapping) == 0 {
		return DefaultScopeMapping
	}
	return a.ScopeMapping
}

// GetPolicies returns the custom Cedar policies, or nil for the built-in ones
func (a *AuthorizationConfig) GetPolicies() ([]byte, error) {
	if a.PolicyFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(a.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return data, nil
}

// JWTConfig configures HS256 bearer token verification
type JWTConfig struct {
	SecretFile string `yaml:"secretFile,omitempty"`
	SecretEnv  string `yaml:"secretEnv,omitempty"`
	Issuer     string `yaml:"issuer,omitempty"`
	Audience   string `yaml:"audience,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	config, err := readConfigFile(loaderCfg.path)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func readConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return &config, nil
}

// GetAddress returns the listen address
func (s ServerConfig) GetAddress() string {
	if s.Address == "" {
		return defaultAddress
	}
	return s.Address
}

// GetStorageType returns the storage type, defaulting to file
func (c *Config) GetStorageType() string {
	if c.Storage.Type == "" {
		return StorageTypeFile
	}
	return c.Storage.Type
}

// GetDataDir returns the directory used by file storage
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir == "" {
		return defaultDataDir
	}
	return c.Storage.DataDir
}

// GetAuthMode returns the admin API auth mode, defaulting to anonymous
func (c *Config) GetAuthMode() string {
	if c.Auth == nil || c.Auth.Mode == "" {
		return AuthModeAnonymous
	}
	return c.Auth.Mode
}

// Connector returns the connector with the given name, including the system-of-record
func (c *Config) Connector(name string) (ConnectorConfig, bool) {
	if c.SystemOfRecord.Name == name {
		return c.SystemOfRecord, true
	}
	for _, conn := range c.Connectors {
		if conn.Name == name {
			return conn, true
		}
	}
	return ConnectorConfig{}, false
}

// GetWorkers returns the worker pool size
func (s SyncConfig) GetWorkers() int {
	return positiveOr(s.Workers, defaultWorkers)
}

// GetBatchSize returns the number of operations withdrawn per dispatch
func (s SyncConfig) GetBatchSize() int {
	return positiveOr(s.BatchSize, defaultBatchSize)
}

// GetMaxAttempts returns the number of attempts before a transient failure becomes permanent
func (s SyncConfig) GetMaxAttempts() int {
	return positiveOr(s.MaxAttempts, defaultMaxAttempts)
}

// GetFailureBurstThreshold returns the per-minute permanent failure warning threshold
func (s SyncConfig) GetFailureBurstThreshold() int {
	return positiveOr(s.FailureBurstThreshold, defaultFailureBurstThreshold)
}

// GetBackoffInitial returns the first retry delay
func (s SyncConfig) GetBackoffInitial() time.Duration {
	return durationOr(s.BackoffInitial, defaultBackoffInitial)
}

// GetBackoffMax returns the largest retry delay
func (s SyncConfig) GetBackoffMax() time.Duration {
	return durationOr(s.BackoffMax, defaultBackoffMax)
}

// GetPollInterval returns the idle poll interval of the dispatcher
func (s SyncConfig) GetPollInterval() time.Duration {
	return durationOr(s.PollInterval, defaultPollInterval)
}

// GetAdapterTimeout returns the per-call adapter timeout
func (s SyncConfig) GetAdapterTimeout() time.Duration {
	return durationOr(s.AdapterTimeout, defaultAdapterTimeout)
}

// GetRecoveryLookback returns how far watermarks are rewound after a restart
func (s SyncConfig) GetRecoveryLookback() time.Duration {
	return durationOr(s.RecoveryLookback, defaultRecoveryLookback)
}

// GetToken returns the bearer token from TokenFile or TokenEnv.
// An empty token is valid and disables the Authorization header.
func (r *RESTConfig) GetToken() (string, error) {
	return readSecret(r.TokenFile, r.TokenEnv, false)
}

// GetTimeout returns the request timeout, or fallback when unset
func (r *RESTConfig) GetTimeout(fallback time.Duration) time.Duration {
	return durationOr(r.Timeout, fallback)
}

// GetSecret returns the signing secret
func (w *WebhookConfig) GetSecret() (string, error) {
	return readSecret(w.SecretFile, w.SecretEnv, true)
}

// GetSignatureHeader returns the header carrying the signature
func (w *WebhookConfig) GetSignatureHeader() string {
	if w.SignatureHeader == "" {
		return defaultSignatureHeader
	}
	return w.SignatureHeader
}

// GetSecret returns the HS256 signing secret
func (j *JWTConfig) GetSecret() (string, error) {
	return readSecret(j.SecretFile, j.SecretEnv, true)
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from CRMSYNC_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(DatabasePasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", DatabasePasswordEnv,
	)
}

// GetMigrationUser returns the user that runs migrations
func (d *DatabaseConfig) GetMigrationUser() string {
	if d.MigrationUser == "" {
		return d.User
	}
	return d.MigrationUser
}

// GetConnectionString builds a PostgreSQL connection string for the application user.
// With dynamic auth the password is left out; it is supplied per connection.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	if d.DynamicAuth != nil {
		return d.BuildConnectionStringWithAuth(d.User, ""), nil
	}
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}
	return d.BuildConnectionStringWithAuth(d.User, password), nil
}

// BuildConnectionStringWithAuth builds a connection string for user with the given
// password or token. The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) BuildConnectionStringWithAuth(user, password string) string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else {
		u.User = url.User(user)
	}
	return u.String()
}

func readSecret(file, env string, required bool) (string, error) {
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("failed to read secret from file %s: %w", file, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	if required {
		return "", fmt.Errorf("no secret configured: set a secret file or environment variable")
	}
	return "", nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
