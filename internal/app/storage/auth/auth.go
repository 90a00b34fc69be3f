// Package auth resolves short-lived database credentials for the sync server's
// PostgreSQL pool and migrations.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stacklok/crmsync/internal/app/storage/auth/aws"
	"github.com/stacklok/crmsync/internal/config"
)

var errNoAuthMethod = errors.New("dynamic auth is configured but no supported auth method (e.g., awsRdsIam) is specified")

// BeforeConnectFunc supplies credentials right before pgx opens a connection
type BeforeConnectFunc = func(ctx context.Context, connConfig *pgx.ConnConfig) error

// ResolveAuthToken returns a one-off token for user, or an empty string when
// dynamic authentication is not configured.
// Use it for short-lived connections such as migrations, where a BeforeConnect
// hook is not available.
func ResolveAuthToken(ctx context.Context, cfg *config.DatabaseConfig, user string) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}
	if cfg.DynamicAuth == nil {
		return "", nil
	}
	if cfg.DynamicAuth.AWSRDSIAM != nil {
		return aws.NewToken(ctx, cfg, user)
	}
	return "", errNoAuthMethod
}

// NewDynamicAuth returns a BeforeConnect hook that sets a fresh token as the
// password of every new pool connection.
func NewDynamicAuth(ctx context.Context, cfg *config.DatabaseConfig, user string) (BeforeConnectFunc, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}
	if cfg.DynamicAuth == nil {
		return nil, fmt.Errorf("dynamic authentication is not configured")
	}

	// only one provider exists today
	if cfg.DynamicAuth.AWSRDSIAM != nil {
		return aws.PgxAuthFunc(ctx, cfg, user)
	}
	return nil, errNoAuthMethod
}
