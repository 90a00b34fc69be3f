package auth

import (
	"context"
	"fmt"

	"github.com/stacklok/crmsync/internal/config"
)

// MigrationConnectionString builds the connection string used by "crmsync-server migrate".
// golang-migrate opens its own connection, so a dynamic token, when configured,
// is embedded as the password of the migration user.
// Without dynamic auth the configured password is used; failing that the
// string carries no password and libpq falls back to ~/.pgpass.
func MigrationConnectionString(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}

	user := cfg.GetMigrationUser()

	token, err := ResolveAuthToken(ctx, cfg, user)
	if err != nil {
		return "", fmt.Errorf("failed to resolve auth token for migration user: %w", err)
	}
	if token == "" && cfg.DynamicAuth == nil {
		if password, err := cfg.GetPassword(); err == nil {
			token = password
		}
	}

	return cfg.BuildConnectionStringWithAuth(user, token), nil
}
