package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stacklok/crmsync/internal/config"
)

// NewAuthMiddleware creates the admin API authentication middleware based on config
func NewAuthMiddleware(cfg *config.AuthConfig) (func(http.Handler) http.Handler, error) {
	if cfg == nil {
		slog.Info("auth: anonymous mode (no auth config)")
		return anonymousMiddleware, nil
	}

	switch cfg.Mode {
	case config.AuthModeAnonymous, "":
		slog.Info("auth: anonymous mode")
		return anonymousMiddleware, nil
	case config.AuthModeJWT:
		return createJWTMiddleware(cfg)
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

func createJWTMiddleware(cfg *config.AuthConfig) (func(http.Handler) http.Handler, error) {
	if cfg.JWT == nil {
		return nil, errors.New("jwt configuration is required for jwt mode")
	}

	secret, err := cfg.JWT.GetSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to read jwt secret: %w", err)
	}

	validator, err := newHMACValidator([]byte(secret), cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		return nil, err
	}

	slog.Info("auth: jwt mode", "issuer", cfg.JWT.Issuer, "audience", cfg.JWT.Audience)
	m := &bearerMiddleware{validator: validator, realm: defaultRealm}
	return m.Middleware, nil
}

// anonymousMiddleware is a no-op middleware that passes requests through without authentication.
func anonymousMiddleware(next http.Handler) http.Handler {
	return next
}
