package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// tokenValidator abstracts token validation for testability
type tokenValidator interface {
	ValidateToken(ctx context.Context, token string) (jwt.MapClaims, error)
}

// hmacValidator verifies HS256 tokens signed with a shared secret
type hmacValidator struct {
	secret []byte
	parser *jwt.Parser
}

// newHMACValidator creates a validator for the given secret.
// Issuer and audience are enforced when set.
func newHMACValidator(secret []byte, issuer, audience string) (*hmacValidator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &hmacValidator{
		secret: secret,
		parser: jwt.NewParser(opts...),
	}, nil
}

// ValidateToken parses the token and checks its signature and registered claims
func (v *hmacValidator) ValidateToken(_ context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}
