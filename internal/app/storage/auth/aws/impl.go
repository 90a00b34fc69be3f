// Package aws builds AWS RDS IAM passwords for the Postgres records store.
package aws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/jackc/pgx/v5"

	"github.com/stacklok/crmsync/internal/config"
)

const (
	regionDetect = "detect"

	// tokenLifetime is how long RDS accepts a signed token
	tokenLifetime = 15 * time.Minute
	// refreshMargin is how long before expiry a cached token is replaced
	refreshMargin = 3 * time.Minute
)

// TokenSource signs RDS IAM tokens for one database user. A token is reused
// for new connections until it comes close to expiring, so a burst of sync
// workers opening connections signs once.
type TokenSource struct {
	user string
	sign func(ctx context.Context) (string, error)
	now  func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource resolves the region and the workload credentials for the
// database in cfg. A region of "detect" is read from the instance metadata.
func NewTokenSource(ctx context.Context, cfg *config.DatabaseConfig, user string) (*TokenSource, error) {
	if cfg.DynamicAuth == nil || cfg.DynamicAuth.AWSRDSIAM == nil {
		return nil, fmt.Errorf("AWS RDS IAM authentication is not configured")
	}
	region, err := resolveRegion(ctx, cfg.DynamicAuth.AWSRDSIAM.Region, imdsRegion)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	slog.Debug("Using AWS RDS IAM authentication", "endpoint", endpoint, "region", region, "user", user)

	return &TokenSource{
		user: user,
		sign: func(ctx context.Context) (string, error) {
			return auth.BuildAuthToken(ctx, endpoint, region, user, awsCfg.Credentials)
		},
		now: time.Now,
	}, nil
}

// Token returns a token that RDS accepts for at least refreshMargin
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Before(s.expires.Add(-refreshMargin)) {
		return s.token, nil
	}

	token, err := s.sign(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to build authentication token for %s: %w", s.user, err)
	}
	s.token = token
	s.expires = now.Add(tokenLifetime)
	return token, nil
}

// BeforeConnect sets the token as the password of a new pool connection
func (s *TokenSource) BeforeConnect(ctx context.Context, connConfig *pgx.ConnConfig) error {
	token, err := s.Token(ctx)
	if err != nil {
		return err
	}
	connConfig.Password = token
	return nil
}

// NewToken signs a single token, for connections opened outside the pool
// such as migrations.
func NewToken(ctx context.Context, cfg *config.DatabaseConfig, user string) (string, error) {
	src, err := NewTokenSource(ctx, cfg, user)
	if err != nil {
		return "", err
	}
	return src.Token(ctx)
}

// PgxAuthFunc returns a BeforeConnect hook for the records store pool.
// It assumes the role attached to the workload may connect as user.
func PgxAuthFunc(
	ctx context.Context,
	cfg *config.DatabaseConfig,
	user string,
) (func(ctx context.Context, connConfig *pgx.ConnConfig) error, error) {
	src, err := NewTokenSource(ctx, cfg, user)
	if err != nil {
		return nil, err
	}
	return src.BeforeConnect, nil
}

func resolveRegion(ctx context.Context, region string, detect func(context.Context) (string, error)) (string, error) {
	switch region {
	case "":
		return "", fmt.Errorf("AWS RDS IAM region is not configured")
	case regionDetect:
		detected, err := detect(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get region from IMDS: %w", err)
		}
		return detected, nil
	default:
		return region, nil
	}
}

func imdsRegion(ctx context.Context) (string, error) {
	client := imds.New(imds.Options{
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
	})
	out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", err
	}
	return out.Region, nil
}
