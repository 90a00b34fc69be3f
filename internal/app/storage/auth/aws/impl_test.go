package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/crmsync/internal/config"
)

func TestResolveRegion(t *testing.T) {
	t.Parallel()

	detected := func(context.Context) (string, error) { return "eu-west-1", nil }
	unreachable := func(context.Context) (string, error) { return "", errors.New("connection refused") }

	tests := []struct {
		name    string
		region  string
		detect  func(context.Context) (string, error)
		want    string
		wantErr string
	}{
		{name: "static", region: "us-east-1", detect: unreachable, want: "us-east-1"},
		{name: "detect", region: "detect", detect: detected, want: "eu-west-1"},
		{name: "missing", region: "", detect: detected, wantErr: "region is not configured"},
		{name: "metadata unavailable", region: "detect", detect: unreachable, wantErr: "failed to get region from IMDS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := resolveRegion(context.Background(), tt.region, tt.detect)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// countingSource signs numbered tokens against a settable clock
type countingSource struct {
	mu    sync.Mutex
	signs int
	fail  error
	now   time.Time
}

func (c *countingSource) source() *TokenSource {
	return &TokenSource{
		user: "crmsync",
		sign: func(context.Context) (string, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.fail != nil {
				return "", c.fail
			}
			c.signs++
			return fmt.Sprintf("token-%d", c.signs), nil
		},
		now: func() time.Time {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.now
		},
	}
}

func (c *countingSource) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenSource_ReusesTokenUntilNearExpiry(t *testing.T) {
	t.Parallel()

	c := &countingSource{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	src := c.source()
	ctx := context.Background()

	token, err := src.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	c.advance(tokenLifetime - refreshMargin - time.Second)
	token, err = src.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	c.advance(time.Second)
	token, err = src.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
}

func TestTokenSource_FailureIsNotCached(t *testing.T) {
	t.Parallel()

	c := &countingSource{fail: errors.New("no credentials")}
	src := c.source()

	_, err := src.Token(context.Background())
	assert.ErrorContains(t, err, "failed to build authentication token for crmsync")

	c.fail = nil
	token, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
}

func TestTokenSource_BeforeConnect(t *testing.T) {
	t.Parallel()

	c := &countingSource{}
	src := c.source()

	var wg sync.WaitGroup
	conns := make([]*pgx.ConnConfig, 8)
	for i := range conns {
		conns[i] = &pgx.ConnConfig{}
		wg.Add(1)
		go func(cc *pgx.ConnConfig) {
			defer wg.Done()
			assert.NoError(t, src.BeforeConnect(context.Background(), cc))
		}(conns[i])
	}
	wg.Wait()

	for _, cc := range conns {
		assert.Equal(t, "token-1", cc.Password)
	}
	assert.Equal(t, 1, c.signs)
}

func TestNewTokenSource_RequiresRDSIAM(t *testing.T) {
	t.Parallel()

	_, err := NewTokenSource(context.Background(), &config.DatabaseConfig{Host: "db", Port: 5432}, "crmsync")
	assert.ErrorContains(t, err, "not configured")

	_, err = NewToken(context.Background(), &config.DatabaseConfig{
		Host: "db", Port: 5432,
		DynamicAuth: &config.DynamicAuthConfig{AWSRDSIAM: &config.AWSRDSIAMConfig{}},
	}, "crmsync")
	assert.ErrorContains(t, err, "region is not configured")
}
