package coordinator

import (
	"time"

	"github.com/stacklok/crmsync/internal/clock"
	"github.com/stacklok/crmsync/internal/status"
	"github.com/stacklok/crmsync/internal/telemetry"
)

const (
	defaultRecoveryLookback = time.Hour
	defaultInterval         = status.DefaultSyncIntervalSeconds * time.Second
)

// Option is a function that configures the scheduler
type Option func(*scheduler)

// WithClock sets the clock driving sweep intervals and watermarks
func WithClock(c clock.Clock) Option {
	return func(s *scheduler) {
		s.clock = c
	}
}

// WithRecoveryLookback sets how far watermarks are rewound on the first sweep after start
func WithRecoveryLookback(d time.Duration) Option {
	return func(s *scheduler) {
		if d >= 0 {
			s.recoveryLookback = d
		}
	}
}

// WithSyncMetrics sets the sync metrics for the scheduler
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(s *scheduler) {
		s.syncMetrics = metrics
	}
}
