package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/crmsync/internal/clock"
)

func TestRealNowUsesUTC(t *testing.T) {
	t.Parallel()

	now := clock.Real{}.Now()
	assert.Equal(t, time.UTC, now.Location())
}

func TestManualAfterFiresOnAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := clock.NewManual(start)

	ch := m.After(time.Minute)
	assert.Equal(t, 1, m.Pending())

	m.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	m.Advance(30 * time.Second)
	select {
	case fired := <-ch:
		assert.Equal(t, start.Add(time.Minute), fired)
	default:
		t.Fatal("timer did not fire")
	}
	assert.Equal(t, 0, m.Pending())
}

func TestManualAfterNonPositiveFiresImmediately(t *testing.T) {
	t.Parallel()

	m := clock.NewManual(time.Unix(0, 0))
	select {
	case <-m.After(0):
	default:
		t.Fatal("expected immediate delivery")
	}
}

func TestManualWaitForTimers(t *testing.T) {
	t.Parallel()

	m := clock.NewManual(time.Unix(0, 0))
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.After(time.Second)
	}()
	require.True(t, m.WaitForTimers(1, time.Second))
	assert.False(t, m.WaitForTimers(2, 20*time.Millisecond))
}
