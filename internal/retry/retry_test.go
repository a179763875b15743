package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithExponentialBackoffSucceedsFirstTry(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoffRetriesUntilSuccess(t *testing.T) {
	calls := 0
	boom := errors.New("upstream unavailable")

	result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return boom
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
}

func TestWithExponentialBackoffExhaustsMaxAttempts(t *testing.T) {
	boom := errors.New("still down")
	cfg := fastConfig()

	result := WithExponentialBackoff(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		return boom
	})

	assert.False(t, result.Success)
	assert.Equal(t, cfg.MaxAttempts, result.Attempts)
	assert.ErrorIs(t, result.LastError, boom)
}

func TestWithExponentialBackoffStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("boom")

	calls := 0
	result := WithExponentialBackoff(ctx, fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		if calls == 1 {
			cancel()
		}
		return boom
	})

	assert.False(t, result.Success)
	require.NotNil(t, result.LastError)
}

func TestWithRetryWrapsFailureWithAttemptCount(t *testing.T) {
	boom := errors.New("down")
	err := WithRetry(context.Background(), func(ctx context.Context, attempt int) error {
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCalculateDelayGrowsExponentiallyAndCaps(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2.0}

	assert.Equal(t, time.Second, calculateDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, calculateDelay(cfg, 2))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 3))
	assert.Equal(t, 5*time.Second, calculateDelay(cfg, 4)) // would be 8s uncapped
}

func TestIsRetryableWithNoPatternsRetriesEverything(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("anything"), nil))
}

func TestIsRetryableMatchesConfiguredPatterns(t *testing.T) {
	err := errors.New("connection reset by peer")
	assert.True(t, IsRetryable(err, []string{"connection reset"}))
	assert.False(t, IsRetryable(err, []string{"timeout"}))
}

func TestIsRetryableNilErrorIsFalse(t *testing.T) {
	assert.False(t, IsRetryable(nil, nil))
}

func TestRetryStatsTrackerAccumulatesAcrossOperations(t *testing.T) {
	tracker := NewRetryStatsTracker()

	tracker.RecordResult(&RetryResult{Success: true, Attempts: 1})
	tracker.RecordResult(&RetryResult{Success: true, Attempts: 3})
	tracker.RecordResult(&RetryResult{Success: false, Attempts: 4})

	stats := tracker.GetStats()
	assert.Equal(t, 3, stats.TotalOperations)
	assert.Equal(t, 2, stats.SuccessfulOps)
	assert.Equal(t, 1, stats.FailedOps)
	assert.Equal(t, 4, stats.TotalRetries) // (1-1)+(3-1)+(4-1) = 0+2+3
}

func TestRetryStatsTrackerReset(t *testing.T) {
	tracker := NewRetryStatsTracker()
	tracker.RecordResult(&RetryResult{Success: true, Attempts: 2})

	tracker.Reset()

	assert.Equal(t, RetryStats{}, tracker.GetStats())
}
