package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      3,
		FailureThreshold: 0.5,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 2,
	}
}

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("evm-rpc"))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("evm-rpc"))
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func() error { return boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreakerRejectsCallsWhileOpen(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("evm-rpc"))
	cb.ForceOpen()

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerTransitionsToHalfOpenAfterTimeout(t *testing.T) {
	cfg := testConfig("evm-rpc")
	cfg.Timeout = 10 * time.Millisecond
	cb := NewCircuitBreaker(cfg)
	cb.ForceOpen()

	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, cb.GetState())
}

func TestCircuitBreakerClosesAfterHalfOpenSuccesses(t *testing.T) {
	cfg := testConfig("evm-rpc")
	cfg.Timeout = 10 * time.Millisecond
	cfg.HalfOpenMaxCalls = 2
	cb := NewCircuitBreaker(cfg)
	cb.ForceOpen()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cfg := testConfig("evm-rpc")
	cfg.Timeout = 10 * time.Millisecond
	cb := NewCircuitBreaker(cfg)
	cb.ForceOpen()
	time.Sleep(20 * time.Millisecond)

	boom := errors.New("boom")
	err := cb.Execute(context.Background(), func() error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreakerResetClearsCountersAndCloses(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("evm-rpc"))
	cb.ForceOpen()

	cb.Reset()

	assert.Equal(t, StateClosed, cb.GetState())
	stats := cb.GetStats()
	assert.Equal(t, 0, stats.Failures)
	assert.Equal(t, 0, stats.TotalCalls)
}

func TestCircuitBreakerManagerGetOrCreateReusesExisting(t *testing.T) {
	mgr := NewCircuitBreakerManager()

	a := mgr.GetOrCreate("evm-rpc", nil)
	b := mgr.GetOrCreate("evm-rpc", nil)

	assert.Same(t, a, b)
}

func TestCircuitBreakerManagerGetMissingReturnsError(t *testing.T) {
	mgr := NewCircuitBreakerManager()
	_, err := mgr.Get("does-not-exist")
	assert.Error(t, err)
}

func TestCircuitBreakerManagerResetAll(t *testing.T) {
	mgr := NewCircuitBreakerManager()
	a := mgr.GetOrCreate("evm-rpc", testConfig("evm-rpc"))
	b := mgr.GetOrCreate("utxo-api", testConfig("utxo-api"))
	a.ForceOpen()
	b.ForceOpen()

	mgr.ResetAll()

	assert.Equal(t, StateClosed, a.GetState())
	assert.Equal(t, StateClosed, b.GetState())
}
