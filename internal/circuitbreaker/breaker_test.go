package circuitbreaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/anpr/compliance-core/internal/circuitbreaker"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := circuitbreaker.New(&circuitbreaker.Config{
		Name:        "test",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(c circuitbreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	})

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := circuitbreaker.New(&circuitbreaker.Config{
		Name:        "test-recover",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(c circuitbreaker.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	boom := errors.New("boom")
	_, err := cb.Execute(func() (interface{}, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	require.Equal(t, circuitbreaker.StateHalfOpen, cb.State())

	result, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, circuitbreaker.StateClosed, cb.State())
}

func TestManagerGetOrCreateReusesBreaker(t *testing.T) {
	m := circuitbreaker.NewManager(nil)
	a := m.GetOrCreate("svc", circuitbreaker.DefaultConfig("svc"))
	b := m.GetOrCreate("svc", circuitbreaker.DefaultConfig("svc"))
	require.Same(t, a, b)
}

func TestANPRCircuitBreakersHealthStatus(t *testing.T) {
	breakers := circuitbreaker.NewANPRCircuitBreakers()
	status, statuses := breakers.HealthStatus()
	require.Equal(t, "HEALTHY", status)
	require.Equal(t, "CLOSED", statuses["supabase"])
}
