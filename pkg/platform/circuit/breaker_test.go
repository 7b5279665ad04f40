package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_InitialState(t *testing.T) {
	b := New("backend")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "backend", b.Name())
	assert.True(t, b.Allow())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New("backend", WithFailureThreshold(3))

	assert.False(t, b.RecordFailure())
	assert.False(t, b.RecordFailure())
	assert.True(t, b.RecordFailure())
	assert.True(t, b.IsOpen())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("backend", WithFailureThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	b := New("backend", WithFailureThreshold(1), WithSuccessThreshold(2))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	assert.False(t, b.RecordSuccess())
	assert.True(t, b.IsOpen())
	assert.True(t, b.RecordSuccess())
	assert.False(t, b.IsOpen())
}

func TestBreaker_FailureWhileOpenResetsSuccessCount(t *testing.T) {
	b := New("backend", WithFailureThreshold(1), WithSuccessThreshold(2))

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()

	assert.False(t, b.RecordSuccess())
	assert.True(t, b.IsOpen())
	assert.True(t, b.RecordSuccess())
	assert.False(t, b.IsOpen())
}

func TestBreaker_AllowProbesOncePerCooldown(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("backend",
		WithFailureThreshold(1),
		WithCooldown(10*time.Second),
		WithClock(func() time.Time { return clock }),
	)

	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	// Within cooldown no probe is admitted.
	assert.False(t, b.Allow())
	clock = clock.Add(5 * time.Second)
	assert.False(t, b.Allow())

	// After the cooldown one probe passes, then the window restarts.
	clock = clock.Add(5 * time.Second)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestBreaker_Reset(t *testing.T) {
	b := New("backend", WithFailureThreshold(1))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())
}
