package engine_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gosuda/canvas/internal/engine"
)

func TestThrottle_Allow(t *testing.T) {
	t.Parallel()

	t.Run("first publish goes out", func(t *testing.T) {
		t.Parallel()

		th := engine.NewThrottle(50*time.Millisecond, newClock().Now)
		assert.True(t, th.Allow(uuid.New()))
	})

	t.Run("publishes inside the interval are dropped", func(t *testing.T) {
		t.Parallel()

		clock := newClock()
		th := engine.NewThrottle(50*time.Millisecond, clock.Now)
		id := uuid.New()

		assert.True(t, th.Allow(id))
		clock.Advance(10 * time.Millisecond)
		assert.False(t, th.Allow(id))
		clock.Advance(20 * time.Millisecond)
		assert.False(t, th.Allow(id))
		clock.Advance(30 * time.Millisecond)
		assert.True(t, th.Allow(id))
	})

	t.Run("objects are throttled independently", func(t *testing.T) {
		t.Parallel()

		th := engine.NewThrottle(50*time.Millisecond, newClock().Now)
		a, b := uuid.New(), uuid.New()

		assert.True(t, th.Allow(a))
		assert.True(t, th.Allow(b))
		assert.False(t, th.Allow(a))
		assert.False(t, th.Allow(b))
	})

	t.Run("forget resets an object", func(t *testing.T) {
		t.Parallel()

		th := engine.NewThrottle(50*time.Millisecond, newClock().Now)
		id := uuid.New()

		assert.True(t, th.Allow(id))
		th.Forget(id)
		assert.True(t, th.Allow(id))
	})

	t.Run("zero interval never throttles", func(t *testing.T) {
		t.Parallel()

		th := engine.NewThrottle(0, newClock().Now)
		id := uuid.New()
		for range 5 {
			assert.True(t, th.Allow(id))
		}
	})
}

// TestThrottle_Bound checks that a continuous gesture of duration D with
// interval I publishes at most D/I + 1 frames, whatever the input rate.
func TestThrottle_Bound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interval time.Duration
		step     time.Duration
		duration time.Duration
	}{
		{name: "fast input", interval: 40 * time.Millisecond, step: time.Millisecond, duration: time.Second},
		{name: "frame-rate input", interval: 40 * time.Millisecond, step: 16 * time.Millisecond, duration: 2 * time.Second},
		{name: "input slower than interval", interval: 20 * time.Millisecond, step: 50 * time.Millisecond, duration: time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			clock := newClock()
			th := engine.NewThrottle(tc.interval, clock.Now)
			id := uuid.New()

			published := 0
			for elapsed := time.Duration(0); elapsed <= tc.duration; elapsed += tc.step {
				if th.Allow(id) {
					published++
				}
				clock.Advance(tc.step)
			}

			bound := int(tc.duration/tc.interval) + 1
			assert.LessOrEqual(t, published, bound)
			assert.Positive(t, published)
		})
	}
}
