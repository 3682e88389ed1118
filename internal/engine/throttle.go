package engine

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Throttle bounds the rate of intermediate publishes per object. Each object
// gets a limiter with a burst of one, so a publish is allowed only when at
// least one interval has passed since the last allowed one.
type Throttle struct {
	interval time.Duration
	now      func() time.Time
	limiters map[uuid.UUID]*rate.Limiter
}

func NewThrottle(interval time.Duration, now func() time.Time) *Throttle {
	return &Throttle{
		interval: interval,
		now:      now,
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

// Allow reports whether an intermediate publish for id may go out now and,
// if so, records it.
func (t *Throttle) Allow(id uuid.UUID) bool {
	lim, ok := t.limiters[id]
	if !ok {
		limit := rate.Inf
		if t.interval > 0 {
			limit = rate.Every(t.interval)
		}
		lim = rate.NewLimiter(limit, 1)
		t.limiters[id] = lim
	}
	return lim.AllowN(t.now(), 1)
}

// Forget discards the limiter for id.
func (t *Throttle) Forget(id uuid.UUID) {
	delete(t.limiters, id)
}
