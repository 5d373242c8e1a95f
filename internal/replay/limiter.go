package replay

import (
	"sync"
	"time"
)

// limiter is a leaky-bucket pacing clock shared by all exchanges of one
// Client. Allowance accumulates at rps and caps at one second's worth; each
// exchange spends one unit, sleeping until a full unit is available. The
// allowance/timestamp pair is guarded by a single mutex, and the sleep
// happens under it so concurrent callers cannot release more than the
// configured rate in the same instant.
type limiter struct {
	mu        sync.Mutex
	rps       float64
	allowance float64
	last      time.Time
}

func newLimiter(rps float64) *limiter {
	return &limiter{rps: rps, last: time.Now()}
}

func (l *limiter) wait() {
	if l.rps <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.allowance += now.Sub(l.last).Seconds() * l.rps
	l.last = now
	if l.allowance > l.rps {
		l.allowance = l.rps
	}

	if l.allowance < 1 {
		sleep := time.Duration((1 - l.allowance) / l.rps * float64(time.Second))
		if sleep > 0 {
			time.Sleep(sleep)
		}
		l.allowance = 0
		return
	}
	l.allowance--
}
