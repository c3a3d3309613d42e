package resilience

import (
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Limiter is a non-blocking requests-per-minute budget. Each provider client
// owns its own Limiter; nothing is shared at package level.
type Limiter struct {
	lim *rate.Limiter
	rpm int
}

// NewLimiter allows perMinute requests per rolling minute, with the whole
// minute's budget available as burst. perMinute <= 0 disables limiting.
func NewLimiter(perMinute int) *Limiter {
	if perMinute <= 0 {
		return &Limiter{}
	}
	return &Limiter{
		lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		rpm: perMinute,
	}
}

// Allow consumes one request from the budget, or returns an error wrapping
// ErrRateLimited with the time until the next request is permitted.
func (l *Limiter) Allow() error {
	if l == nil || l.lim == nil {
		return nil
	}
	now := time.Now()
	r := l.lim.ReserveN(now, 1)
	if !r.OK() {
		return eris.Wrapf(ErrRateLimited, "limit %d/min", l.rpm)
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return eris.Wrapf(ErrRateLimited, "limit %d/min, retry in %s", l.rpm, d.Round(time.Second))
	}
	return nil
}
