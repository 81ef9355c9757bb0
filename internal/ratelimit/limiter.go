package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amaumene/showsweep/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrTimeout is returned when no permit was granted within the configured
// policy. Callers must surface it, never silently ignore it.
var ErrTimeout = errors.New("ratelimit: permit not granted within timeout")

// Limiter throttles outbound calls per source under a calls-per-minute
// budget. Budgets are independent: one throttled source never stalls
// another. Waiters are served in request order once budget is available.
type Limiter struct {
	mu       sync.Mutex
	limiters map[models.Source]*rate.Limiter
	timeout  time.Duration
	logger   *logrus.Logger
}

// New creates a limiter. timeout bounds how long Acquire blocks; zero means
// wait as long as the caller's context allows.
func New(timeout time.Duration, logger *logrus.Logger) *Limiter {
	return &Limiter{
		limiters: make(map[models.Source]*rate.Limiter),
		timeout:  timeout,
		logger:   logger,
	}
}

// SetLimit configures the calls-per-minute budget for one source. A source
// without a configured limit is unthrottled.
func (l *Limiter) SetLimit(source models.Source, perMinute int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if perMinute <= 0 {
		l.limiters[source] = rate.NewLimiter(rate.Inf, 1)
		return
	}
	// A fresh bucket starts full so the first burst of a run is not delayed,
	// matching a per-minute budget that has been idle.
	l.limiters[source] = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
}

// Acquire blocks until a call budget slot is available for the source, the
// context is cancelled, or the timeout policy expires (ErrTimeout).
func (l *Limiter) Acquire(ctx context.Context, source models.Source) error {
	lim := l.limiter(source)

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := lim.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			// The caller's own context ended; report that, not a timeout
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s after %s", ErrTimeout, source, time.Since(start).Round(time.Millisecond))
	}

	if waited := time.Since(start); waited > 100*time.Millisecond {
		l.logger.WithFields(logrus.Fields{
			"source": source,
			"waited": waited.Round(time.Millisecond).String(),
		}).Debug("Rate limit delayed call")
	}
	return nil
}

func (l *Limiter) limiter(source models.Source) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[source]
	if !ok {
		lim = rate.NewLimiter(rate.Inf, 1)
		l.limiters[source] = lim
	}
	return lim
}
