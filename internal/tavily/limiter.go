package tavily

import (
	"context"
	"sync"
	"time"
)

// limiter spaces outbound searches by a minimum interval. A nil limiter
// never waits.
type limiter struct {
	minInterval time.Duration

	mu            sync.Mutex
	nextAllowedAt time.Time
}

func newLimiter(minInterval time.Duration) *limiter {
	if minInterval <= 0 {
		return nil
	}
	return &limiter{minInterval: minInterval}
}

func (l *limiter) wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		l.mu.Lock()
		now := time.Now()
		if l.nextAllowedAt.IsZero() || !l.nextAllowedAt.After(now) {
			l.nextAllowedAt = now.Add(l.minInterval)
			l.mu.Unlock()
			return nil
		}
		delay := time.Until(l.nextAllowedAt)
		l.mu.Unlock()

		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
