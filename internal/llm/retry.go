package llm

import (
	"context"
	"time"
)

// retrySleepFunc waits between attempts (injectable for tests)
var retrySleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retry calls fn up to attempts times, backing off exponentially (1s, 2s, 4s, ...)
// after transient failures. Other errors are returned immediately.
func retry[T any](ctx context.Context, attempts int, fn func() (T, error)) (T, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var result T
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err = fn()
		if err == nil || !IsTransient(err) {
			return result, err
		}
		if attempt < attempts-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if sleepErr := retrySleepFunc(ctx, backoff); sleepErr != nil {
				return result, err
			}
		}
	}
	return result, err
}
