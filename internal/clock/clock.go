package clock

import (
	"context"
	"time"
)

// Clock abstracts time reads and delays so schedulers and retry loops
// can be driven deterministically under test.
type Clock interface {
	Now() time.Time

	// Sleep suspends for d or until ctx is cancelled, whichever comes
	// first. Returns the context error on cancellation.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// System returns the wall-clock implementation.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
