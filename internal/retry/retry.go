package retry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/internal/backoff"
	"github.com/postpilot-io/postpilot/internal/clock"
)

// ExhaustedError is returned when every attempt of an operation failed.
// It wraps the last underlying error.
type ExhaustedError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// permanentError tags an error as not worth retrying. The execution
// layer sets the tag; the runner never infers retriability from
// message text.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as non-retriable. A runner stops immediately when
// an operation returns a permanent error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the non-retriable tag.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Runner retries an operation with backoff between attempts. It is
// reused for external API calls and startup-time connection
// establishment, parameterized by attempt count and policy.
type Runner struct {
	policy *backoff.Policy
	clock  clock.Clock
	logger *zap.Logger
}

func NewRunner(policy *backoff.Policy, clk clock.Clock, logger *zap.Logger) *Runner {
	return &Runner{
		policy: policy,
		clock:  clk,
		logger: logger,
	}
}

// Do runs op up to maxAttempts times, sleeping per the backoff policy
// before every attempt after the first. It returns nil on the first
// success, the underlying error immediately if op reports a permanent
// failure, and an ExhaustedError once attempts run out.
func (r *Runner) Do(ctx context.Context, label string, maxAttempts int, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, r, label, maxAttempts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a result.
func DoValue[T any](ctx context.Context, r *Runner, label string, maxAttempts int, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts <= 0 {
		return zero, fmt.Errorf("%s: max attempts must be positive, got %d", label, maxAttempts)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.policy.Delay(attempt - 1)
			r.logger.Debug("Backing off before retry",
				zap.String("operation", label),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			if err := r.clock.Sleep(ctx, delay); err != nil {
				return zero, fmt.Errorf("%s interrupted: %w", label, err)
			}
		}

		result, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("Operation succeeded after retries",
					zap.String("operation", label),
					zap.Int("attempts", attempt+1),
				)
			}
			return result, nil
		}

		lastErr = err
		if IsPermanent(err) {
			r.logger.Warn("Operation failed permanently, not retrying",
				zap.String("operation", label),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			return zero, err
		}

		r.logger.Warn("Operation failed",
			zap.String("operation", label),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)
	}

	return zero, &ExhaustedError{Label: label, Attempts: maxAttempts, Err: lastErr}
}
