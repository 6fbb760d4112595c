package retry

import (
	"context"
	"errors"
	"net"
	"time"
)

// Attempt records the outcome of a single execution of a retried operation.
type Attempt struct {
	Step   string
	Number int
	OK     bool
	Err    string // error detail, empty on success
	At     time.Time
}

// Runner executes operations with bounded retry and multiplicative backoff.
// The zero value runs an operation exactly once with no timeout.
type Runner struct {
	MaxAttempts int           // executions per operation; values < 1 mean 1
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // backoff cap; 0 means uncapped
	Timeout     time.Duration // per-attempt deadline; 0 means none

	// OnAttempt observes every attempt, success or failure. May be nil.
	OnAttempt func(Attempt)

	// Sleep and Now are injectable for tests. Nil means real time.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Do runs op until it succeeds or attempts are exhausted. The first attempt
// runs immediately; each subsequent attempt waits double the previous delay,
// starting at BaseDelay and capped at MaxDelay. Only transient failures are
// retried; any other failure is returned at once with remaining attempts
// unconsumed. When all attempts fail, the last error is returned unchanged.
func (r Runner) Do(ctx context.Context, step string, op func(context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	delay := r.BaseDelay
	var lastErr error
	for n := 1; n <= attempts; n++ {
		if n > 1 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
			if r.MaxDelay > 0 && delay > r.MaxDelay {
				delay = r.MaxDelay
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if r.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		}
		err := op(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if r.OnAttempt != nil {
			r.OnAttempt(Attempt{
				Step:   step,
				Number: n,
				OK:     err == nil,
				Err:    errString(err),
				At:     now().UTC(),
			})
		}

		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
	}
	return lastErr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// transientError marks a failure as recoverable by retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so that IsTransient reports true for it.
// Returns nil when err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err should be retried: anything wrapped by
// Transient, a per-attempt deadline expiry, or a network timeout. Context
// cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
