// Package retry runs an operation until it succeeds, fails permanently or
// runs out of attempts, sleeping with exponential backoff in between.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrExhausted is wrapped by the error Do returns once every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds the attempts and the waits between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  int
}

// Delay returns the wait before the given retry (1 = first retry).
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 || p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		if d > math.MaxInt64/time.Duration(mult) {
			// saturate instead of wrapping negative
			d = math.MaxInt64
			break
		}
		d *= time.Duration(mult)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Classifier reports whether a failed attempt may be retried.
type Classifier func(error) bool

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// DefaultClassifier retries everything except permanent errors, context
// cancellation and errors that say they are not temporary.
func DefaultClassifier(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

// Notify is called before sleeping for a retry.
type Notify func(attempt int, err error, wait time.Duration)

type options struct {
	classify Classifier
	notify   Notify
}

type Option func(*options)

func WithClassifier(c Classifier) Option {
	return func(o *options) { o.classify = c }
}

func WithNotify(n Notify) Option {
	return func(o *options) { o.notify = n }
}

// Do calls fn until it returns nil, a non-retryable error, or MaxAttempts
// calls have failed. In the last case the returned error wraps both
// ErrExhausted and the final failure. Context cancellation during a wait
// aborts immediately with the last failure.
func Do(ctx context.Context, p Policy, fn func(context.Context) error, opts ...Option) error {
	o := options{classify: DefaultClassifier}
	for _, opt := range opts {
		opt(&o)
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !o.classify(err) {
			var perm *permanentError
			if errors.As(err, &perm) {
				return perm.err
			}
			return err
		}
		if attempt == attempts {
			break
		}

		wait := p.Delay(attempt)
		if o.notify != nil {
			o.notify(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}
