package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Action int

const (
	Stop  Action = iota // permanent failure, return immediately
	Retry               // transient failure, back off and try again
)

type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	OnRetry        func(attempt int, err error, backoff time.Duration)
}

// Classify decides whether the outcome of an attempt is retried. It sees the
// value as well as the error so callers can retry on a result (e.g. a 503).
type Classify[T any] func(val T, err error) Action

type Operation[T any] func(attempt int) (T, error)

// Do runs op until it succeeds, classify says Stop, the attempts run out or
// ctx is done. The last value and error are returned as-is so callers see
// the final response unchanged.
func Do[T any](ctx context.Context, p Policy, classify Classify[T], op Operation[T]) (T, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op(attempt)
		if classify(val, err) == Stop || attempt == p.MaxAttempts {
			return val, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that classifiers stop on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
