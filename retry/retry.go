package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Options configures retry behavior.
type Options struct {
	MaxRetries int
	BaseWait   time.Duration
	MaxWait    time.Duration
}

// Option is a function that configures Options.
type Option func(*Options)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(maxRetries int) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
	}
}

// WithBaseWait sets the wait before the first retry. Subsequent waits double.
func WithBaseWait(baseWait time.Duration) Option {
	return func(o *Options) {
		o.BaseWait = baseWait
	}
}

// WithMaxWait caps the wait between attempts.
func WithMaxWait(maxWait time.Duration) Option {
	return func(o *Options) {
		o.MaxWait = maxWait
	}
}

// Do calls fn until it succeeds, returns an error that is not recoverable,
// or the retries are exhausted. The last error is returned unchanged.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	options := Options{
		MaxRetries: 3,
		BaseWait:   200 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= options.MaxRetries || !IsRecoverable(err) {
			return err
		}
		timer := time.NewTimer(backoff(options, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// backoff returns the exponential wait for the given attempt with up to 25%
// jitter.
func backoff(options Options, attempt int) time.Duration {
	wait := options.BaseWait << attempt
	if wait <= 0 || (options.MaxWait > 0 && wait > options.MaxWait) {
		wait = options.MaxWait
	}
	if wait <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int64N(int64(wait)/4 + 1))
	return wait + jitter
}
