package retry

import (
	"context"
	"math/rand"
	"time"
)

// Options configures Do.
type Options struct {
	MaxRetries int
	BaseWait   time.Duration
	MaxWait    time.Duration
}

// Option is a functional option for Do.
type Option func(*Options)

// WithMaxRetries sets the number of attempts made after the first one.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithBaseWait sets the wait before the first retry. The wait doubles after
// each further attempt.
func WithBaseWait(d time.Duration) Option {
	return func(o *Options) {
		o.BaseWait = d
	}
}

// WithMaxWait caps the wait between attempts.
func WithMaxWait(d time.Duration) Option {
	return func(o *Options) {
		o.MaxWait = d
	}
}

// Do calls fn until it succeeds, returns an error that is not recoverable,
// the retries are exhausted, or ctx is done. The last error is returned.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	options := Options{
		MaxRetries: 3,
		BaseWait:   200 * time.Millisecond,
		MaxWait:    5 * time.Second,
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

// backoff returns the wait before retry number attempt+1, with up to 10%
// jitter.
func backoff(options Options, attempt int) time.Duration {
	wait := options.BaseWait << attempt
	if wait <= 0 || (options.MaxWait > 0 && wait > options.MaxWait) {
		wait = options.MaxWait
	}
	if wait <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int63n(int64(wait)/10 + 1))
	return wait + jitter
}
