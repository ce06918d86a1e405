// Package retrier provides retry policies for operations against flaky
// collaborators. Two shapes are used across the synchronizer: exponential
// backoff with jitter for connection-style work, and a fixed short interval
// with no attempt cap for wait-until-ready loops bounded only by context.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxRetries      = 5
	defaultJitter          = 0.1

	// Unlimited disables the attempt cap, retries continue until the
	// context is done or the call succeeds.
	Unlimited = -1
)

// Retrier executes a function repeatedly according to its policy.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	jitter          float64
}

// Option defines a function to configure the Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the initial retry interval.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval sets the maximum retry interval.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMultiplier sets the backoff multiplier. A multiplier of 1 keeps the
// interval fixed.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		r.multiplier = m
	}
}

// WithMaxRetries sets the maximum number of retries. Pass Unlimited to
// retry until the context is done.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = j
	}
}

// New creates a new Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      defaultMaxRetries,
		jitter:          defaultJitter,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Fixed creates a Retrier that waits the same interval between attempts and
// never gives up on its own. Used for wait-until-ready loops whose lifetime
// is governed entirely by the caller's context.
func Fixed(interval time.Duration) *Retrier {
	return New(
		WithInitialInterval(interval),
		WithMaxInterval(interval),
		WithMultiplier(1),
		WithJitter(0),
		WithMaxRetries(Unlimited),
	)
}

// Do executes the given function with retries.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	interval := r.initialInterval

	for attempt := 0; r.maxRetries == Unlimited || attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if waitErr := r.wait(ctx, interval); waitErr != nil {
				return waitErr
			}
			interval = r.next(interval)
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
	}

	return err
}

func (r *Retrier) wait(ctx context.Context, interval time.Duration) error {
	jitter := (rand.Float64()*2 - 1) * r.jitter * float64(interval)
	sleep := time.Duration(float64(interval) + jitter)
	if sleep < 0 {
		sleep = 0
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sleep):
		return nil
	}
}

func (r *Retrier) next(interval time.Duration) time.Duration {
	interval = time.Duration(float64(interval) * r.multiplier)
	if interval > r.maxInterval {
		interval = r.maxInterval
	}

	return interval
}

// DoWithData executes the given function with retries and returns a value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})

	return result, err
}
