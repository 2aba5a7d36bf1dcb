// Package retry repeats operations that fail for transient reasons, waiting
// longer after each failure.
//
//	err := retry.Do(ctx, retry.Config{MaxAttempts: 3, InitialDelay: time.Second}, func() error {
//	    rc, err := api.ImagePull(ctx, ref, opts)
//	    if errdefs.IsNotFound(err) {
//	        return retry.Permanent(err)
//	    }
//	    ...
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Config controls how Do repeats an operation.
type Config struct {
	// MaxAttempts counts the first call. Values below 1 mean a single call.
	MaxAttempts int
	// InitialDelay is the wait after the first failure. It doubles after
	// every further failure, up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Jitter shortens each wait by a random fraction of up to Jitter, so
	// callers failing together do not retry together. Clamped to [0, 1].
	Jitter float64
	// ShouldRetry classifies errors. When nil, every error is retried
	// unless it was wrapped with Permanent.
	ShouldRetry func(err error) bool
	// OnRetry, when set, is called before each wait instead of the default
	// debug log line.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Default suits short network calls.
var Default = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = Default.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = Default.MaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	c.Jitter = min(max(c.Jitter, 0), 1)
	if c.ShouldRetry == nil {
		c.ShouldRetry = func(error) bool { return true }
	}
	return c
}

// Backoff returns the wait that follows failed attempt n (1-based), before
// jitter is applied.
func (c Config) Backoff(n int) time.Duration {
	c = c.withDefaults()
	d := c.InitialDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return d
}

func (c Config) wait(n int) time.Duration {
	d := c.Backoff(n)
	if c.Jitter > 0 {
		d -= time.Duration(rand.Float64() * c.Jitter * float64(d))
	}
	return d
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as final: Do returns it at once, unwrapped. A nil err
// stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or an error it wraps, was marked with
// Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a permanent error, the attempts are
// used up or ctx ends. It returns the last error fn returned, joined with the
// context error when ctx ended first.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.withDefaults()

	var err error
	for attempt := 1; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return errors.Join(err, cerr)
		}

		err = fn()
		if err == nil {
			return nil
		}
		if p, ok := err.(*permanentError); ok {
			return p.err
		}
		if IsPermanent(err) || !cfg.ShouldRetry(err) || attempt >= cfg.MaxAttempts {
			return err
		}

		wait := cfg.wait(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		} else {
			slog.Debug("retry: attempt failed", "attempt", attempt, "max", cfg.MaxAttempts, "err", err, "wait", wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
	}
}
