// Package retry calls a function again while it fails with errors the caller deems transient. Waits between
// calls grow exponentially: the wait before retry i (counting from 0) is BaseDelay * (Exp^i + Jitter), capped
// at MaxBackoff.
package retry

import (
	"math"
	"time"
)

// Fn is the function to retry
type Fn func() error

// RetryOnFn decides whether to retry on given error
type RetryOnFn func(error) bool

type config struct {
	maxRetries int64         // retries following the first call
	maxBackoff time.Duration // longest wait between two calls
	timeout    time.Duration // zero means none
	jitter     float64
	baseDelay  time.Duration
	exp        float64
	retryOn    RetryOnFn
}

type RetryOption func(*config)

func newConfig(opts []RetryOption) *config {
	c := &config{
		maxRetries: math.MaxInt64,
		maxBackoff: time.Duration(math.MaxInt64),
		exp:        1,
		retryOn:    func(error) bool { return false },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// backoff returns the wait before retry i
func (c *config) backoff(i int64) time.Duration {
	factor := math.Pow(c.exp, float64(i)) + c.jitter
	// float64 overflows int64 well before it turns into Inf
	d := math.Min(float64(c.baseDelay)*factor, float64(c.maxBackoff))
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// WithMaxAttempts caps the number of retries following the first call of the retried function
func WithMaxAttempts(a int64) RetryOption {
	return func(c *config) { c.maxRetries = a }
}

// WithTimeout bounds the total time spent waiting between calls
func WithTimeout(t time.Duration) RetryOption {
	return func(c *config) { c.timeout = t }
}

func WithJitter(j float64) RetryOption {
	return func(c *config) { c.jitter = j }
}

func WithBaseDelay(t time.Duration) RetryOption {
	return func(c *config) { c.baseDelay = t }
}

func WithExp(e float64) RetryOption {
	return func(c *config) { c.exp = e }
}

// WithRetryOn sets which errors are worth another call. Without it nothing is retried.
func WithRetryOn(f RetryOnFn) RetryOption {
	return func(c *config) { c.retryOn = f }
}

func WithMaxBackoff(b time.Duration) RetryOption {
	return func(c *config) { c.maxBackoff = b }
}

// Retry calls f until it returns an error RetryOn rejects, the retry budget runs out or the timeout fires. It
// returns the error of the last call of f, or ErrRetryTimedOut.
func Retry(f Fn, opts ...RetryOption) error {
	cfg := newConfig(opts)
	err := f()
	if !cfg.retryOn(err) {
		return err
	}
	// a nil channel never delivers
	var deadline <-chan time.Time
	if cfg.timeout != 0 {
		t := time.NewTimer(cfg.timeout)
		defer t.Stop()
		deadline = t.C
	}
	for i := int64(0); i < cfg.maxRetries; i++ {
		if d := cfg.backoff(i); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-deadline:
				t.Stop()
				return ErrRetryTimedOut
			}
		}
		if err = f(); !cfg.retryOn(err) {
			return err
		}
	}
	return err
}

type errRetry string

func (e errRetry) Error() string {
	return string(e)
}

const ErrRetryTimedOut errRetry = "retry timed out"
