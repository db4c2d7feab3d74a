package retry

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testErrRetryable struct {
}

func (e testErrRetryable) Error() string {
	return "retryable err"
}

func TestRetry(t *testing.T) {
	retryable, nonRetryable := testErrRetryable{}, fmt.Errorf("non-retryable")
	f := func(count *int, errs []error) error {
		cnt := *count
		// to prove the function logic is actually executed
		*count = cnt + 1
		return errs[cnt]
	}
	retryOn := func(e error) bool {
		_, ok := e.(testErrRetryable)
		return ok
	}
	tcs := []struct {
		name     string
		errs     []error
		strategy []RetryOption
		expected int
	}{
		{
			name:     "no retry",
			errs:     []error{nil},
			expected: 1,
		},
		{
			name: "retry with max attempt",
			errs: []error{
				retryable,
				retryable,
				nonRetryable,
			},
			expected: 3,
			strategy: []RetryOption{
				WithMaxAttempts(2),
				WithRetryOn(retryOn),
			},
		},
		{
			name: "max attempt exhausted",
			errs: []error{
				retryable,
				retryable,
				retryable,
				retryable,
			},
			expected: 3,
			strategy: []RetryOption{
				WithMaxAttempts(2),
				WithRetryOn(retryOn),
			},
		},
		{
			name: "retryOn",
			errs: []error{
				retryable,
				retryable,
				nonRetryable,
				retryable,
				retryable,
			},
			expected: 3,
			strategy: []RetryOption{
				WithMaxAttempts(10),
				WithRetryOn(retryOn),
			},
		},
	}

	for _, c := range tcs {
		errs, strategy, exp := c.errs, c.strategy, c.expected
		t.Run(c.name, func(t *testing.T) {
			actual := 0
			Retry(
				func() error {
					// f can also return result besides values as long as we refer to
					// the result with pointer so that it won't get lost
					return f(&actual, errs)
				},
				strategy...,
			)
			assert.Equal(t, exp, actual, "unexpected number of calls for %v", errs)
		})
	}
}

func TestRetryReturnsLastErr(t *testing.T) {
	err := Retry(
		func() error { return testErrRetryable{} },
		WithMaxAttempts(5),
		WithRetryOn(func(error) bool { return true }),
	)
	assert.Equal(t, testErrRetryable{}, err)
}

func TestRetryTimeout(t *testing.T) {
	err := Retry(
		func() error { return testErrRetryable{} },
		WithBaseDelay(time.Hour),
		WithTimeout(10*time.Millisecond),
		WithRetryOn(func(error) bool { return true }),
	)
	assert.Equal(t, ErrRetryTimedOut, err)
}

func TestBackoff(t *testing.T) {
	tcs := []struct {
		name     string
		opts     []RetryOption
		i        int64
		expected time.Duration
	}{
		{name: "NoDelay", i: 3, expected: 0},
		{name: "Constant", opts: []RetryOption{WithBaseDelay(time.Second)}, i: 5, expected: time.Second},
		{name: "Exponential", opts: []RetryOption{WithBaseDelay(time.Second), WithExp(2)}, i: 3, expected: 8 * time.Second},
		{name: "Jitter", opts: []RetryOption{WithBaseDelay(time.Second), WithJitter(0.5)}, i: 0, expected: 1500 * time.Millisecond},
		{
			name:     "Capped",
			opts:     []RetryOption{WithBaseDelay(time.Second), WithExp(2), WithMaxBackoff(time.Minute)},
			i:        10,
			expected: time.Minute,
		},
		{name: "Overflow", opts: []RetryOption{WithBaseDelay(time.Hour), WithExp(10)}, i: 400, expected: time.Duration(math.MaxInt64)},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, newConfig(c.opts).backoff(c.i))
		})
	}
}
