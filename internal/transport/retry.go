package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// rotateOnErrorCodes is the set of HTTP status codes that justify rotating
// to a fallback URL once retries are exhausted: rate limiting and the
// transient 5xx family. Other 4xx codes are neither retried nor rotated on.
var rotateOnErrorCodes = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// RotateOnStatus reports whether the status code is rotation-worthy.
func RotateOnStatus(status int) bool { return rotateOnErrorCodes[status] }

// RetryPolicy parameterizes the exponential backoff applied to each HTTP
// request before rotation is considered. The policy is library-neutral; it
// is compiled into a backoff.BackOff at call time.
type RetryPolicy struct {
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the delay between attempts.
	MaxInterval time.Duration
	// Multiplier grows the delay between attempts.
	Multiplier float64
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries uint64
	// RandomizationFactor spreads each delay into
	// [interval*(1-f), interval*(1+f)]. 1.0 gives full jitter.
	RandomizationFactor float64
}

// DefaultRetryPolicy is exponential backoff base 2 bounded to
// [250ms, 10s] with full jitter and 3 retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval:     250 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2,
		MaxRetries:          3,
		RandomizationFactor: 1,
	}
}

// backOff compiles the policy into a context-aware backoff.BackOff.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}
