package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults used when a Policy leaves a field unset.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 5 * time.Second
)

// Policy bounds one retry session. Backoff is stateful and must not be
// shared between sessions.
type Policy struct {
	MaxAttempts int
	Backoff     backoff.BackOff
}

// ConstantPolicy waits the same delay before every retry.
func ConstantPolicy(maxAttempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, Backoff: backoff.NewConstantBackOff(delay)}
}

// ExponentialPolicy doubles the delay from initial up to maxInterval, with
// 10% jitter. Elapsed-time limits are disabled; MaxAttempts is the only bound.
func ExponentialPolicy(maxAttempts int, initial, maxInterval time.Duration) Policy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.1
	b.Reset()
	return Policy{MaxAttempts: maxAttempts, Backoff: b}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = backoff.NewConstantBackOff(DefaultBackoff)
	}
	p.Backoff.Reset()
	return p
}
