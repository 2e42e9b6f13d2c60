package upload

import (
	"context"
	"time"
)

// RetryPolicy bounds the attempts made on a failing operation.
// The delay doubles after every failed attempt.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 3
	}
	if p.Delay <= 0 {
		p.Delay = 200 * time.Millisecond
	}
	return p
}

// retryDo runs op until it succeeds, the attempts are exhausted or ctx is
// done. The last op error is returned on exhaustion.
func retryDo(ctx context.Context, p RetryPolicy, op func() error) error {
	p = p.withDefaults()

	var err error
	delay := p.Delay
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			delay *= 2
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}
