// Package backoff implements the jittered exponential retry used for
// provider rate-limit rejections.
//
// Before each retry the caller sleeps a uniformly random duration within the
// current window. The window starts at Initial and doubles after every
// retry, capped at Max. Attempts counts the first call.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrExhausted wraps the last retryable error once all attempts are spent.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy configures Do.
type Policy struct {
	Initial  time.Duration
	Max      time.Duration
	Attempts int

	// Jitter returns a value in [0, 1). Defaults to math/rand.
	Jitter func() float64
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each sleep.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Default returns the provider policy: 1s window, doubling, capped at 30s,
// five attempts in total.
func Default() Policy {
	return Policy{Initial: time.Second, Max: 30 * time.Second, Attempts: 5}
}

// Do calls op until it succeeds, returns an error for which retryable is
// false, or the attempts are spent. Exhaustion returns an error wrapping
// both ErrExhausted and the last error from op.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, op func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	window := p.Initial

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil || !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := time.Duration(p.jitter() * float64(window))
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if serr := p.sleep(ctx, wait); serr != nil {
			return serr
		}
		window *= 2
		if p.Max > 0 && window > p.Max {
			window = p.Max
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
}

func (p Policy) jitter() float64 {
	if p.Jitter != nil {
		return p.Jitter()
	}
	return rand.Float64()
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
