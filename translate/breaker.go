package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrProviderUnavailable is returned while the breaker is open.
var ErrProviderUnavailable = errors.New("translation provider unavailable")

// BreakerOptions configures NewBreaker.
type BreakerOptions struct {
	// Failures is the number of consecutive failed batches that opens the
	// breaker. Default: 3.
	Failures uint32
	// Cooldown is how long the breaker stays open before letting one
	// trial batch through. Default: 5 minutes.
	Cooldown time.Duration
	// OnLog emits state changes.
	OnLog func(format string, args ...any)
}

// Breaker wraps a Translator in a circuit breaker so that long-running
// modes stop hitting a failing provider for a while instead of spending
// its rate limit on every poll.
type Breaker struct {
	next Translator
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(name string, next Translator, opts BreakerOptions) *Breaker {
	failures := opts.Failures
	if failures == 0 {
		failures = 3
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if opts.OnLog != nil {
				opts.OnLog("Provider %s breaker: %s -> %s", name, from, to)
			}
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State returns the breaker state name: closed, half-open or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) TranslateBatch(ctx context.Context, texts []string, langs []string) (map[string][]*string, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.TranslateBatch(ctx, texts, langs)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return res.(map[string][]*string), nil
}
