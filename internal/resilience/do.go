package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrCircuitOpen is returned when the breaker refuses the call outright.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Do runs fn with bounded retries and exponential backoff (1s, 2s, 4s, ...)
// behind the given circuit breaker. It is the single wrapper applied to every
// external-I/O call: ticker fetches, AI requests and order placement.
// A nil breaker disables the fail-fast behavior.
func Do(ctx context.Context, br *Breaker, attempts int, fn func() error) error {
	if br != nil && !br.Allow() {
		return fmt.Errorf("%s: %w", br.Name(), ErrCircuitOpen)
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			if br != nil {
				br.RecordSuccess()
			}
			return nil
		}

		if i == attempts-1 {
			break
		}

		backoff := time.Duration(math.Pow(2, float64(i))) * time.Second
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			if br != nil {
				br.RecordFailure()
			}
			return ctx.Err()
		}
	}

	if br != nil {
		br.RecordFailure()
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
