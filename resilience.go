package responsecache

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// ResilienceConfig holds the policies applied around Store calls.
// Resilience is disabled by default and must be enabled with WithResilience.
type ResilienceConfig struct {
	// RetryPolicy configures retry behavior using failsafe-go.
	// If nil, retry is disabled.
	RetryPolicy retrypolicy.RetryPolicy[any]

	// CircuitBreaker configures circuit breaker behavior using failsafe-go.
	// If nil, circuit breaker is disabled. While open, store calls fail fast
	// and every eligible request regenerates without touching the store.
	CircuitBreaker circuitbreaker.CircuitBreaker[any]
}

// retryable reports whether a store error may heal on retry. Malformed
// entries and unwritable locations do not.
func retryable(_ any, err error) bool {
	return err != nil &&
		!errors.Is(err, ErrMalformedEntry) &&
		!errors.Is(err, ErrStorageUnavailable) &&
		!errors.Is(err, circuitbreaker.ErrOpen)
}

// RetryPolicyBuilder creates a pre-configured retry policy builder for store calls.
//
// Default configuration:
//   - Retries on: transient store errors (not ErrMalformedEntry, ErrStorageUnavailable
//     or an open circuit)
//   - Max retries: 2
//   - Backoff: exponential from 10ms to 200ms
//
// Example:
//
//	policy := responsecache.RetryPolicyBuilder().
//	    WithMaxRetries(5).
//	    Build()
func RetryPolicyBuilder() retrypolicy.Builder[any] {
	return retrypolicy.NewBuilder[any]().
		HandleIf(retryable).
		WithMaxRetries(2).
		WithBackoff(10*time.Millisecond, 200*time.Millisecond)
}

// CircuitBreakerBuilder creates a pre-configured circuit breaker builder for store calls.
//
// Default configuration:
//   - Opens on: any store error except ErrMalformedEntry
//   - Failure threshold: 5 consecutive failures
//   - Success threshold: 2 consecutive successes (in half-open state)
//   - Delay: 30 seconds before entering half-open state
func CircuitBreakerBuilder() circuitbreaker.Builder[any] {
	return circuitbreaker.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return err != nil && !errors.Is(err, ErrMalformedEntry)
		}).
		WithFailureThreshold(5).
		WithSuccessThreshold(2).
		WithDelay(30 * time.Second)
}

// executor returns the failsafe executor for store calls, or nil when no
// policy is configured.
func (r *ResilienceConfig) executor() failsafe.Executor[any] {
	if r == nil {
		return nil
	}

	var policies []failsafe.Policy[any]
	// The first policy is outermost: retry wraps the breaker, so every
	// attempt counts toward the failure threshold and an open circuit ends
	// the retries.
	if r.RetryPolicy != nil {
		policies = append(policies, r.RetryPolicy)
	}
	if r.CircuitBreaker != nil {
		policies = append(policies, r.CircuitBreaker)
	}
	if len(policies) == 0 {
		return nil
	}
	return failsafe.With(policies...)
}

// resilientStore applies the configured policies to every call of the
// wrapped Store.
type resilientStore struct {
	store    Store
	executor failsafe.Executor[any]
}

type getResult struct {
	entry Entry
	found bool
}

func (s *resilientStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	v, err := s.executor.WithContext(ctx).Get(func() (any, error) {
		e, found, err := s.store.Get(ctx, id)
		return getResult{entry: e, found: found}, err
	})
	if err != nil {
		return Entry{}, false, err
	}
	r, _ := v.(getResult)
	return r.entry, r.found, nil
}

func (s *resilientStore) Set(ctx context.Context, id string, entry Entry) error {
	return s.executor.WithContext(ctx).Run(func() error {
		return s.store.Set(ctx, id, entry)
	})
}
