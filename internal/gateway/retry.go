// internal/gateway/retry.go
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/user/hookrelay/internal/types"
)

// RetryingDeliverer wraps a deliverer with one bounded retry: a failed
// delivery is attempted once more after a short pause, then reported as
// failed. A missing credential is permanent and is never retried.
type RetryingDeliverer struct {
	inner types.Deliverer
	pause time.Duration
}

// WithRetry wraps the given deliverer with the single-retry policy.
func WithRetry(inner types.Deliverer) *RetryingDeliverer {
	return &RetryingDeliverer{inner: inner, pause: time.Second}
}

// Deliver attempts delivery, retrying exactly once on failure.
func (r *RetryingDeliverer) Deliver(ctx context.Context, ex *types.Exchange) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.pause), 1), ctx)

	return backoff.Retry(func() error {
		err := r.inner.Deliver(ctx, ex)
		if errors.Is(err, ErrNoCredential) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

var _ types.Deliverer = (*RetryingDeliverer)(nil)
