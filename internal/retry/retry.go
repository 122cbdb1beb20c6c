// Package retry is the one named retry policy shared by the Resolver,
// the Transformer Engine, and the combined Contract+Event insert:
// three attempts with exponential backoff starting at 100ms.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/burnt-labs/dao-dao-indexer/internal/metrics"
)

const maxAttempts = 3

// Do runs fn up to maxAttempts times with exponential backoff starting
// at 100ms, honoring ctx cancellation between attempts. Do does not
// itself inspect error kinds; callers decide what's worth retrying
// before calling it. m may be nil.
func Do(ctx context.Context, log *zap.Logger, op string, m *metrics.Metrics, fn func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return fn()
	}, newBackOff(ctx), func(err error, wait time.Duration) {
		if m != nil {
			m.RetryAttempts.Inc()
		}
		if log != nil {
			log.Warn("retrying after error",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}
	})
}

func newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	b := backoff.WithMaxRetries(eb, maxAttempts-1)
	return backoff.WithContext(b, ctx)
}
