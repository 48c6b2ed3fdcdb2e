// Package retry runs calls to external systems with a per-attempt timeout and
// bounded exponential backoff. Only transient failures are retried.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/cenkalti/backoff/v4"
)

// Policy bounds one retried call.
type Policy struct {
	// Timeout applies to every attempt separately. Zero means no timeout.
	Timeout time.Duration
	// MaxRetries is the number of attempts after the first one.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is used for contract and gateway calls unless configured.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	// the retry count is the only bound
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)
}

// Do calls op until it succeeds, fails permanently or the policy is
// exhausted. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, logger *slog.Logger, name string, op func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	attempt := 0
	operation := func() error {
		attempt++
		actx, cancel := attemptContext(ctx, p.Timeout)
		defer cancel()

		err := op(actx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !domain.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("⚠️ Transient failure, retrying",
			"call", name,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
	}
	err := backoff.RetryNotify(operation, p.backOff(ctx), notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func attemptContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
