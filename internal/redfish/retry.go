package redfish

import (
	"context"
	"time"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/logger"
	"github.com/cenkalti/backoff/v5"
)

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// newBackOff returns a generator whose successive intervals strictly
// increase until MaxBackoff: with a multiplier of 2 and a randomization of
// 0.2 the widest draw of one step stays below the narrowest of the next.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()

	return b
}

// retry runs op until it succeeds, fails with a non-transient error, or
// MaxRetries retries are spent. The last error is returned unchanged so
// callers can still tell a transient exhaustion apart.
func (c *Client) retry(ctx context.Context, log logger.Logger, what string, op func(context.Context) error) error {
	b := c.newBackOff()

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := b.NextBackOff()
			if wait > c.opts.MaxBackoff {
				wait = c.opts.MaxBackoff
			}

			log.Debug().
				Str("request", what).
				Int("attempt", attempt+1).
				Dur("backoff", wait).
				Err(lastErr).
				Msg("transient failure, retrying")

			if err := c.wait(ctx, wait); err != nil {
				return errFactory.Wrap(ErrCanceled, err).WithData(what)
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.HasCode(err, ErrTransient) {
			return err
		}
	}

	return lastErr
}
