package channelmanager

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// defaultMaxAttempts is the number of tries before Retry gives up.
	defaultMaxAttempts = 3

	// baseDelay is the starting backoff interval (before jitter).
	baseDelay = 500 * time.Millisecond

	// maxDelay caps the backoff interval.
	maxDelay = 5 * time.Second
)

// Permanent wraps err so [Retry] returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// newBackOff is the jittered exponential policy shared by every request.
func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.MaxInterval = maxDelay
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	return b
}

// Retry executes fn up to maxAttempts times with exponential backoff and
// jitter. It stops early on success, on context cancellation, or when fn
// returns an error wrapped with [Permanent].
func Retry(ctx context.Context, maxAttempts int, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("retry cancelled: %w", err)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	_, err := backoff.Retry(ctx,
		func() (struct{}, error) { return struct{}{}, fn() },
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return nil
	}

	// backoff returns a Permanent error still wrapped when it is the last try.
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("retry cancelled: %w", err)
	}
	return fmt.Errorf("all %d attempts failed: %w", maxAttempts, err)
}

// onlyIfNotSent makes err permanent unless the request provably never
// reached the server. Mutations go through it: a timeout or 5xx may follow a
// write the server already applied.
func onlyIfNotSent(err error) error {
	if err == nil || notSent(err) {
		return err
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return err
	}
	return Permanent(err)
}

// notSent reports a failure to establish the connection.
func notSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
