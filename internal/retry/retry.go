// Package retry implements the exponential-backoff policy used for
// transaction-conflict retries and other transient failures,
// keyed off a registry.ErrorKind rather than being baked into any one
// caller.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/pubregistry/registry"
)

// Policy is an exponential backoff schedule with jitter.
type Policy struct {
	Initial       time.Duration
	Factor        float64
	Max           time.Duration
	Attempts      int
	Randomization float64
}

// Default is the schedule used for MetadataStore
// transaction conflicts: initial 20ms, factor ~2, max delay 5s, up to 8
// attempts, ~0.25 randomization.
var Default = Policy{
	Initial:       20 * time.Millisecond,
	Factor:        2,
	Max:           5 * time.Second,
	Attempts:      8,
	Randomization: 0.25,
}

// NextDelay returns the backoff delay before the given attempt number
// (0-indexed), for callers that schedule their own retry (e.g.
// internal/outbox, which persists NextAttemptAt rather than sleeping
// in-process).
func (p Policy) NextDelay(attempt int) time.Duration {
	return p.delay(attempt)
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.Initial)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
	}
	if max := float64(p.Max); d > max {
		d = max
	}
	jitter := 1 + p.Randomization*(2*rand.Float64()-1)
	return time.Duration(d * jitter)
}

// Retryable reports whether err should trigger another attempt: only
// *registry.Error values tagged registry.ErrTransient. A retry is only
// safe when the operation is side-effect-free inside the transaction;
// anything else is returned to the caller immediately.
func Retryable(err error) bool {
	var e *registry.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == registry.ErrTransient
}

// Do runs fn, retrying per p while Retryable(err) and attempts remain.
// It returns the last error (transient or not) if fn never succeeds.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return err
}
