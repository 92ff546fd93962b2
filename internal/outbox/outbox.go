// Package outbox implements the Outbox component:
// a persistent, at-least-once queue of emails and post-upload jobs.
// Writers append a registry.OutboxMessage inside the same MetadataStore
// transaction as the event that causes it (internal/registrycore does
// the appending); this package only drains the queue, so enqueue stays
// exactly-once while delivery is at-least-once.
//
// Background fan-out must never block a publish response: the Sweeper
// runs as an independent goroutine, guarded by a
// locksource.ContextLock so only one replica drains at a time, the same
// advisory-locking pattern locksource/pglock applies to other exclusive
// background work.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/quay/zlog"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/metadatastore"
	"github.com/pubregistry/registry/internal/retry"
	"github.com/pubregistry/registry/locksource"
)

// EmailSender delivers one email. Implementations should treat repeated
// calls with the same payload as safe; delivery is at-least-once.
type EmailSender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// JobSubmitter hands a post-upload job (analyze, doc-gen, doc-gen
// deprioritize) to the out-of-scope job-execution system.
type JobSubmitter interface {
	Submit(ctx context.Context, kind registry.OutboxKind, payload []byte) error
}

// Sweeper drains pending OutboxMessages.
type Sweeper struct {
	Store  metadatastore.Store
	Mailer EmailSender
	Jobs   JobSubmitter
	Lock   locksource.ContextLock
	// Policy governs the per-message retry backoff.
	Policy retry.Policy
	// BatchSize bounds how many messages one DeliverOnce call pops.
	BatchSize int
	// LockKey names the advisory lock guarding single-replica draining.
	LockKey string
}

const defaultBatchSize = 50

// DeliverOnce pops and attempts delivery of every currently-due
// OutboxMessage, up to BatchSize. It returns the number successfully
// delivered; individual failures are logged and retried on a later
// sweep per the backoff schedule, never returned as an error; post-
// commit failures are logged, not surfaced.
func (s *Sweeper) DeliverOnce(ctx context.Context) (delivered int, err error) {
	limit := s.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}
	now := time.Now().UTC()
	pending, err := s.Store.PendingOutbox(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	for _, msg := range pending {
		if s.deliverOne(ctx, msg, now) {
			delivered++
		}
	}
	return delivered, nil
}

func (s *Sweeper) deliverOne(ctx context.Context, msg *registry.OutboxMessage, now time.Time) bool {
	var err error
	switch msg.Kind {
	case registry.OutboxEmail:
		err = s.deliverEmail(ctx, msg)
	case registry.OutboxAnalyzeJob, registry.OutboxDocGenJob, registry.OutboxDocGenDeprioritize:
		err = s.deliverJob(ctx, msg)
	default:
		err = errors.New("outbox: unknown message kind " + string(msg.Kind))
	}
	if err == nil {
		if rerr := s.Store.RecordOutboxAttempt(ctx, msg.ID, true, now); rerr != nil {
			zlog.Error(ctx).Err(rerr).Str("outbox_id", msg.ID).Msg("outbox: recording delivery")
		}
		return true
	}
	policy := s.Policy
	if policy.Attempts == 0 {
		policy = retry.Default
	}
	next := now.Add(policy.NextDelay(msg.Attempts))
	if rerr := s.Store.RecordOutboxAttempt(ctx, msg.ID, false, next); rerr != nil {
		zlog.Error(ctx).Err(rerr).Str("outbox_id", msg.ID).Msg("outbox: recording failed attempt")
	}
	zlog.Warn(ctx).Err(err).Str("outbox_id", msg.ID).Str("kind", string(msg.Kind)).Msg("outbox: delivery failed, will retry")
	return false
}

func (s *Sweeper) deliverEmail(ctx context.Context, msg *registry.OutboxMessage) error {
	if s.Mailer == nil {
		return errors.New("outbox: no EmailSender configured")
	}
	p, err := DecodeEmailPayload(msg.Payload)
	if err != nil {
		return err
	}
	return s.Mailer.Send(ctx, p.To, p.Subject, p.Body)
}

func (s *Sweeper) deliverJob(ctx context.Context, msg *registry.OutboxMessage) error {
	if s.Jobs == nil {
		return errors.New("outbox: no JobSubmitter configured")
	}
	return s.Jobs.Submit(ctx, msg.Kind, msg.Payload)
}

// Run calls DeliverOnce every interval until ctx is canceled, holding
// the advisory lock for the duration of each sweep so at most one
// replica drains at a time.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	key := s.LockKey
	if key == "" {
		key = "outbox-sweeper"
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepLocked(ctx, key)
		}
	}
}

func (s *Sweeper) sweepLocked(ctx context.Context, key string) {
	lctx, cancel := s.Lock.TryLock(ctx, key)
	defer cancel()
	if lctx.Err() != nil {
		return // another replica holds the lock
	}
	n, err := s.DeliverOnce(lctx)
	if err != nil {
		zlog.Error(ctx).Err(err).Msg("outbox: sweep failed")
		return
	}
	if n > 0 {
		zlog.Debug(ctx).Int("delivered", n).Msg("outbox: sweep delivered messages")
	}
}
