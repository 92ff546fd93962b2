// Package microbatch batches row inserts inside an open transaction so
// wide writes (a version's asset rows, for instance) cost one
// round-trip per batch instead of one per row.
package microbatch

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Insert accumulates queued statements and flushes them to the
// transaction whenever the configured batch size is reached.
type Insert struct {
	tx        pgx.Tx
	batch     *pgx.Batch
	batchSize int
	// timeout bounds a single flush, not the whole lifetime.
	timeout time.Duration
}

// NewInsert returns an Insert flushing to tx in batches of batchSize.
// A zero timeout defaults to one minute per flush.
func NewInsert(tx pgx.Tx, batchSize int, timeout time.Duration) *Insert {
	if timeout == 0 {
		timeout = time.Minute
	}
	return &Insert{
		tx:        tx,
		batch:     &pgx.Batch{},
		batchSize: batchSize,
		timeout:   timeout,
	}
}

// Queue adds a statement to the current batch, flushing first if the
// batch is full.
func (i *Insert) Queue(ctx context.Context, query string, args ...any) error {
	if i.batch.Len() >= i.batchSize {
		if err := i.flush(ctx); err != nil {
			return fmt.Errorf("flushing full batch: %w", err)
		}
	}
	i.batch.Queue(query, args...)
	return nil
}

// Done flushes whatever remains queued. It MUST be called after the
// final Queue and before the transaction commits.
func (i *Insert) Done(ctx context.Context) error {
	if i.batch.Len() == 0 {
		return nil
	}
	return i.flush(ctx)
}

func (i *Insert) flush(ctx context.Context) error {
	tctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	n := i.batch.Len()
	res := i.tx.SendBatch(tctx, i.batch)
	defer res.Close()
	i.batch = &pgx.Batch{}
	for j := 0; j < n; j++ {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("batched statement %d: %w", j, err)
		}
	}
	return nil
}
