package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/metadatastore"
	"github.com/pubregistry/registry/internal/regtest"
	"github.com/pubregistry/registry/internal/retry"
	"github.com/pubregistry/registry/locksource"
)

type countingMailer struct {
	calls int
	fail  bool
}

func (m *countingMailer) Send(ctx context.Context, to []string, subject, body string) error {
	m.calls++
	if m.fail {
		return errors.New("smtp down")
	}
	return nil
}

func seedEmail(t *testing.T, store *regtest.MetadataStore, id string) {
	t.Helper()
	ctx := t.Context()
	require.NoError(t, store.WithinPackageTx(ctx, "pkg", func(ctx context.Context, tx metadatastore.Tx) error {
		return tx.InsertOutboxMessage(ctx, &registry.OutboxMessage{
			ID:            id,
			Kind:          registry.OutboxEmail,
			Payload:       BuildEmailPayload([]string{"a@example.com"}, "subj", "body"),
			NextAttemptAt: time.Now().Add(-time.Minute),
			ExpiresAt:     time.Now().Add(time.Hour),
		})
	}))
}

func TestDeliverOnceSuccess(t *testing.T) {
	store := regtest.NewMetadataStore()
	seedEmail(t, store, "m1")

	mailer := &countingMailer{}
	sw := &Sweeper{Store: store, Mailer: mailer, Policy: retry.Default}
	n, err := sw.DeliverOnce(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, mailer.calls)

	// Delivered messages are not redelivered.
	n, err = sw.DeliverOnce(t.Context())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestDeliverOnceRetriesOnFailure(t *testing.T) {
	store := regtest.NewMetadataStore()
	seedEmail(t, store, "m2")

	mailer := &countingMailer{fail: true}
	sw := &Sweeper{Store: store, Mailer: mailer, Policy: retry.Default}
	n, err := sw.DeliverOnce(t.Context())
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, 1, mailer.calls)
}

func TestSweeperRunDeliversWhileHoldingLock(t *testing.T) {
	store := regtest.NewMetadataStore()
	seedEmail(t, store, "m3")
	mailer := &countingMailer{}
	var local locksource.Local
	sw := &Sweeper{Store: store, Mailer: mailer, Policy: retry.Default, Lock: &local}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	sw.Run(ctx, 10*time.Millisecond)
	require.GreaterOrEqual(t, mailer.calls, 1)
}
