package outbox

import (
	"context"

	"github.com/quay/zlog"

	"github.com/pubregistry/registry"
)

// LogMailer is an EmailSender that logs instead of delivering. Real mail
// transport is an external collaborator; this is wired by
// cmd/pubregistryd for local development and as a safety-net default
// when no SMTP/transactional-mail backend is configured.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, to []string, subject, body string) error {
	zlog.Info(ctx).Strs("to", to).Str("subject", subject).Msg("outbox: would send email")
	return nil
}

// LogJobSubmitter is a JobSubmitter that logs instead of enqueuing.
// Analyze/doc-gen job execution is an external collaborator;
// a real deployment wires this to its job-execution system instead.
type LogJobSubmitter struct{}

func (LogJobSubmitter) Submit(ctx context.Context, kind registry.OutboxKind, payload []byte) error {
	zlog.Info(ctx).Str("kind", string(kind)).Int("payloadBytes", len(payload)).Msg("outbox: would submit job")
	return nil
}
