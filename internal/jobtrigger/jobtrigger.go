// Package jobtrigger builds the OutboxMessages that enqueue
// analyze/doc-generate work for a newly published version and for
// affected previous-latest versions. The jobs themselves are persisted
// through the same Outbox transaction internal/registrycore's publish
// path already writes to, so this package only knows how to shape a
// job's OutboxMessage; delivery goes through internal/outbox.Sweeper
// calling a JobSubmitter.
package jobtrigger

import (
	"time"

	"github.com/google/uuid"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/outbox"
)

// jobTTL bounds how long an unclaimed job stays queued before the
// sweeper stops retrying it.
const jobTTL = 7 * 24 * time.Hour

func newJobMessage(kind registry.OutboxKind, pkg, version string, now time.Time) *registry.OutboxMessage {
	return &registry.OutboxMessage{
		ID:            uuid.NewString(),
		Kind:          kind,
		Payload:       outbox.BuildJobPayload(pkg, version),
		NextAttemptAt: now,
		ExpiresAt:     now.Add(jobTTL),
	}
}

// Analyze triggers the analyzer job for a newly published version.
func Analyze(pkg, version string, now time.Time) *registry.OutboxMessage {
	return newJobMessage(registry.OutboxAnalyzeJob, pkg, version, now)
}

// DocGen triggers documentation generation for a version — used both
// for the newly published version and, when latestVersionKey changed,
// for the version that was previously latest (so its "canonical" links
// get refreshed).
func DocGen(pkg, version string, now time.Time) *registry.OutboxMessage {
	return newJobMessage(registry.OutboxDocGenJob, pkg, version, now)
}

// DeprioritizeDocGen signals that a version's doc-gen job, if still
// queued, should run at lower priority — used when
// latestPrereleaseVersionKey moves away from it.
func DeprioritizeDocGen(pkg, version string, now time.Time) *registry.OutboxMessage {
	return newJobMessage(registry.OutboxDocGenDeprioritize, pkg, version, now)
}

// ForPublish returns every job OutboxMessage a successful publish
// triggers: the analyzer and doc-gen jobs for the new
// version, plus, when the latest-selection changed, a doc-gen refresh
// for the prior latest stable and a deprioritize signal for the prior
// latest prerelease.
func ForPublish(pkg, newVersion string, prevLatest, prevLatestPrerelease string, latestChanged, latestPrereleaseChanged bool, now time.Time) []*registry.OutboxMessage {
	msgs := []*registry.OutboxMessage{
		Analyze(pkg, newVersion, now),
		DocGen(pkg, newVersion, now),
	}
	if latestChanged && prevLatest != "" && prevLatest != newVersion {
		msgs = append(msgs, DocGen(pkg, prevLatest, now))
	}
	if latestPrereleaseChanged && prevLatestPrerelease != "" && prevLatestPrerelease != newVersion {
		msgs = append(msgs, DeprioritizeDocGen(pkg, prevLatestPrerelease, now))
	}
	return msgs
}
