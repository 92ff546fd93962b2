package jobtrigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pubregistry/registry"
)

func TestForPublishFirstVersion(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := ForPublish("pkg", "1.0.0", "", "", true, true, now)
	require.Len(t, msgs, 2)
	require.Equal(t, registry.OutboxAnalyzeJob, msgs[0].Kind)
	require.Equal(t, registry.OutboxDocGenJob, msgs[1].Kind)
}

func TestForPublishRefreshesPriorLatest(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := ForPublish("pkg", "1.1.0", "1.0.0", "1.0.0", true, false, now)
	require.Len(t, msgs, 3)
	require.Equal(t, registry.OutboxDocGenJob, msgs[2].Kind)
}

func TestForPublishDeprioritizesPriorPrerelease(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := ForPublish("pkg", "2.0.0", "1.0.0", "2.0.0-beta.1", false, true, now)
	require.Len(t, msgs, 3)
	require.Equal(t, registry.OutboxDocGenDeprioritize, msgs[2].Kind)
}

func TestForPublishSkipsSelfReferentialRefresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// prevLatest == newVersion happens on a re-publish that didn't
	// actually change which version is latest; no redundant refresh job.
	msgs := ForPublish("pkg", "1.0.0", "1.0.0", "1.0.0", true, true, now)
	require.Len(t, msgs, 2)
}
