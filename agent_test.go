package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAgentKindDiscrimination(t *testing.T) {
	u := AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}
	gh := AuthenticatedGithubAction{Repository: "acme/pkg", Ref: "refs/tags/v1.0.0"}
	gcp := AuthenticatedGcpServiceAccount{Email: "svc@p.gserviceaccount.com"}

	require.Equal(t, AgentUser, u.Kind())
	require.Equal(t, AgentGithubAction, gh.Kind())
	require.Equal(t, AgentGcpServiceAccount, gcp.Kind())

	require.False(t, IsAutomated(u))
	require.True(t, IsAutomated(gh))
	require.True(t, IsAutomated(gcp))

	require.Equal(t, "user:u1", u.AgentID())
	require.Equal(t, "github:acme/pkg", gh.AgentID())
	require.Equal(t, "gcp:svc@p.gserviceaccount.com", gcp.AgentID())
}
