package audit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pubregistry/registry"
)

func TestRecordBuilder(t *testing.T) {
	agent := registry.AuthenticatedUser{UserID: "u1", Email: "u1@example.com"}
	rec := New(registry.AuditPackagePublished, agent, "published pkg 1.0.0").
		Package("pkg").
		PackageVersion("pkg", "1.0.0").
		Publisher("").
		User("u1").
		Set("version", "1.0.0").
		Build()

	require.NotEmpty(t, rec.ID)
	require.Equal(t, registry.AuditPackagePublished, rec.Kind)
	require.Equal(t, "user:u1", rec.AgentID)
	require.Equal(t, []string{"pkg"}, rec.Packages)
	require.Equal(t, []string{"pkg@1.0.0"}, rec.PackageVersions)
	require.Empty(t, rec.Publishers)
	require.Equal(t, []string{"u1"}, rec.Users)
	require.Equal(t, "1.0.0", rec.Data["version"])
	require.False(t, rec.Created.IsZero())
}
