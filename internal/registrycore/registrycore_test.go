package registrycore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pubregistry/registry/internal/archivestore"
	"github.com/pubregistry/registry/internal/cachelayer"
	"github.com/pubregistry/registry/internal/nametracker"
	"github.com/pubregistry/registry/internal/regtest"
	"github.com/pubregistry/registry/internal/signer"
)

// fakeDirectory is a minimal PublisherDirectory/AccountDirectory double.
// admins maps a publisherID to its admin userIDs; every userID resolves
// to "<userID>@example.com" and back.
type fakeDirectory struct {
	admins map[string][]string
}

func (d *fakeDirectory) IsAdmin(ctx context.Context, userID, publisherID string) (bool, error) {
	for _, a := range d.admins[publisherID] {
		if a == userID {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDirectory) AdminEmails(ctx context.Context, publisherID string) ([]string, error) {
	var out []string
	for _, a := range d.admins[publisherID] {
		out = append(out, a+"@example.com")
	}
	return out, nil
}

func (d *fakeDirectory) ResolveUserByEmail(ctx context.Context, email string) (string, bool, error) {
	for _, admins := range d.admins {
		for _, a := range admins {
			if a+"@example.com" == email {
				return a, true, nil
			}
		}
	}
	return "", false, nil
}

func (d *fakeDirectory) Email(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", nil
	}
	return userID + "@example.com", nil
}

// newTestRegistry wires a Registry over in-memory fixtures (internal/
// regtest's MetadataStore and archivestore.Memory) in place of a live
// Postgres instance.
func newTestRegistry() (*Registry, *regtest.MetadataStore) {
	store := regtest.NewMetadataStore()
	names := nametracker.New(store)
	dir := &fakeDirectory{admins: map[string][]string{"pub1": {"pubadmin"}}}
	cfg := DefaultConfig()
	reg := New(cfg, store, &archivestore.Memory{}, names,
		&signer.Signer{UploadURL: "https://storage.example.com/incoming", Secret: []byte("s"), MaxSize: cfg.MaxArchiveSize},
		&cachelayer.Local{}, dir, dir)
	return reg, store
}

// stageUpload seeds reg.Archives' incoming bucket with a built archive
// under the key PublishUploadedBlob expects for uploadID.
func stageUpload(t *testing.T, reg *Registry, uploadID string, files map[string]string) {
	t.Helper()
	data := regtest.BuildArchive(files)
	err := reg.Archives.Put(context.Background(), archivestore.Incoming,
		archivestore.IncomingKey(uploadID), bytes.NewReader(data), int64(len(data)), 0)
	require.NoError(t, err)
}
