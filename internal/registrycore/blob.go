package registrycore

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/archivestore"
	"github.com/pubregistry/registry/pkg/tmp"
)

// readIncomingBlob is the bounded-copy utility for staged uploads: it
// caps bytes read as it streams and always spills to a temp file (never
// an unbounded in-memory buffer), since an upload may be as large as
// Config.MaxArchiveSize. The caller must Close the returned file, which
// also removes it from disk (pkg/tmp.File).
func (r *Registry) readIncomingBlob(ctx context.Context, uploadID string) (*tmp.File, int64, error) {
	const op = "Registry.PublishUploadedBlob"
	key := archivestore.IncomingKey(uploadID)

	info, err := r.Archives.Stat(ctx, archivestore.Incoming, key)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: statting incoming object: %w", op, err)
	}
	if !info.Exists || info.Size == 0 {
		return nil, 0, &registry.Error{
			Op: op, Kind: registry.ErrPackageRejected, Reason: registry.ReasonArchiveEmpty,
			Message: "the uploaded archive is missing or empty",
		}
	}
	if info.Size > r.cfg.MaxArchiveSize {
		return nil, 0, &registry.Error{
			Op: op, Kind: registry.ErrPackageRejected, Reason: registry.ReasonArchiveTooLarge,
			Message: fmt.Sprintf("archive of %d bytes exceeds the maximum of %d bytes", info.Size, r.cfg.MaxArchiveSize),
		}
	}

	rc, err := r.Archives.Get(ctx, archivestore.Incoming, key)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: reading incoming object: %w", op, err)
	}
	defer rc.Close()

	f, err := tmp.NewFile("", "pubregistry-upload-*")
	if err != nil {
		return nil, 0, fmt.Errorf("%s: allocating spill file: %w", op, err)
	}
	n, err := io.Copy(f.File, io.LimitReader(rc, info.Size+1))
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%s: buffering incoming object: %w", op, err)
	}
	if n != info.Size {
		f.Close()
		return nil, 0, &registry.Error{
			Op: op, Kind: registry.ErrInternal,
			Message: fmt.Sprintf("incoming object size changed mid-read (%d != %d)", n, info.Size),
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%s: rewinding spill file: %w", op, err)
	}
	return f, n, nil
}

// blobMD5 hashes f's full contents and rewinds it to the start.
func blobMD5(f *tmp.File) ([md5.Size]byte, error) {
	var sum [md5.Size]byte
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return sum, err
	}
	h := md5.New()
	if _, err := io.Copy(h, f.File); err != nil {
		return sum, err
	}
	h.Sum(sum[:0])
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return sum, err
	}
	return sum, nil
}
