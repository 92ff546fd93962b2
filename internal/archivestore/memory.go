package archivestore

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"io"
	"sync"
	"time"
)

// Memory is an in-process Store, suitable for tests and for single-replica
// deployments that front it with a reverse proxy. It keeps the three
// buckets as independent maps so keys never collide across buckets.
//
// The zero value is ready for use.
type Memory struct {
	mu      sync.Mutex
	buckets [3]map[string]object
}

type object struct {
	bytes  []byte
	md5    [md5.Size]byte
	expiry time.Time // zero means no TTL
}

var _ Store = (*Memory)(nil)

func (m *Memory) bucket(b Bucket) map[string]object {
	if m.buckets[b] == nil {
		m.buckets[b] = make(map[string]object)
	}
	return m.buckets[b]
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, bucket Bucket, key string, r io.Reader, size int64, ttl time.Duration) error {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o := object{bytes: buf, md5: md5.Sum(buf)}
	if ttl > 0 {
		o.expiry = time.Now().Add(ttl)
	}
	m.bucket(bucket)[key] = o
	return nil
}

// Copy implements Store.
func (m *Memory) Copy(ctx context.Context, srcBucket Bucket, srcKey string, dstBucket Bucket, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.bucket(srcBucket)[srcKey]
	if !ok {
		return errors.New("archivestore: source object not found")
	}
	if dst, ok := m.bucket(dstBucket)[dstKey]; ok {
		if dst.md5 != src.md5 {
			return &ErrObjectMismatch{Bucket: dstBucket, Key: dstKey}
		}
		return nil // byte-identical, no-op
	}
	m.bucket(dstBucket)[dstKey] = object{bytes: src.bytes, md5: src.md5}
	return nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, bucket Bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	o, ok := m.bucket(bucket)[key]
	m.mu.Unlock()
	if !ok {
		return nil, errors.New("archivestore: object not found")
	}
	return io.NopCloser(bytes.NewReader(o.bytes)), nil
}

// Stat implements Store.
func (m *Memory) Stat(ctx context.Context, bucket Bucket, key string) (ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.bucket(bucket)[key]
	if !ok {
		return ObjectInfo{}, nil
	}
	if !o.expiry.IsZero() && time.Now().After(o.expiry) {
		delete(m.bucket(bucket), key)
		return ObjectInfo{}, nil
	}
	return ObjectInfo{Exists: true, Size: int64(len(o.bytes)), MD5: o.md5}, nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, bucket Bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bucket(bucket), key)
	return nil
}

// Sweep removes expired Incoming objects. It is meant to be called
// periodically by a background goroutine, standing in for the bucket
// lifecycle rule that deletes stale incoming objects on backends (like
// this one) with no native TTL support.
func (m *Memory) Sweep(now time.Time) (removed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(Incoming)
	for k, o := range b {
		if !o.expiry.IsZero() && now.After(o.expiry) {
			delete(b, k)
			removed++
		}
	}
	return removed
}
