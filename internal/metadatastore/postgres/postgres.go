// Package postgres implements metadatastore.Store on top of pgx/v5.
//
// SQL statements are kept as constants in the closest scope possible to
// where they're used, following the house style set by
// datastore/postgres/doc.go. Queries endeavor to do work database-side
// rather than round-tripping to build further queries.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/metadatastore"
	"github.com/pubregistry/registry/pkg/microbatch"
)

var (
	methodCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registry",
		Subsystem: "metadatastore",
		Name:      "method_total",
		Help:      "The number of calls to a metadatastore method, by method and outcome.",
	}, []string{"method", "outcome"})
	methodDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "registry",
		Subsystem: "metadatastore",
		Name:      "method_duration_seconds",
		Help:      "The time spent in a metadatastore method.",
	}, []string{"method"})
)

// method is the observability wrapper every exported Store/Tx method
// opens with: a zlog trace line plus a prometheus latency observation,
// labeled by the calling method's name.
func method(ctx context.Context, err *error) func() {
	pc, _, _, _ := runtime.Caller(1)
	name := runtime.FuncForPC(pc).Name()
	if i := strings.LastIndexByte(name, '.'); i != -1 {
		name = name[i+1:]
	}
	zlog.Debug(ctx).Str("method", name).Msg("start")
	begin := time.Now()
	return func() {
		methodDuration.WithLabelValues(name).Observe(time.Since(begin).Seconds())
		outcome := "ok"
		ev := zlog.Debug(ctx).Str("method", name).Dur("duration", time.Since(begin))
		if *err != nil {
			outcome = "error"
			ev = ev.Err(*err)
		}
		methodCount.WithLabelValues(name, outcome).Inc()
		ev.Msg("done")
	}
}

// Store implements metadatastore.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ metadatastore.Store = (*Store)(nil)

// New wraps an already-connected pool (see datastore/postgres.Connect).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectPackage = `
SELECT name, created, updated, latest_version, latest_prerelease_version,
       uploaders, publisher_id, is_discontinued, is_unlisted, is_blocked,
       replaced_by, version_count, automated_publishing
  FROM packages WHERE name = $1;`

func scanPackage(row pgx.Row) (*registry.Package, bool, error) {
	var p registry.Package
	var auto []byte
	err := row.Scan(&p.Name, &p.Created, &p.Updated, &p.LatestVersionKey,
		&p.LatestPrereleaseVersionKey, &p.Uploaders, &p.PublisherID,
		&p.IsDiscontinued, &p.IsUnlisted, &p.IsBlocked, &p.ReplacedBy,
		&p.VersionCount, &auto)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(auto) != 0 {
		if err := json.Unmarshal(auto, &p.AutomatedPublishing); err != nil {
			return nil, false, fmt.Errorf("metadatastore: decoding automated_publishing: %w", err)
		}
	}
	return &p, true, nil
}

// GetPackage implements metadatastore.Store.
func (s *Store) GetPackage(ctx context.Context, name string) (pkg *registry.Package, ok bool, err error) {
	defer method(ctx, &err)()
	row := s.pool.QueryRow(ctx, selectPackage, name)
	return scanPackage(row)
}

const selectVersions = `
SELECT package_name, version, pubspec, libraries, created, uploader_agent_id,
       publisher_id_at_publish, sha256, is_retracted, retracted_at
  FROM package_versions WHERE package_name = $1;`

func scanVersion(rows pgx.Rows) (*registry.PackageVersion, error) {
	var v registry.PackageVersion
	var pubspec []byte
	var sha []byte
	var retractedAt *time.Time
	if err := rows.Scan(&v.PackageName, &v.Version, &pubspec, &v.Libraries,
		&v.Created, &v.UploaderAgentID, &v.PublisherIDAtPublish, &sha,
		&v.IsRetracted, &retractedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pubspec, &v.Pubspec); err != nil {
		return nil, fmt.Errorf("metadatastore: decoding pubspec: %w", err)
	}
	copy(v.SHA256[:], sha)
	if retractedAt != nil {
		v.RetractedAt = *retractedAt
	}
	return &v, nil
}

// ListVersions implements metadatastore.Store.
func (s *Store) ListVersions(ctx context.Context, name string) (out []*registry.PackageVersion, err error) {
	defer method(ctx, &err)()
	rows, err := s.pool.Query(ctx, selectVersions, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const selectVersion = `
SELECT package_name, version, pubspec, libraries, created, uploader_agent_id,
       publisher_id_at_publish, sha256, is_retracted, retracted_at
  FROM package_versions WHERE package_name = $1 AND version = $2;`

// GetVersion implements metadatastore.Store.
func (s *Store) GetVersion(ctx context.Context, name, version string) (v *registry.PackageVersion, ok bool, err error) {
	defer method(ctx, &err)()
	rows, err := s.pool.Query(ctx, selectVersion, name, version)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, false, rows.Err()
	}
	v, err = scanVersion(rows)
	return v, err == nil, err
}

const selectAssets = `
SELECT package_name, version, kind, path, text_content, truncated
  FROM package_version_assets WHERE package_name = $1 AND version = $2;`

// ListAssets implements metadatastore.Store.
func (s *Store) ListAssets(ctx context.Context, name, version string) (out []*registry.PackageVersionAsset, err error) {
	defer method(ctx, &err)()
	rows, err := s.pool.Query(ctx, selectAssets, name, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a registry.PackageVersionAsset
		if err := rows.Scan(&a.PackageName, &a.Version, &a.Kind, &a.Path, &a.TextContent, &a.Truncated); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

const (
	selectActiveConflict    = `SELECT name FROM packages WHERE lower(regexp_replace(name, '[-_]', '', 'g')) = $1 LIMIT 1;`
	selectModeratedConflict = `SELECT name, similarity_key, reason, created FROM moderated_names WHERE similarity_key = $1 LIMIT 1;`
)

// NameConflict implements metadatastore.Store.
func (s *Store) NameConflict(ctx context.Context, key string) (activeName string, moderated *registry.ModeratedName, err error) {
	defer method(ctx, &err)()
	if err := s.pool.QueryRow(ctx, selectActiveConflict, key).Scan(&activeName); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", nil, err
	}
	var m registry.ModeratedName
	err = s.pool.QueryRow(ctx, selectModeratedConflict, key).Scan(&m.Name, &m.SimilarityKey, &m.Reason, &m.Created)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return activeName, nil, nil
	case err != nil:
		return "", nil, err
	default:
		return activeName, &m, nil
	}
}

const selectDeletedVersions = `SELECT version FROM deleted_versions WHERE package_name = $1;`

// DeletedVersions implements metadatastore.Store.
func (s *Store) DeletedVersions(ctx context.Context, name string) (out map[string]struct{}, err error) {
	defer method(ctx, &err)()
	rows, err := s.pool.Query(ctx, selectDeletedVersions, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out = make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = struct{}{}
	}
	return out, rows.Err()
}

const selectAllActiveNames = `SELECT name, lower(regexp_replace(name, '[-_]', '', 'g')) FROM packages WHERE NOT is_blocked;`

// AllActiveNames implements metadatastore.Store.
func (s *Store) AllActiveNames(ctx context.Context) (out map[string]string, err error) {
	defer method(ctx, &err)()
	rows, err := s.pool.Query(ctx, selectAllActiveNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out = make(map[string]string)
	for rows.Next() {
		var name, key string
		if err := rows.Scan(&name, &key); err != nil {
			return nil, err
		}
		out[name] = key
	}
	return out, rows.Err()
}

const selectAllModeratedKeys = `SELECT DISTINCT similarity_key FROM moderated_names;`

// AllModeratedKeys implements metadatastore.Store.
func (s *Store) AllModeratedKeys(ctx context.Context) (out map[string]struct{}, err error) {
	defer method(ctx, &err)()
	rows, err := s.pool.Query(ctx, selectAllModeratedKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out = make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out[key] = struct{}{}
	}
	return out, rows.Err()
}

const selectPendingOutbox = `
SELECT id, kind, payload, attempts, next_attempt_at, expires_at, delivered_at
  FROM outbox
 WHERE delivered_at IS NULL AND next_attempt_at <= $1 AND expires_at > $1
 ORDER BY next_attempt_at ASC LIMIT $2;`

// PendingOutbox implements metadatastore.Store.
func (s *Store) PendingOutbox(ctx context.Context, now time.Time, limit int) (out []*registry.OutboxMessage, err error) {
	defer method(ctx, &err)()
	rows, err := s.pool.Query(ctx, selectPendingOutbox, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m registry.OutboxMessage
		var delivered *time.Time
		if err := rows.Scan(&m.ID, &m.Kind, &m.Payload, &m.Attempts, &m.NextAttemptAt, &m.ExpiresAt, &delivered); err != nil {
			return nil, err
		}
		if delivered != nil {
			m.DeliveredAt = *delivered
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

const updateOutboxAttempt = `
UPDATE outbox SET attempts = attempts + 1, next_attempt_at = $2,
       delivered_at = CASE WHEN $3 THEN $2 ELSE delivered_at END
 WHERE id = $1;`

// RecordOutboxAttempt implements metadatastore.Store.
func (s *Store) RecordOutboxAttempt(ctx context.Context, id string, delivered bool, nextAttemptAt time.Time) (err error) {
	defer method(ctx, &err)()
	_, err = s.pool.Exec(ctx, updateOutboxAttempt, id, nextAttemptAt, delivered)
	return err
}

// WithinPackageTx implements metadatastore.Store. It runs fn inside a
// SERIALIZABLE transaction; a serialization failure (Postgres SQLSTATE
// 40001) is translated to *registry.Error{Kind: ErrTransient} so
// internal/retry's Do can retry the whole operation under its backoff
// schedule. fn itself must not be retried partway — pgx rolls
// the whole transaction back on any error.
func (s *Store) WithinPackageTx(ctx context.Context, pkgName string, fn func(ctx context.Context, tx metadatastore.Tx) error) (err error) {
	defer method(ctx, &err)()
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(pgxTx pgx.Tx) error {
		// Advisory xact lock on the package name serializes the
		// "package doesn't exist yet" race that a row-level lock can't
		// cover, for the lifetime of this transaction only.
		if _, err := pgxTx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, pkgName); err != nil {
			return err
		}
		return fn(ctx, &tx{tx: pgxTx, pkgName: pkgName})
	})
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return &registry.Error{Op: "WithinPackageTx", Kind: registry.ErrTransient, Inner: err}
	}
	return err
}

type tx struct {
	tx      pgx.Tx
	pkgName string
}

var _ metadatastore.Tx = (*tx)(nil)

func (t *tx) GetPackage(ctx context.Context) (*registry.Package, bool, error) {
	row := t.tx.QueryRow(ctx, selectPackage, t.pkgName)
	return scanPackage(row)
}

func (t *tx) GetVersion(ctx context.Context, version string) (*registry.PackageVersion, bool, error) {
	rows, err := t.tx.Query(ctx, selectVersion, t.pkgName, version)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, false, rows.Err()
	}
	v, err := scanVersion(rows)
	return v, err == nil, err
}

func (t *tx) ListVersions(ctx context.Context) ([]*registry.PackageVersion, error) {
	rows, err := t.tx.Query(ctx, selectVersions, t.pkgName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*registry.PackageVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *tx) CountVersions(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT count(*) FROM package_versions WHERE package_name = $1;`, t.pkgName).Scan(&n)
	return n, err
}

func (t *tx) DeletedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := t.tx.Query(ctx, selectDeletedVersions, t.pkgName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = struct{}{}
	}
	return out, rows.Err()
}

const upsertPackage = `
INSERT INTO packages (name, created, updated, latest_version, latest_prerelease_version,
                       uploaders, publisher_id, is_discontinued, is_unlisted, is_blocked,
                       replaced_by, version_count, automated_publishing)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (name) DO UPDATE SET
  updated = EXCLUDED.updated, latest_version = EXCLUDED.latest_version,
  latest_prerelease_version = EXCLUDED.latest_prerelease_version,
  uploaders = EXCLUDED.uploaders, publisher_id = EXCLUDED.publisher_id,
  is_discontinued = EXCLUDED.is_discontinued, is_unlisted = EXCLUDED.is_unlisted,
  is_blocked = EXCLUDED.is_blocked, replaced_by = EXCLUDED.replaced_by,
  version_count = EXCLUDED.version_count, automated_publishing = EXCLUDED.automated_publishing;`

func (t *tx) PutPackage(ctx context.Context, p *registry.Package) error {
	auto, err := json.Marshal(p.AutomatedPublishing)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, upsertPackage, p.Name, p.Created, p.Updated, p.LatestVersionKey,
		p.LatestPrereleaseVersionKey, p.Uploaders, p.PublisherID, p.IsDiscontinued,
		p.IsUnlisted, p.IsBlocked, p.ReplacedBy, p.VersionCount, auto)
	return err
}

const insertVersion = `
INSERT INTO package_versions (package_name, version, pubspec, libraries, created,
                               uploader_agent_id, publisher_id_at_publish, sha256,
                               is_retracted, retracted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`

const insertAsset = `
INSERT INTO package_version_assets (package_name, version, kind, path, text_content, truncated)
VALUES ($1,$2,$3,$4,$5,$6);`

func (t *tx) PutVersion(ctx context.Context, v *registry.PackageVersion, assets []*registry.PackageVersionAsset) error {
	pubspec, err := json.Marshal(v.Pubspec)
	if err != nil {
		return err
	}
	var retractedAt *time.Time
	if !v.RetractedAt.IsZero() {
		retractedAt = &v.RetractedAt
	}
	if _, err := t.tx.Exec(ctx, insertVersion, v.PackageName, v.Version, pubspec, v.Libraries,
		v.Created, v.UploaderAgentID, v.PublisherIDAtPublish, v.SHA256[:], v.IsRetracted, retractedAt); err != nil {
		return err
	}
	if len(assets) == 0 {
		return nil
	}
	b := microbatch.NewInsert(t.tx, 32, 30*time.Second)
	for _, a := range assets {
		if err := b.Queue(ctx, insertAsset, a.PackageName, a.Version, string(a.Kind), a.Path, a.TextContent, a.Truncated); err != nil {
			return err
		}
	}
	return b.Done(ctx)
}

const updateRetracted = `
UPDATE package_versions SET is_retracted = $3, retracted_at = $4
 WHERE package_name = $1 AND version = $2;`

func (t *tx) SetRetracted(ctx context.Context, version string, retracted bool, at time.Time) error {
	var atv *time.Time
	if retracted {
		atv = &at
	}
	_, err := t.tx.Exec(ctx, updateRetracted, t.pkgName, version, retracted, atv)
	return err
}

func (t *tx) HardDeleteVersion(ctx context.Context, version string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM package_version_assets WHERE package_name = $1 AND version = $2;`, t.pkgName, version); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM package_versions WHERE package_name = $1 AND version = $2;`, t.pkgName, version); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO deleted_versions (package_name, version) VALUES ($1, $2)
		ON CONFLICT (package_name, version) DO NOTHING;`, t.pkgName, version)
	return err
}

func (t *tx) TombstonePackage(ctx context.Context, reason string) error {
	pkg, ok, err := t.GetPackage(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM package_version_assets WHERE package_name = $1;`, t.pkgName); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM package_versions WHERE package_name = $1;`, t.pkgName); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM packages WHERE name = $1;`, t.pkgName); err != nil {
		return err
	}
	key := registry.SimilarityKey(pkg.Name)
	_, err = t.tx.Exec(ctx, `INSERT INTO moderated_names (name, similarity_key, reason) VALUES ($1,$2,$3);`,
		pkg.Name, key, reason)
	return err
}

func (t *tx) InsertAuditLog(ctx context.Context, rec *registry.AuditLogRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO audit_log (id, kind, created, agent_id, summary, data, packages, package_versions, publishers, users)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`,
		rec.ID, string(rec.Kind), rec.Created, rec.AgentID, rec.Summary, data,
		rec.Packages, rec.PackageVersions, rec.Publishers, rec.Users)
	return err
}

func (t *tx) InsertOutboxMessage(ctx context.Context, msg *registry.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx, `
INSERT INTO outbox (id, kind, payload, attempts, next_attempt_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6);`,
		msg.ID, string(msg.Kind), msg.Payload, msg.Attempts, msg.NextAttemptAt, msg.ExpiresAt)
	return err
}

func (t *tx) ReserveName(ctx context.Context, name, similarityKey string) error {
	var existing string
	err := t.tx.QueryRow(ctx, selectActiveConflict, similarityKey).Scan(&existing)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil
	case err != nil:
		return err
	case existing == name:
		return nil
	default:
		return &registry.Error{
			Op: "ReserveName", Kind: registry.ErrPackageRejected,
			Reason:  registry.ReasonSimilarToActive,
			Message: fmt.Sprintf("a package named %q already exists", existing),
		}
	}
}
