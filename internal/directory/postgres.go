// Package directory implements the registrycore.PublisherDirectory and
// registrycore.AccountDirectory collaborators on the same pgxpool.Pool used by
// internal/metadatastore/postgres, following that package's small
// query-per-method style rather than layering in a full ORM.
package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements both registrycore.PublisherDirectory and
// registrycore.AccountDirectory against the accounts/publisher_admins
// tables (see datastore/postgres/migrations/registry/0002_directory.sql).
type Postgres struct {
	pool *pgxpool.Pool
}

// New wraps pool.
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// IsAdmin implements registrycore.PublisherDirectory.
func (p *Postgres) IsAdmin(ctx context.Context, userID, publisherID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM publisher_admins WHERE publisher_id = $1 AND user_id = $2)`
	var ok bool
	if err := p.pool.QueryRow(ctx, query, publisherID, userID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// AdminEmails implements registrycore.PublisherDirectory.
func (p *Postgres) AdminEmails(ctx context.Context, publisherID string) ([]string, error) {
	const query = `
SELECT a.email
FROM publisher_admins pa
JOIN accounts a ON a.user_id = pa.user_id
WHERE pa.publisher_id = $1
`
	rows, err := p.pool.Query(ctx, query, publisherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// ResolveUserByEmail implements registrycore.AccountDirectory.
func (p *Postgres) ResolveUserByEmail(ctx context.Context, email string) (string, bool, error) {
	const query = `SELECT user_id FROM accounts WHERE email = $1`
	var userID string
	err := p.pool.QueryRow(ctx, query, email).Scan(&userID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return userID, true, nil
}

// Email implements registrycore.AccountDirectory.
func (p *Postgres) Email(ctx context.Context, userID string) (string, error) {
	const query = `SELECT email FROM accounts WHERE user_id = $1`
	var email string
	if err := p.pool.QueryRow(ctx, query, userID).Scan(&email); err != nil {
		return "", err
	}
	return email, nil
}
