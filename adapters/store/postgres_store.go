package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenlearn/starpass/core"
	"github.com/lumenlearn/starpass/ports"
)

// PostgresStore persists nonce records and users in Postgres. All consume and
// upsert semantics rely on single-statement row-level atomicity; there are no
// application-level locks. See schema.sql for the table definitions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var (
	_ ports.NonceStore  = (*PostgresStore)(nil)
	_ ports.UserStore   = (*PostgresStore)(nil)
	_ ports.NoncePruner = (*PostgresStore)(nil)
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, rec core.NonceRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auth_nonces (nonce, public_key, expires_at, used)
		 VALUES ($1, $2, $3, false)`,
		rec.Nonce, rec.PublicKey, rec.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.ErrNonceCollision
		}
		return err
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, nonce, publicKey string) (core.NonceRecord, error) {
	var rec core.NonceRecord
	err := s.pool.QueryRow(ctx,
		`SELECT nonce, public_key, expires_at, used
		 FROM auth_nonces
		 WHERE nonce = $1 AND public_key = $2 AND used = false AND expires_at > now()`,
		nonce, publicKey,
	).Scan(&rec.Nonce, &rec.PublicKey, &rec.ExpiresAt, &rec.Used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.NonceRecord{}, core.ErrNonceNotFound
		}
		return core.NonceRecord{}, err
	}
	return rec, nil
}

// MarkUsed flips used in one conditional update. When two verification
// attempts race on the same nonce, the row lock guarantees exactly one sees
// used = false; the other gets zero affected rows and fails.
func (s *PostgresStore) MarkUsed(ctx context.Context, nonce string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auth_nonces SET used = true WHERE nonce = $1 AND used = false`,
		nonce,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNonceNotFound
	}
	return nil
}

// Upsert is conflict-safe: concurrent first-time verifications for one key
// both land on the same row, one as the insert and one as the update.
func (s *PostgresStore) Upsert(ctx context.Context, publicKey string) (core.User, error) {
	var user core.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, public_key, created_at, updated_at)
		 VALUES (gen_random_uuid(), $1, now(), now())
		 ON CONFLICT (public_key) DO UPDATE SET updated_at = now()
		 RETURNING id, public_key, created_at, updated_at`,
		publicKey,
	).Scan(&user.ID, &user.PublicKey, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return core.User{}, err
	}
	return user, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM auth_nonces WHERE expires_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
