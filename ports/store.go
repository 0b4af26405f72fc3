package ports

import (
	"context"
	"time"

	"github.com/lumenlearn/starpass/core"
)

// NonceStore is the durable record of issued challenge nonces.
type NonceStore interface {
	// Create persists a fresh nonce record. It fails with
	// core.ErrNonceCollision if the nonce already exists; collisions are a
	// hard error, never silently retried.
	Create(ctx context.Context, rec core.NonceRecord) error

	// FindActive returns the record for nonce only if it is unused,
	// unexpired and was issued to publicKey. Every other case is
	// core.ErrNonceNotFound.
	FindActive(ctx context.Context, nonce, publicKey string) (core.NonceRecord, error)

	// MarkUsed flips the used flag. The flip is a single conditional write:
	// under concurrent verification of the same nonce exactly one caller
	// succeeds, the rest get core.ErrNonceNotFound.
	MarkUsed(ctx context.Context, nonce string) error
}

// UserStore persists verified accounts.
type UserStore interface {
	// Upsert creates the user for publicKey on first verification and bumps
	// its updated timestamp on every subsequent one. Concurrent first-time
	// verifications for the same key must both succeed with the same user.
	Upsert(ctx context.Context, publicKey string) (core.User, error)
}

// NoncePruner is implemented by stores whose expired rows need an explicit
// sweep. TTL-based stores do not implement it.
type NoncePruner interface {
	DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error)
}
