package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlearn/starpass/core"
	"github.com/lumenlearn/starpass/ports"
)

// MemoryStore is an in-memory implementation of the nonce and user stores,
// intended for tests. The mutex gives it the same exactly-one-winner consume
// behavior the durable adapters get from conditional writes.
type MemoryStore struct {
	mu     sync.Mutex
	nonces map[string]core.NonceRecord
	users  map[string]core.User
	now    func() time.Time
}

var (
	_ ports.NonceStore  = (*MemoryStore)(nil)
	_ ports.UserStore   = (*MemoryStore)(nil)
	_ ports.NoncePruner = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store. now may be nil to use the wall clock.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		nonces: make(map[string]core.NonceRecord),
		users:  make(map[string]core.User),
		now:    now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec core.NonceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nonces[rec.Nonce]; exists {
		return core.ErrNonceCollision
	}
	s.nonces[rec.Nonce] = rec
	return nil
}

func (s *MemoryStore) FindActive(ctx context.Context, nonce, publicKey string) (core.NonceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nonces[nonce]
	if !ok || rec.Used || rec.PublicKey != publicKey || !rec.ExpiresAt.After(s.now()) {
		return core.NonceRecord{}, core.ErrNonceNotFound
	}
	return rec, nil
}

func (s *MemoryStore) MarkUsed(ctx context.Context, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nonces[nonce]
	if !ok || rec.Used {
		return core.ErrNonceNotFound
	}
	rec.Used = true
	s.nonces[nonce] = rec
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, publicKey string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if user, ok := s.users[publicKey]; ok {
		user.UpdatedAt = now
		s.users[publicKey] = user
		return user, nil
	}
	user := core.User{
		ID:        uuid.New(),
		PublicKey: publicKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[publicKey] = user
	return user, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for nonce, rec := range s.nonces {
		if rec.ExpiresAt.Before(olderThan) {
			delete(s.nonces, nonce)
			n++
		}
	}
	return n, nil
}
