package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumenlearn/starpass/core"
	"github.com/lumenlearn/starpass/ports"
)

// RedisNonceStore keeps nonce records in Redis with a TTL equal to the
// challenge expiry, so expired rows vanish without an explicit sweep. Consume
// is a scripted conditional delete: a consumed nonce and a never-issued one
// look identical, which is exactly what the taxonomy wants.
type RedisNonceStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var _ ports.NonceStore = (*RedisNonceStore)(nil)

// consumeScript deletes the nonce key only if it still exists, making the
// used flip atomic on the Redis side.
var consumeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

// NewRedisNonceStore creates a Redis-backed nonce store. now may be nil to
// use the wall clock.
func NewRedisNonceStore(client *redis.Client, now func() time.Time) *RedisNonceStore {
	if now == nil {
		now = time.Now
	}
	return &RedisNonceStore{
		client: client,
		prefix: "starpass:nonce:",
		now:    now,
	}
}

func (s *RedisNonceStore) Create(ctx context.Context, rec core.NonceRecord) error {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return core.ErrNonceNotFound
	}
	ok, err := s.client.SetNX(ctx, s.prefix+rec.Nonce, rec.PublicKey, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrNonceCollision
	}
	return nil
}

func (s *RedisNonceStore) FindActive(ctx context.Context, nonce, publicKey string) (core.NonceRecord, error) {
	owner, err := s.client.Get(ctx, s.prefix+nonce).Result()
	if err != nil {
		if err == redis.Nil {
			return core.NonceRecord{}, core.ErrNonceNotFound
		}
		return core.NonceRecord{}, err
	}
	if owner != publicKey {
		return core.NonceRecord{}, core.ErrNonceNotFound
	}
	ttl, err := s.client.TTL(ctx, s.prefix+nonce).Result()
	if err != nil {
		return core.NonceRecord{}, err
	}
	return core.NonceRecord{
		Nonce:     nonce,
		PublicKey: owner,
		ExpiresAt: s.now().Add(ttl),
	}, nil
}

func (s *RedisNonceStore) MarkUsed(ctx context.Context, nonce string) error {
	n, err := consumeScript.Run(ctx, s.client, []string{s.prefix + nonce}).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNonceNotFound
	}
	return nil
}
