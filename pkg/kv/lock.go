package kv

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lock is a distributed lock acquired through SetNX. The random token makes
// release safe after the TTL has already handed the key to someone else.
type Lock struct {
	store Store
	key   string
	token []byte
}

// TryLock attempts to take key for ttl. It never blocks.
func TryLock(ctx context.Context, s Store, key string, ttl time.Duration) (*Lock, bool, error) {
	token := []byte(uuid.NewString())
	ok, err := s.SetNX(ctx, key, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lock{store: s, key: key, token: token}, true, nil
}

// Release drops the lock if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	_, err := l.store.CompareAndDelete(ctx, l.key, l.token)
	return err
}
