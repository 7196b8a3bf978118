package kv

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore is a single-process Store backed by go-cache. It is used when no
// Redis is configured and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: cache.New(cache.NoExpiration, time.Minute),
	}
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if x, found := s.cache.Get(key); found {
		return append([]byte(nil), x.([]byte)...), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(key, append([]byte(nil), value...), expiration(ttl))
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cache.Add(key, append([]byte(nil), value...), expiration(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, found := s.cache.Get(key)
	if !found || !bytes.Equal(x.([]byte), expected) {
		return false, nil
	}
	s.cache.Delete(key)
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(key)
	return nil
}
