package kv

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetNXOnlyOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SetNX(ctx, "lock", []byte("x"), time.Minute)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestLockRelease(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	l, ok, err := TryLock(ctx, s, "lock:a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = TryLock(ctx, s, "lock:a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must lose")

	require.NoError(t, l.Release(ctx))
	_, ok, err = TryLock(ctx, s, "lock:a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompareAndDeleteKeepsForeignValue(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "k", []byte("other"), time.Minute))
	deleted, err := s.CompareAndDelete(ctx, "k", []byte("mine"))
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("other"), got)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	type rec struct {
		Name string `json:"name"`
	}
	require.NoError(t, SetJSON(ctx, s, "r", rec{Name: "a"}, time.Minute))
	var out rec
	require.NoError(t, GetJSON(ctx, s, "r", &out))
	assert.Equal(t, "a", out.Name)
}
