package results

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetInitializesProviders(t *testing.T) {
	s := NewSet([]string{"wolt"}, []Item{{PlaceID: "a"}, {PlaceID: "b"}, {PlaceID: "a"}, {PlaceID: ""}})

	require.Equal(t, 2, s.Len())
	for _, it := range s.Items() {
		assert.Equal(t, StatePending, it.Providers["wolt"].State)
	}
}

func TestItemsKeepsOrder(t *testing.T) {
	s := NewSet(nil, []Item{{PlaceID: "c"}, {PlaceID: "a"}, {PlaceID: "b"}})

	ids := make([]string, 0)
	for _, it := range s.Items() {
		ids = append(ids, it.PlaceID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestPatch(t *testing.T) {
	s := NewSet([]string{"wolt"}, []Item{{PlaceID: "a"}})

	it, ok := s.Patch("a", "wolt", ProviderStatus{State: StateFound, URL: "https://wolt.com/a"})
	require.True(t, ok)
	assert.Equal(t, StateFound, it.Providers["wolt"].State)
	assert.False(t, it.Providers["wolt"].UpdatedAt.IsZero())

	_, ok = s.Patch("a", "wolt", ProviderStatus{State: StateNotFound})
	assert.False(t, ok)
	got, _ := s.Get("a")
	assert.Equal(t, "https://wolt.com/a", got.Providers["wolt"].URL)

	_, ok = s.Patch("missing", "wolt", ProviderStatus{State: StateFound})
	assert.False(t, ok)
}

func TestItemsAreCopies(t *testing.T) {
	s := NewSet([]string{"wolt"}, []Item{{PlaceID: "a", Types: []string{"cafe"}}})

	items := s.Items()
	items[0].Providers["wolt"] = ProviderStatus{State: StateFound}
	items[0].Types[0] = "bar"

	got, _ := s.Get("a")
	assert.Equal(t, StatePending, got.Providers["wolt"].State)
	assert.Equal(t, "cafe", got.Types[0])
}

func TestConcurrentPatchSingleWinner(t *testing.T) {
	s := NewSet([]string{"wolt"}, []Item{{PlaceID: "a"}})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Patch("a", "wolt", ProviderStatus{State: StateNotFound}); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
