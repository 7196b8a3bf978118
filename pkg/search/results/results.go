// Package results holds the ranked items of one request, addressed by place id.
package results

import (
	"sync"
	"time"

	"ai-restaurant-search-be/pkg/search/route"
)

type ProviderState string

const (
	StatePending  ProviderState = "PENDING"
	StateFound    ProviderState = "FOUND"
	StateNotFound ProviderState = "NOT_FOUND"
)

// Terminal reports whether enrichment for the provider has finished.
func (s ProviderState) Terminal() bool {
	return s == StateFound || s == StateNotFound
}

type ProviderStatus struct {
	State     ProviderState `json:"status"`
	URL       string        `json:"url,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Item is one ranked place. PriceLevel, OpenNow and DistanceMeters are nil
// when unknown.
type Item struct {
	PlaceID        string                    `json:"placeId"`
	Name           string                    `json:"name"`
	Address        string                    `json:"address"`
	Location       route.LatLng              `json:"location"`
	Rating         float64                   `json:"rating"`
	ReviewCount    int                       `json:"reviewCount"`
	PriceLevel     *int                      `json:"priceLevel,omitempty"`
	OpenNow        *bool                     `json:"openNow,omitempty"`
	Types          []string                  `json:"types,omitempty"`
	DistanceMeters *float64                  `json:"distanceMeters,omitempty"`
	Score          float64                   `json:"score"`
	CuisineScore   float64                   `json:"cuisineScore,omitempty"`
	Providers      map[string]ProviderStatus `json:"providers"`
}

func (it Item) clone() Item {
	c := it
	c.Types = append([]string(nil), it.Types...)
	c.Providers = make(map[string]ProviderStatus, len(it.Providers))
	for k, v := range it.Providers {
		c.Providers[k] = v
	}
	return c
}

// Set is the arena of a request's items. After construction, provider state
// changes only through Patch.
type Set struct {
	mu    sync.RWMutex
	order []string
	items map[string]*Item
}

// NewSet keeps the order of items, drops duplicate place ids and marks every
// configured provider PENDING.
func NewSet(providers []string, items []Item) *Set {
	s := &Set{items: make(map[string]*Item, len(items))}
	now := time.Now().UTC()
	for _, it := range items {
		if it.PlaceID == "" || s.items[it.PlaceID] != nil {
			continue
		}
		c := it.clone()
		for _, p := range providers {
			if _, ok := c.Providers[p]; !ok {
				c.Providers[p] = ProviderStatus{State: StatePending, UpdatedAt: now}
			}
		}
		s.items[c.PlaceID] = &c
		s.order = append(s.order, c.PlaceID)
	}
	return s
}

// Patch sets the status of one provider on one item and returns the updated
// copy. A terminal state is never overwritten.
func (s *Set) Patch(placeID, provider string, status ProviderStatus) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[placeID]
	if !ok {
		return Item{}, false
	}
	if cur, ok := it.Providers[provider]; ok && cur.State.Terminal() {
		return it.clone(), false
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	it.Providers[provider] = status
	return it.clone(), true
}

func (s *Set) Get(placeID string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[placeID]
	if !ok {
		return Item{}, false
	}
	return it.clone(), true
}

// Items returns copies in rank order.
func (s *Set) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].clone())
	}
	return out
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
