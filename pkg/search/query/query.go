// Package query maps a route decision onto the immutable provider query that
// the place-search stage executes.
package query

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/route"
)

type Mode string

const (
	ModeText     Mode = "TEXT"
	ModeNearby   Mode = "NEARBY"
	ModeLandmark Mode = "LANDMARK"
)

type Strictness string

const (
	Strict       Strictness = "STRICT"
	RelaxIfEmpty Strictness = "RELAX_IF_EMPTY"
)

// ProviderQuery is built once per request and never mutated afterwards.
// Field order is the canonical JSON order used by CacheKey.
type ProviderQuery struct {
	Mode           Mode             `json:"mode"`
	TextQuery      string           `json:"textQuery,omitempty"`
	Region         string           `json:"region"`
	Language       langctx.Language `json:"language"`
	RequiredTerms  []string         `json:"requiredTerms,omitempty"`
	PreferredTerms []string         `json:"preferredTerms,omitempty"`
	Strictness     Strictness       `json:"strictness"`
	CuisineKey     string           `json:"cuisineKey,omitempty"`
	IncludedTypes  []string         `json:"includedTypes,omitempty"`
	Center         *route.LatLng    `json:"center,omitempty"`
	RadiusMeters   int              `json:"radiusMeters,omitempty"`
	Landmark       string           `json:"landmark,omitempty"`
}

// CacheKey is the hex SHA-256 of the canonical JSON encoding.
func (q ProviderQuery) CacheKey() string {
	raw, _ := json.Marshal(q)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// WithoutRequiredTerms returns the relaxed copy used after an empty strict-term
// search. The required terms are also removed from the text query.
func (q ProviderQuery) WithoutRequiredTerms() ProviderQuery {
	relaxed := q
	relaxed.TextQuery = stripTerms(q.TextQuery, q.RequiredTerms)
	relaxed.RequiredTerms = nil
	relaxed.Strictness = Strict
	relaxed.PreferredTerms = append([]string(nil), q.PreferredTerms...)
	relaxed.IncludedTypes = append([]string(nil), q.IncludedTypes...)
	return relaxed
}

// Relaxable reports whether an empty result may be retried without the
// required terms.
func (q ProviderQuery) Relaxable() bool {
	return q.Mode == ModeText && q.Strictness == RelaxIfEmpty && len(q.RequiredTerms) > 0
}
