package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/kv"
	"ai-restaurant-search-be/pkg/search/cuisine"
	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/route"
)

// ErrNotRoutable is returned for terminal routes, which never reach the provider.
var ErrNotRoutable = errors.New("query: route does not map to a provider query")

// Geocoder resolves free text to coordinates through the place provider.
type Geocoder interface {
	Geocode(ctx context.Context, text, region string, lang langctx.Language) (route.LatLng, error)
}

type MapperConfig struct {
	NearbyRadiusMeters   int
	LandmarkRadiusMeters int
	LandmarkCacheTTL     time.Duration
}

type Mapper struct {
	geocoder Geocoder
	cache    kv.Store
	cfg      MapperConfig
	logger   logger.ILogger
}

func NewMapper(geocoder Geocoder, cache kv.Store, cfg MapperConfig, log logger.ILogger) *Mapper {
	if cfg.NearbyRadiusMeters <= 0 {
		cfg.NearbyRadiusMeters = 1500
	}
	if cfg.LandmarkRadiusMeters <= 0 {
		cfg.LandmarkRadiusMeters = 1000
	}
	return &Mapper{geocoder: geocoder, cache: cache, cfg: cfg, logger: log}
}

// Map picks the builder for d.Kind. It refines the provider language on lc
// from the region and reads nothing else from the request.
func (m *Mapper) Map(ctx context.Context, d route.Decision, lc *langctx.LangCtx, userLocation *route.LatLng) (ProviderQuery, error) {
	lc.SetProvider(langctx.ProviderLanguageFor(lc.Region()))

	switch d.Kind {
	case route.TextSearch:
		return BuildText(d, lc), nil
	case route.Nearby:
		if userLocation == nil {
			return ProviderQuery{}, fmt.Errorf("nearby route without user location")
		}
		return BuildNearby(d, lc, *userLocation, m.cfg.NearbyRadiusMeters), nil
	case route.Landmark:
		lm, err := m.resolveLandmark(ctx, d.Landmark, lc)
		if err != nil {
			m.logger.Warn("QueryMapper", "Landmark unresolved, searching by text", map[string]interface{}{
				"landmark": d.Landmark,
				"error":    err.Error(),
			})
			return buildLandmarkText(d, lc), nil
		}
		return BuildLandmark(d, lc, lm, m.cfg.LandmarkRadiusMeters), nil
	}
	return ProviderQuery{}, ErrNotRoutable
}

// BuildText builds a free-text query in the provider language. A known cuisine
// is replaced by its canonical term so the same intent maps to the same query
// whatever language the user wrote in.
func BuildText(d route.Decision, lc *langctx.LangCtx) ProviderQuery {
	lang := lc.Provider()

	text := d.TextQuery
	if d.CuisineKey != "" {
		text = cuisine.Term(d.CuisineKey, lang)
		if d.CityText != "" {
			text = text + " " + d.CityText
		}
	}
	text = canonical(text)
	for _, term := range d.RequiredTerms {
		if !hasPhrase(text, term) {
			text = text + " " + term
		}
	}

	return ProviderQuery{
		Mode:           ModeText,
		TextQuery:      text,
		Region:         lc.Region(),
		Language:       lang,
		RequiredTerms:  copyTerms(d.RequiredTerms),
		PreferredTerms: copyTerms(d.PreferredTerms),
		Strictness:     strictness(d),
		CuisineKey:     d.CuisineKey,
	}
}

// BuildNearby searches by place type around center. No free text is sent, so
// the result does not depend on the user's language.
func BuildNearby(d route.Decision, lc *langctx.LangCtx, center route.LatLng, radius int) ProviderQuery {
	c := center
	return ProviderQuery{
		Mode:           ModeNearby,
		Region:         lc.Region(),
		Language:       lc.Provider(),
		PreferredTerms: copyTerms(d.PreferredTerms),
		Strictness:     Strict,
		CuisineKey:     d.CuisineKey,
		IncludedTypes:  includedTypes(d.CuisineKey),
		Center:         &c,
		RadiusMeters:   radius,
	}
}

// BuildLandmark behaves like BuildNearby around the resolved landmark.
func BuildLandmark(d route.Decision, lc *langctx.LangCtx, lm Landmark, radius int) ProviderQuery {
	q := BuildNearby(d, lc, lm.Location, radius)
	q.Mode = ModeLandmark
	q.Landmark = lm.Name
	return q
}

func buildLandmarkText(d route.Decision, lc *langctx.LangCtx) ProviderQuery {
	fallback := d
	fallback.CityText = d.Landmark
	if d.CuisineKey == "" {
		fallback.TextQuery = strings.TrimSpace(d.TextQuery + " " + d.Landmark)
	}
	return BuildText(fallback, lc)
}

func (m *Mapper) resolveLandmark(ctx context.Context, name string, lc *langctx.LangCtx) (Landmark, error) {
	if lm, ok := LookupLandmark(name); ok {
		return lm, nil
	}

	key := "landmark:" + lc.Region() + ":" + NormalizeLandmark(name)
	var cached Landmark
	if m.cache != nil {
		err := kv.GetJSON(ctx, m.cache, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, kv.ErrNotFound) {
			m.logger.Warn("QueryMapper", "Landmark cache read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	if m.geocoder == nil {
		return Landmark{}, fmt.Errorf("no geocoder for landmark %q", name)
	}
	loc, err := m.geocoder.Geocode(ctx, name, lc.Region(), lc.Provider())
	if err != nil {
		return Landmark{}, fmt.Errorf("geocode landmark %q: %w", name, err)
	}

	lm := Landmark{Name: strings.Join(strings.Fields(name), " "), Region: lc.Region(), Location: loc}
	if m.cache != nil {
		if err := kv.SetJSON(ctx, m.cache, key, lm, m.cfg.LandmarkCacheTTL); err != nil {
			m.logger.Warn("QueryMapper", "Landmark cache write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	return lm, nil
}

func includedTypes(cuisineKey string) []string {
	if e, ok := cuisine.Lookup(cuisineKey); ok {
		return append([]string(nil), e.IncludedTypes...)
	}
	return append([]string(nil), cuisine.DefaultTypes...)
}

func strictness(d route.Decision) Strictness {
	if d.Strict || len(d.RequiredTerms) == 0 {
		return Strict
	}
	return RelaxIfEmpty
}

func canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// hasPhrase matches term on word boundaries of the canonical text, so "pizz"
// is not found in "pizzeria".
func hasPhrase(text, term string) bool {
	term = canonical(term)
	if term == "" {
		return true
	}
	return strings.Contains(" "+text+" ", " "+term+" ")
}

func copyTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	return append([]string(nil), terms...)
}

func stripTerms(text string, terms []string) string {
	if len(terms) == 0 {
		return text
	}
	drop := make(map[string]bool, len(terms))
	for _, t := range terms {
		for _, w := range strings.Fields(t) {
			drop[w] = true
		}
	}
	kept := make([]string, 0)
	for _, w := range strings.Fields(text) {
		if !drop[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
