// Package route defines the classified search strategy of a request.
package route

import "math"

// Kind is the route selected by classification.
type Kind string

const (
	TextSearch Kind = "TEXT_SEARCH"
	Nearby     Kind = "NEARBY"
	Landmark   Kind = "LANDMARK"
	Stop       Kind = "STOP"
	Clarify    Kind = "CLARIFY"
)

// Terminal reports whether the route ends the pipeline before any provider call.
func (k Kind) Terminal() bool {
	return k == Stop || k == Clarify
}

// Reason explains a terminal route.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonMissingLocation Reason = "MISSING_LOCATION"
	ReasonAmbiguous       Reason = "AMBIGUOUS"
	ReasonNotFood         Reason = "NOT_FOOD"
)

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Decision is the output of classification. It is the only input the
// provider query mapping reads besides the language context.
type Decision struct {
	Kind           Kind     `json:"route"`
	Reason         Reason   `json:"reason,omitempty"`
	CuisineKey     string   `json:"cuisineKey,omitempty"`
	TextQuery      string   `json:"textQuery,omitempty"`
	CityText       string   `json:"cityText,omitempty"`
	Landmark       string   `json:"landmark,omitempty"`
	RequiredTerms  []string `json:"requiredTerms,omitempty"`
	PreferredTerms []string `json:"preferredTerms,omitempty"`
	Strict         bool     `json:"strict,omitempty"`
	Confidence     float64  `json:"confidence"`
	Fallback       bool     `json:"fallback,omitempty"`
}

const earthRadiusMeters = 6371000.0

// DistanceMeters is the great-circle distance between a and b.
func DistanceMeters(a, b LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
