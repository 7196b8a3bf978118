// Package places talks to the place-search provider and runs the provider
// query stage on top of it.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/query"
	"ai-restaurant-search-be/pkg/search/route"
)

// Place is one provider record. PriceLevel is -1 when unknown.
type Place struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Address         string       `json:"address"`
	Location        route.LatLng `json:"location"`
	Rating          float64      `json:"rating"`
	UserRatingCount int          `json:"userRatingCount"`
	PriceLevel      int          `json:"priceLevel"`
	OpenNow         *bool        `json:"openNow,omitempty"`
	Types           []string     `json:"types"`
}

type Page struct {
	Places        []Place
	NextPageToken string
}

// Provider executes one page of a provider query.
type Provider interface {
	Search(ctx context.Context, q query.ProviderQuery, pageToken string) (Page, error)
}

const (
	defaultBaseURL = "https://places.googleapis.com/v1"
	fieldMask      = "places.id,places.displayName,places.formattedAddress,places.location,places.rating," +
		"places.userRatingCount,places.priceLevel,places.currentOpeningHours.openNow,places.types,nextPageToken"
	pageSize = 20
)

// Client is the HTTP client for the Places API (New).
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var (
	_ Provider       = (*Client)(nil)
	_ query.Geocoder = (*Client)(nil)
)

func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type area struct {
	Circle circle `json:"circle"`
}

type textSearchRequest struct {
	TextQuery    string `json:"textQuery"`
	LanguageCode string `json:"languageCode,omitempty"`
	RegionCode   string `json:"regionCode,omitempty"`
	PageSize     int    `json:"pageSize,omitempty"`
	PageToken    string `json:"pageToken,omitempty"`
	LocationBias *area  `json:"locationBias,omitempty"`
}

type nearbySearchRequest struct {
	IncludedTypes       []string `json:"includedTypes,omitempty"`
	MaxResultCount      int      `json:"maxResultCount,omitempty"`
	LanguageCode        string   `json:"languageCode,omitempty"`
	RegionCode          string   `json:"regionCode,omitempty"`
	RankPreference      string   `json:"rankPreference,omitempty"`
	LocationRestriction area     `json:"locationRestriction"`
}

type placeJSON struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress    string   `json:"formattedAddress"`
	Location            latLng   `json:"location"`
	Rating              float64  `json:"rating"`
	UserRatingCount     int      `json:"userRatingCount"`
	PriceLevel          string   `json:"priceLevel"`
	CurrentOpeningHours *struct {
		OpenNow *bool `json:"openNow"`
	} `json:"currentOpeningHours"`
	Types []string `json:"types"`
}

type searchResponse struct {
	Places        []placeJSON `json:"places"`
	NextPageToken string      `json:"nextPageToken"`
}

var priceLevels = map[string]int{
	"PRICE_LEVEL_FREE":           0,
	"PRICE_LEVEL_INEXPENSIVE":    1,
	"PRICE_LEVEL_MODERATE":       2,
	"PRICE_LEVEL_EXPENSIVE":      3,
	"PRICE_LEVEL_VERY_EXPENSIVE": 4,
}

func (c *Client) Search(ctx context.Context, q query.ProviderQuery, pageToken string) (Page, error) {
	switch q.Mode {
	case query.ModeText:
		return c.searchText(ctx, q, pageToken)
	case query.ModeNearby, query.ModeLandmark:
		if q.Center == nil {
			return Page{}, &Error{Kind: Permanent, Message: "nearby query without center"}
		}
		return c.searchNearby(ctx, q)
	}
	return Page{}, &Error{Kind: Permanent, Message: fmt.Sprintf("unsupported mode %q", q.Mode)}
}

func (c *Client) searchText(ctx context.Context, q query.ProviderQuery, pageToken string) (Page, error) {
	reqBody := textSearchRequest{
		TextQuery:    q.TextQuery,
		LanguageCode: string(q.Language),
		RegionCode:   q.Region,
		PageSize:     pageSize,
		PageToken:    pageToken,
	}
	if q.Center != nil {
		reqBody.LocationBias = &area{Circle: circle{
			Center: latLng{Latitude: q.Center.Lat, Longitude: q.Center.Lng},
			Radius: float64(q.RadiusMeters),
		}}
	}

	var resp searchResponse
	if err := c.post(ctx, "/places:searchText", fieldMask, reqBody, &resp); err != nil {
		return Page{}, err
	}
	return toPage(resp), nil
}

// searchNearby has no pagination on the provider side.
func (c *Client) searchNearby(ctx context.Context, q query.ProviderQuery) (Page, error) {
	reqBody := nearbySearchRequest{
		IncludedTypes:  q.IncludedTypes,
		MaxResultCount: pageSize,
		LanguageCode:   string(q.Language),
		RegionCode:     q.Region,
		RankPreference: "DISTANCE",
		LocationRestriction: area{Circle: circle{
			Center: latLng{Latitude: q.Center.Lat, Longitude: q.Center.Lng},
			Radius: float64(q.RadiusMeters),
		}},
	}

	var resp searchResponse
	if err := c.post(ctx, "/places:searchNearby", strings.TrimSuffix(fieldMask, ",nextPageToken"), reqBody, &resp); err != nil {
		return Page{}, err
	}
	page := toPage(resp)
	page.NextPageToken = ""
	return page, nil
}

// Geocode resolves text to coordinates using the first text-search hit.
func (c *Client) Geocode(ctx context.Context, text, region string, lang langctx.Language) (route.LatLng, error) {
	reqBody := textSearchRequest{
		TextQuery:    text,
		LanguageCode: string(lang),
		RegionCode:   region,
		PageSize:     1,
	}
	var resp searchResponse
	if err := c.post(ctx, "/places:searchText", "places.location", reqBody, &resp); err != nil {
		return route.LatLng{}, err
	}
	if len(resp.Places) == 0 {
		return route.LatLng{}, &Error{Kind: Permanent, Message: fmt.Sprintf("no location for %q", text)}
	}
	loc := resp.Places[0].Location
	return route.LatLng{Lat: loc.Latitude, Lng: loc.Longitude}, nil
}

func (c *Client) post(ctx context.Context, path, mask string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return &Error{Kind: Permanent, Message: "failed to marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return &Error{Kind: Permanent, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", mask)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures and timeouts are worth another attempt
		return &Error{Kind: Transient, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: Transient, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &Error{
			Kind:    classifyStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: truncate(string(bodyBytes), 200),
		}
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return &Error{Kind: Permanent, Status: resp.StatusCode, Message: "failed to decode response", Err: err}
	}
	observeProviderLatency(path, time.Since(start))
	return nil
}

func toPage(resp searchResponse) Page {
	page := Page{NextPageToken: resp.NextPageToken, Places: make([]Place, 0, len(resp.Places))}
	for _, p := range resp.Places {
		if p.ID == "" {
			continue
		}
		level := -1
		if l, ok := priceLevels[p.PriceLevel]; ok {
			level = l
		}
		var openNow *bool
		if p.CurrentOpeningHours != nil {
			openNow = p.CurrentOpeningHours.OpenNow
		}
		page.Places = append(page.Places, Place{
			ID:              p.ID,
			Name:            p.DisplayName.Text,
			Address:         p.FormattedAddress,
			Location:        route.LatLng{Lat: p.Location.Latitude, Lng: p.Location.Longitude},
			Rating:          p.Rating,
			UserRatingCount: p.UserRatingCount,
			PriceLevel:      level,
			OpenNow:         openNow,
			Types:           p.Types,
		})
	}
	return page
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
