package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ai-restaurant-search-be/pkg/search/route"
)

// Venue identifies the place to look up on a partner.
type Venue struct {
	PlaceID  string
	Name     string
	Address  string
	Location route.LatLng
}

// Lookup finds the partner page of a venue. found=false with a nil error is a
// definitive miss.
type Lookup interface {
	Find(ctx context.Context, v Venue) (link string, found bool, err error)
}

// LookupError is a failed partner call. Transient errors are retried.
type LookupError struct {
	Status    int
	Transient bool
	Err       error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("partner lookup (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("partner lookup failed with status %d", e.Status)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

func isTransient(err error) bool {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// PartnerClient looks venues up on a delivery partner's HTTP API.
type PartnerClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ Lookup = (*PartnerClient)(nil)

func NewPartnerClient(apiKey, baseURL string) *PartnerClient {
	return &PartnerClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

type lookupResponse struct {
	Found bool   `json:"found"`
	URL   string `json:"url"`
}

func (c *PartnerClient) Find(ctx context.Context, v Venue) (string, bool, error) {
	params := url.Values{}
	params.Set("name", v.Name)
	params.Set("address", v.Address)
	params.Set("lat", strconv.FormatFloat(v.Location.Lat, 'f', 6, 64))
	params.Set("lng", strconv.FormatFloat(v.Location.Lng, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/venues/lookup?"+params.Encode(), nil)
	if err != nil {
		return "", false, &LookupError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, &LookupError{Transient: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", false, &LookupError{Status: resp.StatusCode, Transient: true}
	case resp.StatusCode != http.StatusOK:
		return "", false, &LookupError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, &LookupError{Status: resp.StatusCode, Transient: true, Err: err}
	}
	var out lookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", false, &LookupError{Status: resp.StatusCode, Err: err}
	}
	if !out.Found || out.URL == "" {
		return "", false, nil
	}
	return out.URL, true, nil
}
