package dto

import (
	"time"

	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/narrator"
	"ai-restaurant-search-be/pkg/search/ranking"
	"ai-restaurant-search-be/pkg/search/results"
	"ai-restaurant-search-be/pkg/search/route"
)

type SearchRequest struct {
	Query        string        `json:"query" validate:"required,min=1,max=500"`
	UserLocation *route.LatLng `json:"userLocation,omitempty" validate:"omitempty"`
	UILanguage   string        `json:"uiLanguage,omitempty" validate:"omitempty,max=16"`
}

type SearchAcceptedResponse struct {
	RequestID string `json:"requestId"`
	ResultURL string `json:"resultUrl"`
}

type SearchResponse struct {
	RequestID string            `json:"requestId"`
	Query     string            `json:"query"`
	Results   []results.Item    `json:"results"`
	Meta      SearchMeta        `json:"meta"`
	Assist    *narrator.Message `json:"assist,omitempty"`
}

type SearchMeta struct {
	Route      route.Kind       `json:"route"`
	CuisineKey string           `json:"cuisineKey,omitempty"`
	Retries    int              `json:"retries"`
	Relaxed    bool             `json:"relaxed,omitempty"`
	CacheHit   bool             `json:"cacheHit,omitempty"`
	Language   langctx.Snapshot `json:"language"`
	Order      *ranking.Order   `json:"order,omitempty"`
	TookMs     int64            `json:"tookMs"`
}

// SearchPendingResponse is returned with 202 while the job is in flight.
type SearchPendingResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Stage     string `json:"stage,omitempty"`
}

type SearchFailedResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Terminal  bool   `json:"terminal"`
}

type SearchHistoryResponse struct {
	RequestID   string     `json:"requestId"`
	Query       string     `json:"query"`
	Route       string     `json:"route"`
	Status      string     `json:"status"`
	ResultCount int        `json:"resultCount"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Frames pushed over the websocket gateway.

type ProgressFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Progress  int    `json:"progress"`
	Stage     string `json:"stage"`
}

type ReadyFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	ResultURL string `json:"resultUrl"`
}

type AssistantFrame struct {
	Type      string           `json:"type"`
	RequestID string           `json:"requestId"`
	Assist    narrator.Message `json:"assist"`
}

type ResultPatchFrame struct {
	Type      string                 `json:"type"`
	RequestID string                 `json:"requestId"`
	PlaceID   string                 `json:"placeId"`
	Provider  string                 `json:"provider"`
	Status    results.ProviderStatus `json:"providerStatus"`
}

// ResultURL is the poll endpoint of a search job.
func ResultURL(requestID string) string {
	return "/api/search/" + requestID + "/result"
}

// SearchJobMessage is the queue payload of one submitted search.
type SearchJobMessage struct {
	RequestID    string        `json:"requestId"`
	OwnerID      string        `json:"ownerId"`
	Query        string        `json:"query"`
	UserLocation *route.LatLng `json:"userLocation,omitempty"`
	UILanguage   string        `json:"uiLanguage,omitempty"`
	SubmittedAt  time.Time     `json:"submittedAt"`
}
