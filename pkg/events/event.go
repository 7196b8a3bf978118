package events

import (
	"context"
	"time"

	"ai-restaurant-search-be/pkg/search/results"
)

// Subjects carried on the bus. The NATS stream captures everything under
// "search.>".
const (
	TypeSearchCompleted     = "search.completed"
	TypeSearchFailed        = "search.failed"
	TypeEnrichmentRequested = "search.enrich.requested"
)

// Event defines the contract for all system events. Implementations are
// encoded as JSON on the wire.
type Event interface {
	// EventType returns the subject of the event (e.g. "search.completed").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Publisher sends events to the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Handler processes one delivered event. A returned error asks for redelivery.
type Handler func(ctx context.Context, subject string, data []byte) error

// Subscriber registers durable handlers. Handlers sharing a durable name
// split the deliveries between them.
type Subscriber interface {
	Subscribe(subject, durable string, handler Handler) error
}

type SearchCompleted struct {
	RequestID   string    `json:"requestId"`
	OwnerID     string    `json:"ownerId"`
	Query       string    `json:"query"`
	Route       string    `json:"route"`
	ResultCount int       `json:"resultCount"`
	Retries     int       `json:"retries"`
	TookMs      int64     `json:"tookMs"`
	OccurredAt  time.Time `json:"occurredAt"`
}

func (e SearchCompleted) EventType() string    { return TypeSearchCompleted }
func (e SearchCompleted) Timestamp() time.Time { return e.OccurredAt }

type SearchFailed struct {
	RequestID  string    `json:"requestId"`
	OwnerID    string    `json:"ownerId"`
	Query      string    `json:"query"`
	Stage      string    `json:"stage,omitempty"`
	Code       string    `json:"code"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (e SearchFailed) EventType() string    { return TypeSearchFailed }
func (e SearchFailed) Timestamp() time.Time { return e.OccurredAt }

// EnrichmentRequested asks any node to enrich the results of a finished search.
type EnrichmentRequested struct {
	RequestID  string         `json:"requestId"`
	Items      []results.Item `json:"items"`
	OccurredAt time.Time      `json:"occurredAt"`
}

func (e EnrichmentRequested) EventType() string    { return TypeEnrichmentRequested }
func (e EnrichmentRequested) Timestamp() time.Time { return e.OccurredAt }
