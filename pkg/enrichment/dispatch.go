package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-restaurant-search-be/pkg/events"
	"ai-restaurant-search-be/pkg/search/results"
)

const DurableName = "enrichment-workers"

// Dispatcher hands finished result sets to whichever node picks up the event.
type Dispatcher struct {
	publisher events.Publisher
}

func NewDispatcher(publisher events.Publisher) *Dispatcher {
	return &Dispatcher{publisher: publisher}
}

func (d *Dispatcher) Dispatch(ctx context.Context, requestID string, items []results.Item) error {
	if len(items) == 0 {
		return nil
	}
	return d.publisher.Publish(ctx, events.EnrichmentRequested{
		RequestID:  requestID,
		Items:      items,
		OccurredAt: time.Now().UTC(),
	})
}

// Subscribe binds the worker to enrichment requests on the bus.
func (w *Worker) Subscribe(sub events.Subscriber) error {
	return sub.Subscribe(events.TypeEnrichmentRequested, DurableName, func(ctx context.Context, _ string, data []byte) error {
		var evt events.EnrichmentRequested
		if err := json.Unmarshal(data, &evt); err != nil {
			// Redelivery cannot fix a malformed payload
			w.logger.Error("Enrichment", "Dropping malformed enrichment request", map[string]interface{}{
				"error": err.Error(),
			})
			return nil
		}
		if evt.RequestID == "" {
			return fmt.Errorf("enrichment request without request id")
		}
		w.Enrich(ctx, evt.RequestID, evt.Items)
		return nil
	})
}
