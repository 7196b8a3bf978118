package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-restaurant-search-be/internal/pkg/logger"
)

// newTestBus publishes synchronously: Publish returns once every subscriber acked.
func newTestBus(t *testing.T) *Bus {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, watermill.NopLogger{})
	bus := NewBus(pubSub, pubSub, logger.NewNop())
	t.Cleanup(func() {
		bus.Close()
		_ = pubSub.Close()
	})
	return bus
}

func TestBusDelivers(t *testing.T) {
	bus := newTestBus(t)
	var got SearchCompleted
	var subject string
	require.NoError(t, bus.Subscribe(TypeSearchCompleted, "history", func(_ context.Context, s string, data []byte) error {
		subject = s
		return json.Unmarshal(data, &got)
	}))

	err := bus.Publish(context.Background(), SearchCompleted{RequestID: "r1", ResultCount: 4, OccurredAt: time.Now()})

	require.NoError(t, err)
	assert.Equal(t, TypeSearchCompleted, subject)
	assert.Equal(t, "r1", got.RequestID)
	assert.Equal(t, 4, got.ResultCount)
}

func TestBusOnlyDeliversMatchingSubject(t *testing.T) {
	bus := newTestBus(t)
	var calls atomic.Int32
	require.NoError(t, bus.Subscribe(TypeSearchFailed, "alerts", func(context.Context, string, []byte) error {
		calls.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), SearchCompleted{RequestID: "r1"}))
	require.NoError(t, bus.Publish(context.Background(), SearchFailed{RequestID: "r2", Code: "TIMEOUT"}))

	assert.Equal(t, int32(1), calls.Load())
}

func TestBusDurableDeliversOnce(t *testing.T) {
	bus := newTestBus(t)
	var calls atomic.Int32
	handler := func(context.Context, string, []byte) error { calls.Add(1); return nil }
	require.NoError(t, bus.Subscribe(TypeEnrichmentRequested, "enrichment", handler))
	require.NoError(t, bus.Subscribe(TypeEnrichmentRequested, "enrichment", handler))

	require.NoError(t, bus.Publish(context.Background(), EnrichmentRequested{RequestID: "r1"}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestBusSeparateDurablesEachReceive(t *testing.T) {
	bus := newTestBus(t)
	var history, audit atomic.Int32
	require.NoError(t, bus.Subscribe(TypeSearchCompleted, "history", func(context.Context, string, []byte) error {
		history.Add(1)
		return nil
	}))
	require.NoError(t, bus.Subscribe(TypeSearchCompleted, "audit", func(context.Context, string, []byte) error {
		audit.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), SearchCompleted{RequestID: "r1"}))

	assert.Equal(t, int32(1), history.Load())
	assert.Equal(t, int32(1), audit.Load())
}

func TestBusRedeliversUntilHandlerSucceeds(t *testing.T) {
	bus := newTestBus(t)
	var calls atomic.Int32
	require.NoError(t, bus.Subscribe(TypeSearchFailed, "x", func(context.Context, string, []byte) error {
		if calls.Add(1) < 3 {
			return errors.New("boom")
		}
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), SearchFailed{RequestID: "r1", Code: "TIMEOUT"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestBusDropsAfterMaxDeliver(t *testing.T) {
	bus := newTestBus(t)
	var calls atomic.Int32
	require.NoError(t, bus.Subscribe(TypeSearchFailed, "x", func(context.Context, string, []byte) error {
		calls.Add(1)
		return errors.New("boom")
	}))

	require.NoError(t, bus.Publish(context.Background(), SearchFailed{RequestID: "r1", Code: "TIMEOUT"}))
	assert.Equal(t, int32(MaxDeliver), calls.Load())
}

func TestBusRejectsWildcardSubjects(t *testing.T) {
	bus := newTestBus(t)
	noop := func(context.Context, string, []byte) error { return nil }

	assert.Error(t, bus.Subscribe("search.>", "x", noop))
	assert.Error(t, bus.Subscribe("search.*", "x", noop))
}
