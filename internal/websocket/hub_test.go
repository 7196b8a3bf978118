package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/jobstore"
	"ai-restaurant-search-be/pkg/kv"
	"ai-restaurant-search-be/pkg/search/narrator"
	"ai-restaurant-search-be/pkg/search/results"
)

func newTestHub(t *testing.T) (*Hub, *jobstore.Store) {
	t.Helper()
	jobs := jobstore.New(kv.NewMemoryStore(), jobstore.Config{})
	return NewHub(jobs, nil, logger.NewNop()), jobs
}

func frame(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func next(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	default:
		t.Fatal("expected a frame")
		return nil
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected frame %s", data)
	default:
	}
}

func TestSubscribe_OwnerGetsAck(t *testing.T) {
	hub, jobs := newTestHub(t)
	ctx := context.Background()
	_, err := jobs.Create(ctx, "req-1", "user-1", "pizza")
	require.NoError(t, err)

	c := NewClient(hub, nil, "user-1")
	hub.HandleFrame(ctx, c, frame(t, map[string]string{"type": "subscribe", "requestId": "req-1", "channel": "search"}))

	ack := next(t, c)
	assert.Equal(t, FrameSubAck, ack["type"])
	assert.Equal(t, "req-1", ack["requestId"])
	assert.Equal(t, 1, hub.Subscribers("req-1", ChannelSearch))
}

func TestSubscribe_ForeignOrMissingRequestIsNacked(t *testing.T) {
	hub, jobs := newTestHub(t)
	ctx := context.Background()
	_, err := jobs.Create(ctx, "req-1", "user-1", "pizza")
	require.NoError(t, err)

	tests := []struct {
		name      string
		requestID string
		channel   string
		reason    string
	}{
		{name: "foreign owner", requestID: "req-1", channel: ChannelSearch, reason: "NOT_FOUND"},
		{name: "missing job", requestID: "req-404", channel: ChannelSearch, reason: "NOT_FOUND"},
		{name: "unknown channel", requestID: "req-1", channel: "chat", reason: "UNKNOWN_CHANNEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(hub, nil, "intruder")
			hub.HandleFrame(ctx, c, frame(t, map[string]string{"type": "subscribe", "requestId": tt.requestID, "channel": tt.channel}))
			nack := next(t, c)
			assert.Equal(t, FrameSubNack, nack["type"])
			assert.Equal(t, tt.reason, nack["reason"])
		})
	}
	assert.Zero(t, hub.Subscribers("req-1", ChannelSearch))
}

func TestSubscribe_BadFrame(t *testing.T) {
	hub, _ := newTestHub(t)
	c := NewClient(hub, nil, "user-1")
	hub.HandleFrame(context.Background(), c, []byte("{not json"))
	assert.Equal(t, "BAD_FRAME", next(t, c)["reason"])
}

func TestSubscribe_TerminalJobGetsReadyImmediately(t *testing.T) {
	hub, jobs := newTestHub(t)
	ctx := context.Background()
	_, err := jobs.Create(ctx, "req-1", "user-1", "pizza")
	require.NoError(t, err)
	require.NoError(t, jobs.SetRunning(ctx, "req-1"))
	require.NoError(t, jobs.SetResult(ctx, "req-1", map[string]string{}))

	c := NewClient(hub, nil, "user-1")
	hub.HandleFrame(ctx, c, frame(t, map[string]string{"type": "subscribe", "requestId": "req-1"}))

	assert.Equal(t, FrameSubAck, next(t, c)["type"])
	ready := next(t, c)
	assert.Equal(t, FrameReady, ready["type"])
	assert.Equal(t, string(jobstore.StatusDoneSuccess), ready["status"])
	assert.Equal(t, "/api/search/req-1/result", ready["resultUrl"])
}

func TestPublish_FansOutPerChannel(t *testing.T) {
	hub, jobs := newTestHub(t)
	ctx := context.Background()
	_, err := jobs.Create(ctx, "req-1", "user-1", "pizza")
	require.NoError(t, err)

	searchA := NewClient(hub, nil, "user-1")
	searchB := NewClient(hub, nil, "user-1")
	assistant := NewClient(hub, nil, "user-1")
	for _, c := range []*Client{searchA, searchB} {
		hub.HandleFrame(ctx, c, frame(t, map[string]string{"type": "subscribe", "requestId": "req-1", "channel": ChannelSearch}))
		next(t, c)
	}
	hub.HandleFrame(ctx, assistant, frame(t, map[string]string{"type": "subscribe", "requestId": "req-1", "channel": ChannelAssistant}))
	next(t, assistant)

	hub.PublishProgress("req-1", 50, "MAP_QUERY")
	for _, c := range []*Client{searchA, searchB} {
		f := next(t, c)
		assert.Equal(t, FrameProgress, f["type"])
		assert.Equal(t, "req-1", f["requestId"])
		assert.EqualValues(t, 50, f["progress"])
	}
	assertEmpty(t, assistant)

	hub.PublishAssistant("req-1", narrator.Message{Type: narrator.KindSummary, Message: "Found 3", Language: "en"})
	f := next(t, assistant)
	assert.Equal(t, FrameAssistant, f["type"])
	assertEmpty(t, searchA)

	hub.PublishPatch("req-1", "p1", "wolt", results.ProviderStatus{State: results.StateFound, URL: "https://x"})
	patch := next(t, searchA)
	assert.Equal(t, FrameResultPatch, patch["type"])
	assert.Equal(t, "p1", patch["placeId"])
}

func TestPublish_NoSubscribersIsSilent(t *testing.T) {
	hub, _ := newTestHub(t)
	assert.NotPanics(t, func() {
		hub.PublishProgress("nobody", 10, "CLASSIFY")
		hub.PublishReady("nobody", jobstore.StatusDoneFailed)
	})
}

func TestPublish_FullBufferDropsWithoutBlocking(t *testing.T) {
	hub, jobs := newTestHub(t)
	ctx := context.Background()
	_, err := jobs.Create(ctx, "req-1", "user-1", "pizza")
	require.NoError(t, err)

	c := &Client{Hub: hub, OwnerID: "user-1", Send: make(chan []byte, 1)}
	hub.HandleFrame(ctx, c, frame(t, map[string]string{"type": "subscribe", "requestId": "req-1"}))

	// The ack fills the buffer
	hub.PublishProgress("req-1", 25, "ROUTE")
	assert.Equal(t, FrameSubAck, next(t, c)["type"])
	assertEmpty(t, c)
}

func TestUnsubscribeAndRemove(t *testing.T) {
	hub, jobs := newTestHub(t)
	ctx := context.Background()
	_, err := jobs.Create(ctx, "req-1", "user-1", "pizza")
	require.NoError(t, err)

	c := NewClient(hub, nil, "user-1")
	hub.HandleFrame(ctx, c, frame(t, map[string]string{"type": "subscribe", "requestId": "req-1"}))
	hub.HandleFrame(ctx, c, frame(t, map[string]string{"type": "unsubscribe", "requestId": "req-1"}))
	assert.Zero(t, hub.Subscribers("req-1", ChannelSearch))

	hub.HandleFrame(ctx, c, frame(t, map[string]string{"type": "subscribe", "requestId": "req-1"}))
	hub.mu.Lock()
	hub.clients[c] = struct{}{}
	hub.mu.Unlock()
	hub.remove(c)
	assert.Zero(t, hub.Subscribers("req-1", ChannelSearch))
	assert.False(t, c.deliver([]byte("x")))
}

func TestRegisterAndUnregisterAfterHubStopped(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	c := NewClient(hub, nil, "user-1")
	require.True(t, hub.Register(c))
	cancel()
	<-stopped

	assert.False(t, hub.Register(NewClient(hub, nil, "user-2")))

	done := make(chan struct{})
	go func() {
		hub.Unregister(c)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked on a stopped hub")
	}
	_, open := <-c.Send
	assert.False(t, open)
}

func TestClusterMessage_SkipsOwnEcho(t *testing.T) {
	hub, jobs := newTestHub(t)
	ctx := context.Background()
	_, err := jobs.Create(ctx, "req-1", "user-1", "pizza")
	require.NoError(t, err)

	c := NewClient(hub, nil, "user-1")
	hub.HandleFrame(ctx, c, frame(t, map[string]string{"type": "subscribe", "requestId": "req-1"}))
	next(t, c)

	own := frame(t, clusterMessage{Origin: hub.origin, RequestID: "req-1", Channel: ChannelSearch, Message: json.RawMessage(`{"type":"progress"}`)})
	hub.handleClusterMessage(own)
	assertEmpty(t, c)

	remote := frame(t, clusterMessage{Origin: "other-node", RequestID: "req-1", Channel: ChannelSearch, Message: json.RawMessage(`{"type":"progress"}`)})
	hub.handleClusterMessage(remote)
	assert.Equal(t, FrameProgress, next(t, c)["type"])
}
