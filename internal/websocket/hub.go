package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ai-restaurant-search-be/internal/dto"
	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/jobstore"
	"ai-restaurant-search-be/pkg/search/narrator"
	"ai-restaurant-search-be/pkg/search/results"
)

// Channels a client can subscribe to for one request.
const (
	ChannelSearch    = "search"
	ChannelAssistant = "assistant"
)

// Frame types.
const (
	FrameProgress    = "progress"
	FrameReady       = "ready"
	FrameAssistant   = "assistant"
	FrameResultPatch = "RESULT_PATCH"
	FrameSubAck      = "sub_ack"
	FrameSubNack     = "sub_nack"
)

const clusterChannel = "search_gateway_events"

// Publisher is what the search pipeline sees of the gateway. Publishing never
// fails from the caller's point of view.
type Publisher interface {
	PublishProgress(requestID string, progress int, stage string)
	PublishReady(requestID string, status jobstore.Status)
	PublishAssistant(requestID string, msg narrator.Message)
	PublishPatch(requestID, placeID, provider string, status results.ProviderStatus)
}

// JobReader resolves the owner and state of a request.
type JobReader interface {
	Get(ctx context.Context, requestID string) (*jobstore.Record, error)
}

type subKey struct {
	requestID string
	channel   string
}

type Hub struct {
	// Subscriptions: (requestId, channel) -> set of clients
	subs map[subKey]map[*Client]struct{}

	// Live connections
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	// done is closed when Run returns
	done chan struct{}

	mu sync.RWMutex

	jobs JobReader

	// Redis connection for cross-instance delivery
	rdb    *redis.Client
	origin string

	logger logger.ILogger
}

var _ Publisher = (*Hub)(nil)

func NewHub(jobs JobReader, rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		subs:       make(map[subKey]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		jobs:       jobs,
		rdb:        rdb,
		origin:     uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"owner_id": client.OwnerID})
		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Register hands a new connection to the hub loop. It reports false once the
// hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister drops a connection. After the hub stopped it is removed in place.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for key, set := range h.subs {
		delete(set, client)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
	client.close()
	h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"owner_id": client.OwnerID})
}

type clientFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Channel   string `json:"channel"`
}

type ackFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Channel   string `json:"channel,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// HandleFrame processes one frame sent by a client.
func (h *Hub) HandleFrame(ctx context.Context, client *Client, data []byte) {
	var in clientFrame
	if err := json.Unmarshal(data, &in); err != nil {
		h.reply(client, ackFrame{Type: FrameSubNack, Reason: "BAD_FRAME"})
		return
	}
	if in.Channel == "" {
		in.Channel = ChannelSearch
	}

	switch in.Type {
	case "subscribe":
		h.subscribe(ctx, client, in)
	case "unsubscribe":
		h.mu.Lock()
		key := subKey{requestID: in.RequestID, channel: in.Channel}
		if set, ok := h.subs[key]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(h.subs, key)
			}
		}
		h.mu.Unlock()
	default:
		h.reply(client, ackFrame{Type: FrameSubNack, RequestID: in.RequestID, Reason: "UNKNOWN_TYPE"})
	}
}

func (h *Hub) subscribe(ctx context.Context, client *Client, in clientFrame) {
	nack := func(reason string) {
		h.reply(client, ackFrame{Type: FrameSubNack, RequestID: in.RequestID, Channel: in.Channel, Reason: reason})
	}
	if in.RequestID == "" {
		nack("BAD_FRAME")
		return
	}
	if in.Channel != ChannelSearch && in.Channel != ChannelAssistant {
		nack("UNKNOWN_CHANNEL")
		return
	}

	rec, err := h.jobs.Get(ctx, in.RequestID)
	if err != nil {
		if !errors.Is(err, jobstore.ErrNotFound) {
			h.logger.Warn("Hub", "Job lookup failed on subscribe", map[string]interface{}{
				"request_id": in.RequestID,
				"error":      err.Error(),
			})
		}
		nack("NOT_FOUND")
		return
	}
	if rec.OwnerID != client.OwnerID {
		h.logger.Warn("Hub", "Rejected subscribe to foreign request", map[string]interface{}{
			"request_id": in.RequestID,
			"owner_id":   client.OwnerID,
		})
		nack("NOT_FOUND")
		return
	}

	h.mu.Lock()
	key := subKey{requestID: in.RequestID, channel: in.Channel}
	if h.subs[key] == nil {
		h.subs[key] = make(map[*Client]struct{})
	}
	h.subs[key][client] = struct{}{}
	h.mu.Unlock()

	h.reply(client, ackFrame{Type: FrameSubAck, RequestID: in.RequestID, Channel: in.Channel})

	// The job may have finished before the client subscribed
	if in.Channel == ChannelSearch && rec.Status.Terminal() {
		h.reply(client, dto.ReadyFrame{
			Type:      FrameReady,
			RequestID: rec.RequestID,
			Status:    string(rec.Status),
			ResultURL: dto.ResultURL(rec.RequestID),
		})
	}
}

func (h *Hub) reply(client *Client, frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	client.deliver(data)
}

func (h *Hub) PublishProgress(requestID string, progress int, stage string) {
	h.publish(requestID, ChannelSearch, dto.ProgressFrame{
		Type:      FrameProgress,
		RequestID: requestID,
		Progress:  progress,
		Stage:     stage,
	})
}

func (h *Hub) PublishReady(requestID string, status jobstore.Status) {
	h.publish(requestID, ChannelSearch, dto.ReadyFrame{
		Type:      FrameReady,
		RequestID: requestID,
		Status:    string(status),
		ResultURL: dto.ResultURL(requestID),
	})
}

func (h *Hub) PublishAssistant(requestID string, msg narrator.Message) {
	h.publish(requestID, ChannelAssistant, dto.AssistantFrame{
		Type:      FrameAssistant,
		RequestID: requestID,
		Assist:    msg,
	})
}

func (h *Hub) PublishPatch(requestID, placeID, provider string, status results.ProviderStatus) {
	h.publish(requestID, ChannelSearch, dto.ResultPatchFrame{
		Type:      FrameResultPatch,
		RequestID: requestID,
		PlaceID:   placeID,
		Provider:  provider,
		Status:    status,
	})
}

type clusterMessage struct {
	Origin    string          `json:"origin"`
	RequestID string          `json:"request_id"`
	Channel   string          `json:"channel"`
	Message   json.RawMessage `json:"message"`
}

// publish delivers locally and mirrors to the other instances. Errors and
// panics stop here.
func (h *Hub) publish(requestID, channel string, frame interface{}) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Hub", "Recovered from panic while publishing", map[string]interface{}{
				"request_id": requestID,
				"channel":    channel,
				"panic":      r,
			})
		}
	}()

	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("Hub", "Failed to encode frame", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return
	}

	delivered := h.deliverLocal(requestID, channel, data)
	framesTotal.WithLabelValues(channel).Inc()
	h.logger.Debug("Hub", "Frame published", map[string]interface{}{
		"request_id": requestID,
		"channel":    channel,
		"delivered":  delivered,
	})

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{
			Origin:    h.origin,
			RequestID: requestID,
			Channel:   channel,
			Message:   data,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.rdb.Publish(ctx, clusterChannel, payload).Err(); err != nil {
			h.logger.Warn("Hub", "Failed to mirror frame to cluster", map[string]interface{}{
				"request_id": requestID,
				"error":      err.Error(),
			})
		}
	}
}

func (h *Hub) deliverLocal(requestID, channel string, data []byte) int {
	h.mu.RLock()
	set := h.subs[subKey{requestID: requestID, channel: channel}]
	targets := make([]*Client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.deliver(data) {
			delivered++
			continue
		}
		h.logger.Warn("Hub", "Client send buffer full, dropping frame", map[string]interface{}{
			"request_id": requestID,
			"owner_id":   c.OwnerID,
		})
	}
	return delivered
}

// Subscribers counts local subscriptions for a (requestId, channel) pair.
func (h *Hub) Subscribers(requestID, channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[subKey{requestID: requestID, channel: channel}])
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.handleClusterMessage([]byte(msg.Payload))
	}
}

func (h *Hub) handleClusterMessage(payload []byte) {
	var m clusterMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		h.logger.Warn("Hub", "Cluster message parse error", map[string]interface{}{"error": err.Error()})
		return
	}
	if m.Origin == h.origin {
		return
	}
	h.deliverLocal(m.RequestID, m.Channel, m.Message)
}
