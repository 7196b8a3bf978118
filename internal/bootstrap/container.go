package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"ai-restaurant-search-be/internal/config"
	"ai-restaurant-search-be/internal/controller"
	"ai-restaurant-search-be/internal/handler"
	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/internal/pkg/serverutils"
	"ai-restaurant-search-be/internal/repository"
	"ai-restaurant-search-be/internal/repository/implementation"
	"ai-restaurant-search-be/internal/repository/memory"
	"ai-restaurant-search-be/internal/service"
	"ai-restaurant-search-be/internal/websocket"
	"ai-restaurant-search-be/pkg/enrichment"
	"ai-restaurant-search-be/pkg/events"
	"ai-restaurant-search-be/pkg/jobstore"
	"ai-restaurant-search-be/pkg/kv"
	"ai-restaurant-search-be/pkg/llm/factory"
	pktNats "ai-restaurant-search-be/pkg/nats"
	"ai-restaurant-search-be/pkg/places"
	"ai-restaurant-search-be/pkg/retry"
	"ai-restaurant-search-be/pkg/search/filters"
	"ai-restaurant-search-be/pkg/search/intent"
	"ai-restaurant-search-be/pkg/search/narrator"
	"ai-restaurant-search-be/pkg/search/orchestrator"
	"ai-restaurant-search-be/pkg/search/query"
	"ai-restaurant-search-be/pkg/search/ranking"
)

type Container struct {
	// Controllers
	SearchController controller.ISearchController
	StreamHandler    *handler.StreamHandler

	// Background Services (started by Start)
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub

	Logger logger.ILogger

	enrichWorker *enrichment.Worker
	pubSub       *gochannel.GoChannel
	eventBus     *events.Bus
	eventPubSub  *gochannel.GoChannel
	natsConn     *natsgo.Conn
	natsSub      *pktNats.Subscriber
	rdb          *redis.Client
}

// NewContainer wires every dependency. db may be nil, in which case search
// history is kept in memory.
func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Logging
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	gatewayLogger := logger.NewIsolatedLogger(cfg.App.GatewayLogFilePath)

	c := &Container{Logger: sysLogger}

	// 2. Shared cache / lock store
	var store kv.Store
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		c.rdb = redis.NewClient(opt)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := c.rdb.Ping(pingCtx).Err(); err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
		cancel()
		store = kv.NewRedisStore(c.rdb, "search:")
	} else {
		sysLogger.Info("Bootstrap", "REDIS_URL not set, using in-process store", nil)
		store = kv.NewMemoryStore()
	}

	jobs := jobstore.New(store, jobstore.Config{
		ActiveTTL: cfg.Search.ActiveJobTTL,
		ResultTTL: cfg.Search.ResultTTL,
	})

	// 3. Event bus
	var (
		eventPublisher  events.Publisher
		eventSubscriber events.Subscriber
	)
	if cfg.App.NatsURL != "" {
		nc, js, err := pktNats.Connect(cfg.App.NatsURL, sysLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		c.natsConn = nc
		c.natsSub = pktNats.NewSubscriber(js, sysLogger)
		eventPublisher = pktNats.NewPublisher(js)
		eventSubscriber = c.natsSub
	} else {
		c.eventPubSub = gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NewStdLogger(false, false),
		)
		c.eventBus = events.NewBus(c.eventPubSub, c.eventPubSub, sysLogger)
		eventPublisher = c.eventBus
		eventSubscriber = c.eventBus
	}

	// 4. Gateway
	c.WebSocketHub = websocket.NewHub(jobs, c.rdb, gatewayLogger)

	// 5. External providers
	llmProvider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, cfg.Ai.LLMBaseURL(), cfg.Keys.HuggingFace, cfg.Ai.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	sysLogger.Info("Bootstrap", "LLM provider ready", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	placesClient := places.NewClient(cfg.Keys.Places, cfg.Search.ProviderBaseURL)
	searchRetry := retry.Config{
		MaxRetries: cfg.Search.MaxRetries,
		BaseDelay:  cfg.Search.BackoffBase,
		MaxDelay:   cfg.Search.BackoffMax,
		Multiplier: 2,
	}

	// 6. Enrichment
	var (
		states   orchestrator.StateCache
		enricher service.Enricher
		provs    []string
	)
	if cfg.Enrichment.Enabled {
		worker, err := enrichment.NewWorker(
			enrichment.NewPartnerClient(cfg.Keys.Partner, cfg.Enrichment.BaseURL),
			store,
			c.WebSocketHub,
			enrichment.Config{
				Provider:      cfg.Enrichment.Provider,
				JobTimeout:    cfg.Enrichment.JobTimeout,
				LookupTimeout: cfg.Enrichment.LookupTimeout,
				LockTTL:       cfg.Enrichment.LockTTL,
				FoundTTL:      cfg.Enrichment.FoundTTL,
				NotFoundTTL:   cfg.Enrichment.NotFoundTTL,
				PoolSize:      cfg.Enrichment.PoolSize,
				Retry:         retry.DefaultConfig(),
			},
			sysLogger,
		)
		if err != nil {
			return nil, err
		}
		if err := worker.Subscribe(eventSubscriber); err != nil {
			return nil, fmt.Errorf("failed to subscribe enrichment worker: %w", err)
		}
		c.enrichWorker = worker
		states = worker
		enricher = enrichment.NewDispatcher(eventPublisher)
		provs = []string{cfg.Enrichment.Provider}
	}

	// 7. Pipeline
	pipeline := orchestrator.New(orchestrator.Deps{
		Gate:     intent.NewGate(llmProvider, cfg.Ai.GateTimeout, sysLogger),
		Resolver: intent.NewResolver(llmProvider, cfg.Ai.IntentTimeout, sysLogger),
		Filters:  filters.NewResolver(llmProvider, cfg.Ai.FiltersTimeout, sysLogger),
		Mapper: query.NewMapper(placesClient, store, query.MapperConfig{
			NearbyRadiusMeters:   cfg.Search.NearbyRadiusMeters,
			LandmarkRadiusMeters: cfg.Search.LandmarkRadiusMeters,
			LandmarkCacheTTL:     cfg.Search.LandmarkCacheTTL,
		}, sysLogger),
		Places: places.NewStage(placesClient, store, places.StageConfig{
			AttemptTimeout: cfg.Search.ProviderTimeout,
			Retry:          searchRetry,
			MaxPages:       cfg.Search.MaxPages,
			MaxResults:     cfg.Search.MaxResults,
			CacheTTL:       cfg.Search.CacheTTL,
			LockTTL:        cfg.Search.LockTTL,
			LockWait:       cfg.Search.LockWait,
		}, sysLogger),
		Scorer:   ranking.NewCuisineScorer(llmProvider, cfg.Ai.CuisineTimeout, cfg.Ai.CuisineBatchSize, sysLogger),
		Narrator: narrator.NewNarrator(llmProvider, cfg.Ai.NarratorTimeout, sysLogger),
		States:   states,
		Logger:   sysLogger,
	}, orchestrator.Config{
		DefaultRegion: cfg.Search.DefaultRegion,
		Providers:     provs,
	})

	// 8. Job queue
	c.pubSub = gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: int64(cfg.Search.Workers)},
		watermill.NewStdLogger(false, false),
	)

	var history repository.SearchHistoryRepository
	if db != nil {
		history = implementation.NewSearchHistoryRepository(db)
	} else {
		history = memory.NewSearchHistoryRepository()
	}

	runner := service.NewSearchRunner(
		jobs,
		pipeline,
		narrator.NewNarrator(llmProvider, cfg.Ai.NarratorTimeout, sysLogger),
		c.WebSocketHub,
		enricher,
		eventPublisher,
		history,
		service.RunnerConfig{JobTimeout: cfg.Search.JobTimeout},
		sysLogger,
	)
	c.ConsumerService, err = service.NewConsumerService(c.pubSub, cfg.Search.QueueTopic, runner, cfg.Search.Workers, sysLogger)
	if err != nil {
		return nil, err
	}

	searchService := service.NewSearchService(
		jobs,
		service.NewPublisherService(cfg.Search.QueueTopic, c.pubSub),
		history,
		sysLogger,
	)

	// 9. Controllers
	c.SearchController = controller.NewSearchController(searchService, serverutils.NewJwtMiddleware(cfg.App.JWTSecret))
	c.StreamHandler = handler.NewStreamHandler(c.WebSocketHub, cfg.App.JWTSecret, gatewayLogger)

	return c, nil
}

// Start launches the gateway loop and the job consumer.
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)
	return c.ConsumerService.Consume(ctx)
}

// Close stops background work in dependency order.
func (c *Container) Close() {
	if c.natsSub != nil {
		c.natsSub.Stop()
	}
	if err := c.pubSub.Close(); err != nil {
		c.Logger.Warn("Bootstrap", "Failed to close job queue", map[string]interface{}{"error": err.Error()})
	}
	c.ConsumerService.Close()
	if c.eventBus != nil {
		c.eventBus.Close()
		if err := c.eventPubSub.Close(); err != nil {
			c.Logger.Warn("Bootstrap", "Failed to close event bus", map[string]interface{}{"error": err.Error()})
		}
	}
	if c.enrichWorker != nil {
		c.enrichWorker.Close()
	}
	if c.natsConn != nil {
		c.natsConn.Close()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
}
