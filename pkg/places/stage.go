package places

import (
	"context"
	"errors"
	"time"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/kv"
	"ai-restaurant-search-be/pkg/retry"
	"ai-restaurant-search-be/pkg/search/query"
)

type StageConfig struct {
	AttemptTimeout time.Duration
	Retry          retry.Config
	MaxPages       int
	MaxResults     int
	CacheTTL       time.Duration
	LockTTL        time.Duration
	LockWait       time.Duration
	PollInterval   time.Duration
}

// Result is the output of one provider stage execution.
type Result struct {
	Query    query.ProviderQuery
	Places   []Place
	Retries  int
	Relaxed  bool
	CacheHit bool
}

type cachedPlaces struct {
	Places []Place `json:"places"`
}

// Stage executes provider queries with caching, herd protection, retry and
// pagination.
type Stage struct {
	provider Provider
	cache    kv.Store
	cfg      StageConfig
	logger   logger.ILogger
}

func NewStage(provider Provider, cache kv.Store, cfg StageConfig, log logger.ILogger) *Stage {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &Stage{provider: provider, cache: cache, cfg: cfg, logger: log}
}

// Execute runs q. An empty result of a relaxable query is retried once
// without its required terms.
func (s *Stage) Execute(ctx context.Context, q query.ProviderQuery) (Result, error) {
	res, err := s.cachedFetch(ctx, q)
	if err != nil {
		return res, err
	}
	if len(res.Places) > 0 || !q.Relaxable() {
		return res, nil
	}

	relaxedQuery := q.WithoutRequiredTerms()
	s.logger.Info("PlacesStage", "Empty strict result, relaxing required terms", map[string]interface{}{
		"required_terms": q.RequiredTerms,
		"query":          relaxedQuery.TextQuery,
	})
	relaxed, err := s.cachedFetch(ctx, relaxedQuery)
	relaxed.Retries += res.Retries
	relaxed.Relaxed = true
	return relaxed, err
}

func (s *Stage) cachedFetch(ctx context.Context, q query.ProviderQuery) (Result, error) {
	if s.cache == nil {
		return s.fetch(ctx, q)
	}

	key := "places:" + q.CacheKey()
	if places, ok := s.readCache(ctx, key); ok {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return Result{Query: q, Places: places, CacheHit: true}, nil
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()

	lock, acquired, err := kv.TryLock(ctx, s.cache, "lock:"+key, s.cfg.LockTTL)
	if err != nil {
		s.logger.Warn("PlacesStage", "Lock store unavailable, fetching directly", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if !acquired && err == nil {
		if places, ok := s.waitForCache(ctx, key); ok {
			cacheLookupsTotal.WithLabelValues("waited").Inc()
			return Result{Query: q, Places: places, CacheHit: true}, nil
		}
	}

	if lock != nil {
		defer func() {
			// Released on a fresh context so a cancelled request still frees the key
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := lock.Release(releaseCtx); err != nil {
				s.logger.Warn("PlacesStage", "Failed to release lock", map[string]interface{}{
					"key":   key,
					"error": err.Error(),
				})
			}
		}()
	}

	res, err := s.fetch(ctx, q)
	if err != nil {
		return res, err
	}
	if err := kv.SetJSON(ctx, s.cache, key, cachedPlaces{Places: res.Places}, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("PlacesStage", "Failed to cache provider result", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
	return res, nil
}

func (s *Stage) readCache(ctx context.Context, key string) ([]Place, bool) {
	var cached cachedPlaces
	if err := kv.GetJSON(ctx, s.cache, key, &cached); err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("PlacesStage", "Cache read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return nil, false
	}
	return cached.Places, true
}

// waitForCache polls while another caller holds the fetch lock.
func (s *Stage) waitForCache(ctx context.Context, key string) ([]Place, bool) {
	deadline := time.NewTimer(s.cfg.LockWait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-deadline.C:
			return nil, false
		case <-ticker.C:
			if places, ok := s.readCache(ctx, key); ok {
				return places, true
			}
		}
	}
}

// fetch follows page tokens until MaxPages or MaxResults.
func (s *Stage) fetch(ctx context.Context, q query.ProviderQuery) (Result, error) {
	res := Result{Query: q, Places: make([]Place, 0)}
	seen := make(map[string]bool)
	token := ""

	for page := 0; page < s.cfg.MaxPages; page++ {
		p, retries, err := retry.Do(ctx, s.cfg.Retry, IsTransient, func(ctx context.Context) (Page, error) {
			attemptCtx := ctx
			if s.cfg.AttemptTimeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, s.cfg.AttemptTimeout)
				defer cancel()
			}
			return s.provider.Search(attemptCtx, q, token)
		})
		res.Retries += retries
		providerRetriesTotal.Add(float64(retries))
		if err != nil {
			s.logger.Error("PlacesStage", "Provider query failed", map[string]interface{}{
				"mode":    q.Mode,
				"page":    page,
				"retries": res.Retries,
				"error":   err.Error(),
			})
			return res, err
		}

		for _, place := range p.Places {
			if seen[place.ID] {
				continue
			}
			seen[place.ID] = true
			res.Places = append(res.Places, place)
		}
		if len(res.Places) >= s.cfg.MaxResults {
			res.Places = res.Places[:s.cfg.MaxResults]
			break
		}
		if p.NextPageToken == "" {
			break
		}
		token = p.NextPageToken
	}
	return res, nil
}
