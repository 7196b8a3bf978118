// Package enrichment attaches delivery-partner links to results after the
// search response is already visible.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/patrickmn/go-cache"

	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/kv"
	"ai-restaurant-search-be/pkg/retry"
	"ai-restaurant-search-be/pkg/search/results"
)

// Patcher delivers one provider state change for a request.
type Patcher interface {
	PublishPatch(requestID, placeID, provider string, status results.ProviderStatus)
}

type Config struct {
	Provider      string
	JobTimeout    time.Duration
	LookupTimeout time.Duration
	LockTTL       time.Duration
	FoundTTL      time.Duration
	NotFoundTTL   time.Duration

	// LockWait bounds how long a request that lost the lock waits for the
	// winner's state before settling on NOT_FOUND.
	LockWait     time.Duration
	PollInterval time.Duration
	PoolSize     int
	Retry        retry.Config
}

// Worker runs one enrichment job per (provider, place) on a bounded pool.
type Worker struct {
	lookup  Lookup
	store   kv.Store
	patcher Patcher
	pool    *ants.Pool
	arenas  *cache.Cache
	arenaMu sync.Mutex
	cfg     Config
	logger  logger.ILogger
	wg      sync.WaitGroup
}

func NewWorker(lookup Lookup, store kv.Store, patcher Patcher, cfg Config, log logger.ILogger) (*Worker, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 16
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.JobTimeout + 5*time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = cfg.JobTimeout + time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	pool, err := ants.NewPool(cfg.PoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create enrichment pool: %w", err)
	}
	return &Worker{
		lookup:  lookup,
		store:   store,
		patcher: patcher,
		pool:    pool,
		arenas:  cache.New(4*cfg.JobTimeout+time.Minute, time.Minute),
		cfg:     cfg,
		logger:  log,
	}, nil
}

func stateKey(provider, placeID string) string {
	return "enrich:" + provider + ":" + placeID
}

func lockKey(provider, placeID string) string {
	return "lock:enrich:" + provider + ":" + placeID
}

// Cached returns a terminal state from an earlier run.
func (w *Worker) Cached(ctx context.Context, provider, placeID string) (results.ProviderStatus, bool) {
	var status results.ProviderStatus
	if err := kv.GetJSON(ctx, w.store, stateKey(provider, placeID), &status); err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			w.logger.Warn("Enrichment", "State cache read failed", map[string]interface{}{
				"place_id": placeID,
				"error":    err.Error(),
			})
		}
		return results.ProviderStatus{}, false
	}
	return status, status.State.Terminal()
}

// Enrich schedules a job for every pending item. It returns after scheduling;
// patches are delivered as jobs finish.
func (w *Worker) Enrich(ctx context.Context, requestID string, items []results.Item) {
	set := w.arena(requestID, items)
	provider := w.cfg.Provider

	for _, it := range set.Items() {
		if it.Providers[provider].State.Terminal() {
			continue
		}

		if status, ok := w.Cached(ctx, provider, it.PlaceID); ok {
			w.apply(requestID, set, it.PlaceID, status)
			continue
		}

		lock, acquired, err := kv.TryLock(ctx, w.store, lockKey(provider, it.PlaceID), w.cfg.LockTTL)
		if err != nil {
			w.logger.Warn("Enrichment", "Lock store unavailable, skipping item", map[string]interface{}{
				"request_id": requestID,
				"place_id":   it.PlaceID,
				"error":      err.Error(),
			})
			continue
		}
		item := it
		if !acquired {
			// Another job owns the lookup; this request still needs its own patch
			jobsTotal.WithLabelValues("lock_lost").Inc()
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.await(requestID, set, item.PlaceID)
			}()
			continue
		}

		w.wg.Add(1)
		if err := w.pool.Submit(func() {
			defer w.wg.Done()
			w.run(requestID, set, item, lock)
		}); err != nil {
			w.wg.Done()
			w.logger.Warn("Enrichment", "Pool rejected job", map[string]interface{}{
				"request_id": requestID,
				"place_id":   item.PlaceID,
				"error":      err.Error(),
			})
			w.release(lock)
			jobsTotal.WithLabelValues("rejected").Inc()
		}
	}
}

// arena returns the request's shared result set so repeated triggers for the
// same request patch each item at most once.
func (w *Worker) arena(requestID string, items []results.Item) *results.Set {
	w.arenaMu.Lock()
	defer w.arenaMu.Unlock()
	if v, ok := w.arenas.Get(requestID); ok {
		return v.(*results.Set)
	}
	set := results.NewSet([]string{w.cfg.Provider}, items)
	w.arenas.SetDefault(requestID, set)
	return set
}

// run finalizes exactly once: on lookup completion or on job timeout,
// whichever happens first.
func (w *Worker) run(requestID string, set *results.Set, it results.Item, lock *kv.Lock) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.JobTimeout)
	defer cancel()

	var once sync.Once
	finalize := func(status results.ProviderStatus, outcome string) {
		once.Do(func() {
			w.finalize(requestID, set, it.PlaceID, status)
			w.release(lock)
			jobsTotal.WithLabelValues(outcome).Inc()
		})
	}

	done := make(chan results.ProviderStatus, 1)
	go func() {
		done <- w.find(ctx, it)
	}()

	select {
	case status := <-done:
		outcome := "found"
		if status.State != results.StateFound {
			outcome = "not_found"
		}
		finalize(status, outcome)
	case <-ctx.Done():
		w.logger.Warn("Enrichment", "Job timed out", map[string]interface{}{
			"request_id": requestID,
			"place_id":   it.PlaceID,
			"timeout":    w.cfg.JobTimeout.String(),
		})
		finalize(results.ProviderStatus{State: results.StateNotFound}, "timeout")
	}
}

// await polls the state written by the lock holder and applies it to this
// request. A holder that never finalizes leaves the item NOT_FOUND.
func (w *Worker) await(requestID string, set *results.Set, placeID string) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.LockWait)
	defer cancel()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Warn("Enrichment", "Lock holder did not finalize in time", map[string]interface{}{
				"request_id": requestID,
				"place_id":   placeID,
				"wait":       w.cfg.LockWait.String(),
			})
			jobsTotal.WithLabelValues("wait_timeout").Inc()
			w.apply(requestID, set, placeID, results.ProviderStatus{State: results.StateNotFound, UpdatedAt: time.Now().UTC()})
			return
		case <-ticker.C:
			if status, ok := w.Cached(ctx, w.cfg.Provider, placeID); ok {
				w.apply(requestID, set, placeID, status)
				return
			}
		}
	}
}

func (w *Worker) find(ctx context.Context, it results.Item) results.ProviderStatus {
	venue := Venue{PlaceID: it.PlaceID, Name: it.Name, Address: it.Address, Location: it.Location}

	type hit struct {
		link  string
		found bool
	}
	res, retries, err := retry.Do(ctx, w.cfg.Retry, isTransient, func(ctx context.Context) (hit, error) {
		attemptCtx := ctx
		if w.cfg.LookupTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, w.cfg.LookupTimeout)
			defer cancel()
		}
		link, found, err := w.lookup.Find(attemptCtx, venue)
		return hit{link: link, found: found}, err
	})
	if err != nil {
		w.logger.Warn("Enrichment", "Partner lookup failed", map[string]interface{}{
			"place_id": it.PlaceID,
			"retries":  retries,
			"error":    err.Error(),
		})
		return results.ProviderStatus{State: results.StateNotFound}
	}
	if !res.found {
		return results.ProviderStatus{State: results.StateNotFound}
	}
	return results.ProviderStatus{State: results.StateFound, URL: res.link}
}

func (w *Worker) finalize(requestID string, set *results.Set, placeID string, status results.ProviderStatus) {
	status.UpdatedAt = time.Now().UTC()

	ttl := w.cfg.NotFoundTTL
	if status.State == results.StateFound {
		ttl = w.cfg.FoundTTL
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := kv.SetJSON(ctx, w.store, stateKey(w.cfg.Provider, placeID), status, ttl); err != nil {
		w.logger.Warn("Enrichment", "State cache write failed", map[string]interface{}{
			"place_id": placeID,
			"error":    err.Error(),
		})
	}

	w.apply(requestID, set, placeID, status)
}

// apply patches the arena and publishes only when the state actually changed.
func (w *Worker) apply(requestID string, set *results.Set, placeID string, status results.ProviderStatus) {
	if _, changed := set.Patch(placeID, w.cfg.Provider, status); !changed {
		return
	}
	w.patcher.PublishPatch(requestID, placeID, w.cfg.Provider, status)
}

func (w *Worker) release(lock *kv.Lock) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		w.logger.Warn("Enrichment", "Failed to release lock", map[string]interface{}{"error": err.Error()})
	}
}

// Wait blocks until every scheduled job has finalized.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Close waits for running jobs and releases the pool.
func (w *Worker) Close() {
	w.wg.Wait()
	w.pool.Release()
}
