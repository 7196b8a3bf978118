package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"ai-restaurant-search-be/internal/dto"
	"ai-restaurant-search-be/internal/model"
	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/internal/repository"
	"ai-restaurant-search-be/internal/websocket"
	"ai-restaurant-search-be/pkg/events"
	"ai-restaurant-search-be/pkg/jobstore"
	"ai-restaurant-search-be/pkg/retry"
	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/narrator"
	"ai-restaurant-search-be/pkg/search/orchestrator"
	"ai-restaurant-search-be/pkg/search/results"
)

// Pipeline turns one request into one response.
type Pipeline interface {
	Execute(ctx context.Context, req orchestrator.Request, progress orchestrator.ProgressFunc) (*dto.SearchResponse, error)
}

type Narrator interface {
	Narrate(ctx context.Context, req narrator.Request) narrator.Message
}

// Enricher hands finished results to the enrichment workers.
type Enricher interface {
	Dispatch(ctx context.Context, requestID string, items []results.Item) error
}

type RunnerConfig struct {
	JobTimeout      time.Duration
	NarrationBudget time.Duration
	// StoreRetry backs off lifecycle writes that hit a KV outage.
	StoreRetry retry.Config
}

// SearchRunner executes queued jobs. It is the only writer of a job's
// terminal state.
type SearchRunner struct {
	jobs     *jobstore.Store
	pipeline Pipeline
	narrator Narrator
	gateway  websocket.Publisher
	enricher Enricher
	events   events.Publisher
	history  repository.SearchHistoryRepository
	cfg      RunnerConfig
	logger   logger.ILogger
}

// NewSearchRunner wires a runner. enricher, eventPublisher and history may be nil.
func NewSearchRunner(
	jobs *jobstore.Store,
	pipeline Pipeline,
	narr Narrator,
	gateway websocket.Publisher,
	enricher Enricher,
	eventPublisher events.Publisher,
	history repository.SearchHistoryRepository,
	cfg RunnerConfig,
	log logger.ILogger,
) *SearchRunner {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.NarrationBudget <= 0 {
		cfg.NarrationBudget = 5 * time.Second
	}
	if cfg.StoreRetry.BaseDelay <= 0 {
		cfg.StoreRetry = retry.Config{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	}
	return &SearchRunner{
		jobs:     jobs,
		pipeline: pipeline,
		narrator: narr,
		gateway:  gateway,
		enricher: enricher,
		events:   eventPublisher,
		history:  history,
		cfg:      cfg,
		logger:   log,
	}
}

// Run executes one job under the job deadline and always leaves it terminal.
func (r *SearchRunner) Run(job dto.SearchJobMessage) {
	start := time.Now()
	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 5*time.Second)
	err := r.write(setupCtx, func(ctx context.Context) error {
		return r.jobs.SetRunning(ctx, job.RequestID)
	})
	cancelSetup()
	if err != nil {
		if lifecycleRejected(err) {
			// Already terminal or evicted: another delivery owns it
			r.logger.Warn("SearchRunner", "Skipping job", map[string]interface{}{
				"request_id": job.RequestID,
				"error":      err.Error(),
			})
			return
		}
		r.logger.Error("SearchRunner", "Failed to mark job running", map[string]interface{}{
			"request_id": job.RequestID,
			"error":      err.Error(),
		})
		r.fail(job, r.internalError(job, fmt.Errorf("mark running: %w", err)), start)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.JobTimeout)
	defer cancel()

	resp, err := r.execute(ctx, job)
	if err != nil {
		r.fail(job, err, start)
		return
	}
	r.succeed(job, resp, start)
}

func (r *SearchRunner) execute(ctx context.Context, job dto.SearchJobMessage) (resp *dto.SearchResponse, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("SearchRunner", "Pipeline panicked", map[string]interface{}{
				"request_id": job.RequestID,
				"panic":      fmt.Sprint(rec),
				"stack":      string(debug.Stack()),
			})
			err = r.internalError(job, fmt.Errorf("panic: %v", rec))
		}
	}()

	progress := func(p int, stage orchestrator.Stage) {
		if err := r.jobs.SetProgress(ctx, job.RequestID, p, string(stage)); err != nil {
			r.logger.Warn("SearchRunner", "Failed to store progress", map[string]interface{}{
				"request_id": job.RequestID,
				"error":      err.Error(),
			})
		}
		r.gateway.PublishProgress(job.RequestID, p, string(stage))
	}

	return r.pipeline.Execute(ctx, orchestrator.Request{
		RequestID:    job.RequestID,
		Query:        job.Query,
		UserLocation: job.UserLocation,
		UILanguage:   job.UILanguage,
	}, progress)
}

// terminalContext outlives the job deadline so the final write always lands.
func terminalContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// lifecycleRejected reports errors that no retry can fix: the job moved on or
// expired.
func lifecycleRejected(err error) bool {
	return errors.Is(err, jobstore.ErrInvalidTransition) || errors.Is(err, jobstore.ErrNotFound)
}

// write retries a lifecycle write through transient store failures.
func (r *SearchRunner) write(ctx context.Context, fn func(ctx context.Context) error) error {
	_, retries, err := retry.Do(ctx, r.cfg.StoreRetry, func(err error) bool {
		return !lifecycleRejected(err)
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if retries > 0 && err == nil {
		r.logger.Info("SearchRunner", "Job store write recovered", map[string]interface{}{
			"retries": retries,
		})
	}
	return err
}

func (r *SearchRunner) internalError(job dto.SearchJobMessage, err error) *orchestrator.PipelineError {
	lang := langctx.Normalize(job.UILanguage)
	return &orchestrator.PipelineError{
		Code:     narrator.CodeInternal,
		Message:  narrator.FailureText(lang, narrator.CodeInternal),
		Language: lang,
		Err:      err,
	}
}

func (r *SearchRunner) fail(job dto.SearchJobMessage, err error, start time.Time) {
	lang := langctx.Normalize(job.UILanguage)
	code := narrator.CodeInternal
	message := narrator.FailureText(lang, code)
	var stage string

	var pe *orchestrator.PipelineError
	switch {
	case errors.As(err, &pe):
		code, message, stage = pe.Code, pe.Message, string(pe.Stage)
		if pe.Language != "" {
			lang = pe.Language
		}
	case errors.Is(err, context.DeadlineExceeded):
		code = narrator.CodeTimeout
		message = narrator.FailureText(lang, code)
	}

	ctx, cancel := terminalContext()
	defer cancel()

	if serr := r.write(ctx, func(ctx context.Context) error {
		return r.jobs.SetError(ctx, job.RequestID, code, message)
	}); serr != nil {
		r.logger.Error("SearchRunner", "Failed to store job failure", map[string]interface{}{
			"request_id": job.RequestID,
			"error":      serr.Error(),
		})
	}
	r.gateway.PublishReady(job.RequestID, jobstore.StatusDoneFailed)
	r.narrateFailure(job, lang, code)

	r.logger.Warn("SearchRunner", "Search failed", map[string]interface{}{
		"request_id": job.RequestID,
		"stage":      stage,
		"code":       code,
		"error":      err.Error(),
		"took_ms":    time.Since(start).Milliseconds(),
	})

	r.publishEvent(ctx, events.SearchFailed{
		RequestID:  job.RequestID,
		OwnerID:    job.OwnerID,
		Query:      job.Query,
		Stage:      stage,
		Code:       code,
		OccurredAt: time.Now().UTC(),
	})
	r.recordHistory(ctx, job, string(jobstore.StatusDoneFailed), "", 0, code, nil)
}

func (r *SearchRunner) succeed(job dto.SearchJobMessage, resp *dto.SearchResponse, start time.Time) {
	ctx, cancel := terminalContext()
	defer cancel()

	err := r.write(ctx, func(ctx context.Context) error {
		return r.jobs.SetResult(ctx, job.RequestID, resp)
	})
	if err != nil {
		r.logger.Error("SearchRunner", "Failed to store job result", map[string]interface{}{
			"request_id": job.RequestID,
			"error":      err.Error(),
		})
		if !lifecycleRejected(err) {
			r.fail(job, r.internalError(job, fmt.Errorf("store result: %w", err)), start)
		}
		return
	}
	r.gateway.PublishReady(job.RequestID, jobstore.StatusDoneSuccess)

	r.narrate(job, resp)

	if r.enricher != nil && len(resp.Results) > 0 {
		if err := r.enricher.Dispatch(ctx, job.RequestID, resp.Results); err != nil {
			r.logger.Warn("SearchRunner", "Failed to dispatch enrichment", map[string]interface{}{
				"request_id": job.RequestID,
				"error":      err.Error(),
			})
		}
	}

	r.publishEvent(ctx, events.SearchCompleted{
		RequestID:   job.RequestID,
		OwnerID:     job.OwnerID,
		Query:       job.Query,
		Route:       string(resp.Meta.Route),
		ResultCount: len(resp.Results),
		Retries:     resp.Meta.Retries,
		TookMs:      time.Since(start).Milliseconds(),
		OccurredAt:  time.Now().UTC(),
	})
	r.recordHistory(ctx, job, string(jobstore.StatusDoneSuccess), string(resp.Meta.Route), len(resp.Results), "", &resp.Meta)
}

// narrate pushes the assistant message on the assistant channel. Terminal
// routes already carry one; searches get a summary written after the fact.
func (r *SearchRunner) narrate(job dto.SearchJobMessage, resp *dto.SearchResponse) {
	if resp.Assist != nil {
		r.gateway.PublishAssistant(job.RequestID, *resp.Assist)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.NarrationBudget)
	defer cancel()

	top := make([]string, 0, 3)
	for i := 0; i < len(resp.Results) && i < 3; i++ {
		top = append(top, resp.Results[i].Name)
	}
	msg := r.narrator.Narrate(ctx, narrator.Request{
		Kind:        narrator.KindSummary,
		Language:    resp.Meta.Language.Assistant,
		Query:       job.Query,
		ResultCount: len(resp.Results),
		TopNames:    top,
		CuisineKey:  resp.Meta.CuisineKey,
	})
	r.gateway.PublishAssistant(job.RequestID, msg)
}

func (r *SearchRunner) narrateFailure(job dto.SearchJobMessage, lang langctx.Language, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.NarrationBudget)
	defer cancel()

	msg := r.narrator.Narrate(ctx, narrator.Request{
		Kind:        narrator.KindFailure,
		Language:    lang,
		Query:       job.Query,
		FailureCode: code,
	})
	r.gateway.PublishAssistant(job.RequestID, msg)
}

func (r *SearchRunner) publishEvent(ctx context.Context, evt events.Event) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, evt); err != nil {
		r.logger.Warn("SearchRunner", "Failed to publish lifecycle event", map[string]interface{}{
			"event": evt.EventType(),
			"error": err.Error(),
		})
	}
}

func (r *SearchRunner) recordHistory(ctx context.Context, job dto.SearchJobMessage, status, route string, count int, code string, meta *dto.SearchMeta) {
	if r.history == nil {
		return
	}
	now := time.Now().UTC()
	entry := &model.SearchHistory{
		RequestID:   job.RequestID,
		OwnerID:     job.OwnerID,
		Query:       job.Query,
		Route:       route,
		Status:      status,
		ResultCount: count,
		ErrorCode:   code,
		CompletedAt: &now,
	}
	if meta != nil {
		if raw, err := json.Marshal(meta); err == nil {
			entry.Meta = raw
		}
	}
	if err := r.history.Save(ctx, entry); err != nil {
		r.logger.Warn("SearchRunner", "Failed to record search history", map[string]interface{}{
			"request_id": job.RequestID,
			"error":      err.Error(),
		})
	}
}
