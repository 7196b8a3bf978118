// Package orchestrator runs the fixed stage sequence that turns one query into
// one ranked result set.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"ai-restaurant-search-be/internal/dto"
	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/places"
	"ai-restaurant-search-be/pkg/search/filters"
	"ai-restaurant-search-be/pkg/search/intent"
	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/narrator"
	"ai-restaurant-search-be/pkg/search/query"
	"ai-restaurant-search-be/pkg/search/ranking"
	"ai-restaurant-search-be/pkg/search/results"
	"ai-restaurant-search-be/pkg/search/route"
)

type Stage string

const (
	StageClassify       Stage = "CLASSIFY"
	StageRoute          Stage = "ROUTE"
	StageResolveFilters Stage = "RESOLVE_FILTERS"
	StageMapQuery       Stage = "MAP_QUERY"
	StageQueryProvider  Stage = "QUERY_PROVIDER"
	StageRankFilter     Stage = "RANK_FILTER"
	StageAssemble       Stage = "ASSEMBLE"
)

// Progress reported at stage boundaries.
const (
	ProgressClassified = 10
	ProgressRouted     = 25
	ProgressMapped     = 50
	ProgressFetched    = 80
	ProgressRanked     = 95
)

// ProgressFunc is called from pipeline goroutines and must be safe for
// concurrent use.
type ProgressFunc func(progress int, stage Stage)

type Request struct {
	RequestID    string
	Query        string
	UserLocation *route.LatLng
	UILanguage   string
}

// PlaceSearcher is the provider query stage.
type PlaceSearcher interface {
	Execute(ctx context.Context, q query.ProviderQuery) (places.Result, error)
}

// StateCache returns provider states already resolved for a place by earlier
// enrichment runs.
type StateCache interface {
	Cached(ctx context.Context, provider, placeID string) (results.ProviderStatus, bool)
}

type Config struct {
	DefaultRegion string
	Providers     []string
}

type Deps struct {
	Gate     *intent.Gate
	Resolver *intent.Resolver
	Filters  *filters.Resolver
	Mapper   *query.Mapper
	Places   PlaceSearcher
	Scorer   *ranking.CuisineScorer
	Narrator *narrator.Narrator
	States   StateCache
	Logger   logger.ILogger
}

type Orchestrator struct {
	Deps
	cfg Config
}

func New(deps Deps, cfg Config) *Orchestrator {
	return &Orchestrator{Deps: deps, cfg: cfg}
}

var tracer = otel.Tracer("ai-restaurant-search-be/pkg/search/orchestrator")

// Execute runs the pipeline. Terminal routes return a response carrying only
// an assist block. Any failure is a *PipelineError.
func (o *Orchestrator) Execute(ctx context.Context, req Request, progress ProgressFunc) (*dto.SearchResponse, error) {
	start := time.Now()
	if progress == nil {
		progress = func(int, Stage) {}
	}

	ctx, span := tracer.Start(ctx, "search.pipeline")
	span.SetAttributes(attribute.String("request_id", req.RequestID))
	defer span.End()

	lc := langctx.New(req.UILanguage, o.cfg.DefaultRegion)

	var gate intent.GateResult
	if err := o.guard(ctx, req, lc, StageClassify, func(ctx context.Context) error {
		gate = o.Gate.Classify(ctx, req.Query, lc)
		return nil
	}); err != nil {
		return nil, err
	}
	progress(ProgressClassified, StageClassify)

	var decision route.Decision
	if err := o.guard(ctx, req, lc, StageRoute, func(ctx context.Context) error {
		decision = o.Resolver.Resolve(ctx, intent.Input{Query: req.Query, HasLocation: req.UserLocation != nil}, gate, lc)
		return nil
	}); err != nil {
		return nil, err
	}
	progress(ProgressRouted, StageRoute)
	span.SetAttributes(attribute.String("route", string(decision.Kind)))

	if decision.Kind.Terminal() {
		return o.terminal(ctx, req, lc, decision, start), nil
	}

	var (
		resolved filters.Resolved
		pq       query.ProviderQuery
		fetched  places.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.guard(gctx, req, lc, StageResolveFilters, func(ctx context.Context) error {
			resolved = o.Filters.Resolve(ctx, req.Query)
			return nil
		})
	})
	g.Go(func() error {
		if err := o.guard(gctx, req, lc, StageMapQuery, func(ctx context.Context) error {
			var err error
			pq, err = o.Mapper.Map(ctx, decision, lc, req.UserLocation)
			return err
		}); err != nil {
			return err
		}
		progress(ProgressMapped, StageMapQuery)

		return o.guard(gctx, req, lc, StageQueryProvider, func(ctx context.Context) error {
			var err error
			fetched, err = o.Places.Execute(ctx, pq)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	progress(ProgressFetched, StageQueryProvider)

	var ranked []results.Item
	var order ranking.Order
	if err := o.guard(ctx, req, lc, StageRankFilter, func(ctx context.Context) error {
		ranked, order = o.rank(ctx, decision, resolved, fetched, req.UserLocation)
		return nil
	}); err != nil {
		return nil, err
	}
	progress(ProgressRanked, StageRankFilter)

	var resp *dto.SearchResponse
	if err := o.guard(ctx, req, lc, StageAssemble, func(ctx context.Context) error {
		resp = o.assemble(ctx, req, lc, decision, fetched, ranked, order, start)
		return nil
	}); err != nil {
		return nil, err
	}

	o.Logger.Info("Orchestrator", "Search pipeline completed", map[string]interface{}{
		"request_id": req.RequestID,
		"route":      decision.Kind,
		"results":    len(resp.Results),
		"retries":    fetched.Retries,
		"took_ms":    resp.Meta.TookMs,
	})
	return resp, nil
}

// guard runs one stage, converting errors and panics into a PipelineError.
func (o *Orchestrator) guard(ctx context.Context, req Request, lc *langctx.LangCtx, stage Stage, fn func(context.Context) error) (err error) {
	ctx, span := tracer.Start(ctx, "search.stage."+string(stage))
	stageStart := time.Now()
	defer func() {
		if r := recover(); r != nil {
			fields := map[string]interface{}{
				"request_id": req.RequestID,
				"stage":      stage,
				"panic":      fmt.Sprint(r),
				"stack":      string(debug.Stack()),
			}
			if v, ok := r.(langctx.InvariantViolation); ok {
				fields["invariant"] = v.Error()
			}
			o.Logger.Error("Orchestrator", "Stage panicked", fields)
			err = &PipelineError{
				Stage:    stage,
				Code:     narrator.CodeInternal,
				Message:  narrator.FailureText(lc.Assistant(), narrator.CodeInternal),
				Language: lc.Assistant(),
				Err:      fmt.Errorf("panic: %v", r),
			}
		}

		stageDuration.WithLabelValues(string(stage)).Observe(time.Since(stageStart).Seconds())
		if err != nil {
			stageFailures.WithLabelValues(string(stage)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := fn(ctx); err != nil {
		var pe *PipelineError
		if errors.As(err, &pe) {
			return pe
		}
		code := errorCode(err)
		o.Logger.Error("Orchestrator", "Stage failed", map[string]interface{}{
			"request_id": req.RequestID,
			"stage":      stage,
			"code":       code,
			"error":      err.Error(),
		})
		return &PipelineError{
			Stage:    stage,
			Code:     code,
			Message:  narrator.FailureText(lc.Assistant(), code),
			Language: lc.Assistant(),
			Err:      err,
		}
	}
	return nil
}

func (o *Orchestrator) terminal(ctx context.Context, req Request, lc *langctx.LangCtx, d route.Decision, start time.Time) *dto.SearchResponse {
	kind := narrator.KindClarify
	if d.Kind == route.Stop {
		kind = narrator.KindStop
	}
	msg := o.Narrator.Narrate(ctx, narrator.Request{
		Kind:       kind,
		Reason:     d.Reason,
		Language:   lc.Assistant(),
		Query:      req.Query,
		CuisineKey: d.CuisineKey,
	})

	return &dto.SearchResponse{
		RequestID: req.RequestID,
		Query:     req.Query,
		Results:   []results.Item{},
		Meta: dto.SearchMeta{
			Route:      d.Kind,
			CuisineKey: d.CuisineKey,
			Language:   lc.Snapshot(),
			TookMs:     time.Since(start).Milliseconds(),
		},
		Assist: &msg,
	}
}

func (o *Orchestrator) rank(ctx context.Context, d route.Decision, f filters.Resolved, fetched places.Result, userLocation *route.LatLng) ([]results.Item, ranking.Order) {
	origin := userLocation
	if fetched.Query.Center != nil && fetched.Query.Mode == query.ModeLandmark {
		origin = fetched.Query.Center
	}

	items := toItems(fetched.Places, origin)
	kept, filterCodes := ranking.Apply(items, f)

	order := ranking.SelectProfile(ranking.Signals{
		ProximityIntent:  d.Kind == route.Nearby || d.Kind == route.Landmark,
		HasCenter:        origin != nil,
		OpenNowRequested: f.OpenState == filters.OpenNow,
		BudgetIntent:     f.PriceIntent == filters.PriceBudget,
		QualityIntent:    f.QualityIntent,
	})

	scores, fallback := o.Scorer.Score(ctx, d.CuisineKey, kept)
	ranked := ranking.Score(kept, order, scores)

	order.ReasonCodes = append(order.ReasonCodes, filterCodes...)
	if scores != nil {
		order.ReasonCodes = append(order.ReasonCodes, "CUISINE_BOOST")
		if fallback {
			order.ReasonCodes = append(order.ReasonCodes, "CUISINE_TYPE_MATCH")
		}
	}
	if fetched.Relaxed {
		order.ReasonCodes = append(order.ReasonCodes, "RELAXED_REQUIRED_TERMS")
	}
	return ranked, order
}

func (o *Orchestrator) assemble(ctx context.Context, req Request, lc *langctx.LangCtx, d route.Decision, fetched places.Result,
	ranked []results.Item, order ranking.Order, start time.Time) *dto.SearchResponse {

	set := results.NewSet(o.cfg.Providers, ranked)
	if o.States != nil {
		for _, it := range ranked {
			for _, provider := range o.cfg.Providers {
				if status, ok := o.States.Cached(ctx, provider, it.PlaceID); ok {
					set.Patch(it.PlaceID, provider, status)
				}
			}
		}
	}

	return &dto.SearchResponse{
		RequestID: req.RequestID,
		Query:     req.Query,
		Results:   set.Items(),
		Meta: dto.SearchMeta{
			Route:      d.Kind,
			CuisineKey: d.CuisineKey,
			Retries:    fetched.Retries,
			Relaxed:    fetched.Relaxed,
			CacheHit:   fetched.CacheHit,
			Language:   lc.Snapshot(),
			Order:      &order,
			TookMs:     time.Since(start).Milliseconds(),
		},
	}
}

func toItems(ps []places.Place, origin *route.LatLng) []results.Item {
	items := make([]results.Item, 0, len(ps))
	for _, p := range ps {
		it := results.Item{
			PlaceID:     p.ID,
			Name:        p.Name,
			Address:     p.Address,
			Location:    p.Location,
			Rating:      p.Rating,
			ReviewCount: p.UserRatingCount,
			OpenNow:     p.OpenNow,
			Types:       p.Types,
		}
		if p.PriceLevel >= 0 {
			level := p.PriceLevel
			it.PriceLevel = &level
		}
		if origin != nil {
			d := route.DistanceMeters(*origin, p.Location)
			it.DistanceMeters = &d
		}
		items = append(items, it)
	}
	return items
}
