package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"ai-restaurant-search-be/internal/config"
	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/pkg/kv"
	"ai-restaurant-search-be/pkg/llm/factory"
	"ai-restaurant-search-be/pkg/places"
	"ai-restaurant-search-be/pkg/search/intent"
	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/query"
	"ai-restaurant-search-be/pkg/search/route"

	"github.com/fatih/color"
)

// Prints how a query is classified and which provider query it maps to,
// without running the provider search.
//
//	go run ./cmd/classify -lang he -lat 32.08 -lng 34.78 "סושי לידי"
func main() {
	uiLang := flag.String("lang", "en", "UI language hint")
	lat := flag.Float64("lat", 0, "user latitude")
	lng := flag.Float64("lng", 0, "user longitude")
	verbose := flag.Bool("v", false, "log to stdout")
	flag.Parse()

	q := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if q == "" {
		fmt.Fprintln(os.Stderr, "usage: classify [-lang en] [-lat 0 -lng 0] <query>")
		os.Exit(2)
	}

	cfg := config.Load()
	var sysLogger logger.ILogger = logger.NewNop()
	if *verbose {
		sysLogger = logger.NewZapLogger(cfg.App.LogFilePath, false)
	}

	llmProvider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, cfg.Ai.LLMBaseURL(), cfg.Keys.HuggingFace, cfg.Ai.RequestTimeout)
	if err != nil {
		log.Fatalf("LLM Error: %v", err)
	}

	var userLocation *route.LatLng
	if *lat != 0 || *lng != 0 {
		userLocation = &route.LatLng{Lat: *lat, Lng: *lng}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Search.JobTimeout)
	defer cancel()

	lc := langctx.New(*uiLang, cfg.Search.DefaultRegion)
	start := time.Now()

	gate := intent.NewGate(llmProvider, cfg.Ai.GateTimeout, sysLogger).Classify(ctx, q, lc)
	decision := intent.NewResolver(llmProvider, cfg.Ai.IntentTimeout, sysLogger).
		Resolve(ctx, intent.Input{Query: q, HasLocation: userLocation != nil}, gate, lc)

	out := map[string]interface{}{
		"gate":     gate,
		"decision": decision,
		"language": lc.Snapshot(),
	}

	if !decision.Kind.Terminal() {
		mapper := query.NewMapper(places.NewClient(cfg.Keys.Places, cfg.Search.ProviderBaseURL), kv.NewMemoryStore(), query.MapperConfig{
			NearbyRadiusMeters:   cfg.Search.NearbyRadiusMeters,
			LandmarkRadiusMeters: cfg.Search.LandmarkRadiusMeters,
			LandmarkCacheTTL:     cfg.Search.LandmarkCacheTTL,
		}, sysLogger)
		pq, err := mapper.Map(ctx, decision, lc, userLocation)
		if err != nil {
			out["mapError"] = err.Error()
		} else {
			out["providerQuery"] = pq
			out["cacheKey"] = pq.CacheKey()
		}
	}
	took := time.Since(start)
	out["took"] = took.String()

	printSummary(gate, decision, took)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal(err)
	}
}

// printSummary writes a one-line verdict to stderr so stdout stays valid JSON.
func printSummary(gate intent.GateResult, d route.Decision, took time.Duration) {
	routeColor := color.New(color.FgGreen, color.Bold)
	switch d.Kind {
	case route.Clarify:
		routeColor = color.New(color.FgYellow, color.Bold)
	case route.Stop:
		routeColor = color.New(color.FgRed, color.Bold)
	}

	w := color.Error
	fmt.Fprintf(w, "%s %s", color.CyanString("route:"), routeColor.Sprint(d.Kind))
	if d.Reason != route.ReasonNone {
		fmt.Fprintf(w, " (%s)", d.Reason)
	}
	if d.CuisineKey != "" {
		fmt.Fprintf(w, "  %s %s", color.CyanString("cuisine:"), d.CuisineKey)
	}
	fmt.Fprintf(w, "  %s %s", color.CyanString("food:"), gate.Signal)
	if gate.Fallback || d.Fallback {
		fmt.Fprint(w, color.YellowString("  [fallback]"))
	}
	fmt.Fprintf(w, "  [%s]\n", took.Round(time.Millisecond))
}
