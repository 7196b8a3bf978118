package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Keys       APIKeys
	Ai         AIConfig
	Search     SearchConfig
	Enrichment EnrichmentConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	GatewayLogFilePath string
	CorsAllowedOrigins string
	NatsURL            string // empty: in-process event bus
	RedisURL           string // empty: in-process cache and lock store
	JWTSecret          string
	TracingEnabled     bool
	OTLPEndpoint       string
}

type DatabaseConfig struct {
	Connection string // empty: search history disabled
}

type APIKeys struct {
	Places      string
	Partner     string
	HuggingFace string
}

type AIConfig struct {
	LLMProvider        string // "ollama", "huggingface" or "disabled"
	LLMModel           string // e.g. "llama3", "qwen2.5"
	OllamaBaseURL      string
	HuggingFaceBaseURL string
	RequestTimeout     time.Duration
	GateTimeout        time.Duration
	IntentTimeout      time.Duration
	FiltersTimeout     time.Duration
	NarratorTimeout    time.Duration
	CuisineTimeout     time.Duration
	CuisineBatchSize   int
}

type SearchConfig struct {
	JobTimeout           time.Duration
	ProviderBaseURL      string
	ProviderTimeout      time.Duration
	MaxRetries           int
	BackoffBase          time.Duration
	BackoffMax           time.Duration
	MaxPages             int
	MaxResults           int
	CacheTTL             time.Duration
	LockTTL              time.Duration
	LockWait             time.Duration
	LandmarkCacheTTL     time.Duration
	NearbyRadiusMeters   int
	LandmarkRadiusMeters int
	DefaultRegion        string
	ActiveJobTTL         time.Duration
	ResultTTL            time.Duration
	QueueTopic           string
	Workers              int
}

type EnrichmentConfig struct {
	Enabled       bool
	Provider      string
	BaseURL       string
	JobTimeout    time.Duration
	LookupTimeout time.Duration
	LockTTL       time.Duration
	FoundTTL      time.Duration
	NotFoundTTL   time.Duration
	PoolSize      int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	cfg := &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			GatewayLogFilePath: getEnv("GATEWAY_LOG_FILE_PATH", "logs/gateway.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			TracingEnabled:     getEnvAsBool("OTEL_ENABLED", false),
			OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			Places:      getEnv("PLACES_API_KEY", ""),
			Partner:     getEnv("PARTNER_API_KEY", ""),
			HuggingFace: getEnv("HUGGINGFACE_API_KEY", ""),
		},
		Ai: AIConfig{
			LLMProvider:        getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:           getEnv("LLM_MODEL", "llama3"),
			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			HuggingFaceBaseURL: getEnv("HUGGINGFACE_BASE_URL", ""),
			RequestTimeout:     getEnvAsDuration("LLM_REQUEST_TIMEOUT", 10*time.Second),
			GateTimeout:        getEnvAsDuration("LLM_GATE_TIMEOUT", 2*time.Second),
			IntentTimeout:      getEnvAsDuration("LLM_INTENT_TIMEOUT", 3*time.Second),
			FiltersTimeout:     getEnvAsDuration("LLM_FILTERS_TIMEOUT", 2*time.Second),
			NarratorTimeout:    getEnvAsDuration("LLM_NARRATOR_TIMEOUT", 3*time.Second),
			CuisineTimeout:     getEnvAsDuration("LLM_CUISINE_TIMEOUT", 3*time.Second),
			CuisineBatchSize:   getEnvAsInt("LLM_CUISINE_BATCH_SIZE", 10),
		},
		Search: SearchConfig{
			JobTimeout:           getEnvAsDuration("SEARCH_JOB_TIMEOUT", 30*time.Second),
			ProviderBaseURL:      getEnv("PLACES_BASE_URL", "https://places.googleapis.com"),
			ProviderTimeout:      getEnvAsDuration("SEARCH_PROVIDER_TIMEOUT", 5*time.Second),
			MaxRetries:           getEnvAsInt("SEARCH_PROVIDER_MAX_RETRIES", 2),
			BackoffBase:          getEnvAsDuration("SEARCH_BACKOFF_BASE", 250*time.Millisecond),
			BackoffMax:           getEnvAsDuration("SEARCH_BACKOFF_MAX", 2*time.Second),
			MaxPages:             getEnvAsInt("SEARCH_MAX_PAGES", 3),
			MaxResults:           getEnvAsInt("SEARCH_MAX_RESULTS", 20),
			CacheTTL:             getEnvAsDuration("SEARCH_CACHE_TTL", 10*time.Minute),
			LockTTL:              getEnvAsDuration("SEARCH_LOCK_TTL", 15*time.Second),
			LockWait:             getEnvAsDuration("SEARCH_LOCK_WAIT", 3*time.Second),
			LandmarkCacheTTL:     getEnvAsDuration("SEARCH_LANDMARK_CACHE_TTL", 24*time.Hour),
			NearbyRadiusMeters:   getEnvAsInt("SEARCH_NEARBY_RADIUS_METERS", 1500),
			LandmarkRadiusMeters: getEnvAsInt("SEARCH_LANDMARK_RADIUS_METERS", 1000),
			DefaultRegion:        getEnv("SEARCH_DEFAULT_REGION", "US"),
			ActiveJobTTL:         getEnvAsDuration("SEARCH_ACTIVE_JOB_TTL", 10*time.Minute),
			ResultTTL:            getEnvAsDuration("SEARCH_RESULT_TTL", time.Hour),
			QueueTopic:           getEnv("SEARCH_QUEUE_TOPIC", "search.requested"),
			Workers:              getEnvAsInt("SEARCH_WORKERS", 8),
		},
		Enrichment: EnrichmentConfig{
			Enabled:       getEnvAsBool("ENRICHMENT_ENABLED", true),
			Provider:      getEnv("ENRICHMENT_PROVIDER", "wolt"),
			BaseURL:       getEnv("ENRICHMENT_BASE_URL", "http://localhost:8089"),
			JobTimeout:    getEnvAsDuration("ENRICHMENT_JOB_TIMEOUT", 8*time.Second),
			LookupTimeout: getEnvAsDuration("ENRICHMENT_LOOKUP_TIMEOUT", 3*time.Second),
			LockTTL:       getEnvAsDuration("ENRICHMENT_LOCK_TTL", 15*time.Second),
			FoundTTL:      getEnvAsDuration("ENRICHMENT_FOUND_TTL", 7*24*time.Hour),
			NotFoundTTL:   getEnvAsDuration("ENRICHMENT_NOT_FOUND_TTL", 24*time.Hour),
			PoolSize:      getEnvAsInt("ENRICHMENT_POOL_SIZE", 16),
		},
	}

	for _, warning := range cfg.Validate() {
		log.Printf("[WARN] config: %s", warning)
	}
	return cfg
}

// Validate clamps inner timeouts so the job deadline always dominates. It
// returns one line per adjustment.
func (c *Config) Validate() []string {
	var warnings []string
	clamp := func(name string, d *time.Duration, limit time.Duration) {
		if *d <= 0 || *d >= limit {
			warnings = append(warnings, fmt.Sprintf("%s=%s clamped below %s", name, *d, limit))
			*d = limit / 2
		}
	}

	if c.Search.JobTimeout <= 0 {
		warnings = append(warnings, "SEARCH_JOB_TIMEOUT must be positive, using 30s")
		c.Search.JobTimeout = 30 * time.Second
	}
	job := c.Search.JobTimeout
	clamp("SEARCH_PROVIDER_TIMEOUT", &c.Search.ProviderTimeout, job)
	clamp("SEARCH_LOCK_WAIT", &c.Search.LockWait, job)
	clamp("LLM_REQUEST_TIMEOUT", &c.Ai.RequestTimeout, job)
	clamp("LLM_GATE_TIMEOUT", &c.Ai.GateTimeout, job)
	clamp("LLM_INTENT_TIMEOUT", &c.Ai.IntentTimeout, job)
	clamp("LLM_FILTERS_TIMEOUT", &c.Ai.FiltersTimeout, job)
	clamp("LLM_NARRATOR_TIMEOUT", &c.Ai.NarratorTimeout, job)
	clamp("LLM_CUISINE_TIMEOUT", &c.Ai.CuisineTimeout, job)
	clamp("ENRICHMENT_LOOKUP_TIMEOUT", &c.Enrichment.LookupTimeout, c.Enrichment.JobTimeout)

	if c.Search.MaxRetries < 0 {
		warnings = append(warnings, "SEARCH_PROVIDER_MAX_RETRIES must not be negative, using 0")
		c.Search.MaxRetries = 0
	}
	if c.Search.ResultTTL < c.Search.ActiveJobTTL {
		warnings = append(warnings, "SEARCH_RESULT_TTL raised to SEARCH_ACTIVE_JOB_TTL")
		c.Search.ResultTTL = c.Search.ActiveJobTTL
	}
	if c.App.JWTSecret == "" {
		warnings = append(warnings, "JWT_SECRET is empty, every authenticated request will be rejected")
	}
	return warnings
}

// LLMBaseURL is the endpoint of the configured LLM backend.
func (a AIConfig) LLMBaseURL() string {
	if a.LLMProvider == "huggingface" {
		return a.HuggingFaceBaseURL
	}
	return a.OllamaBaseURL
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
