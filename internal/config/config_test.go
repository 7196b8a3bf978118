package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAreValid(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	cfg := Load()

	assert.Empty(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Search.JobTimeout)
	assert.Equal(t, "search.requested", cfg.Search.QueueTopic)
	assert.Less(t, cfg.Search.ProviderTimeout, cfg.Search.JobTimeout)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SEARCH_JOB_TIMEOUT", "20s")
	t.Setenv("SEARCH_MAX_RESULTS", "7")
	t.Setenv("ENRICHMENT_ENABLED", "false")
	t.Setenv("SEARCH_NEARBY_RADIUS_METERS", "not-a-number")

	cfg := Load()

	assert.Equal(t, 20*time.Second, cfg.Search.JobTimeout)
	assert.Equal(t, 7, cfg.Search.MaxResults)
	assert.False(t, cfg.Enrichment.Enabled)
	assert.Equal(t, 1500, cfg.Search.NearbyRadiusMeters)
}

func TestValidateClampsInnerTimeouts(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	cfg := Load()
	cfg.Search.JobTimeout = 4 * time.Second
	cfg.Search.ProviderTimeout = 10 * time.Second
	cfg.Ai.RequestTimeout = time.Second
	cfg.Ai.NarratorTimeout = 0
	cfg.Enrichment.LookupTimeout = cfg.Enrichment.JobTimeout

	warnings := cfg.Validate()

	require.Len(t, warnings, 3)
	assert.Equal(t, 2*time.Second, cfg.Search.ProviderTimeout)
	assert.Equal(t, 2*time.Second, cfg.Ai.NarratorTimeout)
	assert.Less(t, cfg.Enrichment.LookupTimeout, cfg.Enrichment.JobTimeout)
}

func TestValidateRepairsJobTimeoutAndTTLs(t *testing.T) {
	cfg := Load()
	cfg.App.JWTSecret = ""
	cfg.Search.JobTimeout = 0
	cfg.Search.MaxRetries = -1
	cfg.Search.ResultTTL = time.Second

	warnings := cfg.Validate()

	assert.Equal(t, 30*time.Second, cfg.Search.JobTimeout)
	assert.Zero(t, cfg.Search.MaxRetries)
	assert.Equal(t, cfg.Search.ActiveJobTTL, cfg.Search.ResultTTL)
	assert.Len(t, warnings, 4)
}
