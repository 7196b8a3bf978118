package controller

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-restaurant-search-be/internal/dto"
	"ai-restaurant-search-be/internal/pkg/logger"
	"ai-restaurant-search-be/internal/pkg/serverutils"
	"ai-restaurant-search-be/internal/repository/memory"
	"ai-restaurant-search-be/internal/service"
	"ai-restaurant-search-be/pkg/jobstore"
	"ai-restaurant-search-be/pkg/kv"
	"ai-restaurant-search-be/pkg/search/results"
)

const testSecret = "controller-secret"

type queueRecorder struct {
	payloads [][]byte
}

func (q *queueRecorder) Publish(_ context.Context, payload []byte) error {
	q.payloads = append(q.payloads, payload)
	return nil
}

type fixture struct {
	app   *fiber.App
	jobs  *jobstore.Store
	queue *queueRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	jobs := jobstore.New(kv.NewMemoryStore(), jobstore.Config{})
	queue := &queueRecorder{}
	svc := service.NewSearchService(jobs, queue, memory.NewSearchHistoryRepository(), logger.NewNop())

	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewSearchController(svc, serverutils.NewJwtMiddleware(testSecret)).RegisterRoutes(app.Group("/api"))
	return &fixture{app: app, jobs: jobs, queue: queue}
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func (f *fixture) do(t *testing.T, method, path, body, userID string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", bearer(t, userID))
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, "POST", "/api/search", `{"query":"italian near me","userLocation":{"lat":32.08,"lng":34.78}}`, "user-1")
	require.Equal(t, fiber.StatusAccepted, status)
	requestID, _ := body["requestId"].(string)
	require.NotEmpty(t, requestID)
	assert.Equal(t, "/api/search/"+requestID+"/result", body["resultUrl"])

	require.Len(t, f.queue.payloads, 1)
	var job dto.SearchJobMessage
	require.NoError(t, json.Unmarshal(f.queue.payloads[0], &job))
	assert.Equal(t, "user-1", job.OwnerID)
	require.NotNil(t, job.UserLocation)
	assert.InDelta(t, 32.08, job.UserLocation.Lat, 1e-9)

	rec, err := f.jobs.Get(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusPending, rec.Status)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, "POST", "/api/search", `{"query":""}`, "user-1")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = f.do(t, "POST", "/api/search", `{"query":`, "user-1")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = f.do(t, "POST", "/api/search", `{"query":"pizza"}`, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Empty(t, f.queue.payloads)
}

func TestGetResultLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.jobs.Create(ctx, "req-1", "user-1", "pizza")
	require.NoError(t, err)

	status, body := f.do(t, "GET", "/api/search/req-1/result", "", "user-1")
	assert.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, "PENDING", body["status"])

	require.NoError(t, f.jobs.SetRunning(ctx, "req-1"))
	require.NoError(t, f.jobs.SetProgress(ctx, "req-1", 50, "MAP_QUERY"))
	status, body = f.do(t, "GET", "/api/search/req-1/result", "", "user-1")
	assert.Equal(t, fiber.StatusAccepted, status)
	assert.EqualValues(t, 50, body["progress"])

	require.NoError(t, f.jobs.SetResult(ctx, "req-1", dto.SearchResponse{
		RequestID: "req-1",
		Query:     "pizza",
		Results:   []results.Item{{PlaceID: "p1", Name: "Luigi"}},
	}))
	status, body = f.do(t, "GET", "/api/search/req-1/result", "", "user-1")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["results"], 1)
}

func TestGetResultFailedIsNeverServerError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.jobs.Create(ctx, "req-1", "user-1", "pizza")
	require.NoError(t, err)
	require.NoError(t, f.jobs.SetRunning(ctx, "req-1"))
	require.NoError(t, f.jobs.SetError(ctx, "req-1", "PROVIDER_UNAVAILABLE", "The search service is unavailable"))

	status, body := f.do(t, "GET", "/api/search/req-1/result", "", "user-1")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "DONE_FAILED", body["status"])
	assert.Equal(t, "PROVIDER_UNAVAILABLE", body["code"])
	assert.Equal(t, true, body["terminal"])
}

func TestGetResultNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.jobs.Create(context.Background(), "req-1", "user-1", "pizza")
	require.NoError(t, err)

	status, body := f.do(t, "GET", "/api/search/req-1/result", "", "someone-else")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, false, body["success"])

	status, _ = f.do(t, "GET", "/api/search/nope/result", "", "user-1")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	f.do(t, "POST", "/api/search", `{"query":"sushi"}`, "user-1")
	f.do(t, "POST", "/api/search", `{"query":"falafel"}`, "user-2")

	status, body := f.do(t, "GET", "/api/search/history?limit=5", "", "user-1")
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["total"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "sushi", items[0].(map[string]interface{})["query"])
}
