package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"redink-api/internal/application/brand"
	"redink-api/internal/application/content"
	"redink-api/internal/application/generation"
	"redink-api/internal/application/history"
	"redink-api/internal/application/outline"
	"redink-api/internal/config"
	"redink-api/internal/infrastructure/linkparser"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/infrastructure/persistence/memory"
	"redink-api/internal/infrastructure/persistence/sqlstore"
	"redink-api/internal/infrastructure/storage"
	"redink-api/internal/interfaces/http/handler"
	"redink-api/internal/interfaces/http/middleware"
	"redink-api/internal/workflow/prompt"
)

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, int, error) {
	return false, 0, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "redink-api"
	cfg.App.Env = "test"
	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.Metrics.Path = "/metrics"
	return cfg
}

func newTestRouter(t *testing.T, cfg *config.Config, limiter middleware.RateLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sqlstore.NewSQLiteMemory("router_" + name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	images, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	brandStore, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	factory := llm.NewEinoFactory(&config.LLMConfig{
		DefaultProvider: "mock",
		Providers:       map[string]config.ProviderConfig{"mock": {Type: "mock"}},
	})
	text := llm.NewTextClient(factory, "")
	prompts := prompt.NewRegistry()
	links := linkparser.New()

	brands := brand.NewService(brand.Deps{
		Repo:    sqlstore.NewBrandRepository(db),
		Store:   brandStore,
		Text:    text,
		Prompts: prompts,
		Fetcher: links,
	})
	gen := generation.NewService(generation.Deps{
		Provider: llm.NewMockImageProvider("1024x1536"),
		Store:    images,
		Tasks:    memory.NewTaskStore(0),
		Prompts:  prompts,
		Styles:   brands,
		Logos:    brands,
	}, generation.Options{MaxConcurrency: 2})

	handlers := Handlers{
		Health:     handler.NewHealthHandler(db, nil),
		Creation:   handler.NewCreationHandler(outline.NewService(text, prompts, nil), content.NewService(text, prompts), links),
		Generation: handler.NewGenerationHandler(gen),
		History:    handler.NewHistoryHandler(history.NewService(sqlstore.NewHistoryRepository(db), images)),
		Brand:      handler.NewBrandHandler(brands),
	}
	return New(cfg, handlers, limiter).Engine()
}

func do(t *testing.T, engine *gin.Engine, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)

	w := do(t, engine, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode(t, w)["success"])

	w = do(t, engine, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, engine, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHistoryRoutes(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)

	body := map[string]any{
		"topic": "早起",
		"outline": map[string]any{
			"raw": "[封面]\n早起\n<page>\n[内容]\n闹钟",
			"pages": []map[string]any{
				{"index": 0, "type": "cover", "content": "早起"},
				{"index": 1, "type": "content", "content": "闹钟"},
			},
		},
	}
	w := do(t, engine, http.MethodPost, "/api/history", body, handler.IdempotencyKeyHeader, "tok-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode(t, w)
	require.Equal(t, true, first["created"])
	id, _ := first["record_id"].(string)
	require.NotEmpty(t, id)

	w = do(t, engine, http.MethodPost, "/api/history", body, handler.IdempotencyKeyHeader, "tok-1")
	again := decode(t, w)
	require.Equal(t, id, again["record_id"])
	require.Equal(t, false, again["created"])

	w = do(t, engine, http.MethodGet, "/api/history/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	record := decode(t, w)["record"].(map[string]any)
	require.Equal(t, "早起", record["title"])

	w = do(t, engine, http.MethodGet, "/api/history/"+id+"/exists", nil)
	require.Equal(t, true, decode(t, w)["exists"])

	w = do(t, engine, http.MethodGet, "/api/history/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, false, decode(t, w)["success"])

	w = do(t, engine, http.MethodGet, "/api/history/search", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, engine, http.MethodGet, "/api/history?page_size=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)
	require.EqualValues(t, 1, list["total"])
	require.EqualValues(t, 100, list["page_size"])
}

func TestOutlineAndContent(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)

	w := do(t, engine, http.MethodPost, "/api/outline", map[string]any{"topic": "早起"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	require.Len(t, out["pages"], 4)
	require.Equal(t, false, out["has_images"])

	w = do(t, engine, http.MethodPost, "/api/outline", map[string]any{"topic": " "})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, engine, http.MethodPost, "/api/content", map[string]any{"topic": "咖啡", "outline": "[封面]\n咖啡"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	require.Len(t, res["titles"], 3)
	require.Equal(t, []any{"咖啡", "干货", "分享"}, res["tags"])
}

func TestGenerateStreamAndImages(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)

	w := do(t, engine, http.MethodPost, "/api/generate", map[string]any{
		"task_id": "task_0000abcd",
		"pages": []map[string]any{
			{"index": 0, "type": "cover", "content": "早起"},
			{"index": 1, "type": "content", "content": "闹钟"},
		},
		"full_outline": "[封面]\n早起\n<page>\n[内容]\n闹钟",
		"user_topic":   "早起",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	stream := w.Body.String()
	require.Contains(t, stream, "event:complete")
	require.Contains(t, stream, "event:finish")
	require.Contains(t, stream, "/api/images/task_0000abcd/0.png")

	w = do(t, engine, http.MethodGet, "/api/task/task_0000abcd", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode(t, w)["has_cover"])

	w = do(t, engine, http.MethodGet, "/api/images/task_0000abcd/0.png?thumbnail=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Body.Bytes())

	w = do(t, engine, http.MethodGet, "/api/images/task_0000abcd/9.png", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, engine, http.MethodPost, "/api/retry", map[string]any{"task_id": "task_0000abcd"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBrandRoutes(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)

	w := do(t, engine, http.MethodGet, "/api/brands/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, decode(t, w)["brand"])

	w = do(t, engine, http.MethodPost, "/api/brands", map[string]any{"name": "红墨"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	created := decode(t, w)["brand"].(map[string]any)
	id := created["id"].(string)

	w = do(t, engine, http.MethodGet, "/api/brands/active", nil)
	active := decode(t, w)["brand"].(map[string]any)
	require.Equal(t, id, active["id"])

	w = do(t, engine, http.MethodPost, "/api/brands/"+id+"/contents", map[string]any{"title": "样本", "text": "正文"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, engine, http.MethodGet, "/api/brands/"+id+"/contents", nil)
	require.Len(t, decode(t, w)["contents"], 1)

	w = do(t, engine, http.MethodGet, "/api/brands/"+id+"/competitors", nil)
	require.Len(t, decode(t, w)["contents"], 0)

	w = do(t, engine, http.MethodGet, "/api/brands/"+id+"/logo", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, engine, http.MethodDelete, "/api/brands/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, engine, http.MethodGet, "/api/brands/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimitedRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimit.Enabled = true
	cfg.Security.RateLimit.Limit = 1
	cfg.Security.RateLimit.Window = time.Minute
	engine := newTestRouter(t, cfg, denyLimiter{})

	w := do(t, engine, http.MethodPost, "/api/outline", map[string]any{"topic": "早起"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decode(t, w)
	require.Equal(t, false, body["success"])
	require.Equal(t, "rate_limit", body["error_type"])
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "60", w.Header().Get("Retry-After"))

	// 非模型接口不受限
	w = do(t, engine, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)

	w := do(t, engine, http.MethodOptions, "/api/history", nil,
		"Origin", "http://localhost:5173",
		"Access-Control-Request-Method", http.MethodPost,
	)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
