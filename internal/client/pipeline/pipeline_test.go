package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"redink-api/internal/application/brand"
	"redink-api/internal/application/content"
	"redink-api/internal/application/generation"
	"redink-api/internal/application/history"
	"redink-api/internal/application/outline"
	"redink-api/internal/client/api"
	"redink-api/internal/client/reconcile"
	"redink-api/internal/client/tracker"
	"redink-api/internal/config"
	"redink-api/internal/domain/entity"
	"redink-api/internal/infrastructure/linkparser"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/infrastructure/persistence/memory"
	"redink-api/internal/infrastructure/persistence/sqlstore"
	"redink-api/internal/infrastructure/storage"
	"redink-api/internal/interfaces/http/handler"
	"redink-api/internal/interfaces/http/router"
	"redink-api/internal/workflow/prompt"
)

// flakyProvider 提示词包含指定标记时失败
type flakyProvider struct {
	*llm.MockImageProvider

	mu    sync.Mutex
	marks []string
}

func (p *flakyProvider) Generate(ctx context.Context, req llm.ImageRequest) ([]byte, error) {
	p.mu.Lock()
	marks := p.marks
	p.mu.Unlock()
	for _, m := range marks {
		if strings.Contains(req.Prompt, m) {
			return nil, errors.New("upstream timeout")
		}
	}
	return p.MockImageProvider.Generate(ctx, req)
}

func (p *flakyProvider) failOn(marks ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks = marks
}

type env struct {
	client   *api.Client
	rec      *reconcile.Reconciler
	provider *flakyProvider
}

// newEnv wrap 可选，用于在真实路由外包一层中间处理
func newEnv(t *testing.T, wrap ...func(http.Handler) http.Handler) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlstore.NewSQLiteMemory("pipeline_" + strings.ReplaceAll(t.Name(), "/", "_"))
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
	provider := &flakyProvider{MockImageProvider: llm.NewMockImageProvider("256x384")}

	brands := brand.NewService(brand.Deps{
		Repo:    sqlstore.NewBrandRepository(db),
		Store:   brandStore,
		Text:    text,
		Prompts: prompts,
		Fetcher: links,
	})
	gen := generation.NewService(generation.Deps{
		Provider: provider,
		Store:    images,
		Tasks:    memory.NewTaskStore(0),
		Prompts:  prompts,
		Styles:   brands,
		Logos:    brands,
	}, generation.Options{MaxConcurrency: 2})

	cfg := &config.Config{}
	cfg.App.Name = "redink-api"
	r := router.New(cfg, router.Handlers{
		Health:     handler.NewHealthHandler(db, nil),
		Creation:   handler.NewCreationHandler(outline.NewService(text, prompts, nil), content.NewService(text, prompts), links),
		Generation: handler.NewGenerationHandler(gen),
		History:    handler.NewHistoryHandler(history.NewService(sqlstore.NewHistoryRepository(db), images)),
		Brand:      handler.NewBrandHandler(brands),
	}, nil)

	var h http.Handler = r.Engine()
	for _, w := range wrap {
		h = w(h)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := api.New(api.Options{BaseURL: srv.URL})
	rec := reconcile.New(client)
	t.Cleanup(rec.Close)
	return &env{client: client, rec: rec, provider: provider}
}

// threePages 正文不出现在完整大纲里，便于按页注入失败
func threePages() *api.OutlineResult {
	return &api.OutlineResult{
		Outline: "三页测试大纲",
		Pages: []entity.Page{
			{Index: 0, Type: entity.PageTypeCover, Content: "PAGE-A 封面"},
			{Index: 1, Type: entity.PageTypeContent, Content: "PAGE-B 步骤"},
			{Index: 2, Type: entity.PageTypeSummary, Content: "PAGE-C 总结"},
		},
	}
}

func (e *env) record(t *testing.T, id string) *entity.HistoryRecord {
	t.Helper()
	e.rec.Wait()
	rec, f := e.client.GetHistory(context.Background(), id).Unwrap()
	require.Nil(t, f)
	return rec
}

func TestRunPartialThenRetry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.provider.failOn("PAGE-A", "PAGE-C")

	p := New(e.client, e.rec)
	sess := reconcile.NewSession("")
	out := p.Run(ctx, sess, "早起", threePages(), Options{})
	require.Nil(t, out.StreamFailure)
	require.Nil(t, out.ContentFailure)
	require.NotNil(t, out.Content)
	require.Equal(t, tracker.PhaseFinished, out.Snapshot.Phase)
	require.Equal(t, []int{0, 2}, out.Snapshot.FailedIndices())
	require.NotEmpty(t, sess.RecordID())

	rec := e.record(t, sess.RecordID())
	require.Equal(t, entity.RecordStatusPartial, rec.Status)
	require.Nil(t, rec.Thumbnail)
	require.Nil(t, rec.Images.Generated[0])
	require.Equal(t, "1.png", *rec.Images.Generated[1])
	require.NotNil(t, rec.Content)

	e.provider.failOn()
	finish, f := p.RetryFailed(ctx, sess, Options{})
	require.Nil(t, f)
	require.True(t, finish.Success)
	require.Empty(t, p.Tracker().Snapshot().FailedIndices())

	rec = e.record(t, sess.RecordID())
	require.Equal(t, entity.RecordStatusCompleted, rec.Status)
	require.NotNil(t, rec.Thumbnail)
	require.Equal(t, "0.png", *rec.Thumbnail)
}

func TestContentAfterCompletedKeepsImages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := New(e.client, e.rec)
	sess := reconcile.NewSession("")
	out := p.Run(ctx, sess, "早起", threePages(), Options{SkipContent: true})
	require.Nil(t, out.StreamFailure)
	before := e.record(t, sess.RecordID())
	require.Equal(t, entity.RecordStatusCompleted, before.Status)
	require.Nil(t, before.Content)

	content, f := p.GenerateContent(ctx, sess, "早起")
	require.Nil(t, f)
	require.NotEmpty(t, content.Titles)

	after := e.record(t, sess.RecordID())
	require.Equal(t, entity.RecordStatusCompleted, after.Status)
	require.Equal(t, before.Thumbnail, after.Thumbnail)
	require.Equal(t, before.Images, after.Images)
	require.NotNil(t, after.Content)
}

func TestRestoreAndEditVersions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first := New(e.client, e.rec)
	sess := reconcile.NewSession("")
	out := first.Run(ctx, sess, "早起", threePages(), Options{SkipContent: true})
	require.Nil(t, out.StreamFailure)
	e.rec.Wait()

	restored, rec, ok := e.rec.Restore(ctx, sess.RecordID())
	require.True(t, ok)
	require.Equal(t, sess.TaskID(), *rec.Images.TaskID)

	p := New(e.client, e.rec)
	p.Hydrate(restored)
	require.Empty(t, p.Tracker().Snapshot().FailedIndices())
	require.Len(t, p.Versions().List(1), 1)

	v, f := p.Regenerate(ctx, restored, 1, true)
	require.Nil(t, f)
	require.True(t, strings.HasPrefix(v.Filename, "1_v"))
	require.Len(t, p.Versions().List(1), 2)
	require.Equal(t, v.Filename, *e.record(t, restored.RecordID()).Images.Generated[1])

	// 切回原图
	orig, err := p.SelectVersion(ctx, restored, 1, 0)
	require.NoError(t, err)
	require.Equal(t, "1.png", orig.Filename)
	require.Equal(t, "1.png", *e.record(t, restored.RecordID()).Images.Generated[1])

	_, err = p.SelectVersion(ctx, restored, 1, 5)
	require.Error(t, err)
}

func TestToggleLogo(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b, f := e.client.CreateBrand(ctx, "红墨").Unwrap()
	require.Nil(t, f)
	logo, err := llm.NewMockImageProvider("64x64").Generate(ctx, llm.ImageRequest{Prompt: "logo"})
	require.NoError(t, err)
	_, f = e.client.UploadLogo(ctx, b.ID, "logo.png", logo).Unwrap()
	require.Nil(t, f)

	p := New(e.client, e.rec)
	sess := reconcile.NewSession(b.ID)
	out := p.Run(ctx, sess, "早起", threePages(), Options{SkipContent: true})
	require.Nil(t, out.StreamFailure)

	on, f := p.ToggleLogo(ctx, sess, 0, true, "corner")
	require.Nil(t, f)
	require.NotEqual(t, "0.png", on.Filename)
	require.Equal(t, on.Filename, *e.record(t, sess.RecordID()).Images.Generated[0])

	off, f := p.ToggleLogo(ctx, sess, 0, false, "")
	require.Nil(t, f)
	require.Equal(t, "0.png", off.Filename)
	rec := e.record(t, sess.RecordID())
	require.Equal(t, "0.png", *rec.Images.Generated[0])
	require.Equal(t, "0.png", *rec.Thumbnail)

	_, f = p.ToggleLogo(ctx, sess, 0, false, "")
	require.NotNil(t, f)
}

func TestRestoreDeletedRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := New(e.client, e.rec)
	sess := reconcile.NewSession("")
	p.Run(ctx, sess, "早起", threePages(), Options{SkipContent: true})
	e.rec.Wait()

	_, f := e.client.DeleteHistory(ctx, sess.RecordID()).Unwrap()
	require.Nil(t, f)

	_, _, ok := e.rec.Restore(ctx, sess.RecordID())
	require.False(t, ok)
}

// cutWriter 把生成流截断在第一个 complete 事件之后，服务端照常跑完但客户端收不到 finish
type cutWriter struct {
	http.ResponseWriter
	buf bytes.Buffer
	cut bool
}

func (w *cutWriter) Write(p []byte) (int, error) {
	if !w.cut {
		w.buf.Write(p)
	}
	return len(p), nil
}

func (w *cutWriter) Flush() {
	if w.cut {
		return
	}
	data := w.buf.Bytes()
	if i := bytes.Index(data, []byte("event:complete")); i >= 0 {
		if j := bytes.Index(data[i:], []byte("\n\n")); j >= 0 {
			data = data[:i+j+2]
			w.cut = true
		}
	}
	_, _ = w.ResponseWriter.Write(data)
	w.buf.Reset()
	w.ResponseWriter.(http.Flusher).Flush()
}

func (w *cutWriter) CloseNotify() <-chan bool {
	return w.ResponseWriter.(http.CloseNotifier).CloseNotify()
}

func cutGenerateStream(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/generate" {
			w = &cutWriter{ResponseWriter: w}
		}
		next.ServeHTTP(w, r)
	})
}

func TestStreamCutBeforeFinishLeavesRetryablePages(t *testing.T) {
	e := newEnv(t, cutGenerateStream)
	ctx := context.Background()

	p := New(e.client, e.rec)
	sess := reconcile.NewSession("")
	out := p.Run(ctx, sess, "早起", threePages(), Options{SkipContent: true})
	require.NotNil(t, out.StreamFailure)
	require.NotEmpty(t, sess.TaskID())
	require.Equal(t, tracker.PhaseFinished, out.Snapshot.Phase)
	require.Equal(t, sess.TaskID(), out.Snapshot.TaskID)
	require.Equal(t, []int{1, 2}, out.Snapshot.FailedIndices())
	require.Equal(t, 3, out.Snapshot.Current)

	rec := e.record(t, sess.RecordID())
	require.Equal(t, entity.RecordStatusPartial, rec.Status)
	require.NotNil(t, rec.Images.TaskID)
	require.Equal(t, sess.TaskID(), *rec.Images.TaskID)
	require.Equal(t, "0.png", *rec.Images.Generated[0])
	require.Nil(t, rec.Images.Generated[1])

	finish, f := p.RetryFailed(ctx, sess, Options{})
	require.Nil(t, f)
	require.True(t, finish.Success)
	require.Empty(t, p.Tracker().Snapshot().FailedIndices())

	rec = e.record(t, sess.RecordID())
	require.Equal(t, entity.RecordStatusCompleted, rec.Status)
	require.Equal(t, "0.png", *rec.Thumbnail)
}
