package outline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"redink-api/internal/config"
	"redink-api/internal/domain/entity"
	"redink-api/internal/infrastructure/linkparser"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/workflow/prompt"
)

func TestParsePages(t *testing.T) {
	text := "[封面]\n早起的力量\n<page>\n[内容]\n第一步：定闹钟\n<PAGE>\n\n<page>\n没有标记的一页\n<page>\n[总结]\n坚持 21 天"

	pages := ParsePages(text)
	require.Len(t, pages, 4)
	require.Equal(t, entity.Page{Index: 0, Type: entity.PageTypeCover, Content: "早起的力量"}, pages[0])
	require.Equal(t, entity.Page{Index: 1, Type: entity.PageTypeContent, Content: "第一步：定闹钟"}, pages[1])
	require.Equal(t, entity.Page{Index: 2, Type: entity.PageTypeContent, Content: "没有标记的一页"}, pages[2])
	require.Equal(t, entity.Page{Index: 3, Type: entity.PageTypeSummary, Content: "坚持 21 天"}, pages[3])
}

func TestParsePagesDashFallback(t *testing.T) {
	pages := ParsePages("[封面]\nA\n---\n[其他]\nB\n---\n[内容]\n")
	require.Len(t, pages, 2)
	require.Equal(t, entity.PageTypeCover, pages[0].Type)
	require.Equal(t, entity.PageTypeContent, pages[1].Type)
	require.Equal(t, "B", pages[1].Content)
	require.Equal(t, 1, pages[1].Index)
}

func TestParsePagesEmpty(t *testing.T) {
	require.Empty(t, ParsePages("  \n<page>\n[封面]\n"))
}

func TestParseRewrite(t *testing.T) {
	raw := "好的，结果如下：\n```json\n{\"outline\": \"[封面]\\n标题\\n<page>\\n[总结]\\n结尾\", \"pages\": [{\"type\": \"cover\", \"content\": \"[封面]标题\"}, {\"type\": \"\", \"content\": \"[总结] 结尾\"}, {\"type\": \"content\", \"content\": \"  \"}]}\n```"

	text, pages := ParseRewrite(raw)
	require.Equal(t, "[封面]\n标题\n<page>\n[总结]\n结尾", text)
	require.Len(t, pages, 2)
	require.Equal(t, entity.Page{Index: 0, Type: entity.PageTypeCover, Content: "标题"}, pages[0])
	require.Equal(t, entity.Page{Index: 1, Type: entity.PageTypeSummary, Content: "结尾"}, pages[1])
}

func TestParseRewriteFallsBackToText(t *testing.T) {
	raw := "[封面]\n标题\n<page>\n[内容]\n正文"
	text, pages := ParseRewrite(raw)
	require.Equal(t, raw, text)
	require.Len(t, pages, 2)

	// JSON 中没有 pages 时解析 outline 字段
	text, pages = ParseRewrite(`{"outline": "[封面]\nA\n<page>\nB"}`)
	require.Equal(t, "[封面]\nA\n<page>\nB", text)
	require.Len(t, pages, 2)
}

type stubFetcher struct {
	*linkparser.Parser
	result *linkparser.Result
	calls  int
}

func (f *stubFetcher) Parse(context.Context, string) *linkparser.Result {
	f.calls++
	return f.result
}

func newMockService(t *testing.T, fetcher ArticleFetcher) *Service {
	t.Helper()
	factory := llm.NewEinoFactory(&config.LLMConfig{
		DefaultProvider: "mock",
		Providers:       map[string]config.ProviderConfig{"mock": {Type: "mock"}},
	})
	return NewService(llm.NewTextClient(factory, ""), prompt.NewRegistry(), fetcher)
}

func TestGenerateFromTopic(t *testing.T) {
	svc := newMockService(t, nil)

	res, err := svc.Generate(context.Background(), Request{Topic: "秋季护肤"})
	require.NoError(t, err)
	require.False(t, res.HasImages)
	require.Empty(t, res.SourceType)
	require.Len(t, res.Pages, 4)
	require.Equal(t, entity.PageTypeCover, res.Pages[0].Type)
	require.Contains(t, res.Pages[0].Content, "秋季护肤")
	require.Equal(t, entity.PageTypeSummary, res.Pages[3].Type)
	for i, p := range res.Pages {
		require.Equal(t, i, p.Index)
	}
}

func TestGenerateWithImages(t *testing.T) {
	svc := newMockService(t, nil)

	res, err := svc.Generate(context.Background(), Request{Topic: "露营装备", Images: [][]byte{{0x89, 'P', 'N', 'G'}}})
	require.NoError(t, err)
	require.True(t, res.HasImages)
}

func TestGenerateEmptyTopic(t *testing.T) {
	svc := newMockService(t, nil)
	_, err := svc.Generate(context.Background(), Request{Topic: "   "})
	require.ErrorIs(t, err, ErrEmptyTopic)
}

func TestGenerateRewriteMode(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.png" {
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
			return
		}
		http.NotFound(w, r)
	}))
	defer img.Close()

	fetcher := &stubFetcher{Parser: linkparser.New(), result: &linkparser.Result{
		Success: true,
		Data: &linkparser.Article{
			Title:  "咖啡店探店",
			Text:   "三家宝藏咖啡店",
			Images: []string{img.URL + "/ok.png", img.URL + "/missing.png"},
		},
	}}
	svc := newMockService(t, fetcher)

	res, err := svc.Generate(context.Background(), Request{Topic: "https://mp.weixin.qq.com/s/abc"})
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls)
	require.Equal(t, SourceArticleRewrite, res.SourceType)
	require.True(t, res.HasImages)
	require.Len(t, res.Pages, 3)
	require.Equal(t, entity.PageTypeCover, res.Pages[0].Type)
	require.Equal(t, "咖啡店探店", res.Pages[0].Content)
}

func TestGenerateLinkFailureFallsBackToTopic(t *testing.T) {
	fetcher := &stubFetcher{Parser: linkparser.New(), result: &linkparser.Result{Success: false, Error: "boom", Fallback: linkparser.FallbackManual}}
	svc := newMockService(t, fetcher)

	res, err := svc.Generate(context.Background(), Request{Topic: "https://example.com/post"})
	require.NoError(t, err)
	require.Empty(t, res.SourceType)
	require.Len(t, res.Pages, 4)
}

func TestGenerateMissingAPIKey(t *testing.T) {
	factory := llm.NewEinoFactory(&config.LLMConfig{
		DefaultProvider: "openai",
		Providers:       map[string]config.ProviderConfig{"openai": {Type: "openai"}},
	})
	svc := NewService(llm.NewTextClient(factory, ""), prompt.NewRegistry(), nil)

	_, err := svc.Generate(context.Background(), Request{Topic: "早起"})
	require.Error(t, err)
	require.Equal(t, llm.ErrorTypeMissingAPIKey, llm.ClassifyError(err))
}
