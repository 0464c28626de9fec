package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"redink-api/internal/config"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/workflow/prompt"
)

func newMockService() *Service {
	factory := llm.NewEinoFactory(&config.LLMConfig{
		DefaultProvider: "mock",
		Providers:       map[string]config.ProviderConfig{"mock": {Type: "mock"}},
	})
	return NewService(llm.NewTextClient(factory, ""), prompt.NewRegistry())
}

func TestGenerate(t *testing.T) {
	svc := newMockService()

	c, err := svc.Generate(context.Background(), "咖啡", "[封面]\n咖啡\n<page>\n[内容]\n手冲")
	require.NoError(t, err)
	require.Len(t, c.Titles, 3)
	require.Contains(t, c.Titles[0], "咖啡")
	require.NotEmpty(t, c.Copywriting)
	require.Equal(t, []string{"咖啡", "干货", "分享"}, c.Tags)
}

func TestGenerateRejectsEmptyInput(t *testing.T) {
	svc := newMockService()
	_, err := svc.Generate(context.Background(), " ", "大纲")
	require.ErrorIs(t, err, ErrEmptyInput)
	_, err = svc.Generate(context.Background(), "主题", "")
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestNormalize(t *testing.T) {
	c := Normalize(
		[]string{" 第一 ", "", "第二", "第三", "第四"},
		"  正文  ",
		[]string{"#早起", "＃自律", " 干货 ", "#", ""},
	)
	require.Equal(t, []string{"第一", "第二", "第三"}, c.Titles)
	require.Equal(t, "正文", c.Copywriting)
	require.Equal(t, []string{"早起", "自律", "干货"}, c.Tags)
}
