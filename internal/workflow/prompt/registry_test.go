package prompt

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Messages(t *testing.T) {
	r := NewRegistry()
	msgs, err := r.Messages(context.Background(), PromptOutlineV1, map[string]any{
		"topic":      "秋季穿搭",
		"image_hint": "",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, schema.System, msgs[0].Role)
	require.Contains(t, msgs[1].Content, "主题：秋季穿搭")

	tpl1, err := r.ChatTemplate(PromptOutlineV1)
	require.NoError(t, err)
	tpl2, err := r.ChatTemplate(PromptOutlineV1)
	require.NoError(t, err)
	require.Equal(t, tpl1, tpl2)
}

func TestRegistry_AllTemplatesRender(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	chat := map[PromptID]map[string]any{
		PromptOutlineRewriteV1: {"title": "t", "content": "c {not a var}", "image_count": 2},
		PromptContentV1:        {"topic": "t", "outline": "o"},
		PromptStyleWritingV1:   {"company_samples": "a", "competitor_samples": "b"},
		PromptStyleVisualV1:    {"company_image_count": 3, "logo_colors": "#FFFFFF"},
	}
	for id, vars := range chat {
		msgs, err := r.Messages(ctx, id, vars)
		require.NoError(t, err, id)
		require.Len(t, msgs, 2, id)
	}

	text, err := r.Render(ctx, PromptImagePageV1, map[string]any{
		"page_type": "cover", "page_content": "封面", "user_topic": "咖啡", "full_outline": "大纲",
	})
	require.NoError(t, err)
	require.Contains(t, text, "页面类型：cover")

	text, err = r.Render(ctx, PromptImagePageShortV1, map[string]any{"page_type": "content", "page_content": "x"})
	require.NoError(t, err)
	require.Contains(t, text, "content")
}

func TestRegistry_UnknownID(t *testing.T) {
	r := NewRegistry()
	_, err := r.ChatTemplate("nope")
	require.Error(t, err)
	_, err = r.Render(context.Background(), PromptOutlineV1, nil)
	require.Error(t, err)
}
