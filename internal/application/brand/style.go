package brand

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"

	"redink-api/internal/domain/entity"
	"redink-api/internal/infrastructure/imaging"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/workflow/prompt"
	"redink-api/pkg/logger"
)

const (
	styleTemperature = 0.5

	writingCompanySamples    = 5
	writingCompetitorSamples = 3

	visualCompanyContents    = 3
	visualCompanyImages      = 2
	visualCompetitorContents = 2
	visualCompetitorImages   = 1

	rawSummaryRunes = 500
)

// ErrNoSamples 品牌没有任何样本
var ErrNoSamples = llm.ConfigError("请先添加内容样本")

// ExtractStyle 从样本中提炼写作与视觉风格，合成风格提示并保存
// 写作风格分析失败时整体失败；视觉风格分析失败不阻塞，结果为空
func (s *Service) ExtractStyle(ctx context.Context, id string) (*entity.StyleDNA, error) {
	ctx = logger.WithContext(ctx, logger.BrandIDKey, id)
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(detail.CompanyContents) == 0 && len(detail.CompetitorContents) == 0 {
		return nil, ErrNoSamples
	}
	if s.text == nil {
		return nil, llm.ErrNoProvider
	}

	writing, err := s.analyzeWriting(ctx, detail)
	if err != nil {
		logger.Error(ctx, "writing style analysis failed", err)
		return nil, err
	}
	visual := s.analyzeVisual(ctx, detail)

	dna := &entity.StyleDNA{
		WritingStyle: writing,
		VisualStyle:  visual,
		StylePrompt:  StylePrompt(detail.Logo, writing, visual),
		ExtractedAt:  time.Now(),
	}
	detail.StyleDNA = dna
	if err := s.repo.Update(ctx, detail.Brand); err != nil {
		return nil, dbError(err)
	}
	logger.Info(ctx, "brand style extracted", "has_visual", visual != nil, "prompt_len", len(dna.StylePrompt))
	return dna, nil
}

func formatSamples(items []*entity.ContentItem, limit int) string {
	if len(items) == 0 {
		return "（无）"
	}
	if len(items) > limit {
		items = items[:limit]
	}
	parts := make([]string, 0, len(items))
	for i, it := range items {
		parts = append(parts, fmt.Sprintf("【样本 %d】\n标题：%s\n正文：%s", i+1, it.Title, it.Text))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func (s *Service) analyzeWriting(ctx context.Context, d *entity.BrandDetail) (map[string]any, error) {
	msgs, err := s.prompts.Messages(ctx, prompt.PromptStyleWritingV1, map[string]any{
		"company_samples":    formatSamples(d.CompanyContents, writingCompanySamples),
		"competitor_samples": formatSamples(d.CompetitorContents, writingCompetitorSamples),
	})
	if err != nil {
		return nil, err
	}
	out, err := s.text.Generate(ctx, llm.WorkflowStyleWriting, msgs, model.WithTemperature(styleTemperature))
	if err != nil {
		return nil, err
	}
	return parseStyle(ctx, out), nil
}

// sampleImages 按上限挑选样本图片，读取失败的跳过
func (s *Service) sampleImages(ctx context.Context, items []*entity.ContentItem, contents, perContent int) []string {
	var urls []string
	if len(items) > contents {
		items = items[:contents]
	}
	for _, it := range items {
		paths := it.Images
		if len(paths) > perContent {
			paths = paths[:perContent]
		}
		for _, rel := range paths {
			data, err := s.readAsset(rel)
			if err != nil {
				logger.Warn(ctx, "read sample image failed", "path", rel, "error", err.Error())
				continue
			}
			urls = append(urls, imaging.DataURL(data))
		}
	}
	return urls
}

func (s *Service) analyzeVisual(ctx context.Context, d *entity.BrandDetail) map[string]any {
	company := s.sampleImages(ctx, d.CompanyContents, visualCompanyContents, visualCompanyImages)
	competitor := s.sampleImages(ctx, d.CompetitorContents, visualCompetitorContents, visualCompetitorImages)
	if len(company)+len(competitor) == 0 {
		return map[string]any{"summary": "无图片样本，无法分析视觉风格", "no_images": true}
	}

	logoColors := "（未上传 logo）"
	if d.Logo != nil && len(d.Logo.Colors) > 0 {
		logoColors = strings.Join(d.Logo.Colors, ", ")
	}
	msgs, err := s.prompts.Messages(ctx, prompt.PromptStyleVisualV1, map[string]any{
		"company_image_count": len(company),
		"logo_colors":         logoColors,
	})
	if err != nil {
		logger.Error(ctx, "render visual style prompt failed", err)
		return nil
	}
	last := len(msgs) - 1
	msgs[last] = llm.UserMessageWithImages(msgs[last].Content, append(company, competitor...))

	out, err := s.text.Generate(ctx, llm.WorkflowStyleVisual, msgs, model.WithTemperature(styleTemperature))
	if err != nil {
		logger.Warn(ctx, "visual style analysis failed", "error", err.Error())
		return nil
	}
	return parseStyle(ctx, out)
}

// parseStyle 解析失败时保留原始输出前缀并标记 parse_failed
func parseStyle(ctx context.Context, out string) map[string]any {
	var v map[string]any
	if err := llm.ParseJSON(out, &v); err != nil || v == nil {
		logger.Warn(ctx, "style output is not json", "output", truncateRunes(out, rawSummaryRunes))
		summary := truncateRunes(out, rawSummaryRunes)
		if summary == "" {
			summary = "AI 未返回有效内容"
		}
		return map[string]any{"summary": summary, "parse_failed": true}
	}
	return v
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

func flag(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// field 把任意 JSON 值展开为一行文本
func field(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, x := range v {
			parts = append(parts, fmt.Sprint(x))
		}
		return strings.Join(parts, "、")
	default:
		return fmt.Sprint(v)
	}
}

// StylePrompt 合成注入图片生成的风格提示，没有可用信息时为空
func StylePrompt(logo *entity.LogoAsset, writing, visual map[string]any) string {
	var parts []string
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, label+": "+value)
		}
	}

	if logo != nil {
		add("品牌主色调", strings.Join(logo.Colors, ", "))
		add("品牌Logo特征", logo.Description)
	}
	if writing != nil && !flag(writing, "parse_failed") {
		add("文字风格", field(writing, "tone"))
		add("内容特点", field(writing, "summary"))
	}
	if visual != nil && !flag(visual, "parse_failed") && !flag(visual, "no_images") {
		add("配色风格", field(visual, "colors"))
		add("图片风格", field(visual, "imagery"))
		add("排版风格", field(visual, "layout"))
		add("视觉特点", field(visual, "summary"))
	}
	if len(parts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("【品牌风格要求】\n")
	for i, p := range parts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + p)
	}
	b.WriteString("\n\n请确保生成的图片符合以上品牌风格特点，保持视觉统一性。")
	return b.String()
}
