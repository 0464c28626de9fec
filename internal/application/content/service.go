// Package content 根据大纲生成发布文案：标题、正文与话题标签
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"redink-api/internal/domain/entity"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/workflow/prompt"
	"redink-api/pkg/logger"
)

const maxTitles = 3

// ErrEmptyInput 主题或大纲为空
var ErrEmptyInput = errors.New("topic 和 outline 不能为空")

// Service 文案服务
type Service struct {
	text    *llm.TextClient
	prompts *prompt.Registry
}

// NewService 创建文案服务
func NewService(text *llm.TextClient, prompts *prompt.Registry) *Service {
	return &Service{text: text, prompts: prompts}
}

type rawContent struct {
	Titles      []string `json:"titles"`
	Copywriting string   `json:"copywriting"`
	Tags        []string `json:"tags"`
}

// Generate 生成文案
func (s *Service) Generate(ctx context.Context, topic, outline string) (*entity.PostContent, error) {
	topic = strings.TrimSpace(topic)
	outline = strings.TrimSpace(outline)
	if topic == "" || outline == "" {
		return nil, ErrEmptyInput
	}

	msgs, err := s.prompts.Messages(ctx, prompt.PromptContentV1, map[string]any{
		"topic":   topic,
		"outline": outline,
	})
	if err != nil {
		return nil, err
	}
	out, err := s.text.Generate(ctx, llm.WorkflowContent, msgs)
	if err != nil {
		return nil, err
	}

	var raw rawContent
	if err := llm.ParseJSON(out, &raw); err != nil {
		logger.Warn(ctx, "content output is not json", "error", err.Error())
		return nil, err
	}
	content := Normalize(raw.Titles, raw.Copywriting, raw.Tags)
	if len(content.Titles) == 0 && content.Copywriting == "" {
		return nil, fmt.Errorf("%w: 文案为空", llm.ErrParse)
	}
	logger.Info(ctx, "content generated", "titles", len(content.Titles), "tags", len(content.Tags))
	return content, nil
}

// Normalize 标题去空白并至多保留 3 个，标签去掉 # 前缀
func Normalize(titles []string, copywriting string, tags []string) *entity.PostContent {
	c := &entity.PostContent{
		Titles:      make([]string, 0, maxTitles),
		Copywriting: strings.TrimSpace(copywriting),
		Tags:        make([]string, 0, len(tags)),
	}
	for _, t := range titles {
		if t = strings.TrimSpace(t); t != "" && len(c.Titles) < maxTitles {
			c.Titles = append(c.Titles, t)
		}
	}
	for _, t := range tags {
		if t = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "#＃")); t != "" {
			c.Tags = append(c.Tags, t)
		}
	}
	return c
}
