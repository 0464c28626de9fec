// Package outline 大纲生成：普通主题模式与链接改写模式
package outline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"redink-api/internal/domain/entity"
	"redink-api/internal/infrastructure/imaging"
	"redink-api/internal/infrastructure/linkparser"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/workflow/prompt"
	"redink-api/pkg/logger"
)

const (
	maxArticleRunes  = 3000
	maxArticleImages = 5
)

// SourceArticleRewrite 改写模式的来源标记
const SourceArticleRewrite = "article_rewrite"

// ErrEmptyTopic 主题为空
var ErrEmptyTopic = errors.New("topic 不能为空")

// ArticleFetcher 链接解析与配图下载
type ArticleFetcher interface {
	Parse(ctx context.Context, rawURL string) *linkparser.Result
	FetchImages(ctx context.Context, urls []string, limit int) [][]byte
}

// Request 大纲生成请求
type Request struct {
	Topic  string
	Images [][]byte
}

// Result 大纲生成结果
type Result struct {
	Outline    string        `json:"outline"`
	Pages      []entity.Page `json:"pages"`
	HasImages  bool          `json:"has_images"`
	SourceType string        `json:"source_type,omitempty"`
}

// Service 大纲服务
type Service struct {
	text     *llm.TextClient
	prompts  *prompt.Registry
	articles ArticleFetcher
}

// NewService 创建大纲服务，articles 为 nil 时链接按普通主题处理
func NewService(text *llm.TextClient, prompts *prompt.Registry, articles ArticleFetcher) *Service {
	return &Service{
		text:     text,
		prompts:  prompts,
		articles: articles,
	}
}

// Generate 生成大纲；主题是链接且解析成功时走改写模式，否则按普通主题生成
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	if s.articles != nil && linkparser.IsURL(topic) {
		parsed := s.articles.Parse(ctx, topic)
		if parsed.Success && parsed.Data != nil {
			images := req.Images
			if len(images) == 0 && len(parsed.Data.Images) > 0 {
				images = s.articles.FetchImages(ctx, parsed.Data.Images, maxArticleImages)
				logger.Info(ctx, "article images downloaded", "requested", len(parsed.Data.Images), "ok", len(images))
			}
			return s.rewrite(ctx, parsed.Data, images)
		}
		logger.Warn(ctx, "link parse failed, falling back to topic mode", "url", topic, "reason", parsed.Error)
	}
	return s.fromTopic(ctx, topic, req.Images)
}

func (s *Service) fromTopic(ctx context.Context, topic string, images [][]byte) (*Result, error) {
	hint := ""
	if len(images) > 0 {
		hint = fmt.Sprintf("注意：用户提供了 %d 张参考图片，请结合图片内容和风格优化大纲，让内容与图片相关联。", len(images))
	}
	msgs, err := s.prompts.Messages(ctx, prompt.PromptOutlineV1, map[string]any{
		"topic":      topic,
		"image_hint": hint,
	})
	if err != nil {
		return nil, err
	}
	attachImages(msgs, images)

	raw, err := s.text.Generate(ctx, llm.WorkflowOutline, msgs)
	if err != nil {
		return nil, err
	}
	pages := ParsePages(raw)
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: 大纲中没有可用的页面", llm.ErrParse)
	}
	logger.Info(ctx, "outline generated", "pages", len(pages), "images", len(images))
	return &Result{Outline: raw, Pages: pages, HasImages: len(images) > 0}, nil
}

func (s *Service) rewrite(ctx context.Context, article *linkparser.Article, images [][]byte) (*Result, error) {
	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = "无标题"
	}
	content := []rune(article.Text)
	if len(content) > maxArticleRunes {
		content = content[:maxArticleRunes]
	}

	msgs, err := s.prompts.Messages(ctx, prompt.PromptOutlineRewriteV1, map[string]any{
		"title":       title,
		"content":     string(content),
		"image_count": len(images),
	})
	if err != nil {
		return nil, err
	}
	attachImages(msgs, images)

	raw, err := s.text.Generate(ctx, llm.WorkflowOutlineRewrite, msgs)
	if err != nil {
		return nil, err
	}
	outlineText, pages := ParseRewrite(raw)
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: 改写结果中没有可用的页面", llm.ErrParse)
	}
	logger.Info(ctx, "article rewritten", "title", title, "pages", len(pages), "images", len(images))
	return &Result{
		Outline:    outlineText,
		Pages:      pages,
		HasImages:  len(images) > 0,
		SourceType: SourceArticleRewrite,
	}, nil
}

// attachImages 把参考图挂到最后一条用户消息上
func attachImages(msgs []*schema.Message, images [][]byte) {
	if len(images) == 0 || len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	urls := make([]string, 0, len(images))
	for _, img := range images {
		urls = append(urls, imaging.DataURL(img))
	}
	msgs[len(msgs)-1] = llm.UserMessageWithImages(last.Content, urls)
}
