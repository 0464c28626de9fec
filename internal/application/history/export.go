package history

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"

	"redink-api/internal/domain/entity"
	apperrors "redink-api/pkg/errors"
)

// 导出格式
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Export 导出结果
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

var unsafeFilename = strings.NewReplacer(`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_")

func safeFilename(title, fallback string) string {
	name := strings.TrimSpace(unsafeFilename.Replace(title))
	if name == "" {
		return fallback
	}
	return name
}

// Export 导出记录为 markdown 或 html
func (s *Service) Export(ctx context.Context, id, format string) (*Export, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	md := RenderMarkdown(rec)
	name := safeFilename(rec.Title, "未命名笔记")

	switch format {
	case "", FormatMarkdown:
		return &Export{Filename: name + ".md", ContentType: "text/markdown; charset=utf-8", Body: []byte(md)}, nil
	case FormatHTML:
		var body bytes.Buffer
		body.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
		body.WriteString(html.EscapeString(rec.Title))
		body.WriteString("</title></head><body>\n")
		if err := goldmark.Convert([]byte(md), &body); err != nil {
			return nil, apperrors.ErrInternalError.WithDetail("markdown 渲染失败").WithError(err)
		}
		body.WriteString("</body></html>\n")
		return &Export{Filename: name + ".html", ContentType: "text/html; charset=utf-8", Body: body.Bytes()}, nil
	default:
		return nil, apperrors.ErrInvalidParam.WithDetail("format 仅支持 markdown 或 html")
	}
}

// RenderMarkdown 记录的 markdown 文本：标题、文案、逐页图片链接与原始大纲
func RenderMarkdown(rec *entity.HistoryRecord) string {
	var b strings.Builder
	title := rec.Title
	if title == "" {
		title = "未命名笔记"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "> **创建时间**: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "> **状态**: %s\n\n---\n\n", rec.Status)

	b.WriteString("## 小红书发布文案\n\n")
	content := rec.Content
	if content != nil && len(content.Titles) > 0 {
		b.WriteString("### 备选标题\n\n")
		for i, t := range content.Titles {
			fmt.Fprintf(&b, "%d. %s\n", i+1, t)
		}
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "### 标题\n\n%s\n\n", title)
	}
	if content != nil && content.Copywriting != "" {
		fmt.Fprintf(&b, "### 正文内容\n\n%s\n\n", content.Copywriting)
	}
	if content != nil && len(content.Tags) > 0 {
		tags := make([]string, 0, len(content.Tags))
		for _, t := range content.Tags {
			tags = append(tags, "#"+t)
		}
		fmt.Fprintf(&b, "### 话题标签\n\n%s\n\n", strings.Join(tags, " "))
	}

	b.WriteString("---\n\n## 生成图片列表\n")
	written := 0
	if rec.Images.TaskID != nil {
		for i, f := range rec.Images.Generated {
			if f == nil {
				continue
			}
			written++
			fmt.Fprintf(&b, "\n### 第 %d 页\n\n", i+1)
			if i < len(rec.Outline.Pages) && rec.Outline.Pages[i].Content != "" {
				fmt.Fprintf(&b, "> **页面提示**: %s\n\n", oneLine(rec.Outline.Pages[i].Content))
			}
			fmt.Fprintf(&b, "![第 %d 页图片](/api/images/%s/%s)\n", i+1, *rec.Images.TaskID, *f)
		}
	}
	if written == 0 {
		b.WriteString("\n(暂无生成的图片)\n")
	}

	if rec.Outline.Raw != "" {
		fmt.Fprintf(&b, "\n---\n\n## 原始大纲文本\n\n```text\n%s\n```\n", rec.Outline.Raw)
	}
	return b.String()
}

// Archive 打包下载结果
type Archive struct {
	Filename string
	Body     []byte
	Count    int
}

// Download 把记录关联任务的图片打包为 zip，缩略图除外
func (s *Service) Download(ctx context.Context, id string) (*Archive, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Images.TaskID == nil || *rec.Images.TaskID == "" {
		return nil, apperrors.ErrFileNotFound.WithDetail("该记录没有关联的任务图片")
	}
	taskID := *rec.Images.TaskID
	if !s.store.DirExists(taskID) {
		return nil, apperrors.ErrTaskNotFound.WithDetail("任务目录不存在: " + taskID)
	}

	var buf bytes.Buffer
	n, err := s.store.WriteZip(&buf, taskID)
	if err != nil {
		return nil, apperrors.ErrStorageError.WithError(err)
	}
	return &Archive{Filename: safeFilename(rec.Title, "images") + ".zip", Body: buf.Bytes(), Count: n}, nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
