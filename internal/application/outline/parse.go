package outline

import (
	"regexp"
	"strings"

	"redink-api/internal/domain/entity"
	"redink-api/internal/infrastructure/llm"
)

var (
	pageSplitRe = regexp.MustCompile(`(?i)<page>`)
	markerRe    = regexp.MustCompile(`^\[(\S+?)\]`)
)

var markerTypes = map[string]entity.PageType{
	"封面": entity.PageTypeCover,
	"内容": entity.PageTypeContent,
	"总结": entity.PageTypeSummary,
}

// ParsePages 把大纲文本切分为页面
//   - 优先按 <page> 分隔，没有时按 --- 分隔
//   - 页首的 [封面]/[内容]/[总结] 决定页面类型并从正文中去掉，未标注按内容页处理
//   - 空页丢弃，index 从 0 开始连续编号
func ParsePages(text string) []entity.Page {
	var segments []string
	if pageSplitRe.MatchString(text) {
		segments = pageSplitRe.Split(text, -1)
	} else {
		segments = strings.Split(text, "---")
	}

	pages := make([]entity.Page, 0, len(segments))
	for _, seg := range segments {
		pageType, content := splitMarker(strings.TrimSpace(seg))
		if content == "" {
			continue
		}
		pages = append(pages, entity.Page{
			Index:   len(pages),
			Type:    pageType,
			Content: content,
		})
	}
	return pages
}

func splitMarker(seg string) (entity.PageType, string) {
	m := markerRe.FindStringSubmatch(seg)
	if m == nil {
		return entity.PageTypeContent, seg
	}
	pageType, ok := markerTypes[m[1]]
	if !ok {
		pageType = entity.PageTypeContent
	}
	return pageType, strings.TrimSpace(seg[len(m[0]):])
}

// rewriteOutput 改写模式要求模型返回的 JSON
type rewriteOutput struct {
	Outline string `json:"outline"`
	Pages   []struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	} `json:"pages"`
}

// ParseRewrite 解析改写模式输出：JSON 优先，失败或没有页面时按普通大纲文本解析
func ParseRewrite(raw string) (string, []entity.Page) {
	var out rewriteOutput
	if err := llm.ParseJSON(raw, &out); err != nil {
		return raw, ParsePages(raw)
	}

	outlineText := strings.TrimSpace(out.Outline)
	if outlineText == "" {
		outlineText = raw
	}

	pages := make([]entity.Page, 0, len(out.Pages))
	for _, p := range out.Pages {
		markerType, content := splitMarker(strings.TrimSpace(p.Content))
		if content == "" {
			continue
		}
		pageType := entity.PageType(strings.ToLower(strings.TrimSpace(p.Type)))
		switch pageType {
		case entity.PageTypeCover, entity.PageTypeContent, entity.PageTypeSummary:
		default:
			pageType = markerType
		}
		pages = append(pages, entity.Page{Index: len(pages), Type: pageType, Content: content})
	}
	if len(pages) == 0 {
		pages = ParsePages(outlineText)
	}
	return outlineText, pages
}
