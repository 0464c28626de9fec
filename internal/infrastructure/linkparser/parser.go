// Package linkparser 抓取小红书 / 公众号 / 通用网页，提取标题正文和图片
package linkparser

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"redink-api/pkg/logger"
)

// FallbackManual 解析失败时提示前端改为手动输入
const FallbackManual = "manual"

const (
	defaultTimeout = 15 * time.Second
	maxBodySize    = 8 << 20
	maxImages      = 10
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// SourceType 链接来源
type SourceType string

const (
	SourceXiaohongshu SourceType = "xiaohongshu"
	SourceWechat      SourceType = "wechat"
	SourceWeb         SourceType = "web"
)

// Article 提取出的文章内容
type Article struct {
	Title      string     `json:"title"`
	Text       string     `json:"text"`
	Desc       string     `json:"desc,omitempty"`
	Images     []string   `json:"images"`
	SourceURL  string     `json:"source_url"`
	SourceType SourceType `json:"source_type"`
}

// Result 解析结果，直接作为 /api/parse-link 的响应体
type Result struct {
	Success  bool     `json:"success"`
	Data     *Article `json:"data,omitempty"`
	Partial  bool     `json:"partial,omitempty"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
	Fallback string   `json:"fallback,omitempty"`
}

func failure(msg string) *Result {
	return &Result{Success: false, Error: msg, Fallback: FallbackManual}
}

// Parser 链接解析器
type Parser struct {
	client *http.Client
	// classify 按 URL 判定来源，测试中可替换
	classify func(u *url.URL) SourceType
}

// Option 解析器选项
type Option func(*Parser)

// WithHTTPClient 指定 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(p *Parser) { p.client = c }
}

// WithClassifier 指定来源判定函数
func WithClassifier(fn func(u *url.URL) SourceType) Option {
	return func(p *Parser) { p.classify = fn }
}

// New 创建解析器
func New(opts ...Option) *Parser {
	p := &Parser{
		client:   &http.Client{Timeout: defaultTimeout},
		classify: Classify,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classify 按域名判定来源
func Classify(u *url.URL) SourceType {
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "mp.weixin.qq.com":
		return SourceWechat
	case strings.HasSuffix(host, "xiaohongshu.com") || strings.HasSuffix(host, "xhslink.com"):
		return SourceXiaohongshu
	default:
		return SourceWeb
	}
}

// IsURL 判断输入是否为 http(s) 链接
func IsURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Parse 抓取并解析链接，任何失败都以 success=false + fallback=manual 返回
func (p *Parser) Parse(ctx context.Context, rawURL string) *Result {
	rawURL = strings.TrimSpace(rawURL)
	if !IsURL(rawURL) {
		return failure("无效的链接，请输入 http(s) 开头的文章地址")
	}
	u, _ := url.Parse(rawURL)
	source := p.classify(u)

	doc, finalURL, err := p.fetch(ctx, rawURL)
	if err != nil {
		logger.Warn(ctx, "link fetch failed", "url", rawURL, "source", string(source), "error", err.Error())
		return failure(fmt.Sprintf("链接抓取失败: %v", err))
	}

	var res *Result
	switch source {
	case SourceWechat:
		res = ParseWechat(doc, rawURL)
	case SourceXiaohongshu:
		res = ParseXiaohongshu(doc, rawURL)
	default:
		res = ParseOpenGraph(doc, rawURL)
	}
	if !res.Success {
		res.Fallback = FallbackManual
		logger.Info(ctx, "link parse failed", "url", rawURL, "final_url", finalURL, "reason", res.Error)
	}
	return res
}

func (p *Parser) fetch(ctx context.Context, rawURL string) (*goquery.Document, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse html: %w", err)
	}
	return doc, resp.Request.URL.String(), nil
}

var (
	wechatTitleRe = regexp.MustCompile(`var\s+msg_title\s*=\s*['"](.*?)['"]`)
	wechatDescRe  = regexp.MustCompile(`var\s+msg_desc\s*=\s*['"](.*?)['"]`)
	spaceRe       = regexp.MustCompile(`\s+`)
	undefinedRe   = regexp.MustCompile(`\bundefined\b`)
)

// ParseWechat 解析公众号文章
func ParseWechat(doc *goquery.Document, sourceURL string) *Result {
	scripts := scriptText(doc)

	title := html.UnescapeString(firstSubmatch(wechatTitleRe, scripts))
	if title == "" {
		title = metaContent(doc, `meta[property="og:title"]`)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return failure("无法解析微信文章标题")
	}

	desc := strings.TrimSpace(firstSubmatch(wechatDescRe, scripts))
	text := desc
	if body := collapse(doc.Find("#js_content").Text()); len([]rune(body)) > len([]rune(desc)) {
		text = body
	}

	seen := make(map[string]struct{})
	images := []string{}
	doc.Find("img[data-src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("data-src")
		// 表情和广告图不在 mmbiz 图床
		if !strings.Contains(src, "mmbiz_png") && !strings.Contains(src, "mmbiz_jpg") {
			return true
		}
		if _, ok := seen[src]; ok {
			return true
		}
		seen[src] = struct{}{}
		images = append(images, src)
		return len(images) < maxImages
	})

	return &Result{
		Success: true,
		Data: &Article{
			Title:      title,
			Text:       text,
			Desc:       desc,
			Images:     images,
			SourceURL:  sourceURL,
			SourceType: SourceWechat,
		},
	}
}

// ParseXiaohongshu 优先解析 __INITIAL_STATE__，失败时退化为 title + description
func ParseXiaohongshu(doc *goquery.Document, sourceURL string) *Result {
	if state := initialState(doc); state != nil {
		if art := noteFromState(state); art != nil {
			art.SourceURL = sourceURL
			art.SourceType = SourceXiaohongshu
			return &Result{Success: true, Data: art}
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	desc := metaContent(doc, `meta[name="description"]`)
	if title == "" && desc == "" {
		return failure("无法从页面中提取内容")
	}
	return &Result{
		Success: true,
		Data: &Article{
			Title:      title,
			Text:       desc,
			Images:     []string{},
			SourceURL:  sourceURL,
			SourceType: SourceXiaohongshu,
		},
		Partial: true,
		Message: "仅提取到部分信息，建议补充完善",
	}
}

// ParseOpenGraph 通用网页：og 标签优先，其次 title / description
func ParseOpenGraph(doc *goquery.Document, sourceURL string) *Result {
	title := metaContent(doc, `meta[property="og:title"]`)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	desc := metaContent(doc, `meta[property="og:description"]`)
	if desc == "" {
		desc = metaContent(doc, `meta[name="description"]`)
	}
	if title == "" && desc == "" {
		return failure("无法从页面中提取内容")
	}

	text := desc
	if body := collapse(doc.Find("article").First().Text()); len([]rune(body)) > len([]rune(text)) {
		text = body
	}

	images := []string{}
	doc.Find(`meta[property="og:image"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("content"); ok && strings.TrimSpace(v) != "" {
			images = append(images, strings.TrimSpace(v))
		}
		return len(images) < maxImages
	})

	res := &Result{
		Success: true,
		Data: &Article{
			Title:      title,
			Text:       text,
			Desc:       desc,
			Images:     images,
			SourceURL:  sourceURL,
			SourceType: SourceWeb,
		},
	}
	if text == "" {
		res.Partial = true
		res.Message = "仅提取到部分信息，建议补充完善"
	}
	return res
}

func initialState(doc *goquery.Document) map[string]any {
	var state map[string]any
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := s.Text()
		i := strings.Index(raw, "window.__INITIAL_STATE__")
		if i < 0 {
			return true
		}
		raw = raw[i+len("window.__INITIAL_STATE__"):]
		raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "="))
		raw = strings.TrimSuffix(strings.TrimSpace(raw), ";")
		raw = undefinedRe.ReplaceAllString(raw, "null")
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			state = nil
		}
		return false
	})
	return state
}

func noteFromState(state map[string]any) *Article {
	var note map[string]any

	if n, ok := state["note"].(map[string]any); ok {
		if detail, ok := n["noteDetailMap"].(map[string]any); ok {
			for _, v := range detail {
				if entry, ok := v.(map[string]any); ok {
					note, _ = entry["note"].(map[string]any)
				}
				break
			}
		}
	}
	if note == nil {
		note, _ = state["noteData"].(map[string]any)
	}
	if note == nil {
		return nil
	}

	title, _ := note["title"].(string)
	desc, _ := note["desc"].(string)
	images := []string{}
	if list, ok := note["imageList"].([]any); ok {
		for _, item := range list {
			img, ok := item.(map[string]any)
			if !ok {
				continue
			}
			u, _ := img["urlDefault"].(string)
			if u == "" {
				u, _ = img["url"].(string)
			}
			if u != "" {
				images = append(images, u)
			}
		}
	}
	return &Article{Title: title, Text: desc, Images: images}
}

func scriptText(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.Text())
		b.WriteByte('\n')
	})
	return b.String()
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

func firstSubmatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
