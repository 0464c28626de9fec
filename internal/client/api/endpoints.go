package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"redink-api/internal/domain/entity"
)

// EncodeImage 转为接口使用的 base64
func EncodeImage(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Outline 生成大纲，images 为参考图原始字节
func (c *Client) Outline(ctx context.Context, topic string, images [][]byte) Result[*OutlineResult] {
	encoded := make([]string, 0, len(images))
	for _, img := range images {
		encoded = append(encoded, EncodeImage(img))
	}
	body := map[string]any{"topic": topic}
	if len(encoded) > 0 {
		body["images"] = encoded
	}
	res := call[*OutlineResult](ctx, c, c.opts.OutlineTimeout, http.MethodPost, "/api/outline", body)
	if out, f := res.Unwrap(); f == nil && len(out.Pages) == 0 {
		return Fail[*OutlineResult](&Failure{Kind: KindParse, Message: "大纲没有页面"})
	}
	return res
}

// Content 生成标题、文案与标签
func (c *Client) Content(ctx context.Context, topic, outline string) Result[*entity.PostContent] {
	return call[*entity.PostContent](ctx, c, c.opts.ContentTimeout, http.MethodPost, "/api/content",
		map[string]string{"topic": topic, "outline": outline})
}

// ParseLink 解析链接，success=false 也作为正常结果返回
func (c *Client) ParseLink(ctx context.Context, link string) Result[*LinkResult] {
	return lenient[*LinkResult](ctx, c, c.opts.CRUDTimeout, http.MethodPost, "/api/parse-link", map[string]string{"url": link})
}

// Retry 重试单页，覆盖原文件
func (c *Client) Retry(ctx context.Context, req PageRequest) Result[*PageResult] {
	return pageCall(ctx, c, "/api/retry", req)
}

// Regenerate 重绘单页为新版本
func (c *Client) Regenerate(ctx context.Context, req PageRequest) Result[*PageResult] {
	return pageCall(ctx, c, "/api/regenerate", req)
}

// Edit 蒙版局部重绘
func (c *Client) Edit(ctx context.Context, req EditRequest) Result[*PageResult] {
	return pageCall(ctx, c, "/api/edit", req)
}

// SaveCanvas 保存画布编辑结果
func (c *Client) SaveCanvas(ctx context.Context, req CanvasRequest) Result[*PageResult] {
	return pageCall(ctx, c, "/api/save-canvas", req)
}

// pageCall 单页操作走生成超时，失败的 500 响应视为生成失败
func pageCall(ctx context.Context, c *Client, path string, body any) Result[*PageResult] {
	res := call[*PageResult](ctx, c, c.opts.OutlineTimeout, http.MethodPost, path, body)
	if f := res.Failure(); f != nil && f.Kind == KindUnknown && f.Status >= 500 {
		f.Kind = KindGeneration
	}
	return res
}

// ApplyLogo 叠加激活品牌 logo，返回 data URL
func (c *Client) ApplyLogo(ctx context.Context, image []byte, style string) Result[string] {
	type response struct {
		Image string `json:"image"`
	}
	res := call[response](ctx, c, c.opts.ContentTimeout, http.MethodPost, "/api/apply-logo",
		map[string]string{"image": EncodeImage(image), "logo_style": style})
	if f := res.Failure(); f != nil {
		return Fail[string](f)
	}
	return Ok(res.Value().Image)
}

// TaskState 服务端任务状态
func (c *Client) TaskState(ctx context.Context, taskID string) Result[*TaskState] {
	return call[*TaskState](ctx, c, c.opts.CRUDTimeout, http.MethodGet, "/api/task/"+url.PathEscape(taskID), nil)
}

// CreateHistory 创建记录，返回记录 ID；同一 client_token 返回已有记录
func (c *Client) CreateHistory(ctx context.Context, req CreateHistoryRequest) Result[string] {
	type response struct {
		RecordID string `json:"record_id"`
	}
	res := call[response](ctx, c, c.opts.CRUDTimeout, http.MethodPost, "/api/history", req)
	if f := res.Failure(); f != nil {
		return Fail[string](f)
	}
	if res.Value().RecordID == "" {
		return Fail[string](&Failure{Kind: KindParse, Message: "响应缺少 record_id"})
	}
	return Ok(res.Value().RecordID)
}

// GetHistory 读取记录，不存在时 Kind 为 not_found
func (c *Client) GetHistory(ctx context.Context, id string) Result[*entity.HistoryRecord] {
	type response struct {
		Record *entity.HistoryRecord `json:"record"`
	}
	res := call[response](ctx, c, c.opts.CRUDTimeout, http.MethodGet, "/api/history/"+url.PathEscape(id), nil)
	if f := res.Failure(); f != nil {
		return Fail[*entity.HistoryRecord](f)
	}
	return Ok(res.Value().Record)
}

// UpdateHistory 部分更新记录
func (c *Client) UpdateHistory(ctx context.Context, id string, update HistoryUpdate) Result[*entity.HistoryRecord] {
	type response struct {
		Record *entity.HistoryRecord `json:"record"`
	}
	res := call[response](ctx, c, c.opts.CRUDTimeout, http.MethodPut, "/api/history/"+url.PathEscape(id), update)
	if f := res.Failure(); f != nil {
		return Fail[*entity.HistoryRecord](f)
	}
	return Ok(res.Value().Record)
}

// DeleteHistory 删除记录
func (c *Client) DeleteHistory(ctx context.Context, id string) Result[struct{}] {
	return call[struct{}](ctx, c, c.opts.CRUDTimeout, http.MethodDelete, "/api/history/"+url.PathEscape(id), nil)
}

// HistoryExists 轻量存在性检查
func (c *Client) HistoryExists(ctx context.Context, id string) Result[bool] {
	type response struct {
		Exists bool `json:"exists"`
	}
	res := call[response](ctx, c, c.opts.CRUDTimeout, http.MethodGet, "/api/history/"+url.PathEscape(id)+"/exists", nil)
	if f := res.Failure(); f != nil {
		return Fail[bool](f)
	}
	return Ok(res.Value().Exists)
}

// ListHistory 分页列表，status 为空时不过滤
func (c *Client) ListHistory(ctx context.Context, page, pageSize int, status string) Result[*HistoryPage] {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if status != "" {
		q.Set("status", status)
	}
	return call[*HistoryPage](ctx, c, c.opts.CRUDTimeout, http.MethodGet, "/api/history?"+q.Encode(), nil)
}

// SearchHistory 标题搜索
func (c *Client) SearchHistory(ctx context.Context, keyword string) Result[[]entity.RecordSummary] {
	type response struct {
		Records []entity.RecordSummary `json:"records"`
	}
	res := call[response](ctx, c, c.opts.CRUDTimeout, http.MethodGet, "/api/history/search?keyword="+url.QueryEscape(keyword), nil)
	if f := res.Failure(); f != nil {
		return Fail[[]entity.RecordSummary](f)
	}
	return Ok(res.Value().Records)
}

// HistoryStats 按状态统计
func (c *Client) HistoryStats(ctx context.Context) Result[*HistoryStats] {
	return call[*HistoryStats](ctx, c, c.opts.CRUDTimeout, http.MethodGet, "/api/history/stats", nil)
}

// ScanTask 同步单个任务
func (c *Client) ScanTask(ctx context.Context, taskID string) Result[*ScanResult] {
	return lenient[*ScanResult](ctx, c, c.opts.CRUDTimeout, http.MethodPost, "/api/history/scan/"+url.PathEscape(taskID), nil)
}

// ScanAll 全量同步，可能较慢，使用内容生成超时
func (c *Client) ScanAll(ctx context.Context) Result[*ScanAllResult] {
	return call[*ScanAllResult](ctx, c, c.opts.ContentTimeout, http.MethodPost, "/api/history/scan-all", nil)
}

// ListBrands 品牌列表
func (c *Client) ListBrands(ctx context.Context) Result[[]*entity.Brand] {
	type response struct {
		Brands []*entity.Brand `json:"brands"`
	}
	res := call[response](ctx, c, c.opts.CRUDTimeout, http.MethodGet, "/api/brands", nil)
	if f := res.Failure(); f != nil {
		return Fail[[]*entity.Brand](f)
	}
	return Ok(res.Value().Brands)
}

func (c *Client) brandCall(ctx context.Context, method, path string, body any) Result[*entity.Brand] {
	type response struct {
		Brand *entity.Brand `json:"brand"`
	}
	res := call[response](ctx, c, c.opts.CRUDTimeout, method, path, body)
	if f := res.Failure(); f != nil {
		return Fail[*entity.Brand](f)
	}
	return Ok(res.Value().Brand)
}

// CreateBrand 创建品牌
func (c *Client) CreateBrand(ctx context.Context, name string) Result[*entity.Brand] {
	return c.brandCall(ctx, http.MethodPost, "/api/brands", map[string]string{"name": name})
}

// ActivateBrand 激活品牌
func (c *Client) ActivateBrand(ctx context.Context, id string) Result[*entity.Brand] {
	return c.brandCall(ctx, http.MethodPost, "/api/brands/"+url.PathEscape(id)+"/activate", nil)
}

// DeleteBrand 删除品牌
func (c *Client) DeleteBrand(ctx context.Context, id string) Result[struct{}] {
	return call[struct{}](ctx, c, c.opts.CRUDTimeout, http.MethodDelete, "/api/brands/"+url.PathEscape(id), nil)
}

// GetBrand 品牌详情
func (c *Client) GetBrand(ctx context.Context, id string) Result[*BrandDetail] {
	return call[*BrandDetail](ctx, c, c.opts.CRUDTimeout, http.MethodGet, "/api/brands/"+url.PathEscape(id), nil)
}

// ActiveBrand 当前激活品牌，没有时值为 nil
func (c *Client) ActiveBrand(ctx context.Context) Result[*BrandDetail] {
	res := call[*BrandDetail](ctx, c, c.opts.CRUDTimeout, http.MethodGet, "/api/brands/active", nil)
	if d, f := res.Unwrap(); f == nil && (d == nil || d.Brand == nil) {
		return Ok[*BrandDetail](nil)
	}
	return res
}

// AddContent 添加样本，competitor 为 true 时写入竞品
func (c *Client) AddContent(ctx context.Context, brandID string, competitor bool, sample ContentSample) Result[*entity.ContentItem] {
	type response struct {
		Content *entity.ContentItem `json:"content"`
	}
	kind := "contents"
	if competitor {
		kind = "competitors"
	}
	res := call[response](ctx, c, c.opts.ContentTimeout, http.MethodPost, fmt.Sprintf("/api/brands/%s/%s", url.PathEscape(brandID), kind), sample)
	if f := res.Failure(); f != nil {
		return Fail[*entity.ContentItem](f)
	}
	return Ok(res.Value().Content)
}

// UploadLogo multipart 上传 logo
func (c *Client) UploadLogo(ctx context.Context, brandID, filename string, data []byte) Result[*entity.LogoAsset] {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err == nil {
		_, err = part.Write(data)
	}
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		return Fail[*entity.LogoAsset](&Failure{Kind: KindUnknown, Message: err.Error()})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL("/api/brands/"+url.PathEscape(brandID)+"/logo"), &buf)
	if err != nil {
		return Fail[*entity.LogoAsset](&Failure{Kind: KindUnknown, Message: err.Error()})
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	_, raw, failure := c.send(req, c.opts.CRUDTimeout)
	if failure != nil {
		return Fail[*entity.LogoAsset](failure)
	}
	var out struct {
		Logo *entity.LogoAsset `json:"logo"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Fail[*entity.LogoAsset](&Failure{Kind: KindParse, Message: "响应解析失败: " + err.Error()})
	}
	return Ok(out.Logo)
}

// ExtractStyle 提炼品牌风格，耗时较长
func (c *Client) ExtractStyle(ctx context.Context, brandID string) Result[*entity.StyleDNA] {
	type response struct {
		StyleDNA *entity.StyleDNA `json:"style_dna"`
	}
	res := call[response](ctx, c, c.opts.StyleTimeout, http.MethodPost, "/api/brands/"+url.PathEscape(brandID)+"/extract-style", nil)
	if f := res.Failure(); f != nil {
		return Fail[*entity.StyleDNA](f)
	}
	return Ok(res.Value().StyleDNA)
}

// Download 一次性读取的二进制响应（图片、导出文件、压缩包）
type Download struct {
	Body        []byte
	ContentType string
	Filename    string
}

func (c *Client) download(ctx context.Context, path string, timeout time.Duration) Result[*Download] {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path), nil)
	if err != nil {
		return Fail[*Download](&Failure{Kind: KindUnknown, Message: err.Error()})
	}
	header, raw, failure := c.send(req, timeout)
	if failure != nil {
		return Fail[*Download](failure)
	}
	d := &Download{Body: raw, ContentType: header.Get("Content-Type")}
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil {
		d.Filename = params["filename"]
	}
	return Ok(d)
}

// FetchImage 下载任务图片原图
func (c *Client) FetchImage(ctx context.Context, taskID, filename string) Result[[]byte] {
	res := c.download(ctx, ImageURL(taskID, filename), c.opts.CRUDTimeout)
	if f := res.Failure(); f != nil {
		return Fail[[]byte](f)
	}
	return Ok(res.Value().Body)
}

// ExportHistory 导出 markdown 或 html
func (c *Client) ExportHistory(ctx context.Context, id, format string) Result[*Download] {
	return c.download(ctx, "/api/history/"+url.PathEscape(id)+"/export?format="+url.QueryEscape(format), c.opts.CRUDTimeout)
}

// DownloadHistory 打包下载任务图片
func (c *Client) DownloadHistory(ctx context.Context, id string) Result[*Download] {
	return c.download(ctx, "/api/history/"+url.PathEscape(id)+"/download", c.opts.ContentTimeout)
}
