package api

import (
	"encoding/json"

	"redink-api/internal/domain/entity"
)

// OutlineResult 大纲生成结果
type OutlineResult struct {
	Outline    string        `json:"outline"`
	Pages      []entity.Page `json:"pages"`
	HasImages  bool          `json:"has_images"`
	SourceType string        `json:"source_type,omitempty"`
}

// GenerateRequest 批量生成请求，UserImages 为 base64
type GenerateRequest struct {
	Pages           []entity.Page `json:"pages"`
	TaskID          string        `json:"task_id,omitempty"`
	FullOutline     string        `json:"full_outline"`
	UserTopic       string        `json:"user_topic"`
	UserImages      []string      `json:"user_images,omitempty"`
	HighConcurrency bool          `json:"high_concurrency,omitempty"`
}

// RetryFailedRequest 重试失败页面
type RetryFailedRequest struct {
	TaskID string        `json:"task_id"`
	Pages  []entity.Page `json:"pages"`
}

// PageRequest 单页重试 / 重绘
type PageRequest struct {
	TaskID               string      `json:"task_id"`
	Page                 entity.Page `json:"page"`
	UseReference         *bool       `json:"use_reference,omitempty"`
	FullOutline          string      `json:"full_outline,omitempty"`
	UserTopic            string      `json:"user_topic,omitempty"`
	CustomReferenceImage string      `json:"custom_reference_image,omitempty"`
}

// EditRequest 蒙版局部重绘，Mask 为 base64
type EditRequest struct {
	TaskID   string `json:"task_id"`
	Index    int    `json:"index"`
	Prompt   string `json:"prompt"`
	Mask     string `json:"mask"`
	Size     string `json:"size,omitempty"`
	Quality  string `json:"quality,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// CanvasRequest 保存画布，Image 为 base64
type CanvasRequest struct {
	TaskID string `json:"task_id"`
	Index  int    `json:"index"`
	Image  string `json:"image"`
}

// PageResult 单页操作结果
type PageResult struct {
	Success   bool   `json:"success"`
	Index     int    `json:"index"`
	ImageURL  string `json:"image_url,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// TaskState 服务端任务状态
type TaskState struct {
	Generated map[int]string `json:"generated"`
	Failed    map[int]string `json:"failed"`
	HasCover  bool           `json:"has_cover"`
}

// CreateHistoryRequest 创建记录
type CreateHistoryRequest struct {
	Topic       string         `json:"topic"`
	Outline     entity.Outline `json:"outline"`
	TaskID      string         `json:"task_id,omitempty"`
	ClientToken string         `json:"client_token,omitempty"`
}

// HistoryUpdate 部分更新，nil 字段不发送
type HistoryUpdate struct {
	Title     *string              `json:"title,omitempty"`
	Outline   *entity.Outline      `json:"outline,omitempty"`
	Images    *entity.ImageSet     `json:"images,omitempty"`
	Status    *entity.RecordStatus `json:"status,omitempty"`
	Thumbnail *string              `json:"thumbnail,omitempty"`
	Content   *entity.PostContent  `json:"content,omitempty"`

	// ClearThumbnail 显式写入 thumbnail:null
	ClearThumbnail bool `json:"-"`
}

// HistoryPage 分页列表
type HistoryPage struct {
	Records    []entity.RecordSummary `json:"records"`
	Total      int64                  `json:"total"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalPages int                    `json:"total_pages"`
}

// HistoryStats 按状态统计
type HistoryStats struct {
	Total    int64                         `json:"total"`
	ByStatus map[entity.RecordStatus]int64 `json:"by_status"`
}

// ScanResult 单个任务的同步结果
type ScanResult struct {
	Success     bool                `json:"success"`
	TaskID      string              `json:"task_id"`
	RecordID    string              `json:"record_id,omitempty"`
	ImagesCount int                 `json:"images_count"`
	Images      []*string           `json:"images"`
	Status      entity.RecordStatus `json:"status,omitempty"`
	NoRecord    bool                `json:"no_record,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// ScanAllResult 全量同步结果
type ScanAllResult struct {
	TotalTasks  int           `json:"total_tasks"`
	Synced      int           `json:"synced"`
	Failed      int           `json:"failed"`
	OrphanTasks []string      `json:"orphan_tasks"`
	Results     []*ScanResult `json:"results"`
}

// BrandDetail 品牌详情
type BrandDetail struct {
	Brand              *entity.Brand         `json:"brand"`
	Logos              []entity.LogoAsset    `json:"logos"`
	CompanyContents    []*entity.ContentItem `json:"company_contents"`
	CompetitorContents []*entity.ContentItem `json:"competitor_contents"`
}

// ContentSample 添加样本，图片由服务端下载
type ContentSample struct {
	Type      entity.ContentSource `json:"type,omitempty"`
	Title     string               `json:"title"`
	Text      string               `json:"text"`
	SourceURL string               `json:"source_url,omitempty"`
	ImageURLs []string             `json:"image_urls,omitempty"`
}

// LinkData 链接解析出的文章
type LinkData struct {
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	Images    []string `json:"images"`
	SourceURL string   `json:"source_url"`
}

// LinkResult 链接解析结果，失败时 Fallback 为 manual
type LinkResult struct {
	Success  bool      `json:"success"`
	Data     *LinkData `json:"data,omitempty"`
	Partial  bool      `json:"partial,omitempty"`
	Message  string    `json:"message,omitempty"`
	Error    string    `json:"error,omitempty"`
	Fallback string    `json:"fallback,omitempty"`
}

// MarshalJSON 只输出设置过的字段，ClearThumbnail 时写出 thumbnail:null
func (u HistoryUpdate) MarshalJSON() ([]byte, error) {
	body := map[string]any{}
	if u.Title != nil {
		body["title"] = *u.Title
	}
	if u.Outline != nil {
		body["outline"] = u.Outline
	}
	if u.Images != nil {
		body["images"] = u.Images
	}
	if u.Status != nil {
		body["status"] = *u.Status
	}
	switch {
	case u.Thumbnail != nil:
		body["thumbnail"] = *u.Thumbnail
	case u.ClearThumbnail:
		body["thumbnail"] = nil
	}
	if u.Content != nil {
		body["content"] = u.Content
	}
	return json.Marshal(body)
}
