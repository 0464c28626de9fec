// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
	"redink-api/internal/infrastructure/imaging"
	apperrors "redink-api/pkg/errors"
)

// PageRequest 分页请求参数
type PageRequest struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"page_size"`
}

// Normalize 规范化分页参数
func (r *PageRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = repository.DefaultPageSize
	}
	if r.PageSize > repository.MaxPageSize {
		r.PageSize = repository.MaxPageSize
	}
}

// BindPage 从 Gin Context 绑定分页参数
func BindPage(c *gin.Context) PageRequest {
	req := PageRequest{
		Page:     parseIntWithDefault(c.Query("page"), 1),
		PageSize: parseIntWithDefault(c.Query("page_size"), repository.DefaultPageSize),
	}
	req.Normalize()
	return req
}

// parseIntWithDefault 解析整数，失败时返回默认值
func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// DecodeImage 解码 base64 图片（允许 data URL 前缀），字段为空时返回 nil
func DecodeImage(field, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	data, err := imaging.DecodeBase64(s)
	if err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail(field + " 不是合法的 base64 图片").WithError(err)
	}
	return data, nil
}

// DecodeImages 逐个解码 base64 图片
func DecodeImages(field string, list []string) ([][]byte, error) {
	out := make([][]byte, 0, len(list))
	for _, s := range list {
		data, err := DecodeImage(field, s)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			out = append(out, data)
		}
	}
	return out, nil
}

// OutlineRequest POST /api/outline
type OutlineRequest struct {
	Topic  string   `json:"topic" form:"topic"`
	Images []string `json:"images"`
}

// GenerateRequest POST /api/generate
type GenerateRequest struct {
	Pages           []entity.Page `json:"pages"`
	TaskID          string        `json:"task_id"`
	FullOutline     string        `json:"full_outline"`
	UserImages      []string      `json:"user_images"`
	UserTopic       string        `json:"user_topic"`
	HighConcurrency bool          `json:"high_concurrency"`
}

// RetryFailedRequest POST /api/retry-failed
type RetryFailedRequest struct {
	TaskID string        `json:"task_id"`
	Pages  []entity.Page `json:"pages"`
}

// SinglePageRequest POST /api/retry 与 /api/regenerate
type SinglePageRequest struct {
	TaskID               string       `json:"task_id"`
	Page                 *entity.Page `json:"page"`
	UseReference         *bool        `json:"use_reference"`
	FullOutline          string       `json:"full_outline"`
	UserTopic            string       `json:"user_topic"`
	CustomReferenceImage string       `json:"custom_reference_image"`
}

// UseRef use_reference 缺省为 true
func (r *SinglePageRequest) UseRef() bool {
	return r.UseReference == nil || *r.UseReference
}

// EditRequest POST /api/edit
type EditRequest struct {
	TaskID   string `json:"task_id"`
	Index    *int   `json:"index"`
	Prompt   string `json:"prompt"`
	Mask     string `json:"mask"`
	Size     string `json:"size"`
	Quality  string `json:"quality"`
	Model    string `json:"model"`
	Filename string `json:"filename"`
}

// SaveCanvasRequest POST /api/save-canvas
type SaveCanvasRequest struct {
	Image  string `json:"image"`
	TaskID string `json:"task_id"`
	Index  *int   `json:"index"`
}

// ApplyLogoRequest POST /api/apply-logo
type ApplyLogoRequest struct {
	Image     string `json:"image"`
	LogoStyle string `json:"logo_style"`
}

// ContentRequest POST /api/content
type ContentRequest struct {
	Topic   string `json:"topic"`
	Outline string `json:"outline"`
}

// ParseLinkRequest POST /api/parse-link
type ParseLinkRequest struct {
	URL string `json:"url"`
}
