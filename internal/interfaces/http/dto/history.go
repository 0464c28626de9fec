package dto

import (
	"encoding/json"

	"redink-api/internal/application/history"
	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
)

// CreateHistoryRequest POST /api/history
type CreateHistoryRequest struct {
	Topic       string         `json:"topic"`
	Outline     entity.Outline `json:"outline"`
	TaskID      *string        `json:"task_id"`
	ClientToken string         `json:"client_token"`
}

// UpdateHistoryRequest PUT /api/history/:id
// thumbnail 是三态字段：缺省不修改，null 置空，字符串需等于第 0 页图片
type UpdateHistoryRequest struct {
	Title     *string              `json:"title"`
	Outline   *entity.Outline      `json:"outline"`
	Images    *entity.ImageSet     `json:"images"`
	Status    *entity.RecordStatus `json:"status"`
	Thumbnail *string              `json:"thumbnail"`
	Content   *entity.PostContent  `json:"content"`

	hasThumbnail bool
}

// UnmarshalJSON 记录 thumbnail 字段是否出现
func (r *UpdateHistoryRequest) UnmarshalJSON(data []byte) error {
	type plain UpdateHistoryRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*r = UpdateHistoryRequest(p)
	_, r.hasThumbnail = keys["thumbnail"]
	return nil
}

// ToService 转为服务层请求
func (r *UpdateHistoryRequest) ToService() history.UpdateRequest {
	return history.UpdateRequest{
		Title:        r.Title,
		Outline:      r.Outline,
		Images:       r.Images,
		Status:       r.Status,
		Thumbnail:    r.Thumbnail,
		HasThumbnail: r.hasThumbnail,
		Content:      r.Content,
	}
}

// HistoryListResponse GET /api/history
type HistoryListResponse struct {
	Success    bool                   `json:"success"`
	Records    []entity.RecordSummary `json:"records"`
	Total      int64                  `json:"total"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalPages int                    `json:"total_pages"`
}

// ToHistoryListResponse 分页结果转响应
func ToHistoryListResponse(r *repository.PagedResult[entity.RecordSummary]) HistoryListResponse {
	records := r.Items
	if records == nil {
		records = []entity.RecordSummary{}
	}
	return HistoryListResponse{
		Success:    true,
		Records:    records,
		Total:      r.Total,
		Page:       r.Page,
		PageSize:   r.PageSize,
		TotalPages: r.TotalPages,
	}
}
