// Package entity 定义领域实体
package entity

import (
	"time"

	"gorm.io/gorm"
)

// RecordStatus 历史记录状态
type RecordStatus string

const (
	RecordStatusDraft      RecordStatus = "draft"
	RecordStatusGenerating RecordStatus = "generating"
	RecordStatusPartial    RecordStatus = "partial"
	RecordStatusCompleted  RecordStatus = "completed"
)

// Valid 检查状态是否合法
func (s RecordStatus) Valid() bool {
	switch s {
	case RecordStatusDraft, RecordStatusGenerating, RecordStatusPartial, RecordStatusCompleted:
		return true
	}
	return false
}

// Terminal 终态可以由图片列表推导，generating 不能
func (s RecordStatus) Terminal() bool {
	return s == RecordStatusDraft || s == RecordStatusPartial || s == RecordStatusCompleted
}

// Outline 大纲：原始文本 + 解析后的页面
type Outline struct {
	Raw   string `json:"raw"`
	Pages []Page `json:"pages"`
}

// ImageSet 一次生成任务的图片列表，按页码对齐，nil 表示该页尚无图片
type ImageSet struct {
	TaskID    *string   `json:"task_id"`
	Generated []*string `json:"generated"`
}

// Clone 深拷贝
func (s ImageSet) Clone() ImageSet {
	out := ImageSet{Generated: make([]*string, len(s.Generated))}
	if s.TaskID != nil {
		tid := *s.TaskID
		out.TaskID = &tid
	}
	for i, f := range s.Generated {
		if f != nil {
			v := *f
			out.Generated[i] = &v
		}
	}
	return out
}

// PostContent 标题/文案/标签
type PostContent struct {
	Titles      []string `json:"titles"`
	Copywriting string   `json:"copywriting"`
	Tags        []string `json:"tags"`
}

// HistoryRecord 一次创作会话的持久化单元
type HistoryRecord struct {
	ID        string       `json:"id" gorm:"type:varchar(64);primaryKey"`
	Title     string       `json:"title" gorm:"type:varchar(255);not null"`
	Outline   Outline      `json:"outline" gorm:"type:jsonb;serializer:json"`
	Images    ImageSet     `json:"images" gorm:"type:jsonb;serializer:json"`
	Status    RecordStatus `json:"status" gorm:"type:varchar(20);index;not null;default:'draft'"`
	Thumbnail *string      `json:"thumbnail"`
	Content   *PostContent `json:"content,omitempty" gorm:"type:jsonb;serializer:json"`

	// TaskID 冗余自 Images.TaskID，用于按任务反查记录
	TaskID *string `json:"-" gorm:"type:varchar(64);index"`
	// ClientToken 客户端生成的幂等令牌，创建时去重
	ClientToken *string `json:"-" gorm:"type:varchar(64);uniqueIndex"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (HistoryRecord) TableName() string {
	return "history_records"
}

// BeforeSave 保持 TaskID 与 Images.TaskID 一致
func (r *HistoryRecord) BeforeSave(_ *gorm.DB) error {
	r.TaskID = r.Images.TaskID
	return nil
}

// NewHistoryRecord 创建草稿记录，图片列表长度与页数一致
func NewHistoryRecord(id, title string, outline Outline, taskID *string) *HistoryRecord {
	now := time.Now()
	if outline.Pages == nil {
		outline.Pages = []Page{}
	}
	return &HistoryRecord{
		ID:      id,
		Title:   title,
		Outline: outline,
		Images: ImageSet{
			TaskID:    taskID,
			Generated: make([]*string, len(outline.Pages)),
		},
		Status:    RecordStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PageCount 大纲页数
func (r *HistoryRecord) PageCount() int {
	return len(r.Outline.Pages)
}

// DerivedStatus 按当前图片列表推导状态
func (r *HistoryRecord) DerivedStatus() RecordStatus {
	return DeriveStatus(r.Images.Generated, r.PageCount())
}

// Summary 列表展示用摘要
func (r *HistoryRecord) Summary() RecordSummary {
	return RecordSummary{
		ID:        r.ID,
		Title:     r.Title,
		Status:    r.Status,
		Thumbnail: r.Thumbnail,
		PageCount: r.PageCount(),
		TaskID:    r.Images.TaskID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// RecordSummary 历史列表条目
type RecordSummary struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Status    RecordStatus `json:"status"`
	Thumbnail *string      `json:"thumbnail"`
	PageCount int          `json:"page_count"`
	TaskID    *string      `json:"task_id"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
