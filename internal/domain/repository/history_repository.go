package repository

import (
	"context"

	"redink-api/internal/domain/entity"
)

// HistoryFilter 历史记录过滤条件
type HistoryFilter struct {
	Status entity.RecordStatus
}

// HistoryStats 历史记录统计
type HistoryStats struct {
	Total    int64                         `json:"total"`
	ByStatus map[entity.RecordStatus]int64 `json:"by_status"`
}

// 可单独写回的历史记录列
const (
	HistoryColumnTitle     = "title"
	HistoryColumnOutline   = "outline"
	HistoryColumnImages    = "images"
	HistoryColumnTaskID    = "task_id"
	HistoryColumnStatus    = "status"
	HistoryColumnThumbnail = "thumbnail"
	HistoryColumnContent   = "content"
)

// HistoryRepository 历史记录仓储接口
type HistoryRepository interface {
	// CreateOrGet 创建记录；ClientToken 已存在时返回已有记录，created=false
	CreateOrGet(ctx context.Context, record *entity.HistoryRecord) (stored *entity.HistoryRecord, created bool, err error)

	// GetByID 根据 ID 获取记录，不存在返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.HistoryRecord, error)

	// GetByTaskID 根据生成任务 ID 获取记录，不存在返回 (nil, nil)
	GetByTaskID(ctx context.Context, taskID string) (*entity.HistoryRecord, error)

	// Update 写回记录；columns 为空时写回全部可变列，否则只写这些列
	// 不同写入方各自只写自己负责的列，互不覆盖
	Update(ctx context.Context, record *entity.HistoryRecord, columns ...string) error

	// Delete 删除记录，返回是否存在
	Delete(ctx context.Context, id string) (bool, error)

	// Exists 轻量存在性检查
	Exists(ctx context.Context, id string) (bool, error)

	// List 分页列出，按创建时间倒序
	List(ctx context.Context, filter *HistoryFilter, pagination Pagination) (*PagedResult[*entity.HistoryRecord], error)

	// SearchByTitle 标题关键字搜索（不区分大小写）
	SearchByTitle(ctx context.Context, keyword string, limit int) ([]*entity.HistoryRecord, error)

	// Stats 按状态统计
	Stats(ctx context.Context) (*HistoryStats, error)
}
