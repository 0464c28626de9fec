package repository

import (
	"context"

	"redink-api/internal/domain/entity"
)

// TaskStore 生成任务上下文存储
// Get 在任务不存在或已过期时返回 (nil, nil)
type TaskStore interface {
	Save(ctx context.Context, task *entity.ImageTask) error
	Get(ctx context.Context, taskID string) (*entity.ImageTask, error)
	Delete(ctx context.Context, taskID string) error
}
