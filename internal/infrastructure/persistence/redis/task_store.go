package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
)

// TaskStore 基于 Redis 的任务上下文存储，JSON + TTL
type TaskStore struct {
	client *Client
	ttl    time.Duration
}

var _ repository.TaskStore = (*TaskStore)(nil)

// NewTaskStore 创建任务存储
func NewTaskStore(client *Client, ttl time.Duration) *TaskStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TaskStore{client: client, ttl: ttl}
}

// Save 写入任务上下文并刷新过期时间
func (s *TaskStore) Save(ctx context.Context, task *entity.ImageTask) error {
	ctx, span := startSpan(ctx, "redis.TaskStore.Save", attribute.String("task_id", task.TaskID))
	defer span.End()

	data, err := json.Marshal(task)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := s.client.rdb.Set(ctx, TaskKey(task.TaskID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Get 读取任务上下文
func (s *TaskStore) Get(ctx context.Context, taskID string) (*entity.ImageTask, error) {
	ctx, span := startSpan(ctx, "redis.TaskStore.Get", attribute.String("task_id", taskID))
	defer span.End()

	data, err := s.client.rdb.Get(ctx, TaskKey(taskID)).Bytes()
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, err
	}

	var task entity.ImageTask
	if err := json.Unmarshal(data, &task); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Delete 删除任务上下文
func (s *TaskStore) Delete(ctx context.Context, taskID string) error {
	ctx, span := startSpan(ctx, "redis.TaskStore.Delete", attribute.String("task_id", taskID))
	defer span.End()

	if err := s.client.rdb.Del(ctx, TaskKey(taskID)).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
