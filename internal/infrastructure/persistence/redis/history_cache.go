package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
	"redink-api/pkg/logger"
)

// CachedHistoryRepository 为 GetByID 增加读缓存的历史记录仓储
// 写操作先落库再删缓存，不缓存不存在的记录
type CachedHistoryRepository struct {
	repository.HistoryRepository
	cache *Cache
	ttl   time.Duration
}

var _ repository.HistoryRepository = (*CachedHistoryRepository)(nil)

// NewCachedHistoryRepository 包装历史记录仓储
func NewCachedHistoryRepository(inner repository.HistoryRepository, cache *Cache, ttl time.Duration) *CachedHistoryRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedHistoryRepository{HistoryRepository: inner, cache: cache, ttl: ttl}
}

// GetByID Read-Through 读取
func (r *CachedHistoryRepository) GetByID(ctx context.Context, id string) (*entity.HistoryRecord, error) {
	data, err := r.cache.Load(ctx, RecordKey(id), r.ttl, func(ctx context.Context) (any, error) {
		record, err := r.HistoryRepository.GetByID(ctx, id)
		if err != nil {
			return nil, &loaderError{err: err}
		}
		if record == nil {
			return nil, nil
		}
		return record, nil
	})
	if err != nil {
		var le *loaderError
		if errors.As(err, &le) {
			return nil, le.err
		}
		// 缓存故障降级到数据库
		logger.Warn(ctx, "record cache unavailable", "record_id", id, "error", err)
		return r.HistoryRepository.GetByID(ctx, id)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var record entity.HistoryRecord
	if err := json.Unmarshal(data, &record); err != nil {
		_ = r.cache.Evict(ctx, RecordKey(id))
		return nil, fmt.Errorf("failed to decode cached record: %w", err)
	}
	// ClientToken/TaskID 不参与 JSON，恢复 TaskID
	record.TaskID = record.Images.TaskID
	return &record, nil
}

// CreateOrGet 创建后使缓存失效
func (r *CachedHistoryRepository) CreateOrGet(ctx context.Context, record *entity.HistoryRecord) (*entity.HistoryRecord, bool, error) {
	stored, created, err := r.HistoryRepository.CreateOrGet(ctx, record)
	if err == nil && stored != nil {
		r.invalidate(ctx, stored.ID)
	}
	return stored, created, err
}

// Update 写库后使缓存失效
func (r *CachedHistoryRepository) Update(ctx context.Context, record *entity.HistoryRecord, columns ...string) error {
	err := r.HistoryRepository.Update(ctx, record, columns...)
	r.invalidate(ctx, record.ID)
	return err
}

// Delete 删除后使缓存失效
func (r *CachedHistoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	existed, err := r.HistoryRepository.Delete(ctx, id)
	r.invalidate(ctx, id)
	return existed, err
}

func (r *CachedHistoryRepository) invalidate(ctx context.Context, id string) {
	if err := r.cache.Evict(ctx, RecordKey(id)); err != nil {
		logger.Warn(ctx, "failed to invalidate record cache", "record_id", id, "error", err)
	}
}

// loaderError 标记来自数据库加载阶段的错误
type loaderError struct{ err error }

func (e *loaderError) Error() string { return e.err.Error() }
func (e *loaderError) Unwrap() error { return e.err }
