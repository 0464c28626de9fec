package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
)

// HistoryRepository 历史记录仓储实现
type HistoryRepository struct {
	client *Client
	tx     *TxManager
}

// NewHistoryRepository 创建历史记录仓储
func NewHistoryRepository(client *Client) *HistoryRepository {
	return &HistoryRepository{client: client, tx: NewTxManager(client)}
}

// CreateOrGet 创建记录，按 ClientToken 去重
func (r *HistoryRepository) CreateOrGet(ctx context.Context, record *entity.HistoryRecord) (*entity.HistoryRecord, bool, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.HistoryRepository.CreateOrGet")
	defer span.End()

	var (
		stored  *entity.HistoryRecord
		created bool
	)
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if record.ClientToken != nil {
			existing, err := r.getByToken(ctx, *record.ClientToken)
			if err != nil {
				return err
			}
			if existing != nil {
				stored = existing
				return nil
			}
		}
		if err := getDB(ctx, r.client.db).Create(record).Error; err != nil {
			return err
		}
		stored, created = record, true
		return nil
	})
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) && record.ClientToken != nil {
		// 并发创建时另一方先提交，回读即可
		existing, getErr := r.getByToken(ctx, *record.ClientToken)
		if getErr == nil && existing != nil {
			return existing, false, nil
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("failed to create history record: %w", err)
	}
	return stored, created, nil
}

func (r *HistoryRepository) getByToken(ctx context.Context, token string) (*entity.HistoryRecord, error) {
	var rec entity.HistoryRecord
	err := getDB(ctx, r.client.db).Where("client_token = ?", token).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// GetByID 根据 ID 获取记录
func (r *HistoryRepository) GetByID(ctx context.Context, id string) (*entity.HistoryRecord, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.HistoryRepository.GetByID")
	defer span.End()

	var rec entity.HistoryRecord
	if err := getDB(ctx, r.client.db).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get history record: %w", err)
	}
	return &rec, nil
}

// GetByTaskID 根据任务 ID 获取记录，多条时取最近更新的
func (r *HistoryRepository) GetByTaskID(ctx context.Context, taskID string) (*entity.HistoryRecord, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.HistoryRepository.GetByTaskID")
	defer span.End()

	var rec entity.HistoryRecord
	err := getDB(ctx, r.client.db).
		Where("task_id = ?", taskID).
		Order("updated_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get history record by task: %w", err)
	}
	return &rec, nil
}

// Update 写回记录，columns 为空时写回全部可变列
func (r *HistoryRepository) Update(ctx context.Context, record *entity.HistoryRecord, columns ...string) error {
	ctx, span := tracer.Start(ctx, "sqlstore.HistoryRepository.Update",
		trace.WithAttributes(attribute.StringSlice("db.columns", columns)))
	defer span.End()

	record.TaskID = record.Images.TaskID
	q := getDB(ctx, r.client.db).Model(record)
	if len(columns) == 0 {
		q = q.Select("*").Omit("id", "created_at", "client_token")
	} else {
		q = q.Select(append(slices.Clone(columns), "updated_at"))
	}
	res := q.Updates(record)
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update history record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete 删除记录
func (r *HistoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.HistoryRepository.Delete")
	defer span.End()

	res := getDB(ctx, r.client.db).Delete(&entity.HistoryRecord{}, "id = ?", id)
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to delete history record: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Exists 轻量存在性检查
func (r *HistoryRepository) Exists(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.HistoryRepository.Exists")
	defer span.End()

	var count int64
	if err := getDB(ctx, r.client.db).Model(&entity.HistoryRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check history record: %w", err)
	}
	return count > 0, nil
}

// List 分页列出
func (r *HistoryRepository) List(ctx context.Context, filter *repository.HistoryFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.HistoryRecord], error) {
	ctx, span := tracer.Start(ctx, "sqlstore.HistoryRepository.List")
	defer span.End()

	base := func() *gorm.DB {
		q := getDB(ctx, r.client.db).Model(&entity.HistoryRecord{})
		if filter != nil && filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count history records: %w", err)
	}

	var records []*entity.HistoryRecord
	err := base().
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&records).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list history records: %w", err)
	}
	return repository.NewPagedResult(records, total, pagination), nil
}

// SearchByTitle 标题关键字搜索
func (r *HistoryRepository) SearchByTitle(ctx context.Context, keyword string, limit int) ([]*entity.HistoryRecord, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.HistoryRepository.SearchByTitle")
	defer span.End()

	if limit <= 0 {
		limit = repository.MaxPageSize
	}
	pattern := "%" + escapeLike(strings.ToLower(keyword)) + "%"

	var records []*entity.HistoryRecord
	err := getDB(ctx, r.client.db).
		Where("LOWER(title) LIKE ? ESCAPE '\\'", pattern).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search history records: %w", err)
	}
	return records, nil
}

// Stats 按状态统计
func (r *HistoryRepository) Stats(ctx context.Context) (*repository.HistoryStats, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.HistoryRepository.Stats")
	defer span.End()

	var rows []struct {
		Status entity.RecordStatus
		Count  int64
	}
	err := getDB(ctx, r.client.db).
		Model(&entity.HistoryRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get history stats: %w", err)
	}

	stats := &repository.HistoryStats{ByStatus: make(map[entity.RecordStatus]int64)}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
		stats.Total += row.Count
	}
	return stats, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
