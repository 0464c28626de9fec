// Package history 历史记录：创建去重、写入时不变量校验、任务图片同步与导出
package history

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
	"redink-api/internal/infrastructure/storage"
	apperrors "redink-api/pkg/errors"
	"redink-api/pkg/logger"
)

// Service 历史记录服务
type Service struct {
	repo  repository.HistoryRepository
	store *storage.LocalStore
}

// NewService 创建历史记录服务
func NewService(repo repository.HistoryRepository, store *storage.LocalStore) *Service {
	return &Service{repo: repo, store: store}
}

// CreateRequest 创建记录请求
type CreateRequest struct {
	Topic       string
	Outline     entity.Outline
	TaskID      *string
	ClientToken string
}

// Create 创建草稿记录；同一 ClientToken 重复提交时返回已有记录 ID
func (s *Service) Create(ctx context.Context, req CreateRequest) (string, bool, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return "", false, apperrors.ErrInvalidParam.WithDetail("topic 不能为空")
	}

	for i := range req.Outline.Pages {
		req.Outline.Pages[i].Index = i
	}
	record := entity.NewHistoryRecord(uuid.NewString(), topic, req.Outline, req.TaskID)
	if token := strings.TrimSpace(req.ClientToken); token != "" {
		record.ClientToken = &token
	}

	stored, created, err := s.repo.CreateOrGet(ctx, record)
	if err != nil {
		return "", false, apperrors.ErrDatabaseError.WithError(err)
	}
	ctx = logger.WithContext(ctx, logger.RecordIDKey, stored.ID)
	if created {
		logger.Info(ctx, "history record created", "pages", record.PageCount())
	} else {
		logger.Info(ctx, "history record deduplicated by client token")
	}
	return stored.ID, created, nil
}

// Get 获取记录详情
func (s *Service) Get(ctx context.Context, id string) (*entity.HistoryRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	if rec == nil {
		return nil, apperrors.ErrRecordNotFound.WithDetail(id)
	}
	return rec, nil
}

// List 分页列出记录摘要
func (s *Service) List(ctx context.Context, status string, page, pageSize int) (*repository.PagedResult[entity.RecordSummary], error) {
	filter := &repository.HistoryFilter{}
	if status != "" {
		st := entity.RecordStatus(status)
		if !st.Valid() {
			return nil, apperrors.ErrInvalidParam.WithDetail("未知的状态: " + status)
		}
		filter.Status = st
	}

	pagination := repository.NewPagination(page, pageSize)
	result, err := s.repo.List(ctx, filter, pagination)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	items := make([]entity.RecordSummary, 0, len(result.Items))
	for _, rec := range result.Items {
		items = append(items, rec.Summary())
	}
	return repository.NewPagedResult(items, result.Total, pagination), nil
}

// UpdateRequest 部分更新，nil 字段保持不变
// HasThumbnail 区分“未提供”和“显式置空”
type UpdateRequest struct {
	Title        *string
	Outline      *entity.Outline
	Images       *entity.ImageSet
	Status       *entity.RecordStatus
	Thumbnail    *string
	HasThumbnail bool
	Content      *entity.PostContent
}

// Update 按字段替换并在写入前校验不变量：
//   - thumbnail 必须等于 images.generated[0] 或为空
//   - 同时提交 images 时，终态 status 必须与推导结果一致
//   - 只提交 images 且当前为终态时由服务端重新推导状态
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*entity.HistoryRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithContext(ctx, logger.RecordIDKey, id)

	// 只写回本次请求涉及的列，文案与图片的并发写入互不覆盖
	var columns []string
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, apperrors.ErrInvalidParam.WithDetail("title 不能为空")
		}
		rec.Title = title
		columns = append(columns, repository.HistoryColumnTitle)
	}
	if req.Outline != nil {
		rec.Outline = *req.Outline
		if rec.Outline.Pages == nil {
			rec.Outline.Pages = []entity.Page{}
		}
		columns = append(columns, repository.HistoryColumnOutline)
	}
	if req.Images != nil {
		images := req.Images.Clone()
		if images.Generated == nil {
			images.Generated = []*string{}
		}
		if images.TaskID == nil {
			images.TaskID = rec.Images.TaskID
		}
		rec.Images = images
		columns = append(columns, repository.HistoryColumnImages, repository.HistoryColumnTaskID)
	}

	derived := rec.DerivedStatus()
	switch {
	case req.Status != nil:
		st := *req.Status
		if !st.Valid() {
			return nil, apperrors.ErrInvalidParam.WithDetail("未知的状态: " + string(st))
		}
		if req.Images != nil && st.Terminal() && st != derived {
			return nil, apperrors.ErrInvalidParam.WithDetail(
				"status " + string(st) + " 与图片列表推导结果 " + string(derived) + " 不一致")
		}
		rec.Status = st
		columns = append(columns, repository.HistoryColumnStatus)
	case req.Images != nil && rec.Status.Terminal():
		rec.Status = derived
		columns = append(columns, repository.HistoryColumnStatus)
	}

	switch {
	case req.HasThumbnail:
		if !entity.ThumbnailMatches(req.Thumbnail, rec.Images.Generated) {
			return nil, apperrors.ErrInvalidParam.WithDetail("thumbnail 必须等于第 0 页图片")
		}
		rec.Thumbnail = entity.ThumbnailFor(rec.Images.Generated)
		columns = append(columns, repository.HistoryColumnThumbnail)
	case req.Images != nil:
		rec.Thumbnail = entity.ThumbnailFor(rec.Images.Generated)
		columns = append(columns, repository.HistoryColumnThumbnail)
	}

	if req.Content != nil {
		content := *req.Content
		rec.Content = &content
		columns = append(columns, repository.HistoryColumnContent)
	}
	if len(columns) == 0 {
		return rec, nil
	}

	if err := s.repo.Update(ctx, rec, columns...); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrRecordNotFound.WithDetail(id)
		}
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	logger.Debug(ctx, "history record updated", "status", rec.Status)
	return rec, nil
}

// Delete 删除记录及其任务图片目录
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	ctx = logger.WithContext(ctx, logger.RecordIDKey, id)

	existed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return apperrors.ErrDatabaseError.WithError(err)
	}
	if !existed {
		return apperrors.ErrRecordNotFound.WithDetail(id)
	}

	if rec.Images.TaskID != nil && *rec.Images.TaskID != "" {
		if err := s.store.RemoveDir(*rec.Images.TaskID); err != nil {
			logger.Warn(ctx, "failed to remove task images", "task_id", *rec.Images.TaskID, "error", err.Error())
		}
	}
	logger.Info(ctx, "history record deleted")
	return nil
}

// Exists 直接查询存储层，不经过缓存
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, apperrors.ErrDatabaseError.WithError(err)
	}
	return ok, nil
}

// Search 标题关键字搜索
func (s *Service) Search(ctx context.Context, keyword string) ([]entity.RecordSummary, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("keyword 不能为空")
	}
	records, err := s.repo.SearchByTitle(ctx, keyword, repository.MaxPageSize)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	out := make([]entity.RecordSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Summary())
	}
	return out, nil
}

// Stats 按状态统计
func (s *Service) Stats(ctx context.Context) (*repository.HistoryStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	return stats, nil
}
