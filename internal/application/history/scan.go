package history

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
	"redink-api/internal/infrastructure/storage"
	apperrors "redink-api/pkg/errors"
	"redink-api/pkg/logger"
	"redink-api/pkg/metrics"
)

const scanConcurrency = 4

// ScanResult 单个任务目录的同步结果
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

// ScanAllResult 全量同步结果，从不删除任何数据
type ScanAllResult struct {
	TotalTasks  int           `json:"total_tasks"`
	Synced      int           `json:"synced"`
	Failed      int           `json:"failed"`
	OrphanTasks []string      `json:"orphan_tasks"`
	Results     []*ScanResult `json:"results"`
}

// ScanTask 扫描任务目录并修复对应记录的图片列表
// 记录中仍存在于磁盘上的文件名保持不变（用户可能选中了旧版本），只补空位和文件已丢失的页
func (s *Service) ScanTask(ctx context.Context, taskID string) (*ScanResult, error) {
	ctx = logger.WithContext(ctx, logger.TaskIDKey, taskID)
	if !s.store.DirExists(taskID) {
		metrics.HistorySyncTotal.WithLabelValues("failed").Inc()
		return nil, apperrors.ErrTaskNotFound.WithDetail("任务目录不存在: " + taskID)
	}
	files, err := s.store.PageImages(taskID)
	if err != nil {
		metrics.HistorySyncTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, storage.ErrInvalidPath) {
			return nil, apperrors.ErrInvalidParam.WithDetail("非法的任务 ID").WithError(err)
		}
		return nil, apperrors.ErrStorageError.WithError(err)
	}

	rec, err := s.repo.GetByTaskID(ctx, taskID)
	if err != nil {
		metrics.HistorySyncTotal.WithLabelValues("failed").Inc()
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}
	if rec == nil {
		metrics.HistorySyncTotal.WithLabelValues("orphan").Inc()
		images := alignFiles(files, 0)
		return &ScanResult{Success: true, TaskID: taskID, ImagesCount: countFiles(images), Images: images, NoRecord: true}, nil
	}
	ctx = logger.WithContext(ctx, logger.RecordIDKey, rec.ID)

	present, err := s.store.List(taskID)
	if err != nil {
		metrics.HistorySyncTotal.WithLabelValues("failed").Inc()
		return nil, apperrors.ErrStorageError.WithError(err)
	}

	tid := taskID
	rec.Images = entity.ImageSet{TaskID: &tid, Generated: mergeFiles(rec.Images.Generated, files, present, rec.PageCount())}
	rec.Thumbnail = entity.ThumbnailFor(rec.Images.Generated)
	columns := []string{repository.HistoryColumnImages, repository.HistoryColumnTaskID, repository.HistoryColumnThumbnail}
	// generating 表示客户端仍在写入，状态留给它收尾
	if rec.Status != entity.RecordStatusGenerating {
		rec.Status = rec.DerivedStatus()
		columns = append(columns, repository.HistoryColumnStatus)
	}
	if err := s.repo.Update(ctx, rec, columns...); err != nil {
		metrics.HistorySyncTotal.WithLabelValues("failed").Inc()
		return nil, apperrors.ErrDatabaseError.WithError(err)
	}

	metrics.HistorySyncTotal.WithLabelValues("synced").Inc()
	count := countFiles(rec.Images.Generated)
	logger.Info(ctx, "task images synced", "images", count, "status", rec.Status)
	return &ScanResult{
		Success:     true,
		TaskID:      taskID,
		RecordID:    rec.ID,
		ImagesCount: count,
		Images:      rec.Images.Generated,
		Status:      rec.Status,
	}, nil
}

// ScanAll 扫描全部任务目录
func (s *Service) ScanAll(ctx context.Context) (*ScanAllResult, error) {
	dirs, err := s.store.ListDirs()
	if err != nil {
		return nil, apperrors.ErrStorageError.WithError(err)
	}

	results := make([]*ScanResult, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, dir := range dirs {
		g.Go(func() error {
			res, err := s.ScanTask(gctx, dir)
			if err != nil {
				res = &ScanResult{TaskID: dir, Error: err.Error()}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := &ScanAllResult{TotalTasks: len(dirs), OrphanTasks: []string{}, Results: results}
	for _, res := range results {
		switch {
		case !res.Success:
			out.Failed++
		case res.NoRecord:
			out.OrphanTasks = append(out.OrphanTasks, res.TaskID)
		default:
			out.Synced++
		}
	}
	logger.Info(ctx, "scan all finished", "tasks", out.TotalTasks, "synced", out.Synced, "failed", out.Failed, "orphans", len(out.OrphanTasks))
	return out, nil
}

// alignFiles 按页码对齐文件名；pageCount 为 0 时按最大页码推断长度
func alignFiles(files map[int]entity.ImageFile, pageCount int) []*string {
	n := pageCount
	if n == 0 {
		for i := range files {
			n = max(n, i+1)
		}
	}
	out := make([]*string, n)
	for i := 0; i < n; i++ {
		if f, ok := files[i]; ok {
			out[i] = entity.StringPtr(f.Name)
		}
	}
	return out
}

// mergeFiles 保留 stored 中仍然存在且属于该页的文件名，其余位置取该页最新版本
func mergeFiles(stored []*string, files map[int]entity.ImageFile, present []string, pageCount int) []*string {
	onDisk := make(map[string]bool, len(present))
	for _, name := range present {
		onDisk[name] = true
	}
	out := alignFiles(files, pageCount)
	for i := range out {
		if i >= len(stored) || stored[i] == nil {
			continue
		}
		if f, ok := entity.ParseImageFile(*stored[i]); ok && f.Index == i && onDisk[f.Name] {
			out[i] = entity.StringPtr(f.Name)
		}
	}
	return out
}

func countFiles(images []*string) int {
	n := 0
	for _, f := range images {
		if f != nil {
			n++
		}
	}
	return n
}
