package generation

import (
	"context"
	"errors"
	"strings"
	"time"

	"redink-api/internal/domain/entity"
	"redink-api/internal/infrastructure/imaging"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/infrastructure/messaging"
	"redink-api/internal/infrastructure/storage"
	apperrors "redink-api/pkg/errors"
	"redink-api/pkg/logger"
	"redink-api/pkg/metrics"
)

const defaultEditSize = "1024x1024"

// ErrNoLogo 当前没有可用的品牌 logo
var ErrNoLogo = apperrors.New(apperrors.CodeInvalidState, "当前品牌未上传 logo")

// PageRequest 单页重试 / 重绘请求
type PageRequest struct {
	TaskID          string
	Page            entity.Page
	UseReference    bool
	FullOutline     string
	UserTopic       string
	CustomReference []byte
}

// PageResult 单页操作结果，生成失败时 Success=false 且 Retryable=true
type PageResult struct {
	Success   bool   `json:"success"`
	Index     int    `json:"index"`
	ImageURL  string `json:"image_url,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Retry 重新生成并覆盖 {index}.png
func (s *Service) Retry(ctx context.Context, req PageRequest) (*PageResult, error) {
	return s.single(ctx, req, PhaseRetry)
}

// Regenerate 重新生成为新版本 {index}_vN.png，旧版本保留
func (s *Service) Regenerate(ctx context.Context, req PageRequest) (*PageResult, error) {
	return s.single(ctx, req, PhaseRegenerate)
}

func (s *Service) single(ctx context.Context, req PageRequest, phase string) (*PageResult, error) {
	if strings.TrimSpace(req.TaskID) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("task_id 和 page 不能为空")
	}
	if err := s.store.EnsureDir(req.TaskID); err != nil {
		return nil, taskDirError(err)
	}
	ctx = logger.WithContext(ctx, logger.TaskIDKey, req.TaskID)

	task, err := s.loadTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if req.FullOutline != "" {
		task.FullOutline = req.FullOutline
	}
	if req.UserTopic != "" {
		task.UserTopic = req.UserTopic
	}
	upsertPage(task, req.Page)

	refs := s.loadUserRefs(ctx, req.TaskID)
	switch {
	case len(req.CustomReference) > 0:
		refs = append(refs, reference(req.CustomReference))
	case req.UseReference:
		if cover := s.coverRef(ctx, task); cover != nil {
			refs = append(refs, cover)
		}
	}

	index := req.Page.Index
	filename := entity.PageFilename(index)
	if phase == PhaseRegenerate {
		filename = ""
	}

	_, filename, err = s.generatePage(ctx, task, req.Page, refs, filename, phase)
	if err != nil {
		// 重绘失败时该页原有版本仍然有效
		if _, kept := task.Generated[index]; !kept || phase != PhaseRegenerate {
			task.MarkFailed(index, err.Error())
			s.saveTask(ctx, task)
		}
		return &PageResult{Success: false, Index: index, Error: err.Error(), Retryable: true}, nil
	}

	task.MarkDone(index, filename)
	if index == entity.CoverIndex(task.Pages) {
		task.HasCover = true
		task.CoverFile = filename
	}
	s.saveTask(ctx, task)
	s.publishEdit(ctx, req.TaskID, index, filename)
	return &PageResult{Success: true, Index: index, ImageURL: ImageURL(req.TaskID, filename), Filename: filename}, nil
}

// EditRequest 蒙版重绘请求，Filename 为空时使用该页最新版本
type EditRequest struct {
	TaskID   string
	Index    int
	Prompt   string
	Mask     []byte
	Size     string
	Quality  string
	Model    string
	Filename string
}

// Edit 对当前页面图片做蒙版重绘，结果保存为新版本
func (s *Service) Edit(ctx context.Context, req EditRequest) (*PageResult, error) {
	if req.TaskID == "" || req.Index < 0 || strings.TrimSpace(req.Prompt) == "" || len(req.Mask) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("task_id, index, prompt, mask 均为必填项")
	}
	ctx = logger.WithContext(ctx, logger.TaskIDKey, req.TaskID)

	source, err := s.sourceFile(req.TaskID, req.Index, req.Filename)
	if err != nil {
		return nil, err
	}
	image, err := s.store.Read(req.TaskID, source)
	if err != nil {
		return nil, storageError(err)
	}

	size := req.Size
	if size == "" {
		size = defaultEditSize
	}
	start := time.Now()
	raw, err := s.provider.Edit(ctx, llm.EditRequest{
		Image:   image,
		Mask:    req.Mask,
		Prompt:  req.Prompt,
		Size:    size,
		Quality: req.Quality,
		Model:   req.Model,
	})
	metrics.ImageGenerationDuration.WithLabelValues(PhaseEdit).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ImageGenerationTotal.WithLabelValues(PhaseEdit, "failed").Inc()
		logger.Error(ctx, "image edit failed", err, "index", req.Index, "source", source)
		return &PageResult{Success: false, Index: req.Index, Error: err.Error(), Retryable: true}, nil
	}

	filename, err := s.saveVersion(ctx, req.TaskID, req.Index, raw)
	if err != nil {
		metrics.ImageGenerationTotal.WithLabelValues(PhaseEdit, "failed").Inc()
		return nil, err
	}
	metrics.ImageGenerationTotal.WithLabelValues(PhaseEdit, "success").Inc()
	logger.Info(ctx, "image edited", "index", req.Index, "source", source, "file", filename)
	return &PageResult{Success: true, Index: req.Index, ImageURL: ImageURL(req.TaskID, filename), Filename: filename}, nil
}

// SaveCanvas 保存画布内容为新版本，任务目录不存在时返回 ErrTaskNotFound
func (s *Service) SaveCanvas(ctx context.Context, taskID string, index int, image []byte) (*PageResult, error) {
	if taskID == "" || index < 0 || len(image) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("缺少必要参数")
	}
	if !s.store.DirExists(taskID) {
		return nil, apperrors.ErrTaskNotFound.WithDetail("任务目录不存在")
	}
	ctx = logger.WithContext(ctx, logger.TaskIDKey, taskID)

	filename, err := s.saveVersion(ctx, taskID, index, image)
	if err != nil {
		return nil, err
	}
	metrics.ImageGenerationTotal.WithLabelValues(PhaseCanvas, "success").Inc()
	return &PageResult{Success: true, Index: index, ImageURL: ImageURL(taskID, filename), Filename: filename}, nil
}

// ApplyLogo 把激活品牌的 logo 叠加到图片上，返回 PNG data URL
func (s *Service) ApplyLogo(ctx context.Context, image []byte, style string) (string, error) {
	if len(image) == 0 {
		return "", apperrors.ErrInvalidParam.WithDetail("缺少图片数据")
	}
	if s.logos == nil {
		return "", ErrNoLogo
	}
	logo, err := s.logos.ActiveLogo(ctx)
	if err != nil {
		return "", err
	}
	if len(logo) == 0 {
		return "", ErrNoLogo
	}
	out, err := imaging.OverlayLogo(image, logo, imaging.ParseLogoStyle(style))
	if err != nil {
		return "", apperrors.ErrInvalidParam.WithDetail("图片无法解码").WithError(err)
	}
	return imaging.EncodeDataURL(out), nil
}

// TaskState 任务状态摘要
type TaskState struct {
	Generated map[int]string `json:"generated"`
	Failed    map[int]string `json:"failed"`
	HasCover  bool           `json:"has_cover"`
}

// TaskState 读取缓存的任务状态
func (s *Service) TaskState(ctx context.Context, taskID string) (*TaskState, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to load task state")
	}
	if task == nil {
		return nil, apperrors.ErrTaskNotFound.WithDetail("任务不存在，可能已过期或服务已重启")
	}
	return &TaskState{Generated: task.Generated, Failed: task.Failed, HasCover: task.HasCover}, nil
}

// ImagePath 图片文件路径；thumbnail=true 时优先返回缩略图
func (s *Service) ImagePath(taskID, filename string, thumbnail bool) (string, error) {
	if thumbnail && s.store.Exists(taskID, entity.ThumbnailName(filename)) {
		return s.store.Path(taskID, entity.ThumbnailName(filename))
	}
	p, err := s.store.Path(taskID, filename)
	if err != nil {
		return "", storageError(err)
	}
	if !s.store.Exists(taskID, filename) {
		return "", apperrors.ErrFileNotFound.WithDetail(taskID + "/" + filename)
	}
	return p, nil
}

// sourceFile 编辑的源文件：显式指定的版本，或该页最新版本
func (s *Service) sourceFile(taskID string, index int, filename string) (string, error) {
	if filename != "" {
		f, ok := entity.ParseImageFile(filename)
		if !ok || f.Index != index {
			return "", apperrors.ErrInvalidParam.WithDetail("filename 与 index 不匹配")
		}
		return filename, nil
	}
	files, err := s.store.PageImages(taskID)
	if err != nil {
		return "", storageError(err)
	}
	f, ok := files[index]
	if !ok {
		return "", apperrors.ErrFileNotFound.WithDetail("该页还没有图片")
	}
	return f.Name, nil
}

// saveVersion 保存为该页的下一个版本，并更新任务状态
func (s *Service) saveVersion(ctx context.Context, taskID string, index int, raw []byte) (string, error) {
	filename, _, err := s.saveNextVersion(ctx, taskID, index, raw)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPath) || errors.Is(err, storage.ErrNotExist) {
			return "", storageError(err)
		}
		return "", apperrors.ErrInvalidParam.WithDetail(err.Error()).WithError(err)
	}

	if task, err := s.tasks.Get(ctx, taskID); err == nil && task != nil {
		task.MarkDone(index, filename)
		s.saveTask(ctx, task)
	}
	s.publishEdit(ctx, taskID, index, filename)
	return filename, nil
}

func (s *Service) saveTask(ctx context.Context, task *entity.ImageTask) {
	if err := s.tasks.Save(ctx, task); err != nil {
		logger.Error(ctx, "failed to save task state", err)
	}
}

func (s *Service) publishEdit(ctx context.Context, taskID string, index int, filename string) {
	s.publish(ctx, messaging.MessageTypeTaskEdited, &messaging.TaskEventMessage{
		TaskID:   taskID,
		Index:    &index,
		Filename: filename,
	})
}

func storageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidPath):
		return apperrors.ErrInvalidParam.WithDetail("非法的文件路径").WithError(err)
	case errors.Is(err, storage.ErrNotExist):
		return apperrors.ErrFileNotFound.WithError(err)
	default:
		return apperrors.ErrStorageError.WithError(err)
	}
}
