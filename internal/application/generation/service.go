package generation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
	"redink-api/internal/infrastructure/imaging"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/infrastructure/messaging"
	"redink-api/internal/infrastructure/storage"
	"redink-api/internal/workflow/prompt"
	apperrors "redink-api/pkg/errors"
	"redink-api/pkg/logger"
	"redink-api/pkg/metrics"
	"redink-api/pkg/tracer"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultMaxConcurrency = 15
	defaultThumbnailEdge  = 400
	// referenceMaxEdge 参考图压缩后的长边
	referenceMaxEdge = 1024
	// refFilePrefix 用户参考图在任务目录中的文件名前缀
	refFilePrefix = "ref_"
	// cancelledMessage 客户端断开后未开始的页面
	cancelledMessage = "客户端已断开，该页未生成"
)

// StyleSource 当前激活品牌的风格提示
type StyleSource interface {
	ActiveStylePrompt(ctx context.Context) string
}

// LogoSource 当前激活品牌的 logo 图片
type LogoSource interface {
	ActiveLogo(ctx context.Context) ([]byte, error)
}

// Publisher 任务事件发布
type Publisher interface {
	PublishTaskEvent(ctx context.Context, msgType string, evt *messaging.TaskEventMessage) error
}

// Options 生成参数
type Options struct {
	MaxConcurrency   int
	ThumbnailMaxEdge int
	ShortPrompt      bool
	Size             string
	Quality          string
}

// Service 图片生成服务
type Service struct {
	provider  llm.ImageProvider
	store     *storage.LocalStore
	tasks     repository.TaskStore
	prompts   *prompt.Registry
	styles    StyleSource
	logos     LogoSource
	publisher Publisher
	opts      Options
}

// Deps 服务依赖，Styles / Logos / Publisher 可以为 nil
type Deps struct {
	Provider  llm.ImageProvider
	Store     *storage.LocalStore
	Tasks     repository.TaskStore
	Prompts   *prompt.Registry
	Styles    StyleSource
	Logos     LogoSource
	Publisher Publisher
}

// NewService 创建图片生成服务
func NewService(deps Deps, opts Options) *Service {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	if opts.ThumbnailMaxEdge <= 0 {
		opts.ThumbnailMaxEdge = defaultThumbnailEdge
	}
	return &Service{
		provider:  deps.Provider,
		store:     deps.Store,
		tasks:     deps.Tasks,
		prompts:   deps.Prompts,
		styles:    deps.Styles,
		logos:     deps.Logos,
		publisher: deps.Publisher,
		opts:      opts,
	}
}

// NewTaskID 生成 task_<8hex>
func NewTaskID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return "task_" + hex.EncodeToString(b[:])
}

// GenerateRequest 批量生成请求
type GenerateRequest struct {
	Pages           []entity.Page
	TaskID          string
	FullOutline     string
	UserTopic       string
	UserImages      [][]byte
	HighConcurrency bool
}

// Generate 启动批量生成，返回任务 ID 与事件流，事件流在 finish 之后关闭
// 封面先生成并作为后续页面的参考图；ctx 取消后不再发起新的页面，已发出的请求继续完成并落盘
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (string, <-chan Event, error) {
	if len(req.Pages) == 0 {
		return "", nil, apperrors.ErrInvalidParam.WithDetail("pages 不能为空")
	}
	taskID := strings.TrimSpace(req.TaskID)
	if taskID == "" {
		taskID = NewTaskID()
	}
	if err := s.store.EnsureDir(taskID); err != nil {
		return "", nil, taskDirError(err)
	}

	task := entity.NewImageTask(taskID, req.Pages, req.FullOutline, req.UserTopic, s.activeStyle(ctx))
	userRefs := s.saveUserRefs(ctx, taskID, req.UserImages)

	events := make(chan Event, 2*len(req.Pages)+4)
	go s.run(ctx, task, userRefs, req.HighConcurrency, events)
	return taskID, events, nil
}

// run 单个任务的生成过程
type run struct {
	svc    *Service
	ctx    context.Context // 请求上下文，只用于判断客户端是否断开
	work   context.Context // 不随请求取消
	events chan<- Event

	mu   sync.Mutex
	task *entity.ImageTask
}

func (r *run) emit(ev Event) {
	select {
	case r.events <- ev:
	case <-r.ctx.Done():
	}
}

func (r *run) done(index int, filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.task.MarkDone(index, filename)
}

func (r *run) failed(index int, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.task.MarkFailed(index, msg)
}

func (r *run) completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.task.Generated)
}

func (r *run) save() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.svc.tasks.Save(r.work, r.task); err != nil {
		logger.Error(r.work, "failed to save task state", err)
	}
}

func (s *Service) run(ctx context.Context, task *entity.ImageTask, userRefs [][]byte, high bool, events chan<- Event) {
	defer close(events)
	metrics.ActiveGenerationStreams.Inc()
	defer metrics.ActiveGenerationStreams.Dec()

	work := logger.WithContext(context.WithoutCancel(ctx), logger.TaskIDKey, task.TaskID)
	work, span := tracer.Start(work, "generation.run",
		attribute.String("task_id", task.TaskID),
		attribute.Int("pages", len(task.Pages)),
		attribute.Bool("high_concurrency", high),
	)
	defer span.End()

	r := &run{svc: s, ctx: ctx, work: work, events: events, task: task}
	total := len(task.Pages)
	logger.Info(work, "generation started", "pages", total, "high_concurrency", high, "brand_style", task.BrandStyle != "")

	coverIdx := entity.CoverIndex(task.Pages)
	cover := task.Pages[coverIdx]
	others := make([]entity.Page, 0, total-1)
	others = append(others, task.Pages[:coverIdx]...)
	others = append(others, task.Pages[coverIdx+1:]...)

	// 封面
	r.emit(progressEvent(intPtr(cover.Index), "正在生成封面...", 1, total, PhaseCover))
	var coverRef []byte
	filename := entity.PageFilename(cover.Index)
	data, _, err := s.generatePage(work, task, cover, userRefs, filename, PhaseCover)
	if err != nil {
		r.failed(cover.Index, err.Error())
		r.emit(errorEvent(cover.Index, err.Error(), PhaseCover))
	} else {
		r.done(cover.Index, filename)
		r.mu.Lock()
		task.HasCover = true
		task.CoverFile = filename
		r.mu.Unlock()
		coverRef = reference(data)
		r.emit(completeEvent(task.TaskID, cover.Index, filename, PhaseCover))
	}
	r.save()

	// 其余页面
	if len(others) > 0 {
		refs := userRefs
		if coverRef != nil {
			refs = append(append([][]byte{}, userRefs...), coverRef)
		}
		if high {
			s.runConcurrent(r, others, refs, total)
		} else {
			s.runSequential(r, others, refs, total)
		}
	}

	r.save()
	r.mu.Lock()
	finish := FinishData{
		TaskID:        task.TaskID,
		Images:        task.Aligned(),
		Total:         total,
		Completed:     len(task.Generated),
		FailedIndices: task.FailedIndices(),
	}
	r.mu.Unlock()
	finish.Failed = len(finish.FailedIndices)
	finish.Success = finish.Failed == 0

	s.publish(work, messaging.MessageTypeTaskFinished, &messaging.TaskEventMessage{TaskID: task.TaskID})
	logger.Info(work, "generation finished", "completed", finish.Completed, "failed", finish.Failed)
	r.emit(Event{Type: EventFinish, Data: finish})
}

func (s *Service) runSequential(r *run, pages []entity.Page, refs [][]byte, total int) {
	r.emit(progressEvent(nil, fmt.Sprintf("开始顺序生成 %d 页内容...", len(pages)), r.completed(), total, PhaseContent))
	for _, page := range pages {
		if r.ctx.Err() != nil {
			r.failed(page.Index, cancelledMessage)
			continue
		}
		r.emit(progressEvent(intPtr(page.Index), "", r.completed()+1, total, PhaseContent))
		s.runPage(r, page, refs, PhaseContent)
	}
}

func (s *Service) runConcurrent(r *run, pages []entity.Page, refs [][]byte, total int) {
	r.emit(progressEvent(nil, fmt.Sprintf("开始并发生成 %d 页内容...", len(pages)), r.completed(), total, PhaseContent))
	base := r.completed()
	for _, page := range pages {
		r.emit(progressEvent(intPtr(page.Index), "", base+1, total, PhaseContent))
	}

	g := new(errgroup.Group)
	g.SetLimit(s.opts.MaxConcurrency)
	for _, page := range pages {
		g.Go(func() error {
			if r.ctx.Err() != nil {
				r.failed(page.Index, cancelledMessage)
				return nil
			}
			s.runPage(r, page, refs, PhaseContent)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) runPage(r *run, page entity.Page, refs [][]byte, phase string) {
	filename := entity.PageFilename(page.Index)
	if _, _, err := s.generatePage(r.work, r.task, page, refs, filename, phase); err != nil {
		r.failed(page.Index, err.Error())
		r.emit(errorEvent(page.Index, err.Error(), phase))
		return
	}
	r.done(page.Index, filename)
	r.emit(completeEvent(r.task.TaskID, page.Index, filename, phase))
}

// RetryFailed 并发重试一组页面，事件流以 retry_finish 结束
func (s *Service) RetryFailed(ctx context.Context, taskID string, pages []entity.Page) (<-chan Event, error) {
	if strings.TrimSpace(taskID) == "" || len(pages) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("task_id 和 pages 不能为空")
	}
	if err := s.store.EnsureDir(taskID); err != nil {
		return nil, taskDirError(err)
	}

	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		upsertPage(task, p)
	}

	events := make(chan Event, 2*len(pages)+2)
	go func() {
		defer close(events)
		metrics.ActiveGenerationStreams.Inc()
		defer metrics.ActiveGenerationStreams.Dec()

		work := logger.WithContext(context.WithoutCancel(ctx), logger.TaskIDKey, taskID)
		r := &run{svc: s, ctx: ctx, work: work, events: events, task: task}

		refs := s.loadUserRefs(work, taskID)
		if cover := s.coverRef(work, task); cover != nil {
			refs = append(refs, cover)
		}

		total := len(pages)
		r.emit(Event{Type: EventRetryStart, Data: RetryStartData{Total: total, Message: fmt.Sprintf("开始重试 %d 张失败的图片", total)}})

		var mu sync.Mutex
		completed := 0
		g := new(errgroup.Group)
		g.SetLimit(s.opts.MaxConcurrency)
		for _, page := range pages {
			g.Go(func() error {
				filename := entity.PageFilename(page.Index)
				if _, _, err := s.generatePage(work, task, page, refs, filename, PhaseRetry); err != nil {
					r.failed(page.Index, err.Error())
					r.emit(errorEvent(page.Index, err.Error(), ""))
					return nil
				}
				r.done(page.Index, filename)
				mu.Lock()
				completed++
				mu.Unlock()
				r.emit(completeEvent(taskID, page.Index, filename, ""))
				return nil
			})
		}
		_ = g.Wait()
		r.save()

		s.publish(work, messaging.MessageTypeTaskFinished, &messaging.TaskEventMessage{TaskID: taskID})
		r.emit(Event{Type: EventRetryFinish, Data: RetryFinishData{
			Success:   completed == total,
			Total:     total,
			Completed: completed,
			Failed:    total - completed,
		}})
	}()
	return events, nil
}

// generatePage 生成一页并保存原图和缩略图，返回 PNG 数据与实际文件名
// filename 为空时在写入时分配该页的下一个版本号
func (s *Service) generatePage(ctx context.Context, task *entity.ImageTask, page entity.Page, refs [][]byte, filename, phase string) ([]byte, string, error) {
	ctx, span := tracer.Start(ctx, "generation.page",
		attribute.Int("index", page.Index),
		attribute.String("phase", phase),
	)
	var err error
	defer func() { tracer.End(span, err) }()

	start := time.Now()
	promptText, err := s.pagePrompt(ctx, task, page)
	if err != nil {
		return nil, "", err
	}

	raw, err := s.provider.Generate(ctx, llm.ImageRequest{
		Prompt:     promptText,
		Size:       s.opts.Size,
		Quality:    s.opts.Quality,
		References: refs,
	})
	metrics.ImageGenerationDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ImageGenerationTotal.WithLabelValues(phase, "failed").Inc()
		logger.Error(ctx, "page generation failed", err, "index", page.Index, "phase", phase)
		return nil, "", err
	}

	var data []byte
	if filename == "" {
		filename, data, err = s.saveNextVersion(ctx, task.TaskID, page.Index, raw)
	} else {
		data, err = s.saveImage(ctx, task.TaskID, filename, raw)
	}
	if err != nil {
		metrics.ImageGenerationTotal.WithLabelValues(phase, "failed").Inc()
		return nil, "", err
	}
	metrics.ImageGenerationTotal.WithLabelValues(phase, "success").Inc()
	logger.Info(ctx, "page generated", "index", page.Index, "phase", phase, "file", filename)
	return data, filename, nil
}

// pagePrompt 渲染页面提示词，品牌风格放在最前
func (s *Service) pagePrompt(ctx context.Context, task *entity.ImageTask, page entity.Page) (string, error) {
	id := prompt.PromptImagePageV1
	vars := map[string]any{
		"page_type":    string(page.Type),
		"page_content": page.Content,
	}
	if s.opts.ShortPrompt {
		id = prompt.PromptImagePageShortV1
	} else {
		topic := task.UserTopic
		if topic == "" {
			topic = "未提供"
		}
		vars["user_topic"] = topic
		vars["full_outline"] = task.FullOutline
	}

	text, err := s.prompts.Render(ctx, id, vars)
	if err != nil {
		return "", err
	}
	if task.BrandStyle != "" {
		text = task.BrandStyle + "\n\n" + text
	}
	return text, nil
}

// saveImage 统一转为 PNG 保存，并生成缩略图
func (s *Service) saveImage(ctx context.Context, taskID, filename string, raw []byte) ([]byte, error) {
	data, err := imaging.EnsurePNG(raw)
	if err != nil {
		return nil, fmt.Errorf("图片数据无效: %w", err)
	}
	if err := s.store.Write(taskID, filename, data); err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}

	thumb, err := imaging.Thumbnail(data, s.opts.ThumbnailMaxEdge)
	if err != nil {
		logger.Warn(ctx, "thumbnail failed", "file", filename, "error", err.Error())
		return data, nil
	}
	if err := s.store.Write(taskID, entity.ThumbnailName(filename), thumb); err != nil {
		logger.Warn(ctx, "thumbnail save failed", "file", filename, "error", err.Error())
	}
	return data, nil
}

// saveNextVersion 分配下一个版本号并保存，同一任务目录的分配串行进行
func (s *Service) saveNextVersion(ctx context.Context, taskID string, index int, raw []byte) (string, []byte, error) {
	var data []byte
	filename, err := s.store.WithNextVersion(taskID, index, func(name string) error {
		var err error
		data, err = s.saveImage(ctx, taskID, name, raw)
		return err
	})
	return filename, data, err
}

// saveUserRefs 压缩用户参考图并保存到任务目录，重试时复用
func (s *Service) saveUserRefs(ctx context.Context, taskID string, images [][]byte) [][]byte {
	refs := make([][]byte, 0, len(images))
	for i, img := range images {
		ref := reference(img)
		refs = append(refs, ref)
		if err := s.store.Write(taskID, fmt.Sprintf("%s%d.jpg", refFilePrefix, i), ref); err != nil {
			logger.Warn(ctx, "failed to save user reference", "index", i, "error", err.Error())
		}
	}
	return refs
}

func (s *Service) loadUserRefs(ctx context.Context, taskID string) [][]byte {
	names, err := s.store.List(taskID)
	if err != nil {
		return nil
	}
	var refs [][]byte
	for _, name := range names {
		if !strings.HasPrefix(name, refFilePrefix) {
			continue
		}
		data, err := s.store.Read(taskID, name)
		if err != nil {
			logger.Warn(ctx, "failed to read user reference", "file", name, "error", err.Error())
			continue
		}
		refs = append(refs, data)
	}
	return refs
}

// coverRef 读取封面作为参考图，任务状态丢失时退回 0.png
func (s *Service) coverRef(ctx context.Context, task *entity.ImageTask) []byte {
	name := task.CoverFile
	if name == "" {
		name = entity.PageFilename(0)
	}
	data, err := s.store.Read(task.TaskID, name)
	if err != nil {
		logger.Debug(ctx, "no cover reference", "file", name)
		return nil
	}
	return reference(data)
}

// loadTask 读取任务上下文，不存在时按当前品牌新建
func (s *Service) loadTask(ctx context.Context, taskID string) (*entity.ImageTask, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to load task state")
	}
	if task == nil {
		task = entity.NewImageTask(taskID, nil, "", "", "")
	}
	if task.BrandStyle == "" {
		task.BrandStyle = s.activeStyle(ctx)
	}
	return task, nil
}

func (s *Service) activeStyle(ctx context.Context) string {
	if s.styles == nil {
		return ""
	}
	return s.styles.ActiveStylePrompt(ctx)
}

func (s *Service) publish(ctx context.Context, msgType string, evt *messaging.TaskEventMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTaskEvent(ctx, msgType, evt); err != nil {
		logger.Warn(ctx, "failed to publish task event", "type", msgType, "error", err.Error())
	}
}

// reference 参考图压缩为 JPEG，失败时原样使用
func reference(data []byte) []byte {
	out, err := imaging.Thumbnail(data, referenceMaxEdge)
	if err != nil {
		return data
	}
	return out
}

func upsertPage(task *entity.ImageTask, page entity.Page) {
	for i, p := range task.Pages {
		if p.Index == page.Index {
			task.Pages[i] = page
			return
		}
	}
	task.Pages = append(task.Pages, page)
}

func taskDirError(err error) error {
	return apperrors.ErrInvalidParam.WithDetail("task_id 不合法").WithError(err)
}

func intPtr(i int) *int { return &i }
