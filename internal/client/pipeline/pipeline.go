// Package pipeline 无界面的创作流程：大纲 → 记录 → 图片流与文案并行 → 回写
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"redink-api/internal/client/api"
	"redink-api/internal/client/reconcile"
	"redink-api/internal/client/tracker"
	"redink-api/internal/client/versions"
	"redink-api/internal/domain/entity"
	"redink-api/pkg/logger"
)

// Options 生成选项
type Options struct {
	UserImages      [][]byte
	HighConcurrency bool
	SkipContent     bool
	// OnEvent 每次状态变化后回调，用于命令行输出进度
	OnEvent func(tracker.Snapshot)
}

// Outcome 一次生成的结果
type Outcome struct {
	Snapshot       tracker.Snapshot
	Content        *entity.PostContent
	ContentFailure *api.Failure
	StreamFailure  *api.Failure
}

// Pipeline 串联客户端各组件，每个会话一个实例
type Pipeline struct {
	client   *api.Client
	rec      *reconcile.Reconciler
	tracker  *tracker.Tracker
	versions *versions.Registry
}

// New 创建流程
func New(client *api.Client, rec *reconcile.Reconciler) *Pipeline {
	return &Pipeline{
		client:   client,
		rec:      rec,
		tracker:  tracker.New(),
		versions: versions.New(api.FilenameOf),
	}
}

// Tracker 进度状态
func (p *Pipeline) Tracker() *tracker.Tracker {
	return p.tracker
}

// Versions 版本表
func (p *Pipeline) Versions() *versions.Registry {
	return p.versions
}

// Outline 生成大纲，没有页面时视为失败
func (p *Pipeline) Outline(ctx context.Context, topic string, images [][]byte) (*api.OutlineResult, *api.Failure) {
	return p.client.Outline(ctx, topic, images).Unwrap()
}

// advance 推进单页状态，缺失的中间状态按合法边补齐
func (p *Pipeline) advance(ctx context.Context, index int, target tracker.ImageStatus, url, msg string) {
	if cur, ok := p.tracker.Status(index); ok && target.Terminal() {
		switch cur {
		case tracker.StatusWaiting:
			_ = p.tracker.UpdateProgress(index, tracker.StatusGenerating, "", "")
		case tracker.StatusDone, tracker.StatusError:
			_ = p.tracker.SetImageRetrying(index)
		}
	}
	if err := p.tracker.UpdateProgress(index, target, url, msg); err != nil {
		logger.Debug(ctx, "tracker update ignored", "index", index, "error", err.Error())
	}
}

func (p *Pipeline) notify(opts Options) {
	if opts.OnEvent != nil {
		opts.OnEvent(p.tracker.Snapshot())
	}
}

// Run 执行完整流程：创建记录、图片流与文案并行、结束时回写
func (p *Pipeline) Run(ctx context.Context, sess *reconcile.SessionContext, topic string, outline *api.OutlineResult, opts Options) *Outcome {
	out := entity.Outline{Raw: outline.Outline, Pages: outline.Pages}
	p.rec.CreateAfterOutline(ctx, sess, topic, out)
	ctx = logger.WithContext(ctx, logger.RecordIDKey, sess.RecordID())

	// 任务 ID 由客户端先定，事件流在 finish 之前中断时记录仍能关联到已落盘的图片
	sess.SetTaskID(newTaskID())
	ctx = logger.WithContext(ctx, logger.TaskIDKey, sess.TaskID())

	p.tracker.StartGeneration(out.Pages)
	p.rec.BeginGeneration(ctx, sess)

	outcome := &Outcome{}
	var wg sync.WaitGroup
	if !opts.SkipContent {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome.Content, outcome.ContentFailure = p.GenerateContent(ctx, sess, topic)
		}()
	}

	userImages := make([]string, 0, len(opts.UserImages))
	for _, img := range opts.UserImages {
		userImages = append(userImages, api.EncodeImage(img))
	}

	outcome.StreamFailure = p.client.StreamGenerate(ctx, api.GenerateRequest{
		Pages:           out.Pages,
		TaskID:          sess.TaskID(),
		FullOutline:     out.Raw,
		UserTopic:       topic,
		UserImages:      userImages,
		HighConcurrency: opts.HighConcurrency,
	}, api.StreamHandlers{
		OnProgress: func(e api.ProgressEvent) {
			if e.Index != nil && e.Status == string(tracker.StatusGenerating) {
				if cur, _ := p.tracker.Status(*e.Index); cur == tracker.StatusWaiting {
					_ = p.tracker.UpdateProgress(*e.Index, tracker.StatusGenerating, "", "")
				}
			}
			p.notify(opts)
		},
		OnComplete: func(e api.CompleteEvent) {
			if id, _, ok := api.ParseImageURL(e.ImageURL); ok && id != sess.TaskID() {
				sess.SetTaskID(id)
			}
			p.advance(ctx, e.Index, tracker.StatusDone, e.ImageURL, "")
			p.versions.Append(e.Index, e.ImageURL, versions.SourceGenerate)
			p.notify(opts)
		},
		OnError: func(e api.ErrorEvent) {
			p.advance(ctx, e.Index, tracker.StatusError, "", e.Message)
			p.notify(opts)
		},
		OnFinish: func(e api.FinishEvent) {
			p.tracker.FinishGeneration(e.TaskID)
			p.rec.FinishGeneration(ctx, sess, e.TaskID, filenames(e.Images))
			p.notify(opts)
		},
		OnStreamError: func(f *api.Failure) {
			logger.Warn(ctx, "generation stream failed", "kind", string(f.Kind), "error", f.Message)
		},
	})
	if outcome.StreamFailure != nil && p.tracker.Snapshot().Phase != tracker.PhaseFinished {
		p.interrupt(ctx, sess, outcome.StreamFailure)
		p.notify(opts)
	}

	wg.Wait()
	outcome.Snapshot = p.tracker.Snapshot()
	return outcome
}

// interruptedMessage 事件流中断时未完成页的错误信息
const interruptedMessage = "事件流中断，该页未生成"

// interrupt 事件流在 finish 之前中断：未完成的页置为失败，按已完成的页回写推导状态
func (p *Pipeline) interrupt(ctx context.Context, sess *reconcile.SessionContext, f *api.Failure) {
	failed := p.tracker.Interrupt(interruptedMessage)
	p.tracker.FinishGeneration(sess.TaskID())
	p.rec.FinishGeneration(ctx, sess, sess.TaskID(), p.tracker.Generated(api.FilenameOf))
	logger.Warn(ctx, "generation stream interrupted before finish",
		"kind", string(f.Kind), "error", f.Message, "failed_pages", failed)
}

func newTaskID() string {
	return "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// GenerateContent 生成文案并尽力持久化，失败不影响图片状态
func (p *Pipeline) GenerateContent(ctx context.Context, sess *reconcile.SessionContext, topic string) (*entity.PostContent, *api.Failure) {
	p.tracker.StartContent()
	content, f := p.client.Content(ctx, topic, sess.Outline().Raw).Unwrap()
	if f != nil {
		p.tracker.ContentFailed(f.Message)
		return nil, f
	}
	p.tracker.ContentDone(content)
	p.rec.PersistContent(ctx, sess, content)
	return content, nil
}

func filenames(images []*string) []*string {
	out := make([]*string, len(images))
	for i, img := range images {
		if img != nil && *img != "" {
			out[i] = entity.StringPtr(api.FilenameOf(*img))
		}
	}
	return out
}

// Hydrate 用已有记录恢复进度与版本表，空位视为失败页
func (p *Pipeline) Hydrate(sess *reconcile.SessionContext) {
	pages := sess.Outline().Pages
	generated := sess.Generated()
	taskID := sess.TaskID()

	p.tracker.StartGeneration(pages)
	for i, page := range pages {
		_ = p.tracker.UpdateProgress(page.Index, tracker.StatusGenerating, "", "")
		if i < len(generated) && generated[i] != nil {
			url := api.ImageURL(taskID, *generated[i])
			_ = p.tracker.UpdateProgress(page.Index, tracker.StatusDone, url, "")
			p.versions.Append(page.Index, url, versions.SourceGenerate)
			continue
		}
		_ = p.tracker.UpdateProgress(page.Index, tracker.StatusError, "", "未生成")
	}
	p.tracker.FinishGeneration(taskID)
}

func pageAt(sess *reconcile.SessionContext, index int) (entity.Page, bool) {
	for _, pg := range sess.Outline().Pages {
		if pg.Index == index {
			return pg, true
		}
	}
	return entity.Page{}, false
}

// RetryFailed 只重试失败页面，成功的页逐个回写
func (p *Pipeline) RetryFailed(ctx context.Context, sess *reconcile.SessionContext, opts Options) (*api.FinishEvent, *api.Failure) {
	failed := p.tracker.Snapshot().FailedIndices()
	if len(failed) == 0 {
		return &api.FinishEvent{Success: true, Retry: true}, nil
	}
	pages := make([]entity.Page, 0, len(failed))
	for _, idx := range failed {
		if pg, ok := pageAt(sess, idx); ok {
			pages = append(pages, pg)
			_ = p.tracker.SetImageRetrying(idx)
		}
	}

	var finish *api.FinishEvent
	f := p.client.StreamRetryFailed(ctx, api.RetryFailedRequest{TaskID: sess.TaskID(), Pages: pages}, api.StreamHandlers{
		OnProgress: func(api.ProgressEvent) { p.notify(opts) },
		OnComplete: func(e api.CompleteEvent) {
			p.advance(ctx, e.Index, tracker.StatusDone, e.ImageURL, "")
			p.versions.Append(e.Index, e.ImageURL, versions.SourceGenerate)
			p.rec.ApplyEdit(ctx, sess, e.Index, api.FilenameOf(e.ImageURL))
			p.notify(opts)
		},
		OnError: func(e api.ErrorEvent) {
			p.advance(ctx, e.Index, tracker.StatusError, "", e.Message)
			p.notify(opts)
		},
		OnFinish: func(e api.FinishEvent) {
			finish = &e
			p.notify(opts)
		},
	})
	if f != nil {
		// 重试流中断时仍处于 retrying 的页回到 error，可以再次重试
		if pages := p.tracker.Interrupt(interruptedMessage); len(pages) > 0 {
			logger.Warn(ctx, "retry stream interrupted", "error", f.Message, "failed_pages", pages)
		}
		p.notify(opts)
		return nil, f
	}
	return finish, nil
}

// applyPageResult 单页操作成功后更新进度、版本表并回写
func (p *Pipeline) applyPageResult(ctx context.Context, sess *reconcile.SessionContext, index int, res *api.PageResult, source versions.Source) (versions.Version, *api.Failure) {
	url := res.ImageURL
	if url == "" && res.Filename != "" {
		url = api.ImageURL(sess.TaskID(), res.Filename)
	}
	if url == "" {
		f := &api.Failure{Kind: api.KindParse, Message: "响应缺少 image_url"}
		_ = p.tracker.FailImage(index, f.Message)
		return versions.Version{}, f
	}
	var v versions.Version
	if source == versions.SourceLogo {
		v = p.versions.LogoApply(index, url)
	} else {
		v = p.versions.Append(index, url, source)
	}
	_ = p.tracker.UpdateImage(index, url)
	p.rec.ApplyEdit(ctx, sess, index, v.Filename)
	return v, nil
}

func (p *Pipeline) pageOp(ctx context.Context, sess *reconcile.SessionContext, index int, source versions.Source, call func() api.Result[*api.PageResult]) (versions.Version, *api.Failure) {
	if err := p.tracker.SetImageRetrying(index); err != nil {
		logger.Debug(ctx, "page not retryable from current state", "index", index, "error", err.Error())
	}
	res, f := call().Unwrap()
	if f != nil {
		_ = p.tracker.FailImage(index, f.Message)
		return versions.Version{}, f
	}
	return p.applyPageResult(ctx, sess, index, res, source)
}

// Regenerate 重绘单页为新版本
func (p *Pipeline) Regenerate(ctx context.Context, sess *reconcile.SessionContext, index int, useReference bool) (versions.Version, *api.Failure) {
	page, ok := pageAt(sess, index)
	if !ok {
		return versions.Version{}, &api.Failure{Kind: api.KindUnknown, Message: fmt.Sprintf("页面 %d 不存在", index)}
	}
	outline := sess.Outline()
	return p.pageOp(ctx, sess, index, versions.SourceRegenerate, func() api.Result[*api.PageResult] {
		return p.client.Regenerate(ctx, api.PageRequest{
			TaskID:       sess.TaskID(),
			Page:         page,
			UseReference: &useReference,
			FullOutline:  outline.Raw,
		})
	})
}

// Inpaint 蒙版局部重绘
func (p *Pipeline) Inpaint(ctx context.Context, sess *reconcile.SessionContext, index int, prompt string, mask []byte) (versions.Version, *api.Failure) {
	filename := ""
	if v, ok := p.versions.Selected(index); ok {
		filename = v.Filename
	}
	return p.pageOp(ctx, sess, index, versions.SourceInpaint, func() api.Result[*api.PageResult] {
		return p.client.Edit(ctx, api.EditRequest{
			TaskID:   sess.TaskID(),
			Index:    index,
			Prompt:   prompt,
			Mask:     api.EncodeImage(mask),
			Filename: filename,
		})
	})
}

// SaveCanvas 保存画布编辑结果为新版本
func (p *Pipeline) SaveCanvas(ctx context.Context, sess *reconcile.SessionContext, index int, image []byte) (versions.Version, *api.Failure) {
	return p.pageOp(ctx, sess, index, versions.SourceCanvas, func() api.Result[*api.PageResult] {
		return p.client.SaveCanvas(ctx, api.CanvasRequest{TaskID: sess.TaskID(), Index: index, Image: api.EncodeImage(image)})
	})
}

// ToggleLogo on 时叠加激活品牌 logo 并存为新版本，off 时恢复叠加前的版本
func (p *Pipeline) ToggleLogo(ctx context.Context, sess *reconcile.SessionContext, index int, on bool, style string) (versions.Version, *api.Failure) {
	if !on {
		v, ok := p.versions.LogoRevert(index)
		if !ok {
			return versions.Version{}, &api.Failure{Kind: api.KindUnknown, Message: "该页没有可撤销的 logo"}
		}
		_ = p.tracker.UpdateImage(index, v.URL)
		p.rec.ApplyEdit(ctx, sess, index, v.Filename)
		return v, nil
	}

	current, ok := p.versions.Selected(index)
	if !ok {
		return versions.Version{}, &api.Failure{Kind: api.KindUnknown, Message: fmt.Sprintf("页面 %d 还没有图片", index)}
	}
	data, f := p.client.FetchImage(ctx, sess.TaskID(), current.Filename).Unwrap()
	if f != nil {
		return versions.Version{}, f
	}
	overlaid, f := p.client.ApplyLogo(ctx, data, style).Unwrap()
	if f != nil {
		return versions.Version{}, f
	}
	res, f := p.client.SaveCanvas(ctx, api.CanvasRequest{TaskID: sess.TaskID(), Index: index, Image: overlaid}).Unwrap()
	if f != nil {
		return versions.Version{}, f
	}
	return p.applyPageResult(ctx, sess, index, res, versions.SourceLogo)
}

// SelectVersion 切换选中版本并回写所选文件名
func (p *Pipeline) SelectVersion(ctx context.Context, sess *reconcile.SessionContext, index, i int) (versions.Version, error) {
	v, err := p.versions.Select(index, i)
	if err != nil {
		return versions.Version{}, err
	}
	_ = p.tracker.UpdateImage(index, v.URL)
	p.rec.ApplyEdit(ctx, sess, index, v.Filename)
	return v, nil
}
