package reconcile

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"redink-api/internal/client/api"
	"redink-api/internal/domain/entity"
	"redink-api/pkg/logger"
	"redink-api/pkg/metrics"
)

const queueSize = 64

// Store 回写使用的历史记录接口，*api.Client 实现了它
type Store interface {
	CreateHistory(ctx context.Context, req api.CreateHistoryRequest) api.Result[string]
	UpdateHistory(ctx context.Context, id string, update api.HistoryUpdate) api.Result[*entity.HistoryRecord]
	GetHistory(ctx context.Context, id string) api.Result[*entity.HistoryRecord]
	HistoryExists(ctx context.Context, id string) api.Result[bool]
	ScanAll(ctx context.Context) api.Result[*api.ScanAllResult]
}

// ScanSummary 启动同步结果
type ScanSummary struct {
	Total   int
	Synced  int
	Failed  int
	Orphans []string
}

type job struct {
	op  string
	ctx context.Context
	run func(ctx context.Context) *api.Failure
}

// Reconciler 历史记录回写器
// 写操作在后台按提交顺序串行执行，失败只记录日志
type Reconciler struct {
	store   Store
	queue   chan job
	pending sync.WaitGroup
	once    sync.Once
	closed  chan struct{}

	// mu 保护 shut；submit 持读锁入队，Close 持写锁置位
	mu   sync.RWMutex
	shut bool
}

// New 创建回写器并启动后台协程
func New(store Store) *Reconciler {
	r := &Reconciler{
		store:  store,
		queue:  make(chan job, queueSize),
		closed: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Reconciler) loop() {
	for {
		select {
		case j := <-r.queue:
			r.execute(j)
		case <-r.closed:
			// 关闭前排空已提交的写入
			for {
				select {
				case j := <-r.queue:
					r.execute(j)
				default:
					return
				}
			}
		}
	}
}

func (r *Reconciler) execute(j job) {
	defer r.pending.Done()
	if f := j.run(j.ctx); f != nil {
		metrics.ReconcileWritesTotal.WithLabelValues(j.op, "failed").Inc()
		logger.Warn(j.ctx, "history write failed", "op", j.op, "kind", string(f.Kind), "error", f.Message)
		return
	}
	metrics.ReconcileWritesTotal.WithLabelValues(j.op, "ok").Inc()
}

// submit 入队，调用方不等待结果；写入不随调用方 ctx 取消
// Close 之后提交的写入直接丢弃
func (r *Reconciler) submit(ctx context.Context, op string, run func(ctx context.Context) *api.Failure) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.shut {
		metrics.ReconcileWritesTotal.WithLabelValues(op, "dropped").Inc()
		logger.Warn(ctx, "reconciler closed, history write dropped", "op", op)
		return
	}
	r.pending.Add(1)
	r.queue <- job{op: op, ctx: context.WithoutCancel(ctx), run: run}
}

// Wait 等待已提交的写入完成
func (r *Reconciler) Wait() {
	r.pending.Wait()
}

// Close 排空队列后停止后台协程，之后不能再提交写入
func (r *Reconciler) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.shut = true
		r.mu.Unlock()
		r.Wait()
		close(r.closed)
	})
}

func sessionLogger(ctx context.Context, sess *SessionContext) context.Context {
	if id := sess.RecordID(); id != "" {
		ctx = logger.WithContext(ctx, logger.RecordIDKey, id)
	}
	if id := sess.TaskID(); id != "" {
		ctx = logger.WithContext(ctx, logger.TaskIDKey, id)
	}
	return ctx
}

// CreateAfterOutline 大纲生成后立即创建记录；失败时会话继续但不再持久化
func (r *Reconciler) CreateAfterOutline(ctx context.Context, sess *SessionContext, topic string, outline entity.Outline) {
	sess.mu.Lock()
	sess.clientToken = uuid.NewString()
	sess.topic = topic
	sess.outline = outline
	sess.generated = make([]*string, len(outline.Pages))
	token := sess.clientToken
	sess.mu.Unlock()

	id, f := r.store.CreateHistory(ctx, api.CreateHistoryRequest{
		Topic:       topic,
		Outline:     outline,
		ClientToken: token,
	}).Unwrap()
	if f != nil {
		metrics.ReconcileWritesTotal.WithLabelValues("create", "failed").Inc()
		logger.Warn(ctx, "history record not created, session continues without persistence",
			"kind", string(f.Kind), "error", f.Message)
		return
	}
	metrics.ReconcileWritesTotal.WithLabelValues("create", "ok").Inc()
	sess.setRecordID(id)
}

// createFallback 生成开始时仍没有记录 ID，用同一令牌补建，服务端按令牌去重
func (r *Reconciler) createFallback(ctx context.Context, sess *SessionContext) *api.Failure {
	sess.mu.Lock()
	if sess.clientToken == "" {
		sess.clientToken = uuid.NewString()
	}
	req := api.CreateHistoryRequest{
		Topic:       sess.topic,
		Outline:     sess.outline,
		TaskID:      sess.taskID,
		ClientToken: sess.clientToken,
	}
	sess.mu.Unlock()

	id, f := r.store.CreateHistory(ctx, req).Unwrap()
	if f != nil {
		return f
	}
	logger.Info(ctx, "history record created at generation start", "record_id", id)
	sess.setRecordID(id)
	return nil
}

// BeginGeneration 标记为 generating，没有记录时先补建
// 会话已有任务 ID 时一并写入，事件流中断后扫描仍能找到已落盘的图片
func (r *Reconciler) BeginGeneration(ctx context.Context, sess *SessionContext) {
	ctx = sessionLogger(ctx, sess)
	set, _ := sess.images()
	r.submit(ctx, "begin", func(ctx context.Context) *api.Failure {
		if sess.RecordID() == "" {
			if f := r.createFallback(ctx, sess); f != nil {
				return f
			}
		}
		status := entity.RecordStatusGenerating
		update := api.HistoryUpdate{Status: &status}
		if set.TaskID != nil {
			update.Images = &set
			update.ClearThumbnail = true
		}
		_, f := r.store.UpdateHistory(ctx, sess.RecordID(), update).Unwrap()
		return f
	})
}

// imagesUpdate 由当前图片列表推导状态与缩略图
func imagesUpdate(set entity.ImageSet, pageCount int) api.HistoryUpdate {
	status := entity.DeriveStatus(set.Generated, pageCount)
	update := api.HistoryUpdate{Images: &set, Status: &status}
	if thumb := entity.ThumbnailFor(set.Generated); thumb != nil {
		update.Thumbnail = thumb
	} else {
		update.ClearThumbnail = true
	}
	return update
}

func (r *Reconciler) writeImages(ctx context.Context, op string, sess *SessionContext) {
	ctx = sessionLogger(ctx, sess)
	set, pageCount := sess.images()
	r.submit(ctx, op, func(ctx context.Context) *api.Failure {
		id := sess.RecordID()
		if id == "" {
			logger.Debug(ctx, "no history record, write skipped", "op", op)
			return nil
		}
		_, f := r.store.UpdateHistory(ctx, id, imagesUpdate(set, pageCount)).Unwrap()
		return f
	})
}

// FinishGeneration 生成结束，写入完整图片列表、推导状态与缩略图
func (r *Reconciler) FinishGeneration(ctx context.Context, sess *SessionContext, taskID string, generated []*string) {
	sess.SetTaskID(taskID)
	sess.setGenerated(generated)
	r.writeImages(ctx, "finish", sess)
}

// ApplyEdit 单页改用 filename（重绘、局部重绘、画布、logo、切换版本），写入完整图片列表
func (r *Reconciler) ApplyEdit(ctx context.Context, sess *SessionContext, index int, filename string) {
	sess.setPage(index, filename)
	r.writeImages(ctx, "edit", sess)
}

// PersistContent 只写文案，不触碰状态与图片
func (r *Reconciler) PersistContent(ctx context.Context, sess *SessionContext, content *entity.PostContent) {
	if content == nil {
		return
	}
	ctx = sessionLogger(ctx, sess)
	c := *content
	r.submit(ctx, "content", func(ctx context.Context) *api.Failure {
		id := sess.RecordID()
		if id == "" {
			return nil
		}
		_, f := r.store.UpdateHistory(ctx, id, api.HistoryUpdate{Content: &c}).Unwrap()
		return f
	})
}

// Restore 重新打开已有记录；记录不存在时返回 false，调用方应丢弃本地引用
func (r *Reconciler) Restore(ctx context.Context, id string) (*SessionContext, *entity.HistoryRecord, bool) {
	exists, f := r.store.HistoryExists(ctx, id).Unwrap()
	if f != nil || !exists {
		if f != nil {
			logger.Warn(ctx, "history existence check failed", "record_id", id, "error", f.Message)
		}
		return nil, nil, false
	}
	rec, f := r.store.GetHistory(ctx, id).Unwrap()
	if f != nil || rec == nil {
		return nil, nil, false
	}

	sess := &SessionContext{
		recordID:  rec.ID,
		topic:     rec.Title,
		outline:   rec.Outline,
		generated: rec.Images.Clone().Generated,
	}
	if rec.Images.TaskID != nil {
		sess.taskID = *rec.Images.TaskID
	}
	return sess, rec, true
}

// StartupScan 启动时全量同步，只报告不删除
func (r *Reconciler) StartupScan(ctx context.Context) (*ScanSummary, *api.Failure) {
	res, f := r.store.ScanAll(ctx).Unwrap()
	if f != nil {
		logger.Warn(ctx, "startup scan failed", "kind", string(f.Kind), "error", f.Message)
		return nil, f
	}
	summary := &ScanSummary{
		Total:   res.TotalTasks,
		Synced:  res.Synced,
		Failed:  res.Failed,
		Orphans: res.OrphanTasks,
	}
	logger.Info(ctx, "startup scan finished",
		"total", summary.Total, "synced", summary.Synced, "failed", summary.Failed, "orphans", len(summary.Orphans))
	return summary, nil
}
