// Package tracker 客户端生成进度状态机：每页图片状态、整体进度与文案子状态
package tracker

import (
	"errors"
	"fmt"
	"sync"

	"redink-api/internal/domain/entity"
)

// ImageStatus 单页图片状态
type ImageStatus string

const (
	StatusWaiting    ImageStatus = "waiting"
	StatusGenerating ImageStatus = "generating"
	StatusRetrying   ImageStatus = "retrying"
	StatusDone       ImageStatus = "done"
	StatusError      ImageStatus = "error"
)

// Terminal done 与 error 为终态
func (s ImageStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// ContentStatus 文案子状态
type ContentStatus string

const (
	ContentIdle       ContentStatus = "idle"
	ContentGenerating ContentStatus = "generating"
	ContentDone       ContentStatus = "done"
	ContentError      ContentStatus = "error"
)

// Phase 整体阶段
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhaseFinished   Phase = "finished"
)

// ErrIllegalTransition 非法状态迁移，状态保持不变
var ErrIllegalTransition = errors.New("illegal image status transition")

// ErrUnknownPage 页码不存在
var ErrUnknownPage = errors.New("unknown page index")

// 合法迁移边
var transitions = map[ImageStatus][]ImageStatus{
	StatusWaiting:    {StatusGenerating},
	StatusGenerating: {StatusDone, StatusError},
	StatusError:      {StatusRetrying},
	StatusDone:       {StatusRetrying},
	StatusRetrying:   {StatusDone, StatusError},
}

// CanTransition 是否允许 from -> to
func CanTransition(from, to ImageStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ImageEntry 单页状态，done 时 URL 非空且属于 Versions
type ImageEntry struct {
	Index        int
	URL          string
	Status       ImageStatus
	Versions     []string
	ErrorMessage string
}

func (e *ImageEntry) clone() ImageEntry {
	out := *e
	out.Versions = append([]string(nil), e.Versions...)
	return out
}

func (e *ImageEntry) addVersion(url string) {
	for _, v := range e.Versions {
		if v == url {
			return
		}
	}
	e.Versions = append(e.Versions, url)
}

// Snapshot 只读副本
type Snapshot struct {
	Phase          Phase
	TaskID         string
	Current        int
	Total          int
	Images         []ImageEntry
	Content        ContentStatus
	ContentResult  *entity.PostContent
	ContentMessage string
}

// FailedIndices 状态为 error 的页码
func (s Snapshot) FailedIndices() []int {
	var out []int
	for _, e := range s.Images {
		if e.Status == StatusError {
			out = append(out, e.Index)
		}
	}
	return out
}

// Tracker 进度状态容器，并发安全
type Tracker struct {
	mu      sync.Mutex
	phase   Phase
	taskID  string
	current int
	total   int
	images  map[int]*ImageEntry
	order   []int
	// counted 本轮已计入进度的页码，一页最多计一次
	counted map[int]bool

	content        ContentStatus
	contentResult  *entity.PostContent
	contentMessage string
}

// New 创建空的进度状态
func New() *Tracker {
	return &Tracker{
		phase:   PhaseIdle,
		images:  map[int]*ImageEntry{},
		counted: map[int]bool{},
		content: ContentIdle,
	}
}

// StartGeneration 所有页面重置为 waiting，清除旧错误
func (t *Tracker) StartGeneration(pages []entity.Page) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phase = PhaseGenerating
	t.taskID = ""
	t.current = 0
	t.total = len(pages)
	t.counted = map[int]bool{}
	t.order = t.order[:0]

	prev := t.images
	t.images = make(map[int]*ImageEntry, len(pages))
	for _, p := range pages {
		entry := &ImageEntry{Index: p.Index, Status: StatusWaiting}
		if old, ok := prev[p.Index]; ok {
			entry.Versions = old.Versions
		}
		t.images[p.Index] = entry
		t.order = append(t.order, p.Index)
	}
}

// UpdateProgress 推进单页状态，进度只在该页本轮首次进入终态时加一
func (t *Tracker) UpdateProgress(index int, status ImageStatus, url, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.images[index]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPage, index)
	}
	if !CanTransition(entry.Status, status) {
		return fmt.Errorf("%w: %s -> %s (page %d)", ErrIllegalTransition, entry.Status, status, index)
	}
	if status == StatusDone && url == "" {
		return fmt.Errorf("%w: done without url (page %d)", ErrIllegalTransition, index)
	}

	entry.Status = status
	switch status {
	case StatusDone:
		entry.addVersion(url)
		entry.URL = url
		entry.ErrorMessage = ""
	case StatusError:
		entry.ErrorMessage = errMsg
	}

	if status.Terminal() && t.phase == PhaseGenerating && !t.counted[index] && t.current < t.total {
		t.counted[index] = true
		t.current++
	}
	return nil
}

// SetImageRetrying 单页进入重试，不影响整体进度
func (t *Tracker) SetImageRetrying(index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.images[index]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPage, index)
	}
	if !CanTransition(entry.Status, StatusRetrying) {
		return fmt.Errorf("%w: %s -> %s (page %d)", ErrIllegalTransition, entry.Status, StatusRetrying, index)
	}
	entry.Status = StatusRetrying
	return nil
}

// UpdateImage 设置当前图片并强制 done，用于重绘成功与切换版本
func (t *Tracker) UpdateImage(index int, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.images[index]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPage, index)
	}
	if url == "" {
		return fmt.Errorf("%w: empty url (page %d)", ErrIllegalTransition, index)
	}
	entry.addVersion(url)
	entry.URL = url
	entry.Status = StatusDone
	entry.ErrorMessage = ""
	return nil
}

// FailImage 单页重试失败，不影响整体进度
func (t *Tracker) FailImage(index int, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.images[index]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPage, index)
	}
	if !CanTransition(entry.Status, StatusError) {
		return fmt.Errorf("%w: %s -> %s (page %d)", ErrIllegalTransition, entry.Status, StatusError, index)
	}
	entry.Status = StatusError
	entry.ErrorMessage = errMsg
	return nil
}

// Interrupt 事件流中断：所有未到终态的页强制置为 error，便于之后重试失败页
// 返回被中断的页码；生成中断的页仍计入本轮进度
func (t *Tracker) Interrupt(errMsg string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []int
	for _, idx := range t.order {
		entry := t.images[idx]
		if entry.Status.Terminal() {
			continue
		}
		entry.Status = StatusError
		entry.ErrorMessage = errMsg
		if t.phase == PhaseGenerating && !t.counted[idx] && t.current < t.total {
			t.counted[idx] = true
			t.current++
		}
		out = append(out, idx)
	}
	return out
}

// FinishGeneration 记录任务 ID 并结束本轮，不修改单页状态
func (t *Tracker) FinishGeneration(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.taskID = taskID
	t.phase = PhaseFinished
}

// StartContent 文案开始生成
func (t *Tracker) StartContent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.content = ContentGenerating
	t.contentMessage = ""
}

// ContentDone 文案生成完成
func (t *Tracker) ContentDone(content *entity.PostContent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.content = ContentDone
	t.contentResult = content
	t.contentMessage = ""
}

// ContentFailed 文案生成失败，保留上一次成功的结果
func (t *Tracker) ContentFailed(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.content = ContentError
	t.contentMessage = msg
}

// Generated 按页码对齐的当前文件名，未完成的页为 nil
func (t *Tracker) Generated(filename func(url string) string) []*string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*string, len(t.order))
	for i, idx := range t.order {
		e := t.images[idx]
		if e.Status == StatusDone && e.URL != "" {
			out[i] = entity.StringPtr(filename(e.URL))
		}
	}
	return out
}

// Snapshot 返回当前状态的深拷贝
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Phase:          t.phase,
		TaskID:         t.taskID,
		Current:        t.current,
		Total:          t.total,
		Images:         make([]ImageEntry, 0, len(t.order)),
		Content:        t.content,
		ContentMessage: t.contentMessage,
	}
	for _, idx := range t.order {
		s.Images = append(s.Images, t.images[idx].clone())
	}
	if t.contentResult != nil {
		c := *t.contentResult
		s.ContentResult = &c
	}
	return s
}

// Status 单页当前状态
func (t *Tracker) Status(index int) (ImageStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.images[index]
	if !ok {
		return "", false
	}
	return e.Status, true
}
