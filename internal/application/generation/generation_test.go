package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"redink-api/internal/domain/entity"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/infrastructure/messaging"
	"redink-api/internal/infrastructure/persistence/memory"
	"redink-api/internal/infrastructure/storage"
	"redink-api/internal/workflow/prompt"
	apperrors "redink-api/pkg/errors"
)

type recordingProvider struct {
	*llm.MockImageProvider

	mu      sync.Mutex
	prompts []string
	refs    []int
	fail    func(prompt string) bool
}

func (p *recordingProvider) Generate(ctx context.Context, req llm.ImageRequest) ([]byte, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, req.Prompt)
	p.refs = append(p.refs, len(req.References))
	fail := p.fail
	p.mu.Unlock()
	if fail != nil && fail(req.Prompt) {
		return nil, errors.New("upstream timeout")
	}
	return p.MockImageProvider.Generate(ctx, req)
}

func (p *recordingProvider) setFail(fn func(string) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fn
}

type staticStyle string

func (s staticStyle) ActiveStylePrompt(context.Context) string { return string(s) }

type staticLogo []byte

func (l staticLogo) ActiveLogo(context.Context) ([]byte, error) { return l, nil }

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []string
}

func (p *recordingPublisher) PublishTaskEvent(_ context.Context, msgType string, evt *messaging.TaskEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msgType+":"+evt.TaskID)
	return nil
}

type fixture struct {
	svc       *Service
	provider  *recordingProvider
	store     *storage.LocalStore
	tasks     *memory.TaskStore
	publisher *recordingPublisher
}

func newFixture(t *testing.T, style string, logos LogoSource) *fixture {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		provider:  &recordingProvider{MockImageProvider: llm.NewMockImageProvider("1024x1536")},
		store:     store,
		tasks:     memory.NewTaskStore(0),
		publisher: &recordingPublisher{},
	}
	f.svc = NewService(Deps{
		Provider:  f.provider,
		Store:     store,
		Tasks:     f.tasks,
		Prompts:   prompt.NewRegistry(),
		Styles:    staticStyle(style),
		Logos:     logos,
		Publisher: f.publisher,
	}, Options{MaxConcurrency: 2})
	return f
}

func samplePages() []entity.Page {
	return []entity.Page{
		{Index: 0, Type: entity.PageTypeCover, Content: "封面 早起"},
		{Index: 1, Type: entity.PageTypeContent, Content: "第一步 定闹钟"},
		{Index: 2, Type: entity.PageTypeSummary, Content: "总结 坚持"},
	}
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func last(events []Event) Event {
	return events[len(events)-1]
}

func TestGenerateSequential(t *testing.T) {
	f := newFixture(t, "", nil)

	taskID, ch, err := f.svc.Generate(context.Background(), GenerateRequest{
		Pages:       samplePages(),
		FullOutline: "outline",
		UserTopic:   "早起",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(taskID, "task_"))
	require.Len(t, taskID, len("task_")+8)

	events := drain(ch)
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	require.Equal(t, []string{
		EventProgress, EventComplete,
		EventProgress,
		EventProgress, EventComplete,
		EventProgress, EventComplete,
		EventFinish,
	}, types)

	first := events[0].Data.(ProgressData)
	require.Equal(t, 0, *first.Index)
	require.Equal(t, PhaseCover, first.Phase)
	require.Equal(t, "batch_start", events[2].Data.(ProgressData).Status)
	require.Equal(t, ImageURL(taskID, "0.png"), events[1].Data.(CompleteData).ImageURL)

	finish := last(events).Data.(FinishData)
	require.True(t, finish.Success)
	require.Equal(t, 3, finish.Completed)
	require.Empty(t, finish.FailedIndices)
	require.Len(t, finish.Images, 3)
	for i, img := range finish.Images {
		require.NotNil(t, img)
		require.Equal(t, entity.PageFilename(i), *img)
		require.True(t, f.store.Exists(taskID, *img))
		require.True(t, f.store.Exists(taskID, entity.ThumbnailName(*img)))
	}

	// 封面之后的页面带封面参考图
	require.Equal(t, []int{0, 1, 1}, f.provider.refs)
	require.Equal(t, []string{messaging.MessageTypeTaskFinished + ":" + taskID}, f.publisher.msgs)

	state, err := f.svc.TaskState(context.Background(), taskID)
	require.NoError(t, err)
	require.True(t, state.HasCover)
	require.Len(t, state.Generated, 3)
}

func TestGenerateCoverFirstWhenNotAtIndexZero(t *testing.T) {
	f := newFixture(t, "", nil)
	pages := []entity.Page{
		{Index: 0, Type: entity.PageTypeContent, Content: "内容"},
		{Index: 1, Type: entity.PageTypeCover, Content: "封面"},
	}

	_, ch, err := f.svc.Generate(context.Background(), GenerateRequest{Pages: pages, TaskID: "task_cover01"})
	require.NoError(t, err)
	events := drain(ch)
	require.Equal(t, 1, *events[0].Data.(ProgressData).Index)
	require.Equal(t, 1, events[1].Data.(CompleteData).Index)
}

func TestGenerateConcurrentWithFailure(t *testing.T) {
	f := newFixture(t, "", nil)
	f.provider.setFail(func(p string) bool { return strings.Contains(p, "定闹钟") })

	taskID, ch, err := f.svc.Generate(context.Background(), GenerateRequest{
		Pages:           samplePages(),
		TaskID:          "task_conc0001",
		HighConcurrency: true,
	})
	require.NoError(t, err)
	events := drain(ch)

	var errs []ErrorData
	for _, ev := range events {
		if ev.Type == EventError {
			errs = append(errs, ev.Data.(ErrorData))
		}
	}
	require.Len(t, errs, 1)
	require.Equal(t, 1, errs[0].Index)
	require.True(t, errs[0].Retryable)
	require.Equal(t, PhaseContent, errs[0].Phase)

	finish := last(events).Data.(FinishData)
	require.False(t, finish.Success)
	require.Equal(t, 2, finish.Completed)
	require.Equal(t, 1, finish.Failed)
	require.Equal(t, []int{1}, finish.FailedIndices)
	require.NotNil(t, finish.Images[0])
	require.Nil(t, finish.Images[1])
	require.NotNil(t, finish.Images[2])

	// 恢复后重试失败页
	f.provider.setFail(nil)
	retry, err := f.svc.RetryFailed(context.Background(), taskID, []entity.Page{samplePages()[1]})
	require.NoError(t, err)
	events = drain(retry)
	require.Equal(t, EventRetryStart, events[0].Type)
	require.Equal(t, 1, events[0].Data.(RetryStartData).Total)
	require.Equal(t, EventComplete, events[1].Type)
	done := last(events).Data.(RetryFinishData)
	require.Equal(t, RetryFinishData{Success: true, Total: 1, Completed: 1, Failed: 0}, done)

	state, err := f.svc.TaskState(context.Background(), taskID)
	require.NoError(t, err)
	require.Empty(t, state.Failed)
	require.Equal(t, "1.png", state.Generated[1])
}

func TestGenerateBrandStylePrefix(t *testing.T) {
	f := newFixture(t, "品牌风格：暖色调", nil)

	_, ch, err := f.svc.Generate(context.Background(), GenerateRequest{Pages: samplePages()[:1], TaskID: "task_brand001"})
	require.NoError(t, err)
	drain(ch)

	require.Len(t, f.provider.prompts, 1)
	require.True(t, strings.HasPrefix(f.provider.prompts[0], "品牌风格：暖色调\n\n"))
	require.Contains(t, f.provider.prompts[0], "封面 早起")
}

func TestGenerateClientDisconnect(t *testing.T) {
	f := newFixture(t, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	taskID, ch, err := f.svc.Generate(ctx, GenerateRequest{Pages: samplePages(), TaskID: "task_gone0001"})
	require.NoError(t, err)
	drain(ch)

	task, err := f.tasks.Get(context.Background(), taskID)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, "0.png", task.Generated[0])
	require.Equal(t, cancelledMessage, task.Failed[1])
	require.Equal(t, cancelledMessage, task.Failed[2])
	require.True(t, f.store.Exists(taskID, "0.png"))
}

func TestGenerateValidation(t *testing.T) {
	f := newFixture(t, "", nil)

	_, _, err := f.svc.Generate(context.Background(), GenerateRequest{})
	require.ErrorIs(t, err, apperrors.ErrInvalidParam)

	_, _, err = f.svc.Generate(context.Background(), GenerateRequest{Pages: samplePages(), TaskID: "../escape"})
	require.ErrorIs(t, err, apperrors.ErrInvalidParam)
}

func TestRetryAndRegenerateVersions(t *testing.T) {
	f := newFixture(t, "", nil)
	taskID, ch, err := f.svc.Generate(context.Background(), GenerateRequest{Pages: samplePages(), TaskID: "task_ver00001"})
	require.NoError(t, err)
	drain(ch)

	page := samplePages()[1]
	res, err := f.svc.Regenerate(context.Background(), PageRequest{TaskID: taskID, Page: page, UseReference: true})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "1_v2.png", res.Filename)
	require.Equal(t, ImageURL(taskID, "1_v2.png"), res.ImageURL)

	res, err = f.svc.Regenerate(context.Background(), PageRequest{TaskID: taskID, Page: page})
	require.NoError(t, err)
	require.Equal(t, "1_v3.png", res.Filename)

	res, err = f.svc.Retry(context.Background(), PageRequest{TaskID: taskID, Page: page})
	require.NoError(t, err)
	require.Equal(t, "1.png", res.Filename)

	f.provider.setFail(func(string) bool { return true })
	res, err = f.svc.Retry(context.Background(), PageRequest{TaskID: taskID, Page: page})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.True(t, res.Retryable)
	require.Contains(t, res.Error, "timeout")
}

func TestRegenerateWithoutTaskState(t *testing.T) {
	f := newFixture(t, "", nil)

	res, err := f.svc.Regenerate(context.Background(), PageRequest{
		TaskID:      "task_fresh001",
		Page:        entity.Page{Index: 0, Type: entity.PageTypeCover, Content: "封面"},
		FullOutline: "大纲",
		UserTopic:   "主题",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "0_v2.png", res.Filename)
	require.Contains(t, f.provider.prompts[0], "大纲")
}

// barrierProvider 凑齐全部并发调用后才一起返回
type barrierProvider struct {
	*llm.MockImageProvider
	wg sync.WaitGroup
}

func (p *barrierProvider) Generate(ctx context.Context, req llm.ImageRequest) ([]byte, error) {
	p.wg.Done()
	p.wg.Wait()
	return p.MockImageProvider.Generate(ctx, req)
}

func TestConcurrentRegenerateGetsDistinctVersions(t *testing.T) {
	f := newFixture(t, "", nil)
	provider := &barrierProvider{MockImageProvider: llm.NewMockImageProvider("1024x1536")}
	svc := NewService(Deps{
		Provider: provider,
		Store:    f.store,
		Tasks:    f.tasks,
		Prompts:  prompt.NewRegistry(),
		Styles:   staticStyle(""),
	}, Options{MaxConcurrency: 2})

	const n = 3
	provider.wg.Add(n)
	page := samplePages()[1]
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Regenerate(context.Background(), PageRequest{TaskID: "task_race0001", Page: page})
			require.NoError(t, err)
			require.True(t, res.Success)
			results[i] = res.Filename
		}()
	}
	wg.Wait()

	require.ElementsMatch(t, []string{"1_v2.png", "1_v3.png", "1_v4.png"}, results)
	for _, name := range results {
		require.True(t, f.store.Exists("task_race0001", name))
	}
}

func TestFailedRegenerateKeepsCurrentVersion(t *testing.T) {
	f := newFixture(t, "", nil)
	taskID, ch, err := f.svc.Generate(context.Background(), GenerateRequest{Pages: samplePages(), TaskID: "task_keep0001"})
	require.NoError(t, err)
	drain(ch)

	f.provider.setFail(func(string) bool { return true })
	res, err := f.svc.Regenerate(context.Background(), PageRequest{TaskID: taskID, Page: samplePages()[1]})
	require.NoError(t, err)
	require.False(t, res.Success)

	task, err := f.tasks.Get(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, "1.png", task.Generated[1])
	require.Empty(t, task.FailedIndices())

	// 重试失败仍按失败页记录
	res, err = f.svc.Retry(context.Background(), PageRequest{TaskID: taskID, Page: samplePages()[1]})
	require.NoError(t, err)
	require.False(t, res.Success)
	task, err = f.tasks.Get(context.Background(), taskID)
	require.NoError(t, err)
	require.NotContains(t, task.Generated, 1)
	require.Equal(t, []int{1}, task.FailedIndices())
}

func TestEditAndCanvas(t *testing.T) {
	f := newFixture(t, "", nil)
	taskID, ch, err := f.svc.Generate(context.Background(), GenerateRequest{Pages: samplePages(), TaskID: "task_edit0001"})
	require.NoError(t, err)
	drain(ch)

	res, err := f.svc.Edit(context.Background(), EditRequest{TaskID: taskID, Index: 0, Prompt: "换成蓝色", Mask: []byte{1}})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "0_v2.png", res.Filename)
	require.True(t, f.store.Exists(taskID, "thumb_0_v2.png"))

	_, err = f.svc.Edit(context.Background(), EditRequest{TaskID: taskID, Index: 9, Prompt: "x", Mask: []byte{1}})
	require.ErrorIs(t, err, apperrors.ErrFileNotFound)

	_, err = f.svc.Edit(context.Background(), EditRequest{TaskID: taskID, Index: 0, Prompt: "x", Mask: []byte{1}, Filename: "1.png"})
	require.ErrorIs(t, err, apperrors.ErrInvalidParam)

	_, err = f.svc.Edit(context.Background(), EditRequest{TaskID: taskID, Index: 0, Prompt: "x"})
	require.ErrorIs(t, err, apperrors.ErrInvalidParam)

	canvas, err := f.provider.MockImageProvider.Generate(context.Background(), llm.ImageRequest{Prompt: "canvas"})
	require.NoError(t, err)
	res, err = f.svc.SaveCanvas(context.Background(), taskID, 0, canvas)
	require.NoError(t, err)
	require.Equal(t, "0_v3.png", res.Filename)

	state, err := f.svc.TaskState(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, "0_v3.png", state.Generated[0])

	_, err = f.svc.SaveCanvas(context.Background(), "task_missing", 0, canvas)
	require.ErrorIs(t, err, apperrors.ErrTaskNotFound)
}

func TestApplyLogo(t *testing.T) {
	base, err := llm.NewMockImageProvider("400x400").Generate(context.Background(), llm.ImageRequest{Prompt: "base"})
	require.NoError(t, err)
	logo, err := llm.NewMockImageProvider("80x80").Generate(context.Background(), llm.ImageRequest{Prompt: "logo"})
	require.NoError(t, err)

	f := newFixture(t, "", nil)
	_, err = f.svc.ApplyLogo(context.Background(), base, "corner")
	require.ErrorIs(t, err, ErrNoLogo)

	f = newFixture(t, "", staticLogo(logo))
	out, err := f.svc.ApplyLogo(context.Background(), base, "watermark")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "data:image/png;base64,"))

	_, err = f.svc.ApplyLogo(context.Background(), nil, "")
	require.ErrorIs(t, err, apperrors.ErrInvalidParam)
}

func TestImagePath(t *testing.T) {
	f := newFixture(t, "", nil)
	taskID, ch, err := f.svc.Generate(context.Background(), GenerateRequest{Pages: samplePages()[:1], TaskID: "task_path0001"})
	require.NoError(t, err)
	drain(ch)

	p, err := f.svc.ImagePath(taskID, "0.png", true)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(p, "thumb_0.png"))

	p, err = f.svc.ImagePath(taskID, "0.png", false)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(p, "0.png"))
	require.False(t, strings.HasSuffix(p, "thumb_0.png"))

	_, err = f.svc.ImagePath(taskID, "5.png", true)
	require.ErrorIs(t, err, apperrors.ErrFileNotFound)

	_, err = f.svc.ImagePath("..", "0.png", false)
	require.ErrorIs(t, err, apperrors.ErrInvalidParam)

	_, err = f.svc.TaskState(context.Background(), "task_unknown")
	require.ErrorIs(t, err, apperrors.ErrTaskNotFound)
}
