package reconcile

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"redink-api/internal/client/api"
	"redink-api/internal/domain/entity"
)

// fakeStore 按服务端语义在内存中维护记录：提供的字段整体替换
type fakeStore struct {
	mu       sync.Mutex
	records  map[string]*entity.HistoryRecord
	tokens   map[string]string
	updates  []api.HistoryUpdate
	creates  int
	failNext bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*entity.HistoryRecord{}, tokens: map[string]string{}}
}

func (s *fakeStore) CreateHistory(_ context.Context, req api.CreateHistoryRequest) api.Result[string] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return api.Fail[string](&api.Failure{Kind: api.KindNetwork, Message: "dial tcp: refused"})
	}
	s.creates++
	if id, ok := s.tokens[req.ClientToken]; ok && req.ClientToken != "" {
		return api.Ok(id)
	}
	id := fmt.Sprintf("rec_%d", len(s.records)+1)
	s.records[id] = entity.NewHistoryRecord(id, req.Topic, req.Outline, entity.StringPtr(req.TaskID))
	s.tokens[req.ClientToken] = id
	return api.Ok(id)
}

func (s *fakeStore) UpdateHistory(_ context.Context, id string, u api.HistoryUpdate) api.Result[*entity.HistoryRecord] {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return api.Fail[*entity.HistoryRecord](&api.Failure{Kind: api.KindNotFound, Status: http.StatusNotFound})
	}
	s.updates = append(s.updates, u)
	if u.Images != nil {
		rec.Images = u.Images.Clone()
	}
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.Thumbnail != nil {
		v := *u.Thumbnail
		rec.Thumbnail = &v
	} else if u.ClearThumbnail {
		rec.Thumbnail = nil
	}
	if u.Content != nil {
		c := *u.Content
		rec.Content = &c
	}
	return api.Ok(rec)
}

func (s *fakeStore) GetHistory(_ context.Context, id string) api.Result[*entity.HistoryRecord] {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return api.Fail[*entity.HistoryRecord](&api.Failure{Kind: api.KindNotFound, Status: http.StatusNotFound})
	}
	return api.Ok(rec)
}

func (s *fakeStore) HistoryExists(_ context.Context, id string) api.Result[bool] {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return api.Ok(ok)
}

func (s *fakeStore) ScanAll(context.Context) api.Result[*api.ScanAllResult] {
	return api.Ok(&api.ScanAllResult{TotalTasks: 3, Synced: 2, Failed: 0, OrphanTasks: []string{"task_orphan"}})
}

func (s *fakeStore) record(id string) entity.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[id]
}

func outline3() entity.Outline {
	return entity.Outline{
		Raw: "[封面]\nA\n<page>\n[内容]\nB\n<page>\n[总结]\nC",
		Pages: []entity.Page{
			{Index: 0, Type: entity.PageTypeCover, Content: "A"},
			{Index: 1, Type: entity.PageTypeContent, Content: "B"},
			{Index: 2, Type: entity.PageTypeSummary, Content: "C"},
		},
	}
}

func newReconciler(t *testing.T) (*Reconciler, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	r := New(store)
	t.Cleanup(r.Close)
	return r, store
}

func TestPartialFinishClearsThumbnail(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()
	sess := NewSession("")

	r.CreateAfterOutline(ctx, sess, "早起", outline3())
	require.NotEmpty(t, sess.RecordID())
	require.NotEmpty(t, sess.ClientToken())

	r.BeginGeneration(ctx, sess)
	r.FinishGeneration(ctx, sess, "task_1", []*string{nil, entity.StringPtr("1.png"), nil})
	r.Wait()

	rec := store.record(sess.RecordID())
	require.Equal(t, entity.RecordStatusPartial, rec.Status)
	require.Nil(t, rec.Thumbnail)
	require.Equal(t, "task_1", *rec.Images.TaskID)
	require.Equal(t, rec.Status, rec.DerivedStatus())
}

func TestBeginGenerationFallbackCreate(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()
	sess := NewSession("brand_1")

	store.failNext = true
	r.CreateAfterOutline(ctx, sess, "早起", outline3())
	require.Empty(t, sess.RecordID())

	// 补建沿用同一令牌；重复补建也只得到同一条记录
	r.BeginGeneration(ctx, sess)
	r.Wait()
	id := sess.RecordID()
	require.NotEmpty(t, id)

	sess.setRecordID("")
	r.BeginGeneration(ctx, sess)
	r.Wait()
	require.Equal(t, id, sess.RecordID())
	require.Len(t, store.records, 1)
	require.Equal(t, entity.RecordStatusGenerating, store.record(id).Status)
}

func TestContentAfterCompletedLeavesImages(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()
	sess := NewSession("")

	r.CreateAfterOutline(ctx, sess, "早起", outline3())
	r.FinishGeneration(ctx, sess, "task_1", []*string{
		entity.StringPtr("0.png"), entity.StringPtr("1.png"), entity.StringPtr("2.png"),
	})
	r.Wait()
	before := store.record(sess.RecordID())
	require.Equal(t, entity.RecordStatusCompleted, before.Status)

	r.PersistContent(ctx, sess, &entity.PostContent{Titles: []string{"标题"}, Copywriting: "正文", Tags: []string{"早起"}})
	r.Wait()

	after := store.record(sess.RecordID())
	require.Equal(t, before.Status, after.Status)
	require.Equal(t, before.Images, after.Images)
	require.Equal(t, *before.Thumbnail, *after.Thumbnail)
	require.Equal(t, "正文", after.Content.Copywriting)

	last := store.updates[len(store.updates)-1]
	require.Nil(t, last.Images)
	require.Nil(t, last.Status)
	require.False(t, last.ClearThumbnail)
}

func TestApplyEditWritesSelectedFilename(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()
	sess := NewSession("")

	r.CreateAfterOutline(ctx, sess, "早起", outline3())
	r.FinishGeneration(ctx, sess, "task_1", []*string{nil, entity.StringPtr("1.png"), entity.StringPtr("2.png")})
	r.ApplyEdit(ctx, sess, 0, "0_v2.png")
	r.ApplyEdit(ctx, sess, 1, "1_v2.png")
	r.ApplyEdit(ctx, sess, 1, "1.png")
	r.Wait()

	rec := store.record(sess.RecordID())
	require.Equal(t, entity.RecordStatusCompleted, rec.Status)
	require.Equal(t, "0_v2.png", *rec.Thumbnail)
	require.Equal(t, "1.png", *rec.Images.Generated[1])
	require.True(t, entity.ThumbnailMatches(rec.Thumbnail, rec.Images.Generated))
}

func TestRestoreDeletedRecord(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()
	sess := NewSession("")
	r.CreateAfterOutline(ctx, sess, "早起", outline3())
	r.FinishGeneration(ctx, sess, "task_1", []*string{entity.StringPtr("0.png"), nil, nil})
	r.Wait()

	restored, rec, ok := r.Restore(ctx, sess.RecordID())
	require.True(t, ok)
	require.Equal(t, "task_1", restored.TaskID())
	require.Equal(t, entity.RecordStatusPartial, rec.Status)
	require.Equal(t, "0.png", *restored.Generated()[0])

	store.mu.Lock()
	delete(store.records, sess.RecordID())
	store.mu.Unlock()

	for i := 0; i < 2; i++ {
		exists, f := store.HistoryExists(ctx, sess.RecordID()).Unwrap()
		require.Nil(t, f)
		require.False(t, exists)
	}
	_, _, ok = r.Restore(ctx, sess.RecordID())
	require.False(t, ok)
}

func TestWritesWithoutRecordAreSkipped(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()
	sess := NewSession("")

	r.FinishGeneration(ctx, sess, "task_1", []*string{entity.StringPtr("0.png")})
	r.PersistContent(ctx, sess, &entity.PostContent{Copywriting: "x"})
	r.Wait()
	require.Empty(t, store.updates)
}

func TestStartupScan(t *testing.T) {
	r, _ := newReconciler(t)
	summary, f := r.StartupScan(context.Background())
	require.Nil(t, f)
	require.Equal(t, 3, summary.Total)
	require.Equal(t, []string{"task_orphan"}, summary.Orphans)
}

func TestWritesKeepSubmissionOrder(t *testing.T) {
	r, store := newReconciler(t)
	ctx, cancel := context.WithCancel(context.Background())
	sess := NewSession("")
	r.CreateAfterOutline(ctx, sess, "早起", outline3())

	r.BeginGeneration(ctx, sess)
	r.FinishGeneration(ctx, sess, "task_1", []*string{
		entity.StringPtr("0.png"), entity.StringPtr("1.png"), entity.StringPtr("2.png"),
	})
	// 调用方取消不影响已提交的写入
	cancel()
	r.Wait()

	require.Equal(t, entity.RecordStatusCompleted, store.record(sess.RecordID()).Status)
	require.Equal(t, entity.RecordStatusGenerating, *store.updates[0].Status)
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()
	sess := NewSession("")
	r.CreateAfterOutline(ctx, sess, "早起", outline3())
	require.NotEmpty(t, sess.RecordID())
	r.Close()

	done := make(chan struct{})
	go func() {
		r.BeginGeneration(ctx, sess)
		r.PersistContent(ctx, sess, &entity.PostContent{Copywriting: "x"})
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("写入在关闭后阻塞")
	}
	require.Empty(t, store.updates)
}

func TestBeginGenerationCarriesTaskID(t *testing.T) {
	r, store := newReconciler(t)
	ctx := context.Background()
	sess := NewSession("")
	r.CreateAfterOutline(ctx, sess, "早起", outline3())

	sess.SetTaskID("task_1")
	r.BeginGeneration(ctx, sess)
	r.Wait()

	rec := store.record(sess.RecordID())
	require.Equal(t, entity.RecordStatusGenerating, rec.Status)
	require.NotNil(t, rec.Images.TaskID)
	require.Equal(t, "task_1", *rec.Images.TaskID)
	require.Len(t, rec.Images.Generated, 3)
	require.Nil(t, rec.Thumbnail)
}
