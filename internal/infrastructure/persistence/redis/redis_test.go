package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFromRedis(rdb), mr
}

func TestClient_HealthCheck(t *testing.T) {
	client, mr := newTestClient(t)
	require.NoError(t, client.HealthCheck(context.Background()))

	mr.Close()
	require.Error(t, client.HealthCheck(context.Background()))
}

func TestCache_Load(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCache(client)
	ctx := context.Background()

	var calls int
	var mu sync.Mutex
	load := func(context.Context) (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return map[string]string{"v": "1"}, nil
	}

	data, err := cache.Load(ctx, "k", time.Minute, load)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":"1"}`, string(data))

	data, err = cache.Load(ctx, "k", time.Minute, load)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":"1"}`, string(data))
	require.Equal(t, 1, calls)

	// nil 结果不写缓存
	data, err = cache.Load(ctx, "missing", time.Minute, func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	require.Empty(t, data)
	require.False(t, mr.Exists("missing"))

	require.NoError(t, cache.Evict(ctx, "k"))
	require.False(t, mr.Exists("k"))
	_, err = cache.Load(ctx, "k", time.Minute, load)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestCache_LoadError(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCache(client)

	boom := errors.New("db down")
	_, err := cache.Load(context.Background(), "k", time.Minute, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("k"))
}

func TestRateLimiter_Allow(t *testing.T) {
	client, mr := newTestClient(t)
	limiter := NewRateLimiter(client)
	ctx := context.Background()
	key := "redink:ratelimit:127.0.0.1:/api/outline"

	for i := 0; i < 3; i++ {
		ok, remaining, err := limiter.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 2-i, remaining)
	}
	ok, remaining, err := limiter.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, remaining)

	// 被拒绝的请求不计入窗口
	members, err := mr.ZMembers(key)
	require.NoError(t, err)
	require.Len(t, members, 3)

	// 窗口滑过后恢复
	limiter.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	ok, _, err = limiter.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTaskStore_RoundTripAndTTL(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewTaskStore(client, time.Hour)
	ctx := context.Background()

	task := entity.NewImageTask("task_0001abcd", []entity.Page{
		{Index: 0, Type: entity.PageTypeCover, Content: "cover"},
		{Index: 1, Type: entity.PageTypeContent, Content: "body"},
	}, "outline", "topic", "")
	task.MarkDone(0, "0.png")
	task.MarkFailed(1, "boom")

	require.NoError(t, store.Save(ctx, task))

	got, err := store.Get(ctx, task.TaskID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "0.png", got.Generated[0])
	require.Equal(t, []int{1}, got.FailedIndices())

	mr.FastForward(2 * time.Hour)
	got, err = store.Get(ctx, task.TaskID)
	require.NoError(t, err)
	require.Nil(t, got)
}

type countingHistoryRepo struct {
	repository.HistoryRepository
	records map[string]*entity.HistoryRecord
	gets    int
}

func (r *countingHistoryRepo) GetByID(_ context.Context, id string) (*entity.HistoryRecord, error) {
	r.gets++
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *countingHistoryRepo) Update(_ context.Context, record *entity.HistoryRecord, _ ...string) error {
	cp := *record
	r.records[record.ID] = &cp
	return nil
}

func (r *countingHistoryRepo) Delete(_ context.Context, id string) (bool, error) {
	_, ok := r.records[id]
	delete(r.records, id)
	return ok, nil
}

func TestCachedHistoryRepository(t *testing.T) {
	client, _ := newTestClient(t)
	tid := "task_deadbeef"
	rec := entity.NewHistoryRecord("r1", "主题", entity.Outline{Pages: []entity.Page{{Index: 0}}}, &tid)
	inner := &countingHistoryRepo{records: map[string]*entity.HistoryRecord{"r1": rec}}
	repo := NewCachedHistoryRepository(inner, NewCache(client), time.Minute)
	ctx := context.Background()

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "主题", got.Title)
	require.Equal(t, tid, *got.TaskID)

	_, err = repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 1, inner.gets)

	// 写入后缓存失效
	got.Title = "新标题"
	require.NoError(t, repo.Update(ctx, got))
	got, err = repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "新标题", got.Title)
	require.Equal(t, 2, inner.gets)

	// 删除后立即不可见
	existed, err := repo.Delete(ctx, "r1")
	require.NoError(t, err)
	require.True(t, existed)
	got, err = repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.Nil(t, got)
}
