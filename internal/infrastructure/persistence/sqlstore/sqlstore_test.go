package sqlstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	client, err := NewSQLiteMemory(name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func threePageOutline() entity.Outline {
	return entity.Outline{
		Raw: "[封面] a\n<page>\n[内容] b\n<page>\n[总结] c",
		Pages: []entity.Page{
			{Index: 0, Type: entity.PageTypeCover, Content: "a"},
			{Index: 1, Type: entity.PageTypeContent, Content: "b"},
			{Index: 2, Type: entity.PageTypeSummary, Content: "c"},
		},
	}
}

func TestHistoryCreateOrGetDedupesOnClientToken(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(newTestClient(t))

	token := "tok-1"
	first := entity.NewHistoryRecord("rec-1", "秋季穿搭", threePageOutline(), nil)
	first.ClientToken = &token
	stored, created, err := repo.CreateOrGet(ctx, first)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "rec-1", stored.ID)

	second := entity.NewHistoryRecord("rec-2", "秋季穿搭", threePageOutline(), nil)
	second.ClientToken = &token
	stored, created, err = repo.CreateOrGet(ctx, second)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "rec-1", stored.ID)

	exists, err := repo.Exists(ctx, "rec-2")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestHistoryRoundTripAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(newTestClient(t))

	taskID := "task_abcd1234"
	rec := entity.NewHistoryRecord("rec-1", "topic", threePageOutline(), &taskID)
	_, _, err := repo.CreateOrGet(ctx, rec)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, "rec-1")
	require.NoError(t, err)
	require.Len(t, got.Outline.Pages, 3)
	require.Len(t, got.Images.Generated, 3)
	require.Nil(t, got.Images.Generated[0])

	f := "1.png"
	got.Images.Generated[1] = &f
	got.Status = entity.RecordStatusPartial
	require.NoError(t, repo.Update(ctx, got))

	byTask, err := repo.GetByTaskID(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, "rec-1", byTask.ID)
	require.Equal(t, entity.RecordStatusPartial, byTask.Status)
	require.Equal(t, "1.png", *byTask.Images.Generated[1])
	require.Equal(t, byTask.Status, byTask.DerivedStatus())

	missing := entity.NewHistoryRecord("nope", "x", entity.Outline{}, nil)
	require.ErrorIs(t, repo.Update(ctx, missing), repository.ErrNotFound)
}

func TestHistoryColumnUpdatesDoNotClobber(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(newTestClient(t))

	taskID := "task_abcd1234"
	_, _, err := repo.CreateOrGet(ctx, entity.NewHistoryRecord("rec-1", "topic", threePageOutline(), &taskID))
	require.NoError(t, err)

	// 两个写入方各自持有同一份旧数据
	images, err := repo.GetByID(ctx, "rec-1")
	require.NoError(t, err)
	content, err := repo.GetByID(ctx, "rec-1")
	require.NoError(t, err)

	content.Content = &entity.PostContent{Titles: []string{"标题"}, Copywriting: "正文"}
	require.NoError(t, repo.Update(ctx, content, repository.HistoryColumnContent))

	f := "0.png"
	images.Images.Generated[0] = &f
	images.Thumbnail = &f
	images.Status = entity.RecordStatusPartial
	require.NoError(t, repo.Update(ctx, images,
		repository.HistoryColumnImages, repository.HistoryColumnTaskID,
		repository.HistoryColumnThumbnail, repository.HistoryColumnStatus))

	got, err := repo.GetByID(ctx, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, got.Content)
	require.Equal(t, "正文", got.Content.Copywriting)
	require.Equal(t, "0.png", *got.Images.Generated[0])
	require.Equal(t, "0.png", *got.Thumbnail)
	require.Equal(t, entity.RecordStatusPartial, got.Status)
}

func TestHistoryDeleteThenExistsAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(newTestClient(t))

	_, _, err := repo.CreateOrGet(ctx, entity.NewHistoryRecord("rec-1", "t", threePageOutline(), nil))
	require.NoError(t, err)

	ok, err := repo.Delete(ctx, "rec-1")
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 2; i++ {
		exists, err := repo.Exists(ctx, "rec-1")
		require.NoError(t, err)
		require.False(t, exists)
	}
	got, err := repo.GetByID(ctx, "rec-1")
	require.NoError(t, err)
	require.Nil(t, got)

	ok, err = repo.Delete(ctx, "rec-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHistoryListSearchStats(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(newTestClient(t))

	titles := []string{"Autumn Outfit", "autumn recipes", "Winter 100% wool"}
	for i, title := range titles {
		rec := entity.NewHistoryRecord(title, title, threePageOutline(), nil)
		rec.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if i == 0 {
			rec.Status = entity.RecordStatusCompleted
		}
		_, _, err := repo.CreateOrGet(ctx, rec)
		require.NoError(t, err)
	}

	page, err := repo.List(ctx, &repository.HistoryFilter{Status: entity.RecordStatusDraft}, repository.NewPagination(1, 1))
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	require.Equal(t, "Winter 100% wool", page.Items[0].Title)

	found, err := repo.SearchByTitle(ctx, "AUTUMN", 0)
	require.NoError(t, err)
	require.Len(t, found, 2)

	found, err = repo.SearchByTitle(ctx, "100%", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.Total)
	require.EqualValues(t, 2, stats.ByStatus[entity.RecordStatusDraft])
	require.EqualValues(t, 1, stats.ByStatus[entity.RecordStatusCompleted])
}

func TestBrandActivationRules(t *testing.T) {
	ctx := context.Background()
	repo := NewBrandRepository(newTestClient(t))

	a := &entity.Brand{ID: "brand_a", Name: "A", CreatedAt: time.Now()}
	b := &entity.Brand{ID: "brand_b", Name: "B", CreatedAt: time.Now().Add(time.Second)}
	c := &entity.Brand{ID: "brand_c", Name: "C", CreatedAt: time.Now().Add(2 * time.Second)}
	for _, br := range []*entity.Brand{a, b, c} {
		require.NoError(t, repo.Create(ctx, br))
	}
	require.True(t, a.IsActive)
	require.False(t, b.IsActive)

	require.NoError(t, repo.Activate(ctx, "brand_c"))
	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	require.Equal(t, "brand_c", active.ID)

	require.ErrorIs(t, repo.Activate(ctx, "brand_missing"), repository.ErrNotFound)

	ok, err := repo.Delete(ctx, "brand_c")
	require.NoError(t, err)
	require.True(t, ok)
	active, err = repo.GetActive(ctx)
	require.NoError(t, err)
	require.Equal(t, "brand_a", active.ID)

	brands, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, brands, 2)
	activeCount := 0
	for _, br := range brands {
		if br.IsActive {
			activeCount++
		}
	}
	require.Equal(t, 1, activeCount)
}

func TestBrandContents(t *testing.T) {
	ctx := context.Background()
	repo := NewBrandRepository(newTestClient(t))
	require.NoError(t, repo.Create(ctx, &entity.Brand{ID: "brand_a", Name: "A"}))

	item := &entity.ContentItem{
		ID: "company_1", BrandID: "brand_a", Kind: entity.ContentKindCompany,
		Type: entity.ContentSourceManual, Title: "t", Text: "body",
	}
	require.NoError(t, repo.AddContent(ctx, item))
	require.NoError(t, repo.AddContent(ctx, &entity.ContentItem{
		ID: "competitor_1", BrandID: "brand_a", Kind: entity.ContentKindCompetitor,
		Type: entity.ContentSourceLink, Images: []string{"x.jpg"},
	}))

	company, err := repo.ListContents(ctx, "brand_a", entity.ContentKindCompany)
	require.NoError(t, err)
	require.Len(t, company, 1)
	require.Equal(t, []string{}, company[0].Images)

	removed, err := repo.DeleteContent(ctx, "brand_a", entity.ContentKindCompetitor, "company_1")
	require.NoError(t, err)
	require.Nil(t, removed)

	removed, err = repo.DeleteContent(ctx, "brand_a", entity.ContentKindCompetitor, "competitor_1")
	require.NoError(t, err)
	require.Equal(t, []string{"x.jpg"}, removed.Images)
}
