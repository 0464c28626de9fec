package brand

import (
	"context"
	"fmt"
	"path"
	"strings"

	"redink-api/internal/domain/entity"
	"redink-api/internal/infrastructure/imaging"
	apperrors "redink-api/pkg/errors"
	"redink-api/pkg/logger"
)

const (
	sampleImageEdge = 1024
	maxSampleImages = 9
)

// ContentRequest 添加样本请求；Images 为上传的图片，ImageURLs 由服务端下载
type ContentRequest struct {
	Type      entity.ContentSource
	Title     string
	Text      string
	SourceURL string
	Images    [][]byte
	ImageURLs []string
}

func contentDir(brandID string, kind entity.ContentKind) string {
	if kind == entity.ContentKindCompetitor {
		return path.Join(brandID, "competitors")
	}
	return path.Join(brandID, "contents")
}

// ParseKind 解析样本归属
func ParseKind(s string) (entity.ContentKind, error) {
	switch entity.ContentKind(s) {
	case entity.ContentKindCompany:
		return entity.ContentKindCompany, nil
	case entity.ContentKindCompetitor:
		return entity.ContentKindCompetitor, nil
	}
	return "", apperrors.ErrInvalidParam.WithDetail("未知的样本类型: " + s)
}

// AddContent 添加样本，图片统一压缩为 JPEG 保存
func (s *Service) AddContent(ctx context.Context, brandID string, kind entity.ContentKind, req ContentRequest) (*entity.ContentItem, error) {
	ctx = logger.WithContext(ctx, logger.BrandIDKey, brandID)
	if _, err := s.mustGet(ctx, brandID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	text := strings.TrimSpace(req.Text)
	if title == "" && text == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("标题和正文不能同时为空")
	}

	item := &entity.ContentItem{
		ID:      newID(string(kind)),
		BrandID: brandID,
		Kind:    kind,
		Type:    entity.ContentSourceManual,
		Title:   title,
		Text:    text,
		Images:  []string{},
	}
	if req.Type == entity.ContentSourceLink {
		item.Type = entity.ContentSourceLink
	}
	if u := strings.TrimSpace(req.SourceURL); u != "" {
		item.SourceURL = &u
	}

	images := req.Images
	if len(req.ImageURLs) > 0 && s.fetcher != nil {
		images = append(images, s.fetcher.FetchImages(ctx, req.ImageURLs, maxSampleImages)...)
	}
	if len(images) > maxSampleImages {
		images = images[:maxSampleImages]
	}

	dir := contentDir(brandID, kind)
	for _, data := range images {
		jpg, err := imaging.Thumbnail(data, sampleImageEdge)
		if err != nil {
			logger.Warn(ctx, "skip undecodable sample image", "content_id", item.ID, "error", err.Error())
			continue
		}
		name := fmt.Sprintf("%s_%d.jpg", item.ID, len(item.Images))
		if err := s.store.Write(dir, name, jpg); err != nil {
			return nil, apperrors.ErrStorageError.WithError(err)
		}
		item.Images = append(item.Images, path.Join(dir, name))
	}

	if err := s.repo.AddContent(ctx, item); err != nil {
		return nil, dbError(err)
	}
	logger.Info(ctx, "brand content added", "content_id", item.ID, "kind", kind, "images", len(item.Images))
	return item, nil
}

// ListContents 列出样本
func (s *Service) ListContents(ctx context.Context, brandID string, kind entity.ContentKind) ([]*entity.ContentItem, error) {
	if _, err := s.mustGet(ctx, brandID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListContents(ctx, brandID, kind)
	if err != nil {
		return nil, dbError(err)
	}
	return items, nil
}

// DeleteContent 删除样本及其图片
func (s *Service) DeleteContent(ctx context.Context, brandID string, kind entity.ContentKind, contentID string) error {
	ctx = logger.WithContext(ctx, logger.BrandIDKey, brandID)
	item, err := s.repo.DeleteContent(ctx, brandID, kind, contentID)
	if err != nil {
		return dbError(err)
	}
	if item == nil {
		return apperrors.ErrNotFound.WithDetail("样本不存在: " + contentID)
	}
	for _, rel := range item.Images {
		if err := s.store.Remove(path.Dir(rel), path.Base(rel)); err != nil {
			logger.Warn(ctx, "failed to remove sample image", "path", rel, "error", err.Error())
		}
	}
	return nil
}
