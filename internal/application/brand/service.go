// Package brand 品牌风格库：品牌、logo、样本内容与风格提炼
package brand

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"path"
	"path/filepath"
	"strings"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
	"redink-api/internal/infrastructure/imaging"
	"redink-api/internal/infrastructure/llm"
	"redink-api/internal/infrastructure/storage"
	"redink-api/internal/workflow/prompt"
	apperrors "redink-api/pkg/errors"
	"redink-api/pkg/logger"
)

const (
	logoDir        = "logos"
	logoColorCount = 5
)

// ImageFetcher 按地址下载样本图片
type ImageFetcher interface {
	FetchImages(ctx context.Context, urls []string, limit int) [][]byte
}

// Deps 品牌服务依赖
type Deps struct {
	Repo    repository.BrandRepository
	Store   *storage.LocalStore
	Text    *llm.TextClient
	Prompts *prompt.Registry
	Fetcher ImageFetcher
}

// Service 品牌服务
type Service struct {
	repo    repository.BrandRepository
	store   *storage.LocalStore
	text    *llm.TextClient
	prompts *prompt.Registry
	fetcher ImageFetcher
}

// NewService 创建品牌服务，Store 以品牌目录为根
func NewService(deps Deps) *Service {
	return &Service{
		repo:    deps.Repo,
		store:   deps.Store,
		text:    deps.Text,
		prompts: deps.Prompts,
		fetcher: deps.Fetcher,
	}
}

func newID(prefix string) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return prefix + "_" + hex.EncodeToString(b[:])
}

func dbError(err error) error {
	return apperrors.ErrDatabaseError.WithError(err)
}

// Create 创建品牌，第一个品牌自动激活
func (s *Service) Create(ctx context.Context, name string) (*entity.Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("品牌名称不能为空")
	}
	b := &entity.Brand{ID: newID("brand"), Name: name}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, dbError(err)
	}
	logger.Info(logger.WithContext(ctx, logger.BrandIDKey, b.ID), "brand created", "active", b.IsActive)
	return b, nil
}

// List 列出全部品牌
func (s *Service) List(ctx context.Context) ([]*entity.Brand, error) {
	brands, err := s.repo.List(ctx)
	if err != nil {
		return nil, dbError(err)
	}
	return brands, nil
}

func (s *Service) mustGet(ctx context.Context, id string) (*entity.Brand, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, dbError(err)
	}
	if b == nil {
		return nil, apperrors.ErrBrandNotFound.WithDetail(id)
	}
	return b, nil
}

// Get 品牌详情，包含本品牌与竞品样本
func (s *Service) Get(ctx context.Context, id string) (*entity.BrandDetail, error) {
	b, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, b)
}

func (s *Service) detail(ctx context.Context, b *entity.Brand) (*entity.BrandDetail, error) {
	company, err := s.repo.ListContents(ctx, b.ID, entity.ContentKindCompany)
	if err != nil {
		return nil, dbError(err)
	}
	competitor, err := s.repo.ListContents(ctx, b.ID, entity.ContentKindCompetitor)
	if err != nil {
		return nil, dbError(err)
	}
	return &entity.BrandDetail{Brand: b, CompanyContents: company, CompetitorContents: competitor}, nil
}

// Active 当前激活品牌详情，没有激活品牌时返回 nil
func (s *Service) Active(ctx context.Context) (*entity.BrandDetail, error) {
	b, err := s.repo.GetActive(ctx)
	if err != nil {
		return nil, dbError(err)
	}
	if b == nil {
		return nil, nil
	}
	return s.detail(ctx, b)
}

// Rename 修改品牌名称
func (s *Service) Rename(ctx context.Context, id, name string) (*entity.Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("品牌名称不能为空")
	}
	b, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Name = name
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, dbError(err)
	}
	return b, nil
}

// Delete 删除品牌、样本与素材目录
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx = logger.WithContext(ctx, logger.BrandIDKey, id)
	existed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return dbError(err)
	}
	if !existed {
		return apperrors.ErrBrandNotFound.WithDetail(id)
	}
	if err := s.store.RemoveDir(id); err != nil {
		logger.Warn(ctx, "failed to remove brand assets", "error", err.Error())
	}
	logger.Info(ctx, "brand deleted")
	return nil
}

// Activate 激活品牌
func (s *Service) Activate(ctx context.Context, id string) (*entity.Brand, error) {
	if err := s.repo.Activate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrBrandNotFound.WithDetail(id)
		}
		return nil, dbError(err)
	}
	logger.Info(logger.WithContext(ctx, logger.BrandIDKey, id), "brand activated")
	return s.mustGet(ctx, id)
}

// ActiveStylePrompt 激活品牌的风格提示，出错或未提取时为空
func (s *Service) ActiveStylePrompt(ctx context.Context) string {
	b, err := s.repo.GetActive(ctx)
	if err != nil {
		logger.Warn(ctx, "load active brand failed", "error", err.Error())
		return ""
	}
	return b.StylePrompt()
}

// ActiveLogo 激活品牌的 logo 图片，没有时返回 nil
func (s *Service) ActiveLogo(ctx context.Context) ([]byte, error) {
	b, err := s.repo.GetActive(ctx)
	if err != nil {
		return nil, dbError(err)
	}
	if b == nil || b.Logo == nil {
		return nil, nil
	}
	data, err := s.readAsset(b.Logo.FilePath)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// readAsset 读取以品牌目录为根的相对路径
func (s *Service) readAsset(rel string) ([]byte, error) {
	return s.store.Read(path.Dir(rel), path.Base(rel))
}

// UploadLogo 保存 logo 并提取主色，替换已有 logo
func (s *Service) UploadLogo(ctx context.Context, id string, data []byte, filename string) (*entity.LogoAsset, error) {
	ctx = logger.WithContext(ctx, logger.BrandIDKey, id)
	b, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("缺少 logo 文件")
	}
	colors, err := imaging.ExtractColors(data, logoColorCount)
	if err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("logo 图片无法解码").WithError(err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".png"
	}
	name := "logo" + ext
	dir := path.Join(id, logoDir)
	if b.Logo != nil && b.Logo.FilePath != path.Join(dir, name) {
		_ = s.store.Remove(path.Dir(b.Logo.FilePath), path.Base(b.Logo.FilePath))
	}
	if err := s.store.Write(dir, name, data); err != nil {
		return nil, apperrors.ErrStorageError.WithError(err)
	}

	desc := ""
	if b.Logo != nil {
		desc = b.Logo.Description
	}
	b.Logo = &entity.LogoAsset{FilePath: path.Join(dir, name), Colors: colors, Description: desc}
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, dbError(err)
	}
	logger.Info(ctx, "brand logo uploaded", "colors", colors)
	return b.Logo, nil
}

// Logo 读取品牌 logo，返回文件名与内容
func (s *Service) Logo(ctx context.Context, id string) (string, []byte, error) {
	b, err := s.mustGet(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if b.Logo == nil {
		return "", nil, apperrors.ErrFileNotFound.WithDetail("品牌未上传 logo")
	}
	data, err := s.readAsset(b.Logo.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return "", nil, apperrors.ErrFileNotFound.WithDetail(b.Logo.FilePath)
		}
		return "", nil, apperrors.ErrStorageError.WithError(err)
	}
	return path.Base(b.Logo.FilePath), data, nil
}

// DeleteLogo 删除品牌 logo
func (s *Service) DeleteLogo(ctx context.Context, id string) error {
	b, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if b.Logo == nil {
		return apperrors.ErrFileNotFound.WithDetail("品牌未上传 logo")
	}
	if err := s.store.Remove(path.Dir(b.Logo.FilePath), path.Base(b.Logo.FilePath)); err != nil {
		return apperrors.ErrStorageError.WithError(err)
	}
	b.Logo = nil
	if err := s.repo.Update(ctx, b); err != nil {
		return dbError(err)
	}
	return nil
}

// DescribeLogo 修改 logo 描述，用于风格提示
func (s *Service) DescribeLogo(ctx context.Context, id, description string) (*entity.LogoAsset, error) {
	b, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Logo == nil {
		return nil, apperrors.ErrFileNotFound.WithDetail("品牌未上传 logo")
	}
	b.Logo.Description = strings.TrimSpace(description)
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, dbError(err)
	}
	return b.Logo, nil
}
