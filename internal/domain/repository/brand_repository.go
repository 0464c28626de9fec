package repository

import (
	"context"

	"redink-api/internal/domain/entity"
)

// BrandRepository 品牌仓储接口
type BrandRepository interface {
	// Create 创建品牌；首个品牌自动激活
	Create(ctx context.Context, brand *entity.Brand) error

	// GetByID 根据 ID 获取品牌，不存在返回 (nil, nil)
	GetByID(ctx context.Context, id string) (*entity.Brand, error)

	// List 列出全部品牌，按创建时间升序
	List(ctx context.Context) ([]*entity.Brand, error)

	// Update 写回品牌
	Update(ctx context.Context, brand *entity.Brand) error

	// Delete 删除品牌及其样本；删除的是激活品牌时激活剩余的第一个
	Delete(ctx context.Context, id string) (bool, error)

	// Activate 激活指定品牌，其余全部取消激活
	Activate(ctx context.Context, id string) error

	// GetActive 获取当前激活品牌，不存在返回 (nil, nil)
	GetActive(ctx context.Context) (*entity.Brand, error)

	// AddContent 添加样本
	AddContent(ctx context.Context, item *entity.ContentItem) error

	// DeleteContent 删除样本，返回被删除的样本
	DeleteContent(ctx context.Context, brandID string, kind entity.ContentKind, contentID string) (*entity.ContentItem, error)

	// ListContents 列出样本，按添加时间升序
	ListContents(ctx context.Context, brandID string, kind entity.ContentKind) ([]*entity.ContentItem, error)
}
