package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
)

// BrandRepository 品牌仓储实现
type BrandRepository struct {
	client *Client
	tx     *TxManager
}

// NewBrandRepository 创建品牌仓储
func NewBrandRepository(client *Client) *BrandRepository {
	return &BrandRepository{client: client, tx: NewTxManager(client)}
}

// Create 创建品牌，首个品牌自动激活
func (r *BrandRepository) Create(ctx context.Context, brand *entity.Brand) error {
	ctx, span := tracer.Start(ctx, "sqlstore.BrandRepository.Create")
	defer span.End()

	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		db := getDB(ctx, r.client.db)
		var count int64
		if err := db.Model(&entity.Brand{}).Count(&count).Error; err != nil {
			return err
		}
		brand.IsActive = count == 0
		return db.Create(brand).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create brand: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取品牌
func (r *BrandRepository) GetByID(ctx context.Context, id string) (*entity.Brand, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.BrandRepository.GetByID")
	defer span.End()

	var brand entity.Brand
	if err := getDB(ctx, r.client.db).First(&brand, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get brand: %w", err)
	}
	return &brand, nil
}

// List 列出全部品牌
func (r *BrandRepository) List(ctx context.Context) ([]*entity.Brand, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.BrandRepository.List")
	defer span.End()

	var brands []*entity.Brand
	if err := getDB(ctx, r.client.db).Order("created_at ASC, id ASC").Find(&brands).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return brands, nil
}

// Update 写回品牌
func (r *BrandRepository) Update(ctx context.Context, brand *entity.Brand) error {
	ctx, span := tracer.Start(ctx, "sqlstore.BrandRepository.Update")
	defer span.End()

	res := getDB(ctx, r.client.db).
		Model(brand).
		Select("*").
		Omit("id", "created_at", "is_active").
		Updates(brand)
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update brand: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete 删除品牌及其样本
func (r *BrandRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.BrandRepository.Delete")
	defer span.End()

	deleted := false
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		db := getDB(ctx, r.client.db)

		var brand entity.Brand
		if err := db.First(&brand, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := db.Delete(&entity.ContentItem{}, "brand_id = ?", id).Error; err != nil {
			return err
		}
		if err := db.Delete(&entity.Brand{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = true

		if !brand.IsActive {
			return nil
		}
		var next entity.Brand
		err := db.Order("created_at ASC, id ASC").First(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return db.Model(&entity.Brand{}).Where("id = ?", next.ID).Update("is_active", true).Error
	})
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to delete brand: %w", err)
	}
	return deleted, nil
}

// Activate 激活指定品牌
func (r *BrandRepository) Activate(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "sqlstore.BrandRepository.Activate")
	defer span.End()

	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		db := getDB(ctx, r.client.db)

		var count int64
		if err := db.Model(&entity.Brand{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return repository.ErrNotFound
		}
		if err := db.Model(&entity.Brand{}).Where("is_active = ? AND id <> ?", true, id).Update("is_active", false).Error; err != nil {
			return err
		}
		return db.Model(&entity.Brand{}).Where("id = ?", id).Update("is_active", true).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		span.RecordError(err)
		return fmt.Errorf("failed to activate brand: %w", err)
	}
	return nil
}

// GetActive 获取当前激活品牌
func (r *BrandRepository) GetActive(ctx context.Context) (*entity.Brand, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.BrandRepository.GetActive")
	defer span.End()

	var brand entity.Brand
	if err := getDB(ctx, r.client.db).Where("is_active = ?", true).First(&brand).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get active brand: %w", err)
	}
	return &brand, nil
}

// AddContent 添加样本
func (r *BrandRepository) AddContent(ctx context.Context, item *entity.ContentItem) error {
	ctx, span := tracer.Start(ctx, "sqlstore.BrandRepository.AddContent")
	defer span.End()

	if item.Images == nil {
		item.Images = []string{}
	}
	if err := getDB(ctx, r.client.db).Create(item).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to add brand content: %w", err)
	}
	return nil
}

// DeleteContent 删除样本
func (r *BrandRepository) DeleteContent(ctx context.Context, brandID string, kind entity.ContentKind, contentID string) (*entity.ContentItem, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.BrandRepository.DeleteContent")
	defer span.End()

	var item entity.ContentItem
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		db := getDB(ctx, r.client.db)
		if err := db.Where("id = ? AND brand_id = ? AND kind = ?", contentID, brandID, kind).First(&item).Error; err != nil {
			return err
		}
		return db.Delete(&entity.ContentItem{}, "id = ?", contentID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to delete brand content: %w", err)
	}
	return &item, nil
}

// ListContents 列出样本
func (r *BrandRepository) ListContents(ctx context.Context, brandID string, kind entity.ContentKind) ([]*entity.ContentItem, error) {
	ctx, span := tracer.Start(ctx, "sqlstore.BrandRepository.ListContents")
	defer span.End()

	var items []*entity.ContentItem
	err := getDB(ctx, r.client.db).
		Where("brand_id = ? AND kind = ?", brandID, kind).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list brand contents: %w", err)
	}
	return items, nil
}
