package entity

import "time"

// ContentKind 样本归属：本品牌 / 竞品
type ContentKind string

const (
	ContentKindCompany    ContentKind = "company"
	ContentKindCompetitor ContentKind = "competitor"
)

// ContentSource 样本来源
type ContentSource string

const (
	ContentSourceLink   ContentSource = "link"
	ContentSourceManual ContentSource = "manual"
)

// LogoAsset 品牌 logo
type LogoAsset struct {
	FilePath    string   `json:"file_path"`
	Colors      []string `json:"colors"`
	Description string   `json:"description"`
}

// StyleDNA 从样本内容中提炼的风格特征
type StyleDNA struct {
	WritingStyle map[string]any `json:"writing_style"`
	VisualStyle  map[string]any `json:"visual_style"`
	StylePrompt  string         `json:"style_prompt"`
	ExtractedAt  time.Time      `json:"extracted_at"`
}

// Brand 品牌
type Brand struct {
	ID       string     `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name     string     `json:"name" gorm:"type:varchar(255);not null"`
	IsActive bool       `json:"is_active" gorm:"index;not null;default:false"`
	Logo     *LogoAsset `json:"logo" gorm:"type:jsonb;serializer:json"`
	StyleDNA *StyleDNA  `json:"style_dna" gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Brand) TableName() string {
	return "brands"
}

// StylePrompt 返回注入图片生成的风格提示，未提取时为空
func (b *Brand) StylePrompt() string {
	if b == nil || b.StyleDNA == nil {
		return ""
	}
	return b.StyleDNA.StylePrompt
}

// ContentItem 用于提炼风格的样本帖子，添加后不可修改
type ContentItem struct {
	ID        string        `json:"id" gorm:"type:varchar(64);primaryKey"`
	BrandID   string        `json:"-" gorm:"type:varchar(64);index;not null"`
	Kind      ContentKind   `json:"-" gorm:"type:varchar(20);index;not null"`
	Type      ContentSource `json:"type" gorm:"type:varchar(20);not null"`
	SourceURL *string       `json:"source_url"`
	Title     string        `json:"title" gorm:"type:varchar(500)"`
	Text      string        `json:"text" gorm:"type:text"`
	Images    []string      `json:"images" gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time     `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (ContentItem) TableName() string {
	return "brand_contents"
}

// BrandDetail 品牌详情：品牌 + 样本集合
type BrandDetail struct {
	*Brand
	CompanyContents    []*ContentItem `json:"company_contents"`
	CompetitorContents []*ContentItem `json:"competitor_contents"`
}

// Logos 以集合形式返回 logo，当前每个品牌至多一个
func (d *BrandDetail) Logos() []LogoAsset {
	if d == nil || d.Brand == nil || d.Logo == nil {
		return []LogoAsset{}
	}
	return []LogoAsset{*d.Logo}
}
