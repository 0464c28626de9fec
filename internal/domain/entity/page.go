package entity

// PageType 页面类型
type PageType string

const (
	PageTypeCover   PageType = "cover"
	PageTypeContent PageType = "content"
	PageTypeSummary PageType = "summary"
)

// Page 大纲中的一页，index 在记录生命周期内稳定
type Page struct {
	Index   int      `json:"index"`
	Type    PageType `json:"type"`
	Content string   `json:"content"`
	UseLogo *bool    `json:"use_logo,omitempty"`
}

// CoverIndex 返回封面页下标：第一个 cover 类型页面，否则第 0 页
func CoverIndex(pages []Page) int {
	for i, p := range pages {
		if p.Type == PageTypeCover {
			return i
		}
	}
	return 0
}
