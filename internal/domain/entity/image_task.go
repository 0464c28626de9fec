package entity

import (
	"sort"
	"time"
)

// ImageTask 服务端缓存的生成任务上下文，供重试/重绘复用
type ImageTask struct {
	TaskID      string         `json:"task_id"`
	Pages       []Page         `json:"pages"`
	Generated   map[int]string `json:"generated"`
	Failed      map[int]string `json:"failed"`
	HasCover    bool           `json:"has_cover"`
	CoverFile   string         `json:"cover_file,omitempty"`
	FullOutline string         `json:"full_outline"`
	UserTopic   string         `json:"user_topic"`
	BrandStyle  string         `json:"brand_style,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewImageTask 创建任务上下文
func NewImageTask(taskID string, pages []Page, fullOutline, userTopic, brandStyle string) *ImageTask {
	return &ImageTask{
		TaskID:      taskID,
		Pages:       pages,
		Generated:   make(map[int]string),
		Failed:      make(map[int]string),
		FullOutline: fullOutline,
		UserTopic:   userTopic,
		BrandStyle:  brandStyle,
		UpdatedAt:   time.Now(),
	}
}

// MarkDone 记录某页成功
func (t *ImageTask) MarkDone(index int, filename string) {
	t.ensureMaps()
	t.Generated[index] = filename
	delete(t.Failed, index)
	t.UpdatedAt = time.Now()
}

// MarkFailed 记录某页失败，之前成功的文件名一并清除
func (t *ImageTask) MarkFailed(index int, message string) {
	t.ensureMaps()
	t.Failed[index] = message
	delete(t.Generated, index)
	t.UpdatedAt = time.Now()
}

// Page 按页码查找页面
func (t *ImageTask) Page(index int) (Page, bool) {
	for _, p := range t.Pages {
		if p.Index == index {
			return p, true
		}
	}
	return Page{}, false
}

// FailedIndices 失败页码，升序
func (t *ImageTask) FailedIndices() []int {
	out := make([]int, 0, len(t.Failed))
	for i := range t.Failed {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Aligned 按页码对齐的文件名列表
func (t *ImageTask) Aligned() []*string {
	out := make([]*string, len(t.Pages))
	for i, p := range t.Pages {
		if f, ok := t.Generated[p.Index]; ok {
			v := f
			out[i] = &v
		}
	}
	return out
}

func (t *ImageTask) ensureMaps() {
	if t.Generated == nil {
		t.Generated = make(map[int]string)
	}
	if t.Failed == nil {
		t.Failed = make(map[int]string)
	}
}
