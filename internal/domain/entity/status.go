package entity

// DeriveStatus 由图片文件名列表推导记录状态（纯函数）
//   - completed：页数大于 0，列表长度等于页数且没有空位
//   - draft：没有任何图片
//   - partial：其余情况
//
// 列表短于页数时，缺失的页按空位处理。
func DeriveStatus(generated []*string, pageCount int) RecordStatus {
	done := 0
	for _, f := range generated {
		if f != nil && *f != "" {
			done++
		}
	}
	switch {
	case done == 0:
		return RecordStatusDraft
	case pageCount > 0 && len(generated) == pageCount && done == pageCount:
		return RecordStatusCompleted
	default:
		return RecordStatusPartial
	}
}

// ThumbnailFor 封面缩略图约定为第 0 页的文件名，第 0 页没有图片时为 nil
func ThumbnailFor(generated []*string) *string {
	if len(generated) == 0 || generated[0] == nil || *generated[0] == "" {
		return nil
	}
	v := *generated[0]
	return &v
}

// ThumbnailMatches 检查缩略图是否满足“等于第 0 页”的约定
func ThumbnailMatches(thumbnail *string, generated []*string) bool {
	want := ThumbnailFor(generated)
	if thumbnail == nil || *thumbnail == "" {
		return want == nil
	}
	return want != nil && *want == *thumbnail
}

// StringPtr 返回字符串指针，空串返回 nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
