package api

import (
	"net/url"
	"strings"
)

// ImagePathPrefix 图片访问路径前缀
const ImagePathPrefix = "/api/images/"

// ImageURL 由任务 ID 与文件名拼出访问路径，记录中只保存这两者
func ImageURL(taskID, filename string) string {
	return ImagePathPrefix + url.PathEscape(taskID) + "/" + url.PathEscape(filename)
}

// ThumbnailURL 缩略图访问路径
func ThumbnailURL(taskID, filename string) string {
	return ImageURL(taskID, filename) + "?thumbnail=true"
}

// ParseImageURL 从访问路径（可带域名与查询串）还原任务 ID 与文件名
func ParseImageURL(raw string) (taskID, filename string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	i := strings.Index(u.Path, ImagePathPrefix)
	if i < 0 {
		return "", "", false
	}
	parts := strings.Split(u.Path[i+len(ImagePathPrefix):], "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// FilenameOf 访问路径中的文件名，不是图片路径时原样返回
func FilenameOf(raw string) string {
	if _, name, ok := ParseImageURL(raw); ok {
		return name
	}
	return raw
}
