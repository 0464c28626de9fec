package entity

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// ThumbnailPrefix 缩略图文件名前缀
const ThumbnailPrefix = "thumb_"

// ImageFile 任务目录下一张页面图片的文件名信息
type ImageFile struct {
	Name    string
	Index   int
	Version int // 0 表示初始生成的 {index}.png
}

// PageFilename 初始生成文件名
func PageFilename(index int) string {
	return fmt.Sprintf("%d.png", index)
}

// VersionFilename 第 n 个衍生版本文件名
func VersionFilename(index, version int) string {
	return fmt.Sprintf("%d_v%d.png", index, version)
}

// ThumbnailName 缩略图文件名
func ThumbnailName(filename string) string {
	return ThumbnailPrefix + filename
}

// ParseImageFile 解析 "3.png" / "3_v2.jpg"，缩略图和无法识别的文件返回 false
func ParseImageFile(name string) (ImageFile, bool) {
	if strings.HasPrefix(name, ThumbnailPrefix) {
		return ImageFile{}, false
	}
	ext := strings.ToLower(path.Ext(name))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return ImageFile{}, false
	}
	stem := strings.TrimSuffix(name, path.Ext(name))

	version := 0
	if i := strings.Index(stem, "_v"); i >= 0 {
		v, err := strconv.Atoi(stem[i+2:])
		if err != nil || v <= 0 {
			return ImageFile{}, false
		}
		version = v
		stem = stem[:i]
	}
	index, err := strconv.Atoi(stem)
	if err != nil || index < 0 {
		return ImageFile{}, false
	}
	return ImageFile{Name: name, Index: index, Version: version}, true
}
