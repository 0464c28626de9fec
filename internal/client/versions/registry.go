// Package versions 每页图片的历史版本与当前选中指针
package versions

import (
	"fmt"
	"sync"
)

// Source 版本来源
type Source string

const (
	SourceGenerate   Source = "generate"
	SourceRegenerate Source = "regenerate"
	SourceInpaint    Source = "inpaint"
	SourceCanvas     Source = "canvas"
	SourceLogo       Source = "logo"
)

// Version 一个图片版本
type Version struct {
	URL      string
	Filename string
	Source   Source
}

type page struct {
	versions []Version
	selected int
	// logoSnapshot 叠加 logo 之前的选中位置，-1 表示没有
	logoSnapshot int
}

// Registry 只追加的版本表，选中指针可以指向任意历史版本
type Registry struct {
	mu       sync.Mutex
	pages    map[int]*page
	filename func(url string) string
}

// New 创建版本表，filename 从访问路径中取出文件名
func New(filename func(url string) string) *Registry {
	if filename == nil {
		filename = func(u string) string { return u }
	}
	return &Registry{pages: map[int]*page{}, filename: filename}
}

func (r *Registry) page(index int) *page {
	p, ok := r.pages[index]
	if !ok {
		p = &page{selected: -1, logoSnapshot: -1}
		r.pages[index] = p
	}
	return p
}

// Append 追加并选中新版本；URL 已存在时只重新选中
func (r *Registry) Append(index int, url string, source Source) Version {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.append(index, url, source)
}

func (r *Registry) append(index int, url string, source Source) Version {
	p := r.page(index)
	for i, v := range p.versions {
		if v.URL == url {
			p.selected = i
			return v
		}
	}
	v := Version{URL: url, Filename: r.filename(url), Source: source}
	p.versions = append(p.versions, v)
	p.selected = len(p.versions) - 1
	return v
}

// Select 切换选中版本，只改变客户端状态
func (r *Registry) Select(index, i int) (Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pages[index]
	if !ok || i < 0 || i >= len(p.versions) {
		return Version{}, fmt.Errorf("page %d has no version %d", index, i)
	}
	p.selected = i
	return p.versions[i], nil
}

// Selected 当前选中版本
func (r *Registry) Selected(index int) (Version, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pages[index]
	if !ok || p.selected < 0 {
		return Version{}, false
	}
	return p.versions[p.selected], true
}

// Latest 最新追加的版本
func (r *Registry) Latest(index int) (Version, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pages[index]
	if !ok || len(p.versions) == 0 {
		return Version{}, false
	}
	return p.versions[len(p.versions)-1], true
}

// List 该页全部版本的副本
func (r *Registry) List(index int) []Version {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pages[index]
	if !ok {
		return nil
	}
	return append([]Version(nil), p.versions...)
}

// LogoApply 记录叠加前的选中位置，再追加 logo 版本
func (r *Registry) LogoApply(index int, url string) Version {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.page(index)
	p.logoSnapshot = p.selected
	return r.append(index, url, SourceLogo)
}

// LogoRevert 恢复叠加前的选中位置，不删除任何版本
func (r *Registry) LogoRevert(index int) (Version, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pages[index]
	if !ok || p.logoSnapshot < 0 || p.logoSnapshot >= len(p.versions) {
		return Version{}, false
	}
	p.selected = p.logoSnapshot
	p.logoSnapshot = -1
	return p.versions[p.selected], true
}
