// Package reconcile 让持久化的历史记录与客户端进度保持收敛
package reconcile

import (
	"sync"

	"redink-api/internal/domain/entity"
)

// SessionContext 一次创作会话的上下文，显式传递给各个操作
type SessionContext struct {
	mu sync.Mutex

	recordID    string
	brandID     string
	clientToken string
	taskID      string

	topic     string
	outline   entity.Outline
	generated []*string
}

// NewSession 创建会话，brandID 可以为空
func NewSession(brandID string) *SessionContext {
	return &SessionContext{brandID: brandID}
}

// RecordID 当前记录 ID，为空表示本会话不持久化
func (s *SessionContext) RecordID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordID
}

// BrandID 会话使用的品牌
func (s *SessionContext) BrandID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brandID
}

// ClientToken 创建记录使用的幂等令牌
func (s *SessionContext) ClientToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientToken
}

// TaskID 生成任务 ID
func (s *SessionContext) TaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskID
}

// SetTaskID 记录生成任务 ID
func (s *SessionContext) SetTaskID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskID = id
}

// Outline 会话大纲
func (s *SessionContext) Outline() entity.Outline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outline
}

// Generated 按页码对齐的文件名副本
func (s *SessionContext) Generated() []*string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entity.ImageSet{Generated: s.generated}.Clone().Generated
}

func (s *SessionContext) setRecordID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordID = id
}

// images 深拷贝当前图片集合，同时返回页数
func (s *SessionContext) images() (entity.ImageSet, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := entity.ImageSet{TaskID: entity.StringPtr(s.taskID), Generated: s.generated}
	return set.Clone(), len(s.outline.Pages)
}

func (s *SessionContext) setGenerated(generated []*string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generated = entity.ImageSet{Generated: generated}.Clone().Generated
}

// setPage 写入单页文件名，列表不足时补齐
func (s *SessionContext) setPage(index int, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	size := len(s.outline.Pages)
	if index+1 > size {
		size = index + 1
	}
	for len(s.generated) < size {
		s.generated = append(s.generated, nil)
	}
	s.generated[index] = entity.StringPtr(filename)
}
