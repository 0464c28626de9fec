// Package memory 提供未启用 Redis 时的进程内存储
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"redink-api/internal/domain/entity"
	"redink-api/internal/domain/repository"
)

type taskEntry struct {
	data      []byte
	expiresAt time.Time
}

// TaskStore 进程内任务上下文存储
// 存入的是快照，调用方持有的对象修改后需再次 Save
type TaskStore struct {
	mu    sync.RWMutex
	ttl   time.Duration
	tasks map[string]taskEntry
	now   func() time.Time
}

var _ repository.TaskStore = (*TaskStore)(nil)

// NewTaskStore 创建进程内任务存储
func NewTaskStore(ttl time.Duration) *TaskStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TaskStore{
		ttl:   ttl,
		tasks: make(map[string]taskEntry),
		now:   time.Now,
	}
}

func (s *TaskStore) Save(_ context.Context, task *entity.ImageTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gcLocked()
	s.tasks[task.TaskID] = taskEntry{data: data, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *TaskStore) Get(_ context.Context, taskID string) (*entity.ImageTask, error) {
	s.mu.RLock()
	entry, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok || s.now().After(entry.expiresAt) {
		return nil, nil
	}

	var task entity.ImageTask
	if err := json.Unmarshal(entry.data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskStore) Delete(_ context.Context, taskID string) error {
	s.mu.Lock()
	delete(s.tasks, taskID)
	s.mu.Unlock()
	return nil
}

// gcLocked 清理过期条目，调用方需持有写锁
func (s *TaskStore) gcLocked() {
	now := s.now()
	for id, e := range s.tasks {
		if now.After(e.expiresAt) {
			delete(s.tasks, id)
		}
	}
}
