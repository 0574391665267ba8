package descriptor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

// MemoryDescriptorStore 实现基于内存的描述符存储
// 未配置etcd端点的部署和测试中使用
type MemoryDescriptorStore struct {
	mu    sync.RWMutex
	descs map[string]*model.ServiceDescriptor
	names map[string]string // 服务名 -> ID
}

// NewMemoryDescriptorStore 创建一个新的内存描述符存储
func NewMemoryDescriptorStore() *MemoryDescriptorStore {
	return &MemoryDescriptorStore{
		descs: make(map[string]*model.ServiceDescriptor),
		names: make(map[string]string),
	}
}

// clone 复制描述符，避免调用方共享内部引用
func clone(desc *model.ServiceDescriptor) *model.ServiceDescriptor {
	copied := *desc
	return &copied
}

// Save 保存或更新服务描述符
func (s *MemoryDescriptorStore) Save(ctx context.Context, desc *model.ServiceDescriptor) error {
	if desc.ID == "" {
		desc.ID = uuid.New().String()
	}

	now := time.Now()
	if desc.RegisteredAt.IsZero() {
		desc.RegisteredAt = now
	}
	if desc.LastSeen.IsZero() {
		desc.LastSeen = now
	}
	if desc.Health == "" {
		desc.Health = model.HealthStatusUnknown
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.descs[desc.ID] = clone(desc)
	s.names[desc.Name] = desc.ID

	return nil
}

// Get 按ID获取服务描述符
func (s *MemoryDescriptorStore) Get(ctx context.Context, id string) (*model.ServiceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	desc, ok := s.descs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(desc), nil
}

// GetByName 按服务名获取服务描述符
func (s *MemoryDescriptorStore) GetByName(ctx context.Context, name string) (*model.ServiceDescriptor, error) {
	s.mu.RLock()
	id, ok := s.names[name]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// List 获取全部服务描述符
func (s *MemoryDescriptorStore) List(ctx context.Context) ([]*model.ServiceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	descs := make([]*model.ServiceDescriptor, 0, len(s.descs))
	for _, desc := range s.descs {
		descs = append(descs, clone(desc))
	}
	return descs, nil
}

// UpdateHealth 更新服务的健康状态和最后发现时间
func (s *MemoryDescriptorStore) UpdateHealth(ctx context.Context, id string, status model.HealthStatus, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	desc, ok := s.descs[id]
	if !ok {
		return ErrNotFound
	}
	desc.Health = status
	desc.LastSeen = lastSeen

	return nil
}

// Delete 删除服务描述符
func (s *MemoryDescriptorStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	desc, ok := s.descs[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.descs, id)
	delete(s.names, desc.Name)

	return nil
}

// CleanupStale 清理最后发现时间早于before的描述符
func (s *MemoryDescriptorStore) CleanupStale(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, desc := range s.descs {
		if desc.LastSeen.Before(before) {
			delete(s.descs, id)
			delete(s.names, desc.Name)
			count++
		}
	}

	return count, nil
}
