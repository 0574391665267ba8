package descriptor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
	"github.com/hewenyu/ecosystem-discovery/internal/store/etcd"
)

const (
	// 描述符存储的前缀
	descriptorPrefix = "/eco/descriptors/"
	// 服务名索引的前缀
	nameIndexPrefix = "/eco/descriptor-names/"
)

// EtcdDescriptorStore 实现基于etcd的描述符存储
type EtcdDescriptorStore struct {
	client *etcd.Client
}

// NewEtcdDescriptorStore 创建一个新的基于etcd的描述符存储
func NewEtcdDescriptorStore(client *etcd.Client) *EtcdDescriptorStore {
	return &EtcdDescriptorStore{client: client}
}

// descriptorKey 获取描述符的存储键
func descriptorKey(id string) string {
	return descriptorPrefix + id
}

// nameIndexKey 获取服务名索引的存储键
func nameIndexKey(name string) string {
	return nameIndexPrefix + name
}

// Save 保存或更新服务描述符
func (s *EtcdDescriptorStore) Save(ctx context.Context, desc *model.ServiceDescriptor) error {
	// 确保描述符有ID
	if desc.ID == "" {
		desc.ID = uuid.New().String()
	}

	// 首次保存时记录注册时间
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

	// 序列化描述符
	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("序列化服务描述符失败: %w", err)
	}

	// 存储描述符，TTL为正时使用租约
	key := descriptorKey(desc.ID)
	if desc.TTL > 0 {
		err = s.client.PutWithLease(ctx, key, data, desc.TTL)
	} else {
		err = s.client.Put(ctx, key, data)
	}
	if err != nil {
		return fmt.Errorf("存储服务描述符失败: %w", err)
	}

	// 存储服务名索引
	if err := s.client.Put(ctx, nameIndexKey(desc.Name), []byte(desc.ID)); err != nil {
		return fmt.Errorf("存储服务名索引失败: %w", err)
	}

	return nil
}

// Get 按ID获取服务描述符
func (s *EtcdDescriptorStore) Get(ctx context.Context, id string) (*model.ServiceDescriptor, error) {
	data, err := s.client.Get(ctx, descriptorKey(id))
	if err != nil {
		return nil, fmt.Errorf("获取服务描述符失败: %w", err)
	}
	if data == nil {
		return nil, ErrNotFound
	}

	var desc model.ServiceDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("解析服务描述符失败: %w", err)
	}

	return &desc, nil
}

// GetByName 按服务名获取服务描述符
func (s *EtcdDescriptorStore) GetByName(ctx context.Context, name string) (*model.ServiceDescriptor, error) {
	id, err := s.client.Get(ctx, nameIndexKey(name))
	if err != nil {
		return nil, fmt.Errorf("获取服务名索引失败: %w", err)
	}
	if id == nil {
		return nil, ErrNotFound
	}

	return s.Get(ctx, string(id))
}

// List 获取全部服务描述符
func (s *EtcdDescriptorStore) List(ctx context.Context) ([]*model.ServiceDescriptor, error) {
	kvs, err := s.client.GetWithPrefix(ctx, descriptorPrefix)
	if err != nil {
		return nil, fmt.Errorf("获取服务描述符列表失败: %w", err)
	}

	descs := make([]*model.ServiceDescriptor, 0, len(kvs))
	for key, data := range kvs {
		var desc model.ServiceDescriptor
		if err := json.Unmarshal(data, &desc); err != nil {
			return nil, fmt.Errorf("解析服务描述符失败 [%s]: %w", key, err)
		}
		descs = append(descs, &desc)
	}

	return descs, nil
}

// UpdateHealth 更新服务的健康状态和最后发现时间
func (s *EtcdDescriptorStore) UpdateHealth(ctx context.Context, id string, status model.HealthStatus, lastSeen time.Time) error {
	desc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	desc.Health = status
	desc.LastSeen = lastSeen

	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("序列化服务描述符失败: %w", err)
	}

	if err := s.client.Put(ctx, descriptorKey(id), data); err != nil {
		return fmt.Errorf("更新服务健康状态失败: %w", err)
	}

	return nil
}

// Delete 删除服务描述符
func (s *EtcdDescriptorStore) Delete(ctx context.Context, id string) error {
	desc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.client.Delete(ctx, descriptorKey(id)); err != nil {
		return fmt.Errorf("删除服务描述符失败: %w", err)
	}
	if err := s.client.Delete(ctx, nameIndexKey(desc.Name)); err != nil {
		return fmt.Errorf("删除服务名索引失败: %w", err)
	}

	return nil
}

// CleanupStale 清理最后发现时间早于before的描述符
func (s *EtcdDescriptorStore) CleanupStale(ctx context.Context, before time.Time) (int, error) {
	descs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, desc := range descs {
		if desc.LastSeen.Before(before) {
			if err := s.Delete(ctx, desc.ID); err != nil {
				return count, err
			}
			count++
		}
	}

	return count, nil
}
