// Package descriptor 维护已发现服务的描述符目录
package descriptor

import (
	"context"
	"errors"
	"time"

	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

// ErrNotFound 表示描述符不存在
var ErrNotFound = errors.New("服务描述符不存在")

// DescriptorStore 表示服务描述符存储接口
type DescriptorStore interface {
	// Save 保存或更新服务描述符，ID为空时自动生成
	Save(ctx context.Context, desc *model.ServiceDescriptor) error

	// Get 按ID获取服务描述符
	Get(ctx context.Context, id string) (*model.ServiceDescriptor, error)

	// GetByName 按服务名获取服务描述符
	GetByName(ctx context.Context, name string) (*model.ServiceDescriptor, error)

	// List 获取全部服务描述符
	List(ctx context.Context) ([]*model.ServiceDescriptor, error)

	// UpdateHealth 更新服务的健康状态和最后发现时间
	// 健康监控只允许写这两个字段
	UpdateHealth(ctx context.Context, id string, status model.HealthStatus, lastSeen time.Time) error

	// Delete 删除服务描述符
	Delete(ctx context.Context, id string) error

	// CleanupStale 清理最后发现时间早于before的描述符，返回清理数量
	CleanupStale(ctx context.Context, before time.Time) (int, error)
}
