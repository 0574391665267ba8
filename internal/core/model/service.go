package model

import (
	"time"
)

// HealthStatus 表示服务健康状态
type HealthStatus string

const (
	// HealthStatusHealthy 表示服务健康
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusDegraded 表示服务部分可用
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusUnreachable 表示服务不可达
	HealthStatusUnreachable HealthStatus = "unreachable"
	// HealthStatusUnknown 表示健康状态未知
	HealthStatusUnknown HealthStatus = "unknown"
)

// ServiceDescriptor 表示一个被发现的服务实例
type ServiceDescriptor struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	BaseURL      string            `json:"base_url"`
	InterfaceURL string            `json:"interface_url"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Health       HealthStatus      `json:"health"`
	RegisteredAt time.Time         `json:"registered_at"`
	LastSeen     time.Time         `json:"last_seen"`
	TTL          time.Duration     `json:"ttl"`
}

// ApiResponse 表示通用API响应
type ApiResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
