package model

import "time"

// ServiceEntry 表示发现请求中的一个目标服务
type ServiceEntry struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

// BulkDiscoveryRequest 表示批量发现请求
// Services和AutoDetect至少要提供一个，否则请求在开始工作前就被拒绝
type BulkDiscoveryRequest struct {
	Services           []ServiceEntry `json:"services,omitempty"`
	AutoDetect         bool           `json:"auto_detect"`
	IncludeHealthCheck bool           `json:"include_health_check"`
	DryRun             bool           `json:"dry_run"`
}

// SingleDiscoveryRequest 表示单服务发现请求
type SingleDiscoveryRequest struct {
	ServiceName    string   `json:"service_name"`
	ServiceURL     string   `json:"service_url"`
	ToolCategories []string `json:"tool_categories,omitempty"`
	DryRun         bool     `json:"dry_run"`
}

// FailureReason 表示发现流水线的失败原因分类
type FailureReason string

const (
	FailureReasonUnreachable FailureReason = "unreachable"
	FailureReasonTimeout     FailureReason = "timeout"
	FailureReasonMalformed   FailureReason = "malformed_description"
	FailureReasonUnhealthy   FailureReason = "unhealthy"
	FailureReasonCancelled   FailureReason = "cancelled"
)

// ServiceFailure 表示单个服务发现失败的记录
type ServiceFailure struct {
	ServiceName string        `json:"service_name"`
	Reason      FailureReason `json:"reason"`
	Detail      string        `json:"detail,omitempty"`
}

// RegistrationFailure 表示单个工具注册失败的记录
type RegistrationFailure struct {
	ToolName string `json:"tool_name"`
	Error    string `json:"error"`
}

// AggregateResult 表示一次批量发现的汇总结果
// 部分失败不会中断批次，失败信息全部内嵌在结果里返回
type AggregateResult struct {
	ServicesAttempted   int                   `json:"services_attempted"`
	ServicesSucceeded   int                   `json:"services_succeeded"`
	ServicesFailed      []ServiceFailure      `json:"services_failed,omitempty"`
	ToolsDiscovered     int                   `json:"tools_discovered"`
	ToolsRegistered     int                   `json:"tools_registered"`
	Tools               []Tool                `json:"tools,omitempty"`
	Plan                *ExecutionPlan        `json:"plan,omitempty"`
	PlanError           string                `json:"plan_error,omitempty"`
	FailedRegistrations []RegistrationFailure `json:"failed_registrations,omitempty"`
	DryRun              bool                  `json:"dry_run"`
	Duration            time.Duration         `json:"duration"`
}

// RegistrationRecord 表示一次工具注册尝试的记录
// 记录只追加，不修改
type RegistrationRecord struct {
	ID        string    `json:"id"`
	ToolName  string    `json:"tool_name"`
	ServiceID string    `json:"service_id"`
	Target    string    `json:"target"`
	Success   bool      `json:"success"`
	Response  string    `json:"response,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}
