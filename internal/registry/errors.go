// Package registry 提供带熔断和有界重试保护的注册中心客户端
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorCategory 表示对外调用失败的封闭分类集合
type ErrorCategory string

const (
	CategoryValidation      ErrorCategory = "validation"
	CategoryNetwork         ErrorCategory = "network"
	CategoryTimeout         ErrorCategory = "timeout"
	CategoryExternalService ErrorCategory = "external_service"
	CategorySystem          ErrorCategory = "system"
)

// Severity 表示失败的严重程度
// 只有high和critical级别的失败会累积到熔断器的失败计数
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// CountsTowardsBreaker 判断该严重程度是否计入熔断器
func (s Severity) CountsTowardsBreaker() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// RecoveryStrategy 描述一个错误分类的恢复策略
type RecoveryStrategy struct {
	Retryable bool
	Severity  Severity
}

// recoveryTable 把每个错误分类映射到固定的恢复策略
var recoveryTable = map[ErrorCategory]RecoveryStrategy{
	CategoryValidation:      {Retryable: false, Severity: SeverityMedium},
	CategoryNetwork:         {Retryable: true, Severity: SeverityHigh},
	CategoryTimeout:         {Retryable: true, Severity: SeverityHigh},
	CategoryExternalService: {Retryable: true, Severity: SeverityHigh},
	CategorySystem:          {Retryable: false, Severity: SeverityCritical},
}

// defaultStrategy 是未知分类的兜底策略：不重试、计入熔断
var defaultStrategy = RecoveryStrategy{Retryable: false, Severity: SeverityHigh}

// StrategyFor 返回错误分类对应的恢复策略
func StrategyFor(category ErrorCategory) RecoveryStrategy {
	if strategy, ok := recoveryTable[category]; ok {
		return strategy
	}
	return defaultStrategy
}

// CallError 表示一次对外调用的终态失败
type CallError struct {
	Target   string
	Category ErrorCategory
	Severity Severity
	// RetryAfter 提示调用方多久之后值得重试，熔断开启时来自恢复超时
	RetryAfter time.Duration
	Attempts   int
	Err        error
}

// Error 实现error接口
func (e *CallError) Error() string {
	return fmt.Sprintf("调用目标失败 [%s/%s] %s (尝试%d次): %v",
		e.Category, e.Severity, e.Target, e.Attempts, e.Err)
}

// Unwrap 返回底层错误
func (e *CallError) Unwrap() error {
	return e.Err
}

// CircuitOpenError 表示熔断器处于开启状态，调用被快速失败
type CircuitOpenError struct {
	Target     string
	RetryAfter time.Duration
}

// Error 实现error接口
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("目标%s的熔断器已开启，建议%v后重试", e.Target, e.RetryAfter)
}

// statusError 表示带HTTP状态码的响应错误
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("目标返回状态码 %d: %s", e.code, e.body)
}

// classify 把一次调用的错误归入封闭分类
func classify(err error) ErrorCategory {
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.code == 408:
			return CategoryTimeout
		case se.code >= 400 && se.code < 500:
			return CategoryValidation
		default:
			return CategoryExternalService
		}
	}

	// 2xx但响应体无法解析属于对端数据问题，重试不会让坏响应变好
	var jsonSyntaxErr *json.SyntaxError
	var jsonTypeErr *json.UnmarshalTypeError
	if errors.As(err, &jsonSyntaxErr) || errors.As(err, &jsonTypeErr) {
		return CategoryValidation
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}
	if errors.Is(err, context.Canceled) {
		return CategorySystem
	}

	return CategoryNetwork
}
