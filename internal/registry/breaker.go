package registry

import (
	"sync"
	"time"
)

// CircuitState 表示熔断器状态
type CircuitState string

const (
	// StateClosed 表示正常放行
	StateClosed CircuitState = "closed"
	// StateOpen 表示快速失败，不发出网络调用
	StateOpen CircuitState = "open"
	// StateHalfOpen 表示恢复期，只允许一次试探调用
	StateHalfOpen CircuitState = "half_open"
)

// CircuitBreaker 表示单个目标的熔断器
// 状态转换只有四条路径：
// closed -> open（连续高严重度失败达到阈值）、
// open -> half_open（恢复超时已过）、
// half_open -> closed（试探成功）、half_open -> open（试探失败）。
type CircuitBreaker struct {
	mu sync.Mutex

	state        CircuitState
	failureCount int
	lastFailure  time.Time
	// half_open状态下是否已放行过试探调用
	trialIssued bool

	failureThreshold int
	recoveryTimeout  time.Duration

	// 时间源可注入，测试中替换
	now func() time.Time
}

// NewCircuitBreaker 创建一个新的熔断器
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// Allow 判断是否放行一次调用
// 不放行时返回建议的重试等待时间
func (b *CircuitBreaker) Allow() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, 0

	case StateOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed >= b.recoveryTimeout {
			// 恢复超时已过，进入半开状态并放行唯一的试探调用
			b.state = StateHalfOpen
			b.trialIssued = true
			return true, 0
		}
		return false, b.recoveryTimeout - elapsed

	case StateHalfOpen:
		if b.trialIssued {
			// 试探调用尚未返回，其余调用继续快速失败
			return false, b.recoveryTimeout
		}
		b.trialIssued = true
		return true, 0
	}

	return false, b.recoveryTimeout
}

// OnSuccess 记录一次成功调用
func (b *CircuitBreaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.trialIssued = false
}

// OnFailure 记录一次失败调用
// 半开状态下试探调用的任何失败都立即回到开启，不看严重度，
// 否则低严重度的试探失败会把熔断器永远卡在半开；
// 关闭状态下只有高严重度失败累积计数。
func (b *CircuitBreaker) OnFailure(severity Severity) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.trialIssued = false
		b.lastFailure = b.now()
		return
	}

	if !severity.CountsTowardsBreaker() {
		return
	}

	b.failureCount++
	b.lastFailure = b.now()

	if b.failureCount >= b.failureThreshold {
		b.state = StateOpen
	}
}

// State 返回当前状态
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerSnapshot 表示熔断器的状态快照，用于统计接口
type BreakerSnapshot struct {
	State        CircuitState `json:"state"`
	FailureCount int          `json:"failure_count"`
	LastFailure  time.Time    `json:"last_failure,omitempty"`
}

// Snapshot 返回当前状态快照
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		State:        b.state,
		FailureCount: b.failureCount,
		LastFailure:  b.lastFailure,
	}
}
