// Package health 周期性探测服务存活状态
//
// 监控循环与发现流程完全解耦：每个服务有独立的定时器，
// 探测结果只写回描述符的健康状态和最后发现时间两个字段。
package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
	"github.com/hewenyu/ecosystem-discovery/internal/store/descriptor"
)

// healthResponse 表示健康端点的响应体
type healthResponse struct {
	Status string `json:"status"`
}

// Monitor 表示健康监控器
type Monitor struct {
	store      descriptor.DescriptorStore
	httpClient *http.Client
	interval   time.Duration
	staleTTL   time.Duration
	logger     config.Logger

	mu       sync.Mutex
	watchers map[string]chan struct{} // 服务ID -> 停止通道
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewMonitor 创建一个新的健康监控器
func NewMonitor(store descriptor.DescriptorStore, interval, probeTimeout, staleTTL time.Duration, logger config.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}

	return &Monitor{
		store:      store,
		httpClient: &http.Client{Timeout: probeTimeout},
		interval:   interval,
		staleTTL:   staleTTL,
		logger:     logger,
		watchers:   make(map[string]chan struct{}),
		stopChan:   make(chan struct{}),
	}
}

// Probe 对服务执行一次健康探测
// 2xx为健康，其余状态码、连接失败或超时一律视为不可达；
// 单次探测即翻转状态，内部不做重试。
// 响应体报告degraded时记为部分可用。
func (m *Monitor) Probe(ctx context.Context, svc *model.ServiceDescriptor) model.HealthStatus {
	healthURL := strings.TrimSuffix(svc.BaseURL, "/") + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return model.HealthStatusUnreachable
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return model.HealthStatusUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.HealthStatusUnreachable
	}

	// 宽容解析响应体，解析失败不影响健康判定
	body, err := io.ReadAll(resp.Body)
	if err == nil {
		var hr healthResponse
		if json.Unmarshal(body, &hr) == nil && hr.Status == "degraded" {
			return model.HealthStatusDegraded
		}
	}

	return model.HealthStatusHealthy
}

// probeAndRecord 探测并把结果写回描述符
func (m *Monitor) probeAndRecord(ctx context.Context, serviceID string) {
	svc, err := m.store.Get(ctx, serviceID)
	if err != nil {
		m.logger.Warn("健康探测前获取描述符失败",
			zap.String("service_id", serviceID),
			zap.Error(err),
		)
		return
	}

	status := m.Probe(ctx, svc)

	// 最后发现时间只在成功探测时前移，保证过期清理语义
	lastSeen := svc.LastSeen
	if status == model.HealthStatusHealthy || status == model.HealthStatusDegraded {
		lastSeen = time.Now()
	}

	if err := m.store.UpdateHealth(ctx, serviceID, status, lastSeen); err != nil {
		m.logger.Warn("更新服务健康状态失败",
			zap.String("service_id", serviceID),
			zap.Error(err),
		)
		return
	}

	if status != svc.Health {
		m.logger.Info("服务健康状态变化",
			zap.String("service", svc.Name),
			zap.String("from", string(svc.Health)),
			zap.String("to", string(status)),
		)
	}
}

// Watch 为服务启动独立的周期探测
// 同一服务重复调用时先停止旧的探测循环
func (m *Monitor) Watch(serviceID string) {
	m.mu.Lock()
	if old, ok := m.watchers[serviceID]; ok {
		close(old)
	}
	stop := make(chan struct{})
	m.watchers[serviceID] = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), m.interval)
				m.probeAndRecord(ctx, serviceID)
				cancel()
			case <-stop:
				return
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Unwatch 停止服务的周期探测
func (m *Monitor) Unwatch(serviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stop, ok := m.watchers[serviceID]; ok {
		close(stop)
		delete(m.watchers, serviceID)
	}
}

// StartCleanupTask 启动过期描述符的周期清理任务
func (m *Monitor) StartCleanupTask() {
	if m.staleTTL <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(m.staleTTL / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				count, err := m.store.CleanupStale(ctx, time.Now().Add(-m.staleTTL))
				cancel()
				if err != nil {
					m.logger.Warn("清理过期描述符失败", zap.Error(err))
				} else if count > 0 {
					m.logger.Info("清理过期描述符", zap.Int("count", count))
				}
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Stop 停止全部探测和清理任务
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, stop := range m.watchers {
		close(stop)
		delete(m.watchers, id)
	}
}
