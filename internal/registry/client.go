package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

// Options 表示客户端的重试与熔断配置
type Options struct {
	Address          string
	RequestTimeout   time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// OptionsFromConfig 从应用配置提取客户端配置
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Address:          cfg.Registry.Address,
		RequestTimeout:   cfg.Registry.RequestTimeout,
		MaxRetries:       cfg.Registry.MaxRetries,
		RetryBaseDelay:   cfg.Registry.RetryBaseDelay,
		RetryMaxDelay:    cfg.Registry.RetryMaxDelay,
		FailureThreshold: cfg.Registry.FailureThreshold,
		RecoveryTimeout:  cfg.Registry.RecoveryTimeout,
	}
}

// registerRequest 表示注册中心的注册请求体
type registerRequest struct {
	ServiceName  string             `json:"service_name"`
	ServiceURL   string             `json:"service_url"`
	Capabilities []string           `json:"capabilities"`
	Endpoints    []registerEndpoint `json:"endpoints"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
}

// registerEndpoint 表示注册请求中的一个端点
type registerEndpoint struct {
	Name string `json:"name"`
	Verb string `json:"verb"`
	Path string `json:"path"`
}

// RegisteredService 表示注册中心返回的服务记录
type RegisteredService struct {
	ID           string            `json:"id"`
	ServiceName  string            `json:"service_name"`
	ServiceURL   string            `json:"service_url"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Stats 表示客户端的运行统计
type Stats struct {
	Targets      map[string]BreakerSnapshot `json:"targets"`
	RecordCount  int                        `json:"record_count"`
	SuccessCount int                        `json:"success_count"`
	FailureCount int                        `json:"failure_count"`
	Records      []model.RegistrationRecord `json:"records,omitempty"`
}

// Client 定义注册中心客户端接口
type Client interface {
	// RegisterTool 把一个工具注册到注册中心
	RegisterTool(ctx context.Context, tool *model.Tool) (*model.RegistrationRecord, error)

	// GetService 查询注册中心中的服务记录
	GetService(ctx context.Context, serviceID string) (*RegisteredService, error)

	// Stats 返回熔断器快照和注册记录统计
	Stats() *Stats
}

// ResilientClient 实现Client接口
// 每个逻辑目标持有独立的熔断器，熔断器的读改写由互斥锁保护，
// 因此跨工具的注册调用可以安全并发。
type ResilientClient struct {
	httpClient *http.Client
	opts       Options
	logger     config.Logger

	breakerMu sync.Mutex
	breakers  map[string]*CircuitBreaker

	recordMu sync.Mutex
	records  []model.RegistrationRecord

	// 退避等待可注入，测试中替换为空操作
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResilientClient 创建一个新的注册中心客户端
func NewResilientClient(opts Options, logger config.Logger) *ResilientClient {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 10 * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = 30 * time.Second
	}

	return &ResilientClient{
		httpClient: &http.Client{Timeout: opts.RequestTimeout},
		opts:       opts,
		logger:     logger,
		breakers:   make(map[string]*CircuitBreaker),
		sleep:      sleepContext,
	}
}

// sleepContext 等待指定时长，上下文取消时提前返回
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// breakerFor 返回目标的熔断器，按需创建
func (c *ResilientClient) breakerFor(target string) *CircuitBreaker {
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()

	br, ok := c.breakers[target]
	if !ok {
		br = NewCircuitBreaker(c.opts.FailureThreshold, c.opts.RecoveryTimeout)
		c.breakers[target] = br
	}
	return br
}

// backoffDelay 计算第attempt次重试前的等待时间
// min(base * 2^attempt, maxDelay)
func (c *ResilientClient) backoffDelay(attempt int) time.Duration {
	delay := c.opts.RetryBaseDelay << uint(attempt)
	if delay > c.opts.RetryMaxDelay || delay <= 0 {
		delay = c.opts.RetryMaxDelay
	}
	return delay
}

// call 带熔断和有界重试地执行一次对外调用
func (c *ResilientClient) call(ctx context.Context, target string, fn func(ctx context.Context) error) (int, error) {
	br := c.breakerFor(target)

	attempts := 0
	for {
		allowed, retryAfter := br.Allow()
		if !allowed {
			return attempts, &CircuitOpenError{Target: target, RetryAfter: retryAfter}
		}

		attempts++
		callCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		err := fn(callCtx)
		cancel()

		if err == nil {
			br.OnSuccess()
			return attempts, nil
		}

		category := classify(err)
		strategy := StrategyFor(category)
		br.OnFailure(strategy.Severity)

		c.logger.Warn("对外调用失败",
			zap.String("target", target),
			zap.String("category", string(category)),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)

		if strategy.Retryable && attempts <= c.opts.MaxRetries {
			if sleepErr := c.sleep(ctx, c.backoffDelay(attempts-1)); sleepErr != nil {
				return attempts, &CallError{
					Target:   target,
					Category: CategorySystem,
					Severity: StrategyFor(CategorySystem).Severity,
					Attempts: attempts,
					Err:      sleepErr,
				}
			}
			continue
		}

		// 终态失败：熔断已开启时附带恢复时间提示
		callErr := &CallError{
			Target:   target,
			Category: category,
			Severity: strategy.Severity,
			Attempts: attempts,
			Err:      err,
		}
		if br.State() == StateOpen {
			callErr.RetryAfter = c.opts.RecoveryTimeout
		}
		return attempts, callErr
	}
}

// RegisterTool 把一个工具注册到注册中心
// 无论成败都会追加一条注册记录
func (c *ResilientClient) RegisterTool(ctx context.Context, tool *model.Tool) (*model.RegistrationRecord, error) {
	payload := registerRequest{
		ServiceName:  tool.ServiceName,
		ServiceURL:   tool.ServiceURL,
		Capabilities: categoriesToStrings(tool.Categories),
		Endpoints: []registerEndpoint{
			{Name: tool.Name, Verb: tool.Verb, Path: tool.Path},
		},
		Metadata: map[string]string{
			"tool_name":  tool.Name,
			"service_id": tool.ServiceID,
		},
	}

	var responseBody string
	attempts, err := c.call(ctx, c.opts.Address, func(callCtx context.Context) error {
		body, callErr := c.doPost(callCtx, "/register", payload)
		if callErr != nil {
			return callErr
		}
		responseBody = body
		return nil
	})

	record := model.RegistrationRecord{
		ID:        uuid.New().String(),
		ToolName:  tool.Name,
		ServiceID: tool.ServiceID,
		Target:    c.opts.Address,
		Success:   err == nil,
		Response:  responseBody,
		Attempts:  attempts,
		CreatedAt: time.Now(),
	}
	if err != nil {
		record.Response = err.Error()
	}
	c.appendRecord(record)

	if err != nil {
		return &record, err
	}

	c.logger.Info("工具注册成功",
		zap.String("tool", tool.Name),
		zap.Int("attempts", attempts),
	)
	return &record, nil
}

// GetService 查询注册中心中的服务记录
func (c *ResilientClient) GetService(ctx context.Context, serviceID string) (*RegisteredService, error) {
	var svc RegisteredService
	_, err := c.call(ctx, c.opts.Address, func(callCtx context.Context) error {
		req, reqErr := http.NewRequestWithContext(callCtx, http.MethodGet,
			strings.TrimSuffix(c.opts.Address, "/")+"/services/"+serviceID, nil)
		if reqErr != nil {
			return reqErr
		}

		resp, respErr := c.httpClient.Do(req)
		if respErr != nil {
			return respErr
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &statusError{code: resp.StatusCode, body: string(body)}
		}

		if jsonErr := json.Unmarshal(body, &svc); jsonErr != nil {
			return fmt.Errorf("解析服务记录失败: %w", jsonErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// doPost 发送JSON请求体并返回响应体
func (c *ResilientClient) doPost(ctx context.Context, path string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化请求体失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.opts.Address, "/")+path, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{code: resp.StatusCode, body: string(body)}
	}

	return string(body), nil
}

// appendRecord 追加一条注册记录
func (c *ResilientClient) appendRecord(record model.RegistrationRecord) {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	c.records = append(c.records, record)
}

// Stats 返回熔断器快照和注册记录统计
func (c *ResilientClient) Stats() *Stats {
	stats := &Stats{Targets: make(map[string]BreakerSnapshot)}

	c.breakerMu.Lock()
	for target, br := range c.breakers {
		stats.Targets[target] = br.Snapshot()
	}
	c.breakerMu.Unlock()

	c.recordMu.Lock()
	stats.Records = make([]model.RegistrationRecord, len(c.records))
	copy(stats.Records, c.records)
	c.recordMu.Unlock()

	stats.RecordCount = len(stats.Records)
	for _, r := range stats.Records {
		if r.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
	}

	return stats
}

// categoriesToStrings 把分类标签转换为字符串切片
func categoriesToStrings(categories []model.ToolCategory) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}
