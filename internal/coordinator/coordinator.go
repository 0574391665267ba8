// Package coordinator 把发现流水线的各个环节编排成批量任务
//
// 每个服务的流水线独立运行：解析地址、可选健康门禁、抓取接口描述、
// 合成工具。单个服务失败只记录原因，绝不中断整个批次。
// 依赖分析在全部流水线结束后的同步屏障之后执行一次。
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hewenyu/ecosystem-discovery/internal/analyzer"
	"github.com/hewenyu/ecosystem-discovery/internal/autodetect"
	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
	"github.com/hewenyu/ecosystem-discovery/internal/fetcher"
	"github.com/hewenyu/ecosystem-discovery/internal/registry"
	"github.com/hewenyu/ecosystem-discovery/internal/resolver"
	"github.com/hewenyu/ecosystem-discovery/internal/store/descriptor"
	"github.com/hewenyu/ecosystem-discovery/internal/synthesizer"
)

// ErrInvalidRequest 表示请求在结构上不合法，开始任何工作前直接拒绝
var ErrInvalidRequest = errors.New("发现请求不合法")

// Prober 健康探测接口，由健康监控器实现
type Prober interface {
	Probe(ctx context.Context, svc *model.ServiceDescriptor) model.HealthStatus
}

// Coordinator 表示生态发现协调器
type Coordinator struct {
	resolver    *resolver.AddressResolver
	fetcher     *fetcher.InterfaceFetcher
	synthesizer *synthesizer.ToolSynthesizer
	analyzer    *analyzer.DependencyAnalyzer
	registry    registry.Client
	store       descriptor.DescriptorStore
	prober      Prober
	detector    autodetect.Detector
	logger      config.Logger

	workerPoolSize int64
	batchDeadline  time.Duration
	// 接口抓取失败后的单次固定退避重试，与熔断器完全独立
	fetchRetryDelay time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
}

// Options 协调器的装配参数
type Options struct {
	Resolver    *resolver.AddressResolver
	Fetcher     *fetcher.InterfaceFetcher
	Synthesizer *synthesizer.ToolSynthesizer
	Analyzer    *analyzer.DependencyAnalyzer
	Registry    registry.Client
	Store       descriptor.DescriptorStore
	Prober      Prober
	Detector    autodetect.Detector

	WorkerPoolSize  int
	BatchDeadline   time.Duration
	FetchRetryDelay time.Duration
}

// NewCoordinator 创建生态发现协调器
func NewCoordinator(opts Options, logger config.Logger) *Coordinator {
	if opts.WorkerPoolSize <= 0 {
		opts.WorkerPoolSize = 8
	}
	if opts.BatchDeadline <= 0 {
		opts.BatchDeadline = 2 * time.Minute
	}
	if opts.FetchRetryDelay <= 0 {
		opts.FetchRetryDelay = 500 * time.Millisecond
	}

	return &Coordinator{
		resolver:        opts.Resolver,
		fetcher:         opts.Fetcher,
		synthesizer:     opts.Synthesizer,
		analyzer:        opts.Analyzer,
		registry:        opts.Registry,
		store:           opts.Store,
		prober:          opts.Prober,
		detector:        opts.Detector,
		logger:          logger,
		workerPoolSize:  int64(opts.WorkerPoolSize),
		batchDeadline:   opts.BatchDeadline,
		fetchRetryDelay: opts.FetchRetryDelay,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// serviceResult 单个服务流水线的产出
type serviceResult struct {
	entry   model.ServiceEntry
	tools   []model.Tool
	failure *model.ServiceFailure
}

// Discover 执行一次批量发现
// 服务列表和自动发现至少要提供一个，否则在开始任何工作前返回错误。
func (c *Coordinator) Discover(ctx context.Context, req *model.BulkDiscoveryRequest) (*model.AggregateResult, error) {
	if len(req.Services) == 0 && !req.AutoDetect {
		return nil, fmt.Errorf("%w: 未提供服务列表且未启用自动发现", ErrInvalidRequest)
	}

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.batchDeadline)
	defer cancel()

	entries := append([]model.ServiceEntry(nil), req.Services...)
	if req.AutoDetect {
		if c.detector == nil {
			return nil, fmt.Errorf("%w: 自动发现未配置", ErrInvalidRequest)
		}
		detected, err := c.detector.Detect(ctx)
		if err != nil {
			c.logger.Warn("DNS自动发现部分失败", zap.Error(err))
		}
		entries = mergeEntries(entries, detected)
	}

	c.logger.Info("开始批量发现",
		zap.Int("services", len(entries)),
		zap.Bool("dry_run", req.DryRun),
	)

	results := c.runPipelines(ctx, entries, req.IncludeHealthCheck)

	result := &model.AggregateResult{
		ServicesAttempted: len(entries),
		DryRun:            req.DryRun,
	}

	var tools []model.Tool
	for _, r := range results {
		if r.failure != nil {
			result.ServicesFailed = append(result.ServicesFailed, *r.failure)
			continue
		}
		result.ServicesSucceeded++
		tools = append(tools, r.tools...)
	}

	// 全批次屏障之后做一次确定性的整理和分析
	sortTools(tools)
	tools = synthesizer.EnsureUniqueNames(tools)
	result.Tools = tools
	result.ToolsDiscovered = len(tools)

	c.planAndRegister(ctx, req.DryRun, tools, result)

	result.Duration = time.Since(start)

	c.logger.Info("批量发现完成",
		zap.Int("succeeded", result.ServicesSucceeded),
		zap.Int("failed", len(result.ServicesFailed)),
		zap.Int("tools_discovered", result.ToolsDiscovered),
		zap.Int("tools_registered", result.ToolsRegistered),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// DiscoverService 执行单服务发现，可按分类过滤合成出的工具
func (c *Coordinator) DiscoverService(ctx context.Context, req *model.SingleDiscoveryRequest) (*model.AggregateResult, error) {
	if req.ServiceName == "" || req.ServiceURL == "" {
		return nil, fmt.Errorf("%w: 缺少服务名或服务地址", ErrInvalidRequest)
	}

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.batchDeadline)
	defer cancel()

	entry := model.ServiceEntry{Name: req.ServiceName, BaseURL: req.ServiceURL}
	r := c.discoverOne(ctx, entry, false)

	result := &model.AggregateResult{
		ServicesAttempted: 1,
		DryRun:            req.DryRun,
	}

	if r.failure != nil {
		result.ServicesFailed = append(result.ServicesFailed, *r.failure)
		result.Duration = time.Since(start)
		return result, nil
	}
	result.ServicesSucceeded = 1

	tools := filterByCategories(r.tools, req.ToolCategories)
	sortTools(tools)
	tools = synthesizer.EnsureUniqueNames(tools)
	result.Tools = tools
	result.ToolsDiscovered = len(tools)

	c.planAndRegister(ctx, req.DryRun, tools, result)

	result.Duration = time.Since(start)
	return result, nil
}

// runPipelines 用有界工作池并发执行各服务的流水线
func (c *Coordinator) runPipelines(ctx context.Context, entries []model.ServiceEntry, healthGate bool) []serviceResult {
	sem := semaphore.NewWeighted(c.workerPoolSize)
	results := make([]serviceResult, len(entries))

	var g errgroup.Group
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = serviceResult{entry: entry, failure: &model.ServiceFailure{
					ServiceName: entry.Name,
					Reason:      model.FailureReasonCancelled,
					Detail:      err.Error(),
				}}
				return nil
			}
			defer sem.Release(1)

			results[i] = c.discoverOne(ctx, entry, healthGate)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// discoverOne 执行单个服务的发现流水线
// 阶段之间检查取消信号，协作式退出并报告cancelled。
func (c *Coordinator) discoverOne(ctx context.Context, entry model.ServiceEntry, healthGate bool) serviceResult {
	fail := func(reason model.FailureReason, detail string) serviceResult {
		c.logger.Warn("服务发现失败",
			zap.String("service", entry.Name),
			zap.String("reason", string(reason)),
			zap.String("detail", detail),
		)
		return serviceResult{entry: entry, failure: &model.ServiceFailure{
			ServiceName: entry.Name,
			Reason:      reason,
			Detail:      detail,
		}}
	}

	if err := ctx.Err(); err != nil {
		return fail(model.FailureReasonCancelled, err.Error())
	}

	// 阶段一：地址归一化
	baseURL := c.resolver.Normalize(entry.BaseURL, entry.Name)

	svc, err := c.ensureDescriptor(ctx, entry.Name, baseURL)
	if err != nil {
		return fail(model.FailureReasonUnreachable, err.Error())
	}

	if err := ctx.Err(); err != nil {
		return fail(model.FailureReasonCancelled, err.Error())
	}

	// 阶段二：可选健康门禁
	if healthGate && c.prober != nil {
		status := c.prober.Probe(ctx, svc)
		if uerr := c.store.UpdateHealth(ctx, svc.ID, status, time.Now()); uerr != nil {
			c.logger.Warn("更新服务健康状态失败", zap.String("service", entry.Name), zap.Error(uerr))
		}
		if status == model.HealthStatusUnreachable {
			return fail(model.FailureReasonUnhealthy, "健康探测失败")
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(model.FailureReasonCancelled, err.Error())
	}

	// 阶段三：接口描述抓取，暂时性失败固定退避后重试一次
	desc, err := c.fetchWithRetry(ctx, svc)
	if err != nil {
		// 抓取进行中批次被取消时按取消上报，批次截止超时仍按超时上报
		if errors.Is(ctx.Err(), context.Canceled) {
			return fail(model.FailureReasonCancelled, ctx.Err().Error())
		}
		return fail(fetchFailureReason(err), err.Error())
	}

	if err := ctx.Err(); err != nil {
		return fail(model.FailureReasonCancelled, err.Error())
	}

	// 阶段四：工具合成
	tools := c.synthesizer.Synthesize(svc, desc)

	c.logger.Info("服务发现成功",
		zap.String("service", entry.Name),
		zap.Int("tools", len(tools)),
	)

	return serviceResult{entry: entry, tools: tools}
}

// ensureDescriptor 按服务名取回已有描述符或创建新的
func (c *Coordinator) ensureDescriptor(ctx context.Context, name, baseURL string) (*model.ServiceDescriptor, error) {
	existing, err := c.store.GetByName(ctx, name)
	if err == nil {
		if existing.BaseURL != baseURL {
			existing.BaseURL = baseURL
			if err := c.store.Save(ctx, existing); err != nil {
				return nil, fmt.Errorf("更新服务描述符失败: %w", err)
			}
		}
		return existing, nil
	}
	if !errors.Is(err, descriptor.ErrNotFound) {
		return nil, fmt.Errorf("查询服务描述符失败: %w", err)
	}

	svc := &model.ServiceDescriptor{
		Name:    name,
		BaseURL: baseURL,
	}
	if err := c.store.Save(ctx, svc); err != nil {
		return nil, fmt.Errorf("保存服务描述符失败: %w", err)
	}
	return svc, nil
}

// fetchWithRetry 抓取接口描述，不可达和超时重试一次
// 描述本身不可解析不重试，重复抓取不会让坏文档变好。
func (c *Coordinator) fetchWithRetry(ctx context.Context, svc *model.ServiceDescriptor) (*model.InterfaceDescription, error) {
	desc, err := c.fetcher.Fetch(ctx, svc)
	if err == nil {
		return desc, nil
	}

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Kind == fetcher.KindMalformed {
		return nil, err
	}

	if serr := c.sleep(ctx, c.fetchRetryDelay); serr != nil {
		return nil, err
	}

	return c.fetcher.Fetch(ctx, svc)
}

// planAndRegister 依赖分析加可选的注册阶段
// 循环依赖只影响执行分组的输出，不影响已合成工具的注册。
func (c *Coordinator) planAndRegister(ctx context.Context, dryRun bool, tools []model.Tool, result *model.AggregateResult) {
	if len(tools) > 0 {
		plan, err := c.analyzer.Plan(tools)
		result.Plan = plan
		if err != nil {
			result.PlanError = err.Error()
			c.logger.Warn("执行计划分析失败", zap.Error(err))
		}
	}

	if dryRun || len(tools) == 0 {
		return
	}

	// 工具级并发注册，同一目标的熔断状态由客户端内部互斥保护
	sem := semaphore.NewWeighted(c.workerPoolSize)
	var mu sync.Mutex
	var g errgroup.Group

	for i := range tools {
		tool := tools[i]
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				result.FailedRegistrations = append(result.FailedRegistrations, model.RegistrationFailure{
					ToolName: tool.Name,
					Error:    err.Error(),
				})
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)

			_, err := c.registry.RegisterTool(ctx, &tool)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailedRegistrations = append(result.FailedRegistrations, model.RegistrationFailure{
					ToolName: tool.Name,
					Error:    err.Error(),
				})
				return nil
			}
			result.ToolsRegistered++
			return nil
		})
	}
	_ = g.Wait()

	// 失败记录按工具名排序，保证结果可重复比较
	sort.Slice(result.FailedRegistrations, func(i, j int) bool {
		return result.FailedRegistrations[i].ToolName < result.FailedRegistrations[j].ToolName
	})
}

// fetchFailureReason 把抓取错误映射成失败原因分类
func fetchFailureReason(err error) model.FailureReason {
	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case fetcher.KindTimeout:
			return model.FailureReasonTimeout
		case fetcher.KindMalformed:
			return model.FailureReasonMalformed
		}
	}
	return model.FailureReasonUnreachable
}

// mergeEntries 合并显式列表和自动发现结果，同名服务以显式列表优先
func mergeEntries(explicit, detected []model.ServiceEntry) []model.ServiceEntry {
	seen := make(map[string]bool, len(explicit))
	for _, e := range explicit {
		seen[e.Name] = true
	}

	merged := explicit
	for _, e := range detected {
		if !seen[e.Name] {
			seen[e.Name] = true
			merged = append(merged, e)
		}
	}
	return merged
}

// sortTools 按服务名和工具名排序，保证批次结果确定
func sortTools(tools []model.Tool) {
	sort.Slice(tools, func(i, j int) bool {
		if tools[i].ServiceName != tools[j].ServiceName {
			return tools[i].ServiceName < tools[j].ServiceName
		}
		return tools[i].Name < tools[j].Name
	})
}

// filterByCategories 按分类过滤工具，空过滤返回全部
func filterByCategories(tools []model.Tool, categories []string) []model.Tool {
	if len(categories) == 0 {
		return tools
	}

	want := make(map[model.ToolCategory]bool, len(categories))
	for _, c := range categories {
		want[model.ToolCategory(c)] = true
	}

	filtered := make([]model.Tool, 0, len(tools))
	for _, tool := range tools {
		for _, cat := range tool.Categories {
			if want[cat] {
				filtered = append(filtered, tool)
				break
			}
		}
	}
	return filtered
}
