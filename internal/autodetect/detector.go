// Package autodetect 通过DNS SRV记录自动发现生态内的候选服务
package autodetect

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

// Detector DNS自动发现接口
type Detector interface {
	// Detect 枚举候选服务名，返回能解析到地址的服务条目
	Detect(ctx context.Context) ([]model.ServiceEntry, error)
	// ResolveSRV 解析单个服务的SRV记录
	ResolveSRV(ctx context.Context, serviceName string) ([]*net.SRV, error)
}

type srvCacheEntry struct {
	targets    []*net.SRV
	expiration time.Time
}

// dnsDetector 基于miekg/dns的自动发现实现
type dnsDetector struct {
	dnsServer    string
	domain       string
	candidates   []string
	cacheTTL     time.Duration
	queryTimeout time.Duration
	logger       config.Logger

	cacheLocker sync.RWMutex
	srvCache    map[string]srvCacheEntry
}

// NewDetector 创建DNS自动发现客户端
func NewDetector(dnsServer, domain string, candidates []string, cacheTTL time.Duration, logger config.Logger) Detector {
	if dnsServer == "" {
		dnsServer = "127.0.0.1:6553"
	}
	if domain == "" {
		domain = "service.discovery"
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &dnsDetector{
		dnsServer:    dnsServer,
		domain:       domain,
		candidates:   candidates,
		cacheTTL:     cacheTTL,
		queryTimeout: 5 * time.Second,
		logger:       logger,
		srvCache:     make(map[string]srvCacheEntry),
	}
}

// Detect 枚举候选服务名并解析成服务条目
// 解析失败的候选被跳过而不中断枚举，全部失败时返回空列表。
func (d *dnsDetector) Detect(ctx context.Context) ([]model.ServiceEntry, error) {
	entries := make([]model.ServiceEntry, 0, len(d.candidates))

	for _, name := range d.candidates {
		select {
		case <-ctx.Done():
			return entries, ctx.Err()
		default:
		}

		targets, err := d.ResolveSRV(ctx, name)
		if err != nil {
			d.logger.Debug("候选服务解析失败，跳过",
				zap.String("service", name),
				zap.Error(err),
			)
			continue
		}

		srv := selectSRVByPriority(targets)
		entries = append(entries, model.ServiceEntry{
			Name:    name,
			BaseURL: fmt.Sprintf("http://%s:%d", strings.TrimSuffix(srv.Target, "."), srv.Port),
		})
	}

	d.logger.Info("DNS自动发现完成",
		zap.Int("candidates", len(d.candidates)),
		zap.Int("detected", len(entries)),
	)

	return entries, nil
}

// ResolveSRV 解析服务的SRV记录，带TTL缓存
func (d *dnsDetector) ResolveSRV(ctx context.Context, serviceName string) ([]*net.SRV, error) {
	if targets := d.getSRVFromCache(serviceName); targets != nil {
		return targets, nil
	}

	queryName := serviceName
	if !strings.Contains(serviceName, ".") {
		queryName = fmt.Sprintf("_%s._tcp.%s", serviceName, d.domain)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(queryName), dns.TypeSRV)
	m.RecursionDesired = true

	c := new(dns.Client)
	c.Timeout = d.queryTimeout

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	done := make(chan struct{})
	var r *dns.Msg
	var err error

	go func() {
		r, _, err = c.Exchange(m, d.dnsServer)
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("解析SRV记录[%s]超时", queryName)
	case <-done:
	}

	if err != nil {
		return nil, fmt.Errorf("解析SRV记录[%s]失败: %w", queryName, err)
	}

	if r == nil || r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("未找到服务[%s]的SRV记录", queryName)
	}

	var targets []*net.SRV
	for _, a := range r.Answer {
		if srvRecord, ok := a.(*dns.SRV); ok {
			targets = append(targets, &net.SRV{
				Target:   srvRecord.Target,
				Port:     srvRecord.Port,
				Priority: srvRecord.Priority,
				Weight:   srvRecord.Weight,
			})
		}
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("未找到服务[%s]的SRV记录", queryName)
	}

	d.updateSRVCache(serviceName, targets)

	return targets, nil
}

func (d *dnsDetector) getSRVFromCache(serviceName string) []*net.SRV {
	d.cacheLocker.RLock()
	defer d.cacheLocker.RUnlock()

	if entry, ok := d.srvCache[serviceName]; ok {
		if time.Now().Before(entry.expiration) {
			return entry.targets
		}
	}
	return nil
}

func (d *dnsDetector) updateSRVCache(serviceName string, targets []*net.SRV) {
	d.cacheLocker.Lock()
	defer d.cacheLocker.Unlock()

	d.srvCache[serviceName] = srvCacheEntry{
		targets:    targets,
		expiration: time.Now().Add(d.cacheTTL),
	}
}

// selectSRVByPriority 按优先级和权重选择SRV记录
// 发现场景不需要负载均衡的随机性，取确定性的最优记录。
func selectSRVByPriority(targets []*net.SRV) *net.SRV {
	sorted := make([]*net.SRV, len(targets))
	copy(sorted, targets)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].Weight > sorted[j].Weight
	})
	return sorted[0]
}
