// Package fetcher 负责从服务拉取并解析机器可读的接口描述
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

// FetchErrorKind 表示接口描述拉取失败的分类
type FetchErrorKind string

const (
	// KindUnreachable 表示连接失败或服务返回非2xx
	KindUnreachable FetchErrorKind = "unreachable"
	// KindTimeout 表示请求超时
	KindTimeout FetchErrorKind = "timeout"
	// KindMalformed 表示响应体无法解析
	KindMalformed FetchErrorKind = "malformed_description"
)

// FetchError 表示一次接口描述拉取失败
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	return fmt.Sprintf("拉取接口描述失败 [%s] %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap 返回底层错误
func (e *FetchError) Unwrap() error {
	return e.Err
}

// InterfaceFetcher 表示接口描述拉取器
// 单次有界超时的HTTP调用，内部不做任何重试，重试策略属于调用方
type InterfaceFetcher struct {
	httpClient    *http.Client
	interfacePath string
	timeout       time.Duration
	logger        config.Logger
}

// NewInterfaceFetcher 创建一个新的接口描述拉取器
func NewInterfaceFetcher(interfacePath string, timeout time.Duration, logger config.Logger) *InterfaceFetcher {
	if interfacePath == "" {
		interfacePath = "/openapi.json"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &InterfaceFetcher{
		httpClient:    &http.Client{Timeout: timeout},
		interfacePath: interfacePath,
		timeout:       timeout,
		logger:        logger,
	}
}

// Fetch 拉取并解析服务的接口描述
// 失败时返回*FetchError，分类为不可达、超时或描述格式错误之一
func (f *InterfaceFetcher) Fetch(ctx context.Context, svc *model.ServiceDescriptor) (*model.InterfaceDescription, error) {
	descURL := svc.InterfaceURL
	if descURL == "" {
		descURL = strings.TrimSuffix(svc.BaseURL, "/") + f.interfacePath
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, descURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindUnreachable, URL: descURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: classifyTransportError(err), URL: descURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			Kind: KindUnreachable,
			URL:  descURL,
			Err:  fmt.Errorf("服务返回状态码 %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: classifyTransportError(err), URL: descURL, Err: err}
	}

	desc, err := ParseDescription(body)
	if err != nil {
		return nil, &FetchError{Kind: KindMalformed, URL: descURL, Err: err}
	}

	f.logger.Debug("接口描述拉取成功",
		zap.String("service", svc.Name),
		zap.String("url", descURL),
		zap.Int("operations", len(desc.Operations)),
	)

	return desc, nil
}

// classifyTransportError 将传输层错误分类为超时或不可达
func classifyTransportError(err error) FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnreachable
}
