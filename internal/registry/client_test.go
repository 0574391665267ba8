package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

func sampleTool() *model.Tool {
	return &model.Tool{
		Name:        "doc_store_list_documents",
		ServiceID:   "svc-doc",
		ServiceName: "doc_store",
		ServiceURL:  "http://doc-store:8080",
		Verb:        "GET",
		Path:        "/documents",
		Categories:  []model.ToolCategory{model.CategoryRead, model.CategoryStorage},
	}
}

// newTestClient 创建一个退避等待为空操作的客户端
func newTestClient(opts Options) *ResilientClient {
	c := NewResilientClient(opts, config.NewNopLogger())
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestRegisterToolSuccess(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/register", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"id":"reg-1"}`))
	}))
	defer server.Close()

	c := newTestClient(Options{Address: server.URL, MaxRetries: 3})
	record, err := c.RegisterTool(context.Background(), sampleTool())
	require.NoError(t, err)

	assert.True(t, record.Success)
	assert.Equal(t, 1, record.Attempts)
	assert.Equal(t, `{"id":"reg-1"}`, record.Response)
	assert.Equal(t, int32(1), requests.Load())

	stats := c.Stats()
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 0, stats.FailureCount)
	assert.Equal(t, StateClosed, stats.Targets[server.URL].State)
}

func TestRegisterToolRetriesOnServerError(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"id":"reg-1"}`))
	}))
	defer server.Close()

	c := newTestClient(Options{Address: server.URL, MaxRetries: 3, FailureThreshold: 10})
	record, err := c.RegisterTool(context.Background(), sampleTool())
	require.NoError(t, err, "前两次500后第三次应成功")

	assert.Equal(t, 3, record.Attempts)
	assert.Equal(t, int32(3), requests.Load())
}

func TestRegisterToolValidationNotRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(Options{Address: server.URL, MaxRetries: 3})
	record, err := c.RegisterTool(context.Background(), sampleTool())

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, CategoryValidation, callErr.Category)
	assert.Equal(t, int32(1), requests.Load(), "validation错误不应重试")
	assert.False(t, record.Success)
}

func TestRegisterToolExhaustsRetries(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(Options{Address: server.URL, MaxRetries: 2, FailureThreshold: 10})
	_, err := c.RegisterTool(context.Background(), sampleTool())

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, CategoryExternalService, callErr.Category)
	assert.Equal(t, 3, callErr.Attempts, "1次原始调用加2次重试")
	assert.Equal(t, int32(3), requests.Load())
}

func TestCircuitOpenFailsFastWithoutNetworkCall(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// 阈值2、不重试：两次失败后熔断开启
	c := newTestClient(Options{
		Address:          server.URL,
		MaxRetries:       0,
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})

	_, err := c.RegisterTool(context.Background(), sampleTool())
	require.Error(t, err)
	_, err = c.RegisterTool(context.Background(), sampleTool())
	require.Error(t, err)

	before := requests.Load()

	// 熔断开启后快速失败，不发出网络调用
	_, err = c.RegisterTool(context.Background(), sampleTool())
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Greater(t, openErr.RetryAfter, time.Duration(0))
	assert.Equal(t, before, requests.Load(), "熔断开启时不应发出网络调用")

	stats := c.Stats()
	assert.Equal(t, StateOpen, stats.Targets[server.URL].State)
}

func TestCircuitRecoveryPermitsSingleTrial(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"id":"reg-1"}`))
	}))
	defer server.Close()

	c := newTestClient(Options{
		Address:          server.URL,
		MaxRetries:       0,
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})

	// 手工把熔断器推进到open并回拨lastFailure，模拟恢复超时已过
	br := c.breakerFor(server.URL)
	clock := &fakeClock{current: time.Now()}
	br.now = clock.now
	br.OnFailure(SeverityHigh)
	require.Equal(t, StateOpen, br.State())
	clock.advance(2 * time.Minute)

	// 恢复超时后恰好放行一次试探，试探成功后回到closed
	record, err := c.RegisterTool(context.Background(), sampleTool())
	require.NoError(t, err)
	assert.True(t, record.Success)
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, StateClosed, br.State())
}

func TestGetService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services/svc-doc", r.URL.Path)
		w.Write([]byte(`{"id":"svc-doc","service_name":"doc_store","service_url":"http://doc-store:8080"}`))
	}))
	defer server.Close()

	c := newTestClient(Options{Address: server.URL})
	svc, err := c.GetService(context.Background(), "svc-doc")
	require.NoError(t, err)

	assert.Equal(t, "svc-doc", svc.ID)
	assert.Equal(t, "doc_store", svc.ServiceName)
}

func TestGetServiceMalformedBodyNotRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	c := newTestClient(Options{Address: server.URL, MaxRetries: 3, FailureThreshold: 5})
	_, err := c.GetService(context.Background(), "svc-doc")
	require.Error(t, err)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, CategoryValidation, callErr.Category, "2xx但响应体坏掉应归为validation")
	assert.Equal(t, 1, callErr.Attempts, "解析失败重试不会让坏响应变好")
	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, StateClosed, c.Stats().Targets[server.URL].State)
}

func TestStrategyForUnknownCategoryUsesDefault(t *testing.T) {
	strategy := StrategyFor(ErrorCategory("no_such_category"))
	assert.False(t, strategy.Retryable)
	assert.Equal(t, SeverityHigh, strategy.Severity)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CategoryTimeout, classify(&statusError{code: 408}))
	assert.Equal(t, CategoryValidation, classify(&statusError{code: 400}))
	assert.Equal(t, CategoryValidation, classify(&statusError{code: 422}))
	assert.Equal(t, CategoryExternalService, classify(&statusError{code: 500}))
	assert.Equal(t, CategoryTimeout, classify(context.DeadlineExceeded))
	assert.Equal(t, CategorySystem, classify(context.Canceled))

	// 包装过的JSON解析错误同样归为validation
	jsonErr := json.Unmarshal([]byte("not json"), &struct{}{})
	assert.Equal(t, CategoryValidation, classify(fmt.Errorf("解析服务记录失败: %w", jsonErr)))
}
