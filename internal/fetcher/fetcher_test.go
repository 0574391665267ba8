package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

// 一份最小可用的OpenAPI文档
const sampleDoc = `{
	"info": {"title": "Document Store", "version": "1.0.0"},
	"paths": {
		"/documents": {
			"get": {
				"operationId": "list_documents",
				"summary": "List all documents",
				"parameters": [
					{"name": "limit", "in": "query", "required": false, "schema": {"type": "integer"}}
				],
				"responses": {"200": {"description": "OK"}}
			},
			"post": {
				"operationId": "create_document",
				"parameters": [
					{"name": "body", "in": "body", "required": true, "schema": {"type": "object"}}
				]
			}
		}
	}
}`

func newDescriptor(baseURL string) *model.ServiceDescriptor {
	return &model.ServiceDescriptor{
		ID:      "svc-1",
		Name:    "doc_store",
		BaseURL: baseURL,
	}
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openapi.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleDoc))
	}))
	defer server.Close()

	f := NewInterfaceFetcher("", 5*time.Second, config.NewNopLogger())
	desc, err := f.Fetch(context.Background(), newDescriptor(server.URL))
	require.NoError(t, err)

	assert.Equal(t, "Document Store", desc.Title)
	require.Len(t, desc.Operations, 2)

	// paths遍历顺序固定：同一路径下按httpVerbs顺序
	assert.Equal(t, "list_documents", desc.Operations[0].Identifier)
	assert.Equal(t, "GET", desc.Operations[0].Verb)
	assert.Equal(t, "/documents", desc.Operations[0].Path)
	require.Len(t, desc.Operations[0].Parameters, 1)
	assert.Equal(t, "integer", desc.Operations[0].Parameters[0].Type)
	assert.False(t, desc.Operations[0].Parameters[0].Required)

	assert.Equal(t, "create_document", desc.Operations[1].Identifier)
	assert.True(t, desc.Operations[1].Parameters[0].Required, "必填标记应保留")
}

func TestFetchNon2xxIsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewInterfaceFetcher("", 5*time.Second, config.NewNopLogger())
	_, err := f.Fetch(context.Background(), newDescriptor(server.URL))

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindUnreachable, fetchErr.Kind)
}

func TestFetchConnectionRefusedIsUnreachable(t *testing.T) {
	// 占用一个端口后立即关闭，保证连接被拒绝
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f := NewInterfaceFetcher("", 2*time.Second, config.NewNopLogger())
	_, err := f.Fetch(context.Background(), newDescriptor(url))

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindUnreachable, fetchErr.Kind)
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	f := NewInterfaceFetcher("", 50*time.Millisecond, config.NewNopLogger())
	_, err := f.Fetch(context.Background(), newDescriptor(server.URL))

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTimeout, fetchErr.Kind)
}

func TestFetchMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	f := NewInterfaceFetcher("", 5*time.Second, config.NewNopLogger())
	_, err := f.Fetch(context.Background(), newDescriptor(server.URL))

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindMalformed, fetchErr.Kind)
	assert.True(t, errors.Unwrap(fetchErr) != nil, "应保留底层错误")
}

func TestFetchUsesInterfaceURLWhenSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/custom/spec.json", r.URL.Path)
		w.Write([]byte(`{"info":{"title":"x"},"paths":{}}`))
	}))
	defer server.Close()

	svc := newDescriptor(server.URL)
	svc.InterfaceURL = server.URL + "/custom/spec.json"

	f := NewInterfaceFetcher("", 5*time.Second, config.NewNopLogger())
	desc, err := f.Fetch(context.Background(), svc)
	require.NoError(t, err)
	assert.Empty(t, desc.Operations, "空paths应返回零操作而不是错误")
}

func TestParseDescriptionSkipsMalformedEntries(t *testing.T) {
	// get条目是数字而不是对象，应被跳过；post条目正常
	doc := `{
		"paths": {
			"/things": {
				"get": 42,
				"post": {"operationId": "create_thing"}
			}
		}
	}`

	desc, err := ParseDescription([]byte(doc))
	require.NoError(t, err, "单条目错误不应导致整体解析失败")
	require.Len(t, desc.Operations, 1)
	assert.Equal(t, "create_thing", desc.Operations[0].Identifier)
}
