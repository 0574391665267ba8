package synthesizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

func docStoreDescription() (*model.ServiceDescriptor, *model.InterfaceDescription) {
	svc := &model.ServiceDescriptor{
		ID:      "svc-doc",
		Name:    "doc_store",
		BaseURL: "http://doc-store:8080",
	}
	desc := &model.InterfaceDescription{
		Title: "Document Store",
		Operations: []model.Operation{
			{
				Identifier: "list_documents",
				Verb:       "GET",
				Path:       "/documents",
				Parameters: []model.Parameter{
					{Name: "limit", In: "query", Type: "integer", Required: false},
				},
			},
			{
				Identifier: "create_document",
				Verb:       "POST",
				Path:       "/documents",
				Parameters: []model.Parameter{
					{Name: "body", In: "body", Type: "object", Required: true},
				},
			},
			{
				// 无operationId，名称回退到动词+路径
				Verb: "DELETE",
				Path: "/documents/{id}",
			},
		},
	}
	return svc, desc
}

func TestSynthesizeNaming(t *testing.T) {
	s := NewToolSynthesizer(config.NewNopLogger())
	svc, desc := docStoreDescription()

	tools := s.Synthesize(svc, desc)
	require.Len(t, tools, 3)

	assert.Equal(t, "doc_store_list_documents", tools[0].Name)
	assert.Equal(t, "doc_store_create_document", tools[1].Name)
	assert.Equal(t, "doc_store_delete_documents_id", tools[2].Name)

	// 工具携带来源服务信息
	assert.Equal(t, "svc-doc", tools[0].ServiceID)
	assert.Equal(t, "http://doc-store:8080", tools[0].ServiceURL)
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	s := NewToolSynthesizer(config.NewNopLogger())
	svc, desc := docStoreDescription()

	first := s.Synthesize(svc, desc)
	second := s.Synthesize(svc, desc)

	// 相同输入两次合成结果应完全一致，包括分类标签
	assert.Equal(t, first, second)
}

func TestSynthesizeCollisionSuffix(t *testing.T) {
	s := NewToolSynthesizer(config.NewNopLogger())
	svc := &model.ServiceDescriptor{ID: "svc-1", Name: "store"}
	desc := &model.InterfaceDescription{
		Operations: []model.Operation{
			{Identifier: "put item", Verb: "PUT", Path: "/items"},
			{Identifier: "put-item", Verb: "PUT", Path: "/items/{id}"},
			{Identifier: "put_item", Verb: "PUT", Path: "/items/bulk"},
		},
	}

	tools := s.Synthesize(svc, desc)
	require.Len(t, tools, 3)

	// slug相同的三个操作：第一个不加后缀，其余按顺序编号
	assert.Equal(t, "store_put_item", tools[0].Name)
	assert.Equal(t, "store_put_item_2", tools[1].Name)
	assert.Equal(t, "store_put_item_3", tools[2].Name)

	// 重复合成产生相同的后缀分配
	again := s.Synthesize(svc, desc)
	assert.Equal(t, tools, again)
}

func TestSynthesizeCopiesParameters(t *testing.T) {
	s := NewToolSynthesizer(config.NewNopLogger())
	svc, desc := docStoreDescription()

	tools := s.Synthesize(svc, desc)
	require.Len(t, tools[1].Parameters, 1)
	assert.Equal(t, "body", tools[1].Parameters[0].Name)
	assert.True(t, tools[1].Parameters[0].Required, "必填标记应原样保留")

	// 复制而不是引用原切片
	tools[1].Parameters[0].Name = "mutated"
	assert.Equal(t, "body", desc.Operations[1].Parameters[0].Name)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		op       model.Operation
		expected []model.ToolCategory
	}{
		{
			name: "读取文档操作",
			op:   model.Operation{Verb: "GET", Path: "/documents"},
			expected: []model.ToolCategory{
				model.CategoryRead, model.CategoryDocument, model.CategoryStorage,
			},
		},
		{
			name: "创建文档操作",
			op:   model.Operation{Verb: "POST", Path: "/documents"},
			expected: []model.ToolCategory{
				model.CategoryCreate, model.CategoryDocument, model.CategoryStorage,
			},
		},
		{
			name:     "分析操作",
			op:       model.Operation{Verb: "POST", Path: "/analyze"},
			expected: []model.ToolCategory{model.CategoryCreate, model.CategoryAnalysis},
		},
		{
			name:     "搜索操作",
			op:       model.Operation{Identifier: "search_items", Verb: "GET", Path: "/items"},
			expected: []model.ToolCategory{model.CategoryRead, model.CategorySearch},
		},
		{
			name:     "无匹配时归为general",
			op:       model.Operation{Verb: "HEAD", Path: "/x"},
			expected: []model.ToolCategory{model.CategoryGeneral},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(&tt.op))
		})
	}
}

func TestEnsureUniqueNames(t *testing.T) {
	tools := []model.Tool{
		{Name: "svc_op", ServiceName: "a"},
		{Name: "svc_op", ServiceName: "b"},
		{Name: "other", ServiceName: "c"},
	}

	out := EnsureUniqueNames(tools)
	assert.Equal(t, "svc_op", out[0].Name)
	assert.Equal(t, "svc_op_2", out[1].Name)
	assert.Equal(t, "other", out[2].Name)

	// 原切片不被修改
	assert.Equal(t, "svc_op", tools[1].Name)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "doc_store", Slug("Doc Store"))
	assert.Equal(t, "get_documents_id", Slug("GET_/documents/{id}"))
	assert.Equal(t, "a_b", Slug("--a--b--"))
	assert.Equal(t, "", Slug("!!!"))
}
