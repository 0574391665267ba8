package fetcher

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

// openapiDocument 表示OpenAPI兼容文档的顶层结构
// 只解析本系统关心的字段，其余内容忽略
type openapiDocument struct {
	Info struct {
		Title   string `json:"title"`
		Version string `json:"version"`
	} `json:"info"`
	Paths map[string]map[string]json.RawMessage `json:"paths"`
}

// openapiOperation 表示路径下单个HTTP方法的操作定义
type openapiOperation struct {
	OperationID string             `json:"operationId"`
	Summary     string             `json:"summary"`
	Parameters  []openapiParameter `json:"parameters"`
	Responses   map[string]interface{} `json:"responses"`
}

// openapiParameter 表示操作参数定义，兼容内联schema
type openapiParameter struct {
	Name        string `json:"name"`
	In          string `json:"in"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Schema      struct {
		Type string `json:"type"`
	} `json:"schema"`
}

// httpVerbs 是paths对象下会被识别为操作的HTTP方法
var httpVerbs = []string{"get", "post", "put", "patch", "delete", "head", "options"}

// ParseDescription 将OpenAPI兼容的JSON文档解析为接口描述
// 解析是宽容的：单个操作条目格式错误时跳过该条目而不是整体失败，
// 没有任何可用操作的文档返回空操作列表，同样不算错误。
// 只有文档整体无法按JSON对象解析时才返回错误。
func ParseDescription(data []byte) (*model.InterfaceDescription, error) {
	var doc openapiDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("接口描述不是有效的JSON文档: %w", err)
	}

	desc := &model.InterfaceDescription{
		Title:      doc.Info.Title,
		Version:    doc.Info.Version,
		Operations: make([]model.Operation, 0),
	}

	// paths的遍历顺序固定，保证解析结果可复现
	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		verbs := doc.Paths[path]
		for _, verb := range httpVerbs {
			raw, ok := verbs[verb]
			if !ok {
				continue
			}

			var op openapiOperation
			if err := json.Unmarshal(raw, &op); err != nil {
				// 宽容处理：跳过格式错误的操作条目
				continue
			}

			operation := model.Operation{
				Identifier: op.OperationID,
				Verb:       strings.ToUpper(verb),
				Path:       path,
				Summary:    op.Summary,
				Responses:  op.Responses,
			}

			for _, p := range op.Parameters {
				paramType := p.Type
				if paramType == "" {
					paramType = p.Schema.Type
				}
				operation.Parameters = append(operation.Parameters, model.Parameter{
					Name:        p.Name,
					In:          p.In,
					Type:        paramType,
					Required:    p.Required,
					Description: p.Description,
				})
			}

			desc.Operations = append(desc.Operations, operation)
		}
	}

	return desc, nil
}
