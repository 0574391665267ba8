// Package synthesizer 把服务的接口操作合成为可注册的工具记录
package synthesizer

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

// ToolSynthesizer 表示工具合成器
// 合成是确定性的：相同的(服务, 接口描述)输入永远产出相同的工具集合
type ToolSynthesizer struct {
	logger config.Logger
}

// NewToolSynthesizer 创建一个新的工具合成器
func NewToolSynthesizer(logger config.Logger) *ToolSynthesizer {
	return &ToolSynthesizer{logger: logger}
}

// Synthesize 将接口描述中的每个操作合成为一个工具
// 工具名 = slug(服务名) + "_" + slug(操作标识或动词+路径)，
// 同批次内名称冲突时按顺序追加数字后缀。
func (s *ToolSynthesizer) Synthesize(svc *model.ServiceDescriptor, desc *model.InterfaceDescription) []model.Tool {
	tools := make([]model.Tool, 0, len(desc.Operations))
	seen := make(map[string]int)

	for _, op := range desc.Operations {
		name := toolName(svc.Name, &op, seen)

		// 参数schema原样复制，保留必填标记
		params := make([]model.Parameter, len(op.Parameters))
		copy(params, op.Parameters)

		tools = append(tools, model.Tool{
			Name:        name,
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			ServiceURL:  svc.BaseURL,
			Verb:        op.Verb,
			Path:        op.Path,
			Description: op.Summary,
			Categories:  Classify(&op),
			Parameters:  params,
		})
	}

	s.logger.Debug("工具合成完成",
		zap.String("service", svc.Name),
		zap.Int("operations", len(desc.Operations)),
		zap.Int("tools", len(tools)),
	)

	return tools
}

// toolName 生成批次内唯一的工具名
func toolName(serviceName string, op *model.Operation, seen map[string]int) string {
	var opPart string
	if op.Identifier != "" {
		opPart = Slug(op.Identifier)
	} else {
		opPart = Slug(op.Verb + "_" + op.Path)
	}

	base := Slug(serviceName) + "_" + opPart
	return resolveCollision(base, seen)
}

// resolveCollision 对重名追加确定性的数字后缀
func resolveCollision(base string, seen map[string]int) string {
	count := seen[base]
	seen[base] = count + 1
	if count == 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, count+1)
}

// EnsureUniqueNames 对跨服务汇总后的工具集再做一次重名消解
// 调用方负责先把工具按确定性顺序排好，保证结果可复现
func EnsureUniqueNames(tools []model.Tool) []model.Tool {
	seen := make(map[string]int)
	out := make([]model.Tool, len(tools))
	for i, tool := range tools {
		tool.Name = resolveCollision(tool.Name, seen)
		out[i] = tool
	}
	return out
}

// Slug 将任意标识转换为下划线分隔的小写形式
func Slug(s string) string {
	var b strings.Builder
	lastUnderscore := true // 抑制前导下划线
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
