package analyzer

import (
	"fmt"
	"strings"

	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

// CyclicDependencyError 表示强依赖边构成了环，无法分层
// Tools列出残留在环路子图中的全部工具
type CyclicDependencyError struct {
	Tools []string
}

// Error 实现error接口
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("依赖图存在环路，涉及工具: %s", strings.Join(e.Tools, ", "))
}

// Partition 把依赖图分层为可并发执行的工具分组
// 使用Kahn算法按层提取：反复取出强依赖入度为零的工具作为下一组，
// 移除它们及其出边，直到图为空。弱边完全不参与计算。
// 强边仍有残留但没有任何工具入度为零时，说明存在环路，
// 返回CyclicDependencyError并列出残留子图中的全部工具，不做自动断边。
func (a *DependencyAnalyzer) Partition(graph *Graph) ([]model.ExecutionGroup, error) {
	// 只统计强依赖边的入度
	inDegree := make(map[string]int, len(graph.Tools))
	successors := make(map[string][]string)
	for _, tool := range graph.Tools {
		inDegree[tool.Name] = 0
	}
	for _, edge := range graph.StrongEdges() {
		successors[edge.Source] = append(successors[edge.Source], edge.Target)
		inDegree[edge.Target]++
	}

	// remaining按工具的原始顺序遍历，保证分组内的顺序确定
	remaining := make([]string, 0, len(graph.Tools))
	for _, tool := range graph.Tools {
		remaining = append(remaining, tool.Name)
	}
	removed := make(map[string]bool, len(graph.Tools))

	var groups []model.ExecutionGroup
	for len(remaining) > 0 {
		// 提取当前所有入度为零的工具
		var layer []string
		for _, name := range remaining {
			if inDegree[name] == 0 {
				layer = append(layer, name)
			}
		}

		// 没有可提取的工具但图非空，即存在环路
		if len(layer) == 0 {
			residual := make([]string, len(remaining))
			copy(residual, remaining)
			return nil, &CyclicDependencyError{Tools: residual}
		}

		groups = append(groups, model.ExecutionGroup{
			Index: len(groups),
			Tools: layer,
		})

		// 移除已提取的工具及其出边
		for _, name := range layer {
			removed[name] = true
			for _, succ := range successors[name] {
				inDegree[succ]--
			}
		}
		next := remaining[:0]
		for _, name := range remaining {
			if !removed[name] {
				next = append(next, name)
			}
		}
		remaining = next
	}

	return groups, nil
}

// 优化建议的类型
const (
	RecommendationParallelizable = "parallelizable"
	RecommendationBottleneck     = "bottleneck"
)

// 强依赖入边超过该数量的工具视为瓶颈，建议人工复核
const bottleneckInEdges = 2

// Optimize 对执行分组给出优化建议
// 包含多个工具的分组标记为可并行；强依赖入边多于两条的工具标记为瓶颈
func (a *DependencyAnalyzer) Optimize(graph *Graph, groups []model.ExecutionGroup) []model.PlanRecommendation {
	var recs []model.PlanRecommendation

	for _, group := range groups {
		if len(group.Tools) > 1 {
			recs = append(recs, model.PlanRecommendation{
				Kind:    RecommendationParallelizable,
				Subject: fmt.Sprintf("group_%d", group.Index),
				Detail:  fmt.Sprintf("分组%d中的%d个工具互不依赖，可以并发执行", group.Index, len(group.Tools)),
			})
		}
	}

	inDegree := make(map[string]int)
	for _, edge := range graph.StrongEdges() {
		inDegree[edge.Target]++
	}
	// 按工具原始顺序输出，保证建议列表确定
	for _, tool := range graph.Tools {
		if inDegree[tool.Name] > bottleneckInEdges {
			recs = append(recs, model.PlanRecommendation{
				Kind:    RecommendationBottleneck,
				Subject: tool.Name,
				Detail:  fmt.Sprintf("工具%s有%d条强依赖入边，建议复核其依赖关系", tool.Name, inDegree[tool.Name]),
			})
		}
	}

	return recs
}

// Plan 依次执行分析、分层和优化，返回完整的执行计划
// 分层失败时计划中只携带边集和错误信息，已合成的工具不受影响
func (a *DependencyAnalyzer) Plan(tools []model.Tool) (*model.ExecutionPlan, error) {
	graph := a.Analyze(tools)

	plan := &model.ExecutionPlan{Edges: graph.Edges}

	groups, err := a.Partition(graph)
	if err != nil {
		return plan, err
	}

	plan.Groups = groups
	plan.Recommendations = a.Optimize(graph, groups)
	return plan, nil
}
