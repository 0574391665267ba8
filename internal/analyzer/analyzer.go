// Package analyzer 推断工具之间的依赖关系并计算安全的并发执行分组
package analyzer

import (
	"go.uber.org/zap"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

// dependencyRule 表示一条依赖推断规则
// 生产方携带producer标签且消费方携带consumer标签时，
// 在两者之间建立一条指定类型和置信度的强依赖边
type dependencyRule struct {
	producer   model.ToolCategory
	consumer   model.ToolCategory
	kind       model.EdgeKind
	confidence float64
}

const (
	strongConfidence = 0.8
	weakConfidence   = 0.5
)

// dependencyRules 是固定有序的依赖推断规则表
// 对每一对工具按表内顺序匹配，先命中的规则生效；
// 一对工具之间最多建立一条强依赖边，方向由命中的规则决定。
var dependencyRules = []dependencyRule{
	{model.CategoryStorage, model.CategoryAnalysis, model.EdgeKindDataFlow, strongConfidence},
	{model.CategoryAnalysis, model.CategoryStorage, model.EdgeKindFeedback, strongConfidence},
	{model.CategoryCreate, model.CategoryAnalysis, model.EdgeKindDataFlow, strongConfidence},
	{model.CategorySearch, model.CategoryAnalysis, model.EdgeKindDataFlow, strongConfidence},
	{model.CategoryProcessing, model.CategoryStorage, model.EdgeKindDataFlow, strongConfidence},
	{model.CategoryDocument, model.CategoryPrompt, model.EdgeKindDataFlow, strongConfidence},
	{model.CategoryPrompt, model.CategoryCode, model.EdgeKindDataFlow, strongConfidence},
	{model.CategoryCode, model.CategoryWorkflow, model.EdgeKindDataFlow, strongConfidence},
}

// Graph 表示一次依赖分析的输出：工具全集和推断出的边
type Graph struct {
	Tools []model.Tool
	Edges []model.DependencyEdge
}

// StrongEdges 返回参与执行排序的强依赖边
func (g *Graph) StrongEdges() []model.DependencyEdge {
	var strong []model.DependencyEdge
	for _, e := range g.Edges {
		if e.IsStrong() {
			strong = append(strong, e)
		}
	}
	return strong
}

// DependencyAnalyzer 表示依赖分析器
type DependencyAnalyzer struct {
	logger config.Logger
}

// NewDependencyAnalyzer 创建一个新的依赖分析器
func NewDependencyAnalyzer(logger config.Logger) *DependencyAnalyzer {
	return &DependencyAnalyzer{logger: logger}
}

// Analyze 对工具全集推断依赖边
// 每次调用全量重建整个图，不做增量修改。
// 对每一对工具：按规则表建立至多一条强依赖边；
// 没有强依赖但共享非general标签的工具对之间追加一条
// capability_sharing弱边，仅供参考，不影响执行分组。
func (a *DependencyAnalyzer) Analyze(tools []model.Tool) *Graph {
	graph := &Graph{
		Tools: tools,
		Edges: make([]model.DependencyEdge, 0),
	}

	for i := 0; i < len(tools); i++ {
		for j := i + 1; j < len(tools); j++ {
			if edge, ok := matchRules(&tools[i], &tools[j]); ok {
				graph.Edges = append(graph.Edges, edge)
				continue
			}
			if sharesNonGeneralCategory(&tools[i], &tools[j]) {
				graph.Edges = append(graph.Edges, model.DependencyEdge{
					Source:     tools[i].Name,
					Target:     tools[j].Name,
					Kind:       model.EdgeKindCapabilitySharing,
					Confidence: weakConfidence,
				})
			}
		}
	}

	a.logger.Debug("依赖分析完成",
		zap.Int("tools", len(tools)),
		zap.Int("edges", len(graph.Edges)),
	)

	return graph
}

// matchRules 按规则表顺序为一对工具匹配强依赖
// 每条规则先按(a为生产方)再按(b为生产方)两个方向检查，保证结果确定
func matchRules(a, b *model.Tool) (model.DependencyEdge, bool) {
	for _, rule := range dependencyRules {
		if a.HasCategory(rule.producer) && b.HasCategory(rule.consumer) {
			return model.DependencyEdge{
				Source:     a.Name,
				Target:     b.Name,
				Kind:       rule.kind,
				Confidence: rule.confidence,
			}, true
		}
		if b.HasCategory(rule.producer) && a.HasCategory(rule.consumer) {
			return model.DependencyEdge{
				Source:     b.Name,
				Target:     a.Name,
				Kind:       rule.kind,
				Confidence: rule.confidence,
			}, true
		}
	}
	return model.DependencyEdge{}, false
}

// sharesNonGeneralCategory 判断两个工具是否共享非general标签
func sharesNonGeneralCategory(a, b *model.Tool) bool {
	for _, c := range a.Categories {
		if c == model.CategoryGeneral {
			continue
		}
		if b.HasCategory(c) {
			return true
		}
	}
	return false
}
