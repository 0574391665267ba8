package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

func newAnalyzer() *DependencyAnalyzer {
	return NewDependencyAnalyzer(config.NewNopLogger())
}

func tool(name string, categories ...model.ToolCategory) model.Tool {
	return model.Tool{Name: name, Categories: categories}
}

func TestAnalyzeStrongEdgeFromRuleTable(t *testing.T) {
	a := newAnalyzer()

	tools := []model.Tool{
		tool("store_save", model.CategoryCreate, model.CategoryStorage),
		tool("analyzer_run", model.CategoryAnalysis),
	}

	graph := a.Analyze(tools)
	require.Len(t, graph.Edges, 1)

	edge := graph.Edges[0]
	assert.Equal(t, "store_save", edge.Source)
	assert.Equal(t, "analyzer_run", edge.Target)
	assert.Equal(t, model.EdgeKindDataFlow, edge.Kind)
	assert.Equal(t, 0.8, edge.Confidence)
}

func TestAnalyzeWeakEdgeForSharedCategory(t *testing.T) {
	a := newAnalyzer()

	// 两个storage工具之间没有强依赖规则命中，但共享storage标签
	tools := []model.Tool{
		tool("store_get", model.CategoryRead, model.CategoryStorage),
		tool("files_get", model.CategoryRead, model.CategoryStorage),
	}

	graph := a.Analyze(tools)
	require.Len(t, graph.Edges, 1)

	edge := graph.Edges[0]
	assert.Equal(t, model.EdgeKindCapabilitySharing, edge.Kind)
	assert.Equal(t, 0.5, edge.Confidence)
	assert.False(t, edge.IsStrong())
}

func TestAnalyzeNoWeakEdgeForGeneralOnly(t *testing.T) {
	a := newAnalyzer()

	tools := []model.Tool{
		tool("misc_a", model.CategoryGeneral),
		tool("misc_b", model.CategoryGeneral),
	}

	graph := a.Analyze(tools)
	assert.Empty(t, graph.Edges, "仅共享general标签不应产生弱边")
}

func TestAnalyzeEdgesReferenceExistingTools(t *testing.T) {
	a := newAnalyzer()

	tools := []model.Tool{
		tool("store_save", model.CategoryStorage),
		tool("analyzer_run", model.CategoryAnalysis),
		tool("search_find", model.CategorySearch),
		tool("pipeline_run", model.CategoryProcessing),
	}

	graph := a.Analyze(tools)
	names := make(map[string]bool)
	for _, tl := range tools {
		names[tl.Name] = true
	}
	for _, e := range graph.Edges {
		assert.True(t, names[e.Source], "边的起点必须是已知工具: %s", e.Source)
		assert.True(t, names[e.Target], "边的终点必须是已知工具: %s", e.Target)
	}
}

func TestPartitionLayering(t *testing.T) {
	a := newAnalyzer()

	// store -> analysis 链路：storage工具在第0层，analysis工具在第1层
	tools := []model.Tool{
		tool("doc_store_list_documents", model.CategoryRead, model.CategoryDocument, model.CategoryStorage),
		tool("doc_store_create_document", model.CategoryCreate, model.CategoryDocument, model.CategoryStorage),
		tool("analysis_service_analyze", model.CategoryAnalysis),
	}

	graph := a.Analyze(tools)

	// 必须存在从storage工具指向analysis工具的强依赖边
	var strongToAnalysis int
	for _, e := range graph.StrongEdges() {
		if e.Target == "analysis_service_analyze" {
			strongToAnalysis++
		}
	}
	assert.Equal(t, 2, strongToAnalysis)

	groups, err := a.Partition(graph)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.ElementsMatch(t,
		[]string{"doc_store_list_documents", "doc_store_create_document"},
		groups[0].Tools,
	)
	assert.Equal(t, []string{"analysis_service_analyze"}, groups[1].Tools)
}

func TestPartitionUnionCoversAllToolsOnce(t *testing.T) {
	a := newAnalyzer()

	tools := []model.Tool{
		tool("a", model.CategoryStorage),
		tool("b", model.CategoryAnalysis),
		tool("c", model.CategoryGeneral),
		tool("d", model.CategoryProcessing),
	}

	graph := a.Analyze(tools)
	groups, err := a.Partition(graph)
	require.NoError(t, err)

	// 所有分组的并集恰好覆盖工具全集一次
	seen := make(map[string]int)
	for _, g := range groups {
		for _, name := range g.Tools {
			seen[name]++
		}
	}
	assert.Len(t, seen, len(tools))
	for name, count := range seen {
		assert.Equal(t, 1, count, "工具%s应恰好出现一次", name)
	}

	// 每条强边的起点所在分组必须早于终点所在分组
	groupIndex := make(map[string]int)
	for _, g := range groups {
		for _, name := range g.Tools {
			groupIndex[name] = g.Index
		}
	}
	for _, e := range graph.StrongEdges() {
		assert.Less(t, groupIndex[e.Source], groupIndex[e.Target],
			"边%s->%s不满足分层约束", e.Source, e.Target)
	}
}

func TestPartitionCycleDetection(t *testing.T) {
	a := newAnalyzer()

	// 手工构造互相依赖的两个工具
	graph := &Graph{
		Tools: []model.Tool{tool("tool_a"), tool("tool_b")},
		Edges: []model.DependencyEdge{
			{Source: "tool_a", Target: "tool_b", Kind: model.EdgeKindDataFlow, Confidence: 0.8},
			{Source: "tool_b", Target: "tool_a", Kind: model.EdgeKindDataFlow, Confidence: 0.8},
		},
	}

	_, err := a.Partition(graph)
	var cycleErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"tool_a", "tool_b"}, cycleErr.Tools)
}

func TestPartitionIgnoresWeakCycles(t *testing.T) {
	a := newAnalyzer()

	// 弱边构成的环不影响分层：两个工具都在第0层
	graph := &Graph{
		Tools: []model.Tool{tool("tool_a"), tool("tool_b")},
		Edges: []model.DependencyEdge{
			{Source: "tool_a", Target: "tool_b", Kind: model.EdgeKindCapabilitySharing, Confidence: 0.5},
			{Source: "tool_b", Target: "tool_a", Kind: model.EdgeKindCapabilitySharing, Confidence: 0.5},
		},
	}

	groups, err := a.Partition(graph)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []string{"tool_a", "tool_b"}, groups[0].Tools)
}

func TestOptimize(t *testing.T) {
	a := newAnalyzer()

	graph := &Graph{
		Tools: []model.Tool{tool("a"), tool("b"), tool("c"), tool("d"), tool("sink")},
		Edges: []model.DependencyEdge{
			{Source: "a", Target: "sink", Kind: model.EdgeKindDataFlow, Confidence: 0.8},
			{Source: "b", Target: "sink", Kind: model.EdgeKindDataFlow, Confidence: 0.8},
			{Source: "c", Target: "sink", Kind: model.EdgeKindDataFlow, Confidence: 0.8},
		},
	}

	groups, err := a.Partition(graph)
	require.NoError(t, err)

	recs := a.Optimize(graph, groups)

	var kinds []string
	var subjects []string
	for _, r := range recs {
		kinds = append(kinds, r.Kind)
		subjects = append(subjects, r.Subject)
	}

	// 第0层有4个工具，可并行；sink有3条强依赖入边，是瓶颈
	assert.Contains(t, kinds, RecommendationParallelizable)
	assert.Contains(t, kinds, RecommendationBottleneck)
	assert.Contains(t, subjects, "sink")
}

func TestPlanFullOutput(t *testing.T) {
	a := newAnalyzer()

	tools := []model.Tool{
		tool("doc_read", model.CategoryRead, model.CategoryDocument, model.CategoryStorage),
		tool("analyze", model.CategoryAnalysis),
	}

	plan, err := a.Plan(tools)
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Edges)
	assert.Len(t, plan.Groups, 2)
}
