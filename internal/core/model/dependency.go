package model

// EdgeKind 表示依赖边的类型
type EdgeKind string

const (
	// EdgeKindDataFlow 表示强依赖：生产方的输出是消费方的输入
	EdgeKindDataFlow EdgeKind = "data_flow"
	// EdgeKindFeedback 表示强依赖：消费方把结果写回生产方
	EdgeKindFeedback EdgeKind = "feedback"
	// EdgeKindCapabilitySharing 表示弱依赖：两个工具共享能力标签，仅供参考
	EdgeKindCapabilitySharing EdgeKind = "capability_sharing"
)

// DependencyEdge 表示两个工具之间推断出的依赖关系
// 每次分析全量重建，不做增量修改
type DependencyEdge struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Kind       EdgeKind `json:"kind"`
	Confidence float64  `json:"confidence"`
}

// IsStrong 判断该边是否参与执行分组排序
// 弱边（capability_sharing）永远不影响分组
func (e *DependencyEdge) IsStrong() bool {
	return e.Kind != EdgeKindCapabilitySharing
}

// ExecutionGroup 表示一组相互之间没有顺序依赖、可以并发执行的工具
type ExecutionGroup struct {
	Index int      `json:"index"`
	Tools []string `json:"tools"`
}

// PlanRecommendation 表示针对执行计划的一条优化建议
type PlanRecommendation struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Detail  string `json:"detail"`
}

// ExecutionPlan 表示一次依赖分析的完整输出
type ExecutionPlan struct {
	Edges           []DependencyEdge     `json:"edges"`
	Groups          []ExecutionGroup     `json:"groups"`
	Recommendations []PlanRecommendation `json:"recommendations,omitempty"`
}
