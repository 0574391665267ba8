package model

// ToolCategory 表示工具分类标签
// 分类取值是一个封闭集合，依赖分析的规则表只认识这些标签
type ToolCategory string

const (
	CategoryCreate     ToolCategory = "create"
	CategoryRead       ToolCategory = "read"
	CategoryUpdate     ToolCategory = "update"
	CategoryDelete     ToolCategory = "delete"
	CategoryAnalysis   ToolCategory = "analysis"
	CategorySearch     ToolCategory = "search"
	CategoryStorage    ToolCategory = "storage"
	CategoryProcessing ToolCategory = "processing"
	CategoryDocument   ToolCategory = "document"
	CategoryPrompt     ToolCategory = "prompt"
	CategoryCode       ToolCategory = "code"
	CategoryWorkflow   ToolCategory = "workflow"
	CategoryGeneral    ToolCategory = "general"
)

// Tool 表示从服务操作合成的可调用工具
// 每次服务被重新发现时整体重建，不做增量合并
type Tool struct {
	Name        string         `json:"name"`
	ServiceID   string         `json:"service_id"`
	ServiceName string         `json:"service_name"`
	ServiceURL  string         `json:"service_url"`
	Verb        string         `json:"verb"`
	Path        string         `json:"path"`
	Description string         `json:"description,omitempty"`
	Categories  []ToolCategory `json:"categories"`
	Parameters  []Parameter    `json:"parameters,omitempty"`
}

// HasCategory 判断工具是否携带指定分类标签
func (t *Tool) HasCategory(c ToolCategory) bool {
	for _, tag := range t.Categories {
		if tag == c {
			return true
		}
	}
	return false
}
