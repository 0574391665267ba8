package synthesizer

import (
	"strings"

	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
)

// categoryRule 表示一条关键词分类规则
// 关键词在操作的动词、路径和标识中做子串匹配
type categoryRule struct {
	keyword  string
	category model.ToolCategory
}

// categoryRules 是固定有序的分类规则表
// 规则按表内顺序依次匹配，命中的分类按匹配顺序去重追加；
// 一条规则没有命中不影响后续规则，一条都没命中时归为general。
var categoryRules = []categoryRule{
	// HTTP动词映射CRUD分类
	{"get", model.CategoryRead},
	{"post", model.CategoryCreate},
	{"put", model.CategoryUpdate},
	{"patch", model.CategoryUpdate},
	{"delete", model.CategoryDelete},

	// 路径和操作标识中的领域关键词
	{"analy", model.CategoryAnalysis},
	{"report", model.CategoryAnalysis},
	{"search", model.CategorySearch},
	{"query", model.CategorySearch},
	{"find", model.CategorySearch},
	{"doc", model.CategoryDocument},
	{"doc", model.CategoryStorage},
	{"store", model.CategoryStorage},
	{"storage", model.CategoryStorage},
	{"file", model.CategoryStorage},
	{"asset", model.CategoryStorage},
	{"prompt", model.CategoryPrompt},
	{"code", model.CategoryCode},
	{"lint", model.CategoryCode},
	{"workflow", model.CategoryWorkflow},
	{"pipeline", model.CategoryWorkflow},
	{"process", model.CategoryProcessing},
	{"transform", model.CategoryProcessing},
	{"convert", model.CategoryProcessing},
}

// Classify 按固定规则表为操作分配分类标签
// 对相同输入永远返回相同的标签序列
func Classify(op *model.Operation) []model.ToolCategory {
	subject := strings.ToLower(op.Verb + " " + op.Path + " " + op.Identifier)

	var categories []model.ToolCategory
	matched := make(map[model.ToolCategory]bool)

	for _, rule := range categoryRules {
		if !strings.Contains(subject, rule.keyword) {
			continue
		}
		if matched[rule.category] {
			continue
		}
		matched[rule.category] = true
		categories = append(categories, rule.category)
	}

	if len(categories) == 0 {
		categories = append(categories, model.CategoryGeneral)
	}

	return categories
}
