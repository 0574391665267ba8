package model

// InterfaceDescription 表示服务的接口描述文档
// 由InterfaceFetcher从服务的公开接口描述地址解析得到
type InterfaceDescription struct {
	Title      string      `json:"title"`
	Version    string      `json:"version"`
	Operations []Operation `json:"operations"`
}

// Operation 表示接口描述中的一个可调用操作
type Operation struct {
	Identifier string                 `json:"identifier"`
	Verb       string                 `json:"verb"`
	Path       string                 `json:"path"`
	Summary    string                 `json:"summary,omitempty"`
	Parameters []Parameter            `json:"parameters,omitempty"`
	Responses  map[string]interface{} `json:"responses,omitempty"`
}

// Parameter 表示操作的一个参数定义
type Parameter struct {
	Name        string `json:"name"`
	In          string `json:"in,omitempty"`
	Type        string `json:"type,omitempty"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}
