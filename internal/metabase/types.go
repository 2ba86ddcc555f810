package metabase

// Collection 集合
type Collection struct {
	ID       any    `json:"id"` // 根集合为 "root"，其余为整数
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Archived bool   `json:"archived,omitempty"`
}

// IntID 返回集合的整数 ID，根集合返回 false
func (c *Collection) IntID() (int, bool) {
	if f, ok := c.ID.(float64); ok {
		return int(f), true
	}
	if i, ok := c.ID.(int); ok {
		return i, true
	}
	return 0, false
}

// Database BI 中注册的数据库
type Database struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Engine string `json:"engine"`
}

// Table BI 中同步到的表
type Table struct {
	ID     int    `json:"id"`
	DBID   int    `json:"db_id"`
	Name   string `json:"name"`
	Schema string `json:"schema"`
}

// Field 表字段元数据
type Field struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	BaseType    string `json:"base_type"`
}

// TableMetadata 表元数据（含字段列表）
type TableMetadata struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Card 原生 SQL 问题
type Card struct {
	ID                    int            `json:"id,omitempty"`
	Name                  string         `json:"name"`
	Display               string         `json:"display"`
	CollectionID          *int           `json:"collection_id,omitempty"`
	TableID               *int           `json:"table_id,omitempty"`
	DatasetQuery          DatasetQuery   `json:"dataset_query"`
	VisualizationSettings map[string]any `json:"visualization_settings"`
}

// DatasetQuery 卡片的查询定义
type DatasetQuery struct {
	Database int         `json:"database"`
	Type     string      `json:"type"` // 固定为 "native"
	Native   NativeQuery `json:"native"`
}

// NativeQuery 原生 SQL 与模板参数
type NativeQuery struct {
	Query        string                 `json:"query"`
	TemplateTags map[string]TemplateTag `json:"template-tags"`
}

// TemplateTag 模板参数：text 文本参数或 dimension 字段过滤器
type TemplateTag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display-name"`
	Type        string `json:"type"`
	Dimension   []any  `json:"dimension,omitempty"`
	WidgetType  string `json:"widget-type,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
}
